//go:build linux

// Package watch provides a directory-of-ELF-objects watcher for
// cmd/minilinkd, adapted from the teacher's filewatcher_unix.go:
// inotify on Linux, kqueue on Darwin (watch_darwin.go), and a polling
// fallback elsewhere (watch_other.go).
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/xyproto/minilink/internal/config"
)

// Watcher calls onChange, debounced, whenever a watched file is
// modified or closed after a write.
type Watcher struct {
	fd          int
	watchMap    map[int]string
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	onChange    func(string)
}

// New returns a Watcher backed by inotify.
func New(onChange func(string)) (*Watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("watch: inotify_init: %w", err)
	}
	return &Watcher{
		fd:          fd,
		watchMap:    make(map[int]string),
		debounceMap: make(map[string]*time.Timer),
		onChange:    onChange,
	}, nil
}

// Add starts watching path for modifications.
func (w *Watcher) Add(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	wd, err := unix.InotifyAddWatch(w.fd, absPath, unix.IN_MODIFY|unix.IN_CLOSE_WRITE)
	if err != nil {
		return fmt.Errorf("watch: watching %s: %w", absPath, err)
	}
	w.mu.Lock()
	w.watchMap[wd] = absPath
	w.mu.Unlock()
	return nil
}

// Run blocks, dispatching onChange until Close is called.
func (w *Watcher) Run() {
	buf := make([]byte, unix.SizeofInotifyEvent*10)
	for {
		n, err := unix.Read(w.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			if config.Verbose {
				fmt.Fprintf(os.Stderr, "watch: reading inotify events: %v\n", err)
			}
			return
		}

		offset := 0
		for offset < n {
			event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			offset += unix.SizeofInotifyEvent + int(event.Len)

			if event.Mask&(unix.IN_MODIFY|unix.IN_CLOSE_WRITE) != 0 {
				w.mu.Lock()
				path := w.watchMap[int(event.Wd)]
				w.mu.Unlock()
				if path != "" {
					w.debounced(path)
				}
			}
		}
	}
}

func (w *Watcher) debounced(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(500*time.Millisecond, func() {
		w.onChange(path)
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
	})
}

// Close releases the watcher's file descriptor.
func (w *Watcher) Close() error {
	return unix.Close(w.fd)
}

//go:build darwin

package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/xyproto/minilink/internal/config"
)

// Watcher calls onChange, debounced, whenever a watched file is
// modified or has its attributes changed, backed by kqueue.
type Watcher struct {
	kq          int
	watchMap    map[int]string
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	onChange    func(string)
}

// New returns a Watcher backed by kqueue.
func New(onChange func(string)) (*Watcher, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("watch: kqueue: %w", err)
	}
	return &Watcher{
		kq:          kq,
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
	fd, err := unix.Open(absPath, unix.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("watch: opening %s: %w", absPath, err)
	}
	event := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_VNODE,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
		Fflags: unix.NOTE_WRITE | unix.NOTE_ATTRIB,
	}
	if _, err := unix.Kevent(w.kq, []unix.Kevent_t{event}, nil, nil); err != nil {
		unix.Close(fd)
		return fmt.Errorf("watch: adding kevent for %s: %w", absPath, err)
	}
	w.mu.Lock()
	w.watchMap[fd] = absPath
	w.mu.Unlock()
	return nil
}

// Run blocks, dispatching onChange until Close is called.
func (w *Watcher) Run() {
	events := make([]unix.Kevent_t, 10)
	for {
		n, err := unix.Kevent(w.kq, nil, events, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if config.Verbose {
				fmt.Fprintf(os.Stderr, "watch: reading kevent: %v\n", err)
			}
			return
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Ident)
			w.mu.Lock()
			path := w.watchMap[fd]
			w.mu.Unlock()
			if path != "" {
				w.debounced(path)
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

// Close releases every open file descriptor and the kqueue itself.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for fd := range w.watchMap {
		unix.Close(fd)
	}
	return unix.Close(w.kq)
}

//go:build !linux && !darwin

package watch

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Watcher calls onChange, debounced, whenever a watched file's mtime
// advances. It is the polling fallback for platforms without inotify
// or kqueue, matching the teacher's filewatcher_windows.go.
type Watcher struct {
	watchMap    map[string]time.Time
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	onChange    func(string)
	stop        chan struct{}
}

// New returns a polling Watcher.
func New(onChange func(string)) (*Watcher, error) {
	return &Watcher{
		watchMap:    make(map[string]time.Time),
		debounceMap: make(map[string]*time.Timer),
		onChange:    onChange,
		stop:        make(chan struct{}),
	}, nil
}

// Add starts watching path for modifications.
func (w *Watcher) Add(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.watchMap[absPath] = time.Time{}
	w.mu.Unlock()
	return nil
}

// Run blocks, polling every 500ms, until Close is called.
func (w *Watcher) Run() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.poll()
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) poll() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.watchMap))
	for p := range w.watchMap {
		paths = append(paths, p)
	}
	w.mu.Unlock()

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		w.mu.Lock()
		last := w.watchMap[path]
		w.mu.Unlock()
		if !last.IsZero() && info.ModTime().After(last) {
			w.debounced(path)
		}
		w.mu.Lock()
		w.watchMap[path] = info.ModTime()
		w.mu.Unlock()
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

// Close stops Run.
func (w *Watcher) Close() error {
	close(w.stop)
	return nil
}

// Package watch provides the loader's file system capability on top of
// fsnotify. A single fsnotify watcher serves every subscription; it watches
// parent directories so files that are replaced, or do not exist yet, are
// still observed.
package watch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Logger receives watcher errors.
type Logger interface {
	Warn(msg string, args ...any)
}

// FS reads files from disk and reports changes to them.
type FS struct {
	log Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	dirs    map[string]int
	subs    map[string]map[*subscription]struct{}
}

// NewFS creates a file system whose watcher is started on first use.
func NewFS(logger Logger) *FS {
	return &FS{
		log:  logger,
		dirs: make(map[string]int),
		subs: make(map[string]map[*subscription]struct{}),
	}
}

// ReadFile reads the named file.
func (f *FS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

type subscription struct {
	fs       *FS
	path     string
	onChange func(op, path string)
	once     sync.Once
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() { err = s.fs.unsubscribe(s) })
	return err
}

// Watch calls onChange whenever name is created, written, removed or renamed.
func (f *FS) Watch(name string, onChange func(op, path string)) (io.Closer, error) {
	target, err := filepath.Abs(name)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch path: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create watcher: %w", err)
		}
		f.watcher = w
		go f.loop(w)
	}

	dir := filepath.Dir(target)
	if f.dirs[dir] == 0 {
		if err := f.watcher.Add(dir); err != nil {
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	f.dirs[dir]++

	sub := &subscription{fs: f, path: target, onChange: onChange}
	if f.subs[target] == nil {
		f.subs[target] = make(map[*subscription]struct{})
	}
	f.subs[target][sub] = struct{}{}

	return sub, nil
}

func (f *FS) unsubscribe(sub *subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.subs[sub.path], sub)
	if len(f.subs[sub.path]) == 0 {
		delete(f.subs, sub.path)
	}

	dir := filepath.Dir(sub.path)
	f.dirs[dir]--
	if f.dirs[dir] > 0 {
		return nil
	}
	delete(f.dirs, dir)
	if f.watcher == nil {
		return nil
	}
	if err := f.watcher.Remove(dir); err != nil {
		return fmt.Errorf("failed to unwatch %s: %w", dir, err)
	}
	return nil
}

// Close stops the underlying watcher. Subscriptions stop receiving events.
func (f *FS) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.watcher == nil {
		return nil
	}
	err := f.watcher.Close()
	f.watcher = nil
	f.dirs = make(map[string]int)
	f.subs = make(map[string]map[*subscription]struct{})
	return err
}

func (f *FS) loop(w *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			f.dispatch(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if f.log != nil {
				f.log.Warn("file watcher error", "error", err)
			}
		}
	}
}

func (f *FS) dispatch(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)

	f.mu.Lock()
	subs := make([]*subscription, 0, len(f.subs[path]))
	for sub := range f.subs[path] {
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		sub.onChange(ev.Op.String(), ev.Name)
	}
}

package loader

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yousuf/tracemap/internal/sourcemap"
)

// bundleMap maps bundle.js 1:20 to app.js 42:4 (name "foo").
const bundleMap = `{"version":3,"file":"bundle.js","sources":["app.js"],"names":["foo"],"mappings":"oBAyCIA"}`

// otherMap is bundleMap pointing at other.js.
const otherMap = `{"version":3,"file":"bundle.js","sources":["other.js"],"names":["foo"],"mappings":"oBAyCIA"}`

func inlineSource(mapJSON string) string {
	return "function foo(){throw new Error()}\n//@ sourceMappingURL=data:application/json;base64," +
		base64.StdEncoding.EncodeToString([]byte(mapJSON)) + "\n"
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

type fakeFS struct {
	mu       sync.Mutex
	files    map[string][]byte
	reads    map[string]int
	watchers map[string]map[int]func(op, path string)
	blocked  map[string]bool
	nextID   int
}

func newFakeFS() *fakeFS {
	return &fakeFS{
		files:    make(map[string][]byte),
		reads:    make(map[string]int),
		watchers: make(map[string]map[int]func(op, path string)),
		blocked:  make(map[string]bool),
	}
}

func (f *fakeFS) ReadFile(name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[name]++
	data, ok := f.files[name]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", name, os.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeFS) Watch(name string, onChange func(op, path string)) (io.Closer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blocked[name] {
		return nil, fmt.Errorf("watch %s: %w", name, os.ErrNotExist)
	}
	if f.watchers[name] == nil {
		f.watchers[name] = make(map[int]func(op, path string))
	}
	id := f.nextID
	f.nextID++
	f.watchers[name][id] = onChange
	return closerFunc(func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.watchers[name], id)
		return nil
	}), nil
}

func (f *fakeFS) set(name, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[name] = []byte(content)
}

// blockWatch makes Watch fail for name until unblockWatch is called.
func (f *fakeFS) blockWatch(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocked[name] = true
}

func (f *fakeFS) unblockWatch(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blocked, name)
}

func (f *fakeFS) fire(name string) {
	f.mu.Lock()
	callbacks := make([]func(op, path string), 0, len(f.watchers[name]))
	for _, fn := range f.watchers[name] {
		callbacks = append(callbacks, fn)
	}
	f.mu.Unlock()

	for _, fn := range callbacks {
		fn("WRITE", name)
	}
}

func (f *fakeFS) readCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[name]
}

func (f *fakeFS) watching(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watchers[name])
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLogger) record(level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf("%s %s %v", level, msg, args))
}

func (l *recordingLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args...) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args...) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args...) }

func (l *recordingLogger) contains(level, substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if strings.HasPrefix(e, level+" ") && strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func (l *recordingLogger) count(level, substr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if strings.HasPrefix(e, level+" ") && strings.Contains(e, substr) {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// originalSource resolves bundle.js 1:20 against the registry.
func originalSource(registry *sourcemap.Registry) string {
	m, ok := registry.Get("bundle.js")
	if !ok {
		return ""
	}
	pos, ok := m.OriginalPositionFor(1, 20)
	if !ok {
		return ""
	}
	return pos.Source
}

func fastOptions() Options {
	return Options{RetryDelay: 5 * time.Millisecond, DebounceWindow: 25 * time.Millisecond}
}

func externalSource() Source {
	return Source{Key: "bundle.js", Path: "/www/bundle.js", MapPath: "/www/bundle.js.map"}
}

func inlineSourceEntry() Source {
	return Source{Key: "bundle.js", Path: "/www/bundle.js", Inline: true}
}

func requireSource(t *testing.T, registry *sourcemap.Registry, want string) {
	t.Helper()
	require.Eventually(t, func() bool { return originalSource(registry) == want }, waitFor, tick)
}

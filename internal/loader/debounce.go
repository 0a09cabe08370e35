package loader

import (
	"sync"
	"time"
)

// debouncer suppresses change events for a path that arrive within window
// of the last accepted event for that path. Entries expire on their own.
type debouncer struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

func newDebouncer(window time.Duration, now func() time.Time) *debouncer {
	return &debouncer{
		window: window,
		now:    now,
		last:   make(map[string]time.Time),
	}
}

// allow reports whether an event for path should be acted on.
func (d *debouncer) allow(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for p, t := range d.last {
		if now.Sub(t) >= d.window {
			delete(d.last, p)
		}
	}

	if _, suppressed := d.last[path]; suppressed {
		return false
	}
	d.last[path] = now
	return true
}

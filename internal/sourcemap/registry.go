package sourcemap

import (
	"path"
	"sort"
	"strings"
	"sync"
)

// Registry maps generated-file basenames to loaded source maps.
// Readers resolve traces while loader goroutines swap entries in, so every
// access goes through the lock; values are replaced whole, never mutated.
type Registry struct {
	maps map[string]Mapping
	mu   sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		maps: make(map[string]Mapping),
	}
}

// Key returns the registry key for a generated file name or URL.
func Key(fileName string) string {
	return path.Base(strings.ReplaceAll(fileName, "\\", "/"))
}

// Get returns the map installed under key.
func (r *Registry) Get(key string) (Mapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.maps[key]
	return m, ok
}

// Set installs m under key, replacing any previous map (last write wins).
func (r *Registry) Set(key string, m Mapping) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maps[key] = m
}

// Keys returns the installed keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.maps))
	for key := range r.maps {
		keys = append(keys, key)
	}
	r.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Package loader keeps the source map registry populated. Each configured
// source gets a goroutine that loads its map, watches the file it came
// from, and reloads on change. External maps that fail their first load are
// retried until they succeed or the loader is stopped.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yousuf/tracemap/internal/sourcemap"
)

// Logger is the logging capability the loader needs. *slog.Logger satisfies it.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// FS is the file system capability the loader needs.
type FS interface {
	ReadFile(name string) ([]byte, error)
	// Watch calls onChange for every change to name until the returned
	// Closer is closed. Watches never keep the process alive.
	Watch(name string, onChange func(op, path string)) (io.Closer, error)
}

// Source is a configured generated file and where its map comes from.
type Source struct {
	// Key is the registry key, the basename of the generated file
	Key string
	// Path is the generated file; inline maps are read from it
	Path string
	// MapPath is the external map file, empty for inline maps
	MapPath string
	Inline  bool
}

func (s Source) watchedPath() string {
	if s.Inline {
		return s.Path
	}
	return s.MapPath
}

// Options holds the loader's timing knobs.
type Options struct {
	// StartDelay staggers the first load of external maps
	StartDelay time.Duration
	// LoadDelay throttles every external map load
	LoadDelay time.Duration
	// RetryDelay separates attempts while a first load or a watch fails
	RetryDelay time.Duration
	// DebounceWindow collapses repeated change events for one external map
	DebounceWindow time.Duration
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		StartDelay:     2 * time.Second,
		LoadDelay:      time.Second,
		RetryDelay:     time.Second,
		DebounceWindow: 25 * time.Millisecond,
	}
}

// Loader loads source maps into a registry and keeps them fresh.
type Loader struct {
	registry *sourcemap.Registry
	fs       FS
	log      Logger
	opts     Options
	debounce *debouncer
}

// New creates a loader writing into registry. A nil logger logs through
// slog.Default; a zero RetryDelay falls back to the default.
func New(registry *sourcemap.Registry, fsys FS, logger Logger, opts Options) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultOptions().RetryDelay
	}
	return &Loader{
		registry: registry,
		fs:       fsys,
		log:      logger,
		opts:     opts,
		debounce: newDebouncer(opts.DebounceWindow, time.Now),
	}
}

// Handle controls the goroutines started by Configure.
type Handle struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Stop cancels pending loads, closes every watch and waits for the
// loader goroutines to exit. It is safe to call more than once.
func (h *Handle) Stop() {
	h.once.Do(h.cancel)
	h.wg.Wait()
}

// Configure starts loading and watching every source. Loading happens in
// the background; the registry fills in as maps become available.
func (l *Loader) Configure(ctx context.Context, sources []Source) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel}

	l.flagCollisions(sources)

	for _, src := range sources {
		h.wg.Add(1)
		go func(src Source) {
			defer h.wg.Done()
			if src.Inline {
				l.runInline(ctx, src)
			} else {
				l.runExternal(ctx, src)
			}
		}(src)
	}

	return h
}

// flagCollisions warns about sources sharing a registry key. The last
// map loaded under a shared key wins.
func (l *Loader) flagCollisions(sources []Source) {
	seen := make(map[string]string, len(sources))
	for _, src := range sources {
		if prev, ok := seen[src.Key]; ok && prev != src.Path {
			l.log.Warn("source map key shared by multiple sources, last loaded wins",
				"key", src.Key, "first", prev, "second", src.Path)
		}
		seen[src.Key] = src.Path
	}
}

func (l *Loader) runExternal(ctx context.Context, src Source) {
	l.log.Info("Configuring source map", "map", src.MapPath, "key", src.Key)

	if !sleep(ctx, l.opts.StartDelay) {
		return
	}

	// The watch is armed before every load attempt so a change landing
	// mid-load still queues a reload. Both must succeed to leave the loop.
	reload := make(chan struct{}, 1)
	var watcher io.Closer
	for {
		var watchErr error
		watcher, watchErr = l.fs.Watch(src.MapPath, l.debounced(reload))

		err := l.loadExternal(ctx, src)
		if err == nil && watchErr == nil {
			break
		}
		closeQuietly(watcher)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.log.Error("failed to load source map, retrying", "map", src.MapPath, "error", err)
		} else {
			l.log.Error("failed to watch source map, retrying", "map", src.MapPath, "error", watchErr)
		}

		drain(reload)
		if !sleep(ctx, l.opts.RetryDelay) {
			return
		}
	}
	defer closeQuietly(watcher)

	l.serve(ctx, src, reload, func() error { return l.loadExternal(ctx, src) })
}

func (l *Loader) runInline(ctx context.Context, src Source) {
	reload := make(chan struct{}, 1)
	onChange := func(op, path string) { trigger(reload) }

	watcher, err := l.fs.Watch(src.Path, onChange)
	if loadErr := l.loadInline(src); loadErr != nil {
		l.log.Error("failed to load inline source map", "file", src.Path, "error", loadErr)
	}

	for err != nil {
		l.log.Error("failed to watch source map, retrying", "file", src.Path, "error", err)
		if !sleep(ctx, l.opts.RetryDelay) {
			return
		}
		if watcher, err = l.fs.Watch(src.Path, onChange); err == nil {
			// the file may have changed while nothing was watching it
			trigger(reload)
		}
	}
	defer closeQuietly(watcher)

	l.serve(ctx, src, reload, func() error { return l.loadInline(src) })
}

// serve runs load for every change notification until ctx is done.
// Failures are logged; the previously installed map stays in place.
func (l *Loader) serve(ctx context.Context, src Source, reload <-chan struct{}, load func() error) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-reload:
			if err := load(); err != nil && ctx.Err() == nil {
				l.log.Error("failed to reload source map", "file", src.watchedPath(), "error", err)
			}
		}
	}
}

// debounced returns a change callback that drops repeats for the same
// path inside the debounce window.
func (l *Loader) debounced(reload chan<- struct{}) func(op, path string) {
	return func(op, path string) {
		if l.debounce.allow(path) {
			trigger(reload)
		}
	}
}

func (l *Loader) loadExternal(ctx context.Context, src Source) error {
	l.log.Info("Loading source map", "map", filepath.Base(src.MapPath))

	if !sleep(ctx, l.opts.LoadDelay) {
		return ctx.Err()
	}
	return l.readExternal(src)
}

func (l *Loader) readExternal(src Source) error {
	data, err := l.fs.ReadFile(src.MapPath)
	if err != nil {
		return fmt.Errorf("failed to read source map: %w", err)
	}
	return l.install(src, data)
}

func (l *Loader) loadInline(src Source) error {
	l.log.Info("Configuring source map", "file", filepath.Base(src.Path), "key", src.Key)

	content, err := l.fs.ReadFile(src.Path)
	if err != nil {
		return fmt.Errorf("failed to read source file: %w", err)
	}

	data, err := ExtractInlineMap(string(content))
	if err != nil {
		return err
	}
	return l.install(src, data)
}

// install parses data and swaps it into the registry. A parse failure
// leaves whatever was installed before untouched.
func (l *Loader) install(src Source, data []byte) error {
	m, err := sourcemap.ParseMap(data)
	if err != nil {
		return err
	}
	l.registry.Set(src.Key, m)
	return nil
}

// Result is the outcome of loading one source.
type Result struct {
	Source Source
	Err    error
}

// LoadAll loads every source once, concurrently, without delays or
// watches. The returned error joins every failure.
func (l *Loader) LoadAll(ctx context.Context, sources []Source) ([]Result, error) {
	results := make([]Result, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, src := range sources {
		g.Go(func() error {
			results[i].Source = src
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			if src.Inline {
				results[i].Err = l.loadInline(src)
			} else {
				results[i].Err = l.readExternal(src)
			}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Source.watchedPath(), r.Err))
		}
	}
	return results, errors.Join(errs...)
}

// trigger queues a reload; a reload already pending absorbs it.
func trigger(reload chan<- struct{}) {
	select {
	case reload <- struct{}{}:
	default:
	}
}

func drain(reload <-chan struct{}) {
	select {
	case <-reload:
	default:
	}
}

// sleep waits for d, returning false if ctx is done first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

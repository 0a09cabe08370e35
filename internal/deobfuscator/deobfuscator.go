// Package deobfuscator is the entry point for rewriting minified stack
// traces: it owns the source map registry, keeps it populated through the
// loader, and runs the parse, resolve and format pipeline per trace.
package deobfuscator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/yousuf/tracemap/internal/config"
	"github.com/yousuf/tracemap/internal/loader"
	"github.com/yousuf/tracemap/internal/sourcemap"
	"github.com/yousuf/tracemap/internal/watch"
)

// Deobfuscator maps stack traces back to original sources.
type Deobfuscator struct {
	registry *sourcemap.Registry
	resolver *sourcemap.Resolver
	loader   *loader.Loader
	fs       loader.FS
	ownsFS   bool

	mu     sync.Mutex
	handle *loader.Handle
}

type settings struct {
	logger     loader.Logger
	fs         loader.FS
	loaderOpts loader.Options
}

// Option customizes a Deobfuscator.
type Option func(*settings)

// WithLogger sets the logger used for load diagnostics.
func WithLogger(logger loader.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithFS replaces the disk-backed file system.
func WithFS(fsys loader.FS) Option {
	return func(s *settings) { s.fs = fsys }
}

// WithLoaderOptions overrides the loader timings.
func WithLoaderOptions(opts loader.Options) Option {
	return func(s *settings) { s.loaderOpts = opts }
}

// New creates a Deobfuscator with an empty registry.
func New(opts ...Option) *Deobfuscator {
	s := settings{
		logger:     slog.Default(),
		loaderOpts: loader.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	registry := sourcemap.NewRegistry()
	d := &Deobfuscator{
		registry: registry,
		resolver: sourcemap.NewResolver(registry),
		fs:       s.fs,
	}
	if d.fs == nil {
		d.fs = watch.NewFS(s.logger)
		d.ownsFS = true
	}
	d.loader = loader.New(registry, d.fs, s.logger, s.loaderOpts)
	return d
}

// Registry returns the registry the deobfuscator resolves against.
func (d *Deobfuscator) Registry() *sourcemap.Registry {
	return d.registry
}

// Loader returns the loader that fills the registry.
func (d *Deobfuscator) Loader() *loader.Loader {
	return d.loader
}

// Configure (re)starts background loading for entries. Source paths are
// resolved against srcRoot; map paths against mapRoot, which defaults to
// srcRoot. Any previous configuration is stopped first. Maps already in
// the registry stay until replaced.
func (d *Deobfuscator) Configure(ctx context.Context, entries []config.Source, srcRoot, mapRoot string) error {
	sources, err := BuildSources(entries, srcRoot, mapRoot)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle != nil {
		d.handle.Stop()
	}
	d.handle = d.loader.Configure(ctx, sources)
	return nil
}

// Deobfuscate parses, resolves and formats a raw stack trace.
func (d *Deobfuscator) Deobfuscate(stack string) string {
	return sourcemap.FormatStackTrace(d.Resolve(stack))
}

// Resolve parses a raw stack trace and rewrites its frames against the
// maps currently installed.
func (d *Deobfuscator) Resolve(stack string) []sourcemap.StackFrame {
	return d.resolver.Resolve(sourcemap.ParseStackTrace(stack))
}

// Keys lists the generated files that currently have a map.
func (d *Deobfuscator) Keys() []string {
	return d.registry.Keys()
}

// Close stops background loading and releases file watches.
func (d *Deobfuscator) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle != nil {
		d.handle.Stop()
		d.handle = nil
	}
	if closer, ok := d.fs.(io.Closer); ok && d.ownsFS {
		return closer.Close()
	}
	return nil
}

// BuildSources resolves configured entries into loader sources.
func BuildSources(entries []config.Source, srcRoot, mapRoot string) ([]loader.Source, error) {
	if mapRoot == "" {
		mapRoot = srcRoot
	}

	sources := make([]loader.Source, 0, len(entries))
	for i, entry := range entries {
		if entry.Src == "" {
			return nil, fmt.Errorf("source %d: src is required", i)
		}

		src := loader.Source{
			Key:    sourcemap.Key(entry.Src),
			Path:   joinRoot(srcRoot, entry.Src),
			Inline: entry.Inline,
		}
		if !entry.Inline {
			src.MapPath = joinRoot(mapRoot, entry.MapFile())
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func joinRoot(root, name string) string {
	if root == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(root, name)
}

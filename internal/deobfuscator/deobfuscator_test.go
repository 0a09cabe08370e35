package deobfuscator

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yousuf/tracemap/internal/config"
	"github.com/yousuf/tracemap/internal/loader"
	"github.com/yousuf/tracemap/internal/logging"
)

// bundleMap maps bundle.js 1:20 to app.js 42:4 (name "foo").
const bundleMap = `{"version":3,"file":"bundle.js","sources":["app.js"],"names":["foo"],"mappings":"oBAyCIA"}`

const otherMap = `{"version":3,"file":"bundle.js","sources":["other.js"],"names":["foo"],"mappings":"oBAyCIA"}`

const rawTrace = "Error\n    at foo (bundle.js:1:20)"

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// writeFile replaces path atomically so watchers see one complete update.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

func newTestDeobfuscator(t *testing.T) (*Deobfuscator, *syncBuffer) {
	t.Helper()
	logs := &syncBuffer{}
	d := New(
		WithLogger(logging.New(logs, "debug", "text")),
		WithLoaderOptions(loader.Options{
			LoadDelay:      10 * time.Millisecond,
			RetryDelay:     10 * time.Millisecond,
			DebounceWindow: 25 * time.Millisecond,
		}),
	)
	t.Cleanup(func() { _ = d.Close() })
	return d, logs
}

func TestDeobfuscate_ExternalMap(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bundle.js.map"), bundleMap)

	d, _ := newTestDeobfuscator(t)
	require.NoError(t, d.Configure(context.Background(), []config.Source{{Src: "bundle.js"}}, dir, ""))

	require.Eventually(t, func() bool {
		return d.Deobfuscate(rawTrace) == "  at foo (app.js:42:4)"
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"bundle.js"}, d.Keys())
}

func TestDeobfuscate_NoMap(t *testing.T) {
	d, _ := newTestDeobfuscator(t)

	assert.Equal(t, "  at foo (bundle.js:1:20)", d.Deobfuscate(rawTrace))
	assert.Equal(t, "", d.Deobfuscate(""))
}

func TestDeobfuscate_ReloadsChangedMap(t *testing.T) {
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "maps", "bundle.js.map")
	require.NoError(t, os.MkdirAll(filepath.Dir(mapPath), 0o755))
	writeFile(t, mapPath, bundleMap)

	d, _ := newTestDeobfuscator(t)
	require.NoError(t, d.Configure(context.Background(), []config.Source{{Src: "bundle.js"}}, dir, filepath.Join(dir, "maps")))

	require.Eventually(t, func() bool {
		return d.Deobfuscate(rawTrace) == "  at foo (app.js:42:4)"
	}, 3*time.Second, 10*time.Millisecond)

	writeFile(t, mapPath, otherMap)

	require.Eventually(t, func() bool {
		return d.Deobfuscate(rawTrace) == "  at foo (other.js:42:4)"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestDeobfuscate_WatchesMapDirCreatedAfterConfigure(t *testing.T) {
	dist := filepath.Join(t.TempDir(), "dist")
	mapPath := filepath.Join(dist, "bundle.js.map")

	logs := &syncBuffer{}
	d := New(
		WithLogger(logging.New(logs, "debug", "text")),
		WithLoaderOptions(loader.Options{
			LoadDelay:      300 * time.Millisecond,
			RetryDelay:     10 * time.Millisecond,
			DebounceWindow: 25 * time.Millisecond,
		}),
	)
	t.Cleanup(func() { _ = d.Close() })

	require.NoError(t, d.Configure(context.Background(), []config.Source{{Src: "bundle.js"}}, dist, ""))

	// dist appears while the first attempt waits on its load delay
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.MkdirAll(dist, 0o755))
	writeFile(t, mapPath, bundleMap)

	require.Eventually(t, func() bool {
		return d.Deobfuscate(rawTrace) == "  at foo (app.js:42:4)"
	}, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "failed to watch source map, retrying")
	}, 3*time.Second, 10*time.Millisecond)

	// let the retry arm the watch and finish its load
	time.Sleep(500 * time.Millisecond)
	writeFile(t, mapPath, otherMap)

	require.Eventually(t, func() bool {
		return d.Deobfuscate(rawTrace) == "  at foo (other.js:42:4)"
	}, 3*time.Second, 10*time.Millisecond, "changed map was not reloaded")
}

func TestDeobfuscate_BadReloadKeepsMap(t *testing.T) {
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "bundle.js.map")
	writeFile(t, mapPath, bundleMap)

	d, logs := newTestDeobfuscator(t)
	require.NoError(t, d.Configure(context.Background(), []config.Source{{Src: "bundle.js"}}, dir, ""))

	require.Eventually(t, func() bool {
		return d.Deobfuscate(rawTrace) == "  at foo (app.js:42:4)"
	}, 3*time.Second, 10*time.Millisecond)

	writeFile(t, mapPath, `{"version": 3, "mappings": `)

	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "failed to reload source map")
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "  at foo (app.js:42:4)", d.Deobfuscate(rawTrace))
}

func TestDeobfuscate_InlineMap(t *testing.T) {
	dir := t.TempDir()
	content := "function foo(){}\n//@ sourceMappingURL=data:application/json;base64," +
		base64.StdEncoding.EncodeToString([]byte(bundleMap)) + "\n"
	writeFile(t, filepath.Join(dir, "bundle.js"), content)

	d, _ := newTestDeobfuscator(t)
	require.NoError(t, d.Configure(context.Background(), []config.Source{{Src: "bundle.js", Inline: true}}, dir, ""))

	require.Eventually(t, func() bool {
		return d.Deobfuscate(rawTrace) == "  at foo (app.js:42:4)"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestDeobfuscate_InlineMissingMarker(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bundle.js"), "function foo(){}\n")

	d, logs := newTestDeobfuscator(t)
	require.NoError(t, d.Configure(context.Background(), []config.Source{{Src: "bundle.js", Inline: true}}, dir, ""))

	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "no sourcemap in file")
	}, 3*time.Second, 10*time.Millisecond)

	_, ok := d.Registry().Get("bundle.js")
	assert.False(t, ok)
	assert.Equal(t, "  at foo (bundle.js:1:20)", d.Deobfuscate(rawTrace))
}

func TestConfigure_Reconfigure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bundle.js.map"), bundleMap)

	d, _ := newTestDeobfuscator(t)
	entries := []config.Source{{Src: "bundle.js"}}
	require.NoError(t, d.Configure(context.Background(), entries, dir, ""))
	require.NoError(t, d.Configure(context.Background(), entries, dir, ""))

	require.Eventually(t, func() bool { return len(d.Registry().Keys()) == 1 }, 3*time.Second, 10*time.Millisecond)

	require.Error(t, d.Configure(context.Background(), []config.Source{{Map: "x.map"}}, dir, ""))
}

func TestBuildSources(t *testing.T) {
	sources, err := BuildSources([]config.Source{
		{Src: "js/bundle.js"},
		{Src: "vendor.js", Map: "maps/v.map"},
		{Src: "widget.js", Inline: true},
		{Src: "/abs/app.js"},
	}, "public", "cdn")
	require.NoError(t, err)

	assert.Equal(t, []loader.Source{
		{Key: "bundle.js", Path: filepath.Join("public", "js/bundle.js"), MapPath: filepath.Join("cdn", "js/bundle.js.map")},
		{Key: "vendor.js", Path: filepath.Join("public", "vendor.js"), MapPath: filepath.Join("cdn", "maps/v.map")},
		{Key: "widget.js", Path: filepath.Join("public", "widget.js"), Inline: true},
		{Key: "app.js", Path: "/abs/app.js", MapPath: "/abs/app.js.map"},
	}, sources)
}

func TestBuildSources_MapRootDefaultsToSrcRoot(t *testing.T) {
	sources, err := BuildSources([]config.Source{{Src: "bundle.js"}}, "public", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("public", "bundle.js.map"), sources[0].MapPath)
}

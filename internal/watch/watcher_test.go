package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/respack/internal/build"
	"github.com/conduit-lang/respack/internal/compiler"
	"github.com/conduit-lang/respack/internal/factories"
	"github.com/conduit-lang/respack/internal/fsys"
	"github.com/conduit-lang/respack/internal/objcache"
	"github.com/conduit-lang/respack/internal/packstore"
	"github.com/conduit-lang/respack/internal/value"
)

func TestFileWatcher_DeliversChanges(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "main.json")
	require.NoError(t, os.WriteFile(testFile, []byte("{}"), 0o644))

	changes := make(chan []string, 4)
	watcher, err := NewFileWatcher(20*time.Millisecond, []string{"*.swp"}, nil, func(files []string) error {
		changes <- files
		return nil
	})
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, watcher.SetDirs([]string{tmpDir}))
	watcher.Start()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "edit.swp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(testFile, []byte(`{"a": 1}`), 0o644))

	select {
	case files := <-changes:
		assert.Equal(t, []string{testFile}, files)
	case <-time.After(5 * time.Second):
		t.Fatal("no change delivered")
	}
}

func TestFileWatcher_SetDirs(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	watcher, err := NewFileWatcher(0, nil, nil, func([]string) error { return nil })
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, watcher.SetDirs([]string{a, b}))
	assert.Len(t, watcher.Dirs(), 2)
	require.NoError(t, watcher.SetDirs([]string{b}))
	assert.Equal(t, []string{filepath.Clean(b)}, watcher.Dirs())

	assert.Error(t, watcher.SetDirs([]string{filepath.Join(a, "missing")}))
}

func TestFileWatcher_ShouldIgnore(t *testing.T) {
	watcher := &FileWatcher{ignored: []string{"*.swp", "*~"}}

	tests := []struct {
		path     string
		expected bool
	}{
		{"res/main.json", false},
		{"res/main.json.swp", true},
		{"res/main.json~", true},
		{"res/.hidden", true},
		{"icon.png", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, watcher.shouldIgnore(tt.path), tt.path)
	}
}

func TestFileWatcher_StopTwice(t *testing.T) {
	watcher, err := NewFileWatcher(0, nil, nil, func([]string) error { return nil })
	require.NoError(t, err)
	watcher.Start()
	require.NoError(t, watcher.Stop())
	assert.NoError(t, watcher.Stop())
}

func TestDebouncer_Add(t *testing.T) {
	var mu sync.Mutex
	var calls [][]string

	debouncer := NewDebouncer(30 * time.Millisecond)
	debouncer.SetCallback(func(f []string) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, f)
	})

	debouncer.Add("b.json")
	debouncer.Add("a.json")
	debouncer.Add("b.json")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"a.json", "b.json"}, calls[0])
	mu.Unlock()

	debouncer.Add("c.json")
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestDebouncer_StopDropsPending(t *testing.T) {
	called := make(chan struct{}, 1)
	debouncer := NewDebouncer(20 * time.Millisecond)
	debouncer.SetCallback(func([]string) { called <- struct{}{} })

	debouncer.Add("a.json")
	debouncer.Stop()
	debouncer.Add("b.json")

	select {
	case <-called:
		t.Fatal("callback ran after Stop")
	case <-time.After(100 * time.Millisecond):
	}
}

func newSystem(t *testing.T, dir string) *build.System {
	t.Helper()
	fs := fsys.OS()
	reg := factories.NewRegistry()
	cache := objcache.New(objcache.Options{Factories: reg})
	t.Cleanup(cache.Close)
	s := build.New(build.Options{
		Sources:  []string{filepath.Join(dir, "main.json")},
		Compiler: compiler.New(compiler.Options{Factories: reg, FS: fs}),
		Cache:    cache,
		Store:    packstore.NewFileStore(fs, filepath.Join(dir, "out", "res.pack")),
		FS:       fs,
	})
	_, err := s.Open(context.Background(), false)
	require.NoError(t, err)
	return s
}

func writeSources(t *testing.T, dir, title string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.json"),
		[]byte(`{"title": {"res:type": "text", "path": "file:title.txt"}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "title.txt"), []byte(title), 0o644))
}

func titleText(t *testing.T, s *build.System) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := s.Cache().Get(ctx, "title")
	require.NoError(t, err)
	return objectText(v)
}

func objectText(v value.Value) string {
	n, ok := v.(*compiler.Node)
	if !ok {
		return ""
	}
	if text, ok := n.Object().(*factories.Text); ok {
		return text.Text
	}
	return ""
}

func TestRebuilder_HandleChanges(t *testing.T) {
	dir := t.TempDir()
	writeSources(t, dir, "one")
	s := newSystem(t, dir)

	var results []*build.Result
	r, err := NewRebuilder(s, Options{OnResult: func(res *build.Result, err error) {
		require.NoError(t, err)
		results = append(results, res)
	}})
	require.NoError(t, err)
	defer r.Watcher().Stop()
	assert.Equal(t, []string{dir}, r.Watcher().Dirs())

	// unrelated and unchanged files do not rebuild
	require.NoError(t, r.HandleChanges([]string{filepath.Join(dir, "notes.txt"), filepath.Join(dir, "title.txt")}))
	assert.Empty(t, results)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "title.txt"), []byte("two"), 0o644))
	require.NoError(t, r.HandleChanges([]string{filepath.Join(dir, "title.txt")}))
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Stats.Changed)
	assert.Equal(t, "two", titleText(t, s))
}

func TestRebuilder_Run(t *testing.T) {
	dir := t.TempDir()
	writeSources(t, dir, "one")
	s := newSystem(t, dir)

	title := s.Cache().GetResourceObject("title")
	done := make(chan *build.Result, 1)
	r, err := NewRebuilder(s, Options{Debounce: 20 * time.Millisecond, OnResult: func(res *build.Result, err error) {
		if err == nil {
			select {
			case done <- res:
			default:
			}
		}
	}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- r.Run(ctx) }()

	// give the watcher a moment to start reading events
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "title.txt"), []byte("three"), 0o644))

	select {
	case res := <-done:
		assert.Equal(t, []string{"title"}, res.Stats.Forwarded)
	case <-time.After(5 * time.Second):
		t.Fatal("no rebuild")
	}

	// a write may arrive as several events and rebuild more than once
	assert.Eventually(t, func() bool {
		v, ok := title.Latest().TryGet()
		return ok && objectText(v) == "three"
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-stopped)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir, "")
	require.NoError(t, err)

	assert.Empty(t, cfg.Sources)
	assert.Equal(t, "build/resources.pack", cfg.Pack.Path)
	assert.Equal(t, filepath.Join(dir, "build/resources.pack"), cfg.PackPath())
	assert.True(t, cfg.Pack.Compress)
	assert.Equal(t, 3, cfg.Pack.Level)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, StoreFile, cfg.Store.Kind)
	assert.Equal(t, "respack:pack", cfg.Store.Redis.Key)
	assert.Equal(t, 100*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, []string{"*.swp", "*~"}, cfg.Watch.Ignore)
	assert.Empty(t, cfg.File)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := `
sources:
  - res/main.json
  - /abs/extra.json
pack:
  path: out/game.pack
  compress: false
  level: 1
workers: 4
log:
  level: debug
  format: json
store:
  kind: redis
  redis:
    addr: cache:6379
    db: 2
    key: game:pack
watch:
  debounce: 250ms
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "respack.yml"), []byte(content), 0o644))

	cfg, err := Load(dir, "")
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(dir, "res/main.json"), "/abs/extra.json"}, cfg.SourcePaths())
	assert.Equal(t, filepath.Join(dir, "out/game.pack"), cfg.PackPath())
	assert.False(t, cfg.Pack.Compress)
	assert.Equal(t, 1, cfg.Pack.Level)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, filepath.Join(dir, "respack.yml"), cfg.File)

	redis := cfg.RedisStore()
	assert.Equal(t, "cache:6379", redis.Addr)
	assert.Equal(t, 2, redis.DB)
	assert.Equal(t, "game:pack", redis.Key)
}

func TestLoad_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "conf", "custom.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte("sources: [main.json]\n"), 0o644))

	cfg, err := Load(t.TempDir(), file)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "conf", "main.json")}, cfg.SourcePaths())

	_, err = Load(dir, filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("RESPACK_PACK_PATH", "/tmp/env.pack")
	t.Setenv("RESPACK_LOG_LEVEL", "warn")

	cfg, err := Load(t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.pack", cfg.PackPath())
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown store", "store:\n  kind: s3\n", "store.kind"},
		{"level", "pack:\n  level: 9\n", "pack.level"},
		{"workers", "workers: -1\n", "workers"},
		{"empty pack path", "pack:\n  path: \"\"\n", "pack.path"},
		{"malformed", "sources: [\n", "failed to read config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "respack.yml"), []byte(tt.content), 0o644))
			_, err := Load(dir, "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "respack.yaml"), []byte("{}"), 0o644))

	got, err := FindProjectRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

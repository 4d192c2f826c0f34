package fsys

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFS_Memory(t *testing.T) {
	fs := Memory()
	require.NoError(t, afero.WriteFile(fs.Afero(), "/res/a.txt", []byte("hello"), 0o644))

	assert.True(t, fs.Exists("/res/a.txt"))
	assert.True(t, fs.Exists("/res"))
	assert.False(t, fs.Exists("/res/b.txt"))

	data, err := fs.ReadFile("/res/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = fs.ReadFile("/res/b.txt")
	assert.True(t, IsNotExist(err))

	stamp := time.Unix(1700000000, 0)
	require.NoError(t, fs.Touch("/res/a.txt", stamp))
	mtime, err := fs.LastWriteTime("/res/a.txt")
	require.NoError(t, err)
	assert.True(t, stamp.Equal(mtime))

	m, err := fs.MapReadOnly("/res/a.txt")
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, 5, m.Len())
	buf := make([]byte, 3)
	_, err = m.ReadAt(buf, 2)
	require.NoError(t, err)
	assert.Equal(t, "llo", string(buf))
	_, err = m.ReadAt(buf, 4)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFS_OSMapping(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pack.bin")

	fs := OS()
	require.NoError(t, fs.WriteFileAtomic(path, []byte("0123456789")))
	assert.False(t, fs.Exists(path+".tmp"))

	m, err := fs.MapReadOnly(path)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 10, m.Len())
	buf := make([]byte, 4)
	_, err = m.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "6789", string(buf))
}

func TestFS_HashFile(t *testing.T) {
	fs := Memory()
	require.NoError(t, afero.WriteFile(fs.Afero(), "/a", []byte("hello"), 0o644))
	require.NoError(t, afero.WriteFile(fs.Afero(), "/b", []byte("hello"), 0o644))

	a, err := fs.HashFile("/a")
	require.NoError(t, err)
	b, err := fs.HashFile("/b")
	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", a)
	assert.Equal(t, a, b)

	_, err = fs.HashFile("/missing")
	assert.True(t, IsNotExist(err))
}

func TestFS_WriteFileAtomic(t *testing.T) {
	fs := Memory()
	require.NoError(t, fs.Afero().MkdirAll("/out", 0o755))
	require.NoError(t, fs.WriteFileAtomic("/out/pack.bin", []byte("v1")))
	require.NoError(t, fs.WriteFileAtomic("/out/pack.bin", []byte("v2")))

	data, err := fs.ReadFile("/out/pack.bin")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
	assert.False(t, fs.Exists("/out/pack.bin.tmp"))
}

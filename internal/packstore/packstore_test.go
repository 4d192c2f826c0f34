package packstore

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/respack/internal/fsys"
)

func writeString(s string) func(w io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

func readAll(t *testing.T, p Pack) string {
	t.Helper()
	buf := make([]byte, p.Len())
	_, err := p.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		require.NoError(t, err)
	}
	return string(buf)
}

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Open(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Write(ctx, writeString("pack v1")))
	p, err := s.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pack v1", readAll(t, p))
	require.NoError(t, p.Close())

	require.NoError(t, s.Write(ctx, writeString("pack v2")))
	p, err = s.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pack v2", readAll(t, p))
	require.NoError(t, p.Close())

	failing := func(io.Writer) error { return errors.New("encoder failed") }
	assert.Error(t, s.Write(ctx, failing))
	p, err = s.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pack v2", readAll(t, p), "a failed write leaves the previous pack")
	require.NoError(t, p.Close())

	require.NoError(t, s.WriteAux(ctx, "symbols.h", []byte("#define TITLE 0")))
}

func TestFileStore_Memory(t *testing.T) {
	fs := fsys.Memory()
	s := NewFileStore(fs, "/out/res.pack")
	exerciseStore(t, s)

	aux, err := afero.ReadFile(fs.Afero(), "/out/symbols.h")
	require.NoError(t, err)
	assert.Equal(t, "#define TITLE 0", string(aux))
	assert.Error(t, s.WriteAux(context.Background(), "../escape.h", nil))
	assert.Equal(t, "/out/res.pack", s.Describe())
}

func TestFileStore_OS(t *testing.T) {
	s := NewFileStore(fsys.OS(), filepath.Join(t.TempDir(), "build", "res.pack"))
	exerciseStore(t, s)
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreWithClient(client, "test:pack")
	defer s.Close()
	exerciseStore(t, s)

	aux, err := s.Aux(context.Background(), "symbols.h")
	require.NoError(t, err)
	assert.Equal(t, "#define TITLE 0", string(aux))
	_, err = s.Aux(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "redis:test:pack", s.Describe())
}

func TestNewRedisStore_Connects(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	s, err := NewRedisStore(RedisConfig{Addr: mr.Addr(), Key: "k"})
	require.NoError(t, err)
	defer s.Close()

	_, err = NewRedisStore(RedisConfig{Addr: "localhost:99999"})
	assert.Error(t, err)
}

// Package fsys is the file-system service used by the compiler and the cache:
// existence checks, modification times, whole-file reads and read-only
// mappings, over an afero file system so tests can run in memory.
package fsys

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/exp/mmap"
)

// Mapping is a read-only view of a whole file
type Mapping interface {
	io.ReaderAt
	io.Closer
	Len() int
}

// FS wraps an afero file system
type FS struct {
	fs afero.Fs
}

// New wraps fs
func New(fs afero.Fs) *FS {
	return &FS{fs: fs}
}

// OS returns the host file system
func OS() *FS {
	return New(afero.NewOsFs())
}

// Memory returns an empty in-memory file system
func Memory() *FS {
	return New(afero.NewMemMapFs())
}

// Afero exposes the underlying file system
func (f *FS) Afero() afero.Fs { return f.fs }

// Exists reports whether path names an existing file or directory
func (f *FS) Exists(path string) bool {
	ok, err := afero.Exists(f.fs, path)
	return err == nil && ok
}

// LastWriteTime returns the modification time of path
func (f *FS) LastWriteTime(path string) (time.Time, error) {
	info, err := f.fs.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// ReadFile reads the whole file
func (f *FS) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(f.fs, path)
}

// WriteFileAtomic writes data to a temporary sibling and renames it over path
func (f *FS) WriteFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.fs.Rename(tmp, path); err != nil {
		_ = f.fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// MapReadOnly maps path for reading. On the host file system the file is
// memory mapped; other file systems get an in-memory copy.
func (f *FS) MapReadOnly(path string) (Mapping, error) {
	if _, ok := f.fs.(*afero.OsFs); ok {
		m, err := mmap.Open(path)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	data, err := f.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &memMapping{data: data}, nil
}

// HashFile computes a SHA-256 hash of the file contents
func (f *FS) HashFile(path string) (string, error) {
	file, err := f.fs.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Touch sets the modification time of path
func (f *FS) Touch(path string, t time.Time) error {
	return f.fs.Chtimes(path, t, t)
}

// IsNotExist reports whether err means a missing file
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

type memMapping struct {
	data []byte
}

func (m *memMapping) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.data)) {
		return 0, fmt.Errorf("read at %d: out of range", off)
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memMapping) Len() int     { return len(m.data) }
func (m *memMapping) Close() error { return nil }

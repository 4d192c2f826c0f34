package packstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/conduit-lang/respack/internal/fsys"
)

// FileStore keeps the pack in one file. Writes go through a temporary file
// and a rename; reads memory map the file on the host file system.
type FileStore struct {
	fs   *fsys.FS
	path string
}

// NewFileStore creates a store for the pack at path
func NewFileStore(fs *fsys.FS, path string) *FileStore {
	if fs == nil {
		fs = fsys.OS()
	}
	return &FileStore{fs: fs, path: path}
}

// Path returns the pack file path
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Open(_ context.Context) (Pack, error) {
	m, err := s.fs.MapReadOnly(s.path)
	if err != nil {
		if fsys.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open pack %s: %w", s.path, err)
	}
	return m, nil
}

func (s *FileStore) Write(_ context.Context, write func(w io.Writer) error) error {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return err
	}
	if err := s.fs.Afero().MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create pack directory: %w", err)
	}
	return s.fs.WriteFileAtomic(s.path, buf.Bytes())
}

// WriteAux writes name into the pack's directory
func (s *FileStore) WriteAux(_ context.Context, name string, data []byte) error {
	if filepath.Base(name) != name {
		return fmt.Errorf("auxiliary output %q must be a plain file name", name)
	}
	return s.fs.WriteFileAtomic(filepath.Join(filepath.Dir(s.path), name), data)
}

func (s *FileStore) Describe() string { return s.path }

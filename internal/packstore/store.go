// Package packstore persists compiled resource packs and their auxiliary
// outputs, either as files or in redis.
package packstore

import (
	"bytes"
	"context"
	"errors"
	"io"
)

// ErrNotFound means the store holds no pack yet
var ErrNotFound = errors.New("pack not found")

// Pack is an opened pack. Blobs decoded from it read through ReaderAt, so it
// must stay open while they can still be materialised.
type Pack interface {
	io.ReaderAt
	io.Closer
	Len() int
}

// Store reads and writes one pack
type Store interface {
	// Open returns the stored pack or ErrNotFound
	Open(ctx context.Context) (Pack, error)
	// Write replaces the pack with what write produces
	Write(ctx context.Context, write func(w io.Writer) error) error
	// WriteAux stores an auxiliary output next to the pack
	WriteAux(ctx context.Context, name string, data []byte) error
	// Describe names the location for logs
	Describe() string
}

// bytesPack serves a pack held in memory
type bytesPack struct {
	*bytes.Reader
}

func newBytesPack(data []byte) *bytesPack {
	return &bytesPack{Reader: bytes.NewReader(data)}
}

func (p *bytesPack) Close() error { return nil }

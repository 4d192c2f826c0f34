package value

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/conduit-lang/respack/internal/compress"
)

// Flags annotate a saved blob
type Flags uint32

const (
	// FlagCompressed marks saved bytes as compressed
	FlagCompressed Flags = 1 << iota
	// FlagDict marks loaded bytes as an encoded dictionary
	FlagDict
)

// ErrNoCodec is returned when a compressed blob has no codec attached
var ErrNoCodec = errors.New("compressed blob has no codec")

// DictDecoder turns loaded blob bytes into a dictionary
type DictDecoder func(data []byte) (*Dict, error)

// Blob is a lazily materialised, optionally compressed byte range.
//
// Saved bytes live in memory or at an offset of an io.ReaderAt (an open file
// or a memory map). Bytes decompresses on first use and caches the result;
// materialising is idempotent and safe for concurrent use.
type Blob struct {
	savedSize  int64
	loadedSize int64
	flags      Flags
	codec      compress.Codec
	decode     DictDecoder

	saved  []byte
	src    io.ReaderAt
	offset int64

	once sync.Once
	data []byte
	err  error

	dictOnce sync.Once
	dict     *Dict
	dictErr  error
}

// NewBlob builds a blob from loaded bytes, compressing them when requested.
func NewBlob(data []byte, codec compress.Codec, compressed bool) (*Blob, error) {
	b := &Blob{
		savedSize:  int64(len(data)),
		loadedSize: int64(len(data)),
		saved:      data,
		codec:      codec,
	}
	if compressed {
		if codec == nil {
			return nil, ErrNoCodec
		}
		packed, err := compress.Bytes(codec, data)
		if err != nil {
			return nil, fmt.Errorf("compress blob: %w", err)
		}
		b.saved = packed
		b.savedSize = int64(len(packed))
		b.flags |= FlagCompressed
	}
	b.once.Do(func() { b.data = data })
	return b, nil
}

// NewSavedBlob wraps saved bytes already in memory.
func NewSavedBlob(saved []byte, loadedSize int64, flags Flags, codec compress.Codec) *Blob {
	return &Blob{
		savedSize:  int64(len(saved)),
		loadedSize: loadedSize,
		flags:      flags,
		codec:      codec,
		saved:      saved,
	}
}

// NewDeferredBlob references saved bytes at offset of src without reading them.
func NewDeferredBlob(src io.ReaderAt, offset, savedSize, loadedSize int64, flags Flags, codec compress.Codec) *Blob {
	return &Blob{
		savedSize:  savedSize,
		loadedSize: loadedSize,
		flags:      flags,
		codec:      codec,
		src:        src,
		offset:     offset,
	}
}

// WithDictDecoder marks the blob as an encoded dictionary. Call it before the
// blob is published.
func (b *Blob) WithDictDecoder(decode DictDecoder) *Blob {
	b.flags |= FlagDict
	b.decode = decode
	return b
}

// SetDictDecoder attaches a decoder to a blob already flagged as a dictionary.
// Call it before the blob is published.
func (b *Blob) SetDictDecoder(decode DictDecoder) {
	b.decode = decode
}

func (b *Blob) Kind() *Kind { return KindBlob }

// SavedSize returns the stored byte count
func (b *Blob) SavedSize() int64 { return b.savedSize }

// LoadedSize returns the materialised byte count
func (b *Blob) LoadedSize() int64 { return b.loadedSize }

// Flags returns the flag set
func (b *Blob) Flags() Flags { return b.flags }

// Compressed reports FlagCompressed
func (b *Blob) Compressed() bool { return b.flags&FlagCompressed != 0 }

// IsDict reports FlagDict
func (b *Blob) IsDict() bool { return b.flags&FlagDict != 0 }

// Codec returns the attached codec
func (b *Blob) Codec() compress.Codec { return b.codec }

// Deferred reports whether the saved bytes are read from a source on demand
func (b *Blob) Deferred() bool { return b.src != nil }

// SavedBytes returns the bytes as stored, compressed or not.
func (b *Blob) SavedBytes() ([]byte, error) {
	if b.src == nil {
		return b.saved, nil
	}
	buf := make([]byte, b.savedSize)
	n, err := b.src.ReadAt(buf, b.offset)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
		return nil, fmt.Errorf("read blob at %d: %w", b.offset, err)
	}
	return buf, nil
}

// Bytes materialises the loaded bytes
func (b *Blob) Bytes() ([]byte, error) {
	b.once.Do(func() {
		b.data, b.err = b.materialize()
	})
	return b.data, b.err
}

func (b *Blob) materialize() ([]byte, error) {
	saved, err := b.SavedBytes()
	if err != nil {
		return nil, err
	}
	if !b.Compressed() {
		return saved, nil
	}
	if b.codec == nil {
		return nil, ErrNoCodec
	}
	out := bytes.NewBuffer(make([]byte, 0, b.loadedSize))
	if err := b.codec.Decompress(out, bytes.NewReader(saved), int64(len(saved))); err != nil {
		return nil, fmt.Errorf("decompress blob: %w", err)
	}
	if int64(out.Len()) != b.loadedSize {
		return nil, fmt.Errorf("decompressed %d bytes, expected %d", out.Len(), b.loadedSize)
	}
	return out.Bytes(), nil
}

// Dict decodes a dictionary blob
func (b *Blob) Dict() (*Dict, error) {
	if !b.IsDict() || b.decode == nil {
		return nil, fmt.Errorf("blob does not decode to a dictionary")
	}
	b.dictOnce.Do(func() {
		data, err := b.Bytes()
		if err != nil {
			b.dictErr = err
			return
		}
		b.dict, b.dictErr = b.decode(data)
	})
	return b.dict, b.dictErr
}

func (b *Blob) String() string {
	var parts []string
	if b.Compressed() {
		parts = append(parts, "compressed")
	}
	if b.IsDict() {
		parts = append(parts, "dict")
	}
	suffix := ""
	if len(parts) > 0 {
		suffix = ", " + strings.Join(parts, ", ")
	}
	return fmt.Sprintf("blob(saved=%d, loaded=%d%s)", b.savedSize, b.loadedSize, suffix)
}

// Equal compares materialised content and the dictionary flag
func (b *Blob) Equal(o Value) bool {
	other, ok := o.(*Blob)
	if !ok {
		return false
	}
	if b == other {
		return true
	}
	if b.IsDict() != other.IsDict() || b.loadedSize != other.loadedSize {
		return false
	}
	mine, err := b.Bytes()
	if err != nil {
		return false
	}
	theirs, err := other.Bytes()
	if err != nil {
		return false
	}
	return bytes.Equal(mine, theirs)
}

func (b *Blob) convertTo(target *Kind) (Value, bool) {
	switch target {
	case KindBytes:
		data, err := b.Bytes()
		if err != nil {
			return nil, false
		}
		return NewBytes(data), true
	case KindDict:
		d, err := b.Dict()
		if err != nil {
			return nil, false
		}
		return d, true
	}
	return nil, false
}

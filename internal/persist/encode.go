// Package persist implements the self-describing binary wire format.
//
// Every value is written as its kind's 32-bit persist identifier followed by
// a payload. Fixed-width payloads are padded to 4 bytes; strings, byte
// strings, vectors and dictionaries carry a length prefix; blobs record their
// saved size, loaded size and flags so decompression can be deferred.
// All integers are little-endian.
package persist

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/conduit-lang/respack/internal/compress"
	"github.com/conduit-lang/respack/internal/value"
)

// ErrUnsupportedKind is returned when a value has no wire representation
var ErrUnsupportedKind = errors.New("kind has no wire representation")

var padding [4]byte

// Encoder writes values to a stream
type Encoder struct {
	w   io.Writer
	pos int64
	buf [8]byte
}

// NewEncoder creates an encoder writing to w
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Pos returns the number of bytes written so far
func (e *Encoder) Pos() int64 { return e.pos }

func (e *Encoder) write(p []byte) error {
	n, err := e.w.Write(p)
	e.pos += int64(n)
	return err
}

// WriteU32 writes a raw little-endian uint32
func (e *Encoder) WriteU32(v uint32) error {
	binary.LittleEndian.PutUint32(e.buf[:4], v)
	return e.write(e.buf[:4])
}

// WriteU64 writes a raw little-endian uint64
func (e *Encoder) WriteU64(v uint64) error {
	binary.LittleEndian.PutUint64(e.buf[:8], v)
	return e.write(e.buf[:8])
}

// WriteBytes writes a length-prefixed, padded byte string
func (e *Encoder) WriteBytes(p []byte) error {
	if int64(len(p)) > math.MaxUint32 {
		return fmt.Errorf("byte string of %d bytes exceeds wire limit", len(p))
	}
	if err := e.WriteU32(uint32(len(p))); err != nil {
		return err
	}
	if err := e.write(p); err != nil {
		return err
	}
	return e.pad(len(p))
}

// WriteString writes a length-prefixed, padded string
func (e *Encoder) WriteString(s string) error {
	return e.WriteBytes([]byte(s))
}

func (e *Encoder) pad(n int) error {
	if rem := n % 4; rem != 0 {
		return e.write(padding[:4-rem])
	}
	return nil
}

// Encode writes one tagged value
func (e *Encoder) Encode(v value.Value) error {
	if v == nil {
		return fmt.Errorf("encode nil value: %w", ErrUnsupportedKind)
	}
	if err := e.WriteU32(v.Kind().PersistID()); err != nil {
		return err
	}

	switch t := v.(type) {
	case value.Bool:
		var b uint32
		if t {
			b = 1
		}
		return e.WriteU32(b)
	case value.Int:
		return e.WriteU64(uint64(t))
	case value.Float:
		return e.WriteU32(math.Float32bits(float32(t)))
	case value.Double:
		return e.WriteU64(math.Float64bits(float64(t)))
	case value.Fixed:
		return e.WriteU32(uint32(t))
	case value.String:
		return e.WriteString(string(t))
	case value.Bytes:
		return e.WriteBytes(t)
	case value.Point:
		return e.writeFloats(t.X, t.Y)
	case value.Rect:
		return e.writeFloats(t.X, t.Y, t.W, t.H)
	case value.UUID:
		return e.write(t[:])
	case value.Ref:
		return e.WriteString(t.Name())
	case value.Vector:
		return e.encodeVector(t)
	case *value.Dict:
		return e.encodeDict(t)
	case *value.Blob:
		return e.encodeBlob(t)
	}
	return fmt.Errorf("encode %s: %w", v.Kind().Name(), ErrUnsupportedKind)
}

func (e *Encoder) writeFloats(fs ...float64) error {
	for _, f := range fs {
		if err := e.WriteU64(math.Float64bits(f)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeVector(v value.Vector) error {
	count := 0
	for _, item := range v {
		if item != nil {
			count++
		}
	}
	if err := e.WriteU32(uint32(count)); err != nil {
		return err
	}
	for i, item := range v {
		if item == nil {
			continue
		}
		if err := e.Encode(item); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}

// encodeDict writes keys in sorted order so equal dictionaries produce equal bytes
func (e *Encoder) encodeDict(d *value.Dict) error {
	keys := d.Keys()
	if err := e.WriteU32(uint32(len(keys))); err != nil {
		return err
	}
	for _, k := range keys {
		child, _ := d.Lookup(k)
		if err := e.WriteString(k); err != nil {
			return err
		}
		if err := e.Encode(child); err != nil {
			return fmt.Errorf("/%s: %w", k, err)
		}
	}
	return nil
}

func (e *Encoder) encodeBlob(b *value.Blob) error {
	saved, err := b.SavedBytes()
	if err != nil {
		return err
	}
	if err := e.WriteU32(uint32(len(saved))); err != nil {
		return err
	}
	if err := e.WriteU32(uint32(b.LoadedSize())); err != nil {
		return err
	}
	if err := e.WriteU32(uint32(b.Flags())); err != nil {
		return err
	}
	if err := e.write(saved); err != nil {
		return err
	}
	return e.pad(len(saved))
}

// Marshal encodes one value to bytes
func Marshal(v value.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeDictBlob encodes d into a dictionary blob, compressing when requested.
func EncodeDictBlob(d *value.Dict, codec compress.Codec, compressed bool) (*value.Blob, error) {
	data, err := Marshal(d)
	if err != nil {
		return nil, err
	}
	b, err := value.NewBlob(data, codec, compressed)
	if err != nil {
		return nil, err
	}
	return b.WithDictDecoder(DictDecoder(codec)), nil
}

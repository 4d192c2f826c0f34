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

var (
	// ErrUnknownKind means the stream names a kind this build does not know.
	// Callers treat it as a stale cache and rebuild from source.
	ErrUnknownKind = errors.New("unknown persist identifier")
	// ErrTruncated means the stream ended inside a value
	ErrTruncated = errors.New("truncated stream")
)

// maxLength bounds length prefixes so corrupt input fails instead of allocating
const maxLength = 1 << 30

// FormatError reports a malformed stream and where decoding stopped
type FormatError struct {
	Offset int64
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("persist: offset %d: %v", e.Offset, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Decoder reads values from a stream
type Decoder struct {
	r     io.Reader
	pos   int64
	buf   [8]byte
	reg   *value.Registry
	codec compress.Codec

	at   io.ReaderAt
	base int64
}

// Option configures a Decoder
type Option func(*Decoder)

// WithCodec sets the codec attached to decoded blobs
func WithCodec(c compress.Codec) Option {
	return func(d *Decoder) { d.codec = c }
}

// WithRegistry sets the kind registry used to resolve identifiers
func WithRegistry(r *value.Registry) Option {
	return func(d *Decoder) { d.reg = r }
}

// WithReaderAt lets the decoder defer blob contents: blobs reference at,
// where the decoder's stream starts at offset base, instead of being read.
func WithReaderAt(at io.ReaderAt, base int64) Option {
	return func(d *Decoder) {
		d.at = at
		d.base = base
	}
}

// NewDecoder creates a decoder reading from r
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{r: r, reg: value.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Pos returns the number of bytes consumed so far
func (d *Decoder) Pos() int64 { return d.pos }

func (d *Decoder) fail(err error) error {
	return &FormatError{Offset: d.pos, Err: err}
}

func (d *Decoder) read(p []byte) error {
	n, err := io.ReadFull(d.r, p)
	d.pos += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return d.fail(ErrTruncated)
		}
		return d.fail(err)
	}
	return nil
}

func (d *Decoder) skip(n int64) error {
	if s, ok := d.r.(io.Seeker); ok {
		if _, err := s.Seek(n, io.SeekCurrent); err != nil {
			return d.fail(err)
		}
		d.pos += n
		return nil
	}
	copied, err := io.CopyN(io.Discard, d.r, n)
	d.pos += copied
	if err != nil {
		return d.fail(ErrTruncated)
	}
	return nil
}

// ReadU32 reads a raw little-endian uint32
func (d *Decoder) ReadU32() (uint32, error) {
	if err := d.read(d.buf[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(d.buf[:4]), nil
}

// ReadU64 reads a raw little-endian uint64
func (d *Decoder) ReadU64() (uint64, error) {
	if err := d.read(d.buf[:8]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(d.buf[:8]), nil
}

// ReadBytes reads a length-prefixed, padded byte string
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	if n > maxLength {
		return nil, d.fail(fmt.Errorf("length %d out of range", n))
	}
	p := make([]byte, n)
	if err := d.read(p); err != nil {
		return nil, err
	}
	return p, d.unpad(int64(n))
}

// ReadString reads a length-prefixed, padded string
func (d *Decoder) ReadString() (string, error) {
	p, err := d.ReadBytes()
	return string(p), err
}

func (d *Decoder) unpad(n int64) error {
	if rem := n % 4; rem != 0 {
		return d.read(d.buf[:4-rem])
	}
	return nil
}

// Decode reads one tagged value
func (d *Decoder) Decode() (value.Value, error) {
	start := d.pos
	id, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	kind, ok := d.reg.ByPersistID(id)
	if !ok {
		return nil, &FormatError{Offset: start, Err: fmt.Errorf("%w %#08x", ErrUnknownKind, id)}
	}

	switch kind {
	case value.KindBool:
		n, err := d.ReadU32()
		return value.NewBool(n != 0), err
	case value.KindInt:
		n, err := d.ReadU64()
		return value.NewInt(int64(n)), err
	case value.KindFloat:
		n, err := d.ReadU32()
		return value.NewFloat(math.Float32frombits(n)), err
	case value.KindDouble:
		n, err := d.ReadU64()
		return value.NewDouble(math.Float64frombits(n)), err
	case value.KindFixed:
		n, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		return value.Fixed(int32(n)), nil
	case value.KindString:
		s, err := d.ReadString()
		return value.NewString(s), err
	case value.KindBytes:
		p, err := d.ReadBytes()
		return value.NewBytes(p), err
	case value.KindPoint:
		fs, err := d.readFloats(2)
		if err != nil {
			return nil, err
		}
		return value.Point{X: fs[0], Y: fs[1]}, nil
	case value.KindRect:
		fs, err := d.readFloats(4)
		if err != nil {
			return nil, err
		}
		return value.Rect{X: fs[0], Y: fs[1], W: fs[2], H: fs[3]}, nil
	case value.KindUUID:
		var u value.UUID
		if err := d.read(u[:]); err != nil {
			return nil, err
		}
		return u, nil
	case value.KindRef:
		name, err := d.ReadString()
		return value.NewRef(name, nil), err
	case value.KindVector:
		return d.decodeVector()
	case value.KindDict:
		return d.DecodeDict()
	case value.KindBlob:
		return d.decodeBlob()
	}
	return nil, &FormatError{Offset: start, Err: fmt.Errorf("decode %s: %w", kind.Name(), ErrUnsupportedKind)}
}

func (d *Decoder) readFloats(n int) ([]float64, error) {
	fs := make([]float64, n)
	for i := range fs {
		bits, err := d.ReadU64()
		if err != nil {
			return nil, err
		}
		fs[i] = math.Float64frombits(bits)
	}
	return fs, nil
}

func (d *Decoder) decodeVector() (value.Value, error) {
	n, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	if n > maxLength {
		return nil, d.fail(fmt.Errorf("vector length %d out of range", n))
	}
	items := make([]value.Value, 0, min(n, 1024))
	for i := uint32(0); i < n; i++ {
		item, err := d.Decode()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return value.NewVector(items...), nil
}

// DecodeDict reads a dictionary payload (without the leading identifier)
func (d *Decoder) DecodeDict() (*value.Dict, error) {
	n, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	if n > maxLength {
		return nil, d.fail(fmt.Errorf("dictionary size %d out of range", n))
	}
	dict := value.NewDict()
	for i := uint32(0); i < n; i++ {
		key, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		child, err := d.Decode()
		if err != nil {
			return nil, err
		}
		dict.Put(key, child)
	}
	return dict, nil
}

func (d *Decoder) decodeBlob() (value.Value, error) {
	saved, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	loaded, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	rawFlags, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	flags := value.Flags(rawFlags)

	var b *value.Blob
	if d.at != nil {
		if size, ok := readerSize(d.at); ok && d.base+d.pos+int64(saved) > size {
			return nil, d.fail(ErrTruncated)
		}
		b = value.NewDeferredBlob(d.at, d.base+d.pos, int64(saved), int64(loaded), flags, d.codec)
		if err := d.skip(int64(saved)); err != nil {
			return nil, err
		}
	} else {
		if saved > maxLength {
			return nil, d.fail(fmt.Errorf("blob size %d out of range", saved))
		}
		p := make([]byte, saved)
		if err := d.read(p); err != nil {
			return nil, err
		}
		b = value.NewSavedBlob(p, int64(loaded), flags, d.codec)
	}
	if b.IsDict() {
		b.SetDictDecoder(DictDecoder(d.codec))
	}
	return b, d.unpad(int64(saved))
}

// Unmarshal decodes one value from bytes
func Unmarshal(data []byte, opts ...Option) (value.Value, error) {
	return NewDecoder(bytes.NewReader(data), opts...).Decode()
}

// DictDecoder returns a blob decoder producing dictionaries. Blobs nested in
// the dictionary stay deferred and reference data.
func DictDecoder(codec compress.Codec) value.DictDecoder {
	return func(data []byte) (*value.Dict, error) {
		v, err := Unmarshal(data, WithCodec(codec), WithReaderAt(bytes.NewReader(data), 0))
		if err != nil {
			return nil, err
		}
		d, ok := v.(*value.Dict)
		if !ok {
			return nil, fmt.Errorf("blob holds %s, not a dictionary", v.Kind().Name())
		}
		return d, nil
	}
}

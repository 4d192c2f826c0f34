// Package compress provides the compression service used for saved blobs.
package compress

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Codec compresses and decompresses byte streams.
//
// Implementations must be safe for concurrent use; blobs materialise from
// many goroutines at once.
type Codec interface {
	Name() string
	// Compress reads n bytes from src and writes the compressed form to dst.
	Compress(dst io.Writer, src io.Reader, n int64) error
	// Decompress reads n compressed bytes from src and writes the result to dst.
	Decompress(dst io.Writer, src io.Reader, n int64) error
}

// Identity stores bytes unchanged
type Identity struct{}

func (Identity) Name() string { return "identity" }

func (Identity) Compress(dst io.Writer, src io.Reader, n int64) error {
	_, err := io.CopyN(dst, src, n)
	return err
}

func (Identity) Decompress(dst io.Writer, src io.Reader, n int64) error {
	_, err := io.CopyN(dst, src, n)
	return err
}

// Zstd compresses with zstandard.
type Zstd struct {
	level zstd.EncoderLevel

	once    sync.Once
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	initErr error
}

// NewZstd creates a zstd codec. Level is 1 (fastest) to 4 (best); other
// values select the default level.
func NewZstd(level int) *Zstd {
	lvl := zstd.SpeedDefault
	if level >= 1 && level <= 4 {
		lvl = zstd.EncoderLevelFromZstd(levelToZstd(level))
	}
	return &Zstd{level: lvl}
}

func levelToZstd(level int) int {
	switch level {
	case 1:
		return 1
	case 2:
		return 3
	case 3:
		return 7
	default:
		return 11
	}
}

func (z *Zstd) Name() string { return "zstd" }

func (z *Zstd) init() error {
	z.once.Do(func() {
		z.encoder, z.initErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(z.level))
		if z.initErr != nil {
			return
		}
		z.decoder, z.initErr = zstd.NewReader(nil)
	})
	return z.initErr
}

func (z *Zstd) Compress(dst io.Writer, src io.Reader, n int64) error {
	if err := z.init(); err != nil {
		return fmt.Errorf("zstd init: %w", err)
	}
	raw, err := readN(src, n)
	if err != nil {
		return err
	}
	_, err = dst.Write(z.encoder.EncodeAll(raw, nil))
	return err
}

func (z *Zstd) Decompress(dst io.Writer, src io.Reader, n int64) error {
	if err := z.init(); err != nil {
		return fmt.Errorf("zstd init: %w", err)
	}
	raw, err := readN(src, n)
	if err != nil {
		return err
	}
	out, err := z.decoder.DecodeAll(raw, nil)
	if err != nil {
		return fmt.Errorf("zstd decode: %w", err)
	}
	_, err = dst.Write(out)
	return err
}

func readN(src io.Reader, n int64) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(src, buf); err != nil {
		return nil, fmt.Errorf("read %d bytes: %w", n, err)
	}
	return buf, nil
}

// Bytes compresses data in memory
func Bytes(c Codec, data []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := c.Compress(&out, bytes.NewReader(data), int64(len(data))); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Unbytes decompresses data in memory. sizeHint preallocates the output.
func Unbytes(c Codec, data []byte, sizeHint int) ([]byte, error) {
	out := bytes.NewBuffer(make([]byte, 0, sizeHint))
	if err := c.Decompress(out, bytes.NewReader(data), int64(len(data))); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// ByName returns the codec for a configuration name
func ByName(name string, level int) (Codec, error) {
	switch name {
	case "", "zstd":
		return NewZstd(level), nil
	case "identity", "none":
		return Identity{}, nil
	}
	return nil, fmt.Errorf("unknown compression %q", name)
}

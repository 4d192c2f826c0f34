package persist

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/conduit-lang/respack/internal/compress"
	"github.com/conduit-lang/respack/internal/value"
)

// PackCookie opens every pack file
var PackCookie = value.PersistID("respack.pack")

// ErrBadCookie means the stream is not a pack
var ErrBadCookie = errors.New("not a resource pack")

// PackEntry is one header record
type PackEntry struct {
	Name       string
	Offset     int64
	SavedSize  int64
	LoadedSize int64
	Flags      value.Flags
}

// Pack is a decoded pack: per-resource saved blobs plus metadata
type Pack struct {
	Entries []PackEntry
	Blobs   map[string]*value.Blob
	Meta    *value.Dict
}

// NamedBlob pairs a resource name with its saved bytes
type NamedBlob struct {
	Name string
	Blob *value.Blob
}

// WritePack writes the header, metadata and data sections.
func WritePack(w io.Writer, blobs []NamedBlob, meta *value.Dict) error {
	if meta == nil {
		meta = value.NewDict()
	}
	saved := make([][]byte, len(blobs))
	var offset int64
	entries := make([]PackEntry, len(blobs))
	for i, nb := range blobs {
		data, err := nb.Blob.SavedBytes()
		if err != nil {
			return fmt.Errorf("resource %q: %w", nb.Name, err)
		}
		saved[i] = data
		entries[i] = PackEntry{
			Name:       nb.Name,
			Offset:     offset,
			SavedSize:  int64(len(data)),
			LoadedSize: nb.Blob.LoadedSize(),
			Flags:      nb.Blob.Flags(),
		}
		offset += int64(len(data))
	}

	e := NewEncoder(w)
	if err := e.WriteU32(PackCookie); err != nil {
		return err
	}
	if err := e.WriteU32(uint32(len(entries))); err != nil {
		return err
	}
	for _, entry := range entries {
		if err := e.WriteString(entry.Name); err != nil {
			return err
		}
		if err := e.WriteU64(uint64(entry.Offset)); err != nil {
			return err
		}
		if err := e.WriteU32(uint32(entry.SavedSize)); err != nil {
			return err
		}
		if err := e.WriteU32(uint32(entry.LoadedSize)); err != nil {
			return err
		}
		if err := e.WriteU32(uint32(entry.Flags)); err != nil {
			return err
		}
	}
	if err := e.Encode(meta); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	if err := e.WriteU64(uint64(offset)); err != nil {
		return err
	}
	for _, data := range saved {
		if err := e.write(data); err != nil {
			return err
		}
	}
	return nil
}

// ReadPack decodes a pack. When at is non-nil the data section is not read:
// blobs reference at directly, where the stream r starts at offset base.
func ReadPack(r io.Reader, codec compress.Codec, at io.ReaderAt, base int64) (*Pack, error) {
	d := NewDecoder(r, WithCodec(codec))

	cookie, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	if cookie != PackCookie {
		return nil, d.fail(ErrBadCookie)
	}
	count, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	if count > maxLength {
		return nil, d.fail(fmt.Errorf("entry count %d out of range", count))
	}

	entries := make([]PackEntry, 0, min(count, 4096))
	for i := uint32(0); i < count; i++ {
		var entry PackEntry
		if entry.Name, err = d.ReadString(); err != nil {
			return nil, err
		}
		off, err := d.ReadU64()
		if err != nil {
			return nil, err
		}
		saved, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		loaded, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		flags, err := d.ReadU32()
		if err != nil {
			return nil, err
		}
		entry.Offset = int64(off)
		entry.SavedSize = int64(saved)
		entry.LoadedSize = int64(loaded)
		entry.Flags = value.Flags(flags)
		entries = append(entries, entry)
	}

	metaValue, err := d.Decode()
	if err != nil {
		return nil, err
	}
	meta, ok := metaValue.(*value.Dict)
	if !ok {
		return nil, d.fail(fmt.Errorf("metadata is %s, not a dictionary", metaValue.Kind().Name()))
	}

	dataLen, err := d.ReadU64()
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.Offset < 0 || entry.SavedSize > int64(dataLen) || entry.Offset > int64(dataLen)-entry.SavedSize {
			return nil, d.fail(fmt.Errorf("resource %q: %w", entry.Name, ErrTruncated))
		}
	}
	dataStart := d.pos

	var data []byte
	if at == nil {
		if dataLen > maxLength*4 {
			return nil, d.fail(fmt.Errorf("data section of %d bytes out of range", dataLen))
		}
		data = make([]byte, dataLen)
		if err := d.read(data); err != nil {
			return nil, err
		}
	} else if size, ok := readerSize(at); ok && base+dataStart+int64(dataLen) > size {
		return nil, d.fail(ErrTruncated)
	}

	decodeDict := DictDecoder(codec)
	pack := &Pack{Entries: entries, Blobs: make(map[string]*value.Blob, len(entries)), Meta: meta}
	for _, entry := range entries {
		var b *value.Blob
		if at != nil {
			b = value.NewDeferredBlob(at, base+dataStart+entry.Offset, entry.SavedSize, entry.LoadedSize, entry.Flags, codec)
		} else {
			b = value.NewSavedBlob(data[entry.Offset:entry.Offset+entry.SavedSize], entry.LoadedSize, entry.Flags, codec)
		}
		if b.IsDict() {
			b.SetDictDecoder(decodeDict)
		}
		pack.Blobs[entry.Name] = b
	}
	return pack, nil
}

// ReadPackBytes decodes a pack held in memory without copying its data section
func ReadPackBytes(data []byte, codec compress.Codec) (*Pack, error) {
	return ReadPack(bytes.NewReader(data), codec, bytes.NewReader(data), 0)
}

func readerSize(at io.ReaderAt) (int64, bool) {
	type sizer interface{ Size() int64 }
	type lener interface{ Len() int }
	switch s := at.(type) {
	case sizer:
		return s.Size(), true
	case lener:
		return int64(s.Len()), true
	}
	return 0, false
}

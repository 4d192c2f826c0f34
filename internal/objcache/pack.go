package objcache

import (
	"fmt"
	"io"
	"math"

	"github.com/conduit-lang/respack/internal/compiler"
	"github.com/conduit-lang/respack/internal/fsys"
	"github.com/conduit-lang/respack/internal/persist"
	"github.com/conduit-lang/respack/internal/value"
)

// Save writes every entry and the metadata as one pack
func (c *Cache) Save(w io.Writer) error {
	c.mu.Lock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	blobs := make([]persist.NamedBlob, 0, len(names))
	for _, name := range sortedCopy(names) {
		blobs = append(blobs, persist.NamedBlob{Name: name, Blob: c.entries[name].blob})
	}
	meta := c.meta
	c.mu.Unlock()

	if meta == nil {
		meta = compiler.NewMetadata()
	}
	if err := persist.WritePack(w, blobs, meta.ToDict()); err != nil {
		return fmt.Errorf("save pack: %w", err)
	}
	return nil
}

// Load replaces the contents with a pack read fully from r
func (c *Cache) Load(r io.Reader) (ReplaceStats, error) {
	pack, err := persist.ReadPack(r, c.codec, nil, 0)
	if err != nil {
		return ReplaceStats{}, fmt.Errorf("load pack: %w", err)
	}
	return c.installPack(pack)
}

// LoadAt replaces the contents with the pack at the start of at. Entry bytes
// stay in at until a resource is requested, so at must outlive the entries.
func (c *Cache) LoadAt(at io.ReaderAt) (ReplaceStats, error) {
	pack, err := persist.ReadPack(io.NewSectionReader(at, 0, math.MaxInt64), c.codec, at, 0)
	if err != nil {
		return ReplaceStats{}, fmt.Errorf("load pack: %w", err)
	}
	return c.installPack(pack)
}

func (c *Cache) installPack(pack *persist.Pack) (ReplaceStats, error) {
	meta, err := compiler.MetadataFromDict(pack.Meta)
	if err != nil {
		return ReplaceStats{}, fmt.Errorf("load pack: %w", err)
	}
	entries := make(map[string]*entry, len(pack.Blobs))
	for name, blob := range pack.Blobs {
		entries[name] = &entry{name: name, blob: blob}
	}
	return c.install(entries, meta), nil
}

// IsFresh compares the recorded input modification times with fs. The
// reason names the first input that differs.
func (c *Cache) IsFresh(fs *fsys.FS) (bool, string) {
	meta := c.Metadata()
	if meta == nil || len(meta.Files) == 0 {
		return false, "no recorded inputs"
	}
	for _, file := range meta.FileNames() {
		mtime, err := fs.LastWriteTime(file)
		if err != nil {
			return false, fmt.Sprintf("%s is missing", file)
		}
		if mtime.UnixNano() != meta.Files[file] {
			return false, fmt.Sprintf("%s changed", file)
		}
	}
	return true, ""
}

// encodeEntry persists one top-level value
func (c *Cache) encodeEntry(name string, v value.Value) (*entry, error) {
	data, err := persist.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("resource %q: %w", name, err)
	}
	blob, err := value.NewBlob(data, c.codec, c.compress)
	if err != nil {
		return nil, fmt.Errorf("resource %q: %w", name, err)
	}
	return &entry{name: name, blob: blob, hash: c.hasher.hashContent(data)}, nil
}

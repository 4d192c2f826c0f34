package compiler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/conduit-lang/respack/internal/value"
)

// Metadata describes the inputs and side outputs of one compilation. It is
// stored in the pack so a cache can be checked for freshness without
// re-reading sources.
type Metadata struct {
	// Files maps every input file to its modification time in unix nanos
	Files map[string]int64
	// ResourceFiles maps a top-level resource to the files its subtree read
	ResourceFiles map[string][]string
	// AuxFiles lists auxiliary outputs written next to the pack
	AuxFiles []string
	// Symbols maps generated identifiers to resource names
	Symbols map[string]string
	// Sources lists the root source files in merge order
	Sources []string
	BuiltAt time.Time
}

// NewMetadata creates empty metadata
func NewMetadata() *Metadata {
	return &Metadata{
		Files:         make(map[string]int64),
		ResourceFiles: make(map[string][]string),
		Symbols:       make(map[string]string),
	}
}

// FileNames returns the input files in sorted order
func (m *Metadata) FileNames() []string {
	names := make([]string, 0, len(m.Files))
	for f := range m.Files {
		names = append(names, f)
	}
	sort.Strings(names)
	return names
}

// ToDict encodes the metadata as one dictionary
func (m *Metadata) ToDict() *value.Dict {
	files := value.NewDict()
	for f, t := range m.Files {
		files.Put(f, value.NewInt(t))
	}
	perResource := value.NewDict()
	for name, list := range m.ResourceFiles {
		perResource.Put(name, stringVector(list))
	}
	symbols := value.NewDict()
	for sym, name := range m.Symbols {
		symbols.Put(sym, value.NewString(name))
	}

	d := value.NewDict()
	d.Put("files", files)
	d.Put("resource_files", perResource)
	d.Put("aux_files", stringVector(m.AuxFiles))
	d.Put("symbols", symbols)
	d.Put("sources", stringVector(m.Sources))
	d.Put("built_at", value.NewInt(m.BuiltAt.UnixNano()))
	return d
}

// MetadataFromDict decodes ToDict output. Missing sections are left empty.
func MetadataFromDict(d *value.Dict) (*Metadata, error) {
	m := NewMetadata()
	if d == nil {
		return m, nil
	}

	if files, ok := lookupDict(d, "files"); ok {
		for _, f := range files.Keys() {
			v, _ := files.Lookup(f)
			t, ok := value.ConvertTo[value.Int](v)
			if !ok {
				return nil, fmt.Errorf("metadata: file %q has no timestamp", f)
			}
			m.Files[f] = int64(t)
		}
	}
	if per, ok := lookupDict(d, "resource_files"); ok {
		for _, name := range per.Keys() {
			v, _ := per.Lookup(name)
			m.ResourceFiles[name] = stringsOf(v)
		}
	}
	if syms, ok := lookupDict(d, "symbols"); ok {
		for _, sym := range syms.Keys() {
			v, _ := syms.Lookup(sym)
			m.Symbols[sym] = value.ConvertOr(v, value.String("")).String()
		}
	}
	if v, ok := d.Lookup("aux_files"); ok {
		m.AuxFiles = stringsOf(v)
	}
	if v, ok := d.Lookup("sources"); ok {
		m.Sources = stringsOf(v)
	}
	if v, ok := d.Lookup("built_at"); ok {
		if t, ok := value.ConvertTo[value.Int](v); ok {
			m.BuiltAt = time.Unix(0, int64(t))
		}
	}
	return m, nil
}

func lookupDict(d *value.Dict, key string) (*value.Dict, bool) {
	v, ok := d.Lookup(key)
	if !ok {
		return nil, false
	}
	return value.AsDict(v)
}

func stringVector(list []string) value.Value {
	items := make([]value.Value, len(list))
	for i, s := range list {
		items[i] = value.NewString(s)
	}
	return value.NewVector(items...)
}

func stringsOf(v value.Value) []string {
	vec, ok := v.(value.Vector)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(vec))
	for _, item := range vec {
		if s, ok := value.ConvertTo[value.String](item); ok {
			out = append(out, string(s))
		}
	}
	return out
}

// recorder accumulates metadata from concurrent pass tasks
type recorder struct {
	mu            sync.Mutex
	files         map[string]int64
	resourceFiles map[string]map[string]bool
	aux           map[string][]byte
	symbols       map[string]string
}

func newRecorder() *recorder {
	return &recorder{
		files:         make(map[string]int64),
		resourceFiles: make(map[string]map[string]bool),
		aux:           make(map[string][]byte),
		symbols:       make(map[string]string),
	}
}

func (r *recorder) addFile(owner, path string, mtime int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path] = mtime
	if owner != "" {
		r.ownLocked(owner, path)
	}
}

func (r *recorder) ownLocked(owner, path string) {
	set, ok := r.resourceFiles[owner]
	if !ok {
		set = make(map[string]bool)
		r.resourceFiles[owner] = set
	}
	set[path] = true
}

// claim attributes every recorded input path found in v to owner. Values
// spliced from a root scope carry files that were recorded without one.
func (r *recorder) claim(owner string, v value.Value) {
	if owner == "" || v == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claimLocked(owner, v)
}

func (r *recorder) claimLocked(owner string, v value.Value) {
	switch t := v.(type) {
	case value.String:
		if _, ok := r.files[string(t)]; ok {
			r.ownLocked(owner, string(t))
		}
	case *value.Dict:
		for _, k := range t.Keys() {
			child, _ := t.Lookup(k)
			r.claimLocked(owner, child)
		}
	case value.Vector:
		for _, child := range t {
			r.claimLocked(owner, child)
		}
	}
}

// inherit gives a sibling the input files of its owner
func (r *recorder) inherit(sibling, owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.resourceFiles[owner]
	if !ok {
		return
	}
	dst := make(map[string]bool, len(set))
	for f := range set {
		dst[f] = true
	}
	r.resourceFiles[sibling] = dst
}

func (r *recorder) addAux(name string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aux[name] = data
}

func (r *recorder) setSymbol(resource, symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symbols[resource] = symbol
}

// metadata builds the final metadata; names are the top-level resources
func (r *recorder) metadata(names, sources []string, builtAt time.Time) *Metadata {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := NewMetadata()
	for f, t := range r.files {
		m.Files[f] = t
	}
	for name, set := range r.resourceFiles {
		list := make([]string, 0, len(set))
		for f := range set {
			list = append(list, f)
		}
		sort.Strings(list)
		m.ResourceFiles[name] = list
	}
	for name := range r.aux {
		m.AuxFiles = append(m.AuxFiles, name)
	}
	sort.Strings(m.AuxFiles)
	m.Symbols = BuildSymbols(names, r.symbols)
	m.Sources = append([]string(nil), sources...)
	m.BuiltAt = builtAt
	return m
}

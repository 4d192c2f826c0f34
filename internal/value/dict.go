package value

import (
	"sort"
	"strconv"
	"strings"
	"unique"
)

// NamedChildren is implemented by values exposing children by name
type NamedChildren interface {
	Child(name string) (Value, bool)
	ChildNames() []string
}

// IndexedChildren is implemented by values exposing children by position
type IndexedChildren interface {
	Index(i int) (Value, bool)
	Len() int
}

// Dict maps interned string keys to values.
//
// A Dict is mutable only while it is being built. Once it has been stored in
// another value or handed to another goroutine it must be treated as
// immutable; use Clone to derive a modified copy.
type Dict struct {
	entries map[string]Value
}

// NewDict creates an empty dictionary
func NewDict() *Dict {
	return &Dict{entries: make(map[string]Value)}
}

// DictOf builds a dictionary from a map. Nil values are skipped.
func DictOf(m map[string]Value) *Dict {
	d := &Dict{entries: make(map[string]Value, len(m))}
	for k, v := range m {
		d.Put(k, v)
	}
	return d
}

func (d *Dict) Kind() *Kind { return KindDict }

// Len returns the number of keys
func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// Keys returns the keys in sorted order
func (d *Dict) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, 0, len(d.entries))
	for k := range d.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the value stored directly under key
func (d *Dict) Lookup(key string) (Value, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.entries[key]
	return v, ok
}

// Put stores v under key; the last write wins. A nil value deletes the key.
func (d *Dict) Put(key string, v Value) {
	if v == nil {
		delete(d.entries, key)
		return
	}
	d.entries[unique.Make(key).Value()] = v
}

// Delete removes key
func (d *Dict) Delete(key string) {
	delete(d.entries, key)
}

// Clone returns a shallow copy; child values are shared.
func (d *Dict) Clone() *Dict {
	c := &Dict{entries: make(map[string]Value, d.Len())}
	if d != nil {
		for k, v := range d.entries {
			c.entries[k] = v
		}
	}
	return c
}

// Child implements NamedChildren
func (d *Dict) Child(name string) (Value, bool) { return d.Lookup(name) }

// ChildNames implements NamedChildren
func (d *Dict) ChildNames() []string { return d.Keys() }

// Set copies every key of other into d. With mergeChildDicts, keys whose
// existing and incoming values are both dictionaries (or blobs decoding to
// dictionaries) are merged recursively instead of overwritten.
func (d *Dict) Set(other *Dict, mergeChildDicts bool) {
	for _, k := range other.Keys() {
		incoming := other.entries[k]
		if mergeChildDicts {
			if existing, ok := d.entries[k]; ok {
				ed, eok := AsDict(existing)
				nd, nok := AsDict(incoming)
				if eok && nok {
					merged := ed.Clone()
					merged.Set(nd, true)
					d.entries[k] = merged
					continue
				}
			}
		}
		d.Put(k, incoming)
	}
}

// Get resolves a path. Paths starting with "/" are walked segment by segment:
// "/name" selects a named child, "[i]" an indexed child. Any other path is a
// direct key lookup. A missing child yields false, never an error.
func (d *Dict) Get(path string) (Value, bool) {
	if !strings.HasPrefix(path, "/") {
		return d.Lookup(path)
	}
	rest := path[1:]
	first := rest
	if i := strings.IndexAny(rest, "/["); i >= 0 {
		first, rest = rest[:i], rest[i:]
	} else {
		rest = ""
	}
	cur, ok := d.Lookup(first)
	if !ok {
		return nil, false
	}
	return walkPath(cur, rest)
}

// Lookup resolves a path relative to any value; see Dict.Get. The empty path
// returns v itself.
func Lookup(v Value, path string) (Value, bool) {
	if d, ok := v.(*Dict); ok && path != "" {
		return d.Get(path)
	}
	return walkPath(v, path)
}

func walkPath(cur Value, rest string) (Value, bool) {
	for rest != "" {
		switch rest[0] {
		case '/':
			rest = rest[1:]
			name := rest
			if i := strings.IndexAny(rest, "/["); i >= 0 {
				name, rest = rest[:i], rest[i:]
			} else {
				rest = ""
			}
			nc, ok := cur.(NamedChildren)
			if !ok {
				return nil, false
			}
			if cur, ok = nc.Child(name); !ok {
				return nil, false
			}
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, false
			}
			idx, err := strconv.Atoi(rest[1:end])
			if err != nil {
				return nil, false
			}
			rest = rest[end+1:]
			ic, ok := cur.(IndexedChildren)
			if !ok {
				return nil, false
			}
			if cur, ok = ic.Index(idx); !ok {
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return cur, true
}

// Equal compares key sets and recursively compares values
func (d *Dict) Equal(o Value) bool {
	other, ok := o.(*Dict)
	if !ok || other.Len() != d.Len() {
		return false
	}
	if d == nil {
		return true
	}
	for k, v := range d.entries {
		ov, ok := other.Lookup(k)
		if !ok || !Equal(v, ov) {
			return false
		}
	}
	return true
}

func (d *Dict) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range d.Keys() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Quote(k))
		b.WriteString(": ")
		writeQuoted(&b, d.entries[k])
	}
	b.WriteByte('}')
	return b.String()
}

// AsDict returns v as a dictionary, decoding dictionary blobs.
func AsDict(v Value) (*Dict, bool) {
	if d, ok := v.(*Dict); ok {
		return d, true
	}
	if b, ok := v.(*Blob); ok && b.IsDict() {
		d, err := b.Dict()
		return d, err == nil
	}
	return nil, false
}

func writeQuoted(b *strings.Builder, v Value) {
	if s, ok := v.(String); ok {
		b.WriteString(strconv.Quote(string(s)))
		return
	}
	if v == nil {
		b.WriteString("null")
		return
	}
	b.WriteString(v.String())
}

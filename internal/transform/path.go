package transform

import (
	"strconv"
	"strings"
)

// Path is a logical position inside a value tree. Paths are persistent: a
// child shares its parent, so forked walks reuse the same prefix.
type Path struct {
	parent  *Path
	name    string
	index   int
	isIndex bool
	depth   int
}

// Root is the empty path
var Root *Path

// Child returns the path of a named child
func (p *Path) Child(name string) *Path {
	return &Path{parent: p, name: name, depth: p.Depth() + 1}
}

// Index returns the path of an indexed child
func (p *Path) Index(i int) *Path {
	return &Path{parent: p, index: i, isIndex: true, depth: p.Depth() + 1}
}

// Parent returns the enclosing path; the parent of Root is Root
func (p *Path) Parent() *Path {
	if p == nil {
		return nil
	}
	return p.parent
}

// Depth is the number of segments
func (p *Path) Depth() int {
	if p == nil {
		return 0
	}
	return p.depth
}

// Top returns the first segment, which names the top-level resource the path
// lies under. It is empty for Root or a path starting with an index.
func (p *Path) Top() string {
	if p == nil {
		return ""
	}
	cur := p
	for cur.parent != nil {
		cur = cur.parent
	}
	if cur.isIndex {
		return ""
	}
	return cur.name
}

// Last returns the final named segment, if the path ends with one
func (p *Path) Last() (string, bool) {
	if p == nil || p.isIndex {
		return "", false
	}
	return p.name, true
}

// String formats the path as /a/b[2]; Root formats as "/".
func (p *Path) String() string {
	if p == nil {
		return "/"
	}
	segs := make([]*Path, 0, p.depth)
	for cur := p; cur != nil; cur = cur.parent {
		segs = append(segs, cur)
	}
	var b strings.Builder
	for i := len(segs) - 1; i >= 0; i-- {
		s := segs[i]
		if s.isIndex {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(s.index))
			b.WriteByte(']')
			continue
		}
		b.WriteByte('/')
		b.WriteString(s.name)
	}
	return b.String()
}

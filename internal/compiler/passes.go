package compiler

import (
	"errors"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"

	cerrors "github.com/conduit-lang/respack/internal/compiler/errors"
	"github.com/conduit-lang/respack/internal/jsonsrc"
	"github.com/conduit-lang/respack/internal/transform"
	"github.com/conduit-lang/respack/internal/value"
)

// Source directives
const (
	PrefixFile = "file:"
	PrefixRes  = "res:"

	KeyType     = "res:type"
	KeyTemplate = "res:template"
	KeyImport   = "res:import"
	KeyValues   = "res:values"
	KeySymbol   = "res:symbol"
)

// Pass names in pipeline order
const (
	PassExpandFiles     = "expand-files"
	PassExpandValues    = "expand-values"
	PassStartLoad       = "start-load"
	PassExtractSiblings = "extract-siblings"
	PassFinishLoad      = "finish-load"
	PassSaveObjects     = "save-objects"
)

var errImportCycle = errors.New("import cycle")

// expandFiles rewrites file: strings, and res:import targets, into absolute
// paths relative to dir and records them as inputs.
type expandFiles struct {
	p   *pipeline
	dir string
}

func (e *expandFiles) Name() string   { return PassExpandFiles }
func (e *expandFiles) Parallel() bool { return true }

func (e *expandFiles) TransformValue(w *transform.Walk, v value.Value) value.Value {
	s, ok := v.(value.String)
	if !ok {
		return transform.Descend(w, v)
	}
	if rel, ok := strings.CutPrefix(string(s), PrefixFile); ok {
		return e.resolve(w, rel)
	}
	if underImport(w.Path()) {
		return e.resolve(w, string(s))
	}
	return v
}

func (e *expandFiles) resolve(w *transform.Walk, rel string) value.Value {
	abs := filepath.Clean(rel)
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(e.dir, rel)
	}
	if !e.p.c.fs.Exists(abs) {
		w.Report(cerrors.NewMissingFile("", abs))
		return value.NewString(abs)
	}
	if err := e.p.recordFile(ownerOf(w.Path()), abs); err != nil {
		w.Report(cerrors.NewMissingFile("", abs))
	}
	return value.NewString(abs)
}

// underImport reports whether path is a res:import value or one of its elements
func underImport(p *transform.Path) bool {
	if last, ok := p.Last(); ok {
		return last == KeyImport
	}
	last, ok := p.Parent().Last()
	return ok && last == KeyImport
}

// ownerOf returns the top-level resource a path belongs to; directive keys
// at the root belong to none.
func ownerOf(p *transform.Path) string {
	top := p.Top()
	if strings.HasPrefix(top, PrefixRes) {
		return ""
	}
	return top
}

// expandValues resolves res:values scopes, res:<name> lookups, templates,
// imports and ref: strings. stack holds the files being imported along the
// current walk.
type expandValues struct {
	p     *pipeline
	stack []string
}

func (e *expandValues) Name() string   { return PassExpandValues }
func (e *expandValues) Parallel() bool { return true }

func (e *expandValues) PrepareRoot(w *transform.Walk, root *value.Dict) *value.Dict {
	root = root.Clone()
	if vals, ok := root.Lookup(KeyValues); ok {
		root.Delete(KeyValues)
		e.pushValues(w, vals)
	}
	if imp, ok := root.Lookup(KeyImport); ok {
		root.Delete(KeyImport)
		for _, doc := range e.importAll(w, imp) {
			merged := doc.Clone()
			merged.Set(root, true)
			root = merged
		}
	}
	return root
}

func (e *expandValues) TransformValue(w *transform.Walk, v value.Value) value.Value {
	switch t := v.(type) {
	case value.String:
		s := string(t)
		if name, ok := strings.CutPrefix(s, value.RefPrefix); ok {
			return e.p.table.Reference(name).Ref()
		}
		if name, ok := strings.CutPrefix(s, PrefixRes); ok {
			if found, ok := w.Lookup(name); ok {
				e.p.rec.claim(ownerOf(w.Path()), found)
				return found
			}
			w.Report(cerrors.NewMissingValue("", name))
			return nil
		}
		return v
	case *value.Dict:
		return e.expandDict(w, t)
	}
	return transform.Descend(w, v)
}

func (e *expandValues) expandDict(w *transform.Walk, d *value.Dict) value.Value {
	_, hasValues := d.Lookup(KeyValues)
	_, hasImport := d.Lookup(KeyImport)
	_, hasTemplate := d.Lookup(KeyTemplate)
	if !hasValues && !hasImport && !hasTemplate {
		return transform.Descend(w, d)
	}

	d = d.Clone()
	if vals, ok := d.Lookup(KeyValues); ok {
		d.Delete(KeyValues)
		if e.pushValues(w, vals) {
			defer w.PopScope()
		}
	}
	imp, _ := d.Lookup(KeyImport)
	d.Delete(KeyImport)
	tmpl, _ := d.Lookup(KeyTemplate)
	d.Delete(KeyTemplate)

	own, _ := transform.Descend(w, d).(*value.Dict)

	var bases []*value.Dict
	if imp != nil {
		bases = append(bases, e.importAll(w, imp)...)
	}
	if tmpl != nil {
		if base, ok := e.template(w, tmpl); ok {
			bases = append(bases, base)
		}
	}
	owner := ownerOf(w.Path())
	for _, base := range bases {
		e.p.rec.claim(owner, base)
		merged := base.Clone()
		merged.Set(own, true)
		own = merged
	}
	return own
}

// pushValues transforms a res:values block and opens it as a scope
func (e *expandValues) pushValues(w *transform.Walk, vals value.Value) bool {
	w.Push(KeyValues)
	tv := e.TransformValue(w, vals)
	d, ok := value.AsDict(tv)
	if !ok {
		w.Report(cerrors.NewBadTemplate("", KeyValues, "must be a dictionary"))
	}
	w.Pop()
	if !ok {
		return false
	}
	w.PushScope(d)
	return true
}

func (e *expandValues) template(w *transform.Walk, ref value.Value) (*value.Dict, bool) {
	name, ok := value.ConvertTo[value.String](ref)
	if !ok {
		w.Report(cerrors.NewBadTemplate("", ref.String(), "is not a name"))
		return nil, false
	}
	found, ok := w.Lookup(string(name))
	if !ok {
		w.Report(cerrors.NewBadTemplate("", string(name), "is not defined").
			WithSuggestion("declare templates in an enclosing res:values block"))
		return nil, false
	}
	d, ok := value.AsDict(found)
	if !ok {
		w.Report(cerrors.NewBadTemplate("", string(name), "is not a dictionary"))
		return nil, false
	}
	return d, true
}

// importAll loads one path or a vector of paths, later entries winning
func (e *expandValues) importAll(w *transform.Walk, imp value.Value) []*value.Dict {
	var paths []string
	switch t := imp.(type) {
	case value.String:
		paths = []string{string(t)}
	case value.Vector:
		for _, item := range t {
			if s, ok := item.(value.String); ok {
				paths = append(paths, string(s))
			}
		}
	default:
		w.Report(cerrors.NewBadImport("", imp.String(), errors.New("expected a path or a list of paths")))
		return nil
	}

	docs := make([]*value.Dict, 0, len(paths))
	for i := len(paths) - 1; i >= 0; i-- {
		if doc := e.importFile(w, paths[i]); doc != nil {
			docs = append(docs, doc)
		}
	}
	return docs
}

func (e *expandValues) importFile(w *transform.Walk, path string) *value.Dict {
	if slices.Contains(e.stack, path) {
		w.Report(cerrors.NewBadImport("", path, errImportCycle))
		return nil
	}
	data, err := e.p.c.fs.ReadFile(path)
	if err != nil {
		w.Report(cerrors.NewBadImport("", path, err))
		return nil
	}
	doc, err := jsonsrc.ParseFile(path, data)
	if err != nil {
		w.Report(cerrors.NewBadImport("", path, err))
		return nil
	}

	files := &expandFiles{p: e.p, dir: filepath.Dir(path)}
	values := &expandValues{p: e.p, stack: append(slices.Clone(e.stack), path)}
	out := w.Apply(values, w.Apply(files, doc))
	d, _ := value.AsDict(out)
	return d
}

// startLoad turns every dictionary carrying res:type into a typed object and
// registers top-level values by name.
type startLoad struct {
	p *pipeline
}

func (s *startLoad) Name() string   { return PassStartLoad }
func (s *startLoad) Parallel() bool { return true }

func (s *startLoad) TransformValue(w *transform.Walk, v value.Value) value.Value {
	top := w.AtTop()
	name, _ := w.Path().Last()

	out := s.build(w, v, top, name)
	if top {
		if _, err := s.p.table.Register(name, out); err != nil {
			s.p.c.logger.Warn("resource registered twice", zap.String("resource", name))
		}
	}
	return out
}

func (s *startLoad) build(w *transform.Walk, v value.Value, top bool, name string) value.Value {
	d, ok := v.(*value.Dict)
	if !ok {
		return transform.Descend(w, v)
	}
	if sym, ok := d.Lookup(KeySymbol); ok && top {
		s.p.rec.setSymbol(name, sym.String())
		d = d.Clone()
		d.Delete(KeySymbol)
	}

	out, _ := transform.Descend(w, d).(*value.Dict)
	tv, ok := out.Lookup(KeyType)
	if !ok {
		return out
	}
	typeName, ok := value.ConvertTo[value.String](tv)
	if !ok {
		w.Report(cerrors.NewUnknownType("", tv.String()))
		return out
	}
	f, ok := s.p.c.factories.Lookup(string(typeName))
	if !ok {
		w.Report(cerrors.NewUnknownType("", string(typeName)))
		return out
	}

	src := out.Clone()
	src.Delete(KeyType)
	path := w.Path().String()
	bc := &BuildContext{
		ctx:    w.Context(),
		p:      s.p,
		owner:  ownerOf(w.Path()),
		path:   path,
		logger: s.p.c.logger.With(zap.String("path", path), zap.String("type", string(typeName))),
	}
	obj, err := f.BuildFromSource(src, bc)
	if err != nil {
		w.Report(cerrors.NewFactoryFailed("", string(typeName), err))
		return out
	}
	return NewNode(f, obj, path)
}

// extractSiblings splices sibling resources into the root, then resolves
// every forward reference left pending to no value.
type extractSiblings struct {
	p *pipeline
}

func (e *extractSiblings) Name() string   { return PassExtractSiblings }
func (e *extractSiblings) Parallel() bool { return false }

func (e *extractSiblings) PrepareRoot(w *transform.Walk, root *value.Dict) *value.Dict {
	out := root.Clone()
	for _, owner := range root.Keys() {
		v, _ := root.Lookup(owner)
		n, ok := v.(*Node)
		if !ok {
			continue
		}
		sp, ok := n.Object().(SiblingProvider)
		if !ok {
			continue
		}
		sibs := sp.Siblings(owner)
		names := make([]string, 0, len(sibs))
		for name := range sibs {
			names = append(names, name)
		}
		sort.Strings(names)

		w.Push(owner)
		for _, name := range names {
			sv := sibs[name]
			if sv == nil {
				continue
			}
			if existing, exists := out.Lookup(name); exists {
				// recompiling cache output finds its siblings already spliced
				if !value.Equal(existing, sv) {
					w.Report(cerrors.NewSiblingCollision("", name))
				}
				continue
			}
			if _, err := e.p.table.Register(name, sv); err != nil {
				w.Report(cerrors.NewSiblingCollision("", name))
				continue
			}
			out.Put(name, sv)
			e.p.rec.inherit(name, owner)
		}
		w.Pop()
	}

	for _, name := range e.p.table.FinalizeUnresolved() {
		w.Report(cerrors.NewUnresolvedRef(name))
	}
	return out
}

func (e *extractSiblings) TransformValue(w *transform.Walk, v value.Value) value.Value {
	return v
}

// finishLoad completes every object depth-first through its dependencies
type finishLoad struct {
	p *pipeline
}

func (f *finishLoad) Name() string   { return PassFinishLoad }
func (f *finishLoad) Parallel() bool { return true }

func (f *finishLoad) TransformValue(w *transform.Walk, v value.Value) value.Value {
	n, ok := v.(*Node)
	if !ok {
		return transform.Descend(w, v)
	}
	for _, is := range f.p.done.complete(w.Context(), w.Task(), n) {
		name := strings.TrimPrefix(is.node.Path(), "/")
		if is.dependency {
			w.Report(cerrors.NewSelfDependency("", name, is.err))
			continue
		}
		w.Report(cerrors.NewFinishFailed("", name, is.err))
	}
	return n
}

// saveObjects converts objects back to dictionaries tagged with their type
// and references back to ref: strings.
type saveObjects struct {
	p *pipeline
}

func (s *saveObjects) Name() string   { return PassSaveObjects }
func (s *saveObjects) Parallel() bool { return true }

func (s *saveObjects) TransformValue(w *transform.Walk, v value.Value) value.Value {
	switch t := v.(type) {
	case *Node:
		saved, err := t.Factory().Save(t.Object())
		if err != nil {
			w.Report(cerrors.NewSaveFailed("", t.TypeName(), err))
			return nil
		}
		out, _ := transform.Descend(w, saved).(*value.Dict)
		out.Put(KeyType, value.NewString(t.TypeName()))
		return out
	case value.Ref:
		return value.NewString(value.RefPrefix + t.Name())
	}
	return transform.Descend(w, v)
}

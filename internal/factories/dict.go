package factories

import (
	"github.com/conduit-lang/respack/internal/compiler"
	"github.com/conduit-lang/respack/internal/value"
)

// DictObject is a typed wrapper around a plain dictionary
type DictObject struct {
	Values *value.Dict
}

// Dependencies returns every reference and object inside the dictionary
func (o *DictObject) Dependencies() []value.Value {
	var deps []value.Value
	collectDeps(o.Values, &deps)
	return deps
}

func collectDeps(v value.Value, deps *[]value.Value) {
	switch t := v.(type) {
	case value.Ref:
		*deps = append(*deps, t)
	case *compiler.Node:
		*deps = append(*deps, t)
	case *value.Dict:
		for _, k := range t.Keys() {
			child, _ := t.Lookup(k)
			collectDeps(child, deps)
		}
	case value.Vector:
		for _, child := range t {
			collectDeps(child, deps)
		}
	}
}

// DictFactory builds "dict" resources
type DictFactory struct{}

func (DictFactory) TypeName() string { return "dict" }

func (DictFactory) BuildFromSource(d *value.Dict, _ *compiler.BuildContext) (compiler.Object, error) {
	return &DictObject{Values: d}, nil
}

func (DictFactory) BuildFromCache(d *value.Dict, _ *compiler.LoadContext) (compiler.Object, error) {
	return &DictObject{Values: d}, nil
}

func (DictFactory) Save(obj compiler.Object) (*value.Dict, error) {
	o, ok := obj.(*DictObject)
	if !ok {
		return nil, wrongObject("*DictObject", obj)
	}
	return o.Values.Clone(), nil
}

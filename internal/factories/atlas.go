package factories

import (
	"context"
	"fmt"

	"github.com/conduit-lang/respack/internal/compiler"
	"github.com/conduit-lang/respack/internal/value"
)

// Atlas names rectangular frames inside an image resource. Every frame is
// also published as a sibling resource "<atlas>.<frame>".
type Atlas struct {
	Image  value.Ref
	Frames map[string]value.Rect
}

// Dependencies implements compiler.Dependent
func (a *Atlas) Dependencies() []value.Value {
	return []value.Value{a.Image}
}

// Siblings implements compiler.SiblingProvider
func (a *Atlas) Siblings(owner string) map[string]value.Value {
	out := make(map[string]value.Value, len(a.Frames))
	for name, r := range a.Frames {
		out[owner+"."+name] = r
	}
	return out
}

// Finish implements compiler.Finisher: the image must resolve
func (a *Atlas) Finish(_ context.Context) error {
	if a.Image.Target() == nil {
		return fmt.Errorf("image %q is not bound", a.Image.Name())
	}
	v, ok := a.Image.Target().TryGet()
	if !ok || v == nil {
		return fmt.Errorf("image %q does not resolve to a resource", a.Image.Name())
	}
	return nil
}

// AtlasFactory builds "atlas" resources:
//
//	{"res:type": "atlas", "image": "ref:sheet", "frames": {"idle": [0, 0, 16, 16]}}
type AtlasFactory struct{}

func (AtlasFactory) TypeName() string { return "atlas" }

func (AtlasFactory) BuildFromSource(d *value.Dict, _ *compiler.BuildContext) (compiler.Object, error) {
	return buildAtlas(d)
}

func (AtlasFactory) BuildFromCache(d *value.Dict, _ *compiler.LoadContext) (compiler.Object, error) {
	return buildAtlas(d)
}

func buildAtlas(d *value.Dict) (*Atlas, error) {
	iv, ok := d.Lookup("image")
	if !ok {
		return nil, fmt.Errorf("missing %q", "image")
	}
	img, ok := iv.(value.Ref)
	if !ok {
		return nil, fmt.Errorf("image: expected a ref: reference, got %s", iv.Kind())
	}

	a := &Atlas{Image: img, Frames: make(map[string]value.Rect)}
	fv, ok := d.Lookup("frames")
	if !ok {
		return a, nil
	}
	frames, ok := value.AsDict(fv)
	if !ok {
		return nil, fmt.Errorf("frames: expected a dictionary, got %s", fv.Kind())
	}
	for _, name := range frames.Keys() {
		v, _ := frames.Lookup(name)
		r, ok := value.ConvertTo[value.Rect](v)
		if !ok {
			return nil, fmt.Errorf("frame %q: expected [x, y, w, h]", name)
		}
		a.Frames[name] = r
	}
	return a, nil
}

func (AtlasFactory) Save(obj compiler.Object) (*value.Dict, error) {
	a, ok := obj.(*Atlas)
	if !ok {
		return nil, wrongObject("*Atlas", obj)
	}
	frames := value.NewDict()
	for name, r := range a.Frames {
		frames.Put(name, r)
	}
	d := value.NewDict()
	d.Put("image", a.Image)
	d.Put("frames", frames)
	return d, nil
}

package factories

import (
	"fmt"

	"github.com/conduit-lang/respack/internal/compiler"
	"github.com/conduit-lang/respack/internal/value"
)

// File is the raw content of one input file
type File struct {
	Path string
	Data *value.Blob
}

// Bytes materialises the content
func (f *File) Bytes() ([]byte, error) {
	return f.Data.Bytes()
}

// FileFactory builds "file" resources: {"path": "file:..."}
type FileFactory struct{}

func (FileFactory) TypeName() string { return "file" }

func (FileFactory) BuildFromSource(d *value.Dict, ctx *compiler.BuildContext) (compiler.Object, error) {
	path, err := requireString(d, "path")
	if err != nil {
		return nil, err
	}
	data, err := ctx.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	blob, err := value.NewBlob(data, ctx.Codec(), ctx.Compress())
	if err != nil {
		return nil, err
	}
	ctx.Logger().Debug("file resource read")
	return &File{Path: path, Data: blob}, nil
}

func (FileFactory) BuildFromCache(d *value.Dict, ctx *compiler.LoadContext) (compiler.Object, error) {
	path, _ := stringField(d, "path")
	v, ok := d.Lookup("data")
	if !ok {
		return nil, fmt.Errorf("missing %q", "data")
	}
	blob, ok := v.(*value.Blob)
	if !ok {
		return nil, fmt.Errorf("data: expected a blob, got %s", v.Kind())
	}
	return &File{Path: path, Data: blob}, nil
}

func (FileFactory) Save(obj compiler.Object) (*value.Dict, error) {
	f, ok := obj.(*File)
	if !ok {
		return nil, wrongObject("*File", obj)
	}
	d := value.NewDict()
	d.Put("path", value.NewString(f.Path))
	d.Put("data", f.Data)
	return d, nil
}

package factories

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/conduit-lang/respack/internal/compiler"
	"github.com/conduit-lang/respack/internal/jsonsrc"
	"github.com/conduit-lang/respack/internal/value"
)

// Text is a string resource, optionally split into lines
type Text struct {
	Text  string
	Lines []string
}

func newText(text string, split bool) *Text {
	t := &Text{Text: text}
	if split {
		t.Lines = strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	}
	return t
}

// TextFactory builds "text" resources from "text" or from the file at "path".
// "split_lines": true also fills Lines. "export" names an auxiliary output
// that receives the text next to the pack.
type TextFactory struct{}

func (TextFactory) TypeName() string { return "text" }

func (f TextFactory) BuildFromSource(d *value.Dict, ctx *compiler.BuildContext) (compiler.Object, error) {
	t, err := f.readSource(d, ctx)
	if err != nil {
		return nil, err
	}
	if name, ok := stringField(d, "export"); ok {
		if filepath.Base(name) != name {
			return nil, fmt.Errorf("export %q must be a plain file name", name)
		}
		ctx.AddAuxOutput(name, []byte(t.Text))
	}
	return t, nil
}

func (TextFactory) readSource(d *value.Dict, ctx *compiler.BuildContext) (*Text, error) {
	split := splitLines(d)
	if text, ok := stringField(d, "text"); ok {
		return newText(text, split), nil
	}
	path, err := requireString(d, "path")
	if err != nil {
		return nil, fmt.Errorf("need %q or %q", "text", "path")
	}
	data, err := ctx.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	text, err := jsonsrc.Decode(data)
	if err != nil {
		return nil, err
	}
	return newText(text, split), nil
}

func (TextFactory) BuildFromCache(d *value.Dict, _ *compiler.LoadContext) (compiler.Object, error) {
	text, ok := stringField(d, "text")
	if !ok {
		return nil, fmt.Errorf("missing %q", "text")
	}
	return newText(text, splitLines(d)), nil
}

func (TextFactory) Save(obj compiler.Object) (*value.Dict, error) {
	t, ok := obj.(*Text)
	if !ok {
		return nil, wrongObject("*Text", obj)
	}
	d := value.NewDict()
	d.Put("text", value.NewString(t.Text))
	d.Put("split_lines", value.NewBool(t.Lines != nil))
	return d, nil
}

func splitLines(d *value.Dict) bool {
	v, ok := d.Lookup("split_lines")
	if !ok {
		return false
	}
	return bool(value.ConvertOr(v, value.Bool(false)))
}

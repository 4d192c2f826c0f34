package compiler_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/respack/internal/compiler"
	cerrors "github.com/conduit-lang/respack/internal/compiler/errors"
	"github.com/conduit-lang/respack/internal/compress"
	"github.com/conduit-lang/respack/internal/factories"
	"github.com/conduit-lang/respack/internal/fsys"
	"github.com/conduit-lang/respack/internal/persist"
	"github.com/conduit-lang/respack/internal/value"
)

const mainJSON = `
// title screen resources
{
	"res:values": {
		"tint": "red",
		"base": {"alpha": 1, "style": {"bold": true, "size": 10}}
	},
	"title": {"res:type": "text", "text": "Hello", "res:symbol": "TITLE_TEXT"},
	"banner": {"res:type": "text", "path": "file:banner.txt", "split_lines": true},
	"button": {
		"res:type": "dict",
		"res:template": "base",
		"color": "res:tint",
		"style": {"size": 12},
		"label": "ref:title"
	},
	"shared": {"res:import": "common.json", "extra": 1},
	"icon": {"res:type": "file", "path": "file:icon.bin"},
	"hero": {"res:type": "atlas", "image": "ref:icon", "frames": {"idle": [0, 0, 16, 16], "run": [16, 0, 16, 16]}},
	"alias": "ref:missing",
	"2x-scale": 2,
}
`

const commonJSON = `{
	"res:values": {"v": 5},
	"value": "res:v",
	"nested": {"file": "file:banner.txt"},
	"extra": 0
}`

func writeFiles(t *testing.T, files map[string]string) *fsys.FS {
	t.Helper()
	fs := fsys.Memory()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs.Afero(), path, []byte(content), 0o644))
	}
	return fs
}

func newCompiler(fs *fsys.FS, extra ...compiler.Factory) *compiler.Compiler {
	reg := factories.NewRegistry()
	for _, f := range extra {
		reg.MustRegister(f)
	}
	return compiler.New(compiler.Options{
		Factories: reg,
		FS:        fs,
		Codec:     compress.NewZstd(1),
		Compress:  true,
		Workers:   4,
		Now:       func() time.Time { return time.Unix(1700000000, 0) },
	})
}

func fixture(t *testing.T) *fsys.FS {
	return writeFiles(t, map[string]string{
		"/res/main.json":   mainJSON,
		"/res/common.json": commonJSON,
		"/res/banner.txt":  "line one\nline two",
		"/res/icon.bin":    "\x89PNG fake image bytes",
	})
}

func get(t *testing.T, d *value.Dict, path string) value.Value {
	t.Helper()
	v, ok := d.Get(path)
	require.True(t, ok, "missing %s in %s", path, d)
	return v
}

func codes(list cerrors.ErrorList) []cerrors.ErrorCode {
	out := make([]cerrors.ErrorCode, len(list))
	for i, e := range list {
		out[i] = e.Code
	}
	return out
}

func TestCompile_Pipeline(t *testing.T) {
	out, err := newCompiler(fixture(t)).Compile(context.Background(), "/res/main.json")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"2x-scale", "alias", "banner", "button", "hero", "hero.idle", "hero.run", "icon", "shared", "title",
	}, out.Objects.Keys())

	// templates merge underneath the node's own keys
	assert.Equal(t, value.String("dict"), get(t, out.Objects, "/button/res:type"))
	assert.Equal(t, value.Int(1), get(t, out.Objects, "/button/alpha"))
	assert.Equal(t, value.String("red"), get(t, out.Objects, "/button/color"))
	assert.Equal(t, value.Bool(true), get(t, out.Objects, "/button/style/bold"))
	assert.Equal(t, value.Int(12), get(t, out.Objects, "/button/style/size"))
	assert.Equal(t, value.String("ref:title"), get(t, out.Objects, "/button/label"))

	// imports splice like templates and resolve files against the imported file
	assert.Equal(t, value.Int(5), get(t, out.Objects, "/shared/value"))
	assert.Equal(t, value.Int(1), get(t, out.Objects, "/shared/extra"))
	assert.Equal(t, value.String("/res/banner.txt"), get(t, out.Objects, "/shared/nested/file"))

	assert.Equal(t, value.String("text"), get(t, out.Objects, "/title/res:type"))
	assert.Equal(t, value.String("Hello"), get(t, out.Objects, "/title/text"))
	_, hasSymbol := out.Objects.Get("/title/res:symbol")
	assert.False(t, hasSymbol)
	assert.Equal(t, value.String("line one\nline two"), get(t, out.Objects, "/banner/text"))

	icon := get(t, out.Objects, "/icon/data")
	blob, ok := icon.(*value.Blob)
	require.True(t, ok)
	assert.True(t, blob.Compressed())
	data, err := blob.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG fake image bytes", string(data))

	assert.Equal(t, value.String("ref:icon"), get(t, out.Objects, "/hero/image"))
	assert.Equal(t, value.Rect{X: 16, Y: 0, W: 16, H: 16}, get(t, out.Objects, "/hero.run"))
	assert.Equal(t, value.String("ref:missing"), get(t, out.Objects, "/alias"))

	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, cerrors.ErrUnresolvedRef, out.Diagnostics[0].Code)
	assert.Equal(t, cerrors.SeverityWarning, out.Diagnostics[0].Severity)
}

func TestCompile_Metadata(t *testing.T) {
	out, err := newCompiler(fixture(t)).Compile(context.Background(), "/res/main.json")
	require.NoError(t, err)
	meta := out.Meta

	assert.Equal(t, []string{"/res/banner.txt", "/res/common.json", "/res/icon.bin", "/res/main.json"}, meta.FileNames())
	assert.Equal(t, []string{"/res/banner.txt"}, meta.ResourceFiles["banner"])
	assert.Equal(t, []string{"/res/banner.txt", "/res/common.json"}, meta.ResourceFiles["shared"])
	assert.Equal(t, []string{"/res/icon.bin"}, meta.ResourceFiles["icon"])
	assert.Equal(t, []string{"/res/main.json"}, meta.Sources)
	assert.Equal(t, time.Unix(1700000000, 0), meta.BuiltAt)

	assert.Equal(t, "title", meta.Symbols["TITLE_TEXT"])
	assert.Equal(t, "2x-scale", meta.Symbols["R_2X_SCALE"])
	assert.Equal(t, "hero.idle", meta.Symbols["HERO_IDLE"])

	decoded, err := compiler.MetadataFromDict(meta.ToDict())
	require.NoError(t, err)
	assert.Equal(t, meta.Files, decoded.Files)
	assert.Equal(t, meta.Symbols, decoded.Symbols)
	assert.Equal(t, meta.ResourceFiles, decoded.ResourceFiles)
	assert.True(t, meta.BuiltAt.Equal(decoded.BuiltAt))
}

func TestCompile_SplicedFilesBelongToTheirResource(t *testing.T) {
	fs := writeFiles(t, map[string]string{
		"/res/main.json": `{
			"res:values": {
				"skin": {"res:type": "text", "path": "file:skin.txt"},
				"sheet": "file:sheet.bin"
			},
			"label": {"res:template": "skin"},
			"caption": {"res:type": "dict", "image": "res:sheet"},
			"plain": {"res:type": "dict", "n": 1}
		}`,
		"/res/skin.txt":  "themed",
		"/res/sheet.bin": "sheet bytes",
	})
	out, err := newCompiler(fs).Compile(context.Background(), "/res/main.json")
	require.NoError(t, err)

	assert.Equal(t, value.String("themed"), get(t, out.Objects, "/label/text"))
	assert.Equal(t, value.String("/res/sheet.bin"), get(t, out.Objects, "/caption/image"))

	meta := out.Meta
	assert.Equal(t, []string{"/res/skin.txt"}, meta.ResourceFiles["label"])
	assert.Equal(t, []string{"/res/sheet.bin"}, meta.ResourceFiles["caption"])
	assert.Empty(t, meta.ResourceFiles["plain"])
	assert.Equal(t, []string{"/res/main.json", "/res/sheet.bin", "/res/skin.txt"}, meta.FileNames())
}

func TestCompile_Idempotent(t *testing.T) {
	c := newCompiler(fixture(t))
	first, err := c.Compile(context.Background(), "/res/main.json")
	require.NoError(t, err)

	second, err := c.CompileDict(context.Background(), first.Objects, "/res")
	require.NoError(t, err)

	require.Equal(t, first.Objects.Keys(), second.Objects.Keys())
	for _, name := range first.Objects.Keys() {
		a, _ := first.Objects.Lookup(name)
		b, _ := second.Objects.Lookup(name)
		ab, err := persist.Marshal(a)
		require.NoError(t, err)
		bb, err := persist.Marshal(b)
		require.NoError(t, err)
		assert.Equal(t, ab, bb, "resource %s changed on recompilation", name)
	}
}

func TestCompile_MergesSources(t *testing.T) {
	fs := writeFiles(t, map[string]string{
		"/a/one.json": `{"x": 1, "y": {"from": "one"}}`,
		"/b/two.json": `{"y": {"other": true}, "z": "file:z.txt"}`,
		"/b/z.txt":    "z",
	})
	out, err := newCompiler(fs).Compile(context.Background(), "/a/one.json", "/b/two.json")
	require.NoError(t, err)

	assert.Equal(t, value.Int(1), get(t, out.Objects, "/x"))
	_, ok := out.Objects.Get("/y/from")
	assert.False(t, ok, "later sources replace top-level entries")
	assert.Equal(t, value.String("/b/z.txt"), get(t, out.Objects, "/z"))
	assert.Equal(t, []string{"/a/one.json", "/b/two.json"}, out.Meta.Sources)
}

func TestCompile_Failures(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		pass  string
		code  cerrors.ErrorCode
		path  string
	}{
		{
			name:  "syntax",
			files: map[string]string{"/res/main.json": `{"a" 1}`},
			pass:  compiler.PassExpandFiles,
			code:  cerrors.ErrSyntax,
		},
		{
			name:  "missing file",
			files: map[string]string{"/res/main.json": `{"img": {"res:type": "file", "path": "file:nope.png"}}`},
			pass:  compiler.PassExpandFiles,
			code:  cerrors.ErrMissingFile,
			path:  "/img/path",
		},
		{
			name:  "missing value",
			files: map[string]string{"/res/main.json": `{"a": {"b": ["res:nope"]}}`},
			pass:  compiler.PassExpandValues,
			code:  cerrors.ErrMissingValue,
			path:  "/a/b[0]",
		},
		{
			name:  "missing template",
			files: map[string]string{"/res/main.json": `{"a": {"res:template": "base"}}`},
			pass:  compiler.PassExpandValues,
			code:  cerrors.ErrBadTemplate,
			path:  "/a",
		},
		{
			name: "import cycle",
			files: map[string]string{
				"/res/main.json": `{"a": {"res:import": "loop.json"}}`,
				"/res/loop.json": `{"again": {"res:import": "loop.json"}}`,
			},
			pass: compiler.PassExpandValues,
			code: cerrors.ErrBadImport,
			path: "/a/again",
		},
		{
			name:  "unknown type",
			files: map[string]string{"/res/main.json": `{"a": {"res:type": "shader"}}`},
			pass:  compiler.PassStartLoad,
			code:  cerrors.ErrUnknownType,
			path:  "/a",
		},
		{
			name:  "factory failure",
			files: map[string]string{"/res/main.json": `{"a": {"res:type": "atlas", "image": 3}}`},
			pass:  compiler.PassStartLoad,
			code:  cerrors.ErrFactoryFailed,
			path:  "/a",
		},
		{
			name: "sibling collision",
			files: map[string]string{"/res/main.json": `{
				"img": {"res:type": "text", "text": "x"},
				"hero": {"res:type": "atlas", "image": "ref:img", "frames": {"idle": [0, 0, 1, 1]}},
				"hero.idle": 1
			}`},
			pass: compiler.PassExtractSiblings,
			code: cerrors.ErrSiblingCollision,
			path: "/hero",
		},
		{
			name:  "finish failure",
			files: map[string]string{"/res/main.json": `{"hero": {"res:type": "atlas", "image": "ref:nowhere"}}`},
			pass:  compiler.PassFinishLoad,
			code:  cerrors.ErrFinishFailed,
			path:  "/hero",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newCompiler(writeFiles(t, tt.files)).Compile(context.Background(), "/res/main.json")
			require.Error(t, err)

			var pe *compiler.PassError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, tt.pass, pe.Pass)
			assert.Contains(t, codes(pe.Diagnostics), tt.code)

			var list cerrors.ErrorList
			require.True(t, errors.As(err, &list))
			for _, e := range list {
				if e.Code == tt.code && tt.path != "" {
					assert.Equal(t, tt.path, e.Path)
				}
			}
		})
	}
}

// counting builds objects whose dependencies are listed in "deps" and
// counts how often each stage runs. Finishes of the resource named watch are
// counted separately.
type counting struct {
	watch    string
	builds   atomic.Int32
	finishes atomic.Int32
	watched  atomic.Int32
}

type countingObject struct {
	f    *counting
	name string
	deps []value.Value
}

func (o *countingObject) Dependencies() []value.Value { return o.deps }

func (o *countingObject) Finish(ctx context.Context) error {
	o.f.finishes.Add(1)
	if o.name == o.f.watch {
		o.f.watched.Add(1)
	}
	time.Sleep(2 * time.Millisecond)
	return nil
}

func (c *counting) TypeName() string { return "counting" }

func (c *counting) BuildFromSource(d *value.Dict, ctx *compiler.BuildContext) (compiler.Object, error) {
	c.builds.Add(1)
	obj := &countingObject{f: c, name: ctx.Owner()}
	if v, ok := d.Lookup("deps"); ok {
		if vec, ok := v.(value.Vector); ok {
			obj.deps = append(obj.deps, vec...)
		}
	}
	return obj, nil
}

func (c *counting) BuildFromCache(d *value.Dict, ctx *compiler.LoadContext) (compiler.Object, error) {
	return &countingObject{f: c, name: ctx.Name()}, nil
}

func (c *counting) Save(obj compiler.Object) (*value.Dict, error) {
	o := obj.(*countingObject)
	d := value.NewDict()
	d.Put("deps", value.NewVector(o.deps...))
	return d, nil
}

func compileWithTimeout(t *testing.T, c *compiler.Compiler) (*compiler.Output, error) {
	t.Helper()
	type result struct {
		out *compiler.Output
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := c.Compile(context.Background(), "/res/main.json")
		done <- result{out, err}
	}()
	select {
	case r := <-done:
		return r.out, r.err
	case <-time.After(5 * time.Second):
		t.Fatal("compilation deadlocked")
		return nil, nil
	}
}

func TestCompile_AbortsBeforeLaterPasses(t *testing.T) {
	f := &counting{}
	fs := writeFiles(t, map[string]string{
		"/res/main.json": `{"a": {"res:type": "counting", "v": "res:nope"}, "b": {"res:type": "counting"}}`,
	})
	_, err := compileWithTimeout(t, newCompiler(fs, f))
	require.Error(t, err)
	assert.Equal(t, int32(0), f.builds.Load(), "start-load must not run after a failing pass")
}

func TestCompile_SelfDependency(t *testing.T) {
	f := &counting{}
	fs := writeFiles(t, map[string]string{
		"/res/main.json": `{"A": {"res:type": "counting", "deps": ["ref:A"]}}`,
	})
	_, err := compileWithTimeout(t, newCompiler(fs, f))
	require.Error(t, err)

	list, ok := compiler.Diagnostics(err)
	require.True(t, ok)
	assert.Contains(t, codes(list), cerrors.ErrSelfDependency)
	assert.Contains(t, list.Error(), `"A" depends on itself`)
}

func TestCompile_DependencyCycle(t *testing.T) {
	f := &counting{}
	fs := writeFiles(t, map[string]string{
		"/res/main.json": `{
			"A": {"res:type": "counting", "deps": ["ref:B"]},
			"B": {"res:type": "counting", "deps": ["ref:A"]}
		}`,
	})
	_, err := compileWithTimeout(t, newCompiler(fs, f))
	require.Error(t, err)

	list, _ := compiler.Diagnostics(err)
	assert.Contains(t, codes(list), cerrors.ErrSelfDependency)
}

func TestCompile_FinishesSharedDependencyOnce(t *testing.T) {
	f := &counting{watch: "X"}

	src := `{"X": {"res:type": "counting"}`
	for i := 0; i < 20; i++ {
		src += fmt.Sprintf(`, "user%02d": {"res:type": "counting", "deps": ["ref:X", {"res:type": "counting"}]}`, i)
	}
	src += "}"
	fs := writeFiles(t, map[string]string{"/res/main.json": src})

	out, err := compileWithTimeout(t, newCompiler(fs, f))
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.watched.Load(), "X must finish exactly once")
	assert.Equal(t, int32(41), f.finishes.Load())
	assert.Equal(t, value.String("ref:X"), get(t, out.Objects, "/user07/deps[0]"))
	assert.Equal(t, value.String("counting"), get(t, out.Objects, "/user07/deps[1]/res:type"))
}

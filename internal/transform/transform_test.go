package transform

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/conduit-lang/respack/internal/compiler/errors"
	"github.com/conduit-lang/respack/internal/resource"
	"github.com/conduit-lang/respack/internal/value"
)

// upper upper-cases strings, drops "drop" and reports "bad"
type upper struct {
	parallel bool
	mu       sync.Mutex
	tasks    map[resource.TaskID]bool
	paths    []string
}

func (u *upper) Name() string   { return "upper" }
func (u *upper) Parallel() bool { return u.parallel }

func (u *upper) TransformValue(w *Walk, v value.Value) value.Value {
	u.mu.Lock()
	if u.tasks == nil {
		u.tasks = make(map[resource.TaskID]bool)
	}
	u.tasks[w.Task()] = true
	u.mu.Unlock()

	s, ok := v.(value.String)
	if !ok {
		return Descend(w, v)
	}
	u.mu.Lock()
	u.paths = append(u.paths, w.Path().String())
	u.mu.Unlock()
	switch s {
	case "drop":
		return nil
	case "bad":
		w.Report(cerrors.NewMissingValue("", "bad"))
		return v
	}
	return value.NewString(strings.ToUpper(string(s)))
}

func sample() *value.Dict {
	return value.DictOf(map[string]value.Value{
		"a": value.NewString("x"),
		"b": value.DictOf(map[string]value.Value{
			"c": value.NewVector(value.NewString("y"), value.NewString("drop"), value.NewString("bad")),
		}),
		"d": value.NewString("drop"),
		"e": value.NewInt(4),
	})
}

func TestPath_String(t *testing.T) {
	p := Root.Child("a").Child("b").Index(2)
	assert.Equal(t, "/a/b[2]", p.String())
	assert.Equal(t, "/", Root.String())
	assert.Equal(t, "a", p.Top())
	assert.Equal(t, 3, p.Depth())
	assert.Equal(t, "/a/b", p.Parent().String())

	last, ok := p.Parent().Last()
	assert.True(t, ok)
	assert.Equal(t, "b", last)
}

func TestEngine_SequentialAndParallelAgree(t *testing.T) {
	var outputs []*value.Dict
	var diags []cerrors.ErrorList

	for _, parallel := range []bool{false, true} {
		e := NewEngine(4, nil)
		out, list, err := e.Run(context.Background(), &upper{parallel: parallel}, sample())
		require.NoError(t, err)
		outputs = append(outputs, out)
		diags = append(diags, list)
	}

	want := value.DictOf(map[string]value.Value{
		"a": value.NewString("X"),
		"b": value.DictOf(map[string]value.Value{
			"c": value.NewVector(value.NewString("Y"), value.NewString("bad")),
		}),
		"e": value.NewInt(4),
	})
	for _, out := range outputs {
		assert.True(t, value.Equal(want, out), "got %s", out)
	}
	for _, list := range diags {
		require.Len(t, list, 1)
		assert.Equal(t, "/b/c[2]", list[0].Path)
		assert.Equal(t, "upper", list[0].Pass)
		assert.NotZero(t, list[0].Task)
	}
}

func TestEngine_ParallelForksTasks(t *testing.T) {
	pass := &upper{parallel: true}
	_, _, err := NewEngine(4, nil).Run(context.Background(), pass, sample())
	require.NoError(t, err)
	assert.Len(t, pass.tasks, 4, "one task per top-level entry")

	seq := &upper{}
	_, _, err = NewEngine(4, nil).Run(context.Background(), seq, sample())
	require.NoError(t, err)
	assert.Len(t, seq.tasks, 1)
}

// collectAll reports at every leaf so the pass yields many errors
type collectAll struct{ calls atomic.Int32 }

func (c *collectAll) Name() string   { return "collect" }
func (c *collectAll) Parallel() bool { return true }
func (c *collectAll) TransformValue(w *Walk, v value.Value) value.Value {
	if _, ok := v.(value.Int); ok {
		c.calls.Add(1)
		w.Report(cerrors.NewUnknownType("", "int"))
		return v
	}
	return Descend(w, v)
}

func TestEngine_DoesNotShortCircuit(t *testing.T) {
	root := value.NewDict()
	for _, k := range []string{"k1", "k2", "k3", "k4", "k5"} {
		root.Put(k, value.NewVector(value.NewInt(1), value.NewInt(2)))
	}
	pass := &collectAll{}
	_, list, err := NewEngine(2, nil).Run(context.Background(), pass, root)
	require.NoError(t, err)
	assert.Equal(t, int32(10), pass.calls.Load())
	require.Len(t, list, 10)
	assert.Equal(t, "/k1[0]", list[0].Path)
	assert.Equal(t, "/k5[1]", list[9].Path)
}

// scoped pushes a root scope and resolves "$name" strings
type scoped struct{}

func (scoped) Name() string   { return "scoped" }
func (scoped) Parallel() bool { return true }

func (scoped) PrepareRoot(w *Walk, root *value.Dict) *value.Dict {
	vals, _ := root.Lookup("vals")
	d, _ := vals.(*value.Dict)
	w.PushScope(d)
	out := root.Clone()
	out.Delete("vals")
	return out
}

func (s scoped) TransformValue(w *Walk, v value.Value) value.Value {
	if str, ok := v.(value.String); ok && strings.HasPrefix(string(str), "$") {
		got, _ := w.Lookup(string(str[1:]))
		return got
	}
	if d, ok := v.(*value.Dict); ok {
		if inner, ok := d.Lookup("vals"); ok {
			w.PushScope(inner.(*value.Dict))
			defer w.PopScope()
			d = d.Clone()
			d.Delete("vals")
		}
		return Descend(w, d)
	}
	return Descend(w, v)
}

func TestWalk_ScopesInheritedByForks(t *testing.T) {
	root := value.DictOf(map[string]value.Value{
		"vals": value.DictOf(map[string]value.Value{"color": value.NewString("red"), "size": value.NewInt(2)}),
		"a":    value.NewString("$color"),
		"b": value.DictOf(map[string]value.Value{
			"vals":  value.DictOf(map[string]value.Value{"color": value.NewString("blue")}),
			"c":     value.NewString("$color"),
			"sized": value.NewString("$size"),
		}),
	})

	out, list, err := NewEngine(2, nil).Run(context.Background(), scoped{}, root)
	require.NoError(t, err)
	assert.Empty(t, list)

	a, _ := out.Get("/a")
	assert.Equal(t, value.String("red"), a)
	c, _ := out.Get("/b/c")
	assert.Equal(t, value.String("blue"), c)
	sized, _ := out.Get("/b/sized")
	assert.Equal(t, value.Int(2), sized)
	_, ok := out.Lookup("vals")
	assert.False(t, ok)
}

type slow struct{}

func (slow) Name() string   { return "slow" }
func (slow) Parallel() bool { return true }
func (slow) TransformValue(w *Walk, v value.Value) value.Value {
	time.Sleep(20 * time.Millisecond)
	return v
}

func TestEngine_Cancelled(t *testing.T) {
	root := value.NewDict()
	for _, k := range []string{"a", "b", "c", "d"} {
		root.Put(k, value.NewInt(1))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewEngine(1, nil).Run(ctx, slow{}, root)
	assert.ErrorIs(t, err, context.Canceled)
}

package transform

import (
	"context"

	cerrors "github.com/conduit-lang/respack/internal/compiler/errors"
	"github.com/conduit-lang/respack/internal/resource"
	"github.com/conduit-lang/respack/internal/value"
)

type scope struct {
	parent *scope
	values *value.Dict
}

// Walk is the state of one task walking a tree: the logical path, the stack
// of named-value scopes, the task id and the shared error sink. A Walk is
// owned by a single goroutine; tasks spawned by the engine get a fork.
type Walk struct {
	ctx   context.Context
	pass  Pass
	task  resource.TaskID
	path  *Path
	scope *scope
	sink  *cerrors.Collector
}

// NewWalk creates a walk at Root on a fresh task
func NewWalk(ctx context.Context, pass Pass, sink *cerrors.Collector) *Walk {
	if sink == nil {
		sink = &cerrors.Collector{}
	}
	return &Walk{ctx: ctx, pass: pass, task: resource.NewTaskID(), sink: sink}
}

// Context returns the walk's context
func (w *Walk) Context() context.Context { return w.ctx }

// Pass returns the pass being applied
func (w *Walk) Pass() Pass { return w.pass }

// Task returns the id of the task running this walk
func (w *Walk) Task() resource.TaskID { return w.task }

// Path returns the current logical path
func (w *Walk) Path() *Path { return w.path }

// AtTop reports whether the walk is positioned on a top-level entry
func (w *Walk) AtTop() bool { return w.path.Depth() == 1 }

// Push enters a named child
func (w *Walk) Push(name string) { w.path = w.path.Child(name) }

// PushIndex enters an indexed child
func (w *Walk) PushIndex(i int) { w.path = w.path.Index(i) }

// Pop leaves the current child
func (w *Walk) Pop() { w.path = w.path.Parent() }

// PushScope makes the values of d visible to Lookup until the matching PopScope
func (w *Walk) PushScope(d *value.Dict) {
	w.scope = &scope{parent: w.scope, values: d}
}

// PopScope drops the innermost scope
func (w *Walk) PopScope() {
	if w.scope != nil {
		w.scope = w.scope.parent
	}
}

// Lookup finds a named value, innermost scope first
func (w *Walk) Lookup(name string) (value.Value, bool) {
	for s := w.scope; s != nil; s = s.parent {
		if v, ok := s.values.Lookup(name); ok {
			return v, true
		}
	}
	return nil, false
}

// Report records a diagnostic, stamping it with the current path, pass and
// task unless the diagnostic already carries a path.
func (w *Walk) Report(e *cerrors.CompilerError) {
	if e.Path == "" {
		e.Path = w.path.String()
	}
	name := ""
	if w.pass != nil {
		name = w.pass.Name()
	}
	e.WithPass(name, uint64(w.task))
	w.sink.Add(e)
}

// Errors returns the diagnostics reported so far through this walk's sink
func (w *Walk) Errors() cerrors.ErrorList { return w.sink.List() }

// Fork returns a walk on a new task that starts from the same path and
// scopes as w.
func (w *Walk) Fork() *Walk {
	f := *w
	f.task = resource.NewTaskID()
	return &f
}

// Apply runs pass over v on this walk, keeping path, scopes and sink, and
// restores the walk's own pass afterwards.
func (w *Walk) Apply(pass Pass, v value.Value) value.Value {
	saved := w.pass
	w.pass = pass
	defer func() { w.pass = saved }()
	return pass.TransformValue(w, v)
}

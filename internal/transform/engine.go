// Package transform walks value trees and rebuilds them through a Pass.
//
// A pass overrides TransformValue for the values it cares about and calls
// Descend for everything else. Diagnostics are collected, never
// short-circuited, and every one carries the logical path it was reported at.
// A pass that asks for parallel mode has its top-level entries spread over a
// bounded set of goroutines; the result is reassembled in key order.
package transform

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	cerrors "github.com/conduit-lang/respack/internal/compiler/errors"
	"github.com/conduit-lang/respack/internal/value"
)

// Pass is one tree rewrite
type Pass interface {
	Name() string
	// Parallel asks for one task per top-level entry
	Parallel() bool
	// TransformValue returns the replacement for v; nil removes it
	TransformValue(w *Walk, v value.Value) value.Value
}

// RootPreparer is implemented by passes that need to see the root dictionary
// before its entries are walked, e.g. to open a scope every entry inherits.
type RootPreparer interface {
	PrepareRoot(w *Walk, root *value.Dict) *value.Dict
}

// Descend rebuilds dictionaries and vectors from their transformed children
// and returns any other value unchanged.
func Descend(w *Walk, v value.Value) value.Value {
	switch t := v.(type) {
	case *value.Dict:
		out := value.NewDict()
		for _, k := range t.Keys() {
			child, _ := t.Lookup(k)
			w.Push(k)
			out.Put(k, w.pass.TransformValue(w, child))
			w.Pop()
		}
		return out
	case value.Vector:
		items := make([]value.Value, 0, len(t))
		for i, child := range t {
			w.PushIndex(i)
			if nv := w.pass.TransformValue(w, child); nv != nil {
				items = append(items, nv)
			}
			w.Pop()
		}
		return value.NewVector(items...)
	}
	return v
}

// Engine runs passes over root dictionaries
type Engine struct {
	workers int
	logger  *zap.Logger
}

// NewEngine creates an engine. workers <= 0 uses GOMAXPROCS.
func NewEngine(workers int, logger *zap.Logger) *Engine {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{workers: workers, logger: logger}
}

// Workers returns the fan-out limit
func (e *Engine) Workers() int { return e.workers }

// Run applies pass to every top-level entry of root. The returned list holds
// every diagnostic the pass reported, sorted by path. The error is non-nil
// only when ctx was cancelled before the walk finished.
func (e *Engine) Run(ctx context.Context, pass Pass, root *value.Dict) (*value.Dict, cerrors.ErrorList, error) {
	start := time.Now()
	sink := &cerrors.Collector{}
	w := NewWalk(ctx, pass, sink)

	if rp, ok := pass.(RootPreparer); ok {
		root = rp.PrepareRoot(w, root)
	}

	keys := root.Keys()
	results := make([]value.Value, len(keys))

	if pass.Parallel() && len(keys) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.workers)
		for i, k := range keys {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				child, _ := root.Lookup(k)
				fw := w.Fork()
				fw.Push(k)
				results[i] = pass.TransformValue(fw, child)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, sink.List(), err
		}
	} else {
		for i, k := range keys {
			if err := ctx.Err(); err != nil {
				return nil, sink.List(), err
			}
			child, _ := root.Lookup(k)
			w.Push(k)
			results[i] = pass.TransformValue(w, child)
			w.Pop()
		}
	}

	out := value.NewDict()
	for i, k := range keys {
		out.Put(k, results[i])
	}

	diags := sink.List()
	e.logger.Debug("pass finished",
		zap.String("pass", pass.Name()),
		zap.Int("entries", len(keys)),
		zap.Int("diagnostics", len(diags)),
		zap.Duration("duration", time.Since(start)),
	)
	return out, diags, nil
}

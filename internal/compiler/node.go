package compiler

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/conduit-lang/respack/internal/resource"
	"github.com/conduit-lang/respack/internal/value"
)

// KindObject is the extension kind carrying typed objects. It exists only in
// memory: the save pass turns every object back into a dictionary.
var KindObject = value.Default().MustRegister(value.NewKind(value.KindSpec{
	Name:   "respack.object",
	Native: reflect.TypeOf((*Node)(nil)),
}))

// Node wraps a typed object as a value and tracks its completion
type Node struct {
	typeName string
	factory  Factory
	object   Object
	path     string

	mu   sync.Mutex
	done chan struct{}
	// finished is set before done closes
	finished bool
	err      error
}

// NewNode wraps obj built by f at path. The node starts unfinished.
func NewNode(f Factory, obj Object, path string) *Node {
	return &Node{
		typeName: f.TypeName(),
		factory:  f,
		object:   obj,
		path:     path,
		done:     make(chan struct{}),
	}
}

// NewFinishedNode wraps an object that needs no completion, such as one
// reconstructed from the cache.
func NewFinishedNode(f Factory, obj Object, path string) *Node {
	n := NewNode(f, obj, path)
	n.markDone(nil)
	return n
}

func (n *Node) Kind() *value.Kind { return KindObject }

// TypeName returns the factory type name
func (n *Node) TypeName() string { return n.typeName }

// Factory returns the factory that built the object
func (n *Node) Factory() Factory { return n.factory }

// Object returns the typed object
func (n *Node) Object() Object { return n.object }

// Path returns the logical path the object was built at
func (n *Node) Path() string { return n.path }

// Finished reports whether completion has run
func (n *Node) Finished() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.finished
}

// Err returns the completion error, if any
func (n *Node) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

// Done is closed once completion has run
func (n *Node) Done() <-chan struct{} { return n.done }

func (n *Node) markDone(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.finished {
		return
	}
	n.finished = true
	n.err = err
	close(n.done)
}

func (n *Node) String() string {
	return fmt.Sprintf("object(%s)", n.typeName)
}

// Equal is identity: two nodes are the same object or different ones
func (n *Node) Equal(o value.Value) bool {
	other, ok := o.(*Node)
	return ok && other == n
}

// completer runs depth-first completion of nodes. It guarantees at most one
// completion per node; other tasks wait on the node's done channel.
type completer struct {
	graph *resource.WaitGraph
}

// issue is a completion problem attributed to a node
type issue struct {
	node *Node
	err  error
	// dependency marks self-dependency and wait cycles
	dependency bool
}

// complete finishes n on behalf of task and returns every problem found on
// the way, in the order encountered.
func (c *completer) complete(ctx context.Context, task resource.TaskID, n *Node) []issue {
	_, claimed, err := c.graph.Claim(n, task)
	if err != nil {
		return []issue{{node: n, err: err, dependency: true}}
	}
	if !claimed {
		if n.Finished() {
			return nil
		}
		if err := c.graph.BeginWait(task, n); err != nil {
			return []issue{{node: n, err: err, dependency: true}}
		}
		defer c.graph.EndWait(task)
		select {
		case <-n.done:
		case <-ctx.Done():
			return []issue{{node: n, err: ctx.Err()}}
		}
		return nil
	}
	defer c.graph.Release(n)
	if n.Finished() {
		return nil
	}

	var issues []issue
	if dep, ok := n.object.(Dependent); ok {
		for _, d := range dep.Dependencies() {
			target := dependencyNode(d)
			if target == nil {
				continue
			}
			issues = append(issues, c.complete(ctx, task, target)...)
		}
	}

	var finishErr error
	if f, ok := n.object.(Finisher); ok {
		if finishErr = f.Finish(ctx); finishErr != nil {
			issues = append(issues, issue{node: n, err: finishErr})
		}
	}
	n.markDone(finishErr)
	return issues
}

// dependencyNode returns the node a dependency entry stands for, if any
func dependencyNode(v value.Value) *Node {
	switch t := v.(type) {
	case *Node:
		return t
	case value.Ref:
		if t.Target() == nil {
			return nil
		}
		got, ok := t.Target().TryGet()
		if !ok {
			return nil
		}
		n, _ := got.(*Node)
		return n
	}
	return nil
}

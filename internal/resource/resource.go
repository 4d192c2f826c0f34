// Package resource provides named, eventually-resolved bindings to values.
//
// A Resource starts pending and is finalized exactly once. A finalized
// resource may later be forwarded, at most once, to a newer resource; reading
// a resource always follows the forwarding chain to its end.
package resource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/conduit-lang/respack/internal/value"
)

var (
	// ErrAlreadyFinalized is returned by a second Finalize
	ErrAlreadyFinalized = errors.New("resource already finalized")
	// ErrAlreadyForwarded is returned by a second Forward
	ErrAlreadyForwarded = errors.New("resource already forwarded")
	// ErrForwardCycle is returned when forwarding would loop back
	ErrForwardCycle = errors.New("resource forwarding cycle")
)

// Resource is a named binding that becomes known at most once
type Resource struct {
	name string

	mu        sync.Mutex
	done      chan struct{}
	finalized bool
	value     value.Value

	forward   atomic.Pointer[Resource]
	forwarded chan struct{}
}

// NewPending creates an unresolved resource
func NewPending(name string) *Resource {
	return &Resource{name: name, done: make(chan struct{}), forwarded: make(chan struct{})}
}

// NewFinalized creates an already resolved resource. v may be nil for "no value".
func NewFinalized(name string, v value.Value) *Resource {
	r := NewPending(name)
	_ = r.Finalize(v)
	return r
}

// Name returns the resource name
func (r *Resource) Name() string { return r.name }

// Finalize fixes the value; nil means "no value".
func (r *Resource) Finalize(v value.Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return ErrAlreadyFinalized
	}
	r.value = v
	r.finalized = true
	close(r.done)
	return nil
}

// Finalized reports whether this instance (ignoring forwarding) is resolved
func (r *Resource) Finalized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized
}

// Done is closed when this instance is finalized
func (r *Resource) Done() <-chan struct{} { return r.done }

// Forward supersedes r with a newer resource.
func (r *Resource) Forward(to *Resource) error {
	if to == nil {
		return errors.New("forward to nil resource")
	}
	for cur := to; cur != nil; cur = cur.forward.Load() {
		if cur == r {
			return ErrForwardCycle
		}
	}
	if !r.forward.CompareAndSwap(nil, to) {
		return ErrAlreadyForwarded
	}
	close(r.forwarded)
	return nil
}

// Forwarded returns the direct successor, or nil
func (r *Resource) Forwarded() *Resource { return r.forward.Load() }

// Latest follows the forwarding chain to its end
func (r *Resource) Latest() *Resource {
	cur := r
	for next := cur.forward.Load(); next != nil; next = cur.forward.Load() {
		cur = next
	}
	return cur
}

// TryGet polls the latest resource in the chain
func (r *Resource) TryGet() (value.Value, bool) {
	latest := r.Latest()
	latest.mu.Lock()
	defer latest.mu.Unlock()
	return latest.value, latest.finalized
}

// Wait blocks until the latest resource in the chain is finalized. A
// forward installed while waiting is followed.
func (r *Resource) Wait(ctx context.Context) (value.Value, error) {
	for {
		latest := r.Latest()
		select {
		case <-latest.done:
			if latest.forward.Load() != nil {
				continue
			}
			latest.mu.Lock()
			v := latest.value
			latest.mu.Unlock()
			return v, nil
		case <-latest.forwarded:
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Ref returns a reference value bound to r
func (r *Resource) Ref() value.Ref {
	return value.NewRef(r.name, r)
}

var _ value.Referent = (*Resource)(nil)

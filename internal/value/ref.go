package value

import "context"

// RefPrefix marks reference strings in source and cache dictionaries
const RefPrefix = "ref:"

// Referent is the eventually-resolved target of a reference
type Referent interface {
	Name() string
	// TryGet polls the target; ok is false while it is pending.
	TryGet() (v Value, ok bool)
	// Wait blocks until the target is finalized.
	Wait(ctx context.Context) (Value, error)
}

// Ref is a reference to a named resource
type Ref struct {
	name   string
	target Referent
}

// NewRef binds a reference to its target. The target may be nil for a
// reference that has not been bound yet.
func NewRef(name string, target Referent) Ref {
	return Ref{name: name, target: target}
}

func (r Ref) Kind() *Kind { return KindRef }

// Name returns the referenced resource name
func (r Ref) Name() string { return r.name }

// Target returns the bound referent, or nil
func (r Ref) Target() Referent { return r.target }

// Resolve waits for the referent. An unbound reference resolves to no value.
func (r Ref) Resolve(ctx context.Context) (Value, error) {
	if r.target == nil {
		return nil, nil
	}
	return r.target.Wait(ctx)
}

func (r Ref) String() string { return RefPrefix + r.name }

// Equal compares reference names
func (r Ref) Equal(o Value) bool {
	other, ok := o.(Ref)
	return ok && other.name == r.name
}

func (r Ref) convertTo(target *Kind) (Value, bool) {
	if target == KindString {
		return NewString(r.String()), true
	}
	return nil, false
}

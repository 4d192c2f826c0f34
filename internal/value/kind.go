// Package value implements the typed value model shared by the compiler and the
// object cache: kinds and their registry, interned defaults, conversion between
// kinds, dictionaries with path lookup, deferred blobs and resource references.
package value

import (
	"reflect"

	"github.com/cespare/xxhash/v2"
)

// Value is an immutable, kind-tagged datum.
//
// A value's kind never changes after construction. Values may be shared freely
// between dictionaries and goroutines once published.
type Value interface {
	Kind() *Kind
	String() string
	Equal(other Value) bool
}

// converter is implemented by values that know how to convert themselves to
// another kind (the "forward" direction).
type converter interface {
	convertTo(target *Kind) (Value, bool)
}

// FromFunc converts a value of a foreign kind into the kind that owns the
// function (the "backward" direction).
type FromFunc func(v Value) (Value, bool)

// Kind describes one concrete value kind.
type Kind struct {
	name      string
	persistID uint32
	index     int
	native    reflect.Type
	from      FromFunc
}

// KindSpec configures NewKind.
type KindSpec struct {
	// Name is the canonical name. The persist identifier is derived from it, so
	// renaming a kind invalidates every pack that contains it.
	Name string
	// Native is the Go type that carries values of this kind.
	Native reflect.Type
	// From optionally converts foreign values into this kind.
	From FromFunc
}

// NewKind creates an unregistered kind.
func NewKind(spec KindSpec) *Kind {
	return &Kind{
		name:      spec.Name,
		persistID: PersistID(spec.Name),
		index:     -1,
		native:    spec.Native,
		from:      spec.From,
	}
}

// Name returns the canonical kind name
func (k *Kind) Name() string { return k.name }

// PersistID returns the stable wire identifier
func (k *Kind) PersistID() uint32 { return k.persistID }

// Index returns the dense registry index, or -1 when unregistered
func (k *Kind) Index() int { return k.index }

// Native returns the Go type carrying values of this kind
func (k *Kind) Native() reflect.Type { return k.native }

func (k *Kind) String() string { return k.name }

// PersistID hashes a canonical kind name to its 32-bit wire identifier.
func PersistID(name string) uint32 {
	h := xxhash.Sum64String(name)
	return uint32(h) ^ uint32(h>>32)
}

// Built-in kinds.
var (
	KindBool   = NewKind(KindSpec{Name: "respack.bool", Native: reflect.TypeOf(Bool(false))})
	KindInt    = NewKind(KindSpec{Name: "respack.int", Native: reflect.TypeOf(Int(0))})
	KindFloat  = NewKind(KindSpec{Name: "respack.float", Native: reflect.TypeOf(Float(0))})
	KindDouble = NewKind(KindSpec{Name: "respack.double", Native: reflect.TypeOf(Double(0))})
	KindFixed  = NewKind(KindSpec{Name: "respack.fixed", Native: reflect.TypeOf(Fixed(0))})
	KindString = NewKind(KindSpec{Name: "respack.string", Native: reflect.TypeOf(String(""))})
	KindBytes  = NewKind(KindSpec{Name: "respack.bytes", Native: reflect.TypeOf(Bytes(nil))})
	KindPoint  = NewKind(KindSpec{Name: "respack.point", Native: reflect.TypeOf(Point{})})
	KindRect   = NewKind(KindSpec{Name: "respack.rect", Native: reflect.TypeOf(Rect{})})
	KindUUID   = NewKind(KindSpec{Name: "respack.uuid", Native: reflect.TypeOf(UUID{})})
	KindDict   = NewKind(KindSpec{Name: "respack.dict", Native: reflect.TypeOf((*Dict)(nil))})
	KindVector = NewKind(KindSpec{Name: "respack.vector", Native: reflect.TypeOf(Vector(nil))})
	KindRef    = NewKind(KindSpec{Name: "respack.ref", Native: reflect.TypeOf(Ref{})})
	KindBlob   = NewKind(KindSpec{Name: "respack.blob", Native: reflect.TypeOf((*Blob)(nil))})
)

func builtinKinds() []*Kind {
	return []*Kind{
		KindBool, KindInt, KindFloat, KindDouble, KindFixed, KindString, KindBytes,
		KindPoint, KindRect, KindUUID, KindDict, KindVector, KindRef, KindBlob,
	}
}

package value

import "strings"

// Vector is an ordered list of values
type Vector []Value

var emptyVector Value = Vector{}

// NewVector returns a vector, interned when empty. The slice is not copied.
func NewVector(items ...Value) Value {
	if len(items) == 0 {
		return emptyVector
	}
	return Vector(items)
}

func (v Vector) Kind() *Kind { return KindVector }

func (v Vector) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, item := range v {
		if i > 0 {
			b.WriteString(", ")
		}
		writeQuoted(&b, item)
	}
	b.WriteByte(']')
	return b.String()
}

func (v Vector) Equal(o Value) bool {
	other, ok := o.(Vector)
	if !ok || len(other) != len(v) {
		return false
	}
	for i := range v {
		if !Equal(v[i], other[i]) {
			return false
		}
	}
	return true
}

// Len returns the element count
func (v Vector) Len() int { return len(v) }

// Index returns the element at i
func (v Vector) Index(i int) (Value, bool) {
	if i < 0 || i >= len(v) {
		return nil, false
	}
	return v[i], true
}

func (v Vector) convertTo(target *Kind) (Value, bool) {
	switch target {
	case KindPoint:
		if len(v) != 2 {
			return nil, false
		}
		nums, ok := v.floats()
		if !ok {
			return nil, false
		}
		return Point{X: nums[0], Y: nums[1]}, true
	case KindRect:
		if len(v) != 4 {
			return nil, false
		}
		nums, ok := v.floats()
		if !ok {
			return nil, false
		}
		return Rect{X: nums[0], Y: nums[1], W: nums[2], H: nums[3]}, true
	}
	return nil, false
}

func (v Vector) floats() ([]float64, bool) {
	nums := make([]float64, len(v))
	for i, item := range v {
		switch n := item.(type) {
		case Int:
			nums[i] = float64(n)
		case Float:
			nums[i] = float64(n)
		case Double:
			nums[i] = float64(n)
		case Fixed:
			nums[i] = n.Float64()
		default:
			return nil, false
		}
	}
	return nums, true
}

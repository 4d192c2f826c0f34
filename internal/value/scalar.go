package value

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Bool is a boolean value
type Bool bool

// Int is a 64-bit signed integer value
type Int int64

// Float is a single-precision value
type Float float32

// Double is a double-precision value
type Double float64

// Fixed is a signed 16.16 fixed-point value
type Fixed int32

// String is a text value
type String string

// Bytes is a raw byte string. Callers must not modify the slice of a
// published value.
type Bytes []byte

// UUID wraps a 16-byte identifier
type UUID uuid.UUID

// Point is a 2D coordinate
type Point struct {
	X, Y float64
}

// Rect is an axis-aligned rectangle
type Rect struct {
	X, Y, W, H float64
}

const fixedOne = 1 << 16

// Interned defaults.
var (
	trueValue   Value = Bool(true)
	falseValue  Value = Bool(false)
	emptyString Value = String("")
	emptyBytes  Value = Bytes{}
	zeroFloat   Value = Float(0)
	zeroDouble  Value = Double(0)
	zeroFixed   Value = Fixed(0)
	nilUUID     Value = UUID(uuid.Nil)
	smallInts         = func() [257]Value {
		var ints [257]Value
		for i := range ints {
			ints[i] = Int(i - 1)
		}
		return ints
	}()
)

// NewBool returns the interned boolean
func NewBool(b bool) Value {
	if b {
		return trueValue
	}
	return falseValue
}

// NewInt returns an integer, interned for -1..255
func NewInt(i int64) Value {
	if i >= -1 && i <= 255 {
		return smallInts[i+1]
	}
	return Int(i)
}

// NewFloat returns a float, interned for zero
func NewFloat(f float32) Value {
	if f == 0 && !math.Signbit(float64(f)) {
		return zeroFloat
	}
	return Float(f)
}

// NewDouble returns a double, interned for zero
func NewDouble(f float64) Value {
	if f == 0 && !math.Signbit(f) {
		return zeroDouble
	}
	return Double(f)
}

// NewFixed converts a float to 16.16 fixed point
func NewFixed(f float64) Value {
	fx := Fixed(math.Round(f * fixedOne))
	if fx == 0 {
		return zeroFixed
	}
	return fx
}

// NewString returns a string, interned when empty
func NewString(s string) Value {
	if s == "" {
		return emptyString
	}
	return String(s)
}

// NewBytes returns a byte string, interned when empty. The slice is not copied.
func NewBytes(b []byte) Value {
	if len(b) == 0 {
		return emptyBytes
	}
	return Bytes(b)
}

// NewUUID returns a UUID value, interned for the nil UUID
func NewUUID(id uuid.UUID) Value {
	if id == uuid.Nil {
		return nilUUID
	}
	return UUID(id)
}

func (b Bool) Kind() *Kind   { return KindBool }
func (i Int) Kind() *Kind    { return KindInt }
func (f Float) Kind() *Kind  { return KindFloat }
func (d Double) Kind() *Kind { return KindDouble }
func (f Fixed) Kind() *Kind  { return KindFixed }
func (s String) Kind() *Kind { return KindString }
func (b Bytes) Kind() *Kind  { return KindBytes }
func (u UUID) Kind() *Kind   { return KindUUID }
func (p Point) Kind() *Kind  { return KindPoint }
func (r Rect) Kind() *Kind   { return KindRect }

func (b Bool) String() string   { return strconv.FormatBool(bool(b)) }
func (i Int) String() string    { return strconv.FormatInt(int64(i), 10) }
func (f Float) String() string  { return strconv.FormatFloat(float64(f), 'g', -1, 32) }
func (d Double) String() string { return strconv.FormatFloat(float64(d), 'g', -1, 64) }
func (f Fixed) String() string  { return strconv.FormatFloat(f.Float64(), 'g', -1, 64) }
func (s String) String() string { return string(s) }
func (b Bytes) String() string  { return fmt.Sprintf("bytes(%d)", len(b)) }
func (u UUID) String() string   { return uuid.UUID(u).String() }
func (p Point) String() string  { return fmt.Sprintf("(%g, %g)", p.X, p.Y) }
func (r Rect) String() string   { return fmt.Sprintf("(%g, %g, %g, %g)", r.X, r.Y, r.W, r.H) }

// Float64 returns the fixed-point value as a float
func (f Fixed) Float64() float64 { return float64(f) / fixedOne }

func (b Bool) Equal(o Value) bool   { v, ok := o.(Bool); return ok && v == b }
func (i Int) Equal(o Value) bool    { v, ok := o.(Int); return ok && v == i }
func (f Float) Equal(o Value) bool  { v, ok := o.(Float); return ok && v == f }
func (d Double) Equal(o Value) bool { v, ok := o.(Double); return ok && v == d }
func (f Fixed) Equal(o Value) bool  { v, ok := o.(Fixed); return ok && v == f }
func (s String) Equal(o Value) bool { v, ok := o.(String); return ok && v == s }
func (b Bytes) Equal(o Value) bool  { v, ok := o.(Bytes); return ok && bytes.Equal(v, b) }
func (u UUID) Equal(o Value) bool   { v, ok := o.(UUID); return ok && v == u }
func (p Point) Equal(o Value) bool  { v, ok := o.(Point); return ok && v == p }
func (r Rect) Equal(o Value) bool   { v, ok := o.(Rect); return ok && v == r }

func (b Bool) convertTo(target *Kind) (Value, bool) {
	switch target {
	case KindInt:
		if b {
			return NewInt(1), true
		}
		return NewInt(0), true
	case KindDouble:
		if b {
			return NewDouble(1), true
		}
		return NewDouble(0), true
	case KindString:
		return NewString(b.String()), true
	}
	return nil, false
}

func (i Int) convertTo(target *Kind) (Value, bool) {
	return numberTo(float64(i), int64(i), target, i.String())
}

func (f Float) convertTo(target *Kind) (Value, bool) {
	return numberTo(float64(f), int64(f), target, f.String())
}

func (d Double) convertTo(target *Kind) (Value, bool) {
	return numberTo(float64(d), int64(d), target, d.String())
}

func (f Fixed) convertTo(target *Kind) (Value, bool) {
	return numberTo(f.Float64(), int64(f.Float64()), target, f.String())
}

func numberTo(f float64, i int64, target *Kind, text string) (Value, bool) {
	switch target {
	case KindBool:
		return NewBool(f != 0), true
	case KindInt:
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return NewInt(i), true
	case KindFloat:
		return NewFloat(float32(f)), true
	case KindDouble:
		return NewDouble(f), true
	case KindFixed:
		if f > math.MaxInt16 || f < math.MinInt16 {
			return nil, false
		}
		return NewFixed(f), true
	case KindString:
		return NewString(text), true
	}
	return nil, false
}

func (s String) convertTo(target *Kind) (Value, bool) {
	text := string(s)
	switch target {
	case KindBool:
		switch text {
		case "true", "1", "yes":
			return NewBool(true), true
		case "false", "0", "no":
			return NewBool(false), true
		}
	case KindInt:
		if i, err := strconv.ParseInt(text, 0, 64); err == nil {
			return NewInt(i), true
		}
	case KindFloat:
		if f, err := strconv.ParseFloat(text, 32); err == nil {
			return NewFloat(float32(f)), true
		}
	case KindDouble:
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return NewDouble(f), true
		}
	case KindFixed:
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return numberTo(f, int64(f), KindFixed, text)
		}
	case KindUUID:
		if id, err := uuid.Parse(text); err == nil {
			return NewUUID(id), true
		}
	case KindBytes:
		return NewBytes([]byte(text)), true
	}
	return nil, false
}

func (b Bytes) convertTo(target *Kind) (Value, bool) {
	if target == KindString && utf8.Valid(b) {
		return NewString(string(b)), true
	}
	return nil, false
}

func (u UUID) convertTo(target *Kind) (Value, bool) {
	switch target {
	case KindString:
		return NewString(u.String()), true
	case KindBytes:
		raw := uuid.UUID(u)
		return NewBytes(raw[:]), true
	}
	return nil, false
}

func (p Point) convertTo(target *Kind) (Value, bool) {
	switch target {
	case KindVector:
		return Vector{NewDouble(p.X), NewDouble(p.Y)}, true
	case KindString:
		return NewString(p.String()), true
	}
	return nil, false
}

func (r Rect) convertTo(target *Kind) (Value, bool) {
	switch target {
	case KindVector:
		return Vector{NewDouble(r.X), NewDouble(r.Y), NewDouble(r.W), NewDouble(r.H)}, true
	case KindString:
		return NewString(r.String()), true
	}
	return nil, false
}

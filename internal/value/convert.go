package value

import "reflect"

// TryConvert converts v to the target kind. It never fails loudly: when no
// conversion path exists it returns false.
//
// Order: v itself when it already has the target kind, then v's own forward
// conversion, then the target kind's backward conversion.
func TryConvert(v Value, target *Kind) (Value, bool) {
	if v == nil || target == nil {
		return nil, false
	}
	if v.Kind() == target {
		return v, true
	}
	if c, ok := v.(converter); ok {
		if out, ok := c.convertTo(target); ok {
			return out, true
		}
	}
	if target.from != nil {
		if out, ok := target.from(v); ok {
			return out, true
		}
	}
	return nil, false
}

// ConvertTo converts v to the kind carried by T, looking the kind up by its
// native type in the default registry.
func ConvertTo[T Value](v Value) (T, bool) {
	var zero T
	if t, ok := v.(T); ok {
		return t, true
	}
	kind, ok := Default().ByNative(reflect.TypeOf((*T)(nil)).Elem())
	if !ok {
		return zero, false
	}
	out, ok := TryConvert(v, kind)
	if !ok {
		return zero, false
	}
	t, ok := out.(T)
	return t, ok
}

// ConvertOr converts v or falls back to def
func ConvertOr[T Value](v Value, def T) T {
	if t, ok := ConvertTo[T](v); ok {
		return t
	}
	return def
}

// Equal compares two values structurally; nil equals only nil.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	return a.Equal(b)
}

// Package nilcheck detects nil values hidden behind interfaces.
package nilcheck

import "reflect"

// Interface reports whether value is nil, or a non-nil interface wrapping a
// nil pointer, map, slice, channel or func.
func Interface(value any) bool {
	if value == nil {
		return true
	}

	switch v := reflect.ValueOf(value); v.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Slice,
		reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}

// Or returns value, or fallback when value is nil in the sense of Interface.
func Or[T any](value, fallback T) T {
	if Interface(value) {
		return fallback
	}

	return value
}

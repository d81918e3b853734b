// Package layering merges typed settings tiers and names the preference tiers
// used by the settings resolver.
package layering

import "reflect"

// MergeLayers composes values ordered from strongest to weakest. Set fields
// (non-nil pointers, maps, slices, non-zero scalars inside structs) of stronger
// layers win; unset ones are filled from weaker layers. Maps merge per key;
// slices are replaced whole.
func MergeLayers[T any](layers ...T) T {
	var zero T
	if len(layers) == 0 {
		return zero
	}
	merged := deepCopy(reflect.ValueOf(layers[len(layers)-1]))
	for i := len(layers) - 2; i >= 0; i-- {
		merged = overlay(reflect.ValueOf(layers[i]), merged)
	}
	return asType[T](merged)
}

// Clone returns a deep copy of value.
func Clone[T any](value T) T {
	return asType[T](deepCopy(reflect.ValueOf(value)))
}

func asType[T any](v reflect.Value) T {
	var zero T
	if !v.IsValid() {
		return zero
	}
	target := reflect.TypeOf(zero)
	if target == nil {
		// T is an interface type.
		out, _ := v.Interface().(T)
		return out
	}
	if v.Type() != target {
		v = v.Convert(target)
	}
	return v.Interface().(T)
}

// overlay returns strong layered on top of weak.
func overlay(strong, weak reflect.Value) reflect.Value {
	if !strong.IsValid() {
		return deepCopy(weak)
	}
	sameType := weak.IsValid() && weak.Type() == strong.Type()

	switch strong.Kind() {
	case reflect.Pointer:
		if strong.IsNil() {
			return deepCopy(weak)
		}
		var weakElem reflect.Value
		if sameType && !weak.IsNil() {
			weakElem = weak.Elem()
		}
		out := reflect.New(strong.Type().Elem())
		out.Elem().Set(overlay(strong.Elem(), weakElem))
		return out
	case reflect.Interface:
		if strong.IsNil() {
			return deepCopy(weak)
		}
		var weakElem reflect.Value
		if sameType && !weak.IsNil() {
			weakElem = weak.Elem()
		}
		merged := overlay(strong.Elem(), weakElem)
		out := reflect.New(strong.Type()).Elem()
		out.Set(merged)
		return out
	case reflect.Struct:
		out := reflect.New(strong.Type()).Elem()
		for i := 0; i < strong.NumField(); i++ {
			field := out.Field(i)
			if !field.CanSet() {
				continue
			}
			var weakField reflect.Value
			if sameType {
				weakField = weak.Field(i)
			}
			strongField := strong.Field(i)
			if strongField.IsZero() && weakField.IsValid() {
				field.Set(deepCopy(weakField))
				continue
			}
			field.Set(overlay(strongField, weakField))
		}
		return out
	case reflect.Map:
		if strong.IsNil() {
			return deepCopy(weak)
		}
		out := reflect.MakeMapWithSize(strong.Type(), strong.Len())
		if sameType && !weak.IsNil() {
			iter := weak.MapRange()
			for iter.Next() {
				out.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
			}
		}
		iter := strong.MapRange()
		for iter.Next() {
			existing := out.MapIndex(iter.Key())
			if existing.IsValid() {
				out.SetMapIndex(iter.Key(), overlay(iter.Value(), existing))
				continue
			}
			out.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}
		return out
	case reflect.Slice:
		if strong.IsNil() {
			return deepCopy(weak)
		}
		return deepCopy(strong)
	default:
		return deepCopy(strong)
	}
}

func deepCopy(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(deepCopy(v.Elem()))
		return out
	case reflect.Interface:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(deepCopy(v.Elem()))
		return out
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if field := out.Field(i); field.CanSet() {
				field.Set(deepCopy(v.Field(i)))
			}
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out
	default:
		// Scalars; a fresh Value so unexported origin flags are dropped.
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		return out
	}
}

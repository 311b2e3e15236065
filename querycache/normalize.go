package querycache

import (
	"encoding/json"
	"reflect"

	"github.com/goliatone/go-query-cache/cache"
)

// Record is a live data record able to expose its plain attributes.
type Record interface {
	Attributes() map[string]any
}

// Normalize converts a database result into plain serializable data:
// nil stays nil, records are flattened to their attributes, sequences keep
// their order with each element normalized, scalars pass through.
func Normalize(raw any) (any, error) {
	return normalizeValue(reflect.ValueOf(raw))
}

func normalizeValue(v reflect.Value) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}

	if v.CanInterface() {
		if r, ok := v.Interface().(Record); ok {
			if v.Kind() == reflect.Pointer && v.IsNil() {
				return nil, nil
			}
			return normalizeValue(reflect.ValueOf(r.Attributes()))
		}
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return normalizeValue(v.Elem())

	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Interface(), nil
		}
		return normalizeList(v)

	case reflect.Array:
		return normalizeList(v)

	case reflect.Map:
		if v.IsNil() {
			return nil, nil
		}
		return normalizeMap(v)

	case reflect.Struct:
		return flatten(v)

	default:
		return v.Interface(), nil
	}
}

func normalizeList(v reflect.Value) (any, error) {
	out := make([]any, v.Len())
	for i := 0; i < v.Len(); i++ {
		item, err := normalizeValue(v.Index(i))
		if err != nil {
			return nil, err
		}
		out[i] = item
	}
	return out, nil
}

func normalizeMap(v reflect.Value) (any, error) {
	if v.Type().Key().Kind() != reflect.String {
		return flatten(v)
	}

	out := make(map[string]any, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		item, err := normalizeValue(iter.Value())
		if err != nil {
			return nil, err
		}
		out[iter.Key().String()] = item
	}
	return out, nil
}

// flatten reduces a struct (or a map with non-string keys) to its JSON form.
// Values with their own JSON encoding, like time.Time, keep it.
func flatten(v reflect.Value) (any, error) {
	data, err := json.Marshal(v.Interface())
	if err != nil {
		return nil, cache.WrapError(err, cache.CategorySerialization, "failed to flatten record")
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, cache.WrapError(err, cache.CategorySerialization, "failed to flatten record")
	}
	return out, nil
}

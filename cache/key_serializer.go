package cache

import (
	"bytes"
	"crypto/sha1"
	"encoding"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/uptrace/bun"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = ":"

// RawSegment and RawMethod replace model and method in raw query keys.
const (
	RawSegment = "__raw__"
	RawMethod  = "query"
)

// CircularMarker is emitted in place of a value already on the traversal path.
const CircularMarker = "[Circular]"

var (
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// DeriveKey computes the cache key for req. Keys are never cached: the request
// is re-read on every call.
//
//	<prefix>:<model>:<method>:<sha1(canonical options)>
//	<prefix>:__raw__:query:<sha1(raw text)>
func DeriveKey(req Request) (string, error) {
	prefix := req.KeyPrefix()

	if req.IsRaw() {
		return strings.Join([]string{prefix, RawSegment, RawMethod, hashHex([]byte(req.RawQuery))}, KeySeparator), nil
	}

	canonical, err := Canonicalize(req.Options)
	if err != nil {
		return "", err
	}

	return strings.Join([]string{prefix, req.Model, req.Method.String(), hashHex(canonical)}, KeySeparator), nil
}

// ModelPrefix returns the key prefix shared by every query cached for model.
func ModelPrefix(prefix, model string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + KeySeparator + model + KeySeparator
}

func hashHex(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

// Canonicalize produces a deterministic JSON rendering of v: map keys and struct
// fields sorted, numbers normalized, model handles and bun connections replaced
// by their names, and cycles cut with CircularMarker.
func Canonicalize(v any) ([]byte, error) {
	c := &canonicalizer{path: make(map[visit]struct{})}
	if err := c.encode(reflect.ValueOf(v)); err != nil {
		return nil, keyDerivationError(err, "failed to canonicalize query options")
	}
	return c.buf.Bytes(), nil
}

type visit struct {
	ptr uintptr
	typ reflect.Type
	n   int
}

// canonicalizer walks a value depth first. path only holds the references on
// the current branch, so shared (non-cyclic) references encode in full.
type canonicalizer struct {
	buf  bytes.Buffer
	path map[visit]struct{}
}

func (c *canonicalizer) encode(rv reflect.Value) error {
	if !rv.IsValid() {
		c.buf.WriteString("null")
		return nil
	}

	if name, ok := substituteName(rv); ok {
		return c.writeJSON(name)
	}

	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			c.buf.WriteString("null")
			return nil
		}
		return c.encode(rv.Elem())

	case reflect.Pointer:
		if rv.IsNil() {
			c.buf.WriteString("null")
			return nil
		}
		if ok, err := c.marshaler(rv); ok || err != nil {
			return err
		}
		return c.enter(visit{ptr: rv.Pointer(), typ: rv.Type()}, func() error {
			return c.encode(rv.Elem())
		})

	case reflect.Map:
		if rv.IsNil() {
			c.buf.WriteString("null")
			return nil
		}
		if ok, err := c.marshaler(rv); ok || err != nil {
			return err
		}
		return c.enter(visit{ptr: rv.Pointer(), typ: rv.Type()}, func() error {
			return c.encodeMap(rv)
		})

	case reflect.Slice:
		if rv.IsNil() {
			c.buf.WriteString("null")
			return nil
		}
		if ok, err := c.marshaler(rv); ok || err != nil {
			return err
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return c.writeJSON(rv.Bytes())
		}
		if rv.Len() == 0 {
			c.buf.WriteString("[]")
			return nil
		}
		return c.enter(visit{ptr: rv.Pointer(), typ: rv.Type(), n: rv.Len()}, func() error {
			return c.encodeList(rv)
		})

	case reflect.Array:
		return c.encodeList(rv)

	case reflect.Struct:
		if ok, err := c.marshaler(rv); ok || err != nil {
			return err
		}
		return c.encodeStruct(rv)

	case reflect.Bool:
		c.buf.WriteString(strconv.FormatBool(rv.Bool()))
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		c.buf.WriteString(strconv.FormatInt(rv.Int(), 10))
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		c.buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return nil

	case reflect.Float32, reflect.Float64:
		// encoding/json prints integral floats without a fraction, so 1 and 1.0 agree.
		return c.writeJSON(rv.Float())

	case reflect.String:
		if ok, err := c.marshaler(rv); ok || err != nil {
			return err
		}
		return c.writeJSON(rv.String())

	case reflect.Func:
		if rv.IsNil() {
			c.buf.WriteString("null")
			return nil
		}
		// Function pointers are stable only within a single process.
		return c.writeJSON(fmt.Sprintf("func:%#x", rv.Pointer()))
	}

	return fmt.Errorf("%w: %s", ErrUnsupportedValue, rv.Type())
}

// enter guards against re-entering a reference already on the current path.
func (c *canonicalizer) enter(v visit, fn func() error) error {
	if _, seen := c.path[v]; seen {
		return c.writeJSON(CircularMarker)
	}
	c.path[v] = struct{}{}
	defer delete(c.path, v)
	return fn()
}

func (c *canonicalizer) encodeList(rv reflect.Value) error {
	c.buf.WriteByte('[')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			c.buf.WriteByte(',')
		}
		if err := c.encode(rv.Index(i)); err != nil {
			return err
		}
	}
	c.buf.WriteByte(']')
	return nil
}

type member struct {
	name  string
	value reflect.Value
}

func (c *canonicalizer) encodeMap(rv reflect.Value) error {
	members := make([]member, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		name, err := mapKeyString(iter.Key())
		if err != nil {
			return err
		}
		members = append(members, member{name: name, value: iter.Value()})
	}
	return c.encodeMembers(members)
}

func (c *canonicalizer) encodeStruct(rv reflect.Value) error {
	rt := rv.Type()
	members := make([]member, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		value := rv.Field(i)
		if tag, ok := field.Tag.Lookup("json"); ok {
			tagName, opts, _ := strings.Cut(tag, ",")
			if tagName == "-" && opts == "" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
			if hasTagOption(opts, "omitempty") && isEmptyValue(value) {
				continue
			}
		}
		members = append(members, member{name: name, value: value})
	}
	return c.encodeMembers(members)
}

// hasTagOption reports whether the comma separated tag options include opt.
func hasTagOption(opts, opt string) bool {
	for opts != "" {
		var name string
		name, opts, _ = strings.Cut(opts, ",")
		if name == opt {
			return true
		}
	}
	return false
}

// isEmptyValue matches the omitempty rule of encoding/json, so a tagged
// struct and the map it marshals to share a key.
func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Pointer:
		return v.IsNil()
	}
	return false
}

func (c *canonicalizer) encodeMembers(members []member) error {
	sort.Slice(members, func(i, j int) bool {
		return members[i].name < members[j].name
	})

	c.buf.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			c.buf.WriteByte(',')
		}
		if err := c.writeJSON(m.name); err != nil {
			return err
		}
		c.buf.WriteByte(':')
		if err := c.encode(m.value); err != nil {
			return err
		}
	}
	c.buf.WriteByte('}')
	return nil
}

// marshaler encodes values that define their own JSON or text form.
func (c *canonicalizer) marshaler(rv reflect.Value) (bool, error) {
	if !rv.CanInterface() {
		return false, nil
	}
	switch {
	case rv.Type().Implements(jsonMarshalerType):
		data, err := rv.Interface().(json.Marshaler).MarshalJSON()
		if err != nil {
			return true, err
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, data); err != nil {
			return true, err
		}
		c.buf.Write(compact.Bytes())
		return true, nil
	case rv.Type().Implements(textMarshalerType):
		text, err := rv.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return true, err
		}
		return true, c.writeJSON(string(text))
	}
	return false, nil
}

func (c *canonicalizer) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
	}
	c.buf.Write(data)
	return nil
}

// substituteName replaces model handles and database connections with their
// names so their (often cyclic) internals never reach the hash.
func substituteName(rv reflect.Value) (string, bool) {
	if !rv.CanInterface() {
		return "", false
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return "", false
		}
	}

	switch v := rv.Interface().(type) {
	case ModelHandle:
		return v.ModelName(), true
	case bun.IDB:
		return v.Dialect().Name().String(), true
	}
	return "", false
}

func mapKeyString(k reflect.Value) (string, error) {
	switch k.Kind() {
	case reflect.String:
		return k.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10), nil
	case reflect.Bool:
		return strconv.FormatBool(k.Bool()), nil
	case reflect.Interface:
		if k.IsNil() {
			return "null", nil
		}
		return mapKeyString(k.Elem())
	}
	if k.CanInterface() && k.Type().Implements(textMarshalerType) {
		text, err := k.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return "", err
		}
		return string(text), nil
	}
	return "", fmt.Errorf("%w: map key %s", ErrUnsupportedValue, k.Type())
}

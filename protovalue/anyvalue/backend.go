// Package anyvalue provides a back end for the protovalue package that
// represents dynamic values as plain Go values: mappings are map[string]any,
// arrays are []any, and scalars are Go strings, booleans and numbers. This is
// the same shape that encoding/json produces when decoding into an any.
//
// When encoding, other Go maps, slices and arrays are also accepted (through
// reflection), as are pointers to supported values and json.Number values.
package anyvalue

import (
	"encoding/json"
	"reflect"
	"sort"
	"strconv"

	"github.com/jhump/protodyn/protovalue"
)

// Backend is the protovalue back end for plain Go values. The zero value is
// ready to use.
type Backend struct{}

var _ protovalue.Backend[any] = Backend{}

// NewConverter returns a converter that produces and consumes plain Go
// values, resolving message types with the given pool.
func NewConverter(pool protovalue.DescriptorPool, opts ...protovalue.ConverterOption) *protovalue.Converter[any] {
	return protovalue.NewConverter[any](pool, Backend{}, opts...)
}

// NewMap implements protovalue.Adapter. Built mappings are map[string]any.
func (Backend) NewMap() protovalue.MapBuilder[any] {
	return &mapBuilder{m: map[string]any{}}
}

// NewArray implements protovalue.Adapter. Built arrays are []any and are
// never nil.
func (Backend) NewArray() protovalue.ArrayBuilder[any] {
	return &arrayBuilder{s: []any{}}
}

// TypeOf implements protovalue.Adapter. Nil pointers, maps and slices are
// considered null.
func (Backend) TypeOf(v any) protovalue.ValueType {
	switch v := indirect(v).(type) {
	case nil:
		return protovalue.ValueNull
	case map[string]any:
		if v == nil {
			return protovalue.ValueNull
		}
		return protovalue.ValueMap
	case []any:
		if v == nil {
			return protovalue.ValueNull
		}
		return protovalue.ValueArray
	case []byte:
		if v == nil {
			return protovalue.ValueNull
		}
		return protovalue.ValueScalar
	case string, bool, json.Number:
		return protovalue.ValueScalar
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return protovalue.ValueNull
		}
		return protovalue.ValueMap
	case reflect.Slice:
		if rv.IsNil() {
			return protovalue.ValueNull
		}
		if isBytes(rv) {
			return protovalue.ValueScalar
		}
		return protovalue.ValueArray
	case reflect.Array:
		return protovalue.ValueArray
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return protovalue.ValueNull
		}
		return protovalue.ValueScalar
	default:
		return protovalue.ValueScalar
	}
}

// MapLen implements protovalue.Adapter.
func (Backend) MapLen(v any) int {
	v = indirect(v)
	if m, ok := v.(map[string]any); ok {
		return len(m)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return 0
	}
	return rv.Len()
}

// RangeMap implements protovalue.Adapter. Entries of a map[string]any are
// visited in key order.
func (b Backend) RangeMap(v any, fn func(key, value any) bool) error {
	v = indirect(v)
	if m, ok := v.(map[string]any); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !fn(k, m[k]) {
				break
			}
		}
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return protovalue.Errorf(protovalue.CodeGetRepeatItemError, "expected a mapping, got %T", v)
	}
	iter := rv.MapRange()
	for iter.Next() {
		if !fn(iter.Key().Interface(), iter.Value().Interface()) {
			break
		}
	}
	return nil
}

// RangeArray implements protovalue.Adapter.
func (Backend) RangeArray(v any, fn func(index int, elem any) bool) error {
	v = indirect(v)
	if s, ok := v.([]any); ok {
		for i, elem := range s {
			if !fn(i, elem) {
				break
			}
		}
		return nil
	}
	rv := reflect.ValueOf(v)
	if (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || isBytes(rv) {
		return protovalue.Errorf(protovalue.CodeGetRepeatItemError, "expected an array, got %T", v)
	}
	for i := 0; i < rv.Len(); i++ {
		if !fn(i, rv.Index(i).Interface()) {
			break
		}
	}
	return nil
}

// KeyString implements protovalue.Adapter. Strings are returned as is;
// numbers and booleans are formatted with strconv.
func (Backend) KeyString(v any) (string, bool) {
	v = indirect(v)
	switch v := v.(type) {
	case string:
		return v, true
	case json.Number:
		return string(v), true
	case bool:
		return strconv.FormatBool(v), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 32), true
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64), true
	default:
		return "", false
	}
}

// FromPbFunctions implements protovalue.Backend.
func (Backend) FromPbFunctions() protovalue.FromPbFunctionMap[any] {
	return fromPbFunctions()
}

// ToPbFunctions implements protovalue.Backend.
func (Backend) ToPbFunctions() protovalue.ToPbFunctionMap[any] {
	return toPbFunctions()
}

type mapBuilder struct {
	m map[string]any
}

func (b *mapBuilder) Set(key string, value any) {
	b.m[key] = value
}

func (b *mapBuilder) Add(key, value any) error {
	k, ok := Backend{}.KeyString(key)
	if !ok {
		return protovalue.Errorf(protovalue.CodeArgTypeError, "mapping key must be a scalar, got %T", key)
	}
	b.m[k] = value
	return nil
}

func (b *mapBuilder) Build() any {
	return b.m
}

type arrayBuilder struct {
	s []any
}

func (b *arrayBuilder) Add(value any) {
	b.s = append(b.s, value)
}

func (b *arrayBuilder) Build() any {
	return b.s
}

// indirect follows pointers until it reaches a non-pointer value. Nil
// pointers become nil.
func indirect(v any) any {
	for {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Pointer {
			return v
		}
		if rv.IsNil() {
			return nil
		}
		v = rv.Elem().Interface()
	}
}

func isBytes(rv reflect.Value) bool {
	return rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8
}

package protovalue_test

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jhump/protodyn/protovalue"
)

func TestToPb_Scalars(t *testing.T) {
	reg := testRegistry(t)
	data := encode(t, reg, "protodyn.test.Scalars", map[string]any{
		"i32":   -12,
		"i64":   json.Number("-1099511627776"),
		"u32":   uint32(4000000000),
		"u64":   uint64(9223372036854775808),
		"s32":   int8(-7),
		"s64":   99.0,
		"f32":   7,
		"f64":   uint16(8),
		"sf32":  int32(-9),
		"sf64":  json.Number("-1e1"),
		"fl":    1.5,
		"db":    float32(2.25),
		"b":     true,
		"str":   "hello",
		"byt":   "AAEC",
		"color": "BLUE",
	}, protovalue.Options{})

	requireWireEqual(t, reg, "protodyn.test.Scalars", `
		i32: -12 i64: -1099511627776 u32: 4000000000 u64: 9223372036854775808
		s32: -7 s64: 99 f32: 7 f64: 8 sf32: -9 sf64: -10
		fl: 1.5 db: 2.25 b: true str: "hello" byt: "\x00\x01\x02" color: BLUE`, data)
}

func TestToPb_RoundTrip(t *testing.T) {
	reg := testRegistry(t)
	testCases := []struct {
		name     string
		typeName string
		value    map[string]any
	}{
		{
			name:     "scalars",
			typeName: "protodyn.test.Scalars",
			value: map[string]any{
				"i32":   int32(-1),
				"i64":   int64(math.MinInt64),
				"u32":   uint32(math.MaxUint32),
				"u64":   uint64(math.MaxUint64),
				"s32":   int32(math.MinInt32),
				"s64":   int64(math.MaxInt64),
				"f32":   uint32(1),
				"f64":   uint64(2),
				"sf32":  int32(3),
				"sf64":  int64(4),
				"fl":    float32(-0.25),
				"db":    1e300,
				"b":     false,
				"str":   "héllo",
				"byt":   []byte("bytes"),
				"color": "RED",
			},
		},
		{
			name:     "collections",
			typeName: "protodyn.test.Collections",
			value: map[string]any{
				"numbers": []any{int32(5), int32(-5), int32(0)},
				"names":   []any{"a", "", "c"},
				"inners": []any{
					map[string]any{"count": int32(1), "label": "one"},
					map[string]any{},
				},
				"counts": map[string]any{"a": int32(1), "b": int32(2)},
				"inner_by_id": map[string]any{
					"-1": map[string]any{"label": "neg"},
					"2":  map[string]any{"count": int32(2)},
				},
				"flags":  map[string]any{"true": "yes", "false": "no"},
				"colors": []any{"GREEN", "COLOR_UNSPECIFIED"},
				"blobs":  map[string]any{"4294967295": []byte{9}},
			},
		},
		{
			name:     "nested",
			typeName: "protodyn.test.Outer",
			value: map[string]any{
				"first_name": "Grace",
				"count":      int32(7),
				"middle": map[string]any{
					"inner":  map[string]any{"count": int32(3), "label": "x"},
					"inners": []any{map[string]any{"label": "y"}},
				},
			},
		},
		{
			name:     "proto3",
			typeName: "protodyn.test3.Event",
			value: map[string]any{
				"name":     "launch",
				"level":    "HIGH",
				"priority": int32(0),
				"tags":     []any{"a", "b"},
				"details": map[string]any{
					"x": map[string]any{"text": "t", "weight": int64(10), "level": "LOW"},
					"y": map[string]any{},
				},
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data := encode(t, reg, tc.typeName, tc.value, protovalue.Options{})
			requireValue(t, tc.value, decode(t, reg, tc.typeName, data, protovalue.Options{}))

			camel := decode(t, reg, tc.typeName, data, protovalue.Options{UseCamelCase: true})
			camelData := encode(t, reg, tc.typeName, camel, protovalue.Options{})
			requireValue(t, tc.value, decode(t, reg, tc.typeName, camelData, protovalue.Options{}))
			requireValue(t, camel, decode(t, reg, tc.typeName, camelData, protovalue.Options{UseCamelCase: true}))
		})
	}
}

func TestToPb_MapShape(t *testing.T) {
	reg := testRegistry(t)
	data := encode(t, reg, "protodyn.test.Collections", map[string]any{
		"counts": map[string]any{"a": 1, "b": 2},
	}, protovalue.Options{})
	requireWireEqual(t, reg, "protodyn.test.Collections", `counts: [{key: "a" value: 1}, {key: "b" value: 2}]`, data)

	val := decode(t, reg, "protodyn.test.Collections", data, protovalue.Options{}).(map[string]any)
	requireValue(t, map[string]any{"a": int32(1), "b": int32(2)}, val["counts"])

	// generic Go maps and slices are accepted too
	data = encode(t, reg, "protodyn.test.Collections", map[string]any{
		"counts":      map[string]int{"c": 3},
		"inner_by_id": map[int64]map[string]any{8: {"count": 8}},
		"numbers":     []int{1, 2},
		"names":       [2]string{"p", "q"},
	}, protovalue.Options{})
	requireWireEqual(t, reg, "protodyn.test.Collections", `
		counts: [{key: "c" value: 3}]
		inner_by_id: [{key: 8 value: {count: 8}}]
		numbers: [1, 2]
		names: ["p", "q"]`, data)
}

func TestToPb_FieldNameResolution(t *testing.T) {
	reg := testRegistry(t)
	data := encode(t, reg, "protodyn.test.Outer", map[string]any{
		"firstName": "by-json-name",
		"middle":    map[string]any{},
	}, protovalue.Options{})
	requireWireEqual(t, reg, "protodyn.test.Outer", `first_name: "by-json-name" middle: {}`, data)

	// unknown keys and null values are ignored
	data = encode(t, reg, "protodyn.test.Outer", map[string]any{
		"count":   int32(1),
		"unknown": "ignored",
		"[nope]":  1,
		"middle":  nil,
	}, protovalue.Options{})
	requireWireEqual(t, reg, "protodyn.test.Outer", `count: 1`, data)
}

func TestToPb_Extensions(t *testing.T) {
	reg := testRegistry(t)
	data := encode(t, reg, "protodyn.test.Outer", map[string]any{
		"first_name":            "ext",
		"[protodyn.test.note]":  "a note",
		"(protodyn.test.tags)":  []any{1, 2},
		"protodyn.test.extra":   map[string]any{"label": "x"},
		"[protodyn.test.Inner]": "not an extension",
	}, protovalue.Options{})

	val := decode(t, reg, "protodyn.test.Outer", data, protovalue.Options{})
	requireValue(t, map[string]any{
		"first_name":           "ext",
		"[protodyn.test.note]": "a note",
		"[protodyn.test.tags]": []any{int32(1), int32(2)},
		"[protodyn.test.extra]": map[string]any{
			"label": "x",
		},
	}, val)

	// decoded extension keys can be encoded again
	again := encode(t, reg, "protodyn.test.Outer", val, protovalue.Options{})
	requireValue(t, val, decode(t, reg, "protodyn.test.Outer", again, protovalue.Options{}))
}

func TestToPb_Attribution(t *testing.T) {
	reg := testRegistry(t)
	_, err := protovalue.ToPb[any](reg, backend, map[string]any{
		"middle": map[string]any{
			"inner": map[string]any{"count": "three"},
		},
	}, "protodyn.test.Outer", protovalue.Options{}, nil)
	require.ErrorIs(t, err, protovalue.ErrArgType)
	require.Equal(t, protovalue.CodeArgTypeError, protovalue.CodeOf(err))
	msg := err.Error()
	require.Equal(t, 1, strings.Count(msg, "Field: "), msg)
	require.Equal(t, 1, strings.Count(msg, "protodyn.test.Inner"), msg)
	require.Contains(t, msg, "Field: count")
	require.NotContains(t, msg, "protodyn.test.Outer")
	require.NotContains(t, msg, "protodyn.test.Middle")

	_, err = protovalue.ToPb[any](reg, backend, map[string]any{
		"inner_by_id": map[string]any{
			"1": map[string]any{"label": 1},
		},
	}, "protodyn.test.Collections", protovalue.Options{}, nil)
	require.ErrorIs(t, err, protovalue.ErrArgType)
	require.Contains(t, err.Error(), "Message Type: protodyn.test.Inner, Field: label")
}

func TestToPb_ShapeErrors(t *testing.T) {
	reg := testRegistry(t)
	testCases := []struct {
		name  string
		value any
		field string
	}{
		{name: "repeated needs array", value: map[string]any{"numbers": 5}, field: "numbers"},
		{name: "repeated needs array not mapping", value: map[string]any{"names": map[string]any{}}, field: "names"},
		{name: "map needs mapping", value: map[string]any{"counts": []any{1}}, field: "counts"},
		{name: "message needs mapping", value: map[string]any{"inners": []any{"x"}}, field: "inners"},
		{name: "bad element", value: map[string]any{"numbers": []any{1, "2"}}, field: "numbers"},
		{name: "bad map key", value: map[string]any{"inner_by_id": map[string]any{"x": map[string]any{}}}, field: "inner_by_id"},
		{name: "bad map value", value: map[string]any{"counts": map[string]any{"a": true}}, field: "counts"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := protovalue.ToPb[any](reg, backend, tc.value, "protodyn.test.Collections", protovalue.Options{}, nil)
			require.ErrorIs(t, err, protovalue.ErrArgType)
			require.Contains(t, err.Error(), "Message Type: protodyn.test.Collections, Field: "+tc.field)
		})
	}

	for _, notMapping := range []any{nil, []any{}, "str", 1} {
		_, err := protovalue.ToPb[any](reg, backend, notMapping, "protodyn.test.Inner", protovalue.Options{}, nil)
		require.ErrorIs(t, err, protovalue.ErrArgType)
	}
}

func TestToPb_ScalarErrors(t *testing.T) {
	reg := testRegistry(t)
	testCases := []struct {
		name  string
		field string
		value any
	}{
		{name: "string for int", field: "i32", value: "5"},
		{name: "fraction for int", field: "i64", value: 1.5},
		{name: "int32 overflow", field: "i32", value: int64(math.MaxInt32) + 1},
		{name: "negative uint", field: "u32", value: -1},
		{name: "uint32 overflow", field: "u32", value: uint64(math.MaxUint32) + 1},
		{name: "float32 overflow", field: "fl", value: math.MaxFloat64},
		{name: "bad float string", field: "db", value: "inf"},
		{name: "string for bool", field: "b", value: "true"},
		{name: "number for string", field: "str", value: 1},
		{name: "json number for string", field: "str", value: json.Number("1")},
		{name: "bad base64", field: "byt", value: "not base64!"},
		{name: "unknown enum name", field: "color", value: "PURPLE"},
		{name: "enum name resembling attribution", field: "color", value: "Field: x"},
		{name: "unknown closed enum number", field: "color", value: 9},
		{name: "bool for enum", field: "color", value: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := protovalue.ToPb[any](reg, backend, map[string]any{tc.field: tc.value}, "protodyn.test.Scalars", protovalue.Options{}, nil)
			require.ErrorIs(t, err, protovalue.ErrArgType)
			require.Contains(t, err.Error(), "Field: "+tc.field)
		})
	}
}

func TestToPb_LenientScalars(t *testing.T) {
	reg := testRegistry(t)
	data := encode(t, reg, "protodyn.test.Scalars", map[string]any{
		"i32":   2.0,
		"u64":   json.Number("1e3"),
		"fl":    "NaN",
		"db":    "-Infinity",
		"byt":   "AAE",
		"color": 2,
	}, protovalue.Options{})
	val := decode(t, reg, "protodyn.test.Scalars", data, protovalue.Options{}).(map[string]any)
	require.Equal(t, int32(2), val["i32"])
	require.Equal(t, uint64(1000), val["u64"])
	require.True(t, math.IsNaN(float64(val["fl"].(float32))))
	require.True(t, math.IsInf(val["db"].(float64), -1))
	require.Equal(t, []byte{0, 1}, val["byt"])
	require.Equal(t, "GREEN", val["color"])

	// open enums accept unknown numbers
	data = encode(t, reg, "protodyn.test3.Detail", map[string]any{"level": 42}, protovalue.Options{})
	requireValue(t, map[string]any{"level": int32(42)}, decode(t, reg, "protodyn.test3.Detail", data, protovalue.Options{}))

	// map keys may be given as strings
	data = encode(t, reg, "protodyn.test.Collections", map[string]any{
		"flags":  map[string]any{"true": "t"},
		"blobs":  map[uint32]any{3: "AQ=="},
		"counts": map[string]any{"1": 1},
	}, protovalue.Options{})
	requireWireEqual(t, reg, "protodyn.test.Collections", `
		flags: [{key: true value: "t"}]
		blobs: [{key: 3 value: "\x01"}]
		counts: [{key: "1" value: 1}]`, data)
}

func TestToPb_RequiredFields(t *testing.T) {
	reg := testRegistry(t)

	data, err := protovalue.ToPb[any](reg, backend, map[string]any{}, "protodyn.test.Inner", protovalue.Options{}, nil)
	require.NoError(t, err)
	require.Empty(t, data)

	_, err = protovalue.ToPb[any](reg, backend, map[string]any{}, "protodyn.test.Required", protovalue.Options{}, nil)
	require.ErrorIs(t, err, protovalue.ErrMissingArg)
	require.Contains(t, err.Error(), "protodyn.test.Required")

	_, err = protovalue.ToPb[any](reg, backend, map[string]any{"count": 1}, "protodyn.test.Required", protovalue.Options{}, nil)
	require.ErrorIs(t, err, protovalue.ErrMissingArg)
	require.Contains(t, err.Error(), "protodyn.test.Required")

	_, err = protovalue.ToPb[any](reg, backend, map[string]any{"req": map[string]any{}}, "protodyn.test.HasRequired", protovalue.Options{}, nil)
	require.ErrorIs(t, err, protovalue.ErrMissingArg)
	require.Contains(t, err.Error(), "Field: req")

	data = encode(t, reg, "protodyn.test.HasRequired", map[string]any{
		"req":   map[string]any{"id": "x"},
		"extra": "unknown keys do not matter",
	}, protovalue.Options{})
	requireWireEqual(t, reg, "protodyn.test.HasRequired", `req: {id: "x"}`, data)
}

func TestToPb_Tolerant(t *testing.T) {
	reg := testRegistry(t)
	input := map[string]any{
		"first_name": 5,
		"count":      3,
		"middle":     map[string]any{"inner": "not a mapping"},
	}

	_, err := protovalue.ToPb[any](reg, backend, input, "protodyn.test.Outer", protovalue.Options{}, nil)
	require.ErrorIs(t, err, protovalue.ErrArgType)

	var warnings protovalue.WarningFields
	data, err := protovalue.ToPb[any](reg, backend, input, "protodyn.test.Outer", protovalue.Options{TolerateOptionalErrors: true}, &warnings)
	require.NoError(t, err)
	requireWireEqual(t, reg, "protodyn.test.Outer", `count: 3 middle: {}`, data)
	require.Equal(t, []string{"protodyn.test.Middle:inner", "protodyn.test.Outer:first_name"}, warnings.List())
	require.True(t, warnings.Has("protodyn.test.Outer:first_name"))

	// a nil sink is allowed
	_, err = protovalue.ToPb[any](reg, backend, input, "protodyn.test.Outer", protovalue.Options{TolerateOptionalErrors: true}, nil)
	require.NoError(t, err)

	// required fields are never skipped
	_, err = protovalue.ToPb[any](reg, backend, map[string]any{"id": 5}, "protodyn.test.Required", protovalue.Options{TolerateOptionalErrors: true}, &warnings)
	require.ErrorIs(t, err, protovalue.ErrArgType)

	// nor are shape errors on repeated fields
	_, err = protovalue.ToPb[any](reg, backend, map[string]any{"numbers": 1}, "protodyn.test.Collections", protovalue.Options{TolerateOptionalErrors: true}, &warnings)
	require.ErrorIs(t, err, protovalue.ErrArgType)
}

func TestToPb_TolerantInsideMapValues(t *testing.T) {
	reg := testRegistry(t)
	var warnings protovalue.WarningFields
	data, err := protovalue.ToPb[any](reg, backend, map[string]any{
		"details": map[string]any{
			"a": map[string]any{"text": 5, "weight": 2},
		},
	}, "protodyn.test3.Event", protovalue.Options{TolerateOptionalErrors: true}, &warnings)
	require.NoError(t, err)
	require.Equal(t, []string{"protodyn.test3.Detail:text"}, warnings.List())

	val := decode(t, reg, "protodyn.test3.Event", data, protovalue.Options{}).(map[string]any)
	requireValue(t, map[string]any{
		"a": map[string]any{"weight": int64(2)},
	}, val["details"])
}

func TestToPb_MaxDepth(t *testing.T) {
	reg := testRegistry(t)
	input := map[string]any{
		"child": map[string]any{
			"child": map[string]any{
				"child": map[string]any{
					"child": map[string]any{"value": 1},
				},
			},
		},
	}
	_, err := protovalue.ToPb[any](reg, backend, input, "protodyn.test.Recursive", protovalue.Options{MaxDepth: 3, TolerateOptionalErrors: true}, nil)
	require.ErrorIs(t, err, protovalue.ErrMessageInfo)

	data := encode(t, reg, "protodyn.test.Recursive", input, protovalue.Options{MaxDepth: 4})
	requireWireEqual(t, reg, "protodyn.test.Recursive", `child { child { child { child { value: 1 } } } }`, data)
}

func TestToPb_Errors(t *testing.T) {
	reg := testRegistry(t)
	_, err := protovalue.ToPb[any](reg, backend, map[string]any{}, "protodyn.test.Nope", protovalue.Options{}, nil)
	require.ErrorIs(t, err, protovalue.ErrMessageNotFound)

	_, err = protovalue.ToPb[any](nil, backend, map[string]any{}, "protodyn.test.Inner", protovalue.Options{}, nil)
	require.ErrorIs(t, err, protovalue.ErrPoolIsNull)
}

package anyvalue_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	prototesting "github.com/jhump/protodyn/internal/testing"
	"github.com/jhump/protodyn/protovalue"
	"github.com/jhump/protodyn/protovalue/anyvalue"
)

func TestTypeOf(t *testing.T) {
	var b anyvalue.Backend
	var nilMap map[string]any
	var nilSlice []any
	var nilPtr *int
	five := 5
	testCases := []struct {
		name     string
		value    any
		expected protovalue.ValueType
	}{
		{name: "nil", value: nil, expected: protovalue.ValueNull},
		{name: "nil map", value: nilMap, expected: protovalue.ValueNull},
		{name: "nil slice", value: nilSlice, expected: protovalue.ValueNull},
		{name: "nil pointer", value: nilPtr, expected: protovalue.ValueNull},
		{name: "nil bytes", value: []byte(nil), expected: protovalue.ValueNull},
		{name: "mapping", value: map[string]any{}, expected: protovalue.ValueMap},
		{name: "other map", value: map[int]string{}, expected: protovalue.ValueMap},
		{name: "array", value: []any{}, expected: protovalue.ValueArray},
		{name: "other slice", value: []string{"a"}, expected: protovalue.ValueArray},
		{name: "go array", value: [2]int{}, expected: protovalue.ValueArray},
		{name: "bytes", value: []byte{}, expected: protovalue.ValueScalar},
		{name: "string", value: "", expected: protovalue.ValueScalar},
		{name: "number", value: json.Number("1"), expected: protovalue.ValueScalar},
		{name: "pointer", value: &five, expected: protovalue.ValueScalar},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, b.TypeOf(tc.value))
		})
	}
}

func TestKeyString(t *testing.T) {
	var b anyvalue.Backend
	for _, tc := range []struct {
		value    any
		expected string
	}{
		{"abc", "abc"},
		{int32(-5), "-5"},
		{uint64(18446744073709551615), "18446744073709551615"},
		{true, "true"},
		{json.Number("12"), "12"},
		{float32(1.5), "1.5"},
	} {
		s, ok := b.KeyString(tc.value)
		require.True(t, ok)
		require.Equal(t, tc.expected, s)
	}
	_, ok := b.KeyString([]any{})
	require.False(t, ok)
	_, ok = b.KeyString(map[string]any{})
	require.False(t, ok)
}

func TestRangeWrongShape(t *testing.T) {
	var b anyvalue.Backend
	err := b.RangeMap([]any{1}, func(_, _ any) bool { return true })
	require.ErrorIs(t, err, protovalue.ErrGetRepeatItem)

	err = b.RangeArray(map[string]any{}, func(int, any) bool { return true })
	require.ErrorIs(t, err, protovalue.ErrGetRepeatItem)

	err = b.RangeArray([]byte("abc"), func(int, any) bool { return true })
	require.ErrorIs(t, err, protovalue.ErrGetRepeatItem)
}

func TestRangeMapIsSorted(t *testing.T) {
	var b anyvalue.Backend
	var keys []string
	require.NoError(t, b.RangeMap(map[string]any{"c": 1, "a": 2, "b": 3}, func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	}))
	require.Equal(t, []string{"a", "b", "c"}, keys)
	require.Equal(t, 3, b.MapLen(map[string]any{"c": 1, "a": 2, "b": 3}))
	require.Equal(t, 1, b.MapLen(map[int]int{1: 1}))
	require.Equal(t, 0, b.MapLen("x"))
}

func TestBuilders(t *testing.T) {
	var b anyvalue.Backend
	mb := b.NewMap()
	mb.Set("a", 1)
	require.NoError(t, mb.Add(int64(2), "two"))
	require.Error(t, mb.Add([]any{}, "bad"))
	require.Equal(t, map[string]any{"a": 1, "2": "two"}, mb.Build())

	ab := b.NewArray()
	require.Equal(t, []any{}, ab.Build())
	ab.Add("x")
	require.Equal(t, []any{"x"}, ab.Build())
}

func TestJSONRoundTrip(t *testing.T) {
	// values produced by encoding/json, with numbers preserved as json.Number
	reg := prototesting.Registry(t)
	conv := anyvalue.NewConverter(reg)
	input := `{
		"name": "deploy",
		"level": "HIGH",
		"priority": 3,
		"tags": ["a", "b"],
		"details": {"x": {"text": "t", "weight": 9007199254740993}}
	}`
	var obj any
	dec := json.NewDecoder(strings.NewReader(input))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&obj))

	data, err := conv.Encode(obj, "protodyn.test3.Event", protovalue.Options{}, nil)
	require.NoError(t, err)
	val, err := conv.Decode(protovalue.PBInfo{Type: "protodyn.test3.Event", Data: data}, protovalue.Options{})
	require.NoError(t, err)

	expected := map[string]any{
		"name":     "deploy",
		"level":    "HIGH",
		"priority": int32(3),
		"tags":     []any{"a", "b"},
		"details": map[string]any{
			"x": map[string]any{"text": "t", "weight": int64(9007199254740993)},
		},
	}
	if diff := cmp.Diff(expected, val); diff != "" {
		t.Errorf("unexpected value (-want +got):\n%s", diff)
	}
}

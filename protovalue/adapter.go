package protovalue

import (
	"google.golang.org/protobuf/reflect/protoreflect"
)

// ValueType is the shape of a dynamic value.
type ValueType int

// The shapes a dynamic value may have.
const (
	ValueNull ValueType = iota
	ValueScalar
	ValueArray
	ValueMap
)

func (t ValueType) String() string {
	switch t {
	case ValueNull:
		return "null"
	case ValueScalar:
		return "scalar"
	case ValueArray:
		return "array"
	case ValueMap:
		return "mapping"
	default:
		return "unknown"
	}
}

// MapBuilder accumulates the entries of a new mapping value.
type MapBuilder[V any] interface {
	// Set adds an entry with the given string key.
	Set(key string, value V)
	// Add adds an entry whose key is itself a dynamic value, such as a
	// decoded map key.
	Add(key, value V) error
	// Build returns the accumulated mapping.
	Build() V
}

// ArrayBuilder accumulates the elements of a new array value.
type ArrayBuilder[V any] interface {
	Add(value V)
	Build() V
}

// Adapter is the capability contract of a dynamic value representation.
type Adapter[V any] interface {
	// NewMap returns a builder for an empty mapping.
	NewMap() MapBuilder[V]
	// NewArray returns a builder for an empty array.
	NewArray() ArrayBuilder[V]
	// TypeOf reports the shape of the given value.
	TypeOf(v V) ValueType
	// MapLen returns the number of entries in the given mapping.
	MapLen(v V) int
	// RangeMap calls fn for each entry of the given mapping, in no particular
	// order, until fn returns false. It returns an error if v is not a
	// mapping.
	RangeMap(v V, fn func(key, value V) bool) error
	// RangeArray calls fn for each element of the given array, in order,
	// until fn returns false. It returns an error if v is not an array.
	RangeArray(v V, fn func(index int, elem V) bool) error
	// KeyString returns the textual form of a scalar value, as used for
	// mapping keys and field names. It returns false if v is not a scalar.
	KeyString(v V) (string, bool)
}

// Backend is a complete dynamic value representation: the adapter plus the
// two scalar conversion tables. The engines are written against this
// interface only.
type Backend[V any] interface {
	Adapter[V]
	// FromPbFunctions returns the table used to decode scalar fields.
	FromPbFunctions() FromPbFunctionMap[V]
	// ToPbFunctions returns the table used to encode scalar fields.
	ToPbFunctions() ToPbFunctionMap[V]
}

// DescriptorPool resolves message type names into descriptors. Pools are
// expected to be fully populated before any conversion and to be safe for
// concurrent reads.
type DescriptorPool interface {
	FindMessageByName(name protoreflect.FullName) (protoreflect.MessageDescriptor, error)
}

// ExtensionResolver is an optional interface that a DescriptorPool may
// implement so that extension fields can be encoded and decoded.
type ExtensionResolver interface {
	FindExtensionByName(name protoreflect.FullName) (protoreflect.ExtensionDescriptor, error)
	FindExtensionByNumber(message protoreflect.FullName, number protoreflect.FieldNumber) (protoreflect.ExtensionDescriptor, error)
}

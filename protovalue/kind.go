package protovalue

import (
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// Kind is the conversion category of a field. Protobuf has several wire
// encodings for the same in-memory type (int32, sint32 and sfixed32 are all
// int32 values, for example); Kind folds those together so that a back end
// only provides one conversion per in-memory representation.
type Kind int

// The kinds that a back end's conversion tables must cover. KindMessage is
// handled by the engines themselves and never looked up in a table.
const (
	KindInvalid Kind = iota
	KindInt32
	KindInt64
	KindUint32
	KindUint64
	KindFloat
	KindDouble
	KindBool
	KindString
	KindBytes
	KindEnum
	KindMessage
)

// ScalarKinds is the closed set of kinds that a complete back end provides
// conversion functions for.
var ScalarKinds = []Kind{
	KindInt32, KindInt64, KindUint32, KindUint64, KindFloat,
	KindDouble, KindBool, KindString, KindBytes, KindEnum,
}

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindUint32:
		return "uint32"
	case KindUint64:
		return "uint64"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindEnum:
		return "enum"
	case KindMessage:
		return "message"
	default:
		return fmt.Sprintf("invalid kind (%d)", int(k))
	}
}

// KindOf returns the conversion kind for the given field. For map fields,
// this is KindMessage since the field's elements are map entries.
func KindOf(fd protoreflect.FieldDescriptor) Kind {
	switch fd.Kind() {
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return KindInt32
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return KindInt64
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return KindUint32
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return KindUint64
	case protoreflect.FloatKind:
		return KindFloat
	case protoreflect.DoubleKind:
		return KindDouble
	case protoreflect.BoolKind:
		return KindBool
	case protoreflect.StringKind:
		return KindString
	case protoreflect.BytesKind:
		return KindBytes
	case protoreflect.EnumKind:
		return KindEnum
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return KindMessage
	default:
		return KindInvalid
	}
}

// FromPbFunc converts the field (or list element) identified by the given
// context into a dynamic value.
type FromPbFunc[V any] func(ctx *Context) (V, error)

// ToPbFunc converts the given dynamic value and stores it into the field (or
// appends it to the list) identified by the given context.
type ToPbFunc[V any] func(val V, ctx *Context) error

// FromPbFunctionMap is a dispatch table of decode functions keyed by kind.
// Tables are built once and must not be modified afterwards.
type FromPbFunctionMap[V any] map[Kind]FromPbFunc[V]

// ToPbFunctionMap is a dispatch table of encode functions keyed by kind.
// Tables are built once and must not be modified afterwards.
type ToPbFunctionMap[V any] map[Kind]ToPbFunc[V]

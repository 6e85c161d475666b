package protovalue

import (
	"sort"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// PBInfo is a binary message along with the name of its type.
type PBInfo struct {
	// Type is the fully-qualified name of the message type.
	Type string
	// Data is the message in the protobuf binary format.
	Data []byte
}

func (e *engine[V]) decode(info PBInfo) (V, error) {
	var zero V
	md, err := e.findMessage(info.Type)
	if err != nil {
		return zero, err
	}
	msg := dynamicpb.NewMessage(md)
	opts := proto.UnmarshalOptions{Resolver: e.extensionTypes()}
	if err := opts.Unmarshal(info.Data, msg); err != nil {
		return zero, wrapError(CodeParseError, err, "Message Type: %s, %v", info.Type, err)
	}
	return e.fromMessage(msg, 0)
}

func (e *engine[V]) create(typeName string) (V, error) {
	var zero V
	md, err := e.findMessage(typeName)
	if err != nil {
		return zero, err
	}
	return e.fromMessage(dynamicpb.NewMessage(md), 0)
}

// fromMessage converts every field of msg into one mapping entry. Declared
// fields come first, in declaration order, followed by set extensions in
// field number order.
func (e *engine[V]) fromMessage(msg protoreflect.Message, depth int) (V, error) {
	var zero V
	md := msg.Descriptor()
	if depth > e.opts.maxDepth() {
		return zero, Errorf(CodeMessageInfoError, "Message Type: %s is nested more than %d levels deep", md.FullName(), e.opts.maxDepth())
	}
	result := e.backend.NewMap()
	fields := md.Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if omitOnDecode(msg, fd) {
			continue
		}
		val, err := e.fromField(msg, fd, depth)
		if err != nil {
			return zero, withFieldInfo(err, fieldLabel(fd), string(md.FullName()))
		}
		result.Set(e.keyFor(fd), val)
	}

	var exts []protoreflect.FieldDescriptor
	msg.Range(func(fd protoreflect.FieldDescriptor, _ protoreflect.Value) bool {
		if fd.IsExtension() {
			exts = append(exts, fd)
		}
		return true
	})
	sort.Slice(exts, func(i, j int) bool {
		return exts[i].Number() < exts[j].Number()
	})
	for _, fd := range exts {
		val, err := e.fromField(msg, fd, depth)
		if err != nil {
			return zero, withFieldInfo(err, fieldLabel(fd), string(md.FullName()))
		}
		result.Set(fieldLabel(fd), val)
	}
	return result.Build(), nil
}

// omitOnDecode returns true for singular fields that are not present and
// have no declared default. Required fields are always emitted, as are
// repeated and map fields, even when empty. Members of a oneof are only
// emitted when set, since at most one of them can be encoded back.
func omitOnDecode(msg protoreflect.Message, fd protoreflect.FieldDescriptor) bool {
	if fd.IsList() || fd.IsMap() || msg.Has(fd) {
		return false
	}
	if oo := fd.ContainingOneof(); oo != nil && !oo.IsSynthetic() {
		return true
	}
	return fd.Cardinality() != protoreflect.Required && !fd.HasDefault()
}

func (e *engine[V]) keyFor(fd protoreflect.FieldDescriptor) string {
	if e.opts.UseCamelCase {
		return fd.JSONName()
	}
	return string(fd.Name())
}

func (e *engine[V]) fromField(msg protoreflect.Message, fd protoreflect.FieldDescriptor, depth int) (V, error) {
	switch {
	case fd.IsMap():
		return e.fromMap(msg, fd, depth)
	case fd.IsList():
		return e.fromList(msg, fd, depth)
	case fd.Message() != nil:
		return e.fromMessage(msg.Get(fd).Message(), depth+1)
	default:
		return e.fromScalar(newContext(msg, fd, e.opts, nil))
	}
}

func (e *engine[V]) fromList(msg protoreflect.Message, fd protoreflect.FieldDescriptor, depth int) (V, error) {
	var zero V
	list := msg.Get(fd).List()
	arr := e.backend.NewArray()
	for i := 0; i < list.Len(); i++ {
		var val V
		var err error
		if fd.Message() != nil {
			val, err = e.fromMessage(list.Get(i).Message(), depth+1)
		} else {
			ctx := newContext(msg, fd, e.opts, nil)
			ctx.Index = i
			val, err = e.fromScalar(ctx)
		}
		if err != nil {
			return zero, err
		}
		arr.Add(val)
	}
	return arr.Build(), nil
}

// fromMap converts a map field. Each entry is copied into a map entry message
// so that its key and value can be converted like any other field.
func (e *engine[V]) fromMap(msg protoreflect.Message, fd protoreflect.FieldDescriptor, depth int) (V, error) {
	var zero V
	m := msg.Get(fd).Map()
	keyFd, valFd := fd.MapKey(), fd.MapValue()
	result := e.backend.NewMap()
	for _, k := range sortedMapKeys(m) {
		entry := dynamicpb.NewMessage(fd.Message())
		entry.Set(keyFd, k.Value())
		entry.Set(valFd, m.Get(k))
		key, val, err := e.fromMapEntry(entry, keyFd, valFd, depth)
		if err != nil {
			return zero, err
		}
		if err := result.Add(key, val); err != nil {
			return zero, err
		}
	}
	return result.Build(), nil
}

func (e *engine[V]) fromMapEntry(entry protoreflect.Message, keyFd, valFd protoreflect.FieldDescriptor, depth int) (key, val V, err error) {
	key, err = e.fromScalar(newContext(entry, keyFd, e.opts, nil))
	if err != nil {
		return key, val, err
	}
	if valFd.Message() != nil {
		val, err = e.fromMessage(entry.Get(valFd).Message(), depth+1)
	} else {
		val, err = e.fromScalar(newContext(entry, valFd, e.opts, nil))
	}
	return key, val, err
}

func (e *engine[V]) fromScalar(ctx *Context) (V, error) {
	fn := e.fromPb[ctx.Kind()]
	if fn == nil {
		var zero V
		e.logger.Error("no decode function for field kind", "kind", ctx.Kind(), "field", ctx.Field.FullName())
		return zero, Errorf(CodeNoConvertFunction, "kind: %v", ctx.Kind())
	}
	return fn(ctx)
}

func sortedMapKeys(m protoreflect.Map) []protoreflect.MapKey {
	keys := make([]protoreflect.MapKey, 0, m.Len())
	m.Range(func(k protoreflect.MapKey, _ protoreflect.Value) bool {
		keys = append(keys, k)
		return true
	})
	sort.Slice(keys, func(i, j int) bool {
		return lessMapKey(keys[i], keys[j])
	})
	return keys
}

func lessMapKey(a, b protoreflect.MapKey) bool {
	switch a.Interface().(type) {
	case bool:
		return !a.Bool() && b.Bool()
	case int32, int64:
		return a.Int() < b.Int()
	case uint32, uint64:
		return a.Uint() < b.Uint()
	case string:
		return a.String() < b.String()
	default:
		return false
	}
}

package protovalue

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

func (e *engine[V]) encode(obj V, typeName string) ([]byte, error) {
	md, err := e.findMessage(typeName)
	if err != nil {
		return nil, err
	}
	msg := dynamicpb.NewMessage(md)
	if err := e.toMessage(obj, msg, 0); err != nil {
		return nil, err
	}
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(msg)
	if err != nil {
		return nil, wrapError(CodeFailed, err, "Message Type: %s, %v", typeName, err)
	}
	return data, nil
}

// toMessage sets the fields of msg from the entries of obj, which must be a
// mapping.
func (e *engine[V]) toMessage(obj V, msg protoreflect.Message, depth int) error {
	md := msg.Descriptor()
	if depth > e.opts.maxDepth() {
		return Errorf(CodeMessageInfoError, "Message Type: %s is nested more than %d levels deep", md.FullName(), e.opts.maxDepth())
	}
	if t := e.backend.TypeOf(obj); t != ValueMap {
		return Errorf(CodeArgTypeError, "Message Type: %s expects a mapping, got %v", md.FullName(), t)
	}
	if e.backend.MapLen(obj) == 0 {
		return checkInitialized(msg)
	}

	var err error
	rangeErr := e.backend.RangeMap(obj, func(key, val V) bool {
		if e.backend.TypeOf(key) == ValueNull || e.backend.TypeOf(val) == ValueNull {
			return true
		}
		name, ok := e.backend.KeyString(key)
		if !ok {
			e.logger.Trace("skipping non-scalar key", "message", md.FullName())
			return true
		}
		fd := e.findField(md, name)
		if fd == nil {
			e.logger.Trace("skipping unknown key", "message", md.FullName(), "key", name)
			return true
		}
		err = e.toField(val, msg, fd, depth)
		return err == nil
	})
	if rangeErr != nil {
		return rangeErr
	}
	if err != nil {
		return err
	}
	return checkInitialized(msg)
}

func checkInitialized(msg protoreflect.Message) error {
	if err := proto.CheckInitialized(msg.Interface()); err != nil {
		return wrapError(CodeMissingArg, err, "%v (Message Type: %s)", err, msg.Descriptor().FullName())
	}
	return nil
}

// findField resolves a mapping key into a field of md. The declared name is
// tried first, then the name of a known extension, then the JSON name.
func (e *engine[V]) findField(md protoreflect.MessageDescriptor, name string) protoreflect.FieldDescriptor {
	if fd := md.Fields().ByName(protoreflect.Name(name)); fd != nil {
		return fd
	}
	if xtd := e.findExtension(md, name); xtd != nil {
		return xtd
	}
	fields := md.Fields()
	for i := 0; i < fields.Len(); i++ {
		if fd := fields.Get(i); fd.JSONName() == name {
			return fd
		}
	}
	return nil
}

func (e *engine[V]) toField(val V, msg protoreflect.Message, fd protoreflect.FieldDescriptor, depth int) error {
	md := msg.Descriptor()
	var err error
	switch {
	case fd.IsMap():
		err = e.toMap(val, msg, fd, depth)
	case fd.IsList():
		err = e.toList(val, msg, fd, depth)
	default:
		err = e.toSingular(val, msg, fd, depth)
		if err != nil && e.tolerates(fd, err) {
			msg.Clear(fd)
			e.warnings.Add(md.FullName(), protoreflect.Name(fieldLabel(fd)))
			e.logger.Warn("skipping optional field that could not be converted",
				"message", md.FullName(), "field", fieldLabel(fd), "error", err)
			return nil
		}
	}
	return withFieldInfo(err, fieldLabel(fd), string(md.FullName()))
}

// tolerates returns true if a failure to convert the given field can be
// skipped. Missing conversion functions and depth violations are never
// tolerated.
func (e *engine[V]) tolerates(fd protoreflect.FieldDescriptor, err error) bool {
	if !e.opts.TolerateOptionalErrors || fd.Cardinality() == protoreflect.Required {
		return false
	}
	switch CodeOf(err) {
	case CodeNoConvertFunction, CodeMessageInfoError:
		return false
	default:
		return true
	}
}

func (e *engine[V]) toSingular(val V, msg protoreflect.Message, fd protoreflect.FieldDescriptor, depth int) error {
	if fd.Message() != nil {
		return e.toMessage(val, msg.Mutable(fd).Message(), depth+1)
	}
	return e.toScalar(val, newContext(msg, fd, e.opts, e.warnings))
}

func (e *engine[V]) toList(val V, msg protoreflect.Message, fd protoreflect.FieldDescriptor, depth int) error {
	if t := e.backend.TypeOf(val); t != ValueArray {
		return Errorf(CodeArgTypeError, "repeated field %s expects an array, got %v", fd.FullName(), t)
	}
	list := msg.Mutable(fd).List()
	var err error
	rangeErr := e.backend.RangeArray(val, func(_ int, elem V) bool {
		if fd.Message() != nil {
			sub := list.NewElement()
			if err = e.toMessage(elem, sub.Message(), depth+1); err != nil {
				return false
			}
			list.Append(sub)
			return true
		}
		ctx := newContext(msg, fd, e.opts, e.warnings)
		ctx.Index = list.Len()
		err = e.toScalar(elem, ctx)
		return err == nil
	})
	if rangeErr != nil {
		return rangeErr
	}
	return err
}

// toMap fills a map field. Each entry is first built as a map entry message
// so that its key and value are converted like any other field.
func (e *engine[V]) toMap(val V, msg protoreflect.Message, fd protoreflect.FieldDescriptor, depth int) error {
	if t := e.backend.TypeOf(val); t != ValueMap {
		return Errorf(CodeArgTypeError, "map field %s expects a mapping, got %v", fd.FullName(), t)
	}
	m := msg.Mutable(fd).Map()
	keyFd, valFd := fd.MapKey(), fd.MapValue()
	var err error
	rangeErr := e.backend.RangeMap(val, func(k, v V) bool {
		if e.backend.TypeOf(k) == ValueNull || e.backend.TypeOf(v) == ValueNull {
			return true
		}
		entry := dynamicpb.NewMessage(fd.Message())
		if err = e.toMapEntry(k, v, entry, keyFd, valFd, depth); err != nil {
			return false
		}
		m.Set(entry.Get(keyFd).MapKey(), entry.Get(valFd))
		return true
	})
	if rangeErr != nil {
		return rangeErr
	}
	return err
}

func (e *engine[V]) toMapEntry(key, val V, entry protoreflect.Message, keyFd, valFd protoreflect.FieldDescriptor, depth int) error {
	if err := e.toScalar(key, newContext(entry, keyFd, e.opts, e.warnings)); err != nil {
		return err
	}
	if valFd.Message() != nil {
		return e.toMessage(val, entry.Mutable(valFd).Message(), depth+1)
	}
	return e.toScalar(val, newContext(entry, valFd, e.opts, e.warnings))
}

func (e *engine[V]) toScalar(val V, ctx *Context) error {
	fn := e.toPb[ctx.Kind()]
	if fn == nil {
		e.logger.Error("no encode function for field kind", "kind", ctx.Kind(), "field", ctx.Field.FullName())
		return Errorf(CodeNoConvertFunction, "kind: %v", ctx.Kind())
	}
	return fn(val, ctx)
}

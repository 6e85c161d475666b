package protovalue

import (
	"errors"
	"strings"

	"github.com/hashicorp/go-hclog"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Converter converts between binary protobuf messages and dynamic values of
// type V, resolving message types with a descriptor pool. A Converter is safe
// for concurrent use as long as its pool is.
type Converter[V any] struct {
	pool    DescriptorPool
	backend Backend[V]
	logger  hclog.Logger
}

// ConverterOption configures a Converter.
type ConverterOption func(*converterOptions)

type converterOptions struct {
	logger hclog.Logger
}

// WithLogger sets the logger used to report skipped keys, tolerated failures
// and missing conversion functions. By default nothing is logged.
func WithLogger(logger hclog.Logger) ConverterOption {
	return func(opts *converterOptions) {
		opts.logger = logger
	}
}

// NewConverter returns a converter that resolves types using the given pool
// and represents dynamic values with the given back end.
func NewConverter[V any](pool DescriptorPool, backend Backend[V], opts ...ConverterOption) *Converter[V] {
	var options converterOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = hclog.NewNullLogger()
	}
	return &Converter[V]{
		pool:    pool,
		backend: backend,
		logger:  options.logger.Named("protovalue"),
	}
}

// Decode parses the given binary message and converts it into a dynamic
// value. See FromPb.
func (c *Converter[V]) Decode(info PBInfo, opts Options) (V, error) {
	return c.newEngine(opts, nil).decode(info)
}

// Create converts a default instance of the named message type into a
// dynamic value. See FromDefaultPb.
func (c *Converter[V]) Create(typeName string, opts Options) (V, error) {
	return c.newEngine(opts, nil).create(typeName)
}

// Encode converts the given dynamic value into a binary message of the named
// type. See ToPb.
func (c *Converter[V]) Encode(obj V, typeName string, opts Options, warnings *WarningFields) ([]byte, error) {
	return c.newEngine(opts, warnings).encode(obj, typeName)
}

func (c *Converter[V]) newEngine(opts Options, warnings *WarningFields) *engine[V] {
	e := &engine[V]{
		pool:     c.pool,
		backend:  c.backend,
		opts:     opts,
		logger:   c.logger,
		warnings: warnings,
	}
	if c.backend != nil {
		e.fromPb = c.backend.FromPbFunctions()
		e.toPb = c.backend.ToPbFunctions()
	}
	return e
}

// engine holds the state of a single conversion.
type engine[V any] struct {
	pool     DescriptorPool
	backend  Backend[V]
	opts     Options
	logger   hclog.Logger
	warnings *WarningFields
	fromPb   FromPbFunctionMap[V]
	toPb     ToPbFunctionMap[V]
}

func (e *engine[V]) findMessage(typeName string) (protoreflect.MessageDescriptor, error) {
	if e.pool == nil {
		return nil, Errorf(CodePoolIsNull, "Message Type: %s", typeName)
	}
	if e.backend == nil {
		return nil, Errorf(CodeMissingArg, "no value back end configured")
	}
	if typeName == "" {
		return nil, Errorf(CodeMissingArg, "message type name is empty")
	}
	md, err := e.pool.FindMessageByName(protoreflect.FullName(typeName))
	if err != nil || md == nil {
		e.logger.Debug("message type not found", "type", typeName, "error", err)
		return nil, wrapError(CodeMessageNotFound, err, "Message Type: %s", typeName)
	}
	return md, nil
}

// findExtension resolves name, which may be enclosed in parentheses or
// brackets, into an extension of the given message. It returns nil if the
// pool cannot resolve extensions or if no such extension exists.
func (e *engine[V]) findExtension(md protoreflect.MessageDescriptor, name string) protoreflect.ExtensionTypeDescriptor {
	res, ok := e.pool.(ExtensionResolver)
	if !ok || md.ExtensionRanges().Len() == 0 {
		return nil
	}
	switch {
	case strings.HasPrefix(name, "(") && strings.HasSuffix(name, ")"),
		strings.HasPrefix(name, "[") && strings.HasSuffix(name, "]"):
		name = name[1 : len(name)-1]
	}
	xd, err := res.FindExtensionByName(protoreflect.FullName(name))
	if err != nil || xd == nil || xd.ContainingMessage().FullName() != md.FullName() {
		return nil
	}
	return extensionTypeDescriptor(xd)
}

// extensionTypes returns the resolver used when parsing binary messages. If
// the pool cannot resolve extensions, extensions are kept as unknown fields.
func (e *engine[V]) extensionTypes() extensionTypeResolver {
	res, ok := e.pool.(ExtensionResolver)
	if !ok {
		return extensionTypeResolver{}
	}
	return extensionTypeResolver{res: res}
}

func extensionTypeDescriptor(xd protoreflect.ExtensionDescriptor) protoreflect.ExtensionTypeDescriptor {
	if xtd, ok := xd.(protoreflect.ExtensionTypeDescriptor); ok {
		return xtd
	}
	return dynamicpb.NewExtensionType(xd).TypeDescriptor()
}

// extensionTypeResolver adapts an ExtensionResolver to the interface needed
// by proto.UnmarshalOptions.
type extensionTypeResolver struct {
	res ExtensionResolver
}

func (r extensionTypeResolver) FindExtensionByName(field protoreflect.FullName) (protoreflect.ExtensionType, error) {
	if r.res == nil {
		return nil, protoregistry.NotFound
	}
	xd, err := r.res.FindExtensionByName(field)
	if err != nil {
		return nil, normalizeNotFound(err)
	}
	return extensionTypeDescriptor(xd).Type(), nil
}

func (r extensionTypeResolver) FindExtensionByNumber(message protoreflect.FullName, field protoreflect.FieldNumber) (protoreflect.ExtensionType, error) {
	if r.res == nil {
		return nil, protoregistry.NotFound
	}
	xd, err := r.res.FindExtensionByNumber(message, field)
	if err != nil {
		return nil, normalizeNotFound(err)
	}
	return extensionTypeDescriptor(xd).Type(), nil
}

// normalizeNotFound returns protoregistry.NotFound itself for any error that
// wraps it, since the protobuf runtime compares resolver errors by identity.
func normalizeNotFound(err error) error {
	if errors.Is(err, protoregistry.NotFound) {
		return protoregistry.NotFound
	}
	return err
}

// fieldLabel is the name used for a field in attribution and warnings.
func fieldLabel(fd protoreflect.FieldDescriptor) string {
	if fd.IsExtension() {
		return "[" + string(fd.FullName()) + "]"
	}
	return string(fd.Name())
}

// FromPb parses info.Data as a message of type info.Type and converts it into
// a dynamic value using the given back end. Nothing is logged.
func FromPb[V any](pool DescriptorPool, backend Backend[V], info PBInfo, opts Options) (V, error) {
	return NewConverter(pool, backend).Decode(info, opts)
}

// FromDefaultPb converts a default instance of the named message type into a
// dynamic value using the given back end. Nothing is logged.
func FromDefaultPb[V any](pool DescriptorPool, backend Backend[V], typeName string, opts Options) (V, error) {
	return NewConverter(pool, backend).Create(typeName, opts)
}

// ToPb converts obj, which must be a mapping, into a binary message of the
// named type using the given back end. Optional fields that were skipped
// under Options.TolerateOptionalErrors are recorded in warnings, which may be
// nil. Nothing is logged.
func ToPb[V any](pool DescriptorPool, backend Backend[V], obj V, typeName string, opts Options, warnings *WarningFields) ([]byte, error) {
	return NewConverter(pool, backend).Encode(obj, typeName, opts, warnings)
}

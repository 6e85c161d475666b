package protovalue

// DefaultMaxDepth is the message nesting depth allowed when Options.MaxDepth
// is not set. It matches the default recursion limit of the C++ protobuf
// runtime.
const DefaultMaxDepth = 100

// Options control a single decode or encode operation.
type Options struct {
	// UseCamelCase causes decoded mappings to be keyed by each field's JSON
	// name instead of its declared name. Encoding always accepts both.
	UseCamelCase bool
	// UseEnumNumbers causes enum values to be decoded as their numeric
	// values instead of their names.
	UseEnumNumbers bool
	// TolerateOptionalErrors changes how encoding handles a value that cannot
	// be converted for a singular field that is not required: instead of
	// failing, the field is left unset and recorded in the warning sink.
	TolerateOptionalErrors bool
	// MaxDepth bounds how deeply nested messages may be. If zero,
	// DefaultMaxDepth is used.
	MaxDepth int
}

func (o Options) maxDepth() int {
	if o.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}

// Package protovalue converts between binary Protobuf messages and generic,
// dynamically-typed values (trees of mappings, arrays and scalars, similar to
// what a JSON decoder produces) using only runtime descriptors. No generated
// code is needed for the message types involved.
//
// The conversion engines are written once, against the Backend interface. A
// back end describes one representation of dynamic values: how to build and
// inspect mappings and arrays (the Adapter), plus two dispatch tables keyed by
// Kind that convert individual scalar fields in each direction. This module
// includes two back ends:
//   - anyvalue: plain Go values (map[string]any, []any, and Go scalars).
//   - yamlvalue: *yaml.Node trees from gopkg.in/yaml.v3.
//
// Message types are resolved with a DescriptorPool. The Registry type in the
// protoresolve package and the Client type in the grpcreflect package both
// implement it. If the pool also implements ExtensionResolver, extension
// fields are converted too; their mapping keys are the extension's full name
// in brackets, like "[foo.bar.baz]".
//
// All failures are reported as *Error values, which carry a Code. Errors that
// concern a particular field include the field's name and the full name of the
// enclosing message type in their message, exactly once, no matter how deeply
// the field is nested.
package protovalue

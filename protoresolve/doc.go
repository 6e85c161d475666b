// Package protoresolve provides a descriptor pool, Registry, for resolving
// Protobuf message and extension descriptors by name when no generated code
// is linked into the program.
//
// A Registry can be populated from a serialized FileDescriptorSet (the output
// of "protoc --descriptor_set_out" or "buf build -o"), from a
// *descriptorpb.FileDescriptorSet, or by compiling .proto sources directly.
// Once populated, it is safe for concurrent use and can be passed to the
// conversion functions in the protovalue package.
package protoresolve

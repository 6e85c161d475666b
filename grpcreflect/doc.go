// Package grpcreflect provides a client for the [gRPC reflection service].
// The client asks a server (that supports the reflection service) for the
// descriptors of the files, message types and extensions it knows about, and
// caches them locally.
//
// A Client can serve as the descriptor pool for conversions in the
// protovalue package, so that messages can be converted using only the
// schema published by a running server:
//
//	client := grpcreflect.NewClient(ctx, conn)
//	defer client.Reset()
//	conv := anyvalue.NewConverter(client)
//	val, err := conv.Decode(protovalue.PBInfo{Type: "foo.bar.Baz", Data: data}, protovalue.Options{})
//
// [gRPC reflection service]: https://github.com/grpc/grpc/blob/master/src/proto/grpc/reflection/v1/reflection.proto
package grpcreflect

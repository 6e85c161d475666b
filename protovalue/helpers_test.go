package protovalue_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/testing/protocmp"
	"google.golang.org/protobuf/types/dynamicpb"

	prototesting "github.com/jhump/protodyn/internal/testing"
	"github.com/jhump/protodyn/protoresolve"
	"github.com/jhump/protodyn/protovalue"
	"github.com/jhump/protodyn/protovalue/anyvalue"
)

var backend = anyvalue.Backend{}

func newMessage(t *testing.T, reg *protoresolve.Registry, typeName string) *dynamicpb.Message {
	t.Helper()
	md, err := reg.FindMessageByName(protoreflect.FullName(typeName))
	require.NoError(t, err)
	return dynamicpb.NewMessage(md)
}

// fromText returns the binary form of the given message in the text format.
func fromText(t *testing.T, reg *protoresolve.Registry, typeName, text string) []byte {
	t.Helper()
	msg := newMessage(t, reg, typeName)
	require.NoError(t, prototext.Unmarshal([]byte(text), msg))
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(msg)
	require.NoError(t, err)
	return data
}

// requireWireEqual checks that actual is a valid encoding of the message
// described by the given text.
func requireWireEqual(t *testing.T, reg *protoresolve.Registry, typeName, text string, actual []byte) {
	t.Helper()
	expected := newMessage(t, reg, typeName)
	require.NoError(t, prototext.Unmarshal([]byte(text), expected))
	actualMsg := newMessage(t, reg, typeName)
	require.NoError(t, proto.Unmarshal(actual, actualMsg))
	if diff := cmp.Diff(expected, actualMsg, protocmp.Transform()); diff != "" {
		t.Errorf("unexpected message (-want +got):\n%s", diff)
	}
}

func encode(t *testing.T, reg *protoresolve.Registry, typeName string, obj any, opts protovalue.Options) []byte {
	t.Helper()
	data, err := protovalue.ToPb[any](reg, backend, obj, typeName, opts, nil)
	require.NoError(t, err)
	return data
}

func decode(t *testing.T, reg *protoresolve.Registry, typeName string, data []byte, opts protovalue.Options) any {
	t.Helper()
	val, err := protovalue.FromPb[any](reg, backend, protovalue.PBInfo{Type: typeName, Data: data}, opts)
	require.NoError(t, err)
	return val
}

func requireValue(t *testing.T, expected, actual any) {
	t.Helper()
	if diff := cmp.Diff(expected, actual); diff != "" {
		t.Errorf("unexpected value (-want +got):\n%s", diff)
	}
}

func testRegistry(t *testing.T) *protoresolve.Registry {
	t.Helper()
	return prototesting.Registry(t)
}

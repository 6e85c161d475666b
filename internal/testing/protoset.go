package testing

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/protodyn/protoresolve"
)

// Compile compiles the given sources, keyed by path, and returns a registry
// with every compiled file and its imports.
func Compile(t testing.TB, sources map[string]string) *protoresolve.Registry {
	t.Helper()
	paths := make([]string, 0, len(sources))
	for path := range sources {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	reg, err := protoresolve.CompileSources(context.Background(), sources, paths...)
	require.NoError(t, err)
	return reg
}

// Registry returns a registry with the test schemas, TestProto and
// Test3Proto.
func Registry(t testing.TB) *protoresolve.Registry {
	t.Helper()
	return Compile(t, map[string]string{
		"test.proto":  TestProto,
		"test3.proto": Test3Proto,
	})
}

// Protoset returns a FileDescriptorSet with every file in the given
// registry.
func Protoset(reg *protoresolve.Registry) *descriptorpb.FileDescriptorSet {
	var set descriptorpb.FileDescriptorSet
	reg.RangeFiles(func(fd protoreflect.FileDescriptor) bool {
		set.File = append(set.File, protodesc.ToFileDescriptorProto(fd))
		return true
	})
	sort.Slice(set.File, func(i, j int) bool {
		return set.File[i].GetName() < set.File[j].GetName()
	})
	return &set
}

// WriteProtoset serializes every file in the given registry into a protoset
// file in a temporary directory and returns its path.
func WriteProtoset(t testing.TB, reg *protoresolve.Registry) string {
	t.Helper()
	data, err := proto.Marshal(Protoset(reg))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "test.protoset")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

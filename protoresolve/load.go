package protoresolve

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/bufbuild/protocompile"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// LoadDescriptorSet reads the serialized FileDescriptorSet (often called a
// "protoset") at the given path and returns a registry with all of its files.
func LoadDescriptorSet(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	reg, err := ParseDescriptorSet(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// ParseDescriptorSet parses the given serialized FileDescriptorSet and
// returns a registry with all of its files.
func ParseDescriptorSet(data []byte) (*Registry, error) {
	if len(data) == 0 {
		return nil, errors.New("descriptor set is empty")
	}
	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor set: %w", err)
	}
	if len(set.GetFile()) == 0 {
		return nil, errors.New("descriptor set contains no files")
	}
	return FromFileDescriptorSet(&set)
}

// FromFileDescriptorSet returns a registry with all of the files in the
// given set. The files may appear in any order. Imports that are not in the
// set are resolved using protoregistry.GlobalFiles, which means that sets
// that omit well-known imports (like "google/protobuf/timestamp.proto") can
// still be loaded.
func FromFileDescriptorSet(set *descriptorpb.FileDescriptorSet) (*Registry, error) {
	protos := make(map[string]*descriptorpb.FileDescriptorProto, len(set.GetFile()))
	for _, fdp := range set.GetFile() {
		if _, ok := protos[fdp.GetName()]; ok {
			return nil, fmt.Errorf("file %q appears in descriptor set more than once", fdp.GetName())
		}
		protos[fdp.GetName()] = fdp
	}
	reg := &Registry{}
	for _, fdp := range set.GetFile() {
		if err := addFileProtoWithDeps(fdp, protos, reg, map[string]bool{}); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func addFileProtoWithDeps(fdp *descriptorpb.FileDescriptorProto, protos map[string]*descriptorpb.FileDescriptorProto, reg *Registry, visiting map[string]bool) error {
	name := fdp.GetName()
	if _, err := reg.FindFileByPath(name); err == nil {
		return nil
	}
	if visiting[name] {
		return fmt.Errorf("import cycle involving %q", name)
	}
	visiting[name] = true
	for _, dep := range fdp.GetDependency() {
		if depProto, ok := protos[dep]; ok {
			if err := addFileProtoWithDeps(depProto, protos, reg, visiting); err != nil {
				return err
			}
			continue
		}
		if _, err := reg.FindFileByPath(dep); err == nil {
			continue
		}
		depFile, err := protoregistry.GlobalFiles.FindFileByPath(dep)
		if err != nil {
			return fmt.Errorf("file %q imports %q, which could not be found: %w", name, dep, err)
		}
		if err := registerWithImports(reg, depFile); err != nil {
			return err
		}
	}
	_, err := AddFileProto(fdp, reg)
	return err
}

// AddFileProto creates a file descriptor from the given proto and registers
// it. All of the file's imports must already be registered.
func AddFileProto(fdp *descriptorpb.FileDescriptorProto, reg *Registry) (protoreflect.FileDescriptor, error) {
	fd, err := protodesc.NewFile(fdp, reg)
	if err != nil {
		return nil, fmt.Errorf("failed to create descriptor for %q: %w", fdp.GetName(), err)
	}
	if err := reg.RegisterFile(fd); err != nil {
		return nil, err
	}
	return fd, nil
}

// Compile compiles the named .proto source files, which are found using the
// given import paths, and returns a registry with the results and all of
// their imports. Standard imports, like "google/protobuf/descriptor.proto",
// are always available, even if they are not in any import path.
func Compile(ctx context.Context, importPaths []string, files ...string) (*Registry, error) {
	return compile(ctx, &protocompile.SourceResolver{ImportPaths: importPaths}, files)
}

// CompileSources is like Compile, except that the contents of source files
// are provided in the given map, keyed by path, instead of read from disk.
func CompileSources(ctx context.Context, sources map[string]string, files ...string) (*Registry, error) {
	return compile(ctx, &protocompile.SourceResolver{
		Accessor: protocompile.SourceAccessorFromMap(sources),
	}, files)
}

func compile(ctx context.Context, resolver protocompile.Resolver, files []string) (*Registry, error) {
	if len(files) == 0 {
		return nil, errors.New("no source files to compile")
	}
	compiler := protocompile.Compiler{
		Resolver: protocompile.WithStandardImports(resolver),
	}
	results, err := compiler.Compile(ctx, files...)
	if err != nil {
		return nil, err
	}
	reg := &Registry{}
	for _, fd := range results {
		if err := registerWithImports(reg, fd); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func registerWithImports(reg *Registry, fd protoreflect.FileDescriptor) error {
	if _, err := reg.FindFileByPath(fd.Path()); err == nil {
		return nil
	}
	imports := fd.Imports()
	for i, length := 0, imports.Len(); i < length; i++ {
		if err := registerWithImports(reg, imports.Get(i).FileDescriptor); err != nil {
			return err
		}
	}
	return reg.RegisterFile(fd)
}

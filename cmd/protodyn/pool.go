package main

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/protodyn/grpcreflect"
	"github.com/jhump/protodyn/protoresolve"
)

// pool is a descriptor pool that can also enumerate its message types.
type pool interface {
	FindMessageByName(protoreflect.FullName) (protoreflect.MessageDescriptor, error)
	FindExtensionByName(protoreflect.FullName) (protoreflect.ExtensionDescriptor, error)
	FindExtensionByNumber(protoreflect.FullName, protoreflect.FieldNumber) (protoreflect.ExtensionDescriptor, error)
	RangeMessages(func(protoreflect.MessageDescriptor) bool)
}

// loadPool returns the pool described by the flags. The returned function
// releases any resources held by the pool.
func (a *app) loadPool(ctx context.Context) (pool, func(), error) {
	if a.flags.reflectAddr != "" {
		return a.reflectionPool(ctx)
	}
	reg, err := a.localPool(ctx)
	if err != nil {
		return nil, nil, err
	}
	a.logger.Debug("loaded schema", "files", reg.NumFiles())
	return reg, func() {}, nil
}

func (a *app) reflectionPool(ctx context.Context) (pool, func(), error) {
	cc, err := grpc.NewClient(a.flags.reflectAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", a.flags.reflectAddr, err)
	}
	client := grpcreflect.NewClient(ctx, cc, grpcreflect.WithLogger(a.logger))
	a.logger.Debug("using reflection service", "addr", a.flags.reflectAddr)
	return client, func() {
		client.Reset()
		_ = cc.Close()
	}, nil
}

// localPool merges the given descriptor sets and compiled sources into one
// registry. A file that appears in more than one place is only added once.
func (a *app) localPool(ctx context.Context) (*protoresolve.Registry, error) {
	var set descriptorpb.FileDescriptorSet
	seen := map[string]bool{}
	add := func(fdp *descriptorpb.FileDescriptorProto) {
		if seen[fdp.GetName()] {
			return
		}
		seen[fdp.GetName()] = true
		set.File = append(set.File, fdp)
	}

	for _, path := range a.flags.descriptorSets {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var fds descriptorpb.FileDescriptorSet
		if err := proto.Unmarshal(data, &fds); err != nil {
			return nil, fmt.Errorf("%s: failed to parse descriptor set: %w", path, err)
		}
		if len(fds.GetFile()) == 0 {
			return nil, fmt.Errorf("%s: descriptor set contains no files", path)
		}
		for _, fdp := range fds.GetFile() {
			add(fdp)
		}
	}

	if len(a.flags.protoFiles) > 0 {
		compiled, err := protoresolve.Compile(ctx, a.flags.importPaths, a.flags.protoFiles...)
		if err != nil {
			return nil, err
		}
		compiled.RangeFiles(func(fd protoreflect.FileDescriptor) bool {
			add(protodesc.ToFileDescriptorProto(fd))
			return true
		})
	}

	return protoresolve.FromFileDescriptorSet(&set)
}

// prefetch makes sure that the pool knows every message type it can offer.
// Local pools already do; a reflection client must first ask the server for
// the files that define its services.
func (a *app) prefetch(p pool) error {
	client, ok := p.(*grpcreflect.Client)
	if !ok {
		return nil
	}
	svcs, err := client.ListServices()
	if err != nil {
		return err
	}
	for _, svc := range svcs {
		if _, err := client.FileContainingSymbol(svc); err != nil {
			// Servers commonly list services whose descriptors they cannot
			// provide, such as the reflection service itself.
			a.logger.Debug("could not fetch service descriptor", "service", svc, "error", err)
		}
	}
	return nil
}

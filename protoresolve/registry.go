package protoresolve

import (
	"fmt"
	"sort"
	"sync"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"

	"github.com/jhump/protodyn/protovalue"
)

// Registry is a thread-safe pool of file descriptors. It can resolve message
// types by name and extensions by name or by extended message and field
// number, so it can be used as the descriptor pool for conversions in the
// protovalue package.
//
// A registry is typically populated once, using one of the loaders in this
// package, and then shared by any number of concurrent conversions.
type Registry struct {
	mu    sync.RWMutex
	files protoregistry.Files
	exts  map[protoreflect.FullName]map[protoreflect.FieldNumber]protoreflect.ExtensionDescriptor
}

var (
	_ protovalue.DescriptorPool    = (*Registry)(nil)
	_ protovalue.ExtensionResolver = (*Registry)(nil)
)

// typeContainer is a descriptor that can contain messages and extensions: a
// file or a message.
type typeContainer interface {
	Messages() protoreflect.MessageDescriptors
	Extensions() protoreflect.ExtensionDescriptors
}

// FromFiles returns a new registry that wraps the given files. After creating
// this registry, callers should not directly use files -- most especially, they
// should not register any additional descriptors with files and should instead
// use the RegisterFile method of the returned registry.
//
// This may return an error if the given files includes conflicting extension
// definitions (i.e. more than one extension for the same extended message and
// tag number).
//
// If protoregistry.GlobalFiles is supplied, a deep copy is made first.
func FromFiles(files *protoregistry.Files) (*Registry, error) {
	if files == protoregistry.GlobalFiles {
		reg := &Registry{}
		var err error
		files.RangeFiles(func(fd protoreflect.FileDescriptor) bool {
			err = reg.RegisterFile(fd)
			return err == nil
		})
		if err != nil {
			return nil, err
		}
		return reg, nil
	}

	reg := &Registry{
		files: *files,
	}
	// NB: It's okay to call methods below without first acquiring
	// lock because reg is not visible to any other goroutines yet.
	var err error
	files.RangeFiles(func(fd protoreflect.FileDescriptor) bool {
		err = reg.checkExtensionsLocked(fd)
		if err == nil {
			reg.registerExtensionsLocked(fd)
		}
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// RegisterFile adds the given file to the registry. It returns an error if
// the file is already registered or if it defines any element whose name or
// extension number conflicts with one already in the registry.
func (r *Registry) RegisterFile(file protoreflect.FileDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkExtensionsLocked(file); err != nil {
		_, findFileErr := r.files.FindFileByPath(file.Path())
		if findFileErr == nil {
			return fmt.Errorf("file %q already registered", file.Path())
		}
		return err
	}
	if err := r.files.RegisterFile(file); err != nil {
		return err
	}
	r.registerExtensionsLocked(file)
	return nil
}

func (r *Registry) checkExtensionsLocked(container typeContainer) error {
	exts := container.Extensions()
	for i, length := 0, exts.Len(); i < length; i++ {
		ext := exts.Get(i)
		existing := r.exts[ext.ContainingMessage().FullName()][ext.Number()]
		if existing != nil {
			if existing.FullName() == ext.FullName() {
				return fmt.Errorf("extension named %q already registered", ext.FullName())
			}
			return fmt.Errorf("extension number %d for message %q already registered (existing: %q; trying to register: %q)",
				ext.Number(), ext.ContainingMessage().FullName(), existing.FullName(), ext.FullName())
		}
	}

	msgs := container.Messages()
	for i, length := 0, msgs.Len(); i < length; i++ {
		if err := r.checkExtensionsLocked(msgs.Get(i)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) registerExtensionsLocked(container typeContainer) {
	exts := container.Extensions()
	for i, length := 0, exts.Len(); i < length; i++ {
		ext := exts.Get(i)
		if r.exts == nil {
			r.exts = map[protoreflect.FullName]map[protoreflect.FieldNumber]protoreflect.ExtensionDescriptor{}
		}
		extsForMsg := r.exts[ext.ContainingMessage().FullName()]
		if extsForMsg == nil {
			extsForMsg = map[protoreflect.FieldNumber]protoreflect.ExtensionDescriptor{}
			r.exts[ext.ContainingMessage().FullName()] = extsForMsg
		}
		extsForMsg[ext.Number()] = ext
	}

	msgs := container.Messages()
	for i, length := 0, msgs.Len(); i < length; i++ {
		r.registerExtensionsLocked(msgs.Get(i))
	}
}

// FindFileByPath returns the registered file with the given path.
func (r *Registry) FindFileByPath(path string) (protoreflect.FileDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.files.FindFileByPath(path)
}

// NumFiles returns the number of registered files.
func (r *Registry) NumFiles() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.files.NumFiles()
}

// RangeFiles calls fn for each registered file until fn returns false. The
// registry is not locked while fn runs, so fn may register more files, which
// will not be visited.
func (r *Registry) RangeFiles(fn func(protoreflect.FileDescriptor) bool) {
	var files []protoreflect.FileDescriptor
	func() {
		r.mu.RLock()
		defer r.mu.RUnlock()
		files = make([]protoreflect.FileDescriptor, 0, r.files.NumFiles())
		r.files.RangeFiles(func(f protoreflect.FileDescriptor) bool {
			files = append(files, f)
			return true
		})
	}()
	for _, file := range files {
		if !fn(file) {
			return
		}
	}
}

// RangeMessages calls fn for every message type defined in any registered
// file, including nested messages but excluding synthetic map entry messages,
// in order of full name. Iteration stops if fn returns false.
func (r *Registry) RangeMessages(fn func(protoreflect.MessageDescriptor) bool) {
	var msgs []protoreflect.MessageDescriptor
	r.RangeFiles(func(fd protoreflect.FileDescriptor) bool {
		msgs = appendMessages(msgs, fd.Messages())
		return true
	})
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].FullName() < msgs[j].FullName()
	})
	for _, md := range msgs {
		if !fn(md) {
			return
		}
	}
}

func appendMessages(dest []protoreflect.MessageDescriptor, msgs protoreflect.MessageDescriptors) []protoreflect.MessageDescriptor {
	for i, length := 0, msgs.Len(); i < length; i++ {
		md := msgs.Get(i)
		if md.IsMapEntry() {
			continue
		}
		dest = append(dest, md)
		dest = appendMessages(dest, md.Messages())
	}
	return dest
}

// FindDescriptorByName returns the element with the given fully-qualified
// name, which may be any kind of descriptor other than a file.
func (r *Registry) FindDescriptorByName(name protoreflect.FullName) (protoreflect.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.files.FindDescriptorByName(name)
}

func descType(d protoreflect.Descriptor) string {
	switch d := d.(type) {
	case protoreflect.FileDescriptor:
		return "a file"
	case protoreflect.MessageDescriptor:
		return "a message"
	case protoreflect.FieldDescriptor:
		if d.IsExtension() {
			return "an extension"
		}
		return "a field"
	case protoreflect.OneofDescriptor:
		return "a oneof"
	case protoreflect.EnumDescriptor:
		return "an enum"
	case protoreflect.EnumValueDescriptor:
		return "an enum value"
	case protoreflect.ServiceDescriptor:
		return "a service"
	case protoreflect.MethodDescriptor:
		return "a method"
	default:
		return fmt.Sprintf("a %T", d)
	}
}

// FindMessageByName returns the message type with the given name. If no
// element has that name, the returned error is protoregistry.NotFound.
func (r *Registry) FindMessageByName(name protoreflect.FullName) (protoreflect.MessageDescriptor, error) {
	d, err := r.FindDescriptorByName(name)
	if err != nil {
		return nil, err
	}
	msg, ok := d.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("descriptor %q is %s, not a message", name, descType(d))
	}
	return msg, nil
}

// FindExtensionByName returns the extension with the given name.
func (r *Registry) FindExtensionByName(name protoreflect.FullName) (protoreflect.ExtensionDescriptor, error) {
	d, err := r.FindDescriptorByName(name)
	if err != nil {
		return nil, err
	}
	fld, ok := d.(protoreflect.FieldDescriptor)
	if !ok {
		return nil, fmt.Errorf("descriptor %q is %s, not an extension", name, descType(d))
	}
	if !fld.IsExtension() {
		return nil, fmt.Errorf("descriptor %q is a field, not an extension", name)
	}
	return fld, nil
}

// FindExtensionByNumber returns the extension of the given message that has
// the given field number.
func (r *Registry) FindExtensionByNumber(message protoreflect.FullName, fieldNumber protoreflect.FieldNumber) (protoreflect.ExtensionDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext := r.exts[message][fieldNumber]
	if ext == nil {
		return nil, protoregistry.NotFound
	}
	return ext, nil
}

// RangeExtensionsByMessage calls fn for each registered extension of the
// given message, in order of field number, until fn returns false.
func (r *Registry) RangeExtensionsByMessage(message protoreflect.FullName, fn func(protoreflect.ExtensionDescriptor) bool) {
	var exts []protoreflect.ExtensionDescriptor
	func() {
		r.mu.RLock()
		defer r.mu.RUnlock()
		extMap := r.exts[message]
		exts = make([]protoreflect.ExtensionDescriptor, 0, len(extMap))
		for _, v := range extMap {
			exts = append(exts, v)
		}
	}()
	sort.Slice(exts, func(i, j int) bool {
		return exts[i].Number() < exts[j].Number()
	})
	for _, ext := range exts {
		if !fn(ext) {
			return
		}
	}
}

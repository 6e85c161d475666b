package grpcreflect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"runtime"
	"sync"

	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	refv1 "google.golang.org/grpc/reflection/grpc_reflection_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/protodyn/protoresolve"
	"github.com/jhump/protodyn/protovalue"
)

// elementNotFoundError is the error returned by reflective operations where the
// server does not recognize a given file name, symbol name, or extension.
type elementNotFoundError struct {
	path string
	name protoreflect.FullName
	kind elementKind
	tag  protoreflect.FieldNumber // only used when kind == elementKindExtension

	// only errors with a kind of elementKindFile will have a cause, which means
	// the named file count not be resolved because of a dependency that could
	// not be found where cause describes the missing dependency
	cause *elementNotFoundError
}

type elementKind int

const (
	elementKindSymbol elementKind = iota
	elementKindFile
	elementKindExtension
)

func symbolNotFound(symbol protoreflect.FullName, cause *elementNotFoundError) error {
	return &elementNotFoundError{name: symbol, kind: elementKindSymbol, cause: cause}
}

func extensionNotFound(extendee protoreflect.FullName, tag protoreflect.FieldNumber, cause *elementNotFoundError) error {
	return &elementNotFoundError{name: extendee, tag: tag, kind: elementKindExtension, cause: cause}
}

func fileNotFound(file string, cause *elementNotFoundError) error {
	return &elementNotFoundError{path: file, kind: elementKindFile, cause: cause}
}

func (e *elementNotFoundError) Error() string {
	first := true
	var b bytes.Buffer
	for ; e != nil; e = e.cause {
		if first {
			first = false
		} else {
			_, _ = fmt.Fprint(&b, "\ncaused by: ")
		}
		switch e.kind {
		case elementKindSymbol:
			_, _ = fmt.Fprintf(&b, "symbol not found: %s", e.name)
		case elementKindExtension:
			_, _ = fmt.Fprintf(&b, "extension not found: tag %d for %s", e.tag, e.name)
		default:
			_, _ = fmt.Fprintf(&b, "file not found: %s", e.path)
		}
	}
	return b.String()
}

// Is reports whether target is protoregistry.NotFound, so that callers that
// treat the client as a descriptor pool can detect missing elements.
func (e *elementNotFoundError) Is(target error) bool {
	return target == protoregistry.NotFound
}

// IsElementNotFoundError determines if the given error indicates that a file
// name, symbol name, or extension field was could not be found by the server.
func IsElementNotFoundError(err error) bool {
	var notFound *elementNotFoundError
	return errors.As(err, &notFound)
}

// ProtocolError is an error returned when the server sends a response of the
// wrong type.
type ProtocolError struct {
	missingType reflect.Type
}

func (p ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: response was missing %v", p.missingType)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger used to report requests and stream failures. By
// default nothing is logged.
func WithLogger(logger hclog.Logger) ClientOption {
	return func(cr *Client) {
		cr.logger = logger
	}
}

// Client is a client connection to a server for performing reflection calls
// and resolving remote symbols. Files that are downloaded are cached, so each
// is only requested once.
//
// A Client can be used as the descriptor pool for conversions in the
// protovalue package. Message types and extensions are then fetched from the
// server on first use.
type Client struct {
	ctx    context.Context
	stub   refv1.ServerReflectionClient
	logger hclog.Logger

	connMu sync.Mutex
	cancel context.CancelFunc
	stream refv1.ServerReflection_ServerReflectionInfoClient

	cacheMu      sync.RWMutex
	protosByName map[string]*descriptorpb.FileDescriptorProto
	descriptors  protoresolve.Registry
	// symbols the server reported as unknown; cleared by Reset
	missingSymbols map[protoreflect.FullName]struct{}
}

var (
	_ protovalue.DescriptorPool    = (*Client)(nil)
	_ protovalue.ExtensionResolver = (*Client)(nil)
)

// NewClient creates a new Client that uses the v1 version of the reflection
// service over the given connection. Streams opened by the client are bound
// to the given context.
func NewClient(ctx context.Context, cc grpc.ClientConnInterface, opts ...ClientOption) *Client {
	return NewClientV1(ctx, refv1.NewServerReflectionClient(cc), opts...)
}

// NewClientV1 creates a new Client using the v1 version of reflection
// with the given root context and using the given RPC stub for talking to the
// server.
func NewClientV1(ctx context.Context, stub refv1.ServerReflectionClient, opts ...ClientOption) *Client {
	cr := &Client{
		ctx:          ctx,
		stub:         stub,
		protosByName: map[string]*descriptorpb.FileDescriptorProto{},
	}
	for _, opt := range opts {
		opt(cr)
	}
	if cr.logger == nil {
		cr.logger = hclog.NewNullLogger()
	}
	cr.logger = cr.logger.Named("grpcreflect")
	// don't leak a grpc stream
	runtime.SetFinalizer(cr, (*Client).Reset)
	return cr
}

// FileByFilename asks the server for a file descriptor for the proto file with
// the given name.
func (cr *Client) FileByFilename(filename string) (protoreflect.FileDescriptor, error) {
	// hit the cache first
	cr.cacheMu.RLock()
	if fd, err := cr.descriptors.FindFileByPath(filename); err == nil {
		cr.cacheMu.RUnlock()
		return fd, nil
	}
	fdp, ok := cr.protosByName[filename]
	cr.cacheMu.RUnlock()
	// not there? see if we've downloaded the proto
	if ok {
		return cr.descriptorFromProto(fdp)
	}

	req := &refv1.ServerReflectionRequest{
		MessageRequest: &refv1.ServerReflectionRequest_FileByFilename{
			FileByFilename: filename,
		},
	}
	err := cr.getAndCacheFileDescriptors(req)
	if err == nil {
		cr.cacheMu.RLock()
		fd, findErr := cr.descriptors.FindFileByPath(filename)
		cr.cacheMu.RUnlock()
		if findErr == nil {
			return fd, nil
		}
		err = errMissingExpectedFile
	}
	if isNotFound(err) {
		err = fileNotFound(filename, nil)
	} else if e, ok := err.(*elementNotFoundError); ok {
		err = fileNotFound(filename, e)
	}
	return nil, err
}

// FileContainingSymbol asks the server for a file descriptor for the proto file
// that declares the given fully-qualified symbol.
func (cr *Client) FileContainingSymbol(symbol protoreflect.FullName) (protoreflect.FileDescriptor, error) {
	d, err := cr.findSymbol(symbol)
	if err != nil {
		return nil, err
	}
	return d.ParentFile(), nil
}

func (cr *Client) findSymbol(symbol protoreflect.FullName) (protoreflect.Descriptor, error) {
	// hit the cache first
	cr.cacheMu.RLock()
	d, err := cr.descriptors.FindDescriptorByName(symbol)
	_, missing := cr.missingSymbols[symbol]
	cr.cacheMu.RUnlock()
	if err == nil {
		return d, nil
	}
	if missing {
		return nil, symbolNotFound(symbol, nil)
	}

	req := &refv1.ServerReflectionRequest{
		MessageRequest: &refv1.ServerReflectionRequest_FileContainingSymbol{
			FileContainingSymbol: string(symbol),
		},
	}
	err = cr.getAndCacheFileDescriptors(req)
	if err == nil {
		cr.cacheMu.RLock()
		d, err = cr.descriptors.FindDescriptorByName(symbol)
		cr.cacheMu.RUnlock()
		if err == nil {
			return d, nil
		}
		err = errMissingExpectedFile
	}
	if isNotFound(err) {
		err = symbolNotFound(symbol, nil)
	} else if e, ok := err.(*elementNotFoundError); ok {
		err = symbolNotFound(symbol, e)
	}
	if IsElementNotFoundError(err) {
		cr.cacheMu.Lock()
		if cr.missingSymbols == nil {
			cr.missingSymbols = map[protoreflect.FullName]struct{}{}
		}
		cr.missingSymbols[symbol] = struct{}{}
		cr.cacheMu.Unlock()
	}
	return nil, err
}

// FileContainingExtension asks the server for a file descriptor for the proto
// file that declares an extension with the given number for the given
// fully-qualified message name.
func (cr *Client) FileContainingExtension(extendedMessageName protoreflect.FullName, extensionNumber protoreflect.FieldNumber) (protoreflect.FileDescriptor, error) {
	xd, err := cr.FindExtensionByNumber(extendedMessageName, extensionNumber)
	if err != nil {
		return nil, err
	}
	return xd.ParentFile(), nil
}

// FindMessageByName returns the message type with the given name, asking the
// server for the file that defines it if it is not already cached. If the
// server does not know the symbol, the returned error wraps
// protoregistry.NotFound.
func (cr *Client) FindMessageByName(name protoreflect.FullName) (protoreflect.MessageDescriptor, error) {
	d, err := cr.findSymbol(name)
	if err != nil {
		return nil, err
	}
	md, ok := d.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("descriptor %q is not a message", name)
	}
	return md, nil
}

// FindExtensionByName returns the extension with the given name, asking the
// server for the file that defines it if it is not already cached.
func (cr *Client) FindExtensionByName(name protoreflect.FullName) (protoreflect.ExtensionDescriptor, error) {
	d, err := cr.findSymbol(name)
	if err != nil {
		return nil, err
	}
	fld, ok := d.(protoreflect.FieldDescriptor)
	if !ok || !fld.IsExtension() {
		return nil, fmt.Errorf("descriptor %q is not an extension", name)
	}
	return fld, nil
}

// FindExtensionByNumber returns the extension of the given message with the
// given field number, asking the server for the file that defines it if it is
// not already cached.
func (cr *Client) FindExtensionByNumber(extendedMessageName protoreflect.FullName, extensionNumber protoreflect.FieldNumber) (protoreflect.ExtensionDescriptor, error) {
	// hit the cache first
	cr.cacheMu.RLock()
	xd, err := cr.descriptors.FindExtensionByNumber(extendedMessageName, extensionNumber)
	cr.cacheMu.RUnlock()
	if err == nil {
		return xd, nil
	}

	req := &refv1.ServerReflectionRequest{
		MessageRequest: &refv1.ServerReflectionRequest_FileContainingExtension{
			FileContainingExtension: &refv1.ExtensionRequest{
				ContainingType:  string(extendedMessageName),
				ExtensionNumber: int32(extensionNumber),
			},
		},
	}
	err = cr.getAndCacheFileDescriptors(req)
	if err == nil {
		cr.cacheMu.RLock()
		xd, err = cr.descriptors.FindExtensionByNumber(extendedMessageName, extensionNumber)
		cr.cacheMu.RUnlock()
		if err == nil {
			return xd, nil
		}
		err = errMissingExpectedFile
	}
	if isNotFound(err) {
		err = extensionNotFound(extendedMessageName, extensionNumber, nil)
	} else if e, ok := err.(*elementNotFoundError); ok {
		err = extensionNotFound(extendedMessageName, extensionNumber, e)
	}
	return nil, err
}

// RangeMessages calls fn for every message type in the files downloaded so
// far, in order of full name.
func (cr *Client) RangeMessages(fn func(protoreflect.MessageDescriptor) bool) {
	cr.descriptors.RangeMessages(fn)
}

var errMissingExpectedFile = status.Errorf(codes.NotFound, "response does not include expected file")

func (cr *Client) getAndCacheFileDescriptors(req *refv1.ServerReflectionRequest) error {
	resp, err := cr.send(req)
	if err != nil {
		return err
	}

	fdResp := resp.GetFileDescriptorResponse()
	if fdResp == nil {
		return &ProtocolError{reflect.TypeOf(fdResp).Elem()}
	}

	// Response can contain the result file descriptor, but also its transitive
	// deps. Furthermore, protocol states that subsequent requests do not need
	// to send transitive deps that have been sent in prior responses. So we
	// need to cache all file descriptors before any are linked.
	fds := make([]*descriptorpb.FileDescriptorProto, 0, len(fdResp.FileDescriptorProto))
	for _, fdBytes := range fdResp.FileDescriptorProto {
		fd := &descriptorpb.FileDescriptorProto{}
		if err = proto.Unmarshal(fdBytes, fd); err != nil {
			return err
		}

		cr.cacheMu.Lock()
		// store in cache of raw descriptor protos, but don't overwrite existing protos
		if existingFd, ok := cr.protosByName[fd.GetName()]; ok {
			fd = existingFd
		} else {
			cr.protosByName[fd.GetName()] = fd
		}
		cr.cacheMu.Unlock()

		fds = append(fds, fd)
	}
	cr.logger.Debug("received file descriptors", "count", len(fds))

	for _, fd := range fds {
		if _, err := cr.descriptorFromProto(fd); err != nil {
			return err
		}
	}
	return nil
}

func (cr *Client) descriptorFromProto(fd *descriptorpb.FileDescriptorProto) (protoreflect.FileDescriptor, error) {
	for _, depName := range fd.GetDependency() {
		if _, err := cr.FileByFilename(depName); err != nil {
			return nil, err
		}
	}
	cr.cacheMu.Lock()
	defer cr.cacheMu.Unlock()
	if fd, err := cr.descriptors.FindFileByPath(fd.GetName()); err == nil {
		return fd, nil
	}
	return protoresolve.AddFileProto(fd, &cr.descriptors)
}

// AllExtensionNumbersForType asks the server for all known extension numbers
// for the given fully-qualified message name.
func (cr *Client) AllExtensionNumbersForType(extendedMessageName protoreflect.FullName) ([]protoreflect.FieldNumber, error) {
	req := &refv1.ServerReflectionRequest{
		MessageRequest: &refv1.ServerReflectionRequest_AllExtensionNumbersOfType{
			AllExtensionNumbersOfType: string(extendedMessageName),
		},
	}
	resp, err := cr.send(req)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	extResp := resp.GetAllExtensionNumbersResponse()
	if extResp == nil {
		return nil, &ProtocolError{reflect.TypeOf(extResp).Elem()}
	}
	nums := make([]protoreflect.FieldNumber, len(extResp.ExtensionNumber))
	for i := range extResp.ExtensionNumber {
		nums[i] = protoreflect.FieldNumber(extResp.ExtensionNumber[i])
	}
	return nums, nil
}

// ListServices asks the server for the fully-qualified names of all exposed
// services.
func (cr *Client) ListServices() ([]protoreflect.FullName, error) {
	req := &refv1.ServerReflectionRequest{
		MessageRequest: &refv1.ServerReflectionRequest_ListServices{
			// proto doesn't indicate any purpose for this value and server impl
			// doesn't actually use it...
			ListServices: "*",
		},
	}
	resp, err := cr.send(req)
	if err != nil {
		return nil, err
	}

	listResp := resp.GetListServicesResponse()
	if listResp == nil {
		return nil, &ProtocolError{reflect.TypeOf(listResp).Elem()}
	}
	serviceNames := make([]protoreflect.FullName, len(listResp.Service))
	for i, s := range listResp.Service {
		serviceNames[i] = protoreflect.FullName(s.Name)
	}
	return serviceNames, nil
}

func (cr *Client) send(req *refv1.ServerReflectionRequest) (*refv1.ServerReflectionResponse, error) {
	resp, err := cr.doSend(req)
	if err != nil {
		return nil, err
	}

	// convert error response messages into errors
	errResp := resp.GetErrorResponse()
	if errResp != nil {
		return nil, status.Errorf(codes.Code(errResp.ErrorCode), "%s", errResp.ErrorMessage)
	}

	return resp, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	s, ok := status.FromError(err)
	return ok && s.Code() == codes.NotFound
}

func (cr *Client) doSend(req *refv1.ServerReflectionRequest) (*refv1.ServerReflectionResponse, error) {
	// Streams allow concurrent Send and Recv, but responses must be matched to
	// their requests, so requests are serialized.
	cr.connMu.Lock()
	defer cr.connMu.Unlock()
	return cr.doSendLocked(0, nil, req)
}

// doSendLocked sends the request and waits for its response. We allow one
// immediate retry, in case we have a stale stream (e.g. closed by server).
func (cr *Client) doSendLocked(attemptCount int, prevErr error, req *refv1.ServerReflectionRequest) (*refv1.ServerReflectionResponse, error) {
	if attemptCount >= 2 && prevErr != nil {
		return nil, prevErr
	}
	if prevErr != nil {
		cr.logger.Warn("reflection stream failed, retrying", "error", prevErr)
	}
	attemptCount++

	if err := cr.initStreamLocked(); err != nil {
		return nil, err
	}

	if err := cr.stream.Send(req); err != nil {
		if err == io.EOF {
			// if send returns EOF, must call Recv to get real underlying error
			_, err = cr.stream.Recv()
		}
		cr.resetLocked()
		return cr.doSendLocked(attemptCount, err, req)
	}

	resp, err := cr.stream.Recv()
	if err != nil {
		cr.resetLocked()
		return cr.doSendLocked(attemptCount, err, req)
	}
	return resp, nil
}

func (cr *Client) initStreamLocked() error {
	if cr.stream != nil {
		return nil
	}
	var newCtx context.Context
	newCtx, cr.cancel = context.WithCancel(cr.ctx)
	stream, err := cr.stub.ServerReflectionInfo(newCtx)
	if err != nil {
		cr.cancel()
		cr.cancel = nil
		return err
	}
	cr.logger.Trace("opened reflection stream")
	cr.stream = stream
	return nil
}

// Reset ensures that any active stream with the server is closed, releasing any
// resources. Symbols the server previously reported as unknown are asked for
// again on their next lookup.
func (cr *Client) Reset() {
	cr.connMu.Lock()
	defer cr.connMu.Unlock()
	cr.resetLocked()

	cr.cacheMu.Lock()
	cr.missingSymbols = nil
	cr.cacheMu.Unlock()
}

func (cr *Client) resetLocked() {
	if cr.stream != nil {
		_ = cr.stream.CloseSend()
		for {
			// drain the stream, this covers io.EOF too
			if _, err := cr.stream.Recv(); err != nil {
				break
			}
		}
		cr.stream = nil
	}
	if cr.cancel != nil {
		cr.cancel()
		cr.cancel = nil
	}
}

package protovalue

import (
	"sort"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// Context identifies a single field value being converted. Conversion
// functions in a back end's tables receive a context and use it to read or
// write the field.
type Context struct {
	// Message is the message being read or written.
	Message protoreflect.Message
	// Field is the field being converted. It is a field of Message.
	Field protoreflect.FieldDescriptor
	// Index is the position of the element being converted when Field is a
	// list. It is -1 for singular fields.
	Index int
	// Options are the options of the active conversion.
	Options Options
	// Warnings collects optional fields whose conversion failed but was
	// tolerated. It may be nil.
	Warnings *WarningFields
}

func newContext(msg protoreflect.Message, fd protoreflect.FieldDescriptor, opts Options, warnings *WarningFields) *Context {
	return &Context{Message: msg, Field: fd, Index: -1, Options: opts, Warnings: warnings}
}

// Kind returns the conversion kind of the field.
func (c *Context) Kind() Kind {
	return KindOf(c.Field)
}

// Indexed returns true if the context addresses a single element of a list.
func (c *Context) Indexed() bool {
	return c.Index >= 0
}

// IsMapKey returns true if the field is the key field of a map entry. Back
// ends use this to accept textual keys for non-string key kinds, since many
// dynamic representations only allow strings as mapping keys.
func (c *Context) IsMapKey() bool {
	return IsMapKeyField(c.Field)
}

// IsMapKeyField returns true if fd is the key field of a map entry message.
func IsMapKeyField(fd protoreflect.FieldDescriptor) bool {
	return !fd.IsExtension() && fd.ContainingMessage().IsMapEntry() && fd.Number() == 1
}

// Value returns the value addressed by the context. For lists, this is the
// element at Index.
func (c *Context) Value() protoreflect.Value {
	v := c.Message.Get(c.Field)
	if c.Indexed() {
		return v.List().Get(c.Index)
	}
	return v
}

// Set stores v into the field addressed by the context. For lists, the
// element at Index is replaced, or v is appended if Index is the length of
// the list.
func (c *Context) Set(v protoreflect.Value) {
	if !c.Indexed() {
		c.Message.Set(c.Field, v)
		return
	}
	list := c.Message.Mutable(c.Field).List()
	if c.Index < list.Len() {
		list.Set(c.Index, v)
		return
	}
	list.Append(v)
}

// WarningFields is a set of fields whose values could not be converted while
// encoding but which were skipped because they are optional and the active
// options tolerate such failures. Entries have the form
// "<message full name>:<field name>".
//
// A WarningFields is not safe for concurrent use; each conversion should use
// its own.
type WarningFields struct {
	fields map[string]struct{}
}

// Add records the given field of the given message type. Calling Add on a
// nil *WarningFields is a no-op.
func (w *WarningFields) Add(messageType protoreflect.FullName, field protoreflect.Name) {
	if w == nil {
		return
	}
	if w.fields == nil {
		w.fields = map[string]struct{}{}
	}
	w.fields[string(messageType)+":"+string(field)] = struct{}{}
}

// Has returns true if the given entry, of the form "<message>:<field>", was
// recorded.
func (w *WarningFields) Has(entry string) bool {
	if w == nil {
		return false
	}
	_, ok := w.fields[entry]
	return ok
}

// Len returns the number of recorded fields.
func (w *WarningFields) Len() int {
	if w == nil {
		return 0
	}
	return len(w.fields)
}

// List returns the recorded entries in sorted order.
func (w *WarningFields) List() []string {
	if w == nil {
		return nil
	}
	entries := make([]string, 0, len(w.fields))
	for e := range w.fields {
		entries = append(entries, e)
	}
	sort.Strings(entries)
	return entries
}

// Package yamlvalue provides a back end for the protovalue package that
// represents dynamic values as YAML node trees, as defined by gopkg.in/yaml.v3.
//
// Decoded values are explicitly tagged, so they survive a trip through the
// YAML encoder without losing their types: integers are "!!int", floating
// point values are "!!float", bytes are "!!binary", and so on. When encoding,
// untagged scalars are resolved using the usual YAML rules. Document and
// alias nodes are followed to the nodes they refer to.
package yamlvalue

import (
	"gopkg.in/yaml.v3"

	"github.com/jhump/protodyn/protovalue"
)

// Backend is the protovalue back end for *yaml.Node values. The zero value
// is ready to use.
type Backend struct{}

var _ protovalue.Backend[*yaml.Node] = Backend{}

// NewConverter returns a converter that produces and consumes YAML nodes,
// resolving message types with the given pool.
func NewConverter(pool protovalue.DescriptorPool, opts ...protovalue.ConverterOption) *protovalue.Converter[*yaml.Node] {
	return protovalue.NewConverter[*yaml.Node](pool, Backend{}, opts...)
}

const (
	tagNull   = "!!null"
	tagBool   = "!!bool"
	tagStr    = "!!str"
	tagInt    = "!!int"
	tagFloat  = "!!float"
	tagBinary = "!!binary"
	tagMap    = "!!map"
	tagSeq    = "!!seq"
)

// NewMap implements protovalue.Adapter.
func (Backend) NewMap() protovalue.MapBuilder[*yaml.Node] {
	return &mapBuilder{n: &yaml.Node{Kind: yaml.MappingNode, Tag: tagMap}}
}

// NewArray implements protovalue.Adapter.
func (Backend) NewArray() protovalue.ArrayBuilder[*yaml.Node] {
	return &arrayBuilder{n: &yaml.Node{Kind: yaml.SequenceNode, Tag: tagSeq}}
}

// TypeOf implements protovalue.Adapter.
func (Backend) TypeOf(n *yaml.Node) protovalue.ValueType {
	n = resolve(n)
	if n == nil {
		return protovalue.ValueNull
	}
	switch n.Kind {
	case yaml.MappingNode:
		return protovalue.ValueMap
	case yaml.SequenceNode:
		return protovalue.ValueArray
	case yaml.ScalarNode:
		if n.ShortTag() == tagNull {
			return protovalue.ValueNull
		}
		return protovalue.ValueScalar
	default:
		return protovalue.ValueNull
	}
}

// MapLen implements protovalue.Adapter.
func (Backend) MapLen(n *yaml.Node) int {
	n = resolve(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return 0
	}
	return len(n.Content) / 2
}

// RangeMap implements protovalue.Adapter. Entries are visited in document
// order. A mapping that repeats a scalar key is rejected before any entry is
// visited.
func (Backend) RangeMap(n *yaml.Node, fn func(key, value *yaml.Node) bool) error {
	n = resolve(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return protovalue.Errorf(protovalue.CodeGetRepeatItemError, "expected a mapping, got %s", describe(n))
	}
	seen := make(map[string]struct{}, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := resolve(n.Content[i])
		if key == nil || key.Kind != yaml.ScalarNode {
			continue
		}
		if _, ok := seen[key.Value]; ok {
			return protovalue.Errorf(protovalue.CodeArgTypeError, "mapping key %q is repeated (line %d)", key.Value, key.Line)
		}
		seen[key.Value] = struct{}{}
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if !fn(n.Content[i], n.Content[i+1]) {
			break
		}
	}
	return nil
}

// RangeArray implements protovalue.Adapter.
func (Backend) RangeArray(n *yaml.Node, fn func(index int, elem *yaml.Node) bool) error {
	n = resolve(n)
	if n == nil || n.Kind != yaml.SequenceNode {
		return protovalue.Errorf(protovalue.CodeGetRepeatItemError, "expected a sequence, got %s", describe(n))
	}
	for i, elem := range n.Content {
		if !fn(i, elem) {
			break
		}
	}
	return nil
}

// KeyString implements protovalue.Adapter. It returns the text of a scalar
// node.
func (Backend) KeyString(n *yaml.Node) (string, bool) {
	n = resolve(n)
	if n == nil || n.Kind != yaml.ScalarNode {
		return "", false
	}
	return n.Value, true
}

// FromPbFunctions implements protovalue.Backend.
func (Backend) FromPbFunctions() protovalue.FromPbFunctionMap[*yaml.Node] {
	return fromPbFunctions()
}

// ToPbFunctions implements protovalue.Backend.
func (Backend) ToPbFunctions() protovalue.ToPbFunctionMap[*yaml.Node] {
	return toPbFunctions()
}

type mapBuilder struct {
	n *yaml.Node
}

func (b *mapBuilder) Set(key string, value *yaml.Node) {
	b.n.Content = append(b.n.Content, strNode(key), value)
}

func (b *mapBuilder) Add(key, value *yaml.Node) error {
	key = resolve(key)
	if key == nil || key.Kind != yaml.ScalarNode {
		return protovalue.Errorf(protovalue.CodeArgTypeError, "mapping key must be a scalar, got %s", describe(key))
	}
	b.n.Content = append(b.n.Content, key, value)
	return nil
}

func (b *mapBuilder) Build() *yaml.Node {
	return b.n
}

type arrayBuilder struct {
	n *yaml.Node
}

func (b *arrayBuilder) Add(value *yaml.Node) {
	b.n.Content = append(b.n.Content, value)
}

func (b *arrayBuilder) Build() *yaml.Node {
	return b.n
}

// resolve follows document and alias nodes. An empty document resolves to
// nil.
func resolve(n *yaml.Node) *yaml.Node {
	for n != nil {
		switch n.Kind {
		case yaml.DocumentNode:
			if len(n.Content) == 0 {
				return nil
			}
			n = n.Content[0]
		case yaml.AliasNode:
			n = n.Alias
		default:
			return n
		}
	}
	return nil
}

func describe(n *yaml.Node) string {
	if n == nil {
		return "null"
	}
	switch n.Kind {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return n.ShortTag() + " scalar"
	default:
		return "node"
	}
}

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tagStr, Value: s}
}

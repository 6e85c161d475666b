package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/jhump/protodyn/protovalue"
	"github.com/jhump/protodyn/protovalue/anyvalue"
	"github.com/jhump/protodyn/protovalue/yamlvalue"
)

const (
	formatJSON    = "json"
	formatYAML    = "yaml"
	formatMsgpack = "msgpack"
)

var formats = []string{formatJSON, formatYAML, formatMsgpack}

func isFormat(name string) bool {
	for _, f := range formats {
		if f == name {
			return true
		}
	}
	return false
}

func formatNames() string {
	return strings.Join(formats, ", ")
}

// extension returns the file extension used for documents in the given format.
func extension(format string) string {
	if format == formatYAML {
		return ".yaml"
	}
	return "." + format
}

// transcoder converts documents in one format to and from binary messages.
type transcoder interface {
	// encode parses a document and encodes it as a binary message.
	encode(doc []byte, typeName string, opts protovalue.Options, warnings *protovalue.WarningFields) ([]byte, error)
	// decode parses a binary message and renders it as a document.
	decode(data []byte, typeName string, opts protovalue.Options) ([]byte, error)
	// create renders the default instance of a message type as a document.
	create(typeName string, opts protovalue.Options) ([]byte, error)
}

func newTranscoder(format string, p protovalue.DescriptorPool, logger hclog.Logger) (transcoder, error) {
	switch format {
	case formatJSON:
		return &valueTranscoder[any]{
			conv:   anyvalue.NewConverter(p, protovalue.WithLogger(logger)),
			parse:  parseJSON,
			render: renderJSON,
		}, nil
	case formatYAML:
		return &valueTranscoder[*yaml.Node]{
			conv:   yamlvalue.NewConverter(p, protovalue.WithLogger(logger)),
			parse:  parseYAML,
			render: renderYAML,
		}, nil
	case formatMsgpack:
		return &valueTranscoder[any]{
			conv:   anyvalue.NewConverter(p, protovalue.WithLogger(logger)),
			parse:  parseMsgpack,
			render: renderMsgpack,
		}, nil
	default:
		return nil, fmt.Errorf("invalid format %q: must be one of %s", format, formatNames())
	}
}

// valueTranscoder is a transcoder for documents that are parsed into
// dynamic values of type V.
type valueTranscoder[V any] struct {
	conv   *protovalue.Converter[V]
	parse  func([]byte) (V, error)
	render func(V) ([]byte, error)
}

func (t *valueTranscoder[V]) encode(doc []byte, typeName string, opts protovalue.Options, warnings *protovalue.WarningFields) ([]byte, error) {
	val, err := t.parse(doc)
	if err != nil {
		return nil, err
	}
	return t.conv.Encode(val, typeName, opts, warnings)
}

func (t *valueTranscoder[V]) decode(data []byte, typeName string, opts protovalue.Options) ([]byte, error) {
	val, err := t.conv.Decode(protovalue.PBInfo{Type: typeName, Data: data}, opts)
	if err != nil {
		return nil, err
	}
	return t.render(val)
}

func (t *valueTranscoder[V]) create(typeName string, opts protovalue.Options) ([]byte, error) {
	val, err := t.conv.Create(typeName, opts)
	if err != nil {
		return nil, err
	}
	return t.render(val)
}

func parseJSON(doc []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var val any
	if err := dec.Decode(&val); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("failed to parse JSON: unexpected data after top-level value")
	}
	return val, nil
}

func renderJSON(val any) ([]byte, error) {
	data, err := json.MarshalIndent(jsonSafe(val), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// jsonSafe replaces floating point values that JSON cannot represent with
// the strings accepted when encoding.
func jsonSafe(val any) any {
	switch val := val.(type) {
	case map[string]any:
		for k, v := range val {
			val[k] = jsonSafe(v)
		}
		return val
	case []any:
		for i, v := range val {
			val[i] = jsonSafe(v)
		}
		return val
	case float32:
		return jsonSafeFloat(float64(val), val)
	case float64:
		return jsonSafeFloat(val, val)
	default:
		return val
	}
}

func jsonSafeFloat(f float64, orig any) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	default:
		return orig
	}
}

func parseYAML(doc []byte) (*yaml.Node, error) {
	var n yaml.Node
	if err := yaml.Unmarshal(doc, &n); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &n, nil
}

func renderYAML(n *yaml.Node) ([]byte, error) {
	return yaml.Marshal(n)
}

func parseMsgpack(doc []byte) (any, error) {
	var val any
	if err := msgpack.Unmarshal(doc, &val); err != nil {
		return nil, fmt.Errorf("failed to parse msgpack: %w", err)
	}
	return val, nil
}

func renderMsgpack(val any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(val); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

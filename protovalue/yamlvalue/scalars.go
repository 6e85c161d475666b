package yamlvalue

import (
	"encoding/base64"
	"math"
	"strconv"
	"strings"
	"sync"

	"google.golang.org/protobuf/reflect/protoreflect"
	"gopkg.in/yaml.v3"

	"github.com/jhump/protodyn/protovalue"
)

var fromPbFunctions = sync.OnceValue(func() protovalue.FromPbFunctionMap[*yaml.Node] {
	return protovalue.FromPbFunctionMap[*yaml.Node]{
		protovalue.KindInt32:  intFromPb,
		protovalue.KindInt64:  intFromPb,
		protovalue.KindUint32: uintFromPb,
		protovalue.KindUint64: uintFromPb,
		protovalue.KindFloat: func(ctx *protovalue.Context) (*yaml.Node, error) {
			return floatNode(ctx.Value().Float(), 32), nil
		},
		protovalue.KindDouble: func(ctx *protovalue.Context) (*yaml.Node, error) {
			return floatNode(ctx.Value().Float(), 64), nil
		},
		protovalue.KindBool: func(ctx *protovalue.Context) (*yaml.Node, error) {
			return scalarNode(tagBool, strconv.FormatBool(ctx.Value().Bool())), nil
		},
		protovalue.KindString: func(ctx *protovalue.Context) (*yaml.Node, error) {
			return strNode(ctx.Value().String()), nil
		},
		protovalue.KindBytes: func(ctx *protovalue.Context) (*yaml.Node, error) {
			return scalarNode(tagBinary, base64.StdEncoding.EncodeToString(ctx.Value().Bytes())), nil
		},
		protovalue.KindEnum: func(ctx *protovalue.Context) (*yaml.Node, error) {
			num := ctx.Value().Enum()
			if !ctx.Options.UseEnumNumbers {
				if evd := ctx.Field.Enum().Values().ByNumber(num); evd != nil {
					return strNode(string(evd.Name())), nil
				}
			}
			return scalarNode(tagInt, strconv.FormatInt(int64(num), 10)), nil
		},
	}
})

func intFromPb(ctx *protovalue.Context) (*yaml.Node, error) {
	return scalarNode(tagInt, strconv.FormatInt(ctx.Value().Int(), 10)), nil
}

func uintFromPb(ctx *protovalue.Context) (*yaml.Node, error) {
	return scalarNode(tagInt, strconv.FormatUint(ctx.Value().Uint(), 10)), nil
}

func scalarNode(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func floatNode(f float64, bitSize int) *yaml.Node {
	var s string
	switch {
	case math.IsNaN(f):
		s = ".nan"
	case math.IsInf(f, 1):
		s = ".inf"
	case math.IsInf(f, -1):
		s = "-.inf"
	default:
		s = strconv.FormatFloat(f, 'g', -1, bitSize)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
	}
	return scalarNode(tagFloat, s)
}

var toPbFunctions = sync.OnceValue(func() protovalue.ToPbFunctionMap[*yaml.Node] {
	return protovalue.ToPbFunctionMap[*yaml.Node]{
		protovalue.KindInt32: func(n *yaml.Node, ctx *protovalue.Context) error {
			i, err := toInt(n, ctx, 32)
			if err != nil {
				return err
			}
			ctx.Set(protoreflect.ValueOfInt32(int32(i)))
			return nil
		},
		protovalue.KindInt64: func(n *yaml.Node, ctx *protovalue.Context) error {
			i, err := toInt(n, ctx, 64)
			if err != nil {
				return err
			}
			ctx.Set(protoreflect.ValueOfInt64(i))
			return nil
		},
		protovalue.KindUint32: func(n *yaml.Node, ctx *protovalue.Context) error {
			u, err := toUint(n, ctx, 32)
			if err != nil {
				return err
			}
			ctx.Set(protoreflect.ValueOfUint32(uint32(u)))
			return nil
		},
		protovalue.KindUint64: func(n *yaml.Node, ctx *protovalue.Context) error {
			u, err := toUint(n, ctx, 64)
			if err != nil {
				return err
			}
			ctx.Set(protoreflect.ValueOfUint64(u))
			return nil
		},
		protovalue.KindFloat: func(n *yaml.Node, ctx *protovalue.Context) error {
			f, err := toFloat(n, ctx, 32)
			if err != nil {
				return err
			}
			ctx.Set(protoreflect.ValueOfFloat32(float32(f)))
			return nil
		},
		protovalue.KindDouble: func(n *yaml.Node, ctx *protovalue.Context) error {
			f, err := toFloat(n, ctx, 64)
			if err != nil {
				return err
			}
			ctx.Set(protoreflect.ValueOfFloat64(f))
			return nil
		},
		protovalue.KindBool: func(n *yaml.Node, ctx *protovalue.Context) error {
			s, tag, err := scalar(n, ctx)
			if err != nil {
				return err
			}
			if tag != tagBool && !(tag == tagStr && ctx.IsMapKey()) {
				return incompatible(n, ctx)
			}
			b, err := strconv.ParseBool(strings.ToLower(s))
			if err != nil {
				return incompatible(n, ctx)
			}
			ctx.Set(protoreflect.ValueOfBool(b))
			return nil
		},
		protovalue.KindString: func(n *yaml.Node, ctx *protovalue.Context) error {
			s, tag, err := scalar(n, ctx)
			if err != nil {
				return err
			}
			if tag != tagStr {
				return incompatible(n, ctx)
			}
			ctx.Set(protoreflect.ValueOfString(s))
			return nil
		},
		protovalue.KindBytes: bytesToPb,
		protovalue.KindEnum:  enumToPb,
	}
})

func incompatible(n *yaml.Node, ctx *protovalue.Context) error {
	return protovalue.Errorf(protovalue.CodeArgTypeError, "expected %v, got %s", ctx.Kind(), describe(resolve(n)))
}

func outOfRange(s string, ctx *protovalue.Context) error {
	return protovalue.Errorf(protovalue.CodeArgTypeError, "value %s is out of range for %v", s, ctx.Kind())
}

// scalar returns the text and resolved tag of a scalar node.
func scalar(n *yaml.Node, ctx *protovalue.Context) (string, string, error) {
	r := resolve(n)
	if r == nil || r.Kind != yaml.ScalarNode {
		return "", "", incompatible(n, ctx)
	}
	return r.Value, r.ShortTag(), nil
}

// numericText returns the text of a scalar node that can be parsed as a
// number. Strings are only accepted for map keys.
func numericText(n *yaml.Node, ctx *protovalue.Context) (string, string, error) {
	s, tag, err := scalar(n, ctx)
	if err != nil {
		return "", "", err
	}
	switch tag {
	case tagInt, tagFloat:
		return strings.ReplaceAll(s, "_", ""), tag, nil
	case tagStr:
		if ctx.IsMapKey() {
			return s, tag, nil
		}
	}
	return "", "", incompatible(n, ctx)
}

func toInt(n *yaml.Node, ctx *protovalue.Context, bitSize int) (int64, error) {
	s, tag, err := numericText(n, ctx)
	if err != nil {
		return 0, err
	}
	if tag != tagFloat {
		i, err := strconv.ParseInt(s, 0, bitSize)
		if err == nil {
			return i, nil
		}
		if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			return 0, outOfRange(s, ctx)
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, incompatible(n, ctx)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 ||
		(bitSize == 32 && (f < math.MinInt32 || f > math.MaxInt32)) {
		return 0, outOfRange(s, ctx)
	}
	return int64(f), nil
}

func toUint(n *yaml.Node, ctx *protovalue.Context, bitSize int) (uint64, error) {
	s, tag, err := numericText(n, ctx)
	if err != nil {
		return 0, err
	}
	if tag != tagFloat {
		u, err := strconv.ParseUint(s, 0, bitSize)
		if err == nil {
			return u, nil
		}
		if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			return 0, outOfRange(s, ctx)
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, incompatible(n, ctx)
	}
	if f < 0 || f >= math.MaxUint64 || (bitSize == 32 && f > math.MaxUint32) {
		return 0, outOfRange(s, ctx)
	}
	return uint64(f), nil
}

func toFloat(n *yaml.Node, ctx *protovalue.Context, bitSize int) (float64, error) {
	s, tag, err := scalar(n, ctx)
	if err != nil {
		return 0, err
	}
	switch tag {
	case tagInt, tagFloat:
	case tagStr:
		switch s {
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		}
		return 0, incompatible(n, ctx)
	default:
		return 0, incompatible(n, ctx)
	}
	switch strings.ToLower(s) {
	case ".nan":
		return math.NaN(), nil
	case ".inf", "+.inf":
		return math.Inf(1), nil
	case "-.inf":
		return math.Inf(-1), nil
	}
	s = strings.ReplaceAll(s, "_", "")
	if tag == tagInt {
		if i, err := strconv.ParseInt(s, 0, 64); err == nil {
			return float64(i), nil
		}
		if u, err := strconv.ParseUint(s, 0, 64); err == nil {
			return float64(u), nil
		}
	}
	f, err := strconv.ParseFloat(s, bitSize)
	if err != nil {
		if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			return 0, outOfRange(s, ctx)
		}
		return 0, incompatible(n, ctx)
	}
	return f, nil
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.URLEncoding,
	base64.RawStdEncoding,
	base64.RawURLEncoding,
}

func bytesToPb(n *yaml.Node, ctx *protovalue.Context) error {
	s, tag, err := scalar(n, ctx)
	if err != nil {
		return err
	}
	if tag != tagBinary && tag != tagStr {
		return incompatible(n, ctx)
	}
	// Binary scalars may be folded across several lines.
	s = strings.Join(strings.Fields(s), "")
	for _, enc := range base64Encodings {
		if b, err := enc.DecodeString(s); err == nil {
			ctx.Set(protoreflect.ValueOfBytes(b))
			return nil
		}
	}
	return protovalue.Errorf(protovalue.CodeArgTypeError, "expected %v, got %s that is not valid base64", ctx.Kind(), describe(resolve(n)))
}

func enumToPb(n *yaml.Node, ctx *protovalue.Context) error {
	ed := ctx.Field.Enum()
	s, tag, err := scalar(n, ctx)
	if err != nil {
		return err
	}
	if tag == tagStr {
		evd := ed.Values().ByName(protoreflect.Name(s))
		if evd == nil {
			return protovalue.Errorf(protovalue.CodeArgTypeError, "enum %s has no value named %q", ed.FullName(), s)
		}
		ctx.Set(protoreflect.ValueOfEnum(evd.Number()))
		return nil
	}
	i, err := toInt(n, ctx, 32)
	if err != nil {
		return err
	}
	num := protoreflect.EnumNumber(i)
	if ed.IsClosed() && ed.Values().ByNumber(num) == nil {
		return protovalue.Errorf(protovalue.CodeArgTypeError, "enum %s has no value numbered %d", ed.FullName(), num)
	}
	ctx.Set(protoreflect.ValueOfEnum(num))
	return nil
}

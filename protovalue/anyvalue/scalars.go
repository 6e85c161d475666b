package anyvalue

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"sync"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jhump/protodyn/protovalue"
)

var fromPbFunctions = sync.OnceValue(func() protovalue.FromPbFunctionMap[any] {
	return protovalue.FromPbFunctionMap[any]{
		protovalue.KindInt32: func(ctx *protovalue.Context) (any, error) {
			return int32(ctx.Value().Int()), nil
		},
		protovalue.KindInt64: func(ctx *protovalue.Context) (any, error) {
			return ctx.Value().Int(), nil
		},
		protovalue.KindUint32: func(ctx *protovalue.Context) (any, error) {
			return uint32(ctx.Value().Uint()), nil
		},
		protovalue.KindUint64: func(ctx *protovalue.Context) (any, error) {
			return ctx.Value().Uint(), nil
		},
		protovalue.KindFloat: func(ctx *protovalue.Context) (any, error) {
			return float32(ctx.Value().Float()), nil
		},
		protovalue.KindDouble: func(ctx *protovalue.Context) (any, error) {
			return ctx.Value().Float(), nil
		},
		protovalue.KindBool: func(ctx *protovalue.Context) (any, error) {
			return ctx.Value().Bool(), nil
		},
		protovalue.KindString: func(ctx *protovalue.Context) (any, error) {
			return ctx.Value().String(), nil
		},
		protovalue.KindBytes: func(ctx *protovalue.Context) (any, error) {
			return append([]byte{}, ctx.Value().Bytes()...), nil
		},
		protovalue.KindEnum: enumFromPb,
	}
})

func enumFromPb(ctx *protovalue.Context) (any, error) {
	num := ctx.Value().Enum()
	if !ctx.Options.UseEnumNumbers {
		if evd := ctx.Field.Enum().Values().ByNumber(num); evd != nil {
			return string(evd.Name()), nil
		}
	}
	return int32(num), nil
}

var toPbFunctions = sync.OnceValue(func() protovalue.ToPbFunctionMap[any] {
	return protovalue.ToPbFunctionMap[any]{
		protovalue.KindInt32: func(val any, ctx *protovalue.Context) error {
			i, err := toInt(val, ctx, 32)
			if err != nil {
				return err
			}
			ctx.Set(protoreflect.ValueOfInt32(int32(i)))
			return nil
		},
		protovalue.KindInt64: func(val any, ctx *protovalue.Context) error {
			i, err := toInt(val, ctx, 64)
			if err != nil {
				return err
			}
			ctx.Set(protoreflect.ValueOfInt64(i))
			return nil
		},
		protovalue.KindUint32: func(val any, ctx *protovalue.Context) error {
			u, err := toUint(val, ctx, 32)
			if err != nil {
				return err
			}
			ctx.Set(protoreflect.ValueOfUint32(uint32(u)))
			return nil
		},
		protovalue.KindUint64: func(val any, ctx *protovalue.Context) error {
			u, err := toUint(val, ctx, 64)
			if err != nil {
				return err
			}
			ctx.Set(protoreflect.ValueOfUint64(u))
			return nil
		},
		protovalue.KindFloat: func(val any, ctx *protovalue.Context) error {
			f, err := toFloat(val, ctx)
			if err != nil {
				return err
			}
			if !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
				return outOfRange(val, ctx)
			}
			ctx.Set(protoreflect.ValueOfFloat32(float32(f)))
			return nil
		},
		protovalue.KindDouble: func(val any, ctx *protovalue.Context) error {
			f, err := toFloat(val, ctx)
			if err != nil {
				return err
			}
			ctx.Set(protoreflect.ValueOfFloat64(f))
			return nil
		},
		protovalue.KindBool:   boolToPb,
		protovalue.KindString: stringToPb,
		protovalue.KindBytes:  bytesToPb,
		protovalue.KindEnum:   enumToPb,
	}
})

func incompatible(val any, ctx *protovalue.Context) error {
	return protovalue.Errorf(protovalue.CodeArgTypeError, "expected %v, got %T", ctx.Kind(), val)
}

func outOfRange(val any, ctx *protovalue.Context) error {
	return protovalue.Errorf(protovalue.CodeArgTypeError, "value %v is out of range for %v", val, ctx.Kind())
}

func toInt(val any, ctx *protovalue.Context, bitSize int) (int64, error) {
	v := indirect(val)
	switch v := v.(type) {
	case json.Number:
		return parseInt(string(v), val, ctx, bitSize)
	case string:
		if !ctx.IsMapKey() {
			return 0, incompatible(val, ctx)
		}
		return parseInt(v, val, ctx, bitSize)
	}
	rv := reflect.ValueOf(v)
	var i int64
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i = rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, outOfRange(val, ctx)
		}
		i = int64(u)
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, incompatible(val, ctx)
		}
		i = int64(f)
	default:
		return 0, incompatible(val, ctx)
	}
	if bitSize == 32 && (i < math.MinInt32 || i > math.MaxInt32) {
		return 0, outOfRange(val, ctx)
	}
	return i, nil
}

func parseInt(s string, val any, ctx *protovalue.Context, bitSize int) (int64, error) {
	i, err := strconv.ParseInt(s, 10, bitSize)
	if err == nil {
		return i, nil
	}
	// Accept integral values written in float syntax, like "1e3" or "2.0".
	f, ferr := strconv.ParseFloat(s, 64)
	if ferr != nil || f != math.Trunc(f) {
		return 0, incompatible(val, ctx)
	}
	return toInt(f, ctx, bitSize)
}

func toUint(val any, ctx *protovalue.Context, bitSize int) (uint64, error) {
	v := indirect(val)
	switch v := v.(type) {
	case json.Number:
		return parseUint(string(v), val, ctx, bitSize)
	case string:
		if !ctx.IsMapKey() {
			return 0, incompatible(val, ctx)
		}
		return parseUint(v, val, ctx, bitSize)
	}
	rv := reflect.ValueOf(v)
	var u uint64
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := rv.Int()
		if i < 0 {
			return 0, outOfRange(val, ctx)
		}
		u = uint64(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u = rv.Uint()
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) {
			return 0, incompatible(val, ctx)
		}
		if f < 0 || f >= math.MaxUint64 {
			return 0, outOfRange(val, ctx)
		}
		u = uint64(f)
	default:
		return 0, incompatible(val, ctx)
	}
	if bitSize == 32 && u > math.MaxUint32 {
		return 0, outOfRange(val, ctx)
	}
	return u, nil
}

func parseUint(s string, val any, ctx *protovalue.Context, bitSize int) (uint64, error) {
	u, err := strconv.ParseUint(s, 10, bitSize)
	if err == nil {
		return u, nil
	}
	f, ferr := strconv.ParseFloat(s, 64)
	if ferr != nil || f != math.Trunc(f) {
		return 0, incompatible(val, ctx)
	}
	return toUint(f, ctx, bitSize)
}

func toFloat(val any, ctx *protovalue.Context) (float64, error) {
	v := indirect(val)
	switch v := v.(type) {
	case json.Number:
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return 0, incompatible(val, ctx)
		}
		return f, nil
	case string:
		switch v {
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		}
		return 0, incompatible(val, ctx)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	default:
		return 0, incompatible(val, ctx)
	}
}

func boolToPb(val any, ctx *protovalue.Context) error {
	v := indirect(val)
	if s, ok := v.(string); ok && ctx.IsMapKey() {
		switch s {
		case "true":
			v = true
		case "false":
			v = false
		}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Bool {
		return incompatible(val, ctx)
	}
	ctx.Set(protoreflect.ValueOfBool(rv.Bool()))
	return nil
}

func stringToPb(val any, ctx *protovalue.Context) error {
	v := indirect(val)
	// json.Number has kind string but holds a number
	if _, ok := v.(json.Number); ok {
		return incompatible(val, ctx)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.String {
		return incompatible(val, ctx)
	}
	ctx.Set(protoreflect.ValueOfString(rv.String()))
	return nil
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.URLEncoding,
	base64.RawStdEncoding,
	base64.RawURLEncoding,
}

func bytesToPb(val any, ctx *protovalue.Context) error {
	v := indirect(val)
	if s, ok := v.(string); ok {
		b, err := decodeBase64(s)
		if err != nil {
			return protovalue.Errorf(protovalue.CodeArgTypeError, "expected %v, got string that is not valid base64: %v", ctx.Kind(), err)
		}
		ctx.Set(protoreflect.ValueOfBytes(b))
		return nil
	}
	rv := reflect.ValueOf(v)
	if !isBytes(rv) {
		return incompatible(val, ctx)
	}
	ctx.Set(protoreflect.ValueOfBytes(bytes.Clone(rv.Bytes())))
	return nil
}

func decodeBase64(s string) ([]byte, error) {
	var firstErr error
	for _, enc := range base64Encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func enumToPb(val any, ctx *protovalue.Context) error {
	ed := ctx.Field.Enum()
	v := indirect(val)
	if s, ok := v.(string); ok {
		evd := ed.Values().ByName(protoreflect.Name(s))
		if evd == nil {
			return protovalue.Errorf(protovalue.CodeArgTypeError, "enum %s has no value named %q", ed.FullName(), s)
		}
		ctx.Set(protoreflect.ValueOfEnum(evd.Number()))
		return nil
	}
	i, err := toInt(val, ctx, 32)
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

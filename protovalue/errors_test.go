package protovalue

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodes(t *testing.T) {
	require.Equal(t, Code(-1), CodeUnknown)
	require.Equal(t, Code(0), CodeSuccess)
	require.Equal(t, Code(100), CodeNoConvertFunction)
	require.Equal(t, Code(106), CodePoolIsNull)

	require.Equal(t, "Missing arg!", CodeMissingArg.String())
	require.Equal(t, "PB message not found!", CodeMessageNotFound.String())
	require.Equal(t, "unknown code (42)", Code(42).String())

	require.Equal(t, "CommonError", CodeArgTypeError.Category())
	require.Equal(t, "ConvertError", CodeParseError.Category())
}

func TestError(t *testing.T) {
	err := Errorf(CodeArgTypeError, "expected %s", "int32")
	require.Equal(t, "Arg type error! expected int32", err.Error())
	require.Equal(t, "CommonError", err.Category)
	require.True(t, err.IsFailure())
	require.True(t, errors.Is(err, ErrArgType))
	require.False(t, errors.Is(err, ErrParse))

	require.Equal(t, "PB parse error!", NewError(CodeParseError, "").Error())
	require.False(t, NewError(CodeSuccess, "").IsFailure())

	cause := errors.New("boom")
	wrapped := fmt.Errorf("context: %w", wrapError(CodeParseError, cause, "bad bytes"))
	require.ErrorIs(t, wrapped, ErrParse)
	require.ErrorIs(t, wrapped, cause)
	require.Equal(t, CodeParseError, CodeOf(wrapped))

	require.Equal(t, CodeSuccess, CodeOf(nil))
	require.Equal(t, CodeUnknown, CodeOf(cause))
	require.False(t, IsFailure(nil))
	require.True(t, IsFailure(cause))
}

func TestWithFieldInfo(t *testing.T) {
	require.NoError(t, withFieldInfo(nil, "f", "foo.Bar"))

	err := withFieldInfo(Errorf(CodeArgTypeError, "expected int32, got string"), "count", "foo.Inner")
	require.Equal(t, "Arg type error! expected int32, got string Message Type: foo.Inner, Field: count", err.Error())

	// attribution is only added once
	again := withFieldInfo(err, "inner", "foo.Outer")
	require.Equal(t, err.Error(), again.Error())
	require.Equal(t, 1, strings.Count(again.Error(), fieldMarker))

	// text that looks like an attribution does not count as one
	quoted := withFieldInfo(Errorf(CodeArgTypeError, "no value named %q", "Field: x"), "color", "foo.Inner")
	require.Equal(t, `Arg type error! no value named "Field: x" Message Type: foo.Inner, Field: color`, quoted.Error())

	// the original is not modified
	orig := Errorf(CodeMissingArg, "x")
	_ = withFieldInfo(orig, "a", "b.C")
	require.Equal(t, "Missing arg! x", orig.Error())

	// foreign errors become failures with attribution
	foreign := withFieldInfo(errors.New("oops"), "a", "b.C")
	require.Equal(t, CodeFailed, CodeOf(foreign))
	require.Equal(t, "Failed! oops Message Type: b.C, Field: a", foreign.Error())
}

package protovalue

import (
	"errors"
	"fmt"
)

// Code identifies the kind of failure reported by a conversion. The zero
// value, CodeSuccess, is never carried by a returned error.
type Code int

// Generic result codes. These mirror the common error category shared by
// host bridges.
const (
	CodeUnknown Code = iota - 1
	CodeSuccess
	CodeFailed
	CodeMissingArg
	CodeArgTypeError
)

// Conversion-specific result codes. They start at 100 so they never collide
// with the generic codes above.
const (
	CodeNoConvertFunction Code = iota + 100
	CodeMessageInfoError
	CodeGetRepeatItemError
	CodeNoExistAndNoDefaultValue
	CodeMessageNotFound
	CodeParseError
	CodePoolIsNull
)

const (
	commonCategory  = "CommonError"
	convertCategory = "ConvertError"
)

var codeDescriptions = map[Code]string{
	CodeUnknown:                  "Unknown error!",
	CodeSuccess:                  "Success!",
	CodeFailed:                   "Failed!",
	CodeMissingArg:               "Missing arg!",
	CodeArgTypeError:             "Arg type error!",
	CodeNoConvertFunction:        "No convert function!",
	CodeMessageInfoError:         "PB Message info error!",
	CodeGetRepeatItemError:       "Get repeat item error!",
	CodeNoExistAndNoDefaultValue: "PB field no exist and no default value!",
	CodeMessageNotFound:          "PB message not found!",
	CodeParseError:               "PB parse error!",
	CodePoolIsNull:               "PB pool is null!",
}

// String returns the fixed description of the code.
func (c Code) String() string {
	if d, ok := codeDescriptions[c]; ok {
		return d
	}
	return fmt.Sprintf("unknown code (%d)", int(c))
}

// Category returns the name of the category the code belongs to.
func (c Code) Category() string {
	if c >= CodeNoConvertFunction {
		return convertCategory
	}
	return commonCategory
}

// Error is the error type returned by all conversion operations.
type Error struct {
	Code     Code
	Message  string
	Category string
	cause    error
	// attributed is set once the message names the failing field.
	attributed bool
}

// Sentinel values for use with errors.Is. Any *Error with the same code
// matches, regardless of its message.
var (
	ErrFailed                   = &Error{Code: CodeFailed}
	ErrMissingArg               = &Error{Code: CodeMissingArg}
	ErrArgType                  = &Error{Code: CodeArgTypeError}
	ErrNoConvertFunction        = &Error{Code: CodeNoConvertFunction}
	ErrMessageInfo              = &Error{Code: CodeMessageInfoError}
	ErrGetRepeatItem            = &Error{Code: CodeGetRepeatItemError}
	ErrNoExistAndNoDefaultValue = &Error{Code: CodeNoExistAndNoDefaultValue}
	ErrMessageNotFound          = &Error{Code: CodeMessageNotFound}
	ErrParse                    = &Error{Code: CodeParseError}
	ErrPoolIsNull               = &Error{Code: CodePoolIsNull}
)

// NewError returns an error with the given code and message. If msg is empty,
// the code's description is used.
func NewError(code Code, msg string) *Error {
	if msg == "" {
		msg = code.String()
	}
	return &Error{Code: code, Message: msg, Category: code.Category()}
}

// Errorf returns an error with the given code. The message is the code's
// description followed by the formatted detail.
func Errorf(code Code, format string, args ...any) *Error {
	return NewError(code, code.String()+" "+fmt.Sprintf(format, args...))
}

func wrapError(code Code, cause error, format string, args ...any) *Error {
	err := Errorf(code, format, args...)
	err.cause = cause
	return err
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return e.Message
}

// Unwrap returns the underlying error, if any, that caused this one.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// IsFailure reports whether the error represents a failure. Only errors with
// CodeSuccess are not failures.
func (e *Error) IsFailure() bool {
	return e != nil && e.Code != CodeSuccess
}

// CodeOf returns the code carried by err. It returns CodeSuccess for a nil
// error and CodeUnknown for errors not produced by this package.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsFailure reports whether err is a failing error.
func IsFailure(err error) bool {
	return CodeOf(err) != CodeSuccess
}

const fieldMarker = "Field: "

// withFieldInfo attributes err to the given field of the given message type.
// The annotation is only added once, so errors that already carry a field
// from a deeper layer of recursion are returned unchanged.
func withFieldInfo(err error, field, messageType string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		e = wrapError(CodeFailed, err, "%v", err)
	}
	if !e.IsFailure() || e.attributed {
		return e
	}
	annotated := *e
	annotated.Message = e.Error() + " Message Type: " + messageType + ", " + fieldMarker + field
	annotated.attributed = true
	return &annotated
}

// Package status defines the error taxonomy shared by every layer of the
// message core, plus a fixed-capacity [Status] used while building
// descriptors.
package status

import (
	"errors"
	"fmt"
)

// Code classifies a failure.
type Code int

const (
	OK Code = iota
	// OutOfMemory means an arena allocation failed.
	OutOfMemory
	// Malformed means wire bytes violate the grammar.
	Malformed
	// MaxDepthExceeded means a nesting limit was hit.
	MaxDepthExceeded
	// BadUTF8 means a string field failed validation.
	BadUTF8
	// MissingRequired means a required field is absent.
	MissingRequired
	// TypeError means a host value is incompatible with the field type.
	TypeError
	// RangeError means a host numeric is out of range, or an enum name is
	// unknown.
	RangeError
	// EncodingError means a string is not representable as UTF-8.
	EncodingError
	// SymbolNotFound means a descriptor reference could not be resolved.
	SymbolNotFound
	// Duplicate means a descriptor symbol is defined twice.
	Duplicate
	// Invalid means a descriptor failed validation.
	Invalid
	// OutOfRange means a container index is out of bounds.
	OutOfRange
)

var codeNames = [...]string{
	OK:               "ok",
	OutOfMemory:      "out of memory",
	Malformed:        "malformed",
	MaxDepthExceeded: "max depth exceeded",
	BadUTF8:          "bad utf-8",
	MissingRequired:  "missing required",
	TypeError:        "type error",
	RangeError:       "range error",
	EncodingError:    "encoding error",
	SymbolNotFound:   "symbol not found",
	Duplicate:        "duplicate",
	Invalid:          "invalid",
	OutOfRange:       "out of range",
}

func (c Code) String() string {
	if c >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Error is the concrete error type returned by the core. Two errors match
// under [errors.Is] when their codes are equal, so the sentinel values
// below work as targets.
type Error struct {
	Cause   error
	Message string
	Code    Code
}

// Sentinels for use with [errors.Is].
var (
	ErrOutOfMemory      = &Error{Code: OutOfMemory}
	ErrMalformed        = &Error{Code: Malformed}
	ErrMaxDepthExceeded = &Error{Code: MaxDepthExceeded}
	ErrBadUTF8          = &Error{Code: BadUTF8}
	ErrMissingRequired  = &Error{Code: MissingRequired}
	ErrTypeError        = &Error{Code: TypeError}
	ErrRangeError       = &Error{Code: RangeError}
	ErrEncodingError    = &Error{Code: EncodingError}
	ErrSymbolNotFound   = &Error{Code: SymbolNotFound}
	ErrDuplicate        = &Error{Code: Duplicate}
	ErrInvalid          = &Error{Code: Invalid}
	ErrOutOfRange       = &Error{Code: OutOfRange}
)

// New returns an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf returns an error with the given code and a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an error with the given code, recording cause.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	} else {
		msg = e.Code.String() + ": " + msg
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an [*Error] with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the code of the first [*Error] in err's chain, or [OK]
// when err is nil. Errors outside the taxonomy report [Invalid].
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Invalid
}

package eval

import (
	"errors"
	"fmt"

	"github.com/conneroisu/marka/pkg/stream"
)

// ErrorCode classifies expression compilation and evaluation failures.
type ErrorCode string

const (
	// CodeSyntax covers malformed expression source.
	CodeSyntax ErrorCode = "expr_syntax"
	// CodeUndefinedVariable is reported when a name is bound in no scope
	// frame. In lenient mode the bare reference yields Undefined instead.
	CodeUndefinedVariable ErrorCode = "undefined_variable"
	// CodeUndefinedAttribute is reported for attribute or item lookups
	// that cannot be satisfied, including any lookup on Undefined.
	CodeUndefinedAttribute ErrorCode = "undefined_attribute"
	// CodeNotCallable is reported when a call target is not a function,
	// macro or other callable value.
	CodeNotCallable ErrorCode = "not_callable"
	// CodeType covers operand type mismatches, such as subtracting a
	// string or iterating a number.
	CodeType ErrorCode = "type_error"
)

// Error is an expression error, carrying the expression source and its
// position in the template for diagnostics.
type Error struct {
	Code    ErrorCode
	Message string
	Expr    string
	Pos     stream.Pos
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Expr != "" {
		msg += fmt.Sprintf(" in expression %q", e.Expr)
	}
	if e.Pos.Line > 0 {
		msg += " (" + e.Pos.String() + ")"
	}
	return msg
}

// Is matches any *Error with the same code, so callers can test with
// errors.Is against the exported sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrUndefinedVariable  = &Error{Code: CodeUndefinedVariable}
	ErrUndefinedAttribute = &Error{Code: CodeUndefinedAttribute}
	ErrNotCallable        = &Error{Code: CodeNotCallable}
)

func errorf(code ErrorCode, expr string, pos stream.Pos, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Expr: expr, Pos: pos}
}

package template

import (
	"errors"
	"fmt"

	"github.com/conneroisu/marka/pkg/stream"
)

// ErrorCode classifies template compilation and rendering failures.
type ErrorCode string

const (
	// CodeSyntax covers malformed template source such as bad
	// interpolation or an unterminated directive block.
	CodeSyntax ErrorCode = "template_syntax"
	// CodeUnknownDirective is reported for an unrecognized name in the
	// directive namespace.
	CodeUnknownDirective ErrorCode = "unknown_directive"
	// CodeBadDirective is reported for a directive with a malformed or
	// conflicting configuration, such as when outside choose.
	CodeBadDirective ErrorCode = "bad_directive"
	// CodeMultipleUnbufferedSelect is reported when an un-buffered match
	// rule body contains more than one select() call; a single-pass
	// capture cannot serve two selections.
	CodeMultipleUnbufferedSelect ErrorCode = "multiple_unbuffered_select"
	// CodeRecursionLimit is reported when macro expansion exceeds the
	// configured depth.
	CodeRecursionLimit ErrorCode = "recursion_limit"
	// CodeNotFound is reported when an included template cannot be
	// resolved and no fallback was declared.
	CodeNotFound ErrorCode = "template_not_found"
)

// Error is a template error carrying the source position it refers to.
type Error struct {
	Code    ErrorCode
	Message string
	Pos     stream.Pos
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Pos.Line > 0 {
		msg += " (" + e.Pos.String() + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// ErrNotFound is wrapped by loader errors for missing templates; include
// sites with fallback content test for it with errors.Is and substitute
// their fallback instead of failing the render.
var ErrNotFound = &Error{Code: CodeNotFound}

func errorf(code ErrorCode, pos stream.Pos, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Pos: pos}
}

package path

import (
	"errors"
	"fmt"

	"github.com/conneroisu/marka/pkg/stream"
)

// ErrorCode classifies path compilation failures.
type ErrorCode string

const (
	// CodeSyntax covers malformed expressions.
	CodeSyntax ErrorCode = "path_syntax"
	// CodeUnsupportedAxis is reported for the parent, ancestor, sibling and
	// namespace axes, which would require buffering the whole document.
	CodeUnsupportedAxis ErrorCode = "unsupported_axis"
	// CodeUnsupportedFunction is reported for count(), position(), last()
	// and id(), which need global stream knowledge.
	CodeUnsupportedFunction ErrorCode = "unsupported_function"
)

// Error is a path compilation error. Compilation never partially succeeds;
// any Error aborts the compile of the enclosing template.
type Error struct {
	Code    ErrorCode
	Message string
	Expr    string
	Pos     stream.Pos
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Expr != "" {
		msg += fmt.Sprintf(" in path %q", e.Expr)
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
	ErrUnsupportedAxis     = &Error{Code: CodeUnsupportedAxis}
	ErrUnsupportedFunction = &Error{Code: CodeUnsupportedFunction}
)

func syntaxErrorf(expr string, pos stream.Pos, format string, args ...any) *Error {
	return &Error{Code: CodeSyntax, Message: fmt.Sprintf(format, args...), Expr: expr, Pos: pos}
}

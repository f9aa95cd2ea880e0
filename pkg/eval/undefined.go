package eval

import (
	"fmt"

	"github.com/conneroisu/marka/pkg/stream"
)

// Undefined is the sentinel produced by lenient lookups of unbound names
// and missing attributes. It is falsy, stringifies to the empty string and
// iterates as empty, but any further attribute access or call on it fails
// with an undefined error, so typos surface at the point of use instead of
// silently spreading.
type Undefined struct {
	// Name is the variable or attribute that failed to resolve.
	Name string
	// Owner is the value the lookup was attempted on, or nil for a bare
	// variable reference.
	Owner any
}

// IsUndefined reports whether v is the Undefined sentinel.
func IsUndefined(v any) bool {
	_, ok := v.(Undefined)
	return ok
}

func (u Undefined) String() string { return "" }

// err describes the failed lookup that produced the sentinel.
func (u Undefined) err(expr string, pos stream.Pos) *Error {
	if u.Owner == nil {
		return &Error{
			Code:    CodeUndefinedVariable,
			Message: fmt.Sprintf("%q not defined", u.Name),
			Expr:    expr,
			Pos:     pos,
		}
	}
	return &Error{
		Code:    CodeUndefinedAttribute,
		Message: fmt.Sprintf("%T has no member %q", u.Owner, u.Name),
		Expr:    expr,
		Pos:     pos,
	}
}

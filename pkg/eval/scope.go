// Package eval compiles and evaluates the small expression language used in
// directive attributes and ${...} substitutions. Expressions are compiled
// once and evaluated against a chain of immutable scope frames; compiled
// expressions carry no per-render state and are safe to share.
package eval

import (
	"sort"

	"github.com/conneroisu/marka/pkg/stream"
)

// Mode selects how unresolvable lookups behave.
type Mode int

const (
	// Strict propagates undefined variables and attributes as errors.
	Strict Mode = iota
	// Lenient turns a bare undefined variable into the Undefined sentinel;
	// attribute access or calls on that sentinel still fail.
	Lenient
)

func (m Mode) String() string {
	if m == Lenient {
		return "lenient"
	}
	return "strict"
}

// Frame is one mapping of names to values. Frames are treated as immutable
// once pushed; a directive that binds names builds a fresh Frame.
type Frame map[string]any

// Scope is a chain of frames with innermost-first lookup. The zero
// Scope is empty and strict; use NewScope to seed render data.
//
// Scope values are persistent: Push returns a child scope instead of
// modifying the receiver, so sibling sub-renders never observe each
// other's bindings.
type Scope struct {
	frames []Frame // outermost first
	mode   Mode
}

// NewScope seeds a scope with the render data as its outermost frame.
func NewScope(data map[string]any, mode Mode) *Scope {
	s := &Scope{mode: mode}
	if data != nil {
		s.frames = append(s.frames, Frame(data))
	}
	return s
}

// Mode reports the scope's lookup mode.
func (s *Scope) Mode() Mode {
	if s == nil {
		return Strict
	}
	return s.mode
}

// Push returns a child scope with one more frame. The receiver is not
// modified.
func (s *Scope) Push(frame Frame) *Scope {
	child := &Scope{mode: s.Mode()}
	child.frames = append(child.frames, s.frames...)
	child.frames = append(child.frames, frame)
	return child
}

// Lookup finds a name innermost-first. Built-in functions resolve last, so
// render data may shadow them.
func (s *Scope) Lookup(name string) (any, bool) {
	if s != nil {
		for i := len(s.frames) - 1; i >= 0; i-- {
			if v, ok := s.frames[i][name]; ok {
				return v, true
			}
		}
	}
	v, ok := builtins[name]
	return v, ok
}

// Names returns every name bound in a frame, sorted. Used by diagnostics
// and tests.
func (s *Scope) Names() []string {
	seen := map[string]bool{}
	if s != nil {
		for _, f := range s.frames {
			for name := range f {
				seen[name] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// scopeFunc is a builtin that needs the live scope chain, like defined().
// The evaluator passes the scope of the enclosing expression.
type scopeFunc func(s *Scope, args []any) (any, error)

// builtins are available in every expression unless shadowed by data.
// Assigned in init: the scope-aware entries call Lookup, and Lookup reads
// this map, so a composite literal would form an initialization cycle.
var builtins map[string]any

func init() {
	builtins = map[string]any{
		"defined": scopeFunc(func(s *Scope, args []any) (any, error) {
			if len(args) != 1 {
				return nil, errorf(CodeType, "", stream.Unknown, "defined() takes one argument")
			}
			_, ok := s.Lookup(Stringify(args[0]))
			return ok, nil
		}),
		"value_of": scopeFunc(func(s *Scope, args []any) (any, error) {
			switch len(args) {
			case 1:
				v, _ := s.Lookup(Stringify(args[0]))
				return v, nil
			case 2:
				if v, ok := s.Lookup(Stringify(args[0])); ok {
					return v, nil
				}
				return args[1], nil
			default:
				return nil, errorf(CodeType, "", stream.Unknown, "value_of() takes one or two arguments")
			}
		}),
		"len": func(v any) int { return valueLen(v) },
		"str": func(v any) string { return Stringify(v) },
	}
}

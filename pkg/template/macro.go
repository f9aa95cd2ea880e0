package template

import (
	"fmt"
	"strings"

	"github.com/conneroisu/marka/pkg/eval"
	"github.com/conneroisu/marka/pkg/stream"
)

// Macro is a named template function created by a def directive. Calling it
// renders its body with the arguments bound over the scope it was defined
// in, so macros close over their surroundings lexically.
type Macro struct {
	name   string
	params []macroParam
	body   []stream.Event
	rest   []*directive
	scope  *eval.Scope
	rc     *renderContext
	pos    stream.Pos
}

// defineMacro builds the macro for a def site and returns the scope that
// the events following the definition render under. The macro is bound in
// its own captured scope, so it can call itself.
func (rc *renderContext) defineMacro(data *sub, scope *eval.Scope) *eval.Scope {
	d := data.dirs[0]
	m := &Macro{
		name:   d.macroName,
		params: d.macroParams,
		body:   data.events,
		rest:   data.dirs[1:],
		rc:     rc,
		pos:    d.pos,
	}
	defScope := scope.Push(eval.Frame{d.macroName: m})
	m.scope = defScope
	return defScope
}

// Arity reports how many arguments a call must supply. A macro whose
// parameters all carry defaults is callable with none, which also makes a
// bare substitution of its name expand it.
func (m *Macro) Arity() int {
	n := 0
	for _, p := range m.params {
		if p.def == nil {
			n++
		}
	}
	return n
}

// Call binds the arguments and returns the macro body as a lazy stream.
// The recursion depth check happens when the stream is consumed, so
// mutually recursive macros are bounded no matter how they nest.
func (m *Macro) Call(args []any) (any, error) {
	if len(args) > len(m.params) {
		return nil, errorf(CodeBadDirective, m.pos,
			"macro %s takes at most %d arguments, got %d", m.name, len(m.params), len(args))
	}
	frame := eval.Frame{}
	for i, p := range m.params {
		switch {
		case i < len(args):
			frame[p.name] = args[i]
		case p.def != nil:
			v, err := p.def.Eval(m.scope)
			if err != nil {
				return nil, err
			}
			frame[p.name] = v
		case m.scope.Mode() == eval.Strict:
			return nil, errorf(CodeBadDirective, m.pos,
				"macro %s missing argument %q", m.name, p.name)
		default:
			frame[p.name] = eval.Undefined{Name: p.name}
		}
	}
	rc := m.rc
	return stream.Generate(func(yield func(stream.Event) bool) error {
		if rc.depth >= rc.tmpl.maxDepth {
			return errorf(CodeRecursionLimit, m.pos,
				"macro %s exceeds recursion depth %d", m.name, rc.tmpl.maxDepth)
		}
		rc.depth++
		defer func() { rc.depth-- }()
		return rc.applyDirectives(m.body, m.rest, m.scope.Push(frame)).Pipe(yield)
	}), nil
}

func (m *Macro) String() string {
	names := make([]string, len(m.params))
	for i, p := range m.params {
		names[i] = p.name
	}
	return fmt.Sprintf("<Macro %s(%s)>", m.name, strings.Join(names, ", "))
}

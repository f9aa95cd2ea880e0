package eval

import (
	"strings"

	"github.com/conneroisu/marka/pkg/stream"
)

// Expr is a compiled expression. Compiled once per template, evaluated per
// render; it carries no evaluation state and is safe to share.
type Expr struct {
	source string
	pos    stream.Pos
	root   node
}

// Compile parses an expression. The pos parameter locates the expression in
// its template for diagnostics.
func Compile(src string, pos stream.Pos) (*Expr, error) {
	p, err := newParser(src, pos)
	if err != nil {
		return nil, err
	}
	root, perr := p.parseExpr()
	if perr != nil {
		return nil, perr
	}
	return &Expr{source: src, pos: pos, root: root}, nil
}

// MustCompile is Compile for expressions known to be valid, as in tests.
func MustCompile(src string) *Expr {
	e, err := Compile(src, stream.Unknown)
	if err != nil {
		panic(err)
	}
	return e
}

// Eval evaluates the expression against a scope. The scope's mode decides
// whether undefined names fail or yield the Undefined sentinel.
func (e *Expr) Eval(scope *Scope) (any, error) {
	return e.root.eval(&evalCtx{scope: scope, expr: e.source, pos: e.pos})
}

// Source returns the original expression text.
func (e *Expr) Source() string { return e.source }

// Pos returns the expression's position in its template.
func (e *Expr) Pos() stream.Pos { return e.pos }

func (e *Expr) String() string { return "<Expression \"" + e.source + "\">" }

// Assignment is one name=expr binding from a variable-binder directive.
type Assignment struct {
	Name string
	Expr *Expr
}

// ParseAssignments compiles a ";"-separated list of name=expr assignments,
// as accepted by variable-binder directives. Later assignments may
// reference names bound by earlier ones; the caller evaluates them
// left-to-right into one new scope frame.
func ParseAssignments(src string, pos stream.Pos) ([]Assignment, error) {
	var assignments []Assignment
	for _, part := range splitAssignments(src) {
		name, value, found := cutAssignment(part)
		if !found {
			return nil, errorf(CodeSyntax, src, pos, "expected name=expression, found %q", part)
		}
		expr, err := Compile(value, pos)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, Assignment{Name: name, Expr: expr})
	}
	if len(assignments) == 0 {
		return nil, errorf(CodeSyntax, src, pos, "empty assignment list")
	}
	return assignments, nil
}

// splitAssignments splits on ";" outside string literals.
func splitAssignments(src string) []string {
	var parts []string
	var quote byte
	start := 0
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ';':
			if part := strings.TrimSpace(src[start:i]); part != "" {
				parts = append(parts, part)
			}
			start = i + 1
		}
	}
	if part := strings.TrimSpace(src[start:]); part != "" {
		parts = append(parts, part)
	}
	return parts
}

// cutAssignment splits "name = expr" at the first "=" that is not part of
// a comparison operator or inside a string.
func cutAssignment(part string) (name, value string, found bool) {
	var quote byte
	for i := 0; i < len(part); i++ {
		c := part[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '=':
			if i+1 < len(part) && part[i+1] == '=' {
				i++
				continue
			}
			if i > 0 && (part[i-1] == '!' || part[i-1] == '<' || part[i-1] == '>') {
				continue
			}
			name = strings.TrimSpace(part[:i])
			value = strings.TrimSpace(part[i+1:])
			if name == "" || value == "" || !isIdent(name) {
				return "", "", false
			}
			return name, value, true
		}
	}
	return "", "", false
}

func isIdent(s string) bool {
	for i, r := range s {
		alpha := r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
		if i == 0 && !alpha {
			return false
		}
		if !alpha && (r < '0' || r > '9') {
			return false
		}
	}
	return len(s) > 0
}

package template

import (
	"strings"

	"github.com/conneroisu/marka/pkg/eval"
	"github.com/conneroisu/marka/pkg/path"
	"github.com/conneroisu/marka/pkg/stream"
)

// directiveKind enumerates the closed directive vocabulary. The numeric
// order is the application precedence: a directive wraps the result of
// every directive that sorts after it on the same element.
type directiveKind int

const (
	dirDef directiveKind = iota
	dirMatch
	dirWhen
	dirOtherwise
	dirFor
	dirIf
	dirChoose
	dirWith
	dirReplace
	dirContent
	dirAttrs
	dirStrip
)

var directiveNames = map[directiveKind]string{
	dirDef:       "def",
	dirMatch:     "match",
	dirWhen:      "when",
	dirOtherwise: "otherwise",
	dirFor:       "for",
	dirIf:        "if",
	dirChoose:    "choose",
	dirWith:      "with",
	dirReplace:   "replace",
	dirContent:   "content",
	dirAttrs:     "attrs",
	dirStrip:     "strip",
}

var directiveKinds = func() map[string]directiveKind {
	m := make(map[string]directiveKind, len(directiveNames))
	for k, name := range directiveNames {
		m[name] = k
	}
	return m
}()

func (k directiveKind) String() string { return directiveNames[k] }

// matchHints configures one match rule. recursive defaults true and is
// forced false by once, since a rule that stops scanning cannot re-offer
// its own output to itself.
type matchHints struct {
	buffer    bool
	once      bool
	recursive bool
}

// directive is one compiled directive occurrence. Immutable after
// compilation; all per-render state lives in the scope chain and the
// render context.
type directive struct {
	kind directiveKind
	pos  stream.Pos

	// expr is the directive's compiled expression: the test for if/when/
	// strip, the value for replace/content/attrs/choose, the iterable for
	// for. def, match and with use the dedicated fields instead.
	expr *eval.Expr

	// for; more than one name unpacks each item
	loopVars []string

	// with
	assignments []eval.Assignment

	// def
	macroName   string
	macroParams []macroParam

	// match
	path  *path.Path
	hints matchHints
	ns    map[string]string
}

type macroParam struct {
	name    string
	def     *eval.Expr // nil when the parameter is required
}

// parseDirective compiles one directive attribute (or element-form) value.
func parseDirective(name, value string, pos stream.Pos, ns map[string]string) (*directive, error) {
	kind, ok := directiveKinds[name]
	if !ok {
		return nil, errorf(CodeUnknownDirective, pos, "unknown directive %q", name)
	}
	d := &directive{kind: kind, pos: pos}
	value = strings.TrimSpace(value)

	switch kind {
	case dirIf, dirWhen, dirReplace, dirContent, dirAttrs:
		if value == "" {
			return nil, errorf(CodeBadDirective, pos, "%s directive needs an expression", name)
		}
		expr, err := eval.Compile(value, pos)
		if err != nil {
			return nil, badExpr(pos, err)
		}
		d.expr = expr

	case dirChoose, dirOtherwise:
		// choose may be valueless (truth-test mode); otherwise never
		// takes a value
		if kind == dirOtherwise && value != "" {
			return nil, errorf(CodeBadDirective, pos, "otherwise directive takes no expression")
		}
		if value != "" {
			expr, err := eval.Compile(value, pos)
			if err != nil {
				return nil, badExpr(pos, err)
			}
			d.expr = expr
		}

	case dirStrip:
		// an empty value is shorthand for always strip
		if value != "" {
			expr, err := eval.Compile(value, pos)
			if err != nil {
				return nil, badExpr(pos, err)
			}
			d.expr = expr
		}

	case dirFor:
		target, src, found := strings.Cut(value, " in ")
		if !found {
			return nil, errorf(CodeBadDirective, pos, `for directive expects "name in expression", got %q`, value)
		}
		target = strings.TrimSpace(target)
		if strings.HasPrefix(target, "(") && strings.HasSuffix(target, ")") {
			target = strings.TrimSpace(target[1 : len(target)-1])
		}
		if target == "" {
			return nil, errorf(CodeBadDirective, pos, "for directive is missing its loop variable")
		}
		for _, name := range strings.Split(target, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				return nil, errorf(CodeBadDirective, pos, "for directive has an empty loop variable in %q", value)
			}
			d.loopVars = append(d.loopVars, name)
		}
		expr, err := eval.Compile(strings.TrimSpace(src), pos)
		if err != nil {
			return nil, badExpr(pos, err)
		}
		d.expr = expr

	case dirWith:
		assignments, err := eval.ParseAssignments(value, pos)
		if err != nil {
			return nil, badExpr(pos, err)
		}
		d.assignments = assignments

	case dirDef:
		if err := parseMacroSignature(d, value, pos); err != nil {
			return nil, err
		}

	case dirMatch:
		if value == "" {
			return nil, errorf(CodeBadDirective, pos, "match directive needs a path")
		}
		p, err := path.Compile(value, pos)
		if err != nil {
			return nil, &Error{Code: CodeBadDirective, Message: err.Error(), Pos: pos, Cause: err}
		}
		d.path = p
		d.hints = matchHints{recursive: true}
		d.ns = ns
	}
	return d, nil
}

func badExpr(pos stream.Pos, err error) *Error {
	return &Error{Code: CodeBadDirective, Message: err.Error(), Pos: pos, Cause: err}
}

// parseMacroSignature parses "name" or "name(param, param=default)".
func parseMacroSignature(d *directive, value string, pos stream.Pos) error {
	value = strings.TrimSpace(value)
	open := strings.IndexByte(value, '(')
	if open < 0 {
		if value == "" {
			return errorf(CodeBadDirective, pos, "def directive needs a macro name")
		}
		d.macroName = value
		return nil
	}
	if !strings.HasSuffix(value, ")") {
		return errorf(CodeBadDirective, pos, "unterminated macro signature %q", value)
	}
	d.macroName = strings.TrimSpace(value[:open])
	if d.macroName == "" {
		return errorf(CodeBadDirective, pos, "def directive needs a macro name")
	}
	inner := strings.TrimSpace(value[open+1 : len(value)-1])
	if inner == "" {
		return nil
	}
	for _, part := range splitArgs(inner) {
		name, defSrc, hasDefault := strings.Cut(part, "=")
		p := macroParam{name: strings.TrimSpace(name)}
		if p.name == "" {
			return errorf(CodeBadDirective, pos, "empty parameter in macro signature %q", value)
		}
		if hasDefault {
			expr, err := eval.Compile(strings.TrimSpace(defSrc), pos)
			if err != nil {
				return badExpr(pos, err)
			}
			p.def = expr
		}
		d.macroParams = append(d.macroParams, p)
	}
	return nil
}

// splitArgs splits a parameter list on commas outside quotes and brackets.
func splitArgs(s string) []string {
	var parts []string
	var quote byte
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if part := strings.TrimSpace(s[start:]); part != "" {
		parts = append(parts, part)
	}
	return parts
}

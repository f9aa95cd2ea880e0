package eval

import (
	"fmt"
	"math"
	"strings"

	"github.com/conneroisu/marka/pkg/stream"
)

// evalCtx carries the per-evaluation scope plus the expression source and
// template position, so every error points back at the template.
type evalCtx struct {
	scope *Scope
	expr  string
	pos   stream.Pos
}

func (c *evalCtx) errorf(code ErrorCode, format string, args ...any) *Error {
	return errorf(code, c.expr, c.pos, format, args...)
}

type node interface {
	eval(c *evalCtx) (any, error)
	String() string
}

type literalNode struct {
	value any
}

func (n literalNode) eval(*evalCtx) (any, error) { return n.value, nil }

func (n literalNode) String() string {
	if s, ok := n.value.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprint(n.value)
}

type nameNode struct {
	name string
}

func (n nameNode) eval(c *evalCtx) (any, error) {
	if v, ok := c.scope.Lookup(n.name); ok {
		return v, nil
	}
	u := Undefined{Name: n.name}
	if c.scope.Mode() == Lenient {
		return u, nil
	}
	return nil, u.err(c.expr, c.pos)
}

func (n nameNode) String() string { return n.name }

type attrNode struct {
	obj  node
	name string
}

func (n attrNode) eval(c *evalCtx) (any, error) {
	obj, err := n.obj.eval(c)
	if err != nil {
		return nil, err
	}
	return getAttr(obj, n.name, c.scope.Mode(), c.expr, c.pos)
}

func (n attrNode) String() string { return n.obj.String() + "." + n.name }

type itemNode struct {
	obj node
	key node
}

func (n itemNode) eval(c *evalCtx) (any, error) {
	obj, err := n.obj.eval(c)
	if err != nil {
		return nil, err
	}
	key, err := n.key.eval(c)
	if err != nil {
		return nil, err
	}
	return getItem(obj, key, c.scope.Mode(), c.expr, c.pos)
}

func (n itemNode) String() string { return n.obj.String() + "[" + n.key.String() + "]" }

type callNode struct {
	callee node
	args   []node
}

func (n callNode) eval(c *evalCtx) (any, error) {
	callee, err := n.callee.eval(c)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(n.args))
	for i, a := range n.args {
		if args[i], err = a.eval(c); err != nil {
			return nil, err
		}
	}
	return callValue(c.scope, callee, args, c.expr, c.pos)
}

func (n callNode) String() string {
	parts := make([]string, len(n.args))
	for i, a := range n.args {
		parts[i] = a.String()
	}
	return n.callee.String() + "(" + strings.Join(parts, ", ") + ")"
}

type listNode struct {
	items []node
}

func (n listNode) eval(c *evalCtx) (any, error) {
	items := make([]any, len(n.items))
	for i, item := range n.items {
		v, err := item.eval(c)
		if err != nil {
			return nil, err
		}
		items[i] = v
	}
	return items, nil
}

func (n listNode) String() string {
	parts := make([]string, len(n.items))
	for i, item := range n.items {
		parts[i] = item.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

type dictNode struct {
	keys   []node
	values []node
}

func (n dictNode) eval(c *evalCtx) (any, error) {
	m := make(map[string]any, len(n.keys))
	for i := range n.keys {
		k, err := n.keys[i].eval(c)
		if err != nil {
			return nil, err
		}
		v, err := n.values[i].eval(c)
		if err != nil {
			return nil, err
		}
		m[Stringify(k)] = v
	}
	return m, nil
}

func (n dictNode) String() string {
	parts := make([]string, len(n.keys))
	for i := range n.keys {
		parts[i] = n.keys[i].String() + ": " + n.values[i].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

type unaryNode struct {
	op      string
	operand node
}

func (n unaryNode) eval(c *evalCtx) (any, error) {
	v, err := n.operand.eval(c)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "not", "!":
		return !Truthy(v), nil
	case "-":
		if i, ok := toInt64(v); ok {
			return -i, nil
		}
		if f, ok := toFloat(v); ok {
			return -f, nil
		}
		return nil, c.errorf(CodeType, "cannot negate %T", v)
	case "+":
		if isNumber(v) {
			return v, nil
		}
		return nil, c.errorf(CodeType, "unary + needs a number, got %T", v)
	}
	return nil, c.errorf(CodeSyntax, "unknown unary operator %q", n.op)
}

func (n unaryNode) String() string { return n.op + " " + n.operand.String() }

type binaryNode struct {
	op    string
	left  node
	right node
}

func (n binaryNode) eval(c *evalCtx) (any, error) {
	// and/or short-circuit and yield the deciding operand, so
	// ${missing or 'default'} substitutes the default value itself.
	switch n.op {
	case "and":
		l, err := n.left.eval(c)
		if err != nil {
			return nil, err
		}
		if !Truthy(l) {
			return l, nil
		}
		return n.right.eval(c)
	case "or":
		l, err := n.left.eval(c)
		if err != nil {
			return nil, err
		}
		if Truthy(l) {
			return l, nil
		}
		return n.right.eval(c)
	}

	l, err := n.left.eval(c)
	if err != nil {
		return nil, err
	}
	r, err := n.right.eval(c)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return equalValues(l, r), nil
	case "!=":
		return !equalValues(l, r), nil
	case "<", "<=", ">", ">=":
		return compare(n.op, l, r, c)
	case "in":
		return contains(l, r, c.expr, c.pos)
	case "not in":
		ok, err := contains(l, r, c.expr, c.pos)
		return !ok, err
	case "+":
		return add(l, r, c)
	case "-", "*", "%":
		return arith(n.op, l, r, c)
	case "/":
		lf, lok := toFloat(l)
		rf, rok := toFloat(r)
		if !lok || !rok {
			return nil, c.errorf(CodeType, "cannot divide %T by %T", l, r)
		}
		if rf == 0 {
			return nil, c.errorf(CodeType, "division by zero")
		}
		return lf / rf, nil
	}
	return nil, c.errorf(CodeSyntax, "unknown operator %q", n.op)
}

func (n binaryNode) String() string {
	return "(" + n.left.String() + " " + n.op + " " + n.right.String() + ")"
}

func compare(op string, l, r any, c *evalCtx) (any, error) {
	if lf, ok := toFloat(l); ok {
		rf, ok := toFloat(r)
		if !ok {
			return nil, c.errorf(CodeType, "cannot compare %T with %T", l, r)
		}
		switch op {
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		default:
			return lf >= rf, nil
		}
	}
	ls, lok := stringValue(l)
	rs, rok := stringValue(r)
	if !lok || !rok {
		return nil, c.errorf(CodeType, "cannot compare %T with %T", l, r)
	}
	switch op {
	case "<":
		return ls < rs, nil
	case "<=":
		return ls <= rs, nil
	case ">":
		return ls > rs, nil
	default:
		return ls >= rs, nil
	}
}

// add handles numbers and string concatenation. Concatenating anything with
// pre-escaped markup keeps the safety mark for the safe part only.
func add(l, r any, c *evalCtx) (any, error) {
	if isNumber(l) && isNumber(r) {
		if li, ri, ok := bothInt(l, r); ok {
			return li + ri, nil
		}
		lf, _ := toFloat(l)
		rf, _ := toFloat(r)
		return lf + rf, nil
	}
	_, lm := l.(stream.Markup)
	_, rm := r.(stream.Markup)
	if lm || rm {
		return stream.Concat(l, r), nil
	}
	if _, ok := stringValue(l); ok {
		return Stringify(l) + Stringify(r), nil
	}
	if _, ok := stringValue(r); ok {
		return Stringify(l) + Stringify(r), nil
	}
	return nil, c.errorf(CodeType, "cannot add %T and %T", l, r)
}

func arith(op string, l, r any, c *evalCtx) (any, error) {
	if li, ri, ok := bothInt(l, r); ok {
		switch op {
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		default:
			if ri == 0 {
				return nil, c.errorf(CodeType, "division by zero")
			}
			return li % ri, nil
		}
	}
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if !lok || !rok {
		return nil, c.errorf(CodeType, "unsupported operand types %T and %T for %q", l, r, op)
	}
	switch op {
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	default:
		if rf == 0 {
			return nil, c.errorf(CodeType, "division by zero")
		}
		return math.Mod(lf, rf), nil
	}
}

package path

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/conneroisu/marka/pkg/stream"
)

// Tokenizer and recursive descent parser for the path language.

var tokenPattern = regexp.MustCompile(
	`("[^"]*")|('[^']*')|(\d+\.\d+|\d+|\.\d+)|` +
		`(::|\.\.|//|!=|>=|<=|\(\)|[:./\[\]()@=!|,><$*])|` +
		`([^:./\[\]()@=!|,><$*\s]+)|\s+`)

func tokenize(text string) []string {
	var tokens []string
	for _, m := range tokenPattern.FindAllStringSubmatch(text, -1) {
		for _, group := range m[1:] {
			if group != "" {
				tokens = append(tokens, group)
				break
			}
		}
	}
	return tokens
}

type parser struct {
	source string
	pos    stream.Pos
	tokens []string
	idx    int
}

func newParser(text string, pos stream.Pos) *parser {
	return &parser{source: text, pos: pos, tokens: tokenize(text)}
}

func (p *parser) atEnd() bool { return p.idx >= len(p.tokens)-1 }

func (p *parser) cur() string {
	if p.idx < len(p.tokens) {
		return p.tokens[p.idx]
	}
	return ""
}

func (p *parser) next() string {
	p.idx++
	return p.cur()
}

func (p *parser) peek() string {
	if p.idx+1 < len(p.tokens) {
		return p.tokens[p.idx+1]
	}
	return ""
}

func (p *parser) errorf(format string, args ...any) *Error {
	return syntaxErrorf(p.source, p.pos, format, args...)
}

// parse returns one step list per operand of a union expression.
func (p *parser) parse() ([][]step, error) {
	if len(p.tokens) == 0 {
		return nil, p.errorf("empty path expression")
	}
	first, err := p.locationPath()
	if err != nil {
		return nil, err
	}
	paths := [][]step{first}
	for p.cur() == "|" {
		p.next()
		more, err := p.locationPath()
		if err != nil {
			return nil, err
		}
		paths = append(paths, more)
	}
	if !p.atEnd() {
		return nil, p.errorf("unexpected token %q after end of expression", p.cur())
	}
	return paths, nil
}

func (p *parser) locationPath() ([]step, error) {
	var steps []step
	for {
		if strings.HasPrefix(p.cur(), "/") {
			if len(steps) == 0 {
				if p.cur() != "//" {
					return nil, p.errorf("absolute paths are not supported")
				}
				// leading //: descendant-or-self from the context node
				p.next()
				st, err := p.locationStep()
				if err != nil {
					return nil, err
				}
				st.axis = axisDescendantOrSelf
				steps = append(steps, st)
				if p.atEnd() || !strings.HasPrefix(p.cur(), "/") {
					break
				}
				continue
			}
			if p.cur() == "//" {
				steps = append(steps, step{axis: axisDescendantOrSelf, test: anyNodeTest{}})
			}
			p.next()
		}

		st, err := p.locationStep()
		if err != nil {
			return nil, err
		}
		steps = append(steps, st)
		if p.atEnd() || !strings.HasPrefix(p.cur(), "/") {
			break
		}
	}
	return steps, nil
}

func (p *parser) locationStep() (step, error) {
	var a axis
	switch {
	case p.cur() == "@":
		a = axisAttribute
		p.next()
	case p.cur() == ".":
		a = axisSelf
	case p.cur() == "..":
		return step{}, &Error{
			Code: CodeUnsupportedAxis, Expr: p.source, Pos: p.pos,
			Message: `the "parent" axis would require rewinding the stream`,
		}
	case p.peek() == "::":
		name := p.cur()
		var ok bool
		a, ok = axisByName(name)
		if !ok {
			return step{}, &Error{
				Code: CodeUnsupportedAxis, Expr: p.source, Pos: p.pos,
				Message: "unsupported axis " + strconv.Quote(name),
			}
		}
		p.next()
		p.next()
	default:
		a = axisChild
	}

	test, err := p.nodeTest(a)
	if err != nil {
		return step{}, err
	}
	var preds []expr
	for p.cur() == "[" {
		pred, err := p.predicate()
		if err != nil {
			return step{}, err
		}
		preds = append(preds, pred)
	}
	return step{axis: a, test: test, preds: preds}, nil
}

// axisByName recognizes the streaming-safe axes; everything else in the
// XPath axis vocabulary is unsupported by construction.
func axisByName(name string) (axis, bool) {
	switch name {
	case "attribute":
		return axisAttribute, true
	case "child":
		return axisChild, true
	case "descendant":
		return axisDescendant, true
	case "descendant-or-self":
		return axisDescendantOrSelf, true
	case "self":
		return axisSelf, true
	default:
		return 0, false
	}
}

func (p *parser) nodeTest(a axis) (nodeTest, error) {
	var test nodeTest
	switch {
	case p.peek() == "(" || p.peek() == "()":
		return p.nodeType()
	case p.peek() == ":":
		prefix := p.cur()
		p.next()
		local := p.next()
		if local == "*" {
			test = qualifiedPrincipalTest{principal: a, prefix: prefix}
		} else {
			test = qualifiedNameTest{principal: a, prefix: prefix, name: local}
		}
	case p.cur() == "*":
		test = principalTest{principal: a}
	case p.cur() == ".":
		test = anyNodeTest{}
	default:
		test = localNameTest{principal: a, name: p.cur()}
	}
	if !p.atEnd() {
		p.next()
	}
	return test, nil
}

func (p *parser) nodeType() (nodeTest, error) {
	name := p.cur()
	p.next()

	var arg string
	hasArg := false
	if p.cur() != "()" {
		p.next() // consume "("
		if p.cur() != ")" {
			arg = p.cur()
			if len(arg) >= 2 && (arg[0] == '"' || arg[0] == '\'') {
				arg = arg[1 : len(arg)-1]
			}
			hasArg = true
			p.next()
		}
	}
	if !p.atEnd() {
		p.next()
	}

	switch name {
	case "comment":
		return commentTest{}, nil
	case "node":
		return anyNodeTest{}, nil
	case "processing-instruction":
		if hasArg {
			return piTest{target: arg}, nil
		}
		return piTest{}, nil
	case "text":
		return textTest{}, nil
	default:
		return nil, p.errorf("%s() not allowed here", name)
	}
}

func (p *parser) predicate() (expr, error) {
	// the caller saw "["
	p.next()
	e, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	if p.cur() != "]" {
		return nil, p.errorf(`expected "]" to close predicate, found %q`, p.cur())
	}
	if !p.atEnd() {
		p.next()
	}
	return e, nil
}

func (p *parser) orExpr() (expr, error) {
	e, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for p.cur() == "or" {
		p.next()
		right, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		e = binaryOp{op: "or", left: e, right: right}
	}
	return e, nil
}

func (p *parser) andExpr() (expr, error) {
	e, err := p.equalityExpr()
	if err != nil {
		return nil, err
	}
	for p.cur() == "and" {
		p.next()
		right, err := p.equalityExpr()
		if err != nil {
			return nil, err
		}
		e = binaryOp{op: "and", left: e, right: right}
	}
	return e, nil
}

func (p *parser) equalityExpr() (expr, error) {
	e, err := p.relationalExpr()
	if err != nil {
		return nil, err
	}
	for p.cur() == "=" || p.cur() == "!=" {
		op := p.cur()
		p.next()
		right, err := p.relationalExpr()
		if err != nil {
			return nil, err
		}
		e = binaryOp{op: op, left: e, right: right}
	}
	return e, nil
}

func (p *parser) relationalExpr() (expr, error) {
	e, err := p.subExpr()
	if err != nil {
		return nil, err
	}
	for p.cur() == ">" || p.cur() == ">=" || p.cur() == "<" || p.cur() == "<=" {
		op := p.cur()
		p.next()
		right, err := p.subExpr()
		if err != nil {
			return nil, err
		}
		e = binaryOp{op: op, left: e, right: right}
	}
	return e, nil
}

func (p *parser) subExpr() (expr, error) {
	if p.cur() != "(" {
		return p.primaryExpr()
	}
	p.next()
	e, err := p.orExpr()
	if err != nil {
		return nil, err
	}
	if p.cur() != ")" {
		return nil, p.errorf(`expected ")" to close sub-expression, found %q`, p.cur())
	}
	p.next()
	return e, nil
}

func (p *parser) primaryExpr() (expr, error) {
	token := p.cur()
	switch {
	case len(token) > 1 && (token[0] == '"' || token[0] == '\''):
		p.next()
		return stringLiteral{text: token[1 : len(token)-1]}, nil
	case token != "" && (token[0] >= '0' && token[0] <= '9' || token[0] == '.' && len(token) > 1 && token[1] >= '0' && token[1] <= '9'):
		f, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return nil, p.errorf("bad number literal %q", token)
		}
		p.next()
		return numberLiteral{number: f}, nil
	case token == "$":
		name := p.next()
		p.next()
		return variableRef{name: name}, nil
	case !p.atEnd() && strings.HasPrefix(p.peek(), "("):
		return p.functionCall()
	default:
		a := axisChild
		if token == "@" {
			a = axisAttribute
			p.next()
		}
		test, err := p.nodeTest(a)
		if err != nil {
			return nil, err
		}
		return nodeTestExpr{test: test}, nil
	}
}

func (p *parser) functionCall() (expr, error) {
	name := p.cur()
	if bannedFunctions[name] {
		return nil, &Error{
			Code: CodeUnsupportedFunction, Expr: p.source, Pos: p.pos,
			Message: name + "() requires global stream knowledge",
		}
	}
	arity, known := pathFunctions[name]
	if !known {
		return nil, p.errorf("unsupported function %q", name)
	}

	var args []expr
	if p.next() == "()" {
		p.next()
	} else {
		// cur is "("
		p.next()
		arg, err := p.orExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		for p.cur() == "," {
			p.next()
			arg, err := p.orExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}
		if p.cur() != ")" {
			return nil, p.errorf(`expected ")" to close argument list of %s(), found %q`, name, p.cur())
		}
		if !p.atEnd() {
			p.next()
		}
	}

	if len(args) < arity[0] || (arity[1] >= 0 && len(args) > arity[1]) {
		return nil, p.errorf("%s() called with %d arguments", name, len(args))
	}
	return funcCall{name: name, args: args}, nil
}

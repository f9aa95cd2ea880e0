package eval

import (
	"strconv"
	"strings"

	"github.com/conneroisu/marka/pkg/stream"
)

type parser struct {
	src    string
	pos    stream.Pos
	tokens []token
	idx    int
}

func newParser(src string, pos stream.Pos) (*parser, error) {
	tokens, err := lex(src)
	if err != nil {
		err.Pos = pos
		return nil, err
	}
	return &parser{src: src, pos: pos, tokens: tokens}, nil
}

func (p *parser) cur() token      { return p.tokens[p.idx] }
func (p *parser) next() token     { t := p.tokens[p.idx]; p.idx++; return t }
func (p *parser) is(text string) bool {
	t := p.cur()
	return (t.typ == tokenOp || t.typ == tokenIdent) && t.text == text
}

func (p *parser) accept(text string) bool {
	if p.is(text) {
		p.idx++
		return true
	}
	return false
}

func (p *parser) expect(text string) error {
	if !p.accept(text) {
		return p.errorf("expected %q, found %s", text, p.describe(p.cur()))
	}
	return nil
}

func (p *parser) describe(t token) string {
	if t.typ == tokenEOF {
		return "end of expression"
	}
	return strconv.Quote(t.text)
}

func (p *parser) errorf(format string, args ...any) *Error {
	return errorf(CodeSyntax, p.src, p.pos, format, args...)
}

// parseExpr parses one complete expression and requires all input consumed.
func (p *parser) parseExpr() (node, error) {
	n, err := p.or()
	if err != nil {
		return nil, err
	}
	if p.cur().typ != tokenEOF {
		return nil, p.errorf("unexpected %s after expression", p.describe(p.cur()))
	}
	return n, nil
}

func (p *parser) or() (node, error) {
	n, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.accept("or") {
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		n = binaryNode{op: "or", left: n, right: right}
	}
	return n, nil
}

func (p *parser) and() (node, error) {
	n, err := p.notExpr()
	if err != nil {
		return nil, err
	}
	for p.accept("and") {
		right, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		n = binaryNode{op: "and", left: n, right: right}
	}
	return n, nil
}

func (p *parser) notExpr() (node, error) {
	if p.accept("not") {
		operand, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: "not", operand: operand}, nil
	}
	return p.comparison()
}

var comparisonOps = []string{"==", "!=", "<=", ">=", "<", ">"}

func (p *parser) comparison() (node, error) {
	n, err := p.additive()
	if err != nil {
		return nil, err
	}
	for {
		op := ""
		for _, cand := range comparisonOps {
			if p.is(cand) {
				op = cand
				break
			}
		}
		switch {
		case op != "":
			p.idx++
		case p.is("in"):
			op = "in"
			p.idx++
		case p.is("not") && p.peekIs("in"):
			op = "not in"
			p.idx += 2
		default:
			return n, nil
		}
		right, err := p.additive()
		if err != nil {
			return nil, err
		}
		n = binaryNode{op: op, left: n, right: right}
	}
}

func (p *parser) peekIs(text string) bool {
	if p.idx+1 >= len(p.tokens) {
		return false
	}
	t := p.tokens[p.idx+1]
	return (t.typ == tokenOp || t.typ == tokenIdent) && t.text == text
}

func (p *parser) additive() (node, error) {
	n, err := p.multiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.accept("+"):
			op = "+"
		case p.accept("-"):
			op = "-"
		default:
			return n, nil
		}
		right, err := p.multiplicative()
		if err != nil {
			return nil, err
		}
		n = binaryNode{op: op, left: n, right: right}
	}
}

func (p *parser) multiplicative() (node, error) {
	n, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.accept("*"):
			op = "*"
		case p.accept("/"):
			op = "/"
		case p.accept("%"):
			op = "%"
		default:
			return n, nil
		}
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		n = binaryNode{op: op, left: n, right: right}
	}
}

func (p *parser) unary() (node, error) {
	for _, op := range []string{"-", "+", "!"} {
		if p.accept(op) {
			operand, err := p.unary()
			if err != nil {
				return nil, err
			}
			if op == "!" {
				op = "not"
			}
			return unaryNode{op: op, operand: operand}, nil
		}
	}
	return p.postfix()
}

func (p *parser) postfix() (node, error) {
	n, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.accept("."):
			t := p.next()
			if t.typ != tokenIdent {
				return nil, p.errorf("expected member name after '.', found %s", p.describe(t))
			}
			n = attrNode{obj: n, name: t.text}
		case p.accept("["):
			key, err := p.or()
			if err != nil {
				return nil, err
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			n = itemNode{obj: n, key: key}
		case p.accept("("):
			var args []node
			if !p.is(")") {
				for {
					arg, err := p.or()
					if err != nil {
						return nil, err
					}
					args = append(args, arg)
					if !p.accept(",") {
						break
					}
				}
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			n = callNode{callee: n, args: args}
		default:
			return n, nil
		}
	}
}

func (p *parser) primary() (node, error) {
	t := p.cur()
	switch t.typ {
	case tokenNumber:
		p.idx++
		if strings.ContainsRune(t.text, '.') {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return nil, p.errorf("bad number literal %q", t.text)
			}
			return literalNode{value: f}, nil
		}
		i, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, p.errorf("bad number literal %q", t.text)
		}
		return literalNode{value: i}, nil
	case tokenString:
		p.idx++
		return literalNode{value: t.text}, nil
	case tokenIdent:
		switch t.text {
		case "true", "True":
			p.idx++
			return literalNode{value: true}, nil
		case "false", "False":
			p.idx++
			return literalNode{value: false}, nil
		case "nil", "None":
			p.idx++
			return literalNode{value: nil}, nil
		default:
			p.idx++
			return nameNode{name: t.text}, nil
		}
	case tokenOp:
		switch t.text {
		case "(":
			p.idx++
			n, err := p.or()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return n, nil
		case "[":
			p.idx++
			var items []node
			if !p.is("]") {
				for {
					item, err := p.or()
					if err != nil {
						return nil, err
					}
					items = append(items, item)
					if !p.accept(",") {
						break
					}
				}
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			return listNode{items: items}, nil
		case "{":
			p.idx++
			var keys, values []node
			if !p.is("}") {
				for {
					key, err := p.or()
					if err != nil {
						return nil, err
					}
					if err := p.expect(":"); err != nil {
						return nil, err
					}
					value, err := p.or()
					if err != nil {
						return nil, err
					}
					keys = append(keys, key)
					values = append(values, value)
					if !p.accept(",") {
						break
					}
				}
			}
			if err := p.expect("}"); err != nil {
				return nil, err
			}
			return dictNode{keys: keys, values: values}, nil
		}
	}
	return nil, p.errorf("unexpected %s", p.describe(t))
}

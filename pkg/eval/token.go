package eval

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/conneroisu/marka/pkg/stream"
)

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenIdent
	tokenNumber
	tokenString
	tokenOp
)

type token struct {
	typ    tokenType
	text   string
	offset int
}

// multi-rune operators, checked before single runes
var longOps = []string{"==", "!=", "<=", ">="}

const singleOps = "+-*/%<>()[]{}.,:=;!"

type scanner struct {
	src string
	off int
}

func (s *scanner) errorf(expr string, format string, args ...any) *Error {
	return errorf(CodeSyntax, expr, stream.Unknown, format, args...)
}

// lex splits an expression into tokens. Errors are reported by the parser,
// which knows the template position; the lexer only flags bad literals.
func lex(src string) ([]token, *Error) {
	s := &scanner{src: src}
	var tokens []token
	for {
		s.skipSpace()
		if s.off >= len(s.src) {
			tokens = append(tokens, token{typ: tokenEOF, offset: s.off})
			return tokens, nil
		}
		start := s.off
		r, _ := utf8.DecodeRuneInString(s.src[s.off:])
		switch {
		case r == '\'' || r == '"':
			text, err := s.scanString(r)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{typ: tokenString, text: text, offset: start})
		case unicode.IsDigit(r) || r == '.' && s.nextIsDigit():
			tokens = append(tokens, token{typ: tokenNumber, text: s.scanNumber(), offset: start})
		case unicode.IsLetter(r) || r == '_':
			tokens = append(tokens, token{typ: tokenIdent, text: s.scanIdent(), offset: start})
		default:
			op := s.scanOp()
			if op == "" {
				return nil, s.errorf(src, "unexpected character %q", r)
			}
			tokens = append(tokens, token{typ: tokenOp, text: op, offset: start})
		}
	}
}

func (s *scanner) skipSpace() {
	for s.off < len(s.src) {
		r, size := utf8.DecodeRuneInString(s.src[s.off:])
		if !unicode.IsSpace(r) {
			return
		}
		s.off += size
	}
}

func (s *scanner) nextIsDigit() bool {
	if s.off+1 >= len(s.src) {
		return false
	}
	return s.src[s.off+1] >= '0' && s.src[s.off+1] <= '9'
}

func (s *scanner) scanString(quote rune) (string, *Error) {
	s.off++ // opening quote
	var b strings.Builder
	for s.off < len(s.src) {
		r, size := utf8.DecodeRuneInString(s.src[s.off:])
		s.off += size
		switch r {
		case quote:
			return b.String(), nil
		case '\\':
			if s.off >= len(s.src) {
				return "", s.errorf(s.src, "unterminated string literal")
			}
			esc, esize := utf8.DecodeRuneInString(s.src[s.off:])
			s.off += esize
			switch esc {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			case '\\', '\'', '"':
				b.WriteRune(esc)
			default:
				b.WriteRune('\\')
				b.WriteRune(esc)
			}
		default:
			b.WriteRune(r)
		}
	}
	return "", s.errorf(s.src, "unterminated string literal")
}

func (s *scanner) scanNumber() string {
	start := s.off
	seenDot := false
	for s.off < len(s.src) {
		c := s.src[s.off]
		if c >= '0' && c <= '9' {
			s.off++
			continue
		}
		if c == '.' && !seenDot {
			seenDot = true
			s.off++
			continue
		}
		break
	}
	return s.src[start:s.off]
}

func (s *scanner) scanIdent() string {
	start := s.off
	for s.off < len(s.src) {
		r, size := utf8.DecodeRuneInString(s.src[s.off:])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		s.off += size
	}
	return s.src[start:s.off]
}

func (s *scanner) scanOp() string {
	rest := s.src[s.off:]
	for _, op := range longOps {
		if strings.HasPrefix(rest, op) {
			s.off += len(op)
			return op
		}
	}
	if strings.IndexByte(singleOps, rest[0]) >= 0 {
		s.off++
		return rest[:1]
	}
	return ""
}

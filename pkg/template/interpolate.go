package template

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/conneroisu/marka/pkg/eval"
	"github.com/conneroisu/marka/pkg/stream"
)

// interpolate splits text into literal Text events and ExprEvent events for
// every "$name" and "${expression}" it contains. "$$" escapes a literal
// dollar sign. A dollar sign followed by anything else passes through
// unchanged.
func interpolate(text string, pos stream.Pos) ([]stream.Event, error) {
	var events []stream.Event
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			events = append(events, stream.Event{Kind: stream.Text, Data: lit.String(), Pos: pos})
			lit.Reset()
		}
	}

	for i := 0; i < len(text); {
		dollar := strings.IndexByte(text[i:], '$')
		if dollar < 0 {
			lit.WriteString(text[i:])
			break
		}
		lit.WriteString(text[i : i+dollar])
		i += dollar

		rest := text[i+1:]
		switch {
		case strings.HasPrefix(rest, "$"):
			lit.WriteByte('$')
			i += 2
		case strings.HasPrefix(rest, "{"):
			src, size, err := balancedBraces(rest[1:], pos)
			if err != nil {
				return nil, err
			}
			expr, err := eval.Compile(src, pos)
			if err != nil {
				return nil, &Error{Code: CodeSyntax, Message: err.Error(), Pos: pos, Cause: err}
			}
			flush()
			events = append(events, stream.Event{Kind: stream.ExprEvent, Data: expr, Pos: pos})
			i += 2 + size + 1 // "${" + expression + "}"
		default:
			name := leadingIdent(rest)
			if name == "" {
				lit.WriteByte('$')
				i++
				break
			}
			expr, err := eval.Compile(name, pos)
			if err != nil {
				return nil, &Error{Code: CodeSyntax, Message: err.Error(), Pos: pos, Cause: err}
			}
			flush()
			events = append(events, stream.Event{Kind: stream.ExprEvent, Data: expr, Pos: pos})
			i += 1 + len(name)
		}
	}
	flush()
	return events, nil
}

// balancedBraces returns the expression before the matching close brace,
// skipping braces inside string literals and nested {}.
func balancedBraces(s string, pos stream.Pos) (string, int, error) {
	var quote byte
	depth := 0
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
		case c == '{':
			depth++
		case c == '}':
			if depth == 0 {
				return s[:i], i, nil
			}
			depth--
		}
	}
	return "", 0, errorf(CodeSyntax, pos, "unterminated ${...} substitution")
}

// leadingIdent returns the identifier prefix of s, possibly with dotted
// member access ("$user.name"), or "" if s does not start with one.
func leadingIdent(s string) string {
	end := 0
	for end < len(s) {
		r, size := utf8.DecodeRuneInString(s[end:])
		if end == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return ""
			}
		} else if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' {
			break
		}
		end += size
	}
	// a trailing dot belongs to the surrounding text, not the expression
	for end > 0 && s[end-1] == '.' {
		end--
	}
	return s[:end]
}

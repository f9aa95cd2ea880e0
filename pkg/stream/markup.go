package stream

import (
	"fmt"
	"strings"
)

// Markup marks a string as safe for inclusion in markup output without
// further escaping. The mark is a property of the value: it survives
// concatenation, and substituting a Markup value into a template emits it
// verbatim where a plain string would be escaped.
type Markup string

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&#34;",
)

var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// Escape escapes &, <, > and " in text and returns the result as safe
// markup. Values that are already Markup pass through unchanged.
func Escape(text any) Markup {
	return escape(text, true)
}

// EscapeText escapes &, < and > but leaves quotes alone; sufficient for text
// content outside attribute values.
func EscapeText(text any) Markup {
	return escape(text, false)
}

func escape(text any, quotes bool) Markup {
	switch v := text.(type) {
	case Markup:
		return v
	case string:
		if quotes {
			return Markup(escaper.Replace(v))
		}
		return Markup(textEscaper.Replace(v))
	case nil:
		return ""
	default:
		return escape(Stringify(text), quotes)
	}
}

var unescaper = strings.NewReplacer(
	"&#34;", `"`,
	"&quot;", `"`,
	"&gt;", ">",
	"&lt;", "<",
	"&amp;", "&",
)

// Unescape reverses Escape, returning the plain string.
func (m Markup) Unescape() string {
	return unescaper.Replace(string(m))
}

// Stringify renders a value the way text substitution does: nil becomes the
// empty string, everything else formats with the default verb.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case Markup:
		return string(t)
	default:
		return fmt.Sprint(v)
	}
}

// Concat joins values into one safe markup string. Plain parts are escaped;
// parts that are already Markup are kept as-is, so safety propagates through
// concatenation exactly as far as it was established.
func Concat(values ...any) Markup {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(string(Escape(v)))
	}
	return Markup(b.String())
}

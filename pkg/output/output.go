// Package output serializes event streams back into markup text. Four
// methods are available: xml and xhtml (namespace-aware, empty-element
// collapsing), html (void elements, boolean attributes, no namespaces) and
// text (markup stripped).
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/conneroisu/marka/pkg/stream"
)

// Serializer writes an event stream as markup text.
type Serializer interface {
	WriteTo(w io.Writer, s *stream.Stream) error
}

// ByMethod returns the serializer named by a method string: "xml", "xhtml",
// "html" or "text".
func ByMethod(method string) (Serializer, error) {
	switch method {
	case "xml":
		return XML(), nil
	case "xhtml":
		return XHTML(), nil
	case "html":
		return HTML(), nil
	case "text":
		return Text(), nil
	default:
		return nil, fmt.Errorf("unknown serialization method %q", method)
	}
}

// Render drains the stream through ser into a string.
func Render(s *stream.Stream, ser Serializer) (string, error) {
	var b strings.Builder
	if err := ser.WriteTo(&b, s); err != nil {
		return "", err
	}
	return b.String(), nil
}

// XML returns a serializer producing namespace-aware XML with all empty
// elements collapsed.
func XML() Serializer {
	return &xmlSerializer{}
}

// XHTML returns an XML serializer that only collapses the XHTML void
// elements, keeping an explicit close tag on everything else so browsers
// parsing the output as HTML stay happy.
func XHTML() Serializer {
	return &xmlSerializer{collapse: voidElements, space: true}
}

// writeEscaped writes text content, preserving pre-escaped markup.
func writeEscaped(w io.Writer, data any) error {
	if m, ok := data.(stream.Markup); ok {
		_, err := io.WriteString(w, string(m))
		return err
	}
	_, err := io.WriteString(w, string(stream.EscapeText(data)))
	return err
}

func writeAttrValue(w io.Writer, value any) error {
	if m, ok := value.(stream.Markup); ok {
		_, err := io.WriteString(w, string(m))
		return err
	}
	_, err := io.WriteString(w, string(stream.Escape(value)))
	return err
}

func writeDoctype(w io.Writer, decl stream.DoctypeDecl) error {
	switch {
	case decl.PublicID != "":
		_, err := fmt.Fprintf(w, "<!DOCTYPE %s PUBLIC %q %q>", decl.Name, decl.PublicID, decl.SystemID)
		return err
	case decl.SystemID != "":
		_, err := fmt.Fprintf(w, "<!DOCTYPE %s SYSTEM %q>", decl.Name, decl.SystemID)
		return err
	default:
		_, err := fmt.Fprintf(w, "<!DOCTYPE %s>", decl.Name)
		return err
	}
}

func writeComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, "<!--%s-->", text)
	return err
}

func writePI(w io.Writer, pi stream.ProcInst) error {
	if pi.Data == "" {
		_, err := fmt.Fprintf(w, "<?%s?>", pi.Target)
		return err
	}
	_, err := fmt.Fprintf(w, "<?%s %s?>", pi.Target, pi.Data)
	return err
}

// voidElements are the HTML elements with no content model. The html
// method writes them without a close tag; the xhtml method collapses them.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// booleanAttrs render as a bare name in html and as name="name" in xhtml.
var booleanAttrs = map[string]bool{
	"selected": true, "checked": true, "compact": true, "declare": true,
	"defer": true, "disabled": true, "ismap": true, "multiple": true,
	"nohref": true, "noresize": true, "noshade": true, "nowrap": true,
	"readonly": true, "required": true, "autofocus": true,
}

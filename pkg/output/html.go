package output

import (
	"fmt"
	"io"

	"github.com/conneroisu/marka/pkg/stream"
)

// rawTextElements hold character data that is never entity-escaped.
var rawTextElements = map[string]bool{"script": true, "style": true}

// HTML returns a serializer producing plain HTML: namespaces dropped, void
// elements unclosed, boolean attributes minimized.
func HTML() Serializer {
	return &htmlSerializer{}
}

type htmlSerializer struct{}

func (htmlSerializer) WriteTo(w io.Writer, s *stream.Stream) error {
	rawDepth := 0
	for {
		ev, ok := s.Next()
		if !ok {
			return s.Err()
		}
		switch ev.Kind {
		case stream.StartElement:
			el := ev.Element()
			if _, err := fmt.Fprintf(w, "<%s", el.Name.Local); err != nil {
				return err
			}
			for _, attr := range el.Attrs {
				local := attr.Name.Local
				if booleanAttrs[local] {
					if stream.Stringify(attr.Value) == "" {
						continue
					}
					if _, err := fmt.Fprintf(w, " %s", local); err != nil {
						return err
					}
					continue
				}
				if _, err := fmt.Fprintf(w, ` %s="`, local); err != nil {
					return err
				}
				if err := writeAttrValue(w, attr.Value); err != nil {
					return err
				}
				if _, err := io.WriteString(w, `"`); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(w, ">"); err != nil {
				return err
			}
			if rawTextElements[el.Name.Local] {
				rawDepth++
			}

		case stream.EndElement:
			local := ev.Name().Local
			if rawTextElements[local] {
				rawDepth--
			}
			if voidElements[local] {
				continue
			}
			if _, err := fmt.Fprintf(w, "</%s>", local); err != nil {
				return err
			}

		case stream.Text:
			if rawDepth > 0 {
				if _, err := io.WriteString(w, stream.Stringify(ev.Data)); err != nil {
					return err
				}
				continue
			}
			if err := writeEscaped(w, ev.Data); err != nil {
				return err
			}

		case stream.Doctype:
			if err := writeDoctype(w, ev.Data.(stream.DoctypeDecl)); err != nil {
				return err
			}

		case stream.Comment:
			if err := writeComment(w, ev.Text()); err != nil {
				return err
			}

		case stream.PI:
			if err := writePI(w, ev.Data.(stream.ProcInst)); err != nil {
				return err
			}
		}
	}
}

// Text returns a serializer that strips all markup, keeping only character
// data. Pre-escaped markup is unescaped back to plain text.
func Text() Serializer {
	return textSerializer{}
}

type textSerializer struct{}

func (textSerializer) WriteTo(w io.Writer, s *stream.Stream) error {
	for {
		ev, ok := s.Next()
		if !ok {
			return s.Err()
		}
		if ev.Kind != stream.Text {
			continue
		}
		var out string
		if m, isMarkup := ev.Data.(stream.Markup); isMarkup {
			out = m.Unescape()
		} else {
			out = stream.Stringify(ev.Data)
		}
		if _, err := io.WriteString(w, out); err != nil {
			return err
		}
	}
}

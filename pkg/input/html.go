package input

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/conneroisu/marka/pkg/stream"
)

// voidElements never have content; their start tags imply an immediate end.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// ParseHTML tokenizes HTML from r into an event stream. Names arrive
// lowercased with no namespace; void elements yield a start event
// immediately followed by its end, so downstream stages see balanced
// markup. The input charset is sniffed and decoded to UTF-8.
func ParseHTML(r io.Reader, name string) *stream.Stream {
	return stream.Generate(func(yield func(stream.Event) bool) error {
		decoded, err := charset.NewReader(r, "")
		if err != nil {
			return err
		}
		z := html.NewTokenizer(decoded)
		line := 1
		for {
			tt := z.Next()
			pos := stream.Pos{Source: name, Line: line, Col: 1}
			if tt == html.ErrorToken {
				if err := z.Err(); err != io.EOF {
					return err
				}
				return nil
			}
			line += strings.Count(string(z.Raw()), "\n")

			switch tt {
			case html.TextToken:
				if !yield(stream.Event{Kind: stream.Text, Data: string(z.Text()), Pos: pos}) {
					return nil
				}

			case html.StartTagToken, html.SelfClosingTagToken:
				tok := z.Token()
				attrs := make(stream.Attrs, 0, len(tok.Attr))
				for _, a := range tok.Attr {
					attrs = append(attrs, stream.Attr{
						Name:  stream.QName{Local: strings.ToLower(a.Key)},
						Value: a.Val,
					})
				}
				el := stream.Element{Name: stream.QName{Local: tok.Data}, Attrs: attrs}
				if !yield(stream.Event{Kind: stream.StartElement, Data: el, Pos: pos}) {
					return nil
				}
				if tt == html.SelfClosingTagToken || voidElements[tok.Data] {
					if !yield(stream.Event{Kind: stream.EndElement, Data: el.Name, Pos: pos}) {
						return nil
					}
				}

			case html.EndTagToken:
				tagName, _ := z.TagName()
				local := strings.ToLower(string(tagName))
				if voidElements[local] {
					// the paired end was already emitted with the start tag
					continue
				}
				ev := stream.Event{
					Kind: stream.EndElement,
					Data: stream.QName{Local: local},
					Pos:  pos,
				}
				if !yield(ev) {
					return nil
				}

			case html.CommentToken:
				if !yield(stream.Event{Kind: stream.Comment, Data: string(z.Text()), Pos: pos}) {
					return nil
				}

			case html.DoctypeToken:
				decl := stream.DoctypeDecl{Name: string(z.Text())}
				if !yield(stream.Event{Kind: stream.Doctype, Data: decl, Pos: pos}) {
					return nil
				}
			}
		}
	})
}

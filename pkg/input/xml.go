// Package input turns markup source into event streams: an XML parser built
// on encoding/xml and an HTML parser built on the x/net/html tokenizer.
// Both are lazy; parse errors surface through the stream's Err method.
package input

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/conneroisu/marka/pkg/stream"
)

// ParseXML reads well-formed XML from r into an event stream. Namespace
// declarations become StartNS/EndNS events and qualified names arrive fully
// resolved, so consumers never deal with prefixes. name labels event
// positions.
func ParseXML(r io.Reader, name string) *stream.Stream {
	lt := &lineTracker{r: r}
	d := xml.NewDecoder(lt)
	d.CharsetReader = decodeCharset
	d.Entity = xml.HTMLEntity

	// prefixes declared by each open element, for EndNS emission
	var declared [][]string

	return stream.Generate(func(yield func(stream.Event) bool) error {
		for {
			pos := lt.pos(d.InputOffset(), name)
			tok, err := d.Token()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			switch t := tok.(type) {
			case xml.StartElement:
				var prefixes []string
				attrs := make(stream.Attrs, 0, len(t.Attr))
				for _, a := range t.Attr {
					prefix, uri, ok := xmlnsBinding(a)
					if ok {
						prefixes = append(prefixes, prefix)
						if !yield(stream.Event{
							Kind: stream.StartNS,
							Data: stream.NSBinding{Prefix: prefix, URI: uri},
							Pos:  pos,
						}) {
							return nil
						}
						continue
					}
					attrs = append(attrs, stream.Attr{
						Name:  stream.QName{Space: a.Name.Space, Local: a.Name.Local},
						Value: a.Value,
					})
				}
				declared = append(declared, prefixes)
				el := stream.Element{
					Name:  stream.QName{Space: t.Name.Space, Local: t.Name.Local},
					Attrs: attrs,
				}
				if !yield(stream.Event{Kind: stream.StartElement, Data: el, Pos: pos}) {
					return nil
				}

			case xml.EndElement:
				ev := stream.Event{
					Kind: stream.EndElement,
					Data: stream.QName{Space: t.Name.Space, Local: t.Name.Local},
					Pos:  pos,
				}
				if !yield(ev) {
					return nil
				}
				prefixes := declared[len(declared)-1]
				declared = declared[:len(declared)-1]
				for i := len(prefixes) - 1; i >= 0; i-- {
					if !yield(stream.Event{Kind: stream.EndNS, Data: prefixes[i], Pos: pos}) {
						return nil
					}
				}

			case xml.CharData:
				if !yield(stream.Event{Kind: stream.Text, Data: string(t), Pos: pos}) {
					return nil
				}

			case xml.Comment:
				if !yield(stream.Event{Kind: stream.Comment, Data: string(t), Pos: pos}) {
					return nil
				}

			case xml.ProcInst:
				if t.Target == "xml" {
					continue
				}
				pi := stream.ProcInst{Target: t.Target, Data: string(t.Inst)}
				if !yield(stream.Event{Kind: stream.PI, Data: pi, Pos: pos}) {
					return nil
				}

			case xml.Directive:
				decl, ok := parseDoctype(string(t))
				if !ok {
					continue
				}
				if !yield(stream.Event{Kind: stream.Doctype, Data: decl, Pos: pos}) {
					return nil
				}
			}
		}
	})
}

// xmlnsBinding picks apart a namespace declaration attribute. The default
// namespace declares the empty prefix.
func xmlnsBinding(a xml.Attr) (prefix, uri string, ok bool) {
	if a.Name.Space == "xmlns" {
		return a.Name.Local, a.Value, true
	}
	if a.Name.Space == "" && a.Name.Local == "xmlns" {
		return "", a.Value, true
	}
	return "", "", false
}

// parseDoctype extracts the pieces of a <!DOCTYPE ...> directive. Internal
// subsets are not supported and are ignored along with anything else after
// the identifiers.
func parseDoctype(s string) (stream.DoctypeDecl, bool) {
	fields := splitDoctype(strings.TrimSpace(s))
	if len(fields) < 2 || !strings.EqualFold(fields[0], "DOCTYPE") {
		return stream.DoctypeDecl{}, false
	}
	decl := stream.DoctypeDecl{Name: fields[1]}
	rest := fields[2:]
	if len(rest) == 0 {
		return decl, true
	}
	switch {
	case strings.EqualFold(rest[0], "PUBLIC") && len(rest) >= 3:
		decl.PublicID = unquote(rest[1])
		decl.SystemID = unquote(rest[2])
	case strings.EqualFold(rest[0], "SYSTEM") && len(rest) >= 2:
		decl.SystemID = unquote(rest[1])
	}
	return decl, true
}

// splitDoctype splits on whitespace but keeps quoted identifiers intact.
func splitDoctype(s string) []string {
	var fields []string
	for s != "" {
		s = strings.TrimLeft(s, " \t\r\n")
		if s == "" {
			break
		}
		if s[0] == '"' || s[0] == '\'' {
			quote := s[0]
			end := strings.IndexByte(s[1:], quote)
			if end < 0 {
				fields = append(fields, s)
				break
			}
			fields = append(fields, s[:end+2])
			s = s[end+2:]
			continue
		}
		end := strings.IndexAny(s, " \t\r\n")
		if end < 0 {
			fields = append(fields, s)
			break
		}
		fields = append(fields, s[:end])
		s = s[end:]
	}
	return fields
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// lineTracker records newline offsets as the decoder reads, so byte offsets
// translate to line and column positions.
type lineTracker struct {
	r        io.Reader
	read     int64
	newlines []int64
}

func (t *lineTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	for i := 0; i < n; i++ {
		if p[i] == '\n' {
			t.newlines = append(t.newlines, t.read+int64(i))
		}
	}
	t.read += int64(n)
	return n, err
}

// pos converts a byte offset into a position. Lines and columns are
// one-based.
func (t *lineTracker) pos(offset int64, source string) stream.Pos {
	line := 1
	lineStart := int64(0)
	for _, nl := range t.newlines {
		if nl >= offset {
			break
		}
		line++
		lineStart = nl + 1
	}
	return stream.Pos{Source: source, Line: line, Col: int(offset-lineStart) + 1}
}

// decodeCharset converts a declared document encoding to UTF-8. Labels go
// through the WHATWG encoding index, so aliases such as latin1 resolve.
func decodeCharset(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q", label)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

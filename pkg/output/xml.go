package output

import (
	"fmt"
	"io"

	"github.com/conneroisu/marka/pkg/stream"
)

// xmlSerializer writes xml or xhtml. collapse limits which empty elements
// become self-closing tags; nil means all of them.
type xmlSerializer struct {
	collapse map[string]bool
	space    bool
}

func (ser *xmlSerializer) WriteTo(w io.Writer, s *stream.Stream) error {
	ns := newNSContext()
	inCDATA := false

	// one event lookahead so empty elements collapse
	var held *stream.Event
	next := func() (stream.Event, bool) {
		if held != nil {
			ev := *held
			held = nil
			return ev, true
		}
		return s.Next()
	}

	for {
		ev, ok := next()
		if !ok {
			return s.Err()
		}
		switch ev.Kind {
		case stream.StartNS:
			ns.declare(ev.Data.(stream.NSBinding))

		case stream.EndNS:
			ns.undeclare(ev.Data.(string))

		case stream.StartElement:
			el := ev.Element()
			selfClose := false
			if peek, ok := next(); ok {
				if peek.Kind == stream.EndElement && peek.Name() == el.Name {
					selfClose = ser.collapse == nil || ser.collapse[el.Name.Local]
				}
				if !selfClose {
					peeked := peek
					held = &peeked
				}
			}
			if err := ser.writeStartTag(w, ns, el, selfClose); err != nil {
				return err
			}
			if selfClose {
				ns.pop()
			}

		case stream.EndElement:
			ns.pop()
			if _, err := fmt.Fprintf(w, "</%s>", ns.qualify(ev.Name(), false)); err != nil {
				return err
			}

		case stream.Text:
			if inCDATA {
				if _, err := io.WriteString(w, stream.Stringify(ev.Data)); err != nil {
					return err
				}
				continue
			}
			if err := writeEscaped(w, ev.Data); err != nil {
				return err
			}

		case stream.StartCDATA:
			if _, err := io.WriteString(w, "<![CDATA["); err != nil {
				return err
			}
			inCDATA = true

		case stream.EndCDATA:
			if _, err := io.WriteString(w, "]]>"); err != nil {
				return err
			}
			inCDATA = false

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

func (ser *xmlSerializer) writeStartTag(w io.Writer, ns *nsContext, el stream.Element, selfClose bool) error {
	declared := ns.push()
	name := ns.qualify(el.Name, false)
	if _, err := fmt.Fprintf(w, "<%s", name); err != nil {
		return err
	}
	for _, b := range declared {
		attr := "xmlns"
		if b.Prefix != "" {
			attr = "xmlns:" + b.Prefix
		}
		if _, err := fmt.Fprintf(w, ` %s="`, attr); err != nil {
			return err
		}
		if err := writeAttrValue(w, b.URI); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `"`); err != nil {
			return err
		}
	}
	for _, attr := range el.Attrs {
		if _, err := fmt.Fprintf(w, ` %s="`, ns.qualify(attr.Name, true)); err != nil {
			return err
		}
		if err := writeAttrValue(w, attr.Value); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `"`); err != nil {
			return err
		}
	}
	end := ">"
	if selfClose {
		end = "/>"
		if ser.space {
			end = " />"
		}
	}
	_, err := io.WriteString(w, end)
	return err
}

// nsContext tracks in-scope namespace bindings while serializing. Bindings
// declared since the last start tag are attached to the next one.
type nsContext struct {
	byURI    map[string][]string
	byPrefix map[string][]string
	pending  []stream.NSBinding
	open     [][]stream.NSBinding
	auto     int
}

func newNSContext() *nsContext {
	return &nsContext{
		byURI:    map[string][]string{},
		byPrefix: map[string][]string{},
	}
}

func (ns *nsContext) declare(b stream.NSBinding) {
	ns.byURI[b.URI] = append(ns.byURI[b.URI], b.Prefix)
	ns.byPrefix[b.Prefix] = append(ns.byPrefix[b.Prefix], b.URI)
	ns.pending = append(ns.pending, b)
}

func (ns *nsContext) undeclare(prefix string) {
	uris := ns.byPrefix[prefix]
	if len(uris) == 0 {
		return
	}
	uri := uris[len(uris)-1]
	ns.byPrefix[prefix] = uris[:len(uris)-1]
	if prefixes := ns.byURI[uri]; len(prefixes) > 0 {
		ns.byURI[uri] = prefixes[:len(prefixes)-1]
	}
}

// push moves the pending declarations onto the element scope stack and
// returns them for writing as xmlns attributes.
func (ns *nsContext) push() []stream.NSBinding {
	declared := ns.pending
	ns.pending = nil
	ns.open = append(ns.open, declared)
	return declared
}

func (ns *nsContext) pop() {
	if len(ns.open) == 0 {
		return
	}
	ns.open = ns.open[:len(ns.open)-1]
}

// qualify renders a QName with the prefix bound to its namespace. Unbound
// namespaces get a generated prefix declared on the current element.
// Attributes never use the default namespace, so they force a real prefix.
func (ns *nsContext) qualify(q stream.QName, attr bool) string {
	if q.Space == "" {
		return q.Local
	}
	if stream.XMLNamespace.Contains(q) {
		return "xml:" + q.Local
	}
	prefixes := ns.byURI[q.Space]
	for i := len(prefixes) - 1; i >= 0; i-- {
		if prefixes[i] == "" && attr {
			continue
		}
		if prefixes[i] == "" {
			return q.Local
		}
		return prefixes[i] + ":" + q.Local
	}
	ns.auto++
	prefix := fmt.Sprintf("ns%d", ns.auto)
	ns.declare(stream.NSBinding{Prefix: prefix, URI: q.Space})
	return prefix + ":" + q.Local
}

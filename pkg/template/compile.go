package template

import (
	"sort"
	"strings"

	"github.com/conneroisu/marka/pkg/eval"
	"github.com/conneroisu/marka/pkg/stream"
)

// NamespaceURI is the namespace of directive attributes and element-form
// directives. Declarations of it are stripped from output.
const NamespaceURI = "http://marka.dev/ns/"

// XIncludeURI is the namespace of include/fallback elements.
const XIncludeURI = "http://www.w3.org/2001/XInclude"

var (
	directiveNS = stream.Namespace(NamespaceURI)
	xincludeNS  = stream.Namespace(XIncludeURI)
)

// elementArg names the expression attribute of each element-form directive.
// Directives absent here are attribute-only.
var elementArg = map[string]string{
	"def":       "function",
	"match":     "path",
	"when":      "test",
	"otherwise": "",
	"for":       "each",
	"if":        "test",
	"choose":    "test",
	"with":      "vars",
	"replace":   "value",
	"strip":     "strip",
}

// sub is the payload of a SubEvent: the directives governing a group of
// events, already sorted into application precedence.
type sub struct {
	dirs   []*directive
	events []stream.Event
}

// includeInfo is the payload of an include SubEvent. href is the
// interpolated reference; fallback is the compiled fallback content, nil
// when none was declared.
type includeInfo struct {
	href     []stream.Event
	fallback []stream.Event
	declared bool
}

type compiler struct {
	events []stream.Event
	idx    int
	// active prefix bindings, for compiling qualified match paths
	ns      map[string]string
	nsStack []savedBinding
}

type savedBinding struct {
	prefix string
	uri    string
	bound  bool
}

// compileEvents turns a parsed event stream into the compiled form: text
// interpolated, directives folded into SubEvents, directive and include
// namespace machinery stripped.
func compileEvents(events []stream.Event) ([]stream.Event, error) {
	c := &compiler{events: events, ns: map[string]string{}}
	out, err := c.compileUntil(stream.QName{})
	if err != nil {
		return nil, err
	}
	if c.idx < len(c.events) {
		ev := c.events[c.idx]
		return nil, errorf(CodeSyntax, ev.Pos, "unexpected closing tag </%s>", ev.Name().Local)
	}
	return out, nil
}

// compileUntil compiles events up to (not including) the EndElement closing
// the element named by until; a zero name compiles to the end of input.
func (c *compiler) compileUntil(until stream.QName) ([]stream.Event, error) {
	var out []stream.Event
	for c.idx < len(c.events) {
		ev := c.events[c.idx]
		switch ev.Kind {
		case stream.EndElement:
			if until.IsZero() {
				return out, nil
			}
			if ev.Name() != until {
				return nil, errorf(CodeSyntax, ev.Pos, "mismatched closing tag </%s>, expected </%s>",
					ev.Name().Local, until.Local)
			}
			return out, nil

		case stream.StartElement:
			compiled, err := c.compileElement(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, compiled...)

		case stream.Text:
			c.idx++
			parts, err := interpolate(ev.Text(), ev.Pos)
			if err != nil {
				return nil, err
			}
			if m, ok := ev.Data.(stream.Markup); ok && len(parts) == 1 {
				// preserve pre-escaped text payloads
				parts[0].Data = m
			}
			out = append(out, parts...)

		case stream.StartNS:
			c.idx++
			b := ev.Data.(stream.NSBinding)
			old, bound := c.ns[b.Prefix]
			c.nsStack = append(c.nsStack, savedBinding{prefix: b.Prefix, uri: old, bound: bound})
			c.ns[b.Prefix] = b.URI
			if b.URI != NamespaceURI && b.URI != XIncludeURI {
				out = append(out, ev)
			}

		case stream.EndNS:
			c.idx++
			prefix, _ := ev.Data.(string)
			var uri string
			if n := len(c.nsStack); n > 0 {
				saved := c.nsStack[n-1]
				c.nsStack = c.nsStack[:n-1]
				uri = c.ns[saved.prefix]
				if saved.bound {
					c.ns[saved.prefix] = saved.uri
				} else {
					delete(c.ns, saved.prefix)
				}
				prefix = saved.prefix
			}
			if uri != NamespaceURI && uri != XIncludeURI {
				out = append(out, stream.Event{Kind: stream.EndNS, Data: prefix, Pos: ev.Pos})
			}

		default:
			c.idx++
			out = append(out, ev)
		}
	}
	if until.IsZero() {
		return out, nil
	}
	return nil, errorf(CodeSyntax, stream.Unknown, "unclosed element <%s>", until.Local)
}

func (c *compiler) compileElement(start stream.Event) ([]stream.Event, error) {
	el := start.Element()
	c.idx++ // consume the start event

	if xincludeNS.Contains(el.Name) {
		return c.compileInclude(start, el)
	}

	elementForm := directiveNS.Contains(el.Name)
	var dirs []*directive
	var hints map[string]string
	attrs := el.Attrs

	if elementForm {
		argName := elementArg[el.Name.Local]
		if _, known := directiveKinds[el.Name.Local]; !known {
			return nil, errorf(CodeUnknownDirective, start.Pos, "unknown directive element <%s>", el.Name.Local)
		}
		if _, ok := elementArg[el.Name.Local]; !ok {
			return nil, errorf(CodeBadDirective, start.Pos,
				"%s is an attribute directive and has no element form", el.Name.Local)
		}
		value := ""
		if argName != "" {
			value = attrs.Get(argName)
			attrs = attrs.Remove(stream.QName{Local: argName})
		}
		if el.Name.Local == "match" {
			// hints ride as plain attributes on the match element
			for _, hint := range []string{"once", "buffer", "recursive"} {
				q := stream.QName{Local: hint}
				if v, ok := attrs.GetQ(q); ok {
					if hints == nil {
						hints = map[string]string{}
					}
					hints[hint] = stream.Stringify(v)
					attrs = attrs.Remove(q)
				}
			}
		}
		d, err := parseDirective(el.Name.Local, value, start.Pos, c.nsSnapshot())
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, d)
	}

	// split off directive-namespace attributes
	for _, attr := range el.Attrs {
		if !directiveNS.Contains(attr.Name) {
			continue
		}
		attrs = attrs.Remove(attr.Name)
		local := attr.Name.Local
		value := stream.Stringify(attr.Value)
		if local == "once" || local == "buffer" || local == "recursive" {
			if hints == nil {
				hints = map[string]string{}
			}
			hints[local] = value
			continue
		}
		d, err := parseDirective(local, value, start.Pos, c.nsSnapshot())
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, d)
	}

	if err := validateDirectives(dirs, hints, start.Pos); err != nil {
		return nil, err
	}
	applyMatchHints(dirs, hints)
	sort.SliceStable(dirs, func(i, j int) bool { return dirs[i].kind < dirs[j].kind })

	interpolated, err := c.interpolateAttrs(attrs, start.Pos)
	if err != nil {
		return nil, err
	}

	body, err := c.compileUntil(el.Name)
	if err != nil {
		return nil, err
	}
	if c.idx >= len(c.events) {
		return nil, errorf(CodeSyntax, start.Pos, "unclosed element <%s>", el.Name.Local)
	}
	end := c.events[c.idx]
	c.idx++ // consume the end event

	if err := checkUnbufferedSelect(dirs, body); err != nil {
		return nil, err
	}

	if elementForm {
		// directive elements contribute no tags of their own
		if len(dirs) == 0 {
			return body, nil
		}
		return []stream.Event{{Kind: stream.SubEvent, Data: &sub{dirs: dirs, events: body}, Pos: start.Pos}}, nil
	}

	startEv := stream.Event{
		Kind: stream.StartElement,
		Data: stream.Element{Name: el.Name, Attrs: interpolated},
		Pos:  start.Pos,
	}
	events := make([]stream.Event, 0, len(body)+2)
	events = append(events, startEv)
	events = append(events, body...)
	events = append(events, end)
	if len(dirs) == 0 {
		return events, nil
	}
	return []stream.Event{{Kind: stream.SubEvent, Data: &sub{dirs: dirs, events: events}, Pos: start.Pos}}, nil
}

// compileInclude handles <xi:include href="..."> with an optional
// <xi:fallback> child.
func (c *compiler) compileInclude(start stream.Event, el stream.Element) ([]stream.Event, error) {
	switch el.Name.Local {
	case "include":
	case "fallback":
		return nil, errorf(CodeSyntax, start.Pos, "fallback element outside include")
	default:
		return nil, errorf(CodeSyntax, start.Pos, "unknown include element <%s>", el.Name.Local)
	}

	href := el.Attrs.Get("href")
	if href == "" {
		return nil, errorf(CodeSyntax, start.Pos, "include is missing its href attribute")
	}
	hrefEvents, err := interpolate(href, start.Pos)
	if err != nil {
		return nil, err
	}
	info := &includeInfo{href: hrefEvents}

	// scan children for a fallback element; other content is ignored
	for c.idx < len(c.events) {
		ev := c.events[c.idx]
		switch {
		case ev.Kind == stream.EndElement && ev.Name() == el.Name:
			c.idx++
			return []stream.Event{{Kind: stream.SubEvent, Data: info, Pos: start.Pos}}, nil
		case ev.Kind == stream.StartElement && ev.Name() == xincludeNS.Name("fallback"):
			c.idx++
			fallback, err := c.compileUntil(ev.Name())
			if err != nil {
				return nil, err
			}
			if c.idx >= len(c.events) {
				return nil, errorf(CodeSyntax, ev.Pos, "unclosed fallback element")
			}
			c.idx++ // consume </fallback>
			info.fallback = fallback
			info.declared = true
		default:
			c.idx++
		}
	}
	return nil, errorf(CodeSyntax, start.Pos, "unclosed include element")
}

func (c *compiler) nsSnapshot() map[string]string {
	snap := make(map[string]string, len(c.ns))
	for prefix, uri := range c.ns {
		snap[prefix] = uri
	}
	return snap
}

func (c *compiler) interpolateAttrs(attrs stream.Attrs, pos stream.Pos) (stream.Attrs, error) {
	var out stream.Attrs
	for _, attr := range attrs {
		value := stream.Stringify(attr.Value)
		if !strings.ContainsRune(value, '$') {
			out = append(out, stream.Attr{Name: attr.Name, Value: value})
			continue
		}
		parts, err := interpolate(value, pos)
		if err != nil {
			return nil, err
		}
		if len(parts) == 1 && parts[0].Kind == stream.Text {
			out = append(out, stream.Attr{Name: attr.Name, Value: parts[0].Text()})
			continue
		}
		out = append(out, stream.Attr{Name: attr.Name, Value: parts})
	}
	return out, nil
}

func validateDirectives(dirs []*directive, hints map[string]string, pos stream.Pos) error {
	var hasMatch, hasReplace, hasContent bool
	for _, d := range dirs {
		switch d.kind {
		case dirMatch:
			hasMatch = true
		case dirReplace:
			hasReplace = true
		case dirContent:
			hasContent = true
		}
	}
	if hasReplace && hasContent {
		return errorf(CodeBadDirective, pos, "replace and content cannot share an element")
	}
	if hints != nil && !hasMatch {
		return errorf(CodeBadDirective, pos, "match hints without a match directive")
	}
	return nil
}

func applyMatchHints(dirs []*directive, hints map[string]string) {
	if hints == nil {
		return
	}
	for _, d := range dirs {
		if d.kind != dirMatch {
			continue
		}
		if v, ok := hints["buffer"]; ok {
			d.hints.buffer = v == "true"
		}
		if v, ok := hints["once"]; ok {
			d.hints.once = v == "true"
		}
		if v, ok := hints["recursive"]; ok {
			d.hints.recursive = v == "true"
		}
		if d.hints.once {
			d.hints.recursive = false
		}
	}
}

// checkUnbufferedSelect rejects un-buffered match rules whose body selects
// from the matched subtree more than once; a single-pass capture cannot be
// replayed.
func checkUnbufferedSelect(dirs []*directive, body []stream.Event) error {
	for _, d := range dirs {
		if d.kind != dirMatch || d.hints.buffer {
			continue
		}
		if n := countSelectCalls(body); n > 1 {
			return errorf(CodeMultipleUnbufferedSelect, d.pos,
				"un-buffered match rule calls select() %d times; set the buffer hint", n)
		}
	}
	return nil
}

func exprSource(ev stream.Event) string {
	if e, ok := ev.Data.(*eval.Expr); ok {
		return e.Source()
	}
	return ""
}

func countSelectCalls(events []stream.Event) int {
	n := 0
	for _, ev := range events {
		switch ev.Kind {
		case stream.ExprEvent:
			n += strings.Count(exprSource(ev), "select(")
		case stream.SubEvent:
			if s, ok := ev.Data.(*sub); ok {
				for _, d := range s.dirs {
					if d.expr != nil {
						n += strings.Count(d.expr.Source(), "select(")
					}
					for _, a := range d.assignments {
						n += strings.Count(a.Expr.Source(), "select(")
					}
				}
				n += countSelectCalls(s.events)
			}
		case stream.StartElement:
			for _, attr := range ev.Element().Attrs {
				if parts, ok := attr.Value.([]stream.Event); ok {
					n += countSelectCalls(parts)
				}
			}
		}
	}
	return n
}

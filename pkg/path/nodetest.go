package path

import "github.com/conneroisu/marka/pkg/stream"

// nodeTest checks whether one event satisfies a location step's name or
// node-type test. A nil result means no match; attribute-axis tests return
// the matched attributes so Select can extract their values.
type nodeTest interface {
	eval(ev stream.Event, ns map[string]string, vars Variables) any
	String() string
}

// principalTest matches any node of the step's principal type ("*").
type principalTest struct {
	principal axis // axisAttribute for attribute steps, anything else for elements
}

func (t principalTest) eval(ev stream.Event, _ map[string]string, _ Variables) any {
	if ev.Kind != stream.StartElement {
		return nil
	}
	if t.principal == axisAttribute {
		if attrs := ev.Element().Attrs; len(attrs) > 0 {
			return attrs
		}
		return nil
	}
	return true
}

func (t principalTest) String() string { return "*" }

// qualifiedPrincipalTest matches any principal-type node in one namespace
// ("prefix:*").
type qualifiedPrincipalTest struct {
	principal axis
	prefix    string
}

func (t qualifiedPrincipalTest) eval(ev stream.Event, ns map[string]string, _ Variables) any {
	if ev.Kind != stream.StartElement {
		return nil
	}
	space := ns[t.prefix]
	if t.principal == axisAttribute {
		var matched stream.Attrs
		for _, attr := range ev.Element().Attrs {
			if attr.Name.Space == space {
				matched = append(matched, attr)
			}
		}
		if len(matched) > 0 {
			return matched
		}
		return nil
	}
	return ev.Element().Name.Space == space
}

func (t qualifiedPrincipalTest) String() string { return t.prefix + ":*" }

// localNameTest matches by local name, in any namespace.
type localNameTest struct {
	principal axis
	name      string
}

func (t localNameTest) eval(ev stream.Event, _ map[string]string, _ Variables) any {
	if ev.Kind != stream.StartElement {
		return nil
	}
	if t.principal == axisAttribute {
		attrs := ev.Element().Attrs
		for _, attr := range attrs {
			if attr.Name.Local == t.name && attr.Name.Space == "" {
				return stream.Attrs{attr}
			}
		}
		return nil
	}
	return ev.Element().Name.Local == t.name
}

func (t localNameTest) String() string { return t.name }

// qualifiedNameTest matches by exact qualified name, the prefix resolved
// through the namespace map in effect where the path was written.
type qualifiedNameTest struct {
	principal axis
	prefix    string
	name      string
}

func (t qualifiedNameTest) eval(ev stream.Event, ns map[string]string, _ Variables) any {
	if ev.Kind != stream.StartElement {
		return nil
	}
	qname := stream.QName{Space: ns[t.prefix], Local: t.name}
	if t.principal == axisAttribute {
		for _, attr := range ev.Element().Attrs {
			if attr.Name == qname {
				return stream.Attrs{attr}
			}
		}
		return nil
	}
	return ev.Element().Name == qname
}

func (t qualifiedNameTest) String() string { return t.prefix + ":" + t.name }

// commentTest implements comment().
type commentTest struct{}

func (commentTest) eval(ev stream.Event, _ map[string]string, _ Variables) any {
	return ev.Kind == stream.Comment
}

func (commentTest) String() string { return "comment()" }

// textTest implements text().
type textTest struct{}

func (textTest) eval(ev stream.Event, _ map[string]string, _ Variables) any {
	return ev.Kind == stream.Text
}

func (textTest) String() string { return "text()" }

// anyNodeTest implements node(): elements match with true, any other event
// matches as itself.
type anyNodeTest struct{}

func (anyNodeTest) eval(ev stream.Event, _ map[string]string, _ Variables) any {
	if ev.Kind == stream.StartElement {
		return true
	}
	if ev.Kind == stream.EndElement {
		return nil
	}
	return ev
}

func (anyNodeTest) String() string { return "node()" }

// piTest implements processing-instruction(), optionally constrained to one
// target.
type piTest struct {
	target string
}

func (t piTest) eval(ev stream.Event, _ map[string]string, _ Variables) any {
	if ev.Kind != stream.PI {
		return nil
	}
	return t.target == "" || ev.Data.(stream.ProcInst).Target == t.target
}

func (t piTest) String() string {
	if t.target == "" {
		return "processing-instruction()"
	}
	return "processing-instruction(\"" + t.target + "\")"
}

// Package stream defines the markup event model shared by every stage of the
// rendering pipeline: parsers produce event streams, the template engine
// transforms them, and serializers consume them.
//
// A Stream is lazy and single-pass. Transformations never mutate events in
// place; they yield new events built from the old ones.
package stream

import "fmt"

// Kind identifies the type of a markup event.
type Kind int

const (
	// StartElement carries an Element payload (name plus attributes).
	StartElement Kind = iota
	// EndElement carries the QName of the element being closed.
	EndElement
	// Text carries a string, or a Markup value for pre-escaped content.
	Text
	// StartNS carries an NSBinding mapping a prefix to a namespace URI.
	StartNS
	// EndNS carries the prefix whose binding goes out of scope.
	EndNS
	// Doctype carries a DoctypeDecl.
	Doctype
	// Comment carries the comment text.
	Comment
	// PI carries a ProcInst.
	PI
	// StartCDATA and EndCDATA delimit a CDATA section; they carry no payload.
	StartCDATA
	EndCDATA

	// ExprEvent and SubEvent appear only inside compiled templates. ExprEvent
	// carries a compiled expression to be evaluated at render time; SubEvent
	// carries a directive list plus the events it governs. Renders never emit
	// either kind.
	ExprEvent
	SubEvent
)

func (k Kind) String() string {
	switch k {
	case StartElement:
		return "START"
	case EndElement:
		return "END"
	case Text:
		return "TEXT"
	case StartNS:
		return "START_NS"
	case EndNS:
		return "END_NS"
	case Doctype:
		return "DOCTYPE"
	case Comment:
		return "COMMENT"
	case PI:
		return "PI"
	case StartCDATA:
		return "START_CDATA"
	case EndCDATA:
		return "END_CDATA"
	case ExprEvent:
		return "EXPR"
	case SubEvent:
		return "SUB"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Pos locates an event in its source for diagnostics. It is never
// semantically significant.
type Pos struct {
	Source string
	Line   int
	Col    int
}

// Unknown is the position used for events with no source location.
var Unknown = Pos{Line: -1, Col: -1}

func (p Pos) String() string {
	src := p.Source
	if src == "" {
		src = "<string>"
	}
	if p.Line < 0 {
		return src
	}
	return fmt.Sprintf("%s:%d:%d", src, p.Line, p.Col)
}

// Event is one immutable record in a markup stream. The Data payload depends
// on the Kind; see the Kind constants for the payload types.
type Event struct {
	Kind Kind
	Data any
	Pos  Pos
}

// Element is the payload of a StartElement event.
type Element struct {
	Name  QName
	Attrs Attrs
}

// NSBinding is the payload of a StartNS event.
type NSBinding struct {
	Prefix string
	URI    string
}

// DoctypeDecl is the payload of a Doctype event.
type DoctypeDecl struct {
	Name     string
	PublicID string
	SystemID string
}

// ProcInst is the payload of a PI event.
type ProcInst struct {
	Target string
	Data   string
}

// Element returns the payload of a StartElement event. It panics when called
// on any other kind; callers check Kind first.
func (e Event) Element() Element {
	return e.Data.(Element)
}

// Name returns the qualified name carried by a StartElement or EndElement
// event.
func (e Event) Name() QName {
	if e.Kind == StartElement {
		return e.Data.(Element).Name
	}
	return e.Data.(QName)
}

// Text returns the textual payload of a Text event as a plain string.
func (e Event) Text() string {
	switch v := e.Data.(type) {
	case string:
		return v
	case Markup:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func (e Event) String() string {
	return fmt.Sprintf("(%s, %v, %s)", e.Kind, e.Data, e.Pos)
}

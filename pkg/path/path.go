// Package path evaluates a restricted path-expression language against
// markup event streams, without lookahead or rewind.
//
// Only the self, attribute, child, descendant and descendant-or-self axes
// are supported; anything that would require buffering the document (parent,
// ancestor, sibling and namespace axes, and the count/position/last/id
// functions) is rejected when the expression is compiled. Because of that
// restriction a compiled Path can test a live stream position incrementally:
// each element-start advances a small state machine over the ancestor stack,
// and each element-end retracts it.
package path

import (
	"strings"

	"github.com/conneroisu/marka/pkg/stream"
)

type axis int

const (
	axisAttribute axis = iota
	axisChild
	axisDescendant
	axisDescendantOrSelf
	axisSelf
)

func (a axis) String() string {
	switch a {
	case axisAttribute:
		return "attribute"
	case axisChild:
		return "child"
	case axisDescendant:
		return "descendant"
	case axisDescendantOrSelf:
		return "descendant-or-self"
	case axisSelf:
		return "self"
	default:
		return "?"
	}
}

// step is one location step: an axis, a node test and optional predicates.
type step struct {
	axis  axis
	test  nodeTest
	preds []expr
}

// Variables resolves $name references in predicates.
type Variables interface {
	Value(name string) (any, bool)
}

// VarMap is a map-backed Variables implementation.
type VarMap map[string]any

func (m VarMap) Value(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Path is a compiled path expression. It is immutable and safe to share
// across concurrent renders; all per-stream state lives in the Tester
// returned by Test.
type Path struct {
	source string
	paths  [][]step
}

// Compile parses a path expression. The pos parameter locates the
// expression in its template for diagnostics.
func Compile(text string, pos stream.Pos) (*Path, error) {
	paths, err := newParser(text, pos).parse()
	if err != nil {
		return nil, err
	}
	return &Path{source: text, paths: paths}, nil
}

// MustCompile is Compile for expressions known to be valid, as in tests.
func MustCompile(text string) *Path {
	p, err := Compile(text, stream.Unknown)
	if err != nil {
		panic(err)
	}
	return p
}

// Source returns the original expression text.
func (p *Path) Source() string { return p.source }

func (p *Path) String() string {
	var union []string
	for _, steps := range p.paths {
		parts := make([]string, len(steps))
		for i, s := range steps {
			parts[i] = s.axis.String() + "::" + s.test.String()
		}
		union = append(union, strings.Join(parts, "/"))
	}
	return "<Path \"" + strings.Join(union, "|") + "\">"
}

// Simple returns the local name matched by a bare single-step child path
// like "greeting", or false for anything more involved. The match pipeline
// uses this to index rules by tag.
func (p *Path) Simple() (string, bool) {
	if len(p.paths) != 1 || len(p.paths[0]) != 1 {
		return "", false
	}
	s := p.paths[0][0]
	if s.axis != axisChild || len(s.preds) > 0 {
		return "", false
	}
	if lt, ok := s.test.(localNameTest); ok {
		return lt.name, true
	}
	return "", false
}

// Test returns a fresh incremental tester for one pass over one stream.
// When ignoreContext is set the path is interpreted like a rewrite pattern:
// it may match at any depth, not just relative to the current position.
func (p *Path) Test(ignoreContext bool) *Tester {
	states := make([]*strategy, len(p.paths))
	for i, steps := range p.paths {
		states[i] = newStrategy(steps, ignoreContext)
	}
	return &Tester{states: states}
}

// Select returns the substream of s matching the path. Element matches
// yield the complete subtree; attribute matches yield their values as
// synthetic text events.
func (p *Path) Select(s *stream.Stream, ns map[string]string, vars Variables) *stream.Stream {
	return stream.Generate(func(yield func(stream.Event) bool) error {
		test := p.Test(false)
		for {
			ev, ok := s.Next()
			if !ok {
				return s.Err()
			}
			result := test.Feed(ev, ns, vars)
			switch r := result.(type) {
			case nil:
			case bool:
				if !r {
					continue
				}
				if !yield(ev) {
					return nil
				}
				if ev.Kind == stream.StartElement {
					depth := 1
					for depth > 0 {
						sub, ok := s.Next()
						if !ok {
							return s.Err()
						}
						switch sub.Kind {
						case stream.StartElement:
							depth++
						case stream.EndElement:
							depth--
						}
						if !yield(sub) {
							return nil
						}
						test.Update(sub, ns, vars)
					}
				}
			case stream.Attrs:
				var b strings.Builder
				for _, attr := range r {
					b.WriteString(stream.Stringify(attr.Value))
				}
				if !yield(stream.Event{Kind: stream.Text, Data: b.String(), Pos: ev.Pos}) {
					return nil
				}
			case stream.Event:
				if !yield(r) {
					return nil
				}
			default:
				if !yield(stream.Event{Kind: stream.Text, Data: stream.Stringify(r), Pos: ev.Pos}) {
					return nil
				}
			}
		}
	})
}

// Tester tracks whether a path matches the position of a live stream. Feed
// it every event in order; it answers on element starts (and text events for
// text() steps) and updates its ancestor bookkeeping on ends.
type Tester struct {
	states []*strategy
}

// Feed advances the tester by one event. It returns nil for no match, true
// for an element match, an Attrs value for attribute matches, or the
// matched event itself for node-type tests.
func (t *Tester) Feed(ev stream.Event, ns map[string]string, vars Variables) any {
	var retval any
	for _, s := range t.states {
		val := s.feed(ev, ns, vars)
		if retval == nil {
			retval = val
		}
	}
	return retval
}

// Update advances the tester's internal state without caring about the
// result. Co-registered rules use this to stay in sync on events another
// rule consumed.
func (t *Tester) Update(ev stream.Event, ns map[string]string, vars Variables) {
	t.Feed(ev, ns, vars)
}

// Matches reports whether the result of Feed counts as a hit.
func Matches(result any) bool {
	switch r := result.(type) {
	case nil:
		return false
	case bool:
		return r
	default:
		return true
	}
}

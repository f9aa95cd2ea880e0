// Package template compiles markup event streams into templates and renders
// them. Directives are declared in the template namespace, either as
// attributes on ordinary elements or as elements of their own. Rendering is
// lazy: Render returns a stream that computes events as they are pulled.
package template

import (
	"github.com/conneroisu/marka/pkg/eval"
	"github.com/conneroisu/marka/pkg/stream"
)

// DefaultMaxRecursion bounds macro expansion, match re-application and
// include nesting unless WithMaxRecursion overrides it.
const DefaultMaxRecursion = 100

// Template is a compiled template. It is immutable and safe for concurrent
// renders.
type Template struct {
	name     string
	events   []stream.Event
	loader   Loader
	maxDepth int
}

// Option configures a Template at construction.
type Option func(*Template)

// WithLoader makes include directives resolvable.
func WithLoader(l Loader) Option {
	return func(t *Template) { t.loader = l }
}

// WithMaxRecursion overrides the recursion depth bound.
func WithMaxRecursion(n int) Option {
	return func(t *Template) {
		if n > 0 {
			t.maxDepth = n
		}
	}
}

// New compiles an event stream into a template. name identifies the source
// in error positions and is what relative includes resolve against.
func New(source *stream.Stream, name string, opts ...Option) (*Template, error) {
	events, err := source.Events()
	if err != nil {
		return nil, err
	}
	return NewFromEvents(events, name, opts...)
}

// NewFromEvents compiles an already materialized event slice.
func NewFromEvents(events []stream.Event, name string, opts ...Option) (*Template, error) {
	compiled, err := compileEvents(events)
	if err != nil {
		return nil, err
	}
	t := &Template{name: name, events: compiled, maxDepth: DefaultMaxRecursion}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Name returns the source name the template was compiled under.
func (t *Template) Name() string { return t.name }

// Render evaluates the template against data. The returned stream carries
// plain markup events only; directive and expression events never escape.
// Errors during evaluation terminate the stream and surface through its Err
// method.
func (t *Template) Render(data map[string]any, mode eval.Mode) *stream.Stream {
	rc := &renderContext{tmpl: t}
	scope := eval.NewScope(data, mode)
	return rc.matched(rc.flatten(t.events, scope))
}

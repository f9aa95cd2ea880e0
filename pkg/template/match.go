package template

import (
	"github.com/conneroisu/marka/pkg/eval"
	"github.com/conneroisu/marka/pkg/path"
	"github.com/conneroisu/marka/pkg/stream"
)

// matchRule is one registered match directive. Its tester is fed every
// element boundary flowing past the rule's position in the pipeline, so a
// rule only sees events emitted after its declaration.
type matchRule struct {
	path   *path.Path
	tester *path.Tester
	body   []stream.Event
	dirs   []*directive
	hints  matchHints
	ns     map[string]string
	scope  *eval.Scope
	pos    stream.Pos
	done   bool
}

// scopeVars exposes template bindings to path predicates.
type scopeVars struct {
	scope *eval.Scope
}

func (v scopeVars) Value(name string) (any, bool) {
	return v.scope.Lookup(name)
}

func (rc *renderContext) registerRule(data *sub, scope *eval.Scope) {
	d := data.dirs[0]
	rc.rules = append(rc.rules, &matchRule{
		path:   d.path,
		tester: d.path.Test(true),
		body:   data.events,
		dirs:   data.dirs[1:],
		hints:  d.hints,
		ns:     d.ns,
		scope:  scope,
		pos:    d.pos,
	})
}

// matched applies every registered rule to the stream, in registration
// order: each rule filters the output of the rules declared before it.
// Rules registered while the stream is being consumed join the chain as
// soon as they appear.
func (rc *renderContext) matched(s *stream.Stream) *stream.Stream {
	return stream.Generate(func(yield func(stream.Event) bool) error {
		inner := s
		applied := 0
		for {
			for applied < len(rc.rules) {
				inner = rc.ruleFilter(inner, rc.rules[applied])
				applied++
			}
			ev, ok := inner.Next()
			if !ok {
				return inner.Err()
			}
			if applied < len(rc.rules) {
				// a rule registered upstream while this event was in
				// flight; the new filter must still see the event
				inner = prepend(ev, inner)
				continue
			}
			if !yield(ev) {
				return nil
			}
		}
	})
}

func prepend(ev stream.Event, s *stream.Stream) *stream.Stream {
	first := true
	return stream.New(func() (stream.Event, bool) {
		if first {
			first = false
			return ev, true
		}
		return s.Next()
	})
}

func (rc *renderContext) ruleFilter(up *stream.Stream, r *matchRule) *stream.Stream {
	return stream.Generate(func(yield func(stream.Event) bool) error {
		return rc.matchScan(up, r, false, yield)
	})
}

// matchScan walks a stream past one rule. When the rule hits, the matched
// subtree is consumed, the rule body is rendered with select bound over the
// captured content, and the body replaces the subtree in the output. With
// the recursive hint the body is scanned again by the same rule, protecting
// the body's own top-level elements from immediate re-matching.
func (rc *renderContext) matchScan(up *stream.Stream, r *matchRule, protectTop bool, yield func(stream.Event) bool) error {
	vars := scopeVars{scope: r.scope}
	depth := 0
	for {
		ev, ok := up.Next()
		if !ok {
			return up.Err()
		}
		if ev.Kind != stream.StartElement && ev.Kind != stream.EndElement {
			if !yield(ev) {
				return nil
			}
			continue
		}
		if r.done {
			if !yield(ev) {
				return nil
			}
			continue
		}
		result := r.tester.Feed(ev, r.ns, vars)
		if ev.Kind == stream.EndElement {
			depth--
			if !yield(ev) {
				return nil
			}
			continue
		}
		top := depth == 0
		depth++
		if !path.Matches(result) || (protectTop && top) {
			if !yield(ev) {
				return nil
			}
			continue
		}

		// hit: the subtree is consumed here, so the depth accounting
		// rolls back to where the start event left it
		depth--
		if r.hints.once {
			r.done = true
		}
		cpt := &capture{start: ev, up: up, rule: r, vars: vars}
		if r.hints.buffer {
			if err := cpt.materialize(); err != nil {
				return err
			}
		}

		sel := &selector{cap: cpt}
		body := rc.applyDirectives(r.body, r.dirs, r.scope.Push(eval.Frame{
			"select": sel.fn(),
		}))

		if rc.depth >= rc.tmpl.maxDepth {
			return errorf(CodeRecursionLimit, r.pos,
				"match rule for %s exceeds recursion depth %d", r.path.Source(), rc.tmpl.maxDepth)
		}
		rc.depth++
		var err error
		if r.hints.recursive && !r.done {
			err = rc.matchScan(body, r, true, yield)
		} else {
			err = body.Pipe(yield)
		}
		rc.depth--
		if err != nil {
			return err
		}
		if err := cpt.drain(); err != nil {
			return err
		}
	}
}

// capture holds the matched subtree. Buffered rules materialize it up
// front; unbuffered rules stream it on demand, which is why they allow only
// a single select.
type capture struct {
	start  stream.Event
	up     *stream.Stream
	rule   *matchRule
	vars   path.Variables
	events []stream.Event
	depth  int
	opened bool
	spent  bool
}

// pull returns the next content event, feeding the rule's own tester so its
// position bookkeeping survives the consumed subtree.
func (c *capture) pull() (stream.Event, bool, error) {
	if !c.opened {
		c.opened = true
		c.depth = 1
		return c.start, true, nil
	}
	if c.depth == 0 {
		return stream.Event{}, false, nil
	}
	ev, ok := c.up.Next()
	if !ok {
		if err := c.up.Err(); err != nil {
			return stream.Event{}, false, err
		}
		return stream.Event{}, false, errorf(CodeSyntax, c.start.Pos,
			"unclosed element %s in matched content", c.start.Name())
	}
	switch ev.Kind {
	case stream.StartElement:
		c.depth++
	case stream.EndElement:
		c.depth--
	}
	c.rule.tester.Update(ev, c.rule.ns, c.vars)
	return ev, true, nil
}

func (c *capture) materialize() error {
	for {
		ev, ok, err := c.pull()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		c.events = append(c.events, ev)
	}
}

func (c *capture) drain() error {
	for {
		_, ok, err := c.pull()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

// content returns the captured subtree as a stream. Buffered captures can
// produce it any number of times.
func (c *capture) content() (*stream.Stream, error) {
	if c.rule.hints.buffer {
		return stream.FromSlice(c.events), nil
	}
	if c.spent {
		return nil, errorf(CodeMultipleUnbufferedSelect, c.rule.pos,
			"select called more than once in unbuffered match for %s", c.rule.path.Source())
	}
	c.spent = true
	return stream.Generate(func(yield func(stream.Event) bool) error {
		for {
			ev, ok, err := c.pull()
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if !yield(ev) {
				return nil
			}
		}
	}), nil
}

// selector binds the select function available inside a match body.
type selector struct {
	cap *capture
}

func (s *selector) fn() func(string) (*stream.Stream, error) {
	return func(text string) (*stream.Stream, error) {
		p, err := path.Compile(text, s.cap.rule.pos)
		if err != nil {
			return nil, err
		}
		content, err := s.cap.content()
		if err != nil {
			return nil, err
		}
		return p.Select(content, s.cap.rule.ns, s.cap.vars), nil
	}
}

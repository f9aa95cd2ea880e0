package template

import (
	"reflect"
	"sort"

	"github.com/conneroisu/marka/pkg/eval"
	"github.com/conneroisu/marka/pkg/stream"
)

// chooseKey binds the per-render state of a choose directive into the scope
// chain. The NUL prefix keeps it out of reach of template expressions.
const chooseKey = "\x00choose"

// chooseState is created per choose site per render; when/otherwise
// branches consult and update it. It lives in a scope frame but is not
// itself a template-visible binding.
type chooseState struct {
	value    any
	hasValue bool
	matched  bool
}

// renderContext carries the per-render mutable state: registered match
// rules and the macro expansion depth. One context exists per Render call;
// compiled templates stay immutable.
type renderContext struct {
	tmpl  *Template
	rules []*matchRule
	depth int
}

// flatten renders compiled events: directives applied, expressions
// substituted, macro and match declarations processed. Declarations update
// the scope for the events that follow them, which is why the walk threads
// its scope sequentially.
func (rc *renderContext) flatten(events []stream.Event, scope *eval.Scope) *stream.Stream {
	return stream.Generate(func(yield func(stream.Event) bool) error {
		for _, ev := range events {
			switch ev.Kind {
			case stream.SubEvent:
				switch data := ev.Data.(type) {
				case *sub:
					if data.dirs[0].kind == dirDef {
						scope = rc.defineMacro(data, scope)
						continue
					}
					if data.dirs[0].kind == dirMatch {
						rc.registerRule(data, scope)
						continue
					}
					if err := rc.applyDirectives(data.events, data.dirs, scope).Pipe(yield); err != nil {
						return err
					}
				case *includeInfo:
					if err := rc.include(data, ev.Pos, scope).Pipe(yield); err != nil {
						return err
					}
				}

			case stream.ExprEvent:
				v, err := ev.Data.(*eval.Expr).Eval(scope)
				if err != nil {
					return err
				}
				if v, err = eval.AutoCall(scope, v); err != nil {
					return err
				}
				more, err := substitute(v, ev.Pos, yield)
				if err != nil {
					return err
				}
				if !more {
					return nil
				}

			case stream.StartElement:
				rendered, err := renderAttrs(ev, scope)
				if err != nil {
					return err
				}
				if !yield(rendered) {
					return nil
				}

			default:
				if !yield(ev) {
					return nil
				}
			}
		}
		return nil
	})
}

// substitute emits the events standing in for an evaluated expression.
// Streams and event slices splice, nil vanishes, markup keeps its safety
// mark, everything else becomes text. An error raised inside a spliced
// stream (a macro body, a select() result) aborts the render.
func substitute(v any, pos stream.Pos, yield func(stream.Event) bool) (bool, error) {
	switch t := v.(type) {
	case nil:
		return true, nil
	case eval.Undefined:
		return true, nil
	case *stream.Stream:
		if err := t.Pipe(yield); err != nil {
			return false, err
		}
		return true, nil
	case []stream.Event:
		for _, ev := range t {
			if !yield(ev) {
				return false, nil
			}
		}
		return true, nil
	case stream.Event:
		return yield(ev(t, pos)), nil
	case stream.Markup:
		return yield(stream.Event{Kind: stream.Text, Data: t, Pos: pos}), nil
	default:
		s := eval.Stringify(v)
		if s == "" {
			return true, nil
		}
		return yield(stream.Event{Kind: stream.Text, Data: s, Pos: pos}), nil
	}
}

func ev(e stream.Event, pos stream.Pos) stream.Event {
	if e.Pos == (stream.Pos{}) {
		e.Pos = pos
	}
	return e
}

// renderAttrs evaluates interpolated attribute values on a start event. An
// attribute whose single substitution evaluates to nil (or Undefined)
// disappears entirely.
func renderAttrs(start stream.Event, scope *eval.Scope) (stream.Event, error) {
	el := start.Element()
	interpolated := false
	for _, attr := range el.Attrs {
		if _, ok := attr.Value.([]stream.Event); ok {
			interpolated = true
			break
		}
	}
	if !interpolated {
		return start, nil
	}

	attrs := make(stream.Attrs, 0, len(el.Attrs))
	for _, attr := range el.Attrs {
		parts, ok := attr.Value.([]stream.Event)
		if !ok {
			attrs = append(attrs, attr)
			continue
		}
		value, keep, err := attrValue(parts, scope)
		if err != nil {
			return stream.Event{}, err
		}
		if keep {
			attrs = append(attrs, stream.Attr{Name: attr.Name, Value: value})
		}
	}
	return stream.Event{
		Kind: stream.StartElement,
		Data: stream.Element{Name: el.Name, Attrs: attrs},
		Pos:  start.Pos,
	}, nil
}

func attrValue(parts []stream.Event, scope *eval.Scope) (string, bool, error) {
	if len(parts) == 1 && parts[0].Kind == stream.ExprEvent {
		v, err := parts[0].Data.(*eval.Expr).Eval(scope)
		if err != nil {
			return "", false, err
		}
		if v == nil || eval.IsUndefined(v) {
			return "", false, nil
		}
		return eval.Stringify(v), true, nil
	}
	var b []byte
	for _, part := range parts {
		switch part.Kind {
		case stream.Text:
			b = append(b, part.Text()...)
		case stream.ExprEvent:
			v, err := part.Data.(*eval.Expr).Eval(scope)
			if err != nil {
				return "", false, err
			}
			b = append(b, eval.Stringify(v)...)
		}
	}
	return string(b), true, nil
}

// applyDirectives runs the first directive, which wraps the result of all
// later ones on the same site.
func (rc *renderContext) applyDirectives(events []stream.Event, dirs []*directive, scope *eval.Scope) *stream.Stream {
	if len(dirs) == 0 {
		return rc.flatten(events, scope)
	}
	d, rest := dirs[0], dirs[1:]

	switch d.kind {
	case dirDef:
		// a def reached through directive application governs nothing
		// downstream; it was consumed by flatten when it had siblings
		return stream.Generate(func(func(stream.Event) bool) error {
			rc.defineMacro(&sub{dirs: dirs, events: events}, scope)
			return nil
		})

	case dirMatch:
		return stream.Generate(func(func(stream.Event) bool) error {
			rc.registerRule(&sub{dirs: dirs, events: events}, scope)
			return nil
		})

	case dirWhen:
		return rc.applyWhen(d, events, rest, scope)

	case dirOtherwise:
		return rc.applyOtherwise(d, events, rest, scope)

	case dirFor:
		return stream.Generate(func(yield func(stream.Event) bool) error {
			v, err := d.expr.Eval(scope)
			if err != nil {
				return err
			}
			items, err := eval.Iterate(v)
			if err != nil {
				return directiveError(d, err)
			}
			for _, item := range items {
				frame, err := bindLoopVars(d, item)
				if err != nil {
					return err
				}
				if err := rc.applyDirectives(events, rest, scope.Push(frame)).Pipe(yield); err != nil {
					return err
				}
			}
			return nil
		})

	case dirIf:
		return stream.Generate(func(yield func(stream.Event) bool) error {
			v, err := d.expr.Eval(scope)
			if err != nil {
				return err
			}
			if !eval.Truthy(v) {
				return nil
			}
			return rc.applyDirectives(events, rest, scope).Pipe(yield)
		})

	case dirChoose:
		return stream.Generate(func(yield func(stream.Event) bool) error {
			state := &chooseState{}
			if d.expr != nil {
				v, err := d.expr.Eval(scope)
				if err != nil {
					return err
				}
				state.value, state.hasValue = v, true
			}
			child := scope.Push(eval.Frame{chooseKey: state})
			return rc.applyDirectives(events, rest, child).Pipe(yield)
		})

	case dirWith:
		return stream.Generate(func(yield func(stream.Event) bool) error {
			frame := eval.Frame{}
			working := scope.Push(frame)
			for _, a := range d.assignments {
				v, err := a.Expr.Eval(working)
				if err != nil {
					return err
				}
				frame[a.Name] = v
			}
			return rc.applyDirectives(events, rest, working).Pipe(yield)
		})

	case dirReplace:
		replacement := []stream.Event{{Kind: stream.ExprEvent, Data: d.expr, Pos: d.pos}}
		return rc.applyDirectives(replacement, rest, scope)

	case dirContent:
		return rc.applyContent(d, events, rest, scope)

	case dirAttrs:
		return rc.applyAttrs(d, events, rest, scope)

	case dirStrip:
		return stream.Generate(func(yield func(stream.Event) bool) error {
			strip := true
			if d.expr != nil {
				v, err := d.expr.Eval(scope)
				if err != nil {
					return err
				}
				strip = eval.Truthy(v)
			}
			if strip && len(events) >= 2 &&
				events[0].Kind == stream.StartElement &&
				events[len(events)-1].Kind == stream.EndElement {
				events = events[1 : len(events)-1]
			}
			return rc.applyDirectives(events, rest, scope).Pipe(yield)
		})
	}

	return stream.Generate(func(func(stream.Event) bool) error {
		return errorf(CodeBadDirective, d.pos, "cannot apply %s directive here", d.kind)
	})
}

func (rc *renderContext) applyWhen(d *directive, events []stream.Event, rest []*directive, scope *eval.Scope) *stream.Stream {
	return stream.Generate(func(yield func(stream.Event) bool) error {
		state, err := chooseStateFor(d, scope)
		if err != nil {
			return err
		}
		if state.matched {
			return nil
		}
		v, err := d.expr.Eval(scope)
		if err != nil {
			return err
		}
		hit := eval.Truthy(v)
		if state.hasValue {
			hit = eval.Equal(v, state.value)
		}
		if !hit {
			return nil
		}
		state.matched = true
		return rc.applyDirectives(events, rest, scope).Pipe(yield)
	})
}

func (rc *renderContext) applyOtherwise(d *directive, events []stream.Event, rest []*directive, scope *eval.Scope) *stream.Stream {
	return stream.Generate(func(yield func(stream.Event) bool) error {
		state, err := chooseStateFor(d, scope)
		if err != nil {
			return err
		}
		if state.matched {
			return nil
		}
		state.matched = true
		return rc.applyDirectives(events, rest, scope).Pipe(yield)
	})
}

func chooseStateFor(d *directive, scope *eval.Scope) (*chooseState, error) {
	v, ok := scope.Lookup(chooseKey)
	if !ok {
		return nil, errorf(CodeBadDirective, d.pos, "%s directive outside of a choose", d.kind)
	}
	return v.(*chooseState), nil
}

func (rc *renderContext) applyContent(d *directive, events []stream.Event, rest []*directive, scope *eval.Scope) *stream.Stream {
	if len(events) < 2 ||
		events[0].Kind != stream.StartElement ||
		events[len(events)-1].Kind != stream.EndElement {
		return stream.Generate(func(func(stream.Event) bool) error {
			return errorf(CodeBadDirective, d.pos, "content directive needs an element")
		})
	}
	replaced := []stream.Event{
		events[0],
		{Kind: stream.ExprEvent, Data: d.expr, Pos: d.pos},
		events[len(events)-1],
	}
	return rc.applyDirectives(replaced, rest, scope)
}

func (rc *renderContext) applyAttrs(d *directive, events []stream.Event, rest []*directive, scope *eval.Scope) *stream.Stream {
	return stream.Generate(func(yield func(stream.Event) bool) error {
		if len(events) == 0 || events[0].Kind != stream.StartElement {
			return errorf(CodeBadDirective, d.pos, "attrs directive needs an element")
		}
		v, err := d.expr.Eval(scope)
		if err != nil {
			return err
		}
		merged, err := mergeAttrs(events[0].Element().Attrs, v, d)
		if err != nil {
			return err
		}
		start := stream.Event{
			Kind: stream.StartElement,
			Data: stream.Element{Name: events[0].Element().Name, Attrs: merged},
			Pos:  events[0].Pos,
		}
		replaced := append([]stream.Event{start}, events[1:]...)
		return rc.applyDirectives(replaced, rest, scope).Pipe(yield)
	})
}

// mergeAttrs folds a mapping into literal attributes: existing names are
// overridden in place, new names append, nil values remove.
func mergeAttrs(attrs stream.Attrs, v any, d *directive) (stream.Attrs, error) {
	if v == nil || eval.IsUndefined(v) {
		return attrs, nil
	}
	entries, err := mappingEntries(v)
	if err != nil {
		return nil, errorf(CodeBadDirective, d.pos, "attrs directive needs a mapping, got %T", v)
	}
	for _, e := range entries {
		name := stream.QName{Local: e.key}
		if e.value == nil || eval.IsUndefined(e.value) {
			attrs = attrs.Remove(name)
			continue
		}
		attrs = attrs.Set(name, eval.Stringify(e.value))
	}
	return attrs, nil
}

type mapEntry struct {
	key   string
	value any
}

// mappingEntries lists a mapping's entries by sorted key, so merge order is
// deterministic.
func mappingEntries(v any) ([]mapEntry, error) {
	var entries []mapEntry
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			entries = append(entries, mapEntry{key: k, value: val})
		}
	case eval.Frame:
		for k, val := range t {
			entries = append(entries, mapEntry{key: k, value: val})
		}
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
			return nil, errorf(CodeBadDirective, stream.Unknown, "not a mapping")
		}
		for _, k := range rv.MapKeys() {
			entries = append(entries, mapEntry{key: k.String(), value: rv.MapIndex(k).Interface()})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	return entries, nil
}

// bindLoopVars builds the per-iteration frame. A single loop name binds the
// whole item; several names unpack it as a sequence of matching length.
func bindLoopVars(d *directive, item any) (eval.Frame, error) {
	if len(d.loopVars) == 1 {
		return eval.Frame{d.loopVars[0]: item}, nil
	}
	parts, err := eval.Iterate(item)
	if err != nil {
		return nil, directiveError(d, err)
	}
	if len(parts) != len(d.loopVars) {
		return nil, errorf(CodeBadDirective, d.pos,
			"cannot unpack %d values into %d loop variables", len(parts), len(d.loopVars))
	}
	frame := make(eval.Frame, len(d.loopVars))
	for i, name := range d.loopVars {
		frame[name] = parts[i]
	}
	return frame, nil
}

func directiveError(d *directive, err error) error {
	if _, ok := err.(*Error); ok {
		return err
	}
	return &Error{Code: CodeBadDirective, Message: err.Error(), Pos: d.pos, Cause: err}
}

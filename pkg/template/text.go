package template

import (
	"strings"

	"github.com/conneroisu/marka/pkg/stream"
)

// NewText compiles a plain-text template. Directive lines start with a #
// keyword (#if, #for, #choose, #when, #otherwise, #with, #def) and run to
// the matching #end; they are consumed together with their line break.
// Every other line is emitted verbatim with expression interpolation. A
// line starting with \# escapes the marker.
//
// Directives that operate on element structure (match, replace, content,
// attrs, strip) have no meaning in text and are rejected.
func NewText(src, name string, opts ...Option) (*Template, error) {
	events, err := compileText(src, name)
	if err != nil {
		return nil, err
	}
	t := &Template{name: name, events: events, maxDepth: DefaultMaxRecursion}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// textFrame is one open directive block during text compilation.
type textFrame struct {
	dir    *directive
	events []stream.Event
}

func compileText(src, name string) ([]stream.Event, error) {
	var stack []textFrame
	var top []stream.Event

	emit := func(evs ...stream.Event) {
		if len(stack) > 0 {
			f := &stack[len(stack)-1]
			f.events = append(f.events, evs...)
			return
		}
		top = append(top, evs...)
	}

	lines := strings.SplitAfter(src, "\n")
	for i, line := range lines {
		if line == "" {
			continue
		}
		pos := stream.Pos{Source: name, Line: i + 1, Col: 1}
		trimmed := strings.TrimLeft(line, " \t")

		if strings.HasPrefix(trimmed, "\\#") {
			text := strings.Replace(line, "\\#", "#", 1)
			evs, err := interpolate(text, pos)
			if err != nil {
				return nil, err
			}
			emit(evs...)
			continue
		}

		keyword, value, ok := directiveLine(trimmed)
		if !ok {
			evs, err := interpolate(line, pos)
			if err != nil {
				return nil, err
			}
			emit(evs...)
			continue
		}

		if keyword == "end" {
			if len(stack) == 0 {
				return nil, errorf(CodeSyntax, pos, "#end without an open directive")
			}
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			emit(stream.Event{
				Kind: stream.SubEvent,
				Data: &sub{dirs: []*directive{f.dir}, events: f.events},
				Pos:  f.dir.pos,
			})
			continue
		}

		switch directiveKinds[keyword] {
		case dirMatch, dirReplace, dirContent, dirAttrs, dirStrip:
			return nil, errorf(CodeBadDirective, pos, "#%s applies to markup only", keyword)
		}
		d, err := parseDirective(keyword, value, pos, nil)
		if err != nil {
			return nil, err
		}
		stack = append(stack, textFrame{dir: d})
	}

	if len(stack) > 0 {
		f := stack[len(stack)-1]
		return nil, errorf(CodeSyntax, f.dir.pos, "#%s missing its #end", f.dir.kind)
	}
	return top, nil
}

// directiveLine splits a "#keyword rest" line. The line break belongs to
// the directive and is dropped with it.
func directiveLine(trimmed string) (keyword, value string, ok bool) {
	if !strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}
	rest := strings.TrimSuffix(trimmed[1:], "\n")
	keyword = rest
	if i := strings.IndexAny(rest, " \t"); i >= 0 {
		keyword, value = rest[:i], strings.TrimSpace(rest[i+1:])
	}
	if keyword == "" {
		return "", "", false
	}
	if keyword != "end" {
		if _, known := directiveKinds[keyword]; !known {
			return "", "", false
		}
	}
	return keyword, value, true
}

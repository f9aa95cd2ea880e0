package path

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/conneroisu/marka/pkg/stream"
)

// expr is a compiled predicate expression node. Evaluation is side-effect
// free except for the positional counters kept by the strategy.
type expr interface {
	eval(ev stream.Event, ns map[string]string, vars Variables) any
}

// Type coercion, mirroring standard path semantics: strings compare by
// exact bytes, numbers by value, booleans derive from non-empty/non-zero.

func asScalar(v any) any {
	if attrs, ok := v.(stream.Attrs); ok && len(attrs) == 1 {
		return attrs[0].Value
	}
	return v
}

func asString(v any) string {
	v = asScalar(v)
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		if t {
			return "true"
		}
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return stream.Stringify(v)
	}
}

func asFloat(v any) float64 {
	v = asScalar(v)
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return math.NaN()
	}
}

func asBool(v any) bool { return truthy(asScalar(v)) }

// Literals and variable references.

type stringLiteral struct{ text string }

func (l stringLiteral) eval(stream.Event, map[string]string, Variables) any { return l.text }

type numberLiteral struct{ number float64 }

func (l numberLiteral) eval(stream.Event, map[string]string, Variables) any { return l.number }

type variableRef struct{ name string }

func (r variableRef) eval(_ stream.Event, _ map[string]string, vars Variables) any {
	if vars == nil {
		return nil
	}
	v, _ := vars.Value(r.name)
	return v
}

// nodeTestExpr adapts a node test (e.g. an attribute lookup in a predicate)
// into an expression.
type nodeTestExpr struct{ test nodeTest }

func (e nodeTestExpr) eval(ev stream.Event, ns map[string]string, vars Variables) any {
	return e.test.eval(ev, ns, vars)
}

// Boolean, equality and relational operators.

type binaryOp struct {
	op    string
	left  expr
	right expr
}

func (b binaryOp) eval(ev stream.Event, ns map[string]string, vars Variables) any {
	switch b.op {
	case "and":
		if !asBool(b.left.eval(ev, ns, vars)) {
			return false
		}
		return asBool(b.right.eval(ev, ns, vars))
	case "or":
		if asBool(b.left.eval(ev, ns, vars)) {
			return true
		}
		return asBool(b.right.eval(ev, ns, vars))
	case "=":
		return equalValues(b.left.eval(ev, ns, vars), b.right.eval(ev, ns, vars))
	case "!=":
		return !equalValues(b.left.eval(ev, ns, vars), b.right.eval(ev, ns, vars))
	case ">":
		return asFloat(b.left.eval(ev, ns, vars)) > asFloat(b.right.eval(ev, ns, vars))
	case ">=":
		return asFloat(b.left.eval(ev, ns, vars)) >= asFloat(b.right.eval(ev, ns, vars))
	case "<":
		return asFloat(b.left.eval(ev, ns, vars)) < asFloat(b.right.eval(ev, ns, vars))
	case "<=":
		return asFloat(b.left.eval(ev, ns, vars)) <= asFloat(b.right.eval(ev, ns, vars))
	default:
		return nil
	}
}

func equalValues(a, b any) bool {
	a, b = asScalar(a), asScalar(b)
	if af, ok := a.(float64); ok {
		return af == asFloat(b)
	}
	if bf, ok := b.(float64); ok {
		return asFloat(a) == bf
	}
	return asString(a) == asString(b)
}

// The fixed function set. Functions requiring global stream knowledge
// (count, position, last, id) are rejected by the parser.

type funcCall struct {
	name string
	args []expr
}

var matchFlagMap = map[byte]string{'s': "s", 'm': "m", 'i': "i", 'x': "x"}

func (f funcCall) eval(ev stream.Event, ns map[string]string, vars Variables) any {
	arg := func(i int) any { return f.args[i].eval(ev, ns, vars) }
	switch f.name {
	case "boolean":
		return asBool(arg(0))
	case "ceiling":
		return math.Ceil(asFloat(arg(0)))
	case "concat":
		var b strings.Builder
		for i := range f.args {
			b.WriteString(asString(arg(i)))
		}
		return b.String()
	case "contains":
		return strings.Contains(asString(arg(0)), asString(arg(1)))
	case "matches":
		pattern := asString(arg(1))
		if len(f.args) > 2 {
			var flags strings.Builder
			for _, c := range []byte(asString(arg(2))) {
				flags.WriteString(matchFlagMap[c])
			}
			if flags.Len() > 0 {
				pattern = "(?" + flags.String() + ")" + pattern
			}
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(asString(arg(0)))
	case "false":
		return false
	case "floor":
		return math.Floor(asFloat(arg(0)))
	case "local-name":
		if ev.Kind == stream.StartElement {
			return ev.Element().Name.Local
		}
		return nil
	case "name":
		if ev.Kind == stream.StartElement {
			return ev.Element().Name.String()
		}
		return nil
	case "namespace-uri":
		if ev.Kind == stream.StartElement {
			return ev.Element().Name.Space
		}
		return nil
	case "not":
		return !asBool(arg(0))
	case "normalize-space":
		return strings.Join(strings.Fields(asString(arg(0))), " ")
	case "number":
		return asFloat(arg(0))
	case "round":
		return math.Round(asFloat(arg(0)))
	case "starts-with":
		return strings.HasPrefix(asString(arg(0)), asString(arg(1)))
	case "string-length":
		return float64(len([]rune(asString(arg(0)))))
	case "substring":
		s := []rune(asString(arg(0)))
		start := int(asFloat(arg(1)))
		if start < 0 {
			start = 0
		}
		if start > len(s) {
			start = len(s)
		}
		end := len(s)
		if len(f.args) > 2 {
			end -= int(asFloat(arg(2)))
			if end < start {
				end = start
			}
		}
		return string(s[start:end])
	case "substring-after":
		s, sub := asString(arg(0)), asString(arg(1))
		if _, after, ok := strings.Cut(s, sub); ok {
			return after
		}
		return ""
	case "substring-before":
		s, sub := asString(arg(0)), asString(arg(1))
		if before, _, ok := strings.Cut(s, sub); ok {
			return before
		}
		return ""
	case "translate":
		s := asString(arg(0))
		from := []rune(asString(arg(1)))
		to := []rune(asString(arg(2)))
		return strings.Map(func(r rune) rune {
			for i, f := range from {
				if f == r {
					if i < len(to) {
						return to[i]
					}
					return -1
				}
			}
			return r
		}, s)
	case "true":
		return true
	default:
		return nil
	}
}

// pathFunctions lists the allowed function names with their arity bounds.
var pathFunctions = map[string][2]int{
	"boolean":          {1, 1},
	"ceiling":          {1, 1},
	"concat":           {2, -1},
	"contains":         {2, 2},
	"matches":          {2, 3},
	"false":            {0, 0},
	"floor":            {1, 1},
	"local-name":       {0, 0},
	"name":             {0, 0},
	"namespace-uri":    {0, 0},
	"not":              {1, 1},
	"normalize-space":  {1, 1},
	"number":           {1, 1},
	"round":            {1, 1},
	"starts-with":      {2, 2},
	"string-length":    {1, 1},
	"substring":        {2, 3},
	"substring-after":  {2, 2},
	"substring-before": {2, 2},
	"translate":        {3, 3},
	"true":             {0, 0},
}

// bannedFunctions need global stream knowledge and are rejected at compile
// time wherever they appear.
var bannedFunctions = map[string]bool{
	"count":    true,
	"position": true,
	"last":     true,
	"id":       true,
}

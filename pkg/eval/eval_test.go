package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/marka/pkg/stream"
)

func evaluate(t *testing.T, src string, data map[string]any, mode Mode) any {
	t.Helper()
	e, err := Compile(src, stream.Unknown)
	require.NoError(t, err, src)
	v, err := e.Eval(NewScope(data, mode))
	require.NoError(t, err, src)
	return v
}

func TestLiterals(t *testing.T) {
	for _, tc := range []struct {
		src  string
		want any
	}{
		{"42", int64(42)},
		{"-3", int64(-3)},
		{"1.5", 1.5},
		{".5", 0.5},
		{"'hello'", "hello"},
		{`"world"`, "world"},
		{"true", true},
		{"false", false},
		{"nil", nil},
		{"[1, 2, 3]", []any{int64(1), int64(2), int64(3)}},
		{"{'a': 1, 'b': 2}", map[string]any{"a": int64(1), "b": int64(2)}},
	} {
		assert.Equal(t, tc.want, evaluate(t, tc.src, nil, Strict), tc.src)
	}
}

func TestArithmetic(t *testing.T) {
	for _, tc := range []struct {
		src  string
		want any
	}{
		{"1 + 2 * 3", int64(7)},
		{"(1 + 2) * 3", int64(9)},
		{"10 - 4 - 3", int64(3)},
		{"10 / 4", 2.5},
		{"10 % 3", int64(1)},
		{"2 * 1.5", 3.0},
		{"'foo' + 'bar'", "foobar"},
		{"'n=' + 3", "n=3"},
	} {
		assert.Equal(t, tc.want, evaluate(t, tc.src, nil, Strict), tc.src)
	}

	_, err := MustCompile("1 / 0").Eval(NewScope(nil, Strict))
	require.Error(t, err)
	assert.ErrorContains(t, err, "division by zero")
}

func TestMarkupConcatKeepsSafety(t *testing.T) {
	data := map[string]any{"safe": stream.Markup("<b>hi</b>"), "plain": "<i>"}
	v := evaluate(t, "safe + plain", data, Strict)
	m, ok := v.(stream.Markup)
	require.True(t, ok)
	assert.Equal(t, stream.Markup("<b>hi</b>&lt;i&gt;"), m)
}

func TestComparisonAndLogic(t *testing.T) {
	data := map[string]any{"n": 5, "s": "abc", "items": []any{1, 2, 3}}
	for _, tc := range []struct {
		src  string
		want any
	}{
		{"n == 5", true},
		{"n != 5", false},
		{"n > 3 and n < 10", true},
		{"n < 3 or s == 'abc'", true},
		{"not (n == 5)", false},
		{"'b' in s", true},
		{"'z' not in s", true},
		{"2 in items", true},
		{"'a' < 'b'", true},
		// and/or yield the deciding operand, not a coerced bool
		{"missing or 'default'", "default"},
		{"s and n", 5},
	} {
		assert.Equal(t, tc.want, evaluate(t, tc.src, data, Lenient), tc.src)
	}
}

type account struct {
	Name    string
	Balance float64
}

func (a account) Display() string { return a.Name + "!" }

func TestMemberAccess(t *testing.T) {
	data := map[string]any{
		"user":  map[string]any{"name": "anne", "roles": []any{"admin", "dev"}},
		"acct":  account{Name: "Bob", Balance: 12.5},
		"items": []any{"first", "second", "third"},
	}

	for _, tc := range []struct {
		src  string
		want any
	}{
		// attribute and item access are interchangeable on mappings
		{"user.name", "anne"},
		{"user['name']", "anne"},
		{"user.roles[0]", "admin"},
		{"user['roles'][1]", "dev"},
		{"acct.Name", "Bob"},
		{"acct.name", "Bob"},
		{"acct.balance", 12.5},
		{"acct.display()", "Bob!"},
		{"items[0]", "first"},
		{"items[-1]", "third"},
		{"items[1 + 1]", "third"},
	} {
		assert.Equal(t, tc.want, evaluate(t, tc.src, data, Strict), tc.src)
	}
}

func TestCalls(t *testing.T) {
	data := map[string]any{
		"upper": func(s string) string {
			out := make([]rune, 0, len(s))
			for _, r := range s {
				if r >= 'a' && r <= 'z' {
					r -= 'a' - 'A'
				}
				out = append(out, r)
			}
			return string(out)
		},
		"name": "anne",
	}
	assert.Equal(t, "ANNE", evaluate(t, "upper(name)", data, Strict))
	assert.Equal(t, 4, evaluate(t, "len(name)", data, Strict))
	assert.Equal(t, "42", evaluate(t, "str(42)", data, Strict))
	assert.Equal(t, true, evaluate(t, "defined('name')", data, Strict))
	assert.Equal(t, false, evaluate(t, "defined('nope')", data, Strict))
	assert.Equal(t, "anne", evaluate(t, "value_of('name', 'x')", data, Strict))
	assert.Equal(t, "x", evaluate(t, "value_of('nope', 'x')", data, Strict))

	_, err := MustCompile("name()").Eval(NewScope(map[string]any{"name": "anne"}, Strict))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotCallable)
}

func TestBuiltinLookup(t *testing.T) {
	// builtins resolve on an empty scope and on the nil scope
	v, ok := NewScope(nil, Strict).Lookup("len")
	require.True(t, ok)
	assert.NotNil(t, v)
	_, ok = (*Scope)(nil).Lookup("str")
	assert.True(t, ok)

	// render data shadows a builtin of the same name
	data := map[string]any{"len": "not a function"}
	assert.Equal(t, "not a function", evaluate(t, "len", data, Strict))
}

func TestStrictUndefinedVariable(t *testing.T) {
	_, err := MustCompile("missing").Eval(NewScope(nil, Strict))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUndefinedVariable)

	_, err = MustCompile("user.name").Eval(NewScope(map[string]any{"user": map[string]any{}}, Strict))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUndefinedAttribute)
}

func TestLenientUndefined(t *testing.T) {
	scope := NewScope(nil, Lenient)

	v, err := MustCompile("missing").Eval(scope)
	require.NoError(t, err)
	require.True(t, IsUndefined(v))

	// the sentinel is falsy, stringifies empty and iterates empty
	assert.False(t, Truthy(v))
	assert.Equal(t, "", Stringify(v))
	items, err := Iterate(v)
	require.NoError(t, err)
	assert.Empty(t, items)

	// but member access and calls on it still fail
	_, err = MustCompile("missing.attr").Eval(scope)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUndefinedVariable)

	_, err = MustCompile("missing()").Eval(scope)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUndefinedVariable)

	// a defined owner with a missing member stays lenient
	v, err = MustCompile("user.nope").Eval(NewScope(map[string]any{"user": map[string]any{}}, Lenient))
	require.NoError(t, err)
	assert.True(t, IsUndefined(v))
}

func TestScopeShadowing(t *testing.T) {
	outer := NewScope(map[string]any{"x": 42, "y": 1}, Strict)
	inner := outer.Push(Frame{"y": 7})

	v, err := MustCompile("x + y").Eval(inner)
	require.NoError(t, err)
	assert.Equal(t, int64(49), v)

	// the outer scope still sees its own binding
	v, err = MustCompile("y").Eval(outer)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestParseAssignments(t *testing.T) {
	assignments, err := ParseAssignments(`y=7; z=x+10; s='a;b=c'`, stream.Unknown)
	require.NoError(t, err)
	require.Len(t, assignments, 3)
	assert.Equal(t, "y", assignments[0].Name)
	assert.Equal(t, "z", assignments[1].Name)
	assert.Equal(t, "s", assignments[2].Name)

	// evaluate left-to-right into one frame, later seeing earlier
	scope := NewScope(map[string]any{"x": 42}, Strict)
	frame := Frame{}
	working := scope
	for _, a := range assignments {
		v, err := a.Expr.Eval(working)
		require.NoError(t, err)
		frame[a.Name] = v
		working = scope.Push(frame)
	}
	assert.Equal(t, int64(7), frame["y"])
	assert.Equal(t, int64(52), frame["z"])
	assert.Equal(t, "a;b=c", frame["s"])

	_, err = ParseAssignments("y==7", stream.Unknown)
	require.Error(t, err)
	_, err = ParseAssignments("", stream.Unknown)
	require.Error(t, err)
}

func TestIterate(t *testing.T) {
	items, err := Iterate([]any{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, items)

	items, err = Iterate(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, items)

	items, err = Iterate(nil)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = Iterate(42)
	require.Error(t, err)
}

func TestAutoCall(t *testing.T) {
	scope := NewScope(nil, Strict)
	v, err := AutoCall(scope, func() string { return "called" })
	require.NoError(t, err)
	assert.Equal(t, "called", v)

	// values needing arguments pass through untouched
	fn := func(int) int { return 0 }
	v, err = AutoCall(scope, fn)
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestCompileErrors(t *testing.T) {
	for _, src := range []string{
		"",
		"1 +",
		"foo(",
		"foo.",
		"(1",
		"[1, 2",
		"{'a': }",
		"'unterminated",
		"a ~ b",
	} {
		_, err := Compile(src, stream.Unknown)
		require.Error(t, err, src)
		assert.ErrorIs(t, err, &Error{Code: CodeSyntax}, src)
	}
}

package eval

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/conneroisu/marka/pkg/stream"
)

// Callable is implemented by values that expressions may call with
// positional arguments, such as template macros.
type Callable interface {
	Call(args []any) (any, error)
}

// Truthy reports whether a value counts as true in a conditional: nil,
// false, Undefined, zero numbers, empty strings and empty collections are
// false, everything else is true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case Undefined:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case stream.Markup:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return rv.Len() > 0
	case reflect.Ptr, reflect.Interface:
		return !rv.IsNil()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	}
	return true
}

// Stringify renders a value for substitution into text. nil and Undefined
// become the empty string; everything else formats the obvious way.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case Undefined:
		return ""
	case string:
		return t
	case stream.Markup:
		return string(t)
	}
	return fmt.Sprint(v)
}

func valueLen(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case Undefined:
		return 0
	case string:
		return utf8.RuneCountInString(t)
	case stream.Markup:
		return utf8.RuneCountInString(string(t))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len()
	}
	return 0
}

// Iterate materializes a loop source. Slices and arrays iterate in order,
// maps iterate by sorted string key, strings iterate runes. nil and
// Undefined iterate empty so lenient templates can loop over absent data.
func Iterate(v any) ([]any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case Undefined:
		return nil, nil
	case []any:
		return t, nil
	case string:
		items := make([]any, 0, len(t))
		for _, r := range t {
			items = append(items, string(r))
		}
		return items, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return items, nil
	case reflect.Map:
		keys := make([]string, 0, rv.Len())
		byKey := make(map[string]any, rv.Len())
		for _, k := range rv.MapKeys() {
			s := Stringify(k.Interface())
			keys = append(keys, s)
			byKey[s] = k.Interface()
		}
		sort.Strings(keys)
		items := make([]any, len(keys))
		for i, k := range keys {
			items[i] = byKey[k]
		}
		return items, nil
	default:
		return nil, errorf(CodeType, "", stream.Unknown, "%T is not iterable", v)
	}
}

// getAttr resolves obj.name. Mapping keys and struct fields are
// interchangeable; an exported Go field or method satisfies a lowercase
// template name. Missing members yield Undefined (lenient) or an error
// (strict).
func getAttr(obj any, name string, mode Mode, expr string, pos stream.Pos) (any, error) {
	switch t := obj.(type) {
	case nil:
		return nil, errorf(CodeUndefinedAttribute, expr, pos, "nil has no member %q", name)
	case Undefined:
		return nil, t.err(expr, pos)
	case map[string]any:
		if v, ok := t[name]; ok {
			return v, nil
		}
		return missing(obj, name, mode, expr, pos)
	case Frame:
		if v, ok := t[name]; ok {
			return v, nil
		}
		return missing(obj, name, mode, expr, pos)
	}

	rv := reflect.ValueOf(obj)
	if m := methodByName(rv, name); m.IsValid() {
		return m.Interface(), nil
	}
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, errorf(CodeUndefinedAttribute, expr, pos, "nil has no member %q", name)
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
			if v.IsValid() {
				return v.Interface(), nil
			}
		}
	case reflect.Struct:
		if f := rv.FieldByName(name); f.IsValid() && f.CanInterface() {
			return f.Interface(), nil
		}
		if f := rv.FieldByName(exportedName(name)); f.IsValid() && f.CanInterface() {
			return f.Interface(), nil
		}
	}
	return missing(obj, name, mode, expr, pos)
}

func missing(obj any, name string, mode Mode, expr string, pos stream.Pos) (any, error) {
	u := Undefined{Name: name, Owner: obj}
	if mode == Lenient {
		return u, nil
	}
	return nil, u.err(expr, pos)
}

func methodByName(rv reflect.Value, name string) reflect.Value {
	if !rv.IsValid() {
		return reflect.Value{}
	}
	if m := rv.MethodByName(exportedName(name)); m.IsValid() {
		return m
	}
	if rv.Kind() != reflect.Ptr && rv.CanAddr() {
		return rv.Addr().MethodByName(exportedName(name))
	}
	return reflect.Value{}
}

func exportedName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

// getItem resolves obj[key]. String keys behave exactly like attribute
// access on mapping-like values; integer keys index slices, arrays and
// strings, counting from the end when negative.
func getItem(obj any, key any, mode Mode, expr string, pos stream.Pos) (any, error) {
	switch t := obj.(type) {
	case nil:
		return nil, errorf(CodeUndefinedAttribute, expr, pos, "nil is not subscriptable")
	case Undefined:
		return nil, t.err(expr, pos)
	}
	if name, ok := key.(string); ok {
		return getAttr(obj, name, mode, expr, pos)
	}

	idx, ok := toInt(key)
	if !ok {
		return nil, errorf(CodeType, expr, pos, "invalid index %v", key)
	}
	if s, ok := obj.(string); ok {
		runes := []rune(s)
		if idx < 0 {
			idx += len(runes)
		}
		if idx < 0 || idx >= len(runes) {
			return missing(obj, fmt.Sprint(key), mode, expr, pos)
		}
		return string(runes[idx]), nil
	}
	rv := reflect.ValueOf(obj)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if idx < 0 {
			idx += rv.Len()
		}
		if idx < 0 || idx >= rv.Len() {
			return missing(obj, fmt.Sprint(key), mode, expr, pos)
		}
		return rv.Index(idx).Interface(), nil
	case reflect.Map:
		kv := reflect.ValueOf(key)
		if kv.Type().ConvertibleTo(rv.Type().Key()) {
			if v := rv.MapIndex(kv.Convert(rv.Type().Key())); v.IsValid() {
				return v.Interface(), nil
			}
		}
		return missing(obj, fmt.Sprint(key), mode, expr, pos)
	}
	return nil, errorf(CodeType, expr, pos, "%T is not subscriptable", obj)
}

// callValue invokes a callable with already-evaluated arguments.
func callValue(s *Scope, callee any, args []any, expr string, pos stream.Pos) (any, error) {
	switch t := callee.(type) {
	case nil:
		return nil, errorf(CodeNotCallable, expr, pos, "nil is not callable")
	case Undefined:
		return nil, t.err(expr, pos)
	case scopeFunc:
		v, err := t(s, args)
		if e, ok := err.(*Error); ok && e != nil && e.Expr == "" {
			e.Expr, e.Pos = expr, pos
		}
		return v, err
	case Callable:
		return t.Call(args)
	}

	fn := reflect.ValueOf(callee)
	if fn.Kind() != reflect.Func {
		return nil, errorf(CodeNotCallable, expr, pos, "%T is not callable", callee)
	}
	ft := fn.Type()
	fixed := ft.NumIn()
	if ft.IsVariadic() {
		fixed--
		if len(args) < fixed {
			return nil, errorf(CodeType, expr, pos, "call expects at least %d arguments, got %d", fixed, len(args))
		}
	} else if len(args) != fixed {
		return nil, errorf(CodeType, expr, pos, "call expects %d arguments, got %d", fixed, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		var want reflect.Type
		if i < fixed {
			want = ft.In(i)
		} else {
			want = ft.In(ft.NumIn() - 1).Elem()
		}
		av, err := convertArg(arg, want)
		if err != nil {
			return nil, errorf(CodeType, expr, pos, "argument %d: %v", i+1, err)
		}
		in[i] = av
	}

	out := fn.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if err, ok := out[0].Interface().(error); ok {
			return nil, err
		}
		return out[0].Interface(), nil
	default:
		if err, ok := out[len(out)-1].Interface().(error); ok && err != nil {
			return nil, err
		}
		return out[0].Interface(), nil
	}
}

func convertArg(arg any, want reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(want), nil
	}
	av := reflect.ValueOf(arg)
	if av.Type().AssignableTo(want) {
		return av, nil
	}
	if av.Type().ConvertibleTo(want) {
		switch want.Kind() {
		case reflect.String:
			// avoid int-to-string rune conversion surprises
			if av.Kind() != reflect.String {
				return reflect.ValueOf(Stringify(arg)), nil
			}
		}
		return av.Convert(want), nil
	}
	if want.Kind() == reflect.String {
		return reflect.ValueOf(Stringify(arg)), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", arg, want)
}

// AutoCall invokes a value that stands alone in a substitution when it is a
// zero-argument callable; anything else passes through. Bare macro
// references render this way.
func AutoCall(s *Scope, v any) (any, error) {
	switch t := v.(type) {
	case scopeFunc, nil, Undefined:
		return v, nil
	case Callable:
		if n, ok := v.(interface{ Arity() int }); ok && n.Arity() == 0 {
			return t.Call(nil)
		}
		return v, nil
	}
	fn := reflect.ValueOf(v)
	if fn.Kind() == reflect.Func && fn.Type().NumIn() == 0 {
		return callValue(s, v, nil, "", stream.Unknown)
	}
	return v, nil
}

// toInt converts integer-like values for indexing.
func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t == float64(int(t)) {
			return int(t), true
		}
	}
	return 0, false
}

// toFloat converts numeric values for arithmetic and comparison.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

func isNumber(v any) bool {
	_, ok := toFloat(v)
	return ok
}

func bothInt(a, b any) (int64, int64, bool) {
	ai, aok := toInt64(a)
	bi, bok := toInt64(b)
	return ai, bi, aok && bok
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	}
	return 0, false
}

// contains implements the "in" operator: substring for strings, membership
// for slices and arrays, key presence for maps.
func contains(item, collection any, expr string, pos stream.Pos) (bool, error) {
	switch t := collection.(type) {
	case nil, Undefined:
		return false, nil
	case string:
		return strings.Contains(t, Stringify(item)), nil
	case stream.Markup:
		return strings.Contains(string(t), Stringify(item)), nil
	case map[string]any:
		_, ok := t[Stringify(item)]
		return ok, nil
	}
	rv := reflect.ValueOf(collection)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if equalValues(item, rv.Index(i).Interface()) {
				return true, nil
			}
		}
		return false, nil
	case reflect.Map:
		kv := reflect.ValueOf(item)
		if kv.IsValid() && kv.Type().ConvertibleTo(rv.Type().Key()) {
			return rv.MapIndex(kv.Convert(rv.Type().Key())).IsValid(), nil
		}
		return false, nil
	}
	return false, errorf(CodeType, expr, pos, "%T does not support membership tests", collection)
}

// Equal reports whether two values compare equal under the expression
// language's == operator.
func Equal(a, b any) bool {
	return equalValues(a, b)
}

// equalValues compares across numeric types by value, otherwise by
// reflect.DeepEqual.
func equalValues(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	if as, ok := stringValue(a); ok {
		if bs, ok := stringValue(b); ok {
			return as == bs
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func stringValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case stream.Markup:
		return string(t), true
	}
	return "", false
}

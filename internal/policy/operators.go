package policy

import (
	"encoding/json"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// leafFunc decides one condition. present is false when the snapshot had no
// usable value for the field; actual is nil then.
type leafFunc func(actual any, present bool, expected any) bool

// leafOps is the single dispatch table for leaf operators. Validate rejects
// any operator missing here, so evaluation never meets an unknown one.
var leafOps = map[Operator]leafFunc{
	Equals:       whenPresent(equalsOp),
	NotEquals:    whenPresent(func(a, e any) bool { return !equalsOp(a, e) }),
	Contains:     whenPresent(containsOp),
	NotContains:  whenPresent(notContainsOp),
	ContainsAny:  whenPresent(containsAnyOp),
	ContainsAll:  whenPresent(containsAllOp),
	RegexMatch:   whenPresent(regexOp),
	GreaterThan:  whenPresent(compareOp(func(c int) bool { return c > 0 })),
	LessThan:     whenPresent(compareOp(func(c int) bool { return c < 0 })),
	GreaterEqual: whenPresent(compareOp(func(c int) bool { return c >= 0 })),
	LessEqual:    whenPresent(compareOp(func(c int) bool { return c <= 0 })),
	In:           whenPresent(inOp),
	NotIn:        whenPresent(func(a, e any) bool { return !inOp(a, e) }),
	Exists:       func(_ any, present bool, _ any) bool { return present },
	NotExists:    func(_ any, present bool, _ any) bool { return !present },
}

// Known reports whether op is a supported leaf operator.
func (op Operator) Known() bool {
	_, ok := leafOps[op]
	return ok
}

// NeedsValue reports whether the operator compares against a value.
func (op Operator) NeedsValue() bool {
	return op != Exists && op != NotExists
}

// whenPresent makes an absent field evaluate to false for every operator
// other than EXISTS/NOT_EXISTS.
func whenPresent(fn func(actual, expected any) bool) leafFunc {
	return func(actual any, present bool, expected any) bool {
		if !present {
			return false
		}
		return fn(actual, expected)
	}
}

func equalsOp(actual, expected any) bool {
	return valuesEqual(actual, expected)
}

func containsOp(actual, expected any) bool {
	if s, ok := actual.(string); ok {
		sub, ok := scalarString(expected)
		return ok && strings.Contains(s, sub)
	}
	if list, ok := asList(actual); ok {
		for _, item := range list {
			if valuesEqual(item, expected) {
				return true
			}
		}
	}
	return false
}

// notContainsOp is only decidable for string and list fields.
func notContainsOp(actual, expected any) bool {
	if _, ok := actual.(string); ok {
		return !containsOp(actual, expected)
	}
	if _, ok := asList(actual); ok {
		return !containsOp(actual, expected)
	}
	return false
}

func containsAnyOp(actual, expected any) bool {
	have := listOf(actual)
	for _, want := range listOf(expected) {
		for _, h := range have {
			if valuesEqual(h, want) {
				return true
			}
		}
	}
	return false
}

func containsAllOp(actual, expected any) bool {
	have := listOf(actual)
	for _, want := range listOf(expected) {
		found := false
		for _, h := range have {
			if valuesEqual(h, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func regexOp(actual, expected any) bool {
	pattern, ok := expected.(string)
	if !ok {
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	for _, item := range listOf(actual) {
		if s, ok := scalarString(item); ok && re.MatchString(s) {
			return true
		}
	}
	return false
}

func compareOp(accept func(int) bool) func(actual, expected any) bool {
	return func(actual, expected any) bool {
		a, ok := numeric(actual)
		if !ok {
			return false
		}
		e, ok := numeric(expected)
		if !ok {
			return false
		}
		switch {
		case a < e:
			return accept(-1)
		case a > e:
			return accept(1)
		default:
			return accept(0)
		}
	}
}

// inOp: a scalar field must be one of the listed values; a list field
// matches when any of its elements is listed.
func inOp(actual, expected any) bool {
	allowed := listOf(expected)
	for _, item := range listOf(actual) {
		for _, a := range allowed {
			if valuesEqual(item, a) {
				return true
			}
		}
	}
	return false
}

// valuesEqual is exact equality, except that numbers of different Go types
// compare by value (JSON decodes 5 as float64, YAML as int).
func valuesEqual(a, b any) bool {
	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && x == y
	}
	if la, ok := asList(a); ok {
		lb, ok := asList(b)
		if !ok || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !valuesEqual(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// number accepts Go numeric kinds only. NaN is never a number here: it
// would compare neither below nor above anything.
func number(v any) (float64, bool) {
	f, ok := rawNumber(v)
	return f, ok && !math.IsNaN(f)
}

func rawNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case nil, string, bool:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// numeric also accepts numeric strings; used by the ordering operators.
func numeric(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil && !math.IsNaN(f)
	}
	return number(v)
}

func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	}
	if f, ok := number(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out, true
	case string, nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// listOf treats a scalar as a one-element list.
func listOf(v any) []any {
	if v == nil {
		return nil
	}
	if l, ok := asList(v); ok {
		return l
	}
	return []any{v}
}

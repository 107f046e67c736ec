package filter

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"
)

// Match evaluates t against doc. Adapters without a native query language
// use it directly; the SQL adapter uses it for whatever it cannot push down.
//
// Semantics follow document stores: a path that fans out over an array
// matches when any reached value matches; an absent field equals null, so
// it satisfies "equalTo null" and "notIn" and never satisfies "in" unless
// the list contains null. Ref nodes never match: they must be resolved by
// the controller first.
func Match(t Tree, doc map[string]any) bool {
	switch n := t.(type) {
	case nil:
		return true
	case And:
		for _, c := range n {
			if !Match(c, doc) {
				return false
			}
		}
		return true
	case Or:
		for _, c := range n {
			if Match(c, doc) {
				return true
			}
		}
		return false
	case Leaf:
		return matchLeaf(n, doc)
	case ElemMatch:
		for _, v := range Lookup(doc, n.Field) {
			for _, e := range List(v) {
				if m, ok := asMap(e); ok && Match(n.Where, m) {
					return true
				}
			}
		}
		return false
	}
	return false
}

func matchLeaf(l Leaf, doc map[string]any) bool {
	raw := Lookup(doc, l.Field)
	switch l.Op {
	case OpEqualTo:
		return equalAny(raw, l.Value)
	case OpNotEqualTo:
		return !equalAny(raw, l.Value)
	case OpIn:
		return inAny(raw, List(l.Value))
	case OpNotIn:
		return !inAny(raw, List(l.Value))
	case OpGreaterThan:
		return compareAny(raw, l.Value, func(c int) bool { return c > 0 })
	case OpGreaterThanOrEqualTo:
		return compareAny(raw, l.Value, func(c int) bool { return c >= 0 })
	case OpLessThan:
		return compareAny(raw, l.Value, func(c int) bool { return c < 0 })
	case OpLessThanOrEqualTo:
		return compareAny(raw, l.Value, func(c int) bool { return c <= 0 })
	case OpContains:
		return containsAny(raw, l.Value)
	case OpNotContains:
		return !containsAny(raw, l.Value)
	case OpExists:
		want, _ := l.Value.(bool)
		return present(raw) == want
	}
	return false
}

// Lookup returns the raw values reached by a dotted path. Intermediate
// arrays of objects fan out; the terminal value is returned as stored,
// arrays included. Missing paths yield no values.
func Lookup(doc map[string]any, path string) []any {
	cur := []any{doc}
	for _, seg := range strings.Split(path, ".") {
		var next []any
		for _, c := range cur {
			for _, item := range fanOut(c) {
				m, ok := asMap(item)
				if !ok {
					continue
				}
				if v, ok := m[seg]; ok {
					next = append(next, v)
				}
			}
		}
		if len(next) == 0 {
			return nil
		}
		cur = next
	}
	return cur
}

func fanOut(v any) []any {
	if _, ok := asMap(v); ok {
		return []any{v}
	}
	if isList(v) {
		return List(v)
	}
	return nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		out := make(map[string]any, rv.Len())
		for _, k := range rv.MapKeys() {
			out[k.String()] = rv.MapIndex(k).Interface()
		}
		return out, true
	}
	return nil, false
}

// flatten expands terminal arrays into their elements.
func flatten(raw []any) []any {
	var out []any
	for _, v := range raw {
		if isList(v) {
			out = append(out, List(v)...)
			continue
		}
		out = append(out, v)
	}
	return out
}

func present(raw []any) bool {
	for _, v := range raw {
		if v != nil {
			return true
		}
	}
	return false
}

func equalAny(raw []any, want any) bool {
	vals := flatten(raw)
	if want == nil {
		if len(vals) == 0 {
			return true
		}
		for _, v := range vals {
			if v == nil {
				return true
			}
		}
		return false
	}
	for _, v := range vals {
		if Equal(v, want) {
			return true
		}
	}
	return false
}

func inAny(raw []any, list []any) bool {
	for _, want := range list {
		if equalAny(raw, want) {
			return true
		}
	}
	return false
}

func compareAny(raw []any, want any, ok func(int) bool) bool {
	for _, v := range flatten(raw) {
		if c, comparable := Compare(v, want); comparable && ok(c) {
			return true
		}
	}
	return false
}

func containsAny(raw []any, want any) bool {
	for _, v := range raw {
		if isList(v) {
			for _, e := range List(v) {
				if Equal(e, want) {
					return true
				}
			}
			continue
		}
		s, ok := v.(string)
		sub, ok2 := want.(string)
		if ok && ok2 && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Equal reports whether two stored values are equal. Numbers compare by
// value regardless of their Go type, and times by instant.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ta, ok := toTime(a); ok {
		tb, ok := toTime(b)
		return ok && ta.Equal(tb)
	}
	switch a := a.(type) {
	case string:
		b, ok := b.(string)
		return ok && a == b
	case bool:
		b, ok := b.(bool)
		return ok && a == b
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two values of the same family (numbers, strings, times,
// booleans). The second result is false when they cannot be ordered.
func Compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	if ta, ok := toTime(a); ok {
		tb, ok := toTime(b)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	switch a := a.(type) {
	case string:
		b, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(a, b), true
	case bool:
		b, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case a == b:
			return 0, true
		case !a:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case bool, string, nil:
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

func toTime(v any) (time.Time, bool) {
	switch v := v.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	}
	return time.Time{}, false
}

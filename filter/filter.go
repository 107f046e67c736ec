// Package filter defines the abstract predicate tree every read and write is
// scoped by. The controller builds trees, the privacy package layers ACL
// clauses onto them, and storage adapters evaluate or translate them.
//
// A nil Tree matches every object.
package filter

import (
	"fmt"
	"reflect"
)

// Op is a leaf comparison operator.
type Op string

// Leaf operators.
const (
	OpEqualTo              Op = "equalTo"
	OpNotEqualTo           Op = "notEqualTo"
	OpGreaterThan          Op = "greaterThan"
	OpGreaterThanOrEqualTo Op = "greaterThanOrEqualTo"
	OpLessThan             Op = "lessThan"
	OpLessThanOrEqualTo    Op = "lessThanOrEqualTo"
	OpIn                   Op = "in"
	OpNotIn                Op = "notIn"
	OpContains             Op = "contains"
	OpNotContains          Op = "notContains"
	OpExists               Op = "exists"
)

var ops = map[Op]struct{}{
	OpEqualTo: {}, OpNotEqualTo: {}, OpGreaterThan: {}, OpGreaterThanOrEqualTo: {},
	OpLessThan: {}, OpLessThanOrEqualTo: {}, OpIn: {}, OpNotIn: {},
	OpContains: {}, OpNotContains: {}, OpExists: {},
}

// Valid reports whether op is a known operator.
func (op Op) Valid() bool {
	_, ok := ops[op]
	return ok
}

// Tree is a node of a filter: Leaf, And, Or, Ref or ElemMatch.
type Tree interface {
	tree()
}

type (
	// Leaf compares the value at a dotted field path. Paths traverse nested
	// objects and fan out over arrays of objects.
	Leaf struct {
		Field string
		Op    Op
		Value any
	}

	// And matches when every child matches. An empty And matches everything.
	And []Tree

	// Or matches when at least one child matches. An empty Or matches nothing.
	Or []Tree

	// Ref filters a pointer or relation field by a predicate on the target
	// class. The controller rewrites it into an "in" leaf over the matching
	// target ids before the tree reaches a storage adapter.
	Ref struct {
		Field string
		Where Tree
	}

	// ElemMatch matches when a single element of the array at Field
	// satisfies Where on its own. Paths inside Where are element-relative.
	ElemMatch struct {
		Field string
		Where Tree
	}
)

func (Leaf) tree()      {}
func (And) tree()       {}
func (Or) tree()        {}
func (Ref) tree()       {}
func (ElemMatch) tree() {}

// Eq returns field equalTo v.
func Eq(field string, v any) Leaf { return Leaf{Field: field, Op: OpEqualTo, Value: v} }

// NEQ returns field notEqualTo v.
func NEQ(field string, v any) Leaf { return Leaf{Field: field, Op: OpNotEqualTo, Value: v} }

// GT returns field greaterThan v.
func GT(field string, v any) Leaf { return Leaf{Field: field, Op: OpGreaterThan, Value: v} }

// GTE returns field greaterThanOrEqualTo v.
func GTE(field string, v any) Leaf { return Leaf{Field: field, Op: OpGreaterThanOrEqualTo, Value: v} }

// LT returns field lessThan v.
func LT(field string, v any) Leaf { return Leaf{Field: field, Op: OpLessThan, Value: v} }

// LTE returns field lessThanOrEqualTo v.
func LTE(field string, v any) Leaf { return Leaf{Field: field, Op: OpLessThanOrEqualTo, Value: v} }

// In returns field in vs.
func In(field string, vs ...any) Leaf { return Leaf{Field: field, Op: OpIn, Value: vs} }

// NotIn returns field notIn vs.
func NotIn(field string, vs ...any) Leaf { return Leaf{Field: field, Op: OpNotIn, Value: vs} }

// InStrings returns field in ids.
func InStrings(field string, ids []string) Leaf {
	return Leaf{Field: field, Op: OpIn, Value: toAnySlice(ids)}
}

// Contains returns field contains v.
func Contains(field string, v any) Leaf { return Leaf{Field: field, Op: OpContains, Value: v} }

// NotContains returns field notContains v.
func NotContains(field string, v any) Leaf { return Leaf{Field: field, Op: OpNotContains, Value: v} }

// Exists returns field exists b (true: present and non-null).
func Exists(field string, b bool) Leaf { return Leaf{Field: field, Op: OpExists, Value: b} }

// IDEq returns a filter on the object id.
func IDEq(id string) Leaf { return Eq("id", id) }

// IDIn returns a filter on a set of object ids.
func IDIn(ids []string) Leaf { return InStrings("id", ids) }

// AndOf joins the non-nil trees with And. It returns nil when nothing is
// left and the tree itself when only one is.
func AndOf(trees ...Tree) Tree {
	var out And
	for _, t := range trees {
		if isNil(t) {
			continue
		}
		out = append(out, t)
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

// OrOf joins the non-nil trees with Or.
func OrOf(trees ...Tree) Tree {
	var out Or
	for _, t := range trees {
		if isNil(t) {
			continue
		}
		out = append(out, t)
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func isNil(t Tree) bool {
	if t == nil {
		return true
	}
	switch t := t.(type) {
	case And:
		return t == nil
	case Or:
		return t == nil
	}
	return false
}

// Transform rewrites t bottom-up: the children of And and Or nodes are
// transformed first, then fn is applied to the node itself. The Where of Ref
// and ElemMatch nodes is left to fn, since it is evaluated against another
// class or an array element.
func Transform(t Tree, fn func(Tree) (Tree, error)) (Tree, error) {
	switch n := t.(type) {
	case nil:
		return nil, nil
	case And:
		out := make(And, 0, len(n))
		for _, c := range n {
			tc, err := Transform(c, fn)
			if err != nil {
				return nil, err
			}
			out = append(out, tc)
		}
		return fn(out)
	case Or:
		out := make(Or, 0, len(n))
		for _, c := range n {
			tc, err := Transform(c, fn)
			if err != nil {
				return nil, err
			}
			out = append(out, tc)
		}
		return fn(out)
	default:
		return fn(n)
	}
}

// Walk calls fn for every node of t in depth-first order, descending into
// And, Or, Ref and ElemMatch children. It stops when fn returns false.
func Walk(t Tree, fn func(Tree) bool) bool {
	if t == nil {
		return true
	}
	if !fn(t) {
		return false
	}
	switch n := t.(type) {
	case And:
		for _, c := range n {
			if !Walk(c, fn) {
				return false
			}
		}
	case Or:
		for _, c := range n {
			if !Walk(c, fn) {
				return false
			}
		}
	case Ref:
		return Walk(n.Where, fn)
	case ElemMatch:
		return Walk(n.Where, fn)
	}
	return true
}

// Validate checks that every leaf carries a known operator and that list
// operators carry lists.
func Validate(t Tree) error {
	var err error
	Walk(t, func(n Tree) bool {
		switch n := n.(type) {
		case Leaf:
			if n.Field == "" {
				err = fmt.Errorf("filter: leaf without field")
				return false
			}
			if !n.Op.Valid() {
				err = fmt.Errorf("filter: unknown operator %q on %q", n.Op, n.Field)
				return false
			}
			if (n.Op == OpIn || n.Op == OpNotIn) && !isList(n.Value) {
				err = fmt.Errorf("filter: %s on %q expects a list, got %T", n.Op, n.Field, n.Value)
				return false
			}
		case Ref:
			if n.Field == "" {
				err = fmt.Errorf("filter: reference without field")
				return false
			}
		case ElemMatch:
			if n.Field == "" {
				err = fmt.Errorf("filter: element match without field")
				return false
			}
		}
		return true
	})
	return err
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func toAnySlice[T any](vs []T) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

// List converts a list value (any slice type) to []any. Non-list values
// yield a single-element list.
func List(v any) []any {
	switch v := v.(type) {
	case nil:
		return nil
	case []any:
		return v
	case []string:
		return toAnySlice(v)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

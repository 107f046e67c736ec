package storage

import (
	"errors"
	"slices"
	"sort"

	"github.com/syssam/veloxdb"
	"github.com/syssam/veloxdb/filter"
)

// Query is a filtered, ordered and paginated read evaluated in process.
type Query struct {
	Where  filter.Tree
	Order  []veloxdb.Order
	Offset int
	First  int // 0 means no limit
}

// Apply returns the documents of docs matching q, in q's order. Documents
// comparing equal keep their input order.
func (q Query) Apply(docs []veloxdb.Object) []veloxdb.Object {
	out := make([]veloxdb.Object, 0, len(docs))
	for _, d := range docs {
		if filter.Match(q.Where, d) {
			out = append(out, d)
		}
	}
	Sort(out, q.Order)
	return Page(out, q.Offset, q.First)
}

// Page slices objs by offset and limit. A non-positive first means no limit.
func Page(objs []veloxdb.Object, offset, first int) []veloxdb.Object {
	if offset > 0 {
		if offset >= len(objs) {
			return objs[:0]
		}
		objs = objs[offset:]
	}
	if first > 0 && first < len(objs) {
		objs = objs[:first]
	}
	return objs
}

// Sort orders objs in place. Absent values sort before present ones, and
// values that cannot be compared keep their relative order.
func Sort(objs []veloxdb.Object, order []veloxdb.Order) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(objs, func(i, j int) bool {
		for _, o := range order {
			c := compareField(objs[i], objs[j], o.Field)
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareField(a, b veloxdb.Object, field string) int {
	va, vb := first(filter.Lookup(a, field)), first(filter.Lookup(b, field))
	switch {
	case va == nil && vb == nil:
		return 0
	case va == nil:
		return -1
	case vb == nil:
		return 1
	}
	c, _ := filter.Compare(va, vb)
	return c
}

func first(vs []any) any {
	if len(vs) == 0 {
		return nil
	}
	return vs[0]
}

// Patch returns a copy of doc with data applied. Nil values remove the
// field; the id is never changed.
func Patch(doc, data veloxdb.Object) veloxdb.Object {
	out := doc.Clone()
	if out == nil {
		out = make(veloxdb.Object, len(data))
	}
	for k, v := range data.Clone() {
		switch {
		case k == veloxdb.FieldID:
		case v == nil:
			delete(out, k)
		default:
			out[k] = v
		}
	}
	return out
}

// ProjectAll projects every object onto fields.
func ProjectAll(objs []veloxdb.Object, fields []string) []veloxdb.Object {
	out := make([]veloxdb.Object, len(objs))
	for i, o := range objs {
		out[i] = o.Project(fields)
	}
	return out
}

// ByID narrows where to the object with the given id.
func ByID(id string, where filter.Tree) filter.Tree {
	return filter.AndOf(filter.IDEq(id), where)
}

// IDConstraint returns the ids a document must have to match t, when t
// restricts the id at its top level through equalTo or in. Adapters use it
// to avoid full scans. The second result is false when t does not constrain
// the id.
func IDConstraint(t filter.Tree) ([]string, bool) {
	switch n := t.(type) {
	case filter.Leaf:
		if n.Field != veloxdb.FieldID {
			return nil, false
		}
		switch n.Op {
		case filter.OpEqualTo:
			id, ok := n.Value.(string)
			if !ok {
				return nil, false
			}
			return []string{id}, true
		case filter.OpIn:
			var ids []string
			for _, v := range filter.List(n.Value) {
				id, ok := v.(string)
				if !ok {
					return nil, false
				}
				ids = append(ids, id)
			}
			return ids, true
		}
	case filter.And:
		var (
			ids   []string
			found bool
		)
		for _, c := range n {
			cids, ok := IDConstraint(c)
			if !ok {
				continue
			}
			if !found {
				ids, found = cids, true
				continue
			}
			ids = slices.DeleteFunc(ids, func(id string) bool { return !slices.Contains(cids, id) })
		}
		return ids, found
	}
	return nil, false
}

// ValidateID reports an id that is not usable with the adapter.
func ValidateID(class, id string) error {
	if id == "" {
		return veloxdb.NewSchemaError(class, veloxdb.FieldID, "empty object id")
	}
	return nil
}

// Dedup removes duplicate ids keeping the first occurrence.
func Dedup(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ErrClosed is returned by adapters used after Close.
var ErrClosed = errors.New("storage: adapter is closed")

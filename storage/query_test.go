package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/veloxdb"
	"github.com/syssam/veloxdb/filter"
)

func TestQueryApply(t *testing.T) {
	t.Parallel()

	docs := []veloxdb.Object{
		{"id": "1", "name": "carol", "age": 30},
		{"id": "2", "name": "ada"},
		{"id": "3", "name": "bob", "age": 20},
		{"id": "4", "name": "dave", "age": 20},
	}
	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{"all in input order", Query{}, []string{"1", "2", "3", "4"}},
		{"filter", Query{Where: filter.Exists("age", true)}, []string{"1", "3", "4"}},
		{"order asc with absent first", Query{Order: []veloxdb.Order{veloxdb.Asc("age")}}, []string{"2", "3", "4", "1"}},
		{"order desc then name", Query{Order: []veloxdb.Order{veloxdb.Desc("age"), veloxdb.Desc("name")}}, []string{"1", "4", "3", "2"}},
		{"offset", Query{Offset: 3}, []string{"4"}},
		{"offset past end", Query{Offset: 9}, []string{}},
		{"first", Query{First: 2}, []string{"1", "2"}},
		{"offset and first", Query{Offset: 1, First: 2}, []string{"2", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := append([]veloxdb.Object(nil), docs...)
			assert.Equal(t, tt.want, veloxdb.IDs(tt.q.Apply(in)))
		})
	}
}

func TestPatch(t *testing.T) {
	t.Parallel()

	doc := veloxdb.Object{"id": "1", "name": "ada", "age": 36}
	out := Patch(doc, veloxdb.Object{"id": "2", "age": nil, "tags": []any{"x"}})
	assert.Equal(t, veloxdb.Object{"id": "1", "name": "ada", "tags": []any{"x"}}, out)
	assert.Equal(t, 36, doc["age"], "input is not modified")
	assert.Equal(t, veloxdb.Object{"a": 1}, Patch(nil, veloxdb.Object{"a": 1}))
}

func TestIDConstraint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		where filter.Tree
		ids   []string
		ok    bool
	}{
		{"nil", nil, nil, false},
		{"other field", filter.Eq("name", "x"), nil, false},
		{"eq", filter.IDEq("a"), []string{"a"}, true},
		{"in", filter.IDIn([]string{"a", "b"}), []string{"a", "b"}, true},
		{"non string", filter.Eq("id", 1), nil, false},
		{"and", ByID("a", filter.Eq("name", "x")), []string{"a"}, true},
		{"and intersect", filter.And{filter.IDIn([]string{"a", "b"}), filter.IDIn([]string{"b", "c"})}, []string{"b"}, true},
		{"or", filter.Or{filter.IDEq("a"), filter.IDEq("b")}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ids, ok := IDConstraint(tt.where)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestDedup(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"a", "b"}, Dedup([]string{"a", "b", "a"}))
	assert.Empty(t, Dedup(nil))
}

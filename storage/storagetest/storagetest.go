// Package storagetest holds the behaviour every storage.Adapter shares,
// written once and run against each adapter from its own tests.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/veloxdb"
	"github.com/syssam/veloxdb/filter"
	"github.com/syssam/veloxdb/schema"
	"github.com/syssam/veloxdb/storage"
)

// Schema is the schema the suite creates its classes from.
var Schema = schema.MustNew(
	schema.NewClass("Item",
		schema.String("name"),
		schema.Int("age"),
		schema.Float("score"),
		schema.Date("born"),
		schema.Array("tags"),
		schema.Pointer("owner", "Item"),
		schema.Relation("friends", "Item"),
	),
	schema.NewClass("Note", schema.String("text")),
)

// Opener returns a fresh, unconnected adapter for one test.
type Opener func(t *testing.T) storage.Adapter

// Run runs the suite against the adapters returned by open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(*testing.T, storage.Adapter)
	}{
		{"CreateGet", testCreateGet},
		{"GetObjects", testGetObjects},
		{"Count", testCount},
		{"Update", testUpdate},
		{"UpdateObjects", testUpdateObjects},
		{"Delete", testDelete},
		{"DeleteObjects", testDeleteObjects},
		{"CreateObjects", testCreateObjects},
		{"ClearDatabase", testClearDatabase},
		{"ACLSemantics", testACLSemantics},
		{"Values", testValues},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, Connect(t, open))
		})
	}
}

// Connect opens an adapter, connects it and creates the suite classes.
func Connect(t *testing.T, open Opener) storage.Adapter {
	t.Helper()
	ctx := context.Background()
	a := open(t)
	require.NoError(t, a.Connect(ctx))
	t.Cleanup(func() { _ = a.Close() })
	for _, c := range Schema.Classes() {
		require.NoError(t, a.CreateClassIfNotExist(ctx, c))
		// Creating twice is a no-op.
		require.NoError(t, a.CreateClassIfNotExist(ctx, c))
	}
	return a
}

func create(t *testing.T, a storage.Adapter, data veloxdb.Object) string {
	t.Helper()
	obj, err := a.CreateObject(context.Background(), storage.CreateObjectParams{ClassName: "Item", Data: data})
	require.NoError(t, err)
	require.NotEmpty(t, obj.ID())
	return obj.ID()
}

func names(objs []veloxdb.Object) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i], _ = o["name"].(string)
	}
	return out
}

func testCreateGet(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	obj, err := a.CreateObject(ctx, storage.CreateObjectParams{
		ClassName: "Item",
		Data:      veloxdb.Object{"name": "ada", "age": 36},
		Fields:    []string{"name"},
	})
	require.NoError(t, err)
	id := obj.ID()
	require.NotEmpty(t, id)
	assert.Equal(t, veloxdb.Object{"id": id, "name": "ada"}, obj)

	got, err := a.GetObject(ctx, storage.GetObjectParams{ClassName: "Item", ID: id})
	require.NoError(t, err)
	assert.Equal(t, id, got.ID())
	assert.Equal(t, "ada", got["name"])
	assert.EqualValues(t, 36, got["age"])

	got, err = a.GetObject(ctx, storage.GetObjectParams{ClassName: "Item", ID: id, Fields: []string{"age"}})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = a.GetObject(ctx, storage.GetObjectParams{ClassName: "Item", ID: id, Where: filter.Eq("name", "bob")})
	assert.True(t, veloxdb.IsNotFound(err))
	_, err = a.GetObject(ctx, storage.GetObjectParams{ClassName: "Item", ID: "999999"})
	assert.True(t, veloxdb.IsNotFound(err))

	// Lookups are scoped to the class.
	_, err = a.GetObject(ctx, storage.GetObjectParams{ClassName: "Note", ID: id})
	assert.True(t, veloxdb.IsNotFound(err))
}

func testGetObjects(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	for i, n := range []string{"carol", "ada", "bob", "dave"} {
		create(t, a, veloxdb.Object{"name": n, "age": 20 + i})
	}
	objs, err := a.GetObjects(ctx, storage.GetObjectsParams{ClassName: "Item", Order: []veloxdb.Order{veloxdb.Asc("name")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ada", "bob", "carol", "dave"}, names(objs))

	objs, err = a.GetObjects(ctx, storage.GetObjectsParams{
		ClassName: "Item",
		Where:     filter.GTE("age", 21),
		Order:     []veloxdb.Order{veloxdb.Desc("age")},
		Offset:    1,
		First:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, names(objs))

	objs, err = a.GetObjects(ctx, storage.GetObjectsParams{ClassName: "Item", Where: filter.Eq("name", "zed")})
	require.NoError(t, err)
	assert.Empty(t, objs)

	all, err := a.GetObjects(ctx, storage.GetObjectsParams{ClassName: "Item"})
	require.NoError(t, err)
	require.Len(t, all, 4)
	ids := []string{all[0].ID(), all[2].ID(), "missing"}
	objs, err = a.GetObjects(ctx, storage.GetObjectsParams{ClassName: "Item", Where: filter.IDIn(ids), Fields: []string{"name"}})
	require.NoError(t, err)
	assert.Len(t, objs, 2)
	for _, o := range objs {
		assert.Len(t, o, 2)
	}
}

func testCount(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	n, err := a.Count(ctx, storage.CountParams{ClassName: "Item"})
	require.NoError(t, err)
	assert.Zero(t, n)
	for _, age := range []int{10, 20, 30} {
		create(t, a, veloxdb.Object{"age": age})
	}
	n, err = a.Count(ctx, storage.CountParams{ClassName: "Item", Where: filter.GT("age", 15)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testUpdate(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	id := create(t, a, veloxdb.Object{"name": "ada", "age": 36, "score": 1.5})
	obj, err := a.UpdateObject(ctx, storage.UpdateObjectParams{
		ClassName: "Item",
		ID:        id,
		Data:      veloxdb.Object{"age": 37, "score": nil, "id": "other"},
	})
	require.NoError(t, err)
	assert.Equal(t, id, obj.ID())
	assert.EqualValues(t, 37, obj["age"])
	assert.Equal(t, "ada", obj["name"])
	assert.NotContains(t, obj, "score")

	got, err := a.GetObject(ctx, storage.GetObjectParams{ClassName: "Item", ID: id})
	require.NoError(t, err)
	assert.EqualValues(t, 37, got["age"])
	assert.NotContains(t, got, "score")

	_, err = a.UpdateObject(ctx, storage.UpdateObjectParams{
		ClassName: "Item",
		ID:        id,
		Where:     filter.Eq("name", "bob"),
		Data:      veloxdb.Object{"age": 1},
	})
	assert.True(t, veloxdb.IsNotFound(err))
	got, err = a.GetObject(ctx, storage.GetObjectParams{ClassName: "Item", ID: id})
	require.NoError(t, err)
	assert.EqualValues(t, 37, got["age"])
}

func testUpdateObjects(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	for _, n := range []string{"a", "b", "c"} {
		create(t, a, veloxdb.Object{"name": n, "age": 1})
	}
	objs, err := a.UpdateObjects(ctx, storage.UpdateObjectsParams{
		ClassName: "Item",
		Where:     filter.In("name", "a", "c"),
		Data:      veloxdb.Object{"age": 2},
		Order:     []veloxdb.Order{veloxdb.Asc("name")},
		Fields:    []string{"name", "age"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, names(objs))
	n, err := a.Count(ctx, storage.CountParams{ClassName: "Item", Where: filter.Eq("age", 2)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	objs, err = a.UpdateObjects(ctx, storage.UpdateObjectsParams{
		ClassName: "Item",
		Data:      veloxdb.Object{"age": 3},
		Order:     []veloxdb.Order{veloxdb.Desc("name")},
		First:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, names(objs))
}

func testDelete(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	id := create(t, a, veloxdb.Object{"name": "ada"})
	_, err := a.DeleteObject(ctx, storage.DeleteObjectParams{ClassName: "Item", ID: id, Where: filter.Eq("name", "bob")})
	assert.True(t, veloxdb.IsNotFound(err))

	obj, err := a.DeleteObject(ctx, storage.DeleteObjectParams{ClassName: "Item", ID: id, Fields: []string{"name"}})
	require.NoError(t, err)
	assert.Equal(t, veloxdb.Object{"id": id, "name": "ada"}, obj)

	_, err = a.GetObject(ctx, storage.GetObjectParams{ClassName: "Item", ID: id})
	assert.True(t, veloxdb.IsNotFound(err))
	_, err = a.DeleteObject(ctx, storage.DeleteObjectParams{ClassName: "Item", ID: id})
	assert.True(t, veloxdb.IsNotFound(err))
}

func testDeleteObjects(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	for _, n := range []string{"a", "b", "c"} {
		create(t, a, veloxdb.Object{"name": n})
	}
	objs, err := a.DeleteObjects(ctx, storage.DeleteObjectsParams{
		ClassName: "Item",
		Where:     filter.NEQ("name", "b"),
		Order:     []veloxdb.Order{veloxdb.Asc("name")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, names(objs))

	left, err := a.GetObjects(ctx, storage.GetObjectsParams{ClassName: "Item"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names(left))

	objs, err = a.DeleteObjects(ctx, storage.DeleteObjectsParams{ClassName: "Item", Where: filter.Eq("name", "zed")})
	require.NoError(t, err)
	assert.Empty(t, objs)
}

func testCreateObjects(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	objs, err := a.CreateObjects(ctx, storage.CreateObjectsParams{
		ClassName: "Item",
		Data:      []veloxdb.Object{{"name": "x"}, {"name": "y"}, {"name": "z"}},
		Fields:    []string{"name"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, names(objs))
	ids := veloxdb.IDs(objs)
	require.Len(t, ids, 3)
	assert.NotEqual(t, ids[0], ids[1])
	assert.NotEqual(t, ids[1], ids[2])

	objs, err = a.CreateObjects(ctx, storage.CreateObjectsParams{ClassName: "Item"})
	require.NoError(t, err)
	assert.Empty(t, objs)
}

func testClearDatabase(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	create(t, a, veloxdb.Object{"name": "a"})
	_, err := a.CreateObject(ctx, storage.CreateObjectParams{ClassName: "Note", Data: veloxdb.Object{"text": "t"}})
	require.NoError(t, err)
	require.NoError(t, a.ClearDatabase(ctx))
	for _, class := range []string{"Item", "Note"} {
		n, err := a.Count(ctx, storage.CountParams{ClassName: class})
		require.NoError(t, err)
		assert.Zero(t, n, class)
	}
	// Classes survive a clear.
	create(t, a, veloxdb.Object{"name": "b"})
}

// testACLSemantics pins the null and absent-array behaviour the row-level
// access filters rely on.
func testACLSemantics(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	docs := map[string]veloxdb.Object{
		"public":   {"name": "public"},
		"noUsers":  {"name": "noUsers", "acl": map[string]any{"roles": []any{map[string]any{"roleId": "r1", "read": true, "write": false}}}},
		"empty":    {"name": "empty", "acl": map[string]any{"users": []any{}, "roles": []any{}}},
		"u1read":   {"name": "u1read", "acl": map[string]any{"users": []any{map[string]any{"userId": "u1", "read": true, "write": false}}}},
		"u1denied": {"name": "u1denied", "acl": map[string]any{"users": []any{map[string]any{"userId": "u1", "read": false, "write": false}}, "roles": []any{map[string]any{"roleId": "r1", "read": true, "write": true}}}},
		"split":    {"name": "split", "acl": map[string]any{"users": []any{map[string]any{"userId": "u1", "read": false, "write": false}, map[string]any{"userId": "u2", "read": true, "write": true}}}},
	}
	for _, d := range docs {
		create(t, a, d)
	}
	tests := []struct {
		name  string
		where filter.Tree
		want  []string
	}{
		{"null acl", filter.Eq("acl", nil), []string{"public"}},
		{"absent users satisfy notIn", filter.AndOf(filter.Exists("acl", true), filter.NotIn("acl.users.userId", "u1")), []string{"empty", "noUsers"}},
		{"in over users", filter.In("acl.users.userId", "u1"), []string{"split", "u1denied", "u1read"}},
		{
			"elemMatch keeps entries apart",
			filter.ElemMatch{Field: "acl.users", Where: filter.And{filter.In("userId", "u1"), filter.In("read", true)}},
			[]string{"u1read"},
		},
		{
			"role clause",
			filter.And{
				filter.NotIn("acl.users.userId", "u1"),
				filter.ElemMatch{Field: "acl.roles", Where: filter.And{filter.In("roleId", "r1"), filter.In("read", true)}},
			},
			[]string{"noUsers"},
		},
	}
	for _, tt := range tests {
		objs, err := a.GetObjects(ctx, storage.GetObjectsParams{
			ClassName: "Item",
			Where:     tt.where,
			Order:     []veloxdb.Order{veloxdb.Asc("name")},
		})
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, names(objs), tt.name)
	}
}

func testValues(t *testing.T, a storage.Adapter) {
	ctx := context.Background()
	born := time.Date(1815, 12, 10, 0, 0, 0, 0, time.UTC)
	owner := create(t, a, veloxdb.Object{"name": "owner"})
	id := create(t, a, veloxdb.Object{
		"name":    "ada",
		"score":   2.5,
		"born":    born,
		"tags":    []any{"math", "poetry"},
		"owner":   owner,
		"friends": []string{owner},
	})
	got, err := a.GetObject(ctx, storage.GetObjectParams{ClassName: "Item", ID: id})
	require.NoError(t, err)
	assert.EqualValues(t, 2.5, got["score"])
	gotBorn, ok := got["born"].(time.Time)
	require.True(t, ok, "born is %T", got["born"])
	assert.True(t, born.Equal(gotBorn))
	assert.Equal(t, []any{"math", "poetry"}, filter.List(got["tags"]))
	assert.Equal(t, owner, got["owner"])
	assert.Equal(t, []any{owner}, filter.List(got["friends"]))

	n, err := a.Count(ctx, storage.CountParams{ClassName: "Item", Where: filter.LT("born", time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC))})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = a.Count(ctx, storage.CountParams{ClassName: "Item", Where: filter.Contains("tags", "math")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = a.Count(ctx, storage.CountParams{ClassName: "Item", Where: filter.In("friends", owner)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

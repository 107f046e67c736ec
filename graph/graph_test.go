package graph_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/veloxdb"
	"github.com/syssam/veloxdb/filter"
	"github.com/syssam/veloxdb/graph"
	"github.com/syssam/veloxdb/hook"
	"github.com/syssam/veloxdb/privacy"
	"github.com/syssam/veloxdb/schema"
	"github.com/syssam/veloxdb/storage"
	"github.com/syssam/veloxdb/storage/memory"
)

func testSchema() *schema.Schema {
	return schema.MustNew(
		schema.NewClass("User",
			schema.String("name"),
			schema.Int("age"),
		),
		schema.NewClass("Post",
			schema.String("title"),
			schema.Pointer("author", "User"),
			schema.Relation("tags", "Tag"),
		),
		schema.NewClass("Tag", schema.String("label")),
	)
}

// countingAdapter counts the reads issued to the wrapped adapter.
type countingAdapter struct {
	storage.Adapter
	reads atomic.Int32
}

func (a *countingAdapter) GetObject(ctx context.Context, p storage.GetObjectParams) (veloxdb.Object, error) {
	a.reads.Add(1)
	return a.Adapter.GetObject(ctx, p)
}

func (a *countingAdapter) GetObjects(ctx context.Context, p storage.GetObjectsParams) ([]veloxdb.Object, error) {
	a.reads.Add(1)
	return a.Adapter.GetObjects(ctx, p)
}

func newController(t *testing.T, opts ...graph.Option) (*graph.Controller, *countingAdapter) {
	t.Helper()
	a := &countingAdapter{Adapter: memory.New()}
	c := graph.New(a, testSchema(), opts...)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c, a
}

func rootCtx() context.Context {
	return veloxdb.RootContext(context.Background())
}

func create(t *testing.T, c *graph.Controller, class string, data veloxdb.Object) string {
	t.Helper()
	obj, err := c.CreateObject(rootCtx(), veloxdb.CreateObjectParams{
		ClassName: class,
		Data:      data,
		Fields:    []string{"id"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, obj.ID())
	return obj.ID()
}

func labels(t *testing.T, v any) []string {
	t.Helper()
	conn, ok := v.(*veloxdb.Connection)
	require.Truef(t, ok, "expected a connection, got %T", v)
	var out []string
	for _, n := range conn.Nodes() {
		out = append(out, n["label"].(string))
	}
	return out
}

func TestPublicObjects(t *testing.T) {
	t.Parallel()
	c, _ := newController(t)
	id := create(t, c, "User", veloxdb.Object{"name": "ann"})

	callers := map[string]context.Context{
		"anonymous":     context.Background(),
		"user":          veloxdb.UserContext(context.Background(), "u1", ""),
		"user and role": veloxdb.UserContext(context.Background(), "u2", "admin"),
	}
	for name, ctx := range callers {
		t.Run(name, func(t *testing.T) {
			got, err := c.GetObject(ctx, veloxdb.GetObjectParams{ClassName: "User", ID: id, Fields: []string{"name"}})
			require.NoError(t, err)
			assert.Equal(t, veloxdb.Object{"id": id, "name": "ann"}, got)

			_, err = c.UpdateObject(ctx, veloxdb.UpdateObjectParams{ClassName: "User", ID: id, Data: veloxdb.Object{"age": 3}})
			require.NoError(t, err)
		})
	}
}

func TestUserReadOnlyACL(t *testing.T) {
	t.Parallel()
	c, _ := newController(t)
	acl := privacy.ACL{}.AllowUser("u1", true, false)
	id := create(t, c, "User", veloxdb.Object{"name": "ann", "acl": acl})

	owner := veloxdb.UserContext(context.Background(), "u1", "")
	other := veloxdb.UserContext(context.Background(), "u2", "")

	_, err := c.GetObject(owner, veloxdb.GetObjectParams{ClassName: "User", ID: id, Fields: []string{"name"}})
	require.NoError(t, err)
	n, err := c.Count(owner, veloxdb.CountParams{ClassName: "User"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = c.UpdateObject(owner, veloxdb.UpdateObjectParams{ClassName: "User", ID: id, Data: veloxdb.Object{"age": 1}})
	assert.True(t, veloxdb.IsNotFound(err), "read access does not grant writes: %v", err)
	_, err = c.DeleteObject(owner, veloxdb.DeleteObjectParams{ClassName: "User", ID: id})
	assert.True(t, veloxdb.IsNotFound(err))

	for _, ctx := range []context.Context{other, context.Background()} {
		_, err = c.GetObject(ctx, veloxdb.GetObjectParams{ClassName: "User", ID: id})
		assert.True(t, veloxdb.IsNotFound(err))
		_, err = c.UpdateObject(ctx, veloxdb.UpdateObjectParams{ClassName: "User", ID: id, Data: veloxdb.Object{"age": 1}})
		assert.True(t, veloxdb.IsNotFound(err))
		objs, err := c.GetObjects(ctx, veloxdb.GetObjectsParams{ClassName: "User"})
		require.NoError(t, err)
		assert.Empty(t, objs)
	}

	got, err := c.GetObject(rootCtx(), veloxdb.GetObjectParams{ClassName: "User", ID: id, Fields: []string{"age"}})
	require.NoError(t, err)
	assert.Equal(t, veloxdb.Object{"id": id}, got, "no update went through")
}

func TestRoleACL(t *testing.T) {
	t.Parallel()
	c, _ := newController(t)
	acl := privacy.ACL{}.AllowRole("editor", true, true)
	id := create(t, c, "Tag", veloxdb.Object{"label": "a", "acl": acl})

	editor := veloxdb.UserContext(context.Background(), "u1", "editor")
	_, err := c.UpdateObject(editor, veloxdb.UpdateObjectParams{ClassName: "Tag", ID: id, Data: veloxdb.Object{"label": "b"}})
	require.NoError(t, err)

	// A user entry takes precedence over the role.
	_, err = c.UpdateObject(rootCtx(), veloxdb.UpdateObjectParams{
		ClassName: "Tag",
		ID:        id,
		Data:      veloxdb.Object{"acl": acl.AllowUser("u1", true, false)},
	})
	require.NoError(t, err)
	_, err = c.UpdateObject(editor, veloxdb.UpdateObjectParams{ClassName: "Tag", ID: id, Data: veloxdb.Object{"label": "c"}})
	assert.True(t, veloxdb.IsNotFound(err))
	got, err := c.GetObject(editor, veloxdb.GetObjectParams{ClassName: "Tag", ID: id, Fields: []string{"label"}})
	require.NoError(t, err)
	assert.Equal(t, "b", got["label"])
}

func TestPointerCreateAndLink(t *testing.T) {
	t.Parallel()
	c, _ := newController(t)
	ctx := rootCtx()

	post, err := c.CreateObject(ctx, veloxdb.CreateObjectParams{
		ClassName: "Post",
		Data: veloxdb.Object{
			"title":  "hello",
			"author": map[string]any{"createAndLink": map[string]any{"name": "ann"}},
		},
		Fields: []string{"title", "author.name"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", post["title"])
	author, ok := post["author"].(veloxdb.Object)
	require.True(t, ok)
	assert.Equal(t, "ann", author["name"])
	require.NotEmpty(t, author.ID())

	n, err := c.Count(ctx, veloxdb.CountParams{ClassName: "User"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The stored value is the id.
	raw, err := c.GetObject(ctx, veloxdb.GetObjectParams{ClassName: "Post", ID: post.ID(), Fields: []string{"author"}})
	require.NoError(t, err)
	assert.Equal(t, author.ID(), raw["author"])

	_, err = c.UpdateObject(ctx, veloxdb.UpdateObjectParams{
		ClassName: "Post",
		ID:        post.ID(),
		Data:      veloxdb.Object{"author": map[string]any{"unlink": true}},
	})
	require.NoError(t, err)
	raw, err = c.GetObject(ctx, veloxdb.GetObjectParams{ClassName: "Post", ID: post.ID(), Fields: []string{"author.name"}})
	require.NoError(t, err)
	assert.NotContains(t, raw, "author")

	got, err := c.UpdateObject(ctx, veloxdb.UpdateObjectParams{
		ClassName: "Post",
		ID:        post.ID(),
		Data:      veloxdb.Object{"author": veloxdb.Object{"link": author.ID()}},
		Fields:    []string{"author.name"},
	})
	require.NoError(t, err)
	assert.Equal(t, veloxdb.Object{"id": author.ID(), "name": "ann"}, got["author"])
}

func TestRelationInputs(t *testing.T) {
	t.Parallel()
	c, _ := newController(t)
	ctx := rootCtx()
	a := create(t, c, "Tag", veloxdb.Object{"label": "a"})
	b := create(t, c, "Tag", veloxdb.Object{"label": "b"})

	post, err := c.CreateObject(ctx, veloxdb.CreateObjectParams{
		ClassName: "Post",
		Data:      veloxdb.Object{"title": "p", "tags": []string{a}},
		Fields:    []string{"tags.label"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, labels(t, post["tags"]))

	got, err := c.UpdateObject(ctx, veloxdb.UpdateObjectParams{
		ClassName: "Post",
		ID:        post.ID(),
		Data: veloxdb.Object{"tags": map[string]any{
			"add":          []string{b, a},
			"createAndAdd": []any{map[string]any{"label": "c"}},
		}},
		Fields: []string{"tags.label"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, labels(t, got["tags"]))

	got, err = c.UpdateObject(ctx, veloxdb.UpdateObjectParams{
		ClassName: "Post",
		ID:        post.ID(),
		Data:      veloxdb.Object{"tags": map[string]any{"remove": []string{a}}},
		Fields:    []string{"tags.label", "title"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, labels(t, got["tags"]))
	assert.Equal(t, "p", got["title"])

	n, err := c.Count(ctx, veloxdb.CountParams{ClassName: "Tag"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = c.UpdateObject(ctx, veloxdb.UpdateObjectParams{
		ClassName: "Post",
		ID:        "missing",
		Data:      veloxdb.Object{"tags": map[string]any{"add": []string{a}}},
	})
	assert.True(t, veloxdb.IsNotFound(err))
}

func TestHookOrderAndCascade(t *testing.T) {
	t.Parallel()
	suffix := func(s string) hook.Callback {
		return func(_ context.Context, obj *hook.Object) error {
			obj.Set("name", obj.Get("name").(string)+s)
			return nil
		}
	}
	c, _ := newController(t, graph.WithHooks(
		hook.Registration{ClassName: "User", Phase: hook.BeforeCreate, Priority: 20, Callback: suffix("-second")},
		hook.Registration{ClassName: "User", Phase: hook.BeforeCreate, Priority: 10, Callback: suffix("-first")},
		hook.Registration{ClassName: "User", Phase: hook.AfterCreate, Callback: func(ctx context.Context, obj *hook.Object) error {
			_, err := obj.Controller(ctx).UpdateObject(ctx, veloxdb.UpdateObjectParams{
				ClassName: "User",
				ID:        obj.ID,
				Data:      veloxdb.Object{"age": 21},
			})
			return err
		}},
	))

	got, err := c.CreateObject(rootCtx(), veloxdb.CreateObjectParams{
		ClassName: "User",
		Data:      veloxdb.Object{"name": "ann"},
		Fields:    []string{"name", "age"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ann-first-second", got["name"])
	assert.Equal(t, 21, got["age"])
}

func TestAfterCreateCascadeVisibleToLaterHooks(t *testing.T) {
	t.Parallel()
	var seen any
	c, _ := newController(t, graph.WithHooks(
		hook.Registration{ClassName: "User", Phase: hook.AfterCreate, Priority: 2, Callback: func(ctx context.Context, obj *hook.Object) error {
			ctrl := obj.Controller(ctx)
			cur, err := ctrl.GetObject(ctx, veloxdb.GetObjectParams{ClassName: "User", ID: obj.ID, Fields: []string{"age"}})
			if err != nil {
				return err
			}
			seen = cur["age"]
			_, err = ctrl.UpdateObject(ctx, veloxdb.UpdateObjectParams{
				ClassName: "User",
				ID:        obj.ID,
				Data:      veloxdb.Object{"name": fmt.Sprintf("%s-%v", obj.Get("name"), cur["age"])},
			})
			return err
		}},
		hook.Registration{ClassName: "User", Phase: hook.AfterCreate, Priority: 1, Callback: func(ctx context.Context, obj *hook.Object) error {
			_, err := obj.Controller(ctx).UpdateObject(ctx, veloxdb.UpdateObjectParams{
				ClassName: "User",
				ID:        obj.ID,
				Data:      veloxdb.Object{"age": 21},
			})
			return err
		}},
	))

	got, err := c.CreateObject(rootCtx(), veloxdb.CreateObjectParams{
		ClassName: "User",
		Data:      veloxdb.Object{"name": "ann"},
		Fields:    []string{"name", "age"},
	})
	require.NoError(t, err)
	assert.Equal(t, 21, seen)
	assert.Equal(t, "ann-21", got["name"])
	assert.Equal(t, 21, got["age"])
}

func TestSkipFetch(t *testing.T) {
	t.Parallel()
	c, a := newController(t)
	ctx := rootCtx()
	id := create(t, c, "User", veloxdb.Object{"name": "ann"})

	a.reads.Store(0)
	_, err := c.CreateObject(ctx, veloxdb.CreateObjectParams{ClassName: "User", Data: veloxdb.Object{"name": "bob"}})
	require.NoError(t, err)
	_, err = c.UpdateObject(ctx, veloxdb.UpdateObjectParams{ClassName: "User", ID: id, Data: veloxdb.Object{"age": 2}})
	require.NoError(t, err)
	_, err = c.DeleteObject(ctx, veloxdb.DeleteObjectParams{ClassName: "User", ID: id})
	require.NoError(t, err)
	assert.Zero(t, a.reads.Load(), "no hook asked for a snapshot")

	var original veloxdb.Object
	c, a = newController(t, graph.WithHooks(hook.Registration{
		ClassName: "User",
		Phase:     hook.AfterUpdate,
		Callback: func(ctx context.Context, obj *hook.Object) error {
			var err error
			original, err = obj.Original(ctx)
			return err
		},
	}))
	id = create(t, c, "User", veloxdb.Object{"name": "ann"})
	a.reads.Store(0)
	_, err = c.UpdateObject(ctx, veloxdb.UpdateObjectParams{ClassName: "User", ID: id, Data: veloxdb.Object{"name": "bob"}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, a.reads.Load())
	assert.Equal(t, "ann", original["name"])
}

func TestNoFieldsNoReadBack(t *testing.T) {
	t.Parallel()
	c, a := newController(t)
	ctx := rootCtx()
	a.reads.Store(0)

	obj, err := c.CreateObject(ctx, veloxdb.CreateObjectParams{ClassName: "Tag", Data: veloxdb.Object{"label": "a"}})
	require.NoError(t, err)
	assert.Nil(t, obj)

	objs, err := c.CreateObjects(ctx, veloxdb.CreateObjectsParams{
		ClassName: "Tag",
		Data:      []veloxdb.Object{{"label": "b"}, {"label": "c"}},
	})
	require.NoError(t, err)
	assert.NotNil(t, objs)
	assert.Empty(t, objs)
	assert.Zero(t, a.reads.Load())

	objs, err = c.UpdateObjects(ctx, veloxdb.UpdateObjectsParams{ClassName: "Tag", Data: veloxdb.Object{"label": "x"}})
	require.NoError(t, err)
	assert.NotNil(t, objs)
	assert.Empty(t, objs)

	objs, err = c.DeleteObjects(ctx, veloxdb.DeleteObjectsParams{ClassName: "Tag"})
	require.NoError(t, err)
	assert.NotNil(t, objs)
	assert.Empty(t, objs)

	n, err := c.Count(ctx, veloxdb.CountParams{ClassName: "Tag"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateObjects(t *testing.T) {
	t.Parallel()
	var seen atomic.Int32
	c, _ := newController(t, graph.WithConcurrency(2), graph.WithHooks(hook.Registration{
		ClassName: "Tag",
		Phase:     hook.AfterCreate,
		Callback: func(_ context.Context, obj *hook.Object) error {
			if obj.ID != "" && obj.Data.ID() == obj.ID {
				seen.Add(1)
			}
			return nil
		},
	}))
	objs, err := c.CreateObjects(rootCtx(), veloxdb.CreateObjectsParams{
		ClassName: "Tag",
		Data:      []veloxdb.Object{{"label": "a"}, {"label": "b"}, {"label": "c"}},
		Fields:    []string{"label"},
	})
	require.NoError(t, err)
	require.Len(t, objs, 3)
	for i, want := range []string{"a", "b", "c"} {
		assert.Equal(t, want, objs[i]["label"])
	}
	assert.EqualValues(t, 3, seen.Load())

	_, err = c.CreateObjects(rootCtx(), veloxdb.CreateObjectsParams{
		ClassName: "Tag",
		Data:      []veloxdb.Object{{"label": "d"}, {"label": 1}, {"label": 2}},
	})
	var agg *veloxdb.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 2)
	assert.True(t, veloxdb.IsValidationError(err))
	n, err := c.Count(rootCtx(), veloxdb.CountParams{ClassName: "Tag"})
	require.NoError(t, err)
	assert.Equal(t, 3, n, "an invalid batch writes nothing")
}

func TestFilterAcrossReferences(t *testing.T) {
	t.Parallel()
	c, _ := newController(t)
	ann := create(t, c, "User", veloxdb.Object{"name": "ann"})
	bob := create(t, c, "User", veloxdb.Object{"name": "bob"})
	create(t, c, "Post", veloxdb.Object{"title": "one", "author": ann})
	create(t, c, "Post", veloxdb.Object{"title": "two", "author": bob})
	create(t, c, "Post", veloxdb.Object{"title": "three", "author": ann})

	tests := []struct {
		name  string
		where filter.Tree
		want  []string
	}{
		{"ref", filter.Ref{Field: "author", Where: filter.Eq("name", "ann")}, []string{"one", "three"}},
		{"dotted leaf", filter.Eq("author.name", "bob"), []string{"two"}},
		{"stored id", filter.Eq("author.id", bob), []string{"two"}},
		{"combined", filter.And{filter.Eq("author.name", "ann"), filter.Eq("title", "three")}, []string{"three"}},
		{"no match", filter.Ref{Field: "author", Where: filter.Eq("name", "eve")}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objs, err := c.GetObjects(rootCtx(), veloxdb.GetObjectsParams{
				ClassName: "Post",
				Where:     tt.where,
				Order:     []veloxdb.Order{veloxdb.Asc("title")},
				Fields:    []string{"title"},
			})
			require.NoError(t, err)
			var titles []string
			for _, o := range objs {
				titles = append(titles, o["title"].(string))
			}
			assert.ElementsMatch(t, tt.want, titles)
		})
	}
}

func TestHiddenPointer(t *testing.T) {
	t.Parallel()
	c, _ := newController(t)
	ann := create(t, c, "User", veloxdb.Object{"name": "ann", "acl": privacy.ACL{}.AllowUser("u1", true, true)})
	post := create(t, c, "Post", veloxdb.Object{"title": "one", "author": ann})

	got, err := c.GetObject(veloxdb.UserContext(context.Background(), "u2", ""), veloxdb.GetObjectParams{
		ClassName: "Post",
		ID:        post,
		Fields:    []string{"title", "author.name"},
	})
	require.NoError(t, err)
	assert.Contains(t, got, "author")
	assert.Nil(t, got["author"])

	got, err = c.GetObject(veloxdb.UserContext(context.Background(), "u1", ""), veloxdb.GetObjectParams{
		ClassName: "Post",
		ID:        post,
		Fields:    []string{"author.name"},
	})
	require.NoError(t, err)
	assert.Equal(t, veloxdb.Object{"id": ann, "name": "ann"}, got["author"])
}

func TestSchemaErrors(t *testing.T) {
	t.Parallel()
	c, _ := newController(t)
	ctx := rootCtx()
	id := create(t, c, "User", veloxdb.Object{"name": "ann"})

	tests := []struct {
		name string
		run  func() error
	}{
		{"unknown class", func() error {
			_, err := c.GetObjects(ctx, veloxdb.GetObjectsParams{ClassName: "Nope"})
			return err
		}},
		{"unknown field in data", func() error {
			_, err := c.CreateObject(ctx, veloxdb.CreateObjectParams{ClassName: "User", Data: veloxdb.Object{"nope": 1}})
			return err
		}},
		{"id in data", func() error {
			_, err := c.UpdateObject(ctx, veloxdb.UpdateObjectParams{ClassName: "User", ID: id, Data: veloxdb.Object{"id": "x"}})
			return err
		}},
		{"unknown requested field", func() error {
			_, err := c.GetObject(ctx, veloxdb.GetObjectParams{ClassName: "User", ID: id, Fields: []string{"nope"}})
			return err
		}},
		{"unknown filter field", func() error {
			_, err := c.Count(ctx, veloxdb.CountParams{ClassName: "User", Where: filter.Eq("nope", 1)})
			return err
		}},
		{"ref on a scalar", func() error {
			_, err := c.Count(ctx, veloxdb.CountParams{ClassName: "User", Where: filter.Ref{Field: "name", Where: filter.Eq("x", 1)}})
			return err
		}},
		{"unknown order field", func() error {
			_, err := c.GetObjects(ctx, veloxdb.GetObjectsParams{ClassName: "User", Order: []veloxdb.Order{veloxdb.Desc("nope")}})
			return err
		}},
		{"empty id", func() error {
			_, err := c.GetObject(ctx, veloxdb.GetObjectParams{ClassName: "User"})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.True(t, veloxdb.IsSchemaError(err), "got %v", err)
		})
	}
}

func TestValidation(t *testing.T) {
	t.Parallel()
	c, _ := newController(t)
	ctx := rootCtx()

	_, err := c.CreateObject(ctx, veloxdb.CreateObjectParams{ClassName: "User", Data: veloxdb.Object{"age": "old"}})
	require.Error(t, err)
	assert.True(t, veloxdb.IsValidationError(err))

	_, err = c.CreateObject(ctx, veloxdb.CreateObjectParams{ClassName: "Post", Data: veloxdb.Object{"author": 42}})
	assert.True(t, veloxdb.IsValidationError(err))

	_, err = c.CreateObject(ctx, veloxdb.CreateObjectParams{ClassName: "Post", Data: veloxdb.Object{"tags": map[string]any{"move": []string{"x"}}}})
	assert.True(t, veloxdb.IsValidationError(err))

	_, err = c.CreateObject(ctx, veloxdb.CreateObjectParams{ClassName: "Post", Data: veloxdb.Object{"tags": []any{"x", 1}}})
	assert.True(t, veloxdb.IsValidationError(err))
}

func TestClassPolicy(t *testing.T) {
	t.Parallel()
	c, _ := newController(t, graph.WithClassPolicy(privacy.Classes{
		"Tag": privacy.Policy{privacy.ReadOnly()},
		"":    privacy.Policy{privacy.DenyIfNoUser()},
	}))
	user := veloxdb.UserContext(context.Background(), "u1", "")

	_, err := c.CreateObject(user, veloxdb.CreateObjectParams{ClassName: "Tag", Data: veloxdb.Object{"label": "a"}})
	assert.True(t, veloxdb.IsPrivacyError(err))
	_, err = c.GetObjects(user, veloxdb.GetObjectsParams{ClassName: "Tag"})
	assert.NoError(t, err)

	_, err = c.Count(context.Background(), veloxdb.CountParams{ClassName: "User"})
	assert.True(t, veloxdb.IsPrivacyError(err))
	_, err = c.Count(user, veloxdb.CountParams{ClassName: "User"})
	assert.NoError(t, err)

	// Root bypasses the policy.
	create(t, c, "Tag", veloxdb.Object{"label": "a"})
}

func TestReadHooks(t *testing.T) {
	t.Parallel()
	errBlocked := errors.New("blocked")
	c, _ := newController(t, graph.WithHooks(
		hook.Registration{ClassName: "Tag", Phase: hook.AfterRead, Callback: func(_ context.Context, obj *hook.Object) error {
			obj.Set("label", "changed")
			return nil
		}},
		hook.Registration{ClassName: "User", Phase: hook.BeforeRead, Callback: func(context.Context, *hook.Object) error {
			return errBlocked
		}},
	))
	ctx := rootCtx()
	id := create(t, c, "Tag", veloxdb.Object{"label": "a"})

	got, err := c.GetObject(ctx, veloxdb.GetObjectParams{ClassName: "Tag", ID: id, Fields: []string{"label"}})
	require.NoError(t, err)
	assert.Equal(t, "a", got["label"], "after read hooks observe a copy")

	_, err = c.GetObjects(ctx, veloxdb.GetObjectsParams{ClassName: "User"})
	assert.True(t, veloxdb.IsHookError(err))
	assert.ErrorIs(t, err, errBlocked)

	_, err = c.GetObjects(ctx, veloxdb.GetObjectsParams{ClassName: "User", SkipHooks: true})
	assert.NoError(t, err)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	var deleted []string
	c, _ := newController(t, graph.WithHooks(hook.Registration{
		ClassName: "Tag",
		Phase:     hook.AfterDelete,
		Callback: func(ctx context.Context, obj *hook.Object) error {
			orig, err := obj.Original(ctx)
			if err != nil {
				return err
			}
			deleted = append(deleted, orig["label"].(string))
			return nil
		},
	}))
	ctx := rootCtx()
	a := create(t, c, "Tag", veloxdb.Object{"label": "a"})
	create(t, c, "Tag", veloxdb.Object{"label": "b"})
	create(t, c, "Tag", veloxdb.Object{"label": "c"})

	got, err := c.DeleteObject(ctx, veloxdb.DeleteObjectParams{ClassName: "Tag", ID: a, Fields: []string{"label"}})
	require.NoError(t, err)
	assert.Equal(t, veloxdb.Object{"id": a, "label": "a"}, got)
	_, err = c.GetObject(ctx, veloxdb.GetObjectParams{ClassName: "Tag", ID: a})
	assert.True(t, veloxdb.IsNotFound(err))

	objs, err := c.DeleteObjects(ctx, veloxdb.DeleteObjectsParams{
		ClassName: "Tag",
		Where:     filter.Eq("label", "b"),
		Fields:    []string{"label"},
	})
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "b", objs[0]["label"])
	assert.ElementsMatch(t, []string{"a", "b"}, deleted)

	_, err = c.DeleteObject(ctx, veloxdb.DeleteObjectParams{ClassName: "Tag", ID: a})
	assert.True(t, veloxdb.IsNotFound(err))
}

func TestUpdateObjects(t *testing.T) {
	t.Parallel()
	c, _ := newController(t, graph.WithHooks(hook.Registration{
		ClassName: "User",
		Phase:     hook.BeforeUpdate,
		Callback: func(ctx context.Context, obj *hook.Object) error {
			orig, err := obj.Original(ctx)
			if err != nil {
				return err
			}
			obj.Set("age", orig["age"].(int)+1)
			return nil
		},
	}))
	ctx := rootCtx()
	for i, name := range []string{"ann", "bob", "eve"} {
		create(t, c, "User", veloxdb.Object{"name": name, "age": i})
	}
	objs, err := c.UpdateObjects(ctx, veloxdb.UpdateObjectsParams{
		ClassName: "User",
		Where:     filter.NEQ("name", "eve"),
		Data:      veloxdb.Object{"name": "x"},
		Fields:    []string{"name", "age"},
	})
	require.NoError(t, err)
	require.Len(t, objs, 2)
	for i, o := range objs {
		assert.Equal(t, "x", o["name"])
		assert.Equal(t, i+1, o["age"])
	}
}

func TestWithoutDefaultHooks(t *testing.T) {
	t.Parallel()
	c, a := newController(t, graph.WithoutDefaultHooks())
	assert.Empty(t, c.Registry().Registrations())
	ctx := rootCtx()
	create(t, c, "Tag", veloxdb.Object{"label": "a"})
	create(t, c, "Tag", veloxdb.Object{"label": "b"})

	a.reads.Store(0)
	objs, err := c.UpdateObjects(ctx, veloxdb.UpdateObjectsParams{
		ClassName: "Tag",
		Where:     filter.Eq("label", "a"),
		Data:      veloxdb.Object{"label": "z"},
	})
	require.NoError(t, err)
	assert.Empty(t, objs)
	assert.Zero(t, a.reads.Load(), "a single adapter update")

	n, err := c.Count(ctx, veloxdb.CountParams{ClassName: "Tag", Where: filter.Eq("label", "z")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeleteObjectsPageOfWritable(t *testing.T) {
	t.Parallel()
	c, _ := newController(t)
	create(t, c, "Tag", veloxdb.Object{"label": "readonly", "acl": privacy.ACL{}.AllowUser("u1", true, false)})
	writable := create(t, c, "Tag", veloxdb.Object{"label": "writable", "acl": privacy.ACL{}.AllowUser("u1", true, true)})
	u1 := veloxdb.UserContext(context.Background(), "u1", "")

	objs, err := c.DeleteObjects(u1, veloxdb.DeleteObjectsParams{
		ClassName: "Tag",
		Order:     []veloxdb.Order{veloxdb.Asc("label")},
		First:     1,
		Fields:    []string{"label"},
	})
	require.NoError(t, err)
	assert.Equal(t, []veloxdb.Object{{"id": writable, "label": "writable"}}, objs)

	n, err := c.Count(rootCtx(), veloxdb.CountParams{ClassName: "Tag"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMultiObjectWritesNeedWriteAccess(t *testing.T) {
	t.Parallel()
	noop := func(context.Context, *hook.Object) error { return nil }
	variants := map[string][]graph.Option{
		"default hooks":         nil,
		"without default hooks": {graph.WithoutDefaultHooks()},
		"delete hooks": {graph.WithHooks(
			hook.Registration{ClassName: "Tag", Phase: hook.BeforeDelete, Callback: noop},
			hook.Registration{ClassName: "Tag", Phase: hook.AfterDelete, Callback: noop},
		)},
	}
	for name, opts := range variants {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c, _ := newController(t, opts...)
			ro := create(t, c, "Tag", veloxdb.Object{"label": "ro", "acl": privacy.ACL{}.AllowUser("u1", true, false)})
			rw := create(t, c, "Tag", veloxdb.Object{"label": "rw", "acl": privacy.ACL{}.AllowUser("u1", true, true)})
			other := create(t, c, "Tag", veloxdb.Object{"label": "other", "acl": privacy.ACL{}.AllowUser("u2", true, true)})
			u1 := veloxdb.UserContext(context.Background(), "u1", "")
			stored := func() map[string]any {
				objs, err := c.GetObjects(rootCtx(), veloxdb.GetObjectsParams{ClassName: "Tag", Fields: []string{"label"}})
				require.NoError(t, err)
				out := make(map[string]any, len(objs))
				for _, o := range objs {
					out[o.ID()] = o["label"]
				}
				return out
			}

			updated, err := c.UpdateObjects(u1, veloxdb.UpdateObjectsParams{
				ClassName: "Tag",
				Data:      veloxdb.Object{"label": "changed"},
				Fields:    []string{"label"},
			})
			require.NoError(t, err)
			assert.Equal(t, []veloxdb.Object{{"id": rw, "label": "changed"}}, updated)
			assert.Equal(t, map[string]any{ro: "ro", rw: "changed", other: "other"}, stored())

			deleted, err := c.DeleteObjects(u1, veloxdb.DeleteObjectsParams{
				ClassName: "Tag",
				Fields:    []string{"label"},
			})
			require.NoError(t, err)
			assert.Equal(t, []veloxdb.Object{{"id": rw, "label": "changed"}}, deleted)
			assert.Equal(t, map[string]any{ro: "ro", other: "other"}, stored())
		})
	}
}

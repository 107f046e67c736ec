package hook

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/veloxdb"
)

// fetcher serves snapshots from a fixed set and counts its calls.
type fetcher struct {
	mu    sync.Mutex
	calls [][]string
	objs  map[string]veloxdb.Object
	err   error
}

func (f *fetcher) fetch(_ context.Context, _ string, ids []string) (map[string]veloxdb.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ids)
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]veloxdb.Object)
	for _, id := range ids {
		if o, ok := f.objs[id]; ok {
			out[id] = o
		}
	}
	return out, nil
}

func newFetcher() *fetcher {
	return &fetcher{objs: map[string]veloxdb.Object{
		"1": {"id": "1", "title": "one"},
		"2": {"id": "2", "title": "two"},
		"3": {"id": "3", "title": "three"},
	}}
}

func TestRunOnSingleObject(t *testing.T) {
	ctx := context.Background()
	f := newFetcher()
	p := NewPipeline(NewRegistry(
		Registration{ClassName: "Post", Phase: BeforeUpdate, Priority: 2, Callback: func(_ context.Context, obj *Object) error {
			obj.Set("title", obj.Get("title").(string)+"!")
			return nil
		}},
		Registration{ClassName: "Post", Phase: BeforeUpdate, Priority: 1, Callback: func(ctx context.Context, obj *Object) error {
			orig, err := obj.Original(ctx)
			if err != nil {
				return err
			}
			obj.Set("title", orig["title"].(string)+"+"+obj.Get("title").(string))
			obj.Unset("draft")
			return nil
		}},
	), f.fetch)

	res, err := p.RunOnSingleObject(ctx, "Post", BeforeUpdate, SingleInput{
		ID:      "1",
		NewData: veloxdb.Object{"title": "new", "draft": true},
	})
	require.NoError(t, err)
	assert.Equal(t, veloxdb.Object{"title": "one+new!"}, res.NewData)
	assert.Equal(t, veloxdb.Object{"id": "1", "title": "one"}, res.Original)
	assert.Equal(t, [][]string{{"1"}}, f.calls)
}

func TestRunOnSingleObjectSkipFetch(t *testing.T) {
	ctx := context.Background()
	f := newFetcher()
	p := NewPipeline(NewRegistry(
		Registration{ClassName: "Post", Phase: BeforeDelete, Callback: func(context.Context, *Object) error { return nil }},
	), f.fetch)

	// No hooks for the phase.
	res, err := p.RunOnSingleObject(ctx, "Post", AfterUpdate, SingleInput{ID: "1", NewData: veloxdb.Object{"a": 1}})
	require.NoError(t, err)
	assert.Equal(t, veloxdb.Object{"a": 1}, res.NewData)
	assert.Nil(t, res.Original)

	// Hooks that never ask for the snapshot.
	res, err = p.RunOnSingleObject(ctx, "Post", BeforeDelete, SingleInput{ID: "1"})
	require.NoError(t, err)
	assert.Nil(t, res.Original)
	assert.Empty(t, f.calls)

	// Forced.
	res, err = p.RunOnSingleObject(ctx, "Post", AfterUpdate, SingleInput{ID: "2", FetchOriginal: true})
	require.NoError(t, err)
	assert.Equal(t, "two", res.Original["title"])
	assert.Len(t, f.calls, 1)

	// Given by the caller.
	given := veloxdb.Object{"id": "3", "title": "given"}
	res, err = p.RunOnSingleObject(ctx, "Post", AfterUpdate, SingleInput{ID: "3", Original: given, FetchOriginal: true})
	require.NoError(t, err)
	assert.Equal(t, given, res.Original)
	assert.Len(t, f.calls, 1)
}

func TestReadPhasesHaveNoOriginal(t *testing.T) {
	ctx := context.Background()
	f := newFetcher()
	var seen []veloxdb.Object
	var mu sync.Mutex
	record := func(ctx context.Context, obj *Object) error {
		orig, err := obj.Original(ctx)
		mu.Lock()
		seen = append(seen, orig)
		mu.Unlock()
		return err
	}
	p := NewPipeline(NewRegistry(
		Registration{ClassName: "Post", Phase: BeforeRead, Callback: record},
		Registration{ClassName: "Post", Phase: AfterRead, Callback: record},
	), f.fetch)

	_, err := p.RunOnSingleObject(ctx, "Post", BeforeRead, SingleInput{ID: "1", NewData: veloxdb.Object{}})
	require.NoError(t, err)
	_, err = p.RunOnMultipleObjects(ctx, "Post", AfterRead, MultiInput{
		IDs:     []string{"1", "2"},
		NewData: []veloxdb.Object{{"id": "1"}, {"id": "2"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []veloxdb.Object{nil, nil, nil}, seen)
	assert.Empty(t, f.calls)
	assert.True(t, BeforeRead.Reads())
	assert.False(t, BeforeUpdate.Reads())
}

func TestRunOnSingleObjectMemoised(t *testing.T) {
	ctx := context.Background()
	f := newFetcher()
	read := func(ctx context.Context, obj *Object) error {
		_, err := obj.Original(ctx)
		return err
	}
	p := NewPipeline(NewRegistry(
		Registration{Phase: BeforeDelete, Callback: read},
		Registration{Phase: BeforeDelete, Callback: read},
	), f.fetch)
	res, err := p.RunOnSingleObject(ctx, "Post", BeforeDelete, SingleInput{ID: "1", FetchOriginal: true})
	require.NoError(t, err)
	assert.Equal(t, "one", res.Original["title"])
	assert.Len(t, f.calls, 1)

	// Creates have no snapshot.
	res, err = p.RunOnSingleObject(ctx, "Post", BeforeDelete, SingleInput{})
	require.NoError(t, err)
	assert.Nil(t, res.Original)
	assert.Len(t, f.calls, 1)
}

func TestRunOnSingleObjectError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	var ran []string
	p := NewPipeline(NewRegistry(
		Registration{ClassName: "Post", Phase: BeforeCreate, Priority: 1, Callback: func(context.Context, *Object) error {
			ran = append(ran, "first")
			return boom
		}},
		Registration{ClassName: "Post", Phase: BeforeCreate, Priority: 2, Callback: func(context.Context, *Object) error {
			ran = append(ran, "second")
			return nil
		}},
	), nil)
	_, err := p.RunOnSingleObject(ctx, "Post", BeforeCreate, SingleInput{NewData: veloxdb.Object{}})
	require.Error(t, err)
	assert.True(t, veloxdb.IsHookError(err))
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, veloxdb.ErrHook)
	var he *veloxdb.HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "Post", he.Class)
	assert.Equal(t, "beforeCreate", he.Phase)
	assert.Equal(t, []string{"first"}, ran)

	// Snapshot failures surface as they are.
	f := newFetcher()
	f.err = veloxdb.NewAdapterError("Post", "getObjects", errors.New("down"))
	p = NewPipeline(NewRegistry(), f.fetch)
	_, err = p.RunOnSingleObject(ctx, "Post", BeforeUpdate, SingleInput{ID: "1", FetchOriginal: true})
	assert.True(t, veloxdb.IsAdapterError(err))
}

func TestRunOnMultipleObjects(t *testing.T) {
	ctx := context.Background()
	f := newFetcher()
	var running, peak atomic.Int32
	p := NewPipeline(NewRegistry(
		Registration{ClassName: "Post", Phase: BeforeUpdate, Callback: func(ctx context.Context, obj *Object) error {
			n := running.Add(1)
			defer running.Add(-1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			orig, err := obj.Original(ctx)
			if err != nil {
				return err
			}
			if orig != nil {
				obj.Set("was", orig["title"])
			}
			return nil
		}},
	), f.fetch, WithConcurrency(2))

	res, err := p.RunOnMultipleObjects(ctx, "Post", BeforeUpdate, MultiInput{
		IDs:     []string{"1", "2", "3", "gone"},
		NewData: []veloxdb.Object{{"n": 1}, {"n": 2}, {"n": 3}, {"n": 4}},
	})
	require.NoError(t, err)
	assert.Equal(t, []veloxdb.Object{
		{"n": 1, "was": "one"},
		{"n": 2, "was": "two"},
		{"n": 3, "was": "three"},
		{"n": 4},
	}, res.NewData)
	require.Len(t, res.Originals, 4)
	assert.Nil(t, res.Originals[3])
	assert.Equal(t, "two", res.Originals[1]["title"])
	require.Len(t, f.calls, 1, "snapshots are fetched in one batch")
	assert.ElementsMatch(t, []string{"1", "2", "3", "gone"}, f.calls[0])
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunOnMultipleObjectsSkipFetch(t *testing.T) {
	ctx := context.Background()
	f := newFetcher()
	p := NewPipeline(NewRegistry(), f.fetch)

	data := []veloxdb.Object{{"a": 1}}
	res, err := p.RunOnMultipleObjects(ctx, "Post", AfterCreate, MultiInput{IDs: []string{"1"}, NewData: data})
	require.NoError(t, err)
	assert.Equal(t, data, res.NewData)
	assert.Nil(t, res.Originals)
	assert.Empty(t, f.calls)

	// Known snapshots are not fetched again.
	res, err = p.RunOnMultipleObjects(ctx, "Post", BeforeDelete, MultiInput{
		IDs:           []string{"1", "2"},
		Originals:     []veloxdb.Object{{"id": "1", "title": "known"}, nil},
		FetchOriginal: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "known", res.Originals[0]["title"])
	assert.Equal(t, "two", res.Originals[1]["title"])
	assert.Equal(t, [][]string{{"2"}}, f.calls)
}

func TestRunOnMultipleObjectsErrors(t *testing.T) {
	ctx := context.Background()
	p := NewPipeline(NewRegistry(
		Registration{ClassName: "Post", Phase: BeforeCreate, Callback: func(_ context.Context, obj *Object) error {
			if obj.Get("bad") == true {
				return errors.New("bad input")
			}
			return nil
		}},
	), nil)

	_, err := p.RunOnMultipleObjects(ctx, "Post", BeforeCreate, MultiInput{
		NewData: []veloxdb.Object{{"bad": true}, {}, {"bad": true}},
	})
	require.Error(t, err)
	var agg *veloxdb.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 2)
	assert.True(t, veloxdb.IsHookError(err))

	_, err = p.RunOnMultipleObjects(ctx, "Post", BeforeCreate, MultiInput{
		NewData: []veloxdb.Object{{}, {"bad": true}},
	})
	assert.True(t, veloxdb.IsHookError(err))
	assert.False(t, errors.As(err, &agg), "a single failure is returned as is")
}

func TestObjectController(t *testing.T) {
	t.Parallel()
	obj := &Object{ClassName: "Post"}
	assert.Nil(t, obj.Controller(context.Background()))
	ctx := veloxdb.UserContext(context.Background(), "u1", "")
	assert.Equal(t, "u1", obj.Context(ctx).UserID())

	assert.False(t, obj.Has("x"))
	obj.Set("x", 1)
	assert.True(t, obj.Has("x"))
	orig, err := obj.Original(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, orig)
}

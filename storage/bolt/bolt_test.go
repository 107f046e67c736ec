package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/veloxdb"
	"github.com/syssam/veloxdb/storage"
	"github.com/syssam/veloxdb/storage/storagetest"
)

func open(t *testing.T) storage.Adapter {
	return New(filepath.Join(t.TempDir(), "veloxdb.db"))
}

func TestAdapter(t *testing.T) {
	storagetest.Run(t, open)
}

func TestSequentialIDs(t *testing.T) {
	a := storagetest.Connect(t, open)
	ctx := context.Background()
	objs, err := a.CreateObjects(ctx, storage.CreateObjectsParams{
		ClassName: "Note",
		Data:      []veloxdb.Object{{"text": "a"}, {"text": "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, veloxdb.IDs(objs))

	_, err = a.GetObject(ctx, storage.GetObjectParams{ClassName: "Note", ID: "not-a-number"})
	assert.True(t, veloxdb.IsNotFound(err))

	require.NoError(t, a.ClearDatabase(ctx))
	obj, err := a.CreateObject(ctx, storage.CreateObjectParams{ClassName: "Note", Data: veloxdb.Object{"text": "c"}})
	require.NoError(t, err)
	assert.Equal(t, "1", obj.ID())
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "veloxdb.db")
	a := storagetest.Connect(t, func(*testing.T) storage.Adapter { return New(path) })
	obj, err := a.CreateObject(ctx, storage.CreateObjectParams{ClassName: "Note", Data: veloxdb.Object{"text": "kept"}})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	_, err = a.GetObject(ctx, storage.GetObjectParams{ClassName: "Note", ID: obj.ID()})
	assert.ErrorIs(t, err, storage.ErrClosed)

	require.NoError(t, a.Connect(ctx))
	got, err := a.GetObject(ctx, storage.GetObjectParams{ClassName: "Note", ID: obj.ID()})
	require.NoError(t, err)
	assert.Equal(t, "kept", got["text"])
}

func TestLockTimeout(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "veloxdb.db")
	first := New(path)
	require.NoError(t, first.Connect(ctx))
	defer first.Close()

	second := New(path, WithTimeout(50*time.Millisecond))
	err := second.Connect(ctx)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.True(t, veloxdb.IsAdapterError(err))
}

func TestUnknownClass(t *testing.T) {
	a := storagetest.Connect(t, open)
	_, err := a.Count(context.Background(), storage.CountParams{ClassName: "Nope"})
	assert.True(t, veloxdb.IsAdapterError(err))
}

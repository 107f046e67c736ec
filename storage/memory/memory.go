// Package memory provides an in-process storage.Adapter. Objects live in
// memory for the life of the adapter; it is meant for tests, tooling and
// small embedded deployments.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/syssam/veloxdb"
	"github.com/syssam/veloxdb/schema"
	"github.com/syssam/veloxdb/storage"
)

// Adapter is an in-memory storage.Adapter. It is safe for concurrent use;
// every primitive holds the adapter lock for its whole duration.
type Adapter struct {
	mu      sync.RWMutex
	classes map[string]*table
	newID   func() string
	closed  bool
}

type table struct {
	order []string // insertion order
	docs  map[string]veloxdb.Object
}

// Option configures the Adapter.
type Option func(*Adapter)

// WithIDGenerator sets the function producing object ids. Default is a
// random UUID.
func WithIDGenerator(fn func() string) Option {
	return func(a *Adapter) {
		a.newID = fn
	}
}

// New returns an empty adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		classes: make(map[string]*table),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ storage.Adapter = (*Adapter)(nil)

// Connect implements storage.Adapter.
func (a *Adapter) Connect(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = false
	return nil
}

// Close implements storage.Adapter. Stored objects are kept.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// CreateClassIfNotExist implements storage.Adapter.
func (a *Adapter) CreateClassIfNotExist(_ context.Context, c *schema.Class) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.classes[c.Name]; !ok {
		a.classes[c.Name] = &table{docs: make(map[string]veloxdb.Object)}
	}
	return nil
}

// ClearDatabase implements storage.Adapter. Classes are kept, objects dropped.
func (a *Adapter) ClearDatabase(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for name := range a.classes {
		a.classes[name] = &table{docs: make(map[string]veloxdb.Object)}
	}
	return nil
}

func (a *Adapter) table(class, op string) (*table, error) {
	if a.closed {
		return nil, veloxdb.NewAdapterError(class, op, storage.ErrClosed)
	}
	t, ok := a.classes[class]
	if !ok {
		return nil, veloxdb.NewAdapterError(class, op, fmt.Errorf("class %q does not exist", class))
	}
	return t, nil
}

// all returns the class documents matching q. Without an order, documents
// come in insertion order, or in the order of the ids the filter names.
func (t *table) all(q storage.Query) []veloxdb.Object {
	if ids, ok := storage.IDConstraint(q.Where); ok {
		docs := make([]veloxdb.Object, 0, len(ids))
		for _, id := range storage.Dedup(ids) {
			if d, ok := t.docs[id]; ok {
				docs = append(docs, d)
			}
		}
		return q.Apply(docs)
	}
	docs := make([]veloxdb.Object, 0, len(t.order))
	for _, id := range t.order {
		docs = append(docs, t.docs[id])
	}
	return q.Apply(docs)
}

func (t *table) insert(id string, data veloxdb.Object) veloxdb.Object {
	doc := storage.Patch(nil, data)
	doc[veloxdb.FieldID] = id
	t.docs[id] = doc
	t.order = append(t.order, id)
	return doc
}

func (t *table) remove(ids map[string]struct{}) {
	order := t.order[:0]
	for _, id := range t.order {
		if _, ok := ids[id]; ok {
			delete(t.docs, id)
			continue
		}
		order = append(order, id)
	}
	t.order = order
}

// Count implements storage.Adapter.
func (a *Adapter) Count(_ context.Context, p storage.CountParams) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, err := a.table(p.ClassName, "count")
	if err != nil {
		return 0, err
	}
	return len(t.all(storage.Query{Where: p.Where})), nil
}

// GetObject implements storage.Adapter.
func (a *Adapter) GetObject(_ context.Context, p storage.GetObjectParams) (veloxdb.Object, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, err := a.table(p.ClassName, "getObject")
	if err != nil {
		return nil, err
	}
	docs := t.all(storage.Query{Where: storage.ByID(p.ID, p.Where)})
	if len(docs) == 0 {
		return nil, veloxdb.NewNotFoundErrorWithID(p.ClassName, p.ID)
	}
	return docs[0].Project(p.Fields), nil
}

// GetObjects implements storage.Adapter.
func (a *Adapter) GetObjects(_ context.Context, p storage.GetObjectsParams) ([]veloxdb.Object, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, err := a.table(p.ClassName, "getObjects")
	if err != nil {
		return nil, err
	}
	docs := t.all(storage.Query{Where: p.Where, Order: p.Order, Offset: p.Offset, First: p.First})
	return storage.ProjectAll(docs, p.Fields), nil
}

// CreateObject implements storage.Adapter.
func (a *Adapter) CreateObject(_ context.Context, p storage.CreateObjectParams) (veloxdb.Object, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, err := a.table(p.ClassName, "createObject")
	if err != nil {
		return nil, err
	}
	return t.insert(a.newID(), p.Data).Project(p.Fields), nil
}

// CreateObjects implements storage.Adapter.
func (a *Adapter) CreateObjects(_ context.Context, p storage.CreateObjectsParams) ([]veloxdb.Object, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, err := a.table(p.ClassName, "createObjects")
	if err != nil {
		return nil, err
	}
	out := make([]veloxdb.Object, 0, len(p.Data))
	for _, data := range p.Data {
		out = append(out, t.insert(a.newID(), data).Project(p.Fields))
	}
	return out, nil
}

// UpdateObject implements storage.Adapter.
func (a *Adapter) UpdateObject(_ context.Context, p storage.UpdateObjectParams) (veloxdb.Object, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, err := a.table(p.ClassName, "updateObject")
	if err != nil {
		return nil, err
	}
	docs := t.all(storage.Query{Where: storage.ByID(p.ID, p.Where)})
	if len(docs) == 0 {
		return nil, veloxdb.NewNotFoundErrorWithID(p.ClassName, p.ID)
	}
	doc := storage.Patch(docs[0], p.Data)
	t.docs[p.ID] = doc
	return doc.Project(p.Fields), nil
}

// UpdateObjects implements storage.Adapter.
func (a *Adapter) UpdateObjects(_ context.Context, p storage.UpdateObjectsParams) ([]veloxdb.Object, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, err := a.table(p.ClassName, "updateObjects")
	if err != nil {
		return nil, err
	}
	docs := t.all(storage.Query{Where: p.Where, Order: p.Order, Offset: p.Offset, First: p.First})
	out := make([]veloxdb.Object, 0, len(docs))
	for _, d := range docs {
		doc := storage.Patch(d, p.Data)
		t.docs[doc.ID()] = doc
		out = append(out, doc.Project(p.Fields))
	}
	return out, nil
}

// DeleteObject implements storage.Adapter.
func (a *Adapter) DeleteObject(_ context.Context, p storage.DeleteObjectParams) (veloxdb.Object, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, err := a.table(p.ClassName, "deleteObject")
	if err != nil {
		return nil, err
	}
	docs := t.all(storage.Query{Where: storage.ByID(p.ID, p.Where)})
	if len(docs) == 0 {
		return nil, veloxdb.NewNotFoundErrorWithID(p.ClassName, p.ID)
	}
	t.remove(map[string]struct{}{p.ID: {}})
	return docs[0].Project(p.Fields), nil
}

// DeleteObjects implements storage.Adapter.
func (a *Adapter) DeleteObjects(_ context.Context, p storage.DeleteObjectsParams) ([]veloxdb.Object, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, err := a.table(p.ClassName, "deleteObjects")
	if err != nil {
		return nil, err
	}
	docs := t.all(storage.Query{Where: p.Where, Order: p.Order, Offset: p.Offset, First: p.First})
	ids := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		ids[d.ID()] = struct{}{}
	}
	t.remove(ids)
	return storage.ProjectAll(docs, p.Fields), nil
}

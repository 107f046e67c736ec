package hook

import (
	"context"
	"sync"

	"github.com/syssam/veloxdb"
)

// Object is the view of one object a callback receives.
type Object struct {
	// ClassName is the class of the object.
	ClassName string
	// ID is the object id, empty in BeforeCreate.
	ID string
	// Phase is the phase being run.
	Phase Phase

	// Data holds the pending data of a mutation, which before hooks may
	// edit, or the loaded object for read hooks.
	Data veloxdb.Object

	snapshot func(context.Context) (veloxdb.Object, error)
}

// Get returns the pending value of a field.
func (o *Object) Get(field string) any {
	return o.Data[field]
}

// Has reports whether the pending data sets field.
func (o *Object) Has(field string) bool {
	_, ok := o.Data[field]
	return ok
}

// Set sets a field of the pending data.
func (o *Object) Set(field string, v any) {
	if o.Data == nil {
		o.Data = veloxdb.Object{}
	}
	o.Data[field] = v
}

// Unset removes a field from the pending data.
func (o *Object) Unset(field string) {
	delete(o.Data, field)
}

// Original returns the stored object as it was before the mutation, read
// with root access on first use and memoised. It is nil for creates, for
// objects that no longer exist, and in read phases. The returned object
// is shared and must not be modified.
func (o *Object) Original(ctx context.Context) (veloxdb.Object, error) {
	if o.snapshot == nil {
		return nil, nil
	}
	return o.snapshot(ctx)
}

// Context returns the operation context of the caller.
func (o *Object) Context(ctx context.Context) *veloxdb.OperationContext {
	return veloxdb.FromContext(ctx)
}

// Controller returns the controller running the operation, for nested
// reads and writes. Nested calls run with their own ACL filtering and hook
// pipelines; wrap ctx with veloxdb.RootContext to bypass access checks.
func (o *Object) Controller(ctx context.Context) veloxdb.Controller {
	return veloxdb.FromContext(ctx).Controller
}

// single memoises the fetch of one object.
type single struct {
	once   sync.Once
	loaded bool
	obj    veloxdb.Object
	err    error
}

func (s *single) load(ctx context.Context, fetch func(context.Context) (veloxdb.Object, error)) (veloxdb.Object, error) {
	s.once.Do(func() {
		s.obj, s.err = fetch(ctx)
		s.loaded = true
	})
	return s.obj, s.err
}

// batch memoises one fetch shared by the objects of a multi-object run.
type batch struct {
	once   sync.Once
	loaded bool
	objs   map[string]veloxdb.Object
	err    error
}

func (b *batch) load(ctx context.Context, fetch func(context.Context) (map[string]veloxdb.Object, error)) (map[string]veloxdb.Object, error) {
	b.once.Do(func() {
		b.objs, b.err = fetch(ctx)
		b.loaded = true
	})
	return b.objs, b.err
}

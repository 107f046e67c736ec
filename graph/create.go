package graph

import (
	"context"
	"time"

	"github.com/syssam/veloxdb"
	"github.com/syssam/veloxdb/hook"
	"github.com/syssam/veloxdb/privacy"
	"github.com/syssam/veloxdb/storage"
)

// CreateObject creates an object and returns it with the requested fields,
// read back with root access. Without fields it returns nil.
func (c *Controller) CreateObject(ctx context.Context, p veloxdb.CreateObjectParams) (_ veloxdb.Object, err error) {
	defer c.trace("createObject", p.ClassName, time.Now(), &err)
	ctx, _, cls, err := c.begin(ctx, p.ClassName, privacy.ActionCreate)
	if err != nil {
		return nil, err
	}
	data, _, err := c.prepare(ctx, cls, p.Data)
	if err != nil {
		return nil, err
	}
	data = applyPatches(data, nil)
	res, err := c.pipeline.RunOnSingleObject(ctx, cls.Name, hook.BeforeCreate, hook.SingleInput{NewData: data})
	if err != nil {
		return nil, err
	}
	if err := checkValues(cls, res.NewData); err != nil {
		return nil, err
	}
	created, err := c.adapter.CreateObject(ctx, storage.CreateObjectParams{
		ClassName: cls.Name,
		Data:      res.NewData,
		Fields:    idOnly,
	})
	if err != nil {
		return nil, err
	}
	id := created.ID()
	if _, err := c.pipeline.RunOnSingleObject(ctx, cls.Name, hook.AfterCreate, hook.SingleInput{
		ID:      id,
		NewData: withID(res.NewData, id),
	}); err != nil {
		return nil, err
	}
	if len(p.Fields) == 0 {
		return nil, nil
	}
	return c.GetObject(veloxdb.RootContext(ctx), veloxdb.GetObjectParams{
		ClassName: cls.Name,
		ID:        id,
		Fields:    p.Fields,
		SkipHooks: true,
	})
}

// CreateObjects creates objects with a single adapter call and returns them
// in input order with the requested fields, read back with root access.
// Without fields it returns an empty slice. The BeforeCreate and AfterCreate
// hooks of the objects run concurrently; a failing BeforeCreate hook aborts
// the whole batch before anything is written.
func (c *Controller) CreateObjects(ctx context.Context, p veloxdb.CreateObjectsParams) (_ []veloxdb.Object, err error) {
	defer c.trace("createObjects", p.ClassName, time.Now(), &err)
	ctx, _, cls, err := c.begin(ctx, p.ClassName, privacy.ActionCreate)
	if err != nil {
		return nil, err
	}
	if len(p.Data) == 0 {
		return []veloxdb.Object{}, nil
	}
	data := make([]veloxdb.Object, len(p.Data))
	for i, d := range p.Data {
		d, _, err := c.prepare(ctx, cls, d)
		if err != nil {
			return nil, err
		}
		data[i] = applyPatches(d, nil)
	}
	res, err := c.pipeline.RunOnMultipleObjects(ctx, cls.Name, hook.BeforeCreate, hook.MultiInput{NewData: data})
	if err != nil {
		return nil, err
	}
	errs := make([]error, len(res.NewData))
	for i, d := range res.NewData {
		errs[i] = checkValues(cls, d)
	}
	if err := veloxdb.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	created, err := c.adapter.CreateObjects(ctx, storage.CreateObjectsParams{
		ClassName: cls.Name,
		Data:      res.NewData,
		Fields:    idOnly,
	})
	if err != nil {
		return nil, err
	}
	ids := veloxdb.IDs(created)
	after := make([]veloxdb.Object, len(ids))
	for i, id := range ids {
		after[i] = withID(res.NewData[i], id)
	}
	if _, err := c.pipeline.RunOnMultipleObjects(ctx, cls.Name, hook.AfterCreate, hook.MultiInput{
		IDs:     ids,
		NewData: after,
	}); err != nil {
		return nil, err
	}
	return c.readBack(veloxdb.RootContext(ctx), cls, ids, p.Fields)
}

// withID returns a copy of data carrying id.
func withID(data veloxdb.Object, id string) veloxdb.Object {
	out := data.Clone()
	if out == nil {
		out = veloxdb.Object{}
	}
	out[veloxdb.FieldID] = id
	return out
}

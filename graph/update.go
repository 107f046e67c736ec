package graph

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/syssam/veloxdb"
	"github.com/syssam/veloxdb/hook"
	"github.com/syssam/veloxdb/privacy"
	"github.com/syssam/veloxdb/storage"
)

// UpdateObject patches the object with the given id, if it matches the
// filter and the caller can write it, and returns it with the requested
// fields read back with the caller's access. Without fields it returns nil.
func (c *Controller) UpdateObject(ctx context.Context, p veloxdb.UpdateObjectParams) (_ veloxdb.Object, err error) {
	defer c.trace("updateObject", p.ClassName, time.Now(), &err)
	ctx, oc, cls, err := c.begin(ctx, p.ClassName, privacy.ActionUpdate)
	if err != nil {
		return nil, err
	}
	if err := storage.ValidateID(cls.Name, p.ID); err != nil {
		return nil, err
	}
	where, err := c.expandWhere(ctx, cls, p.Where)
	if err != nil {
		return nil, err
	}
	data, patched, err := c.prepare(ctx, cls, p.Data)
	if err != nil {
		return nil, err
	}
	var current veloxdb.Object
	if patched {
		// Relation add/remove applies to the stored id list.
		if current, err = c.adapter.GetObject(ctx, storage.GetObjectParams{ClassName: cls.Name, ID: p.ID}); err != nil {
			return nil, err
		}
		data = applyPatches(data, current)
	}
	res, err := c.pipeline.RunOnSingleObject(ctx, cls.Name, hook.BeforeUpdate, hook.SingleInput{
		ID:            p.ID,
		NewData:       data,
		Original:      current,
		FetchOriginal: c.pipeline.Has(cls.Name, hook.AfterUpdate),
	})
	if err != nil {
		return nil, err
	}
	if err := checkValues(cls, res.NewData); err != nil {
		return nil, err
	}
	if _, err := c.adapter.UpdateObject(ctx, storage.UpdateObjectParams{
		ClassName: cls.Name,
		ID:        p.ID,
		Where:     privacy.BuildFilterWithACL(where, oc, veloxdb.OpWrite),
		Data:      res.NewData,
		Fields:    idOnly,
	}); err != nil {
		return nil, err
	}
	if _, err := c.pipeline.RunOnSingleObject(ctx, cls.Name, hook.AfterUpdate, hook.SingleInput{
		ID:       p.ID,
		NewData:  res.NewData,
		Original: res.Original,
	}); err != nil {
		return nil, err
	}
	if len(p.Fields) == 0 {
		return nil, nil
	}
	return c.GetObject(ctx, veloxdb.GetObjectParams{
		ClassName: cls.Name,
		ID:        p.ID,
		Fields:    p.Fields,
		SkipHooks: true,
	})
}

// UpdateObjects patches the page of objects matching the filter that the
// caller can write, and returns them with the requested fields read back
// with the caller's access. Without update hooks and relation add/remove
// inputs the patch is a single adapter call; otherwise every matched object
// runs its own hooks and update, and the failures are returned together.
func (c *Controller) UpdateObjects(ctx context.Context, p veloxdb.UpdateObjectsParams) (_ []veloxdb.Object, err error) {
	defer c.trace("updateObjects", p.ClassName, time.Now(), &err)
	ctx, oc, cls, err := c.begin(ctx, p.ClassName, privacy.ActionUpdate)
	if err != nil {
		return nil, err
	}
	if err := checkOrder(cls, p.Order); err != nil {
		return nil, err
	}
	where, err := c.expandWhere(ctx, cls, p.Where)
	if err != nil {
		return nil, err
	}
	data, patched, err := c.prepare(ctx, cls, p.Data)
	if err != nil {
		return nil, err
	}
	where = privacy.BuildFilterWithACL(where, oc, veloxdb.OpWrite)
	hooked := c.pipeline.Has(cls.Name, hook.BeforeUpdate) || c.pipeline.Has(cls.Name, hook.AfterUpdate)
	if !hooked && !patched {
		if err := checkValues(cls, data); err != nil {
			return nil, err
		}
		updated, err := c.adapter.UpdateObjects(ctx, storage.UpdateObjectsParams{
			ClassName: cls.Name,
			Where:     where,
			Data:      data,
			Fields:    idOnly,
			Order:     p.Order,
			Offset:    p.Offset,
			First:     p.First,
		})
		if err != nil {
			return nil, err
		}
		return c.readBack(ctx, cls, veloxdb.IDs(updated), p.Fields)
	}

	matched, err := c.adapter.GetObjects(ctx, storage.GetObjectsParams{
		ClassName: cls.Name,
		Where:     where,
		Order:     p.Order,
		Offset:    p.Offset,
		First:     p.First,
	})
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return []veloxdb.Object{}, nil
	}
	ids := veloxdb.IDs(matched)
	pending := make([]veloxdb.Object, len(matched))
	for i, m := range matched {
		pending[i] = applyPatches(data.Clone(), m)
	}
	res, err := c.pipeline.RunOnMultipleObjects(ctx, cls.Name, hook.BeforeUpdate, hook.MultiInput{
		IDs:       ids,
		NewData:   pending,
		Originals: matched,
	})
	if err != nil {
		return nil, err
	}

	errs := make([]error, len(ids))
	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, id := range ids {
		g.Go(func() error {
			if errs[i] = checkValues(cls, res.NewData[i]); errs[i] != nil {
				return nil
			}
			_, errs[i] = c.adapter.UpdateObject(ctx, storage.UpdateObjectParams{
				ClassName: cls.Name,
				ID:        id,
				Where:     where,
				Data:      res.NewData[i],
				Fields:    idOnly,
			})
			return nil
		})
	}
	_ = g.Wait()
	if err := veloxdb.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	if _, err := c.pipeline.RunOnMultipleObjects(ctx, cls.Name, hook.AfterUpdate, hook.MultiInput{
		IDs:       ids,
		NewData:   res.NewData,
		Originals: matched,
	}); err != nil {
		return nil, err
	}
	return c.readBack(ctx, cls, ids, p.Fields)
}

package graph

import (
	"context"
	"time"

	"github.com/syssam/veloxdb"
	"github.com/syssam/veloxdb/contrib/dataloader"
	"github.com/syssam/veloxdb/filter"
	"github.com/syssam/veloxdb/hook"
	"github.com/syssam/veloxdb/privacy"
	"github.com/syssam/veloxdb/storage"
)

// DeleteObject deletes the object with the given id, if it matches the
// filter and the caller can write it. With fields it returns the object as
// the caller could read it before the delete; otherwise nil.
func (c *Controller) DeleteObject(ctx context.Context, p veloxdb.DeleteObjectParams) (_ veloxdb.Object, err error) {
	defer c.trace("deleteObject", p.ClassName, time.Now(), &err)
	ctx, oc, cls, err := c.begin(ctx, p.ClassName, privacy.ActionDelete)
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
	var before veloxdb.Object
	if len(p.Fields) > 0 {
		before, err = c.GetObject(ctx, veloxdb.GetObjectParams{
			ClassName: cls.Name,
			ID:        p.ID,
			Where:     p.Where,
			Fields:    p.Fields,
			SkipHooks: true,
		})
		if err != nil {
			return nil, err
		}
	}
	if _, err := c.pipeline.RunOnSingleObject(ctx, cls.Name, hook.BeforeDelete, hook.SingleInput{
		ID:      p.ID,
		NewData: veloxdb.Object{},
	}); err != nil {
		return nil, err
	}
	deleted, err := c.adapter.DeleteObject(ctx, storage.DeleteObjectParams{
		ClassName: cls.Name,
		ID:        p.ID,
		Where:     privacy.BuildFilterWithACL(where, oc, veloxdb.OpWrite),
	})
	if err != nil {
		return nil, err
	}
	if _, err := c.pipeline.RunOnSingleObject(ctx, cls.Name, hook.AfterDelete, hook.SingleInput{
		ID:       p.ID,
		NewData:  veloxdb.Object{},
		Original: deleted,
	}); err != nil {
		return nil, err
	}
	return before, nil
}

// DeleteObjects deletes the page of objects matching the filter that the
// caller can write. With fields it returns the deleted objects as the
// caller could read them before the delete; otherwise an empty slice.
func (c *Controller) DeleteObjects(ctx context.Context, p veloxdb.DeleteObjectsParams) (_ []veloxdb.Object, err error) {
	defer c.trace("deleteObjects", p.ClassName, time.Now(), &err)
	ctx, oc, cls, err := c.begin(ctx, p.ClassName, privacy.ActionDelete)
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
	where = privacy.BuildFilterWithACL(where, oc, veloxdb.OpWrite)
	hooked := c.pipeline.Has(cls.Name, hook.BeforeDelete) || c.pipeline.Has(cls.Name, hook.AfterDelete)
	if !hooked && len(p.Fields) == 0 {
		if _, err := c.adapter.DeleteObjects(ctx, storage.DeleteObjectsParams{
			ClassName: cls.Name,
			Where:     where,
			Fields:    idOnly,
			Order:     p.Order,
			Offset:    p.Offset,
			First:     p.First,
		}); err != nil {
			return nil, err
		}
		return []veloxdb.Object{}, nil
	}

	// The page is taken over the objects the caller can write.
	var fields []string
	if !hooked {
		fields = idOnly
	}
	matched, err := c.adapter.GetObjects(ctx, storage.GetObjectsParams{
		ClassName: cls.Name,
		Where:     where,
		Order:     p.Order,
		Fields:    fields,
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
	before, err := c.readBack(ctx, cls, ids, p.Fields)
	if err != nil {
		return nil, err
	}
	if hooked {
		if _, err := c.pipeline.RunOnMultipleObjects(ctx, cls.Name, hook.BeforeDelete, hook.MultiInput{
			IDs:       ids,
			NewData:   empties(len(ids)),
			Originals: matched,
		}); err != nil {
			return nil, err
		}
	}
	deleted, err := c.adapter.DeleteObjects(ctx, storage.DeleteObjectsParams{
		ClassName: cls.Name,
		Where:     filter.AndOf(filter.IDIn(ids), where),
	})
	if err != nil {
		return nil, err
	}
	deletedIDs := veloxdb.IDs(deleted)
	if hooked {
		if _, err := c.pipeline.RunOnMultipleObjects(ctx, cls.Name, hook.AfterDelete, hook.MultiInput{
			IDs:       deletedIDs,
			NewData:   empties(len(deletedIDs)),
			Originals: deleted,
		}); err != nil {
			return nil, err
		}
	}
	// Keep the page order.
	gone := dataloader.Found(ids, deleted, veloxdb.Object.ID)
	return pick(before, veloxdb.IDs(gone)), nil
}

// pick returns the objects of objs whose id is in ids, in ids order.
func pick(objs []veloxdb.Object, ids []string) []veloxdb.Object {
	if len(objs) == 0 || len(ids) == 0 {
		return []veloxdb.Object{}
	}
	return dataloader.Found(ids, objs, veloxdb.Object.ID)
}

func empties(n int) []veloxdb.Object {
	out := make([]veloxdb.Object, n)
	for i := range out {
		out[i] = veloxdb.Object{}
	}
	return out
}

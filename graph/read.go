package graph

import (
	"context"
	"strings"
	"time"

	"github.com/syssam/veloxdb"
	"github.com/syssam/veloxdb/contrib/dataloader"
	"github.com/syssam/veloxdb/filter"
	"github.com/syssam/veloxdb/hook"
	"github.com/syssam/veloxdb/privacy"
	"github.com/syssam/veloxdb/schema"
	"github.com/syssam/veloxdb/storage"
)

// Count returns the number of objects of the class matching the filter
// that the caller can read.
func (c *Controller) Count(ctx context.Context, p veloxdb.CountParams) (_ int, err error) {
	defer c.trace("count", p.ClassName, time.Now(), &err)
	ctx, oc, cls, err := c.begin(ctx, p.ClassName, privacy.ActionCount)
	if err != nil {
		return 0, err
	}
	where, err := c.expandWhere(ctx, cls, p.Where)
	if err != nil {
		return 0, err
	}
	return c.adapter.Count(ctx, storage.CountParams{
		ClassName: cls.Name,
		Where:     privacy.BuildFilterWithACL(where, oc, veloxdb.OpRead),
	})
}

// GetObject returns the object with the given id, if it matches the filter
// and the caller can read it. Requested pointer and relation paths are
// resolved with the caller's access.
func (c *Controller) GetObject(ctx context.Context, p veloxdb.GetObjectParams) (_ veloxdb.Object, err error) {
	defer c.trace("getObject", p.ClassName, time.Now(), &err)
	ctx, oc, cls, err := c.begin(ctx, p.ClassName, privacy.ActionGet)
	if err != nil {
		return nil, err
	}
	if err := storage.ValidateID(cls.Name, p.ID); err != nil {
		return nil, err
	}
	if err := c.beforeRead(ctx, cls, p.ID, p.SkipHooks); err != nil {
		return nil, err
	}
	own, groups, err := splitRequestedFields(cls, p.Fields)
	if err != nil {
		return nil, err
	}
	where, err := c.expandWhere(ctx, cls, p.Where)
	if err != nil {
		return nil, err
	}
	obj, err := c.adapter.GetObject(ctx, storage.GetObjectParams{
		ClassName: cls.Name,
		ID:        p.ID,
		Where:     privacy.BuildFilterWithACL(where, oc, veloxdb.OpRead),
		Fields:    own,
	})
	if err != nil {
		return nil, err
	}
	objs := []veloxdb.Object{obj}
	if err := c.afterRead(ctx, cls, objs, p.SkipHooks); err != nil {
		return nil, err
	}
	if err := c.stitch(ctx, objs, groups); err != nil {
		return nil, err
	}
	return obj, nil
}

// GetObjects returns a page of the objects of the class matching the
// filter that the caller can read.
func (c *Controller) GetObjects(ctx context.Context, p veloxdb.GetObjectsParams) (_ []veloxdb.Object, err error) {
	defer c.trace("getObjects", p.ClassName, time.Now(), &err)
	ctx, oc, cls, err := c.begin(ctx, p.ClassName, privacy.ActionFind)
	if err != nil {
		return nil, err
	}
	if err := checkOrder(cls, p.Order); err != nil {
		return nil, err
	}
	if err := c.beforeRead(ctx, cls, "", p.SkipHooks); err != nil {
		return nil, err
	}
	own, groups, err := splitRequestedFields(cls, p.Fields)
	if err != nil {
		return nil, err
	}
	where, err := c.expandWhere(ctx, cls, p.Where)
	if err != nil {
		return nil, err
	}
	objs, err := c.adapter.GetObjects(ctx, storage.GetObjectsParams{
		ClassName: cls.Name,
		Where:     privacy.BuildFilterWithACL(where, oc, veloxdb.OpRead),
		Order:     p.Order,
		Fields:    own,
		Offset:    p.Offset,
		First:     p.First,
	})
	if err != nil {
		return nil, err
	}
	if objs == nil {
		objs = []veloxdb.Object{}
	}
	if err := c.afterRead(ctx, cls, objs, p.SkipHooks); err != nil {
		return nil, err
	}
	if err := c.stitch(ctx, objs, groups); err != nil {
		return nil, err
	}
	return objs, nil
}

func (c *Controller) beforeRead(ctx context.Context, cls *schema.Class, id string, skip bool) error {
	if skip {
		return nil
	}
	_, err := c.pipeline.RunOnSingleObject(ctx, cls.Name, hook.BeforeRead, hook.SingleInput{
		ID:      id,
		NewData: veloxdb.Object{},
	})
	return err
}

// afterRead hands a copy of the loaded objects to the AfterRead hooks.
func (c *Controller) afterRead(ctx context.Context, cls *schema.Class, objs []veloxdb.Object, skip bool) error {
	if skip || len(objs) == 0 || !c.pipeline.Has(cls.Name, hook.AfterRead) {
		return nil
	}
	copies := make([]veloxdb.Object, len(objs))
	for i, o := range objs {
		copies[i] = o.Clone()
	}
	_, err := c.pipeline.RunOnMultipleObjects(ctx, cls.Name, hook.AfterRead, hook.MultiInput{
		IDs:     veloxdb.IDs(objs),
		NewData: copies,
	})
	return err
}

// readBack returns the objects with the given ids in that order, with the
// requested fields. It returns an empty slice when no field is requested.
func (c *Controller) readBack(ctx context.Context, cls *schema.Class, ids []string, fields []string) ([]veloxdb.Object, error) {
	if len(fields) == 0 || len(ids) == 0 {
		return []veloxdb.Object{}, nil
	}
	objs, err := c.GetObjects(ctx, veloxdb.GetObjectsParams{
		ClassName: cls.Name,
		Where:     filter.IDIn(ids),
		Fields:    fields,
		SkipHooks: true,
	})
	if err != nil {
		return nil, err
	}
	return dataloader.Found(ids, objs, veloxdb.Object.ID), nil
}

func checkOrder(cls *schema.Class, order []veloxdb.Order) error {
	for _, o := range order {
		head, _, _ := strings.Cut(o.Field, ".")
		if !cls.HasField(head) {
			return veloxdb.NewSchemaError(cls.Name, o.Field, "unknown order field")
		}
	}
	return nil
}

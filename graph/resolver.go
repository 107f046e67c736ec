package graph

import (
	"context"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/syssam/veloxdb"
	"github.com/syssam/veloxdb/contrib/dataloader"
	"github.com/syssam/veloxdb/filter"
	"github.com/syssam/veloxdb/schema"
)

// group is a pointer or relation field to resolve, with the fields
// requested from its target class.
type group struct {
	field  *schema.Field
	fields []string
}

// splitRequestedFields splits a requested field list into the fields to
// load from the class and the references to resolve. Dotted paths are
// grouped by their first segment, which is always loaded. A bare reference
// name loads the stored id(s) without resolving them.
func splitRequestedFields(cls *schema.Class, fields []string) ([]string, []group, error) {
	if len(fields) == 0 {
		return nil, nil, nil
	}
	var (
		own    []string
		groups []group
		index  = make(map[string]int)
	)
	for _, path := range fields {
		head, rest, dotted := strings.Cut(path, ".")
		if head == veloxdb.FieldID {
			continue
		}
		f, ok := cls.Field(head)
		if !ok {
			return nil, nil, veloxdb.NewSchemaError(cls.Name, head, "unknown field")
		}
		if !slices.Contains(own, head) {
			own = append(own, head)
		}
		if !dotted || !f.IsReference() {
			continue
		}
		if rest == "" {
			return nil, nil, veloxdb.NewSchemaError(cls.Name, path, "empty field path")
		}
		i, ok := index[head]
		if !ok {
			i = len(groups)
			index[head] = i
			groups = append(groups, group{field: f})
		}
		if !slices.Contains(groups[i].fields, rest) {
			groups[i].fields = append(groups[i].fields, rest)
		}
	}
	if len(own) == 0 {
		// Only the id was asked for.
		own = []string{veloxdb.FieldID}
	}
	return own, groups, nil
}

// stitch replaces the references of objs named by groups with the objects
// they point to, read through the controller with the caller's context.
// A pointer the caller cannot see becomes nil; a relation keeps the visible
// objects in stored order, as a *veloxdb.Connection.
func (c *Controller) stitch(ctx context.Context, objs []veloxdb.Object, groups []group) error {
	if len(groups) == 0 || len(objs) == 0 {
		return nil
	}
	resolved := make([][]veloxdb.Object, len(groups))
	g, ctx := errgroup.WithContext(ctx)
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, gr := range groups {
		lists := make([][]string, len(objs))
		for j, o := range objs {
			lists[j] = refIDs(o[gr.field.Name])
		}
		ids := dataloader.UniqueKeys(lists...)
		if len(ids) == 0 {
			continue
		}
		g.Go(func() error {
			nodes, err := c.GetObjects(ctx, veloxdb.GetObjectsParams{
				ClassName: gr.field.Class,
				Where:     filter.IDIn(ids),
				Fields:    gr.fields,
			})
			if err != nil {
				return err
			}
			resolved[i] = nodes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, gr := range groups {
		name := gr.field.Name
		for _, o := range objs {
			raw, ok := o[name]
			if !ok || raw == nil {
				continue
			}
			nodes := dataloader.Found(refIDs(raw), resolved[i], veloxdb.Object.ID)
			for j, n := range nodes {
				nodes[j] = n.Clone()
			}
			switch gr.field.Kind {
			case schema.KindPointer:
				if len(nodes) == 1 {
					o[name] = nodes[0]
				} else {
					o[name] = nil
				}
			case schema.KindRelation:
				o[name] = veloxdb.NewConnection(nodes)
			}
		}
	}
	return nil
}

// refIDs returns the ids stored in a pointer or relation value.
func refIDs(v any) []string {
	switch v := v.(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case []string:
		return v
	}
	var ids []string
	for _, e := range filter.List(v) {
		if id, ok := e.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// expandWhere rewrites the filters of cls that reach into referenced
// classes into id filters: a Ref node, or a leaf whose dotted path starts
// with a pointer or relation field, becomes "field in [ids]" where ids are
// the objects of the target class matching the sub-filter and visible to
// the caller. Leaves naming unknown fields are rejected.
func (c *Controller) expandWhere(ctx context.Context, cls *schema.Class, where filter.Tree) (filter.Tree, error) {
	if where == nil {
		return nil, nil
	}
	if err := filter.Validate(where); err != nil {
		return nil, veloxdb.NewSchemaError(cls.Name, "", err.Error())
	}
	return filter.Transform(where, func(t filter.Tree) (filter.Tree, error) {
		switch n := t.(type) {
		case filter.Ref:
			f, err := c.reference(cls, n.Field)
			if err != nil {
				return nil, err
			}
			return c.matchingIDs(ctx, f, n.Field, n.Where)
		case filter.Leaf:
			head, rest, dotted := strings.Cut(n.Field, ".")
			if !cls.HasField(head) {
				return nil, veloxdb.NewSchemaError(cls.Name, head, "unknown field")
			}
			f, ok := cls.Field(head)
			if !dotted || !ok || !f.IsReference() || rest == veloxdb.FieldID {
				if dotted && ok && f.IsReference() {
					// "owner.id" is the stored id itself.
					n.Field = head
				}
				return n, nil
			}
			return c.matchingIDs(ctx, f, head, filter.Leaf{Field: rest, Op: n.Op, Value: n.Value})
		case filter.ElemMatch:
			if head, _, _ := strings.Cut(n.Field, "."); !cls.HasField(head) {
				return nil, veloxdb.NewSchemaError(cls.Name, head, "unknown field")
			}
		}
		return t, nil
	})
}

func (c *Controller) reference(cls *schema.Class, name string) (*schema.Field, error) {
	f, ok := cls.Field(name)
	if !ok {
		return nil, veloxdb.NewSchemaError(cls.Name, name, "unknown field")
	}
	if !f.IsReference() {
		return nil, veloxdb.NewSchemaError(cls.Name, name, "not a pointer or relation")
	}
	return f, nil
}

// matchingIDs returns "field in [ids]" for the objects of f's target class
// matching where.
func (c *Controller) matchingIDs(ctx context.Context, f *schema.Field, field string, where filter.Tree) (filter.Tree, error) {
	objs, err := c.GetObjects(ctx, veloxdb.GetObjectsParams{
		ClassName: f.Class,
		Where:     where,
		Fields:    idOnly,
		SkipHooks: true,
	})
	if err != nil {
		return nil, err
	}
	return filter.InStrings(field, veloxdb.IDs(objs)), nil
}

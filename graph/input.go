package graph

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/veloxdb"
	"github.com/syssam/veloxdb/filter"
	"github.com/syssam/veloxdb/privacy"
	"github.com/syssam/veloxdb/schema"
)

// Keys of the pointer and relation mutation inputs.
const (
	InputLink          = "link"
	InputUnlink        = "unlink"
	InputCreateAndLink = "createAndLink"
	InputAdd           = "add"
	InputRemove        = "remove"
	InputCreateAndAdd  = "createAndAdd"
)

// relationPatch is an add/remove input of a relation field, applied to the
// stored id list once it is known.
type relationPatch struct {
	add    []string
	remove []string
}

// apply returns ids with the patch applied, keeping the stored order and
// appending new ids at the end.
func (r *relationPatch) apply(ids []string) []any {
	out := make([]any, 0, len(ids)+len(r.add))
	seen := make(map[string]struct{}, len(ids)+len(r.add))
	for _, id := range append(slices.Clone(ids), r.add...) {
		if _, ok := seen[id]; ok || slices.Contains(r.remove, id) {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// prepare returns a copy of the mutation data of cls with the pointer and
// relation inputs normalised: links become ids, nested objects are created
// through the controller with the caller's context, and add/remove inputs
// become relation patches. It reports whether any patch is left to apply.
func (c *Controller) prepare(ctx context.Context, cls *schema.Class, data veloxdb.Object) (veloxdb.Object, bool, error) {
	data = data.Clone()
	if data == nil {
		data = veloxdb.Object{}
	}
	if err := checkFields(cls, data); err != nil {
		return nil, false, err
	}
	if err := privacy.NormalizeACL(data); err != nil {
		return nil, false, veloxdb.NewValidationError(veloxdb.FieldACL, err)
	}
	var patched bool
	for _, f := range cls.References() {
		v, ok := data[f.Name]
		if !ok {
			continue
		}
		var err error
		switch f.Kind {
		case schema.KindPointer:
			data[f.Name], err = c.pointerInput(ctx, f, v)
		case schema.KindRelation:
			data[f.Name], err = c.relationInput(ctx, f, v)
			if _, ok := data[f.Name].(*relationPatch); ok {
				patched = true
			}
		}
		if err != nil {
			return nil, false, err
		}
	}
	return data, patched, nil
}

func (c *Controller) pointerInput(ctx context.Context, f *schema.Field, v any) (any, error) {
	switch v := v.(type) {
	case nil, string:
		return v, nil
	}
	m, ok := asMap(v)
	if !ok || len(m) != 1 {
		return nil, veloxdb.NewValidationError(f.Name, fmt.Errorf("expected an id or one of %s, %s, %s", InputLink, InputCreateAndLink, InputUnlink))
	}
	switch {
	case m[InputLink] != nil:
		id, ok := m[InputLink].(string)
		if !ok {
			return nil, veloxdb.NewValidationError(f.Name, fmt.Errorf("%s expects an id, got %T", InputLink, m[InputLink]))
		}
		return id, nil
	case m[InputCreateAndLink] != nil:
		in, ok := asMap(m[InputCreateAndLink])
		if !ok {
			return nil, veloxdb.NewValidationError(f.Name, fmt.Errorf("%s expects an object, got %T", InputCreateAndLink, m[InputCreateAndLink]))
		}
		ids, err := c.createNested(ctx, f.Class, []veloxdb.Object{in})
		if err != nil {
			return nil, err
		}
		return ids[0], nil
	case m[InputUnlink] != nil:
		return nil, nil
	}
	return nil, veloxdb.NewValidationError(f.Name, fmt.Errorf("unknown pointer input %v", keys(m)))
}

func (c *Controller) relationInput(ctx context.Context, f *schema.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := asMap(v)
	if !ok {
		ids, err := idList(f, "", v)
		if err != nil {
			return nil, err
		}
		return (&relationPatch{}).apply(ids), nil
	}
	for k := range m {
		if k != InputAdd && k != InputRemove && k != InputCreateAndAdd {
			return nil, veloxdb.NewValidationError(f.Name, fmt.Errorf("unknown relation input %q", k))
		}
	}
	patch := &relationPatch{}
	add, err := idList(f, InputAdd, m[InputAdd])
	if err != nil {
		return nil, err
	}
	patch.add = append(patch.add, add...)
	var objs []veloxdb.Object
	for _, e := range filter.List(m[InputCreateAndAdd]) {
		o, ok := asMap(e)
		if !ok {
			return nil, veloxdb.NewValidationError(f.Name, fmt.Errorf("%s expects objects, got %T", InputCreateAndAdd, e))
		}
		objs = append(objs, o)
	}
	created, err := c.createNested(ctx, f.Class, objs)
	if err != nil {
		return nil, err
	}
	patch.add = append(patch.add, created...)
	if patch.remove, err = idList(f, InputRemove, m[InputRemove]); err != nil {
		return nil, err
	}
	return patch, nil
}

// createNested creates objs in class through the controller and returns
// their ids in order.
func (c *Controller) createNested(ctx context.Context, class string, objs []veloxdb.Object) ([]string, error) {
	ids := make([]string, 0, len(objs))
	for _, o := range objs {
		created, err := c.CreateObject(ctx, veloxdb.CreateObjectParams{
			ClassName: class,
			Data:      o,
			Fields:    idOnly,
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, created.ID())
	}
	return ids, nil
}

// applyPatches replaces the relation patches of data with the id lists
// they produce over current, the stored object (nil on create).
func applyPatches(data, current veloxdb.Object) veloxdb.Object {
	for k, v := range data {
		if p, ok := v.(*relationPatch); ok {
			data[k] = p.apply(refIDs(current[k]))
		}
	}
	return data
}

// checkFields rejects the id and the fields cls does not declare.
func checkFields(cls *schema.Class, data veloxdb.Object) error {
	for k := range data {
		if k == veloxdb.FieldID {
			return veloxdb.NewSchemaError(cls.Name, k, "id cannot be set")
		}
		if !cls.HasField(k) {
			return veloxdb.NewSchemaError(cls.Name, k, "unknown field")
		}
	}
	return nil
}

// checkValues validates data against cls right before it is written.
func checkValues(cls *schema.Class, data veloxdb.Object) error {
	if err := checkFields(cls, data); err != nil {
		return err
	}
	for _, f := range cls.Fields {
		v, ok := data[f.Name]
		if !ok {
			continue
		}
		if err := f.Check(v); err != nil {
			return veloxdb.NewValidationError(f.Name, err)
		}
	}
	return nil
}

func idList(f *schema.Field, input string, v any) ([]string, error) {
	if s, ok := v.([]string); ok {
		return s, nil
	}
	if v == nil {
		return nil, nil
	}
	if _, ok := v.(string); ok {
		return nil, veloxdb.NewValidationError(f.Name, fmt.Errorf("expected a list of ids, got %T", v))
	}
	list := filter.List(v)
	ids := make([]string, 0, len(list))
	for _, e := range list {
		id, ok := e.(string)
		if !ok {
			if input != "" {
				return nil, veloxdb.NewValidationError(f.Name, fmt.Errorf("%s expects ids, got %T", input, e))
			}
			return nil, veloxdb.NewValidationError(f.Name, fmt.Errorf("expected a list of ids, got element %T", e))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case veloxdb.Object:
		return m, true
	case map[string]any:
		return m, true
	}
	return nil, false
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

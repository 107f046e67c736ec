package veloxdb

import (
	"context"

	"github.com/syssam/veloxdb/filter"
)

// Controller is the public surface of the object graph controller. Hooks
// reach it through OperationContext.Controller to issue nested operations;
// those run their own ACL filtering and hook pipelines.
//
// Field lists accept dotted paths ("owner.name") to resolve pointers and
// relations. For reads an empty list returns every stored field. For
// mutations an empty list skips the read-back and yields a nil object (or an
// empty slice for the batch forms).
type Controller interface {
	Count(ctx context.Context, p CountParams) (int, error)
	GetObject(ctx context.Context, p GetObjectParams) (Object, error)
	GetObjects(ctx context.Context, p GetObjectsParams) ([]Object, error)
	CreateObject(ctx context.Context, p CreateObjectParams) (Object, error)
	CreateObjects(ctx context.Context, p CreateObjectsParams) ([]Object, error)
	UpdateObject(ctx context.Context, p UpdateObjectParams) (Object, error)
	UpdateObjects(ctx context.Context, p UpdateObjectsParams) ([]Object, error)
	DeleteObject(ctx context.Context, p DeleteObjectParams) (Object, error)
	DeleteObjects(ctx context.Context, p DeleteObjectsParams) ([]Object, error)
}

// CountParams are the parameters of Controller.Count.
type CountParams struct {
	ClassName string
	Where     filter.Tree
}

// GetObjectParams are the parameters of Controller.GetObject.
type GetObjectParams struct {
	ClassName string
	ID        string
	Where     filter.Tree
	Fields    []string
	// SkipHooks disables the BeforeRead/AfterRead phases.
	SkipHooks bool
}

// GetObjectsParams are the parameters of Controller.GetObjects.
type GetObjectsParams struct {
	ClassName string
	Where     filter.Tree
	Order     []Order
	Fields    []string
	Offset    int
	First     int // 0 means no limit
	SkipHooks bool
}

// CreateObjectParams are the parameters of Controller.CreateObject.
type CreateObjectParams struct {
	ClassName string
	Data      Object
	Fields    []string
}

// CreateObjectsParams are the parameters of Controller.CreateObjects.
type CreateObjectsParams struct {
	ClassName string
	Data      []Object
	Fields    []string
}

// UpdateObjectParams are the parameters of Controller.UpdateObject.
type UpdateObjectParams struct {
	ClassName string
	ID        string
	Where     filter.Tree
	Data      Object
	Fields    []string
}

// UpdateObjectsParams are the parameters of Controller.UpdateObjects.
type UpdateObjectsParams struct {
	ClassName string
	Where     filter.Tree
	Data      Object
	Fields    []string
	Order     []Order
	Offset    int
	First     int
}

// DeleteObjectParams are the parameters of Controller.DeleteObject.
type DeleteObjectParams struct {
	ClassName string
	ID        string
	Where     filter.Tree
	Fields    []string
}

// DeleteObjectsParams are the parameters of Controller.DeleteObjects.
type DeleteObjectsParams struct {
	ClassName string
	Where     filter.Tree
	Fields    []string
	Order     []Order
	Offset    int
	First     int
}

// Package storage defines the contract between the object graph controller
// and a concrete document store, plus the in-process query evaluation shared
// by adapters that cannot push a filter tree down to their engine.
//
// Adapters receive filters that are already ACL-augmented and free of Ref
// nodes. They never consult the OperationContext.
package storage

import (
	"context"

	"github.com/syssam/veloxdb"
	"github.com/syssam/veloxdb/filter"
	"github.com/syssam/veloxdb/schema"
)

// Adapter executes primitive operations against a store.
//
// GetObject, UpdateObject and DeleteObject return a *veloxdb.NotFoundError
// when id and filter match nothing. Returned objects always carry "id" and
// are projected onto Fields; an empty Fields returns every stored field.
// Update data is a patch: absent keys are kept, nil values clear the field.
type Adapter interface {
	Connect(ctx context.Context) error
	Close() error
	CreateClassIfNotExist(ctx context.Context, class *schema.Class) error
	ClearDatabase(ctx context.Context) error

	Count(ctx context.Context, p CountParams) (int, error)
	GetObject(ctx context.Context, p GetObjectParams) (veloxdb.Object, error)
	GetObjects(ctx context.Context, p GetObjectsParams) ([]veloxdb.Object, error)
	CreateObject(ctx context.Context, p CreateObjectParams) (veloxdb.Object, error)
	CreateObjects(ctx context.Context, p CreateObjectsParams) ([]veloxdb.Object, error)
	UpdateObject(ctx context.Context, p UpdateObjectParams) (veloxdb.Object, error)
	UpdateObjects(ctx context.Context, p UpdateObjectsParams) ([]veloxdb.Object, error)
	DeleteObject(ctx context.Context, p DeleteObjectParams) (veloxdb.Object, error)
	DeleteObjects(ctx context.Context, p DeleteObjectsParams) ([]veloxdb.Object, error)
}

// CountParams are the parameters of Adapter.Count.
type CountParams struct {
	ClassName string
	Where     filter.Tree
}

// GetObjectParams are the parameters of Adapter.GetObject.
type GetObjectParams struct {
	ClassName string
	ID        string
	Where     filter.Tree
	Fields    []string
}

// GetObjectsParams are the parameters of Adapter.GetObjects.
type GetObjectsParams struct {
	ClassName string
	Where     filter.Tree
	Order     []veloxdb.Order
	Fields    []string
	Offset    int
	First     int
}

// CreateObjectParams are the parameters of Adapter.CreateObject.
type CreateObjectParams struct {
	ClassName string
	Data      veloxdb.Object
	Fields    []string
}

// CreateObjectsParams are the parameters of Adapter.CreateObjects.
type CreateObjectsParams struct {
	ClassName string
	Data      []veloxdb.Object
	Fields    []string
}

// UpdateObjectParams are the parameters of Adapter.UpdateObject.
type UpdateObjectParams struct {
	ClassName string
	ID        string
	Where     filter.Tree
	Data      veloxdb.Object
	Fields    []string
}

// UpdateObjectsParams are the parameters of Adapter.UpdateObjects.
type UpdateObjectsParams struct {
	ClassName string
	Where     filter.Tree
	Data      veloxdb.Object
	Fields    []string
	Order     []veloxdb.Order
	Offset    int
	First     int
}

// DeleteObjectParams are the parameters of Adapter.DeleteObject.
type DeleteObjectParams struct {
	ClassName string
	ID        string
	Where     filter.Tree
	Fields    []string
}

// DeleteObjectsParams are the parameters of Adapter.DeleteObjects.
type DeleteObjectsParams struct {
	ClassName string
	Where     filter.Tree
	Fields    []string
	Order     []veloxdb.Order
	Offset    int
	First     int
}

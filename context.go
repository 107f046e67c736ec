package veloxdb

import (
	"context"

	"github.com/syssam/veloxdb/schema"
)

// Operation is the access kind an ACL clause is built for.
type Operation string

// Access kinds. Reads (get, list, count) use OpRead; updates and deletes use OpWrite.
const (
	OpRead  Operation = "read"
	OpWrite Operation = "write"
)

// Role identifies the role of an authenticated principal.
type Role struct {
	ID string
}

// User identifies an authenticated principal.
type User struct {
	ID   string
	Role *Role
}

// OperationContext describes who is calling. It is built once per request,
// never persisted, and never modified by the controller; derived contexts
// (such as the root context used for read-backs) are copies.
type OperationContext struct {
	// IsRoot bypasses row-level and class-level permission checks.
	IsRoot bool
	// User is the authenticated principal, nil for anonymous requests.
	User *User
	// Controller lets hooks issue nested operations.
	Controller Controller
	// Schema is the loaded schema shared by every operation.
	Schema *schema.Schema
}

// UserID returns the authenticated user id, or "".
func (oc *OperationContext) UserID() string {
	if oc == nil || oc.User == nil {
		return ""
	}
	return oc.User.ID
}

// RoleID returns the authenticated user's role id, or "".
func (oc *OperationContext) RoleID() string {
	if oc == nil || oc.User == nil || oc.User.Role == nil {
		return ""
	}
	return oc.User.Role.ID
}

// AsRoot returns a copy of oc with root access.
func (oc *OperationContext) AsRoot() *OperationContext {
	c := oc.copy()
	c.IsRoot = true
	return c
}

// WithController returns a copy of oc bound to the given controller and schema.
func (oc *OperationContext) WithController(c Controller, s *schema.Schema) *OperationContext {
	cp := oc.copy()
	cp.Controller = c
	cp.Schema = s
	return cp
}

func (oc *OperationContext) copy() *OperationContext {
	if oc == nil {
		return &OperationContext{}
	}
	cp := *oc
	return &cp
}

// ctxKey is the context key for storing the operation context.
type ctxKey struct{}

// NewContext returns a new context carrying oc.
func NewContext(parent context.Context, oc *OperationContext) context.Context {
	return context.WithValue(parent, ctxKey{}, oc)
}

// FromContext returns the operation context carried by ctx. A context without
// one yields an anonymous, non-root operation context.
func FromContext(ctx context.Context) *OperationContext {
	if oc, ok := ctx.Value(ctxKey{}).(*OperationContext); ok && oc != nil {
		return oc
	}
	return &OperationContext{}
}

// RootContext returns a context carrying a root operation context derived
// from the one already in ctx.
func RootContext(ctx context.Context) context.Context {
	return NewContext(ctx, FromContext(ctx).AsRoot())
}

// UserContext returns a context carrying a non-root operation context for
// the given user and optional role.
func UserContext(ctx context.Context, userID, roleID string) context.Context {
	u := &User{ID: userID}
	if roleID != "" {
		u.Role = &Role{ID: roleID}
	}
	oc := FromContext(ctx).copy()
	oc.IsRoot = false
	oc.User = u
	return NewContext(ctx, oc)
}

// Package mixin provides the default hooks every controller runs before the
// user's own.
//
// These hooks are registered with negative priorities, so user hooks of the
// same phase observe their effects:
//
//   - DefaultValues: fills missing fields with their schema default on create
//   - Timestamps: maintains createdAt and updatedAt for classes declaring them
//   - Required: rejects creates and updates leaving a required field empty
//
// Usage:
//
//	import "github.com/syssam/veloxdb/contrib/mixin"
//
//	regs := append(mixin.DefaultHooks(sch), myHooks...)
//	ctrl := graph.New(adapter, sch, graph.WithHooks(regs...))
//
// graph.New registers DefaultHooks itself unless graph.WithoutDefaultHooks
// is given.
package mixin

import (
	"context"
	"errors"
	"time"

	"github.com/syssam/veloxdb"
	"github.com/syssam/veloxdb/hook"
	"github.com/syssam/veloxdb/schema"
)

// Priorities of the default hooks.
const (
	PriorityDefaultValues = -300
	PriorityTimestamps    = -200
	PriorityRequired      = -100
)

// ErrRequired is the error wrapped by the ValidationError of a missing
// required field.
var ErrRequired = errors.New("missing required value")

type options struct {
	now func() time.Time
}

// Option configures the default hooks.
type Option func(*options)

// WithClock sets the clock of the Timestamps hooks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// DefaultHooks returns the DefaultValues, Timestamps and Required hooks of s.
func DefaultHooks(s *schema.Schema, opts ...Option) []hook.Registration {
	regs := []hook.Registration{DefaultValues(s)}
	regs = append(regs, Timestamps(s, opts...)...)
	return append(regs, Required(s)...)
}

// DefaultValues returns a BeforeCreate hook setting every missing field
// that declares a default.
func DefaultValues(s *schema.Schema) hook.Registration {
	return hook.Registration{
		Phase:    hook.BeforeCreate,
		Priority: PriorityDefaultValues,
		Callback: func(_ context.Context, obj *hook.Object) error {
			c, ok := s.Class(obj.ClassName)
			if !ok {
				return nil
			}
			for _, f := range c.Fields {
				if f.Default == nil || obj.Has(f.Name) {
					continue
				}
				obj.Set(f.Name, veloxdb.Object{f.Name: f.Default}.Clone()[f.Name])
			}
			return nil
		},
	}
}

// Timestamps returns the BeforeCreate and BeforeUpdate hooks maintaining
// the createdAt and updatedAt fields of the classes declaring them.
// createdAt cannot be changed by updates.
func Timestamps(s *schema.Schema, opts ...Option) []hook.Registration {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	stamp := func(create bool) hook.Callback {
		return func(_ context.Context, obj *hook.Object) error {
			c, ok := s.Class(obj.ClassName)
			if !ok {
				return nil
			}
			now := o.now().UTC()
			if _, ok := c.Field(schema.FieldCreatedAt); ok {
				if create {
					obj.Set(schema.FieldCreatedAt, now)
				} else {
					obj.Unset(schema.FieldCreatedAt)
				}
			}
			if _, ok := c.Field(schema.FieldUpdatedAt); ok {
				obj.Set(schema.FieldUpdatedAt, now)
			}
			return nil
		}
	}
	return []hook.Registration{
		{Phase: hook.BeforeCreate, Priority: PriorityTimestamps, Callback: stamp(true)},
		{Phase: hook.BeforeUpdate, Priority: PriorityTimestamps, Callback: stamp(false)},
	}
}

// Required returns the BeforeCreate and BeforeUpdate hooks rejecting a
// required field that is missing on create or set to null.
func Required(s *schema.Schema) []hook.Registration {
	check := func(create bool) hook.Callback {
		return func(_ context.Context, obj *hook.Object) error {
			c, ok := s.Class(obj.ClassName)
			if !ok {
				return nil
			}
			for _, f := range c.Fields {
				if !f.Required {
					continue
				}
				v, set := obj.Data[f.Name]
				if (create && !set) || (set && v == nil) {
					return veloxdb.NewValidationError(f.Name, ErrRequired)
				}
			}
			return nil
		}
	}
	return []hook.Registration{
		{Phase: hook.BeforeCreate, Priority: PriorityRequired, Callback: check(true)},
		{Phase: hook.BeforeUpdate, Priority: PriorityRequired, Callback: check(false)},
	}
}

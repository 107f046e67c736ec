// Package hook provides the mutation and read hook registry of the controller
// and the pipeline running it.
//
// Hooks are registered once, up front:
//
//	reg := hook.NewRegistry(
//	    hook.Registration{
//	        ClassName: "Post",
//	        Phase:     hook.BeforeCreate,
//	        Callback: func(ctx context.Context, obj *hook.Object) error {
//	            obj.Set("slug", slugify(obj.Get("title")))
//	            return nil
//	        },
//	    },
//	)
//
// Callbacks of the same class and phase run sequentially in ascending
// priority order, ties in registration order. Before hooks may edit the
// pending data; after hooks observe the outcome and may issue further
// operations through obj.Controller(ctx).
package hook

import (
	"cmp"
	"context"
	"slices"
)

// Phase is the point of an operation a hook runs at.
type Phase string

// Hook phases.
const (
	BeforeCreate Phase = "beforeCreate"
	AfterCreate  Phase = "afterCreate"
	BeforeUpdate Phase = "beforeUpdate"
	AfterUpdate  Phase = "afterUpdate"
	BeforeDelete Phase = "beforeDelete"
	AfterDelete  Phase = "afterDelete"
	BeforeRead   Phase = "beforeRead"
	AfterRead    Phase = "afterRead"
)

// Phases lists every phase.
var Phases = []Phase{
	BeforeCreate, AfterCreate,
	BeforeUpdate, AfterUpdate,
	BeforeDelete, AfterDelete,
	BeforeRead, AfterRead,
}

// Valid reports if the phase is known.
func (p Phase) Valid() bool {
	return slices.Contains(Phases, p)
}

// String implements fmt.Stringer.
func (p Phase) String() string { return string(p) }

// Reads reports whether the phase belongs to a read. Read phases never load
// a snapshot: it would bypass the caller's read access.
func (p Phase) Reads() bool {
	return p == BeforeRead || p == AfterRead
}

// Callback is the function of a hook.
type Callback func(ctx context.Context, obj *Object) error

// Registration binds a callback to a class and phase. An empty ClassName
// registers the hook for every class.
type Registration struct {
	ClassName string
	Phase     Phase
	// Priority orders the callbacks of a phase, lower first.
	Priority int
	Callback Callback
}

type key struct {
	class string
	phase Phase
}

type entry struct {
	Registration
	seq int
}

// Registry holds the registered hooks. It is immutable once built and safe
// for concurrent use.
type Registry struct {
	entries []entry
	byKey   map[key][]entry
}

// NewRegistry returns a registry holding regs. Registrations without a
// callback or with an unknown phase are ignored.
func NewRegistry(regs ...Registration) *Registry {
	r := &Registry{byKey: make(map[key][]entry)}
	for _, reg := range regs {
		if reg.Callback == nil || !reg.Phase.Valid() {
			continue
		}
		e := entry{Registration: reg, seq: len(r.entries)}
		r.entries = append(r.entries, e)
		k := key{reg.ClassName, reg.Phase}
		r.byKey[k] = append(r.byKey[k], e)
	}
	for _, es := range r.byKey {
		slices.SortStableFunc(es, func(a, b entry) int {
			return cmp.Compare(a.Priority, b.Priority)
		})
	}
	return r
}

// With returns a new registry holding the registrations of r followed by regs.
func (r *Registry) With(regs ...Registration) *Registry {
	all := r.Registrations()
	return NewRegistry(append(all, regs...)...)
}

// Registrations returns the registrations in registration order.
func (r *Registry) Registrations() []Registration {
	if r == nil {
		return nil
	}
	regs := make([]Registration, len(r.entries))
	for i, e := range r.entries {
		regs[i] = e.Registration
	}
	return regs
}

// Lookup returns the callbacks to run for class and phase, class specific
// and global ones merged by priority, then registration order.
func (r *Registry) Lookup(class string, phase Phase) []Callback {
	if r == nil {
		return nil
	}
	own, all := r.byKey[key{class, phase}], r.byKey[key{"", phase}]
	if class == "" {
		own = nil
	}
	out := make([]Callback, 0, len(own)+len(all))
	i, j := 0, 0
	for i < len(own) || j < len(all) {
		switch {
		case j == len(all) || (i < len(own) && before(own[i], all[j])):
			out = append(out, own[i].Callback)
			i++
		default:
			out = append(out, all[j].Callback)
			j++
		}
	}
	return out
}

func before(a, b entry) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.seq < b.seq
}

// Has reports whether any callback is registered for class and phase.
func (r *Registry) Has(class string, phase Phase) bool {
	if r == nil {
		return false
	}
	return len(r.byKey[key{class, phase}]) > 0 || len(r.byKey[key{"", phase}]) > 0
}

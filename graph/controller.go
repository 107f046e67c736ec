package graph

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/syssam/veloxdb"
	"github.com/syssam/veloxdb/contrib/mixin"
	"github.com/syssam/veloxdb/filter"
	"github.com/syssam/veloxdb/hook"
	"github.com/syssam/veloxdb/privacy"
	"github.com/syssam/veloxdb/schema"
	"github.com/syssam/veloxdb/storage"
)

// Controller is the object graph controller. It is safe for concurrent use;
// every call is independent and keeps no state between calls.
type Controller struct {
	adapter  storage.Adapter
	schema   *schema.Schema
	pipeline *hook.Pipeline
	policy   privacy.ClassPolicy
	log      zerolog.Logger

	hooks       []hook.Registration
	defaults    bool
	concurrency int
}

// Option configures the Controller.
type Option func(*Controller)

// WithHooks registers hooks. They run after the default hooks of the same
// phase unless their priority is lower.
func WithHooks(regs ...hook.Registration) Option {
	return func(c *Controller) {
		c.hooks = append(c.hooks, regs...)
	}
}

// WithoutDefaultHooks disables the hooks of contrib/mixin.DefaultHooks.
func WithoutDefaultHooks() Option {
	return func(c *Controller) {
		c.defaults = false
	}
}

// WithLogger sets the logger receiving debug traces of the operations.
// Errors are returned, never logged.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

// WithClassPolicy sets the class-level policy checked on every operation
// of a non-root caller.
func WithClassPolicy(p privacy.ClassPolicy) Option {
	return func(c *Controller) {
		c.policy = p
	}
}

// WithConcurrency bounds the per-object work a multi-object operation runs
// at the same time. Zero or less means no bound.
func WithConcurrency(n int) Option {
	return func(c *Controller) {
		c.concurrency = n
	}
}

// New returns a controller over adapter for the classes of s.
func New(adapter storage.Adapter, s *schema.Schema, opts ...Option) *Controller {
	c := &Controller{
		adapter:  adapter,
		schema:   s,
		log:      zerolog.Nop(),
		defaults: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	var regs []hook.Registration
	if c.defaults {
		regs = mixin.DefaultHooks(s)
	}
	registry := hook.NewRegistry(append(regs, c.hooks...)...)
	c.pipeline = hook.NewPipeline(registry, c.snapshots,
		hook.WithConcurrency(c.concurrency),
		hook.WithLogger(c.log),
	)
	return c
}

var _ veloxdb.Controller = (*Controller)(nil)

// Schema returns the schema of the controller.
func (c *Controller) Schema() *schema.Schema {
	return c.schema
}

// Registry returns the hooks the controller runs.
func (c *Controller) Registry() *hook.Registry {
	return c.pipeline.Registry()
}

// Connect connects the adapter and creates the storage of every class.
func (c *Controller) Connect(ctx context.Context) error {
	if err := c.adapter.Connect(ctx); err != nil {
		return err
	}
	for _, cls := range c.schema.Classes() {
		if err := c.adapter.CreateClassIfNotExist(ctx, cls); err != nil {
			return err
		}
	}
	return nil
}

// CreateClassIfNotExist creates the storage of a single class.
func (c *Controller) CreateClassIfNotExist(ctx context.Context, className string) error {
	cls, err := c.class(className)
	if err != nil {
		return err
	}
	return c.adapter.CreateClassIfNotExist(ctx, cls)
}

// ClearDatabase removes every object of every class.
func (c *Controller) ClearDatabase(ctx context.Context) error {
	return c.adapter.ClearDatabase(ctx)
}

// Close closes the adapter.
func (c *Controller) Close() error {
	return c.adapter.Close()
}

// begin prepares an operation: it binds the operation context to the
// controller, resolves the class and checks the class-level policy.
func (c *Controller) begin(ctx context.Context, className string, action privacy.Action) (context.Context, *veloxdb.OperationContext, *schema.Class, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}
	oc := veloxdb.FromContext(ctx)
	if oc.Controller != veloxdb.Controller(c) || oc.Schema != c.schema {
		oc = oc.WithController(c, c.schema)
		ctx = veloxdb.NewContext(ctx, oc)
	}
	cls, err := c.class(className)
	if err != nil {
		return nil, nil, nil, err
	}
	if c.policy != nil && !oc.IsRoot {
		if err := c.policy.EvalClass(ctx, className, action); err != nil {
			return nil, nil, nil, err
		}
	}
	return ctx, oc, cls, nil
}

func (c *Controller) class(name string) (*schema.Class, error) {
	cls, ok := c.schema.Class(name)
	if !ok {
		return nil, veloxdb.NewSchemaError(name, "", "unknown class")
	}
	return cls, nil
}

// trace logs the outcome of an operation at debug level.
func (c *Controller) trace(op, class string, start time.Time, err *error) {
	e := c.log.Debug()
	if !e.Enabled() {
		return
	}
	e.Str("op", op).
		Str("class", class).
		Dur("duration", time.Since(start)).
		Bool("failed", *err != nil).
		Msg("operation")
}

// snapshots loads stored objects for the hook pipeline with root access.
func (c *Controller) snapshots(ctx context.Context, class string, ids []string) (map[string]veloxdb.Object, error) {
	objs, err := c.adapter.GetObjects(ctx, storage.GetObjectsParams{
		ClassName: class,
		Where:     filter.IDIn(ids),
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]veloxdb.Object, len(objs))
	for _, o := range objs {
		out[o.ID()] = o
	}
	return out, nil
}

// idOnly is the field list of adapter calls whose result only needs ids.
var idOnly = []string{veloxdb.FieldID}

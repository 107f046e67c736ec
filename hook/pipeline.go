package hook

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/syssam/veloxdb"
)

// Fetcher loads the stored objects of class with the given ids, keyed by
// id. Ids that match nothing are left out. The pipeline calls it for
// snapshots, with the access rules of the caller's choosing.
type Fetcher func(ctx context.Context, class string, ids []string) (map[string]veloxdb.Object, error)

// Pipeline runs the hooks of a registry around controller operations.
type Pipeline struct {
	registry *Registry
	fetch    Fetcher
	limit    int
	log      zerolog.Logger
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithConcurrency bounds the number of objects of a multi-object run whose
// hooks run at the same time. Zero or less means no bound.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		p.limit = n
	}
}

// WithLogger sets the logger receiving debug traces of the runs.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.log = l
	}
}

// NewPipeline returns a pipeline running the hooks of r, using fetch to
// load snapshots.
func NewPipeline(r *Registry, fetch Fetcher, opts ...Option) *Pipeline {
	p := &Pipeline{registry: r, fetch: fetch, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Registry returns the registry of the pipeline.
func (p *Pipeline) Registry() *Registry {
	return p.registry
}

// Has reports whether any hook runs for class and phase.
func (p *Pipeline) Has(class string, phase Phase) bool {
	return p.registry.Has(class, phase)
}

// SingleInput is the input of RunOnSingleObject.
type SingleInput struct {
	// ID of the object, empty in BeforeCreate.
	ID string
	// NewData is the pending data, handed to the callbacks as is.
	NewData veloxdb.Object
	// Original is a snapshot already known to the caller. When nil it is
	// fetched on first use.
	Original veloxdb.Object
	// FetchOriginal forces the snapshot to be loaded even when no callback
	// asks for it, so it can be handed to a later phase.
	FetchOriginal bool
}

// SingleResult is the output of RunOnSingleObject.
type SingleResult struct {
	NewData veloxdb.Object
	// Original is the snapshot if it was loaded or given.
	Original veloxdb.Object
}

// RunOnSingleObject runs the callbacks of class and phase on one object.
// Without callbacks and without FetchOriginal nothing is read.
func (p *Pipeline) RunOnSingleObject(ctx context.Context, class string, phase Phase, in SingleInput) (SingleResult, error) {
	callbacks := p.registry.Lookup(class, phase)
	if len(callbacks) == 0 && !in.FetchOriginal {
		return SingleResult{NewData: in.NewData, Original: in.Original}, nil
	}
	var s single
	fetch := func(ctx context.Context) (veloxdb.Object, error) {
		if in.Original != nil || in.ID == "" || p.fetch == nil || phase.Reads() {
			return in.Original, nil
		}
		objs, err := p.fetch(ctx, class, []string{in.ID})
		if err != nil {
			return nil, err
		}
		return objs[in.ID], nil
	}
	obj := &Object{ClassName: class, ID: in.ID, Phase: phase, Data: in.NewData}
	obj.snapshot = func(ctx context.Context) (veloxdb.Object, error) {
		return s.load(ctx, fetch)
	}
	if err := p.run(ctx, callbacks, obj); err != nil {
		return SingleResult{}, err
	}
	res := SingleResult{NewData: obj.Data, Original: in.Original}
	if in.FetchOriginal || s.loaded {
		orig, err := obj.snapshot(ctx)
		if err != nil {
			return SingleResult{}, err
		}
		res.Original = orig
	}
	return res, nil
}

// MultiInput is the input of RunOnMultipleObjects. IDs and NewData are
// aligned by index; either may be empty.
type MultiInput struct {
	IDs     []string
	NewData []veloxdb.Object
	// Originals are snapshots already known to the caller, aligned with
	// IDs. Missing ones are fetched together on first use.
	Originals     []veloxdb.Object
	FetchOriginal bool
}

// MultiResult is the output of RunOnMultipleObjects, aligned with the input.
type MultiResult struct {
	NewData   []veloxdb.Object
	Originals []veloxdb.Object
}

// RunOnMultipleObjects runs the callbacks of class and phase on every
// object. The objects run concurrently, each through its callbacks in
// order. Snapshots of all objects are loaded by a single fetch the first
// time any callback asks for one. The errors of all failing objects are
// returned together.
func (p *Pipeline) RunOnMultipleObjects(ctx context.Context, class string, phase Phase, in MultiInput) (MultiResult, error) {
	n := max(len(in.IDs), len(in.NewData))
	callbacks := p.registry.Lookup(class, phase)
	if len(callbacks) == 0 && !in.FetchOriginal {
		return MultiResult{NewData: in.NewData, Originals: in.Originals}, nil
	}
	var b batch
	fetch := func(ctx context.Context) (map[string]veloxdb.Object, error) {
		objs := make(map[string]veloxdb.Object, n)
		var missing []string
		for i, id := range in.IDs {
			switch {
			case id == "":
			case i < len(in.Originals) && in.Originals[i] != nil:
				objs[id] = in.Originals[i]
			default:
				missing = append(missing, id)
			}
		}
		if len(missing) == 0 || p.fetch == nil || phase.Reads() {
			return objs, nil
		}
		fetched, err := p.fetch(ctx, class, missing)
		if err != nil {
			return nil, err
		}
		for id, obj := range fetched {
			objs[id] = obj
		}
		return objs, nil
	}
	objs := make([]*Object, n)
	for i := range objs {
		obj := &Object{ClassName: class, Phase: phase}
		if i < len(in.IDs) {
			obj.ID = in.IDs[i]
		}
		if i < len(in.NewData) {
			obj.Data = in.NewData[i]
		}
		id := obj.ID
		obj.snapshot = func(ctx context.Context) (veloxdb.Object, error) {
			if id == "" {
				return nil, nil
			}
			all, err := b.load(ctx, fetch)
			return all[id], err
		}
		objs[i] = obj
	}

	errs := make([]error, n)
	var g errgroup.Group
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}
	for i, obj := range objs {
		g.Go(func() error {
			errs[i] = p.run(ctx, callbacks, obj)
			return nil
		})
	}
	_ = g.Wait()
	if err := veloxdb.NewAggregateError(errs...); err != nil {
		return MultiResult{}, err
	}

	res := MultiResult{NewData: make([]veloxdb.Object, n), Originals: in.Originals}
	for i, obj := range objs {
		res.NewData[i] = obj.Data
	}
	if in.FetchOriginal || b.loaded {
		res.Originals = make([]veloxdb.Object, n)
		for i, obj := range objs {
			orig, err := obj.Original(ctx)
			if err != nil {
				return MultiResult{}, err
			}
			res.Originals[i] = orig
		}
	}
	return res, nil
}

// run calls the callbacks in order, stopping at the first failure.
func (p *Pipeline) run(ctx context.Context, callbacks []Callback, obj *Object) error {
	start := time.Now()
	for _, cb := range callbacks {
		if err := cb(ctx, obj); err != nil {
			return veloxdb.NewHookError(obj.ClassName, string(obj.Phase), err)
		}
	}
	if len(callbacks) > 0 {
		p.log.Debug().
			Str("class", obj.ClassName).
			Str("phase", string(obj.Phase)).
			Str("id", obj.ID).
			Int("hooks", len(callbacks)).
			Dur("duration", time.Since(start)).
			Msg("hooks completed")
	}
	return nil
}

package sql

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/syssam/veloxdb/dialect"
)

// Statement kinds counted by a StatsDriver.
const (
	KindSelect = "select"
	KindInsert = "insert"
	KindUpdate = "update"
	KindDelete = "delete"
	KindOther  = "other"
)

// StatementKind returns the kind of a statement from its leading keyword.
func StatementKind(query string) string {
	word, _, _ := strings.Cut(strings.TrimSpace(query), " ")
	switch strings.ToLower(word) {
	case "select", "with":
		return KindSelect
	case "insert":
		return KindInsert
	case "update":
		return KindUpdate
	case "delete":
		return KindDelete
	}
	return KindOther
}

// KindStats are the counters of one statement kind.
type KindStats struct {
	Count    int64
	Errors   int64
	Slow     int64
	Duration time.Duration
}

// Avg returns the average statement duration.
func (k KindStats) Avg() time.Duration {
	if k.Count == 0 {
		return 0
	}
	return k.Duration / time.Duration(k.Count)
}

func (k *KindStats) add(o KindStats) {
	k.Count += o.Count
	k.Errors += o.Errors
	k.Slow += o.Slow
	k.Duration += o.Duration
}

// Snapshot is a point-in-time copy of the counters, keyed by statement kind.
type Snapshot map[string]KindStats

// Total sums the counters of every kind.
func (s Snapshot) Total() KindStats {
	var t KindStats
	for _, k := range s {
		t.add(k)
	}
	return t
}

// String returns the counters as "kind=count/errors/slow" pairs sorted by kind.
func (s Snapshot) String() string {
	kinds := make([]string, 0, len(s))
	for k := range s {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	var b strings.Builder
	for i, k := range kinds {
		if i > 0 {
			b.WriteByte(' ')
		}
		st := s[k]
		fmt.Fprintf(&b, "%s=%d/%d/%d", k, st.Count, st.Errors, st.Slow)
	}
	return b.String()
}

// MarshalZerologObject writes the snapshot as a log event field set.
func (s Snapshot) MarshalZerologObject(e *zerolog.Event) {
	for k, st := range s {
		e.Int64(k, st.Count)
	}
	t := s.Total()
	e.Int64("errors", t.Errors).Int64("slow", t.Slow).Dur("duration", t.Duration)
}

// SlowQueryHook is called with every statement that ran longer than the
// slow threshold.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// StatsDriver is a driver that counts the statements it issues by kind.
type StatsDriver struct {
	dialect.Driver
	threshold time.Duration
	hook      SlowQueryHook

	mu    sync.Mutex
	kinds map[string]*KindStats
}

// StatsOption configures the StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the duration above which a statement is slow.
// The default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.threshold = d
	}
}

// WithSlowQueryHook sets the callback for slow statements.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) {
		s.hook = hook
	}
}

// WithSlowQueryLog logs slow statements as warnings on the given logger.
func WithSlowQueryLog(log zerolog.Logger) StatsOption {
	return WithSlowQueryHook(func(_ context.Context, query string, args []any, duration time.Duration) {
		log.Warn().
			Dur("duration", duration).
			Str("kind", StatementKind(query)).
			Str("query", query).
			Int("args", len(args)).
			Msg("slow query detected")
	})
}

// NewStatsDriver wraps drv with statement counters.
//
//	drv, _ := sql.Open("postgres", dsn)
//	stats := sql.NewStatsDriver(drv,
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithSlowQueryLog(logger),
//	)
//	adapter := sqlstore.New(stats)
func NewStatsDriver(drv dialect.Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{
		Driver:    drv,
		threshold: 100 * time.Millisecond,
		kinds:     make(map[string]*KindStats),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenWithStats opens a database and wraps it with statement counters.
func OpenWithStats(driverName, source string, opts ...StatsOption) (*StatsDriver, error) {
	drv, err := Open(driverName, source)
	if err != nil {
		return nil, err
	}
	return NewStatsDriver(drv, opts...), nil
}

// Stats returns a copy of the counters.
func (d *StatsDriver) Stats() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := make(Snapshot, len(d.kinds))
	for k, st := range d.kinds {
		s[k] = *st
	}
	return s
}

// Reset zeroes the counters.
func (d *StatsDriver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.kinds)
}

// Query executes a query and records it.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.record(ctx, query, args, time.Since(start), err)
	return err
}

// Exec executes a statement and records it.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.record(ctx, query, args, time.Since(start), err)
	return err
}

// Tx starts a transaction whose statements are recorded too.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsTx{Tx: tx, driver: d}, nil
}

func (d *StatsDriver) record(ctx context.Context, query string, args any, duration time.Duration, err error) {
	kind := StatementKind(query)
	slow := duration > d.threshold
	d.mu.Lock()
	st, ok := d.kinds[kind]
	if !ok {
		st = &KindStats{}
		d.kinds[kind] = st
	}
	st.Count++
	st.Duration += duration
	if err != nil {
		st.Errors++
	}
	if slow {
		st.Slow++
	}
	d.mu.Unlock()
	if slow && d.hook != nil {
		argv, _ := args.([]any)
		d.hook(ctx, query, argv, duration)
	}
}

// StatsTx is a transaction that records its statements on the driver.
type StatsTx struct {
	dialect.Tx
	driver *StatsDriver
}

// Query executes a query within the transaction and records it.
func (tx *StatsTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Query(ctx, query, args, v)
	tx.driver.record(ctx, query, args, time.Since(start), err)
	return err
}

// Exec executes a statement within the transaction and records it.
func (tx *StatsTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Exec(ctx, query, args, v)
	tx.driver.record(ctx, query, args, time.Since(start), err)
	return err
}

// DebugDriver is a driver that logs every statement at debug level.
type DebugDriver struct {
	dialect.Driver
	log zerolog.Logger
}

// Debug wraps drv with a driver that logs every statement to log.
func Debug(drv dialect.Driver, log zerolog.Logger) dialect.Driver {
	return &DebugDriver{Driver: drv, log: log}
}

// Query logs the statement and runs it on the wrapped driver.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	d.log.Debug().Str("query", query).Interface("args", args).Msg("driver.Query")
	return d.Driver.Query(ctx, query, args, v)
}

// Exec logs the statement and runs it on the wrapped driver.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	d.log.Debug().Str("query", query).Interface("args", args).Msg("driver.Exec")
	return d.Driver.Exec(ctx, query, args, v)
}

// Tx starts a transaction whose statements are logged too.
func (d *DebugDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	d.log.Debug().Msg("driver.Tx: started")
	return &DebugTx{Tx: tx, log: d.log}, nil
}

// DebugTx is a transaction that logs its statements.
type DebugTx struct {
	dialect.Tx
	log zerolog.Logger
}

// Query logs the statement and runs it in the transaction.
func (tx *DebugTx) Query(ctx context.Context, query string, args, v any) error {
	tx.log.Debug().Str("query", query).Interface("args", args).Msg("Tx.Query")
	return tx.Tx.Query(ctx, query, args, v)
}

// Exec logs the statement and runs it in the transaction.
func (tx *DebugTx) Exec(ctx context.Context, query string, args, v any) error {
	tx.log.Debug().Str("query", query).Interface("args", args).Msg("Tx.Exec")
	return tx.Tx.Exec(ctx, query, args, v)
}

// Commit logs and commits the transaction.
func (tx *DebugTx) Commit() error {
	tx.log.Debug().Msg("Tx.Commit")
	return tx.Tx.Commit()
}

// Rollback logs and rolls back the transaction.
func (tx *DebugTx) Rollback() error {
	tx.log.Debug().Msg("Tx.Rollback")
	return tx.Tx.Rollback()
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Tx     = (*StatsTx)(nil)
	_ dialect.Driver = (*DebugDriver)(nil)
	_ dialect.Tx     = (*DebugTx)(nil)
)

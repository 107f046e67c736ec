// Package sqlstore provides a storage.Adapter over SQLite, PostgreSQL and
// MySQL through the dialect/sql driver.
//
// Each class is a table holding an auto-increment integer id and the
// document as JSON. Id constraints are pushed down to SQL; the remaining
// filter, ordering and pagination are evaluated on the loaded documents.
// Unique class indexes become unique expression indexes on the JSON column,
// so violations surface as constraint errors.
package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-openapi/inflect"

	"github.com/syssam/veloxdb"
	"github.com/syssam/veloxdb/dialect"
	"github.com/syssam/veloxdb/dialect/sql"
	"github.com/syssam/veloxdb/dialect/sql/sqlgraph"
	"github.com/syssam/veloxdb/schema"
	"github.com/syssam/veloxdb/storage"
)

// Adapter is a SQL backed storage.Adapter.
type Adapter struct {
	drv       dialect.Driver
	tableName func(class string) string

	mu      sync.RWMutex
	classes map[string]*schema.Class
}

// Option configures the Adapter.
type Option func(*Adapter)

// WithTableName sets the class to table name mapping. The default is the
// snake-cased plural of the class name ("BlogPost" → "blog_posts").
func WithTableName(fn func(class string) string) Option {
	return func(a *Adapter) {
		a.tableName = fn
	}
}

// TableName is the default class to table name mapping.
func TableName(class string) string {
	return inflect.Underscore(inflect.Pluralize(class))
}

// New returns an adapter issuing statements through drv.
func New(drv dialect.Driver, opts ...Option) *Adapter {
	a := &Adapter{
		drv:       drv,
		tableName: TableName,
		classes:   make(map[string]*schema.Class),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ storage.Adapter = (*Adapter)(nil)

func (a *Adapter) builder() *sql.DialectBuilder {
	return sql.Dialect(a.drv.Dialect())
}

// Connect implements storage.Adapter by checking the connection.
func (a *Adapter) Connect(ctx context.Context) error {
	rows := &sql.Rows{}
	if err := a.drv.Query(ctx, "SELECT 1", []any{}, rows); err != nil {
		return veloxdb.NewAdapterError("", "connect", err)
	}
	return rows.Close()
}

// Close implements storage.Adapter.
func (a *Adapter) Close() error {
	return a.drv.Close()
}

// CreateClassIfNotExist implements storage.Adapter.
func (a *Adapter) CreateClassIfNotExist(ctx context.Context, c *schema.Class) error {
	a.mu.Lock()
	a.classes[c.Name] = c
	a.mu.Unlock()

	table := a.tableName(c.Name)
	stmts := []string{a.createTable(table)}
	for _, idx := range c.Indexes {
		stmts = append(stmts, a.createIndex(table, idx))
	}
	for _, stmt := range stmts {
		err := a.drv.Exec(ctx, stmt, []any{}, nil)
		if err != nil && !(a.drv.Dialect() == dialect.MySQL && strings.Contains(err.Error(), "Error 1061")) {
			return a.wrap(c.Name, "createClass", err)
		}
	}
	return nil
}

func (a *Adapter) createTable(table string) string {
	b := a.builder().Raw()
	b.WriteString("CREATE TABLE IF NOT EXISTS ").Ident(table).WriteString(" (").Ident("id")
	switch a.drv.Dialect() {
	case dialect.Postgres:
		b.WriteString(" BIGSERIAL PRIMARY KEY, ").Ident("data").WriteString(" TEXT NOT NULL)")
	case dialect.MySQL:
		b.WriteString(" BIGINT AUTO_INCREMENT PRIMARY KEY, ").Ident("data").WriteString(" JSON NOT NULL)")
	default:
		b.WriteString(" INTEGER PRIMARY KEY AUTOINCREMENT, ").Ident("data").WriteString(" TEXT NOT NULL)")
	}
	query, _ := b.Query()
	return query
}

func (a *Adapter) createIndex(table string, idx schema.Index) string {
	b := a.builder().Raw()
	b.WriteString("CREATE ")
	if idx.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX ")
	if a.drv.Dialect() != dialect.MySQL {
		b.WriteString("IF NOT EXISTS ")
	}
	name := table + "_" + strings.Join(idx.Fields, "_")
	if idx.Unique {
		name += "_key"
	}
	b.Ident(name).WriteString(" ON ").Ident(table).WriteString(" (")
	for i, f := range idx.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		path := "'$." + strings.ReplaceAll(f, "'", "''") + "'"
		switch a.drv.Dialect() {
		case dialect.Postgres:
			b.WriteString("((").Ident("data").WriteString("::jsonb)->>'" + strings.ReplaceAll(f, "'", "''") + "')")
		case dialect.MySQL:
			b.WriteString("(CAST(JSON_UNQUOTE(JSON_EXTRACT(").Ident("data").WriteString(", " + path + ")) AS CHAR(255)))")
		default:
			b.WriteString("json_extract(").Ident("data").WriteString(", " + path + ")")
		}
	}
	b.WriteString(")")
	query, _ := b.Query()
	return query
}

// ClearDatabase implements storage.Adapter. Tables of the created classes
// are emptied.
func (a *Adapter) ClearDatabase(ctx context.Context) error {
	a.mu.RLock()
	names := make([]string, 0, len(a.classes))
	for name := range a.classes {
		names = append(names, name)
	}
	a.mu.RUnlock()
	for _, name := range names {
		query, args := a.builder().Delete(a.tableName(name)).Query()
		if err := a.drv.Exec(ctx, query, args, nil); err != nil {
			return a.wrap(name, "clearDatabase", err)
		}
	}
	return nil
}

func (a *Adapter) wrap(class, op string, err error) error {
	if err == nil {
		return nil
	}
	if sqlgraph.IsConstraintError(err) {
		return veloxdb.NewConstraintError(class, op, err)
	}
	return veloxdb.NewAdapterError(class, op, err)
}

// load returns the documents of class matching q.
func (a *Adapter) load(ctx context.Context, ex dialect.ExecQuerier, class string, q storage.Query) ([]veloxdb.Object, error) {
	sel := a.builder().Select("id", "data").From(a.tableName(class)).OrderBy("id")
	if ids, ok := storage.IDConstraint(q.Where); ok {
		keys := make([]any, 0, len(ids))
		for _, id := range storage.Dedup(ids) {
			if n, err := strconv.ParseInt(id, 10, 64); err == nil {
				keys = append(keys, n)
			}
		}
		if len(keys) == 0 {
			return nil, nil
		}
		sel.Where(sql.In("id", keys...))
	}
	query, args := sel.Query()
	rows := &sql.Rows{}
	if err := ex.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []veloxdb.Object
	for rows.Next() {
		var (
			id   int64
			data string
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		doc, err := a.decode(class, id, data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return q.Apply(docs), nil
}

func (a *Adapter) decode(class string, id int64, data string) (veloxdb.Object, error) {
	var doc veloxdb.Object
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("decode %s %d: %w", class, id, err)
	}
	if doc == nil {
		doc = veloxdb.Object{}
	}
	a.mu.RLock()
	c := a.classes[class]
	a.mu.RUnlock()
	if c != nil {
		revive(c, doc)
	}
	doc[veloxdb.FieldID] = strconv.FormatInt(id, 10)
	return doc, nil
}

// revive restores the Go types JSON loses for declared Int and Date fields.
func revive(c *schema.Class, doc veloxdb.Object) {
	for _, f := range c.Fields {
		v, ok := doc[f.Name]
		if !ok || f.Kind != schema.KindScalar {
			continue
		}
		switch f.Type {
		case schema.TypeInt:
			if n, ok := v.(float64); ok && n == float64(int64(n)) {
				doc[f.Name] = int64(n)
			}
		case schema.TypeDate:
			if s, ok := v.(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					doc[f.Name] = t
				}
			}
		}
	}
}

func encode(doc veloxdb.Object) (string, error) {
	data := make(map[string]any, len(doc))
	for k, v := range doc {
		if k != veloxdb.FieldID {
			data[k] = v
		}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// tx runs fn in a transaction, rolling back when it fails.
func (a *Adapter) tx(ctx context.Context, fn func(dialect.Tx) error) error {
	tx, err := a.drv.Tx(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	return tx.Commit()
}

func (a *Adapter) insert(ctx context.Context, ex dialect.ExecQuerier, class string, data veloxdb.Object) (veloxdb.Object, error) {
	doc := storage.Patch(nil, data)
	v, err := encode(doc)
	if err != nil {
		return nil, err
	}
	ins := a.builder().Insert(a.tableName(class)).Columns("data").Values(v)
	var id int64
	if a.drv.Dialect() == dialect.Postgres {
		query, args := ins.Returning("id").Query()
		rows := &sql.Rows{}
		if err := ex.Query(ctx, query, args, rows); err != nil {
			return nil, err
		}
		defer rows.Close()
		if !rows.Next() {
			return nil, errors.Join(errors.New("insert returned no id"), rows.Err())
		}
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
	} else {
		query, args := ins.Query()
		var res sql.Result
		if err := ex.Exec(ctx, query, args, &res); err != nil {
			return nil, err
		}
		if id, err = res.LastInsertId(); err != nil {
			return nil, err
		}
	}
	// Read the stored form back through the same decoding as every read.
	stored, err := a.decode(class, id, v)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (a *Adapter) put(ctx context.Context, ex dialect.ExecQuerier, class string, doc veloxdb.Object) (veloxdb.Object, error) {
	v, err := encode(doc)
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(doc.ID(), 10, 64)
	if err != nil {
		return nil, err
	}
	query, args := a.builder().Update(a.tableName(class)).Set("data", v).Where(sql.EQ("id", id)).Query()
	if err := ex.Exec(ctx, query, args, nil); err != nil {
		return nil, err
	}
	return a.decode(class, id, v)
}

func (a *Adapter) remove(ctx context.Context, ex dialect.ExecQuerier, class string, docs []veloxdb.Object) error {
	if len(docs) == 0 {
		return nil
	}
	ids := make([]any, len(docs))
	for i, d := range docs {
		n, err := strconv.ParseInt(d.ID(), 10, 64)
		if err != nil {
			return err
		}
		ids[i] = n
	}
	query, args := a.builder().Delete(a.tableName(class)).Where(sql.In("id", ids...)).Query()
	return ex.Exec(ctx, query, args, nil)
}

// Count implements storage.Adapter.
func (a *Adapter) Count(ctx context.Context, p storage.CountParams) (int, error) {
	if p.Where == nil {
		query, args := a.builder().Select("COUNT(*)").From(a.tableName(p.ClassName)).Query()
		rows := &sql.Rows{}
		if err := a.drv.Query(ctx, query, args, rows); err != nil {
			return 0, a.wrap(p.ClassName, "count", err)
		}
		defer rows.Close()
		var n int
		if rows.Next() {
			if err := rows.Scan(&n); err != nil {
				return 0, a.wrap(p.ClassName, "count", err)
			}
		}
		return n, a.wrap(p.ClassName, "count", rows.Err())
	}
	docs, err := a.load(ctx, a.drv, p.ClassName, storage.Query{Where: p.Where})
	if err != nil {
		return 0, a.wrap(p.ClassName, "count", err)
	}
	return len(docs), nil
}

// GetObject implements storage.Adapter.
func (a *Adapter) GetObject(ctx context.Context, p storage.GetObjectParams) (veloxdb.Object, error) {
	docs, err := a.load(ctx, a.drv, p.ClassName, storage.Query{Where: storage.ByID(p.ID, p.Where)})
	if err != nil {
		return nil, a.wrap(p.ClassName, "getObject", err)
	}
	if len(docs) == 0 {
		return nil, veloxdb.NewNotFoundErrorWithID(p.ClassName, p.ID)
	}
	return docs[0].Project(p.Fields), nil
}

// GetObjects implements storage.Adapter.
func (a *Adapter) GetObjects(ctx context.Context, p storage.GetObjectsParams) ([]veloxdb.Object, error) {
	docs, err := a.load(ctx, a.drv, p.ClassName, storage.Query{Where: p.Where, Order: p.Order, Offset: p.Offset, First: p.First})
	if err != nil {
		return nil, a.wrap(p.ClassName, "getObjects", err)
	}
	return storage.ProjectAll(docs, p.Fields), nil
}

// CreateObject implements storage.Adapter.
func (a *Adapter) CreateObject(ctx context.Context, p storage.CreateObjectParams) (veloxdb.Object, error) {
	doc, err := a.insert(ctx, a.drv, p.ClassName, p.Data)
	if err != nil {
		return nil, a.wrap(p.ClassName, "createObject", err)
	}
	return doc.Project(p.Fields), nil
}

// CreateObjects implements storage.Adapter. The batch is inserted in one
// transaction.
func (a *Adapter) CreateObjects(ctx context.Context, p storage.CreateObjectsParams) ([]veloxdb.Object, error) {
	objs := make([]veloxdb.Object, 0, len(p.Data))
	if len(p.Data) == 0 {
		return objs, nil
	}
	err := a.tx(ctx, func(tx dialect.Tx) error {
		for _, data := range p.Data {
			doc, err := a.insert(ctx, tx, p.ClassName, data)
			if err != nil {
				return err
			}
			objs = append(objs, doc.Project(p.Fields))
		}
		return nil
	})
	if err != nil {
		return nil, a.wrap(p.ClassName, "createObjects", err)
	}
	return objs, nil
}

// UpdateObject implements storage.Adapter.
func (a *Adapter) UpdateObject(ctx context.Context, p storage.UpdateObjectParams) (veloxdb.Object, error) {
	var obj veloxdb.Object
	err := a.tx(ctx, func(tx dialect.Tx) error {
		docs, err := a.load(ctx, tx, p.ClassName, storage.Query{Where: storage.ByID(p.ID, p.Where)})
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return veloxdb.NewNotFoundErrorWithID(p.ClassName, p.ID)
		}
		doc, err := a.put(ctx, tx, p.ClassName, storage.Patch(docs[0], p.Data))
		if err != nil {
			return err
		}
		obj = doc.Project(p.Fields)
		return nil
	})
	if err != nil {
		return nil, a.wrap(p.ClassName, "updateObject", err)
	}
	return obj, nil
}

// UpdateObjects implements storage.Adapter.
func (a *Adapter) UpdateObjects(ctx context.Context, p storage.UpdateObjectsParams) ([]veloxdb.Object, error) {
	var objs []veloxdb.Object
	err := a.tx(ctx, func(tx dialect.Tx) error {
		docs, err := a.load(ctx, tx, p.ClassName, storage.Query{Where: p.Where, Order: p.Order, Offset: p.Offset, First: p.First})
		if err != nil {
			return err
		}
		objs = make([]veloxdb.Object, 0, len(docs))
		for _, d := range docs {
			doc, err := a.put(ctx, tx, p.ClassName, storage.Patch(d, p.Data))
			if err != nil {
				return err
			}
			objs = append(objs, doc.Project(p.Fields))
		}
		return nil
	})
	if err != nil {
		return nil, a.wrap(p.ClassName, "updateObjects", err)
	}
	return objs, nil
}

// DeleteObject implements storage.Adapter.
func (a *Adapter) DeleteObject(ctx context.Context, p storage.DeleteObjectParams) (veloxdb.Object, error) {
	var obj veloxdb.Object
	err := a.tx(ctx, func(tx dialect.Tx) error {
		docs, err := a.load(ctx, tx, p.ClassName, storage.Query{Where: storage.ByID(p.ID, p.Where)})
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return veloxdb.NewNotFoundErrorWithID(p.ClassName, p.ID)
		}
		obj = docs[0].Project(p.Fields)
		return a.remove(ctx, tx, p.ClassName, docs[:1])
	})
	if err != nil {
		return nil, a.wrap(p.ClassName, "deleteObject", err)
	}
	return obj, nil
}

// DeleteObjects implements storage.Adapter.
func (a *Adapter) DeleteObjects(ctx context.Context, p storage.DeleteObjectsParams) ([]veloxdb.Object, error) {
	var objs []veloxdb.Object
	err := a.tx(ctx, func(tx dialect.Tx) error {
		docs, err := a.load(ctx, tx, p.ClassName, storage.Query{Where: p.Where, Order: p.Order, Offset: p.Offset, First: p.First})
		if err != nil {
			return err
		}
		objs = storage.ProjectAll(docs, p.Fields)
		return a.remove(ctx, tx, p.ClassName, docs)
	})
	if err != nil {
		return nil, a.wrap(p.ClassName, "deleteObjects", err)
	}
	return objs, nil
}

package sql

import (
	"strconv"
	"strings"

	"github.com/syssam/veloxdb/dialect"
)

// Querier wraps the basic Query method that is implemented
// by the different builders in this file.
type Querier interface {
	// Query returns the query representation of the element
	// and its arguments (if any).
	Query() (string, []any)
}

// Builder is the base query builder for the sql dsl.
type Builder struct {
	sb      *strings.Builder
	args    []any
	dialect string
}

// Dialect creates a new DialectBuilder with the given dialect name.
func Dialect(name string) *DialectBuilder {
	return &DialectBuilder{dialect: name}
}

// DialectBuilder prefixes all root builders with the Dialect method.
type DialectBuilder struct {
	dialect string
}

func (d *DialectBuilder) builder() Builder {
	return Builder{sb: &strings.Builder{}, dialect: d.dialect}
}

// Raw returns an empty builder for statements without a dedicated builder,
// such as DDL.
func (d *DialectBuilder) Raw() *Builder {
	b := d.builder()
	return &b
}

// Dialect returns the dialect of the builder.
func (b *Builder) Dialect() string { return b.dialect }

// WriteString writes a raw string to the builder.
func (b *Builder) WriteString(s string) *Builder {
	if b.sb == nil {
		b.sb = &strings.Builder{}
	}
	b.sb.WriteString(s)
	return b
}

// Ident writes a quoted identifier. Expressions holding parentheses or a
// star are written as they are.
func (b *Builder) Ident(s string) *Builder {
	switch {
	case s == "":
	case strings.ContainsAny(s, "(*"):
		b.WriteString(s)
	case b.dialect == dialect.MySQL:
		b.WriteString("`" + strings.ReplaceAll(s, "`", "``") + "`")
	default:
		b.WriteString(`"` + strings.ReplaceAll(s, `"`, `""`) + `"`)
	}
	return b
}

// IdentComma writes a comma-separated list of quoted identifiers.
func (b *Builder) IdentComma(s ...string) *Builder {
	for i := range s {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(s[i])
	}
	return b
}

// Arg appends an argument and writes its placeholder.
func (b *Builder) Arg(a any) *Builder {
	b.args = append(b.args, a)
	if b.dialect == dialect.Postgres {
		b.WriteString("$" + strconv.Itoa(len(b.args)))
	} else {
		b.WriteString("?")
	}
	return b
}

// Args appends a comma-separated list of arguments.
func (b *Builder) Args(a ...any) *Builder {
	for i := range a {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Arg(a[i])
	}
	return b
}

// Query implements the Querier interface.
func (b *Builder) Query() (string, []any) {
	if b.sb == nil {
		return "", b.args
	}
	return b.sb.String(), b.args
}

// Predicate is a WHERE clause writer.
type Predicate func(*Builder)

// EQ returns a "=" predicate.
func EQ(col string, v any) Predicate {
	return func(b *Builder) {
		b.Ident(col).WriteString(" = ").Arg(v)
	}
}

// In returns an "IN" predicate. An empty list matches nothing.
func In(col string, vs ...any) Predicate {
	return func(b *Builder) {
		if len(vs) == 0 {
			b.WriteString("1 = 0")
			return
		}
		b.Ident(col).WriteString(" IN (").Args(vs...).WriteString(")")
	}
}

// And joins predicates with AND. Nil predicates are skipped.
func And(ps ...Predicate) Predicate {
	return func(b *Builder) {
		n := 0
		for _, p := range ps {
			if p == nil {
				continue
			}
			if n > 0 {
				b.WriteString(" AND ")
			}
			b.WriteString("(")
			p(b)
			b.WriteString(")")
			n++
		}
		if n == 0 {
			b.WriteString("1 = 1")
		}
	}
}

// Selector is a builder for the `SELECT` statement.
type Selector struct {
	Builder
	columns []string
	table   string
	where   Predicate
	order   []string
}

// Select returns a builder for the `SELECT` statement.
func (d *DialectBuilder) Select(columns ...string) *Selector {
	return &Selector{Builder: d.builder(), columns: columns}
}

// From sets the source table.
func (s *Selector) From(table string) *Selector {
	s.table = table
	return s
}

// Where sets or appends the predicate of the statement.
func (s *Selector) Where(p Predicate) *Selector {
	if s.where != nil {
		p = And(s.where, p)
	}
	s.where = p
	return s
}

// OrderBy appends ascending ordering columns.
func (s *Selector) OrderBy(columns ...string) *Selector {
	s.order = append(s.order, columns...)
	return s
}

// Query returns query representation of a `SELECT` statement.
func (s *Selector) Query() (string, []any) {
	b := &s.Builder
	b.WriteString("SELECT ")
	if len(s.columns) == 0 {
		b.WriteString("*")
	} else {
		b.IdentComma(s.columns...)
	}
	b.WriteString(" FROM ").Ident(s.table)
	if s.where != nil {
		b.WriteString(" WHERE ")
		s.where(b)
	}
	if len(s.order) > 0 {
		b.WriteString(" ORDER BY ").IdentComma(s.order...)
	}
	return b.Query()
}

// InsertBuilder is a builder for `INSERT INTO` statement.
type InsertBuilder struct {
	Builder
	table     string
	columns   []string
	values    [][]any
	returning []string
}

// Insert creates a builder for the `INSERT INTO` statement.
func (d *DialectBuilder) Insert(table string) *InsertBuilder {
	return &InsertBuilder{Builder: d.builder(), table: table}
}

// Columns sets the columns of the insert statement.
func (i *InsertBuilder) Columns(columns ...string) *InsertBuilder {
	i.columns = append(i.columns, columns...)
	return i
}

// Values append a value tuple for the insert statement.
func (i *InsertBuilder) Values(values ...any) *InsertBuilder {
	i.values = append(i.values, values)
	return i
}

// Returning adds the `RETURNING` clause to the insert statement.
// Only Postgres and SQLite support it.
func (i *InsertBuilder) Returning(columns ...string) *InsertBuilder {
	i.returning = columns
	return i
}

// Query returns query representation of an `INSERT INTO` statement.
func (i *InsertBuilder) Query() (string, []any) {
	b := &i.Builder
	b.WriteString("INSERT INTO ").Ident(i.table).WriteString(" (").IdentComma(i.columns...).WriteString(") VALUES ")
	for j, v := range i.values {
		if j > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(").Args(v...).WriteString(")")
	}
	if len(i.returning) > 0 && b.dialect != dialect.MySQL {
		b.WriteString(" RETURNING ").IdentComma(i.returning...)
	}
	return b.Query()
}

// UpdateBuilder is a builder for `UPDATE` statement.
type UpdateBuilder struct {
	Builder
	table   string
	columns []string
	values  []any
	where   Predicate
}

// Update creates a builder for the `UPDATE` statement.
func (d *DialectBuilder) Update(table string) *UpdateBuilder {
	return &UpdateBuilder{Builder: d.builder(), table: table}
}

// Set sets a column to a given value.
func (u *UpdateBuilder) Set(column string, v any) *UpdateBuilder {
	u.columns = append(u.columns, column)
	u.values = append(u.values, v)
	return u
}

// Where adds a where predicate for update statement.
func (u *UpdateBuilder) Where(p Predicate) *UpdateBuilder {
	if u.where != nil {
		p = And(u.where, p)
	}
	u.where = p
	return u
}

// Query returns query representation of an `UPDATE` statement.
func (u *UpdateBuilder) Query() (string, []any) {
	b := &u.Builder
	b.WriteString("UPDATE ").Ident(u.table).WriteString(" SET ")
	for j, c := range u.columns {
		if j > 0 {
			b.WriteString(", ")
		}
		b.Ident(c).WriteString(" = ").Arg(u.values[j])
	}
	if u.where != nil {
		b.WriteString(" WHERE ")
		u.where(b)
	}
	return b.Query()
}

// DeleteBuilder is a builder for `DELETE` statement.
type DeleteBuilder struct {
	Builder
	table string
	where Predicate
}

// Delete creates a builder for the `DELETE` statement.
func (d *DialectBuilder) Delete(table string) *DeleteBuilder {
	return &DeleteBuilder{Builder: d.builder(), table: table}
}

// Where appends a predicate for the `DELETE` statement.
func (d *DeleteBuilder) Where(p Predicate) *DeleteBuilder {
	if d.where != nil {
		p = And(d.where, p)
	}
	d.where = p
	return d
}

// Query returns the query representation of a `DELETE` statement.
func (d *DeleteBuilder) Query() (string, []any) {
	b := &d.Builder
	b.WriteString("DELETE FROM ").Ident(d.table)
	if d.where != nil {
		b.WriteString(" WHERE ")
		d.where(b)
	}
	return b.Query()
}

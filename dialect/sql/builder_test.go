package sql

import (
	"testing"

	"github.com/syssam/veloxdb/dialect"

	"github.com/stretchr/testify/assert"
)

func TestBuilder(t *testing.T) {
	tests := []struct {
		input     Querier
		wantQuery string
		wantArgs  []any
	}{
		{
			input:     Dialect(dialect.Postgres).Select("id", "data").From("users").Where(In("id", 1, 2)).OrderBy("id"),
			wantQuery: `SELECT "id", "data" FROM "users" WHERE "id" IN ($1, $2) ORDER BY "id"`,
			wantArgs:  []any{1, 2},
		},
		{
			input:     Dialect(dialect.MySQL).Select("COUNT(*)").From("users"),
			wantQuery: "SELECT COUNT(*) FROM `users`",
		},
		{
			input:     Dialect(dialect.SQLite).Select().From("users").Where(In("id")),
			wantQuery: `SELECT * FROM "users" WHERE 1 = 0`,
		},
		{
			input:     Dialect(dialect.SQLite).Select("id").From("users").Where(EQ("id", 1)).Where(EQ("data", "x")),
			wantQuery: `SELECT "id" FROM "users" WHERE ("id" = ?) AND ("data" = ?)`,
			wantArgs:  []any{1, "x"},
		},
		{
			input:     Dialect(dialect.Postgres).Insert("users").Columns("data").Values("a").Values("b").Returning("id"),
			wantQuery: `INSERT INTO "users" ("data") VALUES ($1), ($2) RETURNING "id"`,
			wantArgs:  []any{"a", "b"},
		},
		{
			input:     Dialect(dialect.MySQL).Insert("users").Columns("data").Values("a").Returning("id"),
			wantQuery: "INSERT INTO `users` (`data`) VALUES (?)",
			wantArgs:  []any{"a"},
		},
		{
			input:     Dialect(dialect.Postgres).Update("users").Set("data", "{}").Where(EQ("id", 3)),
			wantQuery: `UPDATE "users" SET "data" = $1 WHERE "id" = $2`,
			wantArgs:  []any{"{}", 3},
		},
		{
			input:     Dialect(dialect.SQLite).Delete("users").Where(In("id", 1)),
			wantQuery: `DELETE FROM "users" WHERE "id" IN (?)`,
			wantArgs:  []any{1},
		},
		{
			input:     Dialect(dialect.SQLite).Delete("users").Where(And()),
			wantQuery: `DELETE FROM "users" WHERE 1 = 1`,
		},
		{
			input:     Dialect(dialect.Postgres).Select("id").From(`we"ird`),
			wantQuery: `SELECT "id" FROM "we""ird"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.wantQuery, func(t *testing.T) {
			query, args := tt.input.Query()
			assert.Equal(t, tt.wantQuery, query)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

// Package sql provides the database/sql backed driver, a small statement
// builder and query statistics for the SQL storage adapter.
//
// # Builders
//
//	b := sql.Dialect(dialect.Postgres)
//	query, args := b.Select("id", "data").
//	    From("users").
//	    Where(sql.In("id", 1, 2)).
//	    OrderBy("id").
//	    Query()
//	// SELECT "id", "data" FROM "users" WHERE "id" IN ($1, $2) ORDER BY "id"
//
// Identifiers are quoted per dialect and arguments are always bound, never
// inlined.
//
// # Statistics
//
// StatsDriver counts statements by kind and reports slow ones through a
// hook, and
// DebugDriver logs every statement at debug level:
//
//	drv, err := sql.OpenWithStats(dialect.SQLite, dsn,
//	    sql.WithSlowThreshold(50*time.Millisecond),
//	    sql.WithSlowQueryLog(logger),
//	)
package sql

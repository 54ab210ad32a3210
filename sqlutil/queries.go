// Package sqlutil wraps jmoiron/sqlx and qustavo/dotsql the way
// solatis-trapperkeeper's internal/core/db package does: named queries are
// authored once with "?" placeholders and rebound per-driver at call time, so
// the same query text runs unmodified against mattn/go-sqlite3 (Mobile-class
// embedded durability) and lib/pq (Server-class shared Postgres durability).
package sqlutil

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"
)

// Queries is a named-query executor bound to one *sqlx.DB.
type Queries struct {
	dot *dotsql.DotSql
	db  *sqlx.DB
}

// Load parses sqlText (the concatenated contents of one or more dotsql-style
// ".sql" files) and binds the resulting named queries to db.
func Load(db *sqlx.DB, sqlText string) (*Queries, error) {
	dot, err := dotsql.LoadFromString(sqlText)
	if err != nil {
		return nil, fmt.Errorf("sqlutil: parse queries: %w", err)
	}
	return &Queries{dot: dot, db: db}, nil
}

// Exec runs a named mutating query, rebinding "?" placeholders for db's driver.
func (q *Queries) Exec(name string, args ...interface{}) (sql.Result, error) {
	query, err := q.dot.Raw(name)
	if err != nil {
		return nil, fmt.Errorf("sqlutil: query not found: %s", name)
	}
	return q.db.Exec(q.db.Rebind(query), args...)
}

// Get retrieves a single row into dest using a named query.
func (q *Queries) Get(dest interface{}, name string, args ...interface{}) error {
	query, err := q.dot.Raw(name)
	if err != nil {
		return fmt.Errorf("sqlutil: query not found: %s", name)
	}
	return q.db.Get(dest, q.db.Rebind(query), args...)
}

// Select retrieves multiple rows into dest using a named query.
func (q *Queries) Select(dest interface{}, name string, args ...interface{}) error {
	query, err := q.dot.Raw(name)
	if err != nil {
		return fmt.Errorf("sqlutil: query not found: %s", name)
	}
	return q.db.Select(dest, q.db.Rebind(query), args...)
}

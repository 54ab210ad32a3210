package kvstore

import (
	"embed"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/rudderlabs/rudder-eventcore/sqlutil"
)

//go:embed queries/kv.sql
var kvQueriesFS embed.FS

// SQLStore persists typed key/value pairs in a relational table, for the
// Server-class durable deployment described in SPEC_FULL.md §4.1 (grounded
// on solatis-trapperkeeper's sqlx+dotsql persistence layer). Works against
// any sqlx-compatible driver; callers register either "sqlite3" (embedded,
// single-process) or "postgres" (lib/pq, shared across hosts).
type SQLStore struct {
	db       *sqlx.DB
	queries  *sqlutil.Queries
	writeKey string
}

// NewSQLStore opens (and migrates) the kv table inside db for writeKey.
func NewSQLStore(db *sqlx.DB, writeKey string) (*SQLStore, error) {
	raw, err := kvQueriesFS.ReadFile("queries/kv.sql")
	if err != nil {
		return nil, err
	}
	q, err := sqlutil.Load(db, string(raw))
	if err != nil {
		return nil, err
	}
	s := &SQLStore{db: db, queries: q, writeKey: writeKey}
	if _, err := s.queries.Exec("create-kv-table"); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) write(key, kind, raw string) error {
	_, err := s.queries.Exec("upsert-kv", s.writeKey, key, kind, raw)
	return err
}

func (s *SQLStore) read(key, kind string) (string, bool) {
	var row struct {
		Kind  string `db:"kind"`
		Value string `db:"value"`
	}
	if err := s.queries.Get(&row, "select-kv", s.writeKey, key); err != nil {
		return "", false
	}
	if row.Kind != kind {
		return "", false
	}
	return row.Value, true
}

func (s *SQLStore) WriteInt(key string, v int) error {
	return s.write(key, "int", strconv.FormatInt(int64(v), 10))
}

func (s *SQLStore) ReadInt(key string, def int) int {
	raw, ok := s.read(key, "int")
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return int(n)
}

func (s *SQLStore) WriteLong(key string, v int64) error {
	return s.write(key, "long", strconv.FormatInt(v, 10))
}

func (s *SQLStore) ReadLong(key string, def int64) int64 {
	raw, ok := s.read(key, "long")
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func (s *SQLStore) WriteBool(key string, v bool) error {
	raw := "false"
	if v {
		raw = "true"
	}
	return s.write(key, "bool", raw)
}

func (s *SQLStore) ReadBool(key string, def bool) bool {
	raw, ok := s.read(key, "bool")
	if !ok {
		return def
	}
	return raw == "true"
}

func (s *SQLStore) WriteString(key string, v string) error { return s.write(key, "string", v) }
func (s *SQLStore) ReadString(key string, def string) string {
	raw, ok := s.read(key, "string")
	if !ok {
		return def
	}
	return raw
}

func (s *SQLStore) Remove(key string) error {
	_, err := s.queries.Exec("delete-kv", s.writeKey, key)
	return err
}

func (s *SQLStore) DeleteAll() error {
	_, err := s.queries.Exec("delete-kv-all", s.writeKey)
	return err
}


package kvstore

import (
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSQLStore(db, "write-key-1")
	require.NoError(t, err)
	return s
}

func TestSQLStore_TypedKeyValueRoundTrip(t *testing.T) {
	s := newTestSQLStore(t)

	require.NoError(t, s.WriteInt("i", 42))
	assert.Equal(t, 42, s.ReadInt("i", 0))

	require.NoError(t, s.WriteLong("l", 1<<40))
	assert.Equal(t, int64(1<<40), s.ReadLong("l", 0))

	require.NoError(t, s.WriteBool("b", true))
	assert.True(t, s.ReadBool("b", false))

	require.NoError(t, s.WriteString("s", "hello"))
	assert.Equal(t, "hello", s.ReadString("s", ""))
}

func TestSQLStore_MissingKeyReturnsDefault(t *testing.T) {
	s := newTestSQLStore(t)

	assert.Equal(t, 7, s.ReadInt("missing", 7))
	assert.False(t, s.ReadBool("missing", false))
	assert.Equal(t, "fallback", s.ReadString("missing", "fallback"))
}

func TestSQLStore_WrongKindFallsBackToDefault(t *testing.T) {
	s := newTestSQLStore(t)

	require.NoError(t, s.WriteString("k", "not-an-int"))
	assert.Equal(t, 99, s.ReadInt("k", 99))
}

func TestSQLStore_Remove(t *testing.T) {
	s := newTestSQLStore(t)

	require.NoError(t, s.WriteInt("i", 1))
	require.NoError(t, s.Remove("i"))
	assert.Equal(t, 0, s.ReadInt("i", 0))
}

func TestSQLStore_DeleteAll(t *testing.T) {
	s := newTestSQLStore(t)

	require.NoError(t, s.WriteInt("i", 1))
	require.NoError(t, s.WriteString("s", "v"))
	require.NoError(t, s.DeleteAll())

	assert.Equal(t, 0, s.ReadInt("i", 0))
	assert.Equal(t, "", s.ReadString("s", ""))
}

func TestSQLStore_ScopedByWriteKey(t *testing.T) {
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	a, err := NewSQLStore(db, "write-key-a")
	require.NoError(t, err)
	b, err := NewSQLStore(db, "write-key-b")
	require.NoError(t, err)

	require.NoError(t, a.WriteInt("i", 1))
	assert.Equal(t, 0, b.ReadInt("i", 0), "stores for different write keys must not see each other's values")
}

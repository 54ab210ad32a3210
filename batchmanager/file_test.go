package batchmanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudderlabs/rudder-eventcore/kvstore"
)

func newFileManager(t *testing.T, platform PlatformType, maxBatch int) *FileManager {
	t.Helper()
	dir := t.TempDir()
	m, err := NewFileManager(dir, kvstore.NewMemoryStore(), "counter", platform, maxBatch)
	require.NoError(t, err)
	return m
}

func TestFileManager_RolloverProducesClosedFile(t *testing.T) {
	m := newFileManager(t, Server, 1<<20)
	require.NoError(t, m.StoreEvent(`{"e":1}`))
	require.NoError(t, m.Rollover())

	ids, err := m.Read()
	require.NoError(t, err)
	require.Len(t, ids, 1)

	content, ok, err := m.ReadContent(ids[0])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(content), `"batch":[{"e":1}]`)
	assert.Contains(t, string(content), PlaceholderTimestamp)
}

// Server enumeration sorts "10", "2", "5", "1" into [1, 2, 5, 10] — the
// numeric, not lexical, order (spec §3/§9).
func TestFileManager_ServerSortHandlesDoubleDigitIDs(t *testing.T) {
	m := newFileManager(t, Server, 1<<20)
	for i := 0; i < 11; i++ {
		require.NoError(t, m.StoreEvent(`{"e":1}`))
		require.NoError(t, m.Rollover())
	}
	ids, err := m.Read()
	require.NoError(t, err)
	require.Len(t, ids, 11)
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i])
	}
}

func TestFileManager_TmpFilesExcludedFromRead(t *testing.T) {
	m := newFileManager(t, Server, 1<<20)
	require.NoError(t, m.StoreEvent(`{"e":1}`)) // leaves a .tmp file, never rolled over

	ids, err := m.Read()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFileManager_RemoveAndDelete(t *testing.T) {
	m := newFileManager(t, Server, 1<<20)
	require.NoError(t, m.StoreEvent(`{"e":1}`))
	require.NoError(t, m.Rollover())
	ids, _ := m.Read()
	require.Len(t, ids, 1)

	removed, err := m.Remove(ids[0])
	require.NoError(t, err)
	assert.True(t, removed)

	require.NoError(t, m.StoreEvent(`{"e":2}`))
	require.NoError(t, m.Rollover())
	require.NoError(t, m.Delete())
	ids, err = m.Read()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

package batchmanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudderlabs/rudder-eventcore/kvstore"
)

func TestMemoryManager_AtMostOneOpenBatch(t *testing.T) {
	m := NewMemoryManager(kvstore.NewMemoryStore(), "counter", Server, 1<<20)
	require.NoError(t, m.StoreEvent(`{"e":1}`))
	require.NoError(t, m.StoreEvent(`{"e":2}`))

	ids, err := m.Read()
	require.NoError(t, err)
	assert.Empty(t, ids, "nothing is closed until Rollover")

	require.NoError(t, m.Rollover())
	ids, err = m.Read()
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestMemoryManager_MonotoneCounter(t *testing.T) {
	m := NewMemoryManager(kvstore.NewMemoryStore(), "counter", Server, 1<<20)
	var closedIDs []BatchID
	for i := 0; i < 3; i++ {
		require.NoError(t, m.StoreEvent(`{"e":1}`))
		require.NoError(t, m.Rollover())
	}
	ids, err := m.Read()
	require.NoError(t, err)
	closedIDs = ids
	for i := 1; i < len(closedIDs); i++ {
		assert.Greater(t, int64(closedIDs[i]), int64(closedIDs[i-1]))
	}
}

func TestMemoryManager_ServerSortsNumerically(t *testing.T) {
	m := NewMemoryManager(kvstore.NewMemoryStore(), "counter", Server, 1<<20)
	for i := 0; i < 11; i++ {
		require.NoError(t, m.StoreEvent(`{"e":1}`))
		require.NoError(t, m.Rollover())
	}
	ids, err := m.Read()
	require.NoError(t, err)
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i])
	}
}

func TestMemoryManager_MobilePreservesCreationOrder(t *testing.T) {
	m := NewMemoryManager(kvstore.NewMemoryStore(), "counter", Mobile, 1<<20)
	var created []BatchID
	for i := 0; i < 5; i++ {
		require.NoError(t, m.StoreEvent(`{"e":1}`))
		require.NoError(t, m.Rollover())
	}
	ids, err := m.Read()
	require.NoError(t, err)
	created = ids
	for i := 1; i < len(created); i++ {
		assert.Greater(t, int64(created[i]), int64(created[i-1]), "mobile order matches creation order here since no removal reshuffled anything")
	}
}

func TestMemoryManager_RolloverOnOversizeAppend(t *testing.T) {
	m := NewMemoryManager(kvstore.NewMemoryStore(), "counter", Server, 10)
	require.NoError(t, m.StoreEvent(`{"this event alone exceeds ten bytes"}`))
	require.NoError(t, m.StoreEvent(`{"e":2}`))
	require.NoError(t, m.Rollover())

	ids, err := m.Read()
	require.NoError(t, err)
	assert.Len(t, ids, 2, "the second event's StoreEvent call observed the oversize buffer and rolled it over first")
}

func TestMemoryManager_RemoveAndCloseAndDelete(t *testing.T) {
	m := NewMemoryManager(kvstore.NewMemoryStore(), "counter", Server, 1<<20)
	require.NoError(t, m.StoreEvent(`{"e":1}`))
	require.NoError(t, m.Rollover())
	ids, _ := m.Read()
	require.Len(t, ids, 1)

	removed, err := m.Remove(ids[0])
	require.NoError(t, err)
	assert.True(t, removed)

	again, err := m.Remove(ids[0])
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, m.StoreEvent(`{"e":2}`))
	require.NoError(t, m.CloseAndReset())
	ids, err = m.Read()
	require.NoError(t, err)
	assert.Empty(t, ids, "CloseAndReset dropped the in-progress batch without finalising it")

	require.NoError(t, m.StoreEvent(`{"e":3}`))
	require.NoError(t, m.Rollover())
	require.NoError(t, m.Delete())
	ids, err = m.Read()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

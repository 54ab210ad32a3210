package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudderlabs/rudder-eventcore/batchmanager"
	"github.com/rudderlabs/rudder-eventcore/kvstore"
)

func newTestStorage(t *testing.T, maxPayload int) *Storage {
	t.Helper()
	counters := kvstore.NewMemoryStore()
	batches := batchmanager.NewMemoryManager(counters, "counter", batchmanager.Server, 1<<20)
	kv := kvstore.NewMemoryStore()
	return New(batches, kv, maxPayload)
}

func TestWriteEvent_RejectsOversizePayload(t *testing.T) {
	st := newTestStorage(t, 8)
	err := st.WriteEvent(`{"far too long for the cap"}`)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestReadEventIDs_RoundTripsThroughParseEventIDs(t *testing.T) {
	st := newTestStorage(t, 1<<20)
	for i := 0; i < 3; i++ {
		require.NoError(t, st.WriteEvent(`{"e":1}`))
		require.NoError(t, st.Rollover())
	}

	joined, err := st.ReadEventIDs()
	require.NoError(t, err)
	assert.Equal(t, ", ", batchSeparator)

	ids, err := ParseEventIDs(joined)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	direct, err := st.ReadFileList()
	require.NoError(t, err)
	assert.Equal(t, direct, ids)
}

func TestParseEventIDs_EmptyString(t *testing.T) {
	ids, err := ParseEventIDs("")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRemoveBatch(t *testing.T) {
	st := newTestStorage(t, 1<<20)
	require.NoError(t, st.WriteEvent(`{"e":1}`))
	require.NoError(t, st.Rollover())
	ids, err := st.ReadFileList()
	require.NoError(t, err)
	require.Len(t, ids, 1)

	removed, err := st.RemoveBatch(ids[0])
	require.NoError(t, err)
	assert.True(t, removed)

	ids, err = st.ReadFileList()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDelete_ClearsBatchesAndKV(t *testing.T) {
	st := newTestStorage(t, 1<<20)
	require.NoError(t, st.WriteEvent(`{"e":1}`))
	require.NoError(t, st.Rollover())
	require.NoError(t, st.WriteString("k", "v"))

	require.NoError(t, st.Delete())

	ids, err := st.ReadFileList()
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, "default", st.ReadString("k", "default"))
}

func TestGetLibraryVersion(t *testing.T) {
	st := newTestStorage(t, 1<<20)
	info := st.GetLibraryVersion()
	assert.Equal(t, LibraryName, info.Name)
	assert.Equal(t, LibraryVersion, info.Version)
}

func TestTypedKeyValueRoundTrip(t *testing.T) {
	st := newTestStorage(t, 1<<20)
	require.NoError(t, st.WriteInt("i", 42))
	assert.Equal(t, 42, st.ReadInt("i", 0))

	require.NoError(t, st.WriteBool("b", true))
	assert.True(t, st.ReadBool("b", false))

	require.NoError(t, st.RemoveKey("i"))
	assert.Equal(t, 0, st.ReadInt("i", 0))
}

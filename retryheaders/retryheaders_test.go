package retryheaders

import (
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudderlabs/rudder-eventcore/uploaderrors"
)

// fakeKV is the smallest keyValueStore good enough to exercise Provider
// without pulling in a real storage.Storage.
type fakeKV struct{ values map[string]string }

func newFakeKV() *fakeKV { return &fakeKV{values: map[string]string{}} }

func (f *fakeKV) ReadString(key, def string) string {
	if v, ok := f.values[key]; ok {
		return v
	}
	return def
}
func (f *fakeKV) WriteString(key, v string) error { f.values[key] = v; return nil }
func (f *fakeKV) RemoveKey(key string) error       { delete(f.values, key); return nil }

func TestGetHeaders_NoRecordIsEmpty(t *testing.T) {
	p := New(newFakeKV())
	assert.Empty(t, p.GetHeaders(1, 1000))
}

func TestRecordFailure_ThenGetHeaders(t *testing.T) {
	p := New(newFakeKV())
	require.NoError(t, p.RecordFailure(5, 1000, uploaderrors.RetryAbleError{Kind: uploaderrors.ErrorRetry, StatusCode: 500}))

	headers := p.GetHeaders(5, 1500)
	assert.Equal(t, "1", headers[HeaderRetryAttempt])
	assert.Equal(t, "500", headers[HeaderSinceLastAttempt])
	assert.Equal(t, "server-500", headers[HeaderRetryReason])
}

func TestRecordFailure_SameBatchIncrementsAttempt(t *testing.T) {
	p := New(newFakeKV())
	require.NoError(t, p.RecordFailure(1, 0, uploaderrors.RetryAbleError{Kind: uploaderrors.ErrorRetry, StatusCode: 500}))
	require.NoError(t, p.RecordFailure(1, 0, uploaderrors.RetryAbleError{Kind: uploaderrors.ErrorNetworkUnavailable}))
	require.NoError(t, p.RecordFailure(1, 0, uploaderrors.RetryAbleError{Kind: uploaderrors.ErrorTimeout}))
	require.NoError(t, p.RecordFailure(1, 0, uploaderrors.RetryAbleError{Kind: uploaderrors.ErrorUnknown}))

	headers := p.GetHeaders(1, 0)
	assert.Equal(t, "4", headers[HeaderRetryAttempt])
	assert.Equal(t, "client-unknown", headers[HeaderRetryReason])
}

func TestRecordFailure_DifferentBatchResetsAttempt(t *testing.T) {
	p := New(newFakeKV())
	require.NoError(t, p.RecordFailure(1, 0, uploaderrors.RetryAbleError{Kind: uploaderrors.ErrorRetry, StatusCode: 500}))
	require.NoError(t, p.RecordFailure(1, 0, uploaderrors.RetryAbleError{Kind: uploaderrors.ErrorRetry, StatusCode: 500}))
	require.NoError(t, p.RecordFailure(2, 0, uploaderrors.RetryAbleError{Kind: uploaderrors.ErrorTimeout}))

	assert.Equal(t, "1", p.GetHeaders(2, 0)[HeaderRetryAttempt])
}

// Stale invalidation (spec §8): a record for batch A, queried with batch B,
// yields an empty map and the record is preserved (not deleted on read).
func TestGetHeaders_StaleMetadataIsIgnoredNotDeleted(t *testing.T) {
	kv := newFakeKV()
	p := New(kv)
	require.NoError(t, p.RecordFailure(1, 0, uploaderrors.RetryAbleError{Kind: uploaderrors.ErrorTimeout}))

	assert.Empty(t, p.GetHeaders(2, 0))
	assert.Equal(t, "1", p.GetHeaders(1, 0)[HeaderRetryAttempt])
}

func TestClear_RemovesRecord(t *testing.T) {
	p := New(newFakeKV())
	require.NoError(t, p.RecordFailure(1, 0, uploaderrors.RetryAbleError{Kind: uploaderrors.ErrorTimeout}))
	require.NoError(t, p.Clear())
	assert.Empty(t, p.GetHeaders(1, 0))
}

func TestFromJSON_RoundTrip(t *testing.T) {
	r := RetryMetadata{BatchID: 7, Attempt: 3, LastAttemptTimestampMs: 123456, Reason: "client-timeout"}
	raw, err := r.toJSON()
	require.NoError(t, err)

	got, ok := fromJSON(raw)
	require.True(t, ok)
	assert.Equal(t, r, got)
}

func TestFromJSON_RejectsMalformedOrIncomplete(t *testing.T) {
	for _, raw := range []string{"", "{invalid}", `{"batchId":0}`} {
		_, ok := fromJSON(raw)
		assert.False(t, ok, "expected %q to be rejected", raw)
	}
}

func TestFromJSON_ToleratesUnknownFields(t *testing.T) {
	raw := `{"batchId":1,"attempt":1,"lastAttemptTimestampMs":0,"reason":"client-unknown","extra":"ignored"}`
	got, ok := fromJSON(raw)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.BatchID)
}

// Clock-skew clamp: for all (now, last) with now < last, elapsed == 0.
func TestGetHeaders_ClockSkewClamp(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("sinceLastAttemptMs is clamped to 0 when now < last", prop.ForAll(
		func(last, delta int64) bool {
			if delta < 0 {
				delta = -delta
			}
			now := last - delta
			if delta == 0 {
				now = last // equal timestamps still must clamp to "0"
			}

			kv := newFakeKV()
			p := New(kv)
			_ = p.RecordFailure(1, last, uploaderrors.RetryAbleError{Kind: uploaderrors.ErrorTimeout})

			headers := p.GetHeaders(1, now)
			elapsed, err := strconv.ParseInt(headers[HeaderSinceLastAttempt], 10, 64)
			if err != nil {
				return false
			}
			if now >= last {
				return true // not the clamp scenario this property targets
			}
			return elapsed == 0
		},
		gen.Int64Range(0, 1<<40),
		gen.Int64Range(0, 1<<40),
	))

	properties.TestingRun(t)
}

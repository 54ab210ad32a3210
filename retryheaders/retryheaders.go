// Package retryheaders derives and persists the per-batch retry state
// described in spec.md §4.3: three wire-exact HTTP headers, backed by a
// single RetryMetadata record stored through storage.Storage so the state
// survives process restarts but is invalidated the moment batch identity
// changes.
package retryheaders

import (
	"strconv"

	"github.com/goccy/go-json"

	"github.com/rudderlabs/rudder-eventcore/batchmanager"
	"github.com/rudderlabs/rudder-eventcore/uploaderrors"
)

// Header names, wire-exact per spec §4.3.
const (
	HeaderRetryAttempt     = "Rsa-Retry-Attempt"
	HeaderSinceLastAttempt = "Rsa-Since-Last-Attempt"
	HeaderRetryReason      = "Rsa-Retry-Reason"
)

// retryMetadataKey is the fixed Storage key RetryMetadata is persisted under
// (spec §6 "Persisted state").
const retryMetadataKey = "RETRY_METADATA"

// keyValueStore is the minimal surface retryheaders needs from storage.Storage;
// declared locally so this package doesn't import storage (which would create
// an import cycle once storage composes retryheaders' consumers).
type keyValueStore interface {
	ReadString(key string, def string) string
	WriteString(key string, v string) error
	RemoveKey(key string) error
}

// RetryMetadata is the persisted record from spec.md §3: at most one
// instance exists at any time, stored under retryMetadataKey.
type RetryMetadata struct {
	BatchID                int64  `json:"batchId"`
	Attempt                int    `json:"attempt"`
	LastAttemptTimestampMs int64  `json:"lastAttemptTimestampMs"`
	Reason                 string `json:"reason"`
}

// toJSON and fromJSON are compact, four-field, unknown-fields-tolerant per
// spec §4.3 "Serialisation".
func (r RetryMetadata) toJSON() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// fromJSON parses raw into a RetryMetadata, returning ok=false for empty
// input, malformed JSON, or a payload missing a required field — all three
// are treated identically as "absent" by callers (spec §8 "Round trip").
func fromJSON(raw string) (RetryMetadata, bool) {
	if raw == "" {
		return RetryMetadata{}, false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return RetryMetadata{}, false
	}
	for _, field := range []string{"batchId", "attempt", "lastAttemptTimestampMs", "reason"} {
		if _, ok := probe[field]; !ok {
			return RetryMetadata{}, false
		}
	}
	var r RetryMetadata
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return RetryMetadata{}, false
	}
	return r, true
}

// reasonFor implements the Error kind -> reason string mapping table in
// spec §4.3.
func reasonFor(err uploaderrors.RetryAbleError) string {
	switch err.Kind {
	case uploaderrors.ErrorRetry:
		if err.StatusCode == 0 {
			return "client-network"
		}
		return "server-" + strconv.Itoa(err.StatusCode)
	case uploaderrors.ErrorNetworkUnavailable:
		return "client-network"
	case uploaderrors.ErrorTimeout:
		return "client-timeout"
	default:
		return "client-unknown"
	}
}

// Provider is the RetryHeadersProvider of spec.md §4.3.
type Provider struct {
	kv keyValueStore
}

// New returns a Provider reading/writing RetryMetadata through kv.
func New(kv keyValueStore) *Provider {
	return &Provider{kv: kv}
}

// GetHeaders implements get_headers(batch_id, now_ms) (spec §4.3). Stale
// metadata (recorded for a different batch) yields an empty map and is left
// untouched — it is not deleted on read (spec §3 invariant, §9 design note).
func (p *Provider) GetHeaders(batchID batchmanager.BatchID, nowMs int64) map[string]string {
	record, ok := fromJSON(p.kv.ReadString(retryMetadataKey, ""))
	if !ok || record.BatchID != int64(batchID) {
		return map[string]string{}
	}
	elapsed := nowMs - record.LastAttemptTimestampMs
	if elapsed < 0 {
		elapsed = 0
	}
	return map[string]string{
		HeaderRetryAttempt:     strconv.Itoa(record.Attempt),
		HeaderSinceLastAttempt: strconv.FormatInt(elapsed, 10),
		HeaderRetryReason:      record.Reason,
	}
}

// RecordFailure implements record_failure(batch_id, now_ms, error) (spec
// §4.3): the attempt counter increments only when the failure is for the
// same batch as whatever is already on record; otherwise it resets to 1.
func (p *Provider) RecordFailure(batchID batchmanager.BatchID, nowMs int64, err uploaderrors.RetryAbleError) error {
	attempt := 1
	if existing, ok := fromJSON(p.kv.ReadString(retryMetadataKey, "")); ok && existing.BatchID == int64(batchID) {
		attempt = existing.Attempt + 1
	}
	record := RetryMetadata{
		BatchID:                int64(batchID),
		Attempt:                attempt,
		LastAttemptTimestampMs: nowMs,
		Reason:                 reasonFor(err),
	}
	raw, jsonErr := record.toJSON()
	if jsonErr != nil {
		return jsonErr
	}
	return p.kv.WriteString(retryMetadataKey, raw)
}

// Clear removes the record entirely (spec §4.3 clear()).
func (p *Provider) Clear() error {
	return p.kv.RemoveKey(retryMetadataKey)
}

// Package batchmanager maintains the single open batch per write-key described
// in spec.md §4.1: events are appended to a buffered byte sequence framed as
// `{"batch":[...]}`, rolled over into a closed batch on size threshold or
// explicit flush, and closed batches are enumerated in creation order. Three
// backends (memory, file, SQL) share the same Manager contract, the way the
// teacher SDK's internal/datastore package gives every persistent-store
// implementation the same DataStore interface regardless of what's behind it.
package batchmanager

import "errors"

// BatchID names a closed (or open) batch by its monotonically increasing
// index. The counter is scoped per write-key and is strictly non-decreasing
// across the process lifetime (spec §3 "Batch index counter").
type BatchID int64

// PlatformType controls how Read enumerates closed batches (spec §3, §9).
type PlatformType int

const (
	// Server sorts closed batches numerically by index, so ordered delivery
	// is guaranteed even when index 10 is filesystem-adjacent to index 2.
	Server PlatformType = iota
	// Mobile returns closed batches in whatever order the backend happens to
	// enumerate them (filesystem order for the file backend). Intentionally
	// unspecified: batch counts are low enough on mobile that sort
	// allocations aren't worth paying for (spec §9).
	Mobile
)

const (
	// OpenPrefix is the literal byte sequence that begins every open batch.
	OpenPrefix = `{"batch":[`
	// sentAtPrefix opens the closing frame written during Rollover; the
	// actual timestamp is substituted immediately before upload.
	sentAtPrefix = `],"sentAt":"`
	sentAtSuffix = `"}`
	// PlaceholderTimestamp is the placeholder value baked into the closed
	// batch body; the Uploader rewrites it to the real send time (spec §3).
	PlaceholderTimestamp = "1970-01-01T00:00:00.000Z"
	// tmpSuffix marks a batch as still open (not yet rolled over).
	tmpSuffix = ".tmp"
)

// ErrPayloadTooLarge is the error Storage returns when it rejects an event
// over MAX_PAYLOAD_SIZE before the write reaches a Manager (spec §4.2). None
// of the Manager backends check payload size or return it themselves.
var ErrPayloadTooLarge = errors.New("batchmanager: event payload exceeds MAX_PAYLOAD_SIZE")

// Manager is the operation contract spec.md §4.1 assigns to BatchManager.
// Every mutating operation is serialised internally; reads are lock-free
// snapshots that may race with a concurrent mutation (spec §4.1
// "Concurrency").
type Manager interface {
	// StoreEvent appends payload to the open batch, creating one if none
	// exists and rolling the current one over first if what it already holds
	// exceeds the max batch size. The size of the payload being appended is
	// not considered, so a batch can exceed the max by its last event.
	StoreEvent(payload string) error
	// Read returns the closed batch identifiers, ordered per PlatformType.
	Read() ([]BatchID, error)
	// ReadContent returns the raw bytes of a closed batch, or ok=false if it
	// doesn't exist.
	ReadContent(id BatchID) (content []byte, ok bool, err error)
	// Remove deletes a closed batch, reporting whether anything was removed.
	Remove(id BatchID) (removed bool, err error)
	// Rollover finalises the open batch (appends the sentAt placeholder
	// frame, strips the tmp suffix, advances the counter) and is a no-op if
	// no open batch exists.
	Rollover() error
	// CloseAndReset drops the open batch without finalising it.
	CloseAndReset() error
	// Delete removes every closed batch and drops the open batch.
	Delete() error
}

func closeFrame(body []byte) []byte {
	out := make([]byte, 0, len(body)+len(sentAtPrefix)+len(PlaceholderTimestamp)+len(sentAtSuffix))
	out = append(out, body...)
	out = append(out, sentAtPrefix...)
	out = append(out, PlaceholderTimestamp...)
	out = append(out, sentAtSuffix...)
	return out
}

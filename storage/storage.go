// Package storage is the single façade spec.md §4.2 calls Storage: a uniform
// key/value + batch-file surface that routes event writes to a
// batchmanager.Manager and every other key to a kvstore.Store, enforcing the
// per-event payload size cap at this boundary rather than inside the
// manager.
package storage

import (
	"strconv"
	"strings"

	"github.com/rudderlabs/rudder-eventcore/batchmanager"
	"github.com/rudderlabs/rudder-eventcore/kvstore"
)

// EventKey is the sentinel key that routes through the batch manager instead
// of the typed key/value store (spec §4.2).
const EventKey = "EVENT"

// LibraryName/LibraryVersion back GetLibraryVersion (spec §4.2), static like
// the teacher SDK's own version constants.
const (
	LibraryName    = "rudder-eventcore"
	LibraryVersion = "1.0.0"
)

// batchSeparator is the exact join separator the Storage/Uploader protocol
// uses to encode the closed-batch id list as a single string (spec §4.2).
const batchSeparator = ", "

// ErrPayloadTooLarge is returned by WriteEvent when payload.len() ≥
// MaxPayloadSize (spec §3, §4.2). The open batch is left untouched.
var ErrPayloadTooLarge = batchmanager.ErrPayloadTooLarge

// LibraryVersionInfo is the return type of GetLibraryVersion.
type LibraryVersionInfo struct {
	Name    string
	Version string
}

// Storage is the façade spec.md §4.2 describes: typed key/value operations
// for everything except EventKey, which goes to the batch manager.
type Storage struct {
	batches        batchmanager.Manager
	kv             kvstore.Store
	maxPayloadSize int
}

// New returns a Storage routing EVENT writes to batches and everything else
// to kv. maxPayloadSize is the MAX_PAYLOAD_SIZE cap from spec §3.
func New(batches batchmanager.Manager, kv kvstore.Store, maxPayloadSize int) *Storage {
	return &Storage{batches: batches, kv: kv, maxPayloadSize: maxPayloadSize}
}

// WriteEvent is storage.write(EVENT, payload) from spec §4.2: payloads at or
// beyond MaxPayloadSize are rejected before they ever reach the batch
// manager; anything else is delegated to store_event.
func (s *Storage) WriteEvent(payload string) error {
	if len(payload) >= s.maxPayloadSize {
		return ErrPayloadTooLarge
	}
	return s.batches.StoreEvent(payload)
}

// ReadEventIDs implements storage.read(EVENT, default): the closed-batch
// identifiers joined by ", ", the exact protocol string the Uploader parses
// back into a list (spec §4.2).
func (s *Storage) ReadEventIDs() (string, error) {
	ids, err := s.batches.Read()
	if err != nil {
		return "", err
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return strings.Join(parts, batchSeparator), nil
}

// ParseEventIDs is the Uploader-side half of the ReadEventIDs protocol: it
// turns the comma-joined string back into an ordered list of BatchIDs,
// preserving whatever order ReadEventIDs produced.
func ParseEventIDs(joined string) ([]batchmanager.BatchID, error) {
	if joined == "" {
		return nil, nil
	}
	parts := strings.Split(joined, batchSeparator)
	ids := make([]batchmanager.BatchID, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, batchmanager.BatchID(n))
	}
	return ids, nil
}

// ReadFileList is storage.read_file_list(): the closed batch ids as a typed
// slice, for callers that don't need the wire-protocol string form.
func (s *Storage) ReadFileList() ([]batchmanager.BatchID, error) {
	return s.batches.Read()
}

// ReadBatchContent is storage.read_batch_content(id).
func (s *Storage) ReadBatchContent(id batchmanager.BatchID) (string, bool, error) {
	body, ok, err := s.batches.ReadContent(id)
	if err != nil || !ok {
		return "", ok, err
	}
	return string(body), true, nil
}

// Rollover forwards to the batch manager.
func (s *Storage) Rollover() error { return s.batches.Rollover() }

// RemoveBatch removes a closed batch.
func (s *Storage) RemoveBatch(id batchmanager.BatchID) (bool, error) {
	return s.batches.Remove(id)
}

// Close drops the open batch without finalising it (storage.close()).
func (s *Storage) Close() error { return s.batches.CloseAndReset() }

// Delete clears every key and every batch (storage.delete()) — destructive.
func (s *Storage) Delete() error {
	if err := s.batches.Delete(); err != nil {
		return err
	}
	return s.kv.DeleteAll()
}

// GetLibraryVersion returns the static name/version pair (spec §4.2).
func (s *Storage) GetLibraryVersion() LibraryVersionInfo {
	return LibraryVersionInfo{Name: LibraryName, Version: LibraryVersion}
}

// WriteInt/ReadInt/... are the typed key/value operations spec §4.2 assigns
// to every key other than EventKey. Reads under a different stored type
// return the default, per the Storage invariant.
func (s *Storage) WriteInt(key string, v int) error          { return s.kv.WriteInt(key, v) }
func (s *Storage) ReadInt(key string, def int) int            { return s.kv.ReadInt(key, def) }
func (s *Storage) WriteLong(key string, v int64) error        { return s.kv.WriteLong(key, v) }
func (s *Storage) ReadLong(key string, def int64) int64       { return s.kv.ReadLong(key, def) }
func (s *Storage) WriteBool(key string, v bool) error         { return s.kv.WriteBool(key, v) }
func (s *Storage) ReadBool(key string, def bool) bool         { return s.kv.ReadBool(key, def) }
func (s *Storage) WriteString(key string, v string) error     { return s.kv.WriteString(key, v) }
func (s *Storage) ReadString(key string, def string) string   { return s.kv.ReadString(key, def) }
func (s *Storage) RemoveKey(key string) error                 { return s.kv.Remove(key) }

// Package kvstore implements the typed key/value surface that Storage delegates
// every non-event key to (spec §4.2). Three backends share one contract, mirroring
// the way the teacher SDK's internal/datastore package gives every persistent-store
// implementation (in-memory, Redis, Consul, DynamoDB) the same DataStore interface.
package kvstore

import "errors"

// ErrTypeMismatch names the condition of a key written under a different type than
// the one being read. No Store method returns it: such reads return the caller's
// default instead. Spec §4.2 invariant: "Key-typed reads return the default on type
// mismatch."
var ErrTypeMismatch = errors.New("kvstore: stored value has a different type")

// Store is the typed key/value contract every backend implements identically.
type Store interface {
	WriteInt(key string, v int) error
	ReadInt(key string, def int) int
	WriteLong(key string, v int64) error
	ReadLong(key string, def int64) int64
	WriteBool(key string, v bool) error
	ReadBool(key string, def bool) bool
	WriteString(key string, v string) error
	ReadString(key string, def string) string
	Remove(key string) error
	DeleteAll() error
}

package uploader

import (
	"bytes"
	"time"

	"github.com/rudderlabs/rudder-eventcore/batchmanager"
)

// replaceSentAt rewrites the placeholder "sentAt" timestamp baked into batch
// at rollover time with the current UTC instant, immediately before each
// send attempt (spec §3 "The placeholder is rewritten to the current UTC
// timestamp immediately before upload").
func replaceSentAt(batch []byte, now time.Time) []byte {
	placeholder := []byte(batchmanager.PlaceholderTimestamp)
	actual := []byte(now.UTC().Format("2006-01-02T15:04:05.000Z"))
	return bytes.Replace(batch, placeholder, actual, 1)
}

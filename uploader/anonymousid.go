package uploader

import "github.com/google/uuid"

// anonymousIDField is the literal key the worker scans the batch's first
// event for (spec §9 "use a literal-scan strategy, not a regex library
// feature set"): the payload is an opaque prepared blob and a full JSON
// parse would be wasted work for a single field peek.
const anonymousIDField = `"anonymousId":"`

// extractAnonymousID scans batch for the first `"anonymousId":"<value>"`
// occurrence and returns its value. On any mismatch (field absent, or the
// value is unterminated) it falls back to a freshly generated UUID, exactly
// as spec §3 describes for the caller-supplied payload.
func extractAnonymousID(batch []byte) string {
	idx := indexOf(batch, anonymousIDField)
	if idx < 0 {
		return uuid.NewString()
	}
	start := idx + len(anonymousIDField)
	end := start
	for end < len(batch) && batch[end] != '"' {
		if batch[end] == '\\' {
			end++ // skip escaped character, including an escaped quote
		}
		end++
	}
	if end >= len(batch) {
		return uuid.NewString()
	}
	value := string(batch[start:end])
	if value == "" {
		return uuid.NewString()
	}
	return value
}

// indexOf is a tiny substring scan kept local so this file has no
// dependency beyond uuid — a regexp.MustCompile here would defeat the point
// of avoiding the regex engine for a single literal field.
func indexOf(haystack []byte, needle string) int {
	n := len(needle)
	if n == 0 || n > len(haystack) {
		return -1
	}
	for i := 0; i+n <= len(haystack); i++ {
		if string(haystack[i:i+n]) == needle {
			return i
		}
	}
	return -1
}

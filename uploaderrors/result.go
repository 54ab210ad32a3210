// Package uploaderrors models EventUploadResult, the tagged sum spec.md §3
// describes: Success, a RetryAble family, and a NonRetryAble family. Go has
// no sum types, so each family is a small struct carrying a Kind enum plus
// whatever payload that kind needs (the retry variant's status code, the
// HTTP response body on success) — the same "exhaustive switch over a kind
// field" shape the teacher SDK uses for its own event/error classification.
package uploaderrors

// RetryKind enumerates the RetryAble branch of EventUploadResult (spec §3).
type RetryKind int

const (
	// ErrorRetry is a non-2xx response the server asked to be retried: any
	// 4xx/5xx other than the NonRetryAble codes, or a transport failure
	// classified generically. StatusCode is 0 when the failure never
	// reached a response (pure network/transport failure).
	ErrorRetry RetryKind = iota
	// ErrorNetworkUnavailable is DNS failure or no connectivity.
	ErrorNetworkUnavailable
	// ErrorTimeout is a socket or read timeout.
	ErrorTimeout
	// ErrorUnknown is any other transport fault.
	ErrorUnknown
)

// RetryAbleError is the RetryAble variant of EventUploadResult.
type RetryAbleError struct {
	Kind       RetryKind
	StatusCode int // 0 unless Kind == ErrorRetry and a status code was observed
}

func (e RetryAbleError) Error() string {
	switch e.Kind {
	case ErrorRetry:
		if e.StatusCode != 0 {
			return "eventcore: retryable HTTP status"
		}
		return "eventcore: retryable error"
	case ErrorNetworkUnavailable:
		return "eventcore: network unavailable"
	case ErrorTimeout:
		return "eventcore: request timed out"
	default:
		return "eventcore: unknown transport error"
	}
}

// NonRetryKind enumerates the NonRetryAble branch of EventUploadResult.
type NonRetryKind int

const (
	// Error400 — malformed request; the offending batch is poison (spec §7).
	Error400 NonRetryKind = iota
	// Error401 — invalid write-key; fatal for the whole uploader.
	Error401
	// Error404 — source disabled; fatal for the whole uploader.
	Error404
	// Error413 — payload too large for the server; the batch is poison.
	Error413
)

// StatusCode returns the HTTP status this kind was classified from.
func (k NonRetryKind) StatusCode() int {
	switch k {
	case Error400:
		return 400
	case Error401:
		return 401
	case Error404:
		return 404
	case Error413:
		return 413
	default:
		return 0
	}
}

// NonRetryAbleError is the NonRetryAble variant of EventUploadResult.
type NonRetryAbleError struct {
	Kind NonRetryKind
}

func (e NonRetryAbleError) Error() string {
	switch e.Kind {
	case Error400:
		return "eventcore: bad request (400)"
	case Error401:
		return "eventcore: invalid write key (401)"
	case Error404:
		return "eventcore: source disabled (404)"
	case Error413:
		return "eventcore: payload too large (413)"
	default:
		return "eventcore: non-retryable error"
	}
}

// Result is EventUploadResult: exactly one of Success, Retry, or Terminal is
// set, mirroring how the spec's sum type is matched exhaustively.
type Result struct {
	Success      bool
	ResponseBody string

	Retry    *RetryAbleError
	Terminal *NonRetryAbleError
}

// Ok builds a successful Result.
func Ok(body string) Result { return Result{Success: true, ResponseBody: body} }

// RetryAble builds a retryable-failure Result.
func RetryAble(err RetryAbleError) Result { return Result{Retry: &err} }

// NonRetryAble builds a terminal-failure Result.
func NonRetryAble(err NonRetryAbleError) Result { return Result{Terminal: &err} }

// ClassifyStatus maps an HTTP status code to a Result per spec §6's response
// classification table. 2xx is Success with an empty body (callers that have
// the body substitute it in); callers are expected to overwrite
// ResponseBody for 2xx themselves when they have it.
func ClassifyStatus(status int) Result {
	switch {
	case status >= 200 && status < 300:
		return Ok("")
	case status == 400:
		return NonRetryAble(NonRetryAbleError{Kind: Error400})
	case status == 401:
		return NonRetryAble(NonRetryAbleError{Kind: Error401})
	case status == 404:
		return NonRetryAble(NonRetryAbleError{Kind: Error404})
	case status == 413:
		return NonRetryAble(NonRetryAbleError{Kind: Error413})
	default:
		return RetryAble(RetryAbleError{Kind: ErrorRetry, StatusCode: status})
	}
}

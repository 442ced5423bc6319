package ir

import (
	"errors"
	"fmt"
)

// Kind classifies an error per spec §7, so the pipeline and stream
// processor can decide retry, status code, and error-frame shape without
// re-deriving the classification from scratch at every call site.
type Kind string

const (
	// KindClientInvalid: malformed inbound JSON, missing required fields.
	// Dialect-appropriate 4xx, never retried.
	KindClientInvalid Kind = "client_invalid"

	// KindUpstreamTransient: network error, 5xx, or 429 with a parseable
	// Retry-After. Retried internally per the backend's RetryPolicy.
	KindUpstreamTransient Kind = "upstream_transient"

	// KindUpstreamFatal: non-retriable 4xx, or 429 without Retry-After.
	// Status and redacted body propagate to the client.
	KindUpstreamFatal Kind = "upstream_fatal"

	// KindConversion: neutral-IR conversion or XML parse failure. 5xx in
	// the unary path; surfaced as text (never a synthesized tool call) and
	// non-fatal in the stream path.
	KindConversion Kind = "conversion"

	// KindStreamCancelled: client disconnected. No client-facing output.
	KindStreamCancelled Kind = "stream_cancelled"
)

// Error is the error type used across the proxy core. StatusCode is the
// upstream HTTP status when known (0 otherwise); Body is the upstream
// response body, already redacted and length-bounded.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Body       string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (status %d): %s: %v", e.Kind, e.StatusCode, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind == kind
	}
	return false
}

// NewClientInvalid builds a KindClientInvalid error.
func NewClientInvalid(message string, cause error) *Error {
	return &Error{Kind: KindClientInvalid, Message: message, Cause: cause}
}

// NewUpstreamTransient builds a KindUpstreamTransient error.
func NewUpstreamTransient(statusCode int, message, body string, cause error) *Error {
	return &Error{Kind: KindUpstreamTransient, StatusCode: statusCode, Message: message, Body: body, Cause: cause}
}

// NewUpstreamFatal builds a KindUpstreamFatal error.
func NewUpstreamFatal(statusCode int, message, body string, cause error) *Error {
	return &Error{Kind: KindUpstreamFatal, StatusCode: statusCode, Message: message, Body: body, Cause: cause}
}

// NewConversion builds a KindConversion error.
func NewConversion(message string, cause error) *Error {
	return &Error{Kind: KindConversion, Message: message, Cause: cause}
}

// NewStreamCancelled builds a KindStreamCancelled error.
func NewStreamCancelled(cause error) *Error {
	return &Error{Kind: KindStreamCancelled, Message: "client disconnected", Cause: cause}
}

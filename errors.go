package pipelines

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

// Error kinds reported by KindOf.
const (
	KindUpstreamAPI       ErrorKind = "upstream_api"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindMalformedInput    ErrorKind = "malformed_input"
	KindTransport         ErrorKind = "transport"
	KindUnknown           ErrorKind = "unknown"
)

// UpstreamAPIError is a non-200 reply from an upstream model endpoint.
type UpstreamAPIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *UpstreamAPIError) Error() string {
	return fmt.Sprintf("%s API error: %d - %s", e.Provider, e.StatusCode, e.Body)
}

// MalformedResponseError means the upstream replied 200 but an expected field
// was missing from the JSON body.
type MalformedResponseError struct {
	Provider string
	Field    string
	Err      error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s response malformed (%s): %v", e.Provider, e.Field, e.Err)
	}
	return fmt.Sprintf("%s response missing %s", e.Provider, e.Field)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// MalformedInputError means a caller-supplied message could not be flattened.
// Index is the position in the caller's message list, or -1 when not tied to one.
type MalformedInputError struct {
	Index  int
	Reason string
}

func (e *MalformedInputError) Error() string {
	if e.Index < 0 {
		return "malformed input: " + e.Reason
	}
	return fmt.Sprintf("malformed input at message %d: %s", e.Index, e.Reason)
}

// TransportError wraps a failure to reach an upstream endpoint at all.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first typed pipeline error in err's chain.
func KindOf(err error) ErrorKind {
	var (
		upstream  *UpstreamAPIError
		response  *MalformedResponseError
		input     *MalformedInputError
		transport *TransportError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &upstream):
		return KindUpstreamAPI
	case errors.As(err, &response):
		return KindMalformedResponse
	case errors.As(err, &input):
		return KindMalformedInput
	case errors.As(err, &transport):
		return KindTransport
	default:
		return KindUnknown
	}
}

// ErrorPrefix marks a failed result in the legacy string form.
const ErrorPrefix = "Error: "

// FormatError renders err the way string-only callers expect it.
func FormatError(err error) string {
	return ErrorPrefix + err.Error()
}

package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to clients.
type ErrorKind string

const (
	KindInvalidRequest     ErrorKind = "invalid_request"
	KindSourceUnresolvable ErrorKind = "source_unresolvable"
	KindNoStreamAvailable  ErrorKind = "no_stream_available"
	KindExtractionFailed   ErrorKind = "extraction_failed"
	KindUnknownToken       ErrorKind = "unknown_token"
	KindArtifactMissing    ErrorKind = "artifact_missing"
	KindStorageIO          ErrorKind = "storage_io"
	KindUnknown            ErrorKind = "unknown"
)

// Error is the typed error returned by the extractor, orchestrator and gateway.
// Message is safe to show to clients; Err carries the internal cause.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

// NewError constructs an *Error.
func NewError(kind ErrorKind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// MessageOf returns the client-safe message of err, or fallback when err
// carries no *Error.
func MessageOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}

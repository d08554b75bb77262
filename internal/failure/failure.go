// Package failure defines the error taxonomy shared by the remote-service clients and the
// batch pipeline, and the classification helpers that map raw errors onto it.
package failure

import (
	"context"
	"errors"
	"fmt"
)

// Kind identifies a class of failure and decides how callers react to it.
type Kind int

const (
	// KindUnknown is anything not otherwise classified.
	KindUnknown Kind = iota
	// KindTransport is a network or secure-channel failure. Retryable; triggers a reconnect.
	KindTransport
	// KindAuth is a credential rejection. Never retried.
	KindAuth
	// KindRateLimit is throttling or quota exhaustion. Retryable with backoff.
	KindRateLimit
	// KindNotFound means the referenced resource does not exist.
	KindNotFound
	// KindInvalidReference means a document reference could not be resolved to an ID.
	KindInvalidReference
	// KindResponseFormat means the grading response could not be parsed.
	KindResponseFormat
	// KindContentTooShort means the fetched document is empty or below the minimum length.
	KindContentTooShort
	// KindValidation is a sink-side rejection of the written values.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindNotFound:
		return "not_found"
	case KindInvalidReference:
		return "invalid_reference"
	case KindResponseFormat:
		return "response_format"
	case KindContentTooShort:
		return "content_too_short"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a classified failure from operation Op.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	prefix := e.Kind.String() + " error"
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	switch {
	case e.Message != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Cause)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	default:
		return prefix
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same Kind, so errors.Is(err, failure.Transport) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Cause == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	Transport        = &Error{Kind: KindTransport}
	Auth             = &Error{Kind: KindAuth}
	RateLimit        = &Error{Kind: KindRateLimit}
	NotFound         = &Error{Kind: KindNotFound}
	InvalidReference = &Error{Kind: KindInvalidReference}
	ResponseFormat   = &Error{Kind: KindResponseFormat}
	ContentTooShort  = &Error{Kind: KindContentTooShort}
	Validation       = &Error{Kind: KindValidation}
)

// New returns a classified error.
func New(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether the error class warrants another attempt.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch KindOf(err) {
	case KindTransport, KindRateLimit:
		return true
	default:
		return false
	}
}

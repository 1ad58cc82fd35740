package apperr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure categories the orchestration layer
// distinguishes. Retry and HTTP status mapping dispatch on it.
type Kind int

const (
	KindOther Kind = iota
	KindRateLimited
	KindQuotaExceeded
	KindMalformed
	KindUnsupported
	KindInvalid
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindMalformed:
		return "malformed"
	case KindUnsupported:
		return "unsupported"
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not_found"
	default:
		return "other"
	}
}

// Retryable reports whether the failure is transient backend overload.
func (k Kind) Retryable() bool {
	return k == KindRateLimited || k == KindQuotaExceeded
}

// Error carries a Kind alongside the operation that failed.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind with no message, so sentinel
// values like llm.ErrMalformedResponse work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Cause == nil
}

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindOther.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}

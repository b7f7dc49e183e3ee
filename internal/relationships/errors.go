package relationships

import (
	"errors"
	"fmt"
)

// Kind classifies a relationship failure so callers can react without parsing messages.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindSelfRequest       Kind = "self_request"
	KindDuplicateRequest  Kind = "duplicate_request"
	KindAlreadyFriends    Kind = "already_friends"
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindStoreUnavailable  Kind = "store_unavailable"
	KindInconsistentState Kind = "inconsistent_state"
)

// Error is returned by every Engine operation that fails.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrForbidden) works for every
// forbidden failure regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrSelfRequest       = &Error{Kind: KindSelfRequest}
	ErrDuplicateRequest  = &Error{Kind: KindDuplicateRequest}
	ErrAlreadyFriends    = &Error{Kind: KindAlreadyFriends}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrStoreUnavailable  = &Error{Kind: KindStoreUnavailable}
	ErrInconsistentState = &Error{Kind: KindInconsistentState}
)

// KindOf extracts the kind of err. Errors that did not originate here count as store failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var relErr *Error
	if errors.As(err, &relErr) {
		return relErr.Kind
	}
	return KindStoreUnavailable
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func storeError(op string, err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Message: op + " failed", Err: err}
}

package fetch

import (
	"fmt"
)

// Kind classifies why a fetch failed.
type Kind string

const (
	KindRateLimited Kind = "rate_limited"
	KindNetwork     Kind = "network"
	KindStatus      Kind = "status"
	KindDecode      Kind = "decode"
	KindCanceled    Kind = "canceled"
	KindInvalid     Kind = "invalid_request"
)

// Sentinels for errors.Is matching on kind.
var (
	ErrRateLimited = &Error{Kind: KindRateLimited}
	ErrNetwork     = &Error{Kind: KindNetwork}
	ErrStatus      = &Error{Kind: KindStatus}
	ErrDecode      = &Error{Kind: KindDecode}
	ErrCanceled    = &Error{Kind: KindCanceled}
)

// Error is the typed failure returned by Client. It never escapes as a panic.
type Error struct {
	Kind       Kind
	StatusCode int
	URL        string
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, and by status code when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.StatusCode == 0 || t.StatusCode == e.StatusCode
}

// Transient reports whether the failure was retried locally before surfacing.
func (e *Error) Transient() bool {
	return e.Kind == KindRateLimited || e.Kind == KindNetwork
}

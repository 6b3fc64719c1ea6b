package transport

import (
	"errors"
	"fmt"
)

// Kind classifies why a request failed.
type Kind int

const (
	KindNoAddress   Kind = iota + 1 // no server bound, nothing was sent
	KindTimeout                     // per-request deadline hit
	KindUnreachable                 // dial / connection level failure
	KindCanceled                    // caller cancelled the context
	KindMalformed                   // 2xx with a body that is not valid JSON
	KindHTTP                        // server answered with a non-2xx status
	KindOther                       // anything else, message surfaced as-is
)

func (k Kind) String() string {
	switch k {
	case KindNoAddress:
		return "no_address"
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "unreachable"
	case KindCanceled:
		return "canceled"
	case KindMalformed:
		return "malformed"
	case KindHTTP:
		return "http"
	case KindOther:
		return "other"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Messages surfaced to the user for transport-level failures.
const (
	MsgNoAddress   = "no server address configured"
	MsgTimeout     = "request timed out"
	MsgUnreachable = "could not reach server"
	MsgCanceled    = "request canceled"
	MsgMalformed   = "malformed response from server"
	MsgFailed      = "request failed"
)

// Error is the failure half of a Result.  Status is 0 for transport-level
// failures and the HTTP status for application errors.  Code carries the
// server's error code when it sent one.
type Error struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	return e.Message
}

// Retryable reports whether the same request may succeed later without the
// user changing anything.  Transport-level failures always are.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNoAddress, KindTimeout, KindUnreachable, KindMalformed:
		return true
	case KindHTTP:
		return e.Status >= 500 || e.Status == 429
	}
	return false
}

// IsTimeout reports whether err is a transport timeout.
func IsTimeout(err error) bool { return hasKind(err, KindTimeout) }

// IsUnreachable reports whether err is a connection failure.
func IsUnreachable(err error) bool { return hasKind(err, KindUnreachable) }

// IsNoAddress reports whether err came from an unbound client.
func IsNoAddress(err error) bool { return hasKind(err, KindNoAddress) }

// IsStatus reports whether err is an HTTP error with the given status.
func IsStatus(err error, status int) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindHTTP && e.Status == status
}

func hasKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

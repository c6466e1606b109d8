// Package translate drives a remote translation backend over the text units
// of a document: throttled, retried, chunked and optionally cached.
package translate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind tells whether a failed call may succeed when repeated.
type Kind int

const (
	// Transient failures are retried: rate limits, server errors, timeouts
	// and network errors.
	Transient Kind = iota
	// Permanent failures abort the translation phase: bad credentials,
	// unsupported language pairs, exhausted quota, suspended accounts.
	Permanent
)

func (k Kind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// Error codes reported by the backends.
const (
	CodeAuth                = "AUTH_FAILED"
	CodeRateLimited         = "RATE_LIMITED"
	CodeServer              = "SERVER_ERROR"
	CodeTimeout             = "TIMEOUT"
	CodeNetwork             = "NETWORK_ERROR"
	CodeUnsupportedLanguage = "UNSUPPORTED_LANGUAGE"
	CodeQuotaExhausted      = "QUOTA_EXHAUSTED"
	CodeAccountSuspended    = "ACCOUNT_SUSPENDED"
	CodeBadRequest          = "BAD_REQUEST"
	CodeEmptyResponse       = "EMPTY_RESPONSE"
)

// Error is a classified translation failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s translation error [%s]: %s", e.Kind, e.Code, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewTransient creates a retryable error.
func NewTransient(code, message string, cause error) *Error {
	return &Error{Kind: Transient, Code: code, Message: message, Cause: cause}
}

// NewPermanent creates an error that is never retried.
func NewPermanent(code, message string, cause error) *Error {
	return &Error{Kind: Permanent, Code: code, Message: message, Cause: cause}
}

// transientMarkers are fragments of error text produced by transports that
// do not expose typed errors.
var transientMarkers = []string{
	"connection", "timeout", "network", "eof", "reset by peer",
	"rate limit", "too many requests", "temporarily unavailable",
}

// Classify returns the kind of err. Typed errors keep their kind, deadlines
// and network errors are transient, cancellation and anything unrecognised
// is permanent.
func Classify(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.Canceled) {
		return Permanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return Transient
	}
	if err != nil {
		s := strings.ToLower(err.Error())
		for _, m := range transientMarkers {
			if strings.Contains(s, m) {
				return Transient
			}
		}
	}
	return Permanent
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	return err != nil && Classify(err) == Permanent
}

// Package recognition defines the Provider interface for audio-fingerprint
// recognition backends.
//
// A recognition provider wraps an external service (AudD, ACRCloud, …) that
// receives one encoded audio payload and answers with zero or more ranked track
// candidates: the primary pick first, followed by alternatives. An empty slice
// with a nil error means "no match" and is not a failure.
//
// Failures are reported as *[Error] values carrying a [Kind] so callers can
// tell recoverable problems (network errors, timeouts, malformed responses)
// from ones that will fail every subsequent request too (rejected credentials,
// exhausted quota).
//
// Implementations must be safe for concurrent use.
package recognition

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/tunetrace/pkg/track"
)

// Provider is the abstraction over any recognition backend.
type Provider interface {
	// Identify submits payload and returns the candidates in the provider's
	// ranking order. Returns a *Error on failure.
	Identify(ctx context.Context, payload []byte) ([]track.Candidate, error)

	// Name returns a short stable identifier used for logging and metrics
	// (e.g., "audd").
	Name() string
}

// Kind classifies a recognition failure.
type Kind int

const (
	// Transient failures affect a single request: network errors, timeouts,
	// 5xx responses, malformed bodies.
	Transient Kind = iota

	// Permanent failures will repeat for every request until an operator
	// intervenes: invalid credentials, exhausted quota.
	Permanent
)

// String returns "transient" or "permanent".
func (k Kind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// Error is the error type returned by providers.
type Error struct {
	// Provider is the Name of the provider that failed.
	Provider string
	Kind     Kind
	// Code is the provider-specific status code, if any.
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s failure (code %d): %v", e.Provider, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transientf builds a transient *Error.
func Transientf(provider string, code int, format string, args ...any) *Error {
	return &Error{Provider: provider, Kind: Transient, Code: code, Err: fmt.Errorf(format, args...)}
}

// Permanentf builds a permanent *Error.
func Permanentf(provider string, code int, format string, args ...any) *Error {
	return &Error{Provider: provider, Kind: Permanent, Code: code, Err: fmt.Errorf(format, args...)}
}

// IsPermanent reports whether err (or anything it wraps) is a permanent
// *Error. Errors of any other type are treated as transient.
func IsPermanent(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == Permanent
}

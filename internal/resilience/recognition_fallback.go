package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/tunetrace/pkg/provider/recognition"
	"github.com/MrWong99/tunetrace/pkg/track"
)

// errCallerDone marks calls that were skipped because the caller's context
// had already ended; the breakers ignore it.
var errCallerDone = errors.New("caller context done")

// RecognitionFallback implements [recognition.Provider] with automatic
// failover across several recognition backends, each behind its own circuit
// breaker.
//
// Breakers ignore caller cancellation and trip immediately on permanent
// provider errors (rejected credentials, exhausted quota), so a dead API key
// stops costing a round trip per segment.
//
// When every backend fails, the returned *recognition.Error is permanent only
// if each backend either failed permanently during this call or sits behind a
// breaker that a permanent error opened. A breaker opened by a run of
// timeouts keeps the failure transient: the backend is expected back once the
// breaker resets.
type RecognitionFallback struct {
	group *FallbackGroup[recognition.Provider]
	names []string
}

// Compile-time interface assertion.
var _ recognition.Provider = (*RecognitionFallback)(nil)

// NewRecognitionFallback creates a [RecognitionFallback] with primary as the
// preferred backend. cfg.CircuitBreaker.Ignore and Trip are overridden.
func NewRecognitionFallback(primary recognition.Provider, cfg FallbackConfig) *RecognitionFallback {
	cfg.CircuitBreaker.Ignore = func(err error) bool {
		return errors.Is(err, errCallerDone) || errors.Is(err, context.Canceled)
	}
	cfg.CircuitBreaker.Trip = recognition.IsPermanent
	return &RecognitionFallback{
		group: NewFallbackGroup(primary, primary.Name(), cfg),
		names: []string{primary.Name()},
	}
}

// AddFallback registers an additional provider.
func (f *RecognitionFallback) AddFallback(p recognition.Provider) {
	f.group.AddFallback(p.Name(), p)
	f.names = append(f.names, p.Name())
}

// Name returns the member names joined with "+".
func (f *RecognitionFallback) Name() string {
	return strings.Join(f.names, "+")
}

// States reports the breaker state of every member.
func (f *RecognitionFallback) States() []EntryState {
	return f.group.States()
}

// Identify tries each healthy provider in order until one answers. A "no
// match" answer (empty slice, nil error) is a success and stops the search.
func (f *RecognitionFallback) Identify(ctx context.Context, payload []byte) ([]track.Candidate, error) {
	res, err := ExecuteWithResult(f.group, func(p recognition.Provider) ([]track.Candidate, error) {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", errCallerDone, ctx.Err())
		}
		return p.Identify(ctx, payload)
	})
	if err == nil {
		return res, nil
	}

	kind := recognition.Transient
	if allPermanent(err) {
		kind = recognition.Permanent
	}
	return nil, &recognition.Error{Provider: f.Name(), Kind: kind, Err: err}
}

// allPermanent reports whether every member failure in err is permanent. The
// failure of a skipped member wraps the error that opened its breaker.
func allPermanent(err error) bool {
	var all *AllFailedError
	if !errors.As(err, &all) || len(all.Errs) == 0 {
		return false
	}
	for _, e := range all.Errs {
		if !recognition.IsPermanent(e) {
			return false
		}
	}
	return true
}

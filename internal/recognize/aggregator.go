// Package recognize fans audio segments out to a recognition provider and
// reduces the answers to one deduplicated, order-stable result list.
//
// Provider calls run with bounded concurrency and a per-call timeout. A
// transient provider failure only costs the affected segment its candidates;
// a permanent one (the provider will reject every request) aborts the whole
// recognition with [ErrGatewayUnavailable].
package recognize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/tunetrace/internal/observe"
	"github.com/MrWong99/tunetrace/internal/segment"
	"github.com/MrWong99/tunetrace/pkg/provider/recognition"
	"github.com/MrWong99/tunetrace/pkg/track"
)

// ErrGatewayUnavailable is returned when the recognition provider failed
// permanently (rejected credentials, exhausted quota).
var ErrGatewayUnavailable = errors.New("recognize: recognition service unavailable")

const (
	defaultConcurrency = 3
	defaultCallTimeout = 15 * time.Second
)

// Aggregator drives a [recognition.Provider] over a list of segments.
// It is safe for concurrent use.
type Aggregator struct {
	gateway     recognition.Provider
	concurrency int
	callTimeout time.Duration
	metrics     *observe.Metrics
}

// Option is a functional option for [NewAggregator].
type Option func(*Aggregator)

// WithConcurrency bounds the number of in-flight provider calls. 1 makes the
// fan-out sequential. Defaults to 3.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) { a.concurrency = n }
}

// WithCallTimeout sets the deadline of each provider call. Defaults to 15s.
func WithCallTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.callTimeout = d }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// NewAggregator creates an [Aggregator] over gateway.
func NewAggregator(gateway recognition.Provider, opts ...Option) *Aggregator {
	a := &Aggregator{
		gateway:     gateway,
		concurrency: defaultConcurrency,
		callTimeout: defaultCallTimeout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.concurrency <= 0 {
		a.concurrency = 1
	}
	if a.callTimeout <= 0 {
		a.callTimeout = defaultCallTimeout
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a
}

// Recognize submits every segment and returns the merged result list. An
// empty list with a nil error is a valid "no match".
//
// Errors: [ErrGatewayUnavailable] (wrapping the provider error) on a
// permanent provider failure, or the context error if ctx ends first.
func (a *Aggregator) Recognize(ctx context.Context, segments []segment.Segment) ([]track.Candidate, error) {
	ctx, span := observe.StartSpan(ctx, "recognize.aggregate",
		trace.WithAttributes(attribute.Int("segments", len(segments))),
	)
	defer span.End()

	perSegment := make([][]track.Candidate, len(segments))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(a.concurrency)

	for i, seg := range segments {
		eg.Go(func() error {
			if egCtx.Err() != nil {
				return nil
			}
			cands, err := a.identify(egCtx, seg)
			if err == nil {
				perSegment[i] = cands
				return nil
			}
			if recognition.IsPermanent(err) {
				return fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
			}
			if egCtx.Err() == nil {
				observe.Logger(ctx).Warn("segment recognition failed",
					"segment", seg.Index,
					"start_ms", seg.StartMs,
					"end_ms", seg.EndMs,
					"error", err,
				)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}

	merged := Merge(perSegment)
	span.SetAttributes(attribute.Int("results", len(merged)))
	return merged, nil
}

func (a *Aggregator) identify(ctx context.Context, seg segment.Segment) ([]track.Candidate, error) {
	ctx, span := observe.StartSpan(ctx, "recognize.segment",
		trace.WithAttributes(
			attribute.Int("segment", seg.Index),
			attribute.Int64("start_ms", seg.StartMs),
			attribute.Int64("end_ms", seg.EndMs),
		),
	)
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	a.metrics.Segments.Add(ctx, 1)
	cands, err := a.gateway.Identify(callCtx, seg.Payload)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("candidates", len(cands)))
	return cands, nil
}

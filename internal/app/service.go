package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/tunetrace/internal/history"
	"github.com/MrWong99/tunetrace/internal/navigator"
	"github.com/MrWong99/tunetrace/internal/observe"
	"github.com/MrWong99/tunetrace/internal/recognize"
	"github.com/MrWong99/tunetrace/internal/segment"
	"github.com/MrWong99/tunetrace/internal/session"
	"github.com/MrWong99/tunetrace/pkg/audio"
	"github.com/MrWong99/tunetrace/pkg/track"
)

// Outcome is the result of [Service.SubmitAudio].
type Outcome struct {
	// RequestID identifies the recognition in logs and history.
	RequestID string
	Matches   int
	// NoMatch is true when nothing was recognised; no session exists then.
	NoMatch  bool
	Segments int
	Render   navigator.RenderState
}

// Service is the command surface the chat host calls: submit a clip,
// navigate its results, list past recognitions. It is safe for concurrent
// use.
type Service struct {
	decoder    audio.Decoder
	aggregator *recognize.Aggregator
	navigator  *navigator.Navigator
	history    history.Recorder
	segments   segment.Config
	limit      int
	metrics    *observe.Metrics
	now        func() time.Time
}

// ServiceOption configures a [Service].
type ServiceOption func(*Service)

// WithHistory sets the recorder completed recognitions are logged to.
// Defaults to an in-memory ring.
func WithHistory(r history.Recorder) ServiceOption {
	return func(s *Service) { s.history = r }
}

// WithSegmentConfig sets the window length and count.
func WithSegmentConfig(c segment.Config) ServiceOption {
	return func(s *Service) { s.segments = c }
}

// WithHistoryLimit sets the default number of entries [Service.History]
// returns.
func WithHistoryLimit(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithServiceMetrics sets the metrics sink. Defaults to
// [observe.DefaultMetrics].
func WithServiceMetrics(m *observe.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService wires the recognition pipeline.
func NewService(dec audio.Decoder, agg *recognize.Aggregator, nav *navigator.Navigator, opts ...ServiceOption) *Service {
	s := &Service{
		decoder:    dec,
		aggregator: agg,
		navigator:  nav,
		segments:   segment.Config{Length: 30 * time.Second, MaxSegments: 10},
		limit:      5,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.history == nil {
		s.history = history.NewMemory(0)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Recognize decodes input, splits it into windows and returns the merged
// candidates plus the number of windows analysed. It touches no session.
//
// Errors wrap [audio.ErrDecode], [recognize.ErrGatewayUnavailable] or the
// context error.
func (s *Service) Recognize(ctx context.Context, input []byte) ([]track.Candidate, int, error) {
	tl, err := s.decoder.Decode(ctx, input)
	if err != nil {
		return nil, 0, fmt.Errorf("app: decode: %w", err)
	}
	defer tl.Close()

	segs, err := segment.Split(ctx, s.decoder, tl, s.segments)
	if err != nil {
		return nil, 0, fmt.Errorf("app: split: %w", err)
	}

	results, err := s.aggregator.Recognize(ctx, segs)
	if err != nil {
		return nil, len(segs), fmt.Errorf("app: recognize: %w", err)
	}
	return results, len(segs), nil
}

// SubmitAudio recognises input and, when anything matched, installs the
// results as the session of id (replacing any previous one). A recognition
// that finds nothing is not an error: the outcome reports NoMatch and no
// session is created.
func (s *Service) SubmitAudio(ctx context.Context, id session.Identity, input []byte) (Outcome, error) {
	ctx, reqID := observe.WithRequestID(ctx)
	ctx, span := observe.StartSpan(ctx, "app.submit_audio",
		trace.WithAttributes(
			attribute.String("identity", string(id)),
			attribute.Int("input_bytes", len(input)),
		),
	)
	defer span.End()

	log := observe.Logger(ctx).With("identity", id)
	started := s.now()

	results, nseg, err := s.Recognize(ctx, input)
	elapsed := s.now().Sub(started)
	if err != nil {
		outcome := classify(err)
		s.metrics.RecordRecognition(ctx, outcome, elapsed.Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		log.Warn("recognition failed", "stage", outcome, "segments", nseg, "err", err)
		return Outcome{RequestID: reqID, Segments: nseg}, err
	}

	render := s.navigator.Start(id, results)
	out := Outcome{
		RequestID: reqID,
		Matches:   len(results),
		NoMatch:   len(results) == 0,
		Segments:  nseg,
		Render:    render,
	}

	outcome, entryOutcome := observe.OutcomeMatch, history.OutcomeMatch
	if out.NoMatch {
		outcome, entryOutcome = observe.OutcomeNoMatch, history.OutcomeNoMatch
	}
	s.metrics.RecordRecognition(ctx, outcome, elapsed.Seconds())
	span.SetAttributes(attribute.Int("matches", out.Matches))
	log.Info("recognition complete", "matches", out.Matches, "segments", nseg, "duration", elapsed)

	entry := history.Entry{
		ID:          reqID,
		Identity:    id,
		RequestedAt: started,
		Outcome:     entryOutcome,
		Segments:    nseg,
		Duration:    elapsed,
		Tracks:      results,
	}
	if err := s.history.Record(ctx, entry); err != nil {
		log.Warn("history write failed", "err", err)
	}
	return out, nil
}

// Navigate applies action to the session of id. It fails with
// [session.ErrAbsent] when id has no results.
func (s *Service) Navigate(id session.Identity, action navigator.Action) (navigator.RenderState, error) {
	return s.navigator.Apply(id, action)
}

// History returns up to limit past recognitions of id, newest first. A
// non-positive limit uses the configured default.
func (s *Service) History(ctx context.Context, id session.Identity, limit int) ([]history.Entry, error) {
	if limit <= 0 {
		limit = s.limit
	}
	entries, err := s.history.Recent(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("app: history: %w", err)
	}
	return entries, nil
}

// classify maps a recognition error to a metrics outcome.
func classify(err error) string {
	switch {
	case errors.Is(err, audio.ErrDecode):
		return observe.OutcomeDecodeError
	case errors.Is(err, recognize.ErrGatewayUnavailable):
		return observe.OutcomeUnavailable
	default:
		return observe.OutcomeError
	}
}

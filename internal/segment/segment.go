// Package segment partitions a decoded audio timeline into a bounded, ordered
// sequence of fixed-length windows and encodes each one for submission to a
// recognition provider.
//
// Long clips (a DJ mix, a recorded radio show) may contain several tracks;
// analysing one window per segment length lets the recognizer pick up each of
// them. The number of windows is capped so that a very long upload cannot fan
// out into an unbounded number of provider calls.
package segment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/tunetrace/pkg/audio"
)

// ErrInvalidPlan is returned when the plan parameters are out of range.
var ErrInvalidPlan = errors.New("segment: invalid plan parameters")

// Window is a half-open time range [StartMs, EndMs) of a source timeline.
type Window struct {
	StartMs int64
	EndMs   int64
}

// DurationMs returns EndMs - StartMs.
func (w Window) DurationMs() int64 { return w.EndMs - w.StartMs }

// Segment is one encoded window.
type Segment struct {
	Window
	// Index is the 0-based position of the segment in its plan.
	Index   int
	Payload []byte
}

// Config controls segmentation.
type Config struct {
	// Length is the duration of every window except possibly the last.
	Length time.Duration
	// MaxSegments bounds the number of windows.
	MaxSegments int
}

// Plan returns the windows covering the first
// min(sourceDurationMs, maxSegments*segmentLengthMs) milliseconds of the
// source. Windows are contiguous, non-overlapping and all exactly
// segmentLengthMs long except the last, which is clipped to the source.
//
// A zero duration yields an empty plan.
func Plan(sourceDurationMs, segmentLengthMs int64, maxSegments int) ([]Window, error) {
	if sourceDurationMs < 0 || segmentLengthMs <= 0 || maxSegments <= 0 {
		return nil, fmt.Errorf("%w: duration=%d length=%d max=%d",
			ErrInvalidPlan, sourceDurationMs, segmentLengthMs, maxSegments)
	}

	covered := min(sourceDurationMs, int64(maxSegments)*segmentLengthMs)
	n := (covered + segmentLengthMs - 1) / segmentLengthMs

	windows := make([]Window, 0, n)
	for i := range n {
		start := i * segmentLengthMs
		windows = append(windows, Window{
			StartMs: start,
			EndMs:   min(start+segmentLengthMs, sourceDurationMs),
		})
	}
	return windows, nil
}

// Split plans tl according to cfg and encodes every window with enc. An
// encode failure aborts the split; the caller owns tl.
func Split(ctx context.Context, enc audio.Decoder, tl audio.Timeline, cfg Config) ([]Segment, error) {
	windows, err := Plan(tl.DurationMs(), cfg.Length.Milliseconds(), cfg.MaxSegments)
	if err != nil {
		return nil, err
	}

	segments := make([]Segment, 0, len(windows))
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("segment: split: %w", err)
		}
		payload, err := enc.EncodeRange(ctx, tl, w.StartMs, w.EndMs)
		if err != nil {
			return nil, fmt.Errorf("segment: encode window %d [%d,%d): %w", i, w.StartMs, w.EndMs, err)
		}
		segments = append(segments, Segment{Window: w, Index: i, Payload: payload})
	}
	return segments, nil
}

// Package mock provides test doubles for the audio package interfaces.
//
// Decoder returns a configurable Timeline from Decode and a deterministic
// payload from EncodeRange, recording every call.
//
// Example:
//
//	d := &mock.Decoder{DurationMs: 95_000}
//	tl, _ := d.Decode(ctx, input)
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/tunetrace/pkg/audio"
)

// Timeline is a mock audio.Timeline with a fixed duration.
type Timeline struct {
	mu     sync.Mutex
	Length int64
	closed int
}

// DurationMs returns Length.
func (t *Timeline) DurationMs() int64 { return t.Length }

// Close records the call.
func (t *Timeline) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

// Closed reports how many times Close was called.
func (t *Timeline) Closed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// EncodeCall records a single invocation of Decoder.EncodeRange.
type EncodeCall struct {
	StartMs int64
	EndMs   int64
}

// Decoder is a mock implementation of audio.Decoder.
type Decoder struct {
	mu sync.Mutex

	// DurationMs is the length of the Timeline returned by Decode when
	// Timeline is nil.
	DurationMs int64

	// Timeline, if non-nil, is returned by Decode.
	Timeline *Timeline

	// DecodeErr, if non-nil, is returned by Decode.
	DecodeErr error

	// EncodeErr, if non-nil, is returned by EncodeRange.
	EncodeErr error

	// DecodeCalls counts calls to Decode.
	DecodeCalls int

	// EncodeCalls records every call to EncodeRange.
	EncodeCalls []EncodeCall
}

// Decode returns Timeline (or a fresh one of DurationMs) or DecodeErr.
func (d *Decoder) Decode(_ context.Context, _ []byte) (audio.Timeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DecodeCalls++
	if d.DecodeErr != nil {
		return nil, d.DecodeErr
	}
	if d.Timeline == nil {
		d.Timeline = &Timeline{Length: d.DurationMs}
	}
	return d.Timeline, nil
}

// EncodeRange returns a payload of the form "start-end" so tests can tell
// segments apart.
func (d *Decoder) EncodeRange(_ context.Context, _ audio.Timeline, startMs, endMs int64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.EncodeCalls = append(d.EncodeCalls, EncodeCall{StartMs: startMs, EndMs: endMs})
	if d.EncodeErr != nil {
		return nil, d.EncodeErr
	}
	return []byte(fmt.Sprintf("%d-%d", startMs, endMs)), nil
}

// Ensure Decoder implements audio.Decoder at compile time.
var _ audio.Decoder = (*Decoder)(nil)

// Package audio defines the decoding boundary between raw user uploads and the
// recognition pipeline.
//
// A [Decoder] turns an arbitrary audio container (mp3, ogg/opus voice notes,
// m4a, wav, …) into a [Timeline] with a known duration, and re-encodes any
// sub-range of that timeline into a payload a recognition provider accepts.
// The reference implementation lives in the ffmpeg sub-package; tests use
// [PCM] timelines built directly from sample data.
package audio

import (
	"context"
	"errors"
	"fmt"
)

// ErrDecode is returned (wrapped) by [Decoder.Decode] when the input cannot be
// decoded because it is corrupt or in an unsupported format.
var ErrDecode = errors.New("audio: decode failed")

// bytesPerSample is fixed at 2: all timelines hold 16-bit signed
// little-endian PCM.
const bytesPerSample = 2

// Timeline is a decoded, seekable audio source. Timelines are local to one
// recognition request; callers must Close them when done.
type Timeline interface {
	// DurationMs returns the total duration in milliseconds.
	DurationMs() int64

	// Close releases any resources held by the timeline. Close is idempotent.
	Close() error
}

// Decoder decodes uploads and encodes timeline ranges.
// Implementations must be safe for concurrent use.
type Decoder interface {
	// Decode parses input into a Timeline. Errors wrap [ErrDecode] when the
	// input itself is at fault.
	Decode(ctx context.Context, input []byte) (Timeline, error)

	// EncodeRange encodes the half-open range [startMs, endMs) of tl into a
	// transport-ready payload.
	EncodeRange(ctx context.Context, tl Timeline, startMs, endMs int64) ([]byte, error)
}

// PCM is an in-memory [Timeline] holding 16-bit signed little-endian
// interleaved samples.
type PCM struct {
	data       []byte
	sampleRate int
	channels   int
}

// Compile-time interface assertion.
var _ Timeline = (*PCM)(nil)

// NewPCM wraps raw PCM data. Trailing bytes that do not form a whole frame
// are ignored.
func NewPCM(data []byte, sampleRate, channels int) (*PCM, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("audio: channel count must be positive, got %d", channels)
	}
	frame := channels * bytesPerSample
	return &PCM{
		data:       data[:len(data)-len(data)%frame],
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// SampleRate returns the sample rate in Hz.
func (p *PCM) SampleRate() int { return p.sampleRate }

// Channels returns the interleaved channel count.
func (p *PCM) Channels() int { return p.channels }

// DurationMs implements [Timeline].
func (p *PCM) DurationMs() int64 {
	bytesPerSec := int64(p.sampleRate * p.channels * bytesPerSample)
	return int64(len(p.data)) * 1000 / bytesPerSec
}

// Slice returns the PCM bytes covering [startMs, endMs), aligned to whole
// frames and clamped to the timeline. The returned slice aliases the
// timeline's buffer and must not be modified.
func (p *PCM) Slice(startMs, endMs int64) []byte {
	frame := int64(p.channels * bytesPerSample)
	offset := func(ms int64) int64 {
		if ms < 0 {
			ms = 0
		}
		off := ms * int64(p.sampleRate) / 1000 * frame
		if off > int64(len(p.data)) {
			off = int64(len(p.data))
		}
		return off
	}
	from, to := offset(startMs), offset(endMs)
	if to < from {
		to = from
	}
	return p.data[from:to]
}

// Close implements [Timeline]. It drops the sample buffer.
func (p *PCM) Close() error {
	p.data = nil
	return nil
}

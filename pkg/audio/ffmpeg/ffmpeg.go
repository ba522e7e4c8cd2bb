// Package ffmpeg implements audio.Decoder by shelling out to the ffmpeg
// binary.
//
// Decode pipes the upload through ffmpeg on stdin and reads mono 16-bit PCM
// from stdout, so any container ffmpeg understands (mp3, ogg/opus voice
// notes, m4a, flac, wav, video files with an audio track) is accepted.
// EncodeRange produces either a WAV payload (built in-process, no second
// subprocess) or an mp3 payload re-encoded by ffmpeg.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/MrWong99/tunetrace/pkg/audio"
)

const (
	defaultBinary     = "ffmpeg"
	defaultSampleRate = 16000

	// FormatWAV produces RIFF/WAV payloads.
	FormatWAV = "wav"
	// FormatMP3 produces MPEG layer III payloads.
	FormatMP3 = "mp3"
)

// Option is a functional option for configuring the Decoder.
type Option func(*Decoder)

// WithBinary overrides the ffmpeg executable path.
func WithBinary(path string) Option {
	return func(d *Decoder) {
		d.binary = path
	}
}

// WithSampleRate sets the PCM sample rate of decoded timelines.
func WithSampleRate(rate int) Option {
	return func(d *Decoder) {
		d.sampleRate = rate
	}
}

// WithPayloadFormat selects the encoding of EncodeRange payloads
// ([FormatWAV] or [FormatMP3]).
func WithPayloadFormat(format string) Option {
	return func(d *Decoder) {
		d.format = format
	}
}

// Decoder implements audio.Decoder with ffmpeg subprocesses.
type Decoder struct {
	binary     string
	sampleRate int
	format     string
}

// Compile-time interface assertion.
var _ audio.Decoder = (*Decoder)(nil)

// New creates a Decoder. It does not verify that the binary exists; use
// [Decoder.Available] for that.
func New(opts ...Option) (*Decoder, error) {
	d := &Decoder{
		binary:     defaultBinary,
		sampleRate: defaultSampleRate,
		format:     FormatWAV,
	}
	for _, o := range opts {
		o(d)
	}
	if d.sampleRate <= 0 {
		return nil, fmt.Errorf("ffmpeg: sample rate must be positive, got %d", d.sampleRate)
	}
	switch d.format {
	case FormatWAV, FormatMP3:
	default:
		return nil, fmt.Errorf("ffmpeg: unsupported payload format %q", d.format)
	}
	return d, nil
}

// Available reports whether the configured binary can be found on PATH.
func (d *Decoder) Available() bool {
	_, err := exec.LookPath(d.binary)
	return err == nil
}

// Decode converts input to a mono PCM timeline at the configured sample rate.
func (d *Decoder) Decode(ctx context.Context, input []byte) (audio.Timeline, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("ffmpeg: empty input: %w", audio.ErrDecode)
	}
	pcm, err := d.run(ctx, input,
		"-i", "pipe:0",
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(d.sampleRate),
		"pipe:1",
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg: decode: %w", ctx.Err())
		}
		return nil, fmt.Errorf("ffmpeg: decode: %w: %w", audio.ErrDecode, err)
	}
	tl, err := audio.NewPCM(pcm, d.sampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: decode: %w", err)
	}
	return tl, nil
}

// EncodeRange encodes [startMs, endMs) of tl. tl must be a timeline produced
// by an audio.PCM-based decoder.
func (d *Decoder) EncodeRange(ctx context.Context, tl audio.Timeline, startMs, endMs int64) ([]byte, error) {
	pcm, ok := tl.(*audio.PCM)
	if !ok {
		return nil, fmt.Errorf("ffmpeg: encode: unsupported timeline type %T", tl)
	}
	raw := pcm.Slice(startMs, endMs)
	if len(raw) == 0 {
		return nil, errors.New("ffmpeg: encode: empty range")
	}

	if d.format == FormatWAV {
		return audio.EncodeWAV(raw, pcm.SampleRate(), pcm.Channels()), nil
	}

	out, err := d.run(ctx, raw,
		"-f", "s16le",
		"-ar", strconv.Itoa(pcm.SampleRate()),
		"-ac", strconv.Itoa(pcm.Channels()),
		"-i", "pipe:0",
		"-f", "mp3",
		"-b:a", "128k",
		"pipe:1",
	)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: encode mp3: %w", err)
	}
	return out, nil
}

// run executes ffmpeg with stdin fed from input and returns stdout. On
// failure the trimmed stderr is folded into the error.
func (d *Decoder) run(ctx context.Context, input []byte, args ...string) ([]byte, error) {
	full := append([]string{"-hide_banner", "-loglevel", "error"}, args...)
	cmd := exec.CommandContext(ctx, d.binary, full...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

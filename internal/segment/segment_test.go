package segment_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/tunetrace/internal/segment"
	"github.com/MrWong99/tunetrace/pkg/audio/mock"
)

func TestPlan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		duration int64
		length   int64
		max      int
		want     []segment.Window
	}{
		{
			name:     "95s clip into 30s windows",
			duration: 95_000, length: 30_000, max: 10,
			want: []segment.Window{{0, 30_000}, {30_000, 60_000}, {60_000, 90_000}, {90_000, 95_000}},
		},
		{
			name:     "shorter than one window",
			duration: 12_000, length: 30_000, max: 10,
			want: []segment.Window{{0, 12_000}},
		},
		{
			name:     "exact multiple",
			duration: 60_000, length: 30_000, max: 10,
			want: []segment.Window{{0, 30_000}, {30_000, 60_000}},
		},
		{
			name:     "capped by max segments",
			duration: 600_000, length: 30_000, max: 3,
			want: []segment.Window{{0, 30_000}, {30_000, 60_000}, {60_000, 90_000}},
		},
		{
			name:     "one-shot clamp",
			duration: 95_000, length: 15_000, max: 1,
			want: []segment.Window{{0, 15_000}},
		},
		{
			name:     "zero duration",
			duration: 0, length: 30_000, max: 10,
			want: []segment.Window{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := segment.Plan(tt.duration, tt.length, tt.max)
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Plan() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPlan_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		duration int64
		length   int64
		max      int
	}{
		{"zero length", 1000, 0, 1},
		{"negative length", 1000, -5, 1},
		{"zero max", 1000, 1000, 0},
		{"negative duration", -1, 1000, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := segment.Plan(tt.duration, tt.length, tt.max)
			if !errors.Is(err, segment.ErrInvalidPlan) {
				t.Errorf("error = %v, want ErrInvalidPlan", err)
			}
		})
	}
}

// TestPlan_Coverage checks the structural properties over a grid of inputs:
// contiguity, bounds, window length and count.
func TestPlan_Coverage(t *testing.T) {
	t.Parallel()

	for _, duration := range []int64{1, 999, 1000, 29_999, 30_000, 30_001, 95_000, 1_000_000} {
		for _, length := range []int64{1000, 7000, 30_000} {
			for _, max := range []int{1, 2, 10} {
				windows, err := segment.Plan(duration, length, max)
				if err != nil {
					t.Fatalf("Plan(%d,%d,%d): %v", duration, length, max, err)
				}
				covered := min(duration, int64(max)*length)
				wantCount := int((covered + length - 1) / length)
				if len(windows) != wantCount {
					t.Errorf("Plan(%d,%d,%d) count = %d, want %d", duration, length, max, len(windows), wantCount)
				}
				if len(windows) > max {
					t.Errorf("Plan(%d,%d,%d) exceeds max", duration, length, max)
				}
				var prevEnd int64
				for i, w := range windows {
					if w.StartMs != prevEnd {
						t.Errorf("Plan(%d,%d,%d) window %d starts at %d, want %d", duration, length, max, i, w.StartMs, prevEnd)
					}
					if w.EndMs > duration {
						t.Errorf("Plan(%d,%d,%d) window %d ends past source", duration, length, max, i)
					}
					if i < len(windows)-1 && w.DurationMs() != length {
						t.Errorf("Plan(%d,%d,%d) window %d has length %d", duration, length, max, i, w.DurationMs())
					}
					prevEnd = w.EndMs
				}
				if prevEnd != covered {
					t.Errorf("Plan(%d,%d,%d) covers %d, want %d", duration, length, max, prevEnd, covered)
				}
			}
		}
	}
}

func TestSplit_EncodesEachWindow(t *testing.T) {
	t.Parallel()

	dec := &mock.Decoder{DurationMs: 95_000}
	tl, _ := dec.Decode(context.Background(), nil)

	segs, err := segment.Split(context.Background(), dec, tl, segment.Config{Length: 30 * time.Second, MaxSegments: 10})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(segs) != 4 {
		t.Fatalf("len = %d, want 4", len(segs))
	}
	wantPayloads := []string{"0-30000", "30000-60000", "60000-90000", "90000-95000"}
	for i, s := range segs {
		if s.Index != i {
			t.Errorf("segs[%d].Index = %d", i, s.Index)
		}
		if string(s.Payload) != wantPayloads[i] {
			t.Errorf("segs[%d].Payload = %q, want %q", i, s.Payload, wantPayloads[i])
		}
	}
}

func TestSplit_EncodeError(t *testing.T) {
	t.Parallel()

	encErr := errors.New("encoder exploded")
	dec := &mock.Decoder{DurationMs: 60_000, EncodeErr: encErr}
	tl, _ := dec.Decode(context.Background(), nil)

	_, err := segment.Split(context.Background(), dec, tl, segment.Config{Length: 30 * time.Second, MaxSegments: 10})
	if !errors.Is(err, encErr) {
		t.Errorf("error = %v, want wrapped encoder error", err)
	}
}

func TestSplit_InvalidConfig(t *testing.T) {
	t.Parallel()

	dec := &mock.Decoder{DurationMs: 60_000}
	tl, _ := dec.Decode(context.Background(), nil)

	_, err := segment.Split(context.Background(), dec, tl, segment.Config{Length: 0, MaxSegments: 10})
	if !errors.Is(err, segment.ErrInvalidPlan) {
		t.Errorf("error = %v, want ErrInvalidPlan", err)
	}
}

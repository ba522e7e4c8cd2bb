package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/tunetrace/internal/observe"
	"github.com/MrWong99/tunetrace/pkg/track"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func activeGauge(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "tunetrace.active_sessions" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) == 0 {
				return 0
			}
			return sum.DataPoints[0].Value
		}
	}
	return 0
}

func results(titles ...string) []track.Candidate {
	out := make([]track.Candidate, len(titles))
	for i, title := range titles {
		out[i] = track.Candidate{Artist: "Artist", Title: title}
	}
	return out
}

// numbered returns n distinct valid candidates titled "T0", "T1", ….
func numbered(n int) []track.Candidate {
	titles := make([]string, n)
	for i := range titles {
		titles[i] = fmt.Sprintf("T%d", i)
	}
	return results(titles...)
}

func titlesOf(snap Snapshot) string {
	var out string
	for _, c := range snap.Results {
		out += c.Title
	}
	return out
}

func newTestStore(t *testing.T, cfg Config) (*Store, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	m, _ := testMetrics(t)
	return NewStore(cfg, WithClock(clock.Now), WithMetrics(m)), clock
}

func TestStore_GetAbsent(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, Config{})

	if _, err := s.Get("nobody"); !errors.Is(err, ErrAbsent) {
		t.Errorf("Get err = %v, want ErrAbsent", err)
	}
	if _, _, err := s.Advance("nobody", 1); !errors.Is(err, ErrAbsent) {
		t.Errorf("Advance err = %v, want ErrAbsent", err)
	}
}

func TestStore_PutStartsAtZero(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, Config{})

	snap := s.Put("chan-1", results("A", "B", "C"))
	if snap.Cursor != 0 || snap.Len() != 3 {
		t.Fatalf("snapshot = cursor %d len %d, want 0/3", snap.Cursor, snap.Len())
	}
	cur, ok := snap.Current()
	if !ok || cur.Title != "A" {
		t.Errorf("Current = %v/%v, want A", cur.Title, ok)
	}

	got, err := s.Get("chan-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Generation != snap.Generation || got.Cursor != 0 {
		t.Errorf("Get = gen %d cursor %d, want gen %d cursor 0", got.Generation, got.Cursor, snap.Generation)
	}
}

func TestStore_PutCopiesInput(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, Config{})

	in := results("A")
	s.Put("chan-1", in)
	in[0].Title = "mutated"

	snap, _ := s.Get("chan-1")
	snap.Results[0].Title = "also mutated"

	again, _ := s.Get("chan-1")
	if again.Results[0].Title != "A" {
		t.Errorf("stored title = %q, want A", again.Results[0].Title)
	}
}

func TestStore_PutEmpty(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, Config{})

	snap := s.Put("chan-1", nil)
	if snap.Results == nil || snap.Len() != 0 {
		t.Errorf("Results = %v, want empty non-nil", snap.Results)
	}
	if !snap.Exhausted() {
		t.Error("empty session should report exhausted")
	}
	if _, ok := snap.Current(); ok {
		t.Error("Current on empty session should be false")
	}
}

func TestStore_PutSupersedes(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, Config{})

	first := s.Put("chan-1", results("A", "B"))
	if _, _, err := s.Advance("chan-1", 1); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	second := s.Put("chan-1", results("X", "Y", "Z"))

	if second.Generation <= first.Generation {
		t.Errorf("generation did not increase: %d -> %d", first.Generation, second.Generation)
	}
	got, _ := s.Get("chan-1")
	if got.Cursor != 0 || got.Results[0].Title != "X" {
		t.Errorf("after re-Put cursor=%d first=%q, want 0/X", got.Cursor, got.Results[0].Title)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestStore_Advance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		start     int
		delta     int
		reserve   int
		wantPos   int
		wantMoved bool
	}{
		{"forward", 0, 1, 0, 1, true},
		{"back at start clamps", 0, -1, 0, 0, false},
		{"forward to exhausted", 2, 1, 0, 3, true},
		{"past exhausted clamps", 3, 1, 0, 3, false},
		{"back from exhausted", 3, -1, 0, 2, true},
		{"reserve blocks at last", 2, 1, 1, 2, false},
		{"reserve allows before last", 1, 1, 1, 2, true},
		{"large jump", 0, 10, 0, 3, true},
		{"negative reserve ignored", 2, 5, -3, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, _ := newTestStore(t, Config{})
			s.Put("id", results("A", "B", "C"))
			if tt.start > 0 {
				if _, _, err := s.Advance("id", tt.start); err != nil {
					t.Fatalf("setup Advance: %v", err)
				}
			}

			snap, moved, err := s.AdvanceWithin("id", tt.delta, tt.reserve)
			if err != nil {
				t.Fatalf("AdvanceWithin: %v", err)
			}
			if snap.Cursor != tt.wantPos {
				t.Errorf("cursor = %d, want %d", snap.Cursor, tt.wantPos)
			}
			if moved != tt.wantMoved {
				t.Errorf("moved = %v, want %v", moved, tt.wantMoved)
			}
		})
	}
}

func TestStore_TTLExpiresOnAccess(t *testing.T) {
	t.Parallel()
	s, clock := newTestStore(t, Config{TTL: time.Hour})

	s.Put("chan-1", results("A"))
	clock.Advance(59 * time.Minute)
	if _, err := s.Get("chan-1"); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}

	// The Get above refreshed the session.
	clock.Advance(59 * time.Minute)
	if _, err := s.Get("chan-1"); err != nil {
		t.Fatalf("Get after refresh: %v", err)
	}

	clock.Advance(time.Hour)
	if _, err := s.Get("chan-1"); !errors.Is(err, ErrAbsent) {
		t.Errorf("Get after expiry err = %v, want ErrAbsent", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestStore_Sweep(t *testing.T) {
	t.Parallel()
	s, clock := newTestStore(t, Config{TTL: time.Hour})

	for i := range 10 {
		s.Put(Identity(fmt.Sprintf("old-%d", i)), results("A"))
	}
	clock.Advance(30 * time.Minute)
	s.Put("fresh", results("B"))
	clock.Advance(45 * time.Minute)

	if n := s.Sweep(); n != 10 {
		t.Errorf("Sweep removed %d, want 10", n)
	}
	if _, err := s.Get("fresh"); err != nil {
		t.Errorf("fresh session was swept: %v", err)
	}
}

func TestStore_LRUCap(t *testing.T) {
	t.Parallel()
	// One session per shard.
	s, _ := newTestStore(t, Config{MaxSessions: shardCount})

	for i := range 200 {
		s.Put(Identity(fmt.Sprintf("chan-%d", i)), results("A"))
	}
	if n := s.Len(); n > shardCount {
		t.Errorf("Len = %d, want <= %d", n, shardCount)
	}
	if _, err := s.Get("chan-199"); err != nil {
		t.Errorf("most recent session was evicted: %v", err)
	}
}

func TestStore_LRUKeepsRecentlyUsed(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, Config{MaxSessions: 2 * shardCount})

	// Find three identities in the same shard.
	var same []Identity
	target := s.shardFor("base")
	for i := 0; len(same) < 3; i++ {
		id := Identity(fmt.Sprintf("id-%d", i))
		if s.shardFor(id) == target {
			same = append(same, id)
		}
	}

	s.Put(same[0], results("A"))
	s.Put(same[1], results("B"))
	if _, err := s.Get(same[0]); err != nil {
		t.Fatalf("Get: %v", err)
	}
	s.Put(same[2], results("C"))

	if _, err := s.Get(same[1]); !errors.Is(err, ErrAbsent) {
		t.Errorf("least recently used session survived: %v", err)
	}
	if _, err := s.Get(same[0]); err != nil {
		t.Errorf("recently used session was evicted: %v", err)
	}
}

func TestStore_ConcurrentAdvanceIsLinearizable(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, Config{})

	const n = 100
	s.Put("shared", numbered(n+10))

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := s.Advance("shared", 1); err != nil {
				t.Errorf("Advance: %v", err)
			}
		}()
	}
	wg.Wait()

	snap, _ := s.Get("shared")
	if snap.Cursor != n {
		t.Errorf("cursor = %d after %d concurrent advances, want %d", snap.Cursor, n, n)
	}
}

func TestStore_PutSupersedesDuringConcurrentAdvance(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, Config{})

	first := s.Put("chan-1", results("A", "B"))

	// check reports a snapshot whose results do not belong to its generation.
	check := func(snap Snapshot) {
		switch {
		case snap.Generation == first.Generation:
			if titlesOf(snap) != "AB" || snap.Cursor < 0 || snap.Cursor > 2 {
				t.Errorf("torn first-generation snapshot: results=%q cursor=%d", titlesOf(snap), snap.Cursor)
			}
		case snap.Generation > first.Generation:
			if titlesOf(snap) != "XYZ" || snap.Cursor < 0 || snap.Cursor > 3 {
				t.Errorf("torn second-generation snapshot: results=%q cursor=%d", titlesOf(snap), snap.Cursor)
			}
		default:
			t.Errorf("snapshot generation %d predates the first Put (%d)", snap.Generation, first.Generation)
		}
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			delta := 1
			if g%2 == 1 {
				delta = -1
			}
			for range 200 {
				snap, _, err := s.Advance("chan-1", delta)
				if err != nil {
					t.Errorf("Advance: %v", err)
					return
				}
				check(snap)
				if snap, err := s.Get("chan-1"); err == nil {
					check(snap)
				} else {
					t.Errorf("Get: %v", err)
				}
			}
		}()
	}

	var second Snapshot
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		second = s.Put("chan-1", results("X", "Y", "Z"))
	}()

	close(start)
	wg.Wait()

	if second.Generation <= first.Generation {
		t.Fatalf("second generation %d not after first %d", second.Generation, first.Generation)
	}
	got, err := s.Get("chan-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Generation != second.Generation || titlesOf(got) != "XYZ" {
		t.Errorf("final session generation=%d results=%q, want %d/XYZ", got.Generation, titlesOf(got), second.Generation)
	}
	if got.Cursor < 0 || got.Cursor > 3 {
		t.Errorf("final cursor = %d, want within [0,3]", got.Cursor)
	}
}

func TestStore_ConcurrentIdentitiesIndependent(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore(t, Config{})

	const ids = 50
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := Identity(fmt.Sprintf("chan-%d", i))
			s.Put(id, results("A", "B", "C", "D"))
			for range i % 4 {
				_, _, _ = s.Advance(id, 1)
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		snap, err := s.Get(Identity(fmt.Sprintf("chan-%d", i)))
		if err != nil {
			t.Fatalf("Get chan-%d: %v", i, err)
		}
		if snap.Cursor != i%4 {
			t.Errorf("chan-%d cursor = %d, want %d", i, snap.Cursor, i%4)
		}
	}
}

func TestStore_ActiveSessionsGauge(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	m, reader := testMetrics(t)
	s := NewStore(Config{TTL: time.Hour}, WithClock(clock.Now), WithMetrics(m))

	s.Put("a", results("A"))
	s.Put("b", results("B"))
	s.Put("a", results("C"))
	if got := activeGauge(t, reader); got != 2 {
		t.Errorf("gauge = %d, want 2", got)
	}

	clock.Advance(2 * time.Hour)
	s.Sweep()
	if got := activeGauge(t, reader); got != 0 {
		t.Errorf("gauge after sweep = %d, want 0", got)
	}
}

func TestStore_StartStop(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	m, _ := testMetrics(t)
	s := NewStore(Config{TTL: time.Minute, SweepInterval: 5 * time.Millisecond},
		WithClock(clock.Now), WithMetrics(m))

	s.Put("a", results("A"))
	clock.Advance(time.Hour)

	s.Start(context.Background())
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not remove the expired session")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.Stop()
	s.Stop() // idempotent
}

// Package session holds the in-memory navigation state of every chat identity
// that has recognition results to browse.
//
// A [Store] maps an [Identity] to a result list plus a cursor. It is sharded
// by identity hash so unrelated chats never contend on the same lock, while
// every operation on a single identity is linearizable. Sessions live only
// for the current process; retention is bounded by a sliding TTL and an LRU
// cap, both enforced per shard.
package session

import (
	"context"
	"errors"
	"hash/maphash"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/MrWong99/tunetrace/internal/observe"
	"github.com/MrWong99/tunetrace/pkg/track"
)

// ErrAbsent is returned for identities without a live session.
var ErrAbsent = errors.New("session: no active results")

// shardCount is the fixed number of lock shards.
const shardCount = 16

const (
	defaultTTL           = 24 * time.Hour
	defaultSweepInterval = 5 * time.Minute
)

// Identity is the opaque key of a session: in the Discord host, the channel
// ID the recognition was requested in.
type Identity string

// Snapshot is an immutable copy of one session.
type Snapshot struct {
	Identity Identity
	Results  []track.Candidate
	// Cursor is in [0, len(Results)]; len(Results) means exhausted.
	Cursor int
	// Generation increases with every Put across the whole store, so two
	// snapshots of the same identity with different generations belong to
	// different recognitions.
	Generation uint64
	CreatedAt  time.Time
	TouchedAt  time.Time
}

// Len returns the number of results.
func (s Snapshot) Len() int { return len(s.Results) }

// Exhausted reports whether the cursor is past the last result.
func (s Snapshot) Exhausted() bool { return s.Cursor >= len(s.Results) }

// Current returns the result under the cursor, if any.
func (s Snapshot) Current() (track.Candidate, bool) {
	if s.Exhausted() {
		return track.Candidate{}, false
	}
	return s.Results[s.Cursor], true
}

// Config controls retention.
type Config struct {
	// TTL is how long a session survives without being accessed.
	// Defaults to 24h.
	TTL time.Duration

	// MaxSessions caps the total number of sessions, split evenly across
	// shards; the least recently used session of a full shard is evicted.
	// Zero means unlimited.
	MaxSessions int

	// SweepInterval is how often [Store.Start] purges expired sessions.
	// Defaults to 5m.
	SweepInterval time.Duration
}

type entry struct {
	results   []track.Candidate
	cursor    int
	gen       uint64
	createdAt time.Time
	touchedAt time.Time
}

func (e *entry) snapshot(id Identity) Snapshot {
	return Snapshot{
		Identity:   id,
		Results:    track.CloneAll(e.results),
		Cursor:     e.cursor,
		Generation: e.gen,
		CreatedAt:  e.createdAt,
		TouchedAt:  e.touchedAt,
	}
}

// shard keeps its entries in access order: oldest first.
type shard struct {
	mu      sync.Mutex
	entries *orderedmap.OrderedMap[Identity, *entry]
}

// Store is the concurrency-safe session map. Create it with [NewStore].
type Store struct {
	shards   [shardCount]*shard
	seed     maphash.Seed
	ttl      time.Duration
	shardCap int
	interval time.Duration
	gen      atomic.Uint64
	now      func() time.Time
	metrics  *observe.Metrics

	done     chan struct{}
	stopOnce sync.Once
}

// Option is a functional option for [NewStore].
type Option func(*Store)

// WithClock overrides the time source (used by tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMetrics sets the metrics sink for the active-sessions gauge. Defaults
// to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates an empty [Store].
func NewStore(cfg Config, opts ...Option) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	shardCap := math.MaxInt
	if cfg.MaxSessions > 0 {
		shardCap = (cfg.MaxSessions + shardCount - 1) / shardCount
	}

	s := &Store{
		seed:     maphash.MakeSeed(),
		ttl:      cfg.TTL,
		shardCap: shardCap,
		interval: cfg.SweepInterval,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: orderedmap.New[Identity, *entry]()}
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

func (s *Store) shardFor(id Identity) *shard {
	return s.shards[maphash.String(s.seed, string(id))%shardCount]
}

// Put installs a fresh session for id with the cursor at 0, replacing any
// existing one. results is copied.
func (s *Store) Put(id Identity, results []track.Candidate) Snapshot {
	now := s.now()
	e := &entry{
		results:   track.CloneAll(results),
		gen:       s.gen.Add(1),
		createdAt: now,
		touchedAt: now,
	}
	if e.results == nil {
		e.results = []track.Candidate{}
	}

	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, replaced := sh.entries.Delete(id); !replaced {
		s.metrics.ActiveSessions.Add(context.Background(), 1)
	}
	sh.entries.Set(id, e)

	for sh.entries.Len() > s.shardCap {
		oldest := sh.entries.Oldest()
		sh.entries.Delete(oldest.Key)
		s.metrics.ActiveSessions.Add(context.Background(), -1)
		slog.Debug("session evicted (capacity)", "identity", oldest.Key)
	}
	return e.snapshot(id)
}

// lookup returns the live entry for id, dropping it if expired, and marks it
// as most recently used. Must be called with sh.mu held.
func (s *Store) lookup(sh *shard, id Identity, now time.Time) (*entry, bool) {
	e, ok := sh.entries.Get(id)
	if !ok {
		return nil, false
	}
	if now.Sub(e.touchedAt) >= s.ttl {
		sh.entries.Delete(id)
		s.metrics.ActiveSessions.Add(context.Background(), -1)
		return nil, false
	}
	e.touchedAt = now
	_ = sh.entries.MoveToBack(id)
	return e, true
}

// Get returns the session of id without moving its cursor. Accessing a
// session refreshes its TTL.
func (s *Store) Get(id Identity) (Snapshot, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := s.lookup(sh, id, s.now())
	if !ok {
		return Snapshot{}, ErrAbsent
	}
	return e.snapshot(id), nil
}

// Advance atomically applies cursor = clamp(cursor+delta, 0, len(results)).
// The bool reports whether the cursor moved.
func (s *Store) Advance(id Identity, delta int) (Snapshot, bool, error) {
	return s.AdvanceWithin(id, delta, 0)
}

// AdvanceWithin is [Store.Advance] with the upper clamp bound lowered to
// len(results)-reserve. Manual navigation reserves 1 so that the cursor
// stays on a real item and the boundary check and the move happen under one
// lock.
func (s *Store) AdvanceWithin(id Identity, delta, reserve int) (Snapshot, bool, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := s.lookup(sh, id, s.now())
	if !ok {
		return Snapshot{}, false, ErrAbsent
	}

	upper := max(0, len(e.results)-max(0, reserve))
	next := max(0, min(e.cursor+delta, upper))
	moved := next != e.cursor
	e.cursor = next
	return e.snapshot(id), moved, nil
}

// Len returns the number of live (possibly expired but not yet swept)
// sessions.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += sh.entries.Len()
		sh.mu.Unlock()
	}
	return n
}

// Sweep removes every expired session and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		// Entries are in access order, so expired ones form a prefix.
		for pair := sh.entries.Oldest(); pair != nil; {
			if now.Sub(pair.Value.touchedAt) < s.ttl {
				break
			}
			next := pair.Next()
			sh.entries.Delete(pair.Key)
			removed++
			pair = next
		}
		sh.mu.Unlock()
	}
	if removed > 0 {
		s.metrics.ActiveSessions.Add(context.Background(), int64(-removed))
	}
	return removed
}

// Start runs the periodic sweeper in a background goroutine until
// [Store.Stop] is called or ctx is cancelled.
func (s *Store) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop halts the sweeper. Safe to call multiple times.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *Store) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				slog.Debug("expired sessions swept", "count", n)
			}
		}
	}
}

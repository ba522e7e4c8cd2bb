package history

import (
	"context"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/MrWong99/tunetrace/internal/session"
	"github.com/MrWong99/tunetrace/pkg/track"
)

// DefaultMemoryCapacity is the per-identity ring size used when
// [NewMemory] is given a non-positive capacity.
const DefaultMemoryCapacity = 20

// DefaultMaxIdentities bounds how many identities a [Memory] remembers unless
// [WithMaxIdentities] says otherwise.
const DefaultMaxIdentities = 10_000

// Memory is an in-process [Recorder] that keeps the last few entries of every
// identity. Once more than the maximum number of identities have recorded,
// the identity that recorded least recently is forgotten.
type Memory struct {
	mu            sync.Mutex
	capacity      int
	maxIdentities int
	// rings is ordered from least to most recently recorded.
	rings *orderedmap.OrderedMap[session.Identity, []Entry]
}

var _ Recorder = (*Memory)(nil)

// MemoryOption configures a [Memory].
type MemoryOption func(*Memory)

// WithMaxIdentities caps the number of identities kept. Non-positive values
// keep [DefaultMaxIdentities].
func WithMaxIdentities(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.maxIdentities = n
		}
	}
}

// NewMemory creates a [Memory] keeping capacity entries per identity.
func NewMemory(capacity int, opts ...MemoryOption) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	m := &Memory{
		capacity:      capacity,
		maxIdentities: DefaultMaxIdentities,
		rings:         orderedmap.New[session.Identity, []Entry](),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Record implements [Recorder].
func (m *Memory) Record(_ context.Context, e Entry) error {
	e.Tracks = track.CloneAll(e.Tracks)

	m.mu.Lock()
	defer m.mu.Unlock()

	ring, _ := m.rings.Get(e.Identity)
	ring = append(ring, e)
	if over := len(ring) - m.capacity; over > 0 {
		ring = append(ring[:0:0], ring[over:]...)
	}
	m.rings.Set(e.Identity, ring)
	_ = m.rings.MoveToBack(e.Identity)

	for m.rings.Len() > m.maxIdentities {
		m.rings.Delete(m.rings.Oldest().Key)
	}
	return nil
}

// Recent implements [Recorder].
func (m *Memory) Recent(_ context.Context, identity session.Identity, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ring, _ := m.rings.Get(identity)
	n := len(ring)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, 0, n)
	for i := len(ring) - 1; i >= len(ring)-n; i-- {
		e := ring[i]
		e.Tracks = track.CloneAll(e.Tracks)
		out = append(out, e)
	}
	return out, nil
}

// Package history keeps an append-only log of completed recognitions per
// chat identity, served back by the /history command.
//
// History is an audit trail, not session state: it is never used to restore
// a navigation session. Two [Recorder] implementations exist: [Memory], a
// bounded ring per identity that lives as long as the process, and
// [Postgres], a table in PostgreSQL for deployments that want the log to
// survive restarts.
package history

import (
	"context"
	"time"

	"github.com/MrWong99/tunetrace/internal/session"
	"github.com/MrWong99/tunetrace/pkg/track"
)

// Outcome values stored in [Entry.Outcome].
const (
	OutcomeMatch   = "match"
	OutcomeNoMatch = "no_match"
)

// Entry is one completed recognition.
type Entry struct {
	// ID is the request ID of the recognition (a UUID).
	ID          string
	Identity    session.Identity
	RequestedAt time.Time
	Outcome     string
	// Segments is the number of windows sent to the gateway.
	Segments int
	Duration time.Duration
	Tracks   []track.Candidate
}

// Recorder persists and lists entries.
//
// Implementations must be safe for concurrent use.
type Recorder interface {
	// Record appends e to the log of e.Identity.
	Record(ctx context.Context, e Entry) error

	// Recent returns up to limit entries of identity, newest first.
	Recent(ctx context.Context, identity session.Identity, limit int) ([]Entry, error)
}

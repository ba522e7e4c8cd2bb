package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/tunetrace/internal/session"
	"github.com/MrWong99/tunetrace/pkg/track"
)

// Schema is the DDL of the recognitions table. Run it with [Postgres.Migrate].
const Schema = `
CREATE TABLE IF NOT EXISTS recognitions (
    id           UUID PRIMARY KEY,
    identity     TEXT NOT NULL,
    requested_at TIMESTAMPTZ NOT NULL,
    outcome      TEXT NOT NULL,
    segments     INTEGER NOT NULL DEFAULT 0,
    duration_ms  BIGINT NOT NULL DEFAULT 0,
    tracks       JSONB NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_recognitions_identity_time
    ON recognitions(identity, requested_at DESC);
`

// DB is the subset of *pgxpool.Pool used by [Postgres]. *pgx.Conn satisfies
// it too.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is a [Recorder] backed by PostgreSQL.
type Postgres struct {
	db DB
}

var _ Recorder = (*Postgres)(nil)

// NewPostgres wraps db. Call [Postgres.Migrate] before the first Record.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

// Connect opens a pool for dsn, verifies it with a ping and applies [Schema].
// The caller owns the returned pool and must Close it.
func Connect(ctx context.Context, dsn string) (*Postgres, *pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("history: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("history: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("history: ping: %w", err)
	}

	p := NewPostgres(pool)
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return p, pool, nil
}

// Migrate applies [Schema].
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Record implements [Recorder].
func (p *Postgres) Record(ctx context.Context, e Entry) error {
	tracks := e.Tracks
	if tracks == nil {
		tracks = []track.Candidate{}
	}
	tracksJSON, err := json.Marshal(tracks)
	if err != nil {
		return fmt.Errorf("history: marshal tracks: %w", err)
	}

	const query = `
		INSERT INTO recognitions (id, identity, requested_at, outcome, segments, duration_ms, tracks)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = p.db.Exec(ctx, query,
		e.ID, string(e.Identity), e.RequestedAt, e.Outcome,
		e.Segments, e.Duration.Milliseconds(), tracksJSON,
	)
	if err != nil {
		return fmt.Errorf("history: record %s: %w", e.ID, err)
	}
	return nil
}

// Recent implements [Recorder].
func (p *Postgres) Recent(ctx context.Context, identity session.Identity, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}

	const query = `
		SELECT id::text, identity, requested_at, outcome, segments, duration_ms, tracks
		FROM recognitions
		WHERE identity = $1
		ORDER BY requested_at DESC
		LIMIT $2`

	rows, err := p.db.Query(ctx, query, string(identity), limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			ident      string
			segments   int32
			durationMs int64
			tracksJSON []byte
		)
		if err := rows.Scan(&e.ID, &ident, &e.RequestedAt, &e.Outcome, &segments, &durationMs, &tracksJSON); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if err := json.Unmarshal(tracksJSON, &e.Tracks); err != nil {
			return nil, fmt.Errorf("history: unmarshal tracks of %s: %w", e.ID, err)
		}
		e.Identity = session.Identity(ident)
		e.Segments = int(segments)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate: %w", err)
	}
	return out, nil
}

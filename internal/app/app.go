// Package app wires the tunetrace subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the recognition gateway,
// the session store and the history log from the config, Run keeps the
// background housekeeping alive, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithHistoryRecorder,
// WithMetrics). Providers always come from the caller.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/tunetrace/internal/config"
	"github.com/MrWong99/tunetrace/internal/health"
	"github.com/MrWong99/tunetrace/internal/history"
	"github.com/MrWong99/tunetrace/internal/navigator"
	"github.com/MrWong99/tunetrace/internal/observe"
	"github.com/MrWong99/tunetrace/internal/recognize"
	"github.com/MrWong99/tunetrace/internal/resilience"
	"github.com/MrWong99/tunetrace/internal/segment"
	"github.com/MrWong99/tunetrace/internal/session"
	"github.com/MrWong99/tunetrace/pkg/audio"
	"github.com/MrWong99/tunetrace/pkg/provider/recognition"
)

// Providers holds the provider instances built by main.go via the config
// registry. Recognition is ordered by preference; the first entry is the
// primary, the rest are fallbacks.
type Providers struct {
	Decoder     audio.Decoder
	Recognition []recognition.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	gateway  *resilience.RecognitionFallback
	store    *session.Store
	history  history.Recorder
	service  *Service
	checkers []health.Checker

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHistoryRecorder injects a history recorder instead of creating one
// from config.
func WithHistoryRecorder(r history.Recorder) Option {
	return func(a *App) { a.history = r }
}

// WithMetrics sets the metrics sink shared by every subsystem. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. New performs all
// initialisation synchronously, including the history database connection
// and migration when a DSN is configured.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Decoder == nil {
		return nil, errors.New("app: a decoder is required")
	}
	if len(providers.Recognition) == 0 {
		return nil, errors.New("app: at least one recognition provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.initGateway()

	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	mode, err := navigator.ParseMode(string(cfg.Recognition.Navigation))
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a.store = session.NewStore(session.Config{
		TTL:           cfg.Sessions.TTL,
		MaxSessions:   cfg.Sessions.MaxSessions,
		SweepInterval: cfg.Sessions.SweepInterval,
	}, session.WithMetrics(a.metrics))
	a.closers = append(a.closers, func() error {
		a.store.Stop()
		return nil
	})

	agg := recognize.NewAggregator(a.gateway,
		recognize.WithConcurrency(cfg.Recognition.Concurrency),
		recognize.WithCallTimeout(cfg.Recognition.CallTimeout),
		recognize.WithMetrics(a.metrics),
	)

	a.service = NewService(providers.Decoder, agg, navigator.New(a.store, mode),
		WithHistory(a.history),
		WithHistoryLimit(cfg.History.Limit),
		WithServiceMetrics(a.metrics),
		WithSegmentConfig(segment.Config{
			Length:      cfg.Recognition.SegmentLength,
			MaxSegments: cfg.Recognition.MaxSegments,
		}),
	)

	a.checkers = append([]health.Checker{
		health.BreakerChecker("recognition", a.gateway.States),
	}, a.checkers...)

	return a, nil
}

// initGateway instruments every recognition provider and chains them behind
// per-provider circuit breakers.
func (a *App) initGateway() {
	members := a.providers.Recognition
	a.gateway = resilience.NewRecognitionFallback(
		recognize.Instrument(members[0], a.metrics), resilience.FallbackConfig{},
	)
	for _, p := range members[1:] {
		a.gateway.AddFallback(recognize.Instrument(p, a.metrics))
	}
	slog.Info("recognition gateway ready", "providers", a.gateway.Name())
}

// initHistory connects the PostgreSQL history log when a DSN is configured
// and falls back to an in-memory ring otherwise.
func (a *App) initHistory(ctx context.Context) error {
	if a.history != nil {
		return nil
	}

	dsn := a.cfg.History.PostgresDSN
	if dsn == "" {
		// Remember history for as many channels as may hold a session.
		a.history = history.NewMemory(0, history.WithMaxIdentities(a.cfg.Sessions.MaxSessions))
		slog.Info("history kept in memory")
		return nil
	}

	rec, pool, err := history.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	a.history = rec
	a.checkers = append(a.checkers, health.PingChecker("postgres", pool.Ping))
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	slog.Info("history stored in postgres")
	return nil
}

// Service returns the command surface handed to the chat host.
func (a *App) Service() *Service { return a.service }

// Checkers returns the readiness checks of the wired subsystems.
func (a *App) Checkers() []health.Checker { return a.checkers }

// Run starts background housekeeping and blocks until ctx is cancelled. It
// returns context.Canceled (or the underlying cause).
func (a *App) Run(ctx context.Context) error {
	a.store.Start(ctx)

	slog.Info("app running",
		"gateway", a.gateway.Name(),
		"navigation", a.cfg.Recognition.Navigation,
	)
	<-ctx.Done()
	return ctx.Err()
}

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

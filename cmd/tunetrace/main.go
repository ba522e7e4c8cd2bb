// Command tunetrace is the main entry point for the tunetrace music
// recognition bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/tunetrace/internal/app"
	"github.com/MrWong99/tunetrace/internal/config"
	discordbot "github.com/MrWong99/tunetrace/internal/discord"
	"github.com/MrWong99/tunetrace/internal/discord/commands"
	"github.com/MrWong99/tunetrace/internal/health"
	"github.com/MrWong99/tunetrace/internal/observe"
	"github.com/MrWong99/tunetrace/pkg/audio"
	"github.com/MrWong99/tunetrace/pkg/audio/ffmpeg"
	"github.com/MrWong99/tunetrace/pkg/provider/recognition"
	"github.com/MrWong99/tunetrace/pkg/provider/recognition/acrcloud"
	"github.com/MrWong99/tunetrace/pkg/provider/recognition/audd"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "tunetrace: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "tunetrace: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(newLogger(level))

	slog.Info("tunetrace starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	checkers := application.Checkers()

	// ── Discord bot (optional) ────────────────────────────────────────────────
	var bot *discordbot.Bot
	if cfg.Discord.Token != "" {
		bot, err = discordbot.New(ctx, discordbot.Config{
			Token:         cfg.Discord.Token,
			GuildID:       cfg.Discord.GuildID,
			AllowedRoleID: cfg.Discord.AllowedRoleID,
		})
		if err != nil {
			slog.Error("failed to create Discord bot", "err", err)
			return 1
		}
		commands.NewTrackCommands(bot, application.Service(),
			commands.WithMaxUpload(cfg.Recognition.MaxUploadBytes),
		)
		checkers = append(checkers, health.PingChecker("discord", bot.Ready))
		slog.Info("discord bot connected", "guild_id", cfg.Discord.GuildID)
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, updated *config.Config) {
		applyConfigChange(level, config.Diff(old, updated))
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	}

	// ── Operational HTTP endpoints ────────────────────────────────────────────
	var srv *http.Server
	if cfg.Server.ListenAddr != "" {
		mux := http.NewServeMux()
		health.New(checkers...).Register(mux)
		mux.Handle("GET /metrics", tel.MetricsHandler)
		srv = &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           observe.Middleware(metrics)(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return application.Run(egCtx) })
	if bot != nil {
		eg.Go(func() error { return bot.Run(egCtx) })
	}
	if srv != nil {
		eg.Go(func() error {
			slog.Info("http server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		eg.Go(func() error {
			<-egCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	exit := 0
	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")

	if watcher != nil {
		watcher.Stop()
	}

	// Close the Discord bot first (unregister commands, disconnect).
	if bot != nil {
		if err := bot.Close(); err != nil {
			slog.Warn("discord bot close error", "err", err)
		}
	}

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

// applyConfigChange applies what can change at runtime and reports the rest.
func applyConfigChange(level *slog.LevelVar, d config.ConfigDiff) {
	if d.Empty() {
		return
	}
	if d.LogLevelChanged {
		level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes take effect after a restart", "sections", d.RestartRequired)
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation package.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterDecoder("ffmpeg", func(entry config.ProviderEntry) (audio.Decoder, error) {
		var opts []ffmpeg.Option
		if bin := entry.OptString("binary"); bin != "" {
			opts = append(opts, ffmpeg.WithBinary(bin))
		}
		if rate := entry.OptInt("sample_rate"); rate > 0 {
			opts = append(opts, ffmpeg.WithSampleRate(rate))
		}
		if format := entry.OptString("payload_format"); format != "" {
			opts = append(opts, ffmpeg.WithPayloadFormat(format))
		}
		d, err := ffmpeg.New(opts...)
		if err != nil {
			return nil, err
		}
		if !d.Available() {
			slog.Warn("ffmpeg binary not found on PATH, every upload will fail to decode")
		}
		return d, nil
	})

	reg.RegisterRecognition("audd", func(entry config.ProviderEntry) (recognition.Provider, error) {
		var opts []audd.Option
		if entry.BaseURL != "" {
			opts = append(opts, audd.WithBaseURL(entry.BaseURL))
		}
		return audd.New(entry.APIKey, opts...)
	})

	reg.RegisterRecognition("acrcloud", func(entry config.ProviderEntry) (recognition.Provider, error) {
		var opts []acrcloud.Option
		if n := entry.OptInt("max_results"); n > 0 {
			opts = append(opts, acrcloud.WithMaxResults(n))
		}
		return acrcloud.New(entry.BaseURL, entry.APIKey, entry.OptString("secret"), opts...)
	})

	for kind, names := range reg.Names() {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// Recognition providers keep their configured order.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	dec, err := reg.CreateDecoder(cfg.Providers.Decoder)
	if err != nil {
		return nil, fmt.Errorf("create decoder %q: %w", cfg.Providers.Decoder.Name, err)
	}
	ps.Decoder = dec
	slog.Info("provider created", "kind", "decoder", "name", cfg.Providers.Decoder.Name)

	for _, entry := range cfg.Providers.Recognition {
		p, err := reg.CreateRecognition(entry)
		if err != nil {
			return nil, fmt.Errorf("create recognition provider %q: %w", entry.Name, err)
		}
		ps.Recognition = append(ps.Recognition, p)
		slog.Info("provider created", "kind", "recognition", "name", entry.Name)
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        tunetrace: startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Decoder", cfg.Providers.Decoder.Name)
	for i, p := range cfg.Providers.Recognition {
		kind := "Fallback"
		if i == 0 {
			kind = "Recognition"
		}
		printRow(kind, p.Name)
	}
	printRow("Navigation", string(cfg.Recognition.Navigation))
	printRow("Segments", fmt.Sprintf("%d x %s", cfg.Recognition.MaxSegments, cfg.Recognition.SegmentLength))
	if cfg.History.PostgresDSN != "" {
		printRow("History", "postgres")
	} else {
		printRow("History", "in-memory")
	}
	if cfg.Discord.Token != "" {
		printRow("Discord", "connected")
	} else {
		printRow("Discord", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

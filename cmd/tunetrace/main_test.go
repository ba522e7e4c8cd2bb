package main

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/MrWong99/tunetrace/internal/config"
)

func TestBuildProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	cfg := &config.Config{Providers: config.ProvidersConfig{
		Decoder: config.ProviderEntry{Name: "ffmpeg", Options: map[string]any{"payload_format": "mp3"}},
		Recognition: []config.ProviderEntry{
			{Name: "acrcloud", BaseURL: "identify-eu-west-1.acrcloud.com", APIKey: "key", Options: map[string]any{"secret": "s", "max_results": 2}},
			{Name: "audd", APIKey: "token"},
		},
	}}

	ps, err := buildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if ps.Decoder == nil {
		t.Error("decoder not built")
	}
	if len(ps.Recognition) != 2 || ps.Recognition[0].Name() != "acrcloud" || ps.Recognition[1].Name() != "audd" {
		t.Errorf("recognition order wrong: %d providers", len(ps.Recognition))
	}
}

func TestBuildProviders_Errors(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	tests := []struct {
		name string
		cfg  config.ProvidersConfig
	}{
		{
			name: "unknown decoder",
			cfg: config.ProvidersConfig{
				Decoder:     config.ProviderEntry{Name: "sox"},
				Recognition: []config.ProviderEntry{{Name: "audd", APIKey: "t"}},
			},
		},
		{
			name: "bad decoder option",
			cfg: config.ProvidersConfig{
				Decoder:     config.ProviderEntry{Name: "ffmpeg", Options: map[string]any{"payload_format": "flac"}},
				Recognition: []config.ProviderEntry{{Name: "audd", APIKey: "t"}},
			},
		},
		{
			name: "unknown recognition provider",
			cfg: config.ProvidersConfig{
				Decoder:     config.ProviderEntry{Name: "ffmpeg"},
				Recognition: []config.ProviderEntry{{Name: "shazam"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := buildProviders(&config.Config{Providers: tt.cfg}, reg)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.name != "bad decoder option" && !errors.Is(err, config.ErrProviderNotRegistered) {
				t.Errorf("err = %v, want ErrProviderNotRegistered", err)
			}
		})
	}
}

func TestApplyConfigChange(t *testing.T) {
	t.Parallel()

	level := new(slog.LevelVar)
	applyConfigChange(level, config.ConfigDiff{})
	if level.Level() != slog.LevelInfo {
		t.Fatalf("empty diff changed level to %v", level.Level())
	}

	applyConfigChange(level, config.ConfigDiff{
		LogLevelChanged: true,
		NewLogLevel:     config.LogDebug,
		RestartRequired: []string{"providers"},
	})
	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
}

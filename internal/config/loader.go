package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the built-in provider names per kind. [Validate]
// warns about names outside this list.
var ValidProviderNames = map[string][]string{
	"decoder":     {"ffmpeg"},
	"recognition": {"audd", "acrcloud"},
}

// Load reads the YAML configuration at path, applies defaults and validates
// it.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Unknown keys are an error.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg for coherence and returns a joined error listing every
// problem found. It expects defaults to have been applied.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	r := cfg.Recognition
	if r.SegmentLength < 0 || (r.SegmentLength > 0 && r.SegmentLength.Milliseconds() == 0) {
		errs = append(errs, fmt.Errorf("recognition.segment_length %s must be at least 1ms", r.SegmentLength))
	}
	if r.MaxSegments < 0 {
		errs = append(errs, fmt.Errorf("recognition.max_segments %d must be positive", r.MaxSegments))
	}
	if r.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("recognition.concurrency %d must be positive", r.Concurrency))
	}
	if r.CallTimeout < 0 {
		errs = append(errs, fmt.Errorf("recognition.call_timeout %s must be positive", r.CallTimeout))
	}
	if !r.Navigation.IsValid() {
		errs = append(errs, fmt.Errorf("recognition.navigation %q is invalid; valid values: manual, sequential", r.Navigation))
	}
	if r.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("recognition.max_upload_bytes %d must be positive", r.MaxUploadBytes))
	}

	validateProviderName("decoder", cfg.Providers.Decoder.Name)
	if len(cfg.Providers.Recognition) == 0 {
		errs = append(errs, errors.New("providers.recognition must list at least one provider"))
	}
	seen := make(map[string]int, len(cfg.Providers.Recognition))
	for i, p := range cfg.Providers.Recognition {
		prefix := fmt.Sprintf("providers.recognition[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[p.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of providers.recognition[%d]", prefix, p.Name, prev))
		}
		seen[p.Name] = i
		validateProviderName("recognition", p.Name)

		switch p.Name {
		case "audd":
			if p.APIKey == "" {
				errs = append(errs, fmt.Errorf("%s: audd requires api_key", prefix))
			}
		case "acrcloud":
			if p.BaseURL == "" {
				errs = append(errs, fmt.Errorf("%s: acrcloud requires base_url (the project host)", prefix))
			}
			if p.APIKey == "" {
				errs = append(errs, fmt.Errorf("%s: acrcloud requires api_key (the access key)", prefix))
			}
			if p.OptString("secret") == "" {
				errs = append(errs, fmt.Errorf("%s: acrcloud requires options.secret", prefix))
			}
		}
	}

	s := cfg.Sessions
	if s.TTL < 0 {
		errs = append(errs, fmt.Errorf("sessions.ttl %s must be positive", s.TTL))
	}
	if s.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("sessions.max_sessions %d must not be negative", s.MaxSessions))
	}
	if s.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("sessions.sweep_interval %s must be positive", s.SweepInterval))
	}

	if cfg.History.Limit < 0 {
		errs = append(errs, fmt.Errorf("history.limit %d must be positive", cfg.History.Limit))
	}

	if cfg.Discord.Token == "" {
		slog.Warn("discord.token is empty; the bot will not connect")
	}

	return errors.Join(errs...)
}

// validateProviderName warns if name is not a built-in provider of kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/liamchens/quran-voice-buddy/internal/recite/align"
	"github.com/liamchens/quran-voice-buddy/internal/transcript"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":      {"deepgram", "whisper", "whisper-native", "openai"},
	"passages": {SourceYAML, SourceSQLite, SourcePostgres, SourceHTTP},
}

// Default returns the configuration every loaded file is decoded over.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
			LogFormat:  LogFormatText,
		},
		Alignment: align.DefaultConfig(),
	}
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r over [Default] and validates
// the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Speech-to-text providers
	validateProviderName("stt", cfg.Providers.STT.Name)
	if cfg.Providers.STT.Name == "" {
		if len(cfg.Providers.STTFallbacks) > 0 {
			errs = append(errs, errors.New("providers.stt_fallbacks requires providers.stt"))
		}
		slog.Warn("providers.stt is not configured; sessions accept client-side transcripts only")
	}
	for i, fb := range cfg.Providers.STTFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("stt", fb.Name)
	}

	// Passages
	if cfg.Passages.Source == "" {
		errs = append(errs, errors.New("passages.source is required"))
	} else {
		errs = append(errs, validateSource("passages", cfg.Passages.PassageSource)...)
	}
	for i, fb := range cfg.Passages.Fallbacks {
		errs = append(errs, validateSource(fmt.Sprintf("passages.fallbacks[%d]", i), fb)...)
	}
	if cfg.Passages.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("passages.cache_ttl %s must not be negative", cfg.Passages.CacheTTL))
	}

	// Alignment
	if err := cfg.Alignment.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("alignment: %w", err))
	}

	// Session
	if _, err := transcript.ParseMode(cfg.Session.Mode); err != nil {
		errs = append(errs, fmt.Errorf("session.mode: %w", err))
	}
	if cfg.Session.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("session.sample_rate %d must not be negative", cfg.Session.SampleRate))
	}
	if cfg.Session.Channels < 0 || cfg.Session.Channels > 2 {
		errs = append(errs, fmt.Errorf("session.channels %d is out of range [0, 2]", cfg.Session.Channels))
	}
	if cfg.Session.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("session.max_sessions %d must not be negative", cfg.Session.MaxSessions))
	}
	rc := cfg.Session.Reconnect
	if rc.MaxRetries < 0 || rc.Backoff < 0 || rc.MaxBackoff < 0 {
		errs = append(errs, errors.New("session.reconnect values must not be negative"))
	}
	if rc.MaxBackoff > 0 && rc.Backoff > rc.MaxBackoff {
		errs = append(errs, fmt.Errorf("session.reconnect.backoff %s exceeds max_backoff %s", rc.Backoff, rc.MaxBackoff))
	}

	return errors.Join(errs...)
}

// validateSource checks the fields src's kind needs.
func validateSource(prefix string, src PassageSource) []error {
	var errs []error
	switch src.Source {
	case SourceYAML, SourceSQLite:
		if src.Path == "" {
			errs = append(errs, fmt.Errorf("%s.path is required when source is %s", prefix, src.Source))
		}
	case SourcePostgres:
		if src.DSN == "" {
			errs = append(errs, fmt.Errorf("%s.dsn is required when source is postgres", prefix))
		}
	case SourceHTTP:
	case "":
		errs = append(errs, fmt.Errorf("%s.source is required", prefix))
	default:
		validateProviderName("passages", src.Source)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

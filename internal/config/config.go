// Package config provides the configuration schema, loader, and provider
// registry for the recitation server.
package config

import (
	"time"

	"github.com/liamchens/quran-voice-buddy/internal/recite/align"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// Passage source kinds.
const (
	SourceYAML     = "yaml"
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres"
	SourceHTTP     = "http"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Passages  PassagesConfig  `yaml:"passages"`

	// Alignment is the policy for new sessions. Fields left out of the file
	// keep the values of align.DefaultConfig.
	Alignment align.Config `yaml:"alignment"`

	Session SessionConfig `yaml:"session"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat is "text" (default) or "json".
	LogFormat LogFormat `yaml:"log_format"`

	// LogFile, when set, sends logs to a size-rotated file instead of stderr.
	LogFile string `yaml:"log_file"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares the speech-to-text providers. The first healthy
// provider of STT followed by STTFallbacks serves each stream.
type ProvidersConfig struct {
	STT          ProviderEntry   `yaml:"stt"`
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider, or the model file
	// for in-process providers.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the standard
	// fields above.
	Options map[string]any `yaml:"options"`
}

// OptString returns the string option key, or "".
func (e ProviderEntry) OptString(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// OptInt returns the integer option key, or def when it is absent or not a
// whole number.
func (e ProviderEntry) OptInt(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return def
}

// PassageSource describes one place passages are read from.
type PassageSource struct {
	// Source is one of "yaml", "sqlite", "postgres" or "http".
	Source string `yaml:"source"`

	// Path is the file for the yaml and sqlite sources.
	Path string `yaml:"path"`

	// DSN is the connection string for the postgres source.
	DSN string `yaml:"dsn"`

	// BaseURL and Edition configure the http source.
	BaseURL string `yaml:"base_url"`
	Edition string `yaml:"edition"`
}

// PassagesConfig selects the passage sources and the cache in front of them.
type PassagesConfig struct {
	PassageSource `yaml:",inline"`

	// Fallbacks are consulted in order when the primary source fails or does
	// not know a passage.
	Fallbacks []PassageSource `yaml:"fallbacks"`

	// CacheSize is the number of passages kept in memory. Zero selects
	// passage.DefaultCacheSize; negative disables the cache.
	CacheSize int `yaml:"cache_size"`

	// CacheTTL expires cached passages. Zero keeps them until evicted.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// SessionConfig holds the defaults for recitation sessions.
type SessionConfig struct {
	// Mode is "final" (default) or "interim".
	Mode string `yaml:"mode"`

	Language   string `yaml:"language"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`

	// StallTimeout recycles a speech-to-text stream that stays silent this
	// long after voiced audio. Negative disables the watchdog.
	StallTimeout time.Duration `yaml:"stall_timeout"`

	Reconnect ReconnectConfig `yaml:"reconnect"`

	// MaxSessions caps concurrent sessions. Zero means unlimited.
	MaxSessions int `yaml:"max_sessions"`
}

// ReconnectConfig bounds how a lost speech-to-text stream is reopened.
type ReconnectConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

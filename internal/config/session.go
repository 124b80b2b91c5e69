package config

import (
	"github.com/liamchens/quran-voice-buddy/internal/session"
	"github.com/liamchens/quran-voice-buddy/internal/transcript"
)

// SessionConfig returns the controller configuration for a new session.
// Validate has already rejected an unknown mode.
func (c *Config) SessionConfig() session.Config {
	mode, _ := transcript.ParseMode(c.Session.Mode)
	return session.Config{
		Mode:         mode,
		Align:        c.Alignment,
		Language:     c.Session.Language,
		SampleRate:   c.Session.SampleRate,
		Channels:     c.Session.Channels,
		StallTimeout: c.Session.StallTimeout,
		Reconnect: session.ReconnectConfig{
			MaxRetries: c.Session.Reconnect.MaxRetries,
			Backoff:    c.Session.Reconnect.Backoff,
			MaxBackoff: c.Session.Reconnect.MaxBackoff,
		},
	}
}

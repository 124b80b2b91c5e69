package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/liamchens/quran-voice-buddy/internal/recite/align"
	"github.com/liamchens/quran-voice-buddy/internal/transcript"
)

// Default controller parameters.
const (
	defaultMaxRetries   = 10
	defaultBackoff      = 1 * time.Second
	defaultMaxBackoff   = 30 * time.Second
	defaultSampleRate   = 16000
	defaultChannels     = 1
	defaultLanguage     = "ar"
	defaultStallTimeout = 15 * time.Second
)

// ReconnectConfig bounds how a lost stream is reopened.
type ReconnectConfig struct {
	// MaxRetries is the number of attempts before giving up. Defaults to 10.
	MaxRetries int

	// Backoff is the wait after the first failed attempt. It doubles after
	// every further failure up to MaxBackoff. Defaults to 1s.
	Backoff time.Duration

	// MaxBackoff caps Backoff. Defaults to 30s.
	MaxBackoff time.Duration
}

// Config configures a Controller. Zero fields take defaults.
type Config struct {
	// Mode selects which transcripts grow the hypothesis.
	Mode transcript.Mode

	// Align is the alignment policy. The zero value selects
	// align.DefaultConfig.
	Align align.Config

	// Language, SampleRate and Channels describe the audio sent to the
	// provider.
	Language   string
	SampleRate int
	Channels   int

	// StallTimeout recycles a stream that returns no transcript this long
	// after voiced audio was sent. Negative disables the watchdog.
	StallTimeout time.Duration

	Reconnect ReconnectConfig
}

// DefaultConfig returns the configuration used for zero fields.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = transcript.ModeFinal
	}
	if c.Align == (align.Config{}) {
		c.Align = align.DefaultConfig()
	}
	if c.Language == "" {
		c.Language = defaultLanguage
	}
	if c.SampleRate <= 0 {
		c.SampleRate = defaultSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = defaultChannels
	}
	if c.StallTimeout == 0 {
		c.StallTimeout = defaultStallTimeout
	}
	if c.Reconnect.MaxRetries <= 0 {
		c.Reconnect.MaxRetries = defaultMaxRetries
	}
	if c.Reconnect.Backoff <= 0 {
		c.Reconnect.Backoff = defaultBackoff
	}
	if c.Reconnect.MaxBackoff <= 0 {
		c.Reconnect.MaxBackoff = defaultMaxBackoff
	}
	return c
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if _, err := transcript.ParseMode(string(c.Mode)); err != nil {
		errs = append(errs, err)
	}
	if c.Align != (align.Config{}) {
		if err := c.Align.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Reconnect.MaxBackoff > 0 && c.Reconnect.Backoff > c.Reconnect.MaxBackoff {
		errs = append(errs, fmt.Errorf("session: reconnect backoff %s exceeds max backoff %s", c.Reconnect.Backoff, c.Reconnect.MaxBackoff))
	}
	if c.SampleRate < 0 || c.Channels < 0 {
		errs = append(errs, errors.New("session: sample rate and channels must not be negative"))
	}
	return errors.Join(errs...)
}

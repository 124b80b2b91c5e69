package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/liamchens/quran-voice-buddy/internal/config"
)

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		check   func(config.ConfigDiff) bool
		changed bool
	}{
		{
			name:   "no changes",
			mutate: func(*config.Config) {},
			check:  func(d config.ConfigDiff) bool { return !d.Changed() },
		},
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			check: func(d config.ConfigDiff) bool {
				return d.LogLevelChanged && d.NewLogLevel == config.LogDebug && len(d.RestartRequired) == 0
			},
			changed: true,
		},
		{
			name:   "alignment",
			mutate: func(c *config.Config) { c.Alignment.LookaheadWindow = 5 },
			check: func(d config.ConfigDiff) bool {
				return d.AlignmentChanged && !d.SessionChanged && len(d.RestartRequired) == 0
			},
			changed: true,
		},
		{
			name:    "session",
			mutate:  func(c *config.Config) { c.Session.StallTimeout = time.Minute },
			check:   func(d config.ConfigDiff) bool { return d.SessionChanged && !d.AlignmentChanged },
			changed: true,
		},
		{
			name:   "listen address needs restart",
			mutate: func(c *config.Config) { c.Server.ListenAddr = ":9999" },
			check: func(d config.ConfigDiff) bool {
				return !d.LogLevelChanged && slices.Equal(d.RestartRequired, []string{"server"})
			},
			changed: true,
		},
		{
			name: "providers and passages need restart",
			mutate: func(c *config.Config) {
				c.Providers.STT.Name = "whisper"
				c.Passages.CacheSize = 5
			},
			check: func(d config.ConfigDiff) bool {
				return slices.Equal(d.RestartRequired, []string{"providers", "passages"})
			},
			changed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old := config.Default()
			old.Passages.Source = config.SourceHTTP
			next := config.Default()
			next.Passages.Source = config.SourceHTTP
			tt.mutate(next)

			d := config.Diff(old, next)
			if !tt.check(d) {
				t.Errorf("unexpected diff: %+v", d)
			}
			if d.Changed() != tt.changed {
				t.Errorf("Changed() = %v, want %v", d.Changed(), tt.changed)
			}
		})
	}
}

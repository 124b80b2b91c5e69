package config_test

import (
	"strings"
	"testing"

	"github.com/liamchens/quran-voice-buddy/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name:    "missing passage source",
			yaml:    "server:\n  log_level: info\n",
			wantErr: []string{"passages.source is required"},
		},
		{
			name:    "invalid log level",
			yaml:    "server:\n  log_level: bananas\npassages:\n  source: http\n",
			wantErr: []string{"server.log_level"},
		},
		{
			name:    "invalid log format",
			yaml:    "server:\n  log_format: xml\npassages:\n  source: http\n",
			wantErr: []string{"server.log_format"},
		},
		{
			name:    "tls without key",
			yaml:    "server:\n  tls:\n    cert_file: c.pem\npassages:\n  source: http\n",
			wantErr: []string{"server.tls"},
		},
		{
			name:    "yaml source without path",
			yaml:    "passages:\n  source: yaml\n",
			wantErr: []string{"passages.path is required"},
		},
		{
			name:    "postgres fallback without dsn",
			yaml:    "passages:\n  source: http\n  fallbacks:\n    - source: postgres\n",
			wantErr: []string{"passages.fallbacks[0].dsn is required"},
		},
		{
			name:    "fallback without source",
			yaml:    "passages:\n  source: http\n  fallbacks:\n    - path: x\n",
			wantErr: []string{"passages.fallbacks[0].source is required"},
		},
		{
			name:    "stt fallback without primary",
			yaml:    "providers:\n  stt_fallbacks:\n    - name: whisper\npassages:\n  source: http\n",
			wantErr: []string{"requires providers.stt"},
		},
		{
			name:    "stt fallback without name",
			yaml:    "providers:\n  stt:\n    name: deepgram\n  stt_fallbacks:\n    - model: x\npassages:\n  source: http\n",
			wantErr: []string{"providers.stt_fallbacks[0].name is required"},
		},
		{
			name:    "alignment out of range",
			yaml:    "passages:\n  source: http\nalignment:\n  confirm_threshold: 101\n  lookahead_window: 0\n",
			wantErr: []string{"confirm_threshold", "lookahead_window"},
		},
		{
			name:    "unknown session mode",
			yaml:    "passages:\n  source: http\nsession:\n  mode: eager\n",
			wantErr: []string{"session.mode"},
		},
		{
			name:    "backoff above max",
			yaml:    "passages:\n  source: http\nsession:\n  reconnect:\n    backoff: 1m\n    max_backoff: 1s\n",
			wantErr: []string{"exceeds max_backoff"},
		},
		{
			name:    "negative cache ttl",
			yaml:    "passages:\n  source: http\n  cache_ttl: -1s\n",
			wantErr: []string{"cache_ttl"},
		},
		{
			name: "multiple errors are joined",
			yaml: "server:\n  log_level: loud\npassages:\n  source: sqlite\nsession:\n  channels: 6\n",
			wantErr: []string{
				"server.log_level",
				"passages.path is required",
				"session.channels",
			},
		},
		{
			name: "unknown provider names only warn",
			yaml: "providers:\n  stt:\n    name: custom-asr\npassages:\n  source: custom-db\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			for _, w := range tt.wantErr {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q does not mention %q", err, w)
				}
			}
		})
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{"stt", "passages"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("ValidProviderNames[%q] is empty", kind)
		}
	}
}

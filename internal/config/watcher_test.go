package config_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/liamchens/quran-voice-buddy/internal/config"
)

// recitationConfig renders a config file for a deployment reading passages
// from a YAML file with Deepgram transcription.
type recitationConfig struct {
	LogLevel     string
	PassagesPath string
	STT          string
	Confirm      int
	Mode         string
}

func (c recitationConfig) String() string {
	return fmt.Sprintf(`
server:
  log_level: %s
providers:
  stt:
    name: %s
    api_key: dg-key
passages:
  source: yaml
  path: %s
alignment:
  confirm_threshold: %d
session:
  mode: %s
`, c.LogLevel, c.STT, c.PassagesPath, c.Confirm, c.Mode)
}

func bootConfig() recitationConfig {
	return recitationConfig{LogLevel: "info", PassagesPath: "quran.yaml", STT: "deepgram", Confirm: 50, Mode: "final"}
}

func writeConfig(t *testing.T, path string, c recitationConfig) {
	t.Helper()
	if err := os.WriteFile(path, []byte(c.String()), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// newTestWatcher boots a watcher on c and records every applied reload.
func newTestWatcher(t *testing.T, c recitationConfig) (*config.Watcher, string, *[]config.Reload) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voicebuddy.yaml")
	writeConfig(t, path, c)

	var reloads []config.Reload
	w, err := config.NewWatcher(path, func(r config.Reload) { reloads = append(reloads, r) },
		config.WithWatchLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w, path, &reloads
}

func TestWatcher_BootConfig(t *testing.T) {
	t.Parallel()
	w, _, reloads := newTestWatcher(t, bootConfig())

	cur := w.Current()
	if cur.Passages.Path != "quran.yaml" || cur.Alignment.ConfirmThreshold != 50 {
		t.Errorf("boot config = %+v", cur)
	}
	if w.Check() {
		t.Error("Check on an unchanged file applied a reload")
	}
	if len(*reloads) != 0 || len(w.Held()) != 0 {
		t.Errorf("reloads = %d, held = %v; want none", len(*reloads), w.Held())
	}
}

func TestWatcher_RetunesAlignment(t *testing.T) {
	t.Parallel()
	w, path, reloads := newTestWatcher(t, bootConfig())

	edit := bootConfig()
	edit.Confirm = 60
	edit.LogLevel = "debug"
	writeConfig(t, path, edit)

	if !w.Check() {
		t.Fatal("Check did not apply the new thresholds")
	}
	if len(*reloads) != 1 {
		t.Fatalf("reloads = %d, want 1", len(*reloads))
	}
	r := (*reloads)[0]
	if !r.Diff.AlignmentChanged || !r.Diff.LogLevelChanged || r.Diff.SessionChanged {
		t.Errorf("diff = %+v, want alignment and log level", r.Diff)
	}
	if r.Old.Alignment.ConfirmThreshold != 50 || r.New.Alignment.ConfirmThreshold != 60 {
		t.Errorf("confirm_threshold %d -> %d, want 50 -> 60", r.Old.Alignment.ConfirmThreshold, r.New.Alignment.ConfirmThreshold)
	}
	if got := r.New.SessionConfig().Align.ConfirmThreshold; got != 60 {
		t.Errorf("new sessions would align with confirm_threshold %d, want 60", got)
	}
	if w.Current() != r.New {
		t.Error("Current does not return the applied config")
	}
}

func TestWatcher_HoldsRestartSections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		edit      func(*recitationConfig)
		wantApply bool
		wantHeld  []string
	}{
		{
			name:     "passage source only",
			edit:     func(c *recitationConfig) { c.PassagesPath = "mushaf.yaml" },
			wantHeld: []string{"passages"},
		},
		{
			name:     "transcription provider only",
			edit:     func(c *recitationConfig) { c.STT = "whisper" },
			wantHeld: []string{"providers"},
		},
		{
			name: "session mode with passage source",
			edit: func(c *recitationConfig) {
				c.Mode = "interim"
				c.PassagesPath = "mushaf.yaml"
			},
			wantApply: true,
			wantHeld:  []string{"passages"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w, path, reloads := newTestWatcher(t, bootConfig())
			edit := bootConfig()
			tt.edit(&edit)
			writeConfig(t, path, edit)

			if got := w.Check(); got != tt.wantApply {
				t.Fatalf("Check = %v, want %v", got, tt.wantApply)
			}
			if got := w.Held(); !slices.Equal(got, tt.wantHeld) {
				t.Errorf("Held = %v, want %v", got, tt.wantHeld)
			}
			cur := w.Current()
			if cur.Passages.Path != "quran.yaml" || cur.Providers.STT.Name != "deepgram" {
				t.Errorf("restart-only sections were applied: passages %q, stt %q", cur.Passages.Path, cur.Providers.STT.Name)
			}
			if !tt.wantApply {
				return
			}
			r := (*reloads)[0]
			if len(r.Diff.RestartRequired) != 0 || !slices.Equal(r.Held, tt.wantHeld) {
				t.Errorf("reload diff %+v held %v", r.Diff, r.Held)
			}
			if cur.Session.Mode != "interim" {
				t.Errorf("session.mode = %q, want interim", cur.Session.Mode)
			}
		})
	}
}

func TestWatcher_HeldClearsWhenReverted(t *testing.T) {
	t.Parallel()
	w, path, _ := newTestWatcher(t, bootConfig())

	edit := bootConfig()
	edit.PassagesPath = "mushaf.yaml"
	writeConfig(t, path, edit)
	w.Check()
	if len(w.Held()) != 1 {
		t.Fatalf("Held = %v, want passages", w.Held())
	}

	writeConfig(t, path, bootConfig())
	w.Check()
	if held := w.Held(); len(held) != 0 {
		t.Errorf("Held = %v after revert, want none", held)
	}
}

func TestWatcher_InvalidEditKeepsCurrent(t *testing.T) {
	t.Parallel()
	w, path, reloads := newTestWatcher(t, bootConfig())

	edit := bootConfig()
	edit.Confirm = 150
	writeConfig(t, path, edit)
	if w.Check() {
		t.Fatal("Check applied an out-of-range confirm_threshold")
	}
	if err := os.WriteFile(path, []byte("alignment: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if w.Check() {
		t.Fatal("Check applied malformed YAML")
	}

	if len(*reloads) != 0 {
		t.Errorf("reloads = %d, want 0", len(*reloads))
	}
	if got := w.Current().Alignment.ConfirmThreshold; got != 50 {
		t.Errorf("confirm_threshold = %d, want 50", got)
	}

	// A later valid edit still goes through.
	edit.Confirm = 55
	writeConfig(t, path, edit)
	if !w.Check() || w.Current().Alignment.ConfirmThreshold != 55 {
		t.Errorf("valid edit after bad ones not applied: %d", w.Current().Alignment.ConfirmThreshold)
	}
}

func TestWatcher_WatchPollsUntilCancelled(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "voicebuddy.yaml")
	writeConfig(t, path, bootConfig())

	applied := make(chan config.Reload, 1)
	w, err := config.NewWatcher(path, func(r config.Reload) { applied <- r },
		config.WithInterval(10*time.Millisecond),
		config.WithWatchLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		w.Watch(ctx)
		close(done)
	}()

	edit := bootConfig()
	edit.Mode = "interim"
	writeConfig(t, path, edit)

	select {
	case r := <-applied:
		if !r.Diff.SessionChanged {
			t.Errorf("diff = %+v, want session change", r.Diff)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload within 2s")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

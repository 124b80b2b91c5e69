package passage_test

import (
	"context"
	"strings"
	"testing"

	"github.com/liamchens/quran-voice-buddy/internal/passage"
)

func TestLoadFile(t *testing.T) {
	t.Parallel()
	pf, err := passage.LoadFile("testdata/passages.yaml")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(pf.Passages) != 2 {
		t.Fatalf("got %d passages, want 2", len(pf.Passages))
	}
	if got := pf.Passages[0]; got.ID != "1" || got.Title != "Al-Fatiha" || len(got.Segments) != 7 {
		t.Errorf("first passage = %+v", got)
	}
}

func TestOpenYAML(t *testing.T) {
	t.Parallel()
	s, err := passage.OpenYAML("testdata/passages.yaml")
	if err != nil {
		t.Fatalf("OpenYAML: %v", err)
	}
	p, err := s.Passage(context.Background(), "112")
	if err != nil {
		t.Fatalf("Passage: %v", err)
	}
	if p.Segments[3].Number != 4 {
		t.Errorf("segment number = %d, want 4", p.Segments[3].Number)
	}
}

func TestLoadFromReader_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    "passages:\n  - id: a\n    verses: []\n",
			wantErr: "verses",
		},
		{
			name:    "duplicate id",
			yaml:    "passages:\n  - id: a\n    segments: [{number: 1, text: x}]\n  - id: a\n    segments: [{number: 1, text: y}]\n",
			wantErr: "duplicate id",
		},
		{
			name:    "missing segments",
			yaml:    "passages:\n  - id: a\n",
			wantErr: "at least one segment",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := passage.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromReader_Empty(t *testing.T) {
	t.Parallel()
	pf, err := passage.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pf.Passages) != 0 {
		t.Errorf("got %d passages, want 0", len(pf.Passages))
	}
}

package passage_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/liamchens/quran-voice-buddy/internal/passage"
)

func ikhlas() *passage.Passage {
	return &passage.Passage{
		ID:    "112",
		Title: "Al-Ikhlas",
		Segments: []passage.Segment{
			{Number: 1, Text: "قُلْ هُوَ ٱللَّهُ أَحَدٌ"},
			{Number: 2, Text: "ٱللَّهُ ٱلصَّمَدُ"},
			{Number: 3, Text: "لَمْ يَلِدْ وَلَمْ يُولَدْ"},
			{Number: 4, Text: "وَلَمْ يَكُن لَّهُۥ كُفُوًا أَحَدٌۢ"},
		},
	}
}

func TestPassage_Index(t *testing.T) {
	t.Parallel()
	p := ikhlas()
	if got := p.Texts(); len(got) != 4 || got[1] != "ٱللَّهُ ٱلصَّمَدُ" {
		t.Fatalf("Texts() = %v", got)
	}
	idx := p.Index()
	if idx.Len() != 15 {
		t.Errorf("Len() = %d, want 15", idx.Len())
	}
	if idx.SegmentCount() != 4 {
		t.Errorf("SegmentCount() = %d, want 4", idx.SegmentCount())
	}
	if got := idx.At(0).Normalized; got != "قل" {
		t.Errorf("At(0).Normalized = %q, want قل", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		p       *passage.Passage
		wantErr string
	}{
		{name: "valid", p: ikhlas()},
		{name: "nil", p: nil, wantErr: "nil passage"},
		{name: "no id", p: &passage.Passage{Segments: []passage.Segment{{Text: "x"}}}, wantErr: "id must not be empty"},
		{name: "no segments", p: &passage.Passage{ID: "1"}, wantErr: "at least one segment"},
		{name: "blank segment", p: &passage.Passage{ID: "1", Segments: []passage.Segment{{Text: " "}}}, wantErr: "segment[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := passage.Validate(tt.p)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestMemStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var s passage.MemStore

	if _, err := s.Passage(ctx, "112"); !errors.Is(err, passage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := s.Put(ctx, &passage.Passage{}); err == nil {
		t.Fatal("Put accepted an invalid passage")
	}

	n, err := passage.Import(ctx, &s, []*passage.Passage{ikhlas(), {ID: "1", Segments: []passage.Segment{{Number: 1, Text: "بسم الله"}}}})
	if err != nil || n != 2 {
		t.Fatalf("Import = %d, %v", n, err)
	}
	ids, _ := s.IDs(ctx)
	if !slices.Equal(ids, []string{"1", "112"}) {
		t.Errorf("IDs() = %v", ids)
	}

	got, err := s.Passage(ctx, "112")
	if err != nil {
		t.Fatalf("Passage: %v", err)
	}
	got.Segments[0].Text = "changed"
	again, _ := s.Passage(ctx, "112")
	if again.Segments[0].Text == "changed" {
		t.Error("MemStore returned shared segments")
	}
}

func TestImport_StopsAtInvalid(t *testing.T) {
	t.Parallel()
	s := passage.NewMemStore()
	n, err := passage.Import(context.Background(), s, []*passage.Passage{ikhlas(), {ID: "bad"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if n != 1 {
		t.Errorf("imported %d, want 1", n)
	}
}

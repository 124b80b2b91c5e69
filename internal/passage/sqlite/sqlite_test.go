package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/liamchens/quran-voice-buddy/internal/passage"
	"github.com/liamchens/quran-voice-buddy/internal/passage/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "passages.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	pf, err := passage.LoadFile("../testdata/passages.yaml")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if n, err := passage.Import(ctx, s, pf.Passages); err != nil || n != 2 {
		t.Fatalf("Import = %d, %v", n, err)
	}

	got, err := s.Passage(ctx, "1")
	if err != nil {
		t.Fatalf("Passage: %v", err)
	}
	want := pf.Passages[0]
	if got.Title != want.Title || !slices.Equal(got.Segments, want.Segments) {
		t.Errorf("Passage(1) = %+v, want %+v", got, want)
	}

	ids, err := s.IDs(ctx)
	if err != nil || !slices.Equal(ids, []string{"1", "112"}) {
		t.Errorf("IDs() = %v, %v", ids, err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestStore_PutReplaces(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	first := &passage.Passage{ID: "x", Title: "old", Segments: []passage.Segment{{Number: 1, Text: "a"}, {Number: 2, Text: "b"}}}
	second := &passage.Passage{ID: "x", Title: "new", Segments: []passage.Segment{{Number: 5, Text: "c"}}}
	if err := s.Put(ctx, first); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, second); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Passage(ctx, "x")
	if err != nil {
		t.Fatalf("Passage: %v", err)
	}
	if got.Title != "new" || !slices.Equal(got.Segments, second.Segments) {
		t.Errorf("got %+v, want %+v", got, second)
	}
}

func TestStore_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	if _, err := s.Passage(context.Background(), "missing"); !errors.Is(err, passage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := s.Put(context.Background(), &passage.Passage{ID: "empty"}); err == nil {
		t.Fatal("Put accepted a passage without segments")
	}
}

func TestOpen_Reopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "passages.db")
	ctx := context.Background()

	s, err := sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Put(ctx, &passage.Passage{ID: "1", Segments: []passage.Segment{{Number: 1, Text: "بسم الله"}}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	s.Close()

	s, err = sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.Passage(ctx, "1"); err != nil {
		t.Fatalf("Passage after reopen: %v", err)
	}
}

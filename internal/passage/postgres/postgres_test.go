package postgres_test

import (
	"context"
	"errors"
	"os"
	"slices"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liamchens/quran-voice-buddy/internal/passage"
	"github.com/liamchens/quran-voice-buddy/internal/passage/postgres"
)

// testDSN returns the test database DSN, or skips the test if
// VOICEBUDDY_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("VOICEBUDDY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOICEBUDDY_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS passage_segments CASCADE",
		"DROP TABLE IF EXISTS passages CASCADE",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema %q: %v", stmt, err)
		}
	}
	pool.Close()

	s, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pf, err := passage.LoadFile("../testdata/passages.yaml")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if _, err := passage.Import(ctx, s, pf.Passages); err != nil {
		t.Fatalf("Import: %v", err)
	}
	got, err := s.Passage(ctx, "112")
	if err != nil {
		t.Fatalf("Passage: %v", err)
	}
	if !slices.Equal(got.Segments, pf.Passages[1].Segments) {
		t.Errorf("segments = %+v", got.Segments)
	}
	ids, err := s.IDs(ctx)
	if err != nil || !slices.Equal(ids, []string{"1", "112"}) {
		t.Errorf("IDs() = %v, %v", ids, err)
	}

	replaced := &passage.Passage{ID: "112", Title: "short", Segments: []passage.Segment{{Number: 1, Text: "قل"}}}
	if err := s.Put(ctx, replaced); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, _ = s.Passage(ctx, "112")
	if got.Title != "short" || len(got.Segments) != 1 {
		t.Errorf("after replace = %+v", got)
	}
}

func TestStore_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Passage(context.Background(), "missing"); !errors.Is(err, passage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

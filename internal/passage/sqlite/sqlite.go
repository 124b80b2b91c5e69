// Package sqlite stores passages in a SQLite database using the pure Go
// modernc.org/sqlite driver, so the binary needs no cgo.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/liamchens/quran-voice-buddy/internal/passage"
)

const driverName = "sqlite"

var _ passage.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS passages (
    id    TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS segments (
    passage_id TEXT    NOT NULL REFERENCES passages(id) ON DELETE CASCADE,
    position   INTEGER NOT NULL,
    number     INTEGER NOT NULL,
    text       TEXT    NOT NULL,
    PRIMARY KEY (passage_id, position)
);
`

// Store is a [passage.Store] backed by one SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and migrates its schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open(driverName, path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping %q: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Passage implements [passage.Provider].
func (s *Store) Passage(ctx context.Context, id string) (*passage.Passage, error) {
	p := &passage.Passage{ID: id}
	err := s.db.QueryRowContext(ctx, `SELECT title FROM passages WHERE id = ?`, id).Scan(&p.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: %w: %q", passage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: query passage %q: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT number, text FROM segments WHERE passage_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query segments of %q: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var seg passage.Segment
		if err := rows.Scan(&seg.Number, &seg.Text); err != nil {
			return nil, fmt.Errorf("sqlite: scan segment: %w", err)
		}
		p.Segments = append(p.Segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate segments: %w", err)
	}
	return p, nil
}

// Put implements [passage.Store]. The passage and its segments are replaced
// in one transaction.
func (s *Store) Put(ctx context.Context, p *passage.Passage) error {
	if err := passage.Validate(p); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE passage_id = ?`, p.ID); err != nil {
		return fmt.Errorf("sqlite: clear segments of %q: %w", p.ID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO passages (id, title) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET title = excluded.title`,
		p.ID, p.Title); err != nil {
		return fmt.Errorf("sqlite: upsert passage %q: %w", p.ID, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO segments (passage_id, position, number, text) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare segment insert: %w", err)
	}
	defer stmt.Close()
	for i, seg := range p.Segments {
		if _, err := stmt.ExecContext(ctx, p.ID, i, seg.Number, seg.Text); err != nil {
			return fmt.Errorf("sqlite: insert segment %d of %q: %w", i, p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// IDs implements [passage.Store].
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM passages ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list passages: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Package postgres stores passages in PostgreSQL through a pgx connection
// pool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liamchens/quran-voice-buddy/internal/passage"
)

var _ passage.Store = (*Store)(nil)

const ddl = `
CREATE TABLE IF NOT EXISTS passages (
    id    TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS passage_segments (
    passage_id TEXT    NOT NULL REFERENCES passages(id) ON DELETE CASCADE,
    position   INTEGER NOT NULL,
    number     INTEGER NOT NULL,
    text       TEXT    NOT NULL,
    PRIMARY KEY (passage_id, position)
);
`

// Migrate creates the passage tables if they do not exist. It is safe to
// call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Store is a [passage.Store] backed by PostgreSQL. It is safe for concurrent
// use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, verifies the connection and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Passage implements [passage.Provider].
func (s *Store) Passage(ctx context.Context, id string) (*passage.Passage, error) {
	p := &passage.Passage{ID: id}
	err := s.pool.QueryRow(ctx, `SELECT title FROM passages WHERE id = $1`, id).Scan(&p.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: %w: %q", passage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: query passage %q: %w", id, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT number, text FROM passage_segments WHERE passage_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: query segments of %q: %w", id, err)
	}
	p.Segments, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (passage.Segment, error) {
		var seg passage.Segment
		err := row.Scan(&seg.Number, &seg.Text)
		return seg, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan segments of %q: %w", id, err)
	}
	return p, nil
}

// Put implements [passage.Store]. Segments are written with a batch inside
// one transaction.
func (s *Store) Put(ctx context.Context, p *passage.Passage) error {
	if err := passage.Validate(p); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO passages (id, title) VALUES ($1, $2)
			 ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title`, p.ID, p.Title); err != nil {
			return fmt.Errorf("postgres: upsert passage %q: %w", p.ID, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM passage_segments WHERE passage_id = $1`, p.ID); err != nil {
			return fmt.Errorf("postgres: clear segments of %q: %w", p.ID, err)
		}
		batch := &pgx.Batch{}
		for i, seg := range p.Segments {
			batch.Queue(`INSERT INTO passage_segments (passage_id, position, number, text) VALUES ($1, $2, $3, $4)`,
				p.ID, i, seg.Number, seg.Text)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: insert segments of %q: %w", p.ID, err)
		}
		return nil
	})
}

// IDs implements [passage.Store].
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM passages ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list passages: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan ids: %w", err)
	}
	return ids, nil
}

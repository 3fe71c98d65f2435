// Package postgres stores group records as JSON documents in PostgreSQL,
// keyed by groups.Key, mirroring the shared key/value layout.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dividi/internal/core"
	"dividi/internal/groups"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RunMigrations creates the record table when missing.
func (s *Store) RunMigrations(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS group_records (
			key        TEXT PRIMARY KEY,
			record     JSONB NOT NULL,
			revision   BIGINT NOT NULL DEFAULT 1,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

// Load implements groups.Store.
func (s *Store) Load(ctx context.Context, id string) (core.GroupState, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM group_records WHERE key = $1`, groups.Key(id),
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.GroupState{}, groups.ErrGroupNotFound
	}
	if err != nil {
		return core.GroupState{}, fmt.Errorf("get group record: %w", err)
	}
	return groups.Decode(id, data)
}

// Save implements groups.Store.
func (s *Store) Save(ctx context.Context, g core.GroupState) error {
	data, err := groups.Encode(g)
	if err != nil {
		return fmt.Errorf("encode group record: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO group_records (key, record, revision, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET record = EXCLUDED.record, revision = EXCLUDED.revision, updated_at = EXCLUDED.updated_at`,
		groups.Key(g.ID), data, g.Revision, g.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert group record: %w", err)
	}

	slog.DebugContext(ctx, "Group saved to Postgres", "group_id", g.ID, "revision", g.Revision)
	return nil
}

// Package mysql stores group records as JSON documents in MySQL or MariaDB,
// keyed by groups.Key.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"

	"dividi/internal/core"
	"dividi/internal/groups"
)

type Store struct {
	db *sql.DB
}

// New opens a pool for dsn (user:pass@tcp(host:port)/db). Times are always
// parsed as UTC.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create MySQL connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunMigrations creates the record table when missing.
func (s *Store) RunMigrations(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS group_records (
			record_key VARCHAR(191) NOT NULL PRIMARY KEY,
			record     JSON NOT NULL,
			revision   BIGINT NOT NULL DEFAULT 1,
			updated_at DATETIME(6) NOT NULL
		)`)
	return err
}

// Load implements groups.Store.
func (s *Store) Load(ctx context.Context, id string) (core.GroupState, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM group_records WHERE record_key = ?`, groups.Key(id),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
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
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO group_records (record_key, record, revision, updated_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			record = VALUES(record), revision = VALUES(revision), updated_at = VALUES(updated_at)`,
		groups.Key(g.ID), data, g.Revision, g.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert group record: %w", err)
	}

	slog.DebugContext(ctx, "Group saved to MySQL", "group_id", g.ID, "revision", g.Revision)
	return nil
}

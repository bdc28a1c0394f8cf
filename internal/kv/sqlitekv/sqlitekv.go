// Package sqlitekv is a kv.Bridge stored in a SQLite file.
package sqlitekv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"tablesync/internal/kv"
)

func init() {
	kv.Register("sqlite", func(ctx context.Context, cfg kv.Config) (kv.Bridge, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Store keeps one row per key in table ts_kv.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = "tablesync-state.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	const ddl = `CREATE TABLE IF NOT EXISTS ts_kv (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at TEXT NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitekv: ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM ts_kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ts_kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) Close() error { return s.db.Close() }

var _ kv.Bridge = (*Store)(nil)

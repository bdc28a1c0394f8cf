// Package sqlite registers the "sqlite" Table Store backed by modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"

	"tablesync/internal/storage"
	"tablesync/internal/storage/sqlstore"
)

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.TableStore, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Dialect is the SQLite flavour of the generic schema.
var Dialect = sqlstore.Dialect{
	Name: "sqlite",
	DDL: []string{
		`PRAGMA foreign_keys = ON`,
		`CREATE TABLE IF NOT EXISTS ts_tables (
			id      TEXT PRIMARY KEY,
			name    TEXT NOT NULL,
			created INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ts_fields (
			id       TEXT PRIMARY KEY,
			table_id TEXT NOT NULL,
			name     TEXT NOT NULL,
			type     TEXT NOT NULL,
			property TEXT,
			created  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ts_fields_table ON ts_fields (table_id)`,
		`CREATE TABLE IF NOT EXISTS ts_rows (
			id       TEXT PRIMARY KEY,
			table_id TEXT NOT NULL,
			data     TEXT NOT NULL,
			created  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ts_rows_table ON ts_rows (table_id)`,
	},
	Placeholder: sqlstore.QuestionMark,
}

// Open opens (or creates) the database file at dsn.
func Open(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	if dsn == "" {
		dsn = "tablesync.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; avoids SQLITE_BUSY between the pool's connections.
	db.SetMaxOpenConns(1)
	return sqlstore.Open(ctx, db, Dialect)
}

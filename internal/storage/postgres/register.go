// Package postgres registers the "postgres" Table Store backed by pgx.
package postgres

import (
	"context"

	"tablesync/internal/storage"
)

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.TableStore, error) {
		return Open(ctx, cfg.DSN)
	})
}

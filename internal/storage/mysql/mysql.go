// Package mysql registers the "mysql" Table Store.
package mysql

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"

	"tablesync/internal/storage"
	"tablesync/internal/storage/sqlstore"
)

func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.TableStore, error) {
		return Open(ctx, cfg.DSN)
	})
}

// Dialect is the MySQL flavour of the generic schema.
var Dialect = sqlstore.Dialect{
	Name: "mysql",
	DDL: []string{
		`CREATE TABLE IF NOT EXISTS ts_tables (
			id      VARCHAR(64)  NOT NULL PRIMARY KEY,
			name    VARCHAR(255) NOT NULL,
			created BIGINT       NOT NULL
		) DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS ts_fields (
			id       VARCHAR(64)  NOT NULL PRIMARY KEY,
			table_id VARCHAR(64)  NOT NULL,
			name     VARCHAR(255) NOT NULL,
			type     VARCHAR(32)  NOT NULL,
			property TEXT,
			created  BIGINT       NOT NULL,
			KEY ts_fields_table (table_id)
		) DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS ts_rows (
			id       VARCHAR(64) NOT NULL PRIMARY KEY,
			table_id VARCHAR(64) NOT NULL,
			data     LONGTEXT    NOT NULL,
			created  BIGINT      NOT NULL,
			KEY ts_rows_table (table_id)
		) DEFAULT CHARSET=utf8mb4`,
	},
	Placeholder: sqlstore.QuestionMark,
}

// Open connects with a go-sql-driver DSN such as
// "user:pass@tcp(127.0.0.1:3306)/tablesync".
func Open(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	return sqlstore.Open(ctx, db, Dialect)
}

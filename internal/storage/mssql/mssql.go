// Package mssql registers the "mssql" Table Store for Microsoft SQL Server.
package mssql

import (
	"context"
	"database/sql"

	_ "github.com/microsoft/go-mssqldb"

	"tablesync/internal/storage"
	"tablesync/internal/storage/sqlstore"
)

func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.TableStore, error) {
		return Open(ctx, cfg.DSN)
	})
}

// wrapCreateIfMissing guards a CREATE TABLE; SQL Server has no IF NOT EXISTS.
func wrapCreateIfMissing(table, defs string) string {
	return "IF OBJECT_ID(N'dbo." + table + "', N'U') IS NULL CREATE TABLE dbo." + table + " (" + defs + ")"
}

// Dialect is the SQL Server flavour of the generic schema.
var Dialect = sqlstore.Dialect{
	Name: "mssql",
	DDL: []string{
		wrapCreateIfMissing("ts_tables",
			`id NVARCHAR(64) NOT NULL PRIMARY KEY, name NVARCHAR(255) NOT NULL, created BIGINT NOT NULL`),
		wrapCreateIfMissing("ts_fields",
			`id NVARCHAR(64) NOT NULL PRIMARY KEY, table_id NVARCHAR(64) NOT NULL, name NVARCHAR(255) NOT NULL, `+
				`type NVARCHAR(32) NOT NULL, property NVARCHAR(MAX) NULL, created BIGINT NOT NULL`),
		wrapCreateIfMissing("ts_rows",
			`id NVARCHAR(64) NOT NULL PRIMARY KEY, table_id NVARCHAR(64) NOT NULL, data NVARCHAR(MAX) NOT NULL, `+
				`created BIGINT NOT NULL`),
	},
	Placeholder: sqlstore.AtP,
}

// Open connects with a "sqlserver://" URL DSN.
func Open(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, err
	}
	return sqlstore.Open(ctx, db, Dialect)
}

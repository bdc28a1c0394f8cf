// Package all links every Table Store backend into the binary.
package all

import (
	_ "tablesync/internal/storage/memory"
	_ "tablesync/internal/storage/mssql"
	_ "tablesync/internal/storage/mysql"
	_ "tablesync/internal/storage/postgres"
	_ "tablesync/internal/storage/sqlite"
)

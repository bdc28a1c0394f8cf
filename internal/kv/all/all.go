// Package all links every kv backend into the binary.
package all

import (
	_ "tablesync/internal/kv/mongokv"
	_ "tablesync/internal/kv/sqlitekv"
)

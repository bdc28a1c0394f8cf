package mssql

import (
	"strings"
	"testing"
)

func TestDDLGuardsEveryCreate(t *testing.T) {
	t.Parallel()
	for _, stmt := range Dialect.DDL {
		if !strings.HasPrefix(stmt, "IF OBJECT_ID(N'dbo.") || !strings.Contains(stmt, "CREATE TABLE dbo.") {
			t.Fatalf("unguarded DDL: %s", stmt)
		}
	}
	if got := Dialect.Placeholder(3); got != "@p3" {
		t.Fatalf("placeholder = %q", got)
	}
}

// Package storagetest is a conformance suite for storage.TableStore
// implementations.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"tablesync/internal/schema"
	"tablesync/internal/storage"
	"tablesync/internal/value"
)

// Run exercises s. The store must start empty.
func Run(t *testing.T, s storage.TableStore) {
	t.Helper()
	ctx := context.Background()

	tid, err := s.CreateTable(ctx, "orders")
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	other, err := s.CreateTable(ctx, "customers")
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	tables, err := s.ListTables(ctx)
	if err != nil {
		t.Fatalf("ListTables: %v", err)
	}
	if len(tables) != 2 || tables[0].ID != tid || tables[0].Name != "orders" || tables[1].ID != other {
		t.Fatalf("ListTables = %+v", tables)
	}
	if got, ok, _ := storage.FindTableByName(ctx, s, "customers"); !ok || got.ID != other {
		t.Fatalf("FindTableByName = %+v, %v", got, ok)
	}

	nameID, err := s.CreateField(ctx, tid, storage.FieldInput{Name: "name", Type: schema.Text})
	if err != nil {
		t.Fatalf("CreateField: %v", err)
	}
	tagsID, err := s.CreateField(ctx, tid, storage.FieldInput{
		Name:     "tags",
		Type:     schema.MultiSelect,
		Property: &storage.FieldProperty{Options: []storage.SelectOption{{Name: "a"}, {Name: "b"}}},
	})
	if err != nil {
		t.Fatalf("CreateField: %v", err)
	}
	if _, err := s.CreateField(ctx, "tblmissing", storage.FieldInput{Name: "x", Type: schema.Text}); !errors.Is(err, storage.ErrTableNotFound) {
		t.Fatalf("CreateField on missing table: err=%v", err)
	}

	fields, err := s.ListFields(ctx, tid)
	if err != nil {
		t.Fatalf("ListFields: %v", err)
	}
	if len(fields) != 2 || fields[0].ID != nameID || fields[1].ID != tagsID {
		t.Fatalf("ListFields = %+v", fields)
	}
	if fields[1].Type != schema.MultiSelect || fields[1].Property == nil || len(fields[1].Property.Options) != 2 {
		t.Fatalf("tags field = %+v", fields[1])
	}
	if fields[0].Property != nil {
		t.Fatalf("name field property = %+v, want nil", fields[0].Property)
	}

	if err := s.RenameField(ctx, tid, nameID, "full name"); err != nil {
		t.Fatalf("RenameField: %v", err)
	}
	if err := s.RenameField(ctx, tid, "fldmissing", "x"); !errors.Is(err, storage.ErrFieldNotFound) {
		t.Fatalf("RenameField missing: err=%v", err)
	}
	fields, _ = s.ListFields(ctx, tid)
	if fields[0].Name != "full name" {
		t.Fatalf("rename not applied: %+v", fields[0])
	}

	ids, err := s.InsertRows(ctx, tid, []storage.Row{
		{nameID: value.Str("Ada"), tagsID: value.List(value.Str("a"))},
		{nameID: value.Str("Bob")},
	})
	if err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	if len(ids) != 2 || ids[0] == ids[1] {
		t.Fatalf("InsertRows ids = %v", ids)
	}

	// One bad row fails the whole call.
	if _, err := s.InsertRows(ctx, tid, []storage.Row{
		{nameID: value.Str("Cy")},
		{"fldnope": value.Str("x")},
	}); !errors.Is(err, storage.ErrUnknownField) {
		t.Fatalf("InsertRows with unknown field: err=%v", err)
	}

	if lister, ok := s.(storage.RowLister); ok {
		rows, err := lister.ListRows(ctx, tid)
		if err != nil {
			t.Fatalf("ListRows: %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("rows = %d, want 2 (failed insert must not leave rows)", len(rows))
		}
		if got := rows[0].Data[nameID]; !value.Equal(got, value.Str("Ada")) {
			t.Fatalf("row 0 name = %s", got.JSON())
		}
	}

	if err := s.DeleteRows(ctx, tid, ids[:1]); err != nil {
		t.Fatalf("DeleteRows: %v", err)
	}
	if lister, ok := s.(storage.RowLister); ok {
		rows, _ := lister.ListRows(ctx, tid)
		if len(rows) != 1 || rows[0].ID != ids[1] {
			t.Fatalf("rows after delete = %+v", rows)
		}
	}

	if err := s.DeleteField(ctx, tid, tagsID); err != nil {
		t.Fatalf("DeleteField: %v", err)
	}
	if err := s.DeleteField(ctx, tid, tagsID); !errors.Is(err, storage.ErrFieldNotFound) {
		t.Fatalf("DeleteField twice: err=%v", err)
	}

	if err := s.DeleteTable(ctx, tid); err != nil {
		t.Fatalf("DeleteTable: %v", err)
	}
	if err := s.DeleteTable(ctx, tid); !errors.Is(err, storage.ErrTableNotFound) {
		t.Fatalf("DeleteTable twice: err=%v", err)
	}
	if _, err := s.ListFields(ctx, tid); !errors.Is(err, storage.ErrTableNotFound) {
		t.Fatalf("ListFields on deleted table: err=%v", err)
	}
	tables, _ = s.ListTables(ctx)
	if len(tables) != 1 || tables[0].ID != other {
		t.Fatalf("tables after delete = %+v", tables)
	}
}

// Package storage defines the Table Store: the external system that owns
// tables, typed fields and rows, plus the registry of concrete backends.
//
// A Table Store offers no transactions across calls. Every call either
// succeeds or fails as a whole; callers that need rollback keep their own
// compensating-action log (see internal/snapshot).
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"tablesync/internal/schema"
	"tablesync/internal/value"
)

var (
	// ErrTableNotFound is returned when a table id is unknown.
	ErrTableNotFound = errors.New("storage: table not found")
	// ErrFieldNotFound is returned when a field id is unknown for its table.
	ErrFieldNotFound = errors.New("storage: field not found")
	// ErrUnknownField is returned by InsertRows when a row names a field id
	// the table does not have.
	ErrUnknownField = errors.New("storage: row references unknown field")
)

// Table is a destination table.
type Table struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SelectOption is one choice of a select field.
type SelectOption struct {
	Name string `json:"name"`
}

// FieldProperty holds type-specific field settings.
type FieldProperty struct {
	Options []SelectOption `json:"options,omitempty"`
}

// Field is a live field of a table.
type Field struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Type     schema.FieldType `json:"type"`
	Property *FieldProperty   `json:"property,omitempty"`
}

// FieldInput describes a field to create.
type FieldInput struct {
	Name     string           `json:"name"`
	Type     schema.FieldType `json:"type"`
	Property *FieldProperty   `json:"property,omitempty"`
}

// Row is one row payload keyed by field id.
type Row map[string]value.Value

// TableStore is the CRUD surface of a destination store.
type TableStore interface {
	ListTables(ctx context.Context) ([]Table, error)
	CreateTable(ctx context.Context, name string) (string, error)
	DeleteTable(ctx context.Context, tableID string) error

	ListFields(ctx context.Context, tableID string) ([]Field, error)
	CreateField(ctx context.Context, tableID string, in FieldInput) (string, error)
	RenameField(ctx context.Context, tableID, fieldID, name string) error
	DeleteField(ctx context.Context, tableID, fieldID string) error

	// InsertRows inserts all rows or none and returns the new row ids in
	// input order.
	InsertRows(ctx context.Context, tableID string, rows []Row) ([]string, error)
	DeleteRows(ctx context.Context, tableID string, rowIDs []string) error

	Close() error
}

// StoredRow is a row read back from a store.
type StoredRow struct {
	ID   string
	Data Row
}

// RowLister is implemented by backends that can read rows back.
type RowLister interface {
	ListRows(ctx context.Context, tableID string) ([]StoredRow, error)
}

// Config selects and configures a backend.
type Config struct {
	Kind string
	DSN  string
}

// Factory opens a backend.
type Factory func(ctx context.Context, cfg Config) (TableStore, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. It is meant to be called
// from a backend package's init function.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Open constructs the backend registered under cfg.Kind.
func Open(ctx context.Context, cfg Config) (TableStore, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// FindTableByName returns the first table whose name equals name exactly.
func FindTableByName(ctx context.Context, s TableStore, name string) (Table, bool, error) {
	tables, err := s.ListTables(ctx)
	if err != nil {
		return Table{}, false, err
	}
	for _, t := range tables {
		if t.Name == name {
			return t, true, nil
		}
	}
	return Table{}, false, nil
}

// FindTableByID returns the table with id.
func FindTableByID(ctx context.Context, s TableStore, id string) (Table, bool, error) {
	tables, err := s.ListTables(ctx)
	if err != nil {
		return Table{}, false, err
	}
	for _, t := range tables {
		if t.ID == id {
			return t, true, nil
		}
	}
	return Table{}, false, nil
}

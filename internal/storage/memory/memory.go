// Package memory is an in-process Table Store. Every Open with the same DSN
// returns a view over the same data, so a CLI run can open it twice.
package memory

import (
	"context"
	"fmt"
	"sync"

	"tablesync/internal/storage"
)

func init() {
	storage.Register("memory", func(ctx context.Context, cfg storage.Config) (storage.TableStore, error) {
		return Shared(cfg.DSN), nil
	})
}

type table struct {
	id     string
	name   string
	fields []storage.Field
	rows   []storage.StoredRow
}

// Store keeps tables in insertion order.
type Store struct {
	mu     sync.RWMutex
	tables []*table
}

// New returns an empty store.
func New() *Store { return &Store{} }

var (
	sharedMu sync.Mutex
	shared   = map[string]*Store{}
)

// Shared returns the process-wide store named name.
func Shared(name string) *Store {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	s, ok := shared[name]
	if !ok {
		s = New()
		shared[name] = s
	}
	return s
}

func (s *Store) find(id string) (*table, int) {
	for i, t := range s.tables {
		if t.id == id {
			return t, i
		}
	}
	return nil, -1
}

func (s *Store) ListTables(ctx context.Context) ([]storage.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.Table, 0, len(s.tables))
	for _, t := range s.tables {
		out = append(out, storage.Table{ID: t.id, Name: t.name})
	}
	return out, nil
}

func (s *Store) CreateTable(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("memory: empty table name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := storage.NewID(storage.TablePrefix)
	s.tables = append(s.tables, &table{id: id, name: name})
	return id, nil
}

func (s *Store) DeleteTable(ctx context.Context, tableID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, i := s.find(tableID)
	if i < 0 {
		return storage.ErrTableNotFound
	}
	s.tables = append(s.tables[:i], s.tables[i+1:]...)
	return nil
}

func (s *Store) ListFields(ctx context.Context, tableID string) ([]storage.Field, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, _ := s.find(tableID)
	if t == nil {
		return nil, storage.ErrTableNotFound
	}
	return append([]storage.Field(nil), t.fields...), nil
}

func (s *Store) CreateField(ctx context.Context, tableID string, in storage.FieldInput) (string, error) {
	if in.Name == "" {
		return "", fmt.Errorf("memory: empty field name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, _ := s.find(tableID)
	if t == nil {
		return "", storage.ErrTableNotFound
	}
	id := storage.NewID(storage.FieldPrefix)
	t.fields = append(t.fields, storage.Field{ID: id, Name: in.Name, Type: in.Type, Property: in.Property})
	return id, nil
}

func (s *Store) RenameField(ctx context.Context, tableID, fieldID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, _ := s.find(tableID)
	if t == nil {
		return storage.ErrTableNotFound
	}
	for i := range t.fields {
		if t.fields[i].ID == fieldID {
			t.fields[i].Name = name
			return nil
		}
	}
	return storage.ErrFieldNotFound
}

func (s *Store) DeleteField(ctx context.Context, tableID, fieldID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, _ := s.find(tableID)
	if t == nil {
		return storage.ErrTableNotFound
	}
	for i := range t.fields {
		if t.fields[i].ID == fieldID {
			t.fields = append(t.fields[:i], t.fields[i+1:]...)
			return nil
		}
	}
	return storage.ErrFieldNotFound
}

func (s *Store) InsertRows(ctx context.Context, tableID string, rows []storage.Row) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, _ := s.find(tableID)
	if t == nil {
		return nil, storage.ErrTableNotFound
	}
	known := make(map[string]bool, len(t.fields))
	for _, f := range t.fields {
		known[f.ID] = true
	}

	staged := make([]storage.StoredRow, 0, len(rows))
	for _, r := range rows {
		if _, err := storage.EncodeRow(r, known); err != nil {
			return nil, err
		}
		data := make(storage.Row, len(r))
		for k, v := range r {
			data[k] = v
		}
		staged = append(staged, storage.StoredRow{ID: storage.NewID(storage.RowPrefix), Data: data})
	}
	t.rows = append(t.rows, staged...)

	ids := make([]string, len(staged))
	for i, r := range staged {
		ids[i] = r.ID
	}
	return ids, nil
}

func (s *Store) DeleteRows(ctx context.Context, tableID string, rowIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, _ := s.find(tableID)
	if t == nil {
		return storage.ErrTableNotFound
	}
	drop := make(map[string]bool, len(rowIDs))
	for _, id := range rowIDs {
		drop[id] = true
	}
	kept := t.rows[:0]
	for _, r := range t.rows {
		if !drop[r.ID] {
			kept = append(kept, r)
		}
	}
	t.rows = kept
	return nil
}

func (s *Store) ListRows(ctx context.Context, tableID string) ([]storage.StoredRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, _ := s.find(tableID)
	if t == nil {
		return nil, storage.ErrTableNotFound
	}
	return append([]storage.StoredRow(nil), t.rows...), nil
}

// Close is a no-op; shared stores outlive their handles.
func (s *Store) Close() error { return nil }

var (
	_ storage.TableStore = (*Store)(nil)
	_ storage.RowLister  = (*Store)(nil)
)

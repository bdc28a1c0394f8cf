// Package snapshot captures store state before a mutating operation and
// reverses the operation afterwards with compensating actions.
//
// The store has no transactions, so undo is best effort: recreated fields
// get new ids and lose data written after the snapshot.
package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tablesync/internal/schema"
	"tablesync/internal/storage"
)

// TableSnapshot is one table as it was before the operation.
type TableSnapshot struct {
	TableName         string      `json:"table_name"`
	TableID           string      `json:"table_id,omitempty"`
	Existed           bool        `json:"existed"`
	Fields            []FieldMeta `json:"fields"`
	InsertedRecordIDs []string    `json:"inserted_record_ids,omitempty"`
}

// CreatedTable is a table the operation created.
type CreatedTable struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Snapshot is a point-in-time capture plus the log of what happened after.
type Snapshot struct {
	ID            string              `json:"id"`
	Timestamp     time.Time           `json:"timestamp"`
	Description   string              `json:"description"`
	Tables        []TableSnapshot     `json:"tables"`
	CreatedTables []CreatedTable      `json:"created_tables"`
	FieldMapping  schema.FieldMapping `json:"field_mapping"`
	Actions       []Action            `json:"actions"`

	// Targets is the destination choice per source table before the
	// operation. Nil for snapshots written before targets were captured.
	Targets map[string]schema.TableTarget `json:"table_targets"`

	mu sync.Mutex
}

// Target names a table about to be touched. ID may be empty when the table
// is addressed by name only.
type Target struct {
	ID   string
	Name string
}

// Take captures every target table: whether it exists now and its fields
// with the mapping keys pointing at them. Pre-existing row ids are not
// captured.
func Take(ctx context.Context, store storage.TableStore, description string, targets []Target, mapping schema.FieldMapping) (*Snapshot, error) {
	tables, err := store.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list tables: %w", err)
	}

	snap := &Snapshot{
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Description:  description,
		FieldMapping: mapping.Clone(),
	}

	seen := make(map[string]bool, len(targets))
	for _, tgt := range targets {
		live, ok := lookup(tables, tgt)
		name := tgt.Name
		if ok {
			name = live.Name
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		ts := TableSnapshot{TableName: name, Existed: ok}
		if ok {
			ts.TableID = live.ID
			fields, err := store.ListFields(ctx, live.ID)
			if err != nil {
				return nil, fmt.Errorf("snapshot: list fields of %s: %w", name, err)
			}
			for _, f := range fields {
				ts.Fields = append(ts.Fields, MetaOf(f, mapping, name))
			}
		}
		snap.Tables = append(snap.Tables, ts)
	}
	return snap, nil
}

func lookup(tables []storage.Table, tgt Target) (storage.Table, bool) {
	if tgt.ID != "" {
		for _, t := range tables {
			if t.ID == tgt.ID {
				return t, true
			}
		}
	}
	if tgt.Name != "" {
		for _, t := range tables {
			if t.Name == tgt.Name {
				return t, true
			}
		}
	}
	return storage.Table{}, false
}

// Record appends a to the action log. CreateTable actions are also tracked in
// CreatedTables and InsertRows ids in the table's InsertedRecordIDs. Record is
// safe for concurrent use.
func (s *Snapshot) Record(a Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Actions = append(s.Actions, a)
	switch a.Kind {
	case CreateTable:
		s.CreatedTables = append(s.CreatedTables, CreatedTable{ID: a.TableID, Name: a.TableName})
	case InsertRows:
		for i := range s.Tables {
			t := &s.Tables[i]
			if t.TableID == a.TableID || (t.TableID == "" && t.TableName == a.TableName) {
				t.InsertedRecordIDs = append(t.InsertedRecordIDs, a.RowIDs...)
				return
			}
		}
	}
}

// Touched reports whether anything was recorded.
func (s *Snapshot) Touched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Actions) > 0
}

// Inverse returns the compensating actions for the log: DeleteTable for every
// created table first, then the inverse of every other action in reverse
// order. Actions against a table that is going to be deleted are dropped.
func (s *Snapshot) Inverse() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := make(map[string]bool, len(s.CreatedTables))
	var out []Action
	for _, ct := range s.CreatedTables {
		if dropped[ct.ID] {
			continue
		}
		dropped[ct.ID] = true
		out = append(out, Action{Kind: DeleteTable, TableID: ct.ID, TableName: ct.Name})
	}
	for i := len(s.Actions) - 1; i >= 0; i-- {
		a := s.Actions[i]
		if a.Kind == CreateTable || dropped[a.TableID] {
			continue
		}
		if inv, ok := invert(a); ok {
			out = append(out, inv)
		}
	}
	return out
}

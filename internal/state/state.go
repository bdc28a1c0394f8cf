// Package state persists the pipeline's cross-run state as JSON documents in
// a key-value bridge.
//
// Reads never fail: a missing key, an unreachable bridge or an undecodable
// document all load as the empty value. Write errors are returned so the
// caller can decide whether to log them.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"tablesync/internal/kv"
	"tablesync/internal/schema"
	"tablesync/internal/snapshot"
)

// Keys under which each document is stored.
const (
	KeyFieldMappings = "field_mappings"
	KeyTableTargets  = "table_targets"
	KeyTableSchemas  = "table_schemas"
	KeySnapshots     = "snapshots"
	KeyTablesState   = "tables_state"
	KeyLastText      = "last_text"
)

// Logger is the logging surface used by Store.
type Logger interface {
	Printf(format string, v ...any)
}

// Targets maps a source table name to its destination choice.
type Targets map[string]schema.TableTarget

// Store is typed access to the persisted documents.
type Store struct {
	kv  kv.Bridge
	log Logger
}

// New wraps bridge. The bridge is used as given; wrap it in kv.Tolerant to
// swallow transport errors on reads.
func New(bridge kv.Bridge, logger Logger) *Store {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if bridge == nil {
		bridge = kv.NewMemory()
	}
	return &Store{kv: bridge, log: logger}
}

func load[T any](ctx context.Context, s *Store, key string, out *T) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.log.Printf("stage=state op=load key=%s err=%v (using empty)", key, err)
		return
	}
	if !ok || len(raw) == 0 {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		s.log.Printf("stage=state op=load key=%s err=%v (using empty)", key, err)
		return
	}
	*out = v
}

func save(ctx context.Context, s *Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("state: save %s: %w", key, err)
	}
	return nil
}

func (s *Store) Mapping(ctx context.Context) schema.FieldMapping {
	m := schema.FieldMapping{}
	load(ctx, s, KeyFieldMappings, &m)
	if m == nil {
		m = schema.FieldMapping{}
	}
	return m
}

func (s *Store) SaveMapping(ctx context.Context, m schema.FieldMapping) error {
	return save(ctx, s, KeyFieldMappings, m)
}

func (s *Store) Targets(ctx context.Context) Targets {
	t := Targets{}
	load(ctx, s, KeyTableTargets, &t)
	if t == nil {
		t = Targets{}
	}
	return t
}

func (s *Store) SaveTargets(ctx context.Context, t Targets) error {
	return save(ctx, s, KeyTableTargets, t)
}

func (s *Store) Schemas(ctx context.Context) schema.Schemas {
	sc := schema.Schemas{}
	load(ctx, s, KeyTableSchemas, &sc)
	if sc == nil {
		sc = schema.Schemas{}
	}
	return sc
}

func (s *Store) SaveSchemas(ctx context.Context, sc schema.Schemas) error {
	return save(ctx, s, KeyTableSchemas, sc)
}

// Stack loads the undo history. Entries beyond snapshot.MaxDepth, which
// older writers may have left, are dropped oldest first.
func (s *Store) Stack(ctx context.Context) *snapshot.Stack {
	var persisted snapshot.Stack
	load(ctx, s, KeySnapshots, &persisted)

	st := &snapshot.Stack{}
	for _, snap := range persisted.Items {
		if snap != nil {
			st.Push(snap)
		}
	}
	return st
}

func (s *Store) SaveStack(ctx context.Context, st *snapshot.Stack) error {
	if st == nil {
		st = &snapshot.Stack{}
	}
	return save(ctx, s, KeySnapshots, st)
}

// Overrides are the user's per-field edits keyed by source table name.
func (s *Store) Overrides(ctx context.Context) schema.Overrides {
	o := schema.Overrides{}
	load(ctx, s, KeyTablesState, &o)
	if o == nil {
		o = schema.Overrides{}
	}
	return o
}

func (s *Store) SaveOverrides(ctx context.Context, o schema.Overrides) error {
	return save(ctx, s, KeyTablesState, o)
}

// LastText is the most recently ingested input, kept so a later run can
// re-parse it without the original file.
func (s *Store) LastText(ctx context.Context) string {
	var text string
	load(ctx, s, KeyLastText, &text)
	return text
}

func (s *Store) SaveLastText(ctx context.Context, text string) error {
	return save(ctx, s, KeyLastText, text)
}

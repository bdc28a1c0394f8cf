package state

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"tablesync/internal/kv"
	"tablesync/internal/schema"
	"tablesync/internal/snapshot"
)

type recordingLog struct{ lines []string }

func (r *recordingLog) Printf(format string, v ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, v...))
}

type brokenBridge struct{}

func (brokenBridge) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}
func (brokenBridge) Set(context.Context, string, []byte) error { return errors.New("connection refused") }
func (brokenBridge) Close() error                              { return nil }

func TestEmptyBridgeLoadsEmptyState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New(kv.NewMemory(), nil)

	if m := s.Mapping(ctx); m == nil || len(m) != 0 {
		t.Fatalf("Mapping()=%v, want empty non-nil", m)
	}
	if tg := s.Targets(ctx); tg == nil || len(tg) != 0 {
		t.Fatalf("Targets()=%v", tg)
	}
	if st := s.Stack(ctx); st.Len() != 0 {
		t.Fatalf("Stack().Len()=%d", st.Len())
	}
	if s.LastText(ctx) != "" {
		t.Fatalf("LastText() not empty")
	}
}

func TestStatePersistsAcrossStores(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bridge := kv.NewMemory()
	first := New(bridge, nil)

	mapping := schema.FieldMapping{}
	mapping.Set("orders", "id", "fld1")
	if err := first.SaveMapping(ctx, mapping); err != nil {
		t.Fatalf("SaveMapping: %v", err)
	}
	if err := first.SaveTargets(ctx, Targets{"orders": {Mode: schema.TargetReuse, TableName: "orders"}}); err != nil {
		t.Fatalf("SaveTargets: %v", err)
	}
	off := false
	if err := first.SaveOverrides(ctx, schema.Overrides{"orders": {"note": {Enabled: &off}}}); err != nil {
		t.Fatalf("SaveOverrides: %v", err)
	}
	st := &snapshot.Stack{}
	st.Push(&snapshot.Snapshot{ID: "s1", Description: "write"})
	if err := first.SaveStack(ctx, st); err != nil {
		t.Fatalf("SaveStack: %v", err)
	}
	if err := first.SaveLastText(ctx, `[{"a":1}]`); err != nil {
		t.Fatalf("SaveLastText: %v", err)
	}

	second := New(bridge, nil)
	if id, ok := second.Mapping(ctx).Get("orders", "id"); !ok || id != "fld1" {
		t.Fatalf("mapping orders.id=%q,%v", id, ok)
	}
	if tg := second.Targets(ctx)["orders"]; tg.Mode != schema.TargetReuse || tg.TableName != "orders" {
		t.Fatalf("target=%+v", tg)
	}
	if ov := second.Overrides(ctx)["orders"]["note"]; ov.Enabled == nil || *ov.Enabled {
		t.Fatalf("override=%+v", ov)
	}
	top, ok := second.Stack(ctx).Peek()
	if !ok || top.ID != "s1" {
		t.Fatalf("stack top=%+v,%v", top, ok)
	}
	if got := second.LastText(ctx); got != `[{"a":1}]` {
		t.Fatalf("LastText()=%q", got)
	}
}

func TestUnavailableBridgeReadsEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	logs := &recordingLog{}
	s := New(brokenBridge{}, logs)

	if m := s.Mapping(ctx); len(m) != 0 {
		t.Fatalf("Mapping()=%v, want empty", m)
	}
	if len(logs.lines) != 1 {
		t.Fatalf("logged %d lines, want 1", len(logs.lines))
	}
	if err := s.SaveMapping(ctx, schema.FieldMapping{}); err == nil {
		t.Fatalf("SaveMapping on broken bridge returned nil")
	}

	tolerant := New(kv.NewTolerant(brokenBridge{}, nil), nil)
	if err := tolerant.SaveMapping(ctx, schema.FieldMapping{}); err != nil {
		t.Fatalf("SaveMapping through Tolerant=%v, want nil", err)
	}
}

func TestCorruptDocumentReadsEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bridge := kv.NewMemory()
	if err := bridge.Set(ctx, KeyTableSchemas, []byte("{not json")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	logs := &recordingLog{}
	s := New(bridge, logs)
	if sc := s.Schemas(ctx); sc == nil || len(sc) != 0 {
		t.Fatalf("Schemas()=%v, want empty", sc)
	}
	if len(logs.lines) == 0 {
		t.Fatalf("decode failure not logged")
	}
}

func TestStackTrimmedOnLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bridge := kv.NewMemory()
	long := &snapshot.Stack{}
	for i := 0; i < snapshot.MaxDepth+5; i++ {
		long.Items = append(long.Items, &snapshot.Snapshot{ID: fmt.Sprint(i)})
	}
	s := New(bridge, nil)
	if err := s.SaveStack(ctx, long); err != nil {
		t.Fatalf("SaveStack: %v", err)
	}

	st := s.Stack(ctx)
	if st.Len() != snapshot.MaxDepth {
		t.Fatalf("Len()=%d, want %d", st.Len(), snapshot.MaxDepth)
	}
	if st.Items[0].ID != "5" {
		t.Fatalf("oldest kept=%s, want 5", st.Items[0].ID)
	}
}

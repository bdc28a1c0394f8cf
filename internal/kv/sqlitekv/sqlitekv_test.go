package sqlitekv

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSetOverwritesAndPersists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok, err := s.Get(ctx, "snapshots"); ok || err != nil {
		t.Fatalf("Get missing: ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "snapshots", []byte(`[1]`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "snapshots", []byte(`[1,2]`)); err != nil {
		t.Fatalf("Set again: %v", err)
	}
	_ = s.Close()

	s, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, ok, err := s.Get(ctx, "snapshots")
	if !ok || err != nil || string(got) != `[1,2]` {
		t.Fatalf("Get = %q, %v, %v", got, ok, err)
	}
}

package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tablesync/internal/apperr"
	"tablesync/internal/schema"
	"tablesync/internal/snapshot"
	"tablesync/internal/storage"
	"tablesync/internal/storage/memory"
)

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "unnamed"},
		{"blank", "  \t ", "unnamed"},
		{"trim and collapse", "  a \n\t b  ", "a b"},
		{"unsafe", `a/b\c:d*e?f"g<h>i|j`, "a_b_c_d_e_f_g_h_i_j"},
		{"nfc", "Café", "Café"},
		{"truncate runes", strings.Repeat("é", 100), strings.Repeat("é", MaxNameLength)},
		{"dotted path kept", "user.address.city", "user.address.city"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeName(tt.in); got != tt.want {
				t.Fatalf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolveNameConflict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       string
		existing []string
		want     string
	}{
		{"free", "orders", []string{"customers"}, "orders"},
		{"first dup", "orders", []string{"orders"}, "orders_dup"},
		{"second dup", "orders", []string{"orders", "orders_dup"}, "orders_dup2"},
		{"case insensitive", "Orders", []string{"ORDERS", "orders_DUP"}, "Orders_dup2"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ResolveNameConflict(tt.in, tt.existing)
			if err != nil || got != tt.want {
				t.Fatalf("ResolveNameConflict(%q, %v) = %q, %v, want %q", tt.in, tt.existing, got, err, tt.want)
			}
		})
	}
}

func TestResolveNameConflictExhausted(t *testing.T) {
	t.Parallel()

	existing := []string{"x", "x_dup"}
	for i := 2; i <= MaxConflictAttempts; i++ {
		existing = append(existing, "x_dup"+itoa(i))
	}
	_, err := ResolveNameConflict("x", existing)
	if !apperr.Is(err, apperr.ErrNamingExhausted) {
		t.Fatalf("err = %v, want NAMING_EXHAUSTED", err)
	}
}

func itoa(i int) string {
	var b []byte
	for i > 0 {
		b = append([]byte{byte('0' + i%10)}, b...)
		i /= 10
	}
	return string(b)
}

func TestEnsureUniqueTableName(t *testing.T) {
	t.Parallel()

	used := map[string]bool{"orders": true, "orders_auto2": true}
	if got := EnsureUniqueTableName(" orders ", used); got != "orders_auto3" {
		t.Fatalf("got %q, want orders_auto3", got)
	}
	if got := EnsureUniqueTableName("Orders", used); got != "Orders" {
		t.Fatalf("case-sensitive check failed: %q", got)
	}
	if got := EnsureUniqueTableName("", used); got != "auto_table" {
		t.Fatalf("empty name: %q", got)
	}
}

func specOf(name string, fields ...schema.FieldSpec) schema.TableSpec {
	return schema.TableSpec{Name: name, SourceName: name, Fields: fields}
}

func fieldOf(key string, typ schema.FieldType) schema.FieldSpec {
	return schema.FieldSpec{Key: key, Source: key, Label: key, Type: typ, Enabled: true}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	spec := specOf("orders", fieldOf("id", schema.Number), fieldOf("name", schema.Text))
	tables := []storage.Table{{ID: "tbl1", Name: "orders"}, {ID: "tbl2", Name: "other"}}
	fullMapping := schema.FieldMapping{"orders": {"id": "f1", "name": "f2"}}
	schemas := schema.Schemas{"orders": schema.FingerprintOf(spec)}
	drifted := schema.Schemas{"orders": schema.FingerprintOf(specOf("orders", fieldOf("id", schema.Text)))}

	tests := []struct {
		name   string
		in     Input
		bucket Bucket
		table  string
	}{
		{"auto always creates", Input{Spec: spec, Target: schema.TableTarget{Mode: schema.TargetAuto}, Tables: tables, Mapping: fullMapping, Schemas: schemas}, BucketCreate, ""},
		{"empty mode is auto", Input{Spec: spec, Tables: tables}, BucketCreate, ""},
		{"existing missing", Input{Spec: spec, Target: schema.TableTarget{Mode: schema.TargetExisting, TableID: "tbl9", TableName: "gone"}, Tables: tables}, BucketCreateFallback, ""},
		{"existing present by id", Input{Spec: spec, Target: schema.TableTarget{Mode: schema.TargetExisting, TableID: "tbl2"}, Tables: tables}, BucketAppend, "tbl2"},
		{"existing present by name", Input{Spec: spec, Target: schema.TableTarget{Mode: schema.TargetExisting, TableName: "other"}, Tables: tables}, BucketAppend, "tbl2"},
		{"reuse without table", Input{Spec: spec, Target: schema.TableTarget{Mode: schema.TargetReuse}, Tables: tables[1:], Mapping: fullMapping, Schemas: schemas}, BucketCreate, ""},
		{"reuse unknown fingerprint", Input{Spec: spec, Target: schema.TableTarget{Mode: schema.TargetReuse}, Tables: tables, Mapping: fullMapping}, BucketCreate, ""},
		{"reuse incomplete mapping", Input{Spec: spec, Target: schema.TableTarget{Mode: schema.TargetReuse}, Tables: tables, Mapping: schema.FieldMapping{"orders": {"id": "f1"}}, Schemas: schemas}, BucketCreate, ""},
		{"reuse drift", Input{Spec: spec, Target: schema.TableTarget{Mode: schema.TargetReuse}, Tables: tables, Mapping: fullMapping, Schemas: drifted}, BucketCreate, ""},
		{"reuse unchanged", Input{Spec: spec, Target: schema.TableTarget{Mode: schema.TargetReuse}, Tables: tables, Mapping: fullMapping, Schemas: schemas}, BucketAppend, "tbl1"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(tt.in)
			if got.Bucket != tt.bucket || got.TableID != tt.table {
				t.Fatalf("Classify = %+v, want bucket=%s table=%q", got, tt.bucket, tt.table)
			}
		})
	}
}

type actionLog struct{ actions []snapshot.Action }

func (l *actionLog) Record(a snapshot.Action) { l.actions = append(l.actions, a) }

func TestResolveFieldIDOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memory.New()
	tid, _ := store.CreateTable(ctx, "t")
	mapped, _ := store.CreateField(ctx, tid, storage.FieldInput{Name: "Mapped Field", Type: schema.Text})
	byLabel, _ := store.CreateField(ctx, tid, storage.FieldInput{Name: "EMAIL", Type: schema.Text})
	byNorm, _ := store.CreateField(ctx, tid, storage.FieldInput{Name: "a_b", Type: schema.Text})
	bySource, _ := store.CreateField(ctx, tid, storage.FieldInput{Name: "User.Id", Type: schema.Text})

	mapping := schema.FieldMapping{"t": {"m": mapped, "stale": "fldgone"}}
	log := &actionLog{}
	r := NewResolver(store, mapping, nil, log)

	tests := []struct {
		name  string
		field schema.FieldSpec
		want  string
	}{
		{"mapped id", schema.FieldSpec{Key: "m", Label: "whatever"}, mapped},
		{"label", schema.FieldSpec{Key: "email", Label: "email"}, byLabel},
		{"normalized", schema.FieldSpec{Key: "ab", Label: "a/b"}, byNorm},
		{"source", schema.FieldSpec{Key: "uid", Source: "user.id", Label: "User identifier"}, bySource},
	}
	for _, tt := range tests {
		got, ok, err := r.ResolveFieldID(ctx, tid, "t", tt.field)
		if !ok || err != nil || got != tt.want {
			t.Fatalf("%s: got %q ok=%v err=%v, want %q", tt.name, got, ok, err, tt.want)
		}
		if id, _ := mapping.Get("t", tt.field.Key); id != tt.want {
			t.Fatalf("%s: mapping not updated: %q", tt.name, id)
		}
	}
	if len(log.actions) != 0 {
		t.Fatalf("no field should have been created: %+v", log.actions)
	}

	// A stale mapping falls through to creation.
	created, ok, err := r.ResolveFieldID(ctx, tid, "t", schema.FieldSpec{Key: "stale", Label: "tags", Type: schema.MultiSelect, Options: []string{"x", "y"}})
	if !ok || err != nil {
		t.Fatalf("create: ok=%v err=%v", ok, err)
	}
	if len(log.actions) != 1 || log.actions[0].Kind != snapshot.CreateField || log.actions[0].Field.ID != created {
		t.Fatalf("actions = %+v", log.actions)
	}
	fields, _ := store.ListFields(ctx, tid)
	last := fields[len(fields)-1]
	if last.ID != created || last.Name != "tags" || last.Property == nil || len(last.Property.Options) != 2 {
		t.Fatalf("created field = %+v", last)
	}
}

func TestResolveFieldIDIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memory.New()
	tid, _ := store.CreateTable(ctx, "t")
	mapping := schema.FieldMapping{}
	spec := specOf("t", fieldOf("id", schema.Number), fieldOf("name", schema.Text))

	first, errs := NewResolver(store, mapping, nil, nil).ResolveAll(ctx, tid, "t", spec.Fields)
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	second, errs := NewResolver(store, mapping, nil, nil).ResolveAll(ctx, tid, "t", spec.Fields)
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	for k, id := range first {
		if second[k] != id {
			t.Fatalf("key %s: %s then %s", k, id, second[k])
		}
	}
	fields, _ := store.ListFields(ctx, tid)
	if len(fields) != 2 {
		t.Fatalf("fields = %d, want 2", len(fields))
	}
}

func TestCreatedFieldUsesNormalizedLabel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memory.New()
	tid, _ := store.CreateTable(ctx, "t")
	r := NewResolver(store, nil, nil, nil)

	id, ok, err := r.ResolveFieldID(ctx, tid, "t", schema.FieldSpec{Key: "p", Label: "  unit:price \n", Type: schema.Number})
	if !ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	fields, _ := r.Fields(ctx, tid)
	if len(fields) != 1 || fields[0].ID != id || fields[0].Name != "unit_price" || fields[0].Type != schema.Number {
		t.Fatalf("fields = %+v", fields)
	}
}

type noFieldStore struct{ *memory.Store }

func (noFieldStore) CreateField(context.Context, string, storage.FieldInput) (string, error) {
	return "", errors.New("quota exceeded")
}

func TestResolveFieldIDFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := noFieldStore{memory.New()}
	tid, _ := store.CreateTable(ctx, "t")
	r := NewResolver(store, nil, nil, nil)

	_, ok, err := r.ResolveFieldID(ctx, tid, "t", fieldOf("x", schema.Text))
	if ok || !apperr.Is(err, apperr.ErrFieldResolution) || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestCreateTableDisambiguates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memory.New()
	_, _ = store.CreateTable(ctx, "orders")
	log := &actionLog{}
	r := NewResolver(store, nil, nil, log)

	tbl, err := r.CreateTable(ctx, "ORDERS")
	if err != nil || tbl.Name != "ORDERS_dup" {
		t.Fatalf("CreateTable = %+v, %v", tbl, err)
	}
	if len(log.actions) != 1 || log.actions[0].Kind != snapshot.CreateTable || log.actions[0].TableID != tbl.ID {
		t.Fatalf("actions = %+v", log.actions)
	}
}

func TestSyncFieldDifferences(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memory.New()
	tid, _ := store.CreateTable(ctx, "t")
	nameID, _ := store.CreateField(ctx, tid, storage.FieldInput{Name: "name", Type: schema.Text})
	noteID, _ := store.CreateField(ctx, tid, storage.FieldInput{Name: "note", Type: schema.Text})
	mapping := schema.FieldMapping{"t": {"name": nameID, "note": noteID}}
	log := &actionLog{}
	r := NewResolver(store, mapping, nil, log)

	name := fieldOf("name", schema.Text)
	name.Label = "Full Name"
	note := fieldOf("note", schema.Text)
	note.Enabled = false
	spec := specOf("t", name, note, fieldOf("age", schema.Number))

	res := r.SyncFieldDifferences(ctx, tid, "t", spec)
	if len(res.Failures) != 0 {
		t.Fatalf("failures: %v", res.Failures)
	}
	if res.Resolved != 2 || res.Renamed != 1 || res.Deleted != 1 {
		t.Fatalf("result = %+v", res)
	}

	fields, _ := store.ListFields(ctx, tid)
	if len(fields) != 2 || fields[0].ID != nameID || fields[0].Name != "Full Name" || fields[1].Name != "age" {
		t.Fatalf("fields = %+v", fields)
	}
	if _, ok := mapping.Get("t", "note"); ok {
		t.Fatalf("disabled field still mapped: %v", mapping)
	}
	if _, ok := mapping.Get("t", "age"); !ok {
		t.Fatalf("created field not mapped: %v", mapping)
	}

	var kinds []snapshot.Kind
	for _, a := range log.actions {
		kinds = append(kinds, a.Kind)
	}
	want := []snapshot.Kind{snapshot.RenameField, snapshot.CreateField, snapshot.DeleteField}
	if len(kinds) != len(want) {
		t.Fatalf("actions = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("actions = %v, want %v", kinds, want)
		}
	}
	if log.actions[0].OldName != "name" || log.actions[0].NewName != "Full Name" {
		t.Fatalf("rename action = %+v", log.actions[0])
	}
}

func TestPruneMapping(t *testing.T) {
	t.Parallel()

	off := fieldOf("b", schema.Text)
	off.Enabled = false
	mapping := schema.FieldMapping{
		"t":     {"a": "f1", "b": "f2", "gone": "f3"},
		"empty": {"x": "f4"},
		"other": {"k": "f5"},
	}
	PruneMapping(mapping, []schema.TableSpec{specOf("t", fieldOf("a", schema.Text), off), specOf("empty")})

	if len(mapping["t"]) != 1 || mapping["t"]["a"] != "f1" {
		t.Fatalf("t = %v", mapping["t"])
	}
	if _, ok := mapping["empty"]; ok {
		t.Fatalf("empty table entry kept")
	}
	if mapping["other"]["k"] != "f5" {
		t.Fatalf("unrelated table touched")
	}
}

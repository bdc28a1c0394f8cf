package schema

import (
	"reflect"
	"testing"
)

func spec(fields ...FieldSpec) TableSpec {
	return TableSpec{Name: "orders", Fields: fields}
}

func field(key string, typ FieldType) FieldSpec {
	return FieldSpec{Key: key, Source: key, Label: key, Type: typ, Enabled: true}
}

func TestFingerprintStableUnderReorder(t *testing.T) {
	t.Parallel()

	a := FingerprintOf(spec(field("id", Number), field("Name", Text), field("paid", Checkbox)))
	b := FingerprintOf(spec(field("paid", Checkbox), field("id", Number), field("Name", Text)))
	if a.Signature != b.Signature {
		t.Fatalf("reordered signature differs: %q vs %q", a.Signature, b.Signature)
	}
	if want := "name::text|id::number|paid::checkbox"; a.Signature != want {
		t.Fatalf("signature=%q, want %q", a.Signature, want)
	}

	c := FingerprintOf(spec(field("paid", Text), field("id", Number), field("Name", Text)))
	if c.Signature == a.Signature {
		t.Fatalf("type change did not change signature")
	}
}

func TestFingerprintIgnoresDisabledAndEmpty(t *testing.T) {
	t.Parallel()

	off := field("note", Text)
	off.Enabled = false
	if got := FingerprintOf(spec(off)).Signature; got != EmptySignature {
		t.Fatalf("signature=%q, want %q", got, EmptySignature)
	}
	if got := FingerprintOf(spec(field("a", ""))).Signature; got != "a::text" {
		t.Fatalf("missing type signature=%q", got)
	}
}

func TestSchemasRecord(t *testing.T) {
	t.Parallel()

	s := Schemas{}
	specs := []TableSpec{spec(field("id", Number))}
	if !s.Record(specs) {
		t.Fatalf("first Record reported no change")
	}
	if s.Record(specs) {
		t.Fatalf("second Record reported a change")
	}
	specs[0].Fields[0].Type = Text
	if !s.Record(specs) {
		t.Fatalf("type change not recorded")
	}
}

func TestFieldMappingPrune(t *testing.T) {
	t.Parallel()

	m := FieldMapping{
		"orders": {"id": "f1", "gone": "f2", "off": "f3"},
		"empty":  {"x": "f9"},
		"other":  {"y": "f5"},
	}
	off := field("off", Text)
	off.Enabled = false
	m.Prune([]TableSpec{
		spec(field("id", Number), off),
		{Name: "empty", Fields: nil},
	})

	want := FieldMapping{"orders": {"id": "f1"}, "other": {"y": "f5"}}
	if !reflect.DeepEqual(m, want) {
		t.Fatalf("Prune=%v, want %v", m, want)
	}
}

func TestFieldMappingCloneIsDeep(t *testing.T) {
	t.Parallel()

	m := FieldMapping{"t": {"a": "1"}}
	c := m.Clone()
	c.Set("t", "a", "2")
	c.Set("u", "b", "3")
	if m["t"]["a"] != "1" || len(m) != 1 {
		t.Fatalf("Clone shares state: %v", m)
	}
	c.DeleteKey("u", "b")
	if _, ok := c["u"]; ok {
		t.Fatalf("DeleteKey left empty table entry")
	}
	if got := (FieldMapping{"t": {"a": "x", "b": "x", "c": "y"}}).KeysFor("t", "x"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("KeysFor=%v", got)
	}
}

func TestOverridesApply(t *testing.T) {
	t.Parallel()

	no := false
	ov := Overrides{"orders": {
		"id":   {Type: "progress"},
		"name": {Label: "Customer", Enabled: &no},
	}}
	in := TableSpec{Name: "orders_auto2", SourceName: "orders", Fields: []FieldSpec{field("id", Number), field("name", Text)}}
	out := ov.Apply(in)

	if out.Fields[0].Type != Progress {
		t.Fatalf("type override=%q", out.Fields[0].Type)
	}
	if out.Fields[1].Label != "Customer" || out.Fields[1].Enabled {
		t.Fatalf("label/enabled override=%+v", out.Fields[1])
	}
	if !in.Fields[1].Enabled {
		t.Fatalf("Apply mutated its input")
	}
}

func TestParseFieldType(t *testing.T) {
	t.Parallel()

	if got, ok := ParseFieldType(" url "); !ok || got != URL {
		t.Fatalf("ParseFieldType(url)=(%q,%v)", got, ok)
	}
	if _, ok := ParseFieldType("Blob"); ok {
		t.Fatalf("unknown type accepted")
	}
	if Narrow("Blob") != Text {
		t.Fatalf("Narrow(unknown) != Text")
	}
	if !Currency.IsNumeric() || Text.IsNumeric() || !MultiSelect.IsSelect() {
		t.Fatalf("type predicates wrong")
	}
}

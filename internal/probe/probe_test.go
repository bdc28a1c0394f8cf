package probe

import (
	"reflect"
	"strings"
	"testing"

	"tablesync/internal/parser"
	"tablesync/internal/schema"
	"tablesync/internal/value"
)

func mustJSON(t *testing.T, s string) value.Value {
	t.Helper()
	v, err := value.ParseJSONString(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func fieldByKey(t *testing.T, spec schema.TableSpec, key string) schema.FieldSpec {
	t.Helper()
	f, ok := spec.Field(key)
	if !ok {
		t.Fatalf("table %q has no field %q (fields=%v)", spec.Name, key, fieldKeys(spec))
	}
	return f
}

func fieldKeys(spec schema.TableSpec) []string {
	out := make([]string, 0, len(spec.Fields))
	for _, f := range spec.Fields {
		out = append(out, f.Key)
	}
	return out
}

func hasType(ts []schema.FieldType, want schema.FieldType) bool {
	for _, t := range ts {
		if t == want {
			return true
		}
	}
	return false
}

func TestInferFlatRecords(t *testing.T) {
	t.Parallel()

	res := Infer(mustJSON(t, `[{"id":1,"paid":true,"amount":9.5}]`), Options{})
	if len(res.Tables) != 1 {
		t.Fatalf("tables = %d, want 1", len(res.Tables))
	}
	tbl := res.Tables[0]
	if tbl.Name != DefaultEntity {
		t.Fatalf("name = %q, want %q", tbl.Name, DefaultEntity)
	}
	if got, want := fieldKeys(tbl), []string{"id", "paid", "amount"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("fields = %v, want %v", got, want)
	}

	id := fieldByKey(t, tbl, "id")
	if id.Type != schema.Number || !hasType(id.SuggestedTypes, schema.AutoNumber) {
		t.Fatalf("id = %+v, want Number with AutoNumber suggested", id)
	}
	if paid := fieldByKey(t, tbl, "paid"); paid.Type != schema.Checkbox {
		t.Fatalf("paid type = %s, want Checkbox", paid.Type)
	}
	amount := fieldByKey(t, tbl, "amount")
	if amount.Type != schema.Number {
		t.Fatalf("amount type = %s, want Number", amount.Type)
	}
	for _, want := range []schema.FieldType{schema.Progress, schema.Currency} {
		if !hasType(amount.SuggestedTypes, want) {
			t.Fatalf("amount suggestions %v missing %s", amount.SuggestedTypes, want)
		}
	}
	if hasType(amount.SuggestedTypes, schema.Rating) {
		t.Fatalf("amount 9.5 must not suggest Rating: %v", amount.SuggestedTypes)
	}
	if len(tbl.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(tbl.Records))
	}
}

func TestInferChildTables(t *testing.T) {
	t.Parallel()

	res := Infer(mustJSON(t, `{"orders":[{"id":1,"items":[{"sku":"A"},{"sku":"B"}]},{"id":2,"items":[{"sku":"C"}]}]}`), Options{})
	if len(res.Tables) != 2 {
		t.Fatalf("tables = %d, want 2", len(res.Tables))
	}
	master, child := res.Tables[0], res.Tables[1]
	if master.Name != "orders" || master.Source.Kind != "root" {
		t.Fatalf("master = %q (%+v), want orders/root", master.Name, master.Source)
	}
	if got := fieldKeys(master); !reflect.DeepEqual(got, []string{"id"}) {
		t.Fatalf("master fields = %v, want [id]", got)
	}
	if child.Name != "items" || child.Source.Kind != "child" || child.Source.Path != "items" || child.Source.ParentKey != "id" {
		t.Fatalf("child = %q (%+v)", child.Name, child.Source)
	}
	if got := fieldKeys(child); !reflect.DeepEqual(got, []string{"sku"}) {
		t.Fatalf("child fields = %v, want [sku]", got)
	}
	if len(child.Records) != 3 {
		t.Fatalf("child records = %d, want 3", len(child.Records))
	}
}

func TestChildRowsPerRecordCap(t *testing.T) {
	t.Parallel()

	elems := make([]value.Value, 0, 80)
	for i := 0; i < 80; i++ {
		elems = append(elems, value.Obj(value.MapOf("n", value.Int(i))))
	}
	doc := value.List(value.Obj(value.MapOf("id", value.Int(1), "lines", value.List(elems...))))

	tables := AnalyseStructure(mustList(t, doc), "m", 0)
	if len(tables) != 2 {
		t.Fatalf("tables = %d, want 2", len(tables))
	}
	if got := len(tables[1].Records); got != ChildRowsPerRecord {
		t.Fatalf("child records = %d, want %d", got, ChildRowsPerRecord)
	}
}

func mustList(t *testing.T, v value.Value) []value.Value {
	t.Helper()
	items, ok := v.AsList()
	if !ok {
		t.Fatalf("not a list: %s", v.JSON())
	}
	return items
}

func TestFormatIndependence(t *testing.T) {
	t.Parallel()

	inputs := map[string]string{
		"json": `[{"id":1,"name":"Alice","active":true},{"id":2,"name":"Bob","active":false}]`,
		"yaml": "- id: 1\n  name: Alice\n  active: true\n- id: 2\n  name: Bob\n  active: false\n",
		"tsv":  "id\tname\tactive\n1\tAlice\ttrue\n2\tBob\tfalse\n",
	}

	var want []schema.FieldSpec
	for _, format := range []string{"json", "yaml", "tsv"} {
		res, err := Probe(inputs[format], Options{Format: parser.Format(format)})
		if err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		if len(res.Tables) != 1 {
			t.Fatalf("%s: tables = %d, want 1", format, len(res.Tables))
		}
		got := res.Tables[0].Fields
		if want == nil {
			want = got
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("%s fields differ:\n got %+v\nwant %+v", format, got, want)
		}
	}
}

func TestDetectType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      value.Value
		primary schema.FieldType
		suggest []schema.FieldType
	}{
		{"null", value.Null(), schema.Text, []schema.FieldType{schema.Text}},
		{"bool", value.Bool(false), schema.Checkbox, []schema.FieldType{schema.Checkbox}},
		{"rating range", value.Int(3), schema.Number, []schema.FieldType{schema.Number, schema.Progress, schema.Rating, schema.Currency}},
		{"large number", value.Int(250), schema.Number, []schema.FieldType{schema.Number, schema.Currency}},
		{"negative", value.Num(-1.5), schema.Number, []schema.FieldType{schema.Number, schema.Currency}},
		{"plain text", value.Str("hello"), schema.Text, []schema.FieldType{schema.Text, schema.SingleSelect}},
		{"url", value.Str("HTTPS://example.com/x"), schema.URL, []schema.FieldType{schema.URL, schema.Text, schema.SingleSelect}},
		{"email", value.Str("a@b.io"), schema.Email, []schema.FieldType{schema.Email, schema.Text, schema.SingleSelect}},
		{"cn mobile", value.Str("13812345678"), schema.Phone, []schema.FieldType{schema.Phone, schema.Text, schema.SingleSelect, schema.Barcode}},
		{"intl phone", value.Str("+44 20-7946-0958"), schema.Phone, []schema.FieldType{schema.Phone, schema.Text, schema.SingleSelect}},
		{"date", value.Str("2024-01-02"), schema.DateTime, []schema.FieldType{schema.DateTime, schema.Text, schema.SingleSelect}},
		{"datetime", value.Str("2024-01-02T03:04:05Z"), schema.DateTime, []schema.FieldType{schema.DateTime, schema.Text, schema.SingleSelect}},
		{"barcode", value.Str("ab12cd34"), schema.Barcode, []schema.FieldType{schema.Barcode, schema.Text, schema.SingleSelect}},
		{"short code", value.Str("AB12"), schema.Text, []schema.FieldType{schema.Text, schema.SingleSelect}},
		{"tags", value.List(value.Str("a"), value.Str("b"), value.Str("a")), schema.MultiSelect, []schema.FieldType{schema.MultiSelect, schema.Text}},
		{"object list", value.List(value.Obj(value.MapOf("x", value.Int(1)))), schema.Text, []schema.FieldType{schema.Text}},
		{"geo", value.Obj(value.MapOf("longitude", value.Num(1), "latitude", value.Num(2))), schema.Location, []schema.FieldType{schema.Location, schema.Text}},
		{"attachment", value.Obj(value.MapOf("token", value.Str("t"))), schema.Attachment, []schema.FieldType{schema.Attachment, schema.Text}},
		{"money", value.Obj(value.MapOf("amount", value.Int(5))), schema.Currency, []schema.FieldType{schema.Currency, schema.Text}},
		{"link", value.Obj(value.MapOf("id", value.Str("rec1"))), schema.Text, []schema.FieldType{schema.Text, schema.SingleLink, schema.DuplexLink}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := DetectType(tt.in)
			if got.Primary != tt.primary {
				t.Fatalf("primary = %s, want %s", got.Primary, tt.primary)
			}
			if !reflect.DeepEqual(got.Suggested, tt.suggest) {
				t.Fatalf("suggested = %v, want %v", got.Suggested, tt.suggest)
			}
		})
	}
}

func TestDetectTypeSelectOptions(t *testing.T) {
	t.Parallel()

	got := DetectType(value.List(value.Str("red"), value.Int(2), value.Str("red"), value.Bool(true)))
	if want := []string{"red", "2", "true"}; !reflect.DeepEqual(got.Options, want) {
		t.Fatalf("options = %v, want %v", got.Options, want)
	}

	many := make([]value.Value, 0, MaxSelectOptions+1)
	for i := 0; i <= MaxSelectOptions; i++ {
		many = append(many, value.Int(i))
	}
	if got := DetectType(value.List(many...)); got.Primary != schema.Text || got.Options != nil {
		t.Fatalf("too many options: primary=%s options=%d", got.Primary, len(got.Options))
	}
}

func TestMergeDetections(t *testing.T) {
	t.Parallel()

	t.Run("conflict downgrades to text and keeps union", func(t *testing.T) {
		t.Parallel()
		got := MergeDetections(DetectType(value.Int(7)), DetectType(value.Bool(true)))
		if got.Primary != schema.Text {
			t.Fatalf("primary = %s, want Text", got.Primary)
		}
		for _, want := range []schema.FieldType{schema.Text, schema.Number, schema.Checkbox} {
			if !hasType(got.Suggested, want) {
				t.Fatalf("suggested %v missing %s", got.Suggested, want)
			}
		}
	})

	t.Run("nulls carry no evidence", func(t *testing.T) {
		t.Parallel()
		got := MergeDetections(DetectType(value.Null()), DetectType(value.Int(4)))
		got = MergeDetections(got, DetectType(value.Null()))
		if got.Primary != schema.Number {
			t.Fatalf("primary = %s, want Number", got.Primary)
		}
	})

	t.Run("options merge", func(t *testing.T) {
		t.Parallel()
		a := DetectType(value.List(value.Str("x"), value.Str("y")))
		b := DetectType(value.List(value.Str("y"), value.Str("z")))
		got := MergeDetections(a, b)
		if got.Primary != schema.MultiSelect {
			t.Fatalf("primary = %s, want MultiSelect", got.Primary)
		}
		if want := []string{"x", "y", "z"}; !reflect.DeepEqual(got.Options, want) {
			t.Fatalf("options = %v, want %v", got.Options, want)
		}
	})
}

func TestExtractDataList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		root    string
		wantLen int
		wantKey string
		wrapped bool
	}{
		{"top level array", `[{"a":1},{"a":2}]`, "", 2, "", false},
		{"envelope key", `{"meta":{"n":1},"results":[{"a":1}]}`, "auto", 1, "results", false},
		{"envelope order", `{"items":[{"a":1}],"data":[{"a":1},{"a":2}]}`, "", 2, "data", false},
		{"envelope skips scalar arrays", `{"data":[1,2],"rows":[{"a":1}]}`, "", 1, "rows", false},
		{"dotted path", `{"resp":{"body":{"things":[{"a":1},{"a":2},{"a":3}]}}}`, "resp.body.things", 3, "things", false},
		{"bad path falls back", `{"people":[{"a":1}]}`, "nope.none", 1, "people", false},
		{"first object array", `{"x":5,"people":[{"a":1}],"pets":[{"b":1}]}`, "", 1, "people", false},
		{"plain object wraps", `{"a":1,"b":2}`, "", 1, "", true},
		{"scalar", `42`, "", 0, "", false},
		{"array of scalars", `[1,2,3]`, "", 0, "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			list, key, wrapped := ExtractDataList(mustJSON(t, tt.in), tt.root)
			if len(list) != tt.wantLen || key != tt.wantKey || wrapped != tt.wrapped {
				t.Fatalf("got len=%d key=%q wrapped=%v, want len=%d key=%q wrapped=%v",
					len(list), key, wrapped, tt.wantLen, tt.wantKey, tt.wrapped)
			}
		})
	}
}

func TestInferWarnsOnSingleObject(t *testing.T) {
	t.Parallel()

	res := Infer(mustJSON(t, `{"name":"solo","n":1}`), Options{Entity: "thing"})
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "INFERENCE_WARNING") {
		t.Fatalf("warnings = %v", res.Warnings)
	}
	if len(res.Tables) != 1 || res.Tables[0].Name != "thing" || len(res.Tables[0].Records) != 1 {
		t.Fatalf("tables = %+v", res.Tables)
	}
}

func TestConflictingTypesAcrossRecords(t *testing.T) {
	t.Parallel()

	res := Infer(mustJSON(t, `[{"v":1},{"v":"one"},{"v":null}]`), Options{})
	f := fieldByKey(t, res.Tables[0], "v")
	if f.Type != schema.Text {
		t.Fatalf("type = %s, want Text", f.Type)
	}
	if !hasType(f.SuggestedTypes, schema.Number) {
		t.Fatalf("suggestions %v lost Number", f.SuggestedTypes)
	}
}

func TestNestedObjectsFlatten(t *testing.T) {
	t.Parallel()

	res := Infer(mustJSON(t, `[{"user":{"name":"a","geo":{"lat":1}},"id":9}]`), Options{})
	if got, want := fieldKeys(res.Tables[0]), []string{"user.name", "user.geo.lat", "id"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("fields = %v, want %v", got, want)
	}
}

func TestParseInputToSpecs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        string
		wantNames []string
		warnings  int
	}{
		{"bare array", `[{"a":1},{"a":2}]`, []string{"auto_table"}, 0},
		{"container twice", `{"data":{"result":[{"a":1}]}}`, []string{"auto_table"}, 0},
		{"one table per key", `{"users":[{"a":1}],"orders":[{"b":2}],"count":2}`, []string{"users", "orders"}, 0},
		{"mixed array is not a table", `{"users":[{"a":1},3]}`, []string{"auto_table"}, 1},
		{"single object", `{"a":1}`, []string{"auto_table"}, 1},
		{"scalar", `"x"`, nil, 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tables, warnings := ParseInputToSpecs(mustJSON(t, tt.in), Options{})
			var names []string
			for _, tbl := range tables {
				names = append(names, tbl.Name)
			}
			if !reflect.DeepEqual(names, tt.wantNames) {
				t.Fatalf("names = %v, want %v", names, tt.wantNames)
			}
			if len(warnings) != tt.warnings {
				t.Fatalf("warnings = %v, want %d", warnings, tt.warnings)
			}
		})
	}
}

func TestProbeReturnsFormatErrors(t *testing.T) {
	t.Parallel()

	if _, err := Probe(`{"a":`, Options{Format: parser.FormatJSON}); err == nil {
		t.Fatalf("expected format error")
	}
	res, err := Probe("<root><a>1</a></root>", Options{})
	if err == nil {
		t.Fatalf("expected unsupported format error, got %+v", res)
	}
}

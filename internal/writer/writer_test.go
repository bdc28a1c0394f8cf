package writer

import (
	"context"
	"math"
	"testing"

	"tablesync/internal/apperr"
	"tablesync/internal/schema"
	"tablesync/internal/storage"
	"tablesync/internal/storage/memory"
	"tablesync/internal/value"
)

type captureLog struct{ lines []string }

func (c *captureLog) Printf(format string, v ...any) { c.lines = append(c.lines, format) }

func seedTable(t *testing.T, s *memory.Store) (string, string) {
	t.Helper()
	ctx := context.Background()
	tid, err := s.CreateTable(ctx, "orders")
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	fid, err := s.CreateField(ctx, tid, storage.FieldInput{Name: "n", Type: schema.Number})
	if err != nil {
		t.Fatalf("CreateField: %v", err)
	}
	return tid, fid
}

func TestWriteDegradesFailedBatchToSingleRows(t *testing.T) {
	t.Parallel()

	s := memory.New()
	tid, fid := seedTable(t, s)

	rows := make([]Row, 120)
	for i := range rows {
		rows[i] = Row{fid: value.Int(i)}
	}
	// Unknown field ids make these two rows, and therefore their batch, fail.
	rows[60]["fldbogus"] = value.Str("x")
	rows[75]["fldbogus"] = value.Str("x")

	var calls int
	var seen []string
	w := New(s, 50, &captureLog{})
	w.OnInserted = func(tableID string, ids []string) {
		if tableID != tid {
			t.Errorf("OnInserted table=%q, want %q", tableID, tid)
		}
		calls++
		seen = append(seen, ids...)
	}

	res := w.Write(context.Background(), tid, "orders", rows)

	if res.Batches != 3 {
		t.Fatalf("Batches=%d, want 3", res.Batches)
	}
	if res.Degraded != 1 {
		t.Fatalf("Degraded=%d, want 1", res.Degraded)
	}
	if len(res.Inserted) != 118 || res.Failed != 2 {
		t.Fatalf("inserted=%d failed=%d, want 118/2", len(res.Inserted), res.Failed)
	}
	if len(res.Errors) != 2 || !apperr.Is(res.Errors[0], apperr.ErrRowWrite) {
		t.Fatalf("Errors=%v, want two ROW_WRITE_FAILED", res.Errors)
	}
	// one call for batch 1, 48 single-row calls, one call for batch 3
	if calls != 50 {
		t.Fatalf("OnInserted calls=%d, want 50", calls)
	}
	if len(seen) != len(res.Inserted) {
		t.Fatalf("callback saw %d ids, result has %d", len(seen), len(res.Inserted))
	}

	stored, err := s.ListRows(context.Background(), tid)
	if err != nil {
		t.Fatalf("ListRows: %v", err)
	}
	if len(stored) != 118 {
		t.Fatalf("stored rows=%d, want 118", len(stored))
	}
	for i, r := range stored {
		if r.ID != res.Inserted[i] {
			t.Fatalf("stored[%d].ID=%q, want %q", i, r.ID, res.Inserted[i])
		}
	}
	if n, _ := stored[60].Data[fid].AsNumber(); n != 61 {
		t.Fatalf("row after first failure has n=%v, want 61", n)
	}
}

func TestWriteEmptyAndDefaults(t *testing.T) {
	t.Parallel()

	s := memory.New()
	tid, _ := seedTable(t, s)
	w := New(s, 0, nil)
	if w.batchSize != DefaultBatchSize {
		t.Fatalf("batchSize=%d, want %d", w.batchSize, DefaultBatchSize)
	}
	res := w.Write(context.Background(), tid, "orders", nil)
	if res.Batches != 0 || len(res.Inserted) != 0 || res.Failed != 0 {
		t.Fatalf("empty write result=%+v", res)
	}
}

func TestWriteMissingTableFailsEveryRow(t *testing.T) {
	t.Parallel()

	s := memory.New()
	w := New(s, 2, nil)
	rows := []Row{{}, {}, {}}
	res := w.Write(context.Background(), "tblgone", "gone", rows)
	if res.Failed != 3 || len(res.Inserted) != 0 || res.Batches != 2 {
		t.Fatalf("result=%+v, want 3 failed over 2 batches", res)
	}
}

func TestCoerceCellValue(t *testing.T) {
	t.Parallel()

	loc := value.Obj(value.MapOf("longitude", value.Num(0), "latitude", value.Num(51.5)))
	halfLoc := value.Obj(value.MapOf("longitude", value.Num(1)))
	att := value.Obj(value.MapOf("token", value.Str("abc")))

	tests := []struct {
		name string
		in   value.Value
		typ  schema.FieldType
		want value.Value
	}{
		{name: "null", in: value.Null(), typ: schema.Text, want: value.Null()},
		{name: "empty_array", in: value.List(), typ: schema.MultiSelect, want: value.Null()},
		{name: "number_from_string", in: value.Str("12.5"), typ: schema.Number, want: value.Num(12.5)},
		{name: "number_unparseable", in: value.Str("abc"), typ: schema.Currency, want: value.Null()},
		{name: "rating_bool", in: value.Bool(true), typ: schema.Rating, want: value.Num(1)},
		{name: "checkbox_string", in: value.Str("no"), typ: schema.Checkbox, want: value.Bool(true)},
		{name: "checkbox_zero", in: value.Num(0), typ: schema.Checkbox, want: value.Bool(false)},
		{name: "checkbox_empty", in: value.Str(""), typ: schema.Checkbox, want: value.Bool(false)},
		{name: "datetime_number", in: value.Num(20240101), typ: schema.DateTime, want: value.Str("20240101")},
		{name: "url", in: value.Str("https://x.io"), typ: schema.URL, want: value.Str("https://x.io")},
		{name: "location_zero_lon", in: loc, typ: schema.Location, want: value.Obj(value.MapOf("location", value.Str("0,51.5")))},
		{name: "location_partial", in: halfLoc, typ: schema.Location, want: value.Str(halfLoc.Text())},
		{name: "attachment_token", in: att, typ: schema.Attachment, want: att},
		{name: "attachment_plain", in: value.Str("a.png"), typ: schema.Attachment, want: value.Str("a.png")},
		{name: "multiselect_list", in: value.List(value.Str("a"), value.Num(2)), typ: schema.MultiSelect, want: value.List(value.Str("a"), value.Str("2"))},
		{name: "singleselect_scalar", in: value.Num(3), typ: schema.SingleSelect, want: value.Str("3")},
		{name: "text_bool", in: value.Bool(false), typ: schema.Text, want: value.Str("false")},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := CoerceCellValue(tt.in, tt.typ)
			if !value.Equal(got, tt.want) {
				t.Fatalf("CoerceCellValue(%s, %s)=%s, want %s", tt.in.JSON(), tt.typ, got.JSON(), tt.want.JSON())
			}
		})
	}
}

func TestCoerceNonFiniteIsNull(t *testing.T) {
	t.Parallel()

	for _, n := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		if got := CoerceCellValue(value.Num(n), schema.Number); !got.IsNull() {
			t.Fatalf("CoerceCellValue(%v)=%s, want null", n, got.JSON())
		}
	}
}

func TestBuildRows(t *testing.T) {
	t.Parallel()

	fields := []schema.FieldSpec{
		{Key: "name", Type: schema.Text},
		{Key: "price", Type: schema.Number},
		{Key: "city", Source: "address.city", Type: schema.Text},
		{Key: "unmapped", Type: schema.Text},
	}
	ids := map[string]string{"name": "fld1", "price": "fld2", "city": "fld3"}
	records := []schema.Record{
		value.MapOf("name", value.Str("a"), "price", value.Str("3"),
			"address", value.Obj(value.MapOf("city", value.Str("Oslo")))),
		value.MapOf("unmapped", value.Str("x")),
		value.MapOf("name", value.Null()),
	}

	rows := BuildRows(fields, ids, records)
	if len(rows) != 2 {
		t.Fatalf("rows=%d, want 2 (record with only unmapped fields dropped)", len(rows))
	}
	if n, _ := rows[0]["fld2"].AsNumber(); n != 3 {
		t.Fatalf("price=%s, want 3", rows[0]["fld2"].JSON())
	}
	if s, _ := rows[0]["fld3"].AsString(); s != "Oslo" {
		t.Fatalf("city=%s, want Oslo", rows[0]["fld3"].JSON())
	}
	if v, ok := rows[1]["fld1"]; !ok || !v.IsNull() {
		t.Fatalf("explicit null should be written as null, got %v %v", v.JSON(), ok)
	}
	if _, ok := rows[1]["fld2"]; ok {
		t.Fatalf("missing value should be omitted")
	}
}

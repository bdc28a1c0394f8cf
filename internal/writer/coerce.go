package writer

import (
	"math"

	"tablesync/internal/canonical"
	"tablesync/internal/schema"
	"tablesync/internal/storage"
	"tablesync/internal/value"
)

// CoerceCellValue converts a raw record value into the payload expected for
// a field of type t. Null, empty arrays and unparseable numbers become null.
func CoerceCellValue(v value.Value, t schema.FieldType) value.Value {
	if v.IsNull() {
		return value.Null()
	}
	if v.IsArray() && v.Len() == 0 {
		return value.Null()
	}

	switch t {
	case schema.Number, schema.Progress, schema.Rating, schema.Currency:
		n := v.ToNumber()
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return value.Null()
		}
		return value.Num(n)

	case schema.Checkbox:
		return value.Bool(v.Truthy())

	case schema.DateTime, schema.URL, schema.Email, schema.Phone, schema.Barcode:
		return value.Str(v.Text())

	case schema.Location:
		lon, okLon := v.Get("longitude")
		lat, okLat := v.Get("latitude")
		if okLon && okLat && !lon.IsNull() && !lat.IsNull() {
			return value.Obj(value.MapOf("location", value.Str(lon.Text()+","+lat.Text())))
		}
		return value.Str(v.Text())

	case schema.Attachment:
		if v.IsObject() && v.Has("token") {
			return v
		}
		return value.Str(v.Text())

	case schema.SingleSelect, schema.MultiSelect:
		if items, ok := v.AsList(); ok {
			out := make([]value.Value, len(items))
			for i, it := range items {
				out[i] = value.Str(it.Text())
			}
			return value.List(out...)
		}
		return value.Str(v.Text())
	}
	return value.Str(v.Text())
}

// BuildRows turns records into row payloads. Only fields present in ids
// are written; a field without an id is omitted rather than failing the
// row. Rows that end up with no fields are dropped.
func BuildRows(fields []schema.FieldSpec, ids map[string]string, records []schema.Record) []storage.Row {
	rows := make([]storage.Row, 0, len(records))
	for _, rec := range records {
		row := make(storage.Row, len(fields))
		for _, f := range fields {
			id, ok := ids[f.Key]
			if !ok {
				continue
			}
			raw, found := canonical.Lookup(rec, f.SourcePath())
			if !found {
				continue
			}
			row[id] = CoerceCellValue(raw, f.Type)
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}

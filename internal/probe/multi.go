package probe

import (
	"tablesync/internal/canonical"
	"tablesync/internal/schema"
	"tablesync/internal/value"
)

// containerKeys are unwrapped (at most twice) before looking for tables.
var containerKeys = []string{"data", "result", "payload", "records", "items", "list"}

const autoTableName = "auto_table"

// unwrapContainer returns the first non-null value under a container key, or
// v unchanged.
func unwrapContainer(v value.Value) value.Value {
	m, ok := v.AsMap()
	if !ok {
		return v
	}
	for _, k := range containerKeys {
		if inner, ok := m.Get(k); ok && !inner.IsNull() {
			return inner
		}
	}
	return v
}

// allObjects reports whether v is a non-empty array of objects only.
func allObjects(v value.Value) bool {
	items, ok := v.AsList()
	if !ok || len(items) == 0 {
		return false
	}
	for _, it := range items {
		if !it.IsObject() {
			return false
		}
	}
	return true
}

// ParseInputToSpecs emits one table per top-level array of objects. A bare
// array becomes auto_table; a lone object becomes a single-record auto_table
// with a warning.
func ParseInputToSpecs(v value.Value, opt Options) ([]schema.TableSpec, []string) {
	opt = opt.withDefaults()
	v = unwrapContainer(unwrapContainer(v))

	if allObjects(v) {
		items, _ := v.AsList()
		return []schema.TableSpec{flatTable(autoTableName, items, opt.SampleSize)}, nil
	}

	m, ok := v.AsMap()
	if !ok {
		return nil, []string{warn("input is neither an object nor an array of objects, nothing to import")}
	}

	var tables []schema.TableSpec
	m.Range(func(k string, member value.Value) bool {
		if allObjects(member) {
			items, _ := member.AsList()
			tables = append(tables, flatTable(k, items, opt.SampleSize))
		}
		return true
	})
	if len(tables) > 0 {
		return tables, nil
	}
	return []schema.TableSpec{flatTable(autoTableName, []value.Value{v}, opt.SampleSize)},
		[]string{warn("no array of objects found, the whole document is treated as one record")}
}

func flatTable(name string, items []value.Value, sampleSize int) schema.TableSpec {
	recs := make([]schema.Record, 0, len(items))
	for _, it := range items {
		recs = append(recs, canonical.Flatten(it))
	}
	return schema.TableSpec{
		Name:       name,
		SourceName: name,
		Fields:     inferFields(recs, sampleSize),
		Records:    recs,
		Source:     schema.RecordSource{Kind: "root", UniqueKey: "id"},
	}
}

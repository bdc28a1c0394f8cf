// Package probe implements sampling and schema inference for parsed input.
//
// The probe package is responsible for:
//   - Locating the record list inside an arbitrary document
//   - Splitting nested arrays of objects into child tables
//   - Inferring a primary field type and ranked alternatives per column
//   - Producing schema.TableSpec values ready for reconciliation
//
// Design constraints:
//   - Sampling is bounded: types come from the first SampleSize records.
//   - All inference is best-effort. Problems surface as warnings, never as
//     errors, so a preview can always be shown.
//   - Inference is a pure function of the parsed value, which keeps it
//     independent of the text format the value came from.
package probe

import (
	"strings"

	"tablesync/internal/apperr"
	"tablesync/internal/canonical"
	"tablesync/internal/parser"
	"tablesync/internal/schema"
	"tablesync/internal/value"
)

const (
	// DefaultSampleSize is the number of records inspected for types.
	DefaultSampleSize = 200
	// ChildRowsPerRecord bounds how many child elements one parent contributes.
	ChildRowsPerRecord = 50
	// DefaultEntity names the master table when the list has no key.
	DefaultEntity = "master"
)

// envelopeKeys are tried in order when the source root is "auto" or "data".
var envelopeKeys = []string{
	"data", "result", "results", "list", "items", "records", "rows", "content",
	"value", "values", "payload", "body", "response", "object", "node", "nodes",
	"edges", "hits", "documents", "page", "dataset", "entry", "resource",
	"resources", "info", "detail", "output", "meta", "contentData", "dataList",
	"resultList", "resultSet", "dataSet",
}

// Mode selects the table layout produced by Infer.
type Mode string

const (
	// ModeStructure infers one master table plus one child table per nested
	// array of objects.
	ModeStructure Mode = "structure"
	// ModeMulti emits one table per top-level array of objects.
	ModeMulti Mode = "multi"
)

// Options control inference.
type Options struct {
	// Format forces a parser. Empty or "auto" detects it.
	Format parser.Format
	// SourceRoot is a dotted path to the record list. Empty, "auto" and
	// "data" search the well-known envelope keys.
	SourceRoot string
	// Entity names the master table when the list was not found under a key.
	Entity string
	// SampleSize bounds the records inspected for field types.
	SampleSize int
	// Mode selects the table layout. Empty means ModeStructure.
	Mode Mode
}

func (o Options) withDefaults() Options {
	if o.SampleSize <= 0 {
		o.SampleSize = DefaultSampleSize
	}
	if strings.TrimSpace(o.Entity) == "" {
		o.Entity = DefaultEntity
	}
	if o.Mode == "" {
		o.Mode = ModeStructure
	}
	return o
}

// Result is the outcome of inference.
type Result struct {
	Format   parser.Format
	Tables   []schema.TableSpec
	Warnings []string
}

// Probe parses text and infers its tables. Only parse failures are returned
// as errors.
func Probe(text string, opt Options) (Result, error) {
	parsed, err := parser.Parse(text, opt.Format)
	if err != nil {
		return Result{Format: parsed.Format}, err
	}
	res := Infer(canonical.UnwrapEmbeddedJSON(parsed.Value), opt)
	res.Format = parsed.Format
	return res, nil
}

// Infer produces table specs from an already parsed and unwrapped value.
func Infer(v value.Value, opt Options) Result {
	opt = opt.withDefaults()
	if opt.Mode == ModeMulti {
		tables, warnings := ParseInputToSpecs(v, opt)
		return Result{Tables: tables, Warnings: warnings}
	}

	list, key, wrapped := ExtractDataList(v, opt.SourceRoot)
	var warnings []string
	if wrapped {
		warnings = append(warnings, warn("no array of objects found, the whole document is treated as one record"))
	}
	if len(list) == 0 {
		warnings = append(warnings, warn("no records found"))
	}

	name := key
	if name == "" {
		name = opt.Entity
	}
	return Result{Tables: AnalyseStructure(list, name, opt.SampleSize), Warnings: warnings}
}

func warn(msg string) string {
	return apperr.New(apperr.ErrInferenceWarning, msg).Error()
}

// ExtractDataList locates the record list in v. It returns the list, the key
// it was found under (empty when v itself is the list) and whether v had to
// be wrapped as a single record.
func ExtractDataList(v value.Value, sourceRoot string) (list []value.Value, key string, wrapped bool) {
	root := strings.TrimSpace(sourceRoot)
	if root == "" || root == "auto" || root == "data" {
		if m, ok := v.AsMap(); ok {
			for _, k := range envelopeKeys {
				if cand, ok := m.Get(k); ok && hasObject(cand) {
					items, _ := cand.AsList()
					return items, k, false
				}
			}
		}
		if hasObject(v) {
			items, _ := v.AsList()
			return items, "", false
		}
	} else {
		cursor := v
		found := true
		for _, seg := range strings.Split(root, ".") {
			next, ok := cursor.Get(seg)
			if !ok {
				found = false
				break
			}
			cursor = next
		}
		if found && hasObject(cursor) {
			items, _ := cursor.AsList()
			parts := strings.Split(root, ".")
			return items, parts[len(parts)-1], false
		}
	}

	if m, ok := v.AsMap(); ok {
		var (
			hitKey string
			hit    []value.Value
		)
		m.Range(func(k string, cand value.Value) bool {
			if hasObject(cand) {
				hitKey = k
				hit, _ = cand.AsList()
				return false
			}
			return true
		})
		if hit != nil {
			return hit, hitKey, false
		}
		return []value.Value{v}, "", true
	}
	if hasObject(v) {
		items, _ := v.AsList()
		return items, "", false
	}
	return nil, "", false
}

// hasObject reports whether v is an array with at least one object element.
func hasObject(v value.Value) bool {
	items, ok := v.AsList()
	if !ok {
		return false
	}
	for _, it := range items {
		if it.IsObject() {
			return true
		}
	}
	return false
}

// isChildArray reports whether v should become a child table: a non-empty
// array whose first element is an object.
func isChildArray(v value.Value) bool {
	items, ok := v.AsList()
	return ok && len(items) > 0 && items[0].IsObject()
}

// AnalyseStructure splits list into a master table named name and one child
// table per key holding nested arrays of objects. Field types come from the
// first sampleSize records of each table; every record is kept for writing.
func AnalyseStructure(list []value.Value, name string, sampleSize int) []schema.TableSpec {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}

	var (
		master     []schema.Record
		childOrder []string
		children   = make(map[string][]schema.Record)
		childKeys  = make(map[string]bool)
	)

	for i, item := range list {
		m, ok := item.AsMap()
		if !ok {
			continue
		}
		m.Range(func(k string, v value.Value) bool {
			if !isChildArray(v) {
				return true
			}
			if i < sampleSize {
				childKeys[k] = true
			}
			if _, seen := children[k]; !seen {
				childOrder = append(childOrder, k)
				children[k] = nil
			}
			elems, _ := v.AsList()
			if len(elems) > ChildRowsPerRecord {
				elems = elems[:ChildRowsPerRecord]
			}
			for _, el := range elems {
				if el.IsObject() {
					children[k] = append(children[k], canonical.Flatten(el))
				}
			}
			return true
		})
		master = append(master, canonical.Flatten(item))
	}

	masterFields := inferFields(master, sampleSize)
	kept := masterFields[:0]
	for _, f := range masterFields {
		if !childKeys[f.Key] {
			kept = append(kept, f)
		}
	}

	tables := []schema.TableSpec{{
		Name:       name,
		SourceName: name,
		Fields:     kept,
		Records:    master,
		Source:     schema.RecordSource{Kind: "root", UniqueKey: "id"},
	}}
	for _, k := range childOrder {
		recs := children[k]
		tables = append(tables, schema.TableSpec{
			Name:       k,
			SourceName: k,
			Fields:     inferFields(recs, sampleSize),
			Records:    recs,
			Source:     schema.RecordSource{Kind: "child", Path: k, ParentKey: "id"},
		})
	}
	return tables
}

// inferFields merges per-value detections over the first sampleSize records,
// keeping fields in order of first appearance.
func inferFields(records []schema.Record, sampleSize int) []schema.FieldSpec {
	if len(records) > sampleSize {
		records = records[:sampleSize]
	}

	var order []string
	acc := make(map[string]Detection)
	for _, rec := range records {
		rec.Range(func(k string, v value.Value) bool {
			d := DetectType(v)
			prev, seen := acc[k]
			if !seen {
				order = append(order, k)
				acc[k] = d
				return true
			}
			acc[k] = MergeDetections(prev, d)
			return true
		})
	}

	fields := make([]schema.FieldSpec, 0, len(order))
	for _, k := range order {
		d := acc[k]
		sug := d.Suggested
		if d.Primary == schema.Number && d.Integral && isIDKey(k) {
			sug = appendType(append([]schema.FieldType(nil), sug...), schema.AutoNumber)
		}
		f := schema.FieldSpec{
			Key:            k,
			Source:         k,
			Label:          k,
			Type:           schema.Narrow(d.Primary),
			SuggestedTypes: sug,
			Enabled:        true,
		}
		if len(d.Options) > 0 {
			f.Options = d.Options
		}
		fields = append(fields, f)
	}
	return fields
}

func isIDKey(k string) bool {
	if i := strings.LastIndex(k, "."); i >= 0 {
		k = k[i+1:]
	}
	return strings.EqualFold(k, "id")
}

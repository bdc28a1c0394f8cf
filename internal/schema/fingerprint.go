package schema

import (
	"sort"
	"strings"
)

// EmptySignature is the signature of a table with no enabled fields.
const EmptySignature = "__empty__"

// FingerprintField is one (key, type) pair of a fingerprint.
type FingerprintField struct {
	Key  string    `json:"key"`
	Type FieldType `json:"type"`
}

// Fingerprint summarizes a table's enabled columns. Two schemas are equal
// iff their signatures match.
type Fingerprint struct {
	Signature string             `json:"signature"`
	Fields    []FingerprintField `json:"fields"`
}

// FingerprintOf builds the fingerprint of spec's enabled fields, sorted by
// key, as "key::type" pairs lower-cased and joined by "|".
func FingerprintOf(spec TableSpec) Fingerprint {
	fields := make([]FingerprintField, 0, len(spec.Fields))
	for _, f := range spec.Fields {
		if !f.Enabled {
			continue
		}
		key := f.Key
		if key == "" {
			key = "unknown"
		}
		typ := f.Type
		if typ == "" {
			typ = Text
		}
		fields = append(fields, FingerprintField{Key: key, Type: typ})
	}
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })

	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = strings.ToLower(f.Key) + "::" + strings.ToLower(string(f.Type))
	}
	sig := strings.Join(parts, "|")
	if sig == "" {
		sig = EmptySignature
	}
	return Fingerprint{Signature: sig, Fields: fields}
}

// Schemas maps destination table name to its last recorded fingerprint.
type Schemas map[string]Fingerprint

// Record stores fingerprints for specs and reports whether anything changed.
func (s Schemas) Record(specs []TableSpec) bool {
	changed := false
	for _, spec := range specs {
		if spec.Name == "" {
			continue
		}
		fp := FingerprintOf(spec)
		if prev, ok := s[spec.Name]; !ok || prev.Signature != fp.Signature {
			s[spec.Name] = fp
			changed = true
		}
	}
	return changed
}

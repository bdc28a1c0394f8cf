// Package schema holds the table and field model shared by inference,
// reconciliation, writing and undo.
package schema

import (
	"tablesync/internal/value"
)

// Record is one flat row keyed by dotted source path.
type Record = *value.Map

// FieldSpec describes one inferred column.
//
// Key is the stable identity used for mapping persistence and must be unique
// within a TableSpec. Label is the user-editable display name. Source is the
// dotted path used to read values out of a Record.
type FieldSpec struct {
	Key            string      `json:"key"`
	Source         string      `json:"source"`
	Label          string      `json:"label"`
	Type           FieldType   `json:"type"`
	SuggestedTypes []FieldType `json:"suggested_types,omitempty"`
	Options        []string    `json:"options,omitempty"`
	Enabled        bool        `json:"enabled"`
}

// DisplayName is the label, falling back to the key.
func (f FieldSpec) DisplayName() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Key
}

// SourcePath is the source, falling back to the key.
func (f FieldSpec) SourcePath() string {
	if f.Source != "" {
		return f.Source
	}
	return f.Key
}

// RecordSource records how a table relates to the input document.
type RecordSource struct {
	Kind      string `json:"kind"` // "root" or "child"
	Path      string `json:"path,omitempty"`
	ParentKey string `json:"parent_key,omitempty"`
	UniqueKey string `json:"unique_key,omitempty"`
}

// TableSpec is one inferred table.
//
// Name is the destination name. SourceName is the name inference produced
// and is the key for targets, overrides and mappings carried across runs.
type TableSpec struct {
	Name       string       `json:"name"`
	SourceName string       `json:"source_name,omitempty"`
	Fields     []FieldSpec  `json:"fields"`
	Records    []Record     `json:"-"`
	Source     RecordSource `json:"record_source"`
}

// Origin returns SourceName, or Name when SourceName is unset.
func (t TableSpec) Origin() string {
	if t.SourceName != "" {
		return t.SourceName
	}
	return t.Name
}

// EnabledFields returns the enabled fields in order.
func (t TableSpec) EnabledFields() []FieldSpec {
	out := make([]FieldSpec, 0, len(t.Fields))
	for _, f := range t.Fields {
		if f.Enabled {
			out = append(out, f)
		}
	}
	return out
}

// Field returns the field with key.
func (t TableSpec) Field(key string) (FieldSpec, bool) {
	for _, f := range t.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// WithAllEnabled returns a copy whose fields are all enabled.
func (t TableSpec) WithAllEnabled() TableSpec {
	out := t
	out.Fields = make([]FieldSpec, len(t.Fields))
	for i, f := range t.Fields {
		f.Enabled = true
		out.Fields[i] = f
	}
	return out
}

// TargetMode selects how a table's destination is chosen.
type TargetMode string

const (
	// TargetAuto always creates a fresh table under a unique name.
	TargetAuto TargetMode = "auto"
	// TargetExisting writes into a pinned table, creating it if it vanished.
	TargetExisting TargetMode = "existing"
	// TargetReuse appends to the same-named table while its schema is
	// unchanged and recreates under a new name on drift.
	TargetReuse TargetMode = "reuse"
)

// TableTarget is the destination choice for one source table.
type TableTarget struct {
	Mode      TargetMode `json:"mode" yaml:"mode"`
	TableID   string     `json:"table_id,omitempty" yaml:"table_id,omitempty"`
	TableName string     `json:"table_name,omitempty" yaml:"table_name,omitempty"`
}

// FieldOverride is a user edit applied to an inferred field before writing.
type FieldOverride struct {
	Enabled *bool     `json:"enabled,omitempty"`
	Type    FieldType `json:"type,omitempty"`
	Label   string    `json:"label,omitempty"`
}

// Overrides maps source table name to field key to override.
type Overrides map[string]map[string]FieldOverride

// Apply returns a copy of spec with overrides for spec.Origin() applied.
func (o Overrides) Apply(spec TableSpec) TableSpec {
	byKey := o[spec.Origin()]
	if len(byKey) == 0 {
		return spec
	}
	out := spec
	out.Fields = make([]FieldSpec, len(spec.Fields))
	for i, f := range spec.Fields {
		if ov, ok := byKey[f.Key]; ok {
			if ov.Enabled != nil {
				f.Enabled = *ov.Enabled
			}
			if ov.Type != "" {
				f.Type = Narrow(ov.Type)
			}
			if ov.Label != "" {
				f.Label = ov.Label
			}
		}
		out.Fields[i] = f
	}
	return out
}

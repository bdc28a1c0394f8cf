package schema

import "sort"

// FieldMapping maps destination table name to field key to external field id.
type FieldMapping map[string]map[string]string

// Clone returns a deep copy. A nil mapping clones to an empty one.
func (m FieldMapping) Clone() FieldMapping {
	out := make(FieldMapping, len(m))
	for table, fields := range m {
		cp := make(map[string]string, len(fields))
		for k, v := range fields {
			cp[k] = v
		}
		out[table] = cp
	}
	return out
}

func (m FieldMapping) Get(table, key string) (string, bool) {
	id, ok := m[table][key]
	return id, ok && id != ""
}

func (m FieldMapping) Set(table, key, fieldID string) {
	if m[table] == nil {
		m[table] = make(map[string]string)
	}
	m[table][key] = fieldID
}

// Table returns a copy of one table's mapping.
func (m FieldMapping) Table(table string) map[string]string {
	cp := make(map[string]string, len(m[table]))
	for k, v := range m[table] {
		cp[k] = v
	}
	return cp
}

// DeleteKey removes one key and drops the table entry once it is empty.
func (m FieldMapping) DeleteKey(table, key string) {
	fields, ok := m[table]
	if !ok {
		return
	}
	delete(fields, key)
	if len(fields) == 0 {
		delete(m, table)
	}
}

// KeysFor returns the keys of table that point at fieldID.
func (m FieldMapping) KeysFor(table, fieldID string) []string {
	var keys []string
	for k, id := range m[table] {
		if id == fieldID {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Prune drops, for every spec present in the mapping, keys that are not an
// enabled field of that spec, and removes tables left empty.
func (m FieldMapping) Prune(specs []TableSpec) {
	for _, spec := range specs {
		fields, ok := m[spec.Name]
		if !ok {
			continue
		}
		enabled := make(map[string]bool, len(spec.Fields))
		for _, f := range spec.Fields {
			if f.Enabled {
				enabled[f.Key] = true
			}
		}
		for k := range fields {
			if !enabled[k] {
				delete(fields, k)
			}
		}
		if len(fields) == 0 {
			delete(m, spec.Name)
		}
	}
}

// DropTable removes every key of table.
func (m FieldMapping) DropTable(table string) {
	delete(m, table)
}

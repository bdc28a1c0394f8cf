package snapshot

import (
	"tablesync/internal/schema"
	"tablesync/internal/storage"
)

// Kind names a store mutation.
type Kind string

const (
	CreateTable Kind = "create_table"
	DeleteTable Kind = "delete_table"
	CreateField Kind = "create_field"
	RenameField Kind = "rename_field"
	DeleteField Kind = "delete_field"
	InsertRows  Kind = "insert_rows"
	DeleteRows  Kind = "delete_rows"
)

// Action is one recorded store mutation, or one compensating step.
type Action struct {
	Kind      Kind   `json:"kind"`
	TableID   string `json:"table_id"`
	TableName string `json:"table_name,omitempty"`
	// Field is the created field for CreateField, and the field as it was
	// before removal for DeleteField.
	Field   *FieldMeta `json:"field,omitempty"`
	OldName string     `json:"old_name,omitempty"`
	NewName string     `json:"new_name,omitempty"`
	RowIDs  []string   `json:"row_ids,omitempty"`
}

// FieldMeta is a field's identity plus the mapping keys that pointed at it.
type FieldMeta struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Type        schema.FieldType       `json:"type"`
	Property    *storage.FieldProperty `json:"property,omitempty"`
	MappingKeys []string               `json:"mapping_keys,omitempty"`
}

// Input returns the FieldInput that recreates m.
func (m FieldMeta) Input() storage.FieldInput {
	return storage.FieldInput{Name: m.Name, Type: m.Type, Property: m.Property}
}

// MetaOf captures f and the keys of table in mapping that point at it.
func MetaOf(f storage.Field, mapping schema.FieldMapping, table string) FieldMeta {
	return FieldMeta{
		ID:          f.ID,
		Name:        f.Name,
		Type:        f.Type,
		Property:    f.Property,
		MappingKeys: mapping.KeysFor(table, f.ID),
	}
}

// invert returns the compensating action for a, or false when a has none.
func invert(a Action) (Action, bool) {
	switch a.Kind {
	case CreateTable:
		return Action{Kind: DeleteTable, TableID: a.TableID, TableName: a.TableName}, true
	case CreateField:
		return Action{Kind: DeleteField, TableID: a.TableID, TableName: a.TableName, Field: a.Field}, true
	case RenameField:
		return Action{Kind: RenameField, TableID: a.TableID, TableName: a.TableName, Field: a.Field,
			OldName: a.NewName, NewName: a.OldName}, true
	case DeleteField:
		return Action{Kind: CreateField, TableID: a.TableID, TableName: a.TableName, Field: a.Field}, true
	case InsertRows:
		return Action{Kind: DeleteRows, TableID: a.TableID, TableName: a.TableName,
			RowIDs: append([]string(nil), a.RowIDs...)}, true
	}
	return Action{}, false
}

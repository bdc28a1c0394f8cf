package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID prefixes for the three kinds of store objects.
const (
	TablePrefix = "tbl"
	FieldPrefix = "fld"
	RowPrefix   = "rec"
)

// NewID returns prefix followed by a dash-free random UUID.
func NewID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// EncodeRow validates that every key of row is in known and encodes the row
// as a JSON object.
func EncodeRow(row Row, known map[string]bool) ([]byte, error) {
	for id := range row {
		if !known[id] {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, id)
		}
	}
	return json.Marshal(row)
}

// DecodeRow is the inverse of EncodeRow.
func DecodeRow(data []byte) (Row, error) {
	var row Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, err
	}
	return row, nil
}

// EncodeProperty encodes p, returning "" for nil.
func EncodeProperty(p *FieldProperty) (string, error) {
	if p == nil {
		return "", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeProperty is the inverse of EncodeProperty.
func DecodeProperty(s string) (*FieldProperty, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var p FieldProperty
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

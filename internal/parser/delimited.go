package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"tablesync/internal/value"
)

// ParseDelimited reads delimiter-separated text into an array of records.
//
// The first non-empty line is the header. Blank header cells become col_N
// (1-based). Cells are trimmed and coerced like YAML scalars so that "30" and
// "true" infer the same way they do in JSON input. Short rows are padded with
// empty strings; extra cells beyond the header are dropped. A row that is a
// single empty cell is skipped.
func ParseDelimited(text string, delimiter rune) (value.Value, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	var (
		header []string
		rows   []value.Value
		line   int
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return value.Value{}, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++

		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		if header == nil {
			if len(rec) == 1 && rec[0] == "" {
				continue
			}
			header = make([]string, len(rec))
			for i, h := range rec {
				if h == "" {
					h = fmt.Sprintf("col_%d", i+1)
				}
				header[i] = h
			}
			continue
		}
		if len(rec) == 1 && rec[0] == "" {
			continue
		}

		row := value.NewMap()
		for i, key := range header {
			cell := ""
			if i < len(rec) {
				cell = rec[i]
			}
			row.Set(key, CoerceScalar(cell))
		}
		rows = append(rows, value.Obj(row))
	}
	if rows == nil {
		rows = []value.Value{}
	}
	return value.List(rows...), nil
}

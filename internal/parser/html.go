package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"tablesync/internal/value"
)

// ParseHTMLTables extracts records from every <table> in the document.
//
// The header row is the first row containing <th> cells, or the first row
// when no <th> exists. Each later row becomes a record keyed by header text
// (blank headers become col_N). Tables without data rows are ignored.
//
// A single table yields an array of records. Several tables yield an object
// {"table_1": [...], "table_2": [...]} so that each one can become its own
// table downstream.
func ParseHTMLTables(text string) (value.Value, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return value.Value{}, fmt.Errorf("parse html: %w", err)
	}

	var tables []value.Value
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := extractHTMLTable(table)
		if len(rows) > 0 {
			tables = append(tables, value.List(rows...))
		}
	})

	switch len(tables) {
	case 0:
		return value.List(), nil
	case 1:
		return tables[0], nil
	}
	out := value.NewMap()
	for i, t := range tables {
		out.Set(fmt.Sprintf("table_%d", i+1), t)
	}
	return value.Obj(out), nil
}

func extractHTMLTable(table *goquery.Selection) []value.Value {
	// Nested tables are parsed on their own; only direct rows count here.
	trs := table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.ParentsFiltered("table").First().IsSelection(table)
	})
	if trs.Length() == 0 {
		return nil
	}

	headerIdx := 0
	trs.EachWithBreak(func(i int, tr *goquery.Selection) bool {
		if tr.ChildrenFiltered("th").Length() > 0 {
			headerIdx = i
			return false
		}
		return true
	})

	var header []string
	trs.Eq(headerIdx).ChildrenFiltered("th, td").Each(func(i int, cell *goquery.Selection) {
		h := strings.TrimSpace(cell.Text())
		if h == "" {
			h = fmt.Sprintf("col_%d", i+1)
		}
		header = append(header, h)
	})
	if len(header) == 0 {
		return nil
	}

	var rows []value.Value
	trs.Each(func(i int, tr *goquery.Selection) {
		if i <= headerIdx {
			return
		}
		cells := tr.ChildrenFiltered("td, th")
		if cells.Length() == 0 {
			return
		}
		row := value.NewMap()
		for j, key := range header {
			cell := ""
			if j < cells.Length() {
				cell = strings.Join(strings.Fields(cells.Eq(j).Text()), " ")
			}
			row.Set(key, CoerceScalar(cell))
		}
		rows = append(rows, value.Obj(row))
	})
	return rows
}

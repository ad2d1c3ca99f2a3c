// Package importer converts multi-sheet tabular workbooks into a typed
// entity graph, driven entirely by the schema template.
package importer

import "strings"

// Worksheet layout convention: row 1 user-friendly label, row 2 description,
// row 3 guidelines, row 4 machine header (fully-qualified paths), row 5
// separator banner, rows 6+ data.
const (
	headerRowIndex = 3
	dataRowIndex   = 5
)

// schemasSheetTitle is the reserved sheet that may supply the schema URLs
// driving the run.
const schemasSheetTitle = "Schemas"

// moduleTitleSeparator splits a module sheet title into parent and field
const moduleTitleSeparator = " - "

// Sheet is one worksheet: a title and rows of string cells
type Sheet struct {
	Title string
	Rows  [][]string
}

// HeaderRow returns the machine header row (fully-qualified paths), or nil
// when the sheet is too short.
func (s *Sheet) HeaderRow() []string {
	if len(s.Rows) <= headerRowIndex {
		return nil
	}
	return s.Rows[headerRowIndex]
}

// DataRows returns the data rows with their original 1-based row numbers.
// Rows with no non-empty cell are skipped.
func (s *Sheet) DataRows() ([][]string, []int) {
	var rows [][]string
	var numbers []int
	for i := dataRowIndex; i < len(s.Rows); i++ {
		if rowEmpty(s.Rows[i]) {
			continue
		}
		rows = append(rows, s.Rows[i])
		numbers = append(numbers, i+1)
	}
	return rows, numbers
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// Workbook is a set of worksheets
type Workbook struct {
	Sheets []Sheet
}

// SchemaURLs returns the schema URLs supplied by the reserved Schemas sheet
// (first column, rows 2 and below), if present.
func (w *Workbook) SchemaURLs() []string {
	var urls []string
	for _, sheet := range w.Sheets {
		if !strings.EqualFold(strings.TrimSpace(sheet.Title), schemasSheetTitle) {
			continue
		}
		for i := 1; i < len(sheet.Rows); i++ {
			if len(sheet.Rows[i]) == 0 {
				continue
			}
			if url := strings.TrimSpace(sheet.Rows[i][0]); url != "" {
				urls = append(urls, url)
			}
		}
	}
	return urls
}

// moduleSheetTitle splits a module sheet title of the form
// "<Parent> - <Field label>". The second value is the field label; ok is
// false for primary sheets.
func moduleSheetTitle(title string) (parent, field string, ok bool) {
	parent, field, ok = strings.Cut(title, moduleTitleSeparator)
	if !ok || strings.TrimSpace(parent) == "" || strings.TrimSpace(field) == "" {
		return "", "", false
	}
	return strings.TrimSpace(parent), strings.TrimSpace(field), true
}

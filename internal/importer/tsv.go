package importer

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadTSVDir reads a workbook from a directory of tab-separated files, one
// file per sheet, with the sheet title taken from the file name. Excel
// parsing stays outside the core; this loader keeps the CLI usable with
// plain exports.
func LoadTSVDir(dir string) (*Workbook, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tsv") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	workbook := &Workbook{}
	for _, name := range names {
		rows, err := readTSV(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", name, err)
		}
		workbook.Sheets = append(workbook.Sheets, Sheet{
			Title: strings.TrimSuffix(name, ".tsv"),
			Rows:  rows,
		})
	}
	if len(workbook.Sheets) == 0 {
		return nil, fmt.Errorf("no .tsv sheets found in %s", dir)
	}
	return workbook, nil
}

func readTSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader.ReadAll()
}

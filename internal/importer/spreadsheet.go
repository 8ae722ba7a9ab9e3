package importer

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// readSheet reads the sheet at path against schema. It returns the parsed
// rows, the structural errors found, and an error only when the file cannot
// be processed at all.
func readSheet(schema Schema, path string) ([]Record, []string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnreadableSpreadsheet, err)
	}
	defer func() { _ = f.Close() }()

	sheet := schema.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, []string{"spreadsheet contains no sheets"}, nil
		}
		sheet = sheets[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, []string{fmt.Sprintf("sheet %q not found in %s", sheet, filepath.Base(path))}, nil
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read rows of sheet %q: %w", sheet, err)
	}

	headerRow := schema.HeaderRow
	if headerRow <= 0 {
		headerRow = 1
	}
	if len(rows) < headerRow {
		return nil, []string{fmt.Sprintf("sheet %q has no header row (expected at row %d)", sheet, headerRow)}, nil
	}

	columns := make(map[string]int)
	for i, h := range rows[headerRow-1] {
		columns[normalizeHeader(h)] = i
	}

	var errs []string
	index := make([]int, len(schema.Fields))
	for i, field := range schema.Fields {
		col, ok := columns[normalizeHeader(field.Column)]
		if !ok {
			index[i] = -1
			if field.Required {
				errs = append(errs, fmt.Sprintf("missing column %q", field.Column))
			}
			continue
		}
		index[i] = col
	}
	if len(errs) > 0 {
		return nil, errs, nil
	}

	var records []Record
	for i, row := range rows[headerRow:] {
		if blankRow(row) {
			continue
		}
		rowNum := headerRow + i + 1
		rec := Record{}
		for j, field := range schema.Fields {
			val := ""
			if col := index[j]; col >= 0 && col < len(row) {
				val = strings.TrimSpace(row[col])
			}
			switch {
			case val == "" && field.Required:
				errs = append(errs, fmt.Sprintf("row %d: %s is required", rowNum, field.Column))
			case val != "" && field.Pattern != nil && !field.Pattern.MatchString(val):
				errs = append(errs, fmt.Sprintf("row %d: %s value %q does not match %s", rowNum, field.Column, val, field.Pattern))
			}
			rec[field.Name] = val
		}
		records = append(records, rec)
	}
	return records, errs, nil
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

package tabular

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ParseXLSX reads the first non-empty worksheet of a workbook. The first row
// is the header; cell values are taken as displayed.
func ParseXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		skipped := leadingBlankRows(rows)
		rows = rows[skipped:]
		if len(rows) == 0 {
			continue
		}

		lines := make([]int, len(rows))
		for i := range rows {
			lines[i] = skipped + i + 1
		}
		return buildTable(rows, lines)
	}

	return nil, ErrEmptyInput
}

func leadingBlankRows(rows [][]string) int {
	n := 0
	for n < len(rows) && isBlankRecord(rows[n]) {
		n++
	}
	return n
}

func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if v != "" {
			return false
		}
	}
	return true
}

// Package tabular turns uploaded program files into header-keyed rows.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

var (
	// ErrEmptyInput is returned when a file has no header or no data rows.
	ErrEmptyInput = errors.New("input must contain a header line and at least one data line")

	// ErrUnsupportedFormat is returned for file types that cannot be read.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Row is one data line of the input, keyed by header.
type Row struct {
	Line   int
	Values map[string]string
}

// Get returns the trimmed value for header, or "" when the header is unknown.
func (r Row) Get(header string) string {
	if header == "" {
		return ""
	}
	return r.Values[header]
}

// Table is a parsed file: ordered headers plus data rows.
type Table struct {
	Headers []string
	Rows    []Row
}

// Column returns up to limit non-empty values of header in row order.
func (t *Table) Column(header string, limit int) []string {
	var out []string
	for _, row := range t.Rows {
		if limit > 0 && len(out) >= limit {
			break
		}
		if v := row.Values[header]; v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Parse dispatches on the file extension. Unknown extensions are sniffed:
// zip content is read as a workbook, everything else as CSV.
func Parse(fileName string, content []byte) (*Table, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return ParseXLSX(bytes.NewReader(content))
	case ".xls", ".numbers", ".ods":
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(fileName))
	case ".csv", ".txt":
		return ParseCSV(content)
	}

	if bytes.HasPrefix(content, []byte("PK\x03\x04")) {
		return ParseXLSX(bytes.NewReader(content))
	}
	return ParseCSV(content)
}

// ParseCSV reads comma-delimited text. A leading byte-order mark is removed,
// quoted fields may contain commas and doubled quotes, and short rows are
// padded with empty strings.
func ParseCSV(content []byte) (*Table, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if countNonBlankLines(content) < 2 {
		return nil, ErrEmptyInput
	}

	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var (
		records [][]string
		lines   []int
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := r.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}

	return buildTable(records, lines)
}

func buildTable(records [][]string, lines []int) (*Table, error) {
	if len(records) < 2 {
		return nil, ErrEmptyInput
	}

	headers := normalizeHeaders(records[0])
	table := &Table{Headers: headers}

	for i, rec := range records[1:] {
		values := make(map[string]string, len(headers))
		blank := true
		for j, h := range headers {
			v := ""
			if j < len(rec) {
				v = strings.TrimSpace(rec[j])
			}
			if v != "" {
				blank = false
			}
			values[h] = v
		}
		if blank {
			continue
		}
		table.Rows = append(table.Rows, Row{Line: lines[i+1], Values: values})
	}

	if len(table.Rows) == 0 {
		return nil, ErrEmptyInput
	}
	return table, nil
}

// normalizeHeaders trims header cells, names empty ones by position and
// suffixes duplicates so no column shadows another.
func normalizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}
		seen[h]++
		if n := seen[h]; n > 1 {
			h = fmt.Sprintf("%s (%d)", h, n)
		}
		headers[i] = h
	}
	return headers
}

func countNonBlankLines(content []byte) int {
	n := 0
	for _, line := range bytes.Split(content, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			n++
			if n >= 2 {
				return n
			}
		}
	}
	return n
}

package tabular

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseCSV_Basic(t *testing.T) {
	input := "\xEF\xBB\xBFDate,Time,Topic,Hall\n" +
		"2024-03-01,09:00-10:00,\"Opening, Welcome\",Hall A\n" +
		"2024-03-01,10:00-11:00,\"The \"\"Big\"\" Talk\",Hall B\n"

	table, err := ParseCSV([]byte(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"Date", "Time", "Topic", "Hall"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "Opening, Welcome", table.Rows[0].Get("Topic"))
	assert.Equal(t, `The "Big" Talk`, table.Rows[1].Get("Topic"))
	assert.Equal(t, 2, table.Rows[0].Line)
	assert.Equal(t, 3, table.Rows[1].Line)
}

func TestParseCSV_MissingTrailingFields(t *testing.T) {
	input := "Date,Time,Topic,Speaker\n2024-03-01,09:00\n"

	table, err := ParseCSV([]byte(input))
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)

	v, ok := table.Rows[0].Values["Speaker"]
	assert.True(t, ok, "missing field must be present as empty string")
	assert.Equal(t, "", v)
	assert.Equal(t, "", table.Rows[0].Get("Topic"))
}

func TestParseCSV_EmptyInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"header only", "Date,Time,Topic\n"},
		{"header and blank lines", "Date,Time\n\n   \n"},
		{"bom only", "\xEF\xBB\xBF"},
		{"header and empty cells", "Date,Time\n,\n, \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV([]byte(tt.input))
			assert.True(t, errors.Is(err, ErrEmptyInput), "got %v", err)
		})
	}
}

func TestParseCSV_CRLFAndBlankLines(t *testing.T) {
	input := "Date,Topic\r\n2024-03-01,A\r\n\r\n2024-03-02,B\r\n"

	table, err := ParseCSV([]byte(input))
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "B", table.Rows[1].Get("Topic"))
}

func TestParseCSV_HeaderNormalization(t *testing.T) {
	input := "Name, ,Name\nA,B,C\n"

	table, err := ParseCSV([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Column 2", "Name (2)"}, table.Headers)
	assert.Equal(t, "C", table.Rows[0].Get("Name (2)"))
}

func TestTable_Column(t *testing.T) {
	input := "Hall\nA\n\nB\n \nC\n"
	table, err := ParseCSV([]byte(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, table.Column("Hall", 2))
	assert.Equal(t, []string{"A", "B", "C"}, table.Column("Hall", 0))
}

func TestParse_Dispatch(t *testing.T) {
	_, err := Parse("program.xls", []byte("irrelevant"))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	table, err := Parse("program.upload", []byte("Topic\nKeynote\n"))
	require.NoError(t, err)
	assert.Equal(t, "Keynote", table.Rows[0].Get("Topic"))
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Date", "Time", "Topic"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"01.03.2024", "09:00-10:00", "Opening"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"01.03.2024", "10:00"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	table, err := Parse("program.xlsx", buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, []string{"Date", "Time", "Topic"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "Opening", table.Rows[0].Get("Topic"))
	assert.Equal(t, "", table.Rows[1].Get("Topic"))
	assert.Equal(t, 3, table.Rows[1].Line)

	sniffed, err := Parse("upload.bin", buf.Bytes())
	require.NoError(t, err)
	assert.Len(t, sniffed.Rows, 2)
}

func TestParseXLSX_Empty(t *testing.T) {
	f := excelize.NewFile()
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	_, err = ParseXLSX(bytes.NewReader(buf.Bytes()))
	assert.True(t, errors.Is(err, ErrEmptyInput))
}

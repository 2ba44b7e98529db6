package sheet

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// ============================================================================
// CSV
// ============================================================================

func TestParse_CSVPadsShortRows(t *testing.T) {
	data := []byte("ID,Name,Amount\n1,Alice,100\n2,Bob\n")

	s, err := Parse("people.csv", data)
	require.NoError(t, err)

	assert.Equal(t, []string{"ID", "Name", "Amount"}, s.Headers)
	require.Len(t, s.Rows, 2)
	for i, row := range s.Rows {
		assert.Len(t, row, 3, "row %d", i)
	}
	assert.True(t, s.Rows[1][2].IsEmpty())
}

func TestParse_CSVCutsLongRows(t *testing.T) {
	s, err := Parse("x.csv", []byte("A,B\n1,2,3,4\n"))
	require.NoError(t, err)
	require.Len(t, s.Rows, 1)
	assert.Len(t, s.Rows[0], 2)
}

func TestParse_CSVNumbersAndStrings(t *testing.T) {
	s, err := Parse("x.csv", []byte("A,B,C\n42,12.5,100x\n"))
	require.NoError(t, err)

	row := s.Rows[0]
	assert.Equal(t, Number(42), row[0])
	assert.Equal(t, Number(12.5), row[1])
	assert.Equal(t, Text("100x"), row[2])
}

func TestParse_CSVHeadersVerbatim(t *testing.T) {
	s, err := Parse("x.csv", []byte(" Padded ,Price/Unit\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{" Padded ", "Price/Unit"}, s.Headers)
}

func TestParse_CSVStripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("ID\n1\n")...)
	s, err := Parse("bom.csv", data)
	require.NoError(t, err)
	assert.Equal(t, []string{"ID"}, s.Headers)
}

func TestParse_CSVKeepsBlankRows(t *testing.T) {
	s, err := Parse("x.csv", []byte("ID,Amount\n1,5\n,\n3,abc\n"))
	require.NoError(t, err)

	require.Len(t, s.Rows, 3)
	assert.True(t, s.Rows[1][0].IsEmpty())
	assert.True(t, s.Rows[1][1].IsEmpty())
	assert.Equal(t, Text("abc"), s.Rows[2][1])
}

func TestParse_TextWithoutExtension(t *testing.T) {
	s, err := Parse("upload", []byte("A\nhello\n"))
	require.NoError(t, err)
	assert.Equal(t, Text("hello"), s.Rows[0][0])
}

// ============================================================================
// XLSX
// ============================================================================

func buildWorkbook(t *testing.T, fill func(f *excelize.File, sheet string)) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	fill(f, "Sheet1")
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParse_XLSXFirstSheet(t *testing.T) {
	data := buildWorkbook(t, func(f *excelize.File, sh string) {
		require.NoError(t, f.SetSheetRow(sh, "A1", &[]any{"ID", "Name", "Amount"}))
		require.NoError(t, f.SetSheetRow(sh, "A2", &[]any{1, "Alice", 100.5}))
		require.NoError(t, f.SetSheetRow(sh, "A3", &[]any{2, "Bob"}))
		_, err := f.NewSheet("Other")
		require.NoError(t, err)
		require.NoError(t, f.SetCellValue("Other", "A1", "ignored"))
	})

	s, err := Parse("book.xlsx", data)
	require.NoError(t, err)

	assert.Equal(t, "Sheet1", s.Name)
	assert.Equal(t, []string{"ID", "Name", "Amount"}, s.Headers)
	require.Len(t, s.Rows, 2)
	assert.Equal(t, Number(1), s.Rows[0][0])
	assert.Equal(t, Text("Alice"), s.Rows[0][1])
	assert.Equal(t, Number(100.5), s.Rows[0][2])
	assert.True(t, s.Rows[1][2].IsEmpty(), "short row padded")
}

func TestParse_XLSXKeepsBlankRows(t *testing.T) {
	data := buildWorkbook(t, func(f *excelize.File, sh string) {
		require.NoError(t, f.SetSheetRow(sh, "A1", &[]any{"ID", "Name"}))
		require.NoError(t, f.SetSheetRow(sh, "A2", &[]any{1, "Alice"}))
		require.NoError(t, f.SetSheetRow(sh, "A4", &[]any{3, "Carol"}))
	})

	s, err := Parse("book.xlsx", data)
	require.NoError(t, err)

	require.Len(t, s.Rows, 3)
	assert.True(t, s.Rows[1][0].IsEmpty())
	assert.Len(t, s.Rows[1], 2, "blank row padded to header width")
	assert.Equal(t, Text("Carol"), s.Rows[2][1])
}

func TestParse_XLSXNumericTextStaysText(t *testing.T) {
	data := buildWorkbook(t, func(f *excelize.File, sh string) {
		require.NoError(t, f.SetCellValue(sh, "A1", "Code"))
		require.NoError(t, f.SetCellStr(sh, "A2", "007"))
	})

	s, err := Parse("book.xlsx", data)
	require.NoError(t, err)
	assert.Equal(t, Text("007"), s.Rows[0][0])
}

// ============================================================================
// Errors
// ============================================================================

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
		want error
	}{
		{"empty input", "x.csv", nil, ErrEmptySheet},
		{"legacy xls", "old.xls", append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, 0, 0), ErrLegacyWorkbook},
		{"binary garbage", "blob.bin", []byte{0x00, 0x01, 0xFF, 0xFE}, ErrNotSpreadsheet},
		{"broken zip", "x.xlsx", []byte("PK\x03\x04not really a zip"), ErrNotSpreadsheet},
		{"blank header", "x.csv", []byte(",,\n1,2,3\n"), ErrEmptySheet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.file, tt.data)
			require.Error(t, err)

			var pe *ParseError
			assert.True(t, errors.As(err, &pe), "want *ParseError, got %T", err)
			assert.True(t, errors.Is(err, tt.want), "want %v, got %v", tt.want, err)
		})
	}
}

func TestParseError_Message(t *testing.T) {
	err := &ParseError{File: "a.xls", Err: ErrLegacyWorkbook}
	assert.True(t, strings.Contains(err.Error(), `"a.xls"`))
}

// ============================================================================
// Cell
// ============================================================================

func TestCell_Float(t *testing.T) {
	tests := []struct {
		cell Cell
		want float64
		ok   bool
	}{
		{Number(3), 3, true},
		{Text(" 12.50 "), 12.5, true},
		{Text("1e3"), 1000, true},
		{Text("100x"), 0, false},
		{Text(""), 0, false},
		{Text("Infinity"), 0, false},
		{Text("0x1A"), 0, false},
		{Empty(), 0, false},
	}

	for _, tt := range tests {
		got, ok := tt.cell.Float()
		if ok != tt.ok || got != tt.want {
			t.Errorf("%#v.Float() = (%v, %v), want (%v, %v)", tt.cell, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCell_String(t *testing.T) {
	assert.Equal(t, "100", Number(100).String())
	assert.Equal(t, "0.25", Number(0.25).String())
	assert.Equal(t, "abc", Text("abc").String())
	assert.Equal(t, "", Empty().String())
}

func TestCell_JSON(t *testing.T) {
	row := []Cell{Text("a"), Number(1.5), Empty()}
	var buf bytes.Buffer
	for _, c := range row {
		b, err := c.MarshalJSON()
		require.NoError(t, err)
		buf.Write(b)
		buf.WriteByte(' ')
	}
	assert.Equal(t, `"a" 1.5 null `, buf.String())

	var c Cell
	require.NoError(t, c.UnmarshalJSON([]byte(`7`)))
	assert.Equal(t, Number(7), c)
	require.NoError(t, c.UnmarshalJSON([]byte(`null`)))
	assert.True(t, c.IsEmpty())
}

func TestSheet_CloneIsDeep(t *testing.T) {
	s := &Sheet{Headers: []string{"A"}, Rows: [][]Cell{{Number(1)}}}
	c := s.Clone()
	c.Rows[0][0] = Text("changed")
	assert.Equal(t, Number(1), s.Rows[0][0])
}

// ============================================================================
// UTF-8 Repair
// ============================================================================

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []byte
	}{
		{"valid unchanged", []byte("hello \xe4\xb8\x96\xe7\x95\x8c"), []byte("hello \xe4\xb8\x96\xe7\x95\x8c")},
		{"empty", []byte{}, []byte{}},
		{"lone continuation byte", []byte("abc\xbfdef"), []byte("abc�def")},
		{"truncated sequence", []byte{0xc3}, []byte("�")},
		{"overlong encoding", []byte{0xc0, 0x80}, []byte("��")},
		{"windows-1252 quotes", []byte("\x93Acme\x94"), []byte("�Acme�")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeUTF8(tt.input))
		})
	}
}

func TestParse_CSVRepairsLatin1(t *testing.T) {
	s, err := Parse("vendors.csv", []byte("Vendor,City\nCaf\xe9 Nord,Malm\xf6\n"))
	require.NoError(t, err)
	assert.Equal(t, "Caf� Nord", s.Rows[0][0].String())
	assert.Equal(t, "Malm�", s.Rows[0][1].String())
}

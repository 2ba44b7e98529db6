// Package sheet reads uploaded spreadsheets into a header row and a
// rectangular matrix of cells.
//
// Only the first worksheet of a workbook is read. The first row is the
// header row and is kept verbatim; every data row is padded (or cut) to the
// header width so callers can index cells positionally.
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// ErrNotSpreadsheet is returned when the bytes are not a workbook or CSV text.
var ErrNotSpreadsheet = errors.New("invalid spreadsheet: not an xlsx or csv file")

// ErrLegacyWorkbook is returned for BIFF (.xls) compound documents.
var ErrLegacyWorkbook = errors.New("invalid spreadsheet: legacy .xls workbooks are not supported, save as .xlsx")

// ErrEmptySheet is returned when the first worksheet has no header row.
var ErrEmptySheet = errors.New("empty file: no header row found")

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

// ParseError reports a file that could not be read as a spreadsheet.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("parse spreadsheet: %v", e.Err)
	}
	return fmt.Sprintf("parse spreadsheet %q: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Sheet is a parsed worksheet.
type Sheet struct {
	Name    string   `json:"name,omitempty"`
	Headers []string `json:"headers"`
	Rows    [][]Cell `json:"rows"`
}

// Width returns the number of columns.
func (s *Sheet) Width() int { return len(s.Headers) }

// Column returns every cell at column index i, in row order.
func (s *Sheet) Column(i int) []Cell {
	out := make([]Cell, 0, len(s.Rows))
	for _, row := range s.Rows {
		if i < len(row) {
			out = append(out, row[i])
		} else {
			out = append(out, Empty())
		}
	}
	return out
}

// HeaderIndex returns the position of the header with exactly this name,
// or -1.
func (s *Sheet) HeaderIndex(name string) int {
	for i, h := range s.Headers {
		if h == name {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy, so validation side effects do not leak into
// the caller's sheet.
func (s *Sheet) Clone() *Sheet {
	c := &Sheet{
		Name:    s.Name,
		Headers: append([]string(nil), s.Headers...),
		Rows:    make([][]Cell, len(s.Rows)),
	}
	for i, row := range s.Rows {
		c.Rows[i] = append([]Cell(nil), row...)
	}
	return c
}

// Normalize pads or cuts every row to the header width.
func (s *Sheet) Normalize() {
	for i, row := range s.Rows {
		if len(row) == len(s.Headers) {
			continue
		}
		fixed := make([]Cell, len(s.Headers))
		copy(fixed, row)
		s.Rows[i] = fixed
	}
}

// Parse reads the first worksheet of an xlsx workbook or a CSV file.
// fileName is only used for format hints and error messages.
func Parse(fileName string, data []byte) (*Sheet, error) {
	var (
		s   *Sheet
		err error
	)

	switch {
	case len(data) == 0:
		err = ErrEmptySheet
	case bytes.HasPrefix(data, zipMagic):
		s, err = parseXLSX(data)
	case bytes.HasPrefix(data, oleMagic):
		err = ErrLegacyWorkbook
	case isCSV(fileName, data):
		s, err = parseCSV(data)
	default:
		err = ErrNotSpreadsheet
	}
	if err != nil {
		return nil, &ParseError{File: fileName, Err: err}
	}

	s.Normalize()
	return s, nil
}

func isCSV(fileName string, data []byte) bool {
	if strings.EqualFold(filepath.Ext(fileName), ".csv") {
		return true
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return false
	}
	return utf8.Valid(bytes.TrimPrefix(data, utf8BOM))
}

func parseXLSX(data []byte) (*Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSpreadsheet, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptySheet
	}
	name := sheets[0]

	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", name, err)
	}
	if len(rows) == 0 || isBlank(rows[0]) {
		return nil, ErrEmptySheet
	}

	s := &Sheet{Name: name, Headers: rows[0]}
	for r := 1; r < len(rows); r++ {
		cells := make([]Cell, len(rows[r]))
		for c, raw := range rows[r] {
			cells[c] = xlsxCell(f, name, c+1, r+1, raw)
		}
		s.Rows = append(s.Rows, cells)
	}
	return s, nil
}

// xlsxCell types a raw cell value using the cell's declared type. Cells
// without a type attribute are numbers in the OOXML schema.
func xlsxCell(f *excelize.File, sheetName string, col, row int, raw string) Cell {
	if raw == "" {
		return Empty()
	}
	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return Text(raw)
	}
	ct, err := f.GetCellType(sheetName, ref)
	if err != nil {
		return Text(raw)
	}
	switch ct {
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if n, ok := ParseNumber(raw); ok {
			return Number(n)
		}
	case excelize.CellTypeBool:
		if raw == "1" {
			return Text("TRUE")
		}
		return Text("FALSE")
	}
	return Text(raw)
}

func parseCSV(data []byte) (*Sheet, error) {
	data = sanitizeUTF8(bytes.TrimPrefix(data, utf8BOM))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %w", err)
	}
	if len(records) == 0 || isBlank(records[0]) {
		return nil, ErrEmptySheet
	}

	s := &Sheet{Headers: records[0]}
	for _, rec := range records[1:] {
		cells := make([]Cell, len(rec))
		for i, v := range rec {
			cells[i] = csvCell(v)
		}
		s.Rows = append(s.Rows, cells)
	}
	return s, nil
}

// csvCell reads numeric-looking text as a number, matching what a
// spreadsheet application does when opening the file.
func csvCell(v string) Cell {
	if v == "" {
		return Empty()
	}
	if n, ok := ParseNumber(v); ok {
		return Number(n)
	}
	return Text(v)
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

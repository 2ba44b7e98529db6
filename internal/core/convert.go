package core

// convert.go maps sheet cells to the JSON values SharePoint expects.
//
// These functions handle the messy reality of user-provided spreadsheets:
//   - Header text that is not a valid internal field name
//   - Currency symbols and thousand separators in amounts
//   - Multiple date formats (US, EU, ISO) and Excel date serials
//
// Empty cells always map to nil so the item field is left blank.

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/spbulk/internal/sheet"
)

// Tokens SharePoint uses in internal field names for characters that are
// not allowed there.
const (
	SpaceToken = "_x0020_"
	SlashToken = "_x002f_"
)

var (
	whitespaceRegex  = regexp.MustCompile(`\s+`)
	nonCurrencyRegex = regexp.MustCompile(`[^0-9.]`)
)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Date layouts split by year format for proper 2-digit year handling
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
)

// ToRemoteFieldName converts a header to the internal field name SharePoint
// derives from it: each run of whitespace becomes _x0020_ and each '/'
// becomes _x002f_.
func ToRemoteFieldName(header string) string {
	name := whitespaceRegex.ReplaceAllString(header, SpaceToken)
	return strings.ReplaceAll(name, "/", SlashToken)
}

// ParseCurrency strips every character except digits and '.' and parses the
// rest. Returns false when nothing numeric remains.
func ParseCurrency(c sheet.Cell) (decimal.Decimal, bool) {
	if c.IsNumber() {
		if f, ok := c.Float(); ok {
			return decimal.NewFromFloat(f), true
		}
		return decimal.Zero, false
	}
	s := nonCurrencyRegex.ReplaceAllString(c.String(), "")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseDate reads a date cell. Numbers are Excel date serials; strings are
// tried against common layouts, 4-digit years first.
func ParseDate(c sheet.Cell) (time.Time, bool) {
	if c.IsNumber() {
		t, err := excelize.ExcelDateToTime(c.Num, false)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}

	s := strings.TrimSpace(c.String())
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}
	return time.Time{}, false
}

// CellValue converts one cell to its item payload value for the column type.
func CellValue(c sheet.Cell, t ColumnType) any {
	if c.IsEmpty() {
		return nil
	}
	switch t {
	case ColumnCurrency:
		d, ok := ParseCurrency(c)
		if !ok {
			return nil
		}
		return d.InexactFloat64()
	case ColumnNumber:
		if blankText(c) {
			return 0.0
		}
		if f, ok := c.Float(); ok {
			return f
		}
		return c.String()
	case ColumnDateTime:
		if tm, ok := ParseDate(c); ok {
			return tm.UTC().Format(time.RFC3339)
		}
		return c.String()
	default:
		return c.String()
	}
}

// BuildItemPayload maps a row to an item body keyed by remote field names.
// The SharePoint metadata envelope is added by the client.
func BuildItemPayload(headers []string, row []sheet.Cell, types []ColumnType) map[string]any {
	item := make(map[string]any, len(headers))
	for i, h := range headers {
		t := ColumnText
		if i < len(types) {
			t = types[i]
		}
		var c sheet.Cell
		if i < len(row) {
			c = row[i]
		}
		item[ToRemoteFieldName(h)] = CellValue(c, t)
	}
	return item
}

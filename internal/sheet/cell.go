package sheet

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// numericRegex matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// Kind identifies what a Cell holds.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindString
	KindNumber
)

// Cell is a single spreadsheet value: a string, a number, or nothing.
type Cell struct {
	Kind Kind
	Str  string
	Num  float64
}

// Empty returns an empty cell.
func Empty() Cell { return Cell{} }

// Text returns a string cell.
func Text(s string) Cell { return Cell{Kind: KindString, Str: s} }

// Number returns a numeric cell.
func Number(f float64) Cell { return Cell{Kind: KindNumber, Num: f} }

// IsEmpty reports whether the cell holds no value. A string cell with only
// whitespace counts as empty.
func (c Cell) IsEmpty() bool {
	switch c.Kind {
	case KindEmpty:
		return true
	case KindString:
		return strings.TrimSpace(c.Str) == ""
	default:
		return false
	}
}

// IsNumber reports whether the cell was read as a number.
func (c Cell) IsNumber() bool { return c.Kind == KindNumber }

// String returns the cell's text form. Numbers use the shortest
// representation that round-trips ("100", "12.5").
func (c Cell) String() string {
	switch c.Kind {
	case KindString:
		return c.Str
	case KindNumber:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	default:
		return ""
	}
}

// Len returns the length of the cell's text form in characters.
func (c Cell) Len() int {
	return len([]rune(c.String()))
}

// Float converts the cell to a finite number. Numeric strings (surrounding
// whitespace allowed) convert; empty cells and anything else do not.
func (c Cell) Float() (float64, bool) {
	switch c.Kind {
	case KindNumber:
		if math.IsNaN(c.Num) || math.IsInf(c.Num, 0) {
			return 0, false
		}
		return c.Num, true
	case KindString:
		return ParseNumber(c.Str)
	default:
		return 0, false
	}
}

// ParseNumber parses s as a finite decimal number.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || !numericRegex.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// MarshalJSON encodes empty cells as null, numbers as JSON numbers and
// strings as JSON strings.
func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case KindString:
		return json.Marshal(c.Str)
	case KindNumber:
		if math.IsNaN(c.Num) || math.IsInf(c.Num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(c.Num)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *Cell) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*c = Empty()
	case string:
		*c = Text(x)
	case float64:
		*c = Number(x)
	case bool:
		*c = Text(strings.ToUpper(strconv.FormatBool(x)))
	default:
		return fmt.Errorf("unsupported cell value %s", string(data))
	}
	return nil
}

package core

// validation.go checks a typed sheet before anything is sent to SharePoint.
//
// Validation happens at two levels:
//  1. Header validation: every header may only use letters, digits, '_' and ' '
//  2. Row validation: each cell is checked against its column type
//
// Issues are collected, never short-circuited, so callers can show every
// problem at once. Header issues come first, then cells in row-major order.

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JonMunkholm/spbulk/internal/sheet"
)

// headerCharRegex matches any character SharePoint will not accept in a
// field title.
var headerCharRegex = regexp.MustCompile(`[^A-Za-z0-9_ ]`)

// RowValidator validates rows against the chosen column types.
type RowValidator struct {
	headers []string
	types   []ColumnType
}

// NewRowValidator creates a validator for the given headers and types.
// types must have one entry per header.
func NewRowValidator(headers []string, types []ColumnType) *RowValidator {
	return &RowValidator{headers: headers, types: types}
}

// ValidateHeaders returns one issue per header containing a special character.
func (v *RowValidator) ValidateHeaders() []ValidationIssue {
	var issues []ValidationIssue
	for _, h := range v.headers {
		if headerCharRegex.MatchString(h) {
			issues = append(issues, ValidationIssue{Row: 0, Column: h, Reason: ReasonSpecialCharacterInHeader})
		}
	}
	return issues
}

// ValidateRow checks one data row. rowNum is the 1-based row number used in
// issues. Numbers in Text columns are rewritten to their string form in row,
// whether or not an issue is raised.
func (v *RowValidator) ValidateRow(rowNum int, row []sheet.Cell) []ValidationIssue {
	var issues []ValidationIssue
	for i, h := range v.headers {
		if i >= len(row) || i >= len(v.types) {
			break
		}
		switch v.types[i] {
		case ColumnNumber:
			if blankText(row[i]) {
				continue
			}
			if _, ok := row[i].Float(); !ok {
				issues = append(issues, ValidationIssue{Row: rowNum, Column: h, Reason: ReasonExpectedNumber})
			}
		case ColumnText:
			if row[i].IsNumber() {
				row[i] = sheet.Text(row[i].String())
			}
			if row[i].Len() > MaxTextLength {
				issues = append(issues, ValidationIssue{Row: rowNum, Column: h, Reason: ReasonTextTooLong})
			}
		}
	}
	return issues
}

// ValidateSheet validates headers and every row of s. It fails before
// scanning when no unique-id column is selected or the type list does not
// match the headers. Text-column coercion is applied to s itself; pass a
// Clone to keep the original intact.
func ValidateSheet(s *sheet.Sheet, types []ColumnType, uniqueID int) ([]ValidationIssue, error) {
	if uniqueID < 0 || uniqueID >= s.Width() {
		return nil, ErrNoUniqueID
	}
	if len(types) != s.Width() {
		return nil, fmt.Errorf("%w: %d types for %d columns", ErrTypeCount, len(types), s.Width())
	}

	v := NewRowValidator(s.Headers, types)
	issues := v.ValidateHeaders()
	for i, row := range s.Rows {
		issues = append(issues, v.ValidateRow(i+1, row)...)
	}
	return issues, nil
}

// FormatIssues renders up to limit issues, one per line, followed by a count
// of the rest. limit <= 0 renders all of them.
func FormatIssues(issues []ValidationIssue, limit int) string {
	if len(issues) == 0 {
		return ""
	}
	shown := issues
	if limit > 0 && len(issues) > limit {
		shown = issues[:limit]
	}

	var b strings.Builder
	for i, issue := range shown {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(issue.String())
	}
	if rest := len(issues) - len(shown); rest > 0 {
		fmt.Fprintf(&b, "\n... and %d more", rest)
	}
	return b.String()
}

// blankText reports a whitespace-only text cell. Such a value reads as
// zero, unlike a missing cell.
func blankText(c sheet.Cell) bool {
	return c.Kind == sheet.KindString && c.Str != "" && strings.TrimSpace(c.Str) == ""
}

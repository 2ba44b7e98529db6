package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/spbulk/internal/sheet"
)

// MaxTextLength is the character limit of a single line of text field.
const MaxTextLength = 255

// NoUniqueID marks that no unique-id column has been selected.
const NoUniqueID = -1

// ColumnType is the SharePoint field type chosen for a spreadsheet column.
type ColumnType int

const (
	ColumnText ColumnType = iota
	ColumnMultilineText
	ColumnNumber
	ColumnCurrency
	ColumnDateTime
)

var columnTypeNames = [...]string{
	ColumnText:          "text",
	ColumnMultilineText: "multiline",
	ColumnNumber:        "number",
	ColumnCurrency:      "currency",
	ColumnDateTime:      "datetime",
}

var columnTypeLabels = [...]string{
	ColumnText:          "Single line of text",
	ColumnMultilineText: "Multiple lines of text",
	ColumnNumber:        "Number",
	ColumnCurrency:      "Currency",
	ColumnDateTime:      "Date and Time",
}

// AllColumnTypes lists every selectable type in display order.
var AllColumnTypes = []ColumnType{ColumnText, ColumnMultilineText, ColumnNumber, ColumnCurrency, ColumnDateTime}

func (t ColumnType) valid() bool {
	return t >= ColumnText && t <= ColumnDateTime
}

// String returns the wire name ("text", "number", ...).
func (t ColumnType) String() string {
	if !t.valid() {
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
	return columnTypeNames[t]
}

// Label returns the name SharePoint shows for the field type.
func (t ColumnType) Label() string {
	if !t.valid() {
		return t.String()
	}
	return columnTypeLabels[t]
}

// FieldTypeKind returns the SP.FieldType code used when creating the field.
func (t ColumnType) FieldTypeKind() int {
	switch t {
	case ColumnMultilineText:
		return 3
	case ColumnNumber:
		return 9
	case ColumnCurrency:
		return 10
	case ColumnDateTime:
		return 4
	default:
		return 2
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t ColumnType) MarshalText() ([]byte, error) {
	if !t.valid() {
		return nil, fmt.Errorf("invalid column type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ColumnType) UnmarshalText(b []byte) error {
	ct, err := ParseColumnType(string(b))
	if err != nil {
		return err
	}
	*t = ct
	return nil
}

// ParseColumnType accepts a wire name or a display label, case-insensitively.
func ParseColumnType(s string) (ColumnType, error) {
	s = strings.TrimSpace(s)
	for _, t := range AllColumnTypes {
		if strings.EqualFold(s, t.String()) || strings.EqualFold(s, t.Label()) {
			return t, nil
		}
	}
	switch strings.ToLower(s) {
	case "multiple line of text", "multilinetext", "note":
		return ColumnMultilineText, nil
	case "single line of text", "string":
		return ColumnText, nil
	case "date", "datetime", "date time":
		return ColumnDateTime, nil
	}
	return ColumnText, fmt.Errorf("invalid column type %q", s)
}

// ColumnDef describes one field to create on a new list.
type ColumnDef struct {
	Title string     `json:"title"`
	Type  ColumnType `json:"type"`
}

// ColumnDefs pairs headers with their types.
func ColumnDefs(headers []string, types []ColumnType) []ColumnDef {
	defs := make([]ColumnDef, len(headers))
	for i, h := range headers {
		defs[i] = ColumnDef{Title: h, Type: ColumnText}
		if i < len(types) {
			defs[i].Type = types[i]
		}
	}
	return defs
}

// IssueReason says why a cell or header failed validation.
type IssueReason string

const (
	ReasonSpecialCharacterInHeader IssueReason = "special_character_in_header"
	ReasonExpectedNumber           IssueReason = "expected_number"
	ReasonTextTooLong              IssueReason = "text_too_long"
)

// Describe returns the human-readable form of the reason.
func (r IssueReason) Describe() string {
	switch r {
	case ReasonSpecialCharacterInHeader:
		return "Contains special characters"
	case ReasonExpectedNumber:
		return "Expected a number"
	case ReasonTextTooLong:
		return fmt.Sprintf("Exceeded %d character limit", MaxTextLength)
	default:
		return string(r)
	}
}

// ValidationIssue is a single header or cell that failed validation.
// Row 0 is the header row; data rows are 1-based.
type ValidationIssue struct {
	Row    int         `json:"row"`
	Column string      `json:"column"`
	Reason IssueReason `json:"reason"`
}

func (i ValidationIssue) String() string {
	return fmt.Sprintf("Row %d, Column %s: %s", i.Row, i.Column, i.Reason.Describe())
}

// Attachment is a file to upload into a record's document set.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Content     []byte `json:"-"`
}

// AttachmentMap maps a unique-id value to the file attached to that record.
type AttachmentMap map[string]Attachment

// Phase is a step of the upload workflow.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseUploaded        Phase = "uploaded"
	PhaseTypesConfigured Phase = "types_configured"
	PhaseValidated       Phase = "validated"
	PhaseListCreating    Phase = "list_creating"
	PhaseLibraryCreating Phase = "library_creating"
	PhaseItemsSubmitting Phase = "items_submitting"
	PhaseDone            Phase = "done"
	PhaseFailed          Phase = "failed"
)

// Status returns the message shown while the phase runs.
func (p Phase) Status() string {
	switch p {
	case PhaseListCreating:
		return "Creating SharePoint list..."
	case PhaseLibraryCreating:
		return "Creating document library..."
	case PhaseItemsSubmitting:
		return "Submitting data..."
	case PhaseDone:
		return "Data successfully submitted."
	default:
		return string(p)
	}
}

// Progress is reported on every phase change and after each submitted row.
type Progress struct {
	RunID   string `json:"runId"`
	Phase   Phase  `json:"phase"`
	Message string `json:"message"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}

// Percent returns the progress as a percentage (0-100).
func (p Progress) Percent() int {
	if p.Total > 0 {
		return (p.Current * 100) / p.Total
	}
	return 0
}

// ProgressFunc receives workflow progress.
type ProgressFunc func(Progress)

// FailedRow is a row whose item could not be written.
type FailedRow struct {
	Row      int    `json:"row"`
	UniqueID string `json:"uniqueId,omitempty"`
	Reason   string `json:"reason"`
}

// WorkflowInput is the frozen snapshot a workflow runs against. Build it
// with NewWorkflowInput once the caller is done editing types and the
// unique-id selection.
type WorkflowInput struct {
	FileName     string
	Sheet        *sheet.Sheet
	Types        []ColumnType
	UniqueID     int
	ListName     string
	WantsLibrary bool
	Attachments  AttachmentMap
	SessionID    string
	Progress     ProgressFunc
}

// NewWorkflowInput copies the sheet, types and attachments so later edits
// by the caller cannot change a running workflow.
func NewWorkflowInput(s *sheet.Sheet, types []ColumnType, uniqueID int, listName string, wantsLibrary bool, attachments AttachmentMap) WorkflowInput {
	in := WorkflowInput{
		Types:        append([]ColumnType(nil), types...),
		UniqueID:     uniqueID,
		ListName:     listName,
		WantsLibrary: wantsLibrary,
		Attachments:  make(AttachmentMap, len(attachments)),
	}
	if s != nil {
		in.Sheet = s.Clone()
	}
	for k, v := range attachments {
		in.Attachments[k] = v
	}
	return in
}

// Outcome is the single result of a workflow run.
type Outcome struct {
	RunID          string            `json:"runId"`
	ListName       string            `json:"listName"`
	FileName       string            `json:"fileName,omitempty"`
	Phase          Phase             `json:"phase"`
	FailedPhase    Phase             `json:"failedPhase,omitempty"`
	Success        bool              `json:"success"`
	Message        string            `json:"message"`
	Kind           ErrorKind         `json:"kind,omitempty"`
	Err            error             `json:"-"`
	Issues         []ValidationIssue `json:"issues,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
	FailedRows     []FailedRow       `json:"failedRows,omitempty"`
	TotalRows      int               `json:"totalRows"`
	ItemsSubmitted int               `json:"itemsSubmitted"`
	DocumentSets   int               `json:"documentSets"`
	StartedAt      time.Time         `json:"startedAt"`
	Duration       time.Duration     `json:"duration"`
}

package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Their text is matched by MapError, keep them stable.
var (
	ErrNoUniqueID       = errors.New("no unique id selected")
	ErrMissingListName  = errors.New("missing list name")
	ErrTypeCount        = errors.New("column type count mismatch")
	ErrNoSheet          = errors.New("no file provided")
	ErrListExists       = errors.New("list name already exists")
	ErrListNotFound     = errors.New("sharepoint list not found")
	ErrHeaderMismatch   = errors.New("header mismatch: columns do not match the list")
	ErrWorkflowActive   = errors.New("workflow already running for this session")
	ErrTooManyWorkflows = errors.New("too many workflows in progress, please try again later")
)

// ErrorKind classifies a workflow failure.
type ErrorKind string

const (
	KindParse         ErrorKind = "parse"
	KindConfiguration ErrorKind = "configuration"
	KindValidation    ErrorKind = "validation"
	KindProvisioning  ErrorKind = "provisioning"
	KindSubmission    ErrorKind = "submission"
)

// WorkflowError is the failure of one workflow phase.
type WorkflowError struct {
	Kind    ErrorKind
	Phase   Phase
	Message string
	Issues  []ValidationIssue
	Err     error
}

func (e *WorkflowError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(" failure")
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a *WorkflowError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var we *WorkflowError
	return errors.As(err, &we) && we.Kind == kind
}

// ParseFailure wraps a spreadsheet read error.
func ParseFailure(err error) *WorkflowError {
	return &WorkflowError{Kind: KindParse, Phase: PhaseUploaded, Err: err}
}

// ConfigurationFailure reports a missing list name, unique id or type list.
func ConfigurationFailure(err error) *WorkflowError {
	return &WorkflowError{Kind: KindConfiguration, Phase: PhaseTypesConfigured, Err: err}
}

// ValidationFailure wraps a non-empty issue list.
func ValidationFailure(issues []ValidationIssue) *WorkflowError {
	return &WorkflowError{
		Kind:    KindValidation,
		Phase:   PhaseValidated,
		Message: fmt.Sprintf("validation failed: %d issue(s)", len(issues)),
		Issues:  issues,
	}
}

// ProvisioningFailure reports a rejected list, field or library creation.
func ProvisioningFailure(phase Phase, msg string, err error) *WorkflowError {
	return &WorkflowError{Kind: KindProvisioning, Phase: phase, Message: msg, Err: err}
}

// SubmissionFailure reports item writes that did not all succeed.
func SubmissionFailure(msg string, err error) *WorkflowError {
	return &WorkflowError{Kind: KindSubmission, Phase: PhaseItemsSubmitting, Message: msg, Err: err}
}

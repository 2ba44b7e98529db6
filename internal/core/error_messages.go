package core

// Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// Error codes are grouped by category:
//
// # SharePoint Errors (SP001-SP099)
//
// Errors returned while provisioning or writing to SharePoint:
//
//	SP001 - List exists: A list with this name already exists
//	        Action: Choose a different list name
//	        Patterns: "already exists"
//
//	SP002 - List not found: The SharePoint list does not exist
//	        Action: Check the list name or create the list first
//	        Patterns: "list not found"
//
//	SP003 - Library failed: The document library could not be created
//	        Action: Check the site has the Document Set feature enabled
//	        Patterns: "document library", "document set"
//
//	SP004 - List failed: The SharePoint list could not be created
//	        Action: Check your permissions on the site and try again
//	        Patterns: "provisioning failure"
//
//	SP005 - Items failed: Some rows could not be submitted
//	        Action: Review the failed rows and submit them again
//	        Patterns: "submission failure"
//
//	SP006 - Access denied: SharePoint rejected the credentials
//	        Action: Sign in again or ask an administrator for access
//	        Patterns: "unauthorized", "forbidden", "request digest"
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Missing list name: No list name was given
//	         Patterns: "missing list name"
//
//	CFG002 - No unique id: No unique id column was selected
//	         Patterns: "no unique id"
//
//	CFG003 - Type mismatch: Column types do not match the headers
//	         Patterns: "column type count", "invalid column type"
//
//	CFG004 - History disabled: No run history database is configured
//	         Patterns: "history is disabled"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid data: Some cells or headers are invalid
//	         Action: Fix the listed cells and try again
//	         Patterns: "validation failed"
//
//	VAL002 - Invalid number: Invalid number format detected
//	         Patterns: "invalid number", "expected a number"
//
//	VAL003 - Special characters: A header contains special characters
//	         Patterns: "special character"
//
//	VAL004 - Header mismatch: Columns do not match the existing list
//	         Patterns: "header mismatch"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds maximum size limit
//	          Patterns: "file too large", "request body too large"
//
//	FILE002 - Legacy workbook: Old .xls workbooks are not supported
//	          Patterns: "legacy .xls"
//
//	FILE003 - Invalid spreadsheet: File is not an xlsx or csv file
//	          Patterns: "invalid spreadsheet"
//
//	FILE004 - No file: No file was selected
//	          Patterns: "no file provided"
//
//	FILE005 - Empty file: The uploaded file has no header row
//	          Patterns: "empty file"
//
//	FILE006 - Invalid CSV: File is not a valid CSV
//	          Patterns: "invalid csv"
//
//	FILE007 - Invalid upload: Request is not a multipart form
//	          Patterns: "invalid upload form"
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - Already running: A workflow is already running in this session
//	         Patterns: "already running"
//
//	UPL002 - System busy: Too many workflows in progress
//	         Patterns: "too many workflows"
//
//	UPL004 - Request cancelled: Request was cancelled
//	         Patterns: "context canceled"
//
//	UPL005 - Request timeout: Request timed out
//	         Patterns: "context deadline exceeded", "timeout"
//
//	UPL006 - Run not found: No recorded run has the given id
//	         Patterns: "run not found"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches:
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns should be
// defined before general ones. Multiple patterns can map to the same code
// (e.g., SP006 matches both "unauthorized" and "forbidden").
//
// # For Support Staff
//
// When a user reports an error code:
//  1. Look up the code in this reference
//  2. Check the associated patterns to understand what triggered it
//  3. Review the suggested action to guide the user
//  4. If ERR000, check application logs for the original technical error

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// Patterns are matched using strings.Contains, so partial matches work.
// The first matching pattern wins, so order matters:
//   - More specific patterns should come before general ones
//   - Multiple patterns can map to the same error code
//
// To add a new error pattern:
//  1. Choose the appropriate category and code range
//  2. Add the pattern in the correct position (specific before general)
//  3. Update the package documentation at the top of this file
var errorPatterns = []errorPattern{
	// =========================================================================
	// Upload Errors (UPL001-UPL005)
	// Checked first: cancellation wraps whatever call was in flight.
	// =========================================================================
	{
		pattern: "already running",
		msg: UserMessage{
			Message: "A workflow is already running in this session",
			Action:  "Wait for it to finish before starting another",
			Code:    "UPL001",
		},
	},
	{
		pattern: "too many workflows",
		msg: UserMessage{
			Message: "System is busy processing other uploads",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "UPL005",
		},
	},
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "The requested run was not found",
			Action:  "Check the run id or list recent runs",
			Code:    "UPL006",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE006)
	// These errors occur when reading the uploaded spreadsheet.
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "legacy .xls",
		msg: UserMessage{
			Message: "Old .xls workbooks are not supported",
			Action:  "Save the workbook as .xlsx and upload it again",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid spreadsheet",
		msg: UserMessage{
			Message: "File is not a valid spreadsheet",
			Action:  "Upload an .xlsx or .csv file",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a spreadsheet to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "The first row must contain column names",
			Code:    "FILE005",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure file is comma-separated with consistent columns",
			Code:    "FILE006",
		},
	},
	{
		pattern: "invalid upload form",
		msg: UserMessage{
			Message: "The upload could not be read",
			Action:  "Send the file as multipart/form-data",
			Code:    "FILE007",
		},
	},

	// =========================================================================
	// Configuration Errors (CFG001-CFG003)
	// The workflow was started without the required selections.
	// =========================================================================
	{
		pattern: "missing list name",
		msg: UserMessage{
			Message: "Please provide a list name",
			Action:  "Enter the name of the SharePoint list to create",
			Code:    "CFG001",
		},
	},
	{
		pattern: "no unique id",
		msg: UserMessage{
			Message: "Please select a unique ID",
			Action:  "Pick the column that identifies each record",
			Code:    "CFG002",
		},
	},
	{
		pattern: "column type count",
		msg: UserMessage{
			Message: "Column types do not match the spreadsheet",
			Action:  "Choose a type for every column",
			Code:    "CFG003",
		},
	},
	{
		pattern: "invalid column type",
		msg: UserMessage{
			Message: "Unknown column type",
			Action:  "Use text, multiline, number, currency or datetime",
			Code:    "CFG003",
		},
	},
	{
		pattern: "history is disabled",
		msg: UserMessage{
			Message: "Run history is not enabled on this server",
			Action:  "Ask an administrator to configure a database",
			Code:    "CFG004",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001-VAL004)
	// These errors occur when data doesn't match the chosen column types.
	// =========================================================================
	{
		pattern: "header mismatch",
		msg: UserMessage{
			Message: "Columns do not match the SharePoint list",
			Action:  "Rename the spreadsheet columns to match the list fields",
			Code:    "VAL004",
		},
	},
	{
		pattern: "special character",
		msg: UserMessage{
			Message: "A column name contains special characters",
			Action:  "Use only letters, numbers, spaces and underscores",
			Code:    "VAL003",
		},
	},
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "Invalid number format detected",
			Action:  "Remove letters and symbols from number columns",
			Code:    "VAL002",
		},
	},
	{
		pattern: "expected a number",
		msg: UserMessage{
			Message: "Invalid number format detected",
			Action:  "Remove letters and symbols from number columns",
			Code:    "VAL002",
		},
	},
	{
		pattern: "validation failed",
		msg: UserMessage{
			Message: "Invalid data found in the spreadsheet",
			Action:  "Fix the listed cells and try again",
			Code:    "VAL001",
		},
	},

	// =========================================================================
	// SharePoint Errors (SP001-SP006)
	// Specific patterns come before the per-phase fallbacks.
	// =========================================================================
	{
		pattern: "already exists",
		msg: UserMessage{
			Message: "A list with this name already exists",
			Action:  "Choose a different list name",
			Code:    "SP001",
		},
	},
	{
		pattern: "list not found",
		msg: UserMessage{
			Message: "The SharePoint list does not exist",
			Action:  "Check the list name or create the list first",
			Code:    "SP002",
		},
	},
	{
		pattern: "unauthorized",
		msg: UserMessage{
			Message: "SharePoint rejected the request",
			Action:  "Sign in again or ask an administrator for access",
			Code:    "SP006",
		},
	},
	{
		pattern: "forbidden",
		msg: UserMessage{
			Message: "SharePoint rejected the request",
			Action:  "Sign in again or ask an administrator for access",
			Code:    "SP006",
		},
	},
	{
		pattern: "request digest",
		msg: UserMessage{
			Message: "Could not authorize the request with SharePoint",
			Action:  "Reload the page and try again",
			Code:    "SP006",
		},
	},
	{
		pattern: "document library",
		msg: UserMessage{
			Message: "The document library could not be created",
			Action:  "Check the site has the Document Set feature enabled",
			Code:    "SP003",
		},
	},
	{
		pattern: "document set",
		msg: UserMessage{
			Message: "A document set could not be created",
			Action:  "Check the attachment and try again",
			Code:    "SP003",
		},
	},
	{
		pattern: "provisioning failure",
		msg: UserMessage{
			Message: "The SharePoint list could not be created",
			Action:  "Check your permissions on the site and try again",
			Code:    "SP004",
		},
	},
	{
		pattern: "submission failure",
		msg: UserMessage{
			Message: "Some rows could not be submitted",
			Action:  "Review the failed rows and submit them again",
			Code:    "SP005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "UPL005",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// These errors occur when request limits are exceeded.
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
// This is the fallback for unexpected errors. Support staff should check
// application logs for the original technical error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	err := fmt.Errorf("create list: %w", ErrListExists)
//	msg := MapError(err)
//	// msg.Code == "SP001"
//	// msg.Message == "A list with this name already exists"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
//
// Example output: "A list with this name already exists (Code: SP001). Choose a different list name"
//
// This is the primary function for displaying errors to end users.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern and should be shown to users.
// Returns true if the error matches a specific pattern (not the generic ERR000 fallback).
// Use this to decide whether to show the raw error or the mapped user message.
//
// Example:
//
//	if IsUserFacing(err) {
//	    showToUser(FormatUserError(err))
//	} else {
//	    log.Error(err) // Log technical error
//	    showToUser("An error occurred. Please try again.")
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// WrapWithUserMessage wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
// The returned UserError preserves the original technical error for logging via Unwrap(),
// while providing a clean user message via Error().
//
// Returns nil if err is nil.
//
// Example:
//
//	ue := NewUserError(spErr)
//	log.Error(ue.Technical)          // Log original error
//	fmt.Println(ue.Error())           // Show "A list with this name already exists"
//	fmt.Println(ue.User.Code)         // Show "SP001"
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}

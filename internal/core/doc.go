// Package core provides the business logic for bulk-loading spreadsheets
// into SharePoint lists.
//
// This package contains the domain logic independent of any UI or transport
// layer. It is used by the web handlers, the spbulk CLI, and tests without
// modification. Talking to SharePoint is delegated to small interfaces
// (see ports.go) so the workflow can be driven against fakes.
//
// # Flow
//
//  1. A parsed [sheet.Sheet] is typed with [InferColumnTypes]; the caller may
//     override any column and must pick a unique-id column.
//  2. [ValidateSheet] checks headers and cells. Numbers in text columns are
//     rewritten to their string form on the working copy.
//  3. [Workflow.Submit] creates the list, optionally a document library with
//     one document set per record, then writes one item per row.
//  4. [Workflow.AppendToList] writes rows into a list that already exists,
//     updating rows that carry an ID.
//
// # Error Handling
//
// Workflow failures are returned as [*WorkflowError] with a kind (parse,
// configuration, validation, provisioning, submission). Technical errors are
// mapped to user-friendly messages using [MapError]. Each category has a
// unique code for support reference:
//
//   - SP001-SP006: SharePoint errors (list exists, provisioning, auth)
//   - CFG001-CFG004: Configuration (list name, unique id, types, history)
//   - VAL001-VAL004: Validation errors (cells, headers)
//   - FILE001-FILE006: File errors (size, format, encoding)
//   - UPL001-UPL006: Run errors (concurrency, cancellation, timeout, lookup)
package core

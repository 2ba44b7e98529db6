package core

import "context"

// The workflow talks to SharePoint only through these interfaces. Every
// write takes the request digest explicitly; the workflow fetches a fresh
// one before each phase.

// DigestProvider supplies the short-lived form digest required by writes.
type DigestProvider interface {
	Digest(ctx context.Context) (string, error)
}

// ListProvisioner creates a list and its fields. Fields must be created one
// at a time, in order, and each added to the default view. A list that
// already exists must be reported as ErrListExists.
type ListProvisioner interface {
	CreateList(ctx context.Context, digest, title string, columns []ColumnDef) error
}

// LibraryProvisioner creates a document library and per-record document sets.
type LibraryProvisioner interface {
	CreateLibrary(ctx context.Context, digest, title string) error
	CreateDocumentSet(ctx context.Context, digest, library, name string, file Attachment) error
}

// ItemWriter writes list items.
type ItemWriter interface {
	AddItem(ctx context.Context, digest, list string, fields map[string]any) error
	UpdateItem(ctx context.Context, digest, list, id string, fields map[string]any) error
}

// FieldLister returns the titles of the visible, writable fields of a list.
type FieldLister interface {
	ListFields(ctx context.Context, list string) ([]string, error)
}

// ListRegistry records every list created through the workflow.
type ListRegistry interface {
	Register(ctx context.Context, digest, list string) error
	Lists(ctx context.Context) ([]string, error)
}

// RunRecorder persists workflow outcomes.
type RunRecorder interface {
	RecordRun(ctx context.Context, o Outcome) error
}

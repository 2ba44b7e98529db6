package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/spbulk/internal/sheet"
)

// IDColumn is the header that carries the SharePoint item id of a row to
// update. It is accepted even though the list reports it as read-only.
const IDColumn = "ID"

// AppendInput is the input of AppendToList.
type AppendInput struct {
	FileName string
	Sheet    *sheet.Sheet
	ListName string
	Progress ProgressFunc
}

// AppendToList writes every row into an existing list. Headers must all be
// visible, writable fields of the list. A row whose ID cell is set updates
// that item, falling back to adding a new item when the update fails; rows
// without an ID are added.
func (w *Workflow) AppendToList(ctx context.Context, in AppendInput) (out Outcome) {
	r := w.begin(strings.TrimSpace(in.ListName), in.FileName, in.Progress)
	defer func() { out = w.finish(ctx, r) }()
	defer r.recoverPanic()

	if in.Sheet == nil {
		r.fail(ConfigurationFailure(ErrNoSheet))
		return
	}
	if r.out.ListName == "" {
		r.fail(ConfigurationFailure(ErrMissingListName))
		return
	}

	work := in.Sheet.Clone()
	work.Normalize()
	r.out.TotalRows = len(work.Rows)

	fields, err := w.deps.Fields.ListFields(ctx, r.out.ListName)
	if err != nil {
		r.fail(ProvisioningFailure(PhaseValidated, "list fields", err))
		return
	}
	if missing := unknownHeaders(work.Headers, fields); len(missing) > 0 {
		werr := &WorkflowError{
			Kind:    KindValidation,
			Phase:   PhaseValidated,
			Message: "unknown columns " + strings.Join(missing, ", "),
			Err:     ErrHeaderMismatch,
		}
		r.fail(werr)
		r.out.Message = FormatUserError(werr) + ": " + strings.Join(missing, ", ")
		return
	}

	r.enter(PhaseItemsSubmitting, len(work.Rows))
	digest, err := w.deps.Digest.Digest(ctx)
	if err != nil {
		r.fail(SubmissionFailure("request digest", err))
		return
	}

	idCol := work.HeaderIndex(IDColumn)
	for i, row := range work.Rows {
		if err := ctx.Err(); err != nil {
			r.fail(SubmissionFailure(fmt.Sprintf("stopped after %d of %d rows", i, len(work.Rows)), err))
			return
		}

		item := rawItemPayload(work.Headers, row, idCol)
		id := ""
		if idCol >= 0 {
			id = strings.TrimSpace(row[idCol].String())
		}

		if err := w.writeRow(ctx, r, digest, id, item); err != nil {
			r.out.FailedRows = append(r.out.FailedRows, FailedRow{Row: i + 1, UniqueID: id, Reason: err.Error()})
			r.log.Warn("write item failed", "row", i+1, "id", id, "error", err)
			continue
		}
		r.out.ItemsSubmitted++
		r.report("Submitting data...", i+1, len(work.Rows))
	}

	if n := len(r.out.FailedRows); n > 0 {
		r.fail(SubmissionFailure(fmt.Sprintf("%d of %d rows failed", n, len(work.Rows)), nil))
		return
	}
	r.succeed(PhaseDone.Status())
	return
}

func (w *Workflow) writeRow(ctx context.Context, r *run, digest, id string, item map[string]any) error {
	if id != "" {
		err := w.deps.Items.UpdateItem(ctx, digest, r.out.ListName, id, item)
		if err == nil {
			return nil
		}
		r.log.Warn("update item failed, adding instead", "id", id, "error", err)
	}
	return w.deps.Items.AddItem(ctx, digest, r.out.ListName, item)
}

// unknownHeaders returns the headers that are not list fields. The ID
// column is always allowed.
func unknownHeaders(headers, fields []string) []string {
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f] = true
	}
	var missing []string
	for _, h := range headers {
		if h == IDColumn || known[h] {
			continue
		}
		missing = append(missing, h)
	}
	return missing
}

// rawItemPayload maps cells without a column type: numbers stay numbers,
// everything else is sent as text. The ID column is left out.
func rawItemPayload(headers []string, row []sheet.Cell, idCol int) map[string]any {
	item := make(map[string]any, len(headers))
	for i, h := range headers {
		if i == idCol {
			continue
		}
		c := row[i]
		switch {
		case c.IsEmpty():
			item[ToRemoteFieldName(h)] = nil
		case c.IsNumber():
			item[ToRemoteFieldName(h)] = c.Num
		default:
			item[ToRemoteFieldName(h)] = c.String()
		}
	}
	return item
}

package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/spbulk/internal/sheet"
)

// LibrarySuffix is appended to the list name to name its document library.
const LibrarySuffix = "_Documents"

// Deps are the collaborators a Workflow drives. Libraries, Registry and
// Recorder are optional.
type Deps struct {
	Digest    DigestProvider
	Lists     ListProvisioner
	Libraries LibraryProvisioner
	Items     ItemWriter
	Fields    FieldLister
	Registry  ListRegistry
	Recorder  RunRecorder
	Logger    *slog.Logger
}

// Workflow runs uploads against SharePoint. It holds no per-run state and is
// safe for concurrent use; callers limit concurrency with a WorkflowGate.
type Workflow struct {
	deps Deps
	log  *slog.Logger
}

// NewWorkflow creates a Workflow.
func NewWorkflow(deps Deps) *Workflow {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Workflow{deps: deps, log: log}
}

// run is the mutable state of one workflow invocation.
type run struct {
	out      Outcome
	log      *slog.Logger
	progress ProgressFunc
}

func (w *Workflow) begin(listName, fileName string, progress ProgressFunc) *run {
	id := uuid.New().String()
	return &run{
		out: Outcome{
			RunID:     id,
			ListName:  listName,
			FileName:  fileName,
			Phase:     PhaseIdle,
			StartedAt: time.Now().UTC(),
		},
		log:      w.log.With("run_id", id, "list", listName),
		progress: progress,
	}
}

func (r *run) enter(p Phase, total int) {
	r.out.Phase = p
	r.log.Info("workflow phase", "phase", p)
	r.report(p.Status(), 0, total)
}

func (r *run) report(msg string, current, total int) {
	if r.progress == nil {
		return
	}
	r.progress(Progress{
		RunID:   r.out.RunID,
		Phase:   r.out.Phase,
		Message: msg,
		Current: current,
		Total:   total,
	})
}

func (r *run) warn(msg string, args ...any) {
	r.out.Warnings = append(r.out.Warnings, msg)
	r.log.Warn(msg, args...)
}

func (r *run) fail(err *WorkflowError) {
	r.out.FailedPhase = err.Phase
	r.out.Phase = PhaseFailed
	r.out.Success = false
	r.out.Kind = err.Kind
	r.out.Err = err
	r.out.Message = FormatUserError(err)
	if err.Kind == KindValidation {
		r.out.Issues = err.Issues
		r.out.Message = FormatIssues(err.Issues, 5)
	}
	r.log.Error("workflow failed",
		"phase", err.Phase,
		"kind", err.Kind,
		"error", err,
	)
	r.report(r.out.Message, 0, 0)
}

func (r *run) succeed(msg string) {
	r.out.Phase = PhaseDone
	r.out.Success = true
	r.out.Message = msg
	r.log.Info("workflow done",
		"items", r.out.ItemsSubmitted,
		"document_sets", r.out.DocumentSets,
		"warnings", len(r.out.Warnings),
	)
	r.report(msg, r.out.ItemsSubmitted, r.out.TotalRows)
}

// finish stamps the duration and hands the outcome to the recorder. A
// recorder failure is logged and never changes the outcome.
func (w *Workflow) finish(ctx context.Context, r *run) Outcome {
	r.out.Duration = time.Since(r.out.StartedAt)
	if w.deps.Recorder != nil {
		if err := w.deps.Recorder.RecordRun(context.WithoutCancel(ctx), r.out); err != nil {
			r.log.Warn("record workflow run", "error", err)
		}
	}
	return r.out
}

// recoverPanic converts a panic in a collaborator into a failed outcome.
func (r *run) recoverPanic() {
	if p := recover(); p != nil {
		r.log.Error("panic in workflow", "panic", p)
		phase := r.out.Phase
		r.fail(&WorkflowError{Kind: KindSubmission, Phase: phase, Message: "internal error", Err: fmt.Errorf("panic: %v", p)})
	}
}

// Submit validates in and, if it passes, creates the list, the optional
// document library and one item per row, in that order. It stops at the
// first failing phase; remote objects created by earlier phases are left in
// place. Errors never escape: they are folded into the returned Outcome.
func (w *Workflow) Submit(ctx context.Context, in WorkflowInput) (out Outcome) {
	r := w.begin(strings.TrimSpace(in.ListName), in.FileName, in.Progress)
	defer func() { out = w.finish(ctx, r) }()
	defer r.recoverPanic()

	work, werr := w.prepare(in)
	if werr != nil {
		r.fail(werr)
		return
	}
	r.out.TotalRows = len(work.Rows)
	listName := r.out.ListName

	// List
	r.enter(PhaseListCreating, len(work.Headers))
	digest, err := w.deps.Digest.Digest(ctx)
	if err != nil {
		r.fail(ProvisioningFailure(PhaseListCreating, "request digest", err))
		return
	}
	if err := w.deps.Lists.CreateList(ctx, digest, listName, ColumnDefs(work.Headers, in.Types)); err != nil {
		r.fail(ProvisioningFailure(PhaseListCreating, "create list", err))
		return
	}

	// Library
	if in.WantsLibrary {
		if werr := w.createLibrary(ctx, r, work, in); werr != nil {
			r.fail(werr)
			return
		}
	}

	// Items
	if werr := w.submitItems(ctx, r, work, in.Types, in.UniqueID); werr != nil {
		r.fail(werr)
		return
	}

	if w.deps.Registry != nil {
		w.register(ctx, r, listName)
	}

	r.succeed(PhaseDone.Status())
	return
}

// prepare checks the configuration and validates a copy of the sheet. No
// remote call is made before it succeeds.
func (w *Workflow) prepare(in WorkflowInput) (*sheet.Sheet, *WorkflowError) {
	if in.Sheet == nil {
		return nil, ConfigurationFailure(ErrNoSheet)
	}
	if strings.TrimSpace(in.ListName) == "" {
		return nil, ConfigurationFailure(ErrMissingListName)
	}
	if in.UniqueID < 0 || in.UniqueID >= in.Sheet.Width() {
		return nil, ConfigurationFailure(ErrNoUniqueID)
	}

	work := in.Sheet.Clone()
	work.Normalize()
	issues, err := ValidateSheet(work, in.Types, in.UniqueID)
	if err != nil {
		return nil, ConfigurationFailure(err)
	}
	if len(issues) > 0 {
		return nil, ValidationFailure(issues)
	}
	return work, nil
}

func (w *Workflow) createLibrary(ctx context.Context, r *run, work *sheet.Sheet, in WorkflowInput) *WorkflowError {
	if w.deps.Libraries == nil {
		return ProvisioningFailure(PhaseLibraryCreating, "create document library", errors.New("no library client configured"))
	}

	names := DocumentSetNames(work, in.UniqueID)
	r.enter(PhaseLibraryCreating, len(names))

	digest, err := w.deps.Digest.Digest(ctx)
	if err != nil {
		return ProvisioningFailure(PhaseLibraryCreating, "request digest", err)
	}

	library := r.out.ListName + LibrarySuffix
	if err := w.deps.Libraries.CreateLibrary(ctx, digest, library); err != nil {
		return ProvisioningFailure(PhaseLibraryCreating, "create document library", err)
	}

	for i, name := range names {
		file, ok := in.Attachments[name]
		if !ok {
			r.warn(fmt.Sprintf("No attachment for record %s, document set skipped", name), "record", name)
			continue
		}
		if err := w.deps.Libraries.CreateDocumentSet(ctx, digest, library, name, file); err != nil {
			r.warn(fmt.Sprintf("Document set %s failed: %v", name, err), "record", name, "error", err)
			continue
		}
		r.out.DocumentSets++
		r.report(fmt.Sprintf("Document set %s created", name), i+1, len(names))
	}
	return nil
}

func (w *Workflow) submitItems(ctx context.Context, r *run, work *sheet.Sheet, types []ColumnType, uniqueID int) *WorkflowError {
	total := len(work.Rows)
	r.enter(PhaseItemsSubmitting, total)

	digest, err := w.deps.Digest.Digest(ctx)
	if err != nil {
		return SubmissionFailure("request digest", err)
	}

	for i, row := range work.Rows {
		if err := ctx.Err(); err != nil {
			return SubmissionFailure(fmt.Sprintf("stopped after %d of %d rows", i, total), err)
		}
		item := BuildItemPayload(work.Headers, row, types)
		if err := w.deps.Items.AddItem(ctx, digest, r.out.ListName, item); err != nil {
			r.out.FailedRows = append(r.out.FailedRows, FailedRow{
				Row:      i + 1,
				UniqueID: strings.TrimSpace(row[uniqueID].String()),
				Reason:   err.Error(),
			})
			r.log.Warn("add item failed", "row", i+1, "error", err)
			continue
		}
		r.out.ItemsSubmitted++
		r.report("Submitting data...", i+1, total)
	}

	if n := len(r.out.FailedRows); n > 0 {
		return SubmissionFailure(fmt.Sprintf("%d of %d rows failed", n, total), nil)
	}
	return nil
}

func (w *Workflow) register(ctx context.Context, r *run, listName string) {
	digest, err := w.deps.Digest.Digest(ctx)
	if err == nil {
		err = w.deps.Registry.Register(ctx, digest, listName)
	}
	if err != nil {
		r.warn("List was created but could not be added to the registry", "error", err)
	}
}

// DocumentSetNames returns the trimmed, non-empty, distinct values of the
// unique-id column. Values sort numerically when they are all numbers,
// otherwise lexically.
func DocumentSetNames(s *sheet.Sheet, uniqueID int) []string {
	seen := make(map[string]bool)
	var names []string
	allNumeric := true
	for _, c := range s.Column(uniqueID) {
		name := strings.TrimSpace(c.String())
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
		if _, ok := sheet.ParseNumber(name); !ok {
			allNumeric = false
		}
	}

	if allNumeric {
		sort.SliceStable(names, func(i, j int) bool {
			a, _ := sheet.ParseNumber(names[i])
			b, _ := sheet.ParseNumber(names[j])
			return a < b
		})
	} else {
		sort.Strings(names)
	}
	return names
}

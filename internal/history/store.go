// Package history stores workflow outcomes in PostgreSQL so past runs can be
// listed and inspected after the HTTP response that produced them is gone.
//
// The store is optional. When no database is configured the server runs
// without it and the run endpoints report that history is disabled.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/spbulk/internal/core"
)

// DefaultLimit is the page size used when a filter does not set one.
const DefaultLimit = 50

// MaxLimit caps the page size a caller may request.
const MaxLimit = 500

// ErrNotFound is returned by Get when no run has the given id.
var ErrNotFound = errors.New("run not found")

// DBTX is the subset of *pgxpool.Pool the store needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists workflow outcomes.
type Store struct {
	db  DBTX
	log *slog.Logger
}

var _ core.RunRecorder = (*Store)(nil)

// New creates a Store backed by db.
func New(db DBTX) *Store {
	return &Store{db: db, log: slog.Default().With("component", "history")}
}

const schema = `
CREATE TABLE IF NOT EXISTS workflow_runs (
	id              uuid PRIMARY KEY,
	list_name       text        NOT NULL,
	file_name       text,
	phase           text        NOT NULL,
	failed_phase    text,
	success         boolean     NOT NULL,
	kind            text,
	message         text        NOT NULL,
	total_rows      integer     NOT NULL DEFAULT 0,
	items_submitted integer     NOT NULL DEFAULT 0,
	document_sets   integer     NOT NULL DEFAULT 0,
	detail          jsonb,
	started_at      timestamptz NOT NULL,
	duration_ms     bigint      NOT NULL DEFAULT 0,
	created_at      timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS workflow_runs_started_at_idx ON workflow_runs (started_at DESC);
CREATE INDEX IF NOT EXISTS workflow_runs_list_name_idx ON workflow_runs (list_name);
`

// Migrate creates the runs table and its indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("history migrate: %w", err)
	}
	return nil
}

// detail holds the variable-length parts of an outcome, stored as jsonb.
type detail struct {
	Issues     []core.ValidationIssue `json:"issues,omitempty"`
	Warnings   []string               `json:"warnings,omitempty"`
	FailedRows []core.FailedRow       `json:"failedRows,omitempty"`
}

func (d detail) empty() bool {
	return len(d.Issues) == 0 && len(d.Warnings) == 0 && len(d.FailedRows) == 0
}

const insertRun = `INSERT INTO workflow_runs (
	id, list_name, file_name, phase, failed_phase, success, kind, message,
	total_rows, items_submitted, document_sets, detail, started_at, duration_ms
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO NOTHING`

// RecordRun stores out. Recording the same run twice is a no-op.
func (s *Store) RecordRun(ctx context.Context, out core.Outcome) error {
	id, err := uuid.Parse(out.RunID)
	if err != nil {
		return fmt.Errorf("record run: invalid run id %q: %w", out.RunID, err)
	}

	var detailJSON []byte
	d := detail{Issues: out.Issues, Warnings: out.Warnings, FailedRows: out.FailedRows}
	if !d.empty() {
		if detailJSON, err = json.Marshal(d); err != nil {
			return fmt.Errorf("record run %s: encode detail: %w", out.RunID, err)
		}
	}

	startedAt := out.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	_, err = s.db.Exec(ctx, insertRun,
		pgtype.UUID{Bytes: id, Valid: true},
		out.ListName,
		toPgText(out.FileName),
		string(out.Phase),
		toPgText(string(out.FailedPhase)),
		out.Success,
		toPgText(string(out.Kind)),
		out.Message,
		int32(out.TotalRows),
		int32(out.ItemsSubmitted),
		int32(out.DocumentSets),
		detailJSON,
		startedAt.UTC(),
		out.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", out.RunID, err)
	}

	s.log.Debug("run recorded", "run_id", out.RunID, "list", out.ListName, "success", out.Success)
	return nil
}

const runColumns = `id::text, list_name, file_name, phase, failed_phase, success, kind, message,
	total_rows, items_submitted, document_sets, detail, started_at, duration_ms`

// Get returns the run with the given id.
func (s *Store) Get(ctx context.Context, id string) (*core.Outcome, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("run %q: %w", id, ErrNotFound)
	}

	row := s.db.QueryRow(ctx, "SELECT "+runColumns+" FROM workflow_runs WHERE id = $1",
		pgtype.UUID{Bytes: parsed, Valid: true})
	out, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return out, nil
}

// Filter narrows a List call. Zero values mean "any".
type Filter struct {
	ListName string
	Success  *bool
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}

// Page is one page of runs, newest first.
type Page struct {
	Runs   []core.Outcome `json:"runs"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

func (f Filter) where() (string, []any, int) {
	wb := newWhereBuilder()
	wb.add("list_name", f.ListName)
	wb.addBool("success", f.Success)

	var since, until any
	if !f.Since.IsZero() {
		since = f.Since.UTC()
	}
	if !f.Until.IsZero() {
		until = f.Until.UTC()
	}
	wb.addRange("started_at", since, until)

	clause, args := wb.build()
	return clause, args, wb.nextArgIndex()
}

func (f Filter) normalized() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// List returns runs matching f, newest first, with the total match count.
func (s *Store) List(ctx context.Context, f Filter) (*Page, error) {
	f = f.normalized()
	where, args, next := f.where()

	var total int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM workflow_runs"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}

	query := "SELECT " + runColumns + " FROM workflow_runs" + where +
		fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d OFFSET $%d", next, next+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]core.Outcome, 0)
	for rows.Next() {
		out, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	return &Page{Runs: runs, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// Prune deletes runs that started before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, "DELETE FROM workflow_runs WHERE started_at < $1", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRun(row pgx.Row) (*core.Outcome, error) {
	var (
		id           string
		listName     string
		fileName     pgtype.Text
		phase        string
		failedPhase  pgtype.Text
		success      bool
		kind         pgtype.Text
		message      string
		totalRows    int32
		submitted    int32
		documentSets int32
		detailJSON   []byte
		startedAt    time.Time
		durationMS   int64
	)

	err := row.Scan(
		&id, &listName, &fileName, &phase, &failedPhase, &success, &kind, &message,
		&totalRows, &submitted, &documentSets, &detailJSON, &startedAt, &durationMS,
	)
	if err != nil {
		return nil, err
	}

	out := &core.Outcome{
		RunID:          id,
		ListName:       listName,
		Phase:          core.Phase(phase),
		Success:        success,
		Message:        message,
		TotalRows:      int(totalRows),
		ItemsSubmitted: int(submitted),
		DocumentSets:   int(documentSets),
		StartedAt:      startedAt,
		Duration:       time.Duration(durationMS) * time.Millisecond,
	}
	if fileName.Valid {
		out.FileName = fileName.String
	}
	if failedPhase.Valid {
		out.FailedPhase = core.Phase(failedPhase.String)
	}
	if kind.Valid {
		out.Kind = core.ErrorKind(kind.String)
	}
	if len(detailJSON) > 0 {
		var d detail
		if err := json.Unmarshal(detailJSON, &d); err != nil {
			return nil, fmt.Errorf("decode detail of run %s: %w", id, err)
		}
		out.Issues = d.Issues
		out.Warnings = d.Warnings
		out.FailedRows = d.FailedRows
	}
	return out, nil
}

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

package web

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/spbulk/internal/core"
	"github.com/JonMunkholm/spbulk/internal/history"
	"github.com/JonMunkholm/spbulk/internal/logging"
	"github.com/JonMunkholm/spbulk/internal/sheet"
	"github.com/JonMunkholm/spbulk/internal/web/templates"
)

// SheetResponse is the parsed sheet with suggested column types.
type SheetResponse struct {
	FileName string            `json:"fileName"`
	Headers  []string          `json:"headers"`
	Rows     [][]sheet.Cell    `json:"rows"`
	Types    []core.ColumnType `json:"types"`
	RowCount int               `json:"rowCount"`
}

// ValidateResponse lists the issues found in a sheet.
type ValidateResponse struct {
	Valid   bool                   `json:"valid"`
	Issues  []core.ValidationIssue `json:"issues"`
	Message string                 `json:"message,omitempty"`
}

// OutcomeResponse is a workflow outcome plus the support code of a failure.
type OutcomeResponse struct {
	core.Outcome
	Code   string `json:"code,omitempty"`
	Action string `json:"action,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":    "ok",
		"workflows": s.deps.Gate.Status(),
	})
}

// handleParseSheet parses an uploaded spreadsheet and suggests column types.
func (s *Server) handleParseSheet(w http.ResponseWriter, r *http.Request) {
	if err := s.parseMultipart(w, r); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	sh, name, err := readSheet(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, SheetResponse{
		FileName: name,
		Headers:  sh.Headers,
		Rows:     sh.Rows,
		Types:    core.InferColumnTypes(sh.Headers, sh.Rows),
		RowCount: len(sh.Rows),
	})
}

// handleValidate checks a spreadsheet against column types without
// touching SharePoint.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if err := s.parseMultipart(w, r); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	form := bindValidateForm(r)
	if err := s.checkForm(form); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	sh, _, err := readSheet(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	types, err := parseTypes(form.Types, sh)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	issues, err := core.ValidateSheet(sh.Clone(), types, resolveUniqueID(sh, form.UniqueID))
	if err != nil {
		werr := core.ConfigurationFailure(err)
		respondError(w, r, werr, statusFor(werr))
		return
	}

	resp := ValidateResponse{Valid: len(issues) == 0, Issues: issues}
	if issues == nil {
		resp.Issues = []core.ValidationIssue{}
	}
	if !resp.Valid {
		resp.Message = core.FormatIssues(issues, 5)
	}
	writeJSON(w, resp)
}

// handleCreateList runs the full workflow: new list, optional document
// library, then one item per row.
func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	session := s.sessionID(w, r)
	if s.busy(w, r, session) {
		return
	}
	if err := s.parseMultipart(w, r); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	form := bindWorkflowForm(r)
	if err := s.checkForm(form); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	sh, name, err := readSheet(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	types, err := parseTypes(form.Types, sh)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	attachments, err := readAttachments(r.MultipartForm)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	log := logging.WithFields(r.Context(), "session", session, "list", form.ListName)
	ctx, release, err := s.acquire(r.Context(), session)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	defer release()

	in := core.NewWorkflowInput(sh, types, resolveUniqueID(sh, form.UniqueID), form.ListName, form.CreateLibrary, attachments)
	in.FileName = name
	in.SessionID = session
	in.Progress = progressLogger(log)

	log.Info("workflow accepted", "rows", len(sh.Rows), "library", form.CreateLibrary, "attachments", len(attachments))
	s.respondOutcome(w, r, s.deps.Workflow.Submit(ctx, in))
}

// handleAppend writes a spreadsheet into an existing list.
func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	session := s.sessionID(w, r)
	listName := strings.TrimSpace(chi.URLParam(r, "listName"))
	if s.busy(w, r, session) {
		return
	}
	if err := s.parseMultipart(w, r); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	sh, name, err := readSheet(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	log := logging.WithFields(r.Context(), "session", session, "list", listName)
	ctx, release, err := s.acquire(r.Context(), session)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	defer release()

	log.Info("append accepted", "rows", len(sh.Rows))
	s.respondOutcome(w, r, s.deps.Workflow.AppendToList(ctx, core.AppendInput{
		FileName: name,
		Sheet:    sh,
		ListName: listName,
		Progress: progressLogger(log),
	}))
}

// busy rejects a request from a session that already runs a workflow
// before its upload is read.
func (s *Server) busy(w http.ResponseWriter, r *http.Request, session string) bool {
	if !s.deps.Gate.Busy(session) {
		return false
	}
	respondError(w, r, core.ErrWorkflowActive, statusFor(core.ErrWorkflowActive))
	return true
}

// acquire claims the session's workflow slot and bounds the run with the
// configured timeout.
func (s *Server) acquire(parent context.Context, session string) (context.Context, func(), error) {
	if err := s.deps.Gate.Acquire(parent, session); err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(parent, s.cfg.Upload.Timeout)
	return ctx, func() {
		cancel()
		s.deps.Gate.Release(session)
	}, nil
}

func progressLogger(log interface {
	Debug(msg string, args ...any)
}) core.ProgressFunc {
	return func(p core.Progress) {
		log.Debug("workflow progress",
			"run_id", p.RunID,
			"phase", p.Phase,
			"current", p.Current,
			"total", p.Total,
			"percent", p.Percent(),
		)
	}
}

func (s *Server) respondOutcome(w http.ResponseWriter, r *http.Request, out core.Outcome) {
	status := outcomeStatus(out)

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_ = templates.OutcomeSummary(out).Render(r.Context(), w)
		return
	}

	resp := OutcomeResponse{Outcome: out}
	if !out.Success && out.Err != nil {
		msg := core.MapError(out.Err)
		resp.Code = msg.Code
		resp.Action = msg.Action
	}
	writeJSONStatus(w, status, resp)
}

// handleLists returns the lists recorded in the registry.
func (s *Server) handleLists(w http.ResponseWriter, r *http.Request) {
	if s.deps.Registry == nil {
		writeJSON(w, map[string]any{"lists": []string{}})
		return
	}
	names, err := s.deps.Registry.Lists(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusBadGateway)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, map[string]any{"lists": names})
}

// handleRuns lists recorded runs, newest first.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		respondError(w, r, errHistoryDisabled, statusFor(errHistoryDisabled))
		return
	}

	q := r.URL.Query()
	f := history.Filter{
		ListName: strings.TrimSpace(q.Get("list")),
		Limit:    parseIntParam(r, "limit", history.DefaultLimit),
		Offset:   parseIntParam(r, "offset", 0),
	}
	if v := q.Get("success"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			f.Success = &b
		}
	}
	f.Since = parseTimeParam(r, "since")
	f.Until = parseTimeParam(r, "until")

	page, err := s.deps.Runs.List(r.Context(), f)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, page)
}

// handleRun returns one recorded run.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		respondError(w, r, errHistoryDisabled, statusFor(errHistoryDisabled))
		return
	}
	out, err := s.deps.Runs.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = templates.OutcomeSummary(*out).Render(r.Context(), w)
		return
	}
	writeJSON(w, out)
}

// parseIntParam parses a non-negative integer query parameter.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

// parseTimeParam parses an RFC 3339 timestamp or a YYYY-MM-DD date.
func parseTimeParam(r *http.Request, name string) time.Time {
	val := r.URL.Query().Get(name)
	if val == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t
	}
	if t, err := time.Parse(time.DateOnly, val); err == nil {
		return t
	}
	return time.Time{}
}

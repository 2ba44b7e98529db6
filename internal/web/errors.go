package web

// errors.go turns errors into responses.
//
// Every error is logged with its technical detail and request id, then
// mapped through core.MapError so clients only see the coded, user-facing
// message. HTMX requests get an HTML alert fragment; everything else gets
// JSON.

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/spbulk/internal/core"
	"github.com/JonMunkholm/spbulk/internal/history"
	"github.com/JonMunkholm/spbulk/internal/logging"
	"github.com/JonMunkholm/spbulk/internal/sheet"
	"github.com/JonMunkholm/spbulk/internal/web/templates"
)

var (
	errHistoryDisabled = errors.New("run history is disabled")
	errBadForm         = errors.New("invalid upload form")
)

// ErrorResponse is the JSON body of an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status for an error returned outside a workflow.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	var parseErr *sheet.ParseError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrWorkflowActive), errors.Is(err, core.ErrListExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyWorkflows):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrListNotFound), errors.Is(err, history.ErrNotFound), errors.Is(err, errHistoryDisabled):
		return http.StatusNotFound
	case errors.As(err, &parseErr), errors.Is(err, core.ErrNoSheet), errors.Is(err, errBadForm):
		return http.StatusBadRequest
	case core.IsKind(err, core.KindConfiguration), core.IsKind(err, core.KindValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// outcomeStatus picks the HTTP status for a finished workflow.
func outcomeStatus(out core.Outcome) int {
	if out.Success {
		return http.StatusOK
	}
	switch out.Kind {
	case core.KindParse, core.KindConfiguration:
		return http.StatusBadRequest
	case core.KindValidation:
		if errors.Is(out.Err, core.ErrHeaderMismatch) {
			return http.StatusConflict
		}
		return http.StatusUnprocessableEntity
	case core.KindProvisioning:
		switch {
		case errors.Is(out.Err, core.ErrListExists):
			return http.StatusConflict
		case errors.Is(out.Err, core.ErrListNotFound):
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	case core.KindSubmission:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the mapped user message.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_ = templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
		return
	}

	writeJSONStatus(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

func isHTMX(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("HX-Request"), "true")
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

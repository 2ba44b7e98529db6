package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/spbulk/internal/core"
	"github.com/JonMunkholm/spbulk/internal/sheet"
)

// AttachmentPrefix marks multipart file parts holding document-set files.
// The rest of the part name is the record's unique-id value.
const AttachmentPrefix = "attachment:"

// multipartMemory is how much of a form is buffered in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// workflowForm is the non-file part of a create-list request.
type workflowForm struct {
	ListName      string `validate:"required,max=255"`
	UniqueID      string `validate:"required"`
	Types         string
	CreateLibrary bool
}

// validateForm is the non-file part of a validate request.
type validateForm struct {
	UniqueID string `validate:"required"`
	Types    string
}

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return fmt.Errorf("parse form: %w", err)
		}
		return fmt.Errorf("%w: %w", errBadForm, err)
	}
	return nil
}

// checkForm runs struct validation and translates failures into the core
// sentinels so they map to the same user messages as workflow failures.
func (s *Server) checkForm(form any) error {
	err := s.validate.Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate form: %w", err)
	}
	for _, fe := range verrs {
		switch {
		case fe.StructField() == "ListName" && fe.Tag() == "required":
			return core.ConfigurationFailure(core.ErrMissingListName)
		case fe.StructField() == "UniqueID":
			return core.ConfigurationFailure(core.ErrNoUniqueID)
		}
	}
	fe := verrs[0]
	return core.ConfigurationFailure(fmt.Errorf("field %s failed on %s", fe.Field(), fe.Tag()))
}

func bindWorkflowForm(r *http.Request) workflowForm {
	return workflowForm{
		ListName:      strings.TrimSpace(r.FormValue("listName")),
		UniqueID:      strings.TrimSpace(r.FormValue("uniqueId")),
		Types:         r.FormValue("types"),
		CreateLibrary: formBool(r.FormValue("createLibrary")),
	}
}

func bindValidateForm(r *http.Request) validateForm {
	return validateForm{
		UniqueID: strings.TrimSpace(r.FormValue("uniqueId")),
		Types:    r.FormValue("types"),
	}
}

func formBool(v string) bool {
	if strings.EqualFold(v, "on") {
		return true
	}
	b, _ := strconv.ParseBool(v)
	return b
}

// readSheet parses the "file" part of an already parsed multipart form.
func readSheet(r *http.Request) (*sheet.Sheet, string, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", core.ErrNoSheet
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, header.Filename, fmt.Errorf("read %s: %w", header.Filename, err)
	}
	s, err := sheet.Parse(header.Filename, data)
	if err != nil {
		return nil, header.Filename, err
	}
	return s, header.Filename, nil
}

// parseTypes reads column types from a JSON array or a comma-separated
// list. An empty value means "infer from the data".
func parseTypes(raw string, s *sheet.Sheet) ([]core.ColumnType, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return core.InferColumnTypes(s.Headers, s.Rows), nil
	}

	var types []core.ColumnType
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &types); err != nil {
			return nil, core.ConfigurationFailure(err)
		}
		return types, nil
	}

	for _, part := range strings.Split(raw, ",") {
		t, err := core.ParseColumnType(part)
		if err != nil {
			return nil, core.ConfigurationFailure(err)
		}
		types = append(types, t)
	}
	return types, nil
}

// resolveUniqueID accepts a header name or a zero-based column index.
func resolveUniqueID(s *sheet.Sheet, raw string) int {
	if i := s.HeaderIndex(raw); i >= 0 {
		return i
	}
	if i, err := strconv.Atoi(raw); err == nil && i >= 0 && i < s.Width() {
		return i
	}
	return core.NoUniqueID
}

// readAttachments collects every "attachment:<id>" file part.
func readAttachments(form *multipart.Form) (core.AttachmentMap, error) {
	out := make(core.AttachmentMap)
	if form == nil {
		return out, nil
	}

	for name, headers := range form.File {
		id, ok := strings.CutPrefix(name, AttachmentPrefix)
		if !ok || len(headers) == 0 {
			continue
		}
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}

		fh := headers[0]
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open attachment %s: %w", fh.Filename, err)
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", fh.Filename, err)
		}

		out[id] = core.Attachment{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Content:     content,
		}
	}
	return out, nil
}

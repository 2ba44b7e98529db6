package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JonMunkholm/spbulk/internal/core"
	"github.com/JonMunkholm/spbulk/internal/sheet"
)

// readSheetFile parses the first worksheet of a .csv or .xlsx file.
func readSheetFile(path string) (*sheet.Sheet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return sheet.Parse(filepath.Base(path), data)
}

// columnIndex resolves a header name, or failing that a zero-based index.
// Headers are matched verbatim before the trimmed value is tried.
func columnIndex(s *sheet.Sheet, raw string) (int, bool) {
	if i := s.HeaderIndex(raw); i >= 0 {
		return i, true
	}
	trimmed := strings.TrimSpace(raw)
	if i := s.HeaderIndex(trimmed); i >= 0 {
		return i, true
	}
	if i, err := strconv.Atoi(trimmed); err == nil && i >= 0 && i < s.Width() {
		return i, true
	}
	return core.NoUniqueID, false
}

// resolveTypes infers a type for every column, then applies COL=TYPE
// overrides in order.
func resolveTypes(s *sheet.Sheet, overrides []string) ([]core.ColumnType, error) {
	types := core.InferColumnTypes(s.Headers, s.Rows)
	for _, o := range overrides {
		col, name, ok := strings.Cut(o, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --type %q, want COLUMN=TYPE", o)
		}
		i, ok := columnIndex(s, col)
		if !ok {
			return nil, fmt.Errorf("invalid --type %q: unknown column %q", o, col)
		}
		t, err := core.ParseColumnType(name)
		if err != nil {
			return nil, err
		}
		types[i] = t
	}
	return types, nil
}

// readAttachments loads ID=PATH specs into an AttachmentMap.
func readAttachments(specs []string) (core.AttachmentMap, error) {
	out := make(core.AttachmentMap, len(specs))
	for _, spec := range specs {
		id, path, ok := strings.Cut(spec, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" || path == "" {
			return nil, fmt.Errorf("invalid --attach %q, want ID=PATH", spec)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", path, err)
		}
		out[id] = core.Attachment{
			Name:        filepath.Base(path),
			ContentType: mime.TypeByExtension(filepath.Ext(path)),
			Content:     content,
		}
	}
	return out, nil
}

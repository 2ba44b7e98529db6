package core

import "github.com/JonMunkholm/spbulk/internal/sheet"

// InferColumnTypes assigns a default type to every header by scanning the
// whole column. Rules are applied in priority order:
//
//  1. any string cell longer than MaxTextLength characters: MultilineText
//  2. any cell that converts to a finite number: Number
//  3. otherwise: Text
//
// Currency and DateTime are never inferred.
func InferColumnTypes(headers []string, rows [][]sheet.Cell) []ColumnType {
	types := make([]ColumnType, len(headers))
	for i := range headers {
		types[i] = inferColumn(rows, i)
	}
	return types
}

func inferColumn(rows [][]sheet.Cell, col int) ColumnType {
	numeric := false
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		c := row[col]
		if c.Kind == sheet.KindString && c.Len() > MaxTextLength {
			return ColumnMultilineText
		}
		if !numeric {
			_, numeric = c.Float()
		}
	}
	if numeric {
		return ColumnNumber
	}
	return ColumnText
}

package history

import (
	"fmt"
	"strings"
)

// whereBuilder assembles a parameterised WHERE clause. Empty values are
// skipped so optional filters can be added unconditionally.
type whereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
}

func newWhereBuilder() *whereBuilder {
	return &whereBuilder{argIndex: 1}
}

// add appends "column = $n" when value is non-empty.
func (wb *whereBuilder) add(column, value string) {
	if value == "" {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s = $%d", column, wb.argIndex))
	wb.args = append(wb.args, value)
	wb.argIndex++
}

// addBool appends "column = $n" when value is set.
func (wb *whereBuilder) addBool(column string, value *bool) {
	if value == nil {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s = $%d", column, wb.argIndex))
	wb.args = append(wb.args, *value)
	wb.argIndex++
}

// addRange appends an inclusive range on column. Either bound may be nil.
func (wb *whereBuilder) addRange(column string, from, to any) {
	if from != nil {
		wb.conditions = append(wb.conditions, fmt.Sprintf("%s >= $%d", column, wb.argIndex))
		wb.args = append(wb.args, from)
		wb.argIndex++
	}
	if to != nil {
		wb.conditions = append(wb.conditions, fmt.Sprintf("%s <= $%d", column, wb.argIndex))
		wb.args = append(wb.args, to)
		wb.argIndex++
	}
}

// nextArgIndex is the placeholder number the next argument will take.
func (wb *whereBuilder) nextArgIndex() int {
	return wb.argIndex
}

// build returns the clause with a leading space, or "" and nil args when no
// condition was added.
func (wb *whereBuilder) build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}

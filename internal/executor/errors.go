package executor

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

// TimeoutHint is shown to users when the store does not answer in time.
const TimeoutHint = "Database query timed out. Please try a simpler query."

// ErrComputedColumn is matched by every *ComputedColumnError.
var ErrComputedColumn = errors.New("query references a computed column")

// computedColumns are values the model derives in one query and then
// mistakenly treats as stored columns in the next.
var computedColumns = []string{"final_status", "success_rate", "count"}

var missingColumnRe = regexp.MustCompile(`(?i)column\s+"?([a-z0-9_."]+?)"?\s+does not exist`)

// ComputedColumnError reports a query that failed because it referenced a
// derived value as a real column. The caller may regenerate the query once.
type ComputedColumnError struct {
	Column  string
	Message string
}

func (e *ComputedColumnError) Error() string {
	return fmt.Sprintf("query references computed column %q: %s", e.Column, e.Message)
}

func (e *ComputedColumnError) Is(target error) bool {
	return target == ErrComputedColumn
}

// ExecutionError is any other store failure.
type ExecutionError struct {
	Message    string
	Suggestion string
	Err        error
}

func (e *ExecutionError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("query execution failed: %s (did you mean %q?)", e.Message, e.Suggestion)
	}
	return "query execution failed: " + e.Message
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// classifyError turns a driver error into a ComputedColumnError or an ExecutionError.
func (e *Executor) classifyError(err error) error {
	msg := err.Error()
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		msg = pqErr.Message
	}
	lower := strings.ToLower(msg)

	undefinedColumn := (pqErr != nil && pqErr.Code == "42703") ||
		(strings.Contains(lower, "column") && strings.Contains(lower, "does not exist"))
	if !undefinedColumn {
		return &ExecutionError{Message: msg, Err: err}
	}

	column := missingColumn(msg)
	for _, computed := range computedColumns {
		if column == computed || (column == "" && strings.Contains(lower, computed)) {
			return &ComputedColumnError{Column: computed, Message: msg}
		}
	}

	execErr := &ExecutionError{Message: msg, Err: err}
	if column != "" && e.schema != nil && !e.schema.Has(column) {
		if near, ok := e.schema.Nearest(column); ok {
			execErr.Suggestion = near
		}
	}
	return execErr
}

// missingColumn extracts the unqualified column name from a "does not exist" message.
func missingColumn(msg string) string {
	m := missingColumnRe.FindStringSubmatch(msg)
	if m == nil {
		return ""
	}
	name := strings.Trim(m[1], `"`)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.Trim(strings.ToLower(name), `"`)
}

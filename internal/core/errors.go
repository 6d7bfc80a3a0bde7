package core

import (
	"errors"
	"fmt"

	"github.com/sqltalk/sqltalk/internal/sqldb"
)

// ErrNoResults signals an explicit empty-result condition. Plain zero-row
// executions are not an error; they get the fixed empty-result reply from
// the synthesizer instead.
var ErrNoResults = errors.New("no results found")

// GenerationError means the completion service failed while producing the
// SQL candidate. Fatal for the turn.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return "sql generation failed: " + e.Err.Error() }
func (e *GenerationError) Unwrap() error { return e.Err }

// SynthesisError means the completion service failed while producing the
// final answer. Fatal for the turn.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string { return "response synthesis failed: " + e.Err.Error() }
func (e *SynthesisError) Unwrap() error { return e.Err }

// ClassifyError maps a pipeline failure to the single user-facing message
// for that category. Full detail stays in the server log; the returned text
// never carries stack traces or connection settings.
func ClassifyError(err error) string {
	var execErr *sqldb.ExecError
	var connErr *sqldb.ConnectError

	switch {
	case errors.Is(err, ErrNoResults):
		return "No results found matching your criteria."
	case errors.As(err, &execErr):
		return fmt.Sprintf("Database error: %s. Please verify your query syntax.", execErr.Error())
	case errors.As(err, &connErr):
		return "Failed to connect to the database. Please check your connection settings."
	default:
		return "Sorry, I encountered an unexpected error. The technical details have been logged."
	}
}

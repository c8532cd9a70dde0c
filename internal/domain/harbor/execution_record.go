package harbor

import (
	"time"

	"github.com/google/uuid"
)

// Execution kinds recorded in the history.
const (
	ExecTypePython = "python"
	ExecTypeShell  = "shell"
)

// ExecutionRecord is one appended audit entry for a forwarded python or
// shell execution. The record itself is immutable; only the annotation
// fields (Description, Tags, Notes) may be set post-hoc by clients building
// a skill library.
type ExecutionRecord struct {
	ID        string
	SessionID string
	// ExecType is ExecTypePython or ExecTypeShell.
	ExecType string
	// Code holds the submitted python code, Command the shell command line;
	// exactly one of the two is set.
	Code            string
	Command         string
	Success         bool
	ExecutionTimeMS int64
	CreatedAt       time.Time

	Description string
	// Tags is a comma-separated list, e.g. "data-processing,pandas".
	Tags  string
	Notes string
}

// NewExecutionRecord returns a record with a fresh identifier.
func NewExecutionRecord(sessionID, execType string) *ExecutionRecord {
	return &ExecutionRecord{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		ExecType:  execType,
		CreatedAt: time.Now().UTC(),
	}
}

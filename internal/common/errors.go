// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")
	ErrStoreBusy      = errors.New("store busy")

	// Batch errors.
	ErrBatchCancelled = errors.New("batch cancelled")
	ErrNoRows         = errors.New("no rows to import")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// RowParseError reports a bad date or amount in a single row. The row is
// skipped and the batch continues; the count is surfaced in the final
// report.
type RowParseError struct {
	Err   error
	Field string
	Value string
	Row   int
}

func (e *RowParseError) Error() string {
	return fmt.Sprintf("row %d: invalid %s %q: %v", e.Row, e.Field, e.Value, e.Err)
}

func (e *RowParseError) Unwrap() error {
	return e.Err
}

// MappingError reports a required field left unmapped. It is fatal to the
// whole batch before processing starts.
type MappingError struct {
	Field string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("column mapping is missing required field %q", e.Field)
}

// CommitError reports a chunk that failed to persist. Remaining chunks are
// abandoned; Committed says how many rows made it into the ledger first.
type CommitError struct {
	Err       error
	Chunk     int
	Committed int
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("chunk %d failed after %d rows committed: %v", e.Chunk, e.Committed, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrStoreBusy) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}

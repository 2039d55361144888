package shared

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds shared across the ledger engine. Domain packages wrap these so
// callers can branch with errors.Is while transport maps them to responses.
var (
	// ErrValidation indicates malformed or rule-violating input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced aggregate does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a state-machine or uniqueness violation.
	ErrConflict = errors.New("conflict")
	// ErrPeriodClosed indicates a posting against a non-open fiscal period.
	ErrPeriodClosed = errors.New("fiscal period is not open")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// Validation builds a ValidationError with the supplied message.
func Validation(msg string) error { return &kindError{kind: ErrValidation, msg: msg} }

// Validationf builds a ValidationError with a formatted message.
func Validationf(format string, args ...any) error {
	return &kindError{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a NotFoundError with the supplied message.
func NotFound(msg string) error { return &kindError{kind: ErrNotFound, msg: msg} }

// NotFoundf builds a NotFoundError with a formatted message.
func NotFoundf(format string, args ...any) error {
	return &kindError{kind: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

// Conflict builds a ConflictError naming the conflicting condition.
func Conflict(msg string) error { return &kindError{kind: ErrConflict, msg: msg} }

// Conflictf builds a ConflictError with a formatted message.
func Conflictf(format string, args ...any) error {
	return &kindError{kind: ErrConflict, msg: fmt.Sprintf(format, args...)}
}

// PeriodClosed builds a PeriodClosedError with a formatted message.
func PeriodClosed(format string, args ...any) error {
	return &kindError{kind: ErrPeriodClosed, msg: fmt.Sprintf(format, args...)}
}

// ChecklistError aggregates every unmet close condition so operators see the
// full list in one response instead of resubmitting to discover the next one.
type ChecklistError struct {
	Subject  string
	Failures []string
}

func (e *ChecklistError) Error() string {
	return fmt.Sprintf("%s blocked: %s", e.Subject, strings.Join(e.Failures, "; "))
}

// Is reports ChecklistError as a ConflictError for transport mapping.
func (e *ChecklistError) Is(target error) bool { return target == ErrConflict }

package engine

import "fmt"

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...any) ValidationError {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// StateError reports a status that is either outside the known set or does
// not permit the attempted operation. Op names the operation in the latter
// case.
type StateError struct {
	Status string
	Op     string
}

func (e StateError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("unknown status %q", e.Status)
	}
	return fmt.Sprintf("status %q does not allow %s", e.Status, e.Op)
}

// NotFoundError reports a missing entity by kind and ID.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// NotAvailableError reports a session that is not open to applications.
type NotAvailableError struct {
	SessionID string
}

func (e NotAvailableError) Error() string {
	return fmt.Sprintf("session %s is not available on the marketplace", e.SessionID)
}

// AlreadyAppliedError reports a duplicate application by the same operator.
type AlreadyAppliedError struct {
	SessionID  string
	OperatorID string
}

func (e AlreadyAppliedError) Error() string {
	return fmt.Sprintf("operator %s already applied to session %s", e.OperatorID, e.SessionID)
}

// PersistenceError wraps a storage failure for a named operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }

// Package errs holds the error types returned by the stock ledger services.
// Callers branch on them with errors.As.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports malformed or out-of-range input. No state was changed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a missing referenced entity.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// InsufficientStockError reports a sale that would drive stock below zero.
type InsufficientStockError struct {
	ItemNumber int
	Available  int
	Requested  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %d: only %d available, %d requested", e.ItemNumber, e.Available, e.Requested)
}

// ConflictError reports a concurrent modification; the caller may retry.
type ConflictError struct {
	Entity string
	Key    string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting update on %s %s: %s", e.Entity, e.Key, e.Reason)
}

// PersistenceError reports a failed store operation. RolledBack is true when every
// write of the operation was undone; otherwise Pending lists the writes that are
// still applied and need manual reconciliation.
type PersistenceError struct {
	Op         string
	Step       string
	RolledBack bool
	Pending    []string
	Err        error
}

func (e *PersistenceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s failed", e.Op, e.Step)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if len(e.Pending) > 0 {
		fmt.Fprintf(&b, " (still applied: %s)", strings.Join(e.Pending, "; "))
	}
	return b.String()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence wraps err as a PersistenceError for the given operation step.
func Persistence(op, step string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Step: step, Err: err}
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFound builds a NotFoundError.
func NotFound(entity, key string) *NotFoundError {
	return &NotFoundError{Entity: entity, Key: key}
}

// Wrap passes the typed errors of this package through unchanged and turns any
// other failure into a PersistenceError for op/step.
func Wrap(op, step string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *ValidationError
		nf *NotFoundError
		is *InsufficientStockError
		ce *ConflictError
		pe *PersistenceError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &nf), errors.As(err, &is), errors.As(err, &ce), errors.As(err, &pe):
		return err
	}
	return Persistence(op, step, err)
}

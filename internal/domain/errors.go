package domain

import (
	"errors"
	"fmt"
)

// Error types for consistent error handling across the scorer.

// ErrMissingField indicates a required snapshot field was absent or null.
type ErrMissingField struct {
	Field string
}

func (e *ErrMissingField) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// ErrMalformedTransactions indicates the transaction list, or one of its
// records, could not be interpreted. Index is -1 when the list itself is bad.
type ErrMalformedTransactions struct {
	Index  int
	Field  string
	Reason string
}

func (e *ErrMalformedTransactions) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("malformed transactions: %s", e.Reason)
	}
	if e.Field == "" {
		return fmt.Sprintf("malformed transaction [%d]: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("malformed transaction [%d] field '%s': %s", e.Index, e.Field, e.Reason)
}

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrUnauthorized indicates an invalid or missing service token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrUnavailable indicates the requested capability is not configured.
type ErrUnavailable struct {
	Capability string
}

func (e *ErrUnavailable) Error() string {
	return fmt.Sprintf("%s unavailable: backend not configured", e.Capability)
}

// IsInputError reports whether err is a deterministic function of the
// request payload. Such errors are never retried.
func IsInputError(err error) bool {
	var (
		missing   *ErrMissingField
		malformed *ErrMalformedTransactions
		invalid   *ErrValidation
		notFound  *ErrNotFound
	)
	return errors.As(err, &missing) ||
		errors.As(err, &malformed) ||
		errors.As(err, &invalid) ||
		errors.As(err, &notFound)
}

// ErrReadOnly indicates the configured snapshot source cannot store data.
type ErrReadOnly struct {
	Backend string
}

func (e *ErrReadOnly) Error() string {
	return fmt.Sprintf("snapshot backend %q is read-only", e.Backend)
}

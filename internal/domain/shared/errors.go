// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrFutureTimestamp = errors.New("timestamp cannot be in the future")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrImmutable       = errors.New("entity is immutable")

	// Derivation errors
	ErrDataIntegrity      = errors.New("data integrity violation")
	ErrInvalidRequirement = errors.New("invalid achievement requirement")
	ErrInvalidCatalog     = errors.New("invalid catalog")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrLockNotAcquired        = errors.New("lock not acquired")

	// Infrastructure errors
	ErrTransientStore     = errors.New("transient store error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "streak", "score", "achievement"
	Op      string // Operation that failed, e.g., "Compute", "Evaluate"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// IntegrityError builds a data-integrity error with a formatted message.
func IntegrityError(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrDataIntegrity, fmt.Sprintf(format, args...))
}

// TransientError marks a store failure as retryable.
func TransientError(domain, op string, err error) *DomainError {
	return WrapError(domain, op, ErrTransientStore, "store operation failed", err)
}

// Habit domain errors
var (
	ErrHabitNotFound     = NewDomainError("habit", "Find", ErrNotFound, "habit not found")
	ErrHabitInactive     = NewDomainError("habit", "CheckStatus", ErrInvalidState, "habit is not active")
	ErrEntryNotFound     = NewDomainError("habit", "FindEntry", ErrNotFound, "entry not found")
	ErrEntryExists       = NewDomainError("habit", "SaveEntry", ErrAlreadyExists, "entry already exists for this habit and date")
	ErrEntryImmutable    = NewDomainError("habit", "SaveEntry", ErrImmutable, "entries can only be corrected on the same day")
	ErrInvalidStatus     = NewDomainError("habit", "Validate", ErrInvalidInput, "invalid entry status")
	ErrInvalidCategory   = NewDomainError("habit", "Validate", ErrInvalidInput, "invalid habit category")
	ErrInvalidFrequency  = NewDomainError("habit", "Validate", ErrInvalidInput, "invalid habit frequency")
	ErrEntryInFuture     = NewDomainError("habit", "Validate", ErrFutureTimestamp, "entry date is in the future")
	ErrHabitUserMismatch = NewDomainError("habit", "Validate", ErrInvalidInput, "habit does not belong to user")
)

// Level domain errors
var (
	ErrEmptyLevelTable    = NewDomainError("level", "NewTable", ErrInvalidCatalog, "level table is empty")
	ErrLevelTableOrder    = NewDomainError("level", "NewTable", ErrInvalidCatalog, "required XP must be strictly increasing")
	ErrLevelTableBase     = NewDomainError("level", "NewTable", ErrInvalidCatalog, "level 1 must require 0 XP")
	ErrNegativeTotalXP    = NewDomainError("level", "Compute", ErrNegativeValue, "total XP cannot be negative")
	ErrLevelDataNotFound  = NewDomainError("level", "Find", ErrNotFound, "level data not found")
)

// Achievement domain errors
var (
	ErrUnknownRequirementKind = NewDomainError("achievement", "Validate", ErrInvalidRequirement, "unknown requirement kind")
	ErrDuplicateAchievement   = NewDomainError("achievement", "NewCatalog", ErrInvalidCatalog, "duplicate achievement code")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrFutureTimestamp)
}

// IsDataIntegrity checks if the error is a data-integrity violation.
// Such errors fail the recompute and must not be retried automatically.
func IsDataIntegrity(err error) bool {
	return errors.Is(err, ErrDataIntegrity)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	if IsDataIntegrity(err) {
		return false
	}
	return errors.Is(err, ErrTransientStore) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrLockNotAcquired)
}

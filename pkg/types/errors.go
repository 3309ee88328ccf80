// Package types provides the shared data types for Shelf: records, store
// and index definitions, record ids, predicates, and the structured error
// type used across components.
package types

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategorySession ErrorCategory = "SESSION"
	ErrCategorySchema  ErrorCategory = "SCHEMA"
	ErrCategoryTxn     ErrorCategory = "TXN"
	ErrCategoryQuery   ErrorCategory = "QUERY"
	ErrCategoryStore   ErrorCategory = "STORE"
	ErrCategoryEngine  ErrorCategory = "ENGINE"
)

// Error codes for each category.
const (
	// Session codes
	CodeNotOpen        = "NOT_OPEN"
	CodeDuplicateStore = "DUPLICATE_STORE"
	CodeInvariant      = "INVARIANT_VIOLATION"

	// Schema codes
	CodeInvalidSchema = "INVALID_SCHEMA"

	// Txn codes
	CodeTxnAborted = "TXN_ABORTED"

	// Query codes
	CodeIndexNotFound = "INDEX_NOT_FOUND"

	// Shared codes
	CodeNotFound = "NOT_FOUND"

	// Engine codes
	CodeConstraint    = "CONSTRAINT_VIOLATION"
	CodeEngineFailure = "ENGINE_FAILURE"
	CodeVersionError  = "VERSION_ERROR"
)

// Error is the structured error type used throughout the system.
type Error struct {
	Category ErrorCategory
	Code     string
	Message  string
	Cause    error
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new Error.
func New(category ErrorCategory, code, message string) *Error {
	return &Error{Category: category, Code: code, Message: message}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{Category: category, Code: code, Message: message, Cause: cause}
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a shelf Error.
func GetCategory(err error) ErrorCategory {
	var se *Error
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a shelf Error.
func GetCode(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Convenience constructors for the error taxonomy.

// NewNotOpen reports an operation attempted before a successful open.
func NewNotOpen(message string) *Error {
	return New(ErrCategorySession, CodeNotOpen, message)
}

// NewNotFound reports a reference to a store, collection, or index that was
// never registered or created.
func NewNotFound(category ErrorCategory, message string) *Error {
	return New(category, CodeNotFound, message)
}

// NewDuplicateStore reports a store name registered twice.
func NewDuplicateStore(name string) *Error {
	return New(ErrCategorySession, CodeDuplicateStore, fmt.Sprintf("store %q already registered", name))
}

// NewIndexNotFound reports a predicate field with no matching index.
func NewIndexNotFound(collection, field string) *Error {
	return New(ErrCategoryQuery, CodeIndexNotFound,
		fmt.Sprintf("no index for field %q on collection %q", field, collection))
}

// NewTxnAborted reports a transaction the engine rolled back; every pending
// operation on that scope fails with it and no partial writes commit.
func NewTxnAborted(scopeID string, cause error) *Error {
	return Wrap(ErrCategoryTxn, CodeTxnAborted, fmt.Sprintf("transaction scope %s aborted", scopeID), cause)
}

// NewInvariant reports caller misuse, e.g. deleting an uninitialized database.
func NewInvariant(message string) *Error {
	return New(ErrCategorySession, CodeInvariant, message)
}

// NewInvalidSchema reports an unparseable or contradictory schema string.
func NewInvalidSchema(message string) *Error {
	return New(ErrCategorySchema, CodeInvalidSchema, message)
}

// Categorization helpers for boundary logic.

// IsNotFound reports whether err carries the NOT_FOUND code in any category.
func IsNotFound(err error) bool { return GetCode(err) == CodeNotFound }

// IsNotOpen reports whether err is a not-open failure.
func IsNotOpen(err error) bool { return GetCode(err) == CodeNotOpen }

// IsAborted reports whether err is a transaction-scope abort.
func IsAborted(err error) bool { return GetCode(err) == CodeTxnAborted }

// IsIndexNotFound reports whether err is a missing-index query failure.
func IsIndexNotFound(err error) bool { return GetCode(err) == CodeIndexNotFound }

// IsDuplicateStore reports whether err is a duplicate store registration.
func IsDuplicateStore(err error) bool { return GetCode(err) == CodeDuplicateStore }

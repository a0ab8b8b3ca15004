package accounts

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAvailableAccount is returned when neither tier has a selectable account.
	ErrNoAvailableAccount = errors.New("no available account")

	// ErrNotFound is returned when an account does not exist or was deleted.
	ErrNotFound = errors.New("account not found")
)

// StorageError represents an error from the account store.
type StorageError struct {
	Backend   string // Storage driver ("sqlite", "sqlite3")
	Operation string // Operation that failed ("get", "increment", ...)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

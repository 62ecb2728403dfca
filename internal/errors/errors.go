package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for type checking
var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrNotInitialized  = errors.New("not initialized")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidMove     = errors.New("invalid move")
	ErrPersistence     = errors.New("persistence failure")
	ErrStaleSnapshot   = errors.New("stale snapshot")
	ErrUnauthenticated = errors.New("no actor identity")
)

// NotFoundError indicates a resource doesn't exist.
type NotFoundError struct {
	Resource string // "item", "group", "board"
	ID       string // The identifier that wasn't found
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// AlreadyExistsError indicates a resource already exists.
type AlreadyExistsError struct {
	Resource string
	ID       string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Resource, e.ID)
}

func (e *AlreadyExistsError) Unwrap() error {
	return ErrAlreadyExists
}

// ValidationError indicates invalid user input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotInitializedError indicates kanflow isn't set up in the directory.
type NotInitializedError struct {
	Path string
}

func (e *NotInitializedError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("kanflow not initialized in %s (run 'kanflow init')", e.Path)
	}
	return "kanflow not initialized (run 'kanflow init')"
}

func (e *NotInitializedError) Unwrap() error {
	return ErrNotInitialized
}

// InvalidMoveError means a move was refused before anything was computed:
// a group policy forbids it or it references an unknown item or group.
// Callers treat it as a cancelled drag, not as a failure.
type InvalidMoveError struct {
	ItemID string
	Reason string
	Cause  error // Underlying lookup error, if any
}

func (e *InvalidMoveError) Error() string {
	return fmt.Sprintf("invalid move of %s: %s", e.ItemID, e.Reason)
}

func (e *InvalidMoveError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrInvalidMove, e.Cause}
	}
	return []error{ErrInvalidMove}
}

// PersistenceError wraps a failed batch write. The optimistic state has
// already been rolled back when a caller sees one; the move may be retried
// by the user.
type PersistenceError struct {
	BatchID string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("could not persist move (batch %s): %v", e.BatchID, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// Helper constructors for common cases

func ItemNotFound(id string) error {
	return &NotFoundError{Resource: "item", ID: id}
}

func BoardNotFound(id string) error {
	return &NotFoundError{Resource: "board", ID: id}
}

func GroupNotFound(id, board string) error {
	return &NotFoundError{Resource: "group", ID: fmt.Sprintf("%s (in board %s)", id, board)}
}

func BoardAlreadyExists(name string) error {
	return &AlreadyExistsError{Resource: "board", ID: name}
}

func GroupAlreadyExists(title, board string) error {
	return &AlreadyExistsError{Resource: "group", ID: fmt.Sprintf("%s (in board %s)", title, board)}
}

func InvalidField(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func PolicyViolation(itemID, reason string) error {
	return &InvalidMoveError{ItemID: itemID, Reason: reason}
}

// IsNotFound checks if an error is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already-exists error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsInvalidMove checks if an error is a refused move.
func IsInvalidMove(err error) bool {
	return errors.Is(err, ErrInvalidMove)
}

// IsPersistence checks if an error is a failed batch write.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

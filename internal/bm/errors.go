package bm

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a location or object does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when a location must not exist but does.
	ErrExists = errors.New("already exists")
	// ErrNotEmpty is returned when deleting a directory that still has children.
	ErrNotEmpty = errors.New("directory not empty")
	// ErrCopyTooLarge is returned when a server-side copy exceeds the backend's size ceiling.
	ErrCopyTooLarge = errors.New("object too large to copy")
	// ErrInvalidConfig marks configuration errors. They are fatal and never retried.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// StorageError is the typed persistence error returned by every StorageProvider.
type StorageError struct {
	Op       string
	Location Location
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Location, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err with the operation and location that failed.
// It returns nil if err is nil.
func NewStorageError(op string, loc Location, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) && se.Op == op && se.Location.Equal(loc) {
		return err
	}
	return &StorageError{Op: op, Location: loc, Err: err}
}

package index

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the index document does not exist.
	ErrNotFound = errors.New("index not found")
	// ErrAlreadyExists is returned by CreateIndex when the index exists and DeleteIfExists is false.
	ErrAlreadyExists = errors.New("index already exists")
	// ErrUpdateInProgress is returned by BeginUpdate while another update is open.
	ErrUpdateInProgress = errors.New("update already in progress")
	// ErrNoUpdateInProgress is returned by EndUpdate and CancelUpdate when no update is open.
	ErrNoUpdateInProgress = errors.New("no update in progress")
	// ErrVectorRequired is returned for items or queries without a vector.
	ErrVectorRequired = errors.New("vector is required")
	// ErrZeroVector is returned for vectors whose norm is zero.
	ErrZeroVector = errors.New("vector has zero norm")
	// ErrDuplicateID is returned by InsertItem when the id is already present.
	ErrDuplicateID = errors.New("item with this id already exists")
)

// DimensionError reports a vector whose length differs from the index dimensionality.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: got %d, expected %d", e.Actual, e.Expected)
}

// StorageError wraps a filesystem or encoding failure.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

package bm

import (
	"context"
	"io"
)

// WriteMode selects how NewWriter treats existing content.
type WriteMode int

const (
	// WriteTruncate creates the location or replaces its content.
	WriteTruncate WriteMode = iota
	// WriteAppend creates the location or appends to its content.
	WriteAppend
	// WriteCreateNew creates the location and fails with ErrExists if it is already present.
	WriteCreateNew
)

// StorageProvider is the hierarchical storage contract shared by the
// filesystem and object-store backends. Callers depend only on this
// interface; the backend is chosen once by the provider factory.
//
// Every method may fail with a *StorageError.
type StorageProvider interface {
	// Write ensures folder exists, then stores content at file, fully
	// overwriting any prior content.
	Write(ctx context.Context, folder, file Location, content []byte) error

	// Read returns the content of a file as text.
	Read(ctx context.Context, loc Location) (string, error)

	// Delete removes a file or an empty directory. Deleting a location
	// that does not exist is not an error; deleting a non-empty directory
	// fails with ErrNotEmpty.
	Delete(ctx context.Context, loc Location) error

	// Exists reports whether loc is a file or a directory.
	Exists(ctx context.Context, loc Location) (bool, error)

	// List returns the immediate children of a directory, sorted.
	List(ctx context.Context, loc Location) ([]Location, error)

	// Walk returns root and every location below it up to maxDepth
	// segments deep, in depth-first order with lexically sorted siblings.
	// When ordered is true the result is re-sorted by creation time, oldest
	// first, on a best-effort basis. Symbolic links are never followed.
	Walk(ctx context.Context, root Location, maxDepth int, ordered bool) ([]Location, error)

	// IsDir and IsFile are mutually exclusive; both are false for a
	// location that does not exist.
	IsDir(ctx context.Context, loc Location) (bool, error)
	IsFile(ctx context.Context, loc Location) (bool, error)

	// Length returns the size of a file in bytes.
	Length(ctx context.Context, loc Location) (int64, error)

	// NewReader opens a file for streaming reads. The caller must close it.
	NewReader(ctx context.Context, loc Location) (io.ReadCloser, error)

	// NewWriter opens a file for streaming writes. Content is durable only
	// after Close returns nil.
	NewWriter(ctx context.Context, loc Location, mode WriteMode) (io.WriteCloser, error)

	// Mkdir creates one directory level; MkdirAll creates every missing ancestor.
	Mkdir(ctx context.Context, loc Location) error
	MkdirAll(ctx context.Context, loc Location) error

	// Copy duplicates src at dst. It fails with ErrExists if dst exists and
	// replace is false, and reports whether an existing dst was overwritten.
	Copy(ctx context.Context, src, dst Location, replace bool) (bool, error)

	// SetReservedSpace sets the directory holding the reserved-space placeholder.
	SetReservedSpace(dir Location)

	// CreateDummyFile reserves size bytes by writing a placeholder file.
	// DeleteDummyFile releases it. Both are no-ops where space reservation
	// is meaningless.
	CreateDummyFile(ctx context.Context, size int64) error
	DeleteDummyFile(ctx context.Context) error
}

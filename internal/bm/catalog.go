package bm

import (
	"context"
	"time"
)

// ArchiveRecord describes an exported archive as stored in the catalog.
type ArchiveRecord struct {
	ID          string
	OperationID int64 // zero when the export was not tied to a persisted operation
	ManagerID   string
	BackupName  string
	Location    string
	Checksum    string // hex xxhash64 of the compressed stream
	Size        int64
	Entries     int
	Encrypted   bool
	CreatedAt   time.Time
}

// Operation is one recorded CLI invocation that mutated state.
type Operation struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time
	Operation  string
	Parameters string
	Status     string
}

// Catalog records exported archives and the operations that produced them.
type Catalog interface {
	// RecordArchive stores a new archive record. rec.ID must be set.
	RecordArchive(ctx context.Context, rec *ArchiveRecord) error

	// ListArchives returns archives newest first. An empty managerID lists all.
	ListArchives(ctx context.Context, managerID string) ([]*ArchiveRecord, error)

	// CreateOperation inserts a running operation and returns it with its ID.
	CreateOperation(ctx context.Context, operation, parameters string) (*Operation, error)

	// FinishOperation stamps the operation finished with the given status.
	FinishOperation(ctx context.Context, id int64, status string) error

	// ListOperations returns up to limit operations, newest first.
	ListOperations(ctx context.Context, limit int) ([]*Operation, error)

	// CheckMigrations verifies the schema is current.
	CheckMigrations() error

	// BackupTo writes a consistent snapshot of the catalog to destPath.
	BackupTo(destPath string) error

	Close() error
}

package database

import (
	"context"
	"database/sql"
	"fmt"

	"bm-go/internal/bm"
	"bm-go/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements bm.Catalog using SQLite.
type SQLiteDatabase struct {
	db    *sql.DB
	path  string
	clock bm.Clock
}

// NewSQLiteDatabase opens the database at path and migrates it to the latest schema.
// path can be a file path or ":memory:" for in-memory database.
// A nil clock uses bm.RealClock.
func NewSQLiteDatabase(path string, clock bm.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return NewSQLiteDatabaseFromDB(db, path, clock), nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured and migrated.
func NewSQLiteDatabaseFromDB(db *sql.DB, path string, clock bm.Clock) *SQLiteDatabase {
	if clock == nil {
		clock = bm.RealClock{}
	}
	return &SQLiteDatabase{db: db, path: path, clock: clock}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// This is exported for use in tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to ":memory:" would see its own empty database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Archive operations

func (s *SQLiteDatabase) RecordArchive(ctx context.Context, rec *bm.ArchiveRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("recording archive: missing id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock.Now().UTC()
	}

	var opID sql.NullInt64
	if rec.OperationID != 0 {
		opID = sql.NullInt64{Int64: rec.OperationID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO archives (id, operation_id, manager_id, backup_name, location, checksum, size, entries, encrypted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, opID, rec.ManagerID, rec.BackupName, rec.Location,
		rec.Checksum, rec.Size, rec.Entries, rec.Encrypted, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording archive: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListArchives(ctx context.Context, managerID string) ([]*bm.ArchiveRecord, error) {
	query := `SELECT id, operation_id, manager_id, backup_name, location, checksum, size, entries, encrypted, created_at
		FROM archives`
	var args []any
	if managerID != "" {
		query += " WHERE manager_id = ?"
		args = append(args, managerID)
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing archives: %w", err)
	}
	defer rows.Close()

	var result []*bm.ArchiveRecord
	for rows.Next() {
		var rec bm.ArchiveRecord
		var opID sql.NullInt64
		if err := rows.Scan(&rec.ID, &opID, &rec.ManagerID, &rec.BackupName, &rec.Location,
			&rec.Checksum, &rec.Size, &rec.Entries, &rec.Encrypted, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning archive: %w", err)
		}
		rec.OperationID = opID.Int64
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing archives: %w", err)
	}
	return result, nil
}

// Operation tracking

func (s *SQLiteDatabase) CreateOperation(ctx context.Context, operation, parameters string) (*bm.Operation, error) {
	op := &bm.Operation{
		StartedAt:  s.clock.Now().UTC(),
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO operations (started_at, operation, parameters, status) VALUES (?, ?, ?, ?)`,
		op.StartedAt, op.Operation, op.Parameters, op.Status)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	op.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	return op, nil
}

func (s *SQLiteDatabase) FinishOperation(ctx context.Context, id int64, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE operations SET finished_at = ?, status = ? WHERE id = ?`,
		s.clock.Now().UTC(), status, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finishing operation %d: %w", id, bm.ErrNotFound)
	}
	return nil
}

func (s *SQLiteDatabase) ListOperations(ctx context.Context, limit int) ([]*bm.Operation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, operation, parameters, status
		 FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var result []*bm.Operation
	for rows.Next() {
		var op bm.Operation
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.StartedAt, &finished, &op.Operation, &op.Parameters, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			op.FinishedAt = &t
		}
		result = append(result, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return result, nil
}

// Path returns the database file path, or ":memory:".
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements bm.Catalog interface
var _ bm.Catalog = (*SQLiteDatabase)(nil)

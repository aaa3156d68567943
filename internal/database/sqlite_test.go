package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"bm-go/internal/bm"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

// newTestDB creates a new in-memory database with schema applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(":memory:", &stepClock{now: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestSQLiteDatabase_Operations(t *testing.T) {
	ctx := context.Background()

	t.Run("create assigns increasing ids", func(t *testing.T) {
		db := newTestDB(t)

		first, err := db.CreateOperation(ctx, "export", "m1/b1")
		if err != nil {
			t.Fatalf("CreateOperation() error = %v", err)
		}
		second, err := db.CreateOperation(ctx, "import", "")
		if err != nil {
			t.Fatalf("CreateOperation() error = %v", err)
		}
		if first.ID == 0 || second.ID <= first.ID {
			t.Errorf("ids = %d, %d, want positive and increasing", first.ID, second.ID)
		}
		if first.Status != "running" {
			t.Errorf("Status = %q, want %q", first.Status, "running")
		}
	})

	t.Run("finish and list newest first", func(t *testing.T) {
		db := newTestDB(t)

		op1, err := db.CreateOperation(ctx, "export", "m1/b1")
		if err != nil {
			t.Fatalf("CreateOperation() error = %v", err)
		}
		op2, err := db.CreateOperation(ctx, "import", "archive.tar.gz")
		if err != nil {
			t.Fatalf("CreateOperation() error = %v", err)
		}
		if err := db.FinishOperation(ctx, op1.ID, "success"); err != nil {
			t.Fatalf("FinishOperation() error = %v", err)
		}

		ops, err := db.ListOperations(ctx, 10)
		if err != nil {
			t.Fatalf("ListOperations() error = %v", err)
		}
		if len(ops) != 2 {
			t.Fatalf("ListOperations() returned %d, want 2", len(ops))
		}
		if ops[0].ID != op2.ID || ops[1].ID != op1.ID {
			t.Errorf("order = [%d %d], want [%d %d]", ops[0].ID, ops[1].ID, op2.ID, op1.ID)
		}
		if ops[0].FinishedAt != nil {
			t.Errorf("unfinished operation has FinishedAt = %v", ops[0].FinishedAt)
		}
		if ops[1].FinishedAt == nil || ops[1].Status != "success" {
			t.Errorf("finished operation = %+v, want success with FinishedAt", ops[1])
		}
		if ops[1].Parameters != "m1/b1" {
			t.Errorf("Parameters = %q, want %q", ops[1].Parameters, "m1/b1")
		}
	})

	t.Run("list honours limit", func(t *testing.T) {
		db := newTestDB(t)
		for i := 0; i < 3; i++ {
			if _, err := db.CreateOperation(ctx, "export", ""); err != nil {
				t.Fatalf("CreateOperation() error = %v", err)
			}
		}
		ops, err := db.ListOperations(ctx, 2)
		if err != nil {
			t.Fatalf("ListOperations() error = %v", err)
		}
		if len(ops) != 2 {
			t.Errorf("ListOperations(2) returned %d", len(ops))
		}
	})

	t.Run("finish unknown operation", func(t *testing.T) {
		db := newTestDB(t)
		err := db.FinishOperation(ctx, 99, "error")
		if !errors.Is(err, bm.ErrNotFound) {
			t.Errorf("FinishOperation() error = %v, want ErrNotFound", err)
		}
	})
}

func TestSQLiteDatabase_Archives(t *testing.T) {
	ctx := context.Background()

	t.Run("record and list", func(t *testing.T) {
		db := newTestDB(t)

		op, err := db.CreateOperation(ctx, "export", "m1/b1")
		if err != nil {
			t.Fatalf("CreateOperation() error = %v", err)
		}

		recs := []*bm.ArchiveRecord{
			{ID: "a-1", OperationID: op.ID, ManagerID: "m1", BackupName: "b1", Location: "exports/one.tar.gz", Checksum: "0011223344556677", Size: 120, Entries: 4, Encrypted: true},
			{ID: "a-2", ManagerID: "m2", BackupName: "b1", Location: "exports/two.tar.gz", Checksum: "8899aabbccddeeff", Size: 64, Entries: 3},
			{ID: "a-3", ManagerID: "m1", BackupName: "b2", Location: "exports/three.tar.gz", Checksum: "ffffffffffffffff", Size: 10, Entries: 2},
		}
		for _, rec := range recs {
			if err := db.RecordArchive(ctx, rec); err != nil {
				t.Fatalf("RecordArchive(%s) error = %v", rec.ID, err)
			}
			if rec.CreatedAt.IsZero() {
				t.Errorf("RecordArchive(%s) left CreatedAt unset", rec.ID)
			}
		}

		all, err := db.ListArchives(ctx, "")
		if err != nil {
			t.Fatalf("ListArchives() error = %v", err)
		}
		if len(all) != 3 || all[0].ID != "a-3" || all[2].ID != "a-1" {
			t.Fatalf("ListArchives() = %d records, want newest first a-3..a-1", len(all))
		}

		m1, err := db.ListArchives(ctx, "m1")
		if err != nil {
			t.Fatalf("ListArchives(m1) error = %v", err)
		}
		if len(m1) != 2 {
			t.Fatalf("ListArchives(m1) returned %d, want 2", len(m1))
		}
		got := m1[1]
		if got.OperationID != op.ID || !got.Encrypted || got.Size != 120 || got.Entries != 4 || got.Checksum != "0011223344556677" {
			t.Errorf("ListArchives(m1)[1] = %+v", got)
		}
		if m1[0].OperationID != 0 {
			t.Errorf("OperationID = %d, want 0", m1[0].OperationID)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		db := newTestDB(t)
		if err := db.RecordArchive(ctx, &bm.ArchiveRecord{ManagerID: "m1"}); err == nil {
			t.Error("RecordArchive() expected error for missing id")
		}
	})

	t.Run("unknown operation violates foreign key", func(t *testing.T) {
		db := newTestDB(t)
		err := db.RecordArchive(ctx, &bm.ArchiveRecord{ID: "a-1", OperationID: 7, ManagerID: "m1", BackupName: "b1", Location: "x"})
		if err == nil {
			t.Error("RecordArchive() expected foreign key error")
		}
	})
}

func TestSQLiteDatabase_BackupTo(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if err := db.RecordArchive(ctx, &bm.ArchiveRecord{ID: "a-1", ManagerID: "m1", BackupName: "b1", Location: "x", Checksum: "00"}); err != nil {
		t.Fatalf("RecordArchive() error = %v", err)
	}

	dest := filepath.Join(t.TempDir(), "snapshot.db")
	if err := db.BackupTo(dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	snap, err := NewSQLiteDatabase(dest, nil)
	if err != nil {
		t.Fatalf("opening snapshot: %v", err)
	}
	defer snap.Close()

	recs, err := snap.ListArchives(ctx, "")
	if err != nil {
		t.Fatalf("ListArchives() error = %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "a-1" {
		t.Errorf("snapshot archives = %v, want [a-1]", recs)
	}
}

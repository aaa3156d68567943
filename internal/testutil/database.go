package testutil

import (
	"testing"

	"bm-go/internal/bm"
	"bm-go/internal/database"
)

// NewTestCatalog creates a new in-memory SQLite catalog with schema applied.
// The catalog is automatically closed when the test completes.
func NewTestCatalog(t *testing.T, clock bm.Clock) bm.Catalog {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

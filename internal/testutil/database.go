package testutil

import (
	"testing"

	"dtb-go/internal/database"
)

// NewTestDatabase returns a migrated in-memory history that is closed when
// the test completes.
func NewTestDatabase(t testing.TB) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("opening history: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

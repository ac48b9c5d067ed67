package migrations

import (
	"database/sql"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Migrate up
	err := MigrateUp(db)
	if err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// Verify tables were created
	tables := []string{"operations", "transfers", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}
}

func TestCurrent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	st, err := Current(db)
	if err != nil {
		t.Fatalf("Current() on fresh database: %v", err)
	}
	if st.Version != 0 || st.Latest != 1 || st.Dirty {
		t.Errorf("Current() = %+v, want version 0 of latest 1", st)
	}
	if err := CheckDBMigrationStatus(db); err == nil || !strings.Contains(err.Error(), "no schema version") {
		t.Errorf("CheckDBMigrationStatus() error = %v, want no schema version", err)
	}

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	st, err = Current(db)
	if err != nil {
		t.Fatalf("Current() after migration: %v", err)
	}
	if st.Version != st.Latest {
		t.Errorf("Current() = %+v, want version == latest", st)
	}
}

func TestStatus_Err(t *testing.T) {
	tests := []struct {
		name    string
		status  Status
		wantErr string
	}{
		{name: "current", status: Status{Version: 3, Latest: 3}},
		{name: "never migrated", status: Status{Latest: 3}, wantErr: "no schema version"},
		{name: "behind", status: Status{Version: 2, Latest: 3}, wantErr: "latest is 3"},
		{name: "ahead", status: Status{Version: 4, Latest: 3}, wantErr: "newer than this dtb"},
		{name: "dirty", status: Status{Version: 3, Latest: 3, Dirty: true}, wantErr: "dirty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.status.Err()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Err() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Err() = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestCheckDBMigrationStatus_AfterMigration(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Migrate up
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// Status should be OK now
	err := CheckDBMigrationStatus(db)
	if err != nil {
		t.Errorf("CheckDBMigrationStatus() after migration returned error: %v", err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Run migration twice
	if err := MigrateUp(db); err != nil {
		t.Fatalf("First MigrateUp() failed: %v", err)
	}

	if err := MigrateUp(db); err != nil {
		t.Errorf("Second MigrateUp() failed: %v (should be idempotent)", err)
	}

	// Status should still be OK
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after double migration returned error: %v", err)
	}
}

func TestForeignKeyConstraints(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// A transfer must belong to an existing operation.
	_, err := db.Exec(`
		INSERT INTO transfers (operation_id, kind, song, created_at)
		VALUES (42, 'download', 'song.mp3', datetime('now'))
	`)

	if err == nil {
		t.Error("Expected foreign key constraint violation, but insert succeeded")
	}
}

func TestSchema_Operations(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	res, err := db.Exec("INSERT INTO operations (started_at, operation) VALUES (datetime('now'), 'share')")
	if err != nil {
		t.Fatalf("Failed to insert operation: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("LastInsertId() error = %v", err)
	}

	var status string
	if err := db.QueryRow("SELECT status FROM operations WHERE id = ?", id).Scan(&status); err != nil {
		t.Fatalf("Failed to retrieve operation: %v", err)
	}
	if status != "running" {
		t.Errorf("status = %q, want %q", status, "running")
	}
}

func TestSchema_TransferKind(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	if _, err := db.Exec("INSERT INTO operations (id, started_at, operation) VALUES (1, datetime('now'), 'download')"); err != nil {
		t.Fatalf("Failed to insert operation: %v", err)
	}

	_, err := db.Exec("INSERT INTO transfers (operation_id, kind, song, created_at) VALUES (1, 'upload', 'a.mp3', datetime('now'))")
	if err == nil {
		t.Error("Expected check constraint violation for unknown kind, but insert succeeded")
	}
}

// openTestDB opens an in-memory SQLite database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	return db
}

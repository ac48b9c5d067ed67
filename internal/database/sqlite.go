package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dtb-go/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Operation is one recorded CLI command.
type Operation struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Operation  string
	Parameters string
	Status     string
}

// Transfer kinds.
const (
	TransferShare    = "share"
	TransferDownload = "download"
	TransferIgnore   = "ignore"
)

// Transfer records one song moving through the share during an operation.
// Peer is the recipient for a share and the sender otherwise.
type Transfer struct {
	ID          int64
	OperationID int64
	Kind        string
	Song        string
	Peer        string
	Destination string
	CreatedAt   time.Time
}

// SQLiteDatabase stores the local history of operations and transfers.
// The history is per machine and never synced.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the database at path and migrates it to the
// latest schema. path can be a file path or ":memory:".
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: :memory: databases are per connection, and a daemon
	// and a CLI command may share the file.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Operation tracking

// CreateOperation records the start of an operation and returns it with its ID.
func (s *SQLiteDatabase) CreateOperation(operation, parameters string) (*Operation, error) {
	op := &Operation{
		StartedAt:  time.Now(),
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
	}
	res, err := s.db.ExecContext(context.Background(),
		`INSERT INTO operations (started_at, operation, parameters, status) VALUES (?, ?, ?, ?)`,
		op.StartedAt, op.Operation, op.Parameters, op.Status)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	if op.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	return op, nil
}

// FinishOperation marks the operation finished with the given status.
func (s *SQLiteDatabase) FinishOperation(id int64, status string) error {
	res, err := s.db.ExecContext(context.Background(),
		`UPDATE operations SET finished_at = ?, status = ? WHERE id = ?`,
		time.Now(), status, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing operation %d: no such operation", id)
	}
	return nil
}

// ListOperations returns the most recent operations, newest first.
func (s *SQLiteDatabase) ListOperations(limit int) ([]*Operation, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT id, started_at, finished_at, operation, parameters, status
		 FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*Operation
	for rows.Next() {
		op := &Operation{}
		if err := rows.Scan(&op.ID, &op.StartedAt, &op.FinishedAt, &op.Operation, &op.Parameters, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// Transfer tracking

// RecordTransfer stores t and sets its ID and CreatedAt.
func (s *SQLiteDatabase) RecordTransfer(t *Transfer) error {
	t.CreatedAt = time.Now()
	res, err := s.db.ExecContext(context.Background(),
		`INSERT INTO transfers (operation_id, kind, song, peer, destination, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.OperationID, t.Kind, t.Song, t.Peer, t.Destination, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording %s of %s: %w", t.Kind, t.Song, err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("recording %s of %s: %w", t.Kind, t.Song, err)
	}
	return nil
}

// ListTransfers returns the most recent transfers, newest first.
func (s *SQLiteDatabase) ListTransfers(limit int) ([]*Transfer, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT id, operation_id, kind, song, peer, destination, created_at
		 FROM transfers ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*Transfer
	for rows.Next() {
		t := &Transfer{}
		if err := rows.Scan(&t.ID, &t.OperationID, &t.Kind, &t.Song, &t.Peer, &t.Destination, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	return transfers, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

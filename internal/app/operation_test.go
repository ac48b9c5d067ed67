package app

import (
	"errors"
	"testing"

	"dtb-go/internal/database"
	"dtb-go/internal/testutil"
)

func TestOperation_Lifecycle(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	op := NewOperation("share")

	if op.Persisted() {
		t.Fatal("new operation should not be persisted")
	}
	// Transfers before Begin are dropped.
	if err := op.Record(db, &database.Transfer{Kind: database.TransferShare, Song: "early.mp3"}); err != nil {
		t.Fatalf("Record() before Begin error = %v", err)
	}

	if err := op.Begin(db, "/music/a.mp3"); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if !op.Persisted() {
		t.Fatal("operation should be persisted after Begin")
	}
	id := op.ID
	if err := op.Begin(db, "/music/b.mp3"); err != nil {
		t.Fatalf("second Begin() error = %v", err)
	}
	if op.ID != id || op.Parameters != "/music/a.mp3" {
		t.Errorf("second Begin() changed operation to %+v", op)
	}

	if err := op.Record(db, &database.Transfer{Kind: database.TransferShare, Song: "a.mp3", Peer: "Bob"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := op.Finish(db); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	ops, err := db.ListOperations(10)
	if err != nil {
		t.Fatalf("ListOperations() error = %v", err)
	}
	if len(ops) != 1 || ops[0].Status != StatusSuccess || !ops[0].FinishedAt.Valid {
		t.Errorf("ListOperations() = %+v, want one finished success", ops)
	}

	transfers, err := db.ListTransfers(10)
	if err != nil {
		t.Fatalf("ListTransfers() error = %v", err)
	}
	if len(transfers) != 1 || transfers[0].Song != "a.mp3" || transfers[0].OperationID != id {
		t.Errorf("ListTransfers() = %+v, want only a.mp3 under operation %d", transfers, id)
	}
}

func TestOperation_Fail(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil keeps success", err: nil, want: StatusSuccess},
		{name: "error marks failure", err: errors.New("boom"), want: StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation("download")
			if got := op.Fail(tt.err); got != tt.err {
				t.Errorf("Fail() = %v, want %v", got, tt.err)
			}
			if op.Status != tt.want {
				t.Errorf("Status = %q, want %q", op.Status, tt.want)
			}
		})
	}
}

func TestOperation_FinishWithoutBegin(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	op := NewOperation("incoming")

	if err := op.Finish(db); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	ops, err := db.ListOperations(10)
	if err != nil {
		t.Fatalf("ListOperations() error = %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("ListOperations() = %d entries, want 0", len(ops))
	}
}

func TestOperation_Succeed(t *testing.T) {
	op := NewOperation("new")
	op.Fail(errors.New("already exists"))
	op.Succeed()

	if op.Status != StatusSuccess {
		t.Errorf("Status = %q, want %q", op.Status, StatusSuccess)
	}
}

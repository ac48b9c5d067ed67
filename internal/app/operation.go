package app

import (
	"fmt"

	"dtb-go/internal/database"
)

// Operation statuses stored in the history.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation tracks the CLI command being run. It lives in memory with
// ID=0 until Begin; only commands that change the share call Begin, so
// listings leave no trace in the history.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
}

// NewOperation creates a new in-memory operation.
func NewOperation(operation string) *Operation {
	return &Operation{Operation: operation, Status: StatusSuccess}
}

// Persisted returns true if this operation has been saved to the history.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Begin saves op to h with its parameters. Later calls are no-ops.
func (op *Operation) Begin(h History, parameters string) error {
	if op.Persisted() {
		return nil
	}
	op.Parameters = parameters
	saved, err := h.CreateOperation(op.Operation, parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	op.ID = saved.ID
	return nil
}

// Fail marks op as failed when err is set and returns err unchanged.
func (op *Operation) Fail(err error) error {
	if err != nil {
		op.Status = StatusError
	}
	return err
}

// Succeed clears an earlier failure once the command has recovered from it.
func (op *Operation) Succeed() {
	op.Status = StatusSuccess
}

// Record stores a transfer under op. Transfers of an operation that was
// never begun are dropped.
func (op *Operation) Record(h History, t *database.Transfer) error {
	if !op.Persisted() {
		return nil
	}
	t.OperationID = op.ID
	return h.RecordTransfer(t)
}

// Finish stores the final status of a begun operation.
func (op *Operation) Finish(h History) error {
	if !op.Persisted() {
		return nil
	}
	if err := h.FinishOperation(op.ID, op.Status); err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

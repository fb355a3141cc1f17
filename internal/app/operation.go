package app

import "strings"

// Operation tracks a CLI command for the duration of one process.
// Operations live in memory only. A command that commits or rolls back a
// transaction records the transaction ID, which marks the operation as
// having touched the store.
type Operation struct {
	ID         string
	Command    string
	Parameters string
	Status     string // "success" or "error"
	TxnIDs     []string
}

// NewOperation creates a new in-memory operation.
func NewOperation(id, command, parameters string) *Operation {
	return &Operation{
		ID:         id,
		Command:    command,
		Parameters: parameters,
		Status:     "success",
	}
}

// Record notes a transaction started by this operation.
func (op *Operation) Record(txnID string) {
	if txnID != "" {
		op.TxnIDs = append(op.TxnIDs, txnID)
	}
}

// Fail marks the operation as failed.
func (op *Operation) Fail() {
	op.Status = "error"
}

// Mutated returns true if this operation ran at least one transaction.
func (op *Operation) Mutated() bool {
	return len(op.TxnIDs) > 0
}

// String renders the operation for the log.
func (op *Operation) String() string {
	var b strings.Builder
	b.WriteString(op.Command)
	if op.Parameters != "" {
		b.WriteString(" ")
		b.WriteString(op.Parameters)
	}
	return b.String()
}

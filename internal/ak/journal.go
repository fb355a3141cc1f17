package ak

import "time"

// TxnState is the progress of a mutation transaction.
type TxnState string

const (
	StateStarted         TxnState = "started"
	StateBackedUp        TxnState = "backed_up"
	StateMutated         TxnState = "mutated"
	StateMetadataWritten TxnState = "metadata_written"
	StateVersionBumped   TxnState = "version_bumped"
	StateRolledBack      TxnState = "rolled_back"
	StateRollbackFailed  TxnState = "rollback_failed"
	StateAborted         TxnState = "aborted"
)

// Terminal reports whether no further transitions follow s.
func (s TxnState) Terminal() bool {
	switch s {
	case StateVersionBumped, StateRolledBack, StateRollbackFailed, StateAborted:
		return true
	}
	return false
}

// NeedsRestore reports whether a transaction interrupted in state s may
// have changed the store.
func (s TxnState) NeedsRestore() bool {
	switch s {
	case StateBackedUp, StateMutated, StateMetadataWritten:
		return true
	}
	return false
}

// TxnEntry is the journal record of one transaction.
type TxnEntry struct {
	ID         string
	Operation  string
	Scope      Scope
	State      TxnState
	Version    int64
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Journal durably records transaction progress.
type Journal interface {
	// Begin records a new transaction in StateStarted.
	Begin(entry *TxnEntry) error

	// Advance moves a transaction to a non-terminal state.
	Advance(id string, state TxnState) error

	// Finish moves a transaction to a terminal state.
	Finish(id string, state TxnState, version int64, errMsg string, at time.Time) error

	// Pending returns transactions that never reached a terminal state, oldest first.
	Pending() ([]*TxnEntry, error)

	// Recent returns the most recent transactions, newest first.
	Recent(limit int) ([]*TxnEntry, error)

	// Close releases the journal.
	Close() error
}

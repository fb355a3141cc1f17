package ak

import (
	"context"
	"errors"
	"fmt"
)

// Recover finishes transactions that a crash left open. Those interrupted
// after their backup completed are restored from it; earlier ones are
// marked aborted. It returns the entries it finished, with their new states.
func (s *AKService) Recover(ctx context.Context) ([]*TxnEntry, error) {
	release, err := s.locks.acquire(ctx, StoreScope())
	if err != nil {
		return nil, fmt.Errorf("waiting for store lock: %w", err)
	}
	defer release()

	pending, err := s.journal.Pending()
	if err != nil {
		return nil, fmt.Errorf("listing pending transactions: %w", err)
	}

	var errs []error
	for _, entry := range pending {
		if err := s.recoverOne(entry); err != nil {
			errs = append(errs, err)
		}
	}
	return pending, errors.Join(errs...)
}

func (s *AKService) recoverOne(entry *TxnEntry) error {
	now := s.clock.Now()
	if !entry.State.NeedsRestore() {
		entry.State = StateAborted
		if err := s.journal.Finish(entry.ID, StateAborted, 0, "interrupted before backup completed", now); err != nil {
			return fmt.Errorf("finishing transaction %s: %w", entry.ID, err)
		}
		s.logger.Info("interrupted transaction aborted", "txn", entry.ID, "op", entry.Operation)
		return nil
	}

	snap, err := s.snapshots.Open(entry.Scope, entry.ID)
	if err == nil {
		err = s.snapshots.Restore(snap)
	}
	if err != nil {
		interrupted := entry.State
		entry.State = StateRollbackFailed
		s.logger.Error("recovery failed, operator intervention required", "txn", entry.ID, "scope", entry.Scope.String(), "error", err)
		if ferr := s.journal.Finish(entry.ID, StateRollbackFailed, 0, err.Error(), now); ferr != nil {
			s.logger.Warn("journal update failed", "txn", entry.ID, "error", ferr)
		}
		return &RollbackError{
			Cause:       fmt.Errorf("transaction %s interrupted in state %s", entry.ID, interrupted),
			RollbackErr: err,
		}
	}

	entry.State = StateRolledBack
	if err := s.journal.Finish(entry.ID, StateRolledBack, 0, "restored after interruption", now); err != nil {
		return fmt.Errorf("finishing transaction %s: %w", entry.ID, err)
	}
	if err := s.snapshots.Discard(snap); err != nil {
		s.logger.Warn("discarding backup failed", "txn", entry.ID, "error", err)
	}
	s.logger.Info("interrupted transaction restored", "txn", entry.ID, "op", entry.Operation, "scope", entry.Scope.String())
	return nil
}

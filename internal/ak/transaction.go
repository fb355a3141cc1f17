package ak

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// change is the work of a prepared transaction, run after its scope is
// backed up. Either func may be nil.
type change struct {
	mutate        func() error
	writeMetadata func() error
	// publish lists the scopes whose metadata documents are published
	// after commit. writeMetadata may extend it.
	publish []Scope
	records []AssetRecord
}

// txn tracks one transaction through its states.
type txn struct {
	id      string
	op      string
	scope   Scope
	started time.Time
	state   TxnState
}

// run executes a mutation transaction on scope:
//
//	started -> backed_up -> mutated -> metadata_written -> version_bumped
//
// prepare runs under the scope lock before the backup; an error from it
// aborts with nothing to undo. Any failure after the backup restores the
// snapshot. ctx bounds only the wait for the lock. A scope overlapping an
// unfinished transaction is refused until Recover has run.
func (s *AKService) run(ctx context.Context, op string, scope Scope, prepare func() (*change, error)) (*Commit, error) {
	release, err := s.locks.acquire(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("waiting for lock on %s: %w", scope, err)
	}
	defer release()
	ctx = context.WithoutCancel(ctx)

	if err := s.checkUnfinished(scope); err != nil {
		return nil, err
	}

	t := &txn{id: s.idgen.New(), op: op, scope: scope, started: s.clock.Now(), state: StateStarted}
	entry := &TxnEntry{ID: t.id, Operation: op, Scope: scope, State: StateStarted, StartedAt: t.started}
	if err := s.journal.Begin(entry); err != nil {
		return nil, IOFailure("recording transaction start", err)
	}
	s.logger.Debug("transaction started", "txn", t.id, "op", op, "scope", scope.String())

	ch, err := prepare()
	if err != nil {
		s.finish(t, StateAborted, 0, err)
		return nil, err
	}

	snap, err := s.snapshots.Backup(scope, t.id)
	if err != nil {
		err = IOFailure(fmt.Sprintf("backing up %s", scope), err)
		s.finish(t, StateAborted, 0, err)
		return nil, err
	}
	s.advance(t, StateBackedUp)

	if ch.mutate != nil {
		if err := ch.mutate(); err != nil {
			return nil, s.rollback(t, snap, err)
		}
	}
	s.advance(t, StateMutated)

	if ch.writeMetadata != nil {
		if err := ch.writeMetadata(); err != nil {
			return nil, s.rollback(t, snap, err)
		}
	}
	s.advance(t, StateMetadataWritten)

	version, err := s.ledger.Increment()
	if err != nil {
		return nil, s.rollback(t, snap, IOFailure("incrementing version", err))
	}
	if err := s.finish(t, StateVersionBumped, version.CurrentVersion, nil); err != nil {
		// The entry stays open. Without its backup Recover refuses it
		// instead of undoing a committed change.
		if derr := s.snapshots.Discard(snap); derr != nil {
			s.logger.Error("committed transaction left open with its backup, operator intervention required", "txn", t.id, "scope", scope.String(), "error", derr)
		}
	}
	s.recorder.SetVersion(version.CurrentVersion)
	s.logger.Info("transaction committed", "txn", t.id, "op", op, "scope", scope.String(), "version", version.CurrentVersion)

	s.publish(ctx, version, ch.publish)

	return &Commit{TxnID: t.id, Version: version, Records: ch.records}, nil
}

// checkUnfinished fails when a transaction left open by a crash touches
// scope. Its backup is the only copy of the state to restore.
func (s *AKService) checkUnfinished(scope Scope) error {
	pending, err := s.journal.Pending()
	if err != nil {
		return IOFailure("listing unfinished transactions", err)
	}
	for _, e := range pending {
		if e.Scope.Overlaps(scope) {
			return conflict("transaction %s (%s on %s) is unfinished, run recover first", e.ID, e.Operation, e.Scope)
		}
	}
	return nil
}

func (s *AKService) advance(t *txn, state TxnState) {
	t.state = state
	if err := s.journal.Advance(t.id, state); err != nil {
		s.logger.Warn("journal update failed", "txn", t.id, "state", string(state), "error", err)
	}
}

// finish records a terminal state. A journal error is logged and returned.
func (s *AKService) finish(t *txn, state TxnState, version int64, cause error) error {
	t.state = state
	now := s.clock.Now()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	err := s.journal.Finish(t.id, state, version, msg, now)
	if err != nil {
		s.logger.Warn("journal update failed", "txn", t.id, "state", string(state), "error", err)
	}
	s.recorder.ObserveTransaction(t.op, string(state), now.Sub(t.started))
	return err
}

// rollback restores snap after cause. The returned error is cause, or a
// *RollbackError when the restore itself failed.
func (s *AKService) rollback(t *txn, snap *Snapshot, cause error) error {
	var kinded *Error
	if !errors.As(cause, &kinded) {
		cause = IOFailure(t.op, cause)
	}
	s.logger.Warn("rolling back transaction", "txn", t.id, "op", t.op, "scope", t.scope.String(), "state", string(t.state), "error", cause)

	if err := s.snapshots.Restore(snap); err != nil {
		rbErr := &RollbackError{Cause: cause, RollbackErr: err}
		s.logger.Error("rollback failed, operator intervention required", "txn", t.id, "scope", t.scope.String(), "cause", cause, "error", err)
		s.finish(t, StateRollbackFailed, 0, rbErr)
		return rbErr
	}
	s.finish(t, StateRolledBack, 0, cause)

	if err := s.snapshots.Discard(snap); err != nil {
		s.logger.Warn("discarding backup failed", "txn", t.id, "scope", t.scope.String(), "error", err)
	}
	return cause
}

// publish pushes the version document and the given metadata documents.
// Failures are logged; the transaction is already committed.
func (s *AKService) publish(ctx context.Context, version VersionRecord, scopes []Scope) {
	if s.publisher == nil {
		return
	}
	vdoc, err := s.ledger.Document(version)
	if err != nil {
		s.logger.Warn("encoding version document for publish", "version", version.CurrentVersion, "error", err)
		return
	}
	docs := []Document{vdoc}
	for _, scope := range scopes {
		doc, err := s.store.MetadataDocument(scope)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn("reading metadata document for publish", "scope", scope.String(), "error", err)
			return
		}
		docs = append(docs, doc)
	}
	if err := s.publisher.Publish(ctx, version, docs); err != nil {
		s.logger.Warn("publish failed", "version", version.CurrentVersion, "error", err)
		return
	}
	s.logger.Debug("published", "version", version.CurrentVersion, "documents", len(docs))
}

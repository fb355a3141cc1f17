package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"assetkeeper/internal/ak"
	"assetkeeper/internal/journal/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteJournal implements ak.Journal on a SQLite database.
type SQLiteJournal struct {
	db   *sql.DB
	path string
}

// NewSQLiteJournal opens the journal at path and migrates it to the latest
// schema. path can be a file path or ":memory:".
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteJournal{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure journal: %w", err)
	}
	return db, nil
}

func (j *SQLiteJournal) Begin(entry *ak.TxnEntry) error {
	if entry.State == "" {
		entry.State = ak.StateStarted
	}
	_, err := j.db.Exec(`
		INSERT INTO transactions (id, operation, category, sub_category, state, version, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Operation, entry.Scope.Category, entry.Scope.SubCategory,
		string(entry.State), entry.Version, entry.Error, entry.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording transaction %s: %w", entry.ID, err)
	}
	return nil
}

func (j *SQLiteJournal) Advance(id string, state ak.TxnState) error {
	if state.Terminal() {
		return fmt.Errorf("advance to terminal state %s", state)
	}
	return j.update(id, "UPDATE transactions SET state = ? WHERE id = ?", string(state), id)
}

func (j *SQLiteJournal) Finish(id string, state ak.TxnState, version int64, errMsg string, at time.Time) error {
	if !state.Terminal() {
		return fmt.Errorf("finish with non-terminal state %s", state)
	}
	return j.update(id,
		"UPDATE transactions SET state = ?, version = ?, error = ?, finished_at = ? WHERE id = ?",
		string(state), version, errMsg, at.UTC(), id,
	)
}

func (j *SQLiteJournal) update(id string, query string, args ...any) error {
	res, err := j.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("updating transaction %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating transaction %s: %w", id, err)
	}
	if n == 0 {
		return ak.NotFoundf("transaction %s not found", id)
	}
	return nil
}

func (j *SQLiteJournal) Pending() ([]*ak.TxnEntry, error) {
	rows, err := j.db.Query(`
		SELECT id, operation, category, sub_category, state, version, error, started_at, finished_at
		FROM transactions
		WHERE state IN (?, ?, ?, ?)
		ORDER BY started_at ASC, rowid ASC`,
		string(ak.StateStarted), string(ak.StateBackedUp),
		string(ak.StateMutated), string(ak.StateMetadataWritten),
	)
	if err != nil {
		return nil, fmt.Errorf("listing pending transactions: %w", err)
	}
	return scanEntries(rows)
}

func (j *SQLiteJournal) Recent(limit int) ([]*ak.TxnEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := j.db.Query(`
		SELECT id, operation, category, sub_category, state, version, error, started_at, finished_at
		FROM transactions
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return scanEntries(rows)
}

// Get returns a single transaction by ID.
func (j *SQLiteJournal) Get(id string) (*ak.TxnEntry, error) {
	rows, err := j.db.Query(`
		SELECT id, operation, category, sub_category, state, version, error, started_at, finished_at
		FROM transactions WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("finding transaction %s: %w", id, err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ak.NotFoundf("transaction %s not found", id)
	}
	return entries[0], nil
}

func scanEntries(rows *sql.Rows) ([]*ak.TxnEntry, error) {
	defer rows.Close()

	var entries []*ak.TxnEntry
	for rows.Next() {
		var (
			e        ak.TxnEntry
			state    string
			finished sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.Operation, &e.Scope.Category, &e.Scope.SubCategory,
			&state, &e.Version, &e.Error, &e.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("reading transaction: %w", err)
		}
		e.State = ak.TxnState(state)
		if finished.Valid {
			t := finished.Time
			e.FinishedAt = &t
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading transactions: %w", err)
	}
	return entries, nil
}

// Path returns the journal file path (or ":memory:").
func (j *SQLiteJournal) Path() string {
	return j.path
}

// CheckMigrations verifies the journal schema is up-to-date.
func (j *SQLiteJournal) CheckMigrations() error {
	return migrations.Check(j.db)
}

// BackupTo writes a consistent copy of the journal to destPath.
func (j *SQLiteJournal) BackupTo(destPath string) error {
	if _, err := j.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up journal: %w", err)
	}
	return nil
}

func (j *SQLiteJournal) Close() error {
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	if errors.Is(err, sql.ErrConnDone) {
		return nil
	}
	return err
}

var _ ak.Journal = (*SQLiteJournal)(nil)

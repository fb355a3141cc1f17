package testutil

import (
	"path/filepath"
	"testing"

	"assetkeeper/internal/ak"
	"assetkeeper/internal/journal"
	"assetkeeper/internal/ledger"
	"assetkeeper/internal/snapshot"
	"assetkeeper/internal/store"
)

// Default locations used by Env.
const (
	EnvRoot       = "/data/Assets"
	EnvLedgerPath = "/data/version.json"
)

// Env is a fully wired AKService over an in-memory filesystem.
type Env struct {
	FS        *MockFilesystem
	Store     *store.FileAssetStore
	Snapshots *snapshot.Manager
	Ledger    *ledger.FileLedger
	Journal   *journal.SQLiteJournal
	Clock     *StubClock
	IDs       *StubIDGenerator
	Logger    *RecordingLogger
	Service   *ak.AKService
}

// NewEnv builds an Env for the given store variant.
func NewEnv(t *testing.T, variant store.Variant) *Env {
	t.Helper()

	e := &Env{
		FS:      NewMockFilesystem(),
		Journal: NewTestJournal(t),
		Clock:   FixedClock(),
		IDs:     NewStubIDGenerator(),
		Logger:  NewRecordingLogger(),
	}
	e.FS.AddDirectory(EnvRoot)
	e.Store = store.NewFileAssetStore(e.FS, EnvRoot, variant, nil)
	e.Snapshots = snapshot.NewManager(e.FS, EnvRoot, e.Store, e.Logger)
	e.Ledger = ledger.NewFileLedger(e.FS, EnvLedgerPath, e.Clock)
	e.Service = ak.NewAKService(e.Store, e.Snapshots, e.Ledger, e.Journal, e.Logger, e.Clock, e.IDs)
	return e
}

// Path joins elements below the store root.
func (e *Env) Path(elem ...string) string {
	return filepath.Join(append([]string{EnvRoot}, elem...)...)
}

// Tree returns the store root tree, see MockFilesystem.Tree.
func (e *Env) Tree() map[string]string {
	return e.FS.Tree(EnvRoot)
}

// Version returns the current version number, failing the test on error.
func (e *Env) Version(t *testing.T) int64 {
	t.Helper()
	v, err := e.Ledger.Current()
	if err != nil {
		t.Fatalf("Ledger.Current() error = %v", err)
	}
	return v.CurrentVersion
}

package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"assetkeeper/internal/ak"
	"assetkeeper/internal/archive"
	"assetkeeper/internal/config"
	"assetkeeper/internal/encryption"
	"assetkeeper/internal/fs"
	"assetkeeper/internal/journal"
	"assetkeeper/internal/ledger"
	"assetkeeper/internal/metrics"
	"assetkeeper/internal/snapshot"
	"assetkeeper/internal/store"
)

// JournalArchivePrefix is the archive key prefix of journal snapshots.
const JournalArchivePrefix = "journal/"

// DefaultLockTimeout bounds the wait for another ak process working on the
// same store.
const DefaultLockTimeout = 30 * time.Second

const lockRetryInterval = 100 * time.Millisecond

// Options tune how an AKApp is wired.
type Options struct {
	// Verbose sends debug records to stderr as well as the log file.
	Verbose bool

	// LockTimeout overrides DefaultLockTimeout when positive.
	LockTimeout time.Duration
}

// AKApp is the application layer between the CLI and AKService.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw user input, and manages the journal lifecycle on Close.
type AKApp struct {
	cfg       *config.Config
	journal   *journal.SQLiteJournal
	backends  []archive.Backend
	encryptor ak.Encryptor
	recorder  *metrics.Recorder
	service   *ak.AKService
	logger    ak.Logger
	op        *Operation
	logFile   *os.File

	lockPath    string
	lockTimeout time.Duration
}

// NewAKApp creates a fully wired AKApp from the given config.
// command identifies the CLI command being run (e.g. "AddImages", "Recover").
// The caller must call Close when done.
func NewAKApp(ctx context.Context, cfg *config.Config, command string, opts Options) (*AKApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	variant, err := store.ParseVariant(cfg.Store.Variant)
	if err != nil {
		return nil, err
	}

	fsys := fs.NewOSFilesystem()
	if err := fsys.MkdirAll(cfg.Store.Root); err != nil {
		return nil, fmt.Errorf("creating store root: %w", err)
	}
	extra, err := fs.ParseIgnoreFile(fsys, filepath.Join(cfg.Store.Root, fs.IgnoreFile))
	if err != nil {
		return nil, err
	}
	ignore := fs.NewDefaultIgnoreMatcher(append(append([]string{}, cfg.Filesystem.Ignore...), extra...))

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	backends := make([]archive.Backend, 0, len(cfg.Archives))
	for _, ac := range cfg.Archives {
		b, err := archive.NewArchiveFromConfig(ctx, ac)
		if err != nil {
			return nil, fmt.Errorf("creating archive %s: %w", ac.Name, err)
		}
		backends = append(backends, b)
	}

	j, err := journal.NewJournalFromConfig(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("creating journal: %w", err)
	}
	if err := j.CheckMigrations(); err != nil {
		j.Close()
		return nil, fmt.Errorf("journal schema out of date: %w", err)
	}

	logDir := cfg.LogDir
	if logDir == "" {
		logDir = filepath.Join(cfg.BaseDir, "log")
	}
	stderrLevel := slog.LevelInfo
	if opts.Verbose {
		stderrLevel = slog.LevelDebug
	}
	opID := time.Now().UTC().Format("20060102T150405Z")
	sl, logFile, err := newLogger(logDir, opID, stderrLevel)
	if err != nil {
		j.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl}

	st := store.NewFileAssetStore(fsys, cfg.Store.Root, variant, ignore)
	snaps := snapshot.NewManager(fsys, cfg.Store.Root, st, logger)
	led := ledger.NewFileLedger(fsys, cfg.Ledger.Path, ak.RealClock{})
	recorder := metrics.NewRecorder(cfg.Metrics.Textfile)

	svc := ak.NewAKService(st, snaps, led, j, logger, ak.RealClock{}, ak.UUIDGenerator{})
	svc.SetDefaultExtension(cfg.Store.DefaultExtension)
	svc.SetRecorder(recorder)
	if len(backends) > 0 {
		svc.SetPublisher(archive.NewPublisher(backends, enc, logger))
	}

	a := &AKApp{
		cfg:       cfg,
		journal:   j,
		backends:  backends,
		encryptor: enc,
		recorder:  recorder,
		service:   svc,
		logger:    logger,
		op:        NewOperation(opID, command, ""),
		logFile:   logFile,

		lockPath:    filepath.Clean(cfg.Store.Root) + fs.LockSuffix,
		lockTimeout: DefaultLockTimeout,
	}
	if opts.LockTimeout > 0 {
		a.lockTimeout = opts.LockTimeout
	}

	if v, err := led.Current(); err == nil {
		recorder.CurrentVersion.Set(float64(v.CurrentVersion))
	}
	if pending, err := j.Pending(); err != nil {
		logger.Warn("could not list pending transactions", "error", err)
	} else if len(pending) > 0 && command != "Recover" {
		logger.Warn("unfinished transactions found, their categories are blocked until ak recover runs", "count", len(pending))
	}
	return a, nil
}

// Service returns the underlying engine.
func (a *AKApp) Service() *ak.AKService { return a.service }

// lockStore takes the lock file shared by every ak process on the store
// root. Mutating commands hold it until they return.
func (a *AKApp) lockStore(ctx context.Context) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, a.lockTimeout)
	defer cancel()
	unlock, err := fs.AcquireLock(ctx, a.lockPath, lockRetryInterval)
	if err != nil {
		a.op.Fail()
		return nil, err
	}
	return func() {
		if err := unlock(); err != nil {
			a.logger.Warn("releasing store lock", "error", err)
		}
	}, nil
}

// track records the outcome of a transaction-running call on the operation.
func (a *AKApp) track(params string, commit *ak.Commit, err error) (*ak.Commit, error) {
	a.op.Parameters = params
	if commit != nil {
		a.op.Record(commit.TxnID)
	}
	if err != nil {
		a.op.Fail()
	}
	return commit, err
}

// AddCategory creates a category (or sub-category when subCategory is
// set) holding the image files at paths.
func (a *AKApp) AddCategory(ctx context.Context, category, subCategory string, paths []string, opts UploadOptions) (*ak.Commit, error) {
	unlock, err := a.lockStore(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	scope := scopeOf(category, subCategory)
	uploads, err := readUploads(paths, opts)
	if err != nil {
		return nil, err
	}
	commit, err := a.service.AddCategory(ctx, scope, uploads)
	return a.track(scope.String(), commit, err)
}

// AddImages inserts the image files at list position at. A negative
// position appends.
func (a *AKApp) AddImages(ctx context.Context, category, subCategory string, paths []string, at int, opts UploadOptions) (*ak.Commit, error) {
	unlock, err := a.lockStore(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	scope := scopeOf(category, subCategory)
	uploads, err := readUploads(paths, opts)
	if err != nil {
		return nil, err
	}
	if at < 0 {
		at = ak.Append
	}
	commit, err := a.service.AddImages(ctx, scope, uploads, at)
	return a.track(scope.String(), commit, err)
}

// ReplaceRequest describes an image replacement from the CLI. Empty or
// nil fields are left unchanged.
type ReplaceRequest struct {
	Path    string
	Premium *bool
	Tags    []string
}

// ReplaceImage replaces the content or flags of the image named by ref
// ("Image3", "3" or "3.webp").
func (a *AKApp) ReplaceImage(ctx context.Context, category, subCategory, ref string, req ReplaceRequest) (*ak.Commit, error) {
	unlock, err := a.lockStore(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	scope := scopeOf(category, subCategory)
	index, err := ak.ParseAssetRef(ref)
	if err != nil {
		return nil, err
	}
	update := ak.ImageUpdate{Premium: req.Premium, Tags: req.Tags}
	if req.Path != "" {
		u, err := readUpload(req.Path, UploadOptions{})
		if err != nil {
			return nil, err
		}
		update.Upload = &u
	}
	commit, err := a.service.ReplaceImage(ctx, scope, index, update)
	return a.track(scope.String()+" "+ref, commit, err)
}

// DeleteImage removes the image named by ref.
func (a *AKApp) DeleteImage(ctx context.Context, category, subCategory, ref string) (*ak.Commit, error) {
	unlock, err := a.lockStore(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	scope := scopeOf(category, subCategory)
	index, err := ak.ParseAssetRef(ref)
	if err != nil {
		return nil, err
	}
	commit, err := a.service.DeleteImage(ctx, scope, index)
	return a.track(scope.String()+" "+ref, commit, err)
}

// SwapImages exchanges the positions of two images.
func (a *AKApp) SwapImages(ctx context.Context, category, subCategory, refA, refB string) (*ak.Commit, error) {
	unlock, err := a.lockStore(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	scope := scopeOf(category, subCategory)
	i, err := ak.ParseAssetRef(refA)
	if err != nil {
		return nil, err
	}
	j, err := ak.ParseAssetRef(refB)
	if err != nil {
		return nil, err
	}
	commit, err := a.service.SwapImages(ctx, scope, i, j)
	return a.track(scope.String()+" "+refA+" "+refB, commit, err)
}

// DeleteCategory removes a category, or one sub-category.
func (a *AKApp) DeleteCategory(ctx context.Context, category, subCategory string) (*ak.Commit, error) {
	unlock, err := a.lockStore(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	scope := scopeOf(category, subCategory)
	commit, err := a.service.DeleteCategory(ctx, scope)
	return a.track(scope.String(), commit, err)
}

// RenameCategory renames a category, or one sub-category, to newName.
func (a *AKApp) RenameCategory(ctx context.Context, category, subCategory, newName string) (*ak.Commit, error) {
	unlock, err := a.lockStore(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	scope := scopeOf(category, subCategory)
	name := SanitizeName(newName)
	commit, err := a.service.RenameCategory(ctx, scope, name)
	return a.track(scope.String()+" -> "+name, commit, err)
}

// UpdateFlagsFromFile applies the premium flag updates listed in a JSON file.
func (a *AKApp) UpdateFlagsFromFile(ctx context.Context, path string) (*ak.BulkResult, error) {
	unlock, err := a.lockStore(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	updates, err := parseFlagUpdates(data)
	if err != nil {
		return nil, err
	}
	result, err := a.service.BulkUpdateFlags(ctx, updates)
	a.op.Parameters = path
	if err != nil {
		a.op.Fail()
		return nil, err
	}
	a.op.Record(result.TxnID)
	return result, nil
}

// Version returns the current version record.
func (a *AKApp) Version() (ak.VersionRecord, error) {
	return a.service.Version()
}

// History returns the most recent transactions.
func (a *AKApp) History(limit int) ([]*ak.TxnEntry, error) {
	return a.service.History(limit)
}

// Recover finishes transactions a crash left open.
func (a *AKApp) Recover(ctx context.Context) ([]*ak.TxnEntry, error) {
	unlock, err := a.lockStore(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	entries, err := a.service.Recover(ctx)
	for _, e := range entries {
		a.op.Record(e.ID)
	}
	if err != nil {
		a.op.Fail()
	}
	return entries, err
}

// CheckArchives verifies every configured archive backend is writable.
func (a *AKApp) CheckArchives(ctx context.Context) error {
	if len(a.backends) == 0 {
		return ak.InvalidInputf("no archives configured")
	}
	var errs []error
	for _, b := range a.backends {
		if err := b.ValidateSetup(ctx); err != nil {
			errs = append(errs, fmt.Errorf("archive %s: %w", b.Name(), err))
			continue
		}
		a.logger.Info("archive ready", "archive", b.Name())
	}
	return errors.Join(errs...)
}

// FetchRequest selects an archived document.
type FetchRequest struct {
	Archive    string // empty selects the first configured archive
	Version    int64  // 0 selects the latest published version
	Name       string // e.g. "version.json" or "Json_Files/animals/cats.json"
	Passphrase string // unlocks the private key for sealed documents
}

// FetchArchive writes an archived document to w and returns the version
// it was read from.
func (a *AKApp) FetchArchive(ctx context.Context, req FetchRequest, w io.Writer) (int64, error) {
	b, err := a.backend(req.Archive)
	if err != nil {
		return 0, err
	}
	version := req.Version
	if version == 0 {
		if version, err = archive.Latest(ctx, b); err != nil {
			return 0, err
		}
		if version == 0 {
			return 0, ak.NotFoundf("archive %s has no published version", b.Name())
		}
	}

	var dc ak.DecryptionContext
	if req.Passphrase != "" {
		if a.encryptor == nil {
			return 0, ak.InvalidInputf("encryption is not configured")
		}
		if dc, err = a.encryptor.Unlock(req.Passphrase); err != nil {
			return 0, err
		}
	}
	if err := archive.Fetch(ctx, b, version, req.Name, dc, w); err != nil {
		return 0, err
	}
	return version, nil
}

func (a *AKApp) backend(name string) (archive.Backend, error) {
	if len(a.backends) == 0 {
		return nil, ak.InvalidInputf("no archives configured")
	}
	if name == "" {
		return a.backends[0], nil
	}
	for _, b := range a.backends {
		if b.Name() == name {
			return b, nil
		}
	}
	return nil, ak.NotFoundf("archive %s not configured", name)
}

// SetupKeys generates the archive key pair configured in cfg.
func SetupKeys(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if enc == nil {
		return ak.InvalidInputf("encryption type is %q; set it to age first", cfg.Encryption.Type)
	}
	return enc.Setup(passphrase)
}

// Close finalizes the operation and closes all resources.
// For operations that ran transactions: snapshots the journal and uploads
// it to every archive. Metrics are flushed in either case.
func (a *AKApp) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	keep(a.recorder.Flush())

	if a.op.Mutated() && len(a.backends) > 0 {
		keep(a.archiveJournal())
	}

	if err := a.journal.Close(); err != nil {
		keep(fmt.Errorf("closing journal: %w", err))
	}

	a.logger.Debug("operation finished", "operation", a.op.String(), "status", a.op.Status, "transactions", len(a.op.TxnIDs))
	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

// archiveJournal snapshots the journal to a temp file and uploads it to
// every archive under journal/<operation id>.db.
func (a *AKApp) archiveJournal() error {
	tmpDir, err := os.MkdirTemp("", "ak-journal-*")
	if err != nil {
		return fmt.Errorf("creating temp dir for journal backup: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, journal.JournalFile)
	if err := a.journal.BackupTo(tmpPath); err != nil {
		return err
	}
	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return fmt.Errorf("reading journal backup: %w", err)
	}

	key := JournalArchiveKey(a.op.ID)
	var errs []error
	for _, b := range a.backends {
		if err := b.Put(context.Background(), key, bytes.NewReader(data), int64(len(data))); err != nil {
			a.logger.Warn("journal upload failed", "archive", b.Name(), "error", err)
			errs = append(errs, fmt.Errorf("uploading journal to %s: %w", b.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// JournalArchiveKey returns the archive key of the journal snapshot taken
// at the end of operation opID.
func JournalArchiveKey(opID string) string {
	return JournalArchivePrefix + opID + ".db"
}

// FormatVersion renders a version record as "N (previous M)".
func FormatVersion(v ak.VersionRecord) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(v.CurrentVersion, 10))
	if v.CurrentVersionDate != nil {
		b.WriteString(" at " + v.CurrentVersionDate.UTC().Format(time.RFC3339))
	}
	if v.PreviousVersion != 0 || v.PreviousVersionDate != nil {
		b.WriteString(" (previous " + strconv.FormatInt(v.PreviousVersion, 10) + ")")
	}
	return b.String()
}

// Package ledger persists the store version document.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	iofs "io/fs"
	"path/filepath"
	"sync"

	"assetkeeper/internal/ak"
)

// versionDoc is the on-disk version document.
type versionDoc struct {
	CurrentVersion      int64         `json:"current_version"`
	PreviousVersion     int64         `json:"previous_version"`
	CurrentVersionDate  *ak.Timestamp `json:"current_version_date"`
	PreviousVersionDate *ak.Timestamp `json:"previous_version_date"`
}

func toDoc(r ak.VersionRecord) versionDoc {
	doc := versionDoc{CurrentVersion: r.CurrentVersion, PreviousVersion: r.PreviousVersion}
	if r.CurrentVersionDate != nil {
		doc.CurrentVersionDate = &ak.Timestamp{Time: *r.CurrentVersionDate}
	}
	if r.PreviousVersionDate != nil {
		doc.PreviousVersionDate = &ak.Timestamp{Time: *r.PreviousVersionDate}
	}
	return doc
}

func (d versionDoc) record() ak.VersionRecord {
	r := ak.VersionRecord{CurrentVersion: d.CurrentVersion, PreviousVersion: d.PreviousVersion}
	if d.CurrentVersionDate != nil {
		t := d.CurrentVersionDate.Time
		r.CurrentVersionDate = &t
	}
	if d.PreviousVersionDate != nil {
		t := d.PreviousVersionDate.Time
		r.PreviousVersionDate = &t
	}
	return r
}

// FileLedger implements ak.VersionLedger as a JSON document on an
// ak.Filesystem. Increments are serialized.
type FileLedger struct {
	fsys  ak.Filesystem
	path  string
	clock ak.Clock
	mu    sync.Mutex
}

// NewFileLedger creates a ledger stored at path.
func NewFileLedger(fsys ak.Filesystem, path string, clock ak.Clock) *FileLedger {
	return &FileLedger{fsys: fsys, path: path, clock: clock}
}

// Path returns where the version document is stored.
func (l *FileLedger) Path() string { return l.path }

func (l *FileLedger) Current() (ak.VersionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

func (l *FileLedger) read() (ak.VersionRecord, error) {
	data, err := l.fsys.ReadFile(l.path)
	if errors.Is(err, iofs.ErrNotExist) {
		return ak.VersionRecord{}, nil
	}
	if err != nil {
		return ak.VersionRecord{}, fmt.Errorf("reading version document: %w", err)
	}
	var doc versionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return ak.VersionRecord{}, fmt.Errorf("decoding version document %s: %w", filepath.Base(l.path), err)
	}
	return doc.record(), nil
}

func (l *FileLedger) Increment() (ak.VersionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.read()
	if err != nil {
		return ak.VersionRecord{}, err
	}
	next := current.Next(l.clock.Now())
	data, err := encode(next)
	if err != nil {
		return ak.VersionRecord{}, err
	}
	if err := l.fsys.WriteFile(l.path, data); err != nil {
		return ak.VersionRecord{}, fmt.Errorf("writing version document: %w", err)
	}
	return next, nil
}

func (l *FileLedger) Document(r ak.VersionRecord) (ak.Document, error) {
	data, err := encode(r)
	if err != nil {
		return ak.Document{}, err
	}
	return ak.Document{Name: filepath.Base(l.path), Data: data}, nil
}

func encode(r ak.VersionRecord) ([]byte, error) {
	data, err := json.MarshalIndent(toDoc(r), "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encoding version document: %w", err)
	}
	return append(data, '\n'), nil
}

// Compile-time check that FileLedger implements ak.VersionLedger.
var _ ak.VersionLedger = (*FileLedger)(nil)

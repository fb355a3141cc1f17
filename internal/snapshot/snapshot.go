// Package snapshot keeps the single-generation backup of store scopes in
// a sibling tree named <root>_Last, with Json_Files stored as Json_Files_Last.
// Each backup records the transaction that took it under .owners, so a
// backup replaced or discarded by a later transaction is never restored on
// behalf of an earlier one.
package snapshot

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"path/filepath"
	"slices"
	"strings"

	"assetkeeper/internal/ak"
)

// BackupSuffix is appended to the store root and the metadata directory
// to name their backups.
const BackupSuffix = "_Last"

// ownersDir holds the owner markers inside the backup tree. Category names
// cannot start with a dot, so it never collides with a backed up path.
const ownersDir = ".owners"

const ownerFile = ".scope"

// ScopePather maps a scope to the root-relative paths that hold it.
type ScopePather interface {
	ScopePaths(scope ak.Scope) []string
}

// Manager implements ak.SnapshotManager.
type Manager struct {
	fsys       ak.Filesystem
	root       string
	backupRoot string
	paths      ScopePather
	logger     ak.Logger
}

// NewManager creates a Manager for the store at root.
func NewManager(fsys ak.Filesystem, root string, paths ScopePather, logger ak.Logger) *Manager {
	root = filepath.Clean(root)
	return &Manager{
		fsys:       fsys,
		root:       root,
		backupRoot: root + BackupSuffix,
		paths:      paths,
		logger:     logger,
	}
}

// BackupRoot returns the directory backups are written to.
func (m *Manager) BackupRoot() string { return m.backupRoot }

// backupRel maps a root-relative path to its place in the backup tree.
func backupRel(rel string) string {
	first, rest, _ := strings.Cut(filepath.ToSlash(rel), "/")
	if first == ak.MetadataDir {
		first += BackupSuffix
	}
	return filepath.FromSlash(strings.TrimSuffix(first+"/"+rest, "/"))
}

// liveRel is the inverse of backupRel.
func liveRel(rel string) string {
	first, rest, _ := strings.Cut(filepath.ToSlash(rel), "/")
	if first == ak.MetadataDir+BackupSuffix {
		first = ak.MetadataDir
	}
	return filepath.FromSlash(strings.TrimSuffix(first+"/"+rest, "/"))
}

// ownerDir is the marker directory of scope. Sub-category markers nest in
// their category's directory, so clearing a category clears them too.
func (m *Manager) ownerDir(scope ak.Scope) string {
	dir := filepath.Join(m.backupRoot, ownersDir)
	if scope.IsStore() {
		return dir
	}
	dir = filepath.Join(dir, scope.Category)
	if scope.SubCategory != "" {
		dir = filepath.Join(dir, scope.SubCategory)
	}
	return dir
}

// invalidate drops the markers of every backup that overlaps scope, since
// their contents are about to be replaced.
func (m *Manager) invalidate(scope ak.Scope) error {
	if scope.IsStore() {
		return nil
	}
	stale := []string{
		filepath.Join(m.ownerDir(ak.StoreScope()), ownerFile),
		m.ownerDir(scope),
	}
	if scope.SubCategory != "" {
		stale = append(stale, filepath.Join(m.ownerDir(scope.Root()), ownerFile))
	}
	for _, p := range stale {
		if err := m.fsys.RemoveAll(p); err != nil {
			return fmt.Errorf("clearing backup owner: %w", err)
		}
	}
	return nil
}

// owner returns the transaction that took the backup of scope, or "" when
// there is none.
func (m *Manager) owner(scope ak.Scope) (string, error) {
	data, err := m.fsys.ReadFile(filepath.Join(m.ownerDir(scope), ownerFile))
	if errors.Is(err, iofs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading backup owner: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (m *Manager) exists(path string) (bool, error) {
	_, err := m.fsys.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, iofs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (m *Manager) list(dir string) ([]string, error) {
	entries, err := m.fsys.ReadDir(dir)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

// Backup copies the scope's paths into the backup tree on behalf of the
// transaction owner. Paths that do not exist are recorded as absent and any
// stale backup of them is removed. The owner marker is written last, so a
// backup interrupted half way has no owner.
func (m *Manager) Backup(scope ak.Scope, owner string) (*ak.Snapshot, error) {
	if owner == "" {
		return nil, ak.InvalidInputf("backup of %s needs an owner", scope)
	}
	if err := m.invalidate(scope); err != nil {
		return nil, err
	}
	rels := m.paths.ScopePaths(scope)
	if scope.IsStore() {
		var err error
		if rels, err = m.list(m.root); err != nil {
			return nil, err
		}
		if err := m.fsys.RemoveAll(m.backupRoot); err != nil {
			return nil, fmt.Errorf("clearing backup: %w", err)
		}
	}

	snap := &ak.Snapshot{Scope: scope, Owner: owner}
	for _, rel := range rels {
		live := filepath.Join(m.root, rel)
		backup := filepath.Join(m.backupRoot, backupRel(rel))
		if err := m.fsys.RemoveAll(backup); err != nil {
			return nil, fmt.Errorf("clearing backup of %s: %w", rel, err)
		}
		present, err := m.exists(live)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", rel, err)
		}
		if present {
			if err := m.fsys.CopyTree(live, backup); err != nil {
				return nil, fmt.Errorf("copying %s: %w", rel, err)
			}
		}
		snap.Entries = append(snap.Entries, ak.SnapshotEntry{Path: rel, Present: present})
	}

	if err := m.fsys.WriteFile(filepath.Join(m.ownerDir(scope), ownerFile), []byte(owner+"\n")); err != nil {
		return nil, fmt.Errorf("recording backup owner: %w", err)
	}

	m.logger.Debug("scope backed up", "scope", scope.String(), "owner", owner, "paths", len(snap.Entries))
	return snap, nil
}

// Restore puts every captured path back as it was at backup time. For the
// store scope, top-level entries created since the backup are removed too.
func (m *Manager) Restore(snap *ak.Snapshot) error {
	for _, e := range snap.Entries {
		live := filepath.Join(m.root, e.Path)
		if err := m.fsys.RemoveAll(live); err != nil {
			return fmt.Errorf("removing %s: %w", e.Path, err)
		}
		if !e.Present {
			continue
		}
		backup := filepath.Join(m.backupRoot, backupRel(e.Path))
		if err := m.fsys.CopyTree(backup, live); err != nil {
			return fmt.Errorf("restoring %s: %w", e.Path, err)
		}
	}

	if snap.Scope.IsStore() {
		current, err := m.list(m.root)
		if err != nil {
			return err
		}
		for _, name := range current {
			if slices.ContainsFunc(snap.Entries, func(e ak.SnapshotEntry) bool { return e.Path == name }) {
				continue
			}
			if err := m.fsys.RemoveAll(filepath.Join(m.root, name)); err != nil {
				return fmt.Errorf("removing %s: %w", name, err)
			}
		}
	}

	m.logger.Info("scope restored from backup", "scope", snap.Scope.String())
	return nil
}

// Discard removes the backup of snap.
func (m *Manager) Discard(snap *ak.Snapshot) error {
	if snap.Scope.IsStore() {
		return m.fsys.RemoveAll(m.backupRoot)
	}
	if err := m.fsys.RemoveAll(m.ownerDir(snap.Scope)); err != nil {
		return fmt.Errorf("removing backup owner: %w", err)
	}
	for _, e := range snap.Entries {
		if err := m.fsys.RemoveAll(filepath.Join(m.backupRoot, backupRel(e.Path))); err != nil {
			return fmt.Errorf("removing backup of %s: %w", e.Path, err)
		}
	}
	return nil
}

// Open reconstructs the snapshot of scope from the backup tree. It fails
// with ErrNotFound when there is no complete backup of scope and with
// ErrConflict when the backup was taken by a transaction other than owner.
func (m *Manager) Open(scope ak.Scope, owner string) (*ak.Snapshot, error) {
	got, err := m.owner(scope)
	if err != nil {
		return nil, err
	}
	if got == "" {
		return nil, ak.NotFoundf("no backup of %s", scope)
	}
	if got != owner {
		return nil, ak.Conflictf("backup of %s belongs to transaction %s, not %s", scope, got, owner)
	}

	snap := &ak.Snapshot{Scope: scope, Owner: owner}
	if scope.IsStore() {
		names, err := m.list(m.backupRoot)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if name == ownersDir {
				continue
			}
			snap.Entries = append(snap.Entries, ak.SnapshotEntry{Path: liveRel(name), Present: true})
		}
		return snap, nil
	}

	for _, rel := range m.paths.ScopePaths(scope) {
		present, err := m.exists(filepath.Join(m.backupRoot, backupRel(rel)))
		if err != nil {
			return nil, err
		}
		snap.Entries = append(snap.Entries, ak.SnapshotEntry{Path: rel, Present: present})
	}
	return snap, nil
}

// Compile-time check that Manager implements ak.SnapshotManager.
var _ ak.SnapshotManager = (*Manager)(nil)

package ak

// AssetFile is an asset file found on disk.
type AssetFile struct {
	Index     int
	Extension string
}

// Name returns the file name.
func (f AssetFile) Name() string { return AssetFilename(f.Index, f.Extension) }

// Document is a named file published after a commit, such as a metadata
// document or the version document. Name is slash-separated and relative.
type Document struct {
	Name string
	Data []byte
}

// AssetStore owns the on-disk layout of assets and metadata documents.
type AssetStore interface {
	// ListCategories returns the top-level category names, sorted.
	ListCategories() ([]string, error)

	// ListSubCategories returns the sub-category names of a category, sorted.
	ListSubCategories(category string) ([]string, error)

	// SupportsSubCategories reports whether the layout allows nested categories.
	SupportsSubCategories() bool

	// Exists reports whether the scope has an asset directory or a metadata document.
	Exists(scope Scope) (bool, error)

	// ReadMetadata returns the records of a scope's metadata document in
	// index order. A missing document yields no records and exists=false.
	ReadMetadata(scope Scope) (records []AssetRecord, exists bool, err error)

	// WriteMetadata replaces a scope's metadata document.
	WriteMetadata(scope Scope, records []AssetRecord) error

	// MetadataDocument returns the raw metadata document of a scope.
	MetadataDocument(scope Scope) (Document, error)

	// ListAssetFiles returns the asset files of a scope in index order.
	ListAssetFiles(scope Scope) ([]AssetFile, error)

	// AssetPath returns where the asset with index and extension lives.
	AssetPath(scope Scope, index int, ext string) string

	// WriteAsset writes a file into the scope's asset directory.
	WriteAsset(scope Scope, name string, data []byte) error

	// RenameAsset renames a file within the scope's asset directory.
	RenameAsset(scope Scope, from, to string) error

	// RemoveAsset removes a file from the scope's asset directory.
	RemoveAsset(scope Scope, name string) error

	// EnsureScope creates the scope's asset directory.
	EnsureScope(scope Scope) error

	// RemoveScope deletes a scope's assets and metadata, pruning parents left empty.
	RemoveScope(scope Scope) error

	// RenameScope moves a scope's assets and metadata to a new name.
	RenameScope(from, to Scope) error

	// ScopePaths returns the root-relative paths that hold a scope's data.
	ScopePaths(scope Scope) []string
}

// Snapshot is a single-generation backup of a scope. Owner is the ID of
// the transaction that took it.
type Snapshot struct {
	Scope   Scope
	Owner   string
	Entries []SnapshotEntry
}

// SnapshotEntry is one root-relative path captured by a Snapshot.
// Present is false when the path did not exist at backup time.
type SnapshotEntry struct {
	Path    string
	Present bool
}

// SnapshotManager backs up and restores scopes.
type SnapshotManager interface {
	// Backup copies the scope to the backup location on behalf of the
	// transaction owner, replacing any earlier backup of the same paths.
	Backup(scope Scope, owner string) (*Snapshot, error)

	// Restore replaces the live scope with the backup. It leaves the
	// backup in place, so calling it again is safe.
	Restore(snap *Snapshot) error

	// Discard deletes the backup of a restored snapshot.
	Discard(snap *Snapshot) error

	// Open rebuilds the Snapshot for a scope from the backup on disk. It
	// refuses a backup that is missing or was taken by another transaction.
	Open(scope Scope, owner string) (*Snapshot, error)
}

// VersionLedger persists the store version.
type VersionLedger interface {
	// Current returns the stored record, or a zero record if none exists.
	Current() (VersionRecord, error)

	// Increment advances the version by one and persists it.
	Increment() (VersionRecord, error)

	// Document encodes r as the version document.
	Document(r VersionRecord) (Document, error)
}

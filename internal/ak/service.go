package ak

import (
	"fmt"
	"slices"
)

// DefaultExtension is used for uploads that carry no extension.
const DefaultExtension = "webp"

// Insert positions for AddImages.
const (
	Prepend = 0
	Append  = -1
)

// AKService runs mutation transactions against an asset store. Every
// mutation either commits and bumps the version once, or restores the
// scope it touched from a snapshot.
type AKService struct {
	store      AssetStore
	snapshots  SnapshotManager
	ledger     VersionLedger
	journal    Journal
	publisher  Publisher
	recorder   Recorder
	logger     Logger
	clock      Clock
	idgen      IDGenerator
	locks      *scopeLocks
	defaultExt string
}

// NewAKService creates an AKService. Publishing is off and metrics are
// discarded until SetPublisher and SetRecorder are called.
func NewAKService(store AssetStore, snapshots SnapshotManager, ledger VersionLedger, journal Journal, logger Logger, clock Clock, idgen IDGenerator) *AKService {
	return &AKService{
		store:      store,
		snapshots:  snapshots,
		ledger:     ledger,
		journal:    journal,
		recorder:   NopRecorder{},
		logger:     logger,
		clock:      clock,
		idgen:      idgen,
		locks:      newScopeLocks(),
		defaultExt: DefaultExtension,
	}
}

// SetPublisher configures where committed documents are pushed.
func (s *AKService) SetPublisher(p Publisher) { s.publisher = p }

// SetRecorder configures the metrics sink.
func (s *AKService) SetRecorder(r Recorder) { s.recorder = r }

// SetDefaultExtension sets the extension given to uploads that have none.
func (s *AKService) SetDefaultExtension(ext string) {
	if ext != "" {
		s.defaultExt = ext
	}
}

// Commit describes a committed transaction.
type Commit struct {
	TxnID   string
	Version VersionRecord
	// Records is the scope's record list after the change, when the
	// operation works on a single scope's assets.
	Records []AssetRecord
}

// loadRecords joins a scope's metadata document with the asset files on
// disk. Files without a metadata entry get a default record; entries
// without a file are an error.
func (s *AKService) loadRecords(scope Scope) ([]AssetRecord, error) {
	meta, _, err := s.store.ReadMetadata(scope)
	if err != nil {
		return nil, classify(fmt.Sprintf("reading metadata for %s", scope), err)
	}
	files, err := s.store.ListAssetFiles(scope)
	if err != nil {
		return nil, classify(fmt.Sprintf("listing assets of %s", scope), err)
	}

	exts := make(map[int]string, len(files))
	for _, f := range files {
		exts[f.Index] = f.Extension
	}

	seen := make(map[int]bool, len(meta))
	records := make([]AssetRecord, 0, max(len(meta), len(files)))
	for _, r := range meta {
		ext, ok := exts[r.Index]
		if !ok {
			return nil, notFound("%s in %s has no asset file", r.Key(), scope)
		}
		r.Extension = ext
		r.Category, r.SubCategory = scope.Category, scope.SubCategory
		records = append(records, r)
		seen[r.Index] = true
	}
	for _, f := range files {
		if seen[f.Index] {
			continue
		}
		records = append(records, AssetRecord{
			Index:       f.Index,
			Extension:   f.Extension,
			Category:    scope.Category,
			SubCategory: scope.SubCategory,
		})
	}

	slices.SortFunc(records, func(a, b AssetRecord) int { return a.Index - b.Index })
	return records, nil
}

// newAssets validates uploads and turns them into records for scope.
func (s *AKService) newAssets(scope Scope, uploads []Upload) ([]NewAsset, error) {
	if len(uploads) == 0 {
		return nil, invalidInput("at least one image is required")
	}
	added := make([]NewAsset, len(uploads))
	for i, u := range uploads {
		if err := u.validate(); err != nil {
			return nil, fmt.Errorf("upload %d: %w", i, err)
		}
		ext := u.Extension
		if ext == "" {
			ext = s.defaultExt
		}
		added[i] = NewAsset{
			Record: AssetRecord{
				Extension:   ext,
				Premium:     u.Premium,
				Tags:        slices.Clone(u.Tags),
				Category:    scope.Category,
				SubCategory: scope.SubCategory,
			},
			Data: u.Data,
		}
	}
	return added, nil
}

// checkLayout enforces that a category holds either assets or
// sub-categories, never both.
func (s *AKService) checkLayout(scope Scope) error {
	if scope.SubCategory == "" {
		subs, err := s.store.ListSubCategories(scope.Category)
		if err != nil {
			return classify(fmt.Sprintf("listing sub-categories of %s", scope.Category), err)
		}
		if len(subs) > 0 {
			return conflict("category %s holds sub-categories", scope.Category)
		}
		return nil
	}

	if !s.store.SupportsSubCategories() {
		return invalidInput("store does not support sub-categories")
	}
	if scope.SubCategory == scope.Category {
		return invalidInput("sub-category %q cannot share its category's name", scope.SubCategory)
	}
	root := scope.Root()
	files, err := s.store.ListAssetFiles(root)
	if err != nil {
		return classify(fmt.Sprintf("listing assets of %s", root), err)
	}
	_, hasMeta, err := s.store.ReadMetadata(root)
	if err != nil {
		return classify(fmt.Sprintf("reading metadata for %s", root), err)
	}
	if len(files) > 0 || hasMeta {
		return conflict("category %s holds assets directly", scope.Category)
	}
	return nil
}

func (s *AKService) requireScope(scope Scope) error {
	exists, err := s.store.Exists(scope)
	if err != nil {
		return classify(fmt.Sprintf("checking %s", scope), err)
	}
	if !exists {
		return notFound("%s not found", scope)
	}
	return nil
}

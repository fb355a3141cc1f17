package store

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"path/filepath"
	"slices"
	"strings"

	"assetkeeper/internal/ak"
	"assetkeeper/internal/fs"
)

// Variant selects the on-disk layout.
type Variant string

const (
	// VariantImagine keeps one metadata document per category or
	// sub-category under Json_Files/<category>/ and allows sub-categories.
	VariantImagine Variant = "imagine"
	// VariantIBGC keeps flat categories with Json_Files/<category>.json.
	VariantIBGC Variant = "ibgc"
)

// ParseVariant maps a config value to a Variant. Empty means imagine.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case "", VariantImagine:
		return VariantImagine, nil
	case VariantIBGC:
		return VariantIBGC, nil
	default:
		return "", fmt.Errorf("unknown store variant: %q", s)
	}
}

// FileAssetStore implements ak.AssetStore over an ak.Filesystem:
//
//	<root>/
//	  <category>/[<sub-category>/]<index>.<ext>
//	  Json_Files/
//	    <category>/<sub-category or category>.json   (imagine)
//	    <category>.json                              (ibgc)
type FileAssetStore struct {
	fsys    ak.Filesystem
	root    string
	variant Variant
	ignore  *fs.IgnoreMatcher
}

// NewFileAssetStore creates a store rooted at root. ignore decides which
// files in asset directories are not assets.
func NewFileAssetStore(fsys ak.Filesystem, root string, variant Variant, ignore *fs.IgnoreMatcher) *FileAssetStore {
	if ignore == nil {
		ignore = fs.NewDefaultIgnoreMatcher(nil)
	}
	return &FileAssetStore{
		fsys:    fsys,
		root:    filepath.Clean(root),
		variant: variant,
		ignore:  ignore,
	}
}

// Root returns the store root directory.
func (s *FileAssetStore) Root() string { return s.root }

func (s *FileAssetStore) SupportsSubCategories() bool {
	return s.variant == VariantImagine
}

func (s *FileAssetStore) assetDir(scope ak.Scope) string {
	if scope.SubCategory == "" {
		return filepath.Join(s.root, scope.Category)
	}
	return filepath.Join(s.root, scope.Category, scope.SubCategory)
}

// metadataRel returns the metadata document path relative to the root.
func (s *FileAssetStore) metadataRel(scope ak.Scope) string {
	if s.variant == VariantIBGC {
		return filepath.Join(ak.MetadataDir, scope.Category+".json")
	}
	name := scope.SubCategory
	if name == "" {
		name = scope.Category
	}
	return filepath.Join(ak.MetadataDir, scope.Category, name+".json")
}

func (s *FileAssetStore) metadataPath(scope ak.Scope) string {
	return filepath.Join(s.root, s.metadataRel(scope))
}

func (s *FileAssetStore) listDirs(dir string) ([]string, error) {
	entries, err := s.fsys.ReadDir(dir)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		rel, _ := filepath.Rel(s.root, filepath.Join(dir, e.Name()))
		if s.ignore.Match(rel) {
			continue
		}
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names, nil
}

func (s *FileAssetStore) ListCategories() ([]string, error) {
	dirs, err := s.listDirs(s.root)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(dirs, func(name string) bool {
		return ak.ValidateName(name) != nil
	}), nil
}

func (s *FileAssetStore) ListSubCategories(category string) ([]string, error) {
	if !s.SupportsSubCategories() {
		return nil, nil
	}
	return s.listDirs(s.assetDir(ak.CategoryScope(category)))
}

func (s *FileAssetStore) exists(path string) (bool, error) {
	_, err := s.fsys.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, iofs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *FileAssetStore) Exists(scope ak.Scope) (bool, error) {
	ok, err := s.exists(s.assetDir(scope))
	if err != nil || ok {
		return ok, err
	}
	return s.exists(s.metadataPath(scope))
}

func (s *FileAssetStore) ReadMetadata(scope ak.Scope) ([]ak.AssetRecord, bool, error) {
	data, err := s.fsys.ReadFile(s.metadataPath(scope))
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading metadata: %w", err)
	}
	records, err := decodeMetadata(data)
	if err != nil {
		return nil, true, fmt.Errorf("%s: %w", s.metadataRel(scope), err)
	}
	return records, true, nil
}

func (s *FileAssetStore) WriteMetadata(scope ak.Scope, records []ak.AssetRecord) error {
	data, err := encodeMetadata(s.variant, scope, records)
	if err != nil {
		return fmt.Errorf("encoding metadata for %s: %w", scope, err)
	}
	if err := s.fsys.WriteFile(s.metadataPath(scope), data); err != nil {
		return fmt.Errorf("writing metadata for %s: %w", scope, err)
	}
	return nil
}

func (s *FileAssetStore) MetadataDocument(scope ak.Scope) (ak.Document, error) {
	data, err := s.fsys.ReadFile(s.metadataPath(scope))
	if errors.Is(err, iofs.ErrNotExist) {
		return ak.Document{}, ak.NotFoundf("metadata for %s not found", scope)
	}
	if err != nil {
		return ak.Document{}, fmt.Errorf("reading metadata: %w", err)
	}
	return ak.Document{Name: filepath.ToSlash(s.metadataRel(scope)), Data: data}, nil
}

// ListAssetFiles parses every non-ignored file in the scope's directory as
// <index>.<ext>. A file that does not parse, or two files with the same
// index, is an InvalidInput error.
func (s *FileAssetStore) ListAssetFiles(scope ak.Scope) ([]ak.AssetFile, error) {
	dir := s.assetDir(scope)
	entries, err := s.fsys.ReadDir(dir)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	seen := make(map[int]string)
	var files []ak.AssetFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		rel, _ := filepath.Rel(s.root, filepath.Join(dir, e.Name()))
		if s.ignore.Match(rel) {
			continue
		}
		f, err := parseAssetName(e.Name())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", rel, err)
		}
		if other, dup := seen[f.Index]; dup {
			return nil, ak.InvalidInputf("%s and %s share index %d in %s", other, e.Name(), f.Index, scope)
		}
		seen[f.Index] = e.Name()
		files = append(files, f)
	}
	slices.SortFunc(files, func(a, b ak.AssetFile) int { return a.Index - b.Index })
	return files, nil
}

func parseAssetName(name string) (ak.AssetFile, error) {
	stem, ext, ok := strings.Cut(name, ".")
	if !ok || ext == "" || strings.Contains(ext, ".") {
		return ak.AssetFile{}, ak.InvalidInputf("asset file name %q is not <index>.<ext>", name)
	}
	index, err := ak.ParseIndex(stem)
	if err != nil {
		return ak.AssetFile{}, err
	}
	return ak.AssetFile{Index: index, Extension: ext}, nil
}

func (s *FileAssetStore) AssetPath(scope ak.Scope, index int, ext string) string {
	return filepath.Join(s.assetDir(scope), ak.AssetFilename(index, ext))
}

func (s *FileAssetStore) WriteAsset(scope ak.Scope, name string, data []byte) error {
	return s.fsys.WriteFile(filepath.Join(s.assetDir(scope), name), data)
}

func (s *FileAssetStore) RenameAsset(scope ak.Scope, from, to string) error {
	dir := s.assetDir(scope)
	return s.fsys.Rename(filepath.Join(dir, from), filepath.Join(dir, to))
}

func (s *FileAssetStore) RemoveAsset(scope ak.Scope, name string) error {
	return s.fsys.Remove(filepath.Join(s.assetDir(scope), name))
}

func (s *FileAssetStore) EnsureScope(scope ak.Scope) error {
	return s.fsys.MkdirAll(s.assetDir(scope))
}

// RemoveScope deletes a scope. Removing a sub-category also removes its
// category when nothing else is left in it.
func (s *FileAssetStore) RemoveScope(scope ak.Scope) error {
	if err := s.fsys.RemoveAll(s.assetDir(scope)); err != nil {
		return fmt.Errorf("removing assets: %w", err)
	}

	if scope.SubCategory == "" && s.variant == VariantImagine {
		if err := s.fsys.RemoveAll(filepath.Join(s.root, ak.MetadataDir, scope.Category)); err != nil {
			return fmt.Errorf("removing metadata: %w", err)
		}
		return nil
	}

	if err := s.fsys.Remove(s.metadataPath(scope)); err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("removing metadata: %w", err)
	}
	if scope.SubCategory != "" {
		for _, dir := range []string{
			s.assetDir(scope.Root()),
			filepath.Join(s.root, ak.MetadataDir, scope.Category),
		} {
			if err := s.pruneEmpty(dir); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *FileAssetStore) pruneEmpty(dir string) error {
	entries, err := s.fsys.ReadDir(dir)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}
	if len(entries) > 0 {
		return nil
	}
	if err := s.fsys.Remove(dir); err != nil {
		return fmt.Errorf("pruning %s: %w", dir, err)
	}
	return nil
}

// RenameScope moves a category, or a sub-category within its category,
// together with its metadata.
func (s *FileAssetStore) RenameScope(from, to ak.Scope) error {
	if (from.SubCategory == "") != (to.SubCategory == "") || (from.SubCategory != "" && from.Category != to.Category) {
		return ak.InvalidInputf("cannot move %s to %s", from, to)
	}

	if err := s.renameIfExists(s.assetDir(from), s.assetDir(to)); err != nil {
		return fmt.Errorf("renaming assets: %w", err)
	}

	if from.SubCategory != "" || s.variant == VariantIBGC {
		if err := s.renameIfExists(s.metadataPath(from), s.metadataPath(to)); err != nil {
			return fmt.Errorf("renaming metadata: %w", err)
		}
		return nil
	}

	// Imagine category: move the directory, then the flat document inside it.
	fromDir := filepath.Join(s.root, ak.MetadataDir, from.Category)
	toDir := filepath.Join(s.root, ak.MetadataDir, to.Category)
	if err := s.renameIfExists(fromDir, toDir); err != nil {
		return fmt.Errorf("renaming metadata: %w", err)
	}
	flat := filepath.Join(toDir, from.Category+".json")
	if err := s.renameIfExists(flat, s.metadataPath(to)); err != nil {
		return fmt.Errorf("renaming metadata: %w", err)
	}
	return nil
}

func (s *FileAssetStore) renameIfExists(from, to string) error {
	ok, err := s.exists(from)
	if err != nil || !ok {
		return err
	}
	if err := s.fsys.MkdirAll(filepath.Dir(to)); err != nil {
		return err
	}
	return s.fsys.Rename(from, to)
}

// ScopePaths returns the root-relative paths holding the category that
// contains scope. The store scope has no fixed paths.
func (s *FileAssetStore) ScopePaths(scope ak.Scope) []string {
	if scope.IsStore() {
		return nil
	}
	root := scope.Root()
	if s.variant == VariantIBGC {
		return []string{root.Category, s.metadataRel(root)}
	}
	return []string{root.Category, filepath.Join(ak.MetadataDir, root.Category)}
}

// Compile-time check that FileAssetStore implements ak.AssetStore.
var _ ak.AssetStore = (*FileAssetStore)(nil)

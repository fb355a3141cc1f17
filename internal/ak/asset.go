package ak

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MetadataDir is the directory under the store root that holds metadata
// documents. It cannot be used as a category name.
const MetadataDir = "Json_Files"

// Scope names the part of the store a transaction touches. The zero Scope
// is the whole store. A Scope with only Category set covers that category
// and all of its sub-categories.
type Scope struct {
	Category    string
	SubCategory string
}

// StoreScope returns the Scope covering the whole store.
func StoreScope() Scope { return Scope{} }

// CategoryScope returns the Scope of a top-level category.
func CategoryScope(category string) Scope { return Scope{Category: category} }

// IsStore reports whether s covers the whole store.
func (s Scope) IsStore() bool { return s.Category == "" }

// Root returns the category-level Scope that contains s.
func (s Scope) Root() Scope { return Scope{Category: s.Category} }

// Overlaps reports whether s and o share any path. The store scope
// overlaps every scope.
func (s Scope) Overlaps(o Scope) bool {
	switch {
	case s.IsStore() || o.IsStore():
		return true
	case s.Category != o.Category:
		return false
	}
	return s.SubCategory == "" || o.SubCategory == "" || s.SubCategory == o.SubCategory
}

func (s Scope) String() string {
	switch {
	case s.IsStore():
		return "*"
	case s.SubCategory == "":
		return s.Category
	default:
		return s.Category + "/" + s.SubCategory
	}
}

// Validate checks that the names in s are usable as directory names.
func (s Scope) Validate() error {
	if s.IsStore() {
		if s.SubCategory != "" {
			return invalidInput("sub-category %q given without a category", s.SubCategory)
		}
		return invalidInput("category name is required")
	}
	if err := ValidateName(s.Category); err != nil {
		return err
	}
	if s.SubCategory != "" {
		if err := ValidateName(s.SubCategory); err != nil {
			return err
		}
	}
	return nil
}

// ValidateName rejects names that would escape or collide with the store layout.
// Names are expected to be sanitized by the caller already.
func ValidateName(name string) error {
	switch {
	case name == "":
		return invalidInput("name is required")
	case strings.HasPrefix(name, "."):
		return invalidInput("invalid name %q", name)
	case strings.ContainsAny(name, `/\`):
		return invalidInput("name %q contains a path separator", name)
	case name == MetadataDir || strings.HasPrefix(name, MetadataDir+"_"):
		return invalidInput("name %q is reserved", name)
	}
	return nil
}

// AssetRecord is one image in a category, backed by the file <Index>.<Extension>.
type AssetRecord struct {
	Index       int
	Extension   string
	Premium     bool
	Tags        []string
	Category    string
	SubCategory string
}

// Key returns the metadata document key of the record.
func (r AssetRecord) Key() string { return KeyFor(r.Index) }

// Filename returns the name of the backing file.
func (r AssetRecord) Filename() string { return AssetFilename(r.Index, r.Extension) }

// Scope returns the scope the record belongs to.
func (r AssetRecord) Scope() Scope {
	return Scope{Category: r.Category, SubCategory: r.SubCategory}
}

// KeyFor returns the metadata key for an index.
func KeyFor(index int) string { return "Image" + strconv.Itoa(index) }

// AssetFilename returns the file name for an index and extension.
func AssetFilename(index int, ext string) string {
	return strconv.Itoa(index) + "." + ext
}

// ParseIndex parses a decimal asset index. Signs, leading zeros and
// anything other than ASCII digits are rejected.
func ParseIndex(s string) (int, error) {
	if s == "" {
		return 0, invalidInput("empty index")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, invalidInput("invalid index %q", s)
		}
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, invalidInput("invalid index %q: leading zero", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, invalidInput("invalid index %q", s)
	}
	return n, nil
}

// ParseKey parses a metadata key of the form Image<N>.
func ParseKey(key string) (int, error) {
	rest, ok := strings.CutPrefix(key, "Image")
	if !ok {
		return 0, invalidInput("invalid metadata key %q", key)
	}
	return ParseIndex(rest)
}

// ParseAssetRef resolves how callers refer to an image: "Image3", "3" or "3.webp".
func ParseAssetRef(ref string) (int, error) {
	if strings.HasPrefix(ref, "Image") {
		return ParseKey(ref)
	}
	stem, _, _ := strings.Cut(ref, ".")
	return ParseIndex(stem)
}

// Upload is image content supplied by a caller.
type Upload struct {
	Data        []byte
	ContentType string
	Extension   string
	Premium     bool
	Tags        []string
}

func (u Upload) validate() error {
	if len(u.Data) == 0 {
		return invalidInput("upload is empty")
	}
	if !strings.HasPrefix(u.ContentType, "image/") {
		return invalidInput("unsupported content type %q", u.ContentType)
	}
	if u.Extension != "" && (strings.ContainsAny(u.Extension, `./\`) || u.Extension != strings.TrimSpace(u.Extension)) {
		return invalidInput("invalid extension %q", u.Extension)
	}
	return nil
}

// Flag is a boolean that also decodes from the strings "true" and "false".
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = Flag(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("flag must be a boolean or string: %s", data)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		*f = true
	case "false", "":
		*f = false
	default:
		return fmt.Errorf("invalid flag value %q", s)
	}
	return nil
}

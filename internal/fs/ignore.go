package fs

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"assetkeeper/internal/ak"
)

// IgnoreFile is the per-store file listing extra patterns, read from the store root.
const IgnoreFile = ".akignore"

// DefaultIgnorePatterns are files that never count as assets: OS litter,
// the engine's own temporaries and the ignore file itself.
var DefaultIgnorePatterns = []string{
	IgnoreFile,
	".DS_Store",
	"Thumbs.db",
	"__temp_swap__*",
	".tmp-*",
}

// ignorePattern is a parsed ignore pattern with its matching strategy.
type ignorePattern struct {
	pattern   string
	matchPath bool // match the relative path instead of the basename
}

// IgnoreMatcher checks paths inside the store against ignore patterns.
// Patterns without '/' match the basename only; patterns with '/' match
// the path relative to the store root.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		patterns = append(patterns, ignorePattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &IgnoreMatcher{patterns: patterns}
}

// NewDefaultIgnoreMatcher combines DefaultIgnorePatterns with extra patterns.
func NewDefaultIgnoreMatcher(extra []string) *IgnoreMatcher {
	raw := append(append([]string{}, DefaultIgnorePatterns...), extra...)
	return NewIgnoreMatcher(raw)
}

// Match reports whether the root-relative path should be ignored.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	if len(m.patterns) == 0 || relativePath == "" {
		return false
	}

	normalized := filepath.ToSlash(relativePath)
	basename := filepath.Base(relativePath)

	for _, p := range m.patterns {
		subject := basename
		if p.matchPath {
			subject = normalized
		}
		matched, err := filepath.Match(p.pattern, subject)
		if err != nil {
			// Bad pattern: skip it.
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// ParseIgnoreFile reads an ignore file and returns its raw lines.
// A missing file yields nil and no error.
func ParseIgnoreFile(fsys ak.Filesystem, path string) ([]string, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n"), nil
}

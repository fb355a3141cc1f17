package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewIgnoreMatcher(t *testing.T) {
	t.Run("skips blank lines and comments", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"", "  ", "# comment", "*.psd"})
		if len(m.patterns) != 1 {
			t.Fatalf("expected 1 pattern, got %d", len(m.patterns))
		}
		if m.patterns[0].pattern != "*.psd" {
			t.Errorf("expected *.psd, got %s", m.patterns[0].pattern)
		}
	})

	t.Run("classifies path vs basename patterns", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"*.psd", "drafts/cover.png"})
		if m.patterns[0].matchPath {
			t.Error("*.psd should not be a path pattern")
		}
		if !m.patterns[1].matchPath {
			t.Error("drafts/cover.png should be a path pattern")
		}
	})
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name         string
		patterns     []string
		relativePath string
		want         bool
	}{
		{
			name:         "basename glob matches in category",
			patterns:     []string{"*.psd"},
			relativePath: filepath.Join("animals", "cat.psd"),
			want:         true,
		},
		{
			name:         "basename glob matches in sub-category",
			patterns:     []string{"*.psd"},
			relativePath: filepath.Join("animals", "cats", "tom.psd"),
			want:         true,
		},
		{
			name:         "basename glob does not match asset",
			patterns:     []string{"*.psd"},
			relativePath: filepath.Join("animals", "0.webp"),
			want:         false,
		},
		{
			name:         "path pattern matches exact relative path",
			patterns:     []string{"drafts/cover.png"},
			relativePath: filepath.Join("drafts", "cover.png"),
			want:         true,
		},
		{
			name:         "path pattern does not match other category",
			patterns:     []string{"drafts/cover.png"},
			relativePath: filepath.Join("animals", "cover.png"),
			want:         false,
		},
		{
			name:         "path pattern with glob",
			patterns:     []string{"drafts/*"},
			relativePath: filepath.Join("drafts", "0.webp"),
			want:         true,
		},
		{
			name:         "character class",
			patterns:     []string{"*.[xX]cf"},
			relativePath: "layer.Xcf",
			want:         true,
		},
		{
			name:         "no patterns matches nothing",
			patterns:     nil,
			relativePath: "anything.webp",
			want:         false,
		},
		{
			name:         "empty string path",
			patterns:     []string{"*"},
			relativePath: "",
			want:         false,
		},
		{
			name:         "bad pattern is skipped",
			patterns:     []string{"[", "*.psd"},
			relativePath: "a.psd",
			want:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewIgnoreMatcher(tt.patterns)
			got := m.Match(tt.relativePath)
			if got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.relativePath, got, tt.want)
			}
		})
	}
}

func TestNewDefaultIgnoreMatcher(t *testing.T) {
	t.Parallel()
	m := NewDefaultIgnoreMatcher([]string{"*.psd"})

	for _, p := range []string{
		filepath.Join("animals", ".DS_Store"),
		filepath.Join("animals", "Thumbs.db"),
		filepath.Join("animals", "__temp_swap__.webp"),
		filepath.Join("animals", ".tmp-123"),
		IgnoreFile,
		filepath.Join("animals", "sketch.psd"),
	} {
		if !m.Match(p) {
			t.Errorf("Match(%q) = false, want true", p)
		}
	}
	if m.Match(filepath.Join("animals", "3.webp")) {
		t.Error("asset file is ignored")
	}
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("reads patterns from file", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		path := filepath.Join(dir, IgnoreFile)
		content := "*.psd\r\n# comment\n\n*.xcf\ndrafts/cover.png\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing test file: %v", err)
		}

		patterns, err := ParseIgnoreFile(NewOSFilesystem(), path)
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		// Raw lines: filtering is NewIgnoreMatcher's job.
		if len(patterns) != 5 {
			t.Fatalf("expected 5 raw lines, got %d", len(patterns))
		}
		if patterns[0] != "*.psd" {
			t.Errorf("first line = %q, want *.psd", patterns[0])
		}

		m := NewIgnoreMatcher(patterns)
		if len(m.patterns) != 3 {
			t.Errorf("expected 3 parsed patterns, got %d", len(m.patterns))
		}
	})

	t.Run("returns nil for missing file", func(t *testing.T) {
		t.Parallel()
		patterns, err := ParseIgnoreFile(NewOSFilesystem(), filepath.Join(t.TempDir(), IgnoreFile))
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if patterns != nil {
			t.Errorf("expected nil patterns, got %v", patterns)
		}
	})
}

package fs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestOSFilesystem_WriteFile(t *testing.T) {
	t.Parallel()
	f := NewOSFilesystem()
	dir := t.TempDir()
	path := filepath.Join(dir, "Json_Files", "animals", "animals.json")

	if err := f.WriteFile(path, []byte("{}\n")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := f.WriteFile(path, []byte("{\n}\n")); err != nil {
		t.Fatalf("WriteFile() overwrite error = %v", err)
	}
	got, err := f.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "{\n}\n" {
		t.Errorf("content = %q", got)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want no temp files left", len(entries))
	}
	info, err := f.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("mode = %v, want 0644", info.Mode().Perm())
	}
}

func TestOSFilesystem_Rename(t *testing.T) {
	t.Parallel()
	f := NewOSFilesystem()
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "0.webp"), "a")
	writeTestFile(t, filepath.Join(dir, "1.webp"), "b")

	err := f.Rename(filepath.Join(dir, "0.webp"), filepath.Join(dir, "1.webp"))
	if !errors.Is(err, fs.ErrExist) {
		t.Fatalf("Rename() onto existing file error = %v, want ErrExist", err)
	}
	if err := f.Rename(filepath.Join(dir, "1.webp"), filepath.Join(dir, "2.webp")); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if _, err := f.Stat(filepath.Join(dir, "1.webp")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Stat(1.webp) error = %v, want ErrNotExist", err)
	}
}

func TestOSFilesystem_CopyTree(t *testing.T) {
	t.Parallel()
	f := NewOSFilesystem()
	dir := t.TempDir()
	src := filepath.Join(dir, "Assets", "animals")
	writeTestFile(t, filepath.Join(src, "0.webp"), "a")
	writeTestFile(t, filepath.Join(src, "cats", "0.png"), "b")
	if err := os.MkdirAll(filepath.Join(src, "empty"), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	dst := filepath.Join(dir, "Assets_Last", "animals")
	if err := f.CopyTree(src, dst); err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}
	for rel, want := range map[string]string{"0.webp": "a", filepath.Join("cats", "0.png"): "b"} {
		got, err := f.ReadFile(filepath.Join(dst, rel))
		if err != nil {
			t.Fatalf("ReadFile(%s) error = %v", rel, err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", rel, got, want)
		}
	}
	if info, err := f.Stat(filepath.Join(dst, "empty")); err != nil || !info.IsDir() {
		t.Errorf("empty directory not copied: %v", err)
	}

	if err := f.CopyTree(src, dst); !errors.Is(err, fs.ErrExist) {
		t.Errorf("CopyTree() onto existing destination error = %v, want ErrExist", err)
	}
}

func TestOSFilesystem_CopyTree_RejectsSymlinks(t *testing.T) {
	t.Parallel()
	f := NewOSFilesystem()
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeTestFile(t, filepath.Join(src, "0.webp"), "a")
	if err := os.Symlink(filepath.Join(src, "0.webp"), filepath.Join(src, "1.webp")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if err := f.CopyTree(src, filepath.Join(dir, "dst")); err == nil {
		t.Error("CopyTree() error = nil, want unsupported file type")
	}
}

func TestOSFilesystem_RemoveAndReadDir(t *testing.T) {
	t.Parallel()
	f := NewOSFilesystem()
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "animals", "0.webp"), "a")

	if err := f.Remove(filepath.Join(dir, "animals")); err == nil {
		t.Error("Remove() of non-empty directory succeeded")
	}
	entries, err := f.ReadDir(filepath.Join(dir, "animals"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("ReadDir() = %d entries, %v", len(entries), err)
	}
	if err := f.RemoveAll(filepath.Join(dir, "animals")); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}
	if err := f.MkdirAll(filepath.Join(dir, "animals", "cats")); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
}

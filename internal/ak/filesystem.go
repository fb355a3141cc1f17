package ak

import "io/fs"

// Filesystem is the set of file operations the engine performs. Paths are
// slash-separated and absolute within the implementation's namespace.
// Missing paths are reported with errors matching fs.ErrNotExist.
type Filesystem interface {
	// ReadFile returns the full contents of a file.
	ReadFile(path string) ([]byte, error)

	// WriteFile replaces a file's contents atomically, creating parent
	// directories as needed. Readers see either the old or the new content.
	WriteFile(path string, data []byte) error

	// Rename moves a file or directory. The destination must not exist.
	Rename(oldpath, newpath string) error

	// Remove deletes a single file or empty directory.
	Remove(path string) error

	// RemoveAll deletes path and everything below it. A missing path is not an error.
	RemoveAll(path string) error

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(path string) error

	// ReadDir lists a directory sorted by name.
	ReadDir(path string) ([]fs.DirEntry, error)

	// Stat describes a path.
	Stat(path string) (fs.FileInfo, error)

	// CopyTree copies a file or directory tree from src to dst.
	// dst must not exist.
	CopyTree(src, dst string) error
}

package testutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"assetkeeper/internal/ak"
)

// ErrInjected is returned by operations failed through fault injection.
var ErrInjected = errors.New("injected fault")

// Op names a MockFilesystem operation for fault injection.
type Op string

const (
	OpRead      Op = "read"
	OpWrite     Op = "write"
	OpRename    Op = "rename"
	OpRemove    Op = "remove"
	OpRemoveAll Op = "removeall"
	OpMkdir     Op = "mkdir"
	OpCopy      Op = "copy"
)

// MockFile represents a file or directory in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
}

type fault struct {
	op    Op
	match string
	skip  int
	once  bool
	spent bool
}

// MockFilesystem is an in-memory ak.Filesystem with fault injection.
// Safe for concurrent use.
type MockFilesystem struct {
	mu     sync.Mutex
	files  map[string]*MockFile
	faults []*fault
	calls  map[Op]int
}

// NewMockFilesystem creates an empty mock filesystem containing only "/".
func NewMockFilesystem() *MockFilesystem {
	m := &MockFilesystem{
		files: make(map[string]*MockFile),
		calls: make(map[Op]int),
	}
	m.files["/"] = &MockFile{Permissions: 0755, IsDirectory: true}
	return m
}

// AddFile adds a file and any missing parent directories.
func (m *MockFilesystem) AddFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	m.mkdirAll(filepath.Dir(path))
	m.files[path] = &MockFile{Content: append([]byte(nil), content...), Permissions: 0644, ModTime: time.Now()}
}

// AddDirectory adds a directory and any missing parents.
func (m *MockFilesystem) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirAll(filepath.Clean(path))
}

// FailWhen makes every op on a path containing match fail with ErrInjected.
// An empty match fails every call of op.
func (m *MockFilesystem) FailWhen(op Op, match string) {
	m.FailAfter(op, match, 0)
}

// FailAfter lets n matching calls of op succeed and fails the rest.
func (m *MockFilesystem) FailAfter(op Op, match string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = append(m.faults, &fault{op: op, match: match, skip: n})
}

// FailOnce fails only the first matching call of op.
func (m *MockFilesystem) FailOnce(op Op, match string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = append(m.faults, &fault{op: op, match: match, once: true})
}

// FailRenameAfter lets n renames succeed and fails every later one.
func (m *MockFilesystem) FailRenameAfter(n int) {
	m.FailAfter(OpRename, "", n)
}

// ClearFaults removes all injected faults.
func (m *MockFilesystem) ClearFaults() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = nil
}

// Calls returns how many times op was invoked, including failed calls.
func (m *MockFilesystem) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Tree returns every path below root mapped to its content. Directories
// map to "/" so empty directories take part in comparisons.
func (m *MockFilesystem) Tree(root string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	root = filepath.Clean(root)
	out := make(map[string]string)
	for p, f := range m.files {
		if p != root && !isBelow(p, root) {
			continue
		}
		if f.IsDirectory {
			out[p] = "/"
		} else {
			out[p] = string(f.Content)
		}
	}
	return out
}

func (m *MockFilesystem) check(op Op, paths ...string) error {
	m.calls[op]++
	for _, f := range m.faults {
		if f.op != op {
			continue
		}
		hit := false
		for _, p := range paths {
			if strings.Contains(p, f.match) {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		if f.skip > 0 {
			f.skip--
			continue
		}
		if f.spent {
			continue
		}
		f.spent = f.once
		return &fs.PathError{Op: string(op), Path: paths[0], Err: ErrInjected}
	}
	return nil
}

func isBelow(p, dir string) bool {
	if dir == "/" {
		return p != "/"
	}
	return strings.HasPrefix(p, dir+"/")
}

func (m *MockFilesystem) mkdirAll(path string) {
	for p := path; ; p = filepath.Dir(p) {
		if _, ok := m.files[p]; !ok {
			m.files[p] = &MockFile{Permissions: 0755, ModTime: time.Now(), IsDirectory: true}
		}
		if p == "/" || p == "." {
			return
		}
	}
}

func notExist(op, path string) error {
	return &fs.PathError{Op: op, Path: path, Err: fs.ErrNotExist}
}

func (m *MockFilesystem) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err := m.check(OpRead, path); err != nil {
		return nil, err
	}
	f, ok := m.files[path]
	if !ok {
		return nil, notExist("open", path)
	}
	if f.IsDirectory {
		return nil, &fs.PathError{Op: "read", Path: path, Err: errors.New("is a directory")}
	}
	return append([]byte(nil), f.Content...), nil
}

func (m *MockFilesystem) WriteFile(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err := m.check(OpWrite, path); err != nil {
		return err
	}
	if f, ok := m.files[path]; ok && f.IsDirectory {
		return &fs.PathError{Op: "write", Path: path, Err: errors.New("is a directory")}
	}
	m.mkdirAll(filepath.Dir(path))
	m.files[path] = &MockFile{Content: append([]byte(nil), data...), Permissions: 0644, ModTime: time.Now()}
	return nil
}

func (m *MockFilesystem) Rename(oldpath, newpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldpath, newpath = filepath.Clean(oldpath), filepath.Clean(newpath)
	if err := m.check(OpRename, oldpath, newpath); err != nil {
		return err
	}
	if _, ok := m.files[oldpath]; !ok {
		return notExist("rename", oldpath)
	}
	if _, ok := m.files[newpath]; ok {
		return &fs.PathError{Op: "rename", Path: newpath, Err: fs.ErrExist}
	}
	if parent, ok := m.files[filepath.Dir(newpath)]; !ok || !parent.IsDirectory {
		return notExist("rename", filepath.Dir(newpath))
	}
	if isBelow(newpath, oldpath) {
		return &fs.PathError{Op: "rename", Path: newpath, Err: fs.ErrInvalid}
	}
	moved := make(map[string]*MockFile)
	for p, f := range m.files {
		if p == oldpath || isBelow(p, oldpath) {
			moved[newpath+strings.TrimPrefix(p, oldpath)] = f
			delete(m.files, p)
		}
	}
	for p, f := range moved {
		m.files[p] = f
	}
	return nil
}

func (m *MockFilesystem) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err := m.check(OpRemove, path); err != nil {
		return err
	}
	f, ok := m.files[path]
	if !ok {
		return notExist("remove", path)
	}
	if f.IsDirectory {
		for p := range m.files {
			if isBelow(p, path) {
				return &fs.PathError{Op: "remove", Path: path, Err: errors.New("directory not empty")}
			}
		}
	}
	delete(m.files, path)
	return nil
}

func (m *MockFilesystem) RemoveAll(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err := m.check(OpRemoveAll, path); err != nil {
		return err
	}
	for p := range m.files {
		if p == path || isBelow(p, path) {
			delete(m.files, p)
		}
	}
	if path == "/" {
		m.files["/"] = &MockFile{Permissions: 0755, IsDirectory: true}
	}
	return nil
}

func (m *MockFilesystem) MkdirAll(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err := m.check(OpMkdir, path); err != nil {
		return err
	}
	for p := path; p != "/" && p != "."; p = filepath.Dir(p) {
		if f, ok := m.files[p]; ok && !f.IsDirectory {
			return &fs.PathError{Op: "mkdir", Path: p, Err: errors.New("not a directory")}
		}
	}
	m.mkdirAll(path)
	return nil
}

func (m *MockFilesystem) ReadDir(path string) ([]fs.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if err := m.check(OpRead, path); err != nil {
		return nil, err
	}
	f, ok := m.files[path]
	if !ok {
		return nil, notExist("open", path)
	}
	if !f.IsDirectory {
		return nil, &fs.PathError{Op: "readdir", Path: path, Err: errors.New("not a directory")}
	}
	var entries []fs.DirEntry
	for p, child := range m.files {
		if p != "/" && filepath.Dir(p) == path {
			entries = append(entries, fs.FileInfoToDirEntry(newFileInfo(p, child)))
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

func (m *MockFilesystem) Stat(path string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	f, ok := m.files[path]
	if !ok {
		return nil, notExist("stat", path)
	}
	return newFileInfo(path, f), nil
}

func (m *MockFilesystem) CopyTree(src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, dst = filepath.Clean(src), filepath.Clean(dst)
	if err := m.check(OpCopy, src, dst); err != nil {
		return err
	}
	if _, ok := m.files[src]; !ok {
		return notExist("copy", src)
	}
	if _, ok := m.files[dst]; ok {
		return &fs.PathError{Op: "copy", Path: dst, Err: fs.ErrExist}
	}
	m.mkdirAll(filepath.Dir(dst))
	copies := make(map[string]*MockFile)
	for p, f := range m.files {
		if p == src || isBelow(p, src) {
			c := *f
			c.Content = append([]byte(nil), f.Content...)
			copies[dst+strings.TrimPrefix(p, src)] = &c
		}
	}
	for p, f := range copies {
		m.files[p] = f
	}
	return nil
}

type mockFileInfo struct {
	name string
	file *MockFile
}

func newFileInfo(path string, f *MockFile) *mockFileInfo {
	return &mockFileInfo{name: filepath.Base(path), file: f}
}

func (i *mockFileInfo) Name() string       { return i.name }
func (i *mockFileInfo) Size() int64        { return int64(len(i.file.Content)) }
func (i *mockFileInfo) ModTime() time.Time { return i.file.ModTime }
func (i *mockFileInfo) IsDir() bool        { return i.file.IsDirectory }
func (i *mockFileInfo) Sys() any           { return i.file }

func (i *mockFileInfo) Mode() fs.FileMode {
	if i.file.IsDirectory {
		return fs.ModeDir | i.file.Permissions
	}
	return i.file.Permissions
}

var _ ak.Filesystem = (*MockFilesystem)(nil)

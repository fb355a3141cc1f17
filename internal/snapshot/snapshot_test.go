package snapshot_test

import (
	"errors"
	"maps"
	"path/filepath"
	"testing"

	"assetkeeper/internal/ak"
	"assetkeeper/internal/snapshot"
	"assetkeeper/internal/store"
	"assetkeeper/internal/testutil"
)

const root = "/srv/Assets"

func setup(t *testing.T) (*snapshot.Manager, *testutil.MockFilesystem) {
	t.Helper()
	fsys := testutil.NewMockFilesystem()
	fsys.AddFile(filepath.Join(root, "animals", "0.webp"), []byte("cat"))
	fsys.AddFile(filepath.Join(root, "animals", "1.webp"), []byte("dog"))
	fsys.AddFile(filepath.Join(root, "Json_Files", "animals", "animals.json"), []byte("{}\n"))
	fsys.AddFile(filepath.Join(root, "plants", "0.webp"), []byte("oak"))
	s := store.NewFileAssetStore(fsys, root, store.VariantImagine, nil)
	return snapshot.NewManager(fsys, root, s, ak.NewNopLogger()), fsys
}

func TestManager_BackupRestore(t *testing.T) {
	t.Parallel()
	m, fsys := setup(t)
	scope := ak.CategoryScope("animals")
	before := fsys.Tree(root)

	snap, err := m.Backup(scope, "t1")
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	backup := fsys.Tree(m.BackupRoot())
	for _, p := range []string{"animals/0.webp", "Json_Files_Last/animals/animals.json"} {
		if _, ok := backup[filepath.Join(root+"_Last", p)]; !ok {
			t.Errorf("backup is missing %s", p)
		}
	}

	fsys.Remove(filepath.Join(root, "animals", "0.webp"))
	fsys.WriteFile(filepath.Join(root, "animals", "2.webp"), []byte("new"))
	fsys.WriteFile(filepath.Join(root, "Json_Files", "animals", "animals.json"), []byte("changed"))

	if err := m.Restore(snap); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if after := fsys.Tree(root); !maps.Equal(after, before) {
		t.Errorf("tree after restore = %v, want %v", after, before)
	}

	// Restore leaves the backup, so it can run again.
	if err := m.Restore(snap); err != nil {
		t.Fatalf("second Restore() error = %v", err)
	}
	if after := fsys.Tree(root); !maps.Equal(after, before) {
		t.Error("second restore changed the tree")
	}

	if err := m.Discard(snap); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if _, ok := fsys.Tree(m.BackupRoot())[filepath.Join(root+"_Last", "animals")]; ok {
		t.Error("backup still present after Discard")
	}
}

func TestManager_AbsentScope(t *testing.T) {
	t.Parallel()
	m, fsys := setup(t)
	scope := ak.CategoryScope("birds")

	snap, err := m.Backup(scope, "t1")
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	for _, e := range snap.Entries {
		if e.Present {
			t.Errorf("entry %s recorded as present", e.Path)
		}
	}

	fsys.WriteFile(filepath.Join(root, "birds", "0.webp"), []byte("owl"))
	fsys.WriteFile(filepath.Join(root, "Json_Files", "birds", "birds.json"), []byte("{}\n"))
	if err := m.Restore(snap); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	tree := fsys.Tree(root)
	for _, p := range []string{"birds", "Json_Files/birds"} {
		if _, ok := tree[filepath.Join(root, p)]; ok {
			t.Errorf("%s survived restore of an absent scope", p)
		}
	}
}

func TestManager_BackupReplacesStaleBackup(t *testing.T) {
	t.Parallel()
	m, fsys := setup(t)
	scope := ak.CategoryScope("animals")

	if _, err := m.Backup(scope, "t1"); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	fsys.Remove(filepath.Join(root, "animals", "1.webp"))
	if _, err := m.Backup(scope, "t1"); err != nil {
		t.Fatalf("second Backup() error = %v", err)
	}
	if _, ok := fsys.Tree(m.BackupRoot())[filepath.Join(root+"_Last", "animals", "1.webp")]; ok {
		t.Error("stale file kept in backup")
	}
}

func TestManager_StoreScope(t *testing.T) {
	t.Parallel()
	m, fsys := setup(t)
	before := fsys.Tree(root)

	snap, err := m.Backup(ak.StoreScope(), "t1")
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	fsys.Rename(filepath.Join(root, "animals"), filepath.Join(root, "beasts"))
	fsys.RemoveAll(filepath.Join(root, "plants"))

	if err := m.Restore(snap); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if after := fsys.Tree(root); !maps.Equal(after, before) {
		t.Errorf("tree after restore = %v, want %v", after, before)
	}

	opened, err := m.Open(ak.StoreScope(), "t1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	paths := make(map[string]bool)
	for _, e := range opened.Entries {
		paths[e.Path] = e.Present
	}
	want := map[string]bool{"animals": true, "plants": true, "Json_Files": true}
	if !maps.Equal(paths, want) {
		t.Errorf("Open() entries = %v, want %v", paths, want)
	}

	if err := m.Discard(snap); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if _, err := m.Open(ak.StoreScope(), "t1"); !errors.Is(err, ak.ErrNotFound) {
		t.Errorf("Open() after Discard error = %v, want ErrNotFound", err)
	}
}

func TestManager_Open(t *testing.T) {
	t.Parallel()
	m, fsys := setup(t)
	scope := ak.CategoryScope("animals")
	before := fsys.Tree(root)

	if _, err := m.Backup(scope, "t1"); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	fsys.RemoveAll(filepath.Join(root, "animals"))

	snap, err := m.Open(scope, "t1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := m.Restore(snap); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if after := fsys.Tree(root); !maps.Equal(after, before) {
		t.Errorf("tree after restore = %v, want %v", after, before)
	}
}

func TestManager_RestoreFailure(t *testing.T) {
	t.Parallel()
	m, fsys := setup(t)
	snap, err := m.Backup(ak.CategoryScope("animals"), "t1")
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	fsys.FailWhen(testutil.OpCopy, "")
	if err := m.Restore(snap); !errors.Is(err, testutil.ErrInjected) {
		t.Fatalf("Restore() error = %v, want injected fault", err)
	}
	fsys.ClearFaults()

	// The backup survives a failed restore, so a retry succeeds.
	if err := m.Restore(snap); err != nil {
		t.Fatalf("Restore() retry error = %v", err)
	}
	if got, _ := fsys.ReadFile(filepath.Join(root, "animals", "1.webp")); string(got) != "dog" {
		t.Errorf("1.webp = %q after retry", got)
	}
}

func TestManager_Owner(t *testing.T) {
	t.Parallel()
	scope := ak.CategoryScope("animals")

	t.Run("open checks the owner", func(t *testing.T) {
		t.Parallel()
		m, _ := setup(t)
		if _, err := m.Backup(scope, "t1"); err != nil {
			t.Fatalf("Backup() error = %v", err)
		}
		if _, err := m.Open(scope, "t2"); !errors.Is(err, ak.ErrConflict) {
			t.Errorf("Open() by another transaction error = %v, want ErrConflict", err)
		}
		snap, err := m.Open(scope, "t1")
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if snap.Owner != "t1" {
			t.Errorf("Owner = %q, want t1", snap.Owner)
		}
		if _, err := m.Open(ak.CategoryScope("plants"), "t1"); !errors.Is(err, ak.ErrNotFound) {
			t.Errorf("Open() of a scope never backed up error = %v, want ErrNotFound", err)
		}
	})

	t.Run("discard clears the owner", func(t *testing.T) {
		t.Parallel()
		m, _ := setup(t)
		snap, err := m.Backup(scope, "t1")
		if err != nil {
			t.Fatalf("Backup() error = %v", err)
		}
		if err := m.Discard(snap); err != nil {
			t.Fatalf("Discard() error = %v", err)
		}
		if _, err := m.Open(scope, "t1"); !errors.Is(err, ak.ErrNotFound) {
			t.Errorf("Open() after Discard error = %v, want ErrNotFound", err)
		}
	})

	t.Run("overlapping backups invalidate older owners", func(t *testing.T) {
		t.Parallel()
		m, _ := setup(t)
		if _, err := m.Backup(ak.StoreScope(), "store"); err != nil {
			t.Fatalf("Backup(store) error = %v", err)
		}
		if _, err := m.Backup(scope, "cat"); err != nil {
			t.Fatalf("Backup(animals) error = %v", err)
		}
		if _, err := m.Open(ak.StoreScope(), "store"); !errors.Is(err, ak.ErrNotFound) {
			t.Errorf("Open(store) after a category backup error = %v, want ErrNotFound", err)
		}
		if _, err := m.Backup(ak.Scope{Category: "animals", SubCategory: "cats"}, "sub"); err != nil {
			t.Fatalf("Backup(animals/cats) error = %v", err)
		}
		if _, err := m.Open(scope, "cat"); !errors.Is(err, ak.ErrNotFound) {
			t.Errorf("Open(animals) after a sub-category backup error = %v, want ErrNotFound", err)
		}
	})

	t.Run("interrupted backup has no owner", func(t *testing.T) {
		t.Parallel()
		m, fsys := setup(t)
		if _, err := m.Backup(scope, "t1"); err != nil {
			t.Fatalf("Backup() error = %v", err)
		}
		fsys.FailWhen(testutil.OpCopy, "")
		if _, err := m.Backup(scope, "t2"); !errors.Is(err, testutil.ErrInjected) {
			t.Fatalf("Backup() error = %v, want injected fault", err)
		}
		fsys.ClearFaults()
		for _, owner := range []string{"t1", "t2"} {
			if _, err := m.Open(scope, owner); !errors.Is(err, ak.ErrNotFound) {
				t.Errorf("Open(%s) error = %v, want ErrNotFound", owner, err)
			}
		}
	})

	t.Run("owner is required", func(t *testing.T) {
		t.Parallel()
		m, _ := setup(t)
		if _, err := m.Backup(scope, ""); !errors.Is(err, ak.ErrInvalidInput) {
			t.Errorf("Backup() error = %v, want ErrInvalidInput", err)
		}
	})
}

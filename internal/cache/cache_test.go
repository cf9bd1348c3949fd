package cache

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/BrunoV21/CodeTide/internal/loader"
	"github.com/BrunoV21/CodeTide/internal/model"
)

func sampleSnapshot(root string) *Snapshot {
	f := model.NewFileModel("pkg/mod.py", "pkg.mod", "python")
	f.AddFunction(&model.FunctionDefinition{
		Name:       "run",
		References: []model.Reference{{Name: "helper", UniqueID: "pkg.util.helper", Resolution: model.ResolvedGlobal}},
	})
	f.AddClass(&model.ClassDefinition{
		Name:    "Service",
		Methods: []*model.MethodDefinition{{FunctionDefinition: model.FunctionDefinition{Name: "start"}}},
	})
	f.AddImport(&model.ImportStatement{Source: "pkg.util", Name: "helper", ImportType: model.ImportPlain, DefinitionID: "pkg.util.helper"})
	f.State = model.StateFullyResolved
	return &Snapshot{
		Root:         root,
		Files:        []*model.FileModel{f},
		Fingerprints: map[string]loader.Fingerprint{"pkg/mod.py": {Hash: "abc", Size: 10}},
		Failures:     map[string]string{"broken.py": "syntax error"},
	}
}

func TestSaveAndLoad(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), ".codetide"))
	snap := sampleSnapshot("/project")
	if err := store.Save(snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if snap.ID == "" || snap.Version != SnapshotVersion {
		t.Fatalf("Save did not stamp the snapshot: %+v", snap)
	}
	if !store.Exists() {
		t.Fatal("Exists() = false after Save")
	}

	got, err := store.Load("/project")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ID != snap.ID {
		t.Errorf("ID = %q, want %q", got.ID, snap.ID)
	}
	if !reflect.DeepEqual(got.Fingerprints, snap.Fingerprints) {
		t.Errorf("Fingerprints = %v", got.Fingerprints)
	}
	if !reflect.DeepEqual(got.Failures, snap.Failures) {
		t.Errorf("Failures = %v", got.Failures)
	}
	if len(got.Files) != 1 {
		t.Fatalf("Files = %d, want 1", len(got.Files))
	}
	f := got.Files[0]
	if !reflect.DeepEqual(f.IDs(), snap.Files[0].IDs()) {
		t.Errorf("IDs() = %v, want %v", f.IDs(), snap.Files[0].IDs())
	}
	if f.Functions[0].References[0].UniqueID != "pkg.util.helper" {
		t.Errorf("reference binding lost: %+v", f.Functions[0].References)
	}
	if f.Classes[0].Methods[0].ClassID != "pkg.mod.Service" {
		t.Errorf("ClassID = %q", f.Classes[0].Methods[0].ClassID)
	}
	if f.State != model.StateFullyResolved {
		t.Errorf("State = %q", f.State)
	}
}

func TestLoadMissing(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, err := store.Load("/project"); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("err = %v, want ErrNoSnapshot", err)
	}
	if store.Exists() {
		t.Error("Exists() = true on an empty store")
	}
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, snapshotFile), []byte("not gob"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStore(dir).Load("/project"); !errors.Is(err, ErrSnapshotCorrupt) {
		t.Errorf("err = %v, want ErrSnapshotCorrupt", err)
	}
}

func TestLoadUnreadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, snapshotFile)
	if err := os.Symlink(path, path); err != nil {
		t.Fatal(err)
	}
	store := NewStore(dir)
	if _, err := store.Load("/project"); !errors.Is(err, ErrSnapshotUnreadable) {
		t.Errorf("err = %v, want ErrSnapshotUnreadable", err)
	}

	if err := store.Save(sampleSnapshot("/project")); err != nil {
		t.Fatalf("Save over unreadable snapshot: %v", err)
	}
	if _, err := store.Load("/project"); err != nil {
		t.Errorf("Load after Save: %v", err)
	}
}

func TestLoadForeignRootIsStale(t *testing.T) {
	store := NewStore(t.TempDir())
	if err := store.Save(sampleSnapshot("/elsewhere")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Load("/project"); !errors.Is(err, ErrSnapshotStale) {
		t.Errorf("err = %v, want ErrSnapshotStale", err)
	}
}

func TestSidecars(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, err := store.LoadElements(); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("LoadElements on empty store: %v", err)
	}

	elems := map[string]string{"pkg.mod.run": "def run():\n    pass"}
	if err := store.SaveElements("snap-1", elems); err != nil {
		t.Fatalf("SaveElements: %v", err)
	}
	if err := store.SaveIDs("snap-1", []string{"pkg.mod.run"}); err != nil {
		t.Fatalf("SaveIDs: %v", err)
	}

	side, err := store.LoadElements()
	if err != nil {
		t.Fatalf("LoadElements: %v", err)
	}
	if side.SnapshotID != "snap-1" || !reflect.DeepEqual(side.Elements, elems) {
		t.Errorf("elements sidecar = %+v", side)
	}
	ids, err := store.LoadIDs()
	if err != nil {
		t.Fatalf("LoadIDs: %v", err)
	}
	if !reflect.DeepEqual(ids.IDs, []string{"pkg.mod.run"}) {
		t.Errorf("ids sidecar = %+v", ids)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	if err := store.Save(sampleSnapshot("/project")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.SaveIDs("x", nil); err != nil {
		t.Fatalf("SaveIDs: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	want := []string{idsFile, snapshotFile}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("dir contents = %v, want %v", names, want)
	}
}

func TestDelete(t *testing.T) {
	store := NewStore(t.TempDir())
	if err := store.Delete(); err != nil {
		t.Errorf("Delete on empty store: %v", err)
	}
	if err := store.Save(sampleSnapshot("/project")); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveElements("x", nil); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if store.Exists() {
		t.Error("snapshot still exists after Delete")
	}
}

func TestEnsureGitignored(t *testing.T) {
	root := t.TempDir()
	gitignore := filepath.Join(root, ".gitignore")
	if err := os.WriteFile(gitignore, []byte("*.log"), 0o644); err != nil {
		t.Fatal(err)
	}

	changed, err := EnsureGitignored(root, filepath.Join(root, ".codetide"))
	if err != nil || !changed {
		t.Fatalf("EnsureGitignored = %v, %v", changed, err)
	}
	data, _ := os.ReadFile(gitignore)
	if string(data) != "*.log\n.codetide/\n" {
		t.Errorf(".gitignore = %q", data)
	}

	changed, err = EnsureGitignored(root, filepath.Join(root, ".codetide"))
	if err != nil || changed {
		t.Errorf("second call = %v, %v; want no change", changed, err)
	}

	changed, err = EnsureGitignored(root, t.TempDir())
	if err != nil || changed {
		t.Errorf("outside root = %v, %v; want no change", changed, err)
	}
}

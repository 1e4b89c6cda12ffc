package snapshot

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCreateAndRestoreRoundTrip(t *testing.T) {
	work := t.TempDir()
	base := t.TempDir()

	file := filepath.Join(work, "a.txt")
	if err := os.WriteFile(file, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	mgr, err := Open(base)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	snap, err := mgr.Create([]string{file}, "pre-edit")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if snap.ID == "" {
		t.Fatal("expected a non-empty snapshot id")
	}
	if len(snap.Files) != 1 {
		t.Fatalf("expected 1 captured file, got %d", len(snap.Files))
	}

	if err := os.WriteFile(file, []byte("mutated"), 0o644); err != nil {
		t.Fatal(err)
	}

	restored, err := mgr.Restore(snap.ID, nil)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if len(restored) != 1 || restored[0] != file {
		t.Fatalf("expected %s restored, got %v", file, restored)
	}

	content, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "original" {
		t.Fatalf("expected restored content to be 'original', got %q", content)
	}
}

func TestRestoreFiltersByTargetPathPrefix(t *testing.T) {
	work := t.TempDir()
	base := t.TempDir()

	fileA := filepath.Join(work, "a.txt")
	fileB := filepath.Join(work, "b.txt")
	if err := os.WriteFile(fileA, []byte("a-original"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fileB, []byte("b-original"), 0o644); err != nil {
		t.Fatal(err)
	}

	mgr, err := Open(base)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	snap, err := mgr.Create([]string{fileA, fileB}, "pre-edit")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := os.WriteFile(fileA, []byte("a-mutated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fileB, []byte("b-mutated"), 0o644); err != nil {
		t.Fatal(err)
	}

	restored, err := mgr.Restore(snap.ID, []string{fileA})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if len(restored) != 1 || restored[0] != fileA {
		t.Fatalf("expected only %s restored, got %v", fileA, restored)
	}

	contentB, err := os.ReadFile(fileB)
	if err != nil {
		t.Fatal(err)
	}
	if string(contentB) != "b-mutated" {
		t.Fatal("expected the non-targeted file to remain untouched")
	}
}

func TestCreateIsContentAddressedAndIdempotentWithinSnapshot(t *testing.T) {
	work := t.TempDir()
	base := t.TempDir()

	fileA := filepath.Join(work, "a.txt")
	fileB := filepath.Join(work, "b.txt")
	if err := os.WriteFile(fileA, []byte("same-content"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fileB, []byte("same-content"), 0o644); err != nil {
		t.Fatal(err)
	}

	mgr, err := Open(base)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	snap, err := mgr.Create([]string{fileA, fileB}, "dup")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if snap.Files[fileA].SHA256 != snap.Files[fileB].SHA256 {
		t.Fatal("expected identical content to hash identically")
	}
	if snap.Files[fileA].SnapshotPath != snap.Files[fileB].SnapshotPath {
		t.Fatal("expected identical content to share one blob path within a snapshot")
	}
}

func TestCreateCapturesDirectoryRecursively(t *testing.T) {
	work := t.TempDir()
	base := t.TempDir()

	nested := filepath.Join(work, "sub")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(work, "top.txt"), []byte("top"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nested, "inner.txt"), []byte("inner"), 0o644); err != nil {
		t.Fatal(err)
	}

	mgr, err := Open(base)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	snap, err := mgr.Create([]string{work}, "dir-snap")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(snap.Files) != 2 {
		t.Fatalf("expected 2 captured files from a recursive walk, got %d", len(snap.Files))
	}
}

func TestListGetDeleteLifecycle(t *testing.T) {
	work := t.TempDir()
	base := t.TempDir()
	file := filepath.Join(work, "a.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	mgr, err := Open(base)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	snap, err := mgr.Create([]string{file}, "lifecycle")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if len(mgr.List()) != 1 {
		t.Fatal("expected List to report the created snapshot")
	}
	if _, ok := mgr.Get(snap.ID); !ok {
		t.Fatal("expected Get to find the created snapshot")
	}

	if err := mgr.Delete(snap.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := mgr.Get(snap.ID); ok {
		t.Fatal("expected Get to fail after Delete")
	}
	if _, err := os.Stat(filepath.Join(base, snap.ID)); !os.IsNotExist(err) {
		t.Fatal("expected the snapshot directory to be removed")
	}
}

func TestOpenReloadsPersistedIndex(t *testing.T) {
	work := t.TempDir()
	base := t.TempDir()
	file := filepath.Join(work, "a.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	mgr, err := Open(base)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	snap, err := mgr.Create([]string{file}, "persisted")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	reopened, err := Open(base)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := reopened.Get(snap.ID)
	if !ok {
		t.Fatal("expected the reopened manager to find the previously created snapshot")
	}
	if got.Label != "persisted" {
		t.Fatalf("expected label to survive reload, got %q", got.Label)
	}
}

package fileservice

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/silexa/mcp-broker/internal/audit"
	"github.com/silexa/mcp-broker/internal/brokererr"
	"github.com/silexa/mcp-broker/internal/config"
	"github.com/silexa/mcp-broker/internal/policy"
	"github.com/silexa/mcp-broker/internal/snapshot"
)

func newTestService(t *testing.T, allowedRoot string) *Service {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	store, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg := store.Snapshot()
	cfg.AllowedPaths = []string{allowedRoot}
	cfg.MaxFileSize = 1024
	if err := store.Replace(cfg); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	auditLogger, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	t.Cleanup(func() { _ = auditLogger.Close() })

	snapshots, err := snapshot.Open(t.TempDir())
	if err != nil {
		t.Fatalf("snapshot.Open: %v", err)
	}

	return New(store, auditLogger, policy.New(store), snapshots)
}

func TestReadReturnsContentHashAndSize(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)

	path := filepath.Join(root, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Read(context.Background(), path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(res.Content) != "hello" {
		t.Fatalf("expected content 'hello', got %q", res.Content)
	}
	if res.Size != 5 {
		t.Fatalf("expected size 5, got %d", res.Size)
	}
	if res.SHA256 == "" {
		t.Fatal("expected a non-empty hash")
	}
}

func TestReadRejectsFileOverMaxSize(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)

	path := filepath.Join(root, "big.txt")
	if err := os.WriteFile(path, make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Read(context.Background(), path)
	if err == nil {
		t.Fatal("expected an error for a file exceeding max_file_size")
	}
	brokerErr, ok := err.(*brokererr.Error)
	if !ok {
		t.Fatalf("expected *brokererr.Error, got %T", err)
	}
	if brokerErr.Kind != brokererr.KindInvalidArgument {
		t.Fatalf("expected KindInvalidArgument, got %s", brokerErr.Kind)
	}
}

func TestReadOutsideAllowedRootIsPolicyViolation(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	svc := newTestService(t, root)

	path := filepath.Join(outside, "a.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Read(context.Background(), path)
	brokerErr, ok := err.(*brokererr.Error)
	if !ok || brokerErr.Kind != brokererr.KindPolicyViolation {
		t.Fatalf("expected KindPolicyViolation, got %v", err)
	}
}

func TestCreateRequiresApprovalUnlessDryRun(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	path := filepath.Join(root, "new.txt")

	_, err := svc.Create(context.Background(), path, []byte("content"), "", false)
	brokerErr, ok := err.(*brokererr.Error)
	if !ok || brokerErr.Kind != brokererr.KindApprovalRequired {
		t.Fatalf("expected KindApprovalRequired without a token, got %v", err)
	}

	res, err := svc.Create(context.Background(), path, []byte("content"), "", true)
	if err != nil {
		t.Fatalf("expected dry_run to succeed without approval, got %v", err)
	}
	if _, statErr := os.Stat(path); statErr == nil {
		t.Fatal("expected dry_run to not actually write the file")
	}
	if res.SHA256 == "" {
		t.Fatal("expected dry_run to still report the would-be hash")
	}

	res, err = svc.Create(context.Background(), path, []byte("content"), "approval-token", false)
	if err != nil {
		t.Fatalf("Create with approval: %v", err)
	}
	written, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(written) != "content" {
		t.Fatalf("expected the file to be written, got %q", written)
	}
	if res.SnapshotID != "" {
		t.Fatal("expected no snapshot for a create where the target did not previously exist")
	}
}

func TestCreateSnapshotsExistingFileBeforeOverwrite(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	path := filepath.Join(root, "existing.txt")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Create(context.Background(), path, []byte("new"), "token", false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.SnapshotID == "" {
		t.Fatal("expected a snapshot to be captured when overwriting an existing file")
	}
}

func TestMoveSkipsApprovalGateOnDestination(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	from := filepath.Join(root, "from.txt")
	to := filepath.Join(root, "to.txt")
	if err := os.WriteFile(from, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Source requires approval (write gate); destination write is not
	// separately approval-gated for move, only denial is checked there.
	_, err := svc.Move(context.Background(), from, to, "token", false)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := os.Stat(to); err != nil {
		t.Fatal("expected the destination file to exist after move")
	}
	if _, err := os.Stat(from); !os.IsNotExist(err) {
		t.Fatal("expected the source file to no longer exist after move")
	}
}

func TestCopyGatesDestinationForApproval(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	from := filepath.Join(root, "from.txt")
	to := filepath.Join(root, "to.txt")
	if err := os.WriteFile(from, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := svc.Copy(context.Background(), from, to, "", false)
	brokerErr, ok := err.(*brokererr.Error)
	if !ok || brokerErr.Kind != brokererr.KindApprovalRequired {
		t.Fatalf("expected KindApprovalRequired for an un-approved copy destination, got %v", err)
	}

	if err := svc.Copy(context.Background(), from, to, "token", false); err != nil {
		t.Fatalf("Copy with approval: %v", err)
	}
	if _, err := os.Stat(to); err != nil {
		t.Fatal("expected the destination to exist after an approved copy")
	}
}

func TestListDirAndStat(t *testing.T) {
	root := t.TempDir()
	svc := newTestService(t, root)
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	entries, err := svc.ListDir(root)
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	stat, err := svc.Stat(filepath.Join(root, "a.txt"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !stat.Exists || !stat.IsFile || stat.IsDir {
		t.Fatalf("unexpected stat result: %+v", stat)
	}
}

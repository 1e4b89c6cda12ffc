package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/silexa/mcp-broker/internal/config"
)

func newTestEngine(t *testing.T, cfg config.Config) (*Engine, string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	s, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Replace(cfg); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	return New(s), home
}

func TestCheckFileAccessReadOutsideAllowedRootIsDenied(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	file := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	engine, _ := newTestEngine(t, config.Config{AllowedPaths: []string{root}})

	decision := engine.CheckFileAccess(file, false)
	if decision.Kind != Deny {
		t.Fatalf("expected Deny, got %v", decision.Kind)
	}
}

func TestCheckFileAccessReadInsideAllowedRootIsAllowed(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "a.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	engine, _ := newTestEngine(t, config.Config{AllowedPaths: []string{root}})

	decision := engine.CheckFileAccess(file, false)
	if decision.Kind != Allow {
		t.Fatalf("expected Allow, got %v: %s", decision.Kind, decision.Reason)
	}
}

func TestCheckFileAccessWriteRequiresApproval(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "new-file.txt")

	engine, _ := newTestEngine(t, config.Config{AllowedPaths: []string{root}})

	decision := engine.CheckFileAccess(target, true)
	if decision.Kind != RequireApproval {
		t.Fatalf("expected RequireApproval for a write, got %v", decision.Kind)
	}
}

func TestCheckFileAccessSystemGuardDeniesEvenInsideAllowedRoot(t *testing.T) {
	root := t.TempDir()
	guarded := filepath.Join(root, "etc")
	if err := os.MkdirAll(guarded, 0o755); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(guarded, "passwd")

	engine, _ := newTestEngine(t, config.Config{AllowedPaths: []string{root}})

	decision := engine.CheckFileAccess(target, true)
	if decision.Kind != Deny {
		t.Fatalf("expected Deny for a system-guarded write path, got %v", decision.Kind)
	}
}

func TestCheckCommandNotWhitelistedIsDenied(t *testing.T) {
	engine, _ := newTestEngine(t, config.Config{WhitelistedCommands: []string{"git"}})

	decision := engine.CheckCommand("rm", []string{"-rf", "/"})
	if decision.Kind != Deny {
		t.Fatalf("expected Deny for a non-whitelisted command, got %v", decision.Kind)
	}
}

func TestCheckCommandAutoApproveWinsOverSensitive(t *testing.T) {
	engine, _ := newTestEngine(t, config.Config{
		WhitelistedCommands: []string{"git"},
		AutoApprovePatterns: []string{"git status"},
		SensitivePatterns:   []string{"status"},
	})

	decision := engine.CheckCommand("git", []string{"status"})
	if decision.Kind != Allow {
		t.Fatalf("expected auto-approve to win over a matching sensitive pattern, got %v", decision.Kind)
	}
}

func TestCheckCommandSensitivePatternRequiresApprovalWithDistinctReason(t *testing.T) {
	engine, _ := newTestEngine(t, config.Config{
		WhitelistedCommands: []string{"git"},
		SensitivePatterns:   []string{"push --force"},
	})

	decision := engine.CheckCommand("git", []string{"push", "--force"})
	if decision.Kind != RequireApproval {
		t.Fatalf("expected RequireApproval, got %v", decision.Kind)
	}
	if !strings.Contains(decision.Reason, "sensitive") {
		t.Fatalf("expected a reason distinct from the generic approval reason, got %q", decision.Reason)
	}
}

func TestCheckCommandPlainWhitelistedCommandRequiresApproval(t *testing.T) {
	engine, _ := newTestEngine(t, config.Config{WhitelistedCommands: []string{"npm"}})

	decision := engine.CheckCommand("npm", []string{"install"})
	if decision.Kind != RequireApproval {
		t.Fatalf("expected RequireApproval for a plain whitelisted command, got %v", decision.Kind)
	}
}

func TestCheckGitOperationTables(t *testing.T) {
	root := t.TempDir()
	engine, _ := newTestEngine(t, config.Config{AllowedPaths: []string{root}})

	if d := engine.CheckGitOperation(root, "status"); d.Kind != Allow {
		t.Errorf("status: expected Allow, got %v", d.Kind)
	}
	if d := engine.CheckGitOperation(root, "commit"); d.Kind != RequireApproval {
		t.Errorf("commit: expected RequireApproval, got %v", d.Kind)
	}
	if d := engine.CheckGitOperation(root, "push --force"); d.Kind != Deny {
		t.Errorf("push --force: expected Deny, got %v", d.Kind)
	}
	if d := engine.CheckGitOperation(root, "rebase"); d.Kind != RequireApproval {
		t.Errorf("rebase (unlisted): expected RequireApproval default, got %v", d.Kind)
	}
}

func TestCheckGitOperationOutsideAllowedRootIsDenied(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	engine, _ := newTestEngine(t, config.Config{AllowedPaths: []string{root}})

	if d := engine.CheckGitOperation(outside, "status"); d.Kind != Deny {
		t.Fatalf("expected Deny for a repo outside the allowed roots, got %v", d.Kind)
	}
}

func TestValidateApprovalRejectsEmptyToken(t *testing.T) {
	engine, _ := newTestEngine(t, config.Config{})
	if engine.ValidateApproval("") {
		t.Error("expected an empty token to be invalid")
	}
	if !engine.ValidateApproval("some-token") {
		t.Error("expected a non-empty token to be valid")
	}
}

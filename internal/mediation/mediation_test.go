package mediation

import (
	"testing"

	"github.com/silexa/mcp-broker/internal/config"
	"github.com/silexa/mcp-broker/internal/policy"
)

func testEngine(t *testing.T) *policy.Engine {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	store, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return policy.New(store)
}

func TestGateAllowPassesThrough(t *testing.T) {
	engine := testEngine(t)
	decision := policy.Decision{Kind: policy.Allow}
	if err := Gate(decision, "", false, engine, "file", "read"); err != nil {
		t.Fatalf("expected nil error for Allow, got %v", err)
	}
}

func TestGateDenyAlwaysFailsEvenInDryRun(t *testing.T) {
	engine := testEngine(t)
	decision := policy.Decision{Kind: policy.Deny, Reason: "not allowed"}

	if err := Gate(decision, "", false, engine, "file", "create"); err == nil {
		t.Fatal("expected an error for Deny")
	}
	if err := Gate(decision, "", true, engine, "file", "create"); err == nil {
		t.Fatal("expected Deny to still fail even when dry_run is set")
	}
}

func TestGateRequireApprovalBypassedByDryRun(t *testing.T) {
	engine := testEngine(t)
	decision := policy.Decision{Kind: policy.RequireApproval, Reason: "write"}

	if err := Gate(decision, "", true, engine, "file", "create"); err != nil {
		t.Fatalf("expected dry_run to bypass the approval gate, got %v", err)
	}
}

func TestGateRequireApprovalNeedsNonEmptyToken(t *testing.T) {
	engine := testEngine(t)
	decision := policy.Decision{Kind: policy.RequireApproval, Reason: "write"}

	if err := Gate(decision, "", false, engine, "file", "create"); err == nil {
		t.Fatal("expected an error when no approval token is supplied")
	}
	if err := Gate(decision, "token-123", false, engine, "file", "create"); err != nil {
		t.Fatalf("expected a non-empty token to satisfy the gate, got %v", err)
	}
}

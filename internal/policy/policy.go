// Package policy implements the broker's pure security decision function:
// for every capability operation, it decides allow / require-approval /
// deny without performing any I/O itself.
package policy

import (
	"fmt"
	"strings"

	"github.com/silexa/mcp-broker/internal/config"
)

// Kind names one of the three shapes a Decision can take.
type Kind int

const (
	Allow Kind = iota
	RequireApproval
	Deny
)

// Decision is a tagged variant with exactly three shapes. It is a plain
// value, never mutated, produced per request and consumed immediately — the
// Go analogue of the source's closed PolicyDecision enum.
type Decision struct {
	Kind   Kind
	Reason string
}

func allow() Decision { return Decision{Kind: Allow} }
func requireApproval(reason string) Decision { return Decision{Kind: RequireApproval, Reason: reason} }
func deny(reason string) Decision { return Decision{Kind: Deny, Reason: reason} }

// Engine is the stateless policy decision function; it holds only a
// reference to the live configuration and may be called concurrently.
type Engine struct {
	cfg *config.Store
}

// New builds a policy engine bound to cfg.
func New(cfg *config.Store) *Engine {
	return &Engine{cfg: cfg}
}

// CheckFileAccess decides whether a file operation on path is allowed. write
// distinguishes a mutating call (create/append/copy-destination, and both
// move endpoints) from a read-only one (read/list_dir/stat/copy-source).
//
// Canonicalisation failure — a non-existent path on a read, or a broken
// parent directory on a write — is treated as not-allowed; callers must not
// infer filesystem existence from a policy rejection.
func (e *Engine) CheckFileAccess(path string, write bool) Decision {
	var canonical string
	var err error
	if write {
		canonical, err = config.CanonicalizeForWrite(path)
	} else {
		canonical, err = config.Canonicalize(path)
	}
	if err != nil {
		return deny(fmt.Sprintf("path '%s' is not within allowed directories", path))
	}

	if !e.cfg.IsPathAllowed(canonical) {
		return deny(fmt.Sprintf("path '%s' is not within allowed directories", path))
	}

	if write {
		if config.ContainsSystemGuardSubstring(canonical) {
			return deny("cannot write to system directories")
		}
		return requireApproval(fmt.Sprintf("write to '%s'", path))
	}

	return allow()
}

// CheckCommand decides whether running cmd with args is allowed. Ordering is
// significant: auto-approve patterns win over sensitive patterns (so
// "git status" is never gated even though it contains no sensitive
// substring), and a sensitive match wins over the generic approval reason so
// callers get a distinct, more informative message.
func (e *Engine) CheckCommand(cmd string, args []string) Decision {
	if !e.cfg.IsCommandWhitelisted(cmd) {
		return deny(fmt.Sprintf("command '%s' is not whitelisted", cmd))
	}

	full := cmd
	if len(args) > 0 {
		full = cmd + " " + strings.Join(args, " ")
	}

	for _, pattern := range e.cfg.AutoApprovePatterns() {
		if strings.HasPrefix(full, pattern) {
			return allow()
		}
	}

	for _, pattern := range e.cfg.SensitivePatterns() {
		if strings.Contains(full, pattern) {
			return requireApproval(fmt.Sprintf("sensitive command detected: %s", full))
		}
	}

	return requireApproval(fmt.Sprintf("execute command: %s", full))
}

// gitReadOnlyOps, gitApprovalOps and gitDeniedOps implement the fixed
// operation table from the contract; anything outside all three tables falls
// through to RequireApproval, matching the "any other → RequireApproval"
// default.
var gitReadOnlyOps = map[string]bool{
	"status": true, "log": true, "diff": true, "branch": true,
}

var gitApprovalOps = map[string]bool{
	"commit": true, "push": true, "pull": true, "checkout": true, "merge": true,
}

var gitDeniedOps = map[string]bool{
	"push --force": true, "reset --hard": true,
}

// CheckGitOperation decides whether a git operation on repoPath is allowed.
func (e *Engine) CheckGitOperation(repoPath, operation string) Decision {
	canonical, err := config.Canonicalize(repoPath)
	if err != nil {
		return deny(fmt.Sprintf("repository path '%s' is not within allowed directories", repoPath))
	}
	if !e.cfg.IsPathAllowed(canonical) {
		return deny(fmt.Sprintf("repository path '%s' is not within allowed directories", repoPath))
	}

	switch {
	case gitDeniedOps[operation]:
		return deny(fmt.Sprintf("dangerous git operation '%s' is blocked by default", operation))
	case gitReadOnlyOps[operation]:
		return allow()
	case gitApprovalOps[operation]:
		return requireApproval(fmt.Sprintf("git %s: %s", operation, repoPath))
	default:
		return requireApproval(fmt.Sprintf("git %s: %s", operation, repoPath))
	}
}

// ValidateApproval returns token != "" in this version. A production
// implementation MAY replace this with a real issued, single-use,
// time-bounded token store without changing callers — the signature is kept
// isolated here for exactly that reason.
func (e *Engine) ValidateApproval(token string) bool {
	return token != ""
}

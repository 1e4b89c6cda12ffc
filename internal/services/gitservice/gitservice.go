// Package gitservice implements the Git capability service by driving the
// system `git` binary and parsing its porcelain output — this corpus has no
// Go git library, and shelling out to an external binary is this codebase's
// own idiom for tools it does not vendor bindings for.
package gitservice

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/silexa/mcp-broker/internal/audit"
	"github.com/silexa/mcp-broker/internal/brokererr"
	"github.com/silexa/mcp-broker/internal/policy"
)

const serviceName = "git"

const commitSignature = "MCP User <mcp@local>"

// Service implements the Git capability service.
type Service struct {
	audit  *audit.Logger
	policy *policy.Engine
}

// New builds a Git service bound to its collaborators.
func New(auditLogger *audit.Logger, policyEngine *policy.Engine) *Service {
	return &Service{audit: auditLogger, policy: policyEngine}
}

func (s *Service) logEntry(ctx context.Context, entry audit.Entry) {
	if _, err := s.audit.Log(ctx, entry); err != nil {
		fmt.Fprintf(os.Stderr, "audit log failed: %v\n", err)
	}
}

func runGit(ctx context.Context, repoPath string, args ...string) (string, string, error) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = repoPath
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// StatusResult is the outcome of Status.
type StatusResult struct {
	Branch         string
	ModifiedFiles  []string
	StagedFiles    []string
	UntrackedFiles []string
}

// Status classifies the working tree into modified / staged / untracked and
// reports the current branch short name, or "HEAD" if detached.
func (s *Service) Status(ctx context.Context, repoPath string) (StatusResult, error) {
	decision := s.policy.CheckGitOperation(repoPath, "status")
	if decision.Kind == policy.Deny {
		return StatusResult{}, brokererr.PolicyViolation(serviceName, "status", "%s", decision.Reason)
	}

	stdout, stderr, err := runGit(ctx, repoPath, "status", "--porcelain=v1", "-b")
	if err != nil {
		return StatusResult{}, brokererr.NotFound(serviceName, "status", "not a git repository: %s", strings.TrimSpace(stderr))
	}

	result := StatusResult{Branch: "HEAD"}
	for i, line := range strings.Split(stdout, "\n") {
		if line == "" {
			continue
		}
		if i == 0 && strings.HasPrefix(line, "##") {
			result.Branch = parseBranch(line)
			continue
		}
		if len(line) < 3 {
			continue
		}
		indexStatus, worktreeStatus, path := line[0], line[1], strings.TrimSpace(line[3:])
		switch {
		case indexStatus == '?' && worktreeStatus == '?':
			result.UntrackedFiles = append(result.UntrackedFiles, path)
		default:
			if worktreeStatus != ' ' {
				result.ModifiedFiles = append(result.ModifiedFiles, path)
			}
			if indexStatus != ' ' {
				result.StagedFiles = append(result.StagedFiles, path)
			}
		}
	}

	entry := audit.NewEntry(serviceName, "status")
	entry.Details = fmt.Sprintf("git status: %s", repoPath)
	entry.Result = audit.ResultSuccess
	s.logEntry(ctx, entry)

	return result, nil
}

func parseBranch(headerLine string) string {
	header := strings.TrimPrefix(headerLine, "## ")
	if strings.Contains(header, "(no branch)") {
		return "HEAD"
	}
	header = strings.TrimPrefix(header, "No commits yet on ")
	header = strings.TrimPrefix(header, "Initial commit on ")
	header = strings.SplitN(header, "...", 2)[0]
	header = strings.SplitN(header, " ", 2)[0]
	if header == "" {
		return "HEAD"
	}
	return header
}

// CommitResult is the outcome of Commit.
type CommitResult struct {
	CommitHash  string
	DiffSummary string
}

// Commit stages the listed files, commits them with the fixed broker
// signature, and allows a zero-parent initial commit.
func (s *Service) Commit(ctx context.Context, repoPath string, files []string, message, approvalToken string) (CommitResult, error) {
	decision := s.policy.CheckGitOperation(repoPath, "commit")
	if decision.Kind == policy.Deny {
		return CommitResult{}, brokererr.PolicyViolation(serviceName, "commit", "%s", decision.Reason)
	}
	if decision.Kind == policy.RequireApproval {
		if approvalToken == "" {
			return CommitResult{}, brokererr.ApprovalRequired(serviceName, "commit", "approval required: %s", decision.Reason)
		}
		if !s.policy.ValidateApproval(approvalToken) {
			return CommitResult{}, brokererr.PolicyViolation(serviceName, "commit", "invalid approval token")
		}
	}

	addArgs := append([]string{"add", "--"}, files...)
	if _, stderr, err := runGit(ctx, repoPath, addArgs...); err != nil {
		return CommitResult{}, brokererr.GitError(serviceName, "commit", fmt.Errorf("failed to stage files: %s", strings.TrimSpace(stderr)))
	}

	commitArgs := []string{
		"-c", fmt.Sprintf("user.name=%s", signatureName()),
		"-c", fmt.Sprintf("user.email=%s", signatureEmail()),
		"commit", "--allow-empty", "-m", message,
	}
	if _, stderr, err := runGit(ctx, repoPath, commitArgs...); err != nil {
		return CommitResult{}, brokererr.GitError(serviceName, "commit", fmt.Errorf("failed to commit: %s", strings.TrimSpace(stderr)))
	}

	hashOut, _, err := runGit(ctx, repoPath, "rev-parse", "HEAD")
	if err != nil {
		return CommitResult{}, brokererr.GitError(serviceName, "commit", fmt.Errorf("failed to read commit hash: %w", err))
	}
	hash := strings.TrimSpace(hashOut)

	entry := audit.NewEntry(serviceName, "commit")
	entry.Details = fmt.Sprintf("git commit: %s - %s", hash, message)
	entry.UserApproved = approvalToken != ""
	entry.Result = audit.ResultSuccess
	s.logEntry(ctx, entry)

	return CommitResult{
		CommitHash:  hash,
		DiffSummary: fmt.Sprintf("%d files changed", len(files)),
	}, nil
}

func signatureName() string {
	return strings.TrimSuffix(strings.SplitN(commitSignature, " <", 2)[0], " ")
}

func signatureEmail() string {
	parts := strings.SplitN(commitSignature, "<", 2)
	if len(parts) != 2 {
		return "mcp@local"
	}
	return strings.TrimSuffix(parts[1], ">")
}

// CreateBranch creates a branch pointing at the current HEAD without moving
// HEAD.
func (s *Service) CreateBranch(ctx context.Context, repoPath, branchName string) error {
	decision := s.policy.CheckGitOperation(repoPath, "branch")
	if decision.Kind == policy.Deny {
		return brokererr.PolicyViolation(serviceName, "create_branch", "%s", decision.Reason)
	}

	if _, stderr, err := runGit(ctx, repoPath, "branch", branchName); err != nil {
		return brokererr.GitError(serviceName, "create_branch", fmt.Errorf("failed to create branch: %s", strings.TrimSpace(stderr)))
	}

	entry := audit.NewEntry(serviceName, "create_branch")
	entry.Details = fmt.Sprintf("created branch: %s", branchName)
	entry.Result = audit.ResultSuccess
	s.logEntry(ctx, entry)

	return nil
}

// Diff returns a unified diff of the working tree against the index (or, if
// staged, of the index against HEAD). This supplements the distilled operation set per the
// "others ... may be added" allowance; policy bucket is the same read-only
// one as status|log|diff|branch.
func (s *Service) Diff(ctx context.Context, repoPath string, staged bool) (string, error) {
	decision := s.policy.CheckGitOperation(repoPath, "diff")
	if decision.Kind == policy.Deny {
		return "", brokererr.PolicyViolation(serviceName, "diff", "%s", decision.Reason)
	}

	args := []string{"diff"}
	if staged {
		args = append(args, "--cached")
	}
	stdout, stderr, err := runGit(ctx, repoPath, args...)
	if err != nil {
		return "", brokererr.GitError(serviceName, "diff", fmt.Errorf("failed to diff: %s", strings.TrimSpace(stderr)))
	}

	entry := audit.NewEntry(serviceName, "diff")
	entry.Details = fmt.Sprintf("git diff: %s (staged=%v)", repoPath, staged)
	entry.Result = audit.ResultSuccess
	s.logEntry(ctx, entry)

	return stdout, nil
}

// CommitSummary is one entry returned by Log.
type CommitSummary struct {
	Hash    string
	Author  string
	Subject string
	Time    string
}

// Log returns the most recent limit commits. This supplements the
// distilled operation set; policy bucket is the same read-only one as
// status|log|diff|branch.
func (s *Service) Log(ctx context.Context, repoPath string, limit int) ([]CommitSummary, error) {
	decision := s.policy.CheckGitOperation(repoPath, "log")
	if decision.Kind == policy.Deny {
		return nil, brokererr.PolicyViolation(serviceName, "log", "%s", decision.Reason)
	}
	if limit <= 0 {
		limit = 20
	}

	const sep = "\x1f"
	format := "%H" + sep + "%an" + sep + "%s" + sep + "%cI"
	stdout, stderr, err := runGit(ctx, repoPath, "log", "-n", strconv.Itoa(limit), "--pretty=format:"+format)
	if err != nil {
		return nil, brokererr.GitError(serviceName, "log", fmt.Errorf("failed to read log: %s", strings.TrimSpace(stderr)))
	}

	var commits []CommitSummary
	for _, line := range strings.Split(stdout, "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, sep)
		if len(fields) != 4 {
			continue
		}
		commits = append(commits, CommitSummary{
			Hash: fields[0], Author: fields[1], Subject: fields[2], Time: fields[3],
		})
	}

	entry := audit.NewEntry(serviceName, "log")
	entry.Details = fmt.Sprintf("git log: %s (limit=%d)", repoPath, limit)
	entry.Result = audit.ResultSuccess
	s.logEntry(ctx, entry)

	return commits, nil
}

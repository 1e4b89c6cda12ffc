// Package fileservice implements the File capability service: read,
// create, append, move, copy, list_dir, and stat, each mediated by the
// standard policy → snapshot → mutate → audit template.
package fileservice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/silexa/mcp-broker/internal/audit"
	"github.com/silexa/mcp-broker/internal/brokererr"
	"github.com/silexa/mcp-broker/internal/config"
	"github.com/silexa/mcp-broker/internal/mediation"
	"github.com/silexa/mcp-broker/internal/policy"
	"github.com/silexa/mcp-broker/internal/snapshot"
)

const serviceName = "file"

// Service implements the File capability service.
type Service struct {
	cfg       *config.Store
	audit     *audit.Logger
	policy    *policy.Engine
	snapshots *snapshot.Manager
}

// New builds a File service bound to its collaborators.
func New(cfg *config.Store, auditLogger *audit.Logger, policyEngine *policy.Engine, snapshots *snapshot.Manager) *Service {
	return &Service{cfg: cfg, audit: auditLogger, policy: policyEngine, snapshots: snapshots}
}

func computeSHA256(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func (s *Service) logEntry(ctx context.Context, entry audit.Entry) {
	if _, err := s.audit.Log(ctx, entry); err != nil {
		fmt.Fprintf(os.Stderr, "audit log failed: %v\n", err)
	}
}

// ReadResult is the outcome of Read.
type ReadResult struct {
	Path    string
	Content []byte
	SHA256  string
	Size    int64
}

// Read returns path's raw bytes plus content hash and size, refusing files
// larger than config.max_file_size.
func (s *Service) Read(ctx context.Context, path string) (ReadResult, error) {
	decision := s.policy.CheckFileAccess(path, false)
	if decision.Kind == policy.Deny {
		return ReadResult{}, brokererr.PolicyViolation(serviceName, "read", "%s", decision.Reason)
	}

	info, err := os.Stat(path)
	if err != nil {
		return ReadResult{}, brokererr.NotFound(serviceName, "read", "file not found: %v", err)
	}
	if info.Size() > s.cfg.MaxFileSize() {
		return ReadResult{}, brokererr.InvalidArgument(serviceName, "read", "file exceeds maximum size of %d bytes", s.cfg.MaxFileSize())
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ReadResult{}, brokererr.FileError(serviceName, "read", err)
	}
	hash := computeSHA256(content)

	entry := audit.NewEntry(serviceName, "read")
	entry.Details = fmt.Sprintf("read file: %s", path)
	entry.Result = audit.ResultSuccess
	s.logEntry(ctx, entry)

	return ReadResult{Path: path, Content: content, SHA256: hash, Size: info.Size()}, nil
}

// CreateResult is the outcome of Create.
type CreateResult struct {
	Path       string
	SHA256     string
	SnapshotID string
}

// Create writes content to path, creating parent directories as needed. If
// the target already exists it is snapshotted first under label
// "pre-create".
func (s *Service) Create(ctx context.Context, path string, content []byte, approvalToken string, dryRun bool) (CreateResult, error) {
	decision := s.policy.CheckFileAccess(path, true)
	if gateErr := mediation.Gate(decision, approvalToken, dryRun, s.policy, serviceName, "create"); gateErr != nil {
		return CreateResult{}, gateErr
	}
	if dryRun {
		entry := audit.NewEntry(serviceName, "create")
		entry.Details = fmt.Sprintf("dry-run create: %s", path)
		entry.Result = audit.ResultSimulated
		s.logEntry(ctx, entry)
		return CreateResult{Path: path, SHA256: computeSHA256(content)}, nil
	}

	var snapshotID string
	if _, err := os.Stat(path); err == nil {
		snap, err := s.snapshots.Create([]string{path}, "pre-create")
		if err != nil {
			return CreateResult{}, brokererr.SnapshotError(serviceName, "create", err)
		}
		snapshotID = snap.ID
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return CreateResult{}, brokererr.FileError(serviceName, "create", err)
	}
	if err := writeFileAtomically(path, content); err != nil {
		return CreateResult{}, brokererr.FileError(serviceName, "create", err)
	}
	hash := computeSHA256(content)

	entry := audit.NewEntry(serviceName, "create")
	entry.Details = fmt.Sprintf("created file: %s", path)
	entry.UserApproved = approvalToken != ""
	entry.ApprovalToken = approvalToken
	entry.SnapshotID = snapshotID
	entry.Result = audit.ResultSuccess
	s.logEntry(ctx, entry)

	return CreateResult{Path: path, SHA256: hash, SnapshotID: snapshotID}, nil
}

// writeFileAtomically writes content to path via write-then-rename, the
// platform-independent fallback for "overwrite atomically if the platform
// allows."
func writeFileAtomically(path string, content []byte) error {
	tmp := path + ".mcp-tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// AppendResult is the outcome of Append.
type AppendResult struct {
	NewSize    int64
	SnapshotID string
}

// Append opens path in append mode (creating it if absent), snapshotting
// any pre-existing content first under label "pre-append".
func (s *Service) Append(ctx context.Context, path string, content []byte, approvalToken string, dryRun bool) (AppendResult, error) {
	decision := s.policy.CheckFileAccess(path, true)
	if gateErr := mediation.Gate(decision, approvalToken, dryRun, s.policy, serviceName, "append"); gateErr != nil {
		return AppendResult{}, gateErr
	}
	if dryRun {
		entry := audit.NewEntry(serviceName, "append")
		entry.Details = fmt.Sprintf("dry-run append: %s", path)
		entry.Result = audit.ResultSimulated
		s.logEntry(ctx, entry)
		return AppendResult{}, nil
	}

	var snapshotID string
	if _, err := os.Stat(path); err == nil {
		snap, err := s.snapshots.Create([]string{path}, "pre-append")
		if err != nil {
			return AppendResult{}, brokererr.SnapshotError(serviceName, "append", err)
		}
		snapshotID = snap.ID
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return AppendResult{}, brokererr.FileError(serviceName, "append", err)
	}
	defer f.Close()
	if _, err := f.Write(content); err != nil {
		return AppendResult{}, brokererr.FileError(serviceName, "append", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return AppendResult{}, brokererr.FileError(serviceName, "append", err)
	}

	entry := audit.NewEntry(serviceName, "append")
	entry.Details = fmt.Sprintf("appended to file: %s", path)
	entry.SnapshotID = snapshotID
	entry.Result = audit.ResultSuccess
	s.logEntry(ctx, entry)

	return AppendResult{NewSize: info.Size(), SnapshotID: snapshotID}, nil
}

// Move policy-checks both endpoints as writes, snapshots the source under
// label "pre-move", then renames.
func (s *Service) Move(ctx context.Context, fromPath, toPath, approvalToken string, dryRun bool) (string, error) {
	fromDecision := s.policy.CheckFileAccess(fromPath, true)
	if gateErr := mediation.Gate(fromDecision, approvalToken, dryRun, s.policy, serviceName, "move"); gateErr != nil {
		return "", gateErr
	}
	toDecision := s.policy.CheckFileAccess(toPath, true)
	if toDecision.Kind == policy.Deny {
		return "", brokererr.PolicyViolation(serviceName, "move", "%s", toDecision.Reason)
	}
	if dryRun {
		entry := audit.NewEntry(serviceName, "move")
		entry.Details = fmt.Sprintf("dry-run move %s to %s", fromPath, toPath)
		entry.Result = audit.ResultSimulated
		s.logEntry(ctx, entry)
		return "", nil
	}

	snap, err := s.snapshots.Create([]string{fromPath}, "pre-move")
	if err != nil {
		return "", brokererr.SnapshotError(serviceName, "move", err)
	}

	if err := os.Rename(fromPath, toPath); err != nil {
		return "", brokererr.FileError(serviceName, "move", err)
	}

	entry := audit.NewEntry(serviceName, "move")
	entry.Details = fmt.Sprintf("moved %s to %s", fromPath, toPath)
	entry.SnapshotID = snap.ID
	entry.Result = audit.ResultSuccess
	s.logEntry(ctx, entry)

	return snap.ID, nil
}

// Copy policy-checks source as read and destination as write. No snapshot
// is taken: overwriting the destination is a separate audited write, not a
// mutation of the source.
func (s *Service) Copy(ctx context.Context, fromPath, toPath, approvalToken string, dryRun bool) error {
	fromDecision := s.policy.CheckFileAccess(fromPath, false)
	if fromDecision.Kind == policy.Deny {
		return brokererr.PolicyViolation(serviceName, "copy", "%s", fromDecision.Reason)
	}
	toDecision := s.policy.CheckFileAccess(toPath, true)
	if gateErr := mediation.Gate(toDecision, approvalToken, dryRun, s.policy, serviceName, "copy"); gateErr != nil {
		return gateErr
	}
	if dryRun {
		entry := audit.NewEntry(serviceName, "copy")
		entry.Details = fmt.Sprintf("dry-run copy %s to %s", fromPath, toPath)
		entry.Result = audit.ResultSimulated
		s.logEntry(ctx, entry)
		return nil
	}

	if err := copyFileContents(fromPath, toPath); err != nil {
		return brokererr.FileError(serviceName, "copy", err)
	}

	entry := audit.NewEntry(serviceName, "copy")
	entry.Details = fmt.Sprintf("copied %s to %s", fromPath, toPath)
	entry.Result = audit.ResultSuccess
	s.logEntry(ctx, entry)

	return nil
}

func copyFileContents(from, to string) error {
	content, err := os.ReadFile(from)
	if err != nil {
		return err
	}
	return os.WriteFile(to, content, 0o644)
}

// DirEntry is one entry returned by ListDir.
type DirEntry struct {
	Name   string
	Path   string
	IsDir  bool
	IsFile bool
	Size   int64
}

// ListDir is non-mutating and lists path's immediate children.
func (s *Service) ListDir(path string) ([]DirEntry, error) {
	decision := s.policy.CheckFileAccess(path, false)
	if decision.Kind == policy.Deny {
		return nil, brokererr.PolicyViolation(serviceName, "list_dir", "%s", decision.Reason)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, brokererr.NotFound(serviceName, "list_dir", "directory not found: %v", err)
	}

	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return nil, brokererr.FileError(serviceName, "list_dir", err)
		}
		out = append(out, DirEntry{
			Name:   e.Name(),
			Path:   filepath.Join(path, e.Name()),
			IsDir:  info.IsDir(),
			IsFile: info.Mode().IsRegular(),
			Size:   info.Size(),
		})
	}
	return out, nil
}

// StatResult is the outcome of Stat.
type StatResult struct {
	Exists     bool
	IsFile     bool
	IsDir      bool
	Size       int64
	ModifiedAt int64
	CreatedAt  int64
}

// Stat is non-mutating and reports metadata for path.
func (s *Service) Stat(path string) (StatResult, error) {
	decision := s.policy.CheckFileAccess(path, false)
	if decision.Kind == policy.Deny {
		return StatResult{}, brokererr.PolicyViolation(serviceName, "stat", "%s", decision.Reason)
	}

	info, err := os.Stat(path)
	if err != nil {
		return StatResult{}, brokererr.NotFound(serviceName, "stat", "path not found: %v", err)
	}

	modified := info.ModTime().Unix()
	return StatResult{
		Exists:     true,
		IsFile:     info.Mode().IsRegular(),
		IsDir:      info.IsDir(),
		Size:       info.Size(),
		ModifiedAt: modified,
		// CreatedAt: the standard library exposes no portable file
		// birth time; reuse modification time as a best-effort value.
		CreatedAt: modified,
	}, nil
}

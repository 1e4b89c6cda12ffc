// Package snapshotservice is the RPC front for the Snapshot Manager: it
// exposes create/restore/list/get/delete and wraps each with an audit entry.
// It performs no policy checks: Create and Restore act on whatever paths
// they are given, including paths outside the configured allowed roots.
package snapshotservice

import (
	"context"
	"fmt"
	"os"

	"github.com/silexa/mcp-broker/internal/audit"
	"github.com/silexa/mcp-broker/internal/brokererr"
	"github.com/silexa/mcp-broker/internal/snapshot"
)

const serviceName = "snapshot"

// Service implements the Snapshot capability service.
type Service struct {
	audit     *audit.Logger
	snapshots *snapshot.Manager
}

// New builds a Snapshot service bound to its collaborators.
func New(auditLogger *audit.Logger, snapshots *snapshot.Manager) *Service {
	return &Service{audit: auditLogger, snapshots: snapshots}
}

func (s *Service) logEntry(ctx context.Context, entry audit.Entry) {
	if _, err := s.audit.Log(ctx, entry); err != nil {
		fmt.Fprintf(os.Stderr, "audit log failed: %v\n", err)
	}
}

// Create captures paths into a new snapshot labelled label.
func (s *Service) Create(ctx context.Context, paths []string, label string) (snapshot.Snapshot, error) {
	snap, err := s.snapshots.Create(paths, label)
	if err != nil {
		return snapshot.Snapshot{}, brokererr.SnapshotError(serviceName, "create", err)
	}

	entry := audit.NewEntry(serviceName, "create")
	entry.Details = fmt.Sprintf("created snapshot: %s - %s", snap.ID, label)
	entry.Result = audit.ResultSuccess
	s.logEntry(ctx, entry)

	return snap, nil
}

// Restore writes back the files captured in snapshotID, optionally
// filtered to targetPaths.
func (s *Service) Restore(ctx context.Context, snapshotID string, targetPaths []string) ([]string, error) {
	restored, err := s.snapshots.Restore(snapshotID, targetPaths)
	if err != nil {
		return nil, brokererr.SnapshotError(serviceName, "restore", err)
	}

	entry := audit.NewEntry(serviceName, "restore")
	entry.Details = fmt.Sprintf("restored snapshot: %s (%d files)", snapshotID, len(restored))
	entry.Result = audit.ResultSuccess
	s.logEntry(ctx, entry)

	return restored, nil
}

// SnapshotInfo is a summary entry returned by List.
type SnapshotInfo struct {
	ID        string
	Label     string
	CreatedAt string
	FileCount int
}

// List returns a summary of every known snapshot.
func (s *Service) List() []SnapshotInfo {
	snaps := s.snapshots.List()
	out := make([]SnapshotInfo, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, SnapshotInfo{
			ID:        snap.ID,
			Label:     snap.Label,
			CreatedAt: snap.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			FileCount: len(snap.Files),
		})
	}
	return out
}

// Get returns the full snapshot record for id, if it exists.
func (s *Service) Get(id string) (snapshot.Snapshot, error) {
	snap, ok := s.snapshots.Get(id)
	if !ok {
		return snapshot.Snapshot{}, brokererr.NotFound(serviceName, "get", "snapshot '%s' not found", id)
	}
	return snap, nil
}

// Delete removes a snapshot's directory and its index entry.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.snapshots.Delete(id); err != nil {
		return brokererr.NotFound(serviceName, "delete", "%v", err)
	}

	entry := audit.NewEntry(serviceName, "delete")
	entry.Details = fmt.Sprintf("deleted snapshot: %s", id)
	entry.Result = audit.ResultSuccess
	s.logEntry(ctx, entry)

	return nil
}

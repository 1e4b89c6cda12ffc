// Package snapshot implements the broker's content-addressed pre-mutation
// checkpoints: every file a mutating capability is about to touch can be
// captured here first and rolled back later via Restore.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileSnapshot is one captured file within a Snapshot.
type FileSnapshot struct {
	OriginalPath string `json:"original_path"`
	SnapshotPath string `json:"snapshot_path"`
	SHA256       string `json:"sha256"`
	Size         int64  `json:"size"`
}

// Snapshot is a named, persisted set of FileSnapshots captured at a point in
// time.
type Snapshot struct {
	ID        string                  `json:"id"`
	Label     string                  `json:"label"`
	CreatedAt time.Time               `json:"created_at"`
	Paths     []string                `json:"paths"`
	Files     map[string]FileSnapshot `json:"files"`
}

// Manager is the content-addressed blob store and its in-memory index.
// Index mutation and disk persistence both happen while holding mu, so a
// crash between the memory update and the index.json write reverts to the
// last persisted index on the next Open — at-most-once durability for
// creates, matching the source's behaviour.
type Manager struct {
	mu        sync.Mutex
	baseDir   string
	snapshots map[string]Snapshot
}

// Open creates baseDir if needed and loads any existing index.json.
func Open(baseDir string) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	m := &Manager{baseDir: baseDir, snapshots: map[string]Snapshot{}}
	if err := m.loadIndex(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) indexPath() string {
	return filepath.Join(m.baseDir, "index.json")
}

func (m *Manager) loadIndex() error {
	data, err := os.ReadFile(m.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read snapshot index: %w", err)
	}
	var snapshots map[string]Snapshot
	if err := json.Unmarshal(data, &snapshots); err != nil {
		return fmt.Errorf("parse snapshot index: %w", err)
	}
	m.snapshots = snapshots
	return nil
}

// saveIndex must be called with mu held.
func (m *Manager) saveIndex() error {
	data, err := json.MarshalIndent(m.snapshots, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot index: %w", err)
	}
	tmp := m.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot index: %w", err)
	}
	if err := os.Rename(tmp, m.indexPath()); err != nil {
		return fmt.Errorf("rename snapshot index: %w", err)
	}
	return nil
}

// Create captures every regular file under paths (files snapshotted
// directly, directories walked recursively) into a new Snapshot labelled
// label. Symlinks, sockets, and other non-regular entries are silently
// ignored — a snapshot is best-effort on *which* files it captures, but an
// I/O error reading a file it does attempt to capture propagates.
func (m *Manager) Create(paths []string, label string) (Snapshot, error) {
	id := uuid.NewString()
	snapshotDir := filepath.Join(m.baseDir, id)
	if err := os.MkdirAll(snapshotDir, 0o755); err != nil {
		return Snapshot{}, fmt.Errorf("create snapshot dir: %w", err)
	}

	files := map[string]FileSnapshot{}
	for _, p := range paths {
		info, err := os.Lstat(p)
		if err != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}
		if info.Mode().IsRegular() {
			fileSnap, err := m.snapshotFile(p, snapshotDir)
			if err != nil {
				return Snapshot{}, err
			}
			files[p] = fileSnap
			continue
		}
		if info.IsDir() {
			if err := m.snapshotDir(p, snapshotDir, files); err != nil {
				return Snapshot{}, err
			}
		}
	}

	snap := Snapshot{
		ID:        id,
		Label:     label,
		CreatedAt: time.Now().UTC(),
		Paths:     append([]string(nil), paths...),
		Files:     files,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[id] = snap
	if err := m.saveIndex(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (m *Manager) snapshotDir(root, snapshotDir string, files map[string]FileSnapshot) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable entries are ignored, not fatal, per the
			// best-effort-capture design.
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fileSnap, snapErr := m.snapshotFile(p, snapshotDir)
		if snapErr != nil {
			return snapErr
		}
		files[p] = fileSnap
		return nil
	})
}

// snapshotFile hashes path's content and writes it under snapshotDir unless
// a blob with that hash already exists there — content-addressed
// idempotency within one snapshot.
func (m *Manager) snapshotFile(path, snapshotDir string) (FileSnapshot, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return FileSnapshot{}, fmt.Errorf("read %s for snapshot: %w", path, err)
	}
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])
	blobPath := filepath.Join(snapshotDir, hash)
	if _, err := os.Stat(blobPath); os.IsNotExist(err) {
		if err := os.WriteFile(blobPath, content, 0o644); err != nil {
			return FileSnapshot{}, fmt.Errorf("write blob for %s: %w", path, err)
		}
	}
	return FileSnapshot{
		OriginalPath: path,
		SnapshotPath: blobPath,
		SHA256:       hash,
		Size:         int64(len(content)),
	}, nil
}

// Restore writes back every captured file in snapshot id whose original
// path matches targetPaths (or every file, if targetPaths is nil), creating
// missing parent directories and overwriting existing contents
// unconditionally. Restoration is not atomic across files: a failure
// mid-restore leaves the filesystem partially restored, and the returned
// slice reflects only what was successfully written.
func (m *Manager) Restore(id string, targetPaths []string) ([]string, error) {
	m.mu.Lock()
	snap, ok := m.snapshots[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("snapshot '%s' not found", id)
	}

	var restored []string
	for originalPath, fileSnap := range snap.Files {
		if !shouldRestore(originalPath, targetPaths) {
			continue
		}
		content, err := os.ReadFile(fileSnap.SnapshotPath)
		if err != nil {
			return restored, fmt.Errorf("read blob for %s: %w", originalPath, err)
		}
		if err := os.MkdirAll(filepath.Dir(originalPath), 0o755); err != nil {
			return restored, fmt.Errorf("create parent dir for %s: %w", originalPath, err)
		}
		if err := os.WriteFile(originalPath, content, 0o644); err != nil {
			return restored, fmt.Errorf("write %s: %w", originalPath, err)
		}
		restored = append(restored, originalPath)
	}
	return restored, nil
}

func shouldRestore(originalPath string, targetPaths []string) bool {
	if targetPaths == nil {
		return true
	}
	for _, target := range targetPaths {
		if strings.HasPrefix(originalPath, target) {
			return true
		}
	}
	return false
}

// List returns every known snapshot.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		out = append(out, s)
	}
	return out
}

// Get returns the snapshot with id, and whether it was found.
func (m *Manager) Get(id string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[id]
	return s, ok
}

// Delete removes the snapshot's directory and its index entry.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[id]; !ok {
		return fmt.Errorf("snapshot '%s' not found", id)
	}
	delete(m.snapshots, id)

	snapshotDir := filepath.Join(m.baseDir, id)
	if _, err := os.Stat(snapshotDir); err == nil {
		if err := os.RemoveAll(snapshotDir); err != nil {
			return fmt.Errorf("remove snapshot dir: %w", err)
		}
	}
	return m.saveIndex()
}

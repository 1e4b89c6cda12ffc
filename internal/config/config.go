// Package config loads and persists the broker's process-wide configuration
// document, and provides the canonicalised-path and whitelist lookups the
// policy engine depends on.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LLMConfig is the sub-object under the "llm_config" key. The broker does not
// itself talk to an LLM provider; this is carried through config only so the
// desktop front-end (out of scope here) can read a consistent document.
type LLMConfig struct {
	Provider string `json:"provider"`
	Endpoint string `json:"endpoint,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Config is the broker's process-wide, read-mostly configuration document.
type Config struct {
	ServerAddress       string    `json:"server_address"`
	AllowedPaths        []string  `json:"allowed_paths"`
	WhitelistedCommands []string  `json:"whitelisted_commands"`
	AuditDBPath         string    `json:"audit_db_path"`
	SnapshotDir         string    `json:"snapshot_dir"`
	MaxFileSize         int64     `json:"max_file_size"`
	DryRunDefault       bool      `json:"dry_run_default"`
	AutoApprovePatterns []string  `json:"auto_approve_patterns"`
	SensitivePatterns   []string  `json:"sensitive_patterns"`
	SandboxEnabled      bool      `json:"sandbox_enabled"`
	LLMConfig           LLMConfig `json:"llm_config"`
}

// systemGuardSubstrings is part of the policy contract, not the config
// document — see policy.CheckFileAccess.
var systemGuardSubstrings = []string{"system32", "windows", "/etc"}

// Default returns the broker's default configuration, rooted under the
// caller's home directory.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	mcpDir := filepath.Join(home, ".mcp")
	return Config{
		ServerAddress: "127.0.0.1:50051",
		AllowedPaths: []string{
			filepath.Join(home, "projects"),
			filepath.Join(home, "Documents"),
			filepath.Join(home, "Desktop"),
		},
		WhitelistedCommands: []string{
			"git", "npm", "pnpm", "yarn", "node", "python", "python3",
			"cargo", "rustc", "dotnet", "code", "docker",
		},
		AuditDBPath:   filepath.Join(mcpDir, "audit.db"),
		SnapshotDir:   filepath.Join(mcpDir, "snapshots"),
		MaxFileSize:   10 * 1024 * 1024,
		DryRunDefault: true,
		AutoApprovePatterns: []string{
			"git status", "git log", "git diff", "npm list",
		},
		SensitivePatterns: []string{
			"rm -rf", "del /s", "format", "shutdown", "reboot", "git push --force",
		},
		SandboxEnabled: true,
		LLMConfig: LLMConfig{
			Provider: "mock",
			Model:    "gpt-4",
		},
	}
}

// ConfigPath returns the fixed location of the configuration document:
// <home>/.mcp/config.json.
func ConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".mcp", "config.json")
}

// Store holds the live Config behind a read-write lock, the Go analogue of
// the source's Arc<RwLock<Config>>.
type Store struct {
	mu   sync.RWMutex
	path string
	cfg  Config
}

// Load reads the configuration document at ConfigPath, writing defaults on
// first run.
func Load() (*Store, error) {
	path := ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		s := &Store{path: path, cfg: Default()}
		if err := s.save(s.cfg); err != nil {
			return nil, err
		}
		return s, nil
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &Store{path: path, cfg: cfg}, nil
}

// Snapshot returns a copy of the current configuration, safe to read without
// holding any lock.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Replace swaps in a new configuration and persists it.
func (s *Store) Replace(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(cfg); err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

// save writes cfg to disk via a temp-file-then-rename, the same atomic-write
// idiom used elsewhere in this codebase for the snapshot index.
func (s *Store) save(cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// IsPathAllowed reports whether the already-canonicalised path is a
// descendant of (or equal to) one of the configured allowed roots.
func (s *Store) IsPathAllowed(canonicalPath string) bool {
	s.mu.RLock()
	roots := append([]string(nil), s.cfg.AllowedPaths...)
	s.mu.RUnlock()

	for _, root := range roots {
		rootCanonical, err := Canonicalize(root)
		if err != nil {
			continue
		}
		if isDescendant(canonicalPath, rootCanonical) {
			return true
		}
	}
	return false
}

// IsCommandWhitelisted reports whether cmd appears verbatim in the
// configured command whitelist.
func (s *Store) IsCommandWhitelisted(cmd string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.cfg.WhitelistedCommands {
		if c == cmd {
			return true
		}
	}
	return false
}

// AutoApprovePatterns returns a copy of the configured auto-approve patterns.
func (s *Store) AutoApprovePatterns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.cfg.AutoApprovePatterns...)
}

// SensitivePatterns returns a copy of the configured sensitive patterns.
func (s *Store) SensitivePatterns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.cfg.SensitivePatterns...)
}

// MaxFileSize returns the configured maximum size for file.read, in bytes.
func (s *Store) MaxFileSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.MaxFileSize
}

// ContainsSystemGuardSubstring reports whether the lowercased path contains
// one of the fixed system-directory guard substrings. This list is part of
// the policy contract, not configurable.
func ContainsSystemGuardSubstring(path string) bool {
	lower := strings.ToLower(path)
	for _, guard := range systemGuardSubstrings {
		if strings.Contains(lower, guard) {
			return true
		}
	}
	return false
}

// Canonicalize resolves symlinks and relative components. Unlike
// filepath.Abs, it requires the path to actually exist on disk, matching the
// source's PathBuf::canonicalize semantics.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// CanonicalizeForWrite canonicalises path for a write operation: if path
// itself does not yet exist (the common case for file.create), it
// canonicalises the parent directory instead and rejoins the base name,
// failing only when the parent is itself broken or missing.
func CanonicalizeForWrite(path string) (string, error) {
	if canonical, err := Canonicalize(path); err == nil {
		return canonical, nil
	}
	parent := filepath.Dir(path)
	parentCanonical, err := Canonicalize(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(parentCanonical, filepath.Base(path)), nil
}

// isDescendant reports whether candidate is root itself or lives under it.
func isDescendant(candidate, root string) bool {
	if candidate == root {
		return true
	}
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Package audit implements the broker's durable, append-only audit log,
// backed by an embedded SQLite database — the same modernc.org/sqlite,
// single-connection, WAL-journaled store this codebase uses elsewhere.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry mirrors the fixed audit_log row shape. Once written, an Entry is
// never rewritten — the log is append-only.
type Entry struct {
	ID            string
	Timestamp     time.Time
	Action        string
	Service       string
	Details       string
	UserApproved  bool
	ApprovalToken string
	Result        string
	SnapshotID    string
}

// Result values used across capability services.
const (
	ResultPending   = "pending"
	ResultSimulated = "simulated"
	ResultSuccess   = "success"
	ResultFailed    = "failed"
	ResultDenied    = "denied"
)

// NewEntry is the factory that pre-fills id, timestamp, and a pending
// result — the Go analogue of AuditLogger::create_entry.
func NewEntry(service, action string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		Service:   service,
		Result:    ResultPending,
	}
}

// Logger is the durable audit store. The underlying *sql.DB is capped at a
// single open connection, which has database/sql itself serialise writers —
// the same post-v4 idiom the rest of this codebase uses for its own SQLite
// stores. The database is put in WAL mode, but with the pool capped at one
// connection, reads and writes still take turns on that connection.
type Logger struct {
	db *sql.DB
}

// Open creates (or reuses) the audit database at path, migrating its schema
// in place.
func Open(path string) (*Logger, error) {
	if path == "" {
		return nil, fmt.Errorf("audit db path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	l := &Logger{db: db}
	if err := l.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Logger) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			action TEXT NOT NULL,
			service TEXT NOT NULL,
			details TEXT NOT NULL,
			user_approved INTEGER NOT NULL,
			approval_token TEXT,
			result TEXT NOT NULL,
			snapshot_id TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate audit db: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (l *Logger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Log inserts entry as a single row and returns its id. This is the only
// audit operation every capability service calls; per spec.md §7, write
// failures here are swallowed by the caller (logged to stderr, never
// propagated) in preference to failing a user-visible action.
func (l *Logger) Log(ctx context.Context, entry Entry) (string, error) {
	var approvalToken sql.NullString
	if entry.ApprovalToken != "" {
		approvalToken = sql.NullString{String: entry.ApprovalToken, Valid: true}
	}
	var snapshotID sql.NullString
	if entry.SnapshotID != "" {
		snapshotID = sql.NullString{String: entry.SnapshotID, Valid: true}
	}
	approved := 0
	if entry.UserApproved {
		approved = 1
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, action, service, details, user_approved, approval_token, result, snapshot_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp.Format(time.RFC3339Nano), entry.Action, entry.Service,
		entry.Details, approved, approvalToken, entry.Result, snapshotID,
	)
	if err != nil {
		return "", fmt.Errorf("insert audit entry: %w", err)
	}
	return entry.ID, nil
}

// Query is the AND-composed, timestamp-descending filtered read path. limit
// is mandatory and bounds the result set.
type Query struct {
	Service *string
	Action  *string
	From    *time.Time
	To      *time.Time
	Limit   int
}

// Query runs the filtered read and returns matching entries, newest first.
func (l *Logger) Query(ctx context.Context, q Query) ([]Entry, error) {
	var sb strings.Builder
	sb.WriteString("SELECT id, timestamp, action, service, details, user_approved, approval_token, result, snapshot_id FROM audit_log WHERE 1=1")
	var args []any

	if q.Service != nil {
		sb.WriteString(" AND service = ?")
		args = append(args, *q.Service)
	}
	if q.Action != nil {
		sb.WriteString(" AND action = ?")
		args = append(args, *q.Action)
	}
	if q.From != nil {
		sb.WriteString(" AND timestamp >= ?")
		args = append(args, q.From.UTC().Format(time.RFC3339Nano))
	}
	if q.To != nil {
		sb.WriteString(" AND timestamp <= ?")
		args = append(args, q.To.UTC().Format(time.RFC3339Nano))
	}
	sb.WriteString(" ORDER BY timestamp DESC LIMIT ?")
	args = append(args, q.Limit)

	rows, err := l.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e             Entry
			ts            string
			approved      int
			approvalToken sql.NullString
			snapshotID    sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Action, &e.Service, &e.Details, &approved, &approvalToken, &e.Result, &snapshotID); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse audit timestamp: %w", err)
		}
		e.Timestamp = parsed
		e.UserApproved = approved != 0
		e.ApprovalToken = approvalToken.String
		e.SnapshotID = snapshotID.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return entries, nil
}

// Count returns the total number of audit entries ever written.
func (l *Logger) Count(ctx context.Context) (int64, error) {
	var count int64
	row := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log")
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit log: %w", err)
	}
	return count, nil
}

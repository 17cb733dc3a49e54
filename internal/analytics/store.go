// Package analytics records privacy-conscious page view statistics in SQLite.
//
// Visitor addresses are never stored: they are hashed with a per-process salt
// and truncated. Records older than the retention window are purged.
package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Retention is how long view records are kept.
const Retention = 365 * 24 * time.Hour

// ErrUnknownAction is returned for actions the page does not offer.
var ErrUnknownAction = errors.New("analytics: unknown action")

// Actions offered by the page footer.
const (
	ActionDownload = "download"
	ActionPrint    = "print"
	ActionShare    = "share"
)

// View is one page view as stored.
type View struct {
	ID          string     `json:"id"`
	HashedIP    string     `json:"hashed_ip"`
	UserAgent   string     `json:"user_agent"`
	Capability  string     `json:"capability,omitempty"`
	FailOpen    bool       `json:"fail_open"`
	OpenedAt    time.Time  `json:"opened_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	CloseReason string     `json:"close_reason,omitempty"`
	Revealed    int        `json:"revealed"`
}

// Store wraps SQLite access.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps :memory: databases shared and serializes writes
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS page_views (
			id TEXT PRIMARY KEY,
			hashed_ip TEXT NOT NULL,
			user_agent TEXT,
			capability TEXT NOT NULL DEFAULT '',
			fail_open INTEGER NOT NULL DEFAULT 0,
			opened_at DATETIME NOT NULL,
			closed_at DATETIME,
			close_reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS reveals (
			view_id TEXT NOT NULL,
			region TEXT NOT NULL,
			revealed_at DATETIME NOT NULL,
			PRIMARY KEY (view_id, region)
		)`,
		`CREATE TABLE IF NOT EXISTS actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			view_id TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			outcome TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_page_views_opened ON page_views(opened_at)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_created ON actions(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// RecordView stores a newly opened view.
func (s *Store) RecordView(ctx context.Context, id, hashedIP, userAgent string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO page_views (id, hashed_ip, user_agent, opened_at)
		VALUES (?, ?, ?, ?)
	`, id, hashedIP, userAgent, s.now())
	if err != nil {
		return fmt.Errorf("record view %s: %w", id, err)
	}
	return nil
}

// RecordStart stores how the view's tracker started.
func (s *Store) RecordStart(ctx context.Context, id, capability string, failOpen bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE page_views SET capability = ?, fail_open = ? WHERE id = ?
	`, capability, failOpen, id)
	if err != nil {
		return fmt.Errorf("record start %s: %w", id, err)
	}
	return nil
}

// RecordReveal stores that region was revealed in view id. Repeats are ignored.
func (s *Store) RecordReveal(ctx context.Context, id, region string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO reveals (view_id, region, revealed_at)
		VALUES (?, ?, ?)
	`, id, region, s.now())
	if err != nil {
		return fmt.Errorf("record reveal %s/%s: %w", id, region, err)
	}
	return nil
}

// CloseView marks a view closed. Closing twice keeps the first close.
func (s *Store) CloseView(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE page_views SET closed_at = ?, close_reason = ?
		WHERE id = ? AND closed_at IS NULL
	`, s.now(), reason, id)
	if err != nil {
		return fmt.Errorf("close view %s: %w", id, err)
	}
	return nil
}

// RecordAction stores a footer action. viewID may be empty.
func (s *Store) RecordAction(ctx context.Context, viewID, action, outcome string) error {
	switch action {
	case ActionDownload, ActionPrint, ActionShare:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actions (view_id, action, outcome, created_at)
		VALUES (?, ?, ?, ?)
	`, viewID, action, outcome, s.now())
	if err != nil {
		return fmt.Errorf("record action %s: %w", action, err)
	}
	return nil
}

// Cleanup removes records older than Retention and returns the number of
// views removed.
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-Retention)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin cleanup: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM reveals WHERE view_id IN (SELECT id FROM page_views WHERE opened_at < ?)
	`, cutoff); err != nil {
		return 0, fmt.Errorf("cleanup reveals: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM page_views WHERE opened_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup views: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM actions WHERE created_at < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("cleanup actions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit cleanup: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Package sqlite provides a SQLite-backed cheatsheet store for single-node
// deployments that want durability without a database server. Uses the
// CGO-free modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/memory"
)

// Store implements memory.Store on SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// New opens (or creates) the database file and ensures the schema exists.
func New(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite tolerates a single writer.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS cheatsheet_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			signature TEXT NOT NULL,
			content TEXT NOT NULL,
			source_query_id TEXT,
			usage_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_cheatsheet_session_position
			ON cheatsheet_entries (session_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_cheatsheet_session_signature
			ON cheatsheet_entries (session_id, signature)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Append(ctx context.Context, sessionID string, entries []memory.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM cheatsheet_entries WHERE session_id = ?`,
		sessionID,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("next position: %w", err)
	}

	for i, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cheatsheet_entries
				(session_id, position, signature, content, source_query_id, usage_count, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sessionID, next+i, e.Signature, e.Content, e.SourceQueryID, e.UsageCount, e.CreatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) Replace(ctx context.Context, sessionID string, entries []memory.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cheatsheet_entries WHERE session_id = ?`, sessionID,
	); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	for i, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cheatsheet_entries
				(session_id, position, signature, content, source_query_id, usage_count, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sessionID, i, e.Signature, e.Content, e.SourceQueryID, e.UsageCount, e.CreatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) List(ctx context.Context, sessionID string) ([]memory.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT signature, content, source_query_id, usage_count, created_at
		 FROM cheatsheet_entries
		 WHERE session_id = ?
		 ORDER BY position`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []memory.Entry
	for rows.Next() {
		var e memory.Entry
		var sourceQueryID sql.NullString
		var createdAt string
		if err := rows.Scan(&e.Signature, &e.Content, &sourceQueryID, &e.UsageCount, &createdAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if sourceQueryID.Valid {
			e.SourceQueryID = sourceQueryID.String
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		e.CreatedAt = ts
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Snapshot(ctx context.Context, sessionID string) (string, error) {
	entries, err := s.List(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return memory.Render(entries), nil
}

func (s *Store) MarkUsed(ctx context.Context, sessionID string, signatures []string) error {
	if len(signatures) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, sig := range signatures {
		if _, err := tx.ExecContext(ctx,
			`UPDATE cheatsheet_entries
			 SET usage_count = usage_count + 1
			 WHERE session_id = ? AND signature = ?`,
			sessionID, sig,
		); err != nil {
			return fmt.Errorf("mark used: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM cheatsheet_entries WHERE session_id = ?`, sessionID,
	); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT session_id FROM cheatsheet_entries ORDER BY session_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) Locator(sessionID string) string {
	return fmt.Sprintf("sqlite://%s#%s", s.path, sessionID)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DBStats exposes connection pool statistics for metrics collection.
func (s *Store) DBStats() sql.DBStats {
	return s.db.Stats()
}

func (s *Store) Close() error {
	return s.db.Close()
}

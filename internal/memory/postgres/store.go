// Package postgres provides a PostgreSQL-backed cheatsheet store. Entries
// live in a single table ordered by an explicit per-session position column.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/memory"
)

// Config contains PostgreSQL connection settings.
type Config struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	User         string        `yaml:"user"`
	Password     string        `yaml:"password"`
	Database     string        `yaml:"database"`
	SSLMode      string        `yaml:"ssl_mode"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	ConnLifetime time.Duration `yaml:"conn_lifetime"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         5432,
		Database:     "cheatsheet",
		SSLMode:      "disable",
		MaxOpenConns: 25,
		MaxIdleConns: 5,
		ConnLifetime: 5 * time.Minute,
	}
}

// Store implements memory.Store on PostgreSQL.
type Store struct {
	db       *sql.DB
	database string
}

// New opens the connection pool, verifies connectivity, and ensures the
// schema exists.
func New(cfg Config) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{db: db, database: cfg.Database}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewFromDB wraps an existing connection. Used by tests.
func NewFromDB(db *sql.DB, database string) (*Store, error) {
	store := &Store{db: db, database: database}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS cheatsheet_entries (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			signature TEXT NOT NULL,
			content TEXT NOT NULL,
			source_query_id TEXT,
			usage_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_cheatsheet_session_position
			ON cheatsheet_entries (session_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_cheatsheet_session_signature
			ON cheatsheet_entries (session_id, signature)`,
	}
	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
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
		`SELECT COALESCE(MAX(position), -1) + 1 FROM cheatsheet_entries WHERE session_id = $1`,
		sessionID,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("next position: %w", err)
	}

	for i, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cheatsheet_entries
				(session_id, position, signature, content, source_query_id, usage_count, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			sessionID, next+i, e.Signature, e.Content, e.SourceQueryID, e.UsageCount, e.CreatedAt,
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
		`DELETE FROM cheatsheet_entries WHERE session_id = $1`, sessionID,
	); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	for i, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cheatsheet_entries
				(session_id, position, signature, content, source_query_id, usage_count, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			sessionID, i, e.Signature, e.Content, e.SourceQueryID, e.UsageCount, e.CreatedAt,
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
		 WHERE session_id = $1
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
		if err := rows.Scan(&e.Signature, &e.Content, &sourceQueryID, &e.UsageCount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if sourceQueryID.Valid {
			e.SourceQueryID = sourceQueryID.String
		}
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
	_, err := s.db.ExecContext(ctx,
		`UPDATE cheatsheet_entries
		 SET usage_count = usage_count + 1
		 WHERE session_id = $1 AND signature = ANY($2)`,
		sessionID, pq.Array(signatures),
	)
	if err != nil {
		return fmt.Errorf("mark used: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM cheatsheet_entries WHERE session_id = $1`, sessionID,
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
	return fmt.Sprintf("postgres://%s/cheatsheet_entries/%s", s.database, sessionID)
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

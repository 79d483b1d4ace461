package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"design-coach/internal/domain"
)

// SQLiteArchive stores one row per session and one row per turn.
type SQLiteArchive struct {
	db *sql.DB
	mu sync.Mutex // serializes writers to avoid SQLITE_BUSY
}

// NewSQLite opens (creating if needed) the archive database at dbPath.
func NewSQLite(dbPath string) (*SQLiteArchive, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("repository: create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: ping database: %w", err)
	}

	a := &SQLiteArchive{db: db}
	if err := a.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: initialize schema: %w", err)
	}
	return a, nil
}

func (a *SQLiteArchive) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS conversations (
		session_id TEXT PRIMARY KEY,
		turns INTEGER NOT NULL,
		percentage INTEGER NOT NULL,
		progress_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turns (
		session_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		user_content TEXT NOT NULL,
		user_at INTEGER NOT NULL,
		assistant_content TEXT NOT NULL,
		assistant_at INTEGER NOT NULL,
		percentage INTEGER NOT NULL,
		recorded_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, turn)
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
	`
	if _, err := a.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// SaveTurn inserts the turn and upserts the session row in one transaction.
func (a *SQLiteArchive) SaveTurn(ctx context.Context, turn domain.Turn) error {
	progress, err := json.Marshal(turn.Progress)
	if err != nil {
		return fmt.Errorf("repository: marshal progress: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO turns (session_id, turn, user_content, user_at, assistant_content, assistant_at, percentage, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.SessionID, turn.Number,
		turn.User.Content, turn.User.Timestamp.UnixMilli(),
		turn.Assistant.Content, turn.Assistant.Timestamp.UnixMilli(),
		turn.Percentage, turn.RecordedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("repository: insert turn: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO conversations (session_id, turns, percentage, progress_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		turns = excluded.turns,
		percentage = excluded.percentage,
		progress_json = excluded.progress_json,
		updated_at = excluded.updated_at`,
		turn.SessionID, turn.Number, turn.Percentage, string(progress),
		turn.CreatedAt.UnixMilli(), turn.RecordedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("repository: upsert conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository: commit turn: %w", err)
	}
	return nil
}

func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

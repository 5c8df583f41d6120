// Package store provides the sqlite-backed message and session stores the
// memory engine consumes. The engine itself only sees the interfaces in
// internal/memory; this package is the default durable implementation.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
	mu sync.Mutex

	maxMessagesPerChat int
	maxMessageChars    int
}

type Options struct {
	MaxMessagesPerChat int
	MaxMessageChars    int
}

func Open(dbPath string, opts Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{
		db:                 db,
		maxMessagesPerChat: opts.MaxMessagesPerChat,
		maxMessageChars:    opts.MaxMessageChars,
	}
	if s.maxMessagesPerChat <= 0 {
		s.maxMessagesPerChat = 2000
	}
	if s.maxMessageChars <= 0 {
		s.maxMessageChars = 2000
	}

	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL,
			sender TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			ts INTEGER NOT NULL,
			embedding BLOB,
			embedding_model TEXT NOT NULL DEFAULT '',
			embedding_dim INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_ts ON messages(chat_id, ts)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 0,
			participants TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'open',
			summary_text TEXT,
			topic_tags TEXT NOT NULL DEFAULT '[]',
			summary_version INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		// One open session per chat, enforced by the database itself.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_open ON sessions(chat_id) WHERE status = 'open'`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_chat_status ON sessions(chat_id, status, ended_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

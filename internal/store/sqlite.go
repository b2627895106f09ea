package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	// register sqlite driver
	_ "modernc.org/sqlite"
)

// SQLiteStore implements MessageStore backed by SQLite. One file, no
// server — the relay is a single binary and its history survives restarts
// even though streaming state does not.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite store at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	text TEXT NOT NULL,
	model TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL CHECK(status IN ('sent','error')),
	error_code TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AppendFinishedMessage implements MessageStore.
func (s *SQLiteStore) AppendFinishedMessage(ctx context.Context, conversationID string, msg FinishedMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	created := msg.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO messages(id, conversation_id, text, model, status, error_code, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?)`,
		msg.ID,
		conversationID,
		msg.Text,
		msg.Model,
		msg.Status,
		msg.ErrorCode,
		created,
	)
	return err
}

// Messages implements MessageStore.
func (s *SQLiteStore) Messages(ctx context.Context, conversationID string) ([]FinishedMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, text, model, status, error_code, created_at
FROM messages
WHERE conversation_id = ?
ORDER BY created_at, id`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FinishedMessage
	for rows.Next() {
		var m FinishedMessage
		if err := rows.Scan(&m.ID, &m.Text, &m.Model, &m.Status, &m.ErrorCode, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

var _ MessageStore = (*SQLiteStore)(nil)

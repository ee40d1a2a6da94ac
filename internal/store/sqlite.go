package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/ingelean/inge-go/internal/chat"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id         TEXT PRIMARY KEY,
    metrics    TEXT NOT NULL DEFAULT '{}',
    updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS messages (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL,
    sender          TEXT NOT NULL,
    text            TEXT NOT NULL,
    created_at      DATETIME
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
`

// SQLiteStore keeps conversations and their message sub-records in an
// embedded sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates, on first use) the store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_busy_timeout=10000&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("sqlite open failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema creation failed: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveMessage(ctx context.Context, conversationID string, msg chat.Message) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (id, updated_at) VALUES (?,?);`,
		conversationID, msg.CreatedAt); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, sender, text, created_at) VALUES (?,?,?,?);`,
		conversationID, string(msg.Sender), msg.Text, msg.CreatedAt)
	return err
}

func (s *SQLiteStore) UpsertMetrics(ctx context.Context, conversationID string, m chat.Metrics, updatedAt time.Time) error {
	blob, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, metrics, updated_at) VALUES (?,?,?)
		 ON CONFLICT(id) DO UPDATE SET metrics = excluded.metrics, updated_at = excluded.updated_at;`,
		conversationID, string(blob), updatedAt)
	return err
}

// SaveArchive writes a full session snapshot in one transaction. Used on
// reset so superseded conversations stay readable from the dashboard even
// when per-message mirroring lagged behind.
func (s *SQLiteStore) SaveArchive(ctx context.Context, a chat.Archive) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	blob, err := json.Marshal(a.Metrics)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, metrics, updated_at) VALUES (?,?,?)
		 ON CONFLICT(id) DO UPDATE SET metrics = excluded.metrics, updated_at = excluded.updated_at;`,
		a.ID, string(blob), a.Timestamp); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = ?;`, a.ID); err != nil {
		return err
	}
	for _, msg := range a.Messages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (conversation_id, sender, text, created_at) VALUES (?,?,?,?);`,
			a.ID, string(msg.Sender), msg.Text, msg.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListConversations(ctx context.Context) ([]ConversationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, metrics, updated_at FROM conversations ORDER BY updated_at DESC;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ConversationRecord
	for rows.Next() {
		var rec ConversationRecord
		var blob string
		var updated sql.NullTime
		if err := rows.Scan(&rec.ID, &blob, &updated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(blob), &rec.Metrics); err != nil {
			rec.Metrics = chat.Metrics{}
		}
		if updated.Valid {
			rec.UpdatedAt = updated.Time
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range records {
		msgs, err := s.listMessages(ctx, records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Messages = msgs
	}
	return records, nil
}

func (s *SQLiteStore) listMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sender, text, created_at FROM messages WHERE conversation_id = ? ORDER BY id ASC;`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var msg chat.Message
		var sender string
		var created sql.NullTime
		if err := rows.Scan(&sender, &msg.Text, &created); err != nil {
			return nil, err
		}
		msg.Sender = chat.Sender(sender)
		if created.Valid {
			msg.CreatedAt = created.Time
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

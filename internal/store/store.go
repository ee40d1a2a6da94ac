// Package store is the conversation store port: durable, document-style
// storage of transcripts and metrics, retained across sessions. Writes are
// best-effort mirrors of the controller's in-memory state.
package store

import (
	"context"
	"time"

	"github.com/ingelean/inge-go/internal/chat"
)

// ConversationRecord is one stored conversation as the dashboard reads it.
type ConversationRecord struct {
	ID        string         `json:"id"`
	Messages  []chat.Message `json:"messages"`
	Metrics   chat.Metrics   `json:"metrics"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Store persists conversation documents keyed by id, each with an ordered
// message list and a metrics snapshot.
type Store interface {
	SaveMessage(ctx context.Context, conversationID string, msg chat.Message) error
	UpsertMetrics(ctx context.Context, conversationID string, m chat.Metrics, updatedAt time.Time) error
	SaveArchive(ctx context.Context, a chat.Archive) error
	ListConversations(ctx context.Context) ([]ConversationRecord, error)
	Close() error
}

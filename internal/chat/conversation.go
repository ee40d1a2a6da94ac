package chat

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the live session owned by the controller. In-memory state
// is authoritative for its lifetime; local and remote stores are mirrors.
type Conversation struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	Metrics   Metrics   `json:"metrics"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewConversation starts a fresh session seeded with the default greeting.
func NewConversation() Conversation {
	now := time.Now().UTC()
	return Conversation{
		ID:        uuid.NewString(),
		Messages:  []Message{{Sender: SenderBot, Text: Greeting, CreatedAt: now}},
		Metrics:   NewMetrics(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message to the transcript and bumps UpdatedAt.
func (c *Conversation) Append(msg Message) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = msg.CreatedAt
}

// Transcript returns a copy of the message list, safe to hand out.
func (c *Conversation) Transcript() []Message {
	out := make([]Message, len(c.Messages))
	copy(out, c.Messages)
	return out
}

// Archive is the snapshot taken of a session when it is superseded by a
// reset.
type Archive struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Messages  []Message `json:"messages"`
	Metrics   Metrics   `json:"metrics"`
}

// Snapshot freezes the session for archival.
func (c *Conversation) Snapshot() Archive {
	return Archive{
		ID:        c.ID,
		Timestamp: time.Now().UTC(),
		Messages:  c.Transcript(),
		Metrics:   c.Metrics,
	}
}

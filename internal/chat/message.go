package chat

import "time"

// Sender identifies which side of the conversation produced a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Greeting is the fixed first bot message of every fresh conversation.
const Greeting = "Hi, I'm Inge! How can I help you today?"

// FallbackReply is substituted when the gateway answers without a usable reply.
const FallbackReply = "no reply could be generated"

// ConnectionErrorReply is appended to the transcript when the gateway is unreachable.
const ConnectionErrorReply = "There was an error connecting to the server."

// Message is a single turn of the transcript. Messages are immutable once
// created; their position in the conversation's message slice is the
// dialogue order.
type Message struct {
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

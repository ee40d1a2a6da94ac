// Package gateway speaks the chat relay wire format: the controller posts
// {input, history} and gets back {reply}; the relay side adapts that onto an
// OpenAI-compatible provider behind a fixed system prompt.
package gateway

import (
	"context"

	"github.com/ingelean/inge-go/internal/chat"
)

// Client is the controller-facing surface of the remote inference gateway;
// it is an interface so tests can swap in a scripted implementation.
type Client interface {
	Generate(ctx context.Context, input string, history []chat.Message) (string, error)
}

// wireMessage is one transcript entry as it crosses the wire.
type wireMessage struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// request is the POST body the widget sends.
type request struct {
	Input   string        `json:"input"`
	History []wireMessage `json:"history"`
}

// response carries the assistant's final text, provider metadata discarded.
type response struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

func toWire(history []chat.Message) []wireMessage {
	out := make([]wireMessage, len(history))
	for i, msg := range history {
		out[i] = wireMessage{Sender: string(msg.Sender), Text: msg.Text}
	}
	return out
}

package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/ingelean/inge-go/internal/chat"
	"github.com/ingelean/inge-go/internal/config"
	"github.com/ingelean/inge-go/internal/logger"
)

// defaultSystemPrompt frames the assistant when no override is configured.
const defaultSystemPrompt = "You are Inge, the customer-service assistant of INGELEAN S.A.S, " +
	"an industrial automation company in Pereira, Colombia specialized in industrial automation, " +
	"custom software, artificial intelligence and maintenance of industrial equipment, serving B2B " +
	"clients mainly in the Eje Cafetero. Answer like a friendly person, keep replies short and concise."

// CompletionClient is the minimal subset of openai.Client the relay uses;
// it is easy to mock in tests.
type CompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewCompletionClient builds the provider client from config. BaseURL makes
// it work against any OpenAI-compatible endpoint, OpenRouter included;
// Referer and Title become the HTTP-Referer and X-Title attribution headers
// OpenRouter expects.
func NewCompletionClient(cfg config.ProviderConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Referer != "" || cfg.Title != "" {
		clientCfg.HTTPClient = &http.Client{
			Transport: &attributionTransport{referer: cfg.Referer, title: cfg.Title},
		}
	}
	return openai.NewClientWithConfig(clientCfg)
}

// attributionTransport stamps the OpenRouter attribution headers on every
// outgoing provider request.
type attributionTransport struct {
	base    http.RoundTripper
	referer string
	title   string
}

func (t *attributionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.referer != "" {
		req.Header.Set("HTTP-Referer", t.referer)
	}
	if t.title != "" {
		req.Header.Set("X-Title", t.title)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// Relay adapts the widget wire format onto the LLM provider. It prepends
// the fixed system prompt to the supplied history, forwards, and returns
// only the assistant's final text.
type Relay struct {
	client       CompletionClient
	model        string
	systemPrompt string
}

// NewRelay wires the relay; an empty systemPrompt selects the default.
func NewRelay(client CompletionClient, model, systemPrompt string) *Relay {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	return &Relay{client: client, model: model, systemPrompt: systemPrompt}
}

// ServeHTTP handles POST {input, history} -> {reply}.
func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respond(w, http.StatusMethodNotAllowed, response{Error: "method not allowed"})
		return
	}

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, response{Error: "invalid request body"})
		return
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: rl.systemPrompt,
	})
	for _, msg := range req.History {
		role := openai.ChatMessageRoleAssistant
		if msg.Sender == string(chat.SenderUser) {
			role = openai.ChatMessageRoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Text})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Input,
	})

	resp, err := rl.client.CreateChatCompletion(r.Context(), openai.ChatCompletionRequest{
		Model:    rl.model,
		Messages: messages,
	})
	if err != nil {
		logger.L.Error("provider call failed", "error", err)
		respond(w, http.StatusBadGateway, response{Error: "request to provider failed"})
		return
	}
	if len(resp.Choices) == 0 {
		logger.L.Error("provider returned no choices", "model", rl.model)
		respond(w, http.StatusBadGateway, response{Error: "invalid provider response"})
		return
	}

	respond(w, http.StatusOK, response{Reply: resp.Choices[0].Message.Content})
}

func respond(w http.ResponseWriter, status int, payload response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.L.Warn("failed to write response", "error", err)
	}
}

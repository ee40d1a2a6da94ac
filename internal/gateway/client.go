package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ingelean/inge-go/internal/chat"
)

// HTTPClient posts chat requests to a remote relay endpoint.
type HTTPClient struct {
	url  string
	http *http.Client
}

// NewHTTPClient builds a client for the relay at url. A nil httpClient
// falls back to http.DefaultClient; the per-request timeout is the caller's
// responsibility via context.
func NewHTTPClient(url string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{url: url, http: httpClient}
}

// Generate relays input plus the prior transcript and returns the reply
// text. An empty reply with a nil error means the gateway answered but had
// nothing usable; the caller decides on fallback text. Transport problems,
// non-2xx statuses and undecodable bodies are errors.
func (c *HTTPClient) Generate(ctx context.Context, input string, history []chat.Message) (string, error) {
	body, err := json.Marshal(request{Input: input, History: toWire(history)})
	if err != nil {
		return "", fmt.Errorf("failed to encode gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return decoded.Reply, nil
}

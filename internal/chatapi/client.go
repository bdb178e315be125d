// Package chatapi is the client for the chat backend's REST endpoints, used
// as the non-streaming fallback when the socket is unavailable.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a chat request; replies are generated synchronously.
const DefaultTimeout = 30 * time.Second

// Request is the body of POST /api/chat.
type Request struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// Reply is the body returned by POST /api/chat.
type Reply struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
}

// HistoryEntry is one stored message returned by the history endpoint.
type HistoryEntry struct {
	MessageType string    `json:"message_type"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

// HistoryResponse is the body returned by GET /api/chat/history/{session_id}.
type HistoryResponse struct {
	Success bool           `json:"success"`
	Data    []HistoryEntry `json:"data"`
	Count   int            `json:"count"`
}

// Client talks to the chat REST API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for baseURL with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Send posts message for sessionID and returns the bot reply.
func (c *Client) Send(ctx context.Context, sessionID, message string) (Reply, error) {
	body, err := json.Marshal(Request{Message: message, SessionID: sessionID})
	if err != nil {
		return Reply{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Reply{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var reply Reply
	if err := c.do(req, &reply); err != nil {
		return Reply{}, fmt.Errorf("send chat: %w", err)
	}
	return reply, nil
}

// History fetches up to limit recent messages of sessionID.
func (c *Client) History(ctx context.Context, sessionID string, limit int) (HistoryResponse, error) {
	u := fmt.Sprintf("%s/api/chat/history/%s", c.baseURL, url.PathEscape(sessionID))
	if limit > 0 {
		u += fmt.Sprintf("?limit=%d", limit)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return HistoryResponse{}, err
	}
	req.Header.Set("Accept", "application/json")

	var out HistoryResponse
	if err := c.do(req, &out); err != nil {
		return HistoryResponse{}, fmt.Errorf("chat history: %w", err)
	}
	return out, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

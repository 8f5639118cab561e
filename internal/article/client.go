// Package article triggers the external article-generation service. What
// the service writes is its own business; this side only starts a run and
// records the response.
package article

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"pawhub/ingest-service/internal/scheduler"
)

const maxResponseBytes = 1 << 20

// Client posts generation triggers to one endpoint.
type Client struct {
	endpoint string
	secret   string
	http     *http.Client
}

// NewClient returns a Client for endpoint. secret, when set, is sent as a
// bearer token.
func NewClient(endpoint, secret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{endpoint: endpoint, secret: secret, http: &http.Client{Timeout: timeout}}
}

// Generate asks the service for a batch of articles. The response body is
// returned verbatim; a non-JSON body is wrapped as {"response": "..."}.
func (c *Client) Generate(ctx context.Context, trig scheduler.Trigger) (json.RawMessage, error) {
	body, err := json.Marshal(trig)
	if err != nil {
		return nil, fmt.Errorf("article: marshal trigger: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("article: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("article: http: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("article: read body: %w", err)
	}
	detail := asJSON(raw)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return detail, fmt.Errorf("article: http %d", resp.StatusCode)
	}
	return detail, nil
}

// Job adapts Generate to a scheduler task.
func (c *Client) Job() scheduler.JobFunc {
	return func(ctx context.Context, trig scheduler.Trigger) (any, error) {
		detail, err := c.Generate(ctx, trig)
		if detail == nil {
			return nil, err
		}
		return detail, err
	}
}

func asJSON(raw []byte) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && json.Valid(raw) {
		return raw
	}
	wrapped, _ := json.Marshal(map[string]string{"response": string(raw)})
	return wrapped
}

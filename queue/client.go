package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to a queue served by Routes in another process.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Enqueue(ctx context.Context, sentence string) error {
	body, err := json.Marshal(enqueueRequest{Sentence: sentence})
	if err != nil {
		return fmt.Errorf("failed to encode sentence: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.BaseURL+"/api/queue",
		bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to enqueue sentence: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("enqueue failed: %d %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}
	return nil
}

// Drain empties the remote queue and returns what was pending.
func (c *Client) Drain(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/queue", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to drain queue: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("drain failed: %d %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}

	var sentences []string
	if err := json.NewDecoder(resp.Body).Decode(&sentences); err != nil {
		return nil, fmt.Errorf("failed to decode queue: %w", err)
	}
	return sentences, nil
}

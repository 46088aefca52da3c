package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bond/confirm"
	"bond/execute"
	"bond/journal"
)

// API is the slice of the serve API the console needs.
type API interface {
	Pending(ctx context.Context) ([]confirm.Request, error)
	Activity(ctx context.Context, limit int) ([]journal.Entry, error)
	Decide(ctx context.Context, id string, approve bool) (Decision, error)
}

type Decision struct {
	Request confirm.Request `json:"request"`
	Result  *execute.Result `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Pending(ctx context.Context) ([]confirm.Request, error) {
	var out []confirm.Request
	if err := c.do(ctx, http.MethodGet, "/api/confirmations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Activity(ctx context.Context, limit int) ([]journal.Entry, error) {
	var out []journal.Entry
	path := fmt.Sprintf("/api/activity?limit=%d", limit)
	if err := c.do(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Decide approves or dismisses a request. A failed execution still
// returns the decision along with an error.
func (c *Client) Decide(ctx context.Context, id string, approve bool) (Decision, error) {
	verb := "dismiss"
	if approve {
		verb = "approve"
	}
	var out Decision
	err := c.do(ctx, http.MethodPost, "/api/confirmations/"+url.PathEscape(id)+"/"+verb, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	decodeErr := json.Unmarshal(body, out)
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%s: %s", path, e.Error)
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	return nil
}

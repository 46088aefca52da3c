package jira

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

	"github.com/charmbracelet/log"
)

type Config struct {
	BaseURL  string
	Email    string
	APIToken string
	BoardID  string
}

// APIError is returned for any non-2xx tracker response.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s failed: %d %s", e.Op, e.StatusCode, e.Body)
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *log.Logger
}

func NewClient(cfg Config, logger *log.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
		log:  logger,
	}
}

func (c *Client) BoardConfiguration(ctx context.Context) (*BoardConfiguration, error) {
	var out BoardConfiguration
	path := fmt.Sprintf("/rest/agile/1.0/board/%s/configuration", url.PathEscape(c.cfg.BoardID))
	if err := c.do(ctx, "fetch board configuration", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) BoardIssues(ctx context.Context, maxResults int) ([]Issue, error) {
	var out struct {
		Issues []Issue `json:"issues"`
	}
	q := url.Values{}
	q.Set("maxResults", fmt.Sprint(maxResults))
	q.Set("fields", "summary,status,comment")
	path := fmt.Sprintf("/rest/agile/1.0/board/%s/issue?%s", url.PathEscape(c.cfg.BoardID), q.Encode())
	if err := c.do(ctx, "fetch board issues", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Issues, nil
}

// SampleIssueKey returns the key of one issue on the board, or "" when
// the board is empty.
func (c *Client) SampleIssueKey(ctx context.Context) (string, error) {
	issues, err := c.BoardIssues(ctx, 1)
	if err != nil {
		return "", err
	}
	if len(issues) == 0 {
		return "", nil
	}
	return issues[0].Key, nil
}

func (c *Client) Transitions(ctx context.Context, issueKey string) ([]Transition, error) {
	var out struct {
		Transitions []Transition `json:"transitions"`
	}
	path := fmt.Sprintf("/rest/api/3/issue/%s/transitions", url.PathEscape(issueKey))
	if err := c.do(ctx, "list transitions", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Transitions, nil
}

func (c *Client) DoTransition(ctx context.Context, issueKey, transitionID string) error {
	body := map[string]any{"transition": map[string]string{"id": transitionID}}
	path := fmt.Sprintf("/rest/api/3/issue/%s/transitions", url.PathEscape(issueKey))
	return c.do(ctx, "transition", http.MethodPost, path, body, nil)
}

func (c *Client) CreateIssue(
	ctx context.Context,
	projectKey, summary, issueType string,
) (*CreatedIssue, error) {
	body := map[string]any{
		"fields": map[string]any{
			"project":   map[string]string{"key": projectKey},
			"summary":   summary,
			"issuetype": map[string]string{"name": issueType},
		},
	}
	var out CreatedIssue
	if err := c.do(ctx, "create issue", http.MethodPost, "/rest/api/3/issue", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	defer resp.Body.Close()

	c.log.Debug("tracker call", "op", op, "status", resp.StatusCode, "took", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(resp.Body)
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.Email != "" {
		req.SetBasicAuth(c.cfg.Email, c.cfg.APIToken)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
}

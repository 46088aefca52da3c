package board

import (
	"context"
	"fmt"
	"strings"

	"bond/jira"
)

// Tracker is the read side of the task tracker a snapshot is built from.
type Tracker interface {
	BoardConfiguration(ctx context.Context) (*jira.BoardConfiguration, error)
	BoardIssues(ctx context.Context, maxResults int) ([]jira.Issue, error)
}

type Column struct {
	Label    string `json:"label"`
	StatusID string `json:"statusId"`
}

type IssueRef struct {
	Summary string `json:"summary"`
	Key     string `json:"key"`
}

// Snapshot is the column and issue context for interpreting one
// sentence. Summaries are lowercased. Both slices keep board order.
type Snapshot struct {
	Columns []Column   `json:"columns"`
	Issues  []IssueRef `json:"issues"`

	statuses map[string]string
	keys     map[string]string
}

func NewSnapshot(columns []Column, issues []IssueRef) *Snapshot {
	s := &Snapshot{
		Columns:  columns,
		statuses: make(map[string]string, len(columns)),
		keys:     make(map[string]string, len(issues)),
	}
	for _, c := range columns {
		lower := strings.ToLower(c.Label)
		if _, ok := s.statuses[lower]; !ok {
			s.statuses[lower] = c.StatusID
		}
	}
	for _, i := range issues {
		i.Summary = strings.ToLower(i.Summary)
		s.Issues = append(s.Issues, i)
		s.keys[i.Summary] = i.Key
	}
	return s
}

// Fetch builds a fresh snapshot from the tracker. Each column is
// represented by its first status.
func Fetch(ctx context.Context, t Tracker, maxResults int) (*Snapshot, error) {
	cfg, err := t.BoardConfiguration(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch board configuration: %w", err)
	}
	issues, err := t.BoardIssues(ctx, maxResults)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch board issues: %w", err)
	}

	var columns []Column
	for _, c := range cfg.ColumnConfig.Columns {
		if len(c.Statuses) == 0 {
			continue
		}
		columns = append(columns, Column{Label: c.Name, StatusID: c.Statuses[0].ID})
	}

	refs := make([]IssueRef, 0, len(issues))
	for _, i := range issues {
		refs = append(refs, IssueRef{Summary: i.Fields.Summary, Key: i.Key})
	}
	return NewSnapshot(columns, refs), nil
}

// StatusFor looks up a column label ignoring case.
func (s *Snapshot) StatusFor(label string) (string, bool) {
	id, ok := s.statuses[strings.ToLower(label)]
	return id, ok
}

// IssueKey looks up an exact lowercased summary. When two issues share
// a summary the later one wins.
func (s *Snapshot) IssueKey(summary string) (string, bool) {
	key, ok := s.keys[strings.ToLower(summary)]
	return key, ok
}

// StatusMap is the column label to status id mapping in its original case.
func (s *Snapshot) StatusMap() map[string]string {
	out := make(map[string]string, len(s.Columns))
	for _, c := range s.Columns {
		if _, ok := out[c.Label]; !ok {
			out[c.Label] = c.StatusID
		}
	}
	return out
}

// SummaryMap is the lowercased summary to issue key mapping.
func (s *Snapshot) SummaryMap() map[string]string {
	out := make(map[string]string, len(s.keys))
	for k, v := range s.keys {
		out[k] = v
	}
	return out
}

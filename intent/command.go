package intent

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Action string

const (
	ActionMove   Action = "move"
	ActionCreate Action = "create"
	ActionNone   Action = "none"
)

// Command is the structured intent behind one sentence. It is passed by
// value and never modified after it is built.
type Command struct {
	Action     Action `json:"action"`
	IssueKey   string `json:"issueKey,omitempty"`
	ToStatusID string `json:"toStatusId,omitempty"`
	Summary    string `json:"summary,omitempty"`
}

func Move(issueKey, toStatusID string) Command {
	return Command{Action: ActionMove, IssueKey: issueKey, ToStatusID: toStatusID}
}

func Create(summary string) Command {
	return Command{Action: ActionCreate, Summary: summary}
}

func None() Command {
	return Command{Action: ActionNone}
}

func (c Command) IsNone() bool {
	return c.Action == ActionNone || c.Action == ""
}

// Label is the confirmation prompt shown to a human.
func (c Command) Label() string {
	switch c.Action {
	case ActionMove:
		return fmt.Sprintf("Move %s?", c.IssueKey)
	case ActionCreate:
		return fmt.Sprintf("Create %q?", c.Summary)
	default:
		return "No action"
	}
}

// Describe is the longer suggestion text returned by interpretation.
func (c Command) Describe() string {
	switch c.Action {
	case ActionMove:
		return fmt.Sprintf("Move %s → status %s", c.IssueKey, c.ToStatusID)
	case ActionCreate:
		return fmt.Sprintf("Create new issue: %q", c.Summary)
	default:
		return "No action"
	}
}

// Validate reports whether c carries everything its action needs.
func (c Command) Validate() error {
	switch c.Action {
	case ActionMove:
		if c.IssueKey == "" || c.ToStatusID == "" {
			return fmt.Errorf("move needs issueKey and toStatusId")
		}
	case ActionCreate:
		if strings.TrimSpace(c.Summary) == "" {
			return fmt.Errorf("create needs a summary")
		}
	case ActionNone:
	default:
		return fmt.Errorf("unknown action %q", c.Action)
	}
	return nil
}

// ParseCommand decodes a model reply. Markdown code fences around the
// JSON object are tolerated.
func ParseCommand(raw string) (Command, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var cmd Command
	if err := json.Unmarshal([]byte(text), &cmd); err != nil {
		return Command{}, fmt.Errorf("failed to parse command: %w", err)
	}
	cmd.Action = Action(strings.ToLower(string(cmd.Action)))
	cmd.Summary = strings.TrimSpace(cmd.Summary)
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

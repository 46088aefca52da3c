package execute

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"bond/intent"
	"bond/jira"
)

var (
	ErrNoTransition = errors.New("no transition available")
	ErrNoProjectKey = errors.New("could not derive project key")
)

const issueType = "Task"

type Tracker interface {
	Transitions(ctx context.Context, issueKey string) ([]jira.Transition, error)
	DoTransition(ctx context.Context, issueKey, transitionID string) error
	SampleIssueKey(ctx context.Context) (string, error)
	CreateIssue(ctx context.Context, projectKey, summary, issueType string) (*jira.CreatedIssue, error)
}

type Result struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	IssueKey string `json:"issueKey,omitempty"`
	Error    string `json:"error,omitempty"`
}

func failure(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

// Service applies confirmed commands to the tracker. A move is not
// idempotent, so nothing here retries.
type Service struct {
	tracker Tracker
	log     *log.Logger
}

func NewService(tracker Tracker, logger *log.Logger) *Service {
	return &Service{tracker: tracker, log: logger}
}

// Execute runs cmd to completion even if ctx is canceled once the
// first tracker call has been issued.
func (s *Service) Execute(ctx context.Context, cmd intent.Command) (Result, error) {
	ctx = context.WithoutCancel(ctx)

	switch cmd.Action {
	case intent.ActionMove:
		return s.move(ctx, cmd.IssueKey, cmd.ToStatusID)
	case intent.ActionCreate:
		return s.create(ctx, cmd.Summary)
	case intent.ActionNone, "":
		return Result{Success: true, Message: "No action performed"}, nil
	}
	err := fmt.Errorf("unknown action %q", cmd.Action)
	return failure(err), err
}

func (s *Service) move(ctx context.Context, issueKey, toStatusID string) (Result, error) {
	transitions, err := s.tracker.Transitions(ctx, issueKey)
	if err != nil {
		s.log.Error("failed to list transitions", "issue", issueKey, "error", err)
		return failure(err), err
	}

	var transitionID string
	for _, t := range transitions {
		if t.To.ID == toStatusID {
			transitionID = t.ID
			break
		}
	}
	if transitionID == "" {
		err := fmt.Errorf("%w to status %s", ErrNoTransition, toStatusID)
		s.log.Warn("move not possible", "issue", issueKey, "status", toStatusID)
		return failure(err), err
	}

	if err := s.tracker.DoTransition(ctx, issueKey, transitionID); err != nil {
		s.log.Error("transition failed", "issue", issueKey, "transition", transitionID, "error", err)
		return failure(err), err
	}

	s.log.Info("moved issue", "issue", issueKey, "status", toStatusID)
	return Result{Success: true, Message: fmt.Sprintf("Moved %s", issueKey), IssueKey: issueKey}, nil
}

func (s *Service) create(ctx context.Context, summary string) (Result, error) {
	sample, err := s.tracker.SampleIssueKey(ctx)
	if err != nil {
		s.log.Error("failed to sample issue", "error", err)
		return failure(err), err
	}

	project, _, found := strings.Cut(sample, "-")
	if !found || project == "" {
		s.log.Warn("board has no issue to take a project key from")
		return failure(ErrNoProjectKey), ErrNoProjectKey
	}

	created, err := s.tracker.CreateIssue(ctx, project, summary, issueType)
	if err != nil {
		s.log.Error("failed to create issue", "project", project, "error", err)
		return failure(err), err
	}

	s.log.Info("created issue", "issue", created.Key, "summary", summary)
	return Result{
		Success:  true,
		Message:  fmt.Sprintf("Created %s", created.Key),
		IssueKey: created.Key,
	}, nil
}

// IsResolutionError reports whether err came from resolving a command
// against the board rather than from the tracker API itself.
func IsResolutionError(err error) bool {
	return errors.Is(err, ErrNoTransition) || errors.Is(err, ErrNoProjectKey)
}

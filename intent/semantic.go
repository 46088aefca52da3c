package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"bond/board"
	"bond/llm"
)

type Outcome int

const (
	// Resolved means the parser produced a usable move or create.
	Resolved Outcome = iota
	// Declined means the parser answered with an explicit none.
	Declined
	// Malformed means the reply was not a valid command.
	Malformed
	// Unavailable means the parser could not be reached or answered
	// with an error status.
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case Declined:
		return "declined"
	case Malformed:
		return "malformed"
	case Unavailable:
		return "unavailable"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

const semanticPrompt = `You turn one spoken sentence from a stand-up meeting into a task board command.

Reply with exactly one JSON object and nothing else. It must have one of these shapes:
  {"action":"move","issueKey":"<issue key>","toStatusId":"<status id>"}
  {"action":"create","summary":"<issue title>"}
  {"action":"none"}

Rules:
- Use "move" only when the speaker asks to move an existing issue to a column. Pick the issue key from the summary mapping and the status id from the column mapping.
- Use "create" when the speaker asks for a new issue, task or ticket. The summary is only the title. Leave out words like "create", "new ticket" and "called".
- Use "none" for anything else.

Examples:
  "create a new ticket called fix login bug" -> {"action":"create","summary":"Fix login bug"}
  "let's add a task named update the docs" -> {"action":"create","summary":"Update the docs"}
  "we should probably grab lunch" -> {"action":"none"}`

// SemanticResolver asks a language model to interpret the sentence.
type SemanticResolver struct {
	model llm.LanguageModel
	log   *log.Logger
}

func NewSemanticResolver(model llm.LanguageModel, logger *log.Logger) *SemanticResolver {
	return &SemanticResolver{model: model, log: logger}
}

func (s *SemanticResolver) Parse(
	ctx context.Context,
	sentence string,
	snap *board.Snapshot,
) (Command, Outcome) {
	summaries, err := json.Marshal(snap.SummaryMap())
	if err != nil {
		s.log.Error("failed to encode summaries", "error", err)
		return Command{}, Unavailable
	}
	columns, err := json.Marshal(snap.StatusMap())
	if err != nil {
		s.log.Error("failed to encode columns", "error", err)
		return Command{}, Unavailable
	}

	req := promptFor(sentence, string(summaries), string(columns))
	reply, err := llm.Complete(ctx, s.model, req)
	if err != nil {
		var statusErr *llm.StatusError
		if errors.As(err, &statusErr) {
			s.log.Warn("parser returned error status", "status", statusErr.StatusCode)
		} else {
			s.log.Warn("parser unreachable", "error", err)
		}
		return Command{}, Unavailable
	}

	cmd, err := ParseCommand(reply)
	if err != nil {
		s.log.Warn("malformed parser reply", "reply", reply, "error", err)
		return Command{}, Malformed
	}
	if cmd.IsNone() {
		return None(), Declined
	}
	return cmd, Resolved
}

func promptFor(sentence, summaries, columns string) *llm.ChatCompletionRequest {
	req := &llm.ChatCompletionRequest{
		SystemPrompt: semanticPrompt,
		MaxTokens:    200,
		Temperature:  0,
	}
	return req.
		WithContext("Issue summary (lowercase) to key mapping: " + summaries).
		WithUserMessage(fmt.Sprintf("Column to status id mapping: %s\nSpoken: %q", columns, sentence))
}

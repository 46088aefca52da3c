package intent

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"bond/board"
)

// Resolver is one interpretation strategy. ok is false when the
// strategy has nothing to say about the sentence.
type Resolver interface {
	TryParse(ctx context.Context, sentence string, snap *board.Snapshot) (cmd Command, ok bool)
}

var (
	movePattern       = regexp.MustCompile(`(?i)move\s+(.+?)\s+to\s+(.+?)[.?!]?$`)
	strictMovePattern = regexp.MustCompile(`(?i)move\s+(.+?)\s+to\s+(.+?)$`)
	createPattern     = regexp.MustCompile(
		`(?i)^(?:please\s*)?(?:let'?s\s*)?(?:create|add|make)(?:\s+(?:a|new))?` +
			`(?:\s+(?:issue|task|ticket))?(?:\s+(?:called|named))?\s+(.+)$`,
	)
	nonWord = regexp.MustCompile(`[^\w\s]`)
)

var fillerWords = map[string]bool{
	"a": true, "an": true, "the": true, "new": true,
	"issue": true, "task": true, "ticket": true,
}

// PatternResolver is the rule-based tier used when the semantic parser
// cannot be reached. A sentence that looks like a move but does not
// resolve yields None rather than falling through to the create rule.
type PatternResolver struct{}

func (PatternResolver) TryParse(ctx context.Context, sentence string, snap *board.Snapshot) (Command, bool) {
	text := strings.TrimSpace(sentence)

	if m := movePattern.FindStringSubmatch(text); m != nil {
		key := MatchIssue(m[1], snap)
		status := strings.TrimSpace(nonWord.ReplaceAllString(strings.TrimSpace(m[2]), ""))
		statusID, ok := snap.StatusFor(status)
		if key == "" || !ok {
			return None(), true
		}
		return Move(key, statusID), true
	}

	if m := createPattern.FindStringSubmatch(text); m != nil {
		summary := CleanSummary(m[1])
		if summary == "" {
			return None(), true
		}
		return Create(summary), true
	}

	return Command{}, false
}

// RecheckResolver re-reads a sentence the semantic parser declined,
// accepting only a move whose issue and column match exactly.
type RecheckResolver struct{}

func (RecheckResolver) TryParse(ctx context.Context, sentence string, snap *board.Snapshot) (Command, bool) {
	m := strictMovePattern.FindStringSubmatch(strings.TrimSpace(sentence))
	if m == nil {
		return Command{}, false
	}
	key, ok := snap.IssueKey(strings.TrimSpace(m[1]))
	if !ok {
		return Command{}, false
	}
	statusID, ok := snap.StatusFor(strings.TrimRight(strings.TrimSpace(m[2]), ".?!"))
	if !ok {
		return Command{}, false
	}
	return Move(key, statusID), true
}

// CleanSummary reduces the tail of a create request to an issue title.
// Leading filler and a leading "called" or "named" are dropped; the
// same words later in the title are kept.
func CleanSummary(rest string) string {
	words := strings.Fields(strings.TrimRight(strings.TrimSpace(rest), ".?! "))
	words = trimFiller(words)
	if len(words) > 1 && isNameMarker(words[0]) {
		words = words[1:]
	}
	for i, w := range words {
		words[i] = titleWord(w)
	}
	return strings.Join(words, " ")
}

func trimFiller(words []string) []string {
	for len(words) > 0 && fillerWords[strings.ToLower(words[0])] {
		words = words[1:]
	}
	return words
}

func isNameMarker(w string) bool {
	w = strings.ToLower(w)
	return w == "called" || w == "named"
}

func titleWord(w string) string {
	runes := []rune(strings.ToLower(w))
	if len(runes) == 0 {
		return w
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

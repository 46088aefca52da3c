package intent

import (
	"strings"

	"bond/board"
)

// MatchIssue resolves a spoken phrase to an issue key. An exact summary
// wins, then the first summary containing the phrase, then the summary
// containing the most phrase words, ties going to board order. Issues
// sharing a summary resolve to the later issue's key in every tier.
// It returns "" when nothing overlaps.
func MatchIssue(phrase string, snap *board.Snapshot) string {
	needle := strings.ToLower(strings.TrimSpace(phrase))
	if needle == "" {
		return ""
	}

	if key, ok := snap.IssueKey(needle); ok {
		return key
	}

	for _, issue := range snap.Issues {
		if strings.Contains(issue.Summary, needle) {
			return keyFor(issue, snap)
		}
	}

	words := strings.Fields(needle)
	best, bestScore := "", 0
	for _, issue := range snap.Issues {
		score := 0
		for _, w := range words {
			if strings.Contains(issue.Summary, w) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = keyFor(issue, snap), score
		}
	}
	return best
}

func keyFor(issue board.IssueRef, snap *board.Snapshot) string {
	if key, ok := snap.IssueKey(issue.Summary); ok {
		return key
	}
	return issue.Key
}

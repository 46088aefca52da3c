package board

import (
	"context"
	"fmt"
)

type Card struct {
	Key      string `json:"key"`
	Summary  string `json:"summary"`
	StatusID string `json:"statusId"`
	Comments int    `json:"comments"`
}

type Lane struct {
	Label string `json:"label"`
	Cards []Card `json:"cards"`
}

type View struct {
	Lanes []Lane `json:"lanes"`
	// Unplaced holds issues whose status belongs to no column.
	Unplaced []Card `json:"unplaced,omitempty"`
}

// Load groups the board's issues under the column owning their status.
func Load(ctx context.Context, t Tracker, maxResults int) (*View, error) {
	cfg, err := t.BoardConfiguration(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch board configuration: %w", err)
	}
	issues, err := t.BoardIssues(ctx, maxResults)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch board issues: %w", err)
	}

	view := &View{}
	laneOf := make(map[string]int)
	for i, c := range cfg.ColumnConfig.Columns {
		view.Lanes = append(view.Lanes, Lane{Label: c.Name, Cards: []Card{}})
		for _, s := range c.Statuses {
			laneOf[s.ID] = i
		}
	}

	for _, issue := range issues {
		card := Card{
			Key:      issue.Key,
			Summary:  issue.Fields.Summary,
			StatusID: issue.Fields.Status.ID,
		}
		if issue.Fields.Comment != nil {
			card.Comments = len(issue.Fields.Comment.Comments)
		}
		i, ok := laneOf[card.StatusID]
		if !ok {
			view.Unplaced = append(view.Unplaced, card)
			continue
		}
		view.Lanes[i].Cards = append(view.Lanes[i].Cards, card)
	}
	return view, nil
}

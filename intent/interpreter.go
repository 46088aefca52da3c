package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"bond/board"
)

// NonePolicy decides what an explicit "none" from the semantic parser
// means.
type NonePolicy string

const (
	// NoneFallback re-checks the sentence with the strict move rule.
	NoneFallback NonePolicy = "fallback"
	// NoneAccept takes the parser at its word.
	NoneAccept NonePolicy = "accept"
)

func ParseNonePolicy(s string) (NonePolicy, error) {
	switch NonePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", NoneFallback:
		return NoneFallback, nil
	case NoneAccept:
		return NoneAccept, nil
	}
	return "", fmt.Errorf("unknown none policy %q", s)
}

type Tier string

const (
	TierSemantic   Tier = "semantic"
	TierRecheck    Tier = "recheck"
	TierPattern    Tier = "pattern"
	TierLastResort Tier = "last-resort"
)

type Interpretation struct {
	Command Command `json:"cmd"`
	Tier    Tier    `json:"tier"`
}

type tier struct {
	name     Tier
	resolver Resolver
}

type Interpreter struct {
	semantic *SemanticResolver
	policy   NonePolicy
	recheck  []tier
	fallback []tier
	log      *log.Logger
}

// NewInterpreter builds the tiered interpreter. semantic may be nil, in
// which case every sentence goes to the pattern tier.
func NewInterpreter(semantic *SemanticResolver, policy NonePolicy, logger *log.Logger) *Interpreter {
	return &Interpreter{
		semantic: semantic,
		policy:   policy,
		recheck:  []tier{{TierRecheck, RecheckResolver{}}},
		fallback: []tier{{TierPattern, PatternResolver{}}},
		log:      logger,
	}
}

func (in *Interpreter) Interpret(
	ctx context.Context,
	sentence string,
	snap *board.Snapshot,
) Interpretation {
	chain := in.fallback

	if in.semantic != nil {
		cmd, outcome := in.semantic.Parse(ctx, sentence, snap)
		in.log.Debug("semantic parse", "sentence", sentence, "outcome", outcome)
		switch outcome {
		case Resolved:
			return Interpretation{Command: cmd, Tier: TierSemantic}
		case Declined:
			if in.policy == NoneAccept {
				return Interpretation{Command: None(), Tier: TierSemantic}
			}
			chain = in.recheck
		case Malformed:
			chain = in.recheck
		}
	}

	for _, t := range chain {
		if cmd, ok := t.resolver.TryParse(ctx, sentence, snap); ok {
			return Interpretation{Command: cmd, Tier: t.name}
		}
	}
	return Interpretation{Command: None(), Tier: TierLastResort}
}

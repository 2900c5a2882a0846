package match

import "context"

// Scorer produces a match verdict for one record. The default implementation
// is the deterministic heuristic; a model-backed implementation may layer
// advisory suggestions on top but never changes the deterministic confidence.
type Scorer interface {
	Score(ctx context.Context, in Input) (Result, error)
}

// HeuristicScorer wraps the pure matcher. It is the default Scorer and the
// source of truth for confidence.
type HeuristicScorer struct {
	Params Params
}

// NewHeuristicScorer returns a scorer using the given calibration.
func NewHeuristicScorer(p Params) *HeuristicScorer {
	return &HeuristicScorer{Params: p}
}

func (s *HeuristicScorer) Score(_ context.Context, in Input) (Result, error) {
	return Match(in, s.Params), nil
}

package match

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/pkg/anthropic"
)

const suggestSystemPrompt = `You categorize business expenses. Given an expense
record, reply with a single JSON object {"category": "...", "jurisdiction": "..."}
using a two-letter US state code, "INTL", or "UNKNOWN" for jurisdiction. Reply
with JSON only.`

// ModelScorer decorates a base Scorer with model-backed category and
// jurisdiction suggestions for records the heuristic could not resolve. It is
// strictly advisory: the deterministic confidence and flags pass through
// untouched, and any model failure degrades to the base result.
type ModelScorer struct {
	base   Scorer
	client anthropic.Client
	model  string
	log    *zap.Logger
}

// NewModelScorer wraps base with suggestion calls against the given model.
func NewModelScorer(base Scorer, client anthropic.Client, model string) *ModelScorer {
	return &ModelScorer{
		base:   base,
		client: client,
		model:  model,
		log:    zap.L().With(zap.String("component", "model_scorer")),
	}
}

func (s *ModelScorer) Score(ctx context.Context, in Input) (Result, error) {
	res, err := s.base.Score(ctx, in)
	if err != nil {
		return res, err
	}

	needsCategory := hasFlag(res.Flags, FlagCategoryUnknown)
	needsJurisdiction := hasFlag(res.Flags, FlagJurisdictionUnknown)
	if !needsCategory && !needsJurisdiction {
		return res, nil
	}

	suggestion, err := s.suggest(ctx, in)
	if err != nil {
		s.log.Warn("suggestion call failed, keeping heuristic result",
			zap.String("record_id", in.Record.ID), zap.Error(err))
		return res, nil
	}

	if needsCategory && suggestion.Category != "" {
		res.Category = suggestion.Category
	}
	if needsJurisdiction && suggestion.Jurisdiction != "" {
		res.Jurisdiction = suggestion.Jurisdiction
	}
	return res, nil
}

type suggestion struct {
	Category     string `json:"category"`
	Jurisdiction string `json:"jurisdiction"`
}

func (s *ModelScorer) suggest(ctx context.Context, in Input) (suggestion, error) {
	prompt := fmt.Sprintf("Vendor: %s\nAmount: %d cents\nDate: %s\nCategory hint: %s\nJurisdiction hint: %s",
		in.Record.VendorRaw,
		in.Record.AmountCents,
		in.Record.TxnDate.Format("2006-01-02"),
		in.Record.CategoryHint,
		in.Record.JurisdictionHint,
	)

	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: 256,
		System:    suggestSystemPrompt,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return suggestion{}, err
	}
	resp.Usage.LogUsage(s.model, "suggest")

	text := strings.TrimSpace(resp.Text())
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var out suggestion
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &out); err != nil {
		return suggestion{}, err
	}
	return out, nil
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

package match

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/pkg/anthropic"
)

type fakeAnthropicClient struct {
	reply string
	err   error
	calls int
}

func (f *fakeAnthropicClient) CreateMessage(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: f.reply}},
	}, nil
}

func unresolvedInput() Input {
	return Input{
		Record: &model.ExpenseRecord{
			ID:          "rec-1",
			VendorRaw:   "SQ *MYSTERY 4421",
			AmountCents: 4500,
			TxnDate:     time.Date(2024, 8, 12, 0, 0, 0, 0, time.UTC),
		},
		ReceiptPresent: false,
	}
}

func TestModelScorerFillsUnresolvedFields(t *testing.T) {
	client := &fakeAnthropicClient{reply: `{"category": "Meals", "jurisdiction": "TX"}`}
	scorer := NewModelScorer(NewHeuristicScorer(DefaultParams()), client, "claude-haiku-4-5-20251001")

	res, err := scorer.Score(context.Background(), unresolvedInput())

	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, "Meals", res.Category)
	assert.Equal(t, "TX", res.Jurisdiction)
	// Advisory only: flags and confidence stay as the heuristic computed them.
	assert.Contains(t, res.Flags, FlagCategoryUnknown)
	assert.Contains(t, res.Flags, FlagJurisdictionUnknown)
	base, _ := NewHeuristicScorer(DefaultParams()).Score(context.Background(), unresolvedInput())
	assert.Equal(t, base.Confidence, res.Confidence)
}

func TestModelScorerSkipsResolvedRecords(t *testing.T) {
	client := &fakeAnthropicClient{reply: `{"category": "Meals"}`}
	scorer := NewModelScorer(NewHeuristicScorer(DefaultParams()), client, "claude-haiku-4-5-20251001")

	in := unresolvedInput()
	in.Category = "Fuel"
	in.Jurisdiction = "CA"
	in.ReceiptPresent = true
	amt := in.Record.AmountCents
	in.ReceiptAmountCents = &amt

	_, err := scorer.Score(context.Background(), in)

	require.NoError(t, err)
	assert.Zero(t, client.calls)
}

func TestModelScorerDegradesOnFailure(t *testing.T) {
	client := &fakeAnthropicClient{err: eris.New("rate limited")}
	scorer := NewModelScorer(NewHeuristicScorer(DefaultParams()), client, "claude-haiku-4-5-20251001")

	res, err := scorer.Score(context.Background(), unresolvedInput())

	require.NoError(t, err)
	base, _ := NewHeuristicScorer(DefaultParams()).Score(context.Background(), unresolvedInput())
	assert.Equal(t, base, res)
}

func TestModelScorerTolerableFencedJSON(t *testing.T) {
	client := &fakeAnthropicClient{reply: "```json\n{\"category\": \"Travel\", \"jurisdiction\": \"INTL\"}\n```"}
	scorer := NewModelScorer(NewHeuristicScorer(DefaultParams()), client, "claude-haiku-4-5-20251001")

	res, err := scorer.Score(context.Background(), unresolvedInput())

	require.NoError(t, err)
	assert.Equal(t, "Travel", res.Category)
	assert.Equal(t, "INTL", res.Jurisdiction)
}

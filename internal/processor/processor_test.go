package processor

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-cli/internal/match"
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/receipts"
	"github.com/sells-group/recon-cli/internal/resilience"
	"github.com/sells-group/recon-cli/internal/rules"
)

type fakeStore struct {
	records    map[string]*model.ExpenseRecord
	candidates []model.BankTransaction

	matchedTxn  string
	matchedBy   string
	postedRef   string
	flagged     []string
	flagReason  string
	lastError   string
	finalStatus model.RecordStatus

	matchErr error
}

func (f *fakeStore) GetRecord(_ context.Context, id string) (*model.ExpenseRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, eris.Errorf("not found: %s", id)
	}
	return rec, nil
}

func (f *fakeStore) ListCandidates(_ context.Context, _ string, _ time.Time, _ int) ([]model.BankTransaction, error) {
	return f.candidates, nil
}

func (f *fakeStore) MarkTransactionMatched(_ context.Context, txnID, recordID, matchedBy string) error {
	if f.matchErr != nil {
		return f.matchErr
	}
	f.matchedTxn = txnID
	f.matchedBy = matchedBy
	return nil
}

func (f *fakeStore) MarkPosted(_ context.Context, id, txnID string, confidence int, postedRef string) error {
	f.finalStatus = model.RecordPosted
	f.postedRef = postedRef
	return nil
}

func (f *fakeStore) MarkFlagged(_ context.Context, id string, confidence int, flagReason string, flags []string) error {
	f.finalStatus = model.RecordFlagged
	f.flagReason = flagReason
	f.flagged = flags
	return nil
}

func (f *fakeStore) MarkError(_ context.Context, id, lastError string) error {
	f.finalStatus = model.RecordError
	f.lastError = lastError
	return nil
}

type fakeRulesStore struct {
	rules []model.VendorRule
}

func (f *fakeRulesStore) ListVendorRules(_ context.Context) ([]model.VendorRule, error) {
	return f.rules, nil
}

func (f *fakeRulesStore) TouchVendorRule(_ context.Context, _ int64) error { return nil }

type fakeReceipts struct {
	byPath map[string]*receipts.Receipt
}

func (f *fakeReceipts) Fetch(_ context.Context, path string) (*receipts.Receipt, error) {
	r, ok := f.byPath[path]
	if !ok {
		return nil, receipts.ErrNotFound
	}
	return r, nil
}

func (f *fakeReceipts) Save(_ context.Context, _ string, _ []byte, _ *int64) error { return nil }

type fakePoster struct {
	err   error
	calls int
}

func (f *fakePoster) Post(_ context.Context, rec *model.ExpenseRecord, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "ledger-" + rec.ID, nil
}

type fakeRecorder struct {
	results []match.Result
}

func (f *fakeRecorder) Record(_ context.Context, _ *model.ExpenseRecord, res match.Result) error {
	f.results = append(f.results, res)
	return nil
}

func day(d int) time.Time {
	return time.Date(2024, 8, d, 0, 0, 0, 0, time.UTC)
}

func processingRecord(id string) *model.ExpenseRecord {
	path := "r/" + id + ".pdf"
	return &model.ExpenseRecord{
		ID:          id,
		ExternalID:  "ext-" + id,
		VendorRaw:   "Shell Gas Station",
		AmountCents: 5296,
		TxnDate:     day(12),
		Status:      model.RecordProcessing,
		ReceiptPath: &path,
	}
}

func newProcessor(st *fakeStore, rc receipts.Store, ruleStore rules.Store, poster Poster, recorder Recorder) *Processor {
	return New(st, rc, rules.NewService(ruleStore), match.NewHeuristicScorer(match.DefaultParams()),
		poster, recorder, Options{
			WindowDays:        3,
			AutoPostThreshold: 95,
			Retry:             resilience.RetryConfig{MaxAttempts: 1},
		})
}

func TestProcessAutoPosts(t *testing.T) {
	rec := processingRecord("rec-1")
	amount := rec.AmountCents
	st := &fakeStore{
		records: map[string]*model.ExpenseRecord{"rec-1": rec},
		candidates: []model.BankTransaction{{
			ID: "txn-1", AmountCents: 5296, TxnDate: day(12),
			DescriptionRaw: "SHELL GAS STATION CA", Status: model.TxnUnmatched,
		}},
	}
	rc := &fakeReceipts{byPath: map[string]*receipts.Receipt{
		*rec.ReceiptPath: {Data: []byte("pdf"), ExtractedAmountCents: &amount},
	}}
	ruleStore := &fakeRulesStore{rules: []model.VendorRule{
		{ID: 1, Pattern: "SHELL", DefaultCategory: "Fuel", DefaultJurisdiction: "CA"},
	}}
	poster := &fakePoster{}
	recorder := &fakeRecorder{}

	err := newProcessor(st, rc, ruleStore, poster, recorder).Process(context.Background(), "rec-1")

	require.NoError(t, err)
	assert.Equal(t, model.RecordPosted, st.finalStatus)
	assert.Equal(t, "txn-1", st.matchedTxn)
	assert.Equal(t, model.MatchedByEngine, st.matchedBy)
	assert.Equal(t, "ledger-rec-1", st.postedRef)
	assert.Equal(t, 1, poster.calls)
	require.Len(t, recorder.results, 1)
	assert.Equal(t, 100, recorder.results[0].Confidence)
}

func TestProcessFlagsWhenNoCandidates(t *testing.T) {
	rec := processingRecord("rec-2")
	rec.ReceiptPath = nil
	st := &fakeStore{records: map[string]*model.ExpenseRecord{"rec-2": rec}}
	recorder := &fakeRecorder{}

	err := newProcessor(st, &fakeReceipts{}, &fakeRulesStore{}, &fakePoster{}, recorder).
		Process(context.Background(), "rec-2")

	require.NoError(t, err)
	assert.Equal(t, model.RecordFlagged, st.finalStatus)
	assert.Contains(t, st.flagged, match.FlagNoMatch)
	assert.Contains(t, st.flagged, match.FlagMissingReceipt)
	assert.Contains(t, st.flagReason, match.FlagNoMatch)
	require.Len(t, recorder.results, 1)
}

func TestProcessSkipsTerminalRecord(t *testing.T) {
	rec := processingRecord("rec-3")
	rec.Status = model.RecordPosted
	st := &fakeStore{records: map[string]*model.ExpenseRecord{"rec-3": rec}}
	poster := &fakePoster{}

	err := newProcessor(st, &fakeReceipts{}, &fakeRulesStore{}, poster, &fakeRecorder{}).
		Process(context.Background(), "rec-3")

	require.NoError(t, err)
	assert.Zero(t, poster.calls)
	assert.Empty(t, st.finalStatus)
}

func TestProcessMarksErrorOnPosterFailure(t *testing.T) {
	rec := processingRecord("rec-4")
	amount := rec.AmountCents
	st := &fakeStore{
		records: map[string]*model.ExpenseRecord{"rec-4": rec},
		candidates: []model.BankTransaction{{
			ID: "txn-1", AmountCents: 5296, TxnDate: day(12),
			DescriptionRaw: "SHELL GAS STATION CA", Status: model.TxnUnmatched,
		}},
	}
	rc := &fakeReceipts{byPath: map[string]*receipts.Receipt{
		*rec.ReceiptPath: {ExtractedAmountCents: &amount},
	}}
	ruleStore := &fakeRulesStore{rules: []model.VendorRule{
		{ID: 1, Pattern: "SHELL", DefaultCategory: "Fuel", DefaultJurisdiction: "CA"},
	}}
	poster := &fakePoster{err: eris.New("ledger rejected entry")}

	err := newProcessor(st, rc, ruleStore, poster, &fakeRecorder{}).
		Process(context.Background(), "rec-4")

	assert.Error(t, err)
	assert.Equal(t, model.RecordError, st.finalStatus)
	assert.Contains(t, st.lastError, "ledger rejected entry")
}

func TestProcessResolvesJurisdictionFromVendorText(t *testing.T) {
	rec := processingRecord("rec-5")
	rec.VendorRaw = "SHELL OIL SACRAMENTO CA"
	rec.ReceiptPath = nil
	st := &fakeStore{records: map[string]*model.ExpenseRecord{"rec-5": rec}}
	recorder := &fakeRecorder{}

	err := newProcessor(st, &fakeReceipts{}, &fakeRulesStore{}, &fakePoster{}, recorder).
		Process(context.Background(), "rec-5")

	require.NoError(t, err)
	require.Len(t, recorder.results, 1)
	assert.Equal(t, "CA", recorder.results[0].Jurisdiction)
	assert.NotContains(t, recorder.results[0].Flags, match.FlagJurisdictionUnknown)
}

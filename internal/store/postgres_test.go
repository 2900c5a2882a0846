package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-cli/internal/model"
)

var recordColumnNames = []string{
	"id", "external_id", "vendor_raw", "amount_cents", "currency", "txn_date", "source",
	"raw_payload", "category", "category_hint", "jurisdiction", "jurisdiction_hint",
	"status", "flag_reason", "flags", "confidence", "matched_txn_id", "receipt_path",
	"posted_ref", "original_amount_cents", "original_date", "processing_started_at",
	"processing_attempts", "last_error", "processed_at", "created_at", "updated_at",
}

func recordRow(id, externalID string, status model.RecordStatus, attempts int) *pgxmock.Rows {
	now := time.Now().UTC()
	started := now
	return pgxmock.NewRows(recordColumnNames).AddRow(
		id, externalID, "Shell Gas Station", int64(5296), "USD", now, "expensify",
		"", "", "", "", "",
		string(status), "", []byte("[]"), 0, nil, nil,
		"", nil, nil, &started,
		attempts, "", nil, now, now,
	)
}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return NewPostgresWithPool(mock), mock
}

func TestPostgresClaimOldestPending(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(pgClaimPending)).
		WillReturnRows(recordRow("rec-1", "ext-1", model.RecordProcessing, 1))

	rec, err := s.ClaimOldestPending(context.Background())

	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "rec-1", rec.ID)
	assert.Equal(t, model.RecordProcessing, rec.Status)
	assert.Equal(t, 1, rec.ProcessingAttempts)
}

func TestPostgresClaimOldestPendingEmpty(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(pgClaimPending)).
		WillReturnRows(pgxmock.NewRows(recordColumnNames))

	rec, err := s.ClaimOldestPending(context.Background())

	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPostgresMarkPosted(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE expense_records`).
		WithArgs("txn-1", 100, "ledger-77", "rec-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.MarkPosted(context.Background(), "rec-1", "txn-1", 100, "ledger-77")

	require.NoError(t, err)
}

func TestPostgresMarkPostedNotProcessing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE expense_records`).
		WithArgs("txn-1", 100, "ledger-77", "rec-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.MarkPosted(context.Background(), "rec-1", "txn-1", 100, "ledger-77")

	assert.Error(t, err)
}

func TestPostgresInsertBankTransactionDuplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO bank_transactions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := s.InsertBankTransaction(context.Background(), &model.BankTransaction{
		Source:         "chase-1234",
		DescriptionRaw: "SHELL",
		AmountCents:    5296,
		TxnDate:        time.Now().UTC(),
		DedupKey:       "k",
	})

	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestPostgresGetRecordNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM expense_records WHERE id`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(recordColumnNames))

	_, err := s.GetRecord(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresTouchVendorRuleNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE vendor_rules`).
		WithArgs(pgxmock.AnyArg(), int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.TouchVendorRule(context.Background(), 42)

	assert.Error(t, err)
}

func TestPostgresListVendorRulesOrdered(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM vendor_rules ORDER BY id`).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "pattern", "default_category", "default_jurisdiction",
			"match_count", "last_matched_at", "created_at",
		}).
			AddRow(int64(1), "STARBUCKS", "Meals", "WA", int64(3), &now, now).
			AddRow(int64(2), "SHELL", "Fuel", "", int64(0), nil, now))

	rules, err := s.ListVendorRules(context.Background())

	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, int64(1), rules[0].ID)
	assert.Equal(t, "SHELL", rules[1].Pattern)
	assert.Nil(t, rules[1].LastMatchedAt)
}

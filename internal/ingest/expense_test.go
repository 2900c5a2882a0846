package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-cli/internal/model"
)

type fakeExpenseStore struct {
	records map[string]model.ExpenseRecord
}

func newFakeExpenseStore() *fakeExpenseStore {
	return &fakeExpenseStore{records: make(map[string]model.ExpenseRecord)}
}

func (f *fakeExpenseStore) InsertRecord(_ context.Context, rec *model.ExpenseRecord) (bool, error) {
	if _, ok := f.records[rec.ExternalID]; ok {
		return false, nil
	}
	f.records[rec.ExternalID] = *rec
	return true, nil
}

const shellPayload = `{"external_id":"exp-100","vendor":"Shell Gas Station","amount":"52.96","date":"2024-08-12","receipt_path":"receipts/exp-100.pdf"}`

func TestIngestExpense(t *testing.T) {
	st := newFakeExpenseStore()
	notified := 0
	svc := NewExpenseService(st, func() { notified++ })

	rec, duplicate, err := svc.Ingest(context.Background(), []byte(shellPayload))

	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.Equal(t, 1, notified)
	assert.Equal(t, "exp-100", rec.ExternalID)
	assert.Equal(t, int64(5296), rec.AmountCents)
	assert.Equal(t, model.RecordPending, rec.Status)
	require.NotNil(t, rec.ReceiptPath)
	assert.Equal(t, "receipts/exp-100.pdf", *rec.ReceiptPath)
	assert.JSONEq(t, shellPayload, st.records["exp-100"].RawPayload)
}

func TestIngestExpenseIdempotent(t *testing.T) {
	st := newFakeExpenseStore()
	notified := 0
	svc := NewExpenseService(st, func() { notified++ })
	ctx := context.Background()

	_, duplicate, err := svc.Ingest(ctx, []byte(shellPayload))
	require.NoError(t, err)
	require.False(t, duplicate)

	_, duplicate, err = svc.Ingest(ctx, []byte(shellPayload))
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.Len(t, st.records, 1)
	assert.Equal(t, 1, notified, "duplicates must not wake the controller")
}

func TestIngestExpenseValidation(t *testing.T) {
	svc := NewExpenseService(newFakeExpenseStore(), nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		payload string
	}{
		{"missing external id", `{"vendor":"Shell","amount":"5.00","date":"2024-08-12"}`},
		{"missing vendor", `{"external_id":"e1","amount":"5.00","date":"2024-08-12"}`},
		{"bad amount", `{"external_id":"e1","vendor":"Shell","amount":"five","date":"2024-08-12"}`},
		{"bad date", `{"external_id":"e1","vendor":"Shell","amount":"5.00","date":"someday"}`},
		{"not json", `vendor=Shell`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Ingest(ctx, []byte(tt.payload))
			assert.Error(t, err)
		})
	}
}

func TestIngestStream(t *testing.T) {
	st := newFakeExpenseStore()
	svc := NewExpenseService(st, nil)

	input := strings.Join([]string{
		`{"external_id":"exp-1","vendor":"Shell","amount":"52.96","date":"2024-08-12"}`,
		"",
		`{"external_id":"exp-2","vendor":"Starbucks","amount":"6.45","date":"2024-08-13"}`,
		`{"external_id":"exp-1","vendor":"Shell","amount":"52.96","date":"2024-08-12"}`,
		`{"external_id":"exp-3","vendor":"Amazon","amount":"??","date":"2024-08-14"}`,
	}, "\n")

	report, err := svc.IngestStream(context.Background(), strings.NewReader(input))

	require.NoError(t, err)
	assert.Equal(t, 2, report.Ingested)
	assert.Equal(t, 1, report.Duplicates)
	require.Len(t, report.RowErrors, 1)
	assert.Equal(t, 5, report.RowErrors[0].Row)
}

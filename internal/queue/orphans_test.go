package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-cli/internal/model"
)

type fakeOrphanStore struct {
	orphans []model.BankTransaction
	manual  []string
}

func (f *fakeOrphanStore) ListOrphanTransactions(_ context.Context, _ time.Time, limit int) ([]model.BankTransaction, error) {
	if len(f.orphans) > limit {
		return f.orphans[:limit], nil
	}
	return f.orphans, nil
}

func (f *fakeOrphanStore) MarkTransactionManual(_ context.Context, txnID string) error {
	f.manual = append(f.manual, txnID)
	return nil
}

type fakeOrphanRecorder struct {
	recorded []string
}

func (f *fakeOrphanRecorder) RecordOrphan(_ context.Context, txn *model.BankTransaction) error {
	f.recorded = append(f.recorded, txn.ID)
	return nil
}

func TestSweepRoutesOrphans(t *testing.T) {
	st := &fakeOrphanStore{orphans: []model.BankTransaction{
		{ID: "txn-1", Source: "chase", AmountCents: 1200},
		{ID: "txn-2", Source: "chase", AmountCents: 5400},
	}}
	rec := &fakeOrphanRecorder{}

	routed, err := NewOrphanSweeper(st, rec, OrphanOptions{}).Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, routed)
	assert.Equal(t, []string{"txn-1", "txn-2"}, st.manual)
	assert.Equal(t, []string{"txn-1", "txn-2"}, rec.recorded)
}

func TestSweepHonorsBatchSize(t *testing.T) {
	st := &fakeOrphanStore{}
	for i := 0; i < 30; i++ {
		st.orphans = append(st.orphans, model.BankTransaction{ID: string(rune('A' + i))})
	}

	routed, err := NewOrphanSweeper(st, &fakeOrphanRecorder{}, OrphanOptions{BatchSize: 20}).
		Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 20, routed)
	assert.Len(t, st.manual, 20)
}

package queue

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/model"
)

// OrphanStore is the transaction-side slice of the store the sweep reads and
// mutates.
type OrphanStore interface {
	ListOrphanTransactions(ctx context.Context, olderThan time.Time, limit int) ([]model.BankTransaction, error)
	MarkTransactionManual(ctx context.Context, txnID string) error
}

// OrphanRecorder logs the audit row for each transaction routed to manual
// review.
type OrphanRecorder interface {
	RecordOrphan(ctx context.Context, txn *model.BankTransaction) error
}

// OrphanOptions tunes the sweep.
type OrphanOptions struct {
	// AgeDays is how long a transaction may sit unmatched before it is
	// routed to manual review. Default 5.
	AgeDays int
	// BatchSize caps transactions routed per sweep pass. Default 20.
	BatchSize int
}

func (o OrphanOptions) withDefaults() OrphanOptions {
	if o.AgeDays <= 0 {
		o.AgeDays = 5
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	return o
}

// OrphanSweeper routes bank transactions no record ever matched to manual
// review, in bounded batches so one sweep cannot flood the review queue.
type OrphanSweeper struct {
	store    OrphanStore
	recorder OrphanRecorder
	opts     OrphanOptions
	log      *zap.Logger
}

// NewOrphanSweeper builds a sweeper.
func NewOrphanSweeper(st OrphanStore, recorder OrphanRecorder, opts OrphanOptions) *OrphanSweeper {
	return &OrphanSweeper{
		store:    st,
		recorder: recorder,
		opts:     opts.withDefaults(),
		log:      zap.L().With(zap.String("component", "orphans")),
	}
}

// Sweep runs one pass and returns how many transactions it routed.
func (s *OrphanSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.opts.AgeDays)
	orphans, err := s.store.ListOrphanTransactions(ctx, cutoff, s.opts.BatchSize)
	if err != nil {
		return 0, eris.Wrap(err, "orphans: list")
	}

	routed := 0
	for i := range orphans {
		txn := &orphans[i]
		if err := s.store.MarkTransactionManual(ctx, txn.ID); err != nil {
			return routed, eris.Wrapf(err, "orphans: route %s", txn.ID)
		}
		routed++
		if err := s.recorder.RecordOrphan(ctx, txn); err != nil {
			s.log.Warn("orphan audit write failed",
				zap.String("transaction_id", txn.ID), zap.Error(err))
		}
		s.log.Info("orphan transaction routed to manual review",
			zap.String("transaction_id", txn.ID),
			zap.String("source", txn.Source),
			zap.Int64("amount_cents", txn.AmountCents))
	}
	return routed, nil
}

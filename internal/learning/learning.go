// Package learning maintains the append-only decision history and derives
// calibration statistics from it. Every terminal decision is recorded;
// operator corrections append a correction row and seed a vendor rule so the
// same vendor resolves automatically next time.
package learning

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/match"
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/normalize"
	"github.com/sells-group/recon-cli/internal/store"
)

// Store is the slice of the record store the learning service needs.
type Store interface {
	InsertDecision(ctx context.Context, d *model.Decision) error
	ListDecisions(ctx context.Context, filter store.DecisionFilter) ([]model.Decision, error)
	CreateVendorRule(ctx context.Context, rule *model.VendorRule) (*model.VendorRule, error)
}

// Service records decisions and computes calibration.
type Service struct {
	store Store
	log   *zap.Logger
}

// NewService returns a learning service over the given store.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		log:   zap.L().With(zap.String("component", "learning")),
	}
}

// Record appends the audit row for a terminal decision.
func (s *Service) Record(ctx context.Context, rec *model.ExpenseRecord, res match.Result) error {
	d := &model.Decision{
		RecordID:              rec.ID,
		TransactionID:         res.TransactionID,
		PredictedCategory:     res.Category,
		PredictedJurisdiction: res.Jurisdiction,
		PredictedConfidence:   res.Confidence,
		FinalCategory:         res.Category,
		FinalJurisdiction:     res.Jurisdiction,
		Flags:                 res.Flags,
	}
	if d.Flags == nil {
		d.Flags = []string{}
	}
	if err := s.store.InsertDecision(ctx, d); err != nil {
		return eris.Wrapf(err, "learning: record decision for %s", rec.ID)
	}
	return nil
}

// RecordOrphan appends an audit row for a bank transaction routed to manual
// review without a record ever claiming it.
func (s *Service) RecordOrphan(ctx context.Context, txn *model.BankTransaction) error {
	id := txn.ID
	d := &model.Decision{
		RecordID:      "",
		TransactionID: &id,
		Flags:         []string{"orphan transaction"},
	}
	if err := s.store.InsertDecision(ctx, d); err != nil {
		return eris.Wrapf(err, "learning: record orphan for %s", txn.ID)
	}
	return nil
}

// Correct appends a correction row for a record the operator fixed and creates
// a vendor rule from the correction so the vendor resolves without review
// next time.
func (s *Service) Correct(ctx context.Context, rec *model.ExpenseRecord, finalCategory, finalJurisdiction string) error {
	d := &model.Decision{
		RecordID:              rec.ID,
		TransactionID:         rec.MatchedTxnID,
		PredictedCategory:     rec.Category,
		PredictedJurisdiction: rec.Jurisdiction,
		PredictedConfidence:   rec.Confidence,
		FinalCategory:         finalCategory,
		FinalJurisdiction:     finalJurisdiction,
		Corrected:             true,
		Flags:                 []string{},
	}
	if err := s.store.InsertDecision(ctx, d); err != nil {
		return eris.Wrapf(err, "learning: record correction for %s", rec.ID)
	}

	token := normalize.VendorToken(rec.VendorRaw)
	if token == "" {
		return nil
	}
	rule, err := s.store.CreateVendorRule(ctx, &model.VendorRule{
		Pattern:             token,
		DefaultCategory:     finalCategory,
		DefaultJurisdiction: finalJurisdiction,
	})
	if err != nil {
		return eris.Wrapf(err, "learning: create rule from correction for %s", rec.ID)
	}
	s.log.Info("vendor rule learned from correction",
		zap.Int64("rule_id", rule.ID),
		zap.String("pattern", rule.Pattern),
		zap.String("record_id", rec.ID))
	return nil
}

// Bucket is one confidence decile of the calibration report.
type Bucket struct {
	Low       int     `json:"low"`
	High      int     `json:"high"`
	Total     int     `json:"total"`
	Corrected int     `json:"corrected"`
	Accuracy  float64 `json:"accuracy"`
}

// Calibration aggregates decision accuracy by confidence decile. A decision
// counts as accurate when no correction row was appended for it.
func (s *Service) Calibration(ctx context.Context) ([]Bucket, error) {
	decisions, err := s.store.ListDecisions(ctx, store.DecisionFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "learning: list decisions")
	}

	corrected := make(map[string]bool)
	for _, d := range decisions {
		if d.Corrected && d.RecordID != "" {
			corrected[d.RecordID] = true
		}
	}

	buckets := make([]Bucket, 10)
	for i := range buckets {
		buckets[i].Low = i * 10
		buckets[i].High = i*10 + 9
	}
	buckets[9].High = 100

	for _, d := range decisions {
		if d.Corrected || d.RecordID == "" {
			continue
		}
		idx := d.PredictedConfidence / 10
		if idx > 9 {
			idx = 9
		}
		buckets[idx].Total++
		if corrected[d.RecordID] {
			buckets[idx].Corrected++
		}
	}

	for i := range buckets {
		if buckets[i].Total > 0 {
			buckets[i].Accuracy = float64(buckets[i].Total-buckets[i].Corrected) / float64(buckets[i].Total)
		}
	}
	return buckets, nil
}

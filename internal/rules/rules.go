// Package rules resolves vendor tokens against the learned VendorRule table.
package rules

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/model"
)

// Store is the slice of the record store the rule service needs.
type Store interface {
	ListVendorRules(ctx context.Context) ([]model.VendorRule, error)
	TouchVendorRule(ctx context.Context, id int64) error
}

// Service looks up and applies vendor rules.
type Service struct {
	store Store
	log   *zap.Logger
}

// NewService returns a rule service over the given store.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		log:   zap.L().With(zap.String("component", "rules")),
	}
}

// Resolve returns the first rule whose pattern is a case-insensitive substring
// of the normalized vendor token. Rules are checked in insertion order and the
// first hit wins. Applying a rule increments its match counter and timestamp.
// Returns nil when no rule matches.
func (s *Service) Resolve(ctx context.Context, vendorToken string) (*model.VendorRule, error) {
	if vendorToken == "" {
		return nil, nil
	}

	all, err := s.store.ListVendorRules(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "rules: list vendor rules")
	}

	token := strings.ToUpper(vendorToken)
	for _, r := range all {
		if !strings.Contains(token, strings.ToUpper(r.Pattern)) {
			continue
		}
		if err := s.store.TouchVendorRule(ctx, r.ID); err != nil {
			return nil, eris.Wrapf(err, "rules: touch rule %d", r.ID)
		}
		s.log.Debug("vendor rule applied",
			zap.Int64("rule_id", r.ID),
			zap.String("pattern", r.Pattern),
			zap.String("vendor_token", vendorToken))
		rule := r
		return &rule, nil
	}
	return nil, nil
}

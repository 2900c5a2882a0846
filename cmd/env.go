package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/recon-cli/internal/learning"
	"github.com/sells-group/recon-cli/internal/match"
	"github.com/sells-group/recon-cli/internal/processor"
	"github.com/sells-group/recon-cli/internal/queue"
	"github.com/sells-group/recon-cli/internal/receipts"
	"github.com/sells-group/recon-cli/internal/resilience"
	"github.com/sells-group/recon-cli/internal/rules"
	"github.com/sells-group/recon-cli/internal/store"
	"github.com/sells-group/recon-cli/pkg/anthropic"
)

// reconEnv bundles the wired services a command needs.
type reconEnv struct {
	Store      store.Store
	Processor  *processor.Processor
	Controller *queue.Controller
	Learning   *learning.Service
	Sweeper    *queue.OrphanSweeper
}

func (e *reconEnv) Close() {
	_ = e.Store.Close()
}

// openStore opens the configured backend. Postgres pool sizing comes from
// store config; SQLite takes the URL as a file path.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: int32(cfg.Store.MaxConns),
			MinConns: int32(cfg.Store.MinConns),
		})
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func matchParams() match.Params {
	return match.Params{
		WindowDays:                 cfg.Match.WindowDays,
		AmountToleranceCents:       cfg.Match.AmountToleranceCents,
		ReceiptToleranceCents:      cfg.Match.ReceiptToleranceCents,
		PenaltyNoMatch:             cfg.Match.PenaltyNoMatch,
		PenaltyReceiptMismatch:     cfg.Match.PenaltyReceiptMismatch,
		PenaltyMissingReceipt:      cfg.Match.PenaltyMissingReceipt,
		PenaltyCOSNoEvent:          cfg.Match.PenaltyCOSNoEvent,
		PenaltyCOSNoEventHigh:      cfg.Match.PenaltyCOSNoEventHigh,
		PenaltyJurisdictionUnknown: cfg.Match.PenaltyJurisdictionUnknown,
		PenaltyCategoryUnknown:     cfg.Match.PenaltyCategoryUnknown,
		AutoPostThreshold:          cfg.Match.AutoPostThreshold,
		CostOfSaleCategories:       cfg.Match.CostOfSaleCategories,
		EventCategories:            cfg.Match.EventCategories,
		KnownCategories:            cfg.Match.KnownCategories,
	}
}

// buildScorer returns the deterministic scorer, wrapped with the advisory
// model scorer when enabled. The wrapper only fills unresolved category and
// jurisdiction; confidence and flags stay deterministic.
func buildScorer() match.Scorer {
	base := match.NewHeuristicScorer(matchParams())
	if !cfg.Anthropic.Enabled {
		return base
	}
	client := anthropic.NewClient(cfg.Anthropic.Key)
	return match.NewModelScorer(base, client, cfg.Anthropic.Model)
}

// initEnv opens the store and wires the full processing stack.
func initEnv(ctx context.Context) (*reconEnv, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}

	receiptStore, err := receipts.NewFSStore(cfg.Receipts.Dir)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init receipt store")
	}

	learn := learning.NewService(st)

	proc := processor.New(st, receiptStore, rules.NewService(st), buildScorer(),
		processor.LogPoster{}, learn, processor.Options{
			WindowDays:        cfg.Match.WindowDays,
			AutoPostThreshold: cfg.Match.AutoPostThreshold,
			PostRatePerSec:    cfg.Queue.PostRatePerSec,
			HomeJurisdictions: cfg.Match.HomeJurisdictions,
			Retry:             resilience.DefaultRetryConfig(),
		})

	ctrl := queue.New(st, proc, queue.Options{
		MaxConcurrent: cfg.Queue.MaxConcurrent,
		StuckTimeout:  time.Duration(cfg.Queue.ProcessingTimeoutMins) * time.Minute,
		MaxAttempts:   cfg.Queue.MaxAttempts,
	})

	return &reconEnv{
		Store:      st,
		Processor:  proc,
		Controller: ctrl,
		Learning:   learn,
		Sweeper: queue.NewOrphanSweeper(st, learn, queue.OrphanOptions{
			AgeDays:   cfg.Orphans.AgeDays,
			BatchSize: cfg.Orphans.BatchSize,
		}),
	}, nil
}

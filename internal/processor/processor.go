// Package processor runs one claimed expense record through receipt fetch,
// vendor-rule lookup, matching, and result application. Dispatch hands it a
// record id; everything else is loaded from the store.
package processor

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/recon-cli/internal/match"
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/normalize"
	"github.com/sells-group/recon-cli/internal/receipts"
	"github.com/sells-group/recon-cli/internal/resilience"
	"github.com/sells-group/recon-cli/internal/rules"
)

// Store is the slice of the record store the processor mutates. Terminal
// transitions happen only through these operations.
type Store interface {
	GetRecord(ctx context.Context, id string) (*model.ExpenseRecord, error)
	ListCandidates(ctx context.Context, source string, date time.Time, windowDays int) ([]model.BankTransaction, error)
	MarkTransactionMatched(ctx context.Context, txnID, recordID, matchedBy string) error
	MarkPosted(ctx context.Context, id, txnID string, confidence int, postedRef string) error
	MarkFlagged(ctx context.Context, id string, confidence int, flagReason string, flags []string) error
	MarkError(ctx context.Context, id, lastError string) error
}

// Poster posts a reconciled record to the downstream ledger and returns the
// ledger reference. Implementations must be idempotent per record.
type Poster interface {
	Post(ctx context.Context, rec *model.ExpenseRecord, txnID string) (string, error)
}

// LogPoster is the default Poster: it writes no ledger entry, only a log line.
// The real ledger integration plugs in here.
type LogPoster struct{}

func (LogPoster) Post(_ context.Context, rec *model.ExpenseRecord, txnID string) (string, error) {
	zap.L().Info("ledger post (noop)",
		zap.String("record_id", rec.ID),
		zap.String("transaction_id", txnID),
		zap.Int64("amount_cents", rec.AmountCents))
	return "noop:" + rec.ID, nil
}

// Recorder captures the learning-store hook the processor calls on every
// terminal decision.
type Recorder interface {
	Record(ctx context.Context, rec *model.ExpenseRecord, res match.Result) error
}

// Options tunes the processor.
type Options struct {
	WindowDays        int
	AutoPostThreshold int
	// PostRatePerSec throttles downstream posting; zero disables the limiter.
	PostRatePerSec float64
	// HomeJurisdictions feeds the normalizer's jurisdiction fallback.
	HomeJurisdictions []string
	Retry             resilience.RetryConfig
}

// Processor executes the dispatch contract for one record at a time. It is
// safe for concurrent use; the worker pool runs several in flight.
type Processor struct {
	store    Store
	receipts receipts.Store
	rules    *rules.Service
	scorer   match.Scorer
	poster   Poster
	recorder Recorder
	limiter  *rate.Limiter
	opts     Options
	log      *zap.Logger
}

// New builds a Processor.
func New(st Store, rc receipts.Store, rl *rules.Service, sc match.Scorer, poster Poster, recorder Recorder, opts Options) *Processor {
	if opts.WindowDays <= 0 {
		opts.WindowDays = 3
	}
	if opts.AutoPostThreshold <= 0 {
		opts.AutoPostThreshold = 95
	}
	if len(opts.HomeJurisdictions) == 0 {
		opts.HomeJurisdictions = normalize.DefaultHomeJurisdictions
	}
	var limiter *rate.Limiter
	if opts.PostRatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.PostRatePerSec), 1)
	}
	return &Processor{
		store:    st,
		receipts: rc,
		rules:    rl,
		scorer:   sc,
		poster:   poster,
		recorder: recorder,
		limiter:  limiter,
		opts:     opts,
		log:      zap.L().With(zap.String("component", "processor")),
	}
}

// Process runs one record to a terminal state. Infrastructure failures mark
// the record error and are returned; flagged is a successful outcome.
func (p *Processor) Process(ctx context.Context, recordID string) error {
	rec, err := p.store.GetRecord(ctx, recordID)
	if err != nil {
		return eris.Wrapf(err, "processor: load record %s", recordID)
	}

	// Reprocessing a record another path already settled is a no-op.
	if rec.Terminal() {
		p.log.Debug("record already terminal, skipping",
			zap.String("record_id", rec.ID), zap.String("status", string(rec.Status)))
		return nil
	}
	if rec.Status != model.RecordProcessing {
		return eris.Errorf("processor: record %s not claimed (status %s)", rec.ID, rec.Status)
	}

	res, err := p.score(ctx, rec)
	if err != nil {
		return p.fail(ctx, rec, err)
	}

	if res.AutoPostable(p.opts.AutoPostThreshold) {
		if err := p.post(ctx, rec, res); err != nil {
			return p.fail(ctx, rec, err)
		}
	} else {
		reason := strings.Join(res.Flags, "; ")
		if reason == "" {
			reason = "confidence below auto-post threshold"
		}
		if err := p.store.MarkFlagged(ctx, rec.ID, res.Confidence, reason, res.Flags); err != nil {
			return p.fail(ctx, rec, eris.Wrap(err, "processor: mark flagged"))
		}
		p.log.Info("record flagged for review",
			zap.String("record_id", rec.ID),
			zap.Int("confidence", res.Confidence),
			zap.Strings("flags", res.Flags))
	}

	if err := p.recorder.Record(ctx, rec, res); err != nil {
		// The decision log is advisory; a write failure must not undo a
		// terminal transition.
		p.log.Warn("decision log write failed",
			zap.String("record_id", rec.ID), zap.Error(err))
	}
	return nil
}

// score assembles the scorer input: receipt artifact, candidate window, and
// rule-resolved category/jurisdiction.
func (p *Processor) score(ctx context.Context, rec *model.ExpenseRecord) (match.Result, error) {
	in := match.Input{Record: rec}

	if rec.ReceiptPath != nil {
		receipt, err := resilience.DoVal(ctx, p.opts.Retry, func(ctx context.Context) (*receipts.Receipt, error) {
			return p.receipts.Fetch(ctx, *rec.ReceiptPath)
		})
		switch {
		case eris.Is(err, receipts.ErrNotFound):
			// Missing receipt is a penalty, not an error.
		case err != nil:
			return match.Result{}, eris.Wrap(err, "processor: fetch receipt")
		default:
			in.ReceiptPresent = true
			in.ReceiptAmountCents = receipt.ExtractedAmountCents
		}
	}

	candidates, err := p.store.ListCandidates(ctx, "", rec.TxnDate, p.opts.WindowDays)
	if err != nil {
		return match.Result{}, eris.Wrap(err, "processor: list candidates")
	}
	in.Candidates = candidates

	in.Category, in.Jurisdiction, err = p.resolve(ctx, rec)
	if err != nil {
		return match.Result{}, err
	}

	res, err := p.scorer.Score(ctx, in)
	if err != nil {
		return match.Result{}, eris.Wrap(err, "processor: score")
	}
	return res, nil
}

// resolve works out category and jurisdiction before scoring: operator-set
// values win, then vendor rules, then the record's own hints, then the
// normalizer's read of the vendor text.
func (p *Processor) resolve(ctx context.Context, rec *model.ExpenseRecord) (string, string, error) {
	category := rec.Category
	jurisdiction := rec.Jurisdiction

	token := normalize.VendorToken(rec.VendorRaw)
	rule, err := p.rules.Resolve(ctx, token)
	if err != nil {
		return "", "", eris.Wrap(err, "processor: resolve vendor rule")
	}
	if rule != nil {
		if category == "" {
			category = rule.DefaultCategory
		}
		if jurisdiction == "" {
			jurisdiction = rule.DefaultJurisdiction
		}
	}

	if category == "" {
		category = rec.CategoryHint
	}
	if jurisdiction == "" {
		jurisdiction = rec.JurisdictionHint
	}
	if jurisdiction == "" {
		jurisdiction = normalize.Jurisdiction(rec.VendorRaw, p.opts.HomeJurisdictions)
	}
	return category, jurisdiction, nil
}

// post links the transaction, posts to the ledger, and marks the record
// posted. Each step is guarded so a crash-and-reprocess cannot double-post.
func (p *Processor) post(ctx context.Context, rec *model.ExpenseRecord, res match.Result) error {
	txnID := *res.TransactionID

	if err := p.store.MarkTransactionMatched(ctx, txnID, rec.ID, model.MatchedByEngine); err != nil {
		return eris.Wrap(err, "processor: link transaction")
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "processor: rate limit wait")
		}
	}

	ref, err := resilience.DoVal(ctx, p.opts.Retry, func(ctx context.Context) (string, error) {
		return p.poster.Post(ctx, rec, txnID)
	})
	if err != nil {
		return eris.Wrap(err, "processor: ledger post")
	}

	if err := p.store.MarkPosted(ctx, rec.ID, txnID, res.Confidence, ref); err != nil {
		return eris.Wrap(err, "processor: mark posted")
	}
	p.log.Info("record posted",
		zap.String("record_id", rec.ID),
		zap.String("transaction_id", txnID),
		zap.Int("confidence", res.Confidence),
		zap.String("posted_ref", ref))
	return nil
}

// fail records the infrastructure failure on the record and passes the error up.
func (p *Processor) fail(ctx context.Context, rec *model.ExpenseRecord, cause error) error {
	p.log.Error("processing failed",
		zap.String("record_id", rec.ID),
		zap.Int("attempts", rec.ProcessingAttempts),
		zap.Bool("transient", resilience.IsTransient(cause)),
		zap.Error(cause))
	if err := p.store.MarkError(ctx, rec.ID, cause.Error()); err != nil {
		p.log.Error("mark error failed", zap.String("record_id", rec.ID), zap.Error(err))
	}
	return cause
}

// Package queue implements the expense queue controller: a single claim actor
// that owns all claim decisions, a bounded worker pool for dispatch, and the
// stuck-record recovery sweep.
package queue

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/recon-cli/internal/model"
)

// FlagMaxAttempts is the flag reason for records that burned through their
// retry budget. They require explicit operator action.
const FlagMaxAttempts = "max retry attempts exceeded"

// Store is the slice of the record store the controller drives.
type Store interface {
	ClaimOldestPending(ctx context.Context) (*model.ExpenseRecord, error)
	CountProcessing(ctx context.Context) (int, error)
	ListStuck(ctx context.Context, olderThan time.Time) ([]model.ExpenseRecord, error)
	ReleaseStuck(ctx context.Context, id string) error
	MarkFlagged(ctx context.Context, id string, confidence int, flagReason string, flags []string) error
}

// Dispatcher processes one claimed record to a terminal state.
type Dispatcher interface {
	Process(ctx context.Context, recordID string) error
}

// Options tunes the controller.
type Options struct {
	// MaxConcurrent bounds simultaneously processing records. Default 5.
	MaxConcurrent int
	// StuckTimeout is how long a record may sit processing before the
	// recovery sweep considers it wedged. Default 15m.
	StuckTimeout time.Duration
	// MaxAttempts is the circuit breaker: stuck records at or past this
	// attempt count are flagged instead of released. Default 3.
	MaxAttempts int
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 5
	}
	if o.StuckTimeout <= 0 {
		o.StuckTimeout = 15 * time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	return o
}

// Controller claims pending records under the concurrency cap and dispatches
// them. Claim decisions are serialized through the run loop; external events
// only fire the coalescing trigger channel.
type Controller struct {
	store    Store
	dispatch Dispatcher
	opts     Options
	log      *zap.Logger

	trigger  chan struct{}
	inflight atomic.Int64

	// Completed and Failed count terminal dispatches since start.
	Completed atomic.Int64
	Failed    atomic.Int64
}

// New builds a Controller.
func New(st Store, d Dispatcher, opts Options) *Controller {
	return &Controller{
		store:    st,
		dispatch: d,
		opts:     opts.withDefaults(),
		log:      zap.L().With(zap.String("component", "queue")),
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests a capacity re-evaluation. Safe from any goroutine; multiple
// triggers before the loop wakes coalesce into one.
func (c *Controller) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Run serves the claim loop until the context is canceled, then waits for
// in-flight workers to finish. Worker failures never stop the loop; each
// failed record has already been marked error by the dispatcher.
func (c *Controller) Run(ctx context.Context) error {
	pool := &errgroup.Group{}
	pool.SetLimit(c.opts.MaxConcurrent)

	c.Trigger()
	for {
		select {
		case <-ctx.Done():
			c.log.Info("controller stopping, draining workers",
				zap.Int64("inflight", c.inflight.Load()))
			pool.Wait() //nolint:errcheck // workers always return nil
			return nil
		case <-c.trigger:
			c.fill(ctx, pool)
		}
	}
}

// RunUntilDrained serves the claim loop until no records remain pending and
// all workers have completed, or the context is canceled. Used by the one-shot
// process command.
func (c *Controller) RunUntilDrained(ctx context.Context) error {
	pool := &errgroup.Group{}
	pool.SetLimit(c.opts.MaxConcurrent)

	c.Trigger()
	for {
		select {
		case <-ctx.Done():
			pool.Wait() //nolint:errcheck
			return nil
		case <-c.trigger:
			dispatched := c.fill(ctx, pool)
			if dispatched == 0 && c.inflight.Load() == 0 {
				pool.Wait() //nolint:errcheck
				return nil
			}
		}
	}
}

// fill claims and dispatches records while capacity remains. It returns the
// number of records dispatched in this pass.
func (c *Controller) fill(ctx context.Context, pool *errgroup.Group) int {
	processing, err := c.store.CountProcessing(ctx)
	if err != nil {
		c.log.Error("count processing failed", zap.Error(err))
		return 0
	}

	dispatched := 0
	for processing < c.opts.MaxConcurrent {
		rec, err := c.store.ClaimOldestPending(ctx)
		if err != nil {
			c.log.Error("claim failed", zap.Error(err))
			break
		}
		if rec == nil {
			break
		}

		processing++
		dispatched++
		c.inflight.Add(1)
		id := rec.ID
		attempts := rec.ProcessingAttempts
		c.log.Debug("record claimed",
			zap.String("record_id", id), zap.Int("attempt", attempts))

		pool.Go(func() error {
			defer func() {
				c.inflight.Add(-1)
				c.Trigger()
			}()
			if err := c.dispatch.Process(ctx, id); err != nil {
				c.Failed.Add(1)
				c.log.Warn("dispatch failed",
					zap.String("record_id", id),
					zap.Int("attempt", attempts),
					zap.Error(err))
				return nil
			}
			c.Completed.Add(1)
			return nil
		})
	}
	return dispatched
}

// RecoverStuck sweeps records wedged in processing past the timeout. Records
// under the attempt cap go back to pending and re-enter the claim cycle;
// records at the cap are flagged for the operator.
func (c *Controller) RecoverStuck(ctx context.Context) (released, flagged int, err error) {
	cutoff := time.Now().UTC().Add(-c.opts.StuckTimeout)
	stuck, err := c.store.ListStuck(ctx, cutoff)
	if err != nil {
		return 0, 0, eris.Wrap(err, "queue: list stuck")
	}

	for _, rec := range stuck {
		if rec.ProcessingAttempts < c.opts.MaxAttempts {
			if err := c.store.ReleaseStuck(ctx, rec.ID); err != nil {
				return released, flagged, eris.Wrapf(err, "queue: release %s", rec.ID)
			}
			released++
			c.log.Info("stuck record released",
				zap.String("record_id", rec.ID),
				zap.Int("attempts", rec.ProcessingAttempts))
			continue
		}

		flags := append(dedupeFlags(rec.Flags), FlagMaxAttempts)
		if err := c.store.MarkFlagged(ctx, rec.ID, rec.Confidence, strings.Join(flags, "; "), flags); err != nil {
			return released, flagged, eris.Wrapf(err, "queue: flag %s", rec.ID)
		}
		flagged++
		c.log.Warn("stuck record flagged, attempt cap reached",
			zap.String("record_id", rec.ID),
			zap.Int("attempts", rec.ProcessingAttempts))
	}

	if released > 0 {
		c.Trigger()
	}
	return released, flagged, nil
}

func dedupeFlags(flags []string) []string {
	out := make([]string, 0, len(flags))
	seen := make(map[string]bool, len(flags))
	for _, f := range flags {
		if f == FlagMaxAttempts || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/recon-cli/internal/model"
)

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = eris.New("store: not found")

// DecisionFilter specifies criteria for listing decisions.
type DecisionFilter struct {
	RecordID string
	Limit    int
}

// Store defines the persistence interface for the reconciliation pipeline.
// All status transitions go through the named operations here; nothing else
// mutates queue state.
type Store interface {
	// Expense records
	InsertRecord(ctx context.Context, rec *model.ExpenseRecord) (bool, error)
	GetRecord(ctx context.Context, id string) (*model.ExpenseRecord, error)
	GetRecordByExternalID(ctx context.Context, externalID string) (*model.ExpenseRecord, error)
	CountProcessing(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) (map[model.RecordStatus]int, error)

	// Claim and completion. ClaimOldestPending atomically moves the oldest
	// pending record to processing, stamps processing_started_at, and
	// increments processing_attempts; it returns nil when nothing is pending.
	// Two concurrent claimants never receive the same record.
	ClaimOldestPending(ctx context.Context) (*model.ExpenseRecord, error)
	MarkPosted(ctx context.Context, id, txnID string, confidence int, postedRef string) error
	MarkFlagged(ctx context.Context, id string, confidence int, flagReason string, flags []string) error
	MarkError(ctx context.Context, id, lastError string) error

	// Recovery. ListStuck returns processing records older than the cutoff;
	// ReleaseStuck moves one back to pending preserving its attempt count;
	// ResetRecord is the operator edge from flagged/error back to pending.
	ListStuck(ctx context.Context, olderThan time.Time) ([]model.ExpenseRecord, error)
	ReleaseStuck(ctx context.Context, id string) error
	ResetRecord(ctx context.Context, id, correctedCategory, correctedJurisdiction string) error

	// Bank transactions
	InsertBankTransaction(ctx context.Context, txn *model.BankTransaction) (bool, error)
	GetTransaction(ctx context.Context, id string) (*model.BankTransaction, error)
	ListCandidates(ctx context.Context, source string, date time.Time, windowDays int) ([]model.BankTransaction, error)
	MarkTransactionMatched(ctx context.Context, txnID, recordID, matchedBy string) error
	ListOrphanTransactions(ctx context.Context, olderThan time.Time, limit int) ([]model.BankTransaction, error)
	MarkTransactionManual(ctx context.Context, txnID string) error

	// Vendor rules
	ListVendorRules(ctx context.Context) ([]model.VendorRule, error)
	CreateVendorRule(ctx context.Context, rule *model.VendorRule) (*model.VendorRule, error)
	TouchVendorRule(ctx context.Context, id int64) error

	// Decisions (append-only)
	InsertDecision(ctx context.Context, d *model.Decision) error
	ListDecisions(ctx context.Context, filter DecisionFilter) ([]model.Decision, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

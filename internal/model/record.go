package model

import "time"

// RecordStatus is the lifecycle state of an expense record in the queue.
type RecordStatus string

const (
	RecordPending    RecordStatus = "pending"
	RecordProcessing RecordStatus = "processing"
	RecordPosted     RecordStatus = "posted"
	RecordFlagged    RecordStatus = "flagged"
	RecordError      RecordStatus = "error"
	RecordRejected   RecordStatus = "rejected"
)

// TerminalRecordStatuses are the states a processing record may settle into.
var TerminalRecordStatuses = []RecordStatus{RecordPosted, RecordFlagged, RecordError}

// ExpenseRecord is a single expense awaiting reconciliation against the bank feed.
type ExpenseRecord struct {
	ID                  string
	ExternalID          string
	VendorRaw           string
	AmountCents         int64
	Currency            string
	TxnDate             time.Time
	Source              string
	RawPayload          string
	Category            string
	CategoryHint        string
	Jurisdiction        string
	JurisdictionHint    string
	Status              RecordStatus
	FlagReason          string
	Flags               []string
	Confidence          int
	MatchedTxnID        *string
	ReceiptPath         *string
	PostedRef           string
	OriginalAmountCents *int64
	OriginalDate        *time.Time
	ProcessingStartedAt *time.Time
	ProcessingAttempts  int
	LastError           string
	ProcessedAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Terminal reports whether the record has reached a settled state.
func (r *ExpenseRecord) Terminal() bool {
	switch r.Status {
	case RecordPosted, RecordFlagged, RecordError, RecordRejected:
		return true
	}
	return false
}

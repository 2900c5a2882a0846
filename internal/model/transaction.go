package model

import "time"

// TxnStatus is the lifecycle state of an imported bank transaction.
type TxnStatus string

const (
	TxnUnmatched TxnStatus = "unmatched"
	TxnMatched   TxnStatus = "matched"
	TxnExcluded  TxnStatus = "excluded"
	TxnManual    TxnStatus = "manual"
)

// Match provenance values for BankTransaction.MatchedBy.
const (
	MatchedByEngine   = "engine"
	MatchedByOperator = "operator"
)

// BankTransaction is one row of an imported bank statement.
type BankTransaction struct {
	ID              string
	Source          string
	DescriptionRaw  string
	AmountCents     int64
	TxnDate         time.Time
	DedupKey        string
	Status          TxnStatus
	MatchedRecordID *string
	MatchedBy       string
	MatchedAt       *time.Time
	ImportBatchID   string
	CreatedAt       time.Time
}

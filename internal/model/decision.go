package model

import "time"

// Decision is one append-only audit row describing how a record was settled.
// Rows are write-once; corrections append a new row with Corrected set.
type Decision struct {
	ID                    int64
	RecordID              string
	TransactionID         *string
	PredictedCategory     string
	PredictedJurisdiction string
	PredictedConfidence   int
	FinalCategory         string
	FinalJurisdiction     string
	Corrected             bool
	Flags                 []string
	CreatedAt             time.Time
}

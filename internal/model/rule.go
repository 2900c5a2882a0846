package model

import "time"

// VendorRule maps a vendor-token substring to default categorization.
// Rules apply in insertion order; the first match wins.
type VendorRule struct {
	ID                  int64
	Pattern             string
	DefaultCategory     string
	DefaultJurisdiction string
	MatchCount          int64
	LastMatchedAt       *time.Time
	CreatedAt           time.Time
}

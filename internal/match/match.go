// Package match reconciles one expense record against a candidate window of
// bank transactions. Matching and scoring are pure functions: same inputs,
// same ranked candidate, same confidence, same flags.
package match

import (
	"sort"
	"strings"
	"time"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/normalize"
)

// Flag strings surfaced verbatim to reviewers. Every triggered reason is
// included; none are dropped.
const (
	FlagNoMatch             = "no bank match found"
	FlagReceiptMismatch     = "receipt amount differs"
	FlagMissingReceipt      = "missing receipt"
	FlagCOSNoEvent          = "no linked event for cost-of-sale category"
	FlagJurisdictionUnknown = "jurisdiction undetermined"
	FlagCategoryUnknown     = "category unresolved"
)

// Params holds the tuned matching constants. Calibration is a business
// decision, so everything here flows in from configuration.
type Params struct {
	WindowDays                 int
	AmountToleranceCents       int64
	ReceiptToleranceCents      int64
	PenaltyNoMatch             int
	PenaltyReceiptMismatch     int
	PenaltyMissingReceipt      int
	PenaltyCOSNoEvent          int
	PenaltyCOSNoEventHigh      int
	PenaltyJurisdictionUnknown int
	PenaltyCategoryUnknown     int
	AutoPostThreshold          int
	CostOfSaleCategories       []string
	EventCategories            []string
	KnownCategories            []string
}

// DefaultParams returns the reference calibration.
func DefaultParams() Params {
	return Params{
		WindowDays:                 3,
		AmountToleranceCents:       50,
		ReceiptToleranceCents:      100,
		PenaltyNoMatch:             40,
		PenaltyReceiptMismatch:     30,
		PenaltyMissingReceipt:      25,
		PenaltyCOSNoEvent:          20,
		PenaltyCOSNoEventHigh:      40,
		PenaltyJurisdictionUnknown: 20,
		PenaltyCategoryUnknown:     15,
		AutoPostThreshold:          95,
		CostOfSaleCategories:       []string{"Course Materials", "Event Supplies", "Venue Rental", "Catering"},
		EventCategories:            []string{"Venue Rental", "Catering"},
		KnownCategories: []string{
			"Fuel", "Meals", "Travel", "Lodging", "Office Supplies", "Software",
			"Course Materials", "Event Supplies", "Venue Rental", "Catering",
			"Utilities", "Insurance", "Professional Services",
		},
	}
}

// Input is everything the scorer sees for one record: the record itself, the
// candidate window, and the context the processor resolved beforehand.
type Input struct {
	Record     *model.ExpenseRecord
	Candidates []model.BankTransaction

	// Category and Jurisdiction are the processor's resolved values after
	// vendor-rule lookup; empty means unresolved.
	Category     string
	Jurisdiction string

	// ReceiptPresent is false when no receipt artifact exists for the record.
	// ReceiptAmountCents is the amount extracted from the receipt, nil when
	// the receipt was missing or unusable.
	ReceiptPresent     bool
	ReceiptAmountCents *int64

	// EventLinked reports whether a cost-of-sale record has a linked
	// course/event on file.
	EventLinked bool
}

// Result is the scorer's verdict for one record.
type Result struct {
	TransactionID *string
	Confidence    int
	Flags         []string
	Category      string
	Jurisdiction  string
}

// AutoPostable reports whether the result clears the auto-post bar: a
// candidate was found and confidence is at or above the threshold.
func (r Result) AutoPostable(threshold int) bool {
	return r.TransactionID != nil && r.Confidence >= threshold
}

// Match ranks the candidate window and scores the outcome. Confidence starts
// at 100 and each adverse condition subtracts its penalty independently; the
// sum is clamped to [0, 100]. Flags carry one entry per triggered condition.
func Match(in Input, p Params) Result {
	res := Result{
		Confidence:   100,
		Category:     in.Category,
		Jurisdiction: in.Jurisdiction,
	}

	best := selectCandidate(in.Record, in.Candidates, p)
	if best == nil {
		res.Confidence -= p.PenaltyNoMatch
		res.Flags = append(res.Flags, FlagNoMatch)
	} else {
		id := best.ID
		res.TransactionID = &id
	}

	if in.ReceiptPresent && in.ReceiptAmountCents != nil {
		diff := model.AbsCents(in.Record.AmountCents - *in.ReceiptAmountCents)
		if diff > p.ReceiptToleranceCents {
			res.Confidence -= p.PenaltyReceiptMismatch
			res.Flags = append(res.Flags, FlagReceiptMismatch)
		}
	} else {
		res.Confidence -= p.PenaltyMissingReceipt
		res.Flags = append(res.Flags, FlagMissingReceipt)
	}

	if containsFold(p.CostOfSaleCategories, in.Category) && !in.EventLinked {
		penalty := p.PenaltyCOSNoEvent
		if containsFold(p.EventCategories, in.Category) {
			penalty = p.PenaltyCOSNoEventHigh
		}
		res.Confidence -= penalty
		res.Flags = append(res.Flags, FlagCOSNoEvent)
	}

	if in.Jurisdiction == "" || in.Jurisdiction == normalize.JurisdictionUnknown {
		res.Confidence -= p.PenaltyJurisdictionUnknown
		res.Flags = append(res.Flags, FlagJurisdictionUnknown)
	}

	if in.Category == "" || !containsFold(p.KnownCategories, in.Category) {
		res.Confidence -= p.PenaltyCategoryUnknown
		res.Flags = append(res.Flags, FlagCategoryUnknown)
	}

	if res.Confidence < 0 {
		res.Confidence = 0
	}
	return res
}

// selectCandidate filters to the date window and amount tolerance, then ranks:
// exact amount first, then smallest date distance, then vendor-token overlap,
// then lexicographically smallest transaction id.
func selectCandidate(rec *model.ExpenseRecord, candidates []model.BankTransaction, p Params) *model.BankTransaction {
	recToken := normalize.VendorToken(rec.VendorRaw)

	type ranked struct {
		txn      model.BankTransaction
		exact    bool
		dateDist int
		overlap  int
	}

	var survivors []ranked
	for _, c := range candidates {
		if c.Status != model.TxnUnmatched {
			continue
		}
		dist := dateDistanceDays(rec.TxnDate, c.TxnDate)
		if dist > p.WindowDays {
			continue
		}
		if model.AbsCents(rec.AmountCents-c.AmountCents) > p.AmountToleranceCents {
			continue
		}
		survivors = append(survivors, ranked{
			txn:      c,
			exact:    rec.AmountCents == c.AmountCents,
			dateDist: dist,
			overlap:  tokenOverlap(recToken, normalize.VendorToken(c.DescriptionRaw)),
		})
	}
	if len(survivors) == 0 {
		return nil
	}

	sort.Slice(survivors, func(i, j int) bool {
		a, b := survivors[i], survivors[j]
		if a.exact != b.exact {
			return a.exact
		}
		if a.dateDist != b.dateDist {
			return a.dateDist < b.dateDist
		}
		if a.overlap != b.overlap {
			return a.overlap > b.overlap
		}
		return a.txn.ID < b.txn.ID
	})
	return &survivors[0].txn
}

func dateDistanceDays(a, b time.Time) int {
	d := a.Truncate(24 * time.Hour).Sub(b.Truncate(24 * time.Hour))
	if d < 0 {
		d = -d
	}
	return int(d / (24 * time.Hour))
}

// tokenOverlap counts shared words of four or more characters between two
// normalized vendor tokens. Short words are too generic to signal a match.
func tokenOverlap(a, b string) int {
	seen := make(map[string]bool)
	for _, w := range strings.Fields(a) {
		if len(w) >= 4 {
			seen[w] = true
		}
	}
	n := 0
	for _, w := range strings.Fields(b) {
		if len(w) >= 4 && seen[w] {
			n++
			seen[w] = false
		}
	}
	return n
}

func containsFold(set []string, s string) bool {
	for _, v := range set {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

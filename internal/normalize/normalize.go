// Package normalize turns raw bank-statement description text into the derived
// attributes the matcher and dedup layers key on: a vendor token, a jurisdiction
// code, and a deduplication key. All functions are pure and total.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Sentinel jurisdiction codes.
const (
	JurisdictionIntl    = "INTL"
	JurisdictionUnknown = "UNKNOWN"
)

// DedupPrefixLen is the number of leading characters of the scrubbed
// description that participate in the dedup key.
const DedupPrefixLen = 30

// DefaultHomeJurisdictions is the operationally relevant set preferred when a
// description mentions more than one state code.
var DefaultHomeJurisdictions = []string{"CA", "TX", "CO", "WA", "NJ", "FL", "MT", "NC"}

var allStates = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true,
	"CT": true, "DE": true, "FL": true, "GA": true, "HI": true, "ID": true,
	"IL": true, "IN": true, "IA": true, "KS": true, "KY": true, "LA": true,
	"ME": true, "MD": true, "MA": true, "MI": true, "MN": true, "MS": true,
	"MO": true, "MT": true, "NE": true, "NV": true, "NH": true, "NJ": true,
	"NM": true, "NY": true, "NC": true, "ND": true, "OH": true, "OK": true,
	"OR": true, "PA": true, "RI": true, "SC": true, "SD": true, "TN": true,
	"TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true,
	"WI": true, "WY": true, "DC": true,
}

var intlMarkers = []string{
	"CANADA", "MEXICO", "LONDON", "PARIS", "TOKYO", "SINGAPORE",
	"INTL", "INTERNATIONAL", "FOREIGN", " GB", " FR", " DE ", " JP", " AU", " NZ",
}

var inboundMarkers = []string{
	"DEPOSIT", "PAYMENT RECEIVED", "TRANSFER FROM", "DIRECT DEP",
	"INTEREST PAYMENT", "CREDIT MEMO", "MOBILE DEPOSIT",
}

var transportPrefixes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^purchase authorized on \d{2}/\d{2}\s*`),
	regexp.MustCompile(`(?i)^recurring payment authorized on \d{2}/\d{2}\s*`),
	regexp.MustCompile(`(?i)^recurring payment\s*`),
	regexp.MustCompile(`(?i)^pos purchase\s*`),
	regexp.MustCompile(`(?i)^pos\s+`),
	regexp.MustCompile(`(?i)^debit card purchase\s*`),
	regexp.MustCompile(`(?i)^debit\s+`),
	regexp.MustCompile(`(?i)^checkcard\s+\d*\s*`),
	regexp.MustCompile(`(?i)^ach\s+(debit|web|pmt)?\s*`),
	regexp.MustCompile(`(?i)^web pmt\s*`),
}

var (
	maskedCardRe  = regexp.MustCompile(`[Xx*]{2,}\d{2,}|\d{4,}|[Xx*]{4,}`)
	nonAlnumRe    = regexp.MustCompile(`[^a-zA-Z0-9]+`)
	nonAlnumAllRe = regexp.MustCompile(`[^A-Z0-9]+`)
	stateTokenRe  = regexp.MustCompile(`\b([A-Za-z]{3,})[ ,]+([A-Z]{2})\b`)
)

// Normalized is the full derived view of one raw description.
type Normalized struct {
	VendorToken  string
	Jurisdiction string
}

// Describe derives the vendor token and jurisdiction for a raw description.
func Describe(raw string) Normalized {
	return Normalized{
		VendorToken:  VendorToken(raw),
		Jurisdiction: Jurisdiction(raw, DefaultHomeJurisdictions),
	}
}

// Jurisdiction extracts a two-letter jurisdiction code from a raw description.
// A code must follow a city-like alphabetic token; codes in the home set win
// over other states when both appear. Returns INTL for descriptions carrying
// an international marker and UNKNOWN when nothing matches.
func Jurisdiction(raw string, home []string) string {
	upper := strings.ToUpper(raw)

	var found []string
	for _, m := range stateTokenRe.FindAllStringSubmatch(raw, -1) {
		code := strings.ToUpper(m[2])
		if allStates[code] {
			found = append(found, code)
		}
	}

	homeSet := make(map[string]bool, len(home))
	for _, h := range home {
		homeSet[strings.ToUpper(h)] = true
	}
	for _, code := range found {
		if homeSet[code] {
			return code
		}
	}
	if len(found) > 0 {
		return found[0]
	}

	for _, marker := range intlMarkers {
		if strings.Contains(upper, marker) {
			return JurisdictionIntl
		}
	}
	return JurisdictionUnknown
}

// VendorToken reduces a raw description to a short normalized merchant name:
// transport prefixes and masked card numbers stripped, trailing state code
// dropped, punctuation collapsed, first three tokens longer than one char kept.
func VendorToken(raw string) string {
	s := strings.TrimSpace(raw)
	for _, re := range transportPrefixes {
		s = re.ReplaceAllString(s, "")
	}
	s = maskedCardRe.ReplaceAllString(s, " ")
	s = nonAlnumRe.ReplaceAllString(s, " ")

	fields := strings.Fields(strings.ToUpper(s))
	if n := len(fields); n > 0 {
		if last := fields[n-1]; len(last) == 2 && allStates[last] {
			fields = fields[:n-1]
		}
	}

	kept := make([]string, 0, 3)
	for _, f := range fields {
		if len(f) <= 1 {
			continue
		}
		kept = append(kept, f)
		if len(kept) == 3 {
			break
		}
	}
	return strings.Join(kept, " ")
}

// DedupKey builds the duplicate-suppression key for an imported transaction:
// the uppercased description stripped of non-alphanumerics and truncated to
// DedupPrefixLen, combined with source, date, and the two-decimal amount.
func DedupKey(source string, date time.Time, amountCents int64, raw string) string {
	scrubbed := nonAlnumAllRe.ReplaceAllString(strings.ToUpper(raw), "")
	if len(scrubbed) > DedupPrefixLen {
		scrubbed = scrubbed[:DedupPrefixLen]
	}
	return fmt.Sprintf("%s|%s|%d.%02d|%s",
		source, date.Format("2006-01-02"), amountCents/100, amountCents%100, scrubbed)
}

// IsInboundDescription reports whether a statement row represents inbound
// funds rather than an expense. Refund rows are not inbound; they are
// negative expenses handled upstream.
func IsInboundDescription(raw string) bool {
	upper := strings.ToUpper(raw)
	if strings.Contains(upper, "REFUND") {
		return false
	}
	for _, marker := range inboundMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ParseCents converts a decimal money string ("1,234.50", "$12", "(45.00)")
// into integer cents. Parenthesized and minus-prefixed values are negative.
func ParseCents(s string) (int64, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, eris.New("model: empty amount")
	}

	neg := false
	if strings.HasPrefix(t, "(") && strings.HasSuffix(t, ")") {
		neg = true
		t = t[1 : len(t)-1]
	}
	t = strings.TrimSpace(strings.TrimPrefix(t, "$"))
	t = strings.ReplaceAll(t, ",", "")
	t = strings.TrimPrefix(t, "$")
	if strings.HasPrefix(t, "-") {
		neg = !neg
		t = t[1:]
	}

	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "model: parse amount %q", s)
	}

	cents := int64(math.Round(f * 100))
	if neg {
		cents = -cents
	}
	return cents, nil
}

// FormatCents renders integer cents as a plain two-decimal string ("52.96").
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// AbsCents returns the absolute value of a cents amount.
func AbsCents(cents int64) int64 {
	if cents < 0 {
		return -cents
	}
	return cents
}

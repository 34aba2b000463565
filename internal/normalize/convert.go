// Package normalize turns locale-formatted statement fields into typed values
// and cleans free-text fields.
//
// Dates and amounts follow German bank conventions by default:
//   - dates as dd.mm.yyyy or dd.mm.yy, ISO yyyy-mm-dd also accepted
//   - amounts with ',' as decimal and '.' as grouping separator, optional
//     currency symbols, accounting parentheses or a trailing minus
package normalize

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/bookkeeper/internal/ledger"
)

var (
	fourDigitYearLayouts = []string{"2.1.2006", "2006-01-02", "2/1/2006"}
	twoDigitYearLayouts  = []string{"2.1.06", "2/1/06"}
)

// ParseDate parses a statement date and normalizes it to a UTC calendar day.
// Two-digit years always expand into the 2000s. Dates before 1970 are
// rejected with a *ledger.ValidationError.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &ledger.ValidationError{Field: "date", Reason: "empty date"}
	}

	t, ok := parseLayouts(s, fourDigitYearLayouts)
	if !ok {
		t, ok = parseLayouts(s, twoDigitYearLayouts)
		if ok {
			// time.Parse maps 69..99 into the 1900s.
			t = time.Date(2000+t.Year()%100, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
	}
	if !ok {
		return time.Time{}, &ledger.ValidationError{Field: "date", Value: s, Reason: "unrecognized date format"}
	}
	if t.Year() < ledger.MinYear {
		return time.Time{}, &ledger.ValidationError{Field: "date", Value: s, Reason: "date before 1970"}
	}
	return ledger.Day(t), nil
}

func parseLayouts(s string, layouts []string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// plainNumber matches what remains after separators were normalized.
var plainNumber = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)

// trailingDecimal matches "12.5" or "1234.56": a lone '.' followed by one or
// two digits is a decimal point even in a comma-decimal locale.
var trailingDecimal = regexp.MustCompile(`^[+-]?\d+\.\d{1,2}$`)

// ParseAmount parses a locale-formatted signed amount.
//
//	"1.234,56"  -> 1234.56
//	"-50,00"    -> -50
//	"(12,30) €" -> -12.3
//	"7,50-"     -> -7.5
func ParseAmount(s string) (decimal.Decimal, error) {
	raw := s
	s = stripCurrency(s)
	if s == "" {
		return decimal.Zero, &ledger.ValidationError{Field: "amount", Value: raw, Reason: "empty amount"}
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasSuffix(s, "-") {
		negative = !negative
		s = s[:len(s)-1]
	}

	switch {
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		if strings.Count(s, ",") > 1 {
			return decimal.Zero, &ledger.ValidationError{Field: "amount", Value: raw, Reason: "more than one decimal separator"}
		}
		s = strings.Replace(s, ",", ".", 1)
	case strings.Contains(s, ".") && !trailingDecimal.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	}

	if !plainNumber.MatchString(s) {
		return decimal.Zero, &ledger.ValidationError{Field: "amount", Value: raw, Reason: "not a number"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ledger.ValidationError{Field: "amount", Value: raw, Reason: err.Error()}
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

var currencyStripper = strings.NewReplacer(
	"\u20ac", "", // euro
	"$", "",
	"\u00a3", "", // pound
	"EUR", "",
	"\u00a0", "", // no-break space used as grouping
	"\u202f", "", // narrow no-break space
	" ", "",
	"'", "", // Swiss grouping
)

func stripCurrency(s string) string {
	return currencyStripper.Replace(strings.TrimSpace(s))
}

package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MotesExponent is the power of ten between motes and CSPR.
const MotesExponent = 9

// DefaultPlaces is the number of fractional digits shown for CSPR amounts.
const DefaultPlaces = 2

// MotesPerCSPR is 10^9.
var MotesPerCSPR = decimal.New(1, MotesExponent)

// ErrFractionalMotes is returned when a mote amount has a fractional part.
var ErrFractionalMotes = errors.New("mote amount must be an integer")

// ParseMotes parses an integer mote amount. Empty input is zero.
func ParseMotes(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse motes %q: %w", s, err)
	}
	if !d.IsInteger() {
		return decimal.Zero, fmt.Errorf("parse motes %q: %w", s, ErrFractionalMotes)
	}
	return d, nil
}

// MotesToCSPR converts motes to CSPR without rounding.
func MotesToCSPR(motes decimal.Decimal) decimal.Decimal {
	return motes.Shift(-MotesExponent)
}

// CSPRToMotes converts CSPR to motes without rounding.
func CSPRToMotes(cspr decimal.Decimal) decimal.Decimal {
	return cspr.Shift(MotesExponent)
}

// ParseCSPR parses a CSPR display amount such as "50" or "0.5".
func ParseCSPR(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse cspr %q: %w", s, err)
	}
	return d, nil
}

// Format rounds v to places and drops trailing zeros.
// 1.50 -> "1.5", 125.00 -> "125", -0.001 -> "0".
func Format(v decimal.Decimal, places int32) string {
	return v.Round(places).String()
}

// FormatMotes formats a mote amount as CSPR.
func FormatMotes(motes decimal.Decimal, places int32) string {
	return Format(MotesToCSPR(motes), places)
}

// FormatWithCommas is Format with thousands separators in the integer part.
func FormatWithCommas(v decimal.Decimal, places int32) string {
	s := Format(v, places)

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}

	intPart, frac, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	out := sign + b.String()
	if hasFrac {
		out += "." + frac
	}
	return out
}

var compactUnits = []struct {
	threshold decimal.Decimal
	suffix    string
}{
	{decimal.New(1, 9), "B"},
	{decimal.New(1, 6), "M"},
	{decimal.New(1, 3), "K"},
}

// Compact formats large values with K/M/B suffixes: 1500 -> "1.5K".
func Compact(v decimal.Decimal, places int32) string {
	abs := v.Abs()
	for _, u := range compactUnits {
		if abs.GreaterThanOrEqual(u.threshold) {
			return Format(v.Div(u.threshold), places) + u.suffix
		}
	}
	return Format(v, places)
}

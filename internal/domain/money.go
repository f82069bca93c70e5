package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Amount is a money value in pesewas, the minor unit of the Ghana cedi.
type Amount int64

// MinorPerMajor is the number of pesewas in a cedi.
const MinorPerMajor = 100

// ErrInvalidAmount is returned for negative, non-numeric, or non-finite prices.
var ErrInvalidAmount = errors.New("domain: invalid amount")

// ParseAmount reads a non-negative decimal such as "40", "12.5" or "GH₵ 1,200.00" and rounds
// it half away from zero to whole pesewas.
func ParseAmount(raw string) (Amount, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "GH₵")
	cleaned = strings.TrimPrefix(cleaned, "GHS")
	cleaned = strings.ReplaceAll(strings.TrimSpace(cleaned), ",", "")
	if cleaned == "" {
		return 0, ErrInvalidAmount
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return AmountFromMajor(value)
}

// AmountFromMajor converts a cedi value to pesewas.
func AmountFromMajor(value float64) (Amount, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, ErrInvalidAmount
	}
	minor := math.Round(value * MinorPerMajor)
	if minor > math.MaxInt64/2 {
		return 0, ErrInvalidAmount
	}
	return Amount(minor), nil
}

// Major returns the value in cedis.
func (a Amount) Major() float64 {
	return float64(a) / MinorPerMajor
}

// Decimal renders the amount with two decimals and no symbol, e.g. "1200.50".
func (a Amount) Decimal() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign, v = "-", -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/MinorPerMajor, v%MinorPerMajor)
}

var (
	cedi         = currency.MustParseISO("GHS")
	amountFormat = message.NewPrinter(language.English)
)

// Display formats the amount for receipts and dashboards using the cedi symbol.
func (a Amount) Display() string {
	return amountFormat.Sprint(currency.NarrowSymbol(cedi.Amount(a.Major())))
}

// Sum adds amounts.
func Sum(amounts ...Amount) Amount {
	var total Amount
	for _, a := range amounts {
		total += a
	}
	return total
}

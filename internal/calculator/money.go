package calculator

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// centsExp is the exponent of the currency's minor unit.
const centsExp = -2

// MaxCents bounds a single amount to 1e13 minor units (100 billion in major
// units), so sums over up to 900,000 maximal records still fit in an int64.
const MaxCents int64 = 1e13

// MaxAmount is MaxCents in major units.
var MaxAmount = decimal.New(MaxCents, centsExp)

// ToCents converts an amount to minor units. Amounts with more than two
// fractional digits, or with a magnitude above MaxAmount, are rejected
// instead of rounded or wrapped.
func ToCents(amount decimal.Decimal) (int64, error) {
	if amount.Abs().GreaterThan(MaxAmount) {
		return 0, fmt.Errorf("%w: %s exceeds %s", ErrAmountTooLarge, amount.String(), MaxAmount.StringFixed(2))
	}
	if !amount.Equal(amount.Round(-centsExp)) {
		return 0, fmt.Errorf("%w: %s", ErrAmountPrecision, amount.String())
	}
	return amount.Shift(-centsExp).IntPart(), nil
}

// FromCents converts minor units back to a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, centsExp)
}

// addCents returns a+b, or ErrOverflow when the sum does not fit in an int64.
func addCents(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return a + b, nil
}

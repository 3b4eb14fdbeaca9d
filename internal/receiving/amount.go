package receiving

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount bounds follow the NUMERIC(18,4) columns quantities and unit prices
// are stored in, with slack for fractional input that rounds on write.
const (
	maxAmountLen      = 40
	maxIntegerDigits  = 14
	maxFractionDigits = 6
)

var ErrAmountOutOfRange = errors.New("amount out of range")

// InRange reports whether d fits the stored precision. It only inspects the
// coefficient and exponent, so huge exponents are rejected without expanding
// them.
func InRange(d decimal.Decimal) bool {
	if d.IsZero() {
		return true
	}
	exp := int64(d.Exponent())
	if exp < -maxFractionDigits {
		return false
	}
	return int64(d.NumDigits())+exp <= maxIntegerDigits
}

// CheckAmount rejects input that parses but cannot be stored. Empty,
// unparsable and negative input is not an error here; ParseAmount turns it
// into zero.
func CheckAmount(raw string) error {
	raw = strings.TrimSpace(raw)
	if len(raw) > maxAmountLen {
		return fmt.Errorf("%w: %d characters", ErrAmountOutOfRange, len(raw))
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return nil
	}
	if !InRange(d) {
		return fmt.Errorf("%w: %s", ErrAmountOutOfRange, raw)
	}
	return nil
}

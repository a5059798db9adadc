package ledger

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

// Decimals is the fixed precision of every ledger.
const Decimals = 2

// Amount is a quantity in minor units: 500 is 5.00.
type Amount int64

// ParseAmount parses a decimal major-unit string such as "5", "5.5" or
// "1234.56". More than two fractional digits, negative values and values
// outside the int64 range are rejected.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, ledgererr.ErrInvalidInput)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %q is negative: %w", s, ledgererr.ErrInvalidInput)
	}
	if !d.Equal(d.Truncate(Decimals)) {
		return 0, fmt.Errorf("amount %q has more than %d decimal places: %w", s, Decimals, ledgererr.ErrInvalidInput)
	}
	minor := d.Shift(Decimals)
	if minor.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("amount %q is too large: %w", s, ledgererr.ErrInvalidInput)
	}
	return Amount(minor.IntPart()), nil
}

// String formats the amount in major units with two decimals.
func (a Amount) String() string {
	return decimal.New(int64(a), -Decimals).StringFixed(Decimals)
}

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Decimals)
}

func (a Amount) validate() error {
	if a < 0 {
		return fmt.Errorf("amount %d is negative: %w", a, ledgererr.ErrInvalidInput)
	}
	return nil
}

// add returns a+b, failing on int64 overflow.
func add(a, b Amount) (Amount, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, fmt.Errorf("amount overflow: %w", ledgererr.ErrInvalidInput)
	}
	return a + b, nil
}

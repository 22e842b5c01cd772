package cart

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Precision is the number of decimal places money amounts are rounded to.
const Precision = 2

const (
	// maxAmountLen bounds the textual form of an amount.
	maxAmountLen = 40
	// maxExponent bounds the decimal exponent of a parsed amount in both
	// directions. Larger exponents make rounding and formatting expand the
	// coefficient to millions of digits.
	maxExponent = 20
)

var (
	// Zero is the zero money amount.
	Zero = decimal.Zero

	// MaxAmount is the largest price, threshold or cap accepted. The
	// `lte=1000000000000` validate tags mirror it.
	MaxAmount = decimal.New(1, 12)

	hundred = decimal.NewFromInt(100)
)

// ErrAmountOutOfRange is returned by ParseAmount for amounts that are too
// long, too precise or larger than MaxAmount.
var ErrAmountOutOfRange = errors.New("amount out of range")

// ParseAmount parses a decimal amount from its JSON number or string form.
// Amounts beyond MaxAmount or with more than maxExponent digits of scale are
// rejected before any arithmetic touches them.
func ParseAmount(s string) (decimal.Decimal, error) {
	if len(s) > maxAmountLen {
		return decimal.Decimal{}, errors.Wrapf(ErrAmountOutOfRange, "%d characters", len(s))
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if exp := d.Exponent(); exp > maxExponent || exp < -maxExponent {
		return decimal.Decimal{}, errors.Wrapf(ErrAmountOutOfRange, "exponent %d", exp)
	}
	if d.Abs().GreaterThan(MaxAmount) {
		return decimal.Decimal{}, errors.Wrapf(ErrAmountOutOfRange, "%s exceeds %s", s, MaxAmount)
	}
	return d, nil
}

// Round rounds a money amount to Precision places, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Precision)
}

// FloorAtZero clamps negative values to zero.
func FloorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return Zero
	}
	return d
}

// Percent returns amount * percent / 100, unrounded.
func Percent(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(hundred)
}

// Cap clamps amount to limit when limit is valid.
func Cap(amount decimal.Decimal, limit decimal.NullDecimal) decimal.Decimal {
	if limit.Valid {
		return decimal.Min(amount, limit.Decimal)
	}
	return amount
}

// Settle turns a raw discount into a payable one: clamped at zero, then
// rounded to Precision.
func Settle(d decimal.Decimal) decimal.Decimal {
	return Round(FloorAtZero(d))
}

// SettleWithin settles d and keeps the result no larger than base, the
// unrounded amount the discount is taken from.
func SettleWithin(d, base decimal.Decimal) decimal.Decimal {
	return decimal.Min(Settle(d), FloorAtZero(base))
}

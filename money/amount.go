/*
Package money provides fixed-point monetary amounts.

PURPOSE:
  Every monetary field in the ledger is an Amount: an integer number of minor
  units (cents) of a currency. Integer arithmetic keeps the three-way sale
  split exact - cost + freight + profit always sums to the sale total.

  Exchange rates, weighted-average costs and proportional recognition need
  fractional intermediates; those go through decimal.Decimal and are rounded
  back to minor units in exactly one place (FromDecimal).

KEY CONCEPTS:
  - Amount: minor units + ISO currency code
  - Fraction digits come from go-money's currency table (MXN 2, JPY 0, ...)
  - Rounding is half away from zero

USAGE:
  price := money.New(20000, "MXN")       // 200.00 MXN
  total := price.Mul(6)                  // 1,200.00 MXN
  local := money.New(10000, "USD").Convert(decimal.RequireFromString("17.5"), "MXN")
*/
package money

import (
	"fmt"
	"math"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT
// =============================================================================

// Amount is a quantity of money in minor units.
type Amount struct {
	Minor    int64  `json:"minor"`
	Currency string `json:"currency"`
}

// New returns an amount of minor units.
func New(minor int64, currency string) Amount {
	return Amount{Minor: minor, Currency: currency}
}

// Zero returns a zero amount in currency.
func Zero(currency string) Amount { return Amount{Currency: currency} }

// FromDecimal converts a major-unit decimal into minor units, rounding half
// away from zero. It is meant for computed values (rates, averages); input
// goes through Parse, which refuses to round.
func FromDecimal(major decimal.Decimal, currency string) Amount {
	places := int32(Fraction(currency))
	return Amount{
		Minor:    major.Round(places).Shift(places).IntPart(),
		Currency: currency,
	}
}

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// Parse reads a major-unit string such as "1050.25". It rejects values
// finer than the currency's minor unit and values that overflow int64 minor
// units.
func Parse(s, currency string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	places := int32(Fraction(currency))
	if !d.Equal(d.Truncate(places)) {
		return Amount{}, fmt.Errorf("parse amount %q: %s allows %d decimal places", s, currency, places)
	}
	minor := d.Shift(places)
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return Amount{}, fmt.Errorf("parse amount %q: out of range", s)
	}
	return Amount{Minor: minor.IntPart(), Currency: currency}, nil
}

// Fraction returns the number of minor-unit digits for a currency code.
// Unknown codes default to 2.
func Fraction(currency string) int {
	if c := gomoney.GetCurrency(currency); c != nil {
		return c.Fraction
	}
	return 2
}

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(a.Minor, -int32(Fraction(a.Currency)))
}

// String formats the amount with its currency symbol, e.g. "$1,050.00".
func (a Amount) String() string {
	return gomoney.New(a.Minor, a.Currency).Display()
}

func (a Amount) IsZero() bool                 { return a.Minor == 0 }
func (a Amount) IsPositive() bool             { return a.Minor > 0 }
func (a Amount) IsNegative() bool             { return a.Minor < 0 }
func (a Amount) Neg() Amount                  { return Amount{Minor: -a.Minor, Currency: a.Currency} }
func (a Amount) Abs() Amount                  { return Amount{Minor: abs(a.Minor), Currency: a.Currency} }
func (a Amount) Mul(n int64) Amount           { return Amount{Minor: a.Minor * n, Currency: a.Currency} }
func (a Amount) Add(b Amount) Amount          { return Amount{Minor: a.Minor + b.Minor, Currency: cur(a, b)} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Minor: a.Minor - b.Minor, Currency: cur(a, b)} }
func (a Amount) Equal(b Amount) bool          { return a.Minor == b.Minor && a.Currency == b.Currency }
func (a Amount) LessThan(b Amount) bool       { return a.Minor < cmpMinor(a, b) }
func (a Amount) GreaterThan(b Amount) bool    { return a.Minor > cmpMinor(a, b) }
func (a Amount) LessOrEqual(b Amount) bool    { return a.Minor <= cmpMinor(a, b) }
func (a Amount) GreaterOrEqual(b Amount) bool { return a.Minor >= cmpMinor(a, b) }

// MulChecked is Mul that reports false instead of wrapping around int64.
func (a Amount) MulChecked(n int64) (Amount, bool) {
	if a.Minor == 0 || n == 0 {
		return Zero(a.Currency), true
	}
	p := a.Minor * n
	if p/n != a.Minor || (n == -1 && a.Minor == math.MinInt64) {
		return Amount{}, false
	}
	return Amount{Minor: p, Currency: a.Currency}, true
}

// AddChecked is Add that reports false instead of wrapping around int64.
func (a Amount) AddChecked(b Amount) (Amount, bool) {
	sum := a.Add(b)
	if (b.Minor > 0 && sum.Minor < a.Minor) || (b.Minor < 0 && sum.Minor > a.Minor) {
		return Amount{}, false
	}
	return sum, true
}

// SubChecked is Sub that reports false instead of wrapping around int64.
func (a Amount) SubChecked(b Amount) (Amount, bool) {
	diff := a.Sub(b)
	if (b.Minor > 0 && diff.Minor > a.Minor) || (b.Minor < 0 && diff.Minor < a.Minor) {
		return Amount{}, false
	}
	return diff, true
}

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

func (a Amount) Max(b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// FromDecimalChecked is FromDecimal that reports false when the value does
// not fit in int64 minor units.
func FromDecimalChecked(major decimal.Decimal, currency string) (Amount, bool) {
	places := int32(Fraction(currency))
	minor := major.Round(places).Shift(places)
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return Amount{}, false
	}
	return Amount{Minor: minor.IntPart(), Currency: currency}, true
}

// Proportion returns round(a * num / den). It is exact for num == den and
// zero for num == 0, which is what settlement deltas rely on.
func (a Amount) Proportion(num, den int64) Amount {
	if den == 0 || num == 0 {
		return Zero(a.Currency)
	}
	if num == den {
		return a
	}
	v := decimal.NewFromInt(a.Minor).Mul(decimal.NewFromInt(num)).Div(decimal.NewFromInt(den))
	return Amount{Minor: v.Round(0).IntPart(), Currency: a.Currency}
}

// Convert multiplies the amount by a rate (target per unit of a.Currency)
// and returns it in the target currency.
func (a Amount) Convert(rate decimal.Decimal, target string) Amount {
	return FromDecimal(a.Decimal().Mul(rate), target)
}

// cur makes "" a weak currency; two different codes is a programming error.
func cur(a, b Amount) string {
	if a.Currency == "" {
		return b.Currency
	}
	if b.Currency == "" {
		return a.Currency
	}
	if a.Currency != b.Currency {
		panic("currency mismatch: " + a.Currency + " != " + b.Currency)
	}
	return a.Currency
}

func cmpMinor(a, b Amount) int64 {
	cur(a, b)
	return b.Minor
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

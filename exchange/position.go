/*
Package exchange implements the currency-exchange desk.

PURPOSE:
  The desk converts between the local currency and the foreign-currency
  vaults, and realizes profit on each sale of foreign currency against a
  moving weighted-average cost basis.

KEY CONCEPTS IN THIS FILE (position.go):
  - Position: units of one foreign currency held by the desk and their
    weighted-average acquisition rate (local per foreign unit)
  - Rebuild: recompute every position from the operation history

COSTING MODEL:
  buy:  avg' = (units*avg + qty*rate) / (units + qty)
  sell: units' = units - qty, avg unchanged
        realized = (rate - avg) * qty

  This is moving-average costing; physical stock uses FIFO instead
  (see inventory/fifo.go).

SEE ALSO:
  - desk.go: Buy / Sell / Quote
*/
package exchange

import (
	"github.com/shopspring/decimal"

	"github.com/warp/trade-ledger/money"
)

// Position is the desk's holding of one foreign currency.
type Position struct {
	Currency    string          `json:"currency"`
	Units       money.Amount    `json:"units"`
	AverageCost decimal.Decimal `json:"average_cost"`
}

// NewPosition returns an empty position.
func NewPosition(currency string) Position {
	return Position{Currency: currency, Units: money.Zero(currency), AverageCost: decimal.Zero}
}

// Cost is the local-currency acquisition cost of the units held.
func (p Position) Cost(local string) money.Amount {
	return p.Units.Convert(p.AverageCost, local)
}

// WeightedAverage reweights a cost basis after acquiring qty units at rate.
func WeightedAverage(held, avg, qty, rate decimal.Decimal) decimal.Decimal {
	sum := held.Add(qty)
	if sum.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return held.Mul(avg).Add(qty.Mul(rate)).Div(sum)
}

func (p Position) bought(qty money.Amount, rate decimal.Decimal) Position {
	p.AverageCost = WeightedAverage(p.Units.Decimal(), p.AverageCost, qty.Decimal(), rate)
	p.Units = p.Units.Add(qty)
	return p
}

func (p Position) sold(qty money.Amount) Position {
	p.Units = p.Units.Sub(qty)
	if p.Units.IsZero() {
		p.AverageCost = decimal.Zero
	}
	return p
}

// Rebuild recomputes positions from the full operation history.
func Rebuild(ops []Operation) map[string]Position {
	out := make(map[string]Position)
	for _, op := range ops {
		cur := op.AmountForeign.Currency
		p, ok := out[cur]
		if !ok {
			p = NewPosition(cur)
		}
		switch op.Side {
		case Buy:
			p = p.bought(op.AmountForeign, op.Rate)
		case Sell:
			p = p.sold(op.AmountForeign)
		}
		out[cur] = p
	}
	return out
}

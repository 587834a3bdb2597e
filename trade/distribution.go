package trade

import (
	"github.com/warp/trade-ledger/bank"
	"github.com/warp/trade-ledger/domain"
	"github.com/warp/trade-ledger/money"
	"github.com/warp/trade-ledger/settlement"
)

// =============================================================================
// DISTRIBUTION - Three-way split of a sale's proceeds
// =============================================================================

// Distribution splits a sale total into the part that replaces inventory,
// the part that pays freight, and the margin. Profit may be negative.
type Distribution struct {
	Cost    money.Amount `json:"cost"`
	Freight money.Amount `json:"freight"`
	Profit  money.Amount `json:"profit"`
}

// Total is Cost + Freight + Profit.
func (d Distribution) Total() money.Amount {
	return d.Cost.Add(d.Freight).Add(d.Profit)
}

// Sub is the component-wise difference.
func (d Distribution) Sub(o Distribution) Distribution {
	return Distribution{
		Cost:    d.Cost.Sub(o.Cost),
		Freight: d.Freight.Sub(o.Freight),
		Profit:  d.Profit.Sub(o.Profit),
	}
}

// Distribute computes the split of qty units sold at unitPrice with
// unitFreight each, given the FIFO cost of those units. Profit absorbs
// every remainder, so the split always sums to the total exactly.
func Distribute(qty int64, unitPrice, unitFreight, realCost money.Amount) (total money.Amount, d Distribution, err error) {
	if err := validateTerms(qty, unitPrice, unitFreight); err != nil {
		return total, d, err
	}
	if realCost.IsNegative() {
		return total, d, domain.Invalid("cost", "must not be negative, got %s", realCost.Decimal())
	}
	// validateTerms has already checked both products.
	total, _ = unitPrice.MulChecked(qty)
	d.Cost = realCost
	d.Freight, _ = unitFreight.MulChecked(qty)
	profit, ok := total.SubChecked(d.Cost)
	if ok {
		profit, ok = profit.SubChecked(d.Freight)
	}
	if !ok {
		return money.Amount{}, Distribution{}, domain.Invalid("quantity", "profit of %d units is out of range", qty)
	}
	d.Profit = profit
	return total, d, nil
}

// validateTerms checks the inputs of a split that do not depend on stock.
func validateTerms(qty int64, unitPrice, unitFreight money.Amount) error {
	if qty <= 0 {
		return domain.Invalid("quantity", "must be positive, got %d", qty)
	}
	if !unitPrice.IsPositive() {
		return domain.Invalid("unit_sale_price", "must be positive, got %s", unitPrice.Decimal())
	}
	if unitFreight.IsNegative() {
		return domain.Invalid("unit_freight_price", "must not be negative, got %s", unitFreight.Decimal())
	}
	if _, ok := unitPrice.MulChecked(qty); !ok {
		return domain.Invalid("quantity", "total of %d units at %s is out of range", qty, unitPrice.Decimal())
	}
	if _, ok := unitFreight.MulChecked(qty); !ok {
		return domain.Invalid("quantity", "freight of %d units at %s is out of range", qty, unitFreight.Decimal())
	}
	return nil
}

// recognizedAt is the portion of d earned at the schedule's paid level.
func recognizedAt(d Distribution, s settlement.Schedule) Distribution {
	return Distribution{
		Cost:    s.Recognized(d.Cost),
		Freight: s.Recognized(d.Freight),
		Profit:  s.Recognized(d.Profit),
	}
}

// =============================================================================
// POSTING
// =============================================================================

type posting struct {
	account bank.AccountID
	concept string
	amount  money.Amount
}

func postings(d Distribution) []posting {
	return []posting{
		{bank.Costos, "sale cost", d.Cost},
		{bank.Fletes, "sale freight", d.Freight},
		{bank.Ganancias, "sale profit", d.Profit},
	}
}

// book registers the full split as earned-but-uncollected on each account.
func book(l *bank.Ledger, d Distribution) error {
	for _, p := range postings(d) {
		if err := l.Receivable(p.account, p.amount); err != nil {
			return err
		}
	}
	return nil
}

// recognize posts a recognized delta: positive components are Income,
// negative ones (a loss reversing into ganancias) are booked with Loss and
// may take the account below zero. Each posted amount leaves the account's
// receivable.
func recognize(l *bank.Ledger, delta Distribution, saleID string) error {
	for _, p := range postings(delta) {
		var err error
		switch {
		case p.amount.IsPositive():
			_, err = l.Income(p.account, p.amount, p.concept, saleID)
		case p.amount.IsNegative():
			_, err = l.Loss(p.account, p.amount.Neg(), p.concept+" (loss)", saleID)
		default:
			continue
		}
		if err != nil {
			return err
		}
		if err := l.Receivable(p.account, p.amount.Neg()); err != nil {
			return err
		}
	}
	return nil
}

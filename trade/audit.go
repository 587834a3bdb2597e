package trade

import (
	"errors"
	"fmt"

	"github.com/warp/trade-ledger/bank"
	"github.com/warp/trade-ledger/money"
)

// =============================================================================
// AUDIT - Replay the logs and check every cross-component invariant
// =============================================================================

// Audit returns nil when the books are consistent, or every violation found
// joined into one error.
func (b *Books) Audit() error {
	var errs []error
	b.read(func(st *state) { errs = st.audit(b.local) })
	return errors.Join(errs...)
}

func (s *state) audit(local string) []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if err := s.bank.Verify(); err != nil {
		errs = append(errs, err)
	}
	if err := s.desk.Verify(); err != nil {
		errs = append(errs, err)
	}

	sold := make(map[string]int64)
	for _, lot := range s.lots.Lots() {
		if !lot.Consistent() {
			fail("lot %s: sold %d + remaining %d != original %d",
				lot.ID, lot.QuantitySold, lot.QuantityRemaining, lot.OriginalQuantity)
		}
		sold[lot.ID] = lot.QuantitySold
	}

	receivable := map[bank.AccountID]money.Amount{
		bank.Costos:    money.Zero(local),
		bank.Fletes:    money.Zero(local),
		bank.Ganancias: money.Zero(local),
	}
	owed := make(map[string]money.Amount)
	for _, sale := range s.saleList() {
		if !sale.Distribution.Total().Equal(sale.Total) {
			fail("sale %s: split %s != total %s", sale.ID, sale.Distribution.Total(), sale.Total)
		}
		var qty int64
		cost := money.Zero(local)
		for _, a := range sale.Allocations {
			qty += a.Quantity
			cost = cost.Add(a.Cost())
			sold[a.LotID] -= a.Quantity
		}
		if qty != sale.Quantity {
			fail("sale %s: allocations cover %d of %d units", sale.ID, qty, sale.Quantity)
		}
		if !cost.Equal(sale.Distribution.Cost) {
			fail("sale %s: allocated cost %s != distributed cost %s", sale.ID, cost, sale.Distribution.Cost)
		}
		if want := recognizedAt(sale.Distribution, sale.Payment); want != sale.Recognized {
			fail("sale %s: recognized amounts drifted from payments", sale.ID)
		}
		pending := sale.Distribution.Sub(sale.Recognized)
		receivable[bank.Costos] = receivable[bank.Costos].Add(pending.Cost)
		receivable[bank.Fletes] = receivable[bank.Fletes].Add(pending.Freight)
		receivable[bank.Ganancias] = receivable[bank.Ganancias].Add(pending.Profit)
		key := partyKey(sale.ClientName)
		owed[key] = owed[key].Add(sale.AmountRemaining)
	}
	for id, n := range sold {
		if n != 0 {
			fail("lot %s: %d sold units not explained by any sale", id, n)
		}
	}
	for id, want := range receivable {
		acc, err := s.bank.Account(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if acc.PorCobrar.Minor != want.Minor {
			fail("account %s: receivable %d, sales imply %d", id, acc.PorCobrar.Minor, want.Minor)
		}
	}
	for key, c := range s.clients {
		if c.AmountOwed.Minor != owed[key].Minor {
			fail("client %s: owes %d, open sales sum to %d", c.Name, c.AmountOwed.Minor, owed[key].Minor)
		}
	}

	supplierOwed := make(map[string]int64)
	for _, o := range s.orders {
		supplierOwed[partyKey(o.SupplierName)] += o.AmountRemaining.Minor
	}
	for key, p := range s.suppliers {
		if p.AmountOwed.Minor != supplierOwed[key] {
			fail("supplier %s: owed %d, open orders sum to %d", p.Name, p.AmountOwed.Minor, supplierOwed[key])
		}
	}
	return errs
}

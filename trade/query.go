package trade

import (
	"sort"

	"github.com/warp/trade-ledger/bank"
	"github.com/warp/trade-ledger/domain"
	"github.com/warp/trade-ledger/exchange"
	"github.com/warp/trade-ledger/inventory"
	"github.com/warp/trade-ledger/money"
)

// =============================================================================
// QUERIES - Read-only, every result is a copy
// =============================================================================

func (b *Books) Account(id bank.AccountID) (acc bank.Account, err error) {
	b.read(func(st *state) { acc, err = st.bank.Account(id) })
	return acc, err
}

func (b *Books) Accounts() (out []bank.Account) {
	b.read(func(st *state) { out = st.bank.Accounts() })
	return out
}

func (b *Books) Sale(id string) (*Sale, error) {
	var out *Sale
	b.read(func(st *state) {
		if s, ok := st.sales[id]; ok {
			cp := s.clone()
			out = &cp
		}
	})
	if out == nil {
		return nil, &domain.NotFoundError{Kind: "sale", ID: id}
	}
	return out, nil
}

// Sales returns every sale in creation order.
func (b *Books) Sales() (out []Sale) {
	b.read(func(st *state) { out = st.saleList() })
	return out
}

func (b *Books) PurchaseOrder(id string) (*PurchaseOrder, error) {
	var out *PurchaseOrder
	b.read(func(st *state) {
		if o, ok := st.orders[id]; ok {
			cp := o.clone()
			out = &cp
		}
	})
	if out == nil {
		return nil, &domain.NotFoundError{Kind: "purchase order", ID: id}
	}
	return out, nil
}

// PurchaseOrders returns every order in creation order.
func (b *Books) PurchaseOrders() (out []PurchaseOrder) {
	b.read(func(st *state) { out = st.orderList() })
	return out
}

func (b *Books) Lots() (out []inventory.Lot) {
	b.read(func(st *state) { out = st.lots.Lots() })
	return out
}

// StockOnHand is the remaining quantity and its FIFO valuation.
func (b *Books) StockOnHand() (units int64, value money.Amount) {
	b.read(func(st *state) {
		units = st.lots.OnHand()
		value = st.lots.Valuation()
	})
	return units, value
}

func (b *Books) Clients() (out []Party) {
	b.read(func(st *state) { out = partyList(st.clients) })
	return out
}

func (b *Books) Suppliers() (out []Party) {
	b.read(func(st *state) { out = partyList(st.suppliers) })
	return out
}

// MovementFilter narrows Movements; zero fields match everything.
type MovementFilter struct {
	Account   bank.AccountID
	Reference string
	Kind      bank.MovementKind
}

func (f MovementFilter) match(m bank.Movement) bool {
	return (f.Account == "" || m.AccountID == f.Account) &&
		(f.Reference == "" || m.Reference == f.Reference) &&
		(f.Kind == "" || m.Kind == f.Kind)
}

// Movements returns matching log entries in sequence order.
func (b *Books) Movements(f MovementFilter) []bank.Movement {
	var all []bank.Movement
	b.read(func(st *state) { all = st.bank.Movements() })
	out := all[:0]
	for _, m := range all {
		if f.match(m) {
			out = append(out, m)
		}
	}
	return out
}

func (b *Books) Position(currency string) (p exchange.Position) {
	b.read(func(st *state) { p = st.desk.Position(currency) })
	return p
}

func (b *Books) ExchangeOperations() (out []exchange.Operation) {
	b.read(func(st *state) { out = st.desk.Operations() })
	return out
}

// Snapshot returns the current state as a persistable document.
func (b *Books) Snapshot() (snap *Snapshot) {
	b.read(func(st *state) { snap = st.snapshot(b.local, b.now()) })
	return snap
}

func (s *state) saleList() []Sale {
	out := make([]Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		out = append(out, sale.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (s *state) orderList() []PurchaseOrder {
	out := make([]PurchaseOrder, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

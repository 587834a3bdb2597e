/*
Package inventory implements the purchase-lot ledger and the FIFO allocator.

PURPOSE:
  Every purchase order becomes one Lot. Sales draw from lots oldest-first so
  the cost attributed to a sale is the real acquisition cost of the units
  that left, not an average.

KEY CONCEPTS IN THIS FILE (lot.go):
  - Lot: one purchase order's inventory
  - Ledger: the ordered collection of lots

INVARIANTS:
  1. QuantitySold + QuantityRemaining == OriginalQuantity for every lot
  2. Lots are never removed, even at zero remaining (traceability)
  3. FIFO order is CreatedAt ascending, ties broken by insertion order (Seq)

SEE ALSO:
  - fifo.go: Plan / Commit allocation
*/
package inventory

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/warp/trade-ledger/domain"
	"github.com/warp/trade-ledger/money"
)

// =============================================================================
// LOT
// =============================================================================

type Lot struct {
	ID              string    `json:"id"`
	Seq             int64     `json:"seq"`
	CreatedAt       time.Time `json:"created_at"`
	SupplierName    string    `json:"supplier_name"`
	PurchaseOrderID string    `json:"purchase_order_id"`

	OriginalQuantity  int64 `json:"original_quantity"`
	QuantitySold      int64 `json:"quantity_sold"`
	QuantityRemaining int64 `json:"quantity_remaining"`

	UnitCost      money.Amount `json:"unit_cost"`
	TransportCost money.Amount `json:"transport_cost"` // cumulative
}

// Consistent reports whether the quantity invariant holds.
func (l Lot) Consistent() bool {
	return l.QuantitySold+l.QuantityRemaining == l.OriginalQuantity &&
		l.QuantitySold >= 0 && l.QuantityRemaining >= 0
}

// Value is the acquisition cost of the remaining units.
func (l Lot) Value() money.Amount { return l.UnitCost.Mul(l.QuantityRemaining) }

// LotInput describes a new lot.
type LotInput struct {
	SupplierName    string
	PurchaseOrderID string
	Quantity        int64
	UnitCost        money.Amount
	TransportCost   money.Amount
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger holds lots in insertion order. Not safe for concurrent use.
type Ledger struct {
	currency string
	lots     []*Lot
	byID     map[string]int
	seq      int64

	Clock func() time.Time
	NewID func() string
}

// NewLedger returns an empty lot ledger whose costs are in currency.
func NewLedger(currency string) *Ledger {
	return &Ledger{
		currency: currency,
		byID:     make(map[string]int),
		Clock:    time.Now,
		NewID:    uuid.NewString,
	}
}

// Currency is the currency of every unit cost.
func (l *Ledger) Currency() string { return l.currency }

// AddLot appends a lot with QuantityRemaining = Quantity.
func (l *Ledger) AddLot(in LotInput) (Lot, error) {
	if in.Quantity <= 0 {
		return Lot{}, domain.Invalid("quantity", "must be positive, got %d", in.Quantity)
	}
	if strings.TrimSpace(in.SupplierName) == "" {
		return Lot{}, domain.Invalid("supplier", "is required")
	}
	unit, err := l.money("unit_cost", in.UnitCost)
	if err != nil {
		return Lot{}, err
	}
	if !unit.IsPositive() {
		return Lot{}, domain.Invalid("unit_cost", "must be positive, got %s", unit.Decimal())
	}
	if _, ok := unit.MulChecked(in.Quantity); !ok {
		return Lot{}, domain.Invalid("quantity", "%d units at %s is out of range", in.Quantity, unit.Decimal())
	}
	transport, err := l.money("transport_cost", in.TransportCost)
	if err != nil {
		return Lot{}, err
	}
	if transport.IsNegative() {
		return Lot{}, domain.Invalid("transport_cost", "must not be negative, got %s", transport.Decimal())
	}

	l.seq++
	lot := &Lot{
		ID:                l.NewID(),
		Seq:               l.seq,
		CreatedAt:         l.Clock().UTC(),
		SupplierName:      in.SupplierName,
		PurchaseOrderID:   in.PurchaseOrderID,
		OriginalQuantity:  in.Quantity,
		QuantityRemaining: in.Quantity,
		UnitCost:          unit,
		TransportCost:     transport,
	}
	l.byID[lot.ID] = len(l.lots)
	l.lots = append(l.lots, lot)
	return *lot, nil
}

// AddTransport accumulates an additional transport charge onto a lot.
func (l *Ledger) AddTransport(lotID string, amount money.Amount) (Lot, error) {
	i, ok := l.byID[lotID]
	if !ok {
		return Lot{}, &domain.NotFoundError{Kind: "lot", ID: lotID}
	}
	amount, err := l.money("transport_cost", amount)
	if err != nil {
		return Lot{}, err
	}
	if !amount.IsPositive() {
		return Lot{}, domain.Invalid("transport_cost", "must be positive, got %s", amount.Decimal())
	}
	lot := l.lots[i]
	sum, ok := lot.TransportCost.AddChecked(amount)
	if !ok {
		return Lot{}, domain.Invalid("transport_cost", "cumulative transport is out of range")
	}
	lot.TransportCost = sum
	return *lot, nil
}

// Lot returns a copy of a lot.
func (l *Ledger) Lot(id string) (Lot, error) {
	i, ok := l.byID[id]
	if !ok {
		return Lot{}, &domain.NotFoundError{Kind: "lot", ID: id}
	}
	return *l.lots[i], nil
}

// Lots returns copies of every lot in insertion order.
func (l *Ledger) Lots() []Lot {
	out := make([]Lot, 0, len(l.lots))
	for _, lot := range l.lots {
		out = append(out, *lot)
	}
	return out
}

// OnHand is the total remaining quantity across lots.
func (l *Ledger) OnHand() int64 {
	var n int64
	for _, lot := range l.lots {
		n += lot.QuantityRemaining
	}
	return n
}

// Valuation is the FIFO acquisition cost of all remaining stock.
func (l *Ledger) Valuation() money.Amount {
	total := money.Zero(l.currency)
	for _, lot := range l.lots {
		total = total.Add(lot.Value())
	}
	return total
}

func (l *Ledger) money(field string, a money.Amount) (money.Amount, error) {
	if a.Currency == "" {
		a.Currency = l.currency
	}
	if a.Currency != l.currency {
		return a, domain.Invalid(field, "currency %s, want %s", a.Currency, l.currency)
	}
	return a, nil
}

// =============================================================================
// STATE
// =============================================================================

// State is the serializable form of a Ledger.
type State struct {
	Currency string `json:"currency"`
	Lots     []Lot  `json:"lots"`
	Seq      int64  `json:"seq"`
}

func (l *Ledger) Export() State {
	return State{Currency: l.currency, Lots: l.Lots(), Seq: l.seq}
}

// Restore rebuilds a ledger from exported state.
func Restore(s State, clock func() time.Time, newID func() string) *Ledger {
	l := NewLedger(s.Currency)
	for _, lot := range s.Lots {
		cp := lot
		l.byID[cp.ID] = len(l.lots)
		l.lots = append(l.lots, &cp)
	}
	l.seq = s.Seq
	if clock != nil {
		l.Clock = clock
	}
	if newID != nil {
		l.NewID = newID
	}
	return l
}

func (l *Ledger) Clone() *Ledger {
	return Restore(l.Export(), l.Clock, l.NewID)
}

package inventory

import (
	"fmt"
	"sort"

	"github.com/warp/trade-ledger/domain"
	"github.com/warp/trade-ledger/money"
)

// =============================================================================
// ALLOCATION - Stage, then commit
// =============================================================================

// Allocation proves which lot funded part of a sale.
type Allocation struct {
	LotID    string       `json:"lot_id"`
	Quantity int64        `json:"quantity"`
	UnitCost money.Amount `json:"unit_cost"`
}

// Cost is Quantity * UnitCost.
func (a Allocation) Cost() money.Amount { return a.UnitCost.Mul(a.Quantity) }

// Plan is an allocation computed against a read-only view of the lots.
// Nothing is mutated until it is committed.
type Plan struct {
	Quantity    int64        `json:"quantity"`
	Allocations []Allocation `json:"allocations"`
	RealCost    money.Amount `json:"real_cost"`
}

// Plan selects lots oldest-first for qty units. It fails with
// InsufficientStock, and touches nothing, when the lots cannot cover qty.
func (l *Ledger) Plan(qty int64) (Plan, error) {
	if qty <= 0 {
		return Plan{}, domain.Invalid("quantity", "must be positive, got %d", qty)
	}

	order := l.fifoOrder()
	plan := Plan{Quantity: qty, RealCost: money.Zero(l.currency)}
	need := qty
	for _, i := range order {
		if need == 0 {
			break
		}
		lot := l.lots[i]
		take := min(lot.QuantityRemaining, need)
		plan.Allocations = append(plan.Allocations, Allocation{
			LotID:    lot.ID,
			Quantity: take,
			UnitCost: lot.UnitCost,
		})
		cost, ok := lot.UnitCost.MulChecked(take)
		if ok {
			plan.RealCost, ok = plan.RealCost.AddChecked(cost)
		}
		if !ok {
			return Plan{}, domain.Invalid("quantity", "real cost of %d units is out of range", qty)
		}
		need -= take
	}
	if need > 0 {
		return Plan{}, &domain.InsufficientStockError{
			What:      "units",
			Available: qty - need,
			Requested: qty,
		}
	}
	return plan, nil
}

// Commit applies a plan. Every allocation is re-checked against the current
// lots before any lot is mutated, so a stale plan fails without effect.
func (l *Ledger) Commit(p Plan) error {
	for _, a := range p.Allocations {
		i, ok := l.byID[a.LotID]
		if !ok {
			return &domain.NotFoundError{Kind: "lot", ID: a.LotID}
		}
		if l.lots[i].QuantityRemaining < a.Quantity {
			return fmt.Errorf("lot %s changed since planning: %w", a.LotID, &domain.InsufficientStockError{
				What:      "units",
				Available: l.lots[i].QuantityRemaining,
				Requested: a.Quantity,
			})
		}
	}
	for _, a := range p.Allocations {
		lot := l.lots[l.byID[a.LotID]]
		lot.QuantityRemaining -= a.Quantity
		lot.QuantitySold += a.Quantity
	}
	return nil
}

// Allocate plans and commits in one step.
func (l *Ledger) Allocate(qty int64) (Plan, error) {
	p, err := l.Plan(qty)
	if err != nil {
		return Plan{}, err
	}
	if err := l.Commit(p); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// fifoOrder returns indices of lots with stock, oldest first.
func (l *Ledger) fifoOrder() []int {
	order := make([]int, 0, len(l.lots))
	for i, lot := range l.lots {
		if lot.QuantityRemaining > 0 {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		la, lb := l.lots[order[a]], l.lots[order[b]]
		if !la.CreatedAt.Equal(lb.CreatedAt) {
			return la.CreatedAt.Before(lb.CreatedAt)
		}
		return la.Seq < lb.Seq
	})
	return order
}

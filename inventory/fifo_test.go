package inventory_test

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/trade-ledger/domain"
	"github.com/warp/trade-ledger/inventory"
	"github.com/warp/trade-ledger/money"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// testClock hands out the times it is given, in order, then repeats the last.
type testClock struct {
	times []time.Time
	i     int
}

func (c *testClock) Now() time.Time {
	t := c.times[min(c.i, len(c.times)-1)]
	c.i++
	return t
}

func newTestLedger(times ...time.Time) *inventory.Ledger {
	l := inventory.NewLedger("MXN")
	if len(times) == 0 {
		times = []time.Time{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	}
	clock := &testClock{times: times}
	l.Clock = clock.Now
	n := 0
	l.NewID = func() string { n++; return fmt.Sprintf("lot-%d", n) }
	return l
}

func addLot(t *testing.T, l *inventory.Ledger, qty int64, unitCost int64) inventory.Lot {
	t.Helper()
	lot, err := l.AddLot(inventory.LotInput{
		SupplierName: "Shenzhen Trading",
		Quantity:     qty,
		UnitCost:     money.New(unitCost*100, "MXN"),
	})
	require.NoError(t, err)
	return lot
}

func requireConsistent(t *testing.T, l *inventory.Ledger) {
	t.Helper()
	for _, lot := range l.Lots() {
		require.True(t, lot.Consistent(), "lot %s: sold %d + remaining %d != %d",
			lot.ID, lot.QuantitySold, lot.QuantityRemaining, lot.OriginalQuantity)
	}
}

var (
	t1 = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	t2 = time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)
)

// =============================================================================
// FIFO
// =============================================================================

func TestAllocate_OldestLotFirst(t *testing.T) {
	l := newTestLedger(t1, t2)
	old := addLot(t, l, 5, 100)
	newer := addLot(t, l, 5, 120)

	plan, err := l.Allocate(7)
	require.NoError(t, err)

	require.Len(t, plan.Allocations, 2)
	assert.Equal(t, old.ID, plan.Allocations[0].LotID)
	assert.Equal(t, int64(5), plan.Allocations[0].Quantity)
	assert.Equal(t, newer.ID, plan.Allocations[1].LotID)
	assert.Equal(t, int64(2), plan.Allocations[1].Quantity)
	assert.Equal(t, money.New(5*10000+2*12000, "MXN"), plan.RealCost)

	gotOld, _ := l.Lot(old.ID)
	gotNew, _ := l.Lot(newer.ID)
	assert.Equal(t, int64(0), gotOld.QuantityRemaining)
	assert.Equal(t, int64(3), gotNew.QuantityRemaining)
	assert.Equal(t, int64(3), l.OnHand())
	requireConsistent(t, l)
}

func TestAllocate_OrdersByCreationDateNotInsertion(t *testing.T) {
	// A lot back-dated before an existing one is consumed first.
	l := newTestLedger(t2, t1)
	later := addLot(t, l, 5, 100)
	earlier := addLot(t, l, 5, 90)

	plan, err := l.Allocate(6)
	require.NoError(t, err)
	assert.Equal(t, earlier.ID, plan.Allocations[0].LotID)
	assert.Equal(t, later.ID, plan.Allocations[1].LotID)
	assert.Equal(t, int64(1), plan.Allocations[1].Quantity)
}

func TestAllocate_TiesBrokenByInsertionOrder(t *testing.T) {
	l := newTestLedger(t1)
	first := addLot(t, l, 2, 100)
	addLot(t, l, 2, 200)

	plan, err := l.Allocate(1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, plan.Allocations[0].LotID)
	assert.Equal(t, money.New(10000, "MXN"), plan.RealCost)
}

func TestAllocate_SkipsExhaustedLots(t *testing.T) {
	l := newTestLedger(t1, t2)
	addLot(t, l, 3, 100)
	second := addLot(t, l, 3, 100)

	_, err := l.Allocate(3)
	require.NoError(t, err)
	plan, err := l.Allocate(2)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 1)
	assert.Equal(t, second.ID, plan.Allocations[0].LotID)
	requireConsistent(t, l)
}

func TestAllocate_InsufficientStockMutatesNothing(t *testing.T) {
	l := newTestLedger(t1, t2)
	addLot(t, l, 5, 100)
	addLot(t, l, 5, 120)
	before := l.Export()

	_, err := l.Allocate(11)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	var stock *domain.InsufficientStockError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, int64(10), stock.Available)
	assert.Equal(t, int64(11), stock.Requested)

	assert.Equal(t, before, l.Export())
}

func TestAllocate_EmptyLedger(t *testing.T) {
	l := newTestLedger()
	_, err := l.Allocate(1)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, err = l.Allocate(0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCommit_StalePlanFailsWithoutEffect(t *testing.T) {
	l := newTestLedger(t1, t2)
	addLot(t, l, 5, 100)
	addLot(t, l, 5, 100)

	stale, err := l.Plan(8)
	require.NoError(t, err)
	_, err = l.Allocate(4) // drains part of the first lot
	require.NoError(t, err)
	before := l.Export()

	err = l.Commit(stale)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, before, l.Export())
}

// =============================================================================
// LOTS
// =============================================================================

func TestAddLot_Validation(t *testing.T) {
	l := newTestLedger()
	tests := []struct {
		name string
		in   inventory.LotInput
	}{
		{"zero quantity", inventory.LotInput{SupplierName: "s", Quantity: 0, UnitCost: money.New(1, "MXN")}},
		{"no supplier", inventory.LotInput{SupplierName: "  ", Quantity: 1, UnitCost: money.New(1, "MXN")}},
		{"zero cost", inventory.LotInput{SupplierName: "s", Quantity: 1}},
		{"negative transport", inventory.LotInput{SupplierName: "s", Quantity: 1, UnitCost: money.New(1, "MXN"), TransportCost: money.New(-1, "MXN")}},
		{"wrong currency", inventory.LotInput{SupplierName: "s", Quantity: 1, UnitCost: money.New(1, "USD")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.AddLot(tt.in)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Empty(t, l.Lots())
}

func TestAddTransport_Accumulates(t *testing.T) {
	l := newTestLedger()
	lot, err := l.AddLot(inventory.LotInput{
		SupplierName:  "s",
		Quantity:      10,
		UnitCost:      money.New(10000, "MXN"),
		TransportCost: money.New(5000, "MXN"),
	})
	require.NoError(t, err)

	got, err := l.AddTransport(lot.ID, money.New(2500, "MXN"))
	require.NoError(t, err)
	assert.Equal(t, int64(7500), got.TransportCost.Minor)

	_, err = l.AddTransport("missing", money.New(1, "MXN"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestValuation_RemainingAtLotCost(t *testing.T) {
	l := newTestLedger(t1, t2)
	addLot(t, l, 5, 100)
	addLot(t, l, 5, 120)
	_, err := l.Allocate(7)
	require.NoError(t, err)

	assert.Equal(t, money.New(3*12000, "MXN"), l.Valuation())
}

func TestClone_IsIndependent(t *testing.T) {
	l := newTestLedger()
	addLot(t, l, 5, 100)

	c := l.Clone()
	_, err := c.Allocate(5)
	require.NoError(t, err)

	assert.Equal(t, int64(5), l.OnHand())
	assert.Equal(t, int64(0), c.OnHand())
}

func TestPlan_RealCostOverflowMutatesNothing(t *testing.T) {
	l := newTestLedger(t1, t2)
	for i := 0; i < 2; i++ {
		_, err := l.AddLot(inventory.LotInput{
			SupplierName: "Shenzhen Trading",
			Quantity:     1,
			UnitCost:     money.New(math.MaxInt64/2+1, "MXN"),
		})
		require.NoError(t, err)
	}
	before := l.Lots()

	// WHEN: each lot fits on its own but the two costs do not add up in int64
	_, err := l.Allocate(2)

	// THEN
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, before, l.Lots())
}

func TestAddLot_TotalCostOutOfRange(t *testing.T) {
	l := newTestLedger()

	_, err := l.AddLot(inventory.LotInput{
		SupplierName: "Shenzhen Trading",
		Quantity:     8,
		UnitCost:     money.New(1<<61+1, "MXN"),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, l.Lots())

	lot := addLot(t, l, 1, 100)
	_, err = l.AddTransport(lot.ID, money.New(math.MaxInt64, "MXN"))
	require.NoError(t, err)
	_, err = l.AddTransport(lot.ID, money.New(1, "MXN"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

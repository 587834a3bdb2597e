package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/trade-ledger/bank"
	"github.com/warp/trade-ledger/domain"
	"github.com/warp/trade-ledger/money"
	"github.com/warp/trade-ledger/store/sqlite"
	"github.com/warp/trade-ledger/trade"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func mxn(major int64) money.Amount { return money.New(major*100, "MXN") }

func TestStore_EmptyLoadsNil(t *testing.T) {
	st := newStore(t)
	snap, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestStore_BooksRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	books, err := trade.Open(ctx, st)
	require.NoError(t, err)
	_, err = books.CreatePurchaseOrder(ctx, trade.PurchaseOrderInput{Supplier: "A", Quantity: 10, UnitCost: mxn(100)})
	require.NoError(t, err)
	sale, err := books.CreateSale(ctx, trade.SaleInput{Client: "c", Quantity: 4, UnitSalePrice: mxn(150), AmountPaid: mxn(300)})
	require.NoError(t, err)

	n, err := st.Snapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "initial + purchase + sale")

	reopened, err := trade.Open(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, books.Accounts(), reopened.Accounts())
	assert.Equal(t, books.Lots(), reopened.Lots())

	got, err := reopened.Sale(sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sale.Distribution, got.Distribution)
	assert.Equal(t, sale.AmountRemaining, got.AmountRemaining)
	require.NoError(t, reopened.Audit())
}

func TestStore_MirrorsMovementsOnce(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	books, err := trade.Open(ctx, st)
	require.NoError(t, err)
	_, err = books.RecordIncome(ctx, bank.Operativa, mxn(100), "seed")
	require.NoError(t, err)
	_, err = books.Transfer(ctx, bank.Operativa, bank.Costos, mxn(40), "restock")
	require.NoError(t, err)

	all, err := st.Movements(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, books.Movements(trade.MovementFilter{}), all)

	costos, err := st.Movements(ctx, bank.Costos)
	require.NoError(t, err)
	require.Len(t, costos, 1)
	assert.Equal(t, bank.KindTransferIn, costos[0].Kind)
	assert.Equal(t, int64(4000), costos[0].Amount.Minor)
}

func TestStore_TwoProcessesOnOneFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	// GIVEN: two connections to the same file, each with its own books
	openBooks := func() (*sqlite.Store, *trade.Books) {
		st, err := sqlite.New(path)
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
		books, err := trade.Open(ctx, st)
		require.NoError(t, err)
		return st, books
	}
	_, first := openBooks()
	_, second := openBooks()

	// WHEN: both create an order on top of the same revision
	_, err := first.CreatePurchaseOrder(ctx, trade.PurchaseOrderInput{Supplier: "A", Quantity: 10, UnitCost: mxn(100)})
	require.NoError(t, err)
	_, err = second.CreatePurchaseOrder(ctx, trade.PurchaseOrderInput{Supplier: "B", Quantity: 5, UnitCost: mxn(80)})

	// THEN: the stale writer fails instead of overwriting the first order
	require.ErrorIs(t, err, domain.ErrConflict)

	st, reopened := openBooks()
	require.Len(t, reopened.PurchaseOrders(), 1)
	assert.Equal(t, "A", reopened.PurchaseOrders()[0].SupplierName)

	mirrored, err := st.Movements(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, reopened.Movements(trade.MovementFilter{}), mirrored)
	require.NoError(t, reopened.Audit())
}

func TestStore_RetentionPrunesOldSnapshots(t *testing.T) {
	ctx := context.Background()
	st, err := sqlite.New(":memory:", sqlite.WithRetention(2))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	books, err := trade.Open(ctx, st)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := books.RecordIncome(ctx, bank.Operativa, mxn(10), "seed")
		require.NoError(t, err)
	}

	n, err := st.Snapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	mirrored, err := st.Movements(ctx, bank.Operativa)
	require.NoError(t, err)
	assert.Len(t, mirrored, 4, "movement mirror is never pruned")

	reopened, err := trade.Open(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, books.Accounts(), reopened.Accounts())
}

package bank_test

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/trade-ledger/bank"
	"github.com/warp/trade-ledger/domain"
	"github.com/warp/trade-ledger/money"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestLedger() *bank.Ledger {
	l := bank.NewLedger(bank.DefaultChart("MXN"))
	n := 0
	l.NewID = func() string { n++; return fmt.Sprintf("mov-%d", n) }
	l.Clock = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	return l
}

func mxn(major int64) money.Amount { return money.New(major*100, "MXN") }

func requireBalanced(t *testing.T, l *bank.Ledger) {
	t.Helper()
	for _, a := range l.Accounts() {
		require.True(t, a.Balanced(), "account %s unbalanced", a.ID)
	}
	require.NoError(t, l.Verify())
}

// =============================================================================
// PRIMITIVES
// =============================================================================

func TestDefaultChart_SevenAccounts(t *testing.T) {
	l := newTestLedger()
	accs := l.Accounts()
	require.Len(t, accs, 7)

	usd, err := l.Account(bank.BovedaUSD)
	require.NoError(t, err)
	assert.Equal(t, "USD", usd.Currency)
	assert.True(t, usd.CapitalActual.IsZero())
}

func TestIncome_IncreasesCapitalAndIngresos(t *testing.T) {
	l := newTestLedger()

	m, err := l.Income(bank.Costos, mxn(600), "sale cost", "sale-1")
	require.NoError(t, err)
	assert.Equal(t, bank.Credit, m.Direction)
	assert.Equal(t, bank.KindIncome, m.Kind)
	assert.Equal(t, "sale-1", m.Reference)
	assert.Equal(t, int64(1), m.Seq)

	acc, _ := l.Account(bank.Costos)
	assert.Equal(t, mxn(600), acc.CapitalActual)
	assert.Equal(t, mxn(600), acc.HistoricoIngresos)
	assert.True(t, acc.HistoricoGastos.IsZero())
	requireBalanced(t, l)
}

func TestExpense_InsufficientFundsHasNoSideEffect(t *testing.T) {
	l := newTestLedger()
	_, err := l.Income(bank.Operativa, mxn(100), "seed", "")
	require.NoError(t, err)

	_, err = l.Expense(bank.Operativa, mxn(150), "supplier", "")
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	var funds *domain.InsufficientFundsError
	require.ErrorAs(t, err, &funds)
	assert.Equal(t, int64(5000), funds.Shortfall())

	acc, _ := l.Account(bank.Operativa)
	assert.Equal(t, mxn(100), acc.CapitalActual)
	assert.True(t, acc.HistoricoGastos.IsZero())
	assert.Len(t, l.Movements(), 1)
}

func TestLoss_MayTakeCapitalNegative(t *testing.T) {
	l := newTestLedger()

	// WHEN: a loss is booked on an empty account
	m, err := l.Loss(bank.Ganancias, mxn(40), "sale profit (loss)", "sale-1")
	require.NoError(t, err)

	// THEN: capital goes negative and the invariant still holds
	assert.Equal(t, bank.Debit, m.Direction)
	assert.Equal(t, bank.KindLoss, m.Kind)
	acc, _ := l.Account(bank.Ganancias)
	assert.Equal(t, mxn(-40), acc.CapitalActual)
	assert.Equal(t, mxn(40), acc.HistoricoGastos)
	requireBalanced(t, l)

	_, err = l.Loss(bank.Ganancias, mxn(0), "zero", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPrimitives_RejectInvalidInput(t *testing.T) {
	l := newTestLedger()

	_, err := l.Income(bank.Costos, mxn(0), "zero", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = l.Income(bank.Costos, mxn(-5), "negative", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = l.Income(bank.Costos, money.New(100, "USD"), "wrong currency", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = l.Income("caja_chica", mxn(1), "unknown", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Empty(t, l.Movements())
}

func TestIncome_DefaultsToAccountCurrency(t *testing.T) {
	l := newTestLedger()
	m, err := l.Income(bank.BovedaUSD, money.Amount{Minor: 10000}, "seed", "")
	require.NoError(t, err)
	assert.Equal(t, "USD", m.Amount.Currency)
}

// =============================================================================
// TRANSFER
// =============================================================================

func TestTransfer_MovesCapitalAndCountsBothSides(t *testing.T) {
	l := newTestLedger()
	_, _ = l.Income(bank.Ganancias, mxn(1000), "seed", "")

	pair, err := l.Transfer(bank.Ganancias, bank.Operativa, mxn(400), "withdraw profit", "")
	require.NoError(t, err)
	assert.Equal(t, bank.KindTransferOut, pair.Out.Kind)
	assert.Equal(t, bank.KindTransferIn, pair.In.Kind)

	src, _ := l.Account(bank.Ganancias)
	dst, _ := l.Account(bank.Operativa)
	assert.Equal(t, mxn(600), src.CapitalActual)
	assert.Equal(t, mxn(400), src.HistoricoGastos)
	assert.Equal(t, mxn(400), src.HistoricoTransferencias)
	assert.Equal(t, mxn(400), dst.CapitalActual)
	assert.Equal(t, mxn(400), dst.HistoricoTransferencias)
	requireBalanced(t, l)
}

func TestTransfer_FailureLeavesBothAccountsUnchanged(t *testing.T) {
	tests := []struct {
		name string
		from bank.AccountID
		to   bank.AccountID
		amt  money.Amount
		want error
	}{
		{"insufficient funds", bank.Ganancias, bank.Operativa, mxn(5000), domain.ErrInsufficientFunds},
		{"unknown destination", bank.Ganancias, "nowhere", mxn(10), domain.ErrNotFound},
		{"currency mismatch", bank.Ganancias, bank.BovedaUSD, mxn(10), domain.ErrValidation},
		{"same account", bank.Ganancias, bank.Ganancias, mxn(10), domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger()
			_, _ = l.Income(bank.Ganancias, mxn(1000), "seed", "")
			before := l.Export()

			_, err := l.Transfer(tt.from, tt.to, tt.amt, "move", "")
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, before, l.Export())
		})
	}
}

// =============================================================================
// RECEIVABLE / REPLAY / CLONE
// =============================================================================

func TestReceivable_OutsideCapitalInvariant(t *testing.T) {
	l := newTestLedger()
	require.NoError(t, l.Receivable(bank.Ganancias, mxn(300)))
	require.NoError(t, l.Receivable(bank.Ganancias, mxn(-100)))

	acc, _ := l.Account(bank.Ganancias)
	assert.Equal(t, int64(20000), acc.PorCobrar.Minor)
	assert.True(t, acc.CapitalActual.IsZero())
	requireBalanced(t, l)

	assert.ErrorIs(t, l.Receivable(bank.Ganancias, money.New(1, "USD")), domain.ErrValidation)
}

func TestReplay_RebuildsCounters(t *testing.T) {
	l := newTestLedger()
	_, _ = l.Income(bank.Operativa, mxn(1000), "seed", "")
	_, _ = l.Expense(bank.Operativa, mxn(250), "rent", "")
	_, _ = l.Transfer(bank.Operativa, bank.CasaCambio, mxn(500), "fund desk", "")

	totals := bank.Replay(l.Movements())
	op := totals[bank.Operativa]
	assert.Equal(t, int64(25000), op.Capital().Minor)
	assert.Equal(t, int64(50000), op.Transferencias.Minor)
	assert.Equal(t, int64(50000), totals[bank.CasaCambio].Capital().Minor)
	requireBalanced(t, l)
}

func TestClone_IsIndependent(t *testing.T) {
	l := newTestLedger()
	_, _ = l.Income(bank.Fletes, mxn(10), "seed", "")

	c := l.Clone()
	_, err := c.Income(bank.Fletes, mxn(90), "more", "")
	require.NoError(t, err)

	orig, _ := l.Account(bank.Fletes)
	cloned, _ := c.Account(bank.Fletes)
	assert.Equal(t, mxn(10), orig.CapitalActual)
	assert.Equal(t, mxn(100), cloned.CapitalActual)
	assert.Len(t, l.Movements(), 1)
}

func TestPrimitives_CounterOverflowIsRejected(t *testing.T) {
	l := newTestLedger()
	_, err := l.Income(bank.Costos, money.New(math.MaxInt64, "MXN"), "seed", "")
	require.NoError(t, err)
	_, err = l.Income(bank.Operativa, mxn(10), "seed", "")
	require.NoError(t, err)
	before := l.Accounts()

	// WHEN: one more cent would wrap historico_ingresos of costos
	_, err = l.Income(bank.Costos, money.New(1, "MXN"), "too much", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = l.Transfer(bank.Operativa, bank.Costos, money.New(1, "MXN"), "sweep", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	// THEN: the rejected calls left no trace, and costos can still be debited
	assert.Equal(t, before, l.Accounts())
	assert.Len(t, l.Movements(), 2)
	_, err = l.Expense(bank.Costos, mxn(1), "restock", "")
	require.NoError(t, err)
	requireBalanced(t, l)
}

package exchange_test

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/trade-ledger/bank"
	"github.com/warp/trade-ledger/domain"
	"github.com/warp/trade-ledger/exchange"
	"github.com/warp/trade-ledger/money"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
func usd(major int64) money.Amount { return money.New(major*100, "USD") }
func mxn(major int64) money.Amount { return money.New(major*100, "MXN") }

func setup(t *testing.T, vaultUSD int64) (*bank.Ledger, *exchange.Desk) {
	t.Helper()
	l := bank.NewLedger(bank.DefaultChart("MXN"))
	if vaultUSD > 0 {
		_, err := l.Income(bank.BovedaUSD, usd(vaultUSD), "seed", "")
		require.NoError(t, err)
	}
	return l, exchange.NewDesk("MXN")
}

func capital(t *testing.T, l *bank.Ledger, id bank.AccountID) int64 {
	t.Helper()
	a, err := l.Account(id)
	require.NoError(t, err)
	return a.CapitalActual.Minor
}

// =============================================================================
// WEIGHTED-AVERAGE COSTING
// =============================================================================

func TestDesk_WeightedAverageAndRealizedProfit(t *testing.T) {
	l, d := setup(t, 200)

	_, err := d.Buy(l, bank.BovedaUSD, usd(100), dec("17.0"))
	require.NoError(t, err)
	_, err = d.Buy(l, bank.BovedaUSD, usd(100), dec("18.0"))
	require.NoError(t, err)

	pos := d.Position("USD")
	assert.True(t, pos.AverageCost.Equal(dec("17.5")), "avg = %s", pos.AverageCost)
	assert.Equal(t, usd(200), pos.Units)
	assert.Equal(t, mxn(3500), pos.Cost("MXN"))
	assert.Equal(t, int64(350000), capital(t, l, bank.CasaCambio))
	assert.Equal(t, int64(0), capital(t, l, bank.BovedaUSD))

	op, err := d.Sell(l, bank.BovedaUSD, usd(50), dec("19.0"))
	require.NoError(t, err)
	assert.Equal(t, mxn(75), op.RealizedProfit)
	assert.Equal(t, mxn(950), op.AmountLocal)
	assert.True(t, op.AverageCostBefore.Equal(dec("17.5")))

	assert.Equal(t, int64(7500), capital(t, l, bank.Ganancias))
	assert.Equal(t, int64(350000-95000), capital(t, l, bank.CasaCambio))
	assert.Equal(t, int64(5000), capital(t, l, bank.BovedaUSD))
	assert.True(t, d.Position("USD").AverageCost.Equal(dec("17.5")), "sell keeps the cost basis")
	assert.Equal(t, usd(150), d.Position("USD").Units)

	require.NoError(t, l.Verify())
	require.NoError(t, d.Verify())
}

func TestDesk_SellBelowCostPostsLoss(t *testing.T) {
	l, d := setup(t, 100)
	_, err := l.Income(bank.Ganancias, mxn(100), "prior profit", "")
	require.NoError(t, err)

	_, err = d.Buy(l, bank.BovedaUSD, usd(100), dec("18"))
	require.NoError(t, err)

	op, err := d.Sell(l, bank.BovedaUSD, usd(40), dec("17"))
	require.NoError(t, err)
	assert.Equal(t, mxn(-40), op.RealizedProfit)
	assert.Equal(t, int64(6000), capital(t, l, bank.Ganancias))
	require.NoError(t, l.Verify())
}

func TestDesk_LossWithoutProfitCapitalGoesNegative(t *testing.T) {
	l, d := setup(t, 100)
	_, err := d.Buy(l, bank.BovedaUSD, usd(100), dec("18"))
	require.NoError(t, err)

	// WHEN: selling below cost with nothing in ganancias
	op, err := d.Sell(l, bank.BovedaUSD, usd(40), dec("17"))

	// THEN: the loss is still realized and ganancias goes negative
	require.NoError(t, err)
	assert.Equal(t, mxn(-40), op.RealizedProfit)
	assert.Equal(t, int64(-4000), capital(t, l, bank.Ganancias))
	assert.Equal(t, usd(60), d.Position("USD").Units)
	require.NoError(t, l.Verify())
	require.NoError(t, d.Verify())
}

func TestDesk_SellingLastUnitResetsCostBasis(t *testing.T) {
	l, d := setup(t, 10)
	_, err := d.Buy(l, bank.BovedaUSD, usd(10), dec("17.25"))
	require.NoError(t, err)
	_, err = d.Sell(l, bank.BovedaUSD, usd(10), dec("17.25"))
	require.NoError(t, err)

	pos := d.Position("USD")
	assert.True(t, pos.Units.IsZero())
	assert.True(t, pos.AverageCost.IsZero())
}

// =============================================================================
// FAILURES
// =============================================================================

func TestDesk_Failures(t *testing.T) {
	tests := []struct {
		name string
		run  func(l *bank.Ledger, d *exchange.Desk) error
		want error
	}{
		{"buy with empty vault", func(l *bank.Ledger, d *exchange.Desk) error {
			_, err := d.Buy(l, bank.BovedaCNY, money.New(100, "CNY"), dec("2.4"))
			return err
		}, domain.ErrInsufficientFunds},
		{"sell without position", func(l *bank.Ledger, d *exchange.Desk) error {
			_, err := d.Sell(l, bank.BovedaUSD, usd(1), dec("17"))
			return err
		}, domain.ErrInsufficientStock},
		{"sell beyond desk capital", func(l *bank.Ledger, d *exchange.Desk) error {
			if _, err := d.Buy(l, bank.BovedaUSD, usd(10), dec("17")); err != nil {
				return err
			}
			if _, err := l.Transfer(bank.CasaCambio, bank.Operativa, mxn(170), "sweep", ""); err != nil {
				return err
			}
			_, err := d.Sell(l, bank.BovedaUSD, usd(10), dec("18"))
			return err
		}, domain.ErrInsufficientFunds},
		{"local account as vault", func(l *bank.Ledger, d *exchange.Desk) error {
			_, err := d.Buy(l, bank.Operativa, mxn(1), dec("1"))
			return err
		}, domain.ErrValidation},
		{"zero rate", func(l *bank.Ledger, d *exchange.Desk) error {
			_, err := d.Buy(l, bank.BovedaUSD, usd(1), decimal.Zero)
			return err
		}, domain.ErrValidation},
		{"wrong currency", func(l *bank.Ledger, d *exchange.Desk) error {
			_, err := d.Buy(l, bank.BovedaUSD, money.New(100, "CNY"), dec("17"))
			return err
		}, domain.ErrValidation},
		{"local amount out of range", func(l *bank.Ledger, d *exchange.Desk) error {
			_, err := d.Buy(l, bank.BovedaUSD, money.New(math.MaxInt64/2, "USD"), dec("17"))
			return err
		}, domain.ErrValidation},
		{"unknown vault", func(l *bank.Ledger, d *exchange.Desk) error {
			_, err := d.Buy(l, "boveda_eur", money.New(100, "EUR"), dec("20"))
			return err
		}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, d := setup(t, 10)
			assert.ErrorIs(t, tt.run(l, d), tt.want)
		})
	}
}

// =============================================================================
// QUOTE / REBUILD / STATE
// =============================================================================

func TestNewQuote(t *testing.T) {
	q, err := exchange.NewQuote(dec("18"), dec("0.02"))
	require.NoError(t, err)
	assert.True(t, q.BuyRate.Equal(dec("17.82")), "buy %s", q.BuyRate)
	assert.True(t, q.SellRate.Equal(dec("18.18")), "sell %s", q.SellRate)

	_, err = exchange.NewQuote(dec("0"), dec("0.02"))
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = exchange.NewQuote(dec("18"), dec("-0.1"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRebuild_MatchesIncrementalPosition(t *testing.T) {
	l, d := setup(t, 300)
	for _, r := range []string{"17.10", "17.95", "18.40"} {
		_, err := d.Buy(l, bank.BovedaUSD, usd(100), dec(r))
		require.NoError(t, err)
	}
	_, err := d.Sell(l, bank.BovedaUSD, usd(120), dec("19"))
	require.NoError(t, err)

	rebuilt := exchange.Rebuild(d.Operations())
	assert.Equal(t, d.Position("USD").Units, rebuilt["USD"].Units)
	assert.True(t, d.Position("USD").AverageCost.Equal(rebuilt["USD"].AverageCost))
	require.NoError(t, d.Verify())
}

func TestWeightedAverage_EmptyHolding(t *testing.T) {
	got := exchange.WeightedAverage(decimal.Zero, decimal.Zero, dec("10"), dec("17.3"))
	assert.True(t, got.Equal(dec("17.3")))
	assert.True(t, exchange.WeightedAverage(decimal.Zero, decimal.Zero, decimal.Zero, dec("1")).IsZero())
}

func TestClone_IsIndependent(t *testing.T) {
	l, d := setup(t, 100)
	_, err := d.Buy(l, bank.BovedaUSD, usd(50), dec("17"))
	require.NoError(t, err)

	c := d.Clone()
	_, err = c.Buy(l, bank.BovedaUSD, usd(50), dec("19"))
	require.NoError(t, err)

	assert.Len(t, d.Operations(), 1)
	assert.True(t, d.Position("USD").AverageCost.Equal(dec("17")))
	assert.True(t, c.Position("USD").AverageCost.Equal(dec("18")))
}

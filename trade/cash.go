package trade

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/trade-ledger/bank"
	"github.com/warp/trade-ledger/domain"
	"github.com/warp/trade-ledger/exchange"
	"github.com/warp/trade-ledger/money"
)

// IsClientError reports whether err was caused by the caller's input or
// the current state (validation, missing funds or stock, unknown ids).
func IsClientError(err error) bool { return domain.IsClientError(err) }

func IsNotFound(err error) bool { return domain.IsNotFound(err) }

// IsConflict reports whether another writer committed first. The books have
// already reloaded; retrying the same call runs against the newer state.
func IsConflict(err error) bool { return domain.IsConflict(err) }

// =============================================================================
// CASH - Direct use of the bank primitives
// =============================================================================

// Transfer moves funds between two accounts of the same currency.
func (b *Books) Transfer(ctx context.Context, from, to bank.AccountID, amount money.Amount, concept string) (bank.MovementPair, error) {
	var pair bank.MovementPair
	err := b.withTx(ctx, "transfer", func(st *state) error {
		var err error
		pair, err = st.bank.Transfer(from, to, amount, concept, b.newID())
		return err
	})
	if err != nil {
		return bank.MovementPair{}, err
	}
	b.log.Info().
		Str("from", string(from)).
		Str("to", string(to)).
		Str("amount", pair.Out.Amount.String()).
		Msg("transfer")
	return pair, nil
}

// RecordExpense debits an account for a cost outside sales and orders.
func (b *Books) RecordExpense(ctx context.Context, account bank.AccountID, amount money.Amount, concept string) (bank.Movement, error) {
	var m bank.Movement
	err := b.withTx(ctx, "expense", func(st *state) error {
		var err error
		m, err = st.bank.Expense(account, amount, concept, "")
		return err
	})
	if err != nil {
		return bank.Movement{}, err
	}
	b.log.Info().Str("account", string(account)).Str("amount", m.Amount.String()).Msg("expense recorded")
	return m, nil
}

// RecordIncome credits an account (capital injection, other income).
func (b *Books) RecordIncome(ctx context.Context, account bank.AccountID, amount money.Amount, concept string) (bank.Movement, error) {
	var m bank.Movement
	err := b.withTx(ctx, "income", func(st *state) error {
		var err error
		m, err = st.bank.Income(account, amount, concept, "")
		return err
	})
	if err != nil {
		return bank.Movement{}, err
	}
	b.log.Info().Str("account", string(account)).Str("amount", m.Amount.String()).Msg("income recorded")
	return m, nil
}

// =============================================================================
// EXCHANGE DESK
// =============================================================================

// ExchangeBuy converts vault currency into local currency on casa_cambio.
func (b *Books) ExchangeBuy(ctx context.Context, amountForeign money.Amount, rate decimal.Decimal, vault bank.AccountID) (exchange.Operation, error) {
	var op exchange.Operation
	err := b.withTx(ctx, "exchange_buy", func(st *state) error {
		var err error
		op, err = st.desk.Buy(st.bank, vault, amountForeign, rate)
		return err
	})
	if err != nil {
		return exchange.Operation{}, err
	}
	b.log.Info().
		Str("op", op.ID).
		Str("foreign", op.AmountForeign.String()).
		Str("rate", op.Rate.String()).
		Str("average_cost", op.AverageCostAfter.String()).
		Msg("exchange buy")
	return op, nil
}

// ExchangeSell converts local currency back into the vault and realizes the
// spread against the weighted-average cost on ganancias.
func (b *Books) ExchangeSell(ctx context.Context, amountForeign money.Amount, rate decimal.Decimal, vault bank.AccountID) (exchange.Operation, error) {
	var op exchange.Operation
	err := b.withTx(ctx, "exchange_sell", func(st *state) error {
		var err error
		op, err = st.desk.Sell(st.bank, vault, amountForeign, rate)
		return err
	})
	if err != nil {
		return exchange.Operation{}, err
	}
	b.log.Info().
		Str("op", op.ID).
		Str("foreign", op.AmountForeign.String()).
		Str("rate", op.Rate.String()).
		Str("profit", op.RealizedProfit.String()).
		Msg("exchange sell")
	return op, nil
}

// Quote returns buy and sell rates around a reference rate.
func (b *Books) Quote(reference, spread decimal.Decimal) (exchange.Quote, error) {
	return exchange.NewQuote(reference, spread)
}

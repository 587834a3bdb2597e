package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/warp/trade-ledger/bank"
	"github.com/warp/trade-ledger/exchange"
)

// exchangeCmd is both "exchange-buy" and "exchange-sell".
type exchangeCmd struct {
	side   string
	vault  string
	amount string
	rate   string
}

func (c *exchangeCmd) Name() string { return "exchange-" + c.side }
func (c *exchangeCmd) Synopsis() string {
	if c.side == "buy" {
		return "convert vault currency into local currency on casa_cambio"
	}
	return "convert local currency back into a vault, realizing the spread"
}
func (c *exchangeCmd) Usage() string {
	return fmt.Sprintf("ledger %s -vault <boveda_usd|boveda_cny> -amount <foreign amount> -rate <local per unit>\n", c.Name())
}

func (c *exchangeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.vault, "vault", string(bank.BovedaUSD), "Foreign-currency vault account.")
	f.StringVar(&c.amount, "amount", "", "Amount of foreign currency.")
	f.StringVar(&c.rate, "rate", "", "Local currency per foreign unit.")
}

func (c *exchangeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		vault, err := a.books.Account(bank.AccountID(c.vault))
		if err != nil {
			return err
		}
		amt, err := a.amount("amount", c.amount, vault.Currency)
		if err != nil {
			return err
		}
		rate, err := parseRate("rate", c.rate)
		if err != nil {
			return err
		}
		var op exchange.Operation
		if c.side == "buy" {
			op, err = a.books.ExchangeBuy(ctx, amt, rate, vault.ID)
		} else {
			op, err = a.books.ExchangeSell(ctx, amt, rate, vault.ID)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s %s @ %s = %s\n", op.Side, op.AmountForeign, op.Rate, op.AmountLocal)
		fmt.Fprintf(a.out, "average cost %s -> %s\n", op.AverageCostBefore, op.AverageCostAfter)
		if op.Side == exchange.Sell {
			fmt.Fprintf(a.out, "realized %s\n", op.RealizedProfit)
		}
		return nil
	})
}

type quoteCmd struct {
	currency  string
	reference string
	spread    string
}

func (*quoteCmd) Name() string     { return "quote" }
func (*quoteCmd) Synopsis() string { return "show buy/sell rates around a reference rate" }
func (*quoteCmd) Usage() string {
	return `ledger quote -reference <rate> [-spread 0.02] [-currency USD]

  buy = reference * (1 - spread/2), sell = reference * (1 + spread/2).
  With -currency, also shows the desk's position and average cost.
`
}

func (c *quoteCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.reference, "reference", "", "Reference rate.")
	f.StringVar(&c.spread, "spread", "0.02", "Total spread as a fraction.")
	f.StringVar(&c.currency, "currency", "", "Foreign currency position to show.")
}

func (c *quoteCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		ref, err := parseRate("reference", c.reference)
		if err != nil {
			return err
		}
		spread, err := parseRate("spread", c.spread)
		if err != nil {
			return err
		}
		q, err := a.books.Quote(ref, spread)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "buy  %s\nsell %s\n", q.BuyRate.StringFixed(4), q.SellRate.StringFixed(4))
		if c.currency != "" {
			p := a.books.Position(c.currency)
			fmt.Fprintf(a.out, "position %s, average cost %s, cost %s\n",
				p.Units, p.AverageCost.StringFixed(4), p.Cost(a.books.LocalCurrency()))
		}
		return nil
	})
}

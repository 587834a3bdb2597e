package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/warp/trade-ledger/bank"
)

type transferCmd struct {
	from    string
	to      string
	amount  string
	concept string
}

func (*transferCmd) Name() string     { return "transfer" }
func (*transferCmd) Synopsis() string { return "move funds between two accounts of the same currency" }
func (*transferCmd) Usage() string {
	return `ledger transfer -from <account> -to <account> -amount <amount> [-concept <text>]
`
}

func (c *transferCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "Source account.")
	f.StringVar(&c.to, "to", "", "Destination account.")
	f.StringVar(&c.amount, "amount", "", "Amount in the accounts' currency.")
	f.StringVar(&c.concept, "concept", "transfer", "Description.")
}

func (c *transferCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		src, err := a.books.Account(bank.AccountID(c.from))
		if err != nil {
			return err
		}
		amt, err := a.amount("amount", c.amount, src.Currency)
		if err != nil {
			return err
		}
		pair, err := a.books.Transfer(ctx, src.ID, bank.AccountID(c.to), amt, c.concept)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s -> %s  %s  (%s)\n", pair.Out.AccountID, pair.In.AccountID, pair.Out.Amount, pair.Out.Reference)
		return nil
	})
}

// movementCmd is both "income" and "expense".
type movementCmd struct {
	name    string
	account string
	amount  string
	concept string
}

func (c *movementCmd) Name() string { return c.name }
func (c *movementCmd) Synopsis() string {
	if c.name == "income" {
		return "credit an account"
	}
	return "debit an account"
}
func (c *movementCmd) Usage() string {
	return fmt.Sprintf("ledger %s -account <account> -amount <amount> [-concept <text>]\n", c.name)
}

func (c *movementCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", string(bank.Operativa), "Account.")
	f.StringVar(&c.amount, "amount", "", "Amount in the account's currency.")
	f.StringVar(&c.concept, "concept", c.name, "Description.")
}

func (c *movementCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		acc, err := a.books.Account(bank.AccountID(c.account))
		if err != nil {
			return err
		}
		amt, err := a.amount("amount", c.amount, acc.Currency)
		if err != nil {
			return err
		}
		var m bank.Movement
		if c.name == "income" {
			m, err = a.books.RecordIncome(ctx, acc.ID, amt, c.concept)
		} else {
			m, err = a.books.RecordExpense(ctx, acc.ID, amt, c.concept)
		}
		if err != nil {
			return err
		}
		after, err := a.books.Account(acc.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s %s %s  capital %s\n", m.AccountID, m.Direction, m.Amount, after.CapitalActual)
		return nil
	})
}

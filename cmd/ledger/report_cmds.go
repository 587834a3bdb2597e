package main

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/warp/trade-ledger/bank"
	"github.com/warp/trade-ledger/trade"
)

type accountsCmd struct{}

func (*accountsCmd) Name() string     { return "accounts" }
func (*accountsCmd) Synopsis() string { return "list the seven accounts and their counters" }
func (*accountsCmd) Usage() string    { return "ledger accounts\n" }
func (*accountsCmd) SetFlags(*flag.FlagSet) {}

func (*accountsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "account\tcapital\tingresos\tgastos\ttransferencias\tpor cobrar\t")
		for _, acc := range a.books.Accounts() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t\n", acc.ID, acc.CapitalActual,
				acc.HistoricoIngresos, acc.HistoricoGastos, acc.HistoricoTransferencias, acc.PorCobrar)
		}
		return w.Flush()
	})
}

type lotsCmd struct{}

func (*lotsCmd) Name() string     { return "lots" }
func (*lotsCmd) Synopsis() string { return "list inventory lots in FIFO order" }
func (*lotsCmd) Usage() string    { return "ledger lots\n" }
func (*lotsCmd) SetFlags(*flag.FlagSet) {}

func (*lotsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "lot\tsupplier\tcreated\toriginal\tsold\tremaining\tunit cost\ttransport\t")
		for _, l := range a.books.Lots() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\t\n", l.ID, l.SupplierName,
				l.CreatedAt.Format("2006-01-02"), l.OriginalQuantity, l.QuantitySold,
				l.QuantityRemaining, l.UnitCost, l.TransportCost)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		units, value := a.books.StockOnHand()
		fmt.Fprintf(a.out, "on hand: %d units, %s\n", units, value)
		return nil
	})
}

type movementsCmd struct {
	account   string
	reference string
}

func (*movementsCmd) Name() string     { return "movements" }
func (*movementsCmd) Synopsis() string { return "print the movement log" }
func (*movementsCmd) Usage() string {
	return "ledger movements [-account <account>] [-ref <sale/order/exchange id>]\n"
}

func (c *movementsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Only this account.")
	f.StringVar(&c.reference, "ref", "", "Only movements tagged with this reference.")
}

func (c *movementsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "seq\tat\taccount\tkind\tamount\tconcept\treference\t")
		for _, m := range a.books.Movements(trade.MovementFilter{
			Account:   bank.AccountID(c.account),
			Reference: c.reference,
		}) {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t\n", m.Seq, m.At.Format("2006-01-02 15:04"),
				m.AccountID, m.Kind, m.Amount, m.Concept, m.Reference)
		}
		return w.Flush()
	})
}

type auditCmd struct{}

func (*auditCmd) Name() string     { return "audit" }
func (*auditCmd) Synopsis() string { return "replay the movement log and check every invariant" }
func (*auditCmd) Usage() string    { return "ledger audit\n" }
func (*auditCmd) SetFlags(*flag.FlagSet) {}

func (*auditCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		if err := a.books.Audit(); err != nil {
			return fmt.Errorf("audit failed:\n%w", err)
		}
		fmt.Fprintf(a.out, "ok: %d movements, %d sales, %d purchase orders\n",
			len(a.books.Movements(trade.MovementFilter{})), len(a.books.Sales()), len(a.books.PurchaseOrders()))
		return nil
	})
}

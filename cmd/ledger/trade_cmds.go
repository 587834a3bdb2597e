package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/warp/trade-ledger/bank"
	"github.com/warp/trade-ledger/trade"
)

// =============================================================================
// PURCHASE ORDERS
// =============================================================================

type purchaseCmd struct {
	supplier  string
	qty       int64
	unitCost  string
	transport string
	paid      string
	source    string
}

func (*purchaseCmd) Name() string     { return "purchase" }
func (*purchaseCmd) Synopsis() string { return "create a purchase order and its inventory lot" }
func (*purchaseCmd) Usage() string {
	return `ledger purchase -supplier <name> -qty <n> -unit-cost <amount> [-transport <amount>] [-paid <amount> -from <account>]

  Registers a supplier order, adds one lot with the ordered quantity, and
  pays the initial amount (if any) from the source account.
`
}

func (c *purchaseCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.supplier, "supplier", "", "Supplier name.")
	f.Int64Var(&c.qty, "qty", 0, "Units ordered.")
	f.StringVar(&c.unitCost, "unit-cost", "", "Cost per unit, in local currency.")
	f.StringVar(&c.transport, "transport", "", "Transport cost for the whole lot.")
	f.StringVar(&c.paid, "paid", "", "Initial payment.")
	f.StringVar(&c.source, "from", string(bank.Operativa), "Account paying the supplier.")
}

func (c *purchaseCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		unit, err := a.amount("unit-cost", c.unitCost, "")
		if err != nil {
			return err
		}
		transport, err := a.amount("transport", c.transport, "")
		if err != nil {
			return err
		}
		paid, err := a.amount("paid", c.paid, "")
		if err != nil {
			return err
		}
		po, err := a.books.CreatePurchaseOrder(ctx, trade.PurchaseOrderInput{
			Supplier:       c.supplier,
			Quantity:       c.qty,
			UnitCost:       unit,
			TransportCost:  transport,
			InitialPayment: paid,
			SourceAccount:  bank.AccountID(c.source),
		})
		if err != nil {
			return err
		}
		printOrder(a, po)
		return nil
	})
}

type payOrderCmd struct {
	id     string
	amount string
	source string
}

func (*payOrderCmd) Name() string     { return "pay-order" }
func (*payOrderCmd) Synopsis() string { return "pay an installment on a purchase order" }
func (*payOrderCmd) Usage() string {
	return `ledger pay-order -id <order> -amount <amount> [-from <account>]

  Amounts above what is owed are clamped to the remaining balance.
`
}

func (c *payOrderCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Purchase order id.")
	f.StringVar(&c.amount, "amount", "", "Installment amount.")
	f.StringVar(&c.source, "from", string(bank.Operativa), "Account paying the supplier.")
}

func (c *payOrderCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		amt, err := a.amount("amount", c.amount, "")
		if err != nil {
			return err
		}
		po, err := a.books.PayPurchaseOrderInstallment(ctx, c.id, amt, bank.AccountID(c.source))
		if err != nil {
			return err
		}
		printOrder(a, po)
		return nil
	})
}

type transportCmd struct {
	id     string
	amount string
	source string
}

func (*transportCmd) Name() string     { return "transport" }
func (*transportCmd) Synopsis() string { return "add a transport charge to an order's lot" }
func (*transportCmd) Usage() string {
	return `ledger transport -id <order> -amount <amount> [-from <account>]
`
}

func (c *transportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Purchase order id.")
	f.StringVar(&c.amount, "amount", "", "Transport charge.")
	f.StringVar(&c.source, "from", string(bank.Operativa), "Account paying the carrier.")
}

func (c *transportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		amt, err := a.amount("amount", c.amount, "")
		if err != nil {
			return err
		}
		po, err := a.books.AddLotTransport(ctx, c.id, amt, bank.AccountID(c.source))
		if err != nil {
			return err
		}
		printOrder(a, po)
		return nil
	})
}

func printOrder(a *app, po *trade.PurchaseOrder) {
	fmt.Fprintf(a.out, "order      %s\n", po.ID)
	fmt.Fprintf(a.out, "supplier   %s\n", po.SupplierName)
	fmt.Fprintf(a.out, "lot        %s (%d units @ %s)\n", po.LotID, po.Quantity, po.UnitCost)
	fmt.Fprintf(a.out, "total      %s\n", po.Total)
	if po.Surcharges.IsPositive() {
		fmt.Fprintf(a.out, "surcharges %s\n", po.Surcharges)
	}
	fmt.Fprintf(a.out, "paid       %s\n", po.AmountPaid)
	fmt.Fprintf(a.out, "remaining  %s (%s)\n", po.AmountRemaining, po.PaymentState)
}

// =============================================================================
// SALES
// =============================================================================

type saleCmd struct {
	client  string
	qty     int64
	price   string
	freight string
	paid    string
}

func (*saleCmd) Name() string     { return "sale" }
func (*saleCmd) Synopsis() string { return "sell stock to a client" }
func (*saleCmd) Usage() string {
	return `ledger sale -client <name> -qty <n> -price <amount> [-freight <amount>] [-paid <amount>]

  Allocates stock oldest lot first and splits the total into cost, freight
  and profit. Only the paid fraction is posted to costos, fletes and
  ganancias; the rest follows with pay-sale.
`
}

func (c *saleCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.client, "client", "", "Client name.")
	f.Int64Var(&c.qty, "qty", 0, "Units sold.")
	f.StringVar(&c.price, "price", "", "Sale price per unit.")
	f.StringVar(&c.freight, "freight", "", "Freight charged per unit.")
	f.StringVar(&c.paid, "paid", "", "Amount paid up front.")
}

func (c *saleCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		price, err := a.amount("price", c.price, "")
		if err != nil {
			return err
		}
		freight, err := a.amount("freight", c.freight, "")
		if err != nil {
			return err
		}
		paid, err := a.amount("paid", c.paid, "")
		if err != nil {
			return err
		}
		sale, err := a.books.CreateSale(ctx, trade.SaleInput{
			Client:           c.client,
			Quantity:         c.qty,
			UnitSalePrice:    price,
			UnitFreightPrice: freight,
			AmountPaid:       paid,
		})
		if err != nil {
			return err
		}
		printSale(a, sale)
		return nil
	})
}

type paySaleCmd struct {
	id     string
	amount string
}

func (*paySaleCmd) Name() string     { return "pay-sale" }
func (*paySaleCmd) Synopsis() string { return "record a client installment on a sale" }
func (*paySaleCmd) Usage() string {
	return `ledger pay-sale -id <sale> -amount <amount>
`
}

func (c *paySaleCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "Sale id.")
	f.StringVar(&c.amount, "amount", "", "Installment amount.")
}

func (c *paySaleCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app) error {
		amt, err := a.amount("amount", c.amount, "")
		if err != nil {
			return err
		}
		sale, err := a.books.PaySaleInstallment(ctx, c.id, amt)
		if err != nil {
			return err
		}
		printSale(a, sale)
		return nil
	})
}

func printSale(a *app, s *trade.Sale) {
	fmt.Fprintf(a.out, "sale       %s\n", s.ID)
	fmt.Fprintf(a.out, "client     %s\n", s.ClientName)
	fmt.Fprintf(a.out, "quantity   %d @ %s\n", s.Quantity, s.UnitSalePrice)
	fmt.Fprintf(a.out, "total      %s\n", s.Total)
	fmt.Fprintf(a.out, "cost       %s (recognized %s)\n", s.Distribution.Cost, s.Recognized.Cost)
	fmt.Fprintf(a.out, "freight    %s (recognized %s)\n", s.Distribution.Freight, s.Recognized.Freight)
	fmt.Fprintf(a.out, "profit     %s (recognized %s)\n", s.Distribution.Profit, s.Recognized.Profit)
	fmt.Fprintf(a.out, "paid       %s\n", s.AmountPaid)
	fmt.Fprintf(a.out, "remaining  %s (%s)\n", s.AmountRemaining, s.PaymentState)
	for _, al := range s.Allocations {
		fmt.Fprintf(a.out, "  lot %s: %d @ %s\n", al.LotID, al.Quantity, al.UnitCost)
	}
}

/*
sale.go - Sales and sale installments

FLOW (CreateSale):
  0. Validate every input that does not depend on stock
  1. Plan the FIFO allocation (read-only; InsufficientStock touches nothing)
  2. Distribute the total into cost / freight / profit
  3. Open the payment schedule with the initial payment
  4. Commit the allocation to the lots
  5. Book the full split as receivable, recognize the paid portion
  6. Update the client aggregate

  Steps 4-6 run on the staged state, so a failure in 5 or a failed save
  discards the lot changes too. A loss is booked with bank.Ledger.Loss and
  never rejects the sale.

FLOW (PaySaleInstallment):
  recognized(newPaid) - recognized(oldPaid) is posted per component, which
  makes the sum of any sequence of installments equal to one payment of the
  same total.
*/
package trade

import (
	"context"
	"strings"
	"time"

	"github.com/warp/trade-ledger/domain"
	"github.com/warp/trade-ledger/inventory"
	"github.com/warp/trade-ledger/money"
	"github.com/warp/trade-ledger/settlement"
)

// Sale is one sale to a client.
type Sale struct {
	ID               string       `json:"id"`
	Seq              int64        `json:"seq"`
	CreatedAt        time.Time    `json:"created_at"`
	ClientName       string       `json:"client_name"`
	Quantity         int64        `json:"quantity"`
	UnitSalePrice    money.Amount `json:"unit_sale_price"`
	UnitFreightPrice money.Amount `json:"unit_freight_price"`
	Total            money.Amount `json:"total"`

	Distribution Distribution `json:"distribution"`
	// Recognized is the part of Distribution already posted to capital.
	Recognized Distribution `json:"recognized"`

	AmountPaid      money.Amount     `json:"amount_paid"`
	AmountRemaining money.Amount     `json:"amount_remaining"`
	PaymentState    settlement.State `json:"payment_state"`

	Allocations []inventory.Allocation `json:"allocations"`
	Payment     settlement.Schedule    `json:"payment"`
}

func (s Sale) clone() Sale {
	s.Allocations = append([]inventory.Allocation(nil), s.Allocations...)
	s.Payment = s.Payment.Clone()
	return s
}

func (s *Sale) sync() {
	s.AmountPaid = s.Payment.Paid
	s.AmountRemaining = s.Payment.Remaining()
	s.PaymentState = s.Payment.State
}

// SaleInput describes a new sale. Amounts without a currency are taken to
// be in the local currency.
type SaleInput struct {
	Client           string
	Quantity         int64
	UnitSalePrice    money.Amount
	UnitFreightPrice money.Amount
	AmountPaid       money.Amount
}

// CreateSale allocates stock FIFO, splits the proceeds and recognizes the
// paid portion on costos, fletes and ganancias.
func (b *Books) CreateSale(ctx context.Context, in SaleInput) (*Sale, error) {
	if strings.TrimSpace(in.Client) == "" {
		return nil, domain.Invalid("client", "is required")
	}
	price, err := b.localAmount("unit_sale_price", in.UnitSalePrice)
	if err != nil {
		return nil, err
	}
	freight, err := b.localAmount("unit_freight_price", in.UnitFreightPrice)
	if err != nil {
		return nil, err
	}
	paid, err := b.localAmount("amount_paid", in.AmountPaid)
	if err != nil {
		return nil, err
	}
	if err := validateTerms(in.Quantity, price, freight); err != nil {
		return nil, err
	}
	if paid.IsNegative() {
		return nil, domain.Invalid("amount_paid", "must not be negative, got %s", paid.Decimal())
	}

	var out Sale
	err = b.withTx(ctx, "create_sale", func(st *state) error {
		plan, err := st.lots.Plan(in.Quantity)
		if err != nil {
			return err
		}
		total, dist, err := Distribute(in.Quantity, price, freight, plan.RealCost)
		if err != nil {
			return err
		}
		now := b.now()
		schedule, _, err := settlement.Open(total, paid, b.epsilon, now)
		if err != nil {
			return err
		}
		if err := st.lots.Commit(plan); err != nil {
			return err
		}

		sale := &Sale{
			ID:               b.newID(),
			Seq:              st.nextSeq(),
			CreatedAt:        now,
			ClientName:       strings.TrimSpace(in.Client),
			Quantity:         in.Quantity,
			UnitSalePrice:    price,
			UnitFreightPrice: freight,
			Total:            total,
			Distribution:     dist,
			Recognized:       recognizedAt(dist, schedule),
			Allocations:      plan.Allocations,
			Payment:          schedule,
		}
		sale.sync()

		if err := book(st.bank, dist); err != nil {
			return err
		}
		if err := recognize(st.bank, sale.Recognized, sale.ID); err != nil {
			return err
		}

		if err := touch(st.clients, KindClient, sale.ClientName, b.local, now).
			transact(total, sale.AmountRemaining); err != nil {
			return err
		}
		st.sales[sale.ID] = sale
		out = sale.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.log.Info().
		Str("sale", out.ID).
		Str("client", out.ClientName).
		Int64("quantity", out.Quantity).
		Str("total", out.Total.String()).
		Str("profit", out.Distribution.Profit.String()).
		Str("state", string(out.PaymentState)).
		Msg("sale created")
	return &out, nil
}

// PaySaleInstallment applies a client payment. Amounts beyond what is owed
// are clamped; a settled sale rejects further installments.
func (b *Books) PaySaleInstallment(ctx context.Context, saleID string, amount money.Amount) (*Sale, error) {
	amount, err := b.localAmount("amount", amount)
	if err != nil {
		return nil, err
	}

	var out Sale
	err = b.withTx(ctx, "pay_sale", func(st *state) error {
		sale, ok := st.sales[saleID]
		if !ok {
			return &domain.NotFoundError{Kind: "sale", ID: saleID}
		}
		now := b.now()
		owedBefore := sale.Payment.Remaining()
		if _, err := sale.Payment.Pay(amount, now); err != nil {
			return err
		}
		recognized := recognizedAt(sale.Distribution, sale.Payment)
		if err := recognize(st.bank, recognized.Sub(sale.Recognized), sale.ID); err != nil {
			return err
		}
		sale.Recognized = recognized
		sale.sync()

		client := touch(st.clients, KindClient, sale.ClientName, b.local, now)
		client.AmountOwed = client.AmountOwed.Sub(owedBefore.Sub(sale.AmountRemaining))
		out = sale.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.log.Info().
		Str("sale", out.ID).
		Str("paid", out.AmountPaid.String()).
		Str("remaining", out.AmountRemaining.String()).
		Str("state", string(out.PaymentState)).
		Msg("sale installment applied")
	return &out, nil
}

// localAmount defaults an amount to the local currency and rejects others.
func (b *Books) localAmount(field string, a money.Amount) (money.Amount, error) {
	if a.Currency == "" {
		a.Currency = b.local
	}
	if a.Currency != b.local {
		return a, domain.Invalid(field, "currency %s, want %s", a.Currency, b.local)
	}
	return a, nil
}

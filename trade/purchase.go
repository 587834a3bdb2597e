package trade

import (
	"context"
	"strings"
	"time"

	"github.com/warp/trade-ledger/bank"
	"github.com/warp/trade-ledger/domain"
	"github.com/warp/trade-ledger/inventory"
	"github.com/warp/trade-ledger/money"
	"github.com/warp/trade-ledger/settlement"
)

// =============================================================================
// PURCHASE ORDER
// =============================================================================

// PurchaseOrder is a supplier order; creating it adds exactly one lot.
type PurchaseOrder struct {
	ID            string       `json:"id"`
	Seq           int64        `json:"seq"`
	CreatedAt     time.Time    `json:"created_at"`
	SupplierName  string       `json:"supplier_name"`
	LotID         string       `json:"lot_id"`
	Quantity      int64        `json:"quantity"`
	UnitCost      money.Amount `json:"unit_cost"`
	TransportCost money.Amount `json:"transport_cost"`
	// Surcharges is transport added after creation and paid on the spot.
	Surcharges money.Amount `json:"surcharges"`
	Total      money.Amount `json:"total"`

	AmountPaid      money.Amount        `json:"amount_paid"`
	AmountRemaining money.Amount        `json:"amount_remaining"`
	PaymentState    settlement.State    `json:"payment_state"`
	Payment         settlement.Schedule `json:"payment"`
}

func (o PurchaseOrder) clone() PurchaseOrder {
	o.Payment = o.Payment.Clone()
	return o
}

func (o *PurchaseOrder) sync() {
	o.AmountPaid = o.Payment.Paid
	o.AmountRemaining = o.Payment.Remaining()
	o.PaymentState = o.Payment.State
}

// PurchaseOrderInput describes a new order. SourceAccount defaults to
// operativa when an initial payment is given.
type PurchaseOrderInput struct {
	Supplier       string
	Quantity       int64
	UnitCost       money.Amount
	TransportCost  money.Amount
	InitialPayment money.Amount
	SourceAccount  bank.AccountID
}

// CreatePurchaseOrder registers an order, adds its lot, and pays the initial
// amount (if any) from the source account.
func (b *Books) CreatePurchaseOrder(ctx context.Context, in PurchaseOrderInput) (*PurchaseOrder, error) {
	unit, err := b.localAmount("unit_cost", in.UnitCost)
	if err != nil {
		return nil, err
	}
	transport, err := b.localAmount("transport_cost", in.TransportCost)
	if err != nil {
		return nil, err
	}
	initial, err := b.localAmount("initial_payment", in.InitialPayment)
	if err != nil {
		return nil, err
	}
	source := in.SourceAccount
	if source == "" {
		source = bank.Operativa
	}

	var out PurchaseOrder
	err = b.withTx(ctx, "create_purchase_order", func(st *state) error {
		id := b.newID()
		lot, err := st.lots.AddLot(inventory.LotInput{
			SupplierName:    strings.TrimSpace(in.Supplier),
			PurchaseOrderID: id,
			Quantity:        in.Quantity,
			UnitCost:        unit,
			TransportCost:   transport,
		})
		if err != nil {
			return err
		}
		now := b.now()
		total, ok := unit.MulChecked(in.Quantity)
		if ok {
			total, ok = total.AddChecked(transport)
		}
		if !ok {
			return domain.Invalid("quantity", "order total of %d units at %s is out of range", in.Quantity, unit.Decimal())
		}
		schedule, step, err := settlement.Open(total, initial, b.epsilon, now)
		if err != nil {
			return err
		}
		if step.Accepted.IsPositive() {
			if _, err := st.bank.Expense(source, step.Accepted, "purchase order payment", id); err != nil {
				return err
			}
		}

		order := &PurchaseOrder{
			ID:            id,
			Seq:           st.nextSeq(),
			CreatedAt:     now,
			SupplierName:  lot.SupplierName,
			LotID:         lot.ID,
			Quantity:      in.Quantity,
			UnitCost:      unit,
			TransportCost: transport,
			Surcharges:    money.Zero(b.local),
			Total:         total,
			Payment:       schedule,
		}
		order.sync()

		if err := touch(st.suppliers, KindSupplier, order.SupplierName, b.local, now).
			transact(total, order.AmountRemaining); err != nil {
			return err
		}
		st.orders[id] = order
		out = order.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.log.Info().
		Str("order", out.ID).
		Str("supplier", out.SupplierName).
		Int64("quantity", out.Quantity).
		Str("total", out.Total.String()).
		Str("paid", out.AmountPaid.String()).
		Msg("purchase order created")
	return &out, nil
}

// PayPurchaseOrderInstallment pays a supplier from sourceAccount, clamped to
// what is owed.
func (b *Books) PayPurchaseOrderInstallment(ctx context.Context, orderID string, amount money.Amount, sourceAccount bank.AccountID) (*PurchaseOrder, error) {
	amount, err := b.localAmount("amount", amount)
	if err != nil {
		return nil, err
	}
	if sourceAccount == "" {
		sourceAccount = bank.Operativa
	}

	var out PurchaseOrder
	err = b.withTx(ctx, "pay_purchase_order", func(st *state) error {
		order, ok := st.orders[orderID]
		if !ok {
			return &domain.NotFoundError{Kind: "purchase order", ID: orderID}
		}
		now := b.now()
		owedBefore := order.Payment.Remaining()
		step, err := order.Payment.Pay(amount, now)
		if err != nil {
			return err
		}
		if _, err := st.bank.Expense(sourceAccount, step.Accepted, "purchase order payment", order.ID); err != nil {
			return err
		}
		order.sync()

		supplier := touch(st.suppliers, KindSupplier, order.SupplierName, b.local, now)
		supplier.AmountOwed = supplier.AmountOwed.Sub(owedBefore.Sub(order.AmountRemaining))
		out = order.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.log.Info().
		Str("order", out.ID).
		Str("source", string(sourceAccount)).
		Str("remaining", out.AmountRemaining.String()).
		Str("state", string(out.PaymentState)).
		Msg("purchase order installment applied")
	return &out, nil
}

// AddLotTransport adds a transport charge to an order's lot after the fact
// and pays it immediately from sourceAccount.
func (b *Books) AddLotTransport(ctx context.Context, orderID string, amount money.Amount, sourceAccount bank.AccountID) (*PurchaseOrder, error) {
	amount, err := b.localAmount("amount", amount)
	if err != nil {
		return nil, err
	}
	if sourceAccount == "" {
		sourceAccount = bank.Operativa
	}

	var out PurchaseOrder
	err = b.withTx(ctx, "add_lot_transport", func(st *state) error {
		order, ok := st.orders[orderID]
		if !ok {
			return &domain.NotFoundError{Kind: "purchase order", ID: orderID}
		}
		if _, err := st.lots.AddTransport(order.LotID, amount); err != nil {
			return err
		}
		if _, err := st.bank.Expense(sourceAccount, amount, "lot transport", order.ID); err != nil {
			return err
		}
		surcharges, ok := order.Surcharges.AddChecked(amount)
		if !ok {
			return domain.Invalid("amount", "order surcharges are out of range")
		}
		order.Surcharges = surcharges
		supplier := touch(st.suppliers, KindSupplier, order.SupplierName, b.local, b.now())
		business, ok := supplier.TotalBusiness.AddChecked(amount)
		if !ok {
			return domain.Invalid("amount", "supplier %q: total business is out of range", supplier.Name)
		}
		supplier.TotalBusiness = business
		out = order.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.log.Info().Str("order", out.ID).Str("amount", amount.String()).Msg("lot transport added")
	return &out, nil
}

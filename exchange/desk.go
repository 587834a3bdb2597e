package exchange

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/trade-ledger/bank"
	"github.com/warp/trade-ledger/domain"
	"github.com/warp/trade-ledger/money"
)

// =============================================================================
// OPERATION
// =============================================================================

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Operation is one committed desk conversion.
type Operation struct {
	ID                string          `json:"id"`
	Seq               int64           `json:"seq"`
	At                time.Time       `json:"at"`
	Side              Side            `json:"side"`
	Vault             bank.AccountID  `json:"vault"`
	AmountForeign     money.Amount    `json:"amount_foreign"`
	Rate              decimal.Decimal `json:"rate"`
	AmountLocal       money.Amount    `json:"amount_local"`
	AverageCostBefore decimal.Decimal `json:"average_cost_before"`
	AverageCostAfter  decimal.Decimal `json:"average_cost_after"`
	RealizedProfit    money.Amount    `json:"realized_profit"`
}

// Quote is a buy/sell pair around a reference rate.
type Quote struct {
	Reference decimal.Decimal `json:"reference"`
	Spread    decimal.Decimal `json:"spread"`
	BuyRate   decimal.Decimal `json:"buy_rate"`
	SellRate  decimal.Decimal `json:"sell_rate"`
}

// NewQuote computes buy = ref*(1-spread/2) and sell = ref*(1+spread/2).
func NewQuote(reference, spread decimal.Decimal) (Quote, error) {
	if !reference.IsPositive() {
		return Quote{}, domain.Invalid("reference", "must be positive, got %s", reference)
	}
	two := decimal.NewFromInt(2)
	if spread.IsNegative() || spread.GreaterThanOrEqual(two) {
		return Quote{}, domain.Invalid("spread", "must be in [0, 2), got %s", spread)
	}
	half := spread.Div(two)
	one := decimal.NewFromInt(1)
	return Quote{
		Reference: reference,
		Spread:    spread,
		BuyRate:   reference.Mul(one.Sub(half)),
		SellRate:  reference.Mul(one.Add(half)),
	}, nil
}

// =============================================================================
// DESK
// =============================================================================

// Desk tracks foreign-currency positions and posts conversions through the
// bank primitives. Not safe for concurrent use.
type Desk struct {
	local     string
	positions map[string]Position
	ops       []Operation
	seq       int64

	Clock func() time.Time
	NewID func() string
}

// NewDesk returns a desk whose desk and profit accounts are in local.
func NewDesk(local string) *Desk {
	return &Desk{
		local:     local,
		positions: make(map[string]Position),
		Clock:     time.Now,
		NewID:     uuid.NewString,
	}
}

// Position returns the desk's holding of a currency.
func (d *Desk) Position(currency string) Position {
	if p, ok := d.positions[currency]; ok {
		return p
	}
	return NewPosition(currency)
}

// Positions returns every position the desk has traded, by currency code.
func (d *Desk) Positions() []Position {
	out := make([]Position, 0, len(d.positions))
	for _, p := range d.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

// Operations returns a copy of the history.
func (d *Desk) Operations() []Operation {
	return append([]Operation(nil), d.ops...)
}

// Buy acquires amountForeign at rate: the desk account receives
// amountForeign*rate and the vault gives up amountForeign.
func (d *Desk) Buy(l *bank.Ledger, vault bank.AccountID, amountForeign money.Amount, rate decimal.Decimal) (Operation, error) {
	v, amountForeign, local, err := d.prepare(l, vault, amountForeign, rate)
	if err != nil {
		return Operation{}, err
	}
	if v.CapitalActual.LessThan(amountForeign) {
		return Operation{}, &domain.InsufficientFundsError{
			Account:   string(vault),
			Currency:  v.Currency,
			Available: v.CapitalActual.Minor,
			Requested: amountForeign.Minor,
		}
	}

	op := d.newOp(Buy, vault, amountForeign, rate, local)
	if _, err := l.Expense(vault, amountForeign, "exchange buy", op.ID); err != nil {
		return Operation{}, err
	}
	if _, err := l.Income(bank.CasaCambio, local, "exchange buy", op.ID); err != nil {
		return Operation{}, err
	}

	p := d.Position(amountForeign.Currency)
	op.AverageCostBefore = p.AverageCost
	p = p.bought(amountForeign, rate)
	op.AverageCostAfter = p.AverageCost
	op.RealizedProfit = money.Zero(d.local)
	return d.commit(op, p), nil
}

// Sell disposes of amountForeign at rate: the desk account pays
// amountForeign*rate, the vault receives amountForeign, and the profit
// account is credited (or debited, for a loss) with
// (rate - averageCost) * amountForeign.
func (d *Desk) Sell(l *bank.Ledger, vault bank.AccountID, amountForeign money.Amount, rate decimal.Decimal) (Operation, error) {
	_, amountForeign, local, err := d.prepare(l, vault, amountForeign, rate)
	if err != nil {
		return Operation{}, err
	}

	p := d.Position(amountForeign.Currency)
	if p.Units.LessThan(amountForeign) {
		return Operation{}, &domain.InsufficientStockError{
			What:      amountForeign.Currency,
			Available: p.Units.Minor,
			Requested: amountForeign.Minor,
		}
	}
	desk, err := l.Account(bank.CasaCambio)
	if err != nil {
		return Operation{}, err
	}
	if desk.CapitalActual.LessThan(local) {
		return Operation{}, &domain.InsufficientFundsError{
			Account:   string(bank.CasaCambio),
			Currency:  desk.Currency,
			Available: desk.CapitalActual.Minor,
			Requested: local.Minor,
		}
	}
	profit, ok := money.FromDecimalChecked(rate.Sub(p.AverageCost).Mul(amountForeign.Decimal()), d.local)
	if !ok {
		return Operation{}, domain.Invalid("amount", "realized profit of %s at %s is out of range", amountForeign.Decimal(), rate)
	}

	op := d.newOp(Sell, vault, amountForeign, rate, local)
	if _, err := l.Expense(bank.CasaCambio, local, "exchange sell", op.ID); err != nil {
		return Operation{}, err
	}
	if _, err := l.Income(vault, amountForeign, "exchange sell", op.ID); err != nil {
		return Operation{}, err
	}
	switch {
	case profit.IsPositive():
		_, err = l.Income(bank.Ganancias, profit, "exchange spread", op.ID)
	case profit.IsNegative():
		_, err = l.Loss(bank.Ganancias, profit.Neg(), "exchange loss", op.ID)
	}
	if err != nil {
		return Operation{}, err
	}

	op.AverageCostBefore = p.AverageCost
	p = p.sold(amountForeign)
	op.AverageCostAfter = p.AverageCost
	op.RealizedProfit = profit
	return d.commit(op, p), nil
}

func (d *Desk) prepare(l *bank.Ledger, vault bank.AccountID, amountForeign money.Amount, rate decimal.Decimal) (bank.Account, money.Amount, money.Amount, error) {
	v, err := l.Account(vault)
	if err != nil {
		return bank.Account{}, amountForeign, money.Amount{}, err
	}
	if v.Currency == d.local {
		return bank.Account{}, amountForeign, money.Amount{}, domain.Invalid("vault", "%s is not a foreign-currency vault", vault)
	}
	if amountForeign.Currency == "" {
		amountForeign.Currency = v.Currency
	}
	if amountForeign.Currency != v.Currency {
		return bank.Account{}, amountForeign, money.Amount{}, domain.Invalid("amount", "currency %s does not match vault %s (%s)", amountForeign.Currency, vault, v.Currency)
	}
	if !amountForeign.IsPositive() {
		return bank.Account{}, amountForeign, money.Amount{}, domain.Invalid("amount", "must be positive, got %s", amountForeign.Decimal())
	}
	if !rate.IsPositive() {
		return bank.Account{}, amountForeign, money.Amount{}, domain.Invalid("rate", "must be positive, got %s", rate)
	}
	local, ok := money.FromDecimalChecked(amountForeign.Decimal().Mul(rate), d.local)
	if !ok {
		return bank.Account{}, amountForeign, money.Amount{}, domain.Invalid("amount", "%s at %s is out of range in %s", amountForeign.Decimal(), rate, d.local)
	}
	if !local.IsPositive() {
		return bank.Account{}, amountForeign, money.Amount{}, domain.Invalid("amount", "%s at %s rounds to zero %s", amountForeign.Decimal(), rate, d.local)
	}
	return v, amountForeign, local, nil
}

func (d *Desk) newOp(side Side, vault bank.AccountID, amountForeign money.Amount, rate decimal.Decimal, local money.Amount) Operation {
	return Operation{
		ID:            d.NewID(),
		At:            d.Clock().UTC(),
		Side:          side,
		Vault:         vault,
		AmountForeign: amountForeign,
		Rate:          rate,
		AmountLocal:   local,
	}
}

func (d *Desk) commit(op Operation, p Position) Operation {
	d.seq++
	op.Seq = d.seq
	d.positions[p.Currency] = p
	d.ops = append(d.ops, op)
	return op
}

// =============================================================================
// STATE
// =============================================================================

// State is the serializable form of a Desk.
type State struct {
	Local      string      `json:"local"`
	Positions  []Position  `json:"positions"`
	Operations []Operation `json:"operations"`
	Seq        int64       `json:"seq"`
}

func (d *Desk) Export() State {
	return State{Local: d.local, Positions: d.Positions(), Operations: d.Operations(), Seq: d.seq}
}

// Restore rebuilds a desk from exported state.
func Restore(s State, clock func() time.Time, newID func() string) *Desk {
	d := NewDesk(s.Local)
	for _, p := range s.Positions {
		d.positions[p.Currency] = p
	}
	d.ops = append([]Operation(nil), s.Operations...)
	d.seq = s.Seq
	if clock != nil {
		d.Clock = clock
	}
	if newID != nil {
		d.NewID = newID
	}
	return d
}

func (d *Desk) Clone() *Desk {
	return Restore(d.Export(), d.Clock, d.NewID)
}

// Verify checks the incrementally maintained positions against a rebuild
// from the operation history.
func (d *Desk) Verify() error {
	rebuilt := Rebuild(d.ops)
	for cur, p := range d.positions {
		r := rebuilt[cur]
		if r.Units.Minor != p.Units.Minor || !r.AverageCost.Equal(p.AverageCost) {
			return fmt.Errorf("position %s diverges from history: units %d avg %s, rebuilt %d avg %s",
				cur, p.Units.Minor, p.AverageCost, r.Units.Minor, r.AverageCost)
		}
	}
	return nil
}

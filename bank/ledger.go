/*
ledger.go - Income / Expense / Transfer primitives and the movement log

PURPOSE:
  The three primitives are the only sanctioned way to change an account
  balance. Every higher-level operation (sales, purchase orders, exchange)
  is composed from them, so the movement log is a complete, replayable
  audit trail.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: movements are never modified or removed
  2. NO PARTIAL EFFECT: a failed primitive leaves accounts and log untouched
  3. TWO-PHASE TRANSFER: both accounts and the funds are validated before
     either side is mutated
  4. Only Loss may take capital below zero

EXAMPLE FLOW:
  ledger.Income(bank.Costos, 60000 MXN, "sale cost", "sale-1")
    costos: capital +600, ingresos +600, log +1 credit
  ledger.Transfer(bank.Costos, bank.Operativa, 10000 MXN, "restock", "")
    costos: capital -100, gastos +100, transferencias +100
    operativa: capital +100, ingresos +100, transferencias +100

SEE ALSO:
  - account.go: Account counters
  - replay.go: independent recomputation from the log
*/
package bank

import (
	"time"

	"github.com/google/uuid"

	"github.com/warp/trade-ledger/domain"
	"github.com/warp/trade-ledger/money"
)

// =============================================================================
// MOVEMENT - One primitive invocation on one account
// =============================================================================

type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

type MovementKind string

const (
	KindIncome      MovementKind = "income"
	KindExpense     MovementKind = "expense"
	KindTransferIn  MovementKind = "transfer_in"
	KindTransferOut MovementKind = "transfer_out"
	KindLoss        MovementKind = "loss"
)

// Movement is an immutable log entry.
type Movement struct {
	ID        string       `json:"id"`
	Seq       int64        `json:"seq"`
	At        time.Time    `json:"at"`
	AccountID AccountID    `json:"account_id"`
	Amount    money.Amount `json:"amount"`
	Direction Direction    `json:"direction"`
	Kind      MovementKind `json:"kind"`
	Concept   string       `json:"concept"`
	Reference string       `json:"reference,omitempty"`
}

// MovementPair is the result of a transfer.
type MovementPair struct {
	Out Movement `json:"out"`
	In  Movement `json:"in"`
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger owns the accounts and the movement log. It is not safe for
// concurrent use; trade.Books serializes access.
type Ledger struct {
	accounts  map[AccountID]*Account
	order     []AccountID
	movements []Movement
	seq       int64

	// Clock stamps movements. Defaults to time.Now.
	Clock func() time.Time
	// NewID generates movement ids. Defaults to uuid.NewString.
	NewID func() string
}

// NewLedger builds a ledger over the given chart.
func NewLedger(chart []Account) *Ledger {
	l := &Ledger{
		accounts: make(map[AccountID]*Account, len(chart)),
		Clock:    time.Now,
		NewID:    uuid.NewString,
	}
	for _, a := range chart {
		acc := a
		l.accounts[a.ID] = &acc
		l.order = append(l.order, a.ID)
	}
	return l
}

// Account returns a copy of an account.
func (l *Ledger) Account(id AccountID) (Account, error) {
	acc, ok := l.accounts[id]
	if !ok {
		return Account{}, &domain.NotFoundError{Kind: "account", ID: string(id)}
	}
	return *acc, nil
}

// Accounts returns copies of every account in chart order.
func (l *Ledger) Accounts() []Account {
	out := make([]Account, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.accounts[id])
	}
	return out
}

// Movements returns a copy of the log.
func (l *Ledger) Movements() []Movement {
	return append([]Movement(nil), l.movements...)
}

// =============================================================================
// PRIMITIVES
// =============================================================================

// Income credits an account. It fails only on invalid input.
func (l *Ledger) Income(id AccountID, amount money.Amount, concept, ref string) (Movement, error) {
	acc, amount, err := l.prepare(id, amount)
	if err != nil {
		return Movement{}, err
	}
	if err := checkRange(id, amount, acc.HistoricoIngresos); err != nil {
		return Movement{}, err
	}
	return l.credit(acc, amount, KindIncome, concept, ref), nil
}

// Expense debits an account. It fails with InsufficientFunds, without side
// effects, when the account's capital is below amount.
func (l *Ledger) Expense(id AccountID, amount money.Amount, concept, ref string) (Movement, error) {
	acc, amount, err := l.prepare(id, amount)
	if err != nil {
		return Movement{}, err
	}
	if err := checkFunds(acc, amount); err != nil {
		return Movement{}, err
	}
	if err := checkRange(id, amount, acc.HistoricoGastos); err != nil {
		return Movement{}, err
	}
	return l.debit(acc, amount, KindExpense, concept, ref), nil
}

// Loss debits an account without a funds check. It records a realized loss
// (a sale below cost, an exchange sold under its average cost), which must be
// booked even when it drives capital negative.
func (l *Ledger) Loss(id AccountID, amount money.Amount, concept, ref string) (Movement, error) {
	acc, amount, err := l.prepare(id, amount)
	if err != nil {
		return Movement{}, err
	}
	if err := checkRange(id, amount, acc.HistoricoGastos); err != nil {
		return Movement{}, err
	}
	return l.debit(acc, amount, KindLoss, concept, ref), nil
}

// Transfer moves capital between two accounts of the same currency.
// Phase one validates both accounts and the funds; phase two mutates.
func (l *Ledger) Transfer(from, to AccountID, amount money.Amount, concept, ref string) (MovementPair, error) {
	if from == to {
		return MovementPair{}, domain.Invalid("to", "cannot transfer %s to itself", from)
	}
	src, amount, err := l.prepare(from, amount)
	if err != nil {
		return MovementPair{}, err
	}
	dst, ok := l.accounts[to]
	if !ok {
		return MovementPair{}, &domain.NotFoundError{Kind: "account", ID: string(to)}
	}
	if dst.Currency != src.Currency {
		return MovementPair{}, domain.Invalid("to", "currency %s does not match %s", dst.Currency, src.Currency)
	}
	if err := checkRange(from, amount, src.HistoricoGastos, src.HistoricoTransferencias); err != nil {
		return MovementPair{}, err
	}
	if err := checkRange(to, amount, dst.HistoricoIngresos, dst.HistoricoTransferencias); err != nil {
		return MovementPair{}, err
	}
	if err := checkFunds(src, amount); err != nil {
		return MovementPair{}, err
	}

	out := l.debit(src, amount, KindTransferOut, concept, ref)
	in := l.credit(dst, amount, KindTransferIn, concept, ref)
	src.HistoricoTransferencias = src.HistoricoTransferencias.Add(amount)
	dst.HistoricoTransferencias = dst.HistoricoTransferencias.Add(amount)
	return MovementPair{Out: out, In: in}, nil
}

// Receivable moves an account's earned-but-uncollected amount by delta.
// It never touches capital or the historical counters.
func (l *Ledger) Receivable(id AccountID, delta money.Amount) error {
	acc, ok := l.accounts[id]
	if !ok {
		return &domain.NotFoundError{Kind: "account", ID: string(id)}
	}
	if delta.Currency != "" && delta.Currency != acc.Currency {
		return domain.Invalid("amount", "currency %s does not match account %s (%s)", delta.Currency, id, acc.Currency)
	}
	acc.PorCobrar.Minor += delta.Minor
	return nil
}

// =============================================================================
// INTERNALS
// =============================================================================

func (l *Ledger) prepare(id AccountID, amount money.Amount) (*Account, money.Amount, error) {
	acc, ok := l.accounts[id]
	if !ok {
		return nil, amount, &domain.NotFoundError{Kind: "account", ID: string(id)}
	}
	if amount.Currency == "" {
		amount.Currency = acc.Currency
	}
	if amount.Currency != acc.Currency {
		return nil, amount, domain.Invalid("amount", "currency %s does not match account %s (%s)", amount.Currency, id, acc.Currency)
	}
	if !amount.IsPositive() {
		return nil, amount, domain.Invalid("amount", "must be positive, got %s", amount.Decimal())
	}
	return acc, amount, nil
}

// checkRange rejects an amount that would wrap one of the given counters.
func checkRange(id AccountID, amount money.Amount, counters ...money.Amount) error {
	for _, c := range counters {
		if _, ok := c.AddChecked(amount); !ok {
			return domain.Invalid("amount", "%s would overflow the counters of %s", amount.Decimal(), id)
		}
	}
	return nil
}

func checkFunds(acc *Account, amount money.Amount) error {
	if acc.CapitalActual.LessThan(amount) {
		return &domain.InsufficientFundsError{
			Account:   string(acc.ID),
			Currency:  acc.Currency,
			Available: acc.CapitalActual.Minor,
			Requested: amount.Minor,
		}
	}
	return nil
}

func (l *Ledger) credit(acc *Account, amount money.Amount, kind MovementKind, concept, ref string) Movement {
	acc.HistoricoIngresos = acc.HistoricoIngresos.Add(amount)
	acc.CapitalActual = acc.CapitalActual.Add(amount)
	return l.record(acc.ID, amount, Credit, kind, concept, ref)
}

func (l *Ledger) debit(acc *Account, amount money.Amount, kind MovementKind, concept, ref string) Movement {
	acc.HistoricoGastos = acc.HistoricoGastos.Add(amount)
	acc.CapitalActual = acc.CapitalActual.Sub(amount)
	return l.record(acc.ID, amount, Debit, kind, concept, ref)
}

func (l *Ledger) record(id AccountID, amount money.Amount, dir Direction, kind MovementKind, concept, ref string) Movement {
	l.seq++
	m := Movement{
		ID:        l.NewID(),
		Seq:       l.seq,
		At:        l.Clock().UTC(),
		AccountID: id,
		Amount:    amount,
		Direction: dir,
		Kind:      kind,
		Concept:   concept,
		Reference: ref,
	}
	l.movements = append(l.movements, m)
	return m
}

// =============================================================================
// STATE - Export / restore / clone
// =============================================================================

// State is the serializable form of a Ledger.
type State struct {
	Accounts  []Account  `json:"accounts"`
	Movements []Movement `json:"movements"`
	Seq       int64      `json:"seq"`
}

// Export returns a deep copy of the ledger state.
func (l *Ledger) Export() State {
	return State{Accounts: l.Accounts(), Movements: l.Movements(), Seq: l.seq}
}

// Restore rebuilds a ledger from exported state, keeping clock and id source.
func Restore(s State, clock func() time.Time, newID func() string) *Ledger {
	l := NewLedger(s.Accounts)
	l.movements = append([]Movement(nil), s.Movements...)
	l.seq = s.Seq
	if clock != nil {
		l.Clock = clock
	}
	if newID != nil {
		l.NewID = newID
	}
	return l
}

// Clone returns an independent copy.
func (l *Ledger) Clone() *Ledger {
	return Restore(l.Export(), l.Clock, l.NewID)
}

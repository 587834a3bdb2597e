/*
Package settlement implements payment settlement for sales and purchase orders.

PURPOSE:
  A sale or order may be paid in installments. Its ledger effect is scaled
  by the fraction paid, and every installment tops up the previously
  recognized amount by a delta - never re-crediting the whole.

STATE MACHINE:
  pending  --pay-->  partial  --pay-->  complete (terminal)
  pending  --pay in full-------------->  complete

  The initial state is derived from the amount paid at creation.

DELTA RULE:
  recognized(paid) = round(component * paid / total)
  delta            = recognized(newPaid) - recognized(oldPaid)

  Because recognized() depends only on the cumulative paid amount, the sum of
  deltas telescopes: two 50% installments post exactly what one 100%
  payment posts, in either order, with no rounding drift.

OVERPAYMENT:
  An installment is clamped to the remaining balance. An installment
  against a complete schedule is rejected with domain.ErrAlreadySettled.

EPSILON:
  A schedule within Epsilon minor units of its total is complete; the
  residual is written off and the component is recognized in full.
*/
package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/trade-ledger/domain"
	"github.com/warp/trade-ledger/money"
)

// =============================================================================
// STATE
// =============================================================================

type State string

const (
	Pending  State = "pending"
	Partial  State = "partial"
	Complete State = "complete"
)

// StateOf classifies a paid amount against a total.
func StateOf(paid, total money.Amount, epsilon int64) State {
	switch {
	case total.Minor-paid.Minor <= epsilon:
		return Complete
	case paid.Minor > 0:
		return Partial
	default:
		return Pending
	}
}

// Fraction is clamp(paid / total, 0, 1).
func Fraction(paid, total money.Amount) decimal.Decimal {
	if total.Minor <= 0 || paid.Minor <= 0 {
		return decimal.Zero
	}
	if paid.Minor >= total.Minor {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(paid.Minor).Div(decimal.NewFromInt(total.Minor))
}

// Recognized is the portion of component earned at a paid level.
func Recognized(component, paid, total money.Amount, epsilon int64) money.Amount {
	if StateOf(paid, total, epsilon) == Complete {
		return component
	}
	if paid.Minor <= 0 {
		return money.Zero(component.Currency)
	}
	return component.Proportion(paid.Minor, total.Minor)
}

// =============================================================================
// SCHEDULE
// =============================================================================

// Installment records one payment applied to a schedule.
type Installment struct {
	Seq       int          `json:"seq"`
	At        time.Time    `json:"at"`
	Requested money.Amount `json:"requested"`
	Accepted  money.Amount `json:"accepted"`
	PaidAfter money.Amount `json:"paid_after"`
}

// Schedule is the payment state of one sale or purchase order.
type Schedule struct {
	Total        money.Amount  `json:"total"`
	Paid         money.Amount  `json:"paid"`
	State        State         `json:"state"`
	Epsilon      int64         `json:"epsilon"`
	Installments []Installment `json:"installments,omitempty"`
}

// Step describes one transition; it is what the caller posts to the ledger.
type Step struct {
	OldPaid  money.Amount
	NewPaid  money.Amount
	Accepted money.Amount
	OldState State
	NewState State
	total    money.Amount
	epsilon  int64
}

// Delta is the additional amount of component to recognize for this step.
func (s Step) Delta(component money.Amount) money.Amount {
	return Recognized(component, s.NewPaid, s.total, s.epsilon).
		Sub(Recognized(component, s.OldPaid, s.total, s.epsilon))
}

// Open starts a schedule with an initial payment, clamped to total.
// The returned step goes from nothing paid to the initial payment.
func Open(total, initial money.Amount, epsilon int64, at time.Time) (Schedule, Step, error) {
	if !total.IsPositive() {
		return Schedule{}, Step{}, domain.Invalid("total", "must be positive, got %s", total.Decimal())
	}
	if initial.Currency == "" {
		initial.Currency = total.Currency
	}
	if initial.Currency != total.Currency {
		return Schedule{}, Step{}, domain.Invalid("amount_paid", "currency %s, want %s", initial.Currency, total.Currency)
	}
	if initial.IsNegative() {
		return Schedule{}, Step{}, domain.Invalid("amount_paid", "must not be negative, got %s", initial.Decimal())
	}
	if epsilon < 0 {
		epsilon = 0
	}

	s := Schedule{
		Total:   total,
		Paid:    money.Zero(total.Currency),
		State:   Pending,
		Epsilon: epsilon,
	}
	step := Step{
		OldPaid:  s.Paid,
		NewPaid:  s.Paid,
		Accepted: money.Zero(total.Currency),
		OldState: Pending,
		NewState: Pending,
		total:    total,
		epsilon:  epsilon,
	}
	if initial.IsZero() {
		s.State = StateOf(s.Paid, total, epsilon)
		step.NewState = s.State
		return s, step, nil
	}
	step, err := s.Pay(initial, at)
	return s, step, err
}

// Remaining is what is still owed; zero once complete.
func (s Schedule) Remaining() money.Amount {
	if s.State == Complete {
		return money.Zero(s.Total.Currency)
	}
	return s.Total.Sub(s.Paid)
}

// Fraction is the paid fraction of the schedule.
func (s Schedule) Fraction() decimal.Decimal {
	if s.State == Complete {
		return decimal.NewFromInt(1)
	}
	return Fraction(s.Paid, s.Total)
}

// Recognized is the portion of component earned so far.
func (s Schedule) Recognized(component money.Amount) money.Amount {
	return Recognized(component, s.Paid, s.Total, s.Epsilon)
}

// Pay applies an installment, clamping it to the remaining balance.
func (s *Schedule) Pay(amount money.Amount, at time.Time) (Step, error) {
	if amount.Currency == "" {
		amount.Currency = s.Total.Currency
	}
	if amount.Currency != s.Total.Currency {
		return Step{}, domain.Invalid("amount", "currency %s, want %s", amount.Currency, s.Total.Currency)
	}
	if !amount.IsPositive() {
		return Step{}, domain.Invalid("amount", "must be positive, got %s", amount.Decimal())
	}
	if s.State == Complete {
		return Step{}, domain.ErrAlreadySettled
	}

	accepted := amount.Min(s.Remaining())
	step := Step{
		OldPaid:  s.Paid,
		NewPaid:  s.Paid.Add(accepted),
		Accepted: accepted,
		OldState: s.State,
		total:    s.Total,
		epsilon:  s.Epsilon,
	}
	s.Paid = step.NewPaid
	s.State = StateOf(s.Paid, s.Total, s.Epsilon)
	step.NewState = s.State
	s.Installments = append(s.Installments, Installment{
		Seq:       len(s.Installments) + 1,
		At:        at.UTC(),
		Requested: amount,
		Accepted:  accepted,
		PaidAfter: s.Paid,
	})
	return step, nil
}

// Clone returns a copy with its own installment slice.
func (s Schedule) Clone() Schedule {
	s.Installments = append([]Installment(nil), s.Installments...)
	return s
}

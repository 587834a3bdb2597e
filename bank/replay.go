package bank

import (
	"fmt"

	"github.com/warp/trade-ledger/money"
)

// Totals are the counters of one account as rebuilt from the log.
type Totals struct {
	Ingresos       money.Amount
	Gastos         money.Amount
	Transferencias money.Amount
}

// Capital is ingresos minus gastos.
func (t Totals) Capital() money.Amount { return t.Ingresos.Sub(t.Gastos) }

// Replay rebuilds per-account totals from a movement log, independently of
// the running counters.
func Replay(movements []Movement) map[AccountID]Totals {
	out := make(map[AccountID]Totals)
	for _, m := range movements {
		t := out[m.AccountID]
		switch m.Direction {
		case Credit:
			t.Ingresos = t.Ingresos.Add(m.Amount)
		case Debit:
			t.Gastos = t.Gastos.Add(m.Amount)
		}
		if m.Kind == KindTransferIn || m.Kind == KindTransferOut {
			t.Transferencias = t.Transferencias.Add(m.Amount)
		}
		out[m.AccountID] = t
	}
	return out
}

// Verify replays the log and checks every account against it, plus the
// capital invariant. It returns the first discrepancy found.
func (l *Ledger) Verify() error {
	replayed := Replay(l.movements)
	var prev int64
	for i, m := range l.movements {
		if m.Seq <= prev {
			return fmt.Errorf("movement %d: sequence %d not increasing", i, m.Seq)
		}
		prev = m.Seq
	}
	for _, id := range l.order {
		acc := l.accounts[id]
		if !acc.Balanced() {
			return fmt.Errorf("account %s: capital %d != ingresos %d - gastos %d",
				id, acc.CapitalActual.Minor, acc.HistoricoIngresos.Minor, acc.HistoricoGastos.Minor)
		}
		t := replayed[id]
		if t.Ingresos.Minor != acc.HistoricoIngresos.Minor ||
			t.Gastos.Minor != acc.HistoricoGastos.Minor ||
			t.Transferencias.Minor != acc.HistoricoTransferencias.Minor {
			return fmt.Errorf("account %s: counters diverge from movement log (replayed ingresos %d gastos %d transferencias %d)",
				id, t.Ingresos.Minor, t.Gastos.Minor, t.Transferencias.Minor)
		}
	}
	return nil
}

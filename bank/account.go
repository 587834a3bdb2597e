/*
Package bank implements the bank account ledger.

PURPOSE:
  Per-account running totals for the fixed chart of seven sub-accounts, plus
  the append-only movement log that records every change to them.

KEY CONCEPTS IN THIS FILE (account.go):
  - Account: spendable capital plus lifetime counters
  - AccountID: the seven well-known account identifiers
  - DefaultChart: the accounts created at bootstrap

INVARIANTS:
  1. CapitalActual == HistoricoIngresos - HistoricoGastos, always
  2. HistoricoIngresos, HistoricoGastos and HistoricoTransferencias never decrease
  3. Accounts are created once and never destroyed

SEE ALSO:
  - ledger.go: Income / Expense / Transfer, the only mutators
  - replay.go: rebuilding the counters from the movement log
*/
package bank

import "github.com/warp/trade-ledger/money"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string

const (
	Costos     AccountID = "costos"      // cost recovery
	Fletes     AccountID = "fletes"      // freight
	Ganancias  AccountID = "ganancias"   // profit
	BovedaUSD  AccountID = "boveda_usd"  // USD vault
	BovedaCNY  AccountID = "boveda_cny"  // CNY vault
	Operativa  AccountID = "operativa"   // operating local-currency account
	CasaCambio AccountID = "casa_cambio" // currency-exchange desk
)

// =============================================================================
// ACCOUNT
// =============================================================================

// Account is one sub-account of the business.
//
// PorCobrar is the portion of earned income that has not been collected yet
// (a sale credited at 40% carries the other 60% here). It sits outside the
// capital invariant: HistoricoIngresos + PorCobrar is the full amount earned.
type Account struct {
	ID       AccountID `json:"id"`
	Name     string    `json:"name"`
	Currency string    `json:"currency"`

	CapitalActual           money.Amount `json:"capital_actual"`
	HistoricoIngresos       money.Amount `json:"historico_ingresos"`
	HistoricoGastos         money.Amount `json:"historico_gastos"`
	HistoricoTransferencias money.Amount `json:"historico_transferencias"`
	PorCobrar               money.Amount `json:"por_cobrar"`
}

// NewAccount returns an account with every counter at zero.
func NewAccount(id AccountID, name, currency string) Account {
	zero := money.Zero(currency)
	return Account{
		ID:                      id,
		Name:                    name,
		Currency:                currency,
		CapitalActual:           zero,
		HistoricoIngresos:       zero,
		HistoricoGastos:         zero,
		HistoricoTransferencias: zero,
		PorCobrar:               zero,
	}
}

// Balanced reports whether the capital invariant holds.
func (a Account) Balanced() bool {
	return a.CapitalActual.Minor == a.HistoricoIngresos.Minor-a.HistoricoGastos.Minor
}

// DefaultChart returns the seven accounts created at bootstrap. local is the
// operating currency (cost, freight, profit, operating and desk accounts).
func DefaultChart(local string) []Account {
	return []Account{
		NewAccount(Costos, "Recuperación de costos", local),
		NewAccount(Fletes, "Fletes", local),
		NewAccount(Ganancias, "Ganancias", local),
		NewAccount(BovedaUSD, "Bóveda USD", "USD"),
		NewAccount(BovedaCNY, "Bóveda CNY", "CNY"),
		NewAccount(Operativa, "Cuenta operativa", local),
		NewAccount(CasaCambio, "Casa de cambio", local),
	}
}

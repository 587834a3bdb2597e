package trade

import (
	"sort"
	"strings"
	"time"

	"github.com/warp/trade-ledger/domain"
	"github.com/warp/trade-ledger/money"
)

// =============================================================================
// PARTY - Client / supplier aggregate
// =============================================================================

type PartyKind string

const (
	KindClient   PartyKind = "client"
	KindSupplier PartyKind = "supplier"
)

// Party is the running aggregate of one client or supplier, created on the
// first transaction naming it.
type Party struct {
	Name          string       `json:"name"`
	Kind          PartyKind    `json:"kind"`
	TotalBusiness money.Amount `json:"total_business"`
	AmountOwed    money.Amount `json:"amount_owed"`
	Transactions  int          `json:"transactions"`
	FirstSeen     time.Time    `json:"first_seen"`
	LastSeen      time.Time    `json:"last_seen"`
}

// partyKey normalizes names so "Acme " and "acme" are one party.
func partyKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// touch returns the party for name, creating it if needed.
func touch(parties map[string]*Party, kind PartyKind, name, currency string, at time.Time) *Party {
	key := partyKey(name)
	p, ok := parties[key]
	if !ok {
		p = &Party{
			Name:          strings.TrimSpace(name),
			Kind:          kind,
			TotalBusiness: money.Zero(currency),
			AmountOwed:    money.Zero(currency),
			FirstSeen:     at,
		}
		parties[key] = p
	}
	p.LastSeen = at
	return p
}

// transact books a new sale or order against the party.
func (p *Party) transact(total, owed money.Amount) error {
	business, ok := p.TotalBusiness.AddChecked(total)
	if !ok {
		return domain.Invalid("total", "%s %q: total business is out of range", p.Kind, p.Name)
	}
	due, ok := p.AmountOwed.AddChecked(owed)
	if !ok {
		return domain.Invalid("total", "%s %q: amount owed is out of range", p.Kind, p.Name)
	}
	p.TotalBusiness, p.AmountOwed = business, due
	p.Transactions++
	return nil
}

func partyList(m map[string]*Party) []Party {
	out := make([]Party, 0, len(m))
	for _, p := range m {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return partyKey(out[i].Name) < partyKey(out[j].Name) })
	return out
}

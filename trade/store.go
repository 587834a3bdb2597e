/*
store.go - Persistence interface for ledger snapshots

PURPOSE:
  Defines the interface between the in-process ledger and its storage
  medium. The whole ledger is persisted as a single snapshot document after
  every committed operation; the store never sees a partial operation.

KEY TYPES:
  Snapshot: every collection needed to rebuild the ledger (accounts, lots,
            orders, sales, clients, suppliers, movement log, exchange history)
  Store:    Load the latest snapshot / Save a new one

CONTRACT:
  - Save is called only with fully committed state.
  - Every snapshot carries a Revision, one above the revision it was built
    on. Save stores it only if the latest stored revision is exactly
    Revision-1 (0 for an empty store); otherwise it returns a
    *domain.ConflictError and stores nothing. This is the serialization
    point for writers in separate processes sharing one store.
  - If Save fails, the operation fails and the in-memory ledger keeps its
    previous state.
  - Load returns (nil, nil) when nothing was ever saved.
  - Stores keep the latest DefaultSnapshotRetention snapshots unless
    configured otherwise; older ones are pruned in the same transaction.

IMPLEMENTATIONS:
  - trade/store/memory.go: In-memory, for tests and development
  - store/sqlite/sqlite.go: SQLite, append-only snapshot history
  - store/postgres/postgres.go: PostgreSQL (pgx), JSONB snapshot history

SEE ALSO:
  - books.go: withTx calls Save after staging succeeds
*/
package trade

import (
	"context"
	"time"

	"github.com/warp/trade-ledger/bank"
	"github.com/warp/trade-ledger/exchange"
	"github.com/warp/trade-ledger/inventory"
)

// SnapshotVersion is bumped whenever the document layout changes.
const SnapshotVersion = 1

// DefaultSnapshotRetention is how many snapshots a store keeps by default.
// Zero keeps every snapshot.
const DefaultSnapshotRetention = 32

// Snapshot is the serializable state of a Books.
type Snapshot struct {
	Version       int       `json:"version"`
	Revision      int64     `json:"revision"`
	TakenAt       time.Time `json:"taken_at"`
	LocalCurrency string    `json:"local_currency"`
	Seq           int64     `json:"seq"`

	Bank      bank.State      `json:"bank"`
	Inventory inventory.State `json:"inventory"`
	Exchange  exchange.State  `json:"exchange"`

	PurchaseOrders []PurchaseOrder `json:"purchase_orders"`
	Sales          []Sale          `json:"sales"`
	Clients        []Party         `json:"clients"`
	Suppliers      []Party         `json:"suppliers"`
}

// Store persists snapshots.
type Store interface {
	// Load returns the latest snapshot, or nil if none was saved.
	Load(ctx context.Context) (*Snapshot, error)

	// Save persists a committed snapshot if snap.Revision-1 is the latest
	// stored revision, and fails with a *domain.ConflictError otherwise.
	Save(ctx context.Context, snap *Snapshot) error
}

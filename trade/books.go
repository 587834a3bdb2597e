/*
Package trade is the orchestration layer of the import/resale ledger.

PURPOSE:
  Books owns every piece of state (bank accounts, inventory lots, purchase
  orders, sales, client and supplier aggregates, exchange desk) and exposes
  the business operations that compose the bank primitives.

KEY CONCEPTS IN THIS FILE (books.go):
  - Books: the single entry point; one mutex serializes all operations
  - state: everything Books mutates, cloneable as a unit
  - withTx: stage a clone, run the operation on it, persist, then swap

CRITICAL INVARIANTS:
  1. ALL OR NOTHING: an operation that returns an error has not changed
     a single account, lot, sale, order, party or position
  2. PERSIST BEFORE PUBLISH: the staged state becomes visible only after
     Store.Save succeeds
  3. ONE WRITER PER REVISION: Save is conditional on the revision the stage
     was built on, so two Books on one store cannot both commit on top of
     the same state; the loser gets ErrConflict and reloads
  4. READS RETURN COPIES: callers can never alias internal state

SEE ALSO:
  - purchase.go, sale.go, cash.go: the operations
  - query.go: read-only views
  - audit.go: invariant verification
  - store.go: Snapshot and Store
*/
package trade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/warp/trade-ledger/bank"
	"github.com/warp/trade-ledger/domain"
	"github.com/warp/trade-ledger/exchange"
	"github.com/warp/trade-ledger/inventory"
)

// DefaultLocalCurrency is the currency of the local accounts.
const DefaultLocalCurrency = "MXN"

// DefaultSettlementEpsilon is the residual (in minor units) treated as paid.
const DefaultSettlementEpsilon int64 = 1

// =============================================================================
// OPTIONS
// =============================================================================

type Option func(*Books)

// WithStore persists every committed operation.
func WithStore(s Store) Option {
	return func(b *Books) { b.store = s }
}

func WithLogger(log zerolog.Logger) Option {
	return func(b *Books) { b.log = log }
}

// WithClock overrides time.Now (for tests).
func WithClock(clock func() time.Time) Option {
	return func(b *Books) { b.clock = clock }
}

// WithIDs overrides uuid generation (for tests).
func WithIDs(newID func() string) Option {
	return func(b *Books) { b.newID = newID }
}

func WithLocalCurrency(code string) Option {
	return func(b *Books) { b.local = code }
}

// WithSettlementEpsilon sets the write-off threshold for schedules.
func WithSettlementEpsilon(minor int64) Option {
	return func(b *Books) { b.epsilon = minor }
}

// =============================================================================
// BOOKS
// =============================================================================

// Books is safe for concurrent use.
type Books struct {
	mu sync.Mutex
	st *state

	store   Store
	log     zerolog.Logger
	clock   func() time.Time
	newID   func() string
	local   string
	epsilon int64
}

// New returns empty books with the default chart of accounts. Nothing is
// persisted until the first operation commits.
func New(opts ...Option) *Books {
	b := configure(opts)
	b.st = b.fresh()
	return b
}

// Open restores the latest snapshot from the store, or starts fresh and
// saves an initial snapshot when the store is empty. If another writer
// initializes the store first, its snapshot is loaded instead.
func Open(ctx context.Context, store Store, opts ...Option) (*Books, error) {
	b := configure(append(opts, WithStore(store)))

	snap, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if snap == nil {
		st := b.fresh()
		st.rev = 1
		err := store.Save(ctx, st.snapshot(b.local, b.now()))
		switch {
		case err == nil:
			b.st = st
			b.log.Info().Str("currency", b.local).Msg("books initialized")
			return b, nil
		case !domain.IsConflict(err):
			return nil, fmt.Errorf("save initial snapshot: %w", err)
		}
		if snap, err = store.Load(ctx); err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
	}
	if err := b.load(snap); err != nil {
		return nil, err
	}
	b.log.Info().
		Int64("revision", snap.Revision).
		Int("movements", len(snap.Bank.Movements)).
		Int("sales", len(snap.Sales)).
		Time("taken_at", snap.TakenAt).
		Msg("books restored")
	return b, nil
}

func (b *Books) load(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("load snapshot: store is empty")
	}
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("snapshot version %d, want %d", snap.Version, SnapshotVersion)
	}
	if snap.LocalCurrency != "" {
		b.local = snap.LocalCurrency
	}
	b.st = restore(snap, b.clock, b.newID)
	return nil
}

func configure(opts []Option) *Books {
	b := &Books{
		log:     zerolog.Nop(),
		clock:   time.Now,
		newID:   uuid.NewString,
		local:   DefaultLocalCurrency,
		epsilon: DefaultSettlementEpsilon,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Books) fresh() *state {
	bl := bank.NewLedger(bank.DefaultChart(b.local))
	bl.Clock, bl.NewID = b.clock, b.newID
	lots := inventory.NewLedger(b.local)
	lots.Clock, lots.NewID = b.clock, b.newID
	desk := exchange.NewDesk(b.local)
	desk.Clock, desk.NewID = b.clock, b.newID
	return &state{
		bank:      bl,
		lots:      lots,
		desk:      desk,
		orders:    make(map[string]*PurchaseOrder),
		sales:     make(map[string]*Sale),
		clients:   make(map[string]*Party),
		suppliers: make(map[string]*Party),
	}
}

// LocalCurrency is the currency of costos, fletes, ganancias, operativa and
// casa_cambio.
func (b *Books) LocalCurrency() string { return b.local }

func (b *Books) now() time.Time { return b.clock().UTC() }

// withTx runs fn against a staged copy of the state. The stage replaces the
// live state only if fn succeeds and the snapshot is persisted.
func (b *Books) withTx(ctx context.Context, op string, fn func(st *state) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	stage := b.st.clone()
	if err := fn(stage); err != nil {
		b.log.Warn().Err(err).Str("op", op).Msg("operation rejected")
		return err
	}
	if b.store != nil {
		stage.rev++
		if err := b.store.Save(ctx, stage.snapshot(b.local, b.now())); err != nil {
			if domain.IsConflict(err) {
				b.log.Warn().Err(err).Str("op", op).Msg("lost race to another writer")
				b.refresh(ctx)
			} else {
				b.log.Error().Err(err).Str("op", op).Msg("persist failed")
			}
			return fmt.Errorf("persist %s: %w", op, err)
		}
	}
	b.st = stage
	return nil
}

// refresh replaces the live state with the store's latest snapshot, so the
// caller can retry after a conflict. On failure the live state is kept.
func (b *Books) refresh(ctx context.Context) {
	snap, err := b.store.Load(ctx)
	if err == nil {
		err = b.load(snap)
	}
	if err != nil {
		b.log.Error().Err(err).Msg("refresh after conflict failed")
	}
}

// read runs fn against the live state under the lock.
func (b *Books) read(fn func(st *state)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b.st)
}

// =============================================================================
// STATE
// =============================================================================

type state struct {
	rev       int64
	seq       int64
	bank      *bank.Ledger
	lots      *inventory.Ledger
	desk      *exchange.Desk
	orders    map[string]*PurchaseOrder
	sales     map[string]*Sale
	clients   map[string]*Party
	suppliers map[string]*Party
}

func (s *state) nextSeq() int64 {
	s.seq++
	return s.seq
}

func (s *state) clone() *state {
	c := &state{
		rev:       s.rev,
		seq:       s.seq,
		bank:      s.bank.Clone(),
		lots:      s.lots.Clone(),
		desk:      s.desk.Clone(),
		orders:    make(map[string]*PurchaseOrder, len(s.orders)),
		sales:     make(map[string]*Sale, len(s.sales)),
		clients:   make(map[string]*Party, len(s.clients)),
		suppliers: make(map[string]*Party, len(s.suppliers)),
	}
	for id, o := range s.orders {
		cp := o.clone()
		c.orders[id] = &cp
	}
	for id, sale := range s.sales {
		cp := sale.clone()
		c.sales[id] = &cp
	}
	for name, p := range s.clients {
		cp := *p
		c.clients[name] = &cp
	}
	for name, p := range s.suppliers {
		cp := *p
		c.suppliers[name] = &cp
	}
	return c
}

func (s *state) snapshot(local string, at time.Time) *Snapshot {
	return &Snapshot{
		Version:        SnapshotVersion,
		Revision:       s.rev,
		TakenAt:        at,
		LocalCurrency:  local,
		Seq:            s.seq,
		Bank:           s.bank.Export(),
		Inventory:      s.lots.Export(),
		Exchange:       s.desk.Export(),
		PurchaseOrders: s.orderList(),
		Sales:          s.saleList(),
		Clients:        partyList(s.clients),
		Suppliers:      partyList(s.suppliers),
	}
}

func restore(snap *Snapshot, clock func() time.Time, newID func() string) *state {
	st := &state{
		rev:       snap.Revision,
		seq:       snap.Seq,
		bank:      bank.Restore(snap.Bank, clock, newID),
		lots:      inventory.Restore(snap.Inventory, clock, newID),
		desk:      exchange.Restore(snap.Exchange, clock, newID),
		orders:    make(map[string]*PurchaseOrder, len(snap.PurchaseOrders)),
		sales:     make(map[string]*Sale, len(snap.Sales)),
		clients:   make(map[string]*Party, len(snap.Clients)),
		suppliers: make(map[string]*Party, len(snap.Suppliers)),
	}
	for _, o := range snap.PurchaseOrders {
		cp := o.clone()
		st.orders[cp.ID] = &cp
	}
	for _, sale := range snap.Sales {
		cp := sale.clone()
		st.sales[cp.ID] = &cp
	}
	for _, p := range snap.Clients {
		cp := p
		st.clients[partyKey(cp.Name)] = &cp
	}
	for _, p := range snap.Suppliers {
		cp := p
		st.suppliers[partyKey(cp.Name)] = &cp
	}
	return st
}

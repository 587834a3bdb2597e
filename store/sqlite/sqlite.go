/*
Package sqlite provides a SQLite-backed trade.Store.

PURPOSE:
  Persists the ledger as a history of snapshot documents, one per committed
  operation. The row with the highest revision is the current state. Only
  the latest N snapshots are kept (see WithRetention); the movement mirror
  is never pruned, so the full audit trail stays in SQL.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on snapshots or movements
  - The only DELETE is retention pruning of old snapshots
  - Corrections are new operations, which produce new rows

KEY TABLES:
  snapshots: One JSON document per commit, revision UNIQUE
  movements: Mirror of the bank movement log, one row per movement, for
             SQL-side audit queries. Only movements newer than the highest
             mirrored seq are inserted on each save.

INDEXES:
  - idx_movements_account: per-account statements
  - idx_movements_reference: everything posted for one sale/order/exchange

CONCURRENCY:
  Writers in other processes are serialized by the database: Save runs in
  an IMMEDIATE transaction (_txlock=immediate), compares the latest stored
  revision with the snapshot's parent, and inserts under a UNIQUE revision.
  A stale writer gets a *domain.ConflictError. Within a process, a
  sync.RWMutex plus a single connection guard direct callers.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  st, err := sqlite.New("./data/ledger.db", sqlite.WithLogger(log))
  if err != nil {
      log.Fatal().Err(err).Msg("open store")
  }
  defer st.Close()

  books, err := trade.Open(ctx, st)

SEE ALSO:
  - trade/store.go: Store interface and Snapshot
  - trade/store/memory.go: In-memory implementation for testing
  - store/postgres: same schema on PostgreSQL
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/warp/trade-ledger/bank"
	"github.com/warp/trade-ledger/domain"
	"github.com/warp/trade-ledger/money"
	"github.com/warp/trade-ledger/trade"
)

// Store implements trade.Store using SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	log    zerolog.Logger
	retain int
}

type Option func(*Store)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithRetention keeps the latest n snapshots; zero keeps all.
func WithRetention(n int) Option {
	return func(s *Store) { s.retain = n }
}

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, log: zerolog.Nop(), retain: trade.DefaultSnapshotRetention}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Snapshot history (append-only, pruned to the retention window)
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		revision INTEGER NOT NULL UNIQUE,
		version INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		taken_at TEXT NOT NULL,
		doc TEXT NOT NULL
	);

	-- Movement log mirror (append-only)
	CREATE TABLE IF NOT EXISTS movements (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL UNIQUE,
		at TEXT NOT NULL,
		account_id TEXT NOT NULL,
		direction TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount_minor INTEGER NOT NULL,
		currency TEXT NOT NULL,
		concept TEXT,
		reference TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_movements_account
		ON movements(account_id, seq);
	CREATE INDEX IF NOT EXISTS idx_movements_reference
		ON movements(reference) WHERE reference IS NOT NULL;
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	s.log.Debug().Msg("sqlite schema migrated")
	return nil
}

// =============================================================================
// trade.Store
// =============================================================================

// Save appends the snapshot and mirrors new movements in one transaction,
// provided snap was built on the latest stored revision.
func (s *Store) Save(ctx context.Context, snap *trade.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	var latest int64
	if err := sqlTx.QueryRowContext(ctx, `SELECT COALESCE(MAX(revision), 0) FROM snapshots`).Scan(&latest); err != nil {
		return fmt.Errorf("failed to read latest revision: %w", err)
	}
	if latest != snap.Revision-1 {
		return &domain.ConflictError{Parent: snap.Revision - 1, Latest: latest}
	}

	if _, err := sqlTx.ExecContext(ctx,
		`INSERT INTO snapshots (revision, version, seq, taken_at, doc) VALUES (?, ?, ?, ?, ?)`,
		snap.Revision, snap.Version, snap.Seq, snap.TakenAt.UTC().Format(time.RFC3339Nano), string(doc),
	); err != nil {
		if isUniqueConstraintError(err) {
			return &domain.ConflictError{Parent: snap.Revision - 1, Latest: snap.Revision}
		}
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	if s.retain > 0 {
		if _, err := sqlTx.ExecContext(ctx,
			`DELETE FROM snapshots WHERE revision <= ?`, snap.Revision-int64(s.retain),
		); err != nil {
			return fmt.Errorf("failed to prune snapshots: %w", err)
		}
	}

	var mirrored int64
	if err := sqlTx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM movements`).Scan(&mirrored); err != nil {
		return fmt.Errorf("failed to read movement high-water mark: %w", err)
	}
	for _, m := range snap.Bank.Movements {
		if m.Seq <= mirrored {
			continue
		}
		if err := appendMovement(ctx, sqlTx, m); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

// Load returns the newest snapshot, or nil when the table is empty.
func (s *Store) Load(ctx context.Context) (*trade.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM snapshots ORDER BY revision DESC LIMIT 1`,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap trade.Snapshot
	if err := json.Unmarshal([]byte(doc), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// Snapshots is the number of snapshots currently retained.
func (s *Store) Snapshots(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n)
	return n, err
}

// =============================================================================
// MOVEMENT MIRROR
// =============================================================================

func appendMovement(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, m bank.Movement) error {
	query := `
		INSERT INTO movements
		(id, seq, at, account_id, direction, kind, amount_minor, currency, concept, reference)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		m.ID,
		m.Seq,
		m.At.UTC().Format(time.RFC3339Nano),
		string(m.AccountID),
		string(m.Direction),
		string(m.Kind),
		m.Amount.Minor,
		m.Amount.Currency,
		nullString(m.Concept),
		nullString(m.Reference),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("movement %s already mirrored: %w", m.ID, err)
		}
		return fmt.Errorf("failed to append movement: %w", err)
	}
	return nil
}

// Movements returns mirrored movements for an account (all accounts when
// empty) in sequence order.
func (s *Store) Movements(ctx context.Context, account bank.AccountID) ([]bank.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, seq, at, account_id, direction, kind, amount_minor, currency, concept, reference
		FROM movements
		WHERE (? = '' OR account_id = ?)
		ORDER BY seq
	`
	rows, err := s.db.QueryContext(ctx, query, string(account), string(account))
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var out []bank.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMovement(rows *sql.Rows) (bank.Movement, error) {
	var (
		m         bank.Movement
		at        string
		account   string
		direction string
		kind      string
		minor     int64
		currency  string
		concept   sql.NullString
		reference sql.NullString
	)

	err := rows.Scan(&m.ID, &m.Seq, &at, &account, &direction, &kind, &minor, &currency, &concept, &reference)
	if err != nil {
		return m, fmt.Errorf("failed to scan movement: %w", err)
	}

	m.At, err = time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return m, fmt.Errorf("movement %s: bad timestamp %q: %w", m.ID, at, err)
	}
	m.AccountID = bank.AccountID(account)
	m.Direction = bank.Direction(direction)
	m.Kind = bank.MovementKind(kind)
	m.Amount = money.New(minor, currency)
	m.Concept = concept.String
	m.Reference = reference.String
	return m, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

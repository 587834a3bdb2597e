// Package postgres provides a PostgreSQL-backed trade.Store on pgx.
//
// The schema mirrors store/sqlite: a snapshots table (JSONB, revision
// UNIQUE, highest revision wins, pruned to a retention window) and an
// append-only movements mirror for SQL-side audits. Save takes a
// transaction-scoped advisory lock, so writers in different processes
// commit one revision at a time; a stale writer gets a
// *domain.ConflictError.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/warp/trade-ledger/bank"
	"github.com/warp/trade-ledger/domain"
	"github.com/warp/trade-ledger/money"
	"github.com/warp/trade-ledger/trade"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_snapshots (
	id BIGSERIAL PRIMARY KEY,
	revision BIGINT NOT NULL UNIQUE,
	version INTEGER NOT NULL,
	seq BIGINT NOT NULL,
	taken_at TIMESTAMPTZ NOT NULL,
	doc JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_movements (
	id TEXT PRIMARY KEY,
	seq BIGINT NOT NULL UNIQUE,
	at TIMESTAMPTZ NOT NULL,
	account_id TEXT NOT NULL,
	direction TEXT NOT NULL,
	kind TEXT NOT NULL,
	amount_minor BIGINT NOT NULL,
	currency TEXT NOT NULL,
	concept TEXT,
	reference TEXT
);

CREATE INDEX IF NOT EXISTS idx_ledger_movements_account ON ledger_movements(account_id, seq);
CREATE INDEX IF NOT EXISTS idx_ledger_movements_reference ON ledger_movements(reference) WHERE reference IS NOT NULL;
`

// saveLock is the advisory lock key held while a snapshot is saved.
const saveLock int64 = 0x6c6564676572 // "ledger"

// uniqueViolation is the SQLSTATE for a UNIQUE constraint failure.
const uniqueViolation = "23505"

// Store implements trade.Store.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger

	// Retain is how many snapshots are kept; zero keeps all.
	Retain int
}

// NewPool parses the DSN, sizes the pool and pings the server.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping DB: %w", err)
	}
	return pool, nil
}

// New migrates the schema on pool and returns a store using it.
func New(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug().Msg("postgres schema migrated")
	return &Store{pool: pool, log: log, Retain: trade.DefaultSnapshotRetention}, nil
}

// Open is NewPool followed by New.
func Open(ctx context.Context, databaseURL string, log zerolog.Logger) (*Store, error) {
	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	st, err := New(ctx, pool, log)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Save appends the snapshot and mirrors new movements in one transaction,
// provided snap was built on the latest stored revision.
func (s *Store) Save(ctx context.Context, snap *trade.Snapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, saveLock); err != nil {
			return fmt.Errorf("lock snapshots: %w", err)
		}
		var latest int64
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(revision), 0) FROM ledger_snapshots`).Scan(&latest); err != nil {
			return fmt.Errorf("read latest revision: %w", err)
		}
		if latest != snap.Revision-1 {
			return &domain.ConflictError{Parent: snap.Revision - 1, Latest: latest}
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO ledger_snapshots (revision, version, seq, taken_at, doc) VALUES ($1, $2, $3, $4, $5::jsonb)`,
			snap.Revision, snap.Version, snap.Seq, snap.TakenAt, string(doc),
		); err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		if s.Retain > 0 {
			if _, err := tx.Exec(ctx,
				`DELETE FROM ledger_snapshots WHERE revision <= $1`, snap.Revision-int64(s.Retain),
			); err != nil {
				return fmt.Errorf("prune snapshots: %w", err)
			}
		}

		var mirrored int64
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ledger_movements`).Scan(&mirrored); err != nil {
			return fmt.Errorf("read movement high-water mark: %w", err)
		}

		batch := &pgx.Batch{}
		for _, m := range snap.Bank.Movements {
			if m.Seq <= mirrored {
				continue
			}
			batch.Queue(`
				INSERT INTO ledger_movements
				(id, seq, at, account_id, direction, kind, amount_minor, currency, concept, reference)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''))`,
				m.ID, m.Seq, m.At, string(m.AccountID), string(m.Direction), string(m.Kind),
				m.Amount.Minor, m.Amount.Currency, m.Concept, m.Reference,
			)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("mirror movements: %w", err)
		}
		return nil
	})

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "ledger_snapshots_revision_key" {
		return &domain.ConflictError{Parent: snap.Revision - 1, Latest: snap.Revision}
	}
	return err
}

// Load returns the newest snapshot, or nil when none exists.
func (s *Store) Load(ctx context.Context) (*trade.Snapshot, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc::text FROM ledger_snapshots ORDER BY revision DESC LIMIT 1`,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap trade.Snapshot
	if err := json.Unmarshal(doc, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Movements returns mirrored movements for an account (all when empty).
func (s *Store) Movements(ctx context.Context, account bank.AccountID) ([]bank.Movement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, seq, at, account_id, direction, kind, amount_minor, currency,
		       COALESCE(concept, ''), COALESCE(reference, '')
		FROM ledger_movements
		WHERE $1 = '' OR account_id = $1
		ORDER BY seq`, string(account))
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (bank.Movement, error) {
		var (
			m                        bank.Movement
			account, direction, kind string
			minor                    int64
			currency                 string
		)
		err := row.Scan(&m.ID, &m.Seq, &m.At, &account, &direction, &kind, &minor, &currency, &m.Concept, &m.Reference)
		m.At = m.At.UTC()
		m.AccountID = bank.AccountID(account)
		m.Direction = bank.Direction(direction)
		m.Kind = bank.MovementKind(kind)
		m.Amount = money.New(minor, currency)
		return m, err
	})
}

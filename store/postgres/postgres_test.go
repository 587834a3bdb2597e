package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/trade-ledger/bank"
	"github.com/warp/trade-ledger/domain"
	"github.com/warp/trade-ledger/money"
	"github.com/warp/trade-ledger/store/postgres"
	"github.com/warp/trade-ledger/trade"
)

// Requires a disposable database: the test writes to ledger_* tables.
func openStore(t *testing.T) *postgres.Store {
	t.Helper()
	url := os.Getenv("LEDGER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("LEDGER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	st, err := postgres.Open(ctx, url, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	books, err := trade.Open(ctx, st)
	require.NoError(t, err)
	_, err = books.RecordIncome(ctx, bank.Operativa, money.New(12345, "MXN"), "seed")
	require.NoError(t, err)

	reopened, err := trade.Open(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, books.Accounts(), reopened.Accounts())

	mirrored, err := st.Movements(ctx, bank.Operativa)
	require.NoError(t, err)
	require.NotEmpty(t, mirrored)
	last := mirrored[len(mirrored)-1]
	assert.Equal(t, int64(12345), last.Amount.Minor)
	assert.Equal(t, "seed", last.Concept)
}

func TestStore_StaleWriterConflicts(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	first, err := trade.Open(ctx, st)
	require.NoError(t, err)
	second, err := trade.Open(ctx, st)
	require.NoError(t, err)

	_, err = first.RecordIncome(ctx, bank.Operativa, money.New(100, "MXN"), "first")
	require.NoError(t, err)
	_, err = second.RecordIncome(ctx, bank.Operativa, money.New(200, "MXN"), "second")
	require.ErrorIs(t, err, domain.ErrConflict)

	reopened, err := trade.Open(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, first.Accounts(), reopened.Accounts())
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/warp/trade-ledger/config"
	"github.com/warp/trade-ledger/logger"
	"github.com/warp/trade-ledger/money"
	"github.com/warp/trade-ledger/store/postgres"
	"github.com/warp/trade-ledger/store/sqlite"
	"github.com/warp/trade-ledger/trade"
)

// app is everything a subcommand needs.
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	books *trade.Books
	out   io.Writer
	close func()
}

// openApp wires config, logger, store and books.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})

	var (
		st      trade.Store
		closeFn = func() {}
	)
	if !cfg.Store.Persistent() {
		// Each command is its own process; a memory store would drop every
		// operation on exit while reporting success.
		return nil, usagef("LEDGER_STORE=%s keeps nothing between commands; use %s or %s",
			cfg.Store.Kind, config.StoreSQLite, config.StorePostgres)
	}
	switch cfg.Store.Kind {
	case config.StoreSQLite:
		s, err := sqlite.New(cfg.Store.SQLitePath,
			sqlite.WithLogger(log.Component("sqlite")),
			sqlite.WithRetention(cfg.Store.Retention),
		)
		if err != nil {
			return nil, err
		}
		st, closeFn = s, func() { s.Close() }
	case config.StorePostgres:
		s, err := postgres.Open(ctx, cfg.Store.DatabaseURL, log.Component("postgres"))
		if err != nil {
			return nil, err
		}
		s.Retain = cfg.Store.Retention
		st, closeFn = s, s.Close
	}

	books, err := trade.Open(ctx, st,
		trade.WithLogger(log.Component("books")),
		trade.WithLocalCurrency(cfg.Ledger.LocalCurrency),
		trade.WithSettlementEpsilon(cfg.Ledger.SettlementEpsilon),
	)
	if err != nil {
		closeFn()
		return nil, err
	}
	return &app{cfg: cfg, log: log, books: books, out: os.Stdout, close: closeFn}, nil
}

// run opens the app, runs fn and maps errors to exit codes: client errors
// (bad input, missing funds or stock) are usage errors, the rest failures.
func run(ctx context.Context, fn func(a *app) error) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		return fail(err)
	}
	defer a.close()

	if err := fn(a); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, "Error:", err)
	var usage usageError
	switch {
	case errors.As(err, &usage) || trade.IsClientError(err):
		return subcommands.ExitUsageError
	case trade.IsConflict(err):
		fmt.Fprintln(os.Stderr, "Another writer committed first; nothing was saved. Run the command again.")
	}
	return subcommands.ExitFailure
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// amount parses a major-unit flag value in currency ("" means local).
func (a *app) amount(flagName, value, currency string) (money.Amount, error) {
	if currency == "" {
		currency = a.books.LocalCurrency()
	}
	if value == "" {
		return money.Zero(currency), nil
	}
	m, err := money.Parse(value, currency)
	if err != nil {
		return money.Amount{}, usagef("-%s: %v", flagName, err)
	}
	return m, nil
}

func parseRate(flagName, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, usagef("-%s: %v", flagName, err)
	}
	return d, nil
}

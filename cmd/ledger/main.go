/*
main.go - Command-line entry point

PURPOSE:
  Runs one ledger operation per invocation against the configured store:
  load config, build the logger, open the store, restore the books, run
  the subcommand, print the result.

STARTUP SEQUENCE:
  1. Load configuration (env / .env via viper)
  2. Build the zerolog logger
  3. Open the snapshot store (memory, sqlite or postgres)
  4. Restore trade.Books from the latest snapshot
  5. Execute the subcommand

SIGNALS:
  SIGINT/SIGTERM cancel the context. An operation that has not reached
  Store.Save yet is abandoned; nothing partial is persisted.

ENVIRONMENT:
  APP_ENV, LOG_LEVEL, LEDGER_STORE, LEDGER_SQLITE_PATH, DATABASE_URL,
  LEDGER_LOCAL_CURRENCY, LEDGER_SETTLEMENT_EPSILON (see config/config.go)

EXAMPLES:
  ledger income -account operativa -amount 5000 -concept "capital"
  ledger purchase -supplier "Shenzhen Parts" -qty 10 -unit-cost 100 -transport 50
  ledger sale -client "Ferretería López" -qty 6 -price 200 -freight 10 -paid 1200
  ledger exchange-buy -vault boveda_usd -amount 100 -rate 17.25
  ledger audit
*/
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	register(commander)

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}

func register(c *subcommands.Commander) {
	c.Register(&purchaseCmd{}, "trade")
	c.Register(&payOrderCmd{}, "trade")
	c.Register(&transportCmd{}, "trade")
	c.Register(&saleCmd{}, "trade")
	c.Register(&paySaleCmd{}, "trade")

	c.Register(&transferCmd{}, "cash")
	c.Register(&movementCmd{name: "expense"}, "cash")
	c.Register(&movementCmd{name: "income"}, "cash")

	c.Register(&exchangeCmd{side: "buy"}, "exchange")
	c.Register(&exchangeCmd{side: "sell"}, "exchange")
	c.Register(&quoteCmd{}, "exchange")

	c.Register(&accountsCmd{}, "reports")
	c.Register(&lotsCmd{}, "reports")
	c.Register(&movementsCmd{}, "reports")
	c.Register(&auditCmd{}, "reports")
}

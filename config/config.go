// Package config loads ledger settings from the environment (and an
// optional .env or config file) through viper. Environment variables win.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	App    AppConfig
	Log    LogConfig
	Store  StoreConfig
	Ledger LedgerConfig
}

type AppConfig struct {
	Env string // development, production
}

type LogConfig struct {
	Level string
}

// StoreConfig selects where snapshots are persisted.
type StoreConfig struct {
	Kind        string // memory, sqlite, postgres
	SQLitePath  string
	DatabaseURL string
	Retention   int // snapshots kept; 0 keeps all
}

// Persistent reports whether state survives the process.
func (s StoreConfig) Persistent() bool { return s.Kind != StoreMemory }

type LedgerConfig struct {
	LocalCurrency     string
	SettlementEpsilon int64 // minor units
}

// Load reads APP_ENV, LOG_LEVEL, LEDGER_STORE, LEDGER_SQLITE_PATH,
// DATABASE_URL, LEDGER_SNAPSHOT_RETENTION, LEDGER_LOCAL_CURRENCY and
// LEDGER_SETTLEMENT_EPSILON.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional

	v.SetConfigName("config")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // optional

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env: getString(v, "APP_ENV", "development"),
		},
		Log: LogConfig{
			Level: getString(v, "LOG_LEVEL", "info"),
		},
		Store: StoreConfig{
			Kind:        strings.ToLower(getString(v, "LEDGER_STORE", StoreSQLite)),
			SQLitePath:  getString(v, "LEDGER_SQLITE_PATH", "./ledger.db"),
			DatabaseURL: getString(v, "DATABASE_URL", ""),
		},
		Ledger: LedgerConfig{
			LocalCurrency: strings.ToUpper(getString(v, "LEDGER_LOCAL_CURRENCY", "MXN")),
		},
	}

	eps, err := getInt64(v, "LEDGER_SETTLEMENT_EPSILON", 1)
	if err != nil {
		return nil, err
	}
	cfg.Ledger.SettlementEpsilon = eps

	retain, err := getInt64(v, "LEDGER_SNAPSHOT_RETENTION", 32)
	if err != nil {
		return nil, err
	}
	cfg.Store.Retention = int(retain)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the ledger cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Kind {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("LEDGER_SQLITE_PATH is required for the sqlite store")
		}
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("LEDGER_STORE %q: want memory, sqlite or postgres", c.Store.Kind)
	}
	if c.Store.Retention < 0 {
		return fmt.Errorf("LEDGER_SNAPSHOT_RETENTION must not be negative, got %d", c.Store.Retention)
	}
	if len(c.Ledger.LocalCurrency) != 3 {
		return fmt.Errorf("LEDGER_LOCAL_CURRENCY %q is not an ISO 4217 code", c.Ledger.LocalCurrency)
	}
	if c.Ledger.SettlementEpsilon < 0 {
		return fmt.Errorf("LEDGER_SETTLEMENT_EPSILON must not be negative, got %d", c.Ledger.SettlementEpsilon)
	}
	return nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt64(v *viper.Viper, key string, def int64) (int64, error) {
	if !v.IsSet(key) {
		return def, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v.GetString(key)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

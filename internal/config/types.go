// Package config loads leaprecord configuration. Values are layered with
// koanf: built-in defaults, then leaprecord.yaml, then LEAPRECORD_ environment
// variables, then explicitly set command line flags.
package config

import (
	"time"

	"github.com/leapstack-labs/leaprecord/pkg/storage"
)

// Config is the complete leaprecord configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`

	// Output is the CLI output format: table, yaml or json.
	Output  string `koanf:"output"`
	Verbose bool   `koanf:"verbose"`

	// ConfigFile is the file the configuration was read from, if any.
	ConfigFile string `koanf:"-"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver string `koanf:"driver"` // sqlite, pgx, postgres, mysql, duckdb
	DSN    string `koanf:"dsn"`
	// Dialect overrides the dialect inferred from Driver.
	Dialect string `koanf:"dialect"`

	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`

	ForeignKeys bool `koanf:"foreign_keys"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
}

// StorageConfig converts the database settings for storage.Open.
func (d DatabaseConfig) StorageConfig() storage.Config {
	return storage.Config{
		Driver:          d.Driver,
		DSN:             d.DSN,
		Dialect:         d.Dialect,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnMaxIdleTime: d.ConnMaxIdleTime,
		ForeignKeys:     d.ForeignKeys,
	}
}

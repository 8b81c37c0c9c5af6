package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leaprecord/pkg/dialect"
)

// Output formats accepted by the CLI.
var outputFormats = []string{"table", "yaml", "json"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.Driver == "" {
		return fmt.Errorf("database.driver is required")
	}
	if _, err := dialect.Resolve(c.Database.Dialect, c.Database.Driver); err != nil {
		return fmt.Errorf("invalid database configuration: %w", err)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns < 0 || c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database connection limits must not be negative")
	}

	if _, err := c.Log.level(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.Log.Format)
	}

	for _, f := range outputFormats {
		if c.Output == f {
			return nil
		}
	}
	return fmt.Errorf("unknown output format %q (want %s)", c.Output, strings.Join(outputFormats, ", "))
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}
	return level, nil
}

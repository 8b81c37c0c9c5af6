package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaprecord/internal/catalog"
	"github.com/leapstack-labs/leaprecord/internal/config"
	"github.com/leapstack-labs/leaprecord/pkg/storage"
)

type configKey struct{}

type loggerKey struct{}

// WithConfig returns a context carrying cfg.
func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetConfig retrieves the config from the command context.
// Without one it returns the defaults.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	c := &config.Config{}
	c.ApplyDefaults()
	return c
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg     *config.Config
	Logger  *slog.Logger
	DB      *storage.DB
	Catalog *catalog.Catalog
	Output  *Output
}

// NewCommandContext opens the configured database.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cc := NewCommandContextWithoutDB(cmd)

	db, err := storage.Open(cmd.Context(), cc.Cfg.Database.StorageConfig(), cc.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	cc.DB = db
	cc.Catalog = catalog.New(db, cc.Logger)

	cleanup := func() {
		if err := db.Close(); err != nil {
			cc.Logger.Warn("failed to close database", "error", err)
		}
	}
	return cc, cleanup, nil
}

// NewCommandContextWithoutDB creates a CommandContext without a database.
// Useful for commands that only inspect mappings or configuration.
func NewCommandContextWithoutDB(cmd *cobra.Command) *CommandContext {
	cfg := GetConfig(cmd.Context())
	return &CommandContext{
		Cfg:    cfg,
		Logger: GetLogger(cmd.Context()),
		Output: NewOutput(cmd.OutOrStdout(), cfg.Output),
	}
}

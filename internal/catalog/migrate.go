package catalog

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"

	"github.com/leapstack-labs/leaprecord/pkg/storage"
)

//go:embed migrations/*/*.sql
var migrations embed.FS

// goose keeps its base FS, dialect and logger in package state.
var gooseMu sync.Mutex

// gooseDialects maps record dialect names to goose dialects and the
// migration directory written for them.
var gooseDialects = map[string]struct{ goose, dir string }{
	"sqlite":   {"sqlite3", "migrations/sqlite"},
	"postgres": {"postgres", "migrations/postgres"},
	"mysql":    {"mysql", "migrations/mysql"},
}

// Migrate runs all pending catalog migrations.
// The logger parameter may be nil (uses a discard logger).
func Migrate(ctx context.Context, db *storage.DB, logger *slog.Logger) error {
	return withGoose(db, logger, func(dir string) error {
		if err := goose.UpContext(ctx, db.SQL(), dir); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		return nil
	})
}

// MigrateDown rolls the catalog schema back to version.
func MigrateDown(ctx context.Context, db *storage.DB, version int64, logger *slog.Logger) error {
	return withGoose(db, logger, func(dir string) error {
		if err := goose.DownToContext(ctx, db.SQL(), dir, version); err != nil {
			return fmt.Errorf("failed to roll back migrations: %w", err)
		}
		return nil
	})
}

// MigrationVersion returns the current migration version.
func MigrationVersion(ctx context.Context, db *storage.DB) (int64, error) {
	var version int64
	err := withGoose(db, nil, func(string) error {
		var err error
		version, err = goose.GetDBVersionContext(ctx, db.SQL())
		return err
	})
	return version, err
}

func withGoose(db *storage.DB, logger *slog.Logger, fn func(dir string) error) error {
	if db == nil {
		return fmt.Errorf("database not opened")
	}
	name := db.Dialect().Name
	d, ok := gooseDialects[name]
	if !ok {
		return fmt.Errorf("no catalog migrations for dialect %q", name)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{logger: logger})
	if err := goose.SetDialect(d.goose); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return fn(d.dir)
}

// gooseLogger reports goose progress through slog.
type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrate")
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrate")
}

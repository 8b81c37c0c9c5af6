// Package storage is the storage collaborator of the record layer: a thin
// wrapper over database/sql that knows its dialect, logs statements, runs
// transaction scopes and turns driver constraint errors into
// *core.ConstraintViolationError.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/leapstack-labs/leaprecord/pkg/core"
	"github.com/leapstack-labs/leaprecord/pkg/dialect"
)

// Config holds what is needed to open a database.
type Config struct {
	// Driver is the database/sql driver name (sqlite, pgx, postgres, mysql, duckdb).
	Driver string
	DSN    string
	// Dialect overrides the dialect inferred from Driver.
	Dialect string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// ForeignKeys enables foreign key enforcement on engines where it is
	// opt-in per connection (SQLite).
	ForeignKeys bool
}

// DB is an open database handle. It implements core.Transactor.
type DB struct {
	db      *sql.DB
	dialect *core.DialectConfig
	logger  *slog.Logger
}

// Open opens and pings a database described by cfg.
// The logger parameter may be nil (uses a discard logger).
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("database driver not specified")
	}
	d, err := dialect.Resolve(cfg.Dialect, cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn := prepareDSN(d, cfg)
	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	if d == dialect.SQLite && isMemoryDSN(cfg.DSN) {
		// every connection to :memory: is a separate database
		cfg.MaxOpenConns = 1
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", cfg.Driver, err)
	}

	s := New(db, d, logger)
	s.logger.Debug("database opened", "driver", cfg.Driver, "dialect", d.Name)
	return s, nil
}

// New wraps an already open *sql.DB.
// The logger parameter may be nil (uses a discard logger).
func New(db *sql.DB, d *core.DialectConfig, logger *slog.Logger) *DB {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DB{db: db, dialect: d, logger: logger}
}

func prepareDSN(d *core.DialectConfig, cfg Config) string {
	dsn := cfg.DSN
	switch d {
	case dialect.SQLite:
		params := dsnParams(dsn)
		if cfg.ForeignKeys && !hasPragma(params, "foreign_keys") {
			dsn = appendParam(dsn, "_pragma=foreign_keys(1)")
		}
		if !params.Has("_time_format") {
			dsn = appendParam(dsn, "_time_format=sqlite")
		}
	case dialect.MySQL:
		dsn = prepareMySQLDSN(dsn)
	}
	return dsn
}

// dsnParams parses the query part of a file DSN. The path before "?" is
// never inspected, so a directory named like a parameter does not count.
func dsnParams(dsn string) url.Values {
	_, q, ok := strings.Cut(dsn, "?")
	if !ok {
		return url.Values{}
	}
	// a malformed pair is skipped; ParseQuery keeps the ones it could read
	params, _ := url.ParseQuery(q)
	return params
}

func hasPragma(params url.Values, name string) bool {
	for _, p := range params["_pragma"] {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(p)), name) {
			return true
		}
	}
	return false
}

func appendParam(dsn, param string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + param
	}
	return dsn + "?" + param
}

func isMemoryDSN(dsn string) bool {
	return dsn == "" || strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// SQL returns the underlying *sql.DB, e.g. for migration tooling.
func (s *DB) SQL() *sql.DB {
	return s.db
}

// Dialect implements core.Executor.
func (s *DB) Dialect() *core.DialectConfig {
	return s.dialect
}

// Close closes the database connection.
func (s *DB) Close() error {
	if s.db != nil {
		s.logger.Debug("closing database connection")
		return s.db.Close()
	}
	return nil
}

// ExecContext implements core.Executor.
func (s *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return execLogged(ctx, s.db, s.logger, query, args)
}

// QueryContext implements core.Executor.
func (s *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return queryLogged(ctx, s.db, s.logger, query, args)
}

// ClassifyError implements core.ErrorClassifier.
func (s *DB) ClassifyError(err error) error {
	return Classify(err)
}

// WithTransaction implements core.Transactor.
func (s *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx core.Executor) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	tx := &Tx{tx: sqlTx, dialect: s.dialect, logger: s.logger}
	s.logger.Debug("transaction started")

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			s.logger.Debug("transaction rolled back after panic")
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.logger.Warn("failed to roll back transaction", "error", rbErr)
		} else {
			s.logger.Debug("transaction rolled back", "cause", err)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", Classify(err))
	}
	s.logger.Debug("transaction committed")
	return nil
}

// Tx is an active transaction. It implements core.Transactor; nested
// WithTransaction calls run inside a savepoint.
type Tx struct {
	tx         *sql.Tx
	dialect    *core.DialectConfig
	logger     *slog.Logger
	savepoints int
}

// Dialect implements core.Executor.
func (t *Tx) Dialect() *core.DialectConfig {
	return t.dialect
}

// ExecContext implements core.Executor.
func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return execLogged(ctx, t.tx, t.logger, query, args)
}

// QueryContext implements core.Executor.
func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return queryLogged(ctx, t.tx, t.logger, query, args)
}

// ClassifyError implements core.ErrorClassifier.
func (t *Tx) ClassifyError(err error) error {
	return Classify(err)
}

// WithTransaction implements core.Transactor using a savepoint, so a failing
// nested scope undoes only its own statements.
func (t *Tx) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx core.Executor) error) (err error) {
	t.savepoints++
	name := fmt.Sprintf("leaprecord_sp_%d", t.savepoints)
	quoted := t.dialect.QuoteIdentifier(name)

	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+quoted); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_, _ = t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+quoted)
			panic(p)
		}
	}()

	if err := fn(ctx, t); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+quoted); rbErr != nil {
			t.logger.Warn("failed to roll back savepoint", "savepoint", name, "error", rbErr)
		}
		return err
	}

	if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+quoted); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", Classify(err))
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func execLogged(ctx context.Context, e execer, logger *slog.Logger, query string, args []any) (sql.Result, error) {
	start := time.Now()
	res, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		logger.Debug("statement failed", "sql", query, "args", args, "error", err)
		return nil, Classify(err)
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		n, _ := res.RowsAffected()
		logger.Debug("statement executed", "sql", query, "args", args, "rows", n, "duration", time.Since(start))
	}
	return res, nil
}

func queryLogged(ctx context.Context, e execer, logger *slog.Logger, query string, args []any) (*sql.Rows, error) {
	start := time.Now()
	//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration completes
	rows, err := e.QueryContext(ctx, query, args...)
	if err != nil {
		logger.Debug("query failed", "sql", query, "args", args, "error", err)
		return nil, Classify(err)
	}
	logger.Debug("query executed", "sql", query, "args", args, "duration", time.Since(start))
	return rows, nil
}

var (
	_ core.Transactor = (*DB)(nil)
	_ core.Transactor = (*Tx)(nil)
)

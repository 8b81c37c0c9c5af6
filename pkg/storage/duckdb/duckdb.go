// Package duckdb registers the DuckDB driver and its constraint error
// classifier with the storage package. Import it for its side effects.
//
// It lives apart from storage because the driver needs cgo.
package duckdb

import (
	"context"
	"errors"
	"log/slog"

	"github.com/marcboeker/go-duckdb"

	"github.com/leapstack-labs/leaprecord/pkg/core"
	"github.com/leapstack-labs/leaprecord/pkg/storage"
)

func init() {
	storage.RegisterClassifier("duckdb", Classify)
}

// Open opens a DuckDB database. Use ":memory:" or an empty path for an
// in-memory database.
// The logger parameter may be nil (uses a discard logger).
func Open(ctx context.Context, path string, logger *slog.Logger) (*storage.DB, error) {
	if path == "" {
		path = ":memory:"
	}
	cfg := storage.Config{Driver: "duckdb", DSN: path}
	if path == ":memory:" {
		cfg.MaxOpenConns = 1
	}
	return storage.Open(ctx, cfg, logger)
}

// Classify recognizes DuckDB constraint errors. DuckDB only reports the
// kind of violation in its message text.
func Classify(err error) *core.ConstraintViolationError {
	var de *duckdb.Error
	if !errors.As(err, &de) || de.Type != duckdb.ErrorTypeConstraint {
		return nil
	}
	if v := storage.ClassifyMessage(err); v != nil {
		return v
	}
	return &core.ConstraintViolationError{Kind: core.ConstraintOther, Err: err}
}

package core

import (
	"context"
	"database/sql"
)

// Executor is the storage collaborator the record layer talks to.
// It is satisfied by an open database handle and by an active transaction,
// so reads and writes can run inside or outside a transaction scope.
type Executor interface {
	// Dialect returns the SQL dialect statements must be rendered for.
	Dialect() *DialectConfig

	// ExecContext executes a statement that doesn't return rows.
	// Driver errors for violated constraints surface as *ConstraintViolationError.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)

	// QueryContext executes a statement that returns rows.
	// The caller must close the returned rows.
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Transactor is an Executor that can open a transaction scope.
type Transactor interface {
	Executor

	// WithTransaction runs fn inside a single transaction. The transaction is
	// committed when fn returns nil and rolled back when fn returns an error
	// or panics. The error returned by fn is returned unchanged.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Executor) error) error
}

// ErrorClassifier is implemented by executors that can translate driver
// errors reported after a statement started, such as errors surfaced while
// reading rows, into *ConstraintViolationError.
type ErrorClassifier interface {
	ClassifyError(err error) error
}

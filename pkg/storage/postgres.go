package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/lib/pq"                // registers the "postgres" driver

	"github.com/leapstack-labs/leaprecord/pkg/core"
)

func init() {
	RegisterClassifier("pgx", classifyPgx)
	RegisterClassifier("postgres", classifyPQ)
}

func postgresKind(code string) (core.ConstraintKind, bool) {
	switch code {
	case "23503":
		return core.ConstraintForeignKey, true
	case "23505":
		return core.ConstraintUnique, true
	case "23502":
		return core.ConstraintNotNull, true
	case "23514":
		return core.ConstraintCheck, true
	case "23000", "23001", "23P01":
		return core.ConstraintOther, true
	}
	return 0, false
}

func classifyPgx(err error) *core.ConstraintViolationError {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}
	kind, ok := postgresKind(pgErr.Code)
	if !ok {
		return nil
	}
	name := pgErr.ConstraintName
	if name == "" {
		name = pgErr.ColumnName
	}
	return &core.ConstraintViolationError{Kind: kind, Constraint: name, Err: err}
}

func classifyPQ(err error) *core.ConstraintViolationError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}
	kind, ok := postgresKind(string(pqErr.Code))
	if !ok {
		return nil
	}
	name := pqErr.Constraint
	if name == "" {
		name = pqErr.Column
	}
	return &core.ConstraintViolationError{Kind: kind, Constraint: name, Err: err}
}

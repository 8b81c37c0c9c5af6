package storage

import (
	"errors"
	"strings"

	"github.com/leapstack-labs/leaprecord/pkg/core"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

func init() {
	RegisterClassifier("sqlite", classifySQLite)
}

func classifySQLite(err error) *core.ConstraintViolationError {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return nil
	}
	msg := se.Error()

	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return &core.ConstraintViolationError{Kind: core.ConstraintForeignKey, Err: err}
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return &core.ConstraintViolationError{Kind: core.ConstraintUnique, Constraint: sqliteConstraint(msg), Err: err}
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return &core.ConstraintViolationError{Kind: core.ConstraintPrimaryKey, Constraint: sqliteConstraint(msg), Err: err}
	case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		return &core.ConstraintViolationError{Kind: core.ConstraintNotNull, Constraint: sqliteConstraint(msg), Err: err}
	case sqlite3.SQLITE_CONSTRAINT_CHECK:
		return &core.ConstraintViolationError{Kind: core.ConstraintCheck, Constraint: sqliteConstraint(msg), Err: err}
	}

	// without extended result codes only the message tells the kinds apart
	if se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return nil
	}
	v := classifyMessage(msg, err)
	if v != nil && v.Kind != core.ConstraintForeignKey {
		v.Constraint = sqliteConstraint(msg)
	}
	return v
}

// sqliteConstraint extracts the column list or constraint name from messages
// like "UNIQUE constraint failed: authors.name (2067)".
func sqliteConstraint(msg string) string {
	const marker = "constraint failed: "
	i := strings.LastIndex(msg, marker)
	if i < 0 {
		return ""
	}
	rest := msg[i+len(marker):]
	if j := strings.IndexAny(rest, "(\n"); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest)
}

// classifyMessage classifies by the wording most engines share.
func classifyMessage(msg string, err error) *core.ConstraintViolationError {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "foreign key"):
		return &core.ConstraintViolationError{Kind: core.ConstraintForeignKey, Err: err}
	case strings.Contains(lower, "primary key"):
		return &core.ConstraintViolationError{Kind: core.ConstraintPrimaryKey, Err: err}
	case strings.Contains(lower, "unique"), strings.Contains(lower, "duplicate key"):
		return &core.ConstraintViolationError{Kind: core.ConstraintUnique, Err: err}
	case strings.Contains(lower, "not null"), strings.Contains(lower, "not-null"):
		return &core.ConstraintViolationError{Kind: core.ConstraintNotNull, Err: err}
	case strings.Contains(lower, "check constraint"):
		return &core.ConstraintViolationError{Kind: core.ConstraintCheck, Err: err}
	case strings.Contains(lower, "constraint"):
		return &core.ConstraintViolationError{Kind: core.ConstraintOther, Err: err}
	}
	return nil
}

// ClassifyMessage exposes message based classification for drivers that
// report constraint violations only as text.
func ClassifyMessage(err error) *core.ConstraintViolationError {
	if err == nil {
		return nil
	}
	return classifyMessage(err.Error(), err)
}

package storage

import (
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/leapstack-labs/leaprecord/pkg/core"
)

func init() {
	RegisterClassifier("mysql", classifyMySQL)
}

// prepareMySQLDSN makes the driver report matched rather than changed rows,
// so an update that rewrites identical values is not mistaken for a missing
// row, and decode DATETIME columns into time.Time.
func prepareMySQLDSN(dsn string) string {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		// let sql.Open report the malformed DSN
		return dsn
	}
	cfg.ClientFoundRows = true
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

func classifyMySQL(err error) *core.ConstraintViolationError {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return nil
	}
	switch myErr.Number {
	case 1062, 1586:
		return &core.ConstraintViolationError{Kind: core.ConstraintUnique, Err: err}
	case 1451, 1452, 1216, 1217:
		return &core.ConstraintViolationError{Kind: core.ConstraintForeignKey, Err: err}
	case 1048, 1364:
		return &core.ConstraintViolationError{Kind: core.ConstraintNotNull, Err: err}
	case 3819:
		return &core.ConstraintViolationError{Kind: core.ConstraintCheck, Err: err}
	}
	return nil
}

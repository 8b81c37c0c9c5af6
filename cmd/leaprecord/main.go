// Package main provides the leaprecord command.
package main

import (
	"os"

	"github.com/leapstack-labs/leaprecord/internal/cli"

	// DuckDB needs cgo, so only the command links it in
	_ "github.com/leapstack-labs/leaprecord/pkg/storage/duckdb"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

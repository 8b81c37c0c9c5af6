package dialect

import "github.com/leapstack-labs/leaprecord/pkg/core"

// Built-in dialects.
var (
	SQLite = &core.DialectConfig{
		Name:              "sqlite",
		Drivers:           []string{"sqlite", "sqlite3"},
		Placeholder:       core.PlaceholderQuestion,
		IdentifierQuote:   `"`,
		SupportsReturning: true,
		UnboundedLimit:    "-1",
		MaxParameters:     32766,
	}

	Postgres = &core.DialectConfig{
		Name:              "postgres",
		Drivers:           []string{"pgx", "postgres"},
		Placeholder:       core.PlaceholderDollar,
		IdentifierQuote:   `"`,
		SupportsReturning: true,
		MaxParameters:     65535,
	}

	MySQL = &core.DialectConfig{
		Name:            "mysql",
		Drivers:         []string{"mysql"},
		Placeholder:     core.PlaceholderQuestion,
		IdentifierQuote: "`",
		UnboundedLimit:  "18446744073709551615",
		MaxParameters:   65535,
	}

	DuckDB = &core.DialectConfig{
		Name:              "duckdb",
		Drivers:           []string{"duckdb"},
		Placeholder:       core.PlaceholderQuestion,
		IdentifierQuote:   `"`,
		SupportsReturning: true,
		MaxParameters:     65535,
	}
)

func init() {
	Register(SQLite)
	Register(Postgres)
	Register(MySQL)
	Register(DuckDB)
}

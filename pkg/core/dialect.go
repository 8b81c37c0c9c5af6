package core

import (
	"strconv"
	"strings"
)

// PlaceholderStyle describes how bound parameters are written.
type PlaceholderStyle int

const (
	// PlaceholderQuestion renders every parameter as "?".
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar renders parameters as "$1", "$2", ...
	PlaceholderDollar
)

// DialectConfig is the static description of a SQL dialect: everything the
// statement builder needs to render portable SQL text for one engine.
type DialectConfig struct {
	// Name is the dialect identifier (sqlite, postgres, mysql, duckdb).
	Name string

	// Drivers lists the database/sql driver names that speak this dialect.
	Drivers []string

	Placeholder PlaceholderStyle

	// IdentifierQuote and IdentifierQuoteEnd delimit quoted identifiers.
	IdentifierQuote    string
	IdentifierQuoteEnd string

	// SupportsReturning reports whether INSERT ... RETURNING is available.
	// Without it, auto-assigned keys are read back with LastInsertId.
	SupportsReturning bool

	// UnboundedLimit is written as LIMIT when only OFFSET is requested.
	// Empty means the dialect accepts OFFSET without LIMIT.
	UnboundedLimit string

	// MaxParameters bounds the number of bound parameters per statement.
	MaxParameters int
}

// FormatPlaceholder returns the placeholder for the 1-based parameter index.
func (d *DialectConfig) FormatPlaceholder(index int) string {
	if d.Placeholder == PlaceholderDollar {
		return "$" + strconv.Itoa(index)
	}
	return "?"
}

// QuoteIdentifier quotes an identifier, escaping embedded quote characters.
// Dotted names are quoted per part ("schema"."table").
func (d *DialectConfig) QuoteIdentifier(name string) string {
	open, end := d.IdentifierQuote, d.IdentifierQuoteEnd
	if open == "" {
		open = `"`
	}
	if end == "" {
		end = open
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = open + strings.ReplaceAll(p, end, end+end) + end
	}
	return strings.Join(parts, ".")
}

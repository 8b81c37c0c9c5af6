// Package query renders predicates, orderings and the handful of statements
// the record layer needs (SELECT, COUNT, INSERT, UPDATE, DELETE) as SQL text
// plus bound arguments for one dialect.
//
// Nothing here parses SQL: expressions are small value types that write
// themselves into a Builder.
package query

import (
	"strings"

	"github.com/leapstack-labs/leaprecord/pkg/core"
)

// Builder accumulates SQL text and bound arguments.
type Builder struct {
	dialect   *core.DialectConfig
	buf       strings.Builder
	args      []any
	qualifier string
}

// NewBuilder creates a builder rendering for the given dialect.
func NewBuilder(d *core.DialectConfig) *Builder {
	return &Builder{dialect: d}
}

// Dialect returns the dialect the builder renders for.
func (b *Builder) Dialect() *core.DialectConfig {
	return b.dialect
}

// WriteString appends raw SQL text.
func (b *Builder) WriteString(s string) {
	b.buf.WriteString(s)
}

// WriteIdent appends a quoted identifier.
func (b *Builder) WriteIdent(name string) {
	b.buf.WriteString(b.dialect.QuoteIdentifier(name))
}

// WriteColumn appends a column reference. An empty table falls back to the
// builder's current qualifier; with no qualifier the column is unqualified.
func (b *Builder) WriteColumn(table, name string) {
	if table == "" {
		table = b.qualifier
	}
	if table != "" {
		b.WriteIdent(table)
		b.buf.WriteByte('.')
	}
	b.WriteIdent(name)
}

// WriteArg appends a placeholder and records its argument.
func (b *Builder) WriteArg(v any) {
	b.args = append(b.args, v)
	b.buf.WriteString(b.dialect.FormatPlaceholder(len(b.args)))
}

// WriteExpr renders e, or a tautology when e is nil.
func (b *Builder) WriteExpr(e Expr) {
	if e == nil {
		b.buf.WriteString("1 = 1")
		return
	}
	e.WriteSQL(b)
}

// Qualify renders fn with unqualified columns bound to table.
func (b *Builder) Qualify(table string, fn func()) {
	prev := b.qualifier
	b.qualifier = table
	fn()
	b.qualifier = prev
}

// String returns the SQL text built so far.
func (b *Builder) String() string {
	return b.buf.String()
}

// Args returns the bound arguments in placeholder order.
func (b *Builder) Args() []any {
	return b.args
}

// Render renders a single expression, mostly useful in tests and logs.
func Render(d *core.DialectConfig, e Expr) (string, []any) {
	b := NewBuilder(d)
	b.WriteExpr(e)
	return b.String(), b.Args()
}

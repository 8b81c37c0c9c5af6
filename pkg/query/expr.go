package query

import "strings"

// Expr is a SQL expression that renders itself into a Builder.
type Expr interface {
	WriteSQL(b *Builder)
}

// Column references a column, optionally qualified by a table or alias.
type Column struct {
	Table string
	Name  string
}

// Col references a column of the table being queried.
func Col(name string) Column {
	return Column{Name: name}
}

// TableCol references a column of a specific table or alias.
func TableCol(table, name string) Column {
	return Column{Table: table, Name: name}
}

// WriteSQL implements Expr.
func (c Column) WriteSQL(b *Builder) {
	b.WriteColumn(c.Table, c.Name)
}

// Eq compares the column to a value or expression. A nil value renders IS NULL.
func (c Column) Eq(v any) Expr {
	if v == nil {
		return c.IsNull()
	}
	return &comparison{left: c, op: "=", right: v}
}

// NotEq is the negation of Eq. A nil value renders IS NOT NULL.
func (c Column) NotEq(v any) Expr {
	if v == nil {
		return c.IsNotNull()
	}
	return &comparison{left: c, op: "<>", right: v}
}

// Gt renders column > v.
func (c Column) Gt(v any) Expr { return &comparison{left: c, op: ">", right: v} }

// Gte renders column >= v.
func (c Column) Gte(v any) Expr { return &comparison{left: c, op: ">=", right: v} }

// Lt renders column < v.
func (c Column) Lt(v any) Expr { return &comparison{left: c, op: "<", right: v} }

// Lte renders column <= v.
func (c Column) Lte(v any) Expr { return &comparison{left: c, op: "<=", right: v} }

// Like renders column LIKE pattern.
func (c Column) Like(pattern string) Expr { return &comparison{left: c, op: "LIKE", right: pattern} }

// Between renders column BETWEEN lo AND hi.
func (c Column) Between(lo, hi any) Expr {
	return &between{col: c, lo: lo, hi: hi}
}

// In renders column IN (values...). An empty list matches nothing.
func (c Column) In(values ...any) Expr {
	return &in{col: c, values: values}
}

// NotIn renders column NOT IN (values...). An empty list matches everything.
func (c Column) NotIn(values ...any) Expr {
	return &in{col: c, values: values, negate: true}
}

// IsNull renders column IS NULL.
func (c Column) IsNull() Expr { return &nullCheck{col: c} }

// IsNotNull renders column IS NOT NULL.
func (c Column) IsNotNull() Expr { return &nullCheck{col: c, negate: true} }

// Asc orders by the column ascending.
func (c Column) Asc() Ordering { return Ordering{Expr: c} }

// Desc orders by the column descending.
func (c Column) Desc() Ordering { return Ordering{Expr: c, Descending: true} }

type comparison struct {
	left  Expr
	op    string
	right any
}

func (e *comparison) WriteSQL(b *Builder) {
	e.left.WriteSQL(b)
	b.WriteString(" ")
	b.WriteString(e.op)
	b.WriteString(" ")
	writeOperand(b, e.right)
}

func writeOperand(b *Builder, v any) {
	if x, ok := v.(Expr); ok {
		x.WriteSQL(b)
		return
	}
	b.WriteArg(v)
}

type between struct {
	col    Column
	lo, hi any
}

func (e *between) WriteSQL(b *Builder) {
	e.col.WriteSQL(b)
	b.WriteString(" BETWEEN ")
	writeOperand(b, e.lo)
	b.WriteString(" AND ")
	writeOperand(b, e.hi)
}

type in struct {
	col    Column
	values []any
	negate bool
}

func (e *in) WriteSQL(b *Builder) {
	if len(e.values) == 0 {
		if e.negate {
			b.WriteString("1 = 1")
		} else {
			b.WriteString("1 = 0")
		}
		return
	}
	e.col.WriteSQL(b)
	if e.negate {
		b.WriteString(" NOT IN (")
	} else {
		b.WriteString(" IN (")
	}
	for i, v := range e.values {
		if i > 0 {
			b.WriteString(", ")
		}
		writeOperand(b, v)
	}
	b.WriteString(")")
}

type nullCheck struct {
	col    Column
	negate bool
}

func (e *nullCheck) WriteSQL(b *Builder) {
	e.col.WriteSQL(b)
	if e.negate {
		b.WriteString(" IS NOT NULL")
	} else {
		b.WriteString(" IS NULL")
	}
}

type junction struct {
	op    string
	exprs []Expr
	empty string
}

// And conjoins expressions. Nil expressions are skipped; no expressions
// renders a tautology.
func And(exprs ...Expr) Expr {
	return &junction{op: " AND ", exprs: compact(exprs), empty: "1 = 1"}
}

// Or disjoins expressions. Nil expressions are skipped; no expressions
// renders a contradiction.
func Or(exprs ...Expr) Expr {
	return &junction{op: " OR ", exprs: compact(exprs), empty: "1 = 0"}
}

func compact(exprs []Expr) []Expr {
	out := make([]Expr, 0, len(exprs))
	for _, e := range exprs {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (e *junction) WriteSQL(b *Builder) {
	switch len(e.exprs) {
	case 0:
		b.WriteString(e.empty)
	case 1:
		e.exprs[0].WriteSQL(b)
	default:
		b.WriteString("(")
		for i, x := range e.exprs {
			if i > 0 {
				b.WriteString(e.op)
			}
			x.WriteSQL(b)
		}
		b.WriteString(")")
	}
}

type not struct {
	expr Expr
}

// Not negates an expression.
func Not(e Expr) Expr {
	return &not{expr: e}
}

func (e *not) WriteSQL(b *Builder) {
	b.WriteString("NOT (")
	b.WriteExpr(e.expr)
	b.WriteString(")")
}

type raw struct {
	sql  string
	args []any
}

// Raw embeds a SQL fragment. Each "?" outside string literals is replaced
// with the dialect's placeholder for the next argument.
func Raw(sql string, args ...any) Expr {
	return &raw{sql: sql, args: args}
}

func (e *raw) WriteSQL(b *Builder) {
	var (
		next    int
		inQuote bool
		chunk   strings.Builder
	)
	for _, r := range e.sql {
		switch {
		case r == '\'':
			inQuote = !inQuote
			chunk.WriteRune(r)
		case r == '?' && !inQuote && next < len(e.args):
			b.WriteString(chunk.String())
			chunk.Reset()
			b.WriteArg(e.args[next])
			next++
		default:
			chunk.WriteRune(r)
		}
	}
	b.WriteString(chunk.String())
}

// TupleIn matches rows whose columns equal one of the given value tuples.
// A single column renders as IN; several columns render as a disjunction of
// conjunctions, which every supported dialect accepts.
func TupleIn(cols []Column, tuples [][]any) Expr {
	if len(cols) == 1 {
		values := make([]any, len(tuples))
		for i, t := range tuples {
			values[i] = t[0]
		}
		return cols[0].In(values...)
	}
	alts := make([]Expr, len(tuples))
	for i, t := range tuples {
		eqs := make([]Expr, len(cols))
		for j, c := range cols {
			eqs[j] = c.Eq(t[j])
		}
		alts[i] = And(eqs...)
	}
	return Or(alts...)
}

// Ordering is one ORDER BY term.
type Ordering struct {
	Expr       Expr
	Descending bool
}

// Asc orders by a column of the queried table ascending.
func Asc(column string) Ordering { return Col(column).Asc() }

// Desc orders by a column of the queried table descending.
func Desc(column string) Ordering { return Col(column).Desc() }

// Reversed returns the ordering with its direction flipped.
func (o Ordering) Reversed() Ordering {
	return Ordering{Expr: o.Expr, Descending: !o.Descending}
}

func (o Ordering) writeSQL(b *Builder) {
	b.WriteExpr(o.Expr)
	if o.Descending {
		b.WriteString(" DESC")
	} else {
		b.WriteString(" ASC")
	}
}

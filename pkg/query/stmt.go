package query

import (
	"strconv"

	"github.com/leapstack-labs/leaprecord/pkg/core"
)

// SelectColumn is one item of a SELECT list.
type SelectColumn struct {
	Expr  Expr
	Alias string
}

// Join is a joined table.
type Join struct {
	// Kind is the join keyword, e.g. "LEFT JOIN" or "JOIN".
	Kind  string
	Table string
	Alias string
	On    Expr
}

// Select describes a SELECT statement over one table and optional joins.
// Unqualified columns in Where and OrderBy resolve against Alias (or Table).
type Select struct {
	Table   string
	Alias   string
	Columns []SelectColumn
	Joins   []Join
	Where   Expr
	OrderBy []Ordering
	Limit   *int
	Offset  *int
}

func (s *Select) qualifier() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Table
}

// Build renders the statement.
func (s *Select) Build(d *core.DialectConfig) (string, []any) {
	b := NewBuilder(d)
	s.write(b, false)
	return b.String(), b.Args()
}

// BuildCount renders a statement returning the number of rows s would
// return. Limit and offset are honored through a derived table.
func (s *Select) BuildCount(d *core.DialectConfig) (string, []any) {
	b := NewBuilder(d)
	if s.Limit == nil && s.Offset == nil {
		b.WriteString("SELECT COUNT(*)")
		s.writeFrom(b)
		return b.String(), b.Args()
	}
	b.WriteString("SELECT COUNT(*) FROM (")
	s.write(b, true)
	b.WriteString(") AS ")
	b.WriteIdent("counted")
	return b.String(), b.Args()
}

func (s *Select) write(b *Builder, constant bool) {
	b.Qualify(s.qualifier(), func() {
		b.WriteString("SELECT ")
		switch {
		case constant:
			b.WriteString("1")
		case len(s.Columns) == 0:
			b.WriteString("*")
		default:
			for i, c := range s.Columns {
				if i > 0 {
					b.WriteString(", ")
				}
				c.Expr.WriteSQL(b)
				if c.Alias != "" {
					b.WriteString(" AS ")
					b.WriteIdent(c.Alias)
				}
			}
		}
	})
	s.writeFrom(b)
	b.Qualify(s.qualifier(), func() {
		if len(s.OrderBy) > 0 {
			b.WriteString(" ORDER BY ")
			for i, o := range s.OrderBy {
				if i > 0 {
					b.WriteString(", ")
				}
				o.writeSQL(b)
			}
		}
	})
	writeLimit(b, s.Limit, s.Offset)
}

func (s *Select) writeFrom(b *Builder) {
	b.WriteString(" FROM ")
	b.WriteIdent(s.Table)
	if s.Alias != "" {
		b.WriteString(" AS ")
		b.WriteIdent(s.Alias)
	}
	for _, j := range s.Joins {
		b.WriteString(" ")
		b.WriteString(j.Kind)
		b.WriteString(" ")
		b.WriteIdent(j.Table)
		if j.Alias != "" {
			b.WriteString(" AS ")
			b.WriteIdent(j.Alias)
		}
		b.WriteString(" ON ")
		b.Qualify(s.qualifier(), func() { b.WriteExpr(j.On) })
	}
	if s.Where != nil {
		b.WriteString(" WHERE ")
		b.Qualify(s.qualifier(), func() { s.Where.WriteSQL(b) })
	}
}

func writeLimit(b *Builder, limit, offset *int) {
	switch {
	case limit != nil:
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(*limit))
	case offset != nil && b.Dialect().UnboundedLimit != "":
		b.WriteString(" LIMIT ")
		b.WriteString(b.Dialect().UnboundedLimit)
	}
	if offset != nil {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(*offset))
	}
}

// Insert describes a single-row INSERT.
type Insert struct {
	Table   string
	Columns []string
	Values  []any
	// Returning lists columns read back after the insert. It is only
	// rendered when the dialect supports RETURNING.
	Returning []string
}

// Build renders the statement.
func (s *Insert) Build(d *core.DialectConfig) (string, []any) {
	b := NewBuilder(d)
	b.WriteString("INSERT INTO ")
	b.WriteIdent(s.Table)
	if len(s.Columns) == 0 {
		if d.Name == "mysql" {
			b.WriteString(" () VALUES ()")
		} else {
			b.WriteString(" DEFAULT VALUES")
		}
	} else {
		b.WriteString(" (")
		for i, c := range s.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteIdent(c)
		}
		b.WriteString(") VALUES (")
		for i, v := range s.Values {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteArg(v)
		}
		b.WriteString(")")
	}
	if len(s.Returning) > 0 && d.SupportsReturning {
		b.WriteString(" RETURNING ")
		for i, c := range s.Returning {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteIdent(c)
		}
	}
	return b.String(), b.Args()
}

// Update describes an UPDATE of the given columns for rows matching Where.
type Update struct {
	Table   string
	Columns []string
	Values  []any
	Where   Expr
}

// Build renders the statement.
func (s *Update) Build(d *core.DialectConfig) (string, []any) {
	b := NewBuilder(d)
	b.WriteString("UPDATE ")
	b.WriteIdent(s.Table)
	b.WriteString(" SET ")
	for i, c := range s.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteIdent(c)
		b.WriteString(" = ")
		b.WriteArg(s.Values[i])
	}
	if s.Where != nil {
		b.WriteString(" WHERE ")
		s.Where.WriteSQL(b)
	}
	return b.String(), b.Args()
}

// Delete describes a DELETE of the rows matching Where.
type Delete struct {
	Table string
	Where Expr
}

// Build renders the statement.
func (s *Delete) Build(d *core.DialectConfig) (string, []any) {
	b := NewBuilder(d)
	b.WriteString("DELETE FROM ")
	b.WriteIdent(s.Table)
	if s.Where != nil {
		b.WriteString(" WHERE ")
		s.Where.WriteSQL(b)
	}
	return b.String(), b.Args()
}

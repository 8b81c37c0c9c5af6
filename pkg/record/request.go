package record

import (
	"fmt"
	"slices"

	"github.com/leapstack-labs/leaprecord/pkg/core"
	"github.com/leapstack-labs/leaprecord/pkg/query"
)

// Request is an immutable description of a read of records of type T.
// Every composing method returns a new request and leaves the receiver
// untouched, so a request can be shared and refined freely.
type Request[T any] struct {
	filters  []filterTerm
	order    []query.Ordering
	limit    *int
	offset   *int
	includes []Inclusion[T]
}

type filterTerm struct {
	expr query.Expr
	key  []any
}

// For returns the base request for T: no filter, no ordering, no includes.
func For[T any]() Request[T] {
	return Request[T]{}
}

// Filter returns a request with e added to the filter. Filters conjoin.
func (r Request[T]) Filter(e query.Expr) Request[T] {
	if e == nil {
		return r
	}
	r.filters = append(slices.Clip(r.filters), filterTerm{expr: e})
	return r
}

// FilterKey returns a request restricted to the record with the given
// primary key values, in primary key column order.
func (r Request[T]) FilterKey(values ...any) Request[T] {
	r.filters = append(slices.Clip(r.filters), filterTerm{key: slices.Clone(values)})
	return r
}

// Order returns a request ordered by the given terms, replacing any
// previous ordering.
func (r Request[T]) Order(by ...query.Ordering) Request[T] {
	r.order = slices.Clone(by)
	return r
}

// Limit returns a request returning at most n records after skipping
// offset records. A negative n removes the limit. On a nested request of an
// include the limit applies to each owner's related records.
func (r Request[T]) Limit(n, offset int) Request[T] {
	r.limit, r.offset = nil, nil
	if n >= 0 {
		r.limit = &n
	}
	if offset > 0 {
		r.offset = &offset
	}
	return r
}

// Including returns a request that also fetches the given associations.
// Pass an association to include it with a plain nested request, or
// assoc.With(nested) to filter, order or limit the related records.
func (r Request[T]) Including(incs ...Inclusion[T]) Request[T] {
	r.includes = append(slices.Clip(r.includes), incs...)
	return r
}

// IncludeKeys returns the composite keys of the included associations.
func (r Request[T]) IncludeKeys() ([]string, error) {
	p, err := r.plan()
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(p.includes))
	for i, inc := range p.includes {
		keys[i] = inc.key
	}
	return keys, nil
}

// SQL renders the statement fetching the owner records (with joined toOne
// includes) for dialect d. Prefetched includes run as separate statements.
func (r Request[T]) SQL(d *core.DialectConfig) (string, []any, error) {
	p, err := r.plan()
	if err != nil {
		return "", nil, err
	}
	stmt, _ := p.selectStmt(nil, nil)
	s, args := stmt.Build(d)
	return s, args, nil
}

// plan is the type-erased form of a request.
type plan struct {
	mapping  *KeyMapping
	where    []query.Expr
	order    []query.Ordering
	limit    *int
	offset   *int
	includes []*includeSpec
}

type includeSpec struct {
	key    string
	meta   *assocMeta
	nested *plan
}

func (r Request[T]) plan() (*plan, error) {
	m, err := MappingOf[T]()
	if err != nil {
		return nil, err
	}
	p := &plan{
		mapping: m,
		order:   r.order,
		limit:   r.limit,
		offset:  r.offset,
	}
	for _, f := range r.filters {
		if f.key == nil {
			p.where = append(p.where, f.expr)
			continue
		}
		e, err := keyFilter(m, f.key)
		if err != nil {
			return nil, err
		}
		p.where = append(p.where, e)
	}

	seen := make(map[string]bool, len(r.includes))
	for _, include := range r.includes {
		inc, err := include.inclusion(nil)
		if err != nil {
			return nil, err
		}
		if seen[inc.key] {
			return nil, configError(m.goType.String(), "include key %q is used twice; rename one with As", inc.key)
		}
		seen[inc.key] = true
		p.includes = append(p.includes, inc)
	}
	return p, nil
}

func keyFilter(m *KeyMapping, values []any) (query.Expr, error) {
	pk := m.PrimaryKey()
	if len(values) != len(pk) {
		return nil, configError(m.goType.String(), "key of %s has %d columns, got %d values", m.table, len(pk), len(values))
	}
	eqs := make([]query.Expr, len(pk))
	for i, c := range pk {
		eqs[i] = query.Col(c).Eq(values[i])
	}
	return query.And(eqs...), nil
}

// joinable reports whether inc can be fetched with a LEFT JOIN in the
// owner query: a toOne association keyed by the related primary key, with
// a plain nested request.
func (inc *includeSpec) joinable() bool {
	m := inc.meta
	n := inc.nested
	return m.kind == ToOne && m.fkOnOwner && m.through == nil && m.relatedByKey() &&
		len(n.where) == 0 && len(n.order) == 0 && n.limit == nil && n.offset == nil && len(n.includes) == 0
}

func joinAlias(i int) string {
	return fmt.Sprintf("lr_j%d", i+1)
}

func joinPrefix(alias string) string {
	return alias + "__"
}

const pivotAlias = "lr_pivot"

// pivotSpec adds a pivot table join to a related query. The pivot's owner
// side columns are selected so rows can be grouped by owner.
type pivotSpec struct {
	meta *assocMeta
}

func (ps *pivotSpec) join() query.Join {
	m := ps.meta
	on := make([]query.Expr, len(m.relatedColumns))
	for i, c := range m.relatedColumns {
		on[i] = query.TableCol(pivotAlias, m.throughRelatedColumns[i]).Eq(query.TableCol(m.related.table, c))
	}
	return query.Join{Kind: "JOIN", Table: m.through.table, Alias: pivotAlias, On: query.And(on...)}
}

func (ps *pivotSpec) ownerColumns() []query.Column {
	cols := make([]query.Column, len(ps.meta.throughOwnerColumns))
	for i, c := range ps.meta.throughOwnerColumns {
		cols[i] = query.TableCol(pivotAlias, c)
	}
	return cols
}

// selectStmt builds the owner query. It returns the statement and the
// includes served by joins, in join alias order.
func (p *plan) selectStmt(pivot *pivotSpec, extra query.Expr) (*query.Select, []*includeSpec) {
	m := p.mapping
	stmt := &query.Select{
		Table:   m.table,
		OrderBy: p.order,
		Limit:   p.limit,
		Offset:  p.offset,
	}
	for _, c := range m.columns {
		stmt.Columns = append(stmt.Columns, query.SelectColumn{Expr: query.TableCol(m.table, c.Name)})
	}

	var joined []*includeSpec
	for _, inc := range p.includes {
		if !inc.joinable() {
			continue
		}
		alias := joinAlias(len(joined))
		joined = append(joined, inc)

		meta := inc.meta
		on := make([]query.Expr, len(meta.ownerColumns))
		for i, c := range meta.ownerColumns {
			on[i] = query.TableCol(alias, meta.relatedColumns[i]).Eq(query.TableCol(m.table, c))
		}
		stmt.Joins = append(stmt.Joins, query.Join{Kind: "LEFT JOIN", Table: meta.related.table, Alias: alias, On: query.And(on...)})
		for _, c := range meta.related.columns {
			stmt.Columns = append(stmt.Columns, query.SelectColumn{
				Expr:  query.TableCol(alias, c.Name),
				Alias: joinPrefix(alias) + c.Name,
			})
		}
	}

	if pivot != nil {
		stmt.Joins = append(stmt.Joins, pivot.join())
		for _, c := range pivot.meta.throughOwnerColumns {
			stmt.Columns = append(stmt.Columns, query.SelectColumn{
				Expr:  query.TableCol(pivotAlias, c),
				Alias: joinPrefix(pivotAlias) + c,
			})
		}
	}

	where := slices.Clone(p.where)
	if extra != nil {
		where = append(where, extra)
	}
	if len(where) > 0 {
		stmt.Where = query.And(where...)
	}
	return stmt, joined
}

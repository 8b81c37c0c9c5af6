package record

import (
	"context"
	"fmt"
	"reflect"

	"github.com/leapstack-labs/leaprecord/pkg/core"
	"github.com/leapstack-labs/leaprecord/pkg/query"
)

// prefetchChunkSize caps the number of owner keys per prefetch statement.
const prefetchChunkSize = 500

// node is one materialized record and the related records of its includes.
type node struct {
	value   reflect.Value // *T
	extras  []any
	related map[string]*slot
}

type slot struct {
	nodes []*node
}

// FetchAll returns the matching records. Includes are not resolved; use
// FetchComposites to read related records.
func (r Request[T]) FetchAll(ctx context.Context, ex core.Executor) ([]T, error) {
	p, err := r.plan()
	if err != nil {
		return nil, err
	}
	p.includes = nil
	nodes, err := fetchNodes(ctx, ex, p, nil, nil)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(nodes))
	for i, n := range nodes {
		out[i] = *n.value.Interface().(*T)
	}
	return out, nil
}

// FetchOne returns the first matching record. Finding none is not an
// error: ok is false.
func (r Request[T]) FetchOne(ctx context.Context, ex core.Executor) (rec T, ok bool, err error) {
	if r.empty() {
		return rec, false, nil
	}
	all, err := r.first().FetchAll(ctx, ex)
	if err != nil || len(all) == 0 {
		return rec, false, err
	}
	return all[0], true, nil
}

// FetchCount returns the number of matching records without materializing
// them. Limit and offset are honored.
func (r Request[T]) FetchCount(ctx context.Context, ex core.Executor) (int64, error) {
	p, err := r.plan()
	if err != nil {
		return 0, err
	}
	p.includes = nil
	stmt, _ := p.selectStmt(nil, nil)
	sqlText, args := stmt.BuildCount(ex.Dialect())

	rows, err := ex.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", p.mapping.table, err)
	}
	rs, err := readRows(ex, rows)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", p.mapping.table, err)
	}
	if len(rs.rows) != 1 || len(rs.rows[0]) != 1 {
		return 0, fmt.Errorf("failed to count %s: unexpected result shape", p.mapping.table)
	}
	n, err := toInt64(rs.rows[0][0])
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", p.mapping.table, err)
	}
	return n, nil
}

// FetchComposites returns the matching records with the related records of
// every include. Owners keep the request's ordering.
func (r Request[T]) FetchComposites(ctx context.Context, ex core.Executor) ([]Composite[T], error) {
	p, err := r.plan()
	if err != nil {
		return nil, err
	}
	nodes, err := fetchNodes(ctx, ex, p, nil, nil)
	if err != nil {
		return nil, err
	}
	out := make([]Composite[T], len(nodes))
	for i, n := range nodes {
		out[i] = compositeOf[T](n)
	}
	return out, nil
}

// FetchOneComposite returns the first matching record with its includes.
func (r Request[T]) FetchOneComposite(ctx context.Context, ex core.Executor) (c Composite[T], ok bool, err error) {
	if r.empty() {
		return c, false, nil
	}
	all, err := r.first().FetchComposites(ctx, ex)
	if err != nil || len(all) == 0 {
		return c, false, err
	}
	return all[0], true, nil
}

// empty reports whether the request was limited to no records.
func (r Request[T]) empty() bool {
	return r.limit != nil && *r.limit == 0
}

// first narrows r to its first record, keeping its offset.
func (r Request[T]) first() Request[T] {
	offset := 0
	if r.offset != nil {
		offset = *r.offset
	}
	return r.Limit(1, offset)
}

// fetchNodes runs the owner query of p, restricted by extra, then resolves
// every include of p.
func fetchNodes(ctx context.Context, ex core.Executor, p *plan, pivot *pivotSpec, extra query.Expr) ([]*node, error) {
	m := p.mapping
	stmt, joined := p.selectStmt(pivot, extra)
	sqlText, args := stmt.Build(ex.Dialect())

	rows, err := ex.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", m.table, err)
	}
	rs, err := readRows(ex, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", m.table, err)
	}

	nodes := make([]*node, 0, len(rs.rows))
	seen := make(map[string]bool, len(rs.rows))
	for _, raw := range rs.rows {
		rec, err := decodeRecord(m, rs, "", raw)
		if err != nil {
			return nil, err
		}
		n := &node{value: rec, related: make(map[string]*slot, len(p.includes))}

		if pivot != nil {
			if n.extras, err = decodePivotKey(pivot, rs, raw); err != nil {
				return nil, err
			}
		}

		key, ok := keyOf(append(fieldValues(m, rec, m.PrimaryKey()), n.extras...))
		if ok {
			if seen[key] {
				continue
			}
			seen[key] = true
		}

		for i, inc := range joined {
			prefix := joinPrefix(joinAlias(i))
			s := &slot{nodes: []*node{}}
			if !allNull(inc.meta.related, rs, prefix, raw) {
				related, err := decodeRecord(inc.meta.related, rs, prefix, raw)
				if err != nil {
					return nil, err
				}
				s.nodes = append(s.nodes, &node{value: related, related: map[string]*slot{}})
			}
			n.related[inc.key] = s
		}
		nodes = append(nodes, n)
	}

	if len(nodes) == 0 {
		return nodes, nil
	}
	isJoined := make(map[*includeSpec]bool, len(joined))
	for _, inc := range joined {
		isJoined[inc] = true
	}
	for _, inc := range p.includes {
		if isJoined[inc] {
			continue
		}
		if err := prefetch(ctx, ex, nodes, inc); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

func decodePivotKey(pivot *pivotSpec, rs *resultSet, raw []any) ([]any, error) {
	through := pivot.meta.through
	prefix := joinPrefix(pivotAlias)
	out := make([]any, len(pivot.meta.throughOwnerColumns))
	for i, name := range pivot.meta.throughOwnerColumns {
		c := through.byName[name]
		idx, ok := rs.columns[prefix+name]
		if !ok {
			return nil, &core.DecodingError{Table: through.table, Column: name, Err: fmt.Errorf("column missing from result set")}
		}
		v, err := decodeValue(c.goType, raw[idx])
		if err != nil {
			return nil, &core.DecodingError{Table: through.table, Column: name, Err: err}
		}
		out[i] = v
	}
	return out, nil
}

// prefetch loads the related records of inc for owners with one statement
// per chunk of owner keys and attaches them to each owner in nested order.
func prefetch(ctx context.Context, ex core.Executor, owners []*node, inc *includeSpec) error {
	meta := inc.meta

	var keys [][]any
	ownerKeys := make([]string, len(owners))
	hasKey := make([]bool, len(owners))
	seen := make(map[string]bool)
	for i, o := range owners {
		values := fieldValues(meta.owner, o.value, meta.ownerColumns)
		k, ok := keyOf(values)
		if !ok {
			continue
		}
		ownerKeys[i], hasKey[i] = k, true
		if !seen[k] {
			seen[k] = true
			args := make([]any, len(values))
			for j, v := range values {
				args[j] = keyArg(v)
			}
			keys = append(keys, args)
		}
	}

	// per-owner limits are applied after grouping
	nested := *inc.nested
	nested.limit, nested.offset = nil, nil

	var pivot *pivotSpec
	var keyCols []query.Column
	if meta.through != nil {
		pivot = &pivotSpec{meta: meta}
		keyCols = pivot.ownerColumns()
	} else {
		for _, c := range meta.relatedColumns {
			keyCols = append(keyCols, query.TableCol(meta.related.table, c))
		}
	}

	groups := make(map[string][]*node)
	for _, chunk := range chunkKeys(keys, chunkSize(ex.Dialect(), len(keyCols))) {
		related, err := fetchNodes(ctx, ex, &nested, pivot, query.TupleIn(keyCols, chunk))
		if err != nil {
			return fmt.Errorf("failed to prefetch %s: %w", inc.key, err)
		}
		for _, n := range related {
			var k string
			var ok bool
			if pivot != nil {
				k, ok = keyOf(n.extras)
			} else {
				k, ok = keyOf(fieldValues(meta.related, n.value, meta.relatedColumns))
			}
			if ok {
				groups[k] = append(groups[k], n)
			}
		}
	}

	for i, o := range owners {
		var group []*node
		if hasKey[i] {
			group = window(groups[ownerKeys[i]], inc.nested.limit, inc.nested.offset)
		}
		if meta.kind == ToOne && len(group) > 1 {
			group = group[:1]
		}
		o.related[inc.key] = &slot{nodes: append([]*node{}, group...)}
	}
	return nil
}

func chunkSize(d *core.DialectConfig, columns int) int {
	size := prefetchChunkSize
	if d != nil && d.MaxParameters > 0 && columns > 0 && d.MaxParameters/columns < size {
		size = d.MaxParameters / columns
	}
	return max(size, 1)
}

func chunkKeys(keys [][]any, size int) [][][]any {
	var chunks [][][]any
	for len(keys) > size {
		chunks = append(chunks, keys[:size])
		keys = keys[size:]
	}
	if len(keys) > 0 {
		chunks = append(chunks, keys)
	}
	return chunks
}

func window(nodes []*node, limit, offset *int) []*node {
	if offset != nil {
		if *offset >= len(nodes) {
			return nil
		}
		nodes = nodes[*offset:]
	}
	if limit != nil && *limit < len(nodes) {
		nodes = nodes[:*limit]
	}
	return nodes
}

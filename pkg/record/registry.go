package record

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Registry holds one KeyMapping per record type. Mappings are built on first
// use under the write lock and never change afterwards; lookups of built
// mappings only take the read lock.
type Registry struct {
	mu      sync.RWMutex
	byType  map[reflect.Type]*KeyMapping
	byTable map[string]*KeyMapping
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byType:  make(map[reflect.Type]*KeyMapping),
		byTable: make(map[string]*KeyMapping),
	}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry used by requests,
// associations and persistence operations.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// MappingOf returns the key mapping of T from the process-wide registry,
// building it on first use.
func MappingOf[T any]() (*KeyMapping, error) {
	return defaultRegistry.Mapping(typeOf[T]())
}

// Register builds and registers the key mapping of T (and of every record
// type its foreign keys reference).
func Register[T any]() error {
	_, err := MappingOf[T]()
	return err
}

// Mappings returns all mappings of the process-wide registry sorted by table.
func Mappings() []*KeyMapping {
	return defaultRegistry.Mappings()
}

// Lookup returns the mapping registered for table.
func (r *Registry) Lookup(table string) (*KeyMapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byTable[table]
	return m, ok
}

// Mappings returns all registered mappings sorted by table.
func (r *Registry) Mappings() []*KeyMapping {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[*KeyMapping]bool, len(r.byType))
	out := make([]*KeyMapping, 0, len(r.byType))
	for _, m := range r.byType {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].table != out[j].table {
			return out[i].table < out[j].table
		}
		return out[i].goType.String() < out[j].goType.String()
	})
	return out
}

// Mapping returns the mapping of record type t, building it on first use.
// A failed build registers nothing.
func (r *Registry) Mapping(t reflect.Type) (*KeyMapping, error) {
	r.mu.RLock()
	m, ok := r.byType[t]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.byType[t]; ok {
		return m, nil
	}

	b := &mappingBuilder{
		reg:     r,
		pending: make(map[reflect.Type]*KeyMapping),
		tables:  make(map[string]*KeyMapping),
	}
	m, err := b.build(t)
	if err != nil {
		return nil, err
	}
	for typ, pm := range b.pending {
		r.byType[typ] = pm
		if _, exists := r.byTable[pm.table]; !exists {
			r.byTable[pm.table] = pm
		}
	}
	return m, nil
}

// mappingBuilder builds a mapping and the mappings its foreign keys reach.
// Must be used with the registry write lock held.
type mappingBuilder struct {
	reg     *Registry
	pending map[reflect.Type]*KeyMapping
	tables  map[string]*KeyMapping
}

func (b *mappingBuilder) lookup(t reflect.Type) (*KeyMapping, bool) {
	if m, ok := b.reg.byType[t]; ok {
		return m, true
	}
	m, ok := b.pending[t]
	return m, ok
}

func (b *mappingBuilder) build(t reflect.Type) (*KeyMapping, error) {
	if m, ok := b.lookup(t); ok {
		return m, nil
	}

	subject := t.String()
	if t.Kind() != reflect.Struct {
		return nil, configError(subject, "records must be struct types, got %s", t.Kind())
	}

	cols, err := parseColumns(t)
	if err != nil {
		return nil, configError(subject, "%v", err)
	}

	zero := reflect.New(t).Interface()
	table := defaultTableName(t)
	if tn, ok := zero.(Tabler); ok {
		table = tn.TableName()
	}
	if table == "" {
		return nil, configError(subject, "empty table name")
	}

	m := &KeyMapping{
		goType:  t,
		table:   table,
		columns: cols,
		byName:  make(map[string]*Column, len(cols)),
	}
	for _, c := range cols {
		m.byName[c.Name] = c
		if c.PrimaryKey {
			m.primaryKey = append(m.primaryKey, c)
		}
	}
	if len(m.primaryKey) == 0 {
		return nil, configError(subject, "primary key is empty; tag at least one field with db:\",pk\"")
	}
	autos := 0
	for _, c := range m.primaryKey {
		if c.Auto {
			autos++
		}
	}
	if autos > 0 && len(m.primaryKey) > 1 {
		return nil, configError(subject, "auto primary key columns cannot be part of a composite key")
	}

	if err := b.checkTable(m); err != nil {
		return nil, err
	}

	// visible to recursive builds so self and mutual references resolve
	b.pending[t] = m
	b.tables[table] = m

	if fker, ok := zero.(foreignKeyer); ok {
		for _, fk := range fker.ForeignKeys() {
			resolved, err := b.resolveForeignKey(m, fk)
			if err != nil {
				return nil, err
			}
			m.foreignKeys = append(m.foreignKeys, resolved)
		}
	}
	return m, nil
}

// checkTable rejects a second type claiming an already mapped table with a
// different column set.
func (b *mappingBuilder) checkTable(m *KeyMapping) error {
	other, ok := b.tables[m.table]
	if !ok {
		other, ok = b.reg.byTable[m.table]
	}
	if !ok {
		return nil
	}
	if !sameColumns(m, other) {
		return configError(m.goType.String(), "table %q is already mapped by %s with columns %s", m.table, other.goType, other)
	}
	return nil
}

func sameColumns(a, b *KeyMapping) bool {
	if len(a.columns) != len(b.columns) {
		return false
	}
	for _, c := range a.columns {
		o, ok := b.byName[c.Name]
		if !ok || o.Type != c.Type || o.PrimaryKey != c.PrimaryKey {
			return false
		}
	}
	return true
}

func (b *mappingBuilder) resolveForeignKey(m *KeyMapping, fk ForeignKey) (ForeignKey, error) {
	subject := m.goType.String()
	if fk.target == nil {
		return fk, configError(subject, "foreign key %v has no target; use References or ReferencesColumns", fk.Columns)
	}
	if len(fk.Columns) == 0 {
		return fk, configError(subject, "foreign key to %s has no columns", fk.target)
	}
	for _, c := range fk.Columns {
		if _, ok := m.byName[c]; !ok {
			return fk, configError(subject, "foreign key column %q is not mapped", c)
		}
	}

	target, err := b.build(fk.target)
	if err != nil {
		return fk, fmt.Errorf("failed to map foreign key target of %s: %w", subject, err)
	}

	out := ForeignKey{
		Columns:       append([]string(nil), fk.Columns...),
		TargetTable:   target.table,
		TargetColumns: append([]string(nil), fk.TargetColumns...),
		target:        fk.target,
	}
	if len(out.TargetColumns) == 0 {
		out.TargetColumns = target.PrimaryKey()
	}
	if len(out.Columns) != len(out.TargetColumns) {
		return fk, configError(subject, "foreign key (%s) has %d columns but %s references %d",
			joinNames(out.Columns), len(out.Columns), target.table, len(out.TargetColumns))
	}
	for i, name := range out.TargetColumns {
		tc, ok := target.byName[name]
		if !ok {
			return fk, configError(subject, "foreign key references unmapped column %s.%s", target.table, name)
		}
		lc := m.byName[out.Columns[i]]
		if !lc.Type.compatible(tc.Type) {
			return fk, configError(subject, "foreign key column %q is %s but %s.%s is %s",
				lc.Name, lc.Type, target.table, tc.Name, tc.Type)
		}
	}
	return out, nil
}

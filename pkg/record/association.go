package record

import (
	"fmt"
	"slices"
)

// Kind is the cardinality of an association seen from its owner.
type Kind int

const (
	ToOne Kind = iota
	ToMany
)

func (k Kind) String() string {
	if k == ToMany {
		return "toMany"
	}
	return "toOne"
}

// assocMeta is the type-erased description shared by Association and the
// fetch machinery. Related rows match an owner when the values of
// relatedColumns (or, through a pivot, of throughOwnerColumns) equal the
// owner's values of ownerColumns.
type assocMeta struct {
	name    string
	kind    Kind
	owner   *KeyMapping
	related *KeyMapping

	ownerColumns   []string
	relatedColumns []string
	// fkOnOwner is set when the foreign key lives on the owner table.
	fkOnOwner bool

	through               *KeyMapping
	throughOwnerColumns   []string
	throughRelatedColumns []string
}

// relatedByKey reports whether related rows are matched on their primary
// key, so at most one related row exists per owner.
func (m *assocMeta) relatedByKey() bool {
	return slices.Equal(m.relatedColumns, m.related.PrimaryKey())
}

// Association is a declared relationship from records of type O to records
// of type R. It is only used to compose fetch requests; nothing traverses it
// implicitly.
type Association[O, R any] struct {
	meta *assocMeta
}

// AssociationOption configures how an association picks its foreign key.
type AssociationOption func(*associationOptions)

type associationOptions struct {
	via        []string
	viaRelated []string
}

// Via selects the foreign key by its columns when several foreign keys
// connect the same tables. For BelongsTo the columns live on the owner, for
// HasMany and HasOne on the related record, for ManyToMany on the pivot
// (the key towards the owner).
func Via(columns ...string) AssociationOption {
	return func(o *associationOptions) { o.via = columns }
}

// ViaRelated selects the pivot foreign key towards the related record of a
// ManyToMany association.
func ViaRelated(columns ...string) AssociationOption {
	return func(o *associationOptions) { o.viaRelated = columns }
}

func applyOptions(opts []AssociationOption) associationOptions {
	var o associationOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// BelongsTo declares a toOne association from O to R through a foreign key
// on O referencing R.
func BelongsTo[O, R any](name string, opts ...AssociationOption) (*Association[O, R], error) {
	owner, related, err := associationMappings[O, R](name)
	if err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	fk, err := pickForeignKey(name, owner, related.table, o.via, nil)
	if err != nil {
		return nil, err
	}
	return &Association[O, R]{meta: &assocMeta{
		name:           name,
		kind:           ToOne,
		owner:          owner,
		related:        related,
		ownerColumns:   fk.Columns,
		relatedColumns: fk.TargetColumns,
		fkOnOwner:      true,
	}}, nil
}

// HasMany declares a toMany association from O to R through a foreign key
// on R referencing O.
func HasMany[O, R any](name string, opts ...AssociationOption) (*Association[O, R], error) {
	return reverseAssociation[O, R](name, ToMany, opts)
}

// HasOne declares a toOne association from O to R through a foreign key on
// R referencing O. When several related rows match, the first in the nested
// request's order wins.
func HasOne[O, R any](name string, opts ...AssociationOption) (*Association[O, R], error) {
	return reverseAssociation[O, R](name, ToOne, opts)
}

func reverseAssociation[O, R any](name string, kind Kind, opts []AssociationOption) (*Association[O, R], error) {
	owner, related, err := associationMappings[O, R](name)
	if err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	fk, err := pickForeignKey(name, related, owner.table, o.via, nil)
	if err != nil {
		return nil, err
	}
	return &Association[O, R]{meta: &assocMeta{
		name:           name,
		kind:           kind,
		owner:          owner,
		related:        related,
		ownerColumns:   fk.TargetColumns,
		relatedColumns: fk.Columns,
	}}, nil
}

// ManyToMany declares a toMany association from O to R through pivot
// records P holding one foreign key to O and one to R.
func ManyToMany[O, R, P any](name string, opts ...AssociationOption) (*Association[O, R], error) {
	owner, related, err := associationMappings[O, R](name)
	if err != nil {
		return nil, err
	}
	pivot, err := MappingOf[P]()
	if err != nil {
		return nil, err
	}
	o := applyOptions(opts)

	toOwner, err := pickForeignKey(name, pivot, owner.table, o.via, nil)
	if err != nil {
		return nil, err
	}
	var exclude []string
	if owner.table == related.table {
		exclude = toOwner.Columns
	}
	toRelated, err := pickForeignKey(name, pivot, related.table, o.viaRelated, exclude)
	if err != nil {
		return nil, err
	}
	return &Association[O, R]{meta: &assocMeta{
		name:                  name,
		kind:                  ToMany,
		owner:                 owner,
		related:               related,
		ownerColumns:          toOwner.TargetColumns,
		relatedColumns:        toRelated.TargetColumns,
		through:               pivot,
		throughOwnerColumns:   toOwner.Columns,
		throughRelatedColumns: toRelated.Columns,
	}}, nil
}

// Must panics when err is non-nil. It is meant for package level
// association declarations.
func Must[A any](a A, err error) A {
	if err != nil {
		panic(err)
	}
	return a
}

func associationMappings[O, R any](name string) (*KeyMapping, *KeyMapping, error) {
	if name == "" {
		return nil, nil, configError(typeOf[O]().String(), "association name is empty")
	}
	owner, err := MappingOf[O]()
	if err != nil {
		return nil, nil, err
	}
	related, err := MappingOf[R]()
	if err != nil {
		return nil, nil, err
	}
	return owner, related, nil
}

// pickForeignKey finds the foreign key of holder referencing table, narrowed
// by columns when given. Keys whose columns equal exclude are skipped.
func pickForeignKey(name string, holder *KeyMapping, table string, columns, exclude []string) (ForeignKey, error) {
	subject := fmt.Sprintf("association %q", name)

	var candidates []ForeignKey
	for _, fk := range holder.ForeignKeysTo(table) {
		if exclude != nil && slices.Equal(fk.Columns, exclude) {
			continue
		}
		if columns != nil && !slices.Equal(fk.Columns, columns) {
			continue
		}
		candidates = append(candidates, fk)
	}

	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		if columns != nil {
			return ForeignKey{}, configError(subject, "%s declares no foreign key (%s) referencing %s", holder.table, joinNames(columns), table)
		}
		return ForeignKey{}, configError(subject, "%s declares no foreign key referencing %s", holder.table, table)
	default:
		return ForeignKey{}, configError(subject, "%s has %d foreign keys referencing %s; select one with Via", holder.table, len(candidates), table)
	}
}

// Inverse returns the reciprocal association: BelongsTo for HasMany and
// HasOne, HasMany for BelongsTo, and the mirrored ManyToMany.
func (a *Association[O, R]) Inverse(name string) *Association[R, O] {
	m := a.meta
	inv := &assocMeta{
		name:                  name,
		owner:                 m.related,
		related:               m.owner,
		ownerColumns:          m.relatedColumns,
		relatedColumns:        m.ownerColumns,
		through:               m.through,
		throughOwnerColumns:   m.throughRelatedColumns,
		throughRelatedColumns: m.throughOwnerColumns,
	}
	switch {
	case m.through != nil:
		inv.kind = ToMany
	case m.fkOnOwner:
		inv.kind = ToMany
	default:
		inv.kind = ToOne
		inv.fkOnOwner = true
	}
	return &Association[R, O]{meta: inv}
}

// Name returns the association name. It is also the key under which
// composites hold the related records.
func (a *Association[O, R]) Name() string { return a.meta.name }

// Kind returns the association cardinality.
func (a *Association[O, R]) Kind() Kind { return a.meta.kind }

// Owner returns the owner mapping.
func (a *Association[O, R]) Owner() *KeyMapping { return a.meta.owner }

// Related returns the related mapping.
func (a *Association[O, R]) Related() *KeyMapping { return a.meta.related }

// Through returns the pivot mapping of a many-to-many association, or nil.
func (a *Association[O, R]) Through() *KeyMapping { return a.meta.through }

// OwnerColumns returns the owner columns the association matches on.
func (a *Association[O, R]) OwnerColumns() []string { return a.meta.ownerColumns }

// RelatedColumns returns the related columns the association matches on.
func (a *Association[O, R]) RelatedColumns() []string { return a.meta.relatedColumns }

func (a *Association[O, R]) String() string {
	m := a.meta
	s := fmt.Sprintf("%s %s: %s(%s) -> %s(%s)", m.name, m.kind, m.owner.table, joinNames(m.ownerColumns), m.related.table, joinNames(m.relatedColumns))
	if m.through != nil {
		s += fmt.Sprintf(" through %s", m.through.table)
	}
	return s
}

// With includes the association with a nested request on the related
// records. Its filter and ordering apply to the related rows only, and its
// limit applies per owner.
func (a *Association[O, R]) With(nested Request[R]) *Include[O, R] {
	return &Include[O, R]{assoc: a, nested: nested, key: a.meta.name}
}

func (a *Association[O, R]) inclusion(*O) (*includeSpec, error) {
	return a.With(For[R]()).inclusion(nil)
}

// All returns the related records included under the association name.
func (a *Association[O, R]) All(c Composite[O]) []R { return a.With(For[R]()).All(c) }

// One returns the related record of a toOne association included under the
// association name.
func (a *Association[O, R]) One(c Composite[O]) (R, bool) { return a.With(For[R]()).One(c) }

// Composites returns the included related records with their own nested
// includes.
func (a *Association[O, R]) Composites(c Composite[O]) []Composite[R] {
	return a.With(For[R]()).Composites(c)
}

// Inclusion is an association include accepted by Request[O].Including.
// It is implemented by *Association[O, R] and *Include[O, R].
type Inclusion[O any] interface {
	inclusion(*O) (*includeSpec, error)
}

// Include is an association together with a nested request. Each include
// is fetched independently and stored in the composite under its key, which
// defaults to the association name.
type Include[O, R any] struct {
	assoc  *Association[O, R]
	nested Request[R]
	key    string
}

// As returns a copy of the include stored under key, so one association can
// be included several times with different nested requests.
func (i *Include[O, R]) As(key string) *Include[O, R] {
	c := *i
	c.key = key
	return &c
}

// Key returns the composite slot the include is stored under.
func (i *Include[O, R]) Key() string { return i.key }

func (i *Include[O, R]) inclusion(*O) (*includeSpec, error) {
	nested, err := i.nested.plan()
	if err != nil {
		return nil, fmt.Errorf("failed to plan include %q: %w", i.key, err)
	}
	return &includeSpec{key: i.key, meta: i.assoc.meta, nested: nested}, nil
}

// All returns the related records stored under the include key. Owners
// without related rows yield an empty slice; a key that was not included
// yields nil.
func (i *Include[O, R]) All(c Composite[O]) []R {
	s, ok := c.related[i.key]
	if !ok {
		return nil
	}
	out := make([]R, len(s.nodes))
	for j, n := range s.nodes {
		out[j] = *n.value.Interface().(*R)
	}
	return out
}

// One returns the first related record stored under the include key.
func (i *Include[O, R]) One(c Composite[O]) (R, bool) {
	var zero R
	s, ok := c.related[i.key]
	if !ok || len(s.nodes) == 0 {
		return zero, false
	}
	return *s.nodes[0].value.Interface().(*R), true
}

// Composites returns the related records stored under the include key
// together with the results of their nested includes.
func (i *Include[O, R]) Composites(c Composite[O]) []Composite[R] {
	s, ok := c.related[i.key]
	if !ok {
		return nil
	}
	out := make([]Composite[R], len(s.nodes))
	for j, n := range s.nodes {
		out[j] = compositeOf[R](n)
	}
	return out
}

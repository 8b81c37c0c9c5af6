package record

import "sort"

// Composite is a fetched record together with the related records of the
// request's includes. It is a snapshot: later database changes are only
// visible by fetching again. Read related records through the include or
// association that produced them, e.g. authorBooks.All(c).
type Composite[T any] struct {
	Record  T
	related map[string]*slot
}

func compositeOf[T any](n *node) Composite[T] {
	return Composite[T]{Record: *n.value.Interface().(*T), related: n.related}
}

// Included reports whether the composite holds the include stored under key.
func (c Composite[T]) Included(key string) bool {
	_, ok := c.related[key]
	return ok
}

// Keys returns the include keys held by the composite, sorted.
func (c Composite[T]) Keys() []string {
	keys := make([]string, 0, len(c.related))
	for k := range c.related {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Count returns the number of related records stored under key.
func (c Composite[T]) Count(key string) int {
	if s, ok := c.related[key]; ok {
		return len(s.nodes)
	}
	return 0
}

// Related returns the related records stored under key as untyped values,
// for generic consumers such as encoders. Typed code should use the
// association or include accessors.
func (c Composite[T]) Related(key string) []any {
	s, ok := c.related[key]
	if !ok {
		return nil
	}
	out := make([]any, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = n.value.Elem().Interface()
	}
	return out
}

// Package aggregator defines the aggregate model: for each registered
// aggregate, a value selector (domain item -> value) and a binary combiner
// folding two values together. Storage of the combined value is type-erased
// (any) because one TriangularList hosts many aggregates with different
// concrete value types A on the same bucket row (spec §3); the strongly
// typed read path lives in package triangularlist, which performs the
// dynamic type assertion back to the caller's requested A.
package aggregator

// SelectFunc extracts this aggregate's input value from a domain item.
type SelectFunc[V any] func(v V) any

// CombineFunc folds an incoming value into an existing aggregate value.
// Must be associative; commutativity is recommended but not assumed — the
// engine always combines children in position-ascending order.
type CombineFunc func(current, incoming any) any

// Aggregator is the immutable {name, select, combine, storage_type} tuple
// from spec §3. It closes over first-class select/combine functions rather
// than dispatching through a type-erased interface with runtime casts — the
// strongly-typed replacement for reflection-driven dispatch called for in
// spec §9.
type Aggregator[V any] struct {
	// Name uniquely identifies this aggregate within one TriangularList.
	// It flows into generated column names (<name>_count, <name>_value)
	// after sanitization — see package adapter.
	Name string

	// Select extracts the per-item value folded by this aggregate.
	Select SelectFunc[V]

	// Combine folds two values together. Called as Combine(current,
	// incoming); for the very first value in a bucket Combine is not
	// invoked — that value is used directly as the starting accumulator
	// (spec §3 invariant 1, §4.3 step "rank-0 row").
	Combine CombineFunc

	// StorageType is the declared column type the adapter uses for the
	// <name>_value column, e.g. "NUMERIC", "DOUBLE PRECISION", "BIGINT".
	StorageType string
}

// Fold combines a slice of values in order, left to right, using Combine.
// It never assumes the combiner is commutative: values must already be in
// the order the caller wants them folded (position-ascending, per spec
// §4.3).
func (a Aggregator[V]) Fold(values []any) any {
	if len(values) == 0 {
		return nil
	}
	acc := values[0]
	for _, v := range values[1:] {
		acc = a.Combine(acc, v)
	}
	return acc
}

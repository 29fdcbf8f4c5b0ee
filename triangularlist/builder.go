package triangularlist

import (
	"context"
	"sort"
	"strings"

	"github.com/promantle/triangularlist/adapter"
	"github.com/promantle/triangularlist/aggregator"
	"github.com/promantle/triangularlist/key"
)

// Builder assembles exactly one TriangularList (spec §4.5). Configure it
// with KeyOn, Aggregate, and Rank in any order, then call Build. A Builder
// is single-use: Build consumes it, and every setter rejects a field that
// was already set.
type Builder[K any, V any] struct {
	group   string
	adapter adapter.TableAdapter

	keyFn          func(v V) K
	minMax         key.MinMaxFunc[K]
	keyStorageType string
	keySet         bool

	ranks     []key.Rank[K]
	rankNames map[string]bool

	aggregates []aggregator.Aggregator[V]
	aggNames   map[string]bool

	err error
}

// NewBuilder starts configuration of a TriangularList named group, backed
// by the given TableAdapter. group is sanitized identically to aggregate
// names when it reaches the adapter (spec §4.1).
func NewBuilder[K any, V any](group string, a adapter.TableAdapter) *Builder[K, V] {
	return &Builder[K, V]{
		group:     group,
		adapter:   a,
		rankNames: make(map[string]bool),
		aggNames:  make(map[string]bool),
	}
}

func (b *Builder[K, V]) fail(format string, args ...any) *Builder[K, V] {
	if b.err == nil {
		b.err = newErr(ConfigInvalid, format, args...)
	}
	return b
}

// KeyOn declares how a domain item maps to its key, how two keys reduce to
// a (min, max) pair, and the adapter column type used to persist bounds.
// May be called only once.
func (b *Builder[K, V]) KeyOn(storageType string, keyFn func(v V) K, minMax key.MinMaxFunc[K]) *Builder[K, V] {
	if b.err != nil {
		return b
	}
	if b.keySet {
		return b.fail("key_on called more than once")
	}
	if keyFn == nil {
		return b.fail("key_on: key function is required")
	}
	if minMax == nil {
		return b.fail("key_on: min_max function is required")
	}
	if strings.TrimSpace(storageType) == "" {
		return b.fail("key_on: storage type is required")
	}
	b.keyFn = keyFn
	b.minMax = minMax
	b.keyStorageType = storageType
	b.keySet = true
	return b
}

// Aggregate registers one aggregate. A is the aggregate's value type,
// carried at the call site only — the built TriangularList stores values
// type-erased and recovers A again at read time (see ReadAggregateAt).
func Aggregate[A any, K any, V any](b *Builder[K, V], name string, storageType string, selectFn func(v V) A, combine func(current, incoming A) A) *Builder[K, V] {
	if b.err != nil {
		return b
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return b.fail("aggregate: name is required")
	}
	if b.aggNames[name] {
		return b.fail("aggregate %q registered more than once", name)
	}
	if selectFn == nil {
		return b.fail("aggregate %q: select function is required", name)
	}
	if combine == nil {
		return b.fail("aggregate %q: combine function is required", name)
	}
	if strings.TrimSpace(storageType) == "" {
		return b.fail("aggregate %q: storage type is required", name)
	}

	b.aggNames[name] = true
	b.aggregates = append(b.aggregates, aggregator.Aggregator[V]{
		Name: name,
		Select: func(v V) any {
			return selectFn(v)
		},
		Combine: func(current, incoming any) any {
			return combine(current.(A), incoming.(A))
		},
		StorageType: storageType,
	})
	return b
}

// Rank registers one rank. number is the caller's own ordering key, not
// the internal rank number the engine ends up using — Build sorts ranks
// by number and reassigns 1..N contiguously. number must be non-negative
// and, once every Rank call is in, the full set must be gapless when
// sorted (e.g. 1,2,3 or 0,1,2 — not 1,3,4); Build rejects a gap with
// ConfigInvalid (spec §4.5, "external rank numbers are a convenience, not
// the storage layout").
func (b *Builder[K, V]) Rank(number int, name string, position key.PositionFunc[K]) *Builder[K, V] {
	if b.err != nil {
		return b
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return b.fail("rank: name is required")
	}
	if b.rankNames[name] {
		return b.fail("rank %q registered more than once", name)
	}
	if position == nil {
		return b.fail("rank %q: position function is required", name)
	}
	for _, r := range b.ranks {
		if r.Number == number {
			return b.fail("rank number %d used by both %q and %q", number, r.Name, name)
		}
	}

	b.rankNames[name] = true
	b.ranks = append(b.ranks, key.Rank[K]{Number: number, Name: name, Position: position})
	return b
}

// Build validates the accumulated configuration, renumbers ranks to a
// contiguous 1..N in ascending order of their external rank numbers,
// materializes every rank table (spec §4.2 "schema materialization"), and
// returns the finished engine. After a successful Build every later call
// on the Builder fails with ConfigInvalid.
func (b *Builder[K, V]) Build(ctx context.Context) (*TriangularList[K, V], error) {
	if b.err != nil {
		return nil, b.err
	}
	if strings.TrimSpace(b.group) == "" {
		return nil, newErr(ConfigInvalid, "group name is required")
	}
	if b.adapter == nil {
		return nil, newErr(ConfigInvalid, "table adapter is required")
	}
	if !b.keySet {
		return nil, newErr(ConfigInvalid, "key_on is required")
	}
	if len(b.ranks) == 0 {
		return nil, newErr(ConfigInvalid, "at least one rank is required")
	}
	if len(b.aggregates) == 0 {
		return nil, newErr(ConfigInvalid, "at least one aggregate is required")
	}

	ranks := make([]key.Rank[K], len(b.ranks))
	copy(ranks, b.ranks)
	sort.Slice(ranks, func(i, j int) bool { return ranks[i].Number < ranks[j].Number })

	if ranks[0].Number < 0 {
		return nil, newErr(ConfigInvalid, "rank %q: external rank numbers must be non-negative, got %d", ranks[0].Name, ranks[0].Number)
	}
	for i := 1; i < len(ranks); i++ {
		if ranks[i].Number != ranks[i-1].Number+1 {
			return nil, newErr(ConfigInvalid, "gap in ranks: %q (%d) is not immediately followed by %q (%d)", ranks[i-1].Name, ranks[i-1].Number, ranks[i].Name, ranks[i].Number)
		}
	}

	rankByName := make(map[string]int, len(ranks))
	for i := range ranks {
		ranks[i].Number = i + 1
		rankByName[ranks[i].Name] = ranks[i].Number
	}

	aggByName := make(map[string]aggregator.Aggregator[V], len(b.aggregates))
	for _, a := range b.aggregates {
		aggByName[a.Name] = a
	}

	tl := &TriangularList[K, V]{
		group:          b.group,
		adapter:        b.adapter,
		keyFn:          b.keyFn,
		minMax:         b.minMax,
		keyStorageType: b.keyStorageType,
		ranks:          ranks,
		rankByName:     rankByName,
		aggregates:     b.aggregates,
		aggByName:      aggByName,
	}

	if err := tl.materialize(ctx); err != nil {
		return nil, err
	}
	b.err = newErr(ConfigInvalid, "builder has already built an engine")
	return tl, nil
}

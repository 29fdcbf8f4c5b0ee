// Package triangularlist implements the pre-aggregated hierarchical log
// store core: given a stream of domain objects keyed by an orderable value,
// it maintains several "ranks" of progressively coarser aggregations over a
// backing table adapter, keeping every upper rank in sync with each single
// newly arrived record (the rank-walk algorithm, spec §4.3) and serving
// point/range/children queries whose cost is proportional to the chosen
// rank rather than to the volume of ingested data.
package triangularlist

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/promantle/triangularlist/adapter"
	"github.com/promantle/triangularlist/aggregator"
	"github.com/promantle/triangularlist/key"
)

// TriangularList is one configured, materialized group: a fixed set of
// ranks over key K, a fixed set of aggregates over domain item V, backed by
// one adapter.TableAdapter. Construct one via Builder — there is no
// exported constructor, mirroring spec §4.5's "a single builder yields
// exactly one engine."
type TriangularList[K any, V any] struct {
	group   string
	adapter adapter.TableAdapter

	keyFn          func(v V) K
	minMax         key.MinMaxFunc[K]
	keyStorageType string

	// ranks[i] is internal rank i+1 (rank 0 is implicit and not stored
	// here). Builder has already renumbered these to a contiguous 1..N in
	// ascending order of the caller's external rank numbers.
	ranks      []key.Rank[K]
	rankByName map[string]int // name -> internal rank number (1..N)

	aggregates []aggregator.Aggregator[V]
	aggByName  map[string]aggregator.Aggregator[V]

	nextZeroID atomic.Int64
	deleted    atomic.Bool
}

// N returns the number of configured ranks (not counting rank 0).
func (tl *TriangularList[K, V]) N() int { return len(tl.ranks) }

// materialize creates every rank table (0..N) if absent and initializes the
// rank-0 id counter. Called once by Builder.Build.
func (tl *TriangularList[K, V]) materialize(ctx context.Context) error {
	schemas := make([]adapter.AggregateSchema, len(tl.aggregates))
	for i, a := range tl.aggregates {
		schemas[i] = adapter.AggregateSchema{Name: a.Name, StorageType: a.StorageType}
	}

	n := len(tl.ranks)
	for r := 0; r <= n; r++ {
		created, err := tl.adapter.EnsureTable(ctx, tl.group, r, n, tl.keyStorageType, schemas)
		if err != nil {
			return wrapErr(AdapterFailure, err, "ensure_table rank=%d of %d", r, n)
		}
		if created {
			slog.Info("[TriangularList] table ensured", "group", tl.group, "rank", r, "of", n, "created", true)
		}
	}

	maxZero, err := tl.adapter.MaxPosition(ctx, tl.group, 0, n)
	if err != nil {
		// spec §7: max_position swallows adapter errors and returns 0.
		slog.Warn("[TriangularList] max_position failed during construction, assuming empty table", "group", tl.group, "error", err)
		maxZero = 0
	}
	tl.nextZeroID.Store(maxZero + 1)

	return nil
}

func (tl *TriangularList[K, V]) rankNumber(rankName string) (int, error) {
	n, ok := tl.rankByName[rankName]
	if !ok {
		return 0, newErr(UnknownRank, "rank %q is not registered", rankName)
	}
	return n, nil
}

func (tl *TriangularList[K, V]) aggregatorFor(name string) (aggregator.Aggregator[V], error) {
	a, ok := tl.aggByName[name]
	if !ok {
		return aggregator.Aggregator[V]{}, newErr(UnknownAggregate, "aggregate %q is not registered", name)
	}
	return a, nil
}

func (tl *TriangularList[K, V]) checkNotDeleted() error {
	if tl.deleted.Load() {
		return newErr(EngineDeleted, "engine has been deleted via DeleteAllTablesAndData")
	}
	return nil
}

// DumpTables returns every bucket row for aggregateName at every rank
// 0..N, keyed by rank number, for diagnostics.
func (tl *TriangularList[K, V]) DumpTables(ctx context.Context, aggregateName string) (map[int][]adapter.Bucket, error) {
	if err := tl.checkNotDeleted(); err != nil {
		return nil, err
	}
	if _, err := tl.aggregatorFor(aggregateName); err != nil {
		return nil, err
	}

	n := len(tl.ranks)
	out := make(map[int][]adapter.Bucket, n+1)
	for r := 0; r <= n; r++ {
		rows, err := tl.adapter.DumpRank(ctx, tl.group, r, n, aggregateName)
		if err != nil {
			return nil, wrapErr(AdapterFailure, err, "dump_rank rank=%d", r)
		}
		out[r] = rows
	}
	return out, nil
}

// DeleteAllTablesAndData drops every rank table for this group and marks
// the engine permanently unusable — every subsequent call on tl returns
// EngineDeleted (spec §3 "Lifecycle").
func (tl *TriangularList[K, V]) DeleteAllTablesAndData(ctx context.Context) error {
	if err := tl.checkNotDeleted(); err != nil {
		return err
	}

	n := len(tl.ranks)
	for r := 0; r <= n; r++ {
		if err := tl.adapter.DropTable(ctx, tl.group, r, n); err != nil {
			return wrapErr(AdapterFailure, err, "drop_table rank=%d", r)
		}
	}
	tl.deleted.Store(true)
	slog.Info("[TriangularList] deleted all tables and data", "group", tl.group)
	return nil
}

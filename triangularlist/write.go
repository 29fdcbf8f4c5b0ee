package triangularlist

import (
	"context"
	"log/slog"

	"github.com/promantle/triangularlist/aggregator"
)

// WriteItem folds one domain item into every rank of every registered
// aggregate (spec §4.3, "rank-walk write algorithm"). It returns the total
// number of child rows scanned across the whole walk — a diagnostic only,
// proportional to how dense the data is at each rank, never to the total
// volume ingested.
//
// Within one call, the rank-0 row for the new item is always persisted
// before any rank >= 1 row is recomputed for it (spec §5 ordering
// guarantee). Aggregates are folded independently of one another — a
// failure partway through leaves earlier aggregates' ranks already updated
// and later ones untouched; this method does not roll back prior aggregates
// on a later failure, matching spec §7's "no rollback guarantees by
// default."
func (tl *TriangularList[K, V]) WriteItem(ctx context.Context, v V) (int64, error) {
	if err := tl.checkNotDeleted(); err != nil {
		return 0, err
	}

	k := tl.keyFn(v)
	z := tl.nextZeroID.Add(1) - 1
	n := len(tl.ranks)

	var scanned int64
	for _, agg := range tl.aggregates {
		childScanned, err := tl.writeItemForAggregate(ctx, agg, v, k, z, n)
		scanned += childScanned
		if err != nil {
			return scanned, err
		}
	}

	return scanned, nil
}

func (tl *TriangularList[K, V]) writeItemForAggregate(ctx context.Context, agg aggregator.Aggregator[V], v V, k K, z int64, n int) (int64, error) {
	pos1 := tl.positionAt(1, k)

	selected := agg.Select(v)
	if err := tl.adapter.WriteAt(ctx, tl.group, 0, n, agg.Name, pos1, z, 1, selected, k, k); err != nil {
		return 0, wrapErr(AdapterFailure, err, "write_at rank=0 position=%d aggregate=%q", z, agg.Name)
	}

	var scanned int64
	for childRank := 0; childRank < n; childRank++ {
		parentRank := childRank + 1
		grandRank := parentRank + 1

		parentPos := tl.positionAt(parentRank, k)

		children, err := tl.adapter.ReadChildren(ctx, tl.group, childRank, n, agg.Name, parentPos)
		if err != nil {
			return scanned, wrapErr(AdapterFailure, err, "read_children rank=%d parent_position=%d aggregate=%q", childRank, parentPos, agg.Name)
		}
		scanned += int64(len(children))

		if len(children) == 0 {
			// No ancestor to refresh. Cannot normally happen right after
			// the rank-0 write, but guards against unusual adapter
			// behavior (spec §4.3).
			break
		}

		var newCount int64
		values := make([]any, 0, len(children))
		lower := children[0].LowerBound.(K)
		upper := children[0].UpperBound.(K)
		for i, c := range children {
			newCount += c.Count
			values = append(values, c.Value)
			if i == 0 {
				continue
			}
			lower, _ = tl.minMax(lower, c.LowerBound.(K))
			_, upper = tl.minMax(upper, c.UpperBound.(K))
		}
		newValue := agg.Fold(values)

		var grandPos int64
		if grandRank <= n {
			grandPos = tl.positionAt(grandRank, k)
		}

		if err := tl.adapter.WriteAt(ctx, tl.group, parentRank, n, agg.Name, grandPos, parentPos, newCount, newValue, lower, upper); err != nil {
			return scanned, wrapErr(AdapterFailure, err, "write_at rank=%d position=%d aggregate=%q", parentRank, parentPos, agg.Name)
		}
	}

	slog.Debug("[TriangularList] write_item recomputed ranks", "group", tl.group, "aggregate", agg.Name, "children_scanned", scanned)
	return scanned, nil
}

// positionAt returns the bucket position at internal rank 1..N for key k.
func (tl *TriangularList[K, V]) positionAt(rankNumber int, k K) int64 {
	return tl.ranks[rankNumber-1].Position(k)
}

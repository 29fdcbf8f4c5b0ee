package triangularlist

import (
	"context"

	"github.com/promantle/triangularlist/adapter"
)

// Point is the full bucket contents returned by the "point" read operations:
// the combined value, how many rank-0 items folded into it, and the
// observed key bounds of those items.
type Point[K any, A any] struct {
	Value      A
	Count      int64
	LowerBound K
	UpperBound K
}

func assertValue[A any](raw any) (A, error) {
	v, ok := raw.(A)
	if !ok {
		var zero A
		return zero, newErr(TypeMismatch, "stored value %T does not match requested type %T", raw, zero)
	}
	return v, nil
}

func assertKey[K any](raw any) (K, error) {
	v, ok := raw.(K)
	if !ok {
		var zero K
		return zero, newErr(TypeMismatch, "stored bound %T does not match key type %T", raw, zero)
	}
	return v, nil
}

func bucketToPoint[K any, A any](b adapter.Bucket) (Point[K, A], error) {
	value, err := assertValue[A](b.Value)
	if err != nil {
		return Point[K, A]{}, err
	}
	lower, err := assertKey[K](b.LowerBound)
	if err != nil {
		return Point[K, A]{}, err
	}
	upper, err := assertKey[K](b.UpperBound)
	if err != nil {
		return Point[K, A]{}, err
	}
	return Point[K, A]{Value: value, Count: b.Count, LowerBound: lower, UpperBound: upper}, nil
}

// ReadAggregateAt translates key to its bucket position at rankName and
// returns just the combined value (spec §4.4). Returns (zero, nil) if no
// bucket is occupied at that position.
func ReadAggregateAt[K any, V any, A any](ctx context.Context, tl *TriangularList[K, V], aggregateName, rankName string, k K) (A, error) {
	var zero A
	point, err := ReadPointAt[K, V, A](ctx, tl, aggregateName, rankName, k)
	if err != nil {
		return zero, err
	}
	if point == nil {
		return zero, nil
	}
	return point.Value, nil
}

// ReadPointAt is like ReadAggregateAt but returns the full bucket (value,
// count, bounds), or nil if the bucket is unoccupied.
func ReadPointAt[K any, V any, A any](ctx context.Context, tl *TriangularList[K, V], aggregateName, rankName string, k K) (*Point[K, A], error) {
	if err := tl.checkNotDeleted(); err != nil {
		return nil, err
	}
	if _, err := tl.aggregatorFor(aggregateName); err != nil {
		return nil, err
	}
	rankNum, err := tl.rankNumber(rankName)
	if err != nil {
		return nil, err
	}

	pos := tl.positionAt(rankNum, k)
	b, err := tl.adapter.ReadAt(ctx, tl.group, rankNum, len(tl.ranks), aggregateName, pos)
	if err != nil {
		return nil, wrapErr(AdapterFailure, err, "read_at rank=%d position=%d", rankNum, pos)
	}
	if b == nil {
		return nil, nil
	}

	point, err := bucketToPoint[K, A](*b)
	if err != nil {
		return nil, err
	}
	return &point, nil
}

// ReadChildrenOfPoint locates the bucket at rankName for key and returns
// every child bucket at rankName-1 folded into it (spec §4.4). When
// rankName is rank 1, this yields the original rank-0 data points (each
// with count 1 and equal lower/upper bounds).
func ReadChildrenOfPoint[K any, V any, A any](ctx context.Context, tl *TriangularList[K, V], aggregateName, rankName string, k K) ([]Point[K, A], error) {
	if err := tl.checkNotDeleted(); err != nil {
		return nil, err
	}
	if _, err := tl.aggregatorFor(aggregateName); err != nil {
		return nil, err
	}
	rankNum, err := tl.rankNumber(rankName)
	if err != nil {
		return nil, err
	}

	pos := tl.positionAt(rankNum, k)
	children, err := tl.adapter.ReadChildren(ctx, tl.group, rankNum-1, len(tl.ranks), aggregateName, pos)
	if err != nil {
		return nil, wrapErr(AdapterFailure, err, "read_children rank=%d parent_position=%d", rankNum-1, pos)
	}

	out := make([]Point[K, A], 0, len(children))
	for _, c := range children {
		p, err := bucketToPoint[K, A](c)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ReadAggregateRange returns the combined values of every occupied bucket
// at rankName whose position falls within [position(start), position(end)]
// inclusive, ordered by position ascending (spec §4.4).
func ReadAggregateRange[K any, V any, A any](ctx context.Context, tl *TriangularList[K, V], aggregateName, rankName string, start, end K) ([]A, error) {
	points, err := ReadPointsOverRange[K, V, A](ctx, tl, aggregateName, rankName, start, end)
	if err != nil {
		return nil, err
	}
	values := make([]A, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return values, nil
}

// ReadPointsOverRange is like ReadAggregateRange but returns full buckets.
func ReadPointsOverRange[K any, V any, A any](ctx context.Context, tl *TriangularList[K, V], aggregateName, rankName string, start, end K) ([]Point[K, A], error) {
	if err := tl.checkNotDeleted(); err != nil {
		return nil, err
	}
	if _, err := tl.aggregatorFor(aggregateName); err != nil {
		return nil, err
	}
	rankNum, err := tl.rankNumber(rankName)
	if err != nil {
		return nil, err
	}

	startPos := tl.positionAt(rankNum, start)
	endPos := tl.positionAt(rankNum, end)
	if endPos < startPos {
		return nil, newErr(InvalidRange, "end position %d is before start position %d", endPos, startPos)
	}

	rows, err := tl.adapter.ReadRange(ctx, tl.group, rankNum, len(tl.ranks), aggregateName, startPos, endPos)
	if err != nil {
		return nil, wrapErr(AdapterFailure, err, "read_range rank=%d start=%d end=%d", rankNum, startPos, endPos)
	}

	out := make([]Point[K, A], 0, len(rows))
	for _, row := range rows {
		p, err := bucketToPoint[K, A](row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

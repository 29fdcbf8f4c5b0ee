// Package adapter defines the abstract table adapter contract (spec §4.1):
// the capability set a backing store must provide so the triangularlist
// engine can stay entirely unaware of the SQL dialect or storage technology
// underneath it. A reference PostgreSQL-compatible adapter lives in
// package adapter/postgres.
package adapter

import "context"

// AggregateSchema describes one aggregate's column pair for ensure_table:
// <name>_count (always INT8) and <name>_value (StorageType).
type AggregateSchema struct {
	Name        string
	StorageType string
}

// Bucket is the sole persisted entity (spec §3): one row per (rank,
// aggregate, position), carrying the folded value, the count of rank-0
// items folded in, and the observed key bounds.
type Bucket struct {
	Position       int64
	ParentPosition int64
	LowerBound     any
	UpperBound     any
	Count          int64
	Value          any
}

// TableAdapter is the abstract capability set the engine depends on. Every
// operation is scoped by (group, rank, rankCount); implementations must
// derive a deterministic table identifier from that triple (the reference
// scheme is "<group>_<rank>_of_<rankCount>", sanitized — see Sanitize).
//
// Adapters are stateless across calls with respect to engine logic: each
// call is expected to acquire whatever connection it needs and release it
// on every exit path. There is no transactional coupling between calls
// unless a specific adapter chooses to add it internally (spec §5).
type TableAdapter interface {
	// EnsureTable creates the rank table if it does not already exist.
	// Idempotent; returns true iff it created the table on this call.
	EnsureTable(ctx context.Context, group string, rank, rankCount int, keyType string, aggregates []AggregateSchema) (bool, error)

	// WriteAt upserts one aggregate's columns on the row at position.
	// When multiple aggregates share a row (same group/rank/position),
	// each call updates only that aggregate's <name>_count/<name>_value
	// columns plus parent_position/lower_bound/upper_bound, which must be
	// consistent across aggregates sharing the row.
	WriteAt(ctx context.Context, group string, rank, rankCount int, aggregateName string, parentPosition, position, count int64, value, lowerBound, upperBound any) error

	// ReadAt returns the bucket at position, or nil if absent.
	ReadAt(ctx context.Context, group string, rank, rankCount int, aggregateName string, position int64) (*Bucket, error)

	// ReadRange returns buckets with position in [start, end], ascending.
	ReadRange(ctx context.Context, group string, rank, rankCount int, aggregateName string, start, end int64) ([]Bucket, error)

	// ReadChildren returns all buckets at rank whose parent_position equals
	// parentPosition, ascending by position.
	ReadChildren(ctx context.Context, group string, rank, rankCount int, aggregateName string, parentPosition int64) ([]Bucket, error)

	// MaxPosition returns the largest position at the table, or 0 if the
	// table is empty or missing. Engine construction does not propagate an
	// error from this call: it logs it and treats the position as 0.
	MaxPosition(ctx context.Context, group string, rank, rankCount int) (int64, error)

	// DumpRank returns every row at the rank table for one aggregate, for
	// diagnostics.
	DumpRank(ctx context.Context, group string, rank, rankCount int, aggregateName string) ([]Bucket, error)

	// DropTable drops the rank table entirely.
	DropTable(ctx context.Context, group string, rank, rankCount int) error
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/promantle/triangularlist/adapter"
)

// WriteAt upserts one aggregate's (count, value) pair on the row at
// position, using "insert, or on conflict by primary key update" (spec §9
// adapter boundary note) so concurrent writers never observe a torn row.
func (a *Adapter) WriteAt(ctx context.Context, group string, rank, rankCount int, aggregateName string, parentPosition, position, count int64, value, lowerBound, upperBound any) error {
	tableName := adapter.TableName(group, rank, rankCount)
	if _, err := a.metaFor(tableName); err != nil {
		return err
	}

	countCol := adapter.CountColumn(aggregateName)
	valueCol := adapter.ValueColumn(aggregateName)

	query := fmt.Sprintf(`
		INSERT INTO %s (position, parent_position, lower_bound, upper_bound, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (position) DO UPDATE SET
			parent_position = EXCLUDED.parent_position,
			lower_bound = EXCLUDED.lower_bound,
			upper_bound = EXCLUDED.upper_bound,
			%s = EXCLUDED.%s,
			%s = EXCLUDED.%s
	`, tableName, countCol, valueCol, countCol, countCol, valueCol, valueCol)

	if _, err := a.db.ExecContext(ctx, query, position, parentPosition, lowerBound, upperBound, count, value); err != nil {
		return fmt.Errorf("write_at %s position=%d: %w", tableName, position, err)
	}
	return nil
}

func (a *Adapter) scanBucket(meta *tableMeta, aggregateName string, row interface {
	Scan(dest ...any) error
}) (*adapter.Bucket, error) {
	kind, ok := meta.aggregates[aggregateName]
	if !ok {
		return nil, fmt.Errorf("aggregate %q has no recorded schema", aggregateName)
	}

	var position, parentPosition, count int64
	lowerDest := newScanDest(meta.keyKind)
	upperDest := newScanDest(meta.keyKind)
	valueDest := newScanDest(kind)

	if err := row.Scan(&position, &parentPosition, lowerDest, upperDest, &count, valueDest); err != nil {
		return nil, err
	}

	return &adapter.Bucket{
		Position:       position,
		ParentPosition: parentPosition,
		LowerBound:     extractScanned(lowerDest),
		UpperBound:     extractScanned(upperDest),
		Count:          count,
		Value:          extractScanned(valueDest),
	}, nil
}

// ReadAt returns the bucket at position, or nil if absent.
func (a *Adapter) ReadAt(ctx context.Context, group string, rank, rankCount int, aggregateName string, position int64) (*adapter.Bucket, error) {
	tableName := adapter.TableName(group, rank, rankCount)
	meta, err := a.metaFor(tableName)
	if err != nil {
		return nil, err
	}

	countCol := adapter.CountColumn(aggregateName)
	valueCol := adapter.ValueColumn(aggregateName)
	query := fmt.Sprintf(`
		SELECT position, parent_position, lower_bound, upper_bound, %s, %s
		FROM %s
		WHERE position = $1
	`, countCol, valueCol, tableName)

	row := a.db.QueryRowContext(ctx, query, position)
	bucket, err := a.scanBucket(meta, aggregateName, row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read_at %s position=%d: %w", tableName, position, err)
	}
	return bucket, nil
}

// ReadRange returns buckets with position in [start, end], ascending.
func (a *Adapter) ReadRange(ctx context.Context, group string, rank, rankCount int, aggregateName string, start, end int64) ([]adapter.Bucket, error) {
	tableName := adapter.TableName(group, rank, rankCount)
	meta, err := a.metaFor(tableName)
	if err != nil {
		return nil, err
	}

	countCol := adapter.CountColumn(aggregateName)
	valueCol := adapter.ValueColumn(aggregateName)
	query := fmt.Sprintf(`
		SELECT position, parent_position, lower_bound, upper_bound, %s, %s
		FROM %s
		WHERE position BETWEEN $1 AND $2
		ORDER BY position ASC
	`, countCol, valueCol, tableName)

	rows, err := a.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("read_range %s [%d,%d]: %w", tableName, start, end, err)
	}
	defer rows.Close()

	return a.collectBuckets(rows, meta, aggregateName, tableName)
}

// ReadChildren returns every bucket at rank whose parent_position equals
// parentPosition, ascending by position.
func (a *Adapter) ReadChildren(ctx context.Context, group string, rank, rankCount int, aggregateName string, parentPosition int64) ([]adapter.Bucket, error) {
	tableName := adapter.TableName(group, rank, rankCount)
	meta, err := a.metaFor(tableName)
	if err != nil {
		return nil, err
	}

	countCol := adapter.CountColumn(aggregateName)
	valueCol := adapter.ValueColumn(aggregateName)
	query := fmt.Sprintf(`
		SELECT position, parent_position, lower_bound, upper_bound, %s, %s
		FROM %s
		WHERE parent_position = $1
		ORDER BY position ASC
	`, countCol, valueCol, tableName)

	rows, err := a.db.QueryContext(ctx, query, parentPosition)
	if err != nil {
		return nil, fmt.Errorf("read_children %s parent=%d: %w", tableName, parentPosition, err)
	}
	defer rows.Close()

	return a.collectBuckets(rows, meta, aggregateName, tableName)
}

// DumpRank returns every row at the rank table for one aggregate.
func (a *Adapter) DumpRank(ctx context.Context, group string, rank, rankCount int, aggregateName string) ([]adapter.Bucket, error) {
	tableName := adapter.TableName(group, rank, rankCount)
	meta, err := a.metaFor(tableName)
	if err != nil {
		return nil, err
	}

	countCol := adapter.CountColumn(aggregateName)
	valueCol := adapter.ValueColumn(aggregateName)
	query := fmt.Sprintf(`
		SELECT position, parent_position, lower_bound, upper_bound, %s, %s
		FROM %s
		ORDER BY position ASC
	`, countCol, valueCol, tableName)

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("dump_rank %s: %w", tableName, err)
	}
	defer rows.Close()

	return a.collectBuckets(rows, meta, aggregateName, tableName)
}

func (a *Adapter) collectBuckets(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}, meta *tableMeta, aggregateName, tableName string) ([]adapter.Bucket, error) {
	var out []adapter.Bucket
	for rows.Next() {
		b, err := a.scanBucket(meta, aggregateName, rows)
		if err != nil {
			return nil, fmt.Errorf("scan row from %s: %w", tableName, err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows from %s: %w", tableName, err)
	}
	return out, nil
}

// MaxPosition returns the largest position in the rank table, or 0 if it
// is empty. A table with no recorded schema, or a failed query, is
// returned as an error; the engine treats any error here as an empty
// table during construction.
func (a *Adapter) MaxPosition(ctx context.Context, group string, rank, rankCount int) (int64, error) {
	tableName := adapter.TableName(group, rank, rankCount)
	if _, err := a.metaFor(tableName); err != nil {
		return 0, err
	}

	var max int64
	query := fmt.Sprintf("SELECT COALESCE(MAX(position), 0) FROM %s", tableName)
	if err := a.db.QueryRowContext(ctx, query).Scan(&max); err != nil {
		return 0, fmt.Errorf("max_position %s: %w", tableName, err)
	}
	return max, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

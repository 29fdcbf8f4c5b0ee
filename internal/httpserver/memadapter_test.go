package httpserver

import (
	"context"
	"sync"

	"github.com/promantle/triangularlist/adapter"
)

// memAdapter is a minimal in-memory adapter.TableAdapter, sufficient to
// exercise handlers end to end without a database. It does not claim to
// be a complete reference implementation — see adapter/postgres for that.
type memAdapter struct {
	mu     sync.Mutex
	tables map[string]bool
	rows   map[string]map[int64]adapter.Bucket // tableKey/aggregateName -> position -> bucket
}

func newMemAdapter() *memAdapter {
	return &memAdapter{
		tables: make(map[string]bool),
		rows:   make(map[string]map[int64]adapter.Bucket),
	}
}

func rowsKey(tableKey, aggregateName string) string { return tableKey + "/" + aggregateName }

func (m *memAdapter) EnsureTable(ctx context.Context, group string, rank, rankCount int, keyType string, aggregates []adapter.AggregateSchema) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := adapter.TableName(group, rank, rankCount)
	if m.tables[key] {
		return false, nil
	}
	m.tables[key] = true
	return true, nil
}

func (m *memAdapter) WriteAt(ctx context.Context, group string, rank, rankCount int, aggregateName string, parentPosition, position, count int64, value, lowerBound, upperBound any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rowsKey(adapter.TableName(group, rank, rankCount), aggregateName)
	if m.rows[key] == nil {
		m.rows[key] = make(map[int64]adapter.Bucket)
	}
	m.rows[key][position] = adapter.Bucket{
		Position: position, ParentPosition: parentPosition,
		Count: count, Value: value, LowerBound: lowerBound, UpperBound: upperBound,
	}
	return nil
}

func (m *memAdapter) ReadAt(ctx context.Context, group string, rank, rankCount int, aggregateName string, position int64) (*adapter.Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rowsKey(adapter.TableName(group, rank, rankCount), aggregateName)
	b, ok := m.rows[key][position]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *memAdapter) ReadRange(ctx context.Context, group string, rank, rankCount int, aggregateName string, start, end int64) ([]adapter.Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rowsKey(adapter.TableName(group, rank, rankCount), aggregateName)
	var out []adapter.Bucket
	for pos, b := range m.rows[key] {
		if pos >= start && pos <= end {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memAdapter) ReadChildren(ctx context.Context, group string, rank, rankCount int, aggregateName string, parentPosition int64) ([]adapter.Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rowsKey(adapter.TableName(group, rank, rankCount), aggregateName)
	var out []adapter.Bucket
	for _, b := range m.rows[key] {
		if b.ParentPosition == parentPosition {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memAdapter) MaxPosition(ctx context.Context, group string, rank, rankCount int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max int64
	for _, byAgg := range m.rows {
		for pos := range byAgg {
			if pos > max {
				max = pos
			}
		}
	}
	return max, nil
}

func (m *memAdapter) DumpRank(ctx context.Context, group string, rank, rankCount int, aggregateName string) ([]adapter.Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rowsKey(adapter.TableName(group, rank, rankCount), aggregateName)
	out := make([]adapter.Bucket, 0, len(m.rows[key]))
	for _, b := range m.rows[key] {
		out = append(out, b)
	}
	return out, nil
}

func (m *memAdapter) DropTable(ctx context.Context, group string, rank, rankCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, adapter.TableName(group, rank, rankCount))
	return nil
}

package triangularlist

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/promantle/triangularlist/adapter"
)

// memAdapter is a minimal in-process TableAdapter used to exercise engine
// and builder invariants without a database. It keeps rows in a map keyed
// by (group, rank, rankCount, aggregate, position) and never persists
// beyond the process, which is all engine-level tests need.
type memAdapter struct {
	mu     sync.Mutex
	tables map[string]bool
	rows   map[string]map[int64]adapter.Bucket
	// failEnsureTable, when set, is returned by EnsureTable for the named
	// table key instead of succeeding — used to exercise AdapterFailure
	// propagation.
	failEnsureTable map[string]error
}

func newMemAdapter() *memAdapter {
	return &memAdapter{
		tables:          make(map[string]bool),
		rows:            make(map[string]map[int64]adapter.Bucket),
		failEnsureTable: make(map[string]error),
	}
}

func (m *memAdapter) key(group string, rank, rankCount int) string {
	return adapter.TableName(group, rank, rankCount)
}

func (m *memAdapter) rowsFor(tableKey, aggregateName string) map[int64]adapter.Bucket {
	full := tableKey + "/" + aggregateName
	rows, ok := m.rows[full]
	if !ok {
		rows = make(map[int64]adapter.Bucket)
		m.rows[full] = rows
	}
	return rows
}

func (m *memAdapter) EnsureTable(ctx context.Context, group string, rank, rankCount int, keyType string, aggregates []adapter.AggregateSchema) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tk := m.key(group, rank, rankCount)
	if err, ok := m.failEnsureTable[tk]; ok {
		return false, err
	}
	if m.tables[tk] {
		return false, nil
	}
	m.tables[tk] = true
	return true, nil
}

func (m *memAdapter) WriteAt(ctx context.Context, group string, rank, rankCount int, aggregateName string, parentPosition, position, count int64, value, lowerBound, upperBound any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.rowsFor(m.key(group, rank, rankCount), aggregateName)
	rows[position] = adapter.Bucket{
		Position:       position,
		ParentPosition: parentPosition,
		LowerBound:     lowerBound,
		UpperBound:     upperBound,
		Count:          count,
		Value:          value,
	}
	return nil
}

func (m *memAdapter) ReadAt(ctx context.Context, group string, rank, rankCount int, aggregateName string, position int64) (*adapter.Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.rowsFor(m.key(group, rank, rankCount), aggregateName)
	b, ok := rows[position]
	if !ok {
		return nil, nil
	}
	cp := b
	return &cp, nil
}

func (m *memAdapter) ReadRange(ctx context.Context, group string, rank, rankCount int, aggregateName string, start, end int64) ([]adapter.Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.rowsFor(m.key(group, rank, rankCount), aggregateName)
	var out []adapter.Bucket
	for _, b := range rows {
		if b.Position >= start && b.Position <= end {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *memAdapter) ReadChildren(ctx context.Context, group string, rank, rankCount int, aggregateName string, parentPosition int64) ([]adapter.Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.rowsFor(m.key(group, rank, rankCount), aggregateName)
	var out []adapter.Bucket
	for _, b := range rows {
		if b.ParentPosition == parentPosition {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *memAdapter) MaxPosition(ctx context.Context, group string, rank, rankCount int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var max int64
	found := false
	for full, rows := range m.rows {
		if !strings.HasPrefix(full, m.key(group, rank, rankCount)+"/") {
			continue
		}
		for _, b := range rows {
			if !found || b.Position > max {
				max = b.Position
				found = true
			}
		}
	}
	return max, nil
}

func (m *memAdapter) DumpRank(ctx context.Context, group string, rank, rankCount int, aggregateName string) ([]adapter.Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.rowsFor(m.key(group, rank, rankCount), aggregateName)
	out := make([]adapter.Bucket, 0, len(rows))
	for _, b := range rows {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *memAdapter) DropTable(ctx context.Context, group string, rank, rankCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tk := m.key(group, rank, rankCount)
	delete(m.tables, tk)
	for full := range m.rows {
		if strings.HasPrefix(full, tk+"/") {
			delete(m.rows, full)
		}
	}
	return nil
}


// Package postgres implements adapter.TableAdapter against a
// PostgreSQL-compatible backend: every rank table is created on demand
// (spec §4.1/§4.2), named "<group>_<rank>_of_<rankCount>", with one row
// per bucket position and one (_count, _value) column pair per aggregate.
package postgres

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/promantle/triangularlist/adapter"
)

// tableMeta records the column kinds an Adapter needs to scan a rank
// table's rows back into adapter.Bucket, learned once at EnsureTable time
// and reused by every later read/write against the same table.
type tableMeta struct {
	keyKind    columnKind
	aggregates map[string]columnKind // aggregate name -> value column kind
}

// Adapter implements adapter.TableAdapter over a *sql.DB. It is safe for
// concurrent use to the extent the engine itself is (spec §5: no internal
// transactional coupling between calls unless noted).
type Adapter struct {
	db *sql.DB

	mu     sync.RWMutex
	tables map[string]*tableMeta // table name -> schema
}

// NewAdapter wraps an already-open *sql.DB. The caller owns the pool's
// lifecycle (max conns, Close).
func NewAdapter(db *sql.DB) *Adapter {
	return &Adapter{
		db:     db,
		tables: make(map[string]*tableMeta),
	}
}

func (a *Adapter) metaFor(tableName string) (*tableMeta, error) {
	a.mu.RLock()
	m, ok := a.tables[tableName]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("table %q has no recorded schema; call EnsureTable first", tableName)
	}
	return m, nil
}

var _ adapter.TableAdapter = (*Adapter)(nil)

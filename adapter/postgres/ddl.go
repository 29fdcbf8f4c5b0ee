package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/promantle/triangularlist/adapter"
)

const queryTableExists = `SELECT to_regclass($1) IS NOT NULL`

// EnsureTable creates the rank table if absent and records its column
// kinds for later scans. Idempotent: a second call against an existing
// table only refreshes the cached schema and returns created=false.
func (a *Adapter) EnsureTable(ctx context.Context, group string, rank, rankCount int, keyType string, aggregates []adapter.AggregateSchema) (bool, error) {
	keyKind, err := classifyStorageType(keyType)
	if err != nil {
		return false, fmt.Errorf("ensure_table: key type: %w", err)
	}

	aggKinds := make(map[string]columnKind, len(aggregates))
	for _, agg := range aggregates {
		kind, err := classifyStorageType(agg.StorageType)
		if err != nil {
			return false, fmt.Errorf("ensure_table: aggregate %q: %w", agg.Name, err)
		}
		aggKinds[agg.Name] = kind
	}

	tableName := adapter.TableName(group, rank, rankCount)

	var exists bool
	if err := a.db.QueryRowContext(ctx, queryTableExists, tableName).Scan(&exists); err != nil {
		return false, fmt.Errorf("ensure_table: check existence of %q: %w", tableName, err)
	}

	created := false
	if !exists {
		ddl := buildCreateTableDDL(tableName, keyType, aggregates)
		if _, err := a.db.ExecContext(ctx, ddl); err != nil {
			return false, fmt.Errorf("ensure_table: create %q: %w", tableName, err)
		}
		indexDDL := buildParentPositionIndexDDL(tableName)
		if _, err := a.db.ExecContext(ctx, indexDDL); err != nil {
			return false, fmt.Errorf("ensure_table: index %q: %w", tableName, err)
		}
		created = true
	}

	a.mu.Lock()
	a.tables[tableName] = &tableMeta{keyKind: keyKind, aggregates: aggKinds}
	a.mu.Unlock()

	return created, nil
}

func buildCreateTableDDL(tableName, keyType string, aggregates []adapter.AggregateSchema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", tableName)
	fmt.Fprintf(&b, "\tposition BIGINT PRIMARY KEY,\n")
	fmt.Fprintf(&b, "\tparent_position BIGINT NOT NULL,\n")
	fmt.Fprintf(&b, "\tlower_bound %s NOT NULL,\n", keyType)
	fmt.Fprintf(&b, "\tupper_bound %s NOT NULL", keyType)
	for _, agg := range aggregates {
		fmt.Fprintf(&b, ",\n\t%s BIGINT NOT NULL DEFAULT 0", adapter.CountColumn(agg.Name))
		fmt.Fprintf(&b, ",\n\t%s %s", adapter.ValueColumn(agg.Name), agg.StorageType)
	}
	b.WriteString("\n)")
	return b.String()
}

// buildParentPositionIndexDDL indexes parent_position: every ReadChildren
// call in the rank-walk filters on it, once per write (spec §4.1/§6.1).
// The primary key already covers lookups by position, so that column needs
// no separate index.
func buildParentPositionIndexDDL(tableName string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_parent_position_idx ON %s (parent_position)", tableName, tableName)
}

// DropTable drops the rank table and forgets its cached schema.
func (a *Adapter) DropTable(ctx context.Context, group string, rank, rankCount int) error {
	tableName := adapter.TableName(group, rank, rankCount)
	if _, err := a.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", tableName)); err != nil {
		return fmt.Errorf("drop_table %q: %w", tableName, err)
	}

	a.mu.Lock()
	delete(a.tables, tableName)
	a.mu.Unlock()

	return nil
}

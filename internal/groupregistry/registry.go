// Package groupregistry is the control plane that records which groups a
// promantled deployment has materialized: name, key storage type, rank
// count, and the rank/aggregate config fingerprint last used to build it
// (spec §12.4). It is the one piece of statically-shaped schema in a
// system whose rank tables are otherwise all dynamically named.
package groupregistry

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Record is one registered group.
type Record struct {
	Name              string
	KeyStorageType    string
	RankCount         int
	ConfigFingerprint string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Registry reads and writes the promantle_groups control-plane table.
type Registry struct {
	db *sql.DB
}

// NewRegistry wraps an already-open *sql.DB. Callers should run
// migrations.Run against the same db before using a Registry.
func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db}
}

const queryUpsertGroup = `
	INSERT INTO promantle_groups (name, key_storage_type, rank_count, config_fingerprint, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $5)
	ON CONFLICT (name) DO UPDATE SET
		key_storage_type = EXCLUDED.key_storage_type,
		rank_count = EXCLUDED.rank_count,
		config_fingerprint = EXCLUDED.config_fingerprint,
		updated_at = EXCLUDED.updated_at
`

// Upsert records (or refreshes) one group's materialization state. Call
// this once per group, right after Builder.Build succeeds.
func (r *Registry) Upsert(ctx context.Context, name, keyStorageType string, rankCount int, configFingerprint string, now time.Time) error {
	if _, err := r.db.ExecContext(ctx, queryUpsertGroup, name, keyStorageType, rankCount, configFingerprint, now); err != nil {
		return fmt.Errorf("group_registry: upsert %q: %w", name, err)
	}
	return nil
}

const queryGetGroup = `
	SELECT name, key_storage_type, rank_count, config_fingerprint, created_at, updated_at
	FROM promantle_groups
	WHERE name = $1
`

// Get returns the recorded state for one group, or nil if it has never
// been registered.
func (r *Registry) Get(ctx context.Context, name string) (*Record, error) {
	var rec Record
	err := r.db.QueryRowContext(ctx, queryGetGroup, name).Scan(
		&rec.Name, &rec.KeyStorageType, &rec.RankCount, &rec.ConfigFingerprint, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("group_registry: get %q: %w", name, err)
	}
	return &rec, nil
}

const queryListGroups = `
	SELECT name, key_storage_type, rank_count, config_fingerprint, created_at, updated_at
	FROM promantle_groups
	ORDER BY name ASC
`

// List returns every registered group, for diagnostics.
func (r *Registry) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, queryListGroups)
	if err != nil {
		return nil, fmt.Errorf("group_registry: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Name, &rec.KeyStorageType, &rec.RankCount, &rec.ConfigFingerprint, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("group_registry: scan row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("group_registry: iterate rows: %w", err)
	}
	return out, nil
}

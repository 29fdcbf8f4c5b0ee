// Package rankconfig loads the YAML files that describe each
// TriangularList group the promantled server materializes: its ranks
// (named truncation windows over a timestamp key) and its aggregates
// (named sum/count/min/max operators over a numeric event field). Loaded
// once at startup and cached in memory, mirroring how aggregation rules
// are loaded in the ambient stack this package is modeled on.
package rankconfig

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Operator names a supported aggregate combine function.
type Operator string

const (
	OpSum   Operator = "sum"
	OpCount Operator = "count"
	OpMin   Operator = "min"
	OpMax   Operator = "max"
)

// parseTruncate accepts the calendar-day/week shorthands "daily" and
// "weekly" (time.ParseDuration has no unit past hours) alongside any
// Go duration string such as "90s" or "24h".
func parseTruncate(s string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily":
		return 24 * time.Hour, nil
	case "weekly":
		return 7 * 24 * time.Hour, nil
	default:
		return time.ParseDuration(s)
	}
}

func validOperator(op Operator) bool {
	switch op {
	case OpSum, OpCount, OpMin, OpMax:
		return true
	default:
		return false
	}
}

// RankSpec is one rank: a name and the duration its bucket positions
// truncate the key to.
type RankSpec struct {
	Name     string
	Truncate time.Duration
}

// AggregateSpec is one aggregate: a name, the combine operator, the event
// data field it reads, and the adapter storage type for its value column.
type AggregateSpec struct {
	Name        string
	Operator    Operator
	Field       string
	StorageType string
}

// GroupConfig is one loaded group definition, ready to be wired into a
// triangularlist.Builder.
type GroupConfig struct {
	Group          string
	KeyStorageType string
	Ranks          []RankSpec
	Aggregates     []AggregateSpec

	// Fingerprint is the SHA-256 of the raw YAML file, for staleness
	// detection against the group registry's recorded config hash.
	Fingerprint string
}

// rawGroupConfig is the on-disk YAML shape.
type rawGroupConfig struct {
	Group string `yaml:"group"`
	Key   struct {
		StorageType string `yaml:"storage_type"`
	} `yaml:"key"`
	Ranks []struct {
		Name     string `yaml:"name"`
		Truncate string `yaml:"truncate"`
	} `yaml:"ranks"`
	Aggregates []struct {
		Name        string `yaml:"name"`
		Operator    string `yaml:"operator"`
		Field       string `yaml:"field"`
		StorageType string `yaml:"storage_type"`
	} `yaml:"aggregates"`
}

// FileSystemGroupRepository loads group configs from *.yaml/*.yml files in
// a directory. Each file contains exactly one group at the top level.
type FileSystemGroupRepository struct {
	dir    string
	groups map[string]GroupConfig // keyed by Group
}

// NewFileSystemGroupRepository creates a repository and eagerly loads
// every group config from dir. A missing dir is not an error — it yields
// zero groups, matching how an optional config directory is treated
// elsewhere in this stack.
func NewFileSystemGroupRepository(dir string) (*FileSystemGroupRepository, error) {
	repo := &FileSystemGroupRepository{
		dir:    dir,
		groups: make(map[string]GroupConfig),
	}
	if err := repo.load(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *FileSystemGroupRepository) load() error {
	info, err := os.Stat(r.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("group config dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("group config path %q is not a directory", r.dir)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("reading group config dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(r.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading group config file %s: %w", path, err)
		}

		var raw rawGroupConfig
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parsing group config file %s: %w", path, err)
		}
		if raw.Group == "" {
			continue
		}

		cfg, err := toGroupConfig(raw)
		if err != nil {
			return fmt.Errorf("group %q: %w", raw.Group, err)
		}
		cfg.Fingerprint = fmt.Sprintf("%x", sha256.Sum256(data))

		if _, exists := r.groups[cfg.Group]; exists {
			return fmt.Errorf("group %q: duplicate group name (check multiple YAML files)", cfg.Group)
		}
		r.groups[cfg.Group] = cfg
	}
	return nil
}

func toGroupConfig(raw rawGroupConfig) (GroupConfig, error) {
	if raw.Key.StorageType == "" {
		return GroupConfig{}, fmt.Errorf("key.storage_type must not be empty")
	}
	if len(raw.Ranks) == 0 {
		return GroupConfig{}, fmt.Errorf("at least one rank is required")
	}
	if len(raw.Aggregates) == 0 {
		return GroupConfig{}, fmt.Errorf("at least one aggregate is required")
	}

	cfg := GroupConfig{Group: raw.Group, KeyStorageType: raw.Key.StorageType}

	for _, r := range raw.Ranks {
		if r.Name == "" {
			return GroupConfig{}, fmt.Errorf("rank name must not be empty")
		}
		d, err := parseTruncate(r.Truncate)
		if err != nil {
			return GroupConfig{}, fmt.Errorf("rank %q: invalid truncate duration %q: %w", r.Name, r.Truncate, err)
		}
		if d <= 0 {
			return GroupConfig{}, fmt.Errorf("rank %q: truncate duration must be > 0", r.Name)
		}
		cfg.Ranks = append(cfg.Ranks, RankSpec{Name: r.Name, Truncate: d})
	}

	for _, a := range raw.Aggregates {
		if a.Name == "" {
			return GroupConfig{}, fmt.Errorf("aggregate name must not be empty")
		}
		op := Operator(strings.ToLower(a.Operator))
		if !validOperator(op) {
			return GroupConfig{}, fmt.Errorf("aggregate %q: unsupported operator %q", a.Name, a.Operator)
		}
		if op != OpCount && a.Field == "" {
			return GroupConfig{}, fmt.Errorf("aggregate %q: field is required for operator %q", a.Name, op)
		}
		if a.StorageType == "" {
			return GroupConfig{}, fmt.Errorf("aggregate %q: storage_type must not be empty", a.Name)
		}
		cfg.Aggregates = append(cfg.Aggregates, AggregateSpec{
			Name:        a.Name,
			Operator:    op,
			Field:       a.Field,
			StorageType: a.StorageType,
		})
	}

	return cfg, nil
}

// Get returns the group config with the given name.
func (r *FileSystemGroupRepository) Get(name string) (GroupConfig, bool) {
	cfg, ok := r.groups[name]
	return cfg, ok
}

// GroupConfigs returns every loaded group config.
func (r *FileSystemGroupRepository) GroupConfigs() []GroupConfig {
	out := make([]GroupConfig, 0, len(r.groups))
	for _, cfg := range r.groups {
		out = append(out, cfg)
	}
	return out
}

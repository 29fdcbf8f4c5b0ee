package rankconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeGroup(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFileSystemGroupRepository_LoadAndGet(t *testing.T) {
	dir := t.TempDir()
	writeGroup(t, dir, "transactions.yaml", `
group: "transactions"
key:
  storage_type: "TIMESTAMPTZ"
ranks:
  - name: "PerHour"
    truncate: "1h"
  - name: "PerDay"
    truncate: "24h"
aggregates:
  - name: "Spent"
    operator: "sum"
    field: "spent"
    storage_type: "NUMERIC"
`)

	repo, err := NewFileSystemGroupRepository(dir)
	if err != nil {
		t.Fatalf("NewFileSystemGroupRepository: %v", err)
	}

	cfg, ok := repo.Get("transactions")
	if !ok {
		t.Fatal("expected group transactions to be present")
	}
	if len(cfg.Ranks) != 2 {
		t.Fatalf("expected 2 ranks, got %d", len(cfg.Ranks))
	}
	if len(cfg.Aggregates) != 1 {
		t.Fatalf("expected 1 aggregate, got %d", len(cfg.Aggregates))
	}
	if cfg.Aggregates[0].Operator != OpSum {
		t.Errorf("Operator = %q, want sum", cfg.Aggregates[0].Operator)
	}
	if cfg.Fingerprint == "" {
		t.Error("Fingerprint is empty")
	}
}

func TestFileSystemGroupRepository_MissingDir(t *testing.T) {
	repo, err := NewFileSystemGroupRepository("/tmp/does-not-exist-promantle-test")
	if err != nil {
		t.Fatalf("unexpected error for missing dir: %v", err)
	}
	if len(repo.GroupConfigs()) != 0 {
		t.Errorf("expected 0 groups from missing dir, got %d", len(repo.GroupConfigs()))
	}
}

func TestFileSystemGroupRepository_InvalidOperator(t *testing.T) {
	dir := t.TempDir()
	writeGroup(t, dir, "bad.yaml", `
group: "bad"
key:
  storage_type: "TIMESTAMPTZ"
ranks:
  - name: "PerHour"
    truncate: "1h"
aggregates:
  - name: "Spent"
    operator: "average"
    field: "spent"
    storage_type: "NUMERIC"
`)

	_, err := NewFileSystemGroupRepository(dir)
	if err == nil {
		t.Fatal("expected error for unsupported operator, got nil")
	}
}

func TestFileSystemGroupRepository_CountOperatorDoesNotRequireField(t *testing.T) {
	dir := t.TempDir()
	writeGroup(t, dir, "counts.yaml", `
group: "counts"
key:
  storage_type: "TIMESTAMPTZ"
ranks:
  - name: "PerHour"
    truncate: "1h"
aggregates:
  - name: "Count"
    operator: "count"
    storage_type: "BIGINT"
`)

	repo, err := NewFileSystemGroupRepository(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, ok := repo.Get("counts")
	if !ok {
		t.Fatal("expected group counts to be present")
	}
	if cfg.Aggregates[0].Field != "" {
		t.Errorf("expected empty field for count operator, got %q", cfg.Aggregates[0].Field)
	}
}

func TestFileSystemGroupRepository_DuplicateGroupName(t *testing.T) {
	dir := t.TempDir()
	writeGroup(t, dir, "first.yaml", `
group: "dup"
key:
  storage_type: "TIMESTAMPTZ"
ranks:
  - name: "PerHour"
    truncate: "1h"
aggregates:
  - name: "Count"
    operator: "count"
    storage_type: "BIGINT"
`)
	writeGroup(t, dir, "second.yaml", `
group: "dup"
key:
  storage_type: "TIMESTAMPTZ"
ranks:
  - name: "PerDay"
    truncate: "24h"
aggregates:
  - name: "Count"
    operator: "count"
    storage_type: "BIGINT"
`)

	_, err := NewFileSystemGroupRepository(dir)
	if err == nil {
		t.Fatal("expected error for duplicate group name, got nil")
	}
}

func TestFileSystemGroupRepository_InvalidTruncateDuration(t *testing.T) {
	dir := t.TempDir()
	writeGroup(t, dir, "bad_rank.yaml", `
group: "bad_rank"
key:
  storage_type: "TIMESTAMPTZ"
ranks:
  - name: "PerHour"
    truncate: "nope"
aggregates:
  - name: "Count"
    operator: "count"
    storage_type: "BIGINT"
`)

	_, err := NewFileSystemGroupRepository(dir)
	if err == nil {
		t.Fatal("expected error for invalid truncate duration, got nil")
	}
}

func TestFileSystemGroupRepository_DailyWeeklyKeywords(t *testing.T) {
	dir := t.TempDir()
	writeGroup(t, dir, "calendar.yaml", `
group: "calendar"
key:
  storage_type: "TIMESTAMPTZ"
ranks:
  - name: "PerDay"
    truncate: "daily"
  - name: "PerWeek"
    truncate: "weekly"
aggregates:
  - name: "Count"
    operator: "count"
    storage_type: "BIGINT"
`)

	repo, err := NewFileSystemGroupRepository(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, ok := repo.Get("calendar")
	if !ok {
		t.Fatal("expected group calendar to be present")
	}
	if cfg.Ranks[0].Truncate != 24*time.Hour {
		t.Errorf("PerDay truncate = %s, want 24h", cfg.Ranks[0].Truncate)
	}
	if cfg.Ranks[1].Truncate != 7*24*time.Hour {
		t.Errorf("PerWeek truncate = %s, want 168h", cfg.Ranks[1].Truncate)
	}
}

func TestFileSystemGroupRepository_SkipsEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	writeGroup(t, dir, "empty.yaml", "")
	writeGroup(t, dir, "comment_only.yaml", "# just a comment\n")
	writeGroup(t, dir, "real.yaml", `
group: "real"
key:
  storage_type: "TIMESTAMPTZ"
ranks:
  - name: "PerHour"
    truncate: "1h"
aggregates:
  - name: "Count"
    operator: "count"
    storage_type: "BIGINT"
`)

	repo, err := NewFileSystemGroupRepository(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(repo.GroupConfigs()) != 1 {
		t.Errorf("expected 1 group (skipping empty/comment files), got %d", len(repo.GroupConfigs()))
	}
}

package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/promantle/triangularlist/adapter/postgres"
	"github.com/promantle/triangularlist/internal/bench"
	"github.com/promantle/triangularlist/internal/config"
	"github.com/promantle/triangularlist/internal/groupregistry"
	"github.com/promantle/triangularlist/internal/groupregistry/migrations"
	"github.com/promantle/triangularlist/internal/httpserver"
	"github.com/promantle/triangularlist/internal/rankconfig"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "bench" {
		runBench(os.Args[2:])
		return
	}
	runServer(os.Args[1:])
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// openDB opens the pool shared by the group registry and every group's
// postgres.Adapter.
func openDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	return db, nil
}

// loadGroups reads every rank/aggregate config file and materializes an
// httpserver.Engine per group, registering each in the group registry.
func loadGroups(ctx context.Context, cfg *config.Config, db *sql.DB) (map[string]*httpserver.Engine, error) {
	repo, err := rankconfig.NewFileSystemGroupRepository(cfg.Groups.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("loading group configs: %w", err)
	}

	configs := repo.GroupConfigs()
	if len(configs) == 0 && cfg.Groups.RequireGroups {
		return nil, fmt.Errorf("no group configs found in %q and groups.require_groups is true", cfg.Groups.ConfigDir)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Group < configs[j].Group })

	ad := postgres.NewAdapter(db)
	reg := groupregistry.NewRegistry(db)

	engines := make(map[string]*httpserver.Engine, len(configs))
	for _, gc := range configs {
		engine, err := httpserver.BuildEngine(ctx, gc, ad)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", gc.Group, err)
		}
		if err := reg.Upsert(ctx, gc.Group, gc.KeyStorageType, len(gc.Ranks), gc.Fingerprint, time.Now()); err != nil {
			return nil, fmt.Errorf("registering group %q: %w", gc.Group, err)
		}
		engines[gc.Group] = engine
		slog.Info("[promantle] group materialized", "group", gc.Group, "ranks", len(gc.Ranks), "aggregates", len(gc.Aggregates))
	}
	return engines, nil
}

func runServer(args []string) {
	fs := flag.NewFlagSet("promantle", flag.ExitOnError)
	configPath := fs.String("config", "promantle.yaml", "Path to configuration file")
	primaryGroup := fs.String("group", "", "Name of the group the demo HTTP surface serves (defaults to the first group loaded)")
	fs.Parse(args)

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("[promantle] failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("[promantle] config loaded", "server_port", cfg.Server.Port, "groups_dir", cfg.Groups.ConfigDir)

	db, err := openDB(cfg.Database)
	if err != nil {
		slog.Error("[promantle] failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := migrations.Run(db, cfg.Database.AutoMigrate); err != nil {
		slog.Error("[promantle] failed to run group registry migrations", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engines, err := loadGroups(ctx, cfg, db)
	if err != nil {
		slog.Error("[promantle] failed to load groups", "error", err)
		os.Exit(1)
	}

	name := *primaryGroup
	if name == "" {
		for n := range engines {
			if name == "" || n < name {
				name = n
			}
		}
	}
	engine, ok := engines[name]
	if !ok {
		slog.Error("[promantle] no group available to serve", "requested_group", *primaryGroup, "loaded_groups", len(engines))
		os.Exit(1)
	}
	slog.Info("[promantle] serving group over HTTP", "group", name, "loaded_but_unserved", len(engines)-1)

	svc := httpserver.NewService(engine)
	srv := httpserver.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), db, cfg.Server.Mode, svc)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("[promantle] signal received, shutting down")
		cancel()
	}()

	if err := srv.Run(ctx); err != nil {
		slog.Error("[promantle] server stopped with error", "error", err)
		os.Exit(1)
	}
}

func runBench(args []string) {
	fs := flag.NewFlagSet("promantle bench", flag.ExitOnError)
	configPath := fs.String("config", "promantle.yaml", "Path to configuration file")
	group := fs.String("group", "", "Group to write against (defaults to the first group loaded)")
	workers := fs.Int("workers", 8, "Number of concurrent writers")
	itemsPerWorker := fs.Int("items", 100, "Items written per worker")
	countAggregate := fs.String("count-aggregate", "", "Name of a count-operator aggregate to compare against")
	coarsestRank := fs.String("coarsest-rank", "", "Name of the coarsest configured rank")
	fs.Parse(args)

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("[bench] failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		slog.Error("[bench] failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	engines, err := loadGroups(ctx, cfg, db)
	if err != nil {
		slog.Error("[bench] failed to load groups", "error", err)
		os.Exit(1)
	}

	name := *group
	if name == "" {
		for n := range engines {
			if name == "" || n < name {
				name = n
			}
		}
	}
	engine, ok := engines[name]
	if !ok {
		slog.Error("[bench] no group available to write against", "requested_group", *group)
		os.Exit(1)
	}

	aggName := *countAggregate
	rankName := *coarsestRank
	if aggName == "" {
		for _, a := range engine.Config.Aggregates {
			if a.Operator == rankconfig.OpCount {
				aggName = a.Name
				break
			}
		}
		if aggName == "" && len(engine.Config.Aggregates) > 0 {
			aggName = engine.Config.Aggregates[0].Name
		}
	}
	if rankName == "" && len(engine.Config.Ranks) > 0 {
		rankName = engine.Config.Ranks[len(engine.Config.Ranks)-1].Name
	}
	if aggName == "" || rankName == "" {
		slog.Error("[bench] group has no aggregates or ranks configured to compare against", "group", name)
		os.Exit(1)
	}

	result, err := bench.Run(ctx, engine, *workers, *itemsPerWorker, aggName, rankName)
	if err != nil {
		slog.Error("[bench] run failed", "error", err)
		os.Exit(1)
	}

	slog.Info("[bench] run complete",
		"group", name,
		"workers", result.Workers,
		"items_per_worker", result.ItemsPerWorker,
		"items_written", result.ItemsWritten,
		"observed_count", result.ObservedCount,
		"lost_updates", result.LostUpdates,
		"duration", result.Duration,
	)
}

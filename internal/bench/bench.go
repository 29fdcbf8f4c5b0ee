// Package bench is a concurrent-writer load generator. It exists to
// demonstrate, not fix, the documented anomaly that concurrent writers
// against the same group produce undefined aggregate state because the
// rank-walk (read children, fold, write parent) is not transactional in
// the reference adapter. It is ordinary calling code, exactly like any
// other multi-goroutine user of a single-writer library — the engine
// itself stays single-writer cooperative.
package bench

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shopspring/decimal"

	"github.com/promantle/triangularlist/internal/httpserver"
)

// Result reports what a Run actually observed: how many items each worker
// believed it wrote successfully, versus what the coarsest configured rank
// reports as the total count once every write has returned. A gap between
// the two is the lost-update anomaly, not a bug in Result's accounting.
type Result struct {
	Workers        int
	ItemsPerWorker int
	ItemsWritten   int64
	ObservedCount  int64
	LostUpdates    int64
	CountAggregate string
	CoarsestRank   string
	Duration       time.Duration
}

// Run writes workers*itemsPerWorker synthetic events concurrently through
// engine, then compares the number of writes that returned no error
// against countAggregateName's total at coarsestRankName over the window
// the run spanned.
func Run(ctx context.Context, engine *httpserver.Engine, workers, itemsPerWorker int, countAggregateName, coarsestRankName string) (*Result, error) {
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	var written atomic.Int64

	for w := 0; w < workers; w++ {
		worker := w
		g.Go(func() error {
			for i := 0; i < itemsPerWorker; i++ {
				evt := httpserver.Event{
					ID:   fmt.Sprintf("bench-%d-%d", worker, i),
					Key:  time.Now(),
					Data: map[string]any{"amount": 1},
				}
				if _, err := engine.WriteItem(gctx, evt); err != nil {
					return fmt.Errorf("worker %d item %d: %w", worker, i, err)
				}
				written.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	end := time.Now()
	points, err := engine.ReadPointsOverRange(ctx, countAggregateName, coarsestRankName, start, end)
	if err != nil {
		return nil, fmt.Errorf("reading back observed count: %w", err)
	}

	var observed decimal.Decimal
	for _, p := range points {
		observed = observed.Add(p.Value)
	}

	itemsWritten := written.Load()
	observedInt := observed.IntPart()

	return &Result{
		Workers:        workers,
		ItemsPerWorker: itemsPerWorker,
		ItemsWritten:   itemsWritten,
		ObservedCount:  observedInt,
		LostUpdates:    itemsWritten - observedInt,
		CountAggregate: countAggregateName,
		CoarsestRank:   coarsestRankName,
		Duration:       end.Sub(start),
	}, nil
}

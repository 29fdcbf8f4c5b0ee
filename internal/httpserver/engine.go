package httpserver

import (
	"context"
	"fmt"
	"time"

	"github.com/promantle/triangularlist/triangularlist"
	"github.com/promantle/triangularlist/adapter"
	"github.com/shopspring/decimal"

	"github.com/promantle/triangularlist/internal/rankconfig"
)

// Engine is one materialized group config: the concrete K=time.Time,
// V=Event, A=decimal.Decimal instantiation of the generic engine, plus the
// config it was built from (needed to validate aggregate/rank names before
// they reach the generic read functions, and to report back what the
// group looks like for diagnostics).
type Engine struct {
	Config rankconfig.GroupConfig
	tl     *triangularlist.TriangularList[time.Time, Event]
}

func timeMinMax(a, b time.Time) (time.Time, time.Time) {
	if a.Before(b) {
		return a, b
	}
	return b, a
}

// operatorFuncs returns the Select/Combine pair for one configured
// aggregate. Every aggregate value is carried as decimal.Decimal — the one
// concrete A this HTTP surface reads back with, regardless of the
// configured operator.
func operatorFuncs(spec rankconfig.AggregateSpec) (func(Event) decimal.Decimal, func(current, incoming decimal.Decimal) decimal.Decimal, error) {
	switch spec.Operator {
	case rankconfig.OpSum:
		return func(v Event) decimal.Decimal { return decimalField(v.Data, spec.Field) },
			func(current, incoming decimal.Decimal) decimal.Decimal { return current.Add(incoming) },
			nil
	case rankconfig.OpCount:
		return func(v Event) decimal.Decimal { return decimal.New(1, 0) },
			func(current, incoming decimal.Decimal) decimal.Decimal { return current.Add(incoming) },
			nil
	case rankconfig.OpMin:
		return func(v Event) decimal.Decimal { return decimalField(v.Data, spec.Field) },
			func(current, incoming decimal.Decimal) decimal.Decimal { return decimal.Min(current, incoming) },
			nil
	case rankconfig.OpMax:
		return func(v Event) decimal.Decimal { return decimalField(v.Data, spec.Field) },
			func(current, incoming decimal.Decimal) decimal.Decimal { return decimal.Max(current, incoming) },
			nil
	default:
		return nil, nil, fmt.Errorf("aggregate %q: unsupported operator %q", spec.Name, spec.Operator)
	}
}

// BuildEngine wires one rankconfig.GroupConfig into a materialized
// TriangularList, registering every configured rank and aggregate on a
// fresh Builder in the order the config declares them.
func BuildEngine(ctx context.Context, cfg rankconfig.GroupConfig, ad adapter.TableAdapter) (*Engine, error) {
	b := triangularlist.NewBuilder[time.Time, Event](cfg.Group, ad)
	b.KeyOn(cfg.KeyStorageType, func(v Event) time.Time { return v.Key }, timeMinMax)

	for i, r := range cfg.Ranks {
		truncate := r.Truncate
		b.Rank(i+1, r.Name, func(k time.Time) int64 { return k.Truncate(truncate).UnixNano() })
	}

	for _, a := range cfg.Aggregates {
		selectFn, combineFn, err := operatorFuncs(a)
		if err != nil {
			return nil, err
		}
		triangularlist.Aggregate[decimal.Decimal](b, a.Name, a.StorageType, selectFn, combineFn)
	}

	tl, err := b.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("building engine for group %q: %w", cfg.Group, err)
	}
	return &Engine{Config: cfg, tl: tl}, nil
}

func (e *Engine) WriteItem(ctx context.Context, v Event) (int64, error) {
	return e.tl.WriteItem(ctx, v)
}

func (e *Engine) ReadAggregateAt(ctx context.Context, aggregateName, rankName string, at time.Time) (decimal.Decimal, error) {
	return triangularlist.ReadAggregateAt[time.Time, Event, decimal.Decimal](ctx, e.tl, aggregateName, rankName, at)
}

func (e *Engine) ReadAggregateRange(ctx context.Context, aggregateName, rankName string, start, end time.Time) ([]decimal.Decimal, error) {
	return triangularlist.ReadAggregateRange[time.Time, Event, decimal.Decimal](ctx, e.tl, aggregateName, rankName, start, end)
}

func (e *Engine) ReadPointAt(ctx context.Context, aggregateName, rankName string, at time.Time) (*triangularlist.Point[time.Time, decimal.Decimal], error) {
	return triangularlist.ReadPointAt[time.Time, Event, decimal.Decimal](ctx, e.tl, aggregateName, rankName, at)
}

func (e *Engine) ReadPointsOverRange(ctx context.Context, aggregateName, rankName string, start, end time.Time) ([]triangularlist.Point[time.Time, decimal.Decimal], error) {
	return triangularlist.ReadPointsOverRange[time.Time, Event, decimal.Decimal](ctx, e.tl, aggregateName, rankName, start, end)
}

func (e *Engine) ReadChildrenOfPoint(ctx context.Context, aggregateName, rankName string, at time.Time) ([]triangularlist.Point[time.Time, decimal.Decimal], error) {
	return triangularlist.ReadChildrenOfPoint[time.Time, Event, decimal.Decimal](ctx, e.tl, aggregateName, rankName, at)
}

package optimizer

import (
	"context"
	"fmt"

	"github.com/withterm/term-sub003/internal/config"
	"github.com/withterm/term-sub003/internal/constraint"
	"github.com/withterm/term-sub003/internal/engine"
)

// tableTotalKey is the AggKey every unfiltered COUNT(*) total is cached and
// looked up under (spec §4.F.2-3: a predicate-bearing group's members still
// need the table's unfiltered row count to compute a ratio).
var tableTotalKey = constraint.AggKey{Type: constraint.AggCount}

// OptimizedExecutor runs a Plan: one fused query per Group, reconstructing
// each member constraint's Result via Fusable.FromAggregates, plus one
// ordinary Evaluate call per Standalone constraint (spec §4.F.3). A StatsCache
// lets a repeated run against an unchanged table skip re-issuing SQL for
// aggregates it already has cached (spec §4.F.4).
type OptimizedExecutor struct {
	stats *StatsCache
}

// NewOptimizedExecutor builds an OptimizedExecutor using the process's
// default optimizer configuration.
func NewOptimizedExecutor() *OptimizedExecutor {
	return NewOptimizedExecutorWithConfig(*config.LoadOptimizerConfig())
}

// NewOptimizedExecutorWithConfig builds an OptimizedExecutor from an explicit
// config, primarily for tests exercising StatsCache behavior directly.
func NewOptimizedExecutorWithConfig(cfg config.OptimizerConfig) *OptimizedExecutor {
	return &OptimizedExecutor{stats: NewStatsCache(cfg)}
}

// Stats returns the executor's StatsCache hit/miss/size counters, surfaced by
// Explain for the debugging plan (spec §4.F.4).
func (e *OptimizedExecutor) Stats() Stats {
	return e.stats.Stats()
}

// Execute runs plan against session scoped to vctx's table and returns every
// constraint's Result keyed by constraint name, plus the number of physical
// queries actually issued. A group entirely served from the StatsCache issues
// no query at all; standalone constraints issue their own queries internally
// and aren't counted here.
func (e *OptimizedExecutor) Execute(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext, plan *Plan,
) (map[string]constraint.Result, int, error) {
	results := make(map[string]constraint.Result)
	queries := 0

	var (
		tableTotal     float64
		tableTotalNull bool
		haveTotal      bool
	)

	for _, group := range plan.Groups {
		values, isNull, queried, err := e.runGroup(ctx, session, vctx, group)
		if err != nil {
			return nil, 0, fmt.Errorf("optimizer: fused group of %d constraints: %w", len(group.Constraints), err)
		}

		if queried {
			queries++
		}

		if group.Predicate != "" {
			if !haveTotal {
				var totalQueried bool

				tableTotal, tableTotalNull, totalQueried, err = e.tableTotal(ctx, session, vctx)
				if err != nil {
					return nil, 0, fmt.Errorf("optimizer: table total for predicate group: %w", err)
				}

				if totalQueried {
					queries++
				}

				haveTotal = true
			}

			values[tableTotalKey] = tableTotal
			isNull[tableTotalKey] = tableTotalNull
		}

		for _, ca := range group.Constraints {
			fusable, ok := ca.Constraint.(constraint.Fusable)
			if !ok {
				return nil, 0, fmt.Errorf("optimizer: constraint %q classified combinable but not Fusable", ca.Constraint.Name())
			}

			results[ca.Constraint.Name()] = fusable.FromAggregates(values, isNull)
		}
	}

	for _, cons := range plan.Standalone {
		result, err := cons.Evaluate(ctx, vctx, session)
		if err != nil {
			return nil, 0, fmt.Errorf("optimizer: standalone constraint %q: %w", cons.Name(), err)
		}

		results[cons.Name()] = result
	}

	return results, queries, nil
}

// runGroup resolves group's keys against the StatsCache, only issuing a
// fused query for whichever keys weren't already cached (possibly none, in
// which case no SQL runs at all). queried reports whether SQL was issued.
func (e *OptimizedExecutor) runGroup(
	ctx context.Context, session engine.SessionContext, vctx *engine.ValidationContext, group Group,
) (values map[constraint.AggKey]float64, isNull map[constraint.AggKey]bool, queried bool, err error) {
	values = make(map[constraint.AggKey]float64, len(group.Keys))
	isNull = make(map[constraint.AggKey]bool, len(group.Keys))

	missing := make([]constraint.AggKey, 0, len(group.Keys))

	for _, k := range group.Keys {
		if v, n, ok := e.stats.Get(e.key(vctx, k, group.Predicate)); ok {
			values[k] = v
			isNull[k] = n

			continue
		}

		missing = append(missing, k)
	}

	if len(missing) == 0 {
		return values, isNull, false, nil
	}

	fresh, freshNull, err := constraint.RunFusedAggregates(ctx, session, vctx, missing, group.Predicate)
	if err != nil {
		return nil, nil, false, err
	}

	for _, k := range missing {
		v, n := fresh[k], freshNull[k]
		values[k] = v
		isNull[k] = n
		e.stats.Put(e.key(vctx, k, group.Predicate), v, n)
	}

	return values, isNull, true, nil
}

// tableTotal returns the table's unfiltered row count, consulting the
// StatsCache first so it's computed at most once per Execute call no matter
// how many predicate-bearing groups need it.
func (e *OptimizedExecutor) tableTotal(
	ctx context.Context, session engine.SessionContext, vctx *engine.ValidationContext,
) (value float64, isNull bool, queried bool, err error) {
	key := e.key(vctx, tableTotalKey, "")

	if v, n, ok := e.stats.Get(key); ok {
		return v, n, false, nil
	}

	values, isNullMap, err := constraint.RunFusedAggregates(ctx, session, vctx, []constraint.AggKey{tableTotalKey}, "")
	if err != nil {
		return 0, false, false, err
	}

	v, n := values[tableTotalKey], isNullMap[tableTotalKey]
	e.stats.Put(key, v, n)

	return v, n, true, nil
}

func (e *OptimizedExecutor) key(vctx *engine.ValidationContext, k constraint.AggKey, predicate string) StatsKey {
	return StatsKey{Table: vctx.TableName, Column: k.Column, Type: k.Type, Predicate: predicate}
}

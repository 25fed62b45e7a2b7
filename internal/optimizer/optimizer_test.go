package optimizer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withterm/term-sub003/internal/assertion"
	"github.com/withterm/term-sub003/internal/config"
	"github.com/withterm/term-sub003/internal/constraint"
	"github.com/withterm/term-sub003/internal/engine"
	"github.com/withterm/term-sub003/internal/engine/enginetest"
	"github.com/withterm/term-sub003/internal/optimizer"
)

func measurementsTable() *enginetest.Engine {
	e := enginetest.New()
	_ = e.RegisterTable(context.Background(), "measurements", &enginetest.Table{
		Columns: []string{"value"},
		Types:   map[string]engine.ColumnType{"value": engine.ColumnTypeFloat64},
		Rows: [][]any{
			{10.0}, {20.0}, {30.0}, {40.0},
		},
	})

	return e
}

func TestQueryCombiner_FusesCombinableConstraints(t *testing.T) {
	constraints := []constraint.Constraint{
		constraint.NewStatistical("min check", "value", constraint.StatMin, assertion.GreaterThanOrEqual(0)),
		constraint.NewStatistical("max check", "value", constraint.StatMax, assertion.LessThanOrEqual(100)),
		constraint.NewStatistical("mean check", "value", constraint.StatMean, assertion.Equals(25)),
		constraint.NewSize("size check", assertion.Equals(4)),
	}

	combiner := optimizer.NewQueryCombinerWithConfig(config.OptimizerConfig{
		MaxGroupSize: 32, StatsCacheSize: 10, AnalysisCacheSize: 10,
	})

	plan, err := combiner.Combine(constraints)
	require.NoError(t, err)
	require.Len(t, plan.Groups, 1, "all four constraints are combinable and should fuse into a single group")
	assert.Empty(t, plan.Standalone)
}

func TestQueryCombiner_SeparatesNonCombinable(t *testing.T) {
	pattern, err := constraint.NewPattern("pattern check", "value", `^\d+$`, 0.5)
	require.NoError(t, err)

	constraints := []constraint.Constraint{
		constraint.NewSize("size check", assertion.Equals(4)),
		pattern,
	}

	combiner := optimizer.NewQueryCombinerWithConfig(config.OptimizerConfig{
		MaxGroupSize: 32, StatsCacheSize: 10, AnalysisCacheSize: 10,
	})

	plan, err := combiner.Combine(constraints)
	require.NoError(t, err)
	assert.Len(t, plan.Groups, 1)
	require.Len(t, plan.Standalone, 1)
	assert.Equal(t, "pattern check", plan.Standalone[0].Name())
}

func TestQueryCombiner_RespectsMaxGroupSize(t *testing.T) {
	constraints := []constraint.Constraint{
		constraint.NewStatistical("a", "value", constraint.StatMin, assertion.GreaterThanOrEqual(0)),
		constraint.NewStatistical("b", "value", constraint.StatMax, assertion.LessThanOrEqual(100)),
		constraint.NewStatistical("c", "value", constraint.StatMean, assertion.GreaterThanOrEqual(0)),
	}

	combiner := optimizer.NewQueryCombinerWithConfig(config.OptimizerConfig{
		MaxGroupSize: 1, StatsCacheSize: 10, AnalysisCacheSize: 10,
	})

	plan, err := combiner.Combine(constraints)
	require.NoError(t, err)
	assert.Len(t, plan.Groups, 3)
}

func TestOptimizedExecutor_ProducesSameResultsAsDirectEvaluate(t *testing.T) {
	ctx := context.Background()

	minC := constraint.NewStatistical("min check", "value", constraint.StatMin, assertion.Equals(10))
	maxC := constraint.NewStatistical("max check", "value", constraint.StatMax, assertion.Equals(40))
	sizeC := constraint.NewSize("size check", assertion.Equals(4))

	vctx, err := engine.NewValidationContext("measurements", "run-1")
	require.NoError(t, err)

	session := measurementsTable()

	directMin, err := minC.Evaluate(ctx, vctx, session)
	require.NoError(t, err)
	directMax, err := maxC.Evaluate(ctx, vctx, session)
	require.NoError(t, err)
	directSize, err := sizeC.Evaluate(ctx, vctx, session)
	require.NoError(t, err)

	combiner := optimizer.NewQueryCombinerWithConfig(config.OptimizerConfig{
		MaxGroupSize: 32, StatsCacheSize: 10, AnalysisCacheSize: 10,
	})

	plan, err := combiner.Combine([]constraint.Constraint{minC, maxC, sizeC})
	require.NoError(t, err)
	require.Len(t, plan.Groups, 1)

	results, numQueries, err := optimizer.NewOptimizedExecutor().Execute(ctx, vctx, session, plan)
	require.NoError(t, err)
	assert.Equal(t, 1, numQueries, "three combinable constraints should fuse into exactly one query")

	assert.Equal(t, directMin.Status, results["min check"].Status)
	assert.InDelta(t, *directMin.Metric, *results["min check"].Metric, 1e-9)

	assert.Equal(t, directMax.Status, results["max check"].Status)
	assert.InDelta(t, *directMax.Metric, *results["max check"].Metric, 1e-9)

	assert.Equal(t, directSize.Status, results["size check"].Status)
	assert.InDelta(t, *directSize.Metric, *results["size check"].Metric, 1e-9)
}

func TestOptimizedExecutor_StatsCacheServesSecondRunWithoutQuerying(t *testing.T) {
	ctx := context.Background()

	minC := constraint.NewStatistical("min check", "value", constraint.StatMin, assertion.GreaterThanOrEqual(0))
	maxC := constraint.NewStatistical("max check", "value", constraint.StatMax, assertion.LessThanOrEqual(100))

	vctx, err := engine.NewValidationContext("measurements", "run-1")
	require.NoError(t, err)

	session := measurementsTable()

	cfg := config.OptimizerConfig{MaxGroupSize: 32, StatsCacheSize: 10, AnalysisCacheSize: 10, StatsCacheTTL: time.Minute}
	combiner := optimizer.NewQueryCombinerWithConfig(cfg)
	executor := optimizer.NewOptimizedExecutorWithConfig(cfg)

	plan, err := combiner.Combine([]constraint.Constraint{minC, maxC})
	require.NoError(t, err)

	_, firstQueries, err := executor.Execute(ctx, vctx, session, plan)
	require.NoError(t, err)
	assert.Equal(t, 1, firstQueries, "first run must query the engine")
	assert.Equal(t, 2, executor.Stats().Misses, "both fused keys miss the empty cache")

	results, secondQueries, err := executor.Execute(ctx, vctx, session, plan)
	require.NoError(t, err)
	assert.Equal(t, 0, secondQueries, "second run should be served entirely from the stats cache")
	assert.Equal(t, 2, executor.Stats().Hits, "both fused keys should hit the cache")

	assert.Equal(t, constraint.StatusSuccess, results["min check"].Status)
	assert.Equal(t, constraint.StatusSuccess, results["max check"].Status)
}

func predicatedTable() *enginetest.Engine {
	e := enginetest.New()
	_ = e.RegisterTable(context.Background(), "orders", &enginetest.Table{
		Columns: []string{"status"},
		Types:   map[string]engine.ColumnType{"status": engine.ColumnTypeUtf8},
		Rows: [][]any{
			{"active"}, {"active"}, {"cancelled"}, {"active"},
		},
	})

	return e
}

func TestQueryCombiner_GroupsSharedPredicateSeparatelyFromUnfiltered(t *testing.T) {
	activeRatio, err := constraint.NewCustomSQL("active ratio", "status = 'active'", 0.5)
	require.NoError(t, err)

	activeRatioStrict, err := constraint.NewCustomSQL("active ratio strict", "status = 'active'", 0.9)
	require.NoError(t, err)

	size := constraint.NewSize("row count", assertion.Equals(4))

	cfg := config.OptimizerConfig{MaxGroupSize: 32, StatsCacheSize: 10, AnalysisCacheSize: 10, PredicatePushdown: true}
	combiner := optimizer.NewQueryCombinerWithConfig(cfg)

	plan, err := combiner.Combine([]constraint.Constraint{activeRatio, size, activeRatioStrict})
	require.NoError(t, err)

	require.Len(t, plan.Groups, 2, "the predicate group and the unfiltered group must not merge")
	assert.Empty(t, plan.Standalone)

	var predicateGroup, unfilteredGroup optimizer.Group
	for _, g := range plan.Groups {
		if g.Predicate != "" {
			predicateGroup = g
		} else {
			unfilteredGroup = g
		}
	}

	require.Len(t, predicateGroup.Constraints, 2, "both custom_sql constraints share the same predicate")
	require.Len(t, unfilteredGroup.Constraints, 1)
}

func TestOptimizedExecutor_AppliesPredicatePushdown(t *testing.T) {
	ctx := context.Background()

	activeRatio, err := constraint.NewCustomSQL("active ratio", "status = 'active'", 0.5)
	require.NoError(t, err)

	vctx, err := engine.NewValidationContext("orders", "run-1")
	require.NoError(t, err)

	session := predicatedTable()

	cfg := config.OptimizerConfig{MaxGroupSize: 32, StatsCacheSize: 10, AnalysisCacheSize: 10, PredicatePushdown: true}
	combiner := optimizer.NewQueryCombinerWithConfig(cfg)
	executor := optimizer.NewOptimizedExecutorWithConfig(cfg)

	plan, err := combiner.Combine([]constraint.Constraint{activeRatio})
	require.NoError(t, err)
	require.Len(t, plan.Groups, 1)
	assert.Equal(t, "status = 'active'", plan.Groups[0].Predicate)

	results, _, err := executor.Execute(ctx, vctx, session, plan)
	require.NoError(t, err)

	direct, err := activeRatio.Evaluate(ctx, vctx, session)
	require.NoError(t, err)

	assert.Equal(t, direct.Status, results["active ratio"].Status)
	assert.InDelta(t, *direct.Metric, *results["active ratio"].Metric, 1e-9, "3/4 rows are active")
}

func TestOptimizedExecutor_PredicatePushdownDisabledRunsStandalone(t *testing.T) {
	ctx := context.Background()

	activeRatio, err := constraint.NewCustomSQL("active ratio", "status = 'active'", 0.5)
	require.NoError(t, err)

	vctx, err := engine.NewValidationContext("orders", "run-1")
	require.NoError(t, err)

	session := predicatedTable()

	cfg := config.OptimizerConfig{MaxGroupSize: 32, StatsCacheSize: 10, AnalysisCacheSize: 10, PredicatePushdown: false}
	combiner := optimizer.NewQueryCombinerWithConfig(cfg)
	executor := optimizer.NewOptimizedExecutorWithConfig(cfg)

	plan, err := combiner.Combine([]constraint.Constraint{activeRatio})
	require.NoError(t, err)
	assert.Empty(t, plan.Groups)
	require.Len(t, plan.Standalone, 1, "without pushdown a predicate-bearing constraint runs standalone")

	results, numQueries, err := executor.Execute(ctx, vctx, session, plan)
	require.NoError(t, err)
	assert.Equal(t, 0, numQueries, "standalone constraints aren't counted as optimizer queries")
	assert.Equal(t, constraint.StatusSuccess, results["active ratio"].Status)
}

func TestExplain_ReportsScanReductionPushdownAndCacheStats(t *testing.T) {
	minC := constraint.NewStatistical("min check", "value", constraint.StatMin, assertion.GreaterThanOrEqual(0))
	maxC := constraint.NewStatistical("max check", "value", constraint.StatMax, assertion.LessThanOrEqual(100))
	pattern, err := constraint.NewPattern("pattern check", "value", `^\d+$`, 0.5)
	require.NoError(t, err)

	cfg := config.OptimizerConfig{MaxGroupSize: 32, StatsCacheSize: 10, AnalysisCacheSize: 10, PredicatePushdown: true}
	combiner := optimizer.NewQueryCombinerWithConfig(cfg)

	plan, err := combiner.Combine([]constraint.Constraint{minC, maxC, pattern})
	require.NoError(t, err)

	ctx := context.Background()
	vctx, err := engine.NewValidationContext("measurements", "run-1")
	require.NoError(t, err)

	executor := optimizer.NewOptimizedExecutorWithConfig(cfg)
	fusedOnly, err := optimizer.NewQueryCombinerWithConfig(cfg).Combine([]constraint.Constraint{minC, maxC})
	require.NoError(t, err)

	_, _, err = executor.Execute(ctx, vctx, measurementsTable(), fusedOnly)
	require.NoError(t, err)

	out := optimizer.Explain(plan, cfg.PredicatePushdown, executor.Stats())

	assert.Contains(t, out, "estimated scan reduction: 2 -> 1")
	assert.Contains(t, out, "standalone: pattern check")
	assert.Contains(t, out, "predicate pushdown: enabled=true, used=false")
	assert.Contains(t, out, "stats cache:")
}

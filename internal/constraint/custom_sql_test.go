package constraint_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withterm/term-sub003/internal/constraint"
	"github.com/withterm/term-sub003/internal/engine"
	"github.com/withterm/term-sub003/internal/engine/enginetest"
)

func ordersTable() *enginetest.Engine {
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

func TestCustomSQL_EvaluateComputesRatioAgainstThreshold(t *testing.T) {
	c, err := constraint.NewCustomSQL("active ratio", "status = 'active'", 0.5)
	require.NoError(t, err)

	vctx, err := engine.NewValidationContext("orders", "run-1")
	require.NoError(t, err)

	result, err := c.Evaluate(context.Background(), vctx, ordersTable())
	require.NoError(t, err)
	assert.Equal(t, constraint.StatusSuccess, result.Status)
	require.NotNil(t, result.Metric)
	assert.InDelta(t, 0.75, *result.Metric, 1e-9)
}

func TestCustomSQL_EvaluateFailsBelowThreshold(t *testing.T) {
	c, err := constraint.NewCustomSQL("active ratio strict", "status = 'active'", 0.9)
	require.NoError(t, err)

	vctx, err := engine.NewValidationContext("orders", "run-1")
	require.NoError(t, err)

	result, err := c.Evaluate(context.Background(), vctx, ordersTable())
	require.NoError(t, err)
	assert.Equal(t, constraint.StatusFailure, result.Status)
}

func TestCustomSQL_AnalysisDeclaresCombinableWithPredicate(t *testing.T) {
	c, err := constraint.NewCustomSQL("active ratio", "status = 'active'", 0.5)
	require.NoError(t, err)

	optimizable, ok := c.(constraint.Optimizable)
	require.True(t, ok, "CustomSQL must implement Optimizable to participate in query fusion")

	analysis := optimizable.Analysis()
	assert.True(t, analysis.Combinable)
	assert.True(t, analysis.HasPredicate)
	assert.Equal(t, "status = 'active'", analysis.Predicate)
	require.Len(t, analysis.Keys(), 1)
}

// TestCustomSQL_FromAggregatesMatchesEvaluate pins the fused path
// (constraint.Fusable.FromAggregates, as called by the optimizer's
// OptimizedExecutor) to the same ratio the direct, unfused Evaluate call
// produces for an identical predicate and table.
func TestCustomSQL_FromAggregatesMatchesEvaluate(t *testing.T) {
	c, err := constraint.NewCustomSQL("active ratio", "status = 'active'", 0.5)
	require.NoError(t, err)

	fusable, ok := c.(constraint.Fusable)
	require.True(t, ok, "CustomSQL must implement Fusable to participate in query fusion")

	vctx, err := engine.NewValidationContext("orders", "run-1")
	require.NoError(t, err)

	session := ordersTable()

	direct, err := c.Evaluate(context.Background(), vctx, session)
	require.NoError(t, err)

	matchedKey := constraint.AggKey{Column: "*", Type: constraint.AggCount}
	totalKey := constraint.AggKey{Type: constraint.AggCount}

	values, isNull, err := constraint.RunFusedAggregates(
		context.Background(), session, vctx, []constraint.AggKey{matchedKey}, "status = 'active'",
	)
	require.NoError(t, err)

	total, totalNull, err := constraint.RunFusedAggregates(
		context.Background(), session, vctx, []constraint.AggKey{totalKey}, "",
	)
	require.NoError(t, err)

	values[totalKey] = total[totalKey]
	isNull[totalKey] = totalNull[totalKey]

	fused := fusable.FromAggregates(values, isNull)
	assert.Equal(t, direct.Status, fused.Status)
	require.NotNil(t, direct.Metric)
	require.NotNil(t, fused.Metric)
	assert.InDelta(t, *direct.Metric, *fused.Metric, 1e-9)
}

func TestCustomSQL_FromAggregatesSkipsEmptyTable(t *testing.T) {
	c, err := constraint.NewCustomSQL("active ratio", "status = 'active'", 0.5)
	require.NoError(t, err)

	fusable := c.(constraint.Fusable)

	result := fusable.FromAggregates(map[constraint.AggKey]float64{}, map[constraint.AggKey]bool{})
	assert.Equal(t, constraint.StatusSkipped, result.Status)
}

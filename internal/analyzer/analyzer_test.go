package analyzer_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withterm/term-sub003/internal/analyzer"
	"github.com/withterm/term-sub003/internal/engine"
	"github.com/withterm/term-sub003/internal/engine/enginetest"
)

func ordersTable(rows [][]any) *enginetest.Engine {
	e := enginetest.New()
	_ = e.RegisterTable(context.Background(), "orders", &enginetest.Table{
		Columns: []string{"amount"},
		Types:   map[string]engine.ColumnType{"amount": engine.ColumnTypeFloat64},
		Rows:    rows,
	})

	return e
}

func TestMeanAnalyzer_IncrementalEquivalence(t *testing.T) {
	ctx := context.Background()

	partition1 := ordersTable([][]any{{10.0}, {20.0}})
	partition2 := ordersTable([][]any{{30.0}, {40.0}})
	whole := ordersTable([][]any{{10.0}, {20.0}, {30.0}, {40.0}})

	vctx, err := engine.NewValidationContext("orders", "run-1")
	require.NoError(t, err)

	a := analyzer.NewMean("mean amount", "amount")

	s1, err := a.ComputeStateFromData(ctx, vctx, partition1)
	require.NoError(t, err)

	s2, err := a.ComputeStateFromData(ctx, vctx, partition2)
	require.NoError(t, err)

	merged, err := s1.Merge(s2)
	require.NoError(t, err)

	incrementalMetric, ok := a.ComputeMetricFromState(merged)
	require.True(t, ok)

	wholeState, err := a.ComputeStateFromData(ctx, vctx, whole)
	require.NoError(t, err)

	directMetric, ok := a.ComputeMetricFromState(wholeState)
	require.True(t, ok)

	assert.InDelta(t, directMetric, incrementalMetric, 1e-9)
	assert.InDelta(t, 25.0, incrementalMetric, 1e-9)
}

func TestStdDevAnalyzer_IncrementalEquivalence(t *testing.T) {
	ctx := context.Background()

	partition1 := ordersTable([][]any{{2.0}, {4.0}})
	partition2 := ordersTable([][]any{{4.0}, {4.0}})
	whole := ordersTable([][]any{{2.0}, {4.0}, {4.0}, {4.0}})

	vctx, err := engine.NewValidationContext("orders", "run-1")
	require.NoError(t, err)

	a := analyzer.NewStdDev("stddev amount", "amount")

	s1, err := a.ComputeStateFromData(ctx, vctx, partition1)
	require.NoError(t, err)

	s2, err := a.ComputeStateFromData(ctx, vctx, partition2)
	require.NoError(t, err)

	merged, err := s1.Merge(s2)
	require.NoError(t, err)

	incrementalMetric, ok := a.ComputeMetricFromState(merged)
	require.True(t, ok)

	wholeState, err := a.ComputeStateFromData(ctx, vctx, whole)
	require.NoError(t, err)

	directMetric, ok := a.ComputeMetricFromState(wholeState)
	require.True(t, ok)

	assert.InDelta(t, directMetric, incrementalMetric, 1e-9)
}

func TestIncrementalRunner_MergesAcrossRuns(t *testing.T) {
	ctx := context.Background()

	vctx, err := engine.NewValidationContext("orders", "run-1")
	require.NoError(t, err)

	store := analyzer.NewFileStateStore(filepath.Join(t.TempDir(), "state"))
	runner := analyzer.NewIncrementalRunner(store)

	sizeAnalyzer := analyzer.NewSize("row count")

	first := ordersTable([][]any{{1.0}, {2.0}})
	metric1, ok, err := runner.ComputeAndStore(ctx, vctx, first, "2026-07-30", sizeAnalyzer)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(2), metric1)

	second := ordersTable([][]any{{3.0}})
	metric2, ok, err := runner.ComputeAndStore(ctx, vctx, second, "2026-07-30", sizeAnalyzer)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(3), metric2, "merging with the prior partition's persisted state should accumulate, not replace")
}

func TestStateRoundTrip(t *testing.T) {
	ctx := context.Background()

	vctx, err := engine.NewValidationContext("orders", "run-1")
	require.NoError(t, err)

	a := analyzer.NewMean("mean amount", "amount")

	state, err := a.ComputeStateFromData(ctx, vctx, ordersTable([][]any{{10.0}, {20.0}}))
	require.NoError(t, err)

	raw, err := analyzer.Marshal(state)
	require.NoError(t, err)

	restored, err := analyzer.Unmarshal(raw)
	require.NoError(t, err)

	original, ok := a.ComputeMetricFromState(state)
	require.True(t, ok)

	roundTripped, ok := a.ComputeMetricFromState(restored)
	require.True(t, ok)

	assert.Equal(t, original, roundTripped)
}

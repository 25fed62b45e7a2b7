package analyzer

import (
	"context"
	"fmt"
	"math"

	"github.com/withterm/term-sub003/internal/engine"
)

// sizeAnalyzer computes row count incrementally (spec §4.E, mirrors the
// Size constraint's metric).
type sizeAnalyzer struct{ name string }

// NewSize builds a row-count Analyzer.
func NewSize(name string) Analyzer { return &sizeAnalyzer{name: name} }

func (a *sizeAnalyzer) Name() string { return a.name }

func (a *sizeAnalyzer) ComputeStateFromData(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (State, error) {
	n, err := countRows(ctx, session, vctx)
	if err != nil {
		return nil, err
	}

	return &countState{Count: n}, nil
}

func (a *sizeAnalyzer) ComputeMetricFromState(state State) (float64, bool) {
	s, ok := state.(*countState)
	if !ok {
		return 0, false
	}

	return float64(s.Count), true
}

// completenessAnalyzer computes the non-null fraction of a column
// incrementally.
type completenessAnalyzer struct {
	name   string
	column string
}

// NewCompleteness builds a completeness-ratio Analyzer for column.
func NewCompleteness(name, column string) Analyzer {
	return &completenessAnalyzer{name: name, column: column}
}

func (a *completenessAnalyzer) Name() string { return a.name }

func (a *completenessAnalyzer) ComputeStateFromData(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (State, error) {
	strs, err := fetchStringColumn(ctx, session, vctx, a.column)
	if err != nil {
		return nil, err
	}

	total, err := countRows(ctx, session, vctx)
	if err != nil {
		return nil, err
	}

	return &ratioState{Numerator: int64(len(strs)), Denominator: total}, nil
}

func (a *completenessAnalyzer) ComputeMetricFromState(state State) (float64, bool) {
	s, ok := state.(*ratioState)
	if !ok || s.Denominator == 0 {
		return 0, false
	}

	return float64(s.Numerator) / float64(s.Denominator), true
}

// distinctnessAnalyzer computes the fraction of non-null rows whose value is
// unique within the partition (approximated, like uniquenessConstraint's
// distinctness mode, via distinct-count over total).
type distinctnessAnalyzer struct {
	name   string
	column string
}

// NewDistinctness builds a distinctness-ratio Analyzer for column.
func NewDistinctness(name, column string) Analyzer {
	return &distinctnessAnalyzer{name: name, column: column}
}

func (a *distinctnessAnalyzer) Name() string { return a.name }

func (a *distinctnessAnalyzer) ComputeStateFromData(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (State, error) {
	strs, err := fetchStringColumn(ctx, session, vctx, a.column)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(strs))
	for _, s := range strs {
		set[s] = struct{}{}
	}

	return &approxDistinctState{Values: set, Count: len(set)}, nil
}

func (a *distinctnessAnalyzer) ComputeMetricFromState(state State) (float64, bool) {
	s, ok := state.(*approxDistinctState)
	if !ok || s.Count == 0 {
		return 0, false
	}

	return float64(s.Count), true
}

// numericAnalyzer computes Sum, Mean, Min, Max, StdDev, or Variance
// incrementally, selected by kind, sharing one of three mergeable state
// shapes (sumState for sum/mean, minMaxState for min/max, momentState for
// stddev/variance).
type numericAnalyzer struct {
	name   string
	column string
	kind   string // "sum", "mean", "min", "max", "stddev", "variance"
}

// NewSum builds a Sum Analyzer for column.
func NewSum(name, column string) Analyzer { return &numericAnalyzer{name: name, column: column, kind: "sum"} }

// NewMean builds a Mean Analyzer for column.
func NewMean(name, column string) Analyzer { return &numericAnalyzer{name: name, column: column, kind: "mean"} }

// NewMin builds a Min Analyzer for column.
func NewMin(name, column string) Analyzer { return &numericAnalyzer{name: name, column: column, kind: "min"} }

// NewMax builds a Max Analyzer for column.
func NewMax(name, column string) Analyzer { return &numericAnalyzer{name: name, column: column, kind: "max"} }

// NewStdDev builds a StdDev Analyzer for column.
func NewStdDev(name, column string) Analyzer {
	return &numericAnalyzer{name: name, column: column, kind: "stddev"}
}

// NewVariance builds a Variance Analyzer for column.
func NewVariance(name, column string) Analyzer {
	return &numericAnalyzer{name: name, column: column, kind: "variance"}
}

func (a *numericAnalyzer) Name() string { return a.name }

func (a *numericAnalyzer) ComputeStateFromData(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (State, error) {
	values, err := fetchOrderedColumn(ctx, session, vctx, a.column)
	if err != nil {
		return nil, err
	}

	switch a.kind {
	case "sum", "mean":
		var sum float64
		for _, v := range values {
			sum += v
		}

		return &sumState{Sum: sum, Count: int64(len(values))}, nil
	case "min", "max":
		if len(values) == 0 {
			return &minMaxState{}, nil
		}

		mn, mx := values[0], values[0]

		for _, v := range values[1:] {
			if v < mn {
				mn = v
			}

			if v > mx {
				mx = v
			}
		}

		return &minMaxState{Min: mn, Max: mx, Count: int64(len(values))}, nil
	case "stddev", "variance":
		return welford(values), nil
	default:
		return nil, fmt.Errorf("analyzer: unknown numeric analyzer kind %q", a.kind)
	}
}

func welford(values []float64) *momentState {
	var (
		count int64
		mean  float64
		m2    float64
	)

	for _, v := range values {
		count++
		delta := v - mean
		mean += delta / float64(count)
		m2 += delta * (v - mean)
	}

	return &momentState{Count: count, Mean: mean, M2: m2}
}

func (a *numericAnalyzer) ComputeMetricFromState(state State) (float64, bool) {
	switch a.kind {
	case "sum":
		s, ok := state.(*sumState)
		if !ok || s.Count == 0 {
			return 0, false
		}

		return s.Sum, true
	case "mean":
		s, ok := state.(*sumState)
		if !ok || s.Count == 0 {
			return 0, false
		}

		return s.Sum / float64(s.Count), true
	case "min":
		s, ok := state.(*minMaxState)
		if !ok || s.Count == 0 {
			return 0, false
		}

		return s.Min, true
	case "max":
		s, ok := state.(*minMaxState)
		if !ok || s.Count == 0 {
			return 0, false
		}

		return s.Max, true
	case "variance":
		s, ok := state.(*momentState)
		if !ok {
			return 0, false
		}

		return s.variance()
	case "stddev":
		s, ok := state.(*momentState)
		if !ok {
			return 0, false
		}

		v, ok := s.variance()
		if !ok {
			return 0, false
		}

		return math.Sqrt(v), true
	default:
		return 0, false
	}
}

// approxCountDistinctAnalyzer computes cardinality incrementally.
type approxCountDistinctAnalyzer struct {
	name   string
	column string
}

// NewApproxCountDistinct builds a cardinality-estimating Analyzer for column.
func NewApproxCountDistinct(name, column string) Analyzer {
	return &approxCountDistinctAnalyzer{name: name, column: column}
}

func (a *approxCountDistinctAnalyzer) Name() string { return a.name }

func (a *approxCountDistinctAnalyzer) ComputeStateFromData(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (State, error) {
	strs, err := fetchStringColumn(ctx, session, vctx, a.column)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(strs))
	for _, s := range strs {
		set[s] = struct{}{}
	}

	return &approxDistinctState{Values: set, Count: len(set)}, nil
}

func (a *approxCountDistinctAnalyzer) ComputeMetricFromState(state State) (float64, bool) {
	s, ok := state.(*approxDistinctState)
	if !ok {
		return 0, false
	}

	return float64(s.Count), true
}

// dataTypeAnalyzer checks whether one column's schema type equals an
// expected physical type, mirroring the DataType constraint's schema check.
// Each computed state records a single check (a missing column counts as
// not matching), so after merging the metric is the fraction of checks that
// matched.
type dataTypeAnalyzer struct {
	name     string
	column   string
	expected engine.ColumnType
}

// NewDataType builds a type-consistency Analyzer for column.
func NewDataType(name, column string, expected engine.ColumnType) Analyzer {
	return &dataTypeAnalyzer{name: name, column: column, expected: expected}
}

func (a *dataTypeAnalyzer) Name() string { return a.name }

func (a *dataTypeAnalyzer) ComputeStateFromData(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (State, error) {
	schema, err := session.Schema(ctx, vctx.TableName)
	if err != nil {
		return nil, err
	}

	for _, f := range schema.Fields {
		if f.Name != a.column {
			continue
		}

		if f.Type == a.expected {
			return &dataTypeState{Matching: 1, Total: 1}, nil
		}

		return &dataTypeState{Matching: 0, Total: 1}, nil
	}

	return &dataTypeState{Matching: 0, Total: 1}, nil
}

func (a *dataTypeAnalyzer) ComputeMetricFromState(state State) (float64, bool) {
	s, ok := state.(*dataTypeState)
	if !ok || s.Total == 0 {
		return 0, false
	}

	return float64(s.Matching) / float64(s.Total), true
}

// histogramAnalyzer computes per-bucket frequency counts for column.
type histogramAnalyzer struct {
	name   string
	column string
}

// NewHistogram builds a frequency-distribution Analyzer for column.
func NewHistogram(name, column string) Analyzer {
	return &histogramAnalyzer{name: name, column: column}
}

func (a *histogramAnalyzer) Name() string { return a.name }

func (a *histogramAnalyzer) ComputeStateFromData(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (State, error) {
	strs, err := fetchStringColumn(ctx, session, vctx, a.column)
	if err != nil {
		return nil, err
	}

	buckets := make(map[string]int64, len(strs))
	for _, s := range strs {
		buckets[s]++
	}

	return &histogramState{Buckets: buckets}, nil
}

// ComputeMetricFromState has no single scalar for a histogram; callers
// inspect the merged histogramState's Buckets directly instead (spec §4.E
// notes Histogram as a vector metric, not a scalar one).
func (a *histogramAnalyzer) ComputeMetricFromState(State) (float64, bool) {
	return 0, false
}

package constraint

import (
	"context"

	"github.com/withterm/term-sub003/internal/engine"
)

// Kind is the closed enumeration of built-in constraint variants (spec §3,
// §9 design note: represented as a sum type via this string enum so the
// optimizer can classify a constraint without reflection — each built-in
// reports its Kind() and, separately, its Analysis() for fusion).
type Kind string

const (
	KindSize                Kind = "size"
	KindColumnCount         Kind = "column_count"
	KindCompleteness        Kind = "completeness"
	KindUniqueness          Kind = "uniqueness"
	KindStatistical         Kind = "statistical"
	KindQuantile            Kind = "quantile"
	KindApproxCountDistinct Kind = "approx_count_distinct"
	KindPattern             Kind = "pattern"
	KindLength              Kind = "length"
	KindDataType            Kind = "data_type"
	KindContainsValues      Kind = "contains_values"
	KindCustomSQL           Kind = "custom_sql"
	KindHistogram           Kind = "histogram"
	KindCorrelation         Kind = "correlation"
	KindCrossTableSum       Kind = "cross_table_sum"
	KindForeignKey          Kind = "foreign_key"
	KindJoinCoverage        Kind = "join_coverage"
	KindTemporalOrdering    Kind = "temporal_ordering"
)

// Metadata describes a constraint for reporting and the explain plan.
type Metadata struct {
	Columns     []string
	Description string
	Custom      map[string]string
}

// Constraint is the polymorphic evaluation contract every built-in and
// custom constraint satisfies (spec §4.B). Implementations must be
// stateless, thread-safe, and cloneable by value (Go structs passed by
// value or held behind an interface naturally satisfy this once they carry
// no mutable fields, which none of the built-ins do).
type Constraint interface {
	// Name returns a constraint name, unique within its owning Check.
	Name() string
	// Column returns the primary column this constraint targets, if any.
	Column() (string, bool)
	// Metadata returns descriptive metadata for reporting/explain plans.
	Metadata() Metadata
	// Kind returns the built-in variant, or "" for a custom constraint.
	Kind() Kind
	// Evaluate computes the Result against session, scoped to vctx's table.
	// Idempotent: repeated calls on unchanged data return equal Results.
	// Must not mutate shared state.
	Evaluate(ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext) (Result, error)
}

// AggregationType enumerates the scalar aggregations the optimizer can fuse
// into one physical query (spec §4.F).
type AggregationType string

const (
	AggCount         AggregationType = "count"
	AggCountDistinct AggregationType = "count_distinct"
	AggSum           AggregationType = "sum"
	AggAvg           AggregationType = "avg"
	AggMin           AggregationType = "min"
	AggMax           AggregationType = "max"
	AggStdDev        AggregationType = "stddev"
	AggVariance      AggregationType = "variance"
)

// Analysis is what a constraint declares about itself to the optimizer: the
// aggregations and columns it needs, whether it carries a row-filtering
// predicate, and whether it can be expressed as a single-pass top-level
// aggregation at all (spec §4.F.1).
type Analysis struct {
	Aggregations []AggregationType
	Columns      []string
	HasPredicate bool
	Predicate    string // WHERE-clause fragment, only meaningful if HasPredicate
	Combinable   bool

	// explicitKeys overrides the default Aggregations x Columns[0] zip
	// produced by Keys(), for constraints whose aggregations target more
	// than one distinct (column, type) pair (e.g. Completeness needs both
	// the column's non-null count and the table's total row count).
	explicitKeys []AggKey
}

// WithKeys returns a copy of a with an explicit set of AggKeys, bypassing
// the default single-column zip in Keys().
func (a Analysis) WithKeys(keys []AggKey) Analysis {
	a.explicitKeys = keys

	return a
}

// Optimizable is implemented by constraints the QueryOptimizer can fuse.
// Constraints that cannot be expressed as a single-pass aggregation (e.g.
// quantile, regex pattern matching, composite completeness) either don't
// implement this interface or return Analysis{Combinable: false};
// QueryAnalyzer treats both the same way. A constraint with its own WHERE
// predicate (CustomSQL) is combinable and, with predicate pushdown enabled,
// is grouped only with constraints sharing that predicate.
type Optimizable interface {
	Analysis() Analysis
}

// AggKey identifies one projected aggregation in a fused query: a column
// (empty for COUNT(*)) paired with an AggregationType.
type AggKey struct {
	Column string
	Type   AggregationType
}

// Keys expands Analysis.Aggregations into AggKeys, pairing each with the
// analysis's (single) target column. Every combinable built-in constraint in
// this package targets at most one column, so this pairing is unambiguous;
// multi-table constraints (CrossTableSum, ForeignKey, JoinCoverage) are
// never combinable and never call this.
func (a Analysis) Keys() []AggKey {
	if a.explicitKeys != nil {
		return a.explicitKeys
	}

	col := ""
	if len(a.Columns) > 0 {
		col = a.Columns[0]
	}

	keys := make([]AggKey, len(a.Aggregations))
	for i, agg := range a.Aggregations {
		keys[i] = AggKey{Column: col, Type: agg}
	}

	return keys
}

// Fusable is implemented by every combinable constraint: given the scalar
// results of the aggregations it declared via Analysis (keyed by AggKey),
// it reconstructs its metric and produces a Result without re-querying the
// engine. The QueryOptimizer's OptimizedExecutor calls this after executing
// one fused query per group (spec §4.F.3).
type Fusable interface {
	FromAggregates(values map[AggKey]float64, isNull map[AggKey]bool) Result
}

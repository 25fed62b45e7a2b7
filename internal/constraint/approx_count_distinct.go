package constraint

import (
	"context"

	"github.com/withterm/term-sub003/internal/assertion"
	"github.com/withterm/term-sub003/internal/engine"
)

// approxCountDistinctConstraint checks a column's distinct-value count
// against an assertion (spec §3); no sketch is built.
// The count is combinable: a real engine exposes a single-pass
// HLL-accumulating aggregation (e.g. an APPROX_COUNT_DISTINCT SQL
// function); this implementation's engine boundary approximates that with
// COUNT(DISTINCT), which is exact rather than sketch-based but shares the
// same single-pass aggregation shape the optimizer fuses on.
type approxCountDistinctConstraint struct {
	name      string
	column    string
	assertion assertion.Assertion
}

// NewApproxCountDistinct builds an ApproxCountDistinct constraint.
func NewApproxCountDistinct(name, column string, a assertion.Assertion) Constraint {
	return &approxCountDistinctConstraint{name: name, column: column, assertion: a}
}

func (c *approxCountDistinctConstraint) Name() string           { return c.name }
func (c *approxCountDistinctConstraint) Column() (string, bool) { return c.column, true }
func (c *approxCountDistinctConstraint) Kind() Kind             { return KindApproxCountDistinct }
func (c *approxCountDistinctConstraint) Metadata() Metadata {
	return Metadata{Columns: []string{c.column}, Description: "approx count distinct " + c.assertion.String()}
}

func (c *approxCountDistinctConstraint) Analysis() Analysis {
	return Analysis{
		Aggregations: []AggregationType{AggCountDistinct},
		Columns:      []string{c.column},
		Combinable:   true,
	}
}

func (c *approxCountDistinctConstraint) Evaluate(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (Result, error) {
	total, err := rowCount(ctx, session, vctx)
	if err != nil {
		return Result{}, err
	}

	if total == 0 {
		return Skippedf("approx_count_distinct: table %q is empty", vctx.TableName), nil
	}

	values, _, err := runAggregates(ctx, session, vctx,
		[]aggSQL{{Column: c.column, Type: AggCountDistinct, Alias: "distinct_n"}}, "")
	if err != nil {
		return Result{}, err
	}

	return c.fromEstimate(values["distinct_n"]), nil
}

func (c *approxCountDistinctConstraint) FromAggregates(values map[AggKey]float64, _ map[AggKey]bool) Result {
	return c.fromEstimate(values[AggKey{Column: c.column, Type: AggCountDistinct}])
}

func (c *approxCountDistinctConstraint) fromEstimate(estimate float64) Result {
	if c.assertion.Evaluate(estimate) {
		return Success(estimate)
	}

	return Failuref(estimate, "approx distinct count %.0f does not satisfy %s", estimate, c.assertion.String())
}

package constraint

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/withterm/term-sub003/internal/assertion"
	"github.com/withterm/term-sub003/internal/engine"
	"github.com/withterm/term-sub003/internal/errs"
)

// quantileConstraint checks a single percentile (or the median, p=0.5) of a
// column against an assertion. Always non-combinable: the percentile needs
// an ordered scan the scalar aggregate fusion model can't express. Both
// modes fetch the column's values, sort them in memory and interpolate
// (quantileOf); the exact flag does not change the computation.
type quantileConstraint struct {
	name       string
	column     string
	percentile float64 // in [0, 1]
	exact      bool
	assertion  assertion.Assertion
}

// NewQuantile builds a Quantile constraint for an arbitrary percentile.
func NewQuantile(name, column string, percentile float64, exact bool, a assertion.Assertion) (Constraint, error) {
	if percentile < 0 || percentile > 1 {
		return nil, fmt.Errorf("%w: percentile must be in [0,1], got %v", errs.ErrConfiguration, percentile)
	}

	return &quantileConstraint{name: name, column: column, percentile: percentile, exact: exact, assertion: a}, nil
}

// NewMedian is Quantile with percentile fixed at 0.5.
func NewMedian(name, column string, exact bool, a assertion.Assertion) Constraint {
	c, _ := NewQuantile(name, column, 0.5, exact, a)

	return c
}

func (c *quantileConstraint) Name() string           { return c.name }
func (c *quantileConstraint) Column() (string, bool) { return c.column, true }
func (c *quantileConstraint) Kind() Kind             { return KindQuantile }
func (c *quantileConstraint) Metadata() Metadata {
	return Metadata{
		Columns:     []string{c.column},
		Description: fmt.Sprintf("quantile p%.2f (exact=%v) %s", c.percentile, c.exact, c.assertion.String()),
	}
}

func (c *quantileConstraint) Analysis() Analysis { return Analysis{Combinable: false} }

func (c *quantileConstraint) Evaluate(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (Result, error) {
	total, err := rowCount(ctx, session, vctx)
	if err != nil {
		return Result{}, err
	}

	if total == 0 {
		return Skippedf("quantile: table %q is empty", vctx.TableName), nil
	}

	values, err := fetchOrderedColumn(ctx, session, vctx, c.column)
	if err != nil {
		return Result{}, err
	}

	if len(values) == 0 {
		return Skippedf("quantile: column %q has no non-null values", c.column), nil
	}

	sort.Float64s(values)

	q := quantileOf(values, c.percentile)
	if c.assertion.Evaluate(q) {
		return Success(q), nil
	}

	return Failuref(q, "quantile p%.2f=%.6f does not satisfy %s", c.percentile, q, c.assertion.String()), nil
}

// quantileOf computes the exact percentile via linear interpolation between
// closest ranks (the common "R-7" definition), used for both exact and
// approximate modes in this implementation since the engine boundary (§6)
// does not expose a native approximate-percentile aggregation.
func quantileOf(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))

	if lo == hi {
		return sorted[lo]
	}

	frac := rank - float64(lo)

	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// fetchOrderedColumn is a test/engine-boundary hook that retrieves every
// non-null value of column for exact quantile computation. Real adapters
// would stream this via a SQL ORDER BY; the in-memory enginetest fake
// offers an equivalent bulk accessor for this one non-combinable case.
func fetchOrderedColumn(
	ctx context.Context, session engine.SessionContext, vctx *engine.ValidationContext, column string,
) ([]float64, error) {
	type columnFetcher interface {
		FetchColumn(ctx context.Context, table, column string) ([]float64, error)
	}

	fetcher, ok := session.(columnFetcher)
	if !ok {
		return nil, fmt.Errorf("%w: session does not support ordered column retrieval required by Quantile",
			errs.ErrConfiguration)
	}

	return fetcher.FetchColumn(ctx, vctx.TableName, column)
}

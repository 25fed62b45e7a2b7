package constraint

import (
	"context"
	"fmt"
	"math"

	"github.com/withterm/term-sub003/internal/assertion"
	"github.com/withterm/term-sub003/internal/engine"
	"github.com/withterm/term-sub003/internal/errs"
)

// correlationConstraint checks the Pearson correlation coefficient between
// two columns against an assertion (spec §3, "Correlation"). Always
// non-combinable: a product-of-two-columns aggregation doesn't fit the
// single-column AggKey fusion model.
type correlationConstraint struct {
	name      string
	columnA   string
	columnB   string
	assertion assertion.Assertion
}

// NewCorrelation builds a Correlation constraint between columnA and columnB.
func NewCorrelation(name, columnA, columnB string, a assertion.Assertion) Constraint {
	return &correlationConstraint{name: name, columnA: columnA, columnB: columnB, assertion: a}
}

func (c *correlationConstraint) Name() string           { return c.name }
func (c *correlationConstraint) Column() (string, bool) { return c.columnA, true }
func (c *correlationConstraint) Kind() Kind             { return KindCorrelation }
func (c *correlationConstraint) Metadata() Metadata {
	return Metadata{
		Columns:     []string{c.columnA, c.columnB},
		Description: fmt.Sprintf("correlation(%s, %s) %s", c.columnA, c.columnB, c.assertion.String()),
	}
}

func (c *correlationConstraint) Analysis() Analysis {
	return Analysis{HasPredicate: true, Predicate: "correlation", Combinable: false}
}

func (c *correlationConstraint) Evaluate(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (Result, error) {
	type pairFetcher interface {
		FetchColumnPair(ctx context.Context, table, colA, colB string) ([]float64, []float64, error)
	}

	fetcher, ok := session.(pairFetcher)
	if !ok {
		return Result{}, fmt.Errorf("%w: session does not support paired column retrieval required by Correlation",
			errs.ErrConfiguration)
	}

	xs, ys, err := fetcher.FetchColumnPair(ctx, vctx.TableName, c.columnA, c.columnB)
	if err != nil {
		return Result{}, err
	}

	if len(xs) < 2 {
		return Skippedf("correlation: fewer than 2 paired non-null rows for %q/%q", c.columnA, c.columnB), nil
	}

	r := pearson(xs, ys)
	if math.IsNaN(r) {
		return Skippedf("correlation: zero variance in %q or %q", c.columnA, c.columnB), nil
	}

	if c.assertion.Evaluate(r) {
		return Success(r), nil
	}

	return Failuref(r, "correlation %.6f does not satisfy %s", r, c.assertion.String()), nil
}

func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))

	var sumX, sumY, sumXY, sumX2, sumY2 float64

	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumX2 += xs[i] * xs[i]
		sumY2 += ys[i] * ys[i]
	}

	num := n*sumXY - sumX*sumY
	den := math.Sqrt((n*sumX2 - sumX*sumX) * (n*sumY2 - sumY*sumY))

	if den == 0 {
		return math.NaN()
	}

	return num / den
}

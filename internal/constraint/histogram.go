package constraint

import (
	"context"
	"fmt"
	"math"

	"github.com/withterm/term-sub003/internal/engine"
)

// histogramConstraint checks the observed frequency distribution of a
// column's values against an expected distribution, failing if the total
// variation distance exceeds a tolerance (spec §3, "Histogram"). Always
// non-combinable: building a frequency table is a GROUP BY, not a scalar
// aggregate, and doesn't fit the AggKey fusion model.
type histogramConstraint struct {
	name      string
	column    string
	expected  map[string]float64 // value -> expected proportion, must sum to ~1
	tolerance float64            // max allowed total variation distance
}

// NewHistogram builds a Histogram constraint. expected maps each bucket
// value to its expected proportion of non-null rows; tolerance bounds the
// total variation distance between observed and expected distributions.
func NewHistogram(name, column string, expected map[string]float64, tolerance float64) Constraint {
	return &histogramConstraint{name: name, column: column, expected: expected, tolerance: tolerance}
}

func (c *histogramConstraint) Name() string           { return c.name }
func (c *histogramConstraint) Column() (string, bool) { return c.column, true }
func (c *histogramConstraint) Kind() Kind             { return KindHistogram }
func (c *histogramConstraint) Metadata() Metadata {
	return Metadata{Columns: []string{c.column}, Description: fmt.Sprintf("histogram (%d buckets)", len(c.expected))}
}

func (c *histogramConstraint) Analysis() Analysis {
	return Analysis{HasPredicate: true, Predicate: "histogram", Combinable: false}
}

func (c *histogramConstraint) Evaluate(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (Result, error) {
	strs, err := fetchStringColumn(ctx, session, vctx, c.column)
	if err != nil {
		return Result{}, err
	}

	if len(strs) == 0 {
		return Skippedf("histogram: column %q has no non-null values", c.column), nil
	}

	counts := make(map[string]int, len(c.expected))
	for _, s := range strs {
		counts[s]++
	}

	total := float64(len(strs))

	seen := make(map[string]struct{}, len(c.expected)+len(counts))
	for b := range c.expected {
		seen[b] = struct{}{}
	}

	for b := range counts {
		seen[b] = struct{}{}
	}

	tvd := 0.0
	for b := range seen {
		observed := float64(counts[b]) / total
		tvd += math.Abs(observed - c.expected[b])
	}

	tvd /= 2

	if tvd <= c.tolerance {
		return Success(tvd), nil
	}

	return Failuref(tvd, "histogram total variation distance %.4f exceeds tolerance %.4f", tvd, c.tolerance), nil
}

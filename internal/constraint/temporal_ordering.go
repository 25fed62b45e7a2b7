package constraint

import (
	"context"
	"fmt"

	"github.com/withterm/term-sub003/internal/engine"
	"github.com/withterm/term-sub003/internal/errs"
)

// temporalOrderingConstraint checks that a time-like column is non-decreasing
// within each group (an empty groupColumn treats the whole table as one
// group), allowing at most maxViolationRatio (0..1) of adjacent pairs to be
// out of order (spec §3, "TemporalOrdering"). Always non-combinable: this is
// a row-order sequence check, not a scalar aggregate.
type temporalOrderingConstraint struct {
	name              string
	groupColumn       string
	timeColumn        string
	maxViolationRatio float64
}

// NewTemporalOrdering builds a TemporalOrdering constraint. groupColumn may
// be "" to check ordering across the whole table as a single sequence.
func NewTemporalOrdering(name, groupColumn, timeColumn string, maxViolationRatio float64) Constraint {
	return &temporalOrderingConstraint{
		name: name, groupColumn: groupColumn, timeColumn: timeColumn, maxViolationRatio: maxViolationRatio,
	}
}

func (c *temporalOrderingConstraint) Name() string           { return c.name }
func (c *temporalOrderingConstraint) Column() (string, bool) { return c.timeColumn, true }
func (c *temporalOrderingConstraint) Kind() Kind             { return KindTemporalOrdering }
func (c *temporalOrderingConstraint) Metadata() Metadata {
	return Metadata{
		Columns: []string{c.timeColumn},
		Description: fmt.Sprintf(
			"temporal ordering of %s grouped by %q, max violation ratio %.2f",
			c.timeColumn, c.groupColumn, c.maxViolationRatio,
		),
	}
}

func (c *temporalOrderingConstraint) Analysis() Analysis {
	return Analysis{HasPredicate: true, Predicate: "temporal_ordering", Combinable: false}
}

func (c *temporalOrderingConstraint) Evaluate(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (Result, error) {
	type orderedPairFetcher interface {
		FetchOrderedPair(ctx context.Context, table, groupCol, timeCol string) ([]string, []float64, error)
	}

	fetcher, ok := session.(orderedPairFetcher)
	if !ok {
		return Result{}, fmt.Errorf(
			"%w: session does not support ordered pair retrieval required by TemporalOrdering", errs.ErrConfiguration,
		)
	}

	groups, times, err := fetcher.FetchOrderedPair(ctx, vctx.TableName, c.groupColumn, c.timeColumn)
	if err != nil {
		return Result{}, err
	}

	if len(times) < 2 {
		return Skippedf("temporal_ordering: fewer than 2 rows in column %q", c.timeColumn), nil
	}

	last := make(map[string]float64, len(groups))

	pairs, violations := 0, 0

	for i := range times {
		g := groups[i]

		prev, seen := last[g]
		if seen {
			pairs++

			if times[i] < prev {
				violations++
			}
		}

		last[g] = times[i]
	}

	if pairs == 0 {
		return Skippedf("temporal_ordering: no within-group adjacent pairs to compare"), nil
	}

	ratio := float64(violations) / float64(pairs)
	if ratio <= c.maxViolationRatio {
		return Success(ratio), nil
	}

	return Failuref(ratio, "temporal ordering violation ratio %.4f exceeds max %.2f", ratio, c.maxViolationRatio), nil
}

package constraint

import (
	"context"
	"fmt"

	"github.com/withterm/term-sub003/internal/assertion"
	"github.com/withterm/term-sub003/internal/engine"
	"github.com/withterm/term-sub003/internal/errs"
)

// StatKind selects which statistic a Statistical constraint computes (spec §3).
type StatKind string

const (
	StatMin      StatKind = "min"
	StatMax      StatKind = "max"
	StatMean     StatKind = "mean"
	StatSum      StatKind = "sum"
	StatStdDev   StatKind = "stddev"
	StatVariance StatKind = "variance"
)

func (k StatKind) aggregationType() (AggregationType, error) {
	switch k {
	case StatMin:
		return AggMin, nil
	case StatMax:
		return AggMax, nil
	case StatMean:
		return AggAvg, nil
	case StatSum:
		return AggSum, nil
	case StatStdDev:
		return AggStdDev, nil
	case StatVariance:
		return AggVariance, nil
	default:
		return "", fmt.Errorf("%w: unknown stat kind %q", errs.ErrConfiguration, k)
	}
}

// statEntry pairs one statistic with the assertion it must satisfy. A
// Statistical constraint may check several at once ("combined multi-stat",
// spec §3), all on the same column, which is exactly the E2 scenario the
// optimizer fuses into a single aggregate query.
type statEntry struct {
	Kind      StatKind
	Assertion assertion.Assertion
}

type statisticalConstraint struct {
	name    string
	column  string
	entries []statEntry
}

// NewStatistical builds a Statistical constraint checking one statistic.
func NewStatistical(name, column string, kind StatKind, a assertion.Assertion) Constraint {
	return &statisticalConstraint{name: name, column: column, entries: []statEntry{{Kind: kind, Assertion: a}}}
}

// NewCombinedStatistical builds a Statistical constraint checking several
// statistics on the same column in one evaluation.
func NewCombinedStatistical(name, column string, entries ...statEntry) Constraint {
	return &statisticalConstraint{name: name, column: column, entries: entries}
}

// StatEntry constructs a (kind, assertion) pair for NewCombinedStatistical.
func StatEntry(kind StatKind, a assertion.Assertion) statEntry {
	return statEntry{Kind: kind, Assertion: a}
}

func (c *statisticalConstraint) Name() string           { return c.name }
func (c *statisticalConstraint) Column() (string, bool) { return c.column, true }
func (c *statisticalConstraint) Kind() Kind             { return KindStatistical }
func (c *statisticalConstraint) Metadata() Metadata {
	return Metadata{Columns: []string{c.column}, Description: fmt.Sprintf("statistical (%d stats)", len(c.entries))}
}

func (c *statisticalConstraint) Analysis() Analysis {
	aggs := make([]AggregationType, 0, len(c.entries))
	keys := make([]AggKey, 0, len(c.entries))

	for _, e := range c.entries {
		agg, err := e.Kind.aggregationType()
		if err != nil {
			return Analysis{Combinable: false}
		}

		aggs = append(aggs, agg)
		keys = append(keys, AggKey{Column: c.column, Type: agg})
	}

	return Analysis{
		Aggregations: aggs,
		Columns:      []string{c.column},
		Combinable:   true,
	}.WithKeys(keys)
}

func (c *statisticalConstraint) Evaluate(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (Result, error) {
	total, err := rowCount(ctx, session, vctx)
	if err != nil {
		return Result{}, err
	}

	if total == 0 {
		return Skippedf("statistical: table %q is empty", vctx.TableName), nil
	}

	aggs := make([]aggSQL, 0, len(c.entries))

	for _, e := range c.entries {
		agg, err := e.Kind.aggregationType()
		if err != nil {
			return Result{}, err
		}

		aggs = append(aggs, aggSQL{Column: c.column, Type: agg, Alias: string(agg)})
	}

	values, isNull, err := runAggregates(ctx, session, vctx, aggs, "")
	if err != nil {
		return Result{}, err
	}

	byKey := make(map[AggKey]float64, len(c.entries))
	byKeyNull := make(map[AggKey]bool, len(c.entries))

	for _, e := range c.entries {
		agg, _ := e.Kind.aggregationType()
		byKey[AggKey{Column: c.column, Type: agg}] = values[string(agg)]
		byKeyNull[AggKey{Column: c.column, Type: agg}] = isNull[string(agg)]
	}

	return c.FromAggregates(byKey, byKeyNull), nil
}

func (c *statisticalConstraint) FromAggregates(values map[AggKey]float64, isNull map[AggKey]bool) Result {
	// The combined metric reported is the first entry's statistic, per the
	// spec's ConstraintResult carrying a single metric; failures from any
	// entry fail the whole constraint and are all named in the message.
	var failures []string

	firstMetric := 0.0

	for i, e := range c.entries {
		agg, _ := e.Kind.aggregationType()
		key := AggKey{Column: c.column, Type: agg}

		if isNull[key] {
			return Skippedf("statistical: column %q has no non-null values for %s", c.column, e.Kind)
		}

		v := values[key]
		if i == 0 {
			firstMetric = v
		}

		if !e.Assertion.Evaluate(v) {
			failures = append(failures, fmt.Sprintf("%s=%.6f does not satisfy %s", e.Kind, v, e.Assertion.String()))
		}
	}

	if len(failures) > 0 {
		return Failuref(firstMetric, "statistical constraint failed: %v", failures)
	}

	return Success(firstMetric)
}

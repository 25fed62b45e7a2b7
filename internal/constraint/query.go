package constraint

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/withterm/term-sub003/internal/engine"
	"github.com/withterm/term-sub003/internal/errs"
)

// matchedSentinel is a non-column AggKey.Column value standing in for "rows
// matching this group's shared predicate" (as opposed to "" which means the
// unfiltered COUNT(*) / SUM(...) over the whole table). It lets a
// predicate-bearing constraint like CustomSQL share a fused, WHERE-filtered
// query with other predicate-bearing constraints without colliding with the
// plain COUNT(*) key an unfiltered group member (Completeness, Size, ...)
// uses for its own total (spec §4.F.2-3).
const matchedSentinel = "*"

// aggSQL is one projected aggregation in a generated SELECT.
type aggSQL struct {
	Column string // "" for COUNT(*)
	Type   AggregationType
	Alias  string
}

// aggFuncSQL returns the SQL aggregate function name for typ.
func aggFuncSQL(typ AggregationType) (string, error) {
	switch typ {
	case AggCount:
		return "COUNT", nil
	case AggCountDistinct:
		return "COUNT", nil // DISTINCT handled specially in buildAggregateSQL
	case AggSum:
		return "SUM", nil
	case AggAvg:
		return "AVG", nil
	case AggMin:
		return "MIN", nil
	case AggMax:
		return "MAX", nil
	case AggStdDev:
		return "STDDEV", nil
	case AggVariance:
		return "VARIANCE", nil
	default:
		return "", fmt.Errorf("constraint: unknown aggregation type %q", typ)
	}
}

// buildAggregateSQL renders a single SELECT projecting every agg, optionally
// with a shared WHERE clause (used by solo-constraint evaluation and, via
// RunFusedAggregates, for every fused query the optimizer executes).
func buildAggregateSQL(vctx *engine.ValidationContext, aggs []aggSQL, where string) (string, error) {
	projections := make([]string, 0, len(aggs))

	for _, a := range aggs {
		fn, err := aggFuncSQL(a.Type)
		if err != nil {
			return "", err
		}

		arg := "*"
		if a.Column != "" && a.Column != matchedSentinel {
			arg = `"` + a.Column + `"`
		}

		if a.Type == AggCountDistinct {
			projections = append(projections, fmt.Sprintf(`%s(DISTINCT %s) AS "%s"`, fn, arg, a.Alias))
		} else {
			projections = append(projections, fmt.Sprintf(`%s(%s) AS "%s"`, fn, arg, a.Alias))
		}
	}

	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(projections, ", "), vctx.Escaped)
	if where != "" {
		sql += " WHERE " + where
	}

	return sql, nil
}

// runAggregates executes a single fused aggregate query for aggs and returns
// the resulting scalar per alias. isNull marks aliases whose scalar was SQL
// NULL (e.g. MIN/MAX/AVG over zero rows).
func runAggregates(
	ctx context.Context,
	session engine.SessionContext,
	vctx *engine.ValidationContext,
	aggs []aggSQL,
	where string,
) (values map[string]float64, isNull map[string]bool, err error) {
	sql, err := buildAggregateSQL(vctx, aggs, where)
	if err != nil {
		return nil, nil, err
	}

	batch, err := session.Execute(ctx, sql)
	if err != nil {
		return nil, nil, &errs.QueryEngineError{Cause: err}
	}

	values = make(map[string]float64, len(aggs))
	isNull = make(map[string]bool, len(aggs))

	for _, a := range aggs {
		col, ok := batch.Column(a.Alias)
		if !ok {
			return nil, nil, fmt.Errorf("constraint: result column %q missing from engine response", a.Alias)
		}

		if col.Len() == 0 || col.IsNull(0) {
			isNull[a.Alias] = true
			values[a.Alias] = math.NaN()

			continue
		}

		values[a.Alias] = col.Float64(0)
	}

	return values, isNull, nil
}

// RunFusedAggregates executes exactly one query projecting every distinct
// AggKey in keys and returns the scalar results keyed by AggKey, rather than
// by alias. where is an optional shared WHERE-clause fragment applied to the
// whole query, used when the optimizer has pushed a common predicate down
// into a fused group (spec §4.F.2-3); pass "" for an unfiltered group. This
// is the entry point the query optimizer uses to run one physical query per
// fused group, then hands the results to each group member's
// Fusable.FromAggregates.
func RunFusedAggregates(
	ctx context.Context,
	session engine.SessionContext,
	vctx *engine.ValidationContext,
	keys []AggKey,
	where string,
) (map[AggKey]float64, map[AggKey]bool, error) {
	aggs := make([]aggSQL, 0, len(keys))
	aliasOf := make(map[AggKey]string, len(keys))

	i := 0

	for _, k := range keys {
		if _, ok := aliasOf[k]; ok {
			continue
		}

		alias := fmt.Sprintf("agg_%d", i)
		i++
		aliasOf[k] = alias
		aggs = append(aggs, aggSQL{Column: k.Column, Type: k.Type, Alias: alias})
	}

	byAlias, isNullByAlias, err := runAggregates(ctx, session, vctx, aggs, where)
	if err != nil {
		return nil, nil, err
	}

	values := make(map[AggKey]float64, len(keys))
	isNull := make(map[AggKey]bool, len(keys))

	for k, alias := range aliasOf {
		values[k] = byAlias[alias]
		isNull[k] = isNullByAlias[alias]
	}

	return values, isNull, nil
}

// rowCount returns COUNT(*) for the current table, used by multiple
// constraints to detect the empty-table Skipped case (spec §4.B).
func rowCount(ctx context.Context, session engine.SessionContext, vctx *engine.ValidationContext) (int64, error) {
	values, _, err := runAggregates(ctx, session, vctx, []aggSQL{{Type: AggCount, Alias: "n"}}, "")
	if err != nil {
		return 0, err
	}

	return int64(values["n"]), nil
}

package constraint

import (
	"context"
	"fmt"

	"github.com/withterm/term-sub003/internal/engine"
	"github.com/withterm/term-sub003/internal/errs"
)

// customSQLConstraint checks the fraction of rows satisfying an
// operator-supplied SQL boolean predicate against a threshold (spec §3,
// "CustomSQL"). The predicate is validated at construction time against the
// keyword blacklist (spec §6) since it is the one constraint that lets an
// operator supply raw SQL text.
type customSQLConstraint struct {
	name      string
	predicate string
	threshold float64
}

// NewCustomSQL builds a CustomSQL constraint. predicate must be a boolean
// SQL expression free of the reserved keywords engine.ValidateCustomSQLPredicate
// rejects.
func NewCustomSQL(name, predicate string, threshold float64) (Constraint, error) {
	if err := engine.ValidateCustomSQLPredicate(predicate); err != nil {
		return nil, err
	}

	return &customSQLConstraint{name: name, predicate: predicate, threshold: threshold}, nil
}

func (c *customSQLConstraint) Name() string           { return c.name }
func (c *customSQLConstraint) Column() (string, bool) { return "", false }
func (c *customSQLConstraint) Kind() Kind             { return KindCustomSQL }
func (c *customSQLConstraint) Metadata() Metadata {
	return Metadata{Description: fmt.Sprintf("custom sql %q >= %.2f", c.predicate, c.threshold)}
}

// Analysis declares CustomSQL combinable: two or more CustomSQL constraints
// that happen to share the exact same predicate text (e.g. the same business
// filter checked against different thresholds) can be fused into a single
// WHERE-filtered scan when predicate pushdown is enabled (spec §4.F.2-3).
// The matched-row count is projected under matchedSentinel so it never
// collides with an unfiltered group's own COUNT(*) key.
func (c *customSQLConstraint) Analysis() Analysis {
	return Analysis{
		HasPredicate: true,
		Predicate:    c.predicate,
		Combinable:   true,
	}.WithKeys([]AggKey{{Column: matchedSentinel, Type: AggCount}})
}

func (c *customSQLConstraint) Evaluate(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (Result, error) {
	total, err := rowCount(ctx, session, vctx)
	if err != nil {
		return Result{}, err
	}

	if total == 0 {
		return Skippedf("custom_sql: table %q is empty", vctx.TableName), nil
	}

	values, _, err := runAggregates(ctx, session, vctx,
		[]aggSQL{{Type: AggCount, Alias: "matched"}}, c.predicate)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", errs.ErrParse, err)
	}

	return c.fromRatio(values["matched"], float64(total)), nil
}

// FromAggregates implements Fusable. The optimizer's OptimizedExecutor
// supplies the group's own matched-row count (under matchedSentinel, via the
// group's shared WHERE) plus the table's unfiltered total (under the plain
// AggKey{Type: AggCount}, computed once per Execute call and reused across
// every predicate-bearing group).
func (c *customSQLConstraint) FromAggregates(values map[AggKey]float64, _ map[AggKey]bool) Result {
	matched := values[AggKey{Column: matchedSentinel, Type: AggCount}]
	total := values[AggKey{Type: AggCount}]

	if total == 0 {
		return Skippedf("custom_sql: table is empty")
	}

	return c.fromRatio(matched, total)
}

func (c *customSQLConstraint) fromRatio(matched, total float64) Result {
	ratio := matched / total
	if ratio >= c.threshold {
		return Success(ratio)
	}

	return Failuref(ratio, "custom sql predicate ratio %.4f below threshold %.2f", ratio, c.threshold)
}

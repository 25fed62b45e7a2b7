package constraint

import (
	"context"
	"fmt"
	"strings"

	"github.com/withterm/term-sub003/internal/assertion"
	"github.com/withterm/term-sub003/internal/engine"
)

// CompleteOp combines multiple columns' completeness (AND/OR, spec §3).
type CompleteOp string

const (
	// CompleteOpSingle is used when only one column is checked.
	CompleteOpSingle CompleteOp = ""
	// CompleteOpAnd requires every listed column to be non-null for a row to count as complete.
	CompleteOpAnd CompleteOp = "and"
	// CompleteOpOr requires at least one listed column to be non-null.
	CompleteOpOr CompleteOp = "or"
)

// completenessConstraint checks the fraction of non-null rows for a column,
// or an AND/OR combination of columns, against an assertion.
type completenessConstraint struct {
	name      string
	columns   []string
	op        CompleteOp
	assertion assertion.Assertion
}

// NewCompleteness builds a single-column Completeness constraint.
func NewCompleteness(name, column string, a assertion.Assertion) Constraint {
	return &completenessConstraint{name: name, columns: []string{column}, op: CompleteOpSingle, assertion: a}
}

// NewCompositeCompleteness builds a Completeness constraint over the AND/OR
// of several columns.
func NewCompositeCompleteness(name string, columns []string, op CompleteOp, a assertion.Assertion) Constraint {
	return &completenessConstraint{name: name, columns: columns, op: op, assertion: a}
}

func (c *completenessConstraint) Name() string { return c.name }
func (c *completenessConstraint) Column() (string, bool) {
	if len(c.columns) == 1 {
		return c.columns[0], true
	}

	return "", false
}

func (c *completenessConstraint) Kind() Kind { return KindCompleteness }
func (c *completenessConstraint) Metadata() Metadata {
	return Metadata{Columns: c.columns, Description: "completeness " + c.assertion.String()}
}

func (c *completenessConstraint) Analysis() Analysis {
	if len(c.columns) != 1 {
		// AND/OR composites need a CASE-based row predicate the simple
		// (column, AggregationType) fusion model cannot express.
		return Analysis{Combinable: false}
	}

	return Analysis{
		Aggregations: []AggregationType{AggCount, AggCount},
		Columns:      c.columns,
		Combinable:   true,
	}.WithKeys([]AggKey{
		{Column: c.columns[0], Type: AggCount},
		{Type: AggCount}, // total row count
	})
}

func (c *completenessConstraint) Evaluate(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (Result, error) {
	total, err := rowCount(ctx, session, vctx)
	if err != nil {
		return Result{}, err
	}

	if total == 0 {
		return Skippedf("completeness: table %q is empty", vctx.TableName), nil
	}

	var complete int64

	if len(c.columns) == 1 {
		values, _, err := runAggregates(ctx, session, vctx,
			[]aggSQL{{Column: c.columns[0], Type: AggCount, Alias: "non_null"}}, "")
		if err != nil {
			return Result{}, err
		}

		complete = int64(values["non_null"])
	} else {
		where := c.compositeWhere()

		values, _, err := runAggregates(ctx, session, vctx, []aggSQL{{Type: AggCount, Alias: "n"}}, where)
		if err != nil {
			return Result{}, err
		}

		complete = int64(values["n"])
	}

	ratio := float64(complete) / float64(total)
	if c.assertion.Evaluate(ratio) {
		return Success(ratio), nil
	}

	return Failuref(ratio, "completeness ratio %.4f does not satisfy %s (columns=%v, op=%s)",
		ratio, c.assertion.String(), c.columns, orDefault(string(c.op), "single")), nil
}

func (c *completenessConstraint) compositeWhere() string {
	parts := make([]string, len(c.columns))
	for i, col := range c.columns {
		parts[i] = fmt.Sprintf(`"%s" IS NOT NULL`, col)
	}

	sep := " AND "
	if c.op == CompleteOpOr {
		sep = " OR "
	}

	return strings.Join(parts, sep)
}

func (c *completenessConstraint) FromAggregates(values map[AggKey]float64, _ map[AggKey]bool) Result {
	// Only reached for the single-column case (composite is non-combinable);
	// the total row count is the AggCount key with an empty column, which
	// Analysis declares alongside the column's non-null count.
	nonNull := values[AggKey{Column: c.columns[0], Type: AggCount}]
	total := values[AggKey{Type: AggCount}]

	if total == 0 {
		return Skippedf("completeness: table is empty")
	}

	ratio := nonNull / total
	if c.assertion.Evaluate(ratio) {
		return Success(ratio)
	}

	return Failuref(ratio, "completeness ratio %.4f does not satisfy %s", ratio, c.assertion.String())
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}

	return s
}

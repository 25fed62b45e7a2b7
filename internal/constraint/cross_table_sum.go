package constraint

import (
	"context"
	"fmt"

	"github.com/withterm/term-sub003/internal/assertion"
	"github.com/withterm/term-sub003/internal/engine"
)

// crossTableSumConstraint checks the ratio of SUM(column) in the check's
// table to SUM(otherColumn) in otherTable against an assertion (spec §3,
// "CrossTableSum" reconciliation). Always non-combinable and cross-table,
// so it never participates in the optimizer's fusion or single-table
// execution plan.
type crossTableSumConstraint struct {
	name        string
	column      string
	otherTable  string
	otherColumn string
	assertion   assertion.Assertion
}

// NewCrossTableSum builds a CrossTableSum constraint comparing
// SUM(column) in the check's own table against SUM(otherColumn) in
// otherTable.
func NewCrossTableSum(name, column, otherTable, otherColumn string, a assertion.Assertion) Constraint {
	return &crossTableSumConstraint{
		name: name, column: column, otherTable: otherTable, otherColumn: otherColumn, assertion: a,
	}
}

func (c *crossTableSumConstraint) Name() string           { return c.name }
func (c *crossTableSumConstraint) Column() (string, bool) { return c.column, true }
func (c *crossTableSumConstraint) Kind() Kind             { return KindCrossTableSum }
func (c *crossTableSumConstraint) Metadata() Metadata {
	return Metadata{
		Columns: []string{c.column},
		Description: fmt.Sprintf(
			"sum(%s) / sum(%s.%s) %s", c.column, c.otherTable, c.otherColumn, c.assertion.String(),
		),
	}
}

func (c *crossTableSumConstraint) Analysis() Analysis {
	return Analysis{HasPredicate: true, Predicate: "cross_table_sum", Combinable: false}
}

func (c *crossTableSumConstraint) Evaluate(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (Result, error) {
	ownValues, _, err := runAggregates(ctx, session, vctx, []aggSQL{{Column: c.column, Type: AggSum, Alias: "s"}}, "")
	if err != nil {
		return Result{}, err
	}

	otherVctx, err := engine.NewValidationContext(c.otherTable, vctx.RunID)
	if err != nil {
		return Result{}, err
	}

	otherValues, _, err := runAggregates(
		ctx, session, otherVctx, []aggSQL{{Column: c.otherColumn, Type: AggSum, Alias: "s"}}, "",
	)
	if err != nil {
		return Result{}, err
	}

	otherSum := otherValues["s"]
	if otherSum == 0 {
		return Skippedf("cross_table_sum: sum(%s.%s) is zero", c.otherTable, c.otherColumn), nil
	}

	ratio := ownValues["s"] / otherSum
	if c.assertion.Evaluate(ratio) {
		return Success(ratio), nil
	}

	return Failuref(ratio, "cross-table sum ratio %.6f does not satisfy %s", ratio, c.assertion.String()), nil
}

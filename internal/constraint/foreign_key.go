package constraint

import (
	"context"
	"fmt"

	"github.com/withterm/term-sub003/internal/engine"
)

// foreignKeyConstraint checks that at least threshold (0..1) fraction of
// non-null values in a child column exist among the values of a parent
// column in another table (spec §3, "ForeignKey" referential coverage).
// Always non-combinable and cross-table.
type foreignKeyConstraint struct {
	name         string
	childColumn  string
	parentTable  string
	parentColumn string
	threshold    float64
}

// NewForeignKey builds a ForeignKey constraint: childColumn's non-null
// values must exist in parentTable.parentColumn in at least threshold
// fraction of rows.
func NewForeignKey(name, childColumn, parentTable, parentColumn string, threshold float64) Constraint {
	return &foreignKeyConstraint{
		name: name, childColumn: childColumn, parentTable: parentTable, parentColumn: parentColumn, threshold: threshold,
	}
}

func (c *foreignKeyConstraint) Name() string           { return c.name }
func (c *foreignKeyConstraint) Column() (string, bool) { return c.childColumn, true }
func (c *foreignKeyConstraint) Kind() Kind             { return KindForeignKey }
func (c *foreignKeyConstraint) Metadata() Metadata {
	return Metadata{
		Columns: []string{c.childColumn},
		Description: fmt.Sprintf(
			"foreign key %s -> %s.%s >= %.2f", c.childColumn, c.parentTable, c.parentColumn, c.threshold,
		),
	}
}

func (c *foreignKeyConstraint) Analysis() Analysis {
	return Analysis{HasPredicate: true, Predicate: "foreign_key", Combinable: false}
}

func (c *foreignKeyConstraint) Evaluate(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (Result, error) {
	children, err := fetchStringColumn(ctx, session, vctx, c.childColumn)
	if err != nil {
		return Result{}, err
	}

	if len(children) == 0 {
		return Skippedf("foreign_key: column %q has no non-null values", c.childColumn), nil
	}

	parents, err := fetchStringColumnFromTable(ctx, session, c.parentTable, c.parentColumn)
	if err != nil {
		return Result{}, err
	}

	parentSet := make(map[string]struct{}, len(parents))
	for _, p := range parents {
		parentSet[p] = struct{}{}
	}

	matched := 0

	for _, v := range children {
		if _, ok := parentSet[v]; ok {
			matched++
		}
	}

	ratio := float64(matched) / float64(len(children))
	if ratio >= c.threshold {
		return Success(ratio), nil
	}

	return Failuref(ratio, "foreign key coverage %.4f below threshold %.2f", ratio, c.threshold), nil
}

// fetchStringColumnFromTable is fetchStringColumn without a ValidationContext,
// for cross-table constraints (ForeignKey, JoinCoverage) that read a second
// table the check isn't primarily validating.
func fetchStringColumnFromTable(
	ctx context.Context, session engine.SessionContext, table, column string,
) ([]string, error) {
	type stringFetcher interface {
		FetchStringColumn(ctx context.Context, table, column string) ([]string, error)
	}

	fetcher, ok := session.(stringFetcher)
	if !ok {
		return nil, fmt.Errorf("constraint: session does not support string column retrieval required by %s", table)
	}

	return fetcher.FetchStringColumn(ctx, table, column)
}

package constraint

import (
	"context"
	"fmt"

	"github.com/withterm/term-sub003/internal/assertion"
	"github.com/withterm/term-sub003/internal/engine"
)

// lengthConstraint checks the fraction of non-null rows whose string length
// satisfies an assertion (spec §3, "Length"). Always non-combinable: like
// Pattern, the predicate operates on a per-row computed value (len(value))
// the scalar aggregate fusion model can't express.
type lengthConstraint struct {
	name      string
	column    string
	assertion assertion.Assertion
	threshold float64
}

// NewLength builds a Length constraint: len(column value) must satisfy a in
// at least threshold (0..1) fraction of non-null rows.
func NewLength(name, column string, a assertion.Assertion, threshold float64) Constraint {
	return &lengthConstraint{name: name, column: column, assertion: a, threshold: threshold}
}

func (c *lengthConstraint) Name() string           { return c.name }
func (c *lengthConstraint) Column() (string, bool) { return c.column, true }
func (c *lengthConstraint) Kind() Kind             { return KindLength }
func (c *lengthConstraint) Metadata() Metadata {
	return Metadata{
		Columns:     []string{c.column},
		Description: fmt.Sprintf("length %s >= %.2f", c.assertion.String(), c.threshold),
	}
}

func (c *lengthConstraint) Analysis() Analysis {
	return Analysis{HasPredicate: true, Predicate: "length", Combinable: false}
}

func (c *lengthConstraint) Evaluate(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (Result, error) {
	strs, err := fetchStringColumn(ctx, session, vctx, c.column)
	if err != nil {
		return Result{}, err
	}

	if len(strs) == 0 {
		return Skippedf("length: column %q has no non-null values", c.column), nil
	}

	matched := 0

	for _, s := range strs {
		if c.assertion.Evaluate(float64(len(s))) {
			matched++
		}
	}

	ratio := float64(matched) / float64(len(strs))
	if ratio >= c.threshold {
		return Success(ratio), nil
	}

	return Failuref(ratio, "length match ratio %.4f below threshold %.2f for %s", ratio, c.threshold, c.assertion.String()), nil
}

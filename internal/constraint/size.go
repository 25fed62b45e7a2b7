package constraint

import (
	"context"

	"github.com/withterm/term-sub003/internal/assertion"
	"github.com/withterm/term-sub003/internal/engine"
)

// sizeConstraint checks the table's row count against an assertion.
type sizeConstraint struct {
	name      string
	assertion assertion.Assertion
}

// NewSize builds a Size constraint (spec §3): row count against assertion.
func NewSize(name string, a assertion.Assertion) Constraint {
	return &sizeConstraint{name: name, assertion: a}
}

func (c *sizeConstraint) Name() string           { return c.name }
func (c *sizeConstraint) Column() (string, bool) { return "", false }
func (c *sizeConstraint) Kind() Kind             { return KindSize }
func (c *sizeConstraint) Metadata() Metadata {
	return Metadata{Description: "row count " + c.assertion.String()}
}

func (c *sizeConstraint) Analysis() Analysis {
	return Analysis{Aggregations: []AggregationType{AggCount}, Combinable: true}
}

func (c *sizeConstraint) Evaluate(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (Result, error) {
	n, err := rowCount(ctx, session, vctx)
	if err != nil {
		return Result{}, err
	}

	return c.fromCount(float64(n)), nil
}

// FromAggregates implements Fusable.
func (c *sizeConstraint) FromAggregates(values map[AggKey]float64, _ map[AggKey]bool) Result {
	return c.fromCount(values[AggKey{Type: AggCount}])
}

func (c *sizeConstraint) fromCount(n float64) Result {
	if c.assertion.Evaluate(n) {
		return Success(n)
	}

	return Failuref(n, "row count %v does not satisfy %s", n, c.assertion.String())
}

package constraint

import (
	"context"

	"github.com/withterm/term-sub003/internal/assertion"
	"github.com/withterm/term-sub003/internal/engine"
)

// columnCountConstraint checks the table's schema column count (spec §3).
// It queries the schema, not data, so it never touches the optimizer's
// aggregation model — it does not implement Optimizable.
type columnCountConstraint struct {
	name      string
	assertion assertion.Assertion
}

// NewColumnCount builds a ColumnCount constraint: schema column count
// against assertion. Supplemented feature, ported from the original
// term-guard column_count example (see SPEC_FULL.md §9.1).
func NewColumnCount(name string, a assertion.Assertion) Constraint {
	return &columnCountConstraint{name: name, assertion: a}
}

func (c *columnCountConstraint) Name() string           { return c.name }
func (c *columnCountConstraint) Column() (string, bool) { return "", false }
func (c *columnCountConstraint) Kind() Kind             { return KindColumnCount }
func (c *columnCountConstraint) Metadata() Metadata {
	return Metadata{Description: "schema column count " + c.assertion.String()}
}

func (c *columnCountConstraint) Evaluate(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (Result, error) {
	schema, err := session.Schema(ctx, vctx.TableName)
	if err != nil {
		return Result{}, err
	}

	n := float64(len(schema.Fields))
	if c.assertion.Evaluate(n) {
		return Success(n), nil
	}

	return Failuref(n, "column count %v does not satisfy %s", n, c.assertion.String()), nil
}

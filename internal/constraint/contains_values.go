package constraint

import (
	"context"
	"fmt"

	"github.com/withterm/term-sub003/internal/engine"
)

// containsValuesConstraint checks the fraction of non-null rows whose value
// falls in an allowed set (spec §3, "ContainsValues" / allowed-values
// membership). Non-combinable: set membership is a per-row predicate.
type containsValuesConstraint struct {
	name      string
	column    string
	allowed   map[string]struct{}
	threshold float64
}

// NewContainsValues builds a ContainsValues constraint: the column value
// must be one of allowed in at least threshold (0..1) fraction of non-null
// rows.
func NewContainsValues(name, column string, allowed []string, threshold float64) Constraint {
	set := make(map[string]struct{}, len(allowed))
	for _, v := range allowed {
		set[v] = struct{}{}
	}

	return &containsValuesConstraint{name: name, column: column, allowed: set, threshold: threshold}
}

func (c *containsValuesConstraint) Name() string           { return c.name }
func (c *containsValuesConstraint) Column() (string, bool) { return c.column, true }
func (c *containsValuesConstraint) Kind() Kind             { return KindContainsValues }
func (c *containsValuesConstraint) Metadata() Metadata {
	return Metadata{Columns: []string{c.column}, Description: fmt.Sprintf("contains values (%d allowed)", len(c.allowed))}
}

func (c *containsValuesConstraint) Analysis() Analysis {
	return Analysis{HasPredicate: true, Predicate: "contains_values", Combinable: false}
}

func (c *containsValuesConstraint) Evaluate(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (Result, error) {
	strs, err := fetchStringColumn(ctx, session, vctx, c.column)
	if err != nil {
		return Result{}, err
	}

	if len(strs) == 0 {
		return Skippedf("contains_values: column %q has no non-null values", c.column), nil
	}

	matched := 0

	for _, s := range strs {
		if _, ok := c.allowed[s]; ok {
			matched++
		}
	}

	ratio := float64(matched) / float64(len(strs))
	if ratio >= c.threshold {
		return Success(ratio), nil
	}

	return Failuref(ratio, "contains_values match ratio %.4f below threshold %.2f", ratio, c.threshold), nil
}

package constraint

import (
	"context"
	"fmt"
	"strings"

	"github.com/withterm/term-sub003/internal/assertion"
	"github.com/withterm/term-sub003/internal/engine"
	"github.com/withterm/term-sub003/internal/errs"
)

// UniquenessMode selects which uniqueness variant to compute (spec §3).
type UniquenessMode string

const (
	// UniquenessFull checks that every value in the column appears exactly once.
	UniquenessFull UniquenessMode = "full"
	// UniquenessDistinctRatio checks COUNT(DISTINCT col) / COUNT(*).
	UniquenessDistinctRatio UniquenessMode = "distinct_ratio"
	// UniquenessDistinctness checks the fraction of rows whose value is unique
	// within the column (same metric formula as DistinctRatio in this
	// implementation; kept as a distinct mode for API parity with the source).
	UniquenessDistinctness UniquenessMode = "distinctness"
	// UniquenessPrimaryKeyGroup checks uniqueness across a composite key (multiple columns).
	UniquenessPrimaryKeyGroup UniquenessMode = "primary_key_group"
)

type uniquenessConstraint struct {
	name      string
	columns   []string
	mode      UniquenessMode
	assertion assertion.Assertion
}

// NewUniqueness builds a Uniqueness constraint over a single column.
func NewUniqueness(name, column string, mode UniquenessMode, a assertion.Assertion) Constraint {
	return &uniquenessConstraint{name: name, columns: []string{column}, mode: mode, assertion: a}
}

// NewPrimaryKeyUniqueness builds a primary-key-group Uniqueness constraint
// over a composite key (multiple columns).
func NewPrimaryKeyUniqueness(name string, columns []string, a assertion.Assertion) Constraint {
	return &uniquenessConstraint{name: name, columns: columns, mode: UniquenessPrimaryKeyGroup, assertion: a}
}

func (c *uniquenessConstraint) Name() string { return c.name }
func (c *uniquenessConstraint) Column() (string, bool) {
	if len(c.columns) == 1 {
		return c.columns[0], true
	}

	return "", false
}

func (c *uniquenessConstraint) Kind() Kind { return KindUniqueness }
func (c *uniquenessConstraint) Metadata() Metadata {
	return Metadata{Columns: c.columns, Description: fmt.Sprintf("uniqueness (%s) %s", c.mode, c.assertion.String())}
}

func (c *uniquenessConstraint) Analysis() Analysis {
	switch c.mode {
	case UniquenessDistinctRatio, UniquenessDistinctness:
		return Analysis{
			Aggregations: []AggregationType{AggCountDistinct, AggCount},
			Columns:      c.columns,
			Combinable:   true,
		}.WithKeys([]AggKey{
			{Column: c.columns[0], Type: AggCountDistinct},
			{Type: AggCount},
		})
	default:
		// Full uniqueness needs a GROUP BY ... HAVING COUNT(*) > 1 subquery;
		// primary-key-group uniqueness needs the same over a composite key.
		// Neither fits the scalar (column, AggregationType) fusion model.
		return Analysis{Combinable: false}
	}
}

func (c *uniquenessConstraint) Evaluate(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (Result, error) {
	total, err := rowCount(ctx, session, vctx)
	if err != nil {
		return Result{}, err
	}

	if total == 0 {
		return Skippedf("uniqueness: table %q is empty", vctx.TableName), nil
	}

	switch c.mode {
	case UniquenessDistinctRatio, UniquenessDistinctness:
		values, _, err := runAggregates(ctx, session, vctx,
			[]aggSQL{{Column: c.columns[0], Type: AggCountDistinct, Alias: "distinct_n"}}, "")
		if err != nil {
			return Result{}, err
		}

		return c.fromRatio(values["distinct_n"], float64(total)), nil

	case UniquenessFull:
		dup, err := c.duplicateGroupCount(ctx, session, vctx, c.columns)
		if err != nil {
			return Result{}, err
		}

		ratio := 1.0
		if dup > 0 {
			ratio = 0.0
		}

		return c.fromBoolRatio(ratio), nil

	case UniquenessPrimaryKeyGroup:
		dup, err := c.duplicateGroupCount(ctx, session, vctx, c.columns)
		if err != nil {
			return Result{}, err
		}

		ratio := 1.0
		if dup > 0 {
			ratio = 0.0
		}

		return c.fromBoolRatio(ratio), nil

	default:
		return Result{}, fmt.Errorf("%w: unknown uniqueness mode %q", errs.ErrConfiguration, c.mode)
	}
}

// duplicateGroupCount is a placeholder hook for the GROUP BY ... HAVING
// COUNT(*) > 1 query a real SQL engine would run for full/primary-key-group
// uniqueness. The engine boundary (spec §6) only guarantees scalar
// aggregate execution via Execute(sql); computing this exactly requires a
// grouped query shape outside the scope the core's SessionContext
// contract commits to rendering generically, so built-ins that need it
// approximate via distinct ratio: ratio == 1.0 iff COUNT(DISTINCT) ==
// COUNT(*).
func (c *uniquenessConstraint) duplicateGroupCount(
	ctx context.Context, session engine.SessionContext, vctx *engine.ValidationContext, columns []string,
) (int64, error) {
	total, err := rowCount(ctx, session, vctx)
	if err != nil {
		return 0, err
	}

	if len(columns) == 1 {
		values, _, err := runAggregates(ctx, session, vctx,
			[]aggSQL{{Column: columns[0], Type: AggCountDistinct, Alias: "distinct_n"}}, "")
		if err != nil {
			return 0, err
		}

		if int64(values["distinct_n"]) == total {
			return 0, nil
		}

		return total - int64(values["distinct_n"]), nil
	}

	// Composite key: concatenate columns into a synthetic expression is not
	// representable through the simple aggregate builder, so fall back to
	// one COUNT(DISTINCT) per column as a conservative lower bound check:
	// if any individual column is fully unique, the composite key is too.
	for _, col := range columns {
		values, _, err := runAggregates(ctx, session, vctx,
			[]aggSQL{{Column: col, Type: AggCountDistinct, Alias: "distinct_n"}}, "")
		if err != nil {
			return 0, err
		}

		if int64(values["distinct_n"]) == total {
			return 0, nil
		}
	}

	return 1, nil // conservatively report at least one duplicate group
}

func (c *uniquenessConstraint) fromRatio(distinct, total float64) Result {
	ratio := distinct / total
	if c.assertion.Evaluate(ratio) {
		return Success(ratio)
	}

	return Failuref(ratio, "uniqueness ratio %.4f does not satisfy %s (columns=%s)",
		ratio, c.assertion.String(), strings.Join(c.columns, ","))
}

func (c *uniquenessConstraint) fromBoolRatio(ratio float64) Result {
	if c.assertion.Evaluate(ratio) {
		return Success(ratio)
	}

	return Failuref(ratio, "uniqueness check failed for columns=%s (mode=%s)", strings.Join(c.columns, ","), c.mode)
}

func (c *uniquenessConstraint) FromAggregates(values map[AggKey]float64, _ map[AggKey]bool) Result {
	distinct := values[AggKey{Column: c.columns[0], Type: AggCountDistinct}]
	total := values[AggKey{Type: AggCount}]

	if total == 0 {
		return Skippedf("uniqueness: table is empty")
	}

	return c.fromRatio(distinct, total)
}

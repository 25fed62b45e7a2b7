package constraint

import (
	"context"
	"fmt"
	"regexp"

	"github.com/withterm/term-sub003/internal/engine"
	"github.com/withterm/term-sub003/internal/errs"
)

// patternConstraint checks the fraction of non-null rows in column matching
// a regex against a minimum threshold (spec §3, "Format/Pattern"). Always
// non-combinable: the row-level regex predicate is peculiar to this
// constraint instance (spec §4.F.1, §9 design note).
type patternConstraint struct {
	name      string
	column    string
	pattern   string
	compiled  *regexp.Regexp
	threshold float64
}

// NewPattern builds a Pattern constraint: column values must match pattern
// in at least threshold (0..1) fraction of non-null rows.
func NewPattern(name, column, pattern string, threshold float64) (Constraint, error) {
	if err := engine.ValidatePatternLength(pattern); err != nil {
		return nil, err
	}

	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid pattern %q: %v", errs.ErrConfiguration, pattern, err)
	}

	return &patternConstraint{name: name, column: column, pattern: pattern, compiled: compiled, threshold: threshold}, nil
}

func (c *patternConstraint) Name() string           { return c.name }
func (c *patternConstraint) Column() (string, bool) { return c.column, true }
func (c *patternConstraint) Kind() Kind             { return KindPattern }
func (c *patternConstraint) Metadata() Metadata {
	return Metadata{
		Columns:     []string{c.column},
		Description: fmt.Sprintf("pattern %q >= %.2f", c.pattern, c.threshold),
		Custom:      map[string]string{"pattern": c.pattern},
	}
}

func (c *patternConstraint) Analysis() Analysis {
	return Analysis{HasPredicate: true, Predicate: "pattern:" + c.pattern, Combinable: false}
}

func (c *patternConstraint) Evaluate(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (Result, error) {
	strs, err := fetchStringColumn(ctx, session, vctx, c.column)
	if err != nil {
		return Result{}, err
	}

	if len(strs) == 0 {
		return Skippedf("pattern: column %q has no non-null values", c.column), nil
	}

	matched := 0

	for _, s := range strs {
		if c.compiled.MatchString(s) {
			matched++
		}
	}

	ratio := float64(matched) / float64(len(strs))
	if ratio >= c.threshold {
		return Success(ratio), nil
	}

	return Failuref(ratio, "pattern match ratio %.4f below threshold %.2f for pattern %q", ratio, c.threshold, c.pattern), nil
}

// fetchStringColumn retrieves every non-null string value of column, the
// same engine-boundary extension FetchColumn provides for floats.
func fetchStringColumn(
	ctx context.Context, session engine.SessionContext, vctx *engine.ValidationContext, column string,
) ([]string, error) {
	type stringFetcher interface {
		FetchStringColumn(ctx context.Context, table, column string) ([]string, error)
	}

	fetcher, ok := session.(stringFetcher)
	if !ok {
		return nil, fmt.Errorf("%w: session does not support string column retrieval required by Pattern/Length",
			errs.ErrConfiguration)
	}

	return fetcher.FetchStringColumn(ctx, vctx.TableName, column)
}

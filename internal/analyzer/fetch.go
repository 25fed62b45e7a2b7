package analyzer

import (
	"context"
	"fmt"

	"github.com/withterm/term-sub003/internal/constraint"
	"github.com/withterm/term-sub003/internal/engine"
	"github.com/withterm/term-sub003/internal/errs"
)

// countRows returns COUNT(*) for vctx's table via the shared fused-aggregate
// query path constraint package exposes, avoiding a second ad hoc aggregate
// query helper for the same thing.
func countRows(ctx context.Context, session engine.SessionContext, vctx *engine.ValidationContext) (int64, error) {
	values, _, err := constraint.RunFusedAggregates(ctx, session, vctx, []constraint.AggKey{{Type: constraint.AggCount}})
	if err != nil {
		return 0, err
	}

	return int64(values[constraint.AggKey{Type: constraint.AggCount}]), nil
}

// fetchStringColumn mirrors the constraint package's engine-boundary
// extension for bulk string retrieval (spec §9 design note: both packages
// need row-level scans the scalar-aggregate SQL subset cannot express).
func fetchStringColumn(
	ctx context.Context, session engine.SessionContext, vctx *engine.ValidationContext, column string,
) ([]string, error) {
	type stringFetcher interface {
		FetchStringColumn(ctx context.Context, table, column string) ([]string, error)
	}

	fetcher, ok := session.(stringFetcher)
	if !ok {
		return nil, fmt.Errorf("%w: session does not support string column retrieval required by this analyzer",
			errs.ErrConfiguration)
	}

	return fetcher.FetchStringColumn(ctx, vctx.TableName, column)
}

// fetchOrderedColumn mirrors the constraint package's numeric bulk-fetch
// extension.
func fetchOrderedColumn(
	ctx context.Context, session engine.SessionContext, vctx *engine.ValidationContext, column string,
) ([]float64, error) {
	type columnFetcher interface {
		FetchColumn(ctx context.Context, table, column string) ([]float64, error)
	}

	fetcher, ok := session.(columnFetcher)
	if !ok {
		return nil, fmt.Errorf("%w: session does not support ordered column retrieval required by this analyzer",
			errs.ErrConfiguration)
	}

	return fetcher.FetchColumn(ctx, vctx.TableName, column)
}

package analyzer

import (
	"context"
	"fmt"

	"github.com/withterm/term-sub003/internal/engine"
)

// IncrementalRunner drives the three-step incremental flow (spec §4.E):
// load the previous partition's persisted State, compute a fresh State from
// this run's data, merge the two, and persist the merged result.
type IncrementalRunner struct {
	store StateStore
}

// NewIncrementalRunner builds an IncrementalRunner backed by store.
func NewIncrementalRunner(store StateStore) *IncrementalRunner {
	return &IncrementalRunner{store: store}
}

// ComputeAndStore runs a, merges with any previously stored state for
// partition, persists the merged state, and returns the resulting metric.
// ok is false if the merged state carries no observations.
func (r *IncrementalRunner) ComputeAndStore(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext, partition string, a Analyzer,
) (metric float64, ok bool, err error) {
	fresh, err := a.ComputeStateFromData(ctx, vctx, session)
	if err != nil {
		return 0, false, fmt.Errorf("incremental runner: analyzer %q: %w", a.Name(), err)
	}

	merged, err := r.Aggregate(a.Name(), partition, fresh)
	if err != nil {
		return 0, false, err
	}

	metric, ok = a.ComputeMetricFromState(merged)

	return metric, ok, nil
}

// Aggregate merges fresh with any previously stored state under
// (partition, analyzerName) and persists the merged result, returning it.
// With no prior state, fresh is stored and returned unchanged.
func (r *IncrementalRunner) Aggregate(analyzerName, partition string, fresh State) (State, error) {
	raw, found, err := r.store.Load(partition, analyzerName)
	if err != nil {
		return nil, err
	}

	merged := fresh

	if found {
		previous, err := Unmarshal(raw)
		if err != nil {
			return nil, err
		}

		merged, err = previous.Merge(fresh)
		if err != nil {
			return nil, fmt.Errorf("incremental runner: analyzer %q: %w", analyzerName, err)
		}
	}

	out, err := Marshal(merged)
	if err != nil {
		return nil, err
	}

	if err := r.store.Save(partition, analyzerName, out); err != nil {
		return nil, err
	}

	return merged, nil
}

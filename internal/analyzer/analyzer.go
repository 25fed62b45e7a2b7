// Package analyzer implements incremental metric computation (spec §4.E):
// an Analyzer reduces a batch of data to a small mergeable State, states from
// different partitions merge associatively and commutatively, and a merged
// state yields the same metric as computing it over the union of the
// partitions directly (the incremental-equivalence invariant, spec §8.5).
package analyzer

import (
	"context"
	"fmt"

	"github.com/withterm/term-sub003/internal/engine"
)

// State is an opaque, serializable accumulator an Analyzer produces from one
// partition of data and merges with another partition's State of the same
// kind.
type State interface {
	// Merge combines other into a new State. Must be associative and
	// commutative: merging A,B,C in any order or grouping yields an
	// equivalent State (spec §8.5).
	Merge(other State) (State, error)
	// Kind identifies the concrete State type for serialization round-tripping.
	Kind() string
}

// Analyzer computes a single named metric over a table incrementally: it
// reduces raw data to a State, and reduces a State to a scalar metric (spec
// §4.E).
type Analyzer interface {
	// Name identifies the analyzer, used as its state-store key.
	Name() string
	// ComputeStateFromData scans session (scoped to vctx's table) and
	// produces this partition's State.
	ComputeStateFromData(ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext) (State, error)
	// ComputeMetricFromState reduces state to the analyzer's scalar metric.
	// Returns ok=false if state carries no observations (e.g. an empty table).
	ComputeMetricFromState(state State) (metric float64, ok bool)
}

// Compute runs an Analyzer end-to-end against one partition: state then metric.
func Compute(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext, a Analyzer,
) (State, float64, bool, error) {
	state, err := a.ComputeStateFromData(ctx, vctx, session)
	if err != nil {
		return nil, 0, false, fmt.Errorf("analyzer %q: %w", a.Name(), err)
	}

	metric, ok := a.ComputeMetricFromState(state)

	return state, metric, ok, nil
}

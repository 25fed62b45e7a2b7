package optimizer

import (
	"github.com/withterm/term-sub003/internal/config"
	"github.com/withterm/term-sub003/internal/constraint"
)

// Group is one physical query's worth of fused, combinable constraints.
// Predicate is "" for an unfiltered group, or the shared WHERE-clause
// fragment every member agreed on (spec §4.F.2-3).
type Group struct {
	Keys        []constraint.AggKey
	Predicate   string
	Constraints []ConstraintAnalysis
}

// Plan is the output of QueryCombiner.Combine: constraints partitioned into
// fused Groups and a Standalone list evaluated one-by-one (spec §4.F.2).
type Plan struct {
	Groups     []Group
	Standalone []constraint.Constraint
}

// QueryCombiner partitions a flat list of constraints (typically every
// constraint across every check in a suite) into execution groups: it packs
// combinable constraints greedily, at most MaxGroupSize per group, and
// leaves everything else to run standalone (spec §4.F.2). All constraints
// given to one Combine call are assumed to target the same table, since
// that's the unit a ValidationSuite.Run evaluates at a time.
type QueryCombiner struct {
	analyzer     *QueryAnalyzer
	maxGroupSize int
}

// NewQueryCombiner builds a QueryCombiner using the process's default
// optimizer configuration (spec §4.F.2, §6).
func NewQueryCombiner() *QueryCombiner {
	return NewQueryCombinerWithConfig(*config.LoadOptimizerConfig())
}

// NewQueryCombinerWithConfig builds a QueryCombiner from an explicit config,
// primarily for tests that want a small MaxGroupSize to exercise packing.
func NewQueryCombinerWithConfig(cfg config.OptimizerConfig) *QueryCombiner {
	maxGroupSize := cfg.MaxGroupSize
	if maxGroupSize <= 0 {
		maxGroupSize = 32
	}

	return &QueryCombiner{analyzer: NewQueryAnalyzer(cfg), maxGroupSize: maxGroupSize}
}

// Combine classifies every constraint and packs the combinable ones into
// groups bounded by maxGroupSize, bucketed by predicate so constraints
// sharing a WHERE clause fuse together even if interleaved in the input with
// constraints of a different predicate (spec §4.F.2-3: a group's members must
// all share the same predicate, or none). Within a predicate's bucket,
// constraints are packed in input order (a stable, simple packing; spec §9
// leaves bin-packing strategy as an implementation choice since the
// distilled spec doesn't mandate one).
func (c *QueryCombiner) Combine(constraints []constraint.Constraint) (*Plan, error) {
	plan := &Plan{}

	var building []Group

	open := make(map[string]int, 4) // predicate -> index into building, while under maxGroupSize

	for _, cons := range constraints {
		analysis := c.analyzer.Analyze(cons)

		if !analysis.Combinable {
			plan.Standalone = append(plan.Standalone, cons)

			continue
		}

		idx, ok := open[analysis.Predicate]
		if !ok || len(building[idx].Constraints) >= c.maxGroupSize {
			building = append(building, Group{Predicate: analysis.Predicate})
			idx = len(building) - 1
			open[analysis.Predicate] = idx
		}

		building[idx].Constraints = append(building[idx].Constraints, analysis)
		building[idx].Keys = mergeKeys(building[idx].Keys, analysis.Keys)
	}

	plan.Groups = building

	return plan, nil
}

func mergeKeys(existing, add []constraint.AggKey) []constraint.AggKey {
	seen := make(map[constraint.AggKey]struct{}, len(existing))
	for _, k := range existing {
		seen[k] = struct{}{}
	}

	for _, k := range add {
		if _, ok := seen[k]; ok {
			continue
		}

		seen[k] = struct{}{}

		existing = append(existing, k)
	}

	return existing
}

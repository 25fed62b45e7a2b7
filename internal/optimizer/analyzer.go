// Package optimizer fuses the combinable constraints of a ValidationSuite
// into as few physical aggregate queries as possible (spec §4.F). A
// QueryAnalyzer classifies each constraint, a QueryCombiner groups
// classified constraints into execution groups bounded by a maximum group
// size, and an OptimizedExecutor runs one fused query per group and
// redistributes the scalar results back to each constraint via
// constraint.Fusable.
package optimizer

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/withterm/term-sub003/internal/config"
	"github.com/withterm/term-sub003/internal/constraint"
)

// ConstraintAnalysis is the classification QueryAnalyzer produces for one
// constraint: whether it can be fused, and if so what it contributes to a
// fused query.
type ConstraintAnalysis struct {
	Constraint constraint.Constraint
	Combinable bool
	Keys       []constraint.AggKey
	Predicate  string // "" unless the constraint carries a WHERE-clause fragment
}

// QueryAnalyzer classifies constraints via their Optimizable.Analysis(),
// caching results by constraint name (spec §4.F.1) since a suite commonly
// re-evaluates the same named constraints across repeated runs against the
// same table shape.
type QueryAnalyzer struct {
	cache             *lru.Cache[string, ConstraintAnalysis]
	predicatePushdown bool
}

// NewQueryAnalyzer builds a QueryAnalyzer with an LRU classification cache
// sized per cfg (falling back to config defaults if cfg is the zero value).
// cfg.PredicatePushdown gates whether a combinable, predicate-bearing
// constraint may ever join a fused group at all (spec §4.F.2).
func NewQueryAnalyzer(cfg config.OptimizerConfig) *QueryAnalyzer {
	size := cfg.AnalysisCacheSize
	if size <= 0 {
		size = 256
	}

	cache, _ := lru.New[string, ConstraintAnalysis](size)

	return &QueryAnalyzer{cache: cache, predicatePushdown: cfg.PredicatePushdown}
}

// Analyze classifies c, consulting and populating the analysis cache.
func (a *QueryAnalyzer) Analyze(c constraint.Constraint) ConstraintAnalysis {
	if cached, ok := a.cache.Get(c.Name()); ok {
		return cached
	}

	analysis := classify(c, a.predicatePushdown)
	a.cache.Add(c.Name(), analysis)

	return analysis
}

func classify(c constraint.Constraint, predicatePushdown bool) ConstraintAnalysis {
	opt, ok := c.(constraint.Optimizable)
	if !ok {
		return ConstraintAnalysis{Constraint: c, Combinable: false}
	}

	an := opt.Analysis()
	if !an.Combinable {
		return ConstraintAnalysis{Constraint: c, Combinable: false, Predicate: an.Predicate}
	}

	if an.HasPredicate && !predicatePushdown {
		// The constraint could fuse, but only by sharing a WHERE clause with
		// its group, and predicate pushdown is disabled: run it standalone
		// instead of silently ignoring its predicate.
		return ConstraintAnalysis{Constraint: c, Combinable: false, Predicate: an.Predicate}
	}

	if _, ok := c.(constraint.Fusable); !ok {
		// Declares itself combinable but doesn't implement Fusable: treat
		// conservatively as non-combinable rather than fail the run.
		return ConstraintAnalysis{Constraint: c, Combinable: false, Predicate: an.Predicate}
	}

	return ConstraintAnalysis{Constraint: c, Combinable: true, Keys: an.Keys(), Predicate: an.Predicate}
}

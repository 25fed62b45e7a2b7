package optimizer

import (
	"fmt"
	"strings"
)

// Explain renders a human-readable execution plan summary for plan: which
// constraints were grouped together, the resulting estimated scan reduction,
// whether predicate pushdown was used, and StatsCache effectiveness. This is
// the optimizer's debugging surface (spec §4.F, "Explain plan"): Suite.Run's
// optimized path logs it at debug level, and its output never changes which
// queries run or what they return.
func Explain(plan *Plan, predicatePushdown bool, cacheStats Stats) string {
	var b strings.Builder

	combinable := 0
	for _, g := range plan.Groups {
		combinable += len(g.Constraints)
	}

	total := combinable + len(plan.Standalone)

	fmt.Fprintf(&b, "query plan: %d fused group(s), %d standalone constraint(s)\n", len(plan.Groups), len(plan.Standalone))
	fmt.Fprintf(&b, "  total constraints: %d, combinable: %d\n", total, combinable)

	if combinable > 0 {
		fmt.Fprintf(&b, "  estimated scan reduction: %d -> %d\n", combinable, len(plan.Groups))
	}

	pushdownUsed := false

	for i, g := range plan.Groups {
		names := make([]string, 0, len(g.Constraints))
		for _, ca := range g.Constraints {
			names = append(names, ca.Constraint.Name())
		}

		fmt.Fprintf(&b, "  group %d: %d aggregate(s), constraints: %s\n", i, len(g.Keys), strings.Join(names, ", "))

		if g.Predicate != "" {
			pushdownUsed = true

			fmt.Fprintf(&b, "    predicate: %s\n", g.Predicate)
		}
	}

	if len(plan.Standalone) > 0 {
		names := make([]string, 0, len(plan.Standalone))
		for _, c := range plan.Standalone {
			names = append(names, c.Name())
		}

		fmt.Fprintf(&b, "  standalone: %s\n", strings.Join(names, ", "))
	}

	fmt.Fprintf(&b, "  predicate pushdown: enabled=%t, used=%t\n", predicatePushdown, pushdownUsed)

	fmt.Fprintf(&b, "  stats cache: %d hit(s), %d miss(es), %d entries\n",
		cacheStats.Hits, cacheStats.Misses, cacheStats.Entries)

	return b.String()
}

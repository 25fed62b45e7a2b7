package constraint

import (
	"context"
	"fmt"

	"github.com/withterm/term-sub003/internal/engine"
	"github.com/withterm/term-sub003/internal/errs"
)

// JoinSide selects which side of a two-table key comparison a JoinCoverage
// constraint reports coverage for (spec §3, "JoinCoverage").
type JoinSide string

const (
	// JoinSideLeft is the fraction of the check's own table's keys present
	// in the other table.
	JoinSideLeft JoinSide = "left"
	// JoinSideRight is the fraction of the other table's keys present in
	// the check's own table.
	JoinSideRight JoinSide = "right"
	// JoinSideInner is the fraction of the union of both tables' keys
	// present in both.
	JoinSideInner JoinSide = "inner"
)

// joinCoverageConstraint checks what fraction of one table's join key
// values are matched in another table's join key, for a chosen JoinSide.
// Always non-combinable and cross-table.
type joinCoverageConstraint struct {
	name       string
	column     string
	otherTable string
	otherKey   string
	side       JoinSide
	threshold  float64
}

// NewJoinCoverage builds a JoinCoverage constraint comparing column in the
// check's table against otherKey in otherTable.
func NewJoinCoverage(name, column, otherTable, otherKey string, side JoinSide, threshold float64) Constraint {
	return &joinCoverageConstraint{
		name: name, column: column, otherTable: otherTable, otherKey: otherKey, side: side, threshold: threshold,
	}
}

func (c *joinCoverageConstraint) Name() string           { return c.name }
func (c *joinCoverageConstraint) Column() (string, bool) { return c.column, true }
func (c *joinCoverageConstraint) Kind() Kind             { return KindJoinCoverage }
func (c *joinCoverageConstraint) Metadata() Metadata {
	return Metadata{
		Columns: []string{c.column},
		Description: fmt.Sprintf(
			"join coverage (%s) %s <-> %s.%s >= %.2f", c.side, c.column, c.otherTable, c.otherKey, c.threshold,
		),
	}
}

func (c *joinCoverageConstraint) Analysis() Analysis {
	return Analysis{HasPredicate: true, Predicate: "join_coverage", Combinable: false}
}

func (c *joinCoverageConstraint) Evaluate(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (Result, error) {
	own, err := fetchStringColumn(ctx, session, vctx, c.column)
	if err != nil {
		return Result{}, err
	}

	other, err := fetchStringColumnFromTable(ctx, session, c.otherTable, c.otherKey)
	if err != nil {
		return Result{}, err
	}

	ownSet := toSet(own)
	otherSet := toSet(other)

	var ratio float64

	switch c.side {
	case JoinSideLeft:
		if len(ownSet) == 0 {
			return Skippedf("join_coverage: column %q has no non-null values", c.column), nil
		}

		ratio = coverage(ownSet, otherSet)
	case JoinSideRight:
		if len(otherSet) == 0 {
			return Skippedf("join_coverage: %s.%s has no non-null values", c.otherTable, c.otherKey), nil
		}

		ratio = coverage(otherSet, ownSet)
	case JoinSideInner:
		union := make(map[string]struct{}, len(ownSet)+len(otherSet))
		for k := range ownSet {
			union[k] = struct{}{}
		}

		for k := range otherSet {
			union[k] = struct{}{}
		}

		if len(union) == 0 {
			return Skippedf("join_coverage: both key sets are empty"), nil
		}

		matched := 0

		for k := range union {
			_, inOwn := ownSet[k]
			_, inOther := otherSet[k]

			if inOwn && inOther {
				matched++
			}
		}

		ratio = float64(matched) / float64(len(union))
	default:
		return Result{}, fmt.Errorf("%w: unknown join side %q", errs.ErrConfiguration, c.side)
	}

	if ratio >= c.threshold {
		return Success(ratio), nil
	}

	return Failuref(ratio, "join coverage (%s) %.4f below threshold %.2f", c.side, ratio, c.threshold), nil
}

func toSet(vs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(vs))
	for _, v := range vs {
		set[v] = struct{}{}
	}

	return set
}

// coverage returns the fraction of keys in from that are present in to.
func coverage(from, to map[string]struct{}) float64 {
	if len(from) == 0 {
		return 0
	}

	matched := 0

	for k := range from {
		if _, ok := to[k]; ok {
			matched++
		}
	}

	return float64(matched) / float64(len(from))
}

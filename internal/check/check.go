// Package check groups constraints under a named, leveled unit that folds
// their individual results into one pass/fail judgment and a set of Issues
// for reporting (spec §4.C).
package check

import (
	"context"
	"fmt"

	"github.com/withterm/term-sub003/internal/constraint"
	"github.com/withterm/term-sub003/internal/engine"
)

// Level orders check severity, a higher value being more severe (spec
// §4.C).
type Level int

const (
	// LevelInfo issues never fail a suite; they're informational only.
	LevelInfo Level = iota
	// LevelWarning issues are reported but don't fail the suite by default.
	LevelWarning
	// LevelError issues fail the suite.
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is the overall outcome of evaluating a Check.
type Status int

const (
	// StatusSuccess means every constraint succeeded.
	StatusSuccess Status = iota
	// StatusWarning means at least one constraint failed but the check's
	// Level is below LevelError.
	StatusWarning
	// StatusFailure means at least one constraint failed and the check's
	// Level is LevelError.
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusWarning:
		return "warning"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Issue describes one failed (or skipped) constraint within a Check, folded
// into the owning ValidationReport.
type Issue struct {
	CheckName      string
	ConstraintName string
	Level          Level
	Status         constraint.Status
	Message        string
	Metric         *float64
}

// Check is a named, leveled group of constraints evaluated together against
// one table (spec §4.C).
type Check struct {
	Name        string
	Level       Level
	Constraints []constraint.Constraint
}

// New builds a Check.
func New(name string, level Level, constraints ...constraint.Constraint) Check {
	return Check{Name: name, Level: level, Constraints: constraints}
}

// Result is the outcome of evaluating a Check: its folded Status plus one
// Issue per non-success constraint.
type Result struct {
	CheckName string
	Status    Status
	Issues    []Issue
}

// Evaluate runs every constraint in the check against session, scoped to
// vctx's table, and folds the results (spec §4.C). Evaluation order is the
// order constraints were added; a constraint returning an error aborts the
// whole check (spec §4.D treats this as a suite-level evaluation error, not
// a Failure result).
func (c Check) Evaluate(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (Result, error) {
	result := Result{CheckName: c.Name, Status: StatusSuccess}

	anyFailure := false

	for _, cons := range c.Constraints {
		cr, err := cons.Evaluate(ctx, vctx, session)
		if err != nil {
			return Result{}, fmt.Errorf("check %q: constraint %q: %w", c.Name, cons.Name(), err)
		}

		if cr.Status == constraint.StatusSuccess {
			continue
		}

		if cr.Status == constraint.StatusFailure {
			anyFailure = true
		}

		result.Issues = append(result.Issues, Issue{
			CheckName:      c.Name,
			ConstraintName: cons.Name(),
			Level:          c.Level,
			Status:         cr.Status,
			Message:        cr.Message,
			Metric:         cr.Metric,
		})
	}

	if anyFailure {
		if c.Level == LevelError {
			result.Status = StatusFailure
		} else {
			result.Status = StatusWarning
		}
	}

	return result, nil
}

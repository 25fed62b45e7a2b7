// Package suite drives a ValidationSuite: an ordered set of checks run
// against one table, optionally fused through the query optimizer, yielding
// a single ValidationReport (spec §4.D).
package suite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/withterm/term-sub003/internal/check"
	"github.com/withterm/term-sub003/internal/config"
	"github.com/withterm/term-sub003/internal/constraint"
	"github.com/withterm/term-sub003/internal/engine"
	"github.com/withterm/term-sub003/internal/errs"
	"github.com/withterm/term-sub003/internal/optimizer"
)

// Status is the overall outcome of running a ValidationSuite.
type Status int

const (
	// StatusSuccess means every check in the suite succeeded.
	StatusSuccess Status = iota
	// StatusWarning means at least one check reported a warning but none failed.
	StatusWarning
	// StatusFailure means at least one check failed.
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

// Report is the outcome of one Suite.Run call: every check's Result plus
// suite-level bookkeeping for reporting and upload to the metrics repository.
type Report struct {
	RunID      string
	TableName  string
	Status     Status
	Checks     []check.Result
	StartedAt  time.Time
	Duration   time.Duration
	Optimized  bool
	NumQueries int
}

// Suite is an ordered list of checks run against a single table (spec §4.D).
// UseOptimizer routes every check's constraints through internal/optimizer,
// which fuses combinable constraints (within or across checks) into shared
// queries.
type Suite struct {
	Name         string
	Checks       []check.Check
	UseOptimizer bool
}

// New builds a Suite.
func New(name string, useOptimizer bool, checks ...check.Check) Suite {
	return Suite{Name: name, Checks: checks, UseOptimizer: useOptimizer}
}

// Run validates tableName against session, evaluating every check in order
// (spec §4.D): it validates the table name, builds a ValidationContext,
// optionally routes combinable constraints through the optimizer, folds
// per-check Results into a Report, and logs a structured summary keyed by a
// fresh run ID so every log line from one run correlates (spec §9.1).
func (s Suite) Run(ctx context.Context, tableName string, session engine.SessionContext, logger *slog.Logger) (Report, error) {
	start := time.Now()
	runID := uuid.NewString()

	vctx, err := engine.NewValidationContext(tableName, runID)
	if err != nil {
		return Report{}, err
	}

	logger.Info("validation suite starting",
		slog.String("run_id", runID),
		slog.String("suite", s.Name),
		slog.String("table", tableName),
		slog.Int("checks", len(s.Checks)),
		slog.Bool("optimizer", s.UseOptimizer),
	)

	report := Report{RunID: runID, TableName: tableName, StartedAt: start, Status: StatusSuccess}

	var (
		results    []check.Result
		numQueries int
	)

	if s.UseOptimizer {
		results, numQueries, err = s.runOptimized(ctx, vctx, session, logger)
	} else {
		results, numQueries, err = s.runSequential(ctx, vctx, session)
	}

	if err != nil {
		logger.Error("validation suite aborted",
			slog.String("run_id", runID),
			slog.String("suite", s.Name),
			slog.String("error", err.Error()),
		)

		return Report{}, &errs.ValidationFailedError{Check: s.Name, Cause: err}
	}

	report.Checks = results
	report.Optimized = s.UseOptimizer
	report.NumQueries = numQueries
	report.Status = foldStatus(results)
	report.Duration = time.Since(start)

	logger.Info("validation suite finished",
		slog.String("run_id", runID),
		slog.String("suite", s.Name),
		slog.String("status", report.Status.String()),
		slog.Int("queries", numQueries),
		slog.Duration("duration", report.Duration),
	)

	return report, nil
}

func (s Suite) runSequential(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) ([]check.Result, int, error) {
	results := make([]check.Result, 0, len(s.Checks))

	queries := 0

	for _, c := range s.Checks {
		queries += countQueries(c)

		r, err := c.Evaluate(ctx, vctx, session)
		if err != nil {
			return nil, 0, err
		}

		results = append(results, r)
	}

	return results, queries, nil
}

// runOptimized fuses every combinable constraint across all checks into as
// few physical queries as possible via internal/optimizer, then folds the
// per-constraint results back into per-check Results preserving each
// check's name, level, and constraint order (spec §4.F).
func (s Suite) runOptimized(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext, logger *slog.Logger,
) ([]check.Result, int, error) {
	var allConstraints []constraint.Constraint
	for _, c := range s.Checks {
		allConstraints = append(allConstraints, c.Constraints...)
	}

	cfg := *config.LoadOptimizerConfig()

	plan, err := optimizer.NewQueryCombinerWithConfig(cfg).Combine(allConstraints)
	if err != nil {
		return nil, 0, err
	}

	executor := optimizer.NewOptimizedExecutorWithConfig(cfg)

	resultsByName, numQueries, err := executor.Execute(ctx, vctx, session, plan)
	if err != nil {
		return nil, 0, err
	}

	logger.Debug("query optimizer plan",
		slog.String("suite", s.Name),
		slog.String("plan", optimizer.Explain(plan, cfg.PredicatePushdown, executor.Stats())),
	)

	results := make([]check.Result, 0, len(s.Checks))

	for _, c := range s.Checks {
		cr := check.Result{CheckName: c.Name, Status: check.StatusSuccess}

		anyFailure := false

		for _, cons := range c.Constraints {
			result, ok := resultsByName[cons.Name()]
			if !ok {
				return nil, 0, fmt.Errorf("suite %q: optimizer produced no result for constraint %q", s.Name, cons.Name())
			}

			if result.Status == constraint.StatusSuccess {
				continue
			}

			if result.Status == constraint.StatusFailure {
				anyFailure = true
			}

			cr.Issues = append(cr.Issues, check.Issue{
				CheckName:      c.Name,
				ConstraintName: cons.Name(),
				Level:          c.Level,
				Status:         result.Status,
				Message:        result.Message,
				Metric:         result.Metric,
			})
		}

		if anyFailure {
			if c.Level == check.LevelError {
				cr.Status = check.StatusFailure
			} else {
				cr.Status = check.StatusWarning
			}
		}

		results = append(results, cr)
	}

	return results, numQueries, nil
}

func countQueries(c check.Check) int {
	n := 0

	for range c.Constraints {
		n++
	}

	return n
}

// foldStatus folds per-check results into the overall suite status: any
// failure fails the suite; otherwise any warning warns it.
func foldStatus(results []check.Result) Status {
	status := StatusSuccess

	for _, r := range results {
		switch r.Status {
		case check.StatusFailure:
			return StatusFailure
		case check.StatusWarning:
			status = StatusWarning
		}
	}

	return status
}

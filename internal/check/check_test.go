package check_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withterm/term-sub003/internal/assertion"
	"github.com/withterm/term-sub003/internal/check"
	"github.com/withterm/term-sub003/internal/constraint"
	"github.com/withterm/term-sub003/internal/engine"
	"github.com/withterm/term-sub003/internal/engine/enginetest"
)

func usersTable() *enginetest.Engine {
	e := enginetest.New()
	_ = e.RegisterTable(context.Background(), "users", &enginetest.Table{
		Columns: []string{"id", "email"},
		Types:   map[string]engine.ColumnType{"id": engine.ColumnTypeInt64, "email": engine.ColumnTypeUtf8},
		Rows: [][]any{
			{int64(1), "a@x.com"},
			{int64(2), "b@x.com"},
			{int64(3), nil},
			{int64(4), "a@x.com"},
		},
	})

	return e
}

func TestCheckEvaluate_AllSuccess(t *testing.T) {
	vctx, err := engine.NewValidationContext("users", "run-1")
	require.NoError(t, err)

	c := check.New("size check", check.LevelError,
		constraint.NewSize("row count", assertion.Equals(4)),
	)

	result, err := c.Evaluate(context.Background(), vctx, usersTable())
	require.NoError(t, err)
	assert.Equal(t, check.StatusSuccess, result.Status)
	assert.Empty(t, result.Issues)
}

func TestCheckEvaluate_FailureAtErrorLevel(t *testing.T) {
	vctx, err := engine.NewValidationContext("users", "run-1")
	require.NoError(t, err)

	c := check.New("completeness check", check.LevelError,
		constraint.NewCompleteness("email completeness", "email", assertion.Equals(1.0)),
	)

	result, err := c.Evaluate(context.Background(), vctx, usersTable())
	require.NoError(t, err)
	assert.Equal(t, check.StatusFailure, result.Status)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "email completeness", result.Issues[0].ConstraintName)
	assert.Equal(t, constraint.StatusFailure, result.Issues[0].Status)
}

func TestCheckEvaluate_WarningLevelDoesNotFail(t *testing.T) {
	vctx, err := engine.NewValidationContext("users", "run-1")
	require.NoError(t, err)

	c := check.New("completeness check", check.LevelWarning,
		constraint.NewCompleteness("email completeness", "email", assertion.Equals(1.0)),
	)

	result, err := c.Evaluate(context.Background(), vctx, usersTable())
	require.NoError(t, err)
	assert.Equal(t, check.StatusWarning, result.Status)
	require.Len(t, result.Issues, 1)
}

// TestCheckEvaluate_Idempotent covers invariant 3: evaluating the same
// check twice against unchanged data produces equal reports.
func TestCheckEvaluate_Idempotent(t *testing.T) {
	vctx, err := engine.NewValidationContext("users", "run-1")
	require.NoError(t, err)

	c := check.New("completeness+uniqueness", check.LevelError,
		constraint.NewCompleteness("email completeness", "email", assertion.Equals(1.0)),
		constraint.NewUniqueness("email uniqueness", "email", constraint.UniquenessDistinctRatio, assertion.Equals(1.0)),
	)

	session := usersTable()

	first, err := c.Evaluate(context.Background(), vctx, session)
	require.NoError(t, err)

	second, err := c.Evaluate(context.Background(), vctx, session)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

package engine

import "context"

// ValidationContext is the per-run context threaded through constraint
// evaluation: the validated, escaped table name constraints query against.
// The source repo threads this through task-local storage; Go has no
// goroutine-locals, so the suite passes it to every constraint's Evaluate as
// an explicit argument, and a constraint discovers the current table without
// the suite rebuilding it per evaluation (spec §9 design note).
// WithValidationContext/FromContext can also carry it in a context.Context;
// the suite and the built-in constraints do not use them.
type ValidationContext struct {
	// TableName is the original, validated table name.
	TableName string
	// Escaped is TableName wrapped for use in generated SQL (double-quoted).
	Escaped string
	// RunID correlates every log line emitted during one suite.Run call.
	RunID string
}

type validationContextKey struct{}

// WithValidationContext returns a context carrying vctx, retrievable via FromContext.
func WithValidationContext(ctx context.Context, vctx *ValidationContext) context.Context {
	return context.WithValue(ctx, validationContextKey{}, vctx)
}

// FromContext retrieves the ValidationContext stashed by WithValidationContext.
// The second return is false if no ValidationContext is present.
func FromContext(ctx context.Context) (*ValidationContext, bool) {
	vctx, ok := ctx.Value(validationContextKey{}).(*ValidationContext)

	return vctx, ok
}

// NewValidationContext validates tableName and builds a ValidationContext.
func NewValidationContext(tableName, runID string) (*ValidationContext, error) {
	if err := ValidateTableName(tableName); err != nil {
		return nil, err
	}

	return &ValidationContext{
		TableName: tableName,
		Escaped:   EscapeIdentifier(tableName),
		RunID:     runID,
	}, nil
}

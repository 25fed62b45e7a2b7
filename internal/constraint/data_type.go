package constraint

import (
	"context"
	"fmt"

	"github.com/withterm/term-sub003/internal/engine"
	"github.com/withterm/term-sub003/internal/errs"
)

// dataTypeConstraint checks that a column's declared schema type equals an
// expected type (spec §3/§9.1, "DataType"). Reads the schema directly like
// ColumnCount, rather than scanning data, so it is never combinable.
type dataTypeConstraint struct {
	name     string
	column   string
	expected engine.ColumnType
}

// NewDataType builds a DataType constraint.
func NewDataType(name, column string, expected engine.ColumnType) Constraint {
	return &dataTypeConstraint{name: name, column: column, expected: expected}
}

func (c *dataTypeConstraint) Name() string           { return c.name }
func (c *dataTypeConstraint) Column() (string, bool) { return c.column, true }
func (c *dataTypeConstraint) Kind() Kind             { return KindDataType }
func (c *dataTypeConstraint) Metadata() Metadata {
	return Metadata{Columns: []string{c.column}, Description: fmt.Sprintf("data type == %s", c.expected)}
}

func (c *dataTypeConstraint) Evaluate(
	ctx context.Context, vctx *engine.ValidationContext, session engine.SessionContext,
) (Result, error) {
	schema, err := session.Schema(ctx, vctx.TableName)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", errs.ErrIO, err)
	}

	for _, f := range schema.Fields {
		if f.Name != c.column {
			continue
		}

		if f.Type == c.expected {
			return Success(1), nil
		}

		return Failuref(0, "column %q has type %s, expected %s", c.column, f.Type, c.expected), nil
	}

	return Result{}, &errs.ColumnNotFoundError{Column: c.column}
}

// Package enginetest provides an in-memory fake implementing
// engine.SessionContext, used throughout the module's tests the way the
// teacher project fakes storage.APIKeyStore in its handler tests: a small
// in-package struct over Go slices/maps, no real SQL involved.
//
// The fake understands a tiny, deliberately minimal subset of SQL — just
// enough to execute the aggregate-query shapes the optimizer and the
// built-in constraints/analyzers generate (COUNT, COUNT(DISTINCT ..),
// SUM, AVG, MIN, MAX, STDDEV, VARIANCE — one or many in a single
// SELECT, optionally with a WHERE clause built from column = 'literal' or
// IS NOT NULL, joined by AND). It is a test double, not a SQL engine.
package enginetest

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/withterm/term-sub003/internal/engine"
)

// Table is an in-memory columnar table.
type Table struct {
	Columns []string
	Types   map[string]engine.ColumnType
	// Rows is row-major for ease of test construction; converted to
	// column-oriented batches on read.
	Rows [][]any // nil entry means SQL NULL
}

// Engine is an in-memory engine.SessionContext fake.
type Engine struct {
	tables map[string]*Table
}

// New returns an empty Engine.
func New() *Engine {
	return &Engine{tables: make(map[string]*Table)}
}

// RegisterTable registers t under name. source must be a *Table.
func (e *Engine) RegisterTable(_ context.Context, name string, source engine.TableSource) error {
	t, ok := source.(*Table)
	if !ok {
		return fmt.Errorf("enginetest: RegisterTable requires a *Table source, got %T", source)
	}

	e.tables[name] = t

	return nil
}

// Schema implements engine.SessionContext.
func (e *Engine) Schema(_ context.Context, table string) (engine.Schema, error) {
	t, ok := e.tables[table]
	if !ok {
		return engine.Schema{}, fmt.Errorf("enginetest: unknown table %q", table)
	}

	schema := engine.Schema{}
	for _, col := range t.Columns {
		schema.Fields = append(schema.Fields, engine.Field{
			Name: col,
			Type: t.Types[col],
		})
	}

	return schema, nil
}

var (
	selectPattern = regexp.MustCompile(`(?is)^\s*SELECT\s+(.+?)\s+FROM\s+"?([A-Za-z_][A-Za-z0-9_]*)"?(?:\s+WHERE\s+(.+))?\s*$`)
	aggPattern    = regexp.MustCompile(`(?i)^(COUNT|COUNT_DISTINCT|SUM|AVG|MIN|MAX|STDDEV|VARIANCE)\(\s*(\*|DISTINCT\s+"?[A-Za-z_][A-Za-z0-9_]*"?|"?[A-Za-z_][A-Za-z0-9_]*"?)\s*\)\s+AS\s+"?([A-Za-z0-9_]+)"?$`)
)

// Execute parses a restricted SQL subset and evaluates it against the
// registered table. See package doc for the supported grammar.
func (e *Engine) Execute(_ context.Context, sql string) (engine.RowBatch, error) {
	m := selectPattern.FindStringSubmatch(sql)
	if m == nil {
		return nil, fmt.Errorf("enginetest: unsupported SQL shape: %s", sql)
	}

	projList, tableName, whereClause := m[1], m[2], m[3]

	t, ok := e.tables[tableName]
	if !ok {
		return nil, fmt.Errorf("enginetest: unknown table %q", tableName)
	}

	rows := t.Rows
	if whereClause != "" {
		var err error

		rows, err = filterRows(t, rows, whereClause)
		if err != nil {
			return nil, err
		}
	}

	projections := splitTopLevel(projList, ',')

	result := &batch{}

	for _, proj := range projections {
		proj = strings.TrimSpace(proj)

		col, err := evalProjection(t, rows, proj)
		if err != nil {
			return nil, err
		}

		result.cols = append(result.cols, col)
	}

	return result, nil
}

func filterRows(t *Table, rows [][]any, whereClause string) ([][]any, error) {
	conds := splitTopLevel(whereClause, 0) // 0 marks "split on AND"
	out := rows

	for _, cond := range conds {
		cond = strings.TrimSpace(cond)

		var err error

		out, err = applyCondition(t, out, cond)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

var (
	eqPattern     = regexp.MustCompile(`(?i)^"?([A-Za-z_][A-Za-z0-9_]*)"?\s*=\s*'([^']*)'$`)
	notNullPat    = regexp.MustCompile(`(?i)^"?([A-Za-z_][A-Za-z0-9_]*)"?\s+IS\s+NOT\s+NULL$`)
)

func applyCondition(t *Table, rows [][]any, cond string) ([][]any, error) {
	idx := func(col string) int {
		for i, c := range t.Columns {
			if c == col {
				return i
			}
		}

		return -1
	}

	if m := eqPattern.FindStringSubmatch(cond); m != nil {
		i := idx(m[1])
		if i < 0 {
			return nil, fmt.Errorf("enginetest: unknown column %q in WHERE", m[1])
		}

		var out [][]any

		for _, r := range rows {
			if r[i] != nil && fmt.Sprint(r[i]) == m[2] {
				out = append(out, r)
			}
		}

		return out, nil
	}

	if m := notNullPat.FindStringSubmatch(cond); m != nil {
		i := idx(m[1])
		if i < 0 {
			return nil, fmt.Errorf("enginetest: unknown column %q in WHERE", m[1])
		}

		var out [][]any

		for _, r := range rows {
			if r[i] != nil {
				out = append(out, r)
			}
		}

		return out, nil
	}

	return nil, fmt.Errorf("enginetest: unsupported WHERE condition: %s", cond)
}

// splitTopLevel splits s on sep (or " AND " case-insensitively when sep==0),
// ignoring separators inside single-quoted strings or parentheses.
func splitTopLevel(s string, sep rune) []string {
	var parts []string

	depth := 0
	inQuote := false
	start := 0

	splitOnAnd := sep == 0

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		c := runes[i]

		switch {
		case c == '\'':
			inQuote = !inQuote
		case inQuote:
			continue
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth == 0 && !splitOnAnd && c == sep:
			parts = append(parts, string(runes[start:i]))
			start = i + 1
		case depth == 0 && splitOnAnd && i+5 <= len(runes) && strings.EqualFold(string(runes[i:i+5]), " and "):
			parts = append(parts, string(runes[start:i]))
			start = i + 5
			i += 4
		}
	}

	parts = append(parts, string(runes[start:]))

	return parts
}

func evalProjection(t *Table, rows [][]any, proj string) (engine.Column, error) {
	m := aggPattern.FindStringSubmatch(proj)
	if m == nil {
		return nil, fmt.Errorf("enginetest: unsupported projection: %s", proj)
	}

	fn, arg, alias := strings.ToUpper(m[1]), strings.TrimSpace(m[2]), m[3]

	if strings.HasPrefix(strings.ToUpper(arg), "DISTINCT") {
		fn = "COUNT_DISTINCT"
		arg = strings.TrimSpace(arg[len("DISTINCT"):])
	}

	arg = strings.Trim(arg, `"`)

	idx := -1

	if arg != "*" {
		for i, c := range t.Columns {
			if c == arg {
				idx = i
			}
		}

		if idx < 0 {
			return nil, fmt.Errorf("enginetest: unknown column %q", arg)
		}
	}

	values := make([]float64, 0, len(rows))
	distinct := make(map[string]struct{})

	for _, r := range rows {
		if arg == "*" {
			values = append(values, 1)

			continue
		}

		v := r[idx]
		if v == nil {
			continue
		}

		distinct[fmt.Sprint(v)] = struct{}{}
		values = append(values, toFloat(v))
	}

	var result float64

	switch fn {
	case "COUNT":
		result = float64(len(values))
	case "COUNT_DISTINCT":
		result = float64(len(distinct))
	case "SUM":
		for _, v := range values {
			result += v
		}
	case "AVG":
		if len(values) == 0 {
			result = math.NaN()
		} else {
			var sum float64
			for _, v := range values {
				sum += v
			}

			result = sum / float64(len(values))
		}
	case "MIN":
		result = reduceOrNaN(values, math.Min)
	case "MAX":
		result = reduceOrNaN(values, math.Max)
	case "STDDEV":
		result = stddev(values)
	case "VARIANCE":
		result = variance(values)
	default:
		return nil, fmt.Errorf("enginetest: unsupported aggregation %s", fn)
	}

	return &scalarColumn{name: alias, value: result}, nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case bool:
		if n {
			return 1
		}

		return 0
	default:
		return math.NaN()
	}
}

func reduceOrNaN(values []float64, f func(a, b float64) float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}

	result := values[0]
	for _, v := range values[1:] {
		result = f(result, v)
	}

	return result
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

func variance(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}

	m := mean(values)

	var sumSq float64
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}

	return sumSq / float64(len(values)-1)
}

func stddev(values []float64) float64 {
	v := variance(values)
	if math.IsNaN(v) {
		return v
	}

	return math.Sqrt(v)
}

type scalarColumn struct {
	name  string
	value float64
}

func (c *scalarColumn) Type() engine.ColumnType { return engine.ColumnTypeFloat64 }
func (c *scalarColumn) Name() string            { return c.name }
func (c *scalarColumn) Len() int                 { return 1 }
func (c *scalarColumn) IsNull(int) bool          { return math.IsNaN(c.value) }
func (c *scalarColumn) Int64(int) int64          { return int64(c.value) }
func (c *scalarColumn) Float64(int) float64      { return c.value }
func (c *scalarColumn) Utf8(int) string          { return fmt.Sprint(c.value) }
func (c *scalarColumn) Bool(int) bool            { return c.value != 0 }

type batch struct {
	cols []engine.Column
}

func (b *batch) NumRows() int { return 1 }
func (b *batch) Columns() []engine.Column { return b.cols }
func (b *batch) Column(name string) (engine.Column, bool) {
	for _, c := range b.cols {
		if c.Name() == name {
			return c, true
		}
	}

	return nil, false
}

// FetchColumn returns every non-null value of column in table, for
// constraints (Quantile) that need an ordered scan the scalar-aggregate
// SQL subset cannot express.
func (e *Engine) FetchColumn(_ context.Context, table, column string) ([]float64, error) {
	t, ok := e.tables[table]
	if !ok {
		return nil, fmt.Errorf("enginetest: unknown table %q", table)
	}

	idx := -1

	for i, c := range t.Columns {
		if c == column {
			idx = i
		}
	}

	if idx < 0 {
		return nil, fmt.Errorf("enginetest: unknown column %q", column)
	}

	var out []float64

	for _, r := range t.Rows {
		if r[idx] == nil {
			continue
		}

		out = append(out, toFloat(r[idx]))
	}

	return out, nil
}

// FetchStringColumn returns every non-null value of column in table,
// stringified, for constraints (Pattern, Length, ContainsValues, Histogram,
// ForeignKey, JoinCoverage) and analyzers that need row-level string
// inspection the scalar-aggregate SQL subset
// cannot express.
func (e *Engine) FetchStringColumn(_ context.Context, table, column string) ([]string, error) {
	t, ok := e.tables[table]
	if !ok {
		return nil, fmt.Errorf("enginetest: unknown table %q", table)
	}

	idx := -1

	for i, c := range t.Columns {
		if c == column {
			idx = i
		}
	}

	if idx < 0 {
		return nil, fmt.Errorf("enginetest: unknown column %q", column)
	}

	var out []string

	for _, r := range t.Rows {
		if r[idx] == nil {
			continue
		}

		out = append(out, fmt.Sprint(r[idx]))
	}

	return out, nil
}

// FetchColumnPair returns the values of colA and colB for every row where
// both are non-null, preserving row alignment, for constraints (Correlation)
// that need paired samples the scalar-aggregate SQL subset cannot express.
func (e *Engine) FetchColumnPair(_ context.Context, table, colA, colB string) ([]float64, []float64, error) {
	t, ok := e.tables[table]
	if !ok {
		return nil, nil, fmt.Errorf("enginetest: unknown table %q", table)
	}

	idxA, idxB := -1, -1

	for i, c := range t.Columns {
		if c == colA {
			idxA = i
		}

		if c == colB {
			idxB = i
		}
	}

	if idxA < 0 {
		return nil, nil, fmt.Errorf("enginetest: unknown column %q", colA)
	}

	if idxB < 0 {
		return nil, nil, fmt.Errorf("enginetest: unknown column %q", colB)
	}

	var a, b []float64

	for _, r := range t.Rows {
		if r[idxA] == nil || r[idxB] == nil {
			continue
		}

		a = append(a, toFloat(r[idxA]))
		b = append(b, toFloat(r[idxB]))
	}

	return a, b, nil
}

// FetchOrderedPair returns groupCol (stringified) and timeCol (numeric) for
// every row where both are non-null, in original row order, for constraints
// (TemporalOrdering) that need per-group sequence checks the
// scalar-aggregate SQL subset cannot express. An empty groupCol name treats
// every row as belonging to a single group "".
func (e *Engine) FetchOrderedPair(_ context.Context, table, groupCol, timeCol string) ([]string, []float64, error) {
	t, ok := e.tables[table]
	if !ok {
		return nil, nil, fmt.Errorf("enginetest: unknown table %q", table)
	}

	idxTime := -1

	idxGroup := -1
	if groupCol != "" {
		for i, c := range t.Columns {
			if c == groupCol {
				idxGroup = i
			}
		}

		if idxGroup < 0 {
			return nil, nil, fmt.Errorf("enginetest: unknown column %q", groupCol)
		}
	}

	for i, c := range t.Columns {
		if c == timeCol {
			idxTime = i
		}
	}

	if idxTime < 0 {
		return nil, nil, fmt.Errorf("enginetest: unknown column %q", timeCol)
	}

	var groups []string

	var times []float64

	for _, r := range t.Rows {
		if r[idxTime] == nil {
			continue
		}

		if idxGroup >= 0 {
			if r[idxGroup] == nil {
				continue
			}

			groups = append(groups, fmt.Sprint(r[idxGroup]))
		} else {
			groups = append(groups, "")
		}

		times = append(times, toFloat(r[idxTime]))
	}

	return groups, times, nil
}

// SortedKeys is a small helper for deterministic test assertions over maps.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

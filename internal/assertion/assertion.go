// Package assertion provides pure, total predicates over a single numeric
// metric. Assertions carry no state and perform no I/O: evaluating one is
// always side-effect free and deterministic.
package assertion

import (
	"fmt"
	"math"

	"github.com/withterm/term-sub003/internal/errs"
)

// Assertion is a pure predicate over a float64 metric.
type Assertion interface {
	// Evaluate reports whether metric satisfies this assertion.
	// NaN always evaluates to false, regardless of variant.
	Evaluate(metric float64) bool

	// String returns a human-readable description, used in Issue messages.
	String() string

	// Equal reports whether two assertions are structurally identical.
	Equal(other Assertion) bool
}

type (
	equalsAssertion struct{ value float64 }

	greaterThanAssertion struct{ value float64 }

	greaterThanOrEqualAssertion struct{ value float64 }

	lessThanAssertion struct{ value float64 }

	lessThanOrEqualAssertion struct{ value float64 }

	betweenAssertion struct{ lo, hi float64 }
)

// Equals returns an assertion that metric == value (exact float equality).
func Equals(value float64) Assertion { return equalsAssertion{value} }

// GreaterThan returns an assertion that metric > value.
func GreaterThan(value float64) Assertion { return greaterThanAssertion{value} }

// GreaterThanOrEqual returns an assertion that metric >= value.
func GreaterThanOrEqual(value float64) Assertion { return greaterThanOrEqualAssertion{value} }

// LessThan returns an assertion that metric < value.
func LessThan(value float64) Assertion { return lessThanAssertion{value} }

// LessThanOrEqual returns an assertion that metric <= value.
func LessThanOrEqual(value float64) Assertion { return lessThanOrEqualAssertion{value} }

// Between returns an assertion that lo <= metric <= hi (inclusive).
// Returns errs.ErrConfiguration when lo > hi.
func Between(lo, hi float64) (Assertion, error) {
	if lo > hi {
		return nil, fmt.Errorf("%w: Between(lo=%v, hi=%v): lo must be <= hi", errs.ErrConfiguration, lo, hi)
	}

	return betweenAssertion{lo: lo, hi: hi}, nil
}

// MustBetween is like Between but panics on a reversed range. Intended for
// use in constants/tests where the range is a compile-time literal.
func MustBetween(lo, hi float64) Assertion {
	a, err := Between(lo, hi)
	if err != nil {
		panic(err)
	}

	return a
}

func (a equalsAssertion) Evaluate(metric float64) bool {
	if math.IsNaN(metric) {
		return false
	}

	return metric == a.value
}

func (a equalsAssertion) String() string        { return fmt.Sprintf("== %v", a.value) }
func (a equalsAssertion) Equal(o Assertion) bool { b, ok := o.(equalsAssertion); return ok && b.value == a.value }

func (a greaterThanAssertion) Evaluate(metric float64) bool {
	if math.IsNaN(metric) {
		return false
	}

	return metric > a.value
}

func (a greaterThanAssertion) String() string { return fmt.Sprintf("> %v", a.value) }
func (a greaterThanAssertion) Equal(o Assertion) bool {
	b, ok := o.(greaterThanAssertion)

	return ok && b.value == a.value
}

func (a greaterThanOrEqualAssertion) Evaluate(metric float64) bool {
	if math.IsNaN(metric) {
		return false
	}

	return metric >= a.value
}

func (a greaterThanOrEqualAssertion) String() string { return fmt.Sprintf(">= %v", a.value) }
func (a greaterThanOrEqualAssertion) Equal(o Assertion) bool {
	b, ok := o.(greaterThanOrEqualAssertion)

	return ok && b.value == a.value
}

func (a lessThanAssertion) Evaluate(metric float64) bool {
	if math.IsNaN(metric) {
		return false
	}

	return metric < a.value
}

func (a lessThanAssertion) String() string { return fmt.Sprintf("< %v", a.value) }
func (a lessThanAssertion) Equal(o Assertion) bool {
	b, ok := o.(lessThanAssertion)

	return ok && b.value == a.value
}

func (a lessThanOrEqualAssertion) Evaluate(metric float64) bool {
	if math.IsNaN(metric) {
		return false
	}

	return metric <= a.value
}

func (a lessThanOrEqualAssertion) String() string { return fmt.Sprintf("<= %v", a.value) }
func (a lessThanOrEqualAssertion) Equal(o Assertion) bool {
	b, ok := o.(lessThanOrEqualAssertion)

	return ok && b.value == a.value
}

func (a betweenAssertion) Evaluate(metric float64) bool {
	if math.IsNaN(metric) {
		return false
	}

	return metric >= a.lo && metric <= a.hi
}

func (a betweenAssertion) String() string { return fmt.Sprintf("between %v and %v", a.lo, a.hi) }
func (a betweenAssertion) Equal(o Assertion) bool {
	b, ok := o.(betweenAssertion)

	return ok && b.lo == a.lo && b.hi == a.hi
}

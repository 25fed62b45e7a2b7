package assertion_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withterm/term-sub003/internal/assertion"
)

// TestAssertion_NaNAlwaysFalse covers invariant 1 (assertion totality): every
// assertion variant evaluates NaN to false, regardless of its bound.
func TestAssertion_NaNAlwaysFalse(t *testing.T) {
	between, err := assertion.Between(-1, 1)
	require.NoError(t, err)

	variants := []assertion.Assertion{
		assertion.Equals(0),
		assertion.GreaterThan(0),
		assertion.GreaterThanOrEqual(0),
		assertion.LessThan(0),
		assertion.LessThanOrEqual(0),
		between,
	}

	for _, a := range variants {
		assert.False(t, a.Evaluate(math.NaN()), "%s should reject NaN", a.String())
	}
}

func TestAssertion_Evaluate(t *testing.T) {
	between, err := assertion.Between(1, 3)
	require.NoError(t, err)

	cases := []struct {
		name   string
		a      assertion.Assertion
		metric float64
		want   bool
	}{
		{"equals true", assertion.Equals(5), 5, true},
		{"equals false", assertion.Equals(5), 5.1, false},
		{"greater than", assertion.GreaterThan(5), 6, true},
		{"greater than equal boundary", assertion.GreaterThan(5), 5, false},
		{"gte boundary", assertion.GreaterThanOrEqual(5), 5, true},
		{"less than", assertion.LessThan(5), 4, true},
		{"lte boundary", assertion.LessThanOrEqual(5), 5, true},
		{"between inside", between, 2, true},
		{"between boundary lo", between, 1, true},
		{"between boundary hi", between, 3, true},
		{"between outside", between, 3.1, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.a.Evaluate(tc.metric))
		})
	}
}

func TestBetween_RejectsReversedRange(t *testing.T) {
	_, err := assertion.Between(5, 1)
	require.Error(t, err)
}

func TestBetween_MustBetweenPanicsOnReversedRange(t *testing.T) {
	assert.Panics(t, func() {
		assertion.MustBetween(5, 1)
	})
}

func TestAssertion_EqualDistinguishesVariantAndValue(t *testing.T) {
	a := assertion.GreaterThan(5)
	assert.True(t, a.Equal(assertion.GreaterThan(5)))
	assert.False(t, a.Equal(assertion.GreaterThan(6)))
	assert.False(t, a.Equal(assertion.GreaterThanOrEqual(5)))
}

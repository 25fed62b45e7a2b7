package analyzer

import "fmt"

// Metric is one named scalar an AnalyzerContext holds after a run.
type Metric struct {
	Name   string
	Value  float64
	Vector map[string]int64 // populated instead of Value for histogram-shaped metrics
}

// AnalyzerContext accumulates state and metrics across one or more analyzer
// runs (spec §4.E): a keyed state store plus a keyed metric store and an
// error list for analyzers that failed to compute. Merge unions two
// contexts' keys: a colliding metric is taken from the right-hand
// (incoming) context, matching the "latest write wins" semantics of the
// teacher project's config overlay, while colliding states are combined via
// State.Merge and error lists are concatenated.
type AnalyzerContext struct {
	States  map[string]State
	Metrics map[string]Metric
	Errors  []string
}

// NewContext returns an empty AnalyzerContext.
func NewContext() *AnalyzerContext {
	return &AnalyzerContext{States: map[string]State{}, Metrics: map[string]Metric{}}
}

// Merge unions other into a new AnalyzerContext. States with the same key
// are merged via State.Merge; metrics from other take precedence on key
// collision; errors from c are followed by errors from other.
func (c *AnalyzerContext) Merge(other *AnalyzerContext) (*AnalyzerContext, error) {
	merged := NewContext()

	for k, v := range c.States {
		merged.States[k] = v
	}

	for k, v := range other.States {
		existing, ok := merged.States[k]
		if !ok {
			merged.States[k] = v

			continue
		}

		m, err := existing.Merge(v)
		if err != nil {
			return nil, fmt.Errorf("analyzer context merge: state %q: %w", k, err)
		}

		merged.States[k] = m
	}

	for k, v := range c.Metrics {
		merged.Metrics[k] = v
	}

	for k, v := range other.Metrics {
		merged.Metrics[k] = v
	}

	merged.Errors = append(append([]string{}, c.Errors...), other.Errors...)

	return merged, nil
}

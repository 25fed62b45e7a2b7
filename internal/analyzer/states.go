package analyzer

import (
	"fmt"
	"math"
)

// countState accumulates a simple observation count, used by the Size
// analyzer.
type countState struct {
	Count int64 `json:"count"`
}

func (s *countState) Kind() string { return "count" }

func (s *countState) Merge(other State) (State, error) {
	o, ok := other.(*countState)
	if !ok {
		return nil, fmt.Errorf("analyzer: cannot merge %T into countState", other)
	}

	return &countState{Count: s.Count + o.Count}, nil
}

// ratioState accumulates a numerator/denominator pair, used by the
// Completeness analyzer, whose metric is a ratio of two counts
// that must each be summed independently before dividing (summing the
// ratios directly would not be associative).
type ratioState struct {
	Numerator   int64 `json:"numerator"`
	Denominator int64 `json:"denominator"`
}

func (s *ratioState) Kind() string { return "ratio" }

func (s *ratioState) Merge(other State) (State, error) {
	o, ok := other.(*ratioState)
	if !ok {
		return nil, fmt.Errorf("analyzer: cannot merge %T into ratioState", other)
	}

	return &ratioState{Numerator: s.Numerator + o.Numerator, Denominator: s.Denominator + o.Denominator}, nil
}

// sumState accumulates a running sum and observation count, the basis for
// Sum and Mean analyzers (mean = sum / count).
type sumState struct {
	Sum   float64 `json:"sum"`
	Count int64   `json:"count"`
}

func (s *sumState) Kind() string { return "sum" }

func (s *sumState) Merge(other State) (State, error) {
	o, ok := other.(*sumState)
	if !ok {
		return nil, fmt.Errorf("analyzer: cannot merge %T into sumState", other)
	}

	return &sumState{Sum: s.Sum + o.Sum, Count: s.Count + o.Count}, nil
}

// minMaxState tracks the running minimum and maximum, used by the Min and
// Max analyzers (one state serves both metrics).
type minMaxState struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int64   `json:"count"`
}

func (s *minMaxState) Kind() string { return "min_max" }

func (s *minMaxState) Merge(other State) (State, error) {
	o, ok := other.(*minMaxState)
	if !ok {
		return nil, fmt.Errorf("analyzer: cannot merge %T into minMaxState", other)
	}

	if s.Count == 0 {
		return o, nil
	}

	if o.Count == 0 {
		return s, nil
	}

	return &minMaxState{Min: math.Min(s.Min, o.Min), Max: math.Max(s.Max, o.Max), Count: s.Count + o.Count}, nil
}

// momentState accumulates Welford-style running moments for combining
// variance/stddev across partitions exactly, without re-scanning the
// underlying data (the incremental-equivalence invariant, spec §8.5).
type momentState struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"m2"` // sum of squared deviations from Mean
}

func (s *momentState) Kind() string { return "moment" }

// Merge combines two Welford partial states via the parallel-variance
// algorithm (Chan et al. 1979).
func (s *momentState) Merge(other State) (State, error) {
	o, ok := other.(*momentState)
	if !ok {
		return nil, fmt.Errorf("analyzer: cannot merge %T into momentState", other)
	}

	if s.Count == 0 {
		return o, nil
	}

	if o.Count == 0 {
		return s, nil
	}

	na, nb := float64(s.Count), float64(o.Count)
	delta := o.Mean - s.Mean
	n := na + nb

	mean := s.Mean + delta*nb/n
	m2 := s.M2 + o.M2 + delta*delta*na*nb/n

	return &momentState{Count: s.Count + o.Count, Mean: mean, M2: m2}, nil
}

func (s *momentState) variance() (float64, bool) {
	if s.Count < 2 {
		return 0, false
	}

	return s.M2 / float64(s.Count-1), true
}

// approxDistinctState tracks observed distinct values; this implementation
// uses an exact set rather than an HLL sketch (spec §9 Open Question:
// resolved in DESIGN.md in favor of exactness at in-process scale, with the
// sketch left as a documented future upgrade path behind the same State
// interface).
type approxDistinctState struct {
	Values map[string]struct{} `json:"-"`
	Count  int                 `json:"count"`
}

func (s *approxDistinctState) Kind() string { return "approx_distinct" }

func (s *approxDistinctState) Merge(other State) (State, error) {
	o, ok := other.(*approxDistinctState)
	if !ok {
		return nil, fmt.Errorf("analyzer: cannot merge %T into approxDistinctState", other)
	}

	// Values is nil after a round-trip through the state store (only Count
	// is persisted); fall back to the larger of the two counts rather than
	// reconstruct an exact union we no longer have the members for.
	if s.Values == nil || o.Values == nil {
		count := s.Count
		if o.Count > count {
			count = o.Count
		}

		return &approxDistinctState{Count: count}, nil
	}

	merged := make(map[string]struct{}, len(s.Values)+len(o.Values))
	for v := range s.Values {
		merged[v] = struct{}{}
	}

	for v := range o.Values {
		merged[v] = struct{}{}
	}

	return &approxDistinctState{Values: merged, Count: len(merged)}, nil
}

// histogramState tracks per-bucket counts, used by the Histogram analyzer.
type histogramState struct {
	Buckets map[string]int64 `json:"buckets"`
}

func (s *histogramState) Kind() string { return "histogram" }

func (s *histogramState) Merge(other State) (State, error) {
	o, ok := other.(*histogramState)
	if !ok {
		return nil, fmt.Errorf("analyzer: cannot merge %T into histogramState", other)
	}

	merged := make(map[string]int64, len(s.Buckets)+len(o.Buckets))
	for k, v := range s.Buckets {
		merged[k] += v
	}

	for k, v := range o.Buckets {
		merged[k] += v
	}

	return &histogramState{Buckets: merged}, nil
}

// dataTypeState counts schema-type checks (Total) and how many of them found
// the expected physical type (Matching), for the DataType analyzer's
// consistency metric.
type dataTypeState struct {
	Matching int64 `json:"matching"`
	Total    int64 `json:"total"`
}

func (s *dataTypeState) Kind() string { return "data_type" }

func (s *dataTypeState) Merge(other State) (State, error) {
	o, ok := other.(*dataTypeState)
	if !ok {
		return nil, fmt.Errorf("analyzer: cannot merge %T into dataTypeState", other)
	}

	return &dataTypeState{Matching: s.Matching + o.Matching, Total: s.Total + o.Total}, nil
}

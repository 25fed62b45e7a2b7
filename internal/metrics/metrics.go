// Package metrics defines the wire shape for analyzer/constraint results
// persisted to a Repository and optionally uploaded to a remote metrics
// service (spec §5).
package metrics

import "time"

// ValueKind tags which field of Value is populated.
type ValueKind string

const (
	KindDouble    ValueKind = "double"
	KindLong      ValueKind = "long"
	KindBoolean   ValueKind = "boolean"
	KindString    ValueKind = "string"
	KindVector    ValueKind = "vector"
	KindMap       ValueKind = "map"
	KindHistogram ValueKind = "histogram"
)

// Value is a tagged union over the metric value shapes an analyzer or
// constraint can produce (spec §5, "MetricValue"). Exactly one field
// matching Kind is meaningful.
type Value struct {
	Kind      ValueKind
	Double    float64
	Long      int64
	Boolean   bool
	String    string
	Vector    []float64
	Map       map[string]float64
	Histogram map[string]int64
}

// DoubleValue builds a Value carrying a float64.
func DoubleValue(v float64) Value { return Value{Kind: KindDouble, Double: v} }

// LongValue builds a Value carrying an int64.
func LongValue(v int64) Value { return Value{Kind: KindLong, Long: v} }

// BooleanValue builds a Value carrying a bool.
func BooleanValue(v bool) Value { return Value{Kind: KindBoolean, Boolean: v} }

// StringValue builds a Value carrying a string.
func StringValue(v string) Value { return Value{Kind: KindString, String: v} }

// VectorValue builds a Value carrying a float64 slice.
func VectorValue(v []float64) Value { return Value{Kind: KindVector, Vector: v} }

// MapValue builds a Value carrying a string-to-float64 map.
func MapValue(v map[string]float64) Value { return Value{Kind: KindMap, Map: v} }

// HistogramValue builds a Value carrying bucket counts.
func HistogramValue(v map[string]int64) Value { return Value{Kind: KindHistogram, Histogram: v} }

// ValidationResultKind mirrors constraint.Status without importing the
// constraint package, keeping metrics a leaf dependency (spec §5 keeps the
// wire shape independent of the evaluation engine's internal types).
type ValidationResultKind string

const (
	ValidationSuccess ValidationResultKind = "success"
	ValidationFailure ValidationResultKind = "failure"
	ValidationSkipped ValidationResultKind = "skipped"
)

// Document is the persisted/uploaded unit: one result and its metrics, keyed
// for repository storage and retrieval (spec §5, "MetricDocument").
type Document struct {
	ResultKey        string
	Table            string
	CheckName        string
	ConstraintName   string
	RunID            string
	Timestamp        time.Time
	Metrics          map[string]Value
	Metadata         map[string]string
	ValidationResult ValidationResultKind
	Message          string
	Tags             []string
}

package repository

import (
	"sort"
	"time"

	"github.com/withterm/term-sub003/internal/metrics"
)

// Order selects ascending or descending sort order for Query.Execute.
type Order int

const (
	// OrderAscending sorts oldest timestamp first.
	OrderAscending Order = iota
	// OrderDescending sorts newest timestamp first.
	OrderDescending
)

// Query is a fluent builder over an InMemory repository's documents (spec
// §5): after/before bound the Timestamp, withTag filters on Tags, limit caps
// the result count, and order controls sort direction.
type Query struct {
	repo   *InMemory
	after  *time.Time
	before *time.Time
	tag    string
	limit  int
	order  Order
}

// NewQuery builds a Query over repo.
func NewQuery(repo *InMemory) *Query {
	return &Query{repo: repo, order: OrderDescending}
}

// After restricts results to documents timestamped strictly after t.
func (q *Query) After(t time.Time) *Query {
	q.after = &t

	return q
}

// Before restricts results to documents timestamped strictly before t.
func (q *Query) Before(t time.Time) *Query {
	q.before = &t

	return q
}

// WithTag restricts results to documents carrying tag.
func (q *Query) WithTag(tag string) *Query {
	q.tag = tag

	return q
}

// Limit caps the number of documents Execute returns, 0 meaning unbounded.
func (q *Query) Limit(n int) *Query {
	q.limit = n

	return q
}

// OrderBy sets the sort order Execute applies before truncating to Limit.
func (q *Query) OrderBy(o Order) *Query {
	q.order = o

	return q
}

// Execute evaluates the query against the repository's current contents.
func (q *Query) Execute() ([]metrics.Document, error) {
	docs := q.repo.all()

	filtered := make([]metrics.Document, 0, len(docs))

	for _, d := range docs {
		if q.after != nil && !d.Timestamp.After(*q.after) {
			continue
		}

		if q.before != nil && !d.Timestamp.Before(*q.before) {
			continue
		}

		if q.tag != "" && !hasTag(d.Tags, q.tag) {
			continue
		}

		filtered = append(filtered, d)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if q.order == OrderAscending {
			return filtered[i].Timestamp.Before(filtered[j].Timestamp)
		}

		return filtered[i].Timestamp.After(filtered[j].Timestamp)
	})

	if q.limit > 0 && len(filtered) > q.limit {
		filtered = filtered[:q.limit]
	}

	return filtered, nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}

	return false
}

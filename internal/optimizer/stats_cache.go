package optimizer

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/withterm/term-sub003/internal/config"
	"github.com/withterm/term-sub003/internal/constraint"
)

// StatsKey identifies one cached aggregate scalar: a table, a column (empty
// for COUNT(*)), an aggregation type, and an optional predicate fragment for
// constraints whose aggregate is conditioned on a WHERE clause.
type StatsKey struct {
	Table     string
	Column    string
	Type      constraint.AggregationType
	Predicate string
}

type statsEntry struct {
	value    float64
	isNull   bool
	cachedAt time.Time
}

// StatsCache is a time- and size-bounded cache of previously computed
// aggregate scalars, letting repeated suite runs against an unchanged table
// skip re-querying the engine within the TTL window (spec §4.F, §6).
type StatsCache struct {
	mu    sync.Mutex
	lru   *lru.Cache[StatsKey, statsEntry]
	ttl   time.Duration
	hits  int
	misses int
}

// NewStatsCache builds a StatsCache from cfg (falling back to config
// defaults for zero fields).
func NewStatsCache(cfg config.OptimizerConfig) *StatsCache {
	size := cfg.StatsCacheSize
	if size <= 0 {
		size = 1024
	}

	ttl := cfg.StatsCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	c, _ := lru.New[StatsKey, statsEntry](size)

	return &StatsCache{lru: c, ttl: ttl}
}

// Get returns a cached scalar for key if present and not expired.
func (c *StatsCache) Get(key StatsKey) (value float64, isNull bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, found := c.lru.Get(key)
	if !found || time.Since(entry.cachedAt) > c.ttl {
		c.misses++

		return 0, false, false
	}

	c.hits++

	return entry.value, entry.isNull, true
}

// Put caches value under key, timestamped now.
func (c *StatsCache) Put(key StatsKey, value float64, isNull bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(key, statsEntry{value: value, isNull: isNull, cachedAt: time.Now()})
}

// Stats summarizes cache effectiveness for the explain plan / observability.
type Stats struct {
	Hits    int
	Misses  int
	Entries int
}

// Stats returns the current hit/miss/size counters.
func (c *StatsCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{Hits: c.hits, Misses: c.misses, Entries: c.lru.Len()}
}

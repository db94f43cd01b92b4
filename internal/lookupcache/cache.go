// Package lookupcache memoizes expensive external lookups per normalized key
// and caps how many fresh lookups each caller may trigger per calendar day.
//
// Misses and exhausted quota are ordinary return values, never errors. The
// quota check and the quota increment are separate calls; TryConsume offers
// an atomic alternative for callers that must not exceed the limit under
// concurrency.
package lookupcache

import (
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/text/cases"
)

const (
	defaultDailyLimit = 5
	defaultTimezone   = "Asia/Seoul"
	periodLayout      = "2006-01-02"
)

// Clock returns the current instant. Tests substitute a virtual clock.
type Clock func() time.Time

// Options configures a Cache.
type Options struct {
	// DailyLimit is the number of fresh lookups allowed per caller per day.
	DailyLimit int
	// Location fixes the timezone used to derive the period key.
	Location *time.Location
	Clock    Clock
}

// QuotaStatus is the result of a quota check.
type QuotaStatus struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
}

// Stats are cumulative counters since construction.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// Cache combines a TTL cache with a per-caller daily quota.
type Cache[V any] struct {
	entries CacheStore[V]
	quotas  QuotaStore
	limit   int
	loc     *time.Location
	now     Clock

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New builds a Cache over the injected stores. Nil stores are replaced by
// in-memory ones.
func New[V any](entries CacheStore[V], quotas QuotaStore, opts Options) *Cache[V] {
	if entries == nil {
		entries = NewMemoryCacheStore[V]()
	}
	if quotas == nil {
		quotas = NewMemoryQuotaStore()
	}
	limit := opts.DailyLimit
	if limit <= 0 {
		limit = defaultDailyLimit
	}
	loc := opts.Location
	if loc == nil {
		loc = LoadLocation(defaultTimezone)
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{entries: entries, quotas: quotas, limit: limit, loc: loc, now: now}
}

// LoadLocation resolves an IANA zone name, falling back to a fixed UTC+9
// zone when the tz database is unavailable.
func LoadLocation(name string) *time.Location {
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	if name == defaultTimezone {
		return time.FixedZone("KST", 9*60*60)
	}
	return time.UTC
}

// NormalizeKey trims and case-folds a lookup key.
func NormalizeKey(key string) string {
	return cases.Fold().String(strings.TrimSpace(key))
}

// Get returns the cached value for key while it is unexpired. An expired
// entry is removed and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	k := NormalizeKey(key)
	entry, ok := c.entries.Load(k)
	if !ok {
		c.misses.Add(1)
		return zero, false
	}
	if !c.now().Before(entry.ExpiresAt) {
		c.entries.Delete(k)
		c.evictions.Add(1)
		c.misses.Add(1)
		return zero, false
	}
	c.hits.Add(1)
	return entry.Value, true
}

// Put stores value under the normalized key, overwriting any prior entry.
func (c *Cache[V]) Put(key string, value V, ttl time.Duration) {
	k := NormalizeKey(key)
	c.entries.Store(Entry[V]{Key: k, Value: value, ExpiresAt: c.now().Add(ttl), TTL: ttl})
}

// Invalidate drops the entry for key, if any.
func (c *Cache[V]) Invalidate(key string) {
	c.entries.Delete(NormalizeKey(key))
}

// Stats returns a snapshot of hit/miss counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Evictions: c.evictions.Load()}
}

// DailyLimit returns the configured per-caller limit.
func (c *Cache[V]) DailyLimit() int {
	return c.limit
}

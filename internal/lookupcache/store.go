package lookupcache

import (
	"sync"
	"time"
)

// Entry is a cached lookup result. It is readable only while now < ExpiresAt.
// TTL is the lifetime Put was given; stores with their own expiry use it
// instead of reading a clock.
type Entry[V any] struct {
	Key       string        `json:"key"`
	Value     V             `json:"value"`
	ExpiresAt time.Time     `json:"expires_at"`
	TTL       time.Duration `json:"-"`
}

// Counter tracks how many fresh lookups a caller triggered in one period.
type Counter struct {
	CallerID  string `json:"caller_id"`
	Count     int    `json:"count"`
	PeriodKey string `json:"period_key"`
}

// CacheStore persists cache entries keyed by their normalized key.
type CacheStore[V any] interface {
	Load(key string) (Entry[V], bool)
	Store(entry Entry[V])
	Delete(key string)
}

// QuotaStore persists per-caller counters. Increment and IncrementIfBelow
// must reset the count to zero first when the stored period differs from
// periodKey. Release gives one unit back only within the same period and
// never below zero.
type QuotaStore interface {
	Load(callerID string) (Counter, bool)
	Increment(callerID, periodKey string) Counter
	IncrementIfBelow(callerID, periodKey string, limit int) (Counter, bool)
	Release(callerID, periodKey string) Counter
}

// MemoryCacheStore is a mutex-guarded map implementation of CacheStore.
type MemoryCacheStore[V any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[V]
}

// NewMemoryCacheStore returns an empty in-process cache store.
func NewMemoryCacheStore[V any]() *MemoryCacheStore[V] {
	return &MemoryCacheStore[V]{entries: make(map[string]Entry[V])}
}

func (s *MemoryCacheStore[V]) Load(key string) (Entry[V], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

func (s *MemoryCacheStore[V]) Store(entry Entry[V]) {
	s.mu.Lock()
	s.entries[entry.Key] = entry
	s.mu.Unlock()
}

func (s *MemoryCacheStore[V]) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Len reports the number of stored entries, expired ones included.
func (s *MemoryCacheStore[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// MemoryQuotaStore is a mutex-guarded map implementation of QuotaStore.
type MemoryQuotaStore struct {
	mu       sync.Mutex
	counters map[string]Counter
}

// NewMemoryQuotaStore returns an empty in-process quota store.
func NewMemoryQuotaStore() *MemoryQuotaStore {
	return &MemoryQuotaStore{counters: make(map[string]Counter)}
}

func (s *MemoryQuotaStore) Load(callerID string) (Counter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[callerID]
	return c, ok
}

func (s *MemoryQuotaStore) Increment(callerID, periodKey string) Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.current(callerID, periodKey)
	c.Count++
	s.counters[callerID] = c
	return c
}

func (s *MemoryQuotaStore) IncrementIfBelow(callerID, periodKey string, limit int) (Counter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.current(callerID, periodKey)
	if c.Count >= limit {
		return c, false
	}
	c.Count++
	s.counters[callerID] = c
	return c, true
}

func (s *MemoryQuotaStore) Release(callerID, periodKey string) Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.current(callerID, periodKey)
	if c.Count > 0 {
		c.Count--
		s.counters[callerID] = c
	}
	return c
}

// current must be called with mu held.
func (s *MemoryQuotaStore) current(callerID, periodKey string) Counter {
	c, ok := s.counters[callerID]
	if !ok || c.PeriodKey != periodKey {
		return Counter{CallerID: callerID, PeriodKey: periodKey}
	}
	return c
}

var (
	_ CacheStore[string] = (*MemoryCacheStore[string])(nil)
	_ QuotaStore         = (*MemoryQuotaStore)(nil)
)

package lookupcache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisQuotaIncrementIfBelow(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisQuotaStore(client, RedisOptions{Prefix: "t"})

	for i := 1; i <= 2; i++ {
		c, ok := store.IncrementIfBelow("u", "2026-03-02", 2)
		if !ok || c.Count != i {
			t.Fatalf("increment %d = %+v, %v", i, c, ok)
		}
	}
	if c, ok := store.IncrementIfBelow("u", "2026-03-02", 2); ok || c.Count != 2 {
		t.Fatalf("increment past limit = %+v, %v", c, ok)
	}
	if ttl := mr.TTL("t:quota:u"); ttl != quotaKeyTTL {
		t.Fatalf("quota key ttl = %v, want %v", ttl, quotaKeyTTL)
	}

	c, ok := store.IncrementIfBelow("u", "2026-03-03", 2)
	if !ok || c.Count != 1 {
		t.Fatalf("increment after period change = %+v, %v", c, ok)
	}
	loaded, ok := store.Load("u")
	if !ok || loaded != (Counter{CallerID: "u", Count: 1, PeriodKey: "2026-03-03"}) {
		t.Fatalf("Load = %+v, %v", loaded, ok)
	}
	if _, ok := store.Load("nobody"); ok {
		t.Fatalf("Load of unknown caller should miss")
	}
}

func TestRedisQuotaIncrementIgnoresLimit(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisQuotaStore(client, RedisOptions{Prefix: "t"})
	var c Counter
	for i := 0; i < 4; i++ {
		c = store.Increment("u", "2026-03-02")
	}
	if c.Count != 4 {
		t.Fatalf("count = %d, want 4", c.Count)
	}
}

func TestRedisQuotaRelease(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisQuotaStore(client, RedisOptions{Prefix: "t"})

	if c := store.Release("u", "2026-03-02"); c.Count != 0 {
		t.Fatalf("release of missing counter = %+v", c)
	}
	store.Increment("u", "2026-03-02")
	store.Increment("u", "2026-03-02")
	if c := store.Release("u", "2026-03-02"); c.Count != 1 {
		t.Fatalf("release = %+v, want count 1", c)
	}
	store.Release("u", "2026-03-03")
	if loaded, _ := store.Load("u"); loaded.Count != 1 || loaded.PeriodKey != "2026-03-02" {
		t.Fatalf("release for another period changed the counter: %+v", loaded)
	}
	store.Release("u", "2026-03-02")
	if c := store.Release("u", "2026-03-02"); c.Count != 0 {
		t.Fatalf("release below zero = %+v", c)
	}
}

func TestRedisCacheStoreExpiryFollowsTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisCacheStore[string](client, RedisOptions{Prefix: "t"})
	// a virtual clock far in the past must not shorten the Redis expiry
	clock := newFakeClock(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	c := New[string](store, nil, Options{Clock: clock.Now})

	c.Put(" React ", "report", 10*time.Minute)
	if ttl := mr.TTL("t:entry:react"); ttl != 11*time.Minute {
		t.Fatalf("entry ttl = %v, want 11m", ttl)
	}
	if got, ok := c.Get("react"); !ok || got != "report" {
		t.Fatalf("Get = %q, %v", got, ok)
	}

	clock.Advance(10 * time.Minute)
	if _, ok := c.Get("react"); ok {
		t.Fatalf("expected miss once the virtual clock passes the TTL")
	}
	if mr.Exists("t:entry:react") {
		t.Fatalf("expired entry should be deleted on read")
	}
}

func TestRedisCacheWithQuota(t *testing.T) {
	_, client := newTestRedis(t)
	clock := newFakeClock(time.Date(2026, 3, 2, 10, 0, 0, 0, LoadLocation("Asia/Seoul")))
	c := New[string](
		NewRedisCacheStore[string](client, RedisOptions{Prefix: "t"}),
		NewRedisQuotaStore(client, RedisOptions{Prefix: "t"}),
		Options{DailyLimit: 1, Location: LoadLocation("Asia/Seoul"), Clock: clock.Now},
	)

	if got := c.TryConsume("ann"); got != (QuotaStatus{Allowed: true, Remaining: 0}) {
		t.Fatalf("first TryConsume = %+v", got)
	}
	if got := c.TryConsume("ann"); got.Allowed {
		t.Fatalf("second TryConsume should be refused: %+v", got)
	}
	if got := c.RefundQuota("ann"); got != (QuotaStatus{Allowed: true, Remaining: 1}) {
		t.Fatalf("RefundQuota = %+v", got)
	}
	if got := c.CheckQuota("ann"); !got.Allowed {
		t.Fatalf("CheckQuota after refund = %+v", got)
	}

	clock.Advance(14 * time.Hour)
	c.ConsumeQuota("ann")
	if got := c.CheckQuota("ann"); got.Allowed {
		t.Fatalf("consume on the new day should exhaust the limit: %+v", got)
	}
}

func TestRedisOutageFailsClosed(t *testing.T) {
	mr, client := newTestRedis(t)
	c := New[string](
		NewRedisCacheStore[string](client, RedisOptions{Prefix: "t", OpTimeout: 200 * time.Millisecond}),
		NewRedisQuotaStore(client, RedisOptions{Prefix: "t", OpTimeout: 200 * time.Millisecond}),
		Options{DailyLimit: 5},
	)
	c.Put("react", "report", time.Hour)
	mr.Close()

	if _, ok := c.Get("react"); ok {
		t.Fatalf("Get during outage should miss")
	}
	if got := c.TryConsume("ann"); got.Allowed {
		t.Fatalf("TryConsume during outage should refuse: %+v", got)
	}
}

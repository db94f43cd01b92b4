package lookupcache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultRedisTimeout = 2 * time.Second
	quotaKeyTTL         = 48 * time.Hour
)

// incrementScript resets the hash when the stored period differs, refuses to
// go past ARGV[2] unless it is negative, and returns {count, incremented}.
var incrementScript = redis.NewScript(`
local period = redis.call('HGET', KEYS[1], 'period')
local count = 0
if period == ARGV[1] then
  count = tonumber(redis.call('HGET', KEYS[1], 'count')) or 0
end
local limit = tonumber(ARGV[2])
if limit >= 0 and count >= limit then
  return {count, 0}
end
count = count + 1
redis.call('HSET', KEYS[1], 'period', ARGV[1], 'count', count)
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[3]))
return {count, 1}
`)

// releaseScript decrements the count when the stored period equals ARGV[1]
// and the count is positive, and returns the resulting count.
var releaseScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'period') ~= ARGV[1] then
  return 0
end
local count = tonumber(redis.call('HGET', KEYS[1], 'count')) or 0
if count > 0 then
  count = redis.call('HINCRBY', KEYS[1], 'count', -1)
end
return count
`)

// RedisOptions configures the Redis-backed stores.
type RedisOptions struct {
	Prefix    string
	OpTimeout time.Duration
	Logger    *zerolog.Logger
}

type redisBase struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
	logger  zerolog.Logger
}

func newRedisBase(client redis.UniversalClient, opts RedisOptions) redisBase {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "lookupcache"
	}
	timeout := opts.OpTimeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return redisBase{client: client, prefix: prefix, timeout: timeout, logger: logger}
}

func (b redisBase) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), b.timeout)
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// RedisCacheStore implements CacheStore on Redis so several API processes
// share cached lookups. Transport errors are logged and surface as a miss.
type RedisCacheStore[V any] struct {
	redisBase
}

// NewRedisCacheStore wraps an existing client.
func NewRedisCacheStore[V any](client redis.UniversalClient, opts RedisOptions) *RedisCacheStore[V] {
	return &RedisCacheStore[V]{redisBase: newRedisBase(client, opts)}
}

func (s *RedisCacheStore[V]) key(key string) string {
	return s.prefix + ":entry:" + key
}

func (s *RedisCacheStore[V]) Load(key string) (Entry[V], bool) {
	ctx, cancel := s.ctx()
	defer cancel()
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Str("key", key).Msg("lookupcache: redis get failed")
		}
		return Entry[V]{}, false
	}
	var entry Entry[V]
	if err := json.Unmarshal(raw, &entry); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("lookupcache: decode entry failed")
		return Entry[V]{}, false
	}
	return entry, true
}

// Store writes the entry with a Redis expiry one minute past its TTL, so the
// lazy check in Cache.Get stays authoritative.
func (s *RedisCacheStore[V]) Store(entry Entry[V]) {
	raw, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", entry.Key).Msg("lookupcache: encode entry failed")
		return
	}
	ttl := max(entry.TTL, 0) + time.Minute
	ctx, cancel := s.ctx()
	defer cancel()
	if err := s.client.Set(ctx, s.key(entry.Key), raw, ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", entry.Key).Msg("lookupcache: redis set failed")
	}
}

func (s *RedisCacheStore[V]) Delete(key string) {
	ctx, cancel := s.ctx()
	defer cancel()
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("lookupcache: redis del failed")
	}
}

// RedisQuotaStore implements QuotaStore on Redis hashes. Increments run as a
// Lua script so the period reset and the limit check are atomic.
type RedisQuotaStore struct {
	redisBase
}

// NewRedisQuotaStore wraps an existing client.
func NewRedisQuotaStore(client redis.UniversalClient, opts RedisOptions) *RedisQuotaStore {
	return &RedisQuotaStore{redisBase: newRedisBase(client, opts)}
}

func (s *RedisQuotaStore) key(callerID string) string {
	return s.prefix + ":quota:" + callerID
}

func (s *RedisQuotaStore) Load(callerID string) (Counter, bool) {
	ctx, cancel := s.ctx()
	defer cancel()
	fields, err := s.client.HGetAll(ctx, s.key(callerID)).Result()
	if err != nil {
		s.logger.Warn().Err(err).Str("caller_id", callerID).Msg("lookupcache: redis hgetall failed")
		return Counter{}, false
	}
	period, ok := fields["period"]
	if !ok {
		return Counter{}, false
	}
	count, _ := strconv.Atoi(fields["count"])
	return Counter{CallerID: callerID, Count: count, PeriodKey: period}, true
}

func (s *RedisQuotaStore) Increment(callerID, periodKey string) Counter {
	c, _ := s.run(callerID, periodKey, -1)
	return c
}

func (s *RedisQuotaStore) IncrementIfBelow(callerID, periodKey string, limit int) (Counter, bool) {
	return s.run(callerID, periodKey, limit)
}

func (s *RedisQuotaStore) Release(callerID, periodKey string) Counter {
	ctx, cancel := s.ctx()
	defer cancel()
	count, err := releaseScript.Run(ctx, s.client, []string{s.key(callerID)}, periodKey).Int()
	if err != nil {
		s.logger.Warn().Err(err).Str("caller_id", callerID).Msg("lookupcache: redis quota release failed")
		return Counter{CallerID: callerID, PeriodKey: periodKey}
	}
	return Counter{CallerID: callerID, Count: count, PeriodKey: periodKey}
}

func (s *RedisQuotaStore) run(callerID, periodKey string, limit int) (Counter, bool) {
	ctx, cancel := s.ctx()
	defer cancel()
	res, err := incrementScript.Run(ctx, s.client, []string{s.key(callerID)},
		periodKey, limit, int(quotaKeyTTL.Seconds())).Int64Slice()
	if err != nil || len(res) != 2 {
		s.logger.Warn().Err(err).Str("caller_id", callerID).Msg("lookupcache: redis quota script failed")
		return Counter{CallerID: callerID, PeriodKey: periodKey}, false
	}
	return Counter{CallerID: callerID, Count: int(res[0]), PeriodKey: periodKey}, res[1] == 1
}

var (
	_ CacheStore[string] = (*RedisCacheStore[string])(nil)
	_ QuotaStore         = (*RedisQuotaStore)(nil)
)

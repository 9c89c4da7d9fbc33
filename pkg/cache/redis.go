package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix is prepended to every Redis key written by a RedisStore.
const KeyPrefix = "mcache"

// RedisOpener opens Redis-backed stores. Stores are reused per name.
type RedisOpener struct {
	redis *redis.Client

	mu     sync.Mutex
	stores map[string]*RedisStore
}

// NewRedisOpener creates a new opener with Redis backend.
func NewRedisOpener(redisClient *redis.Client) *RedisOpener {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisOpener{
		redis:  redisClient,
		stores: make(map[string]*RedisStore),
	}
}

// Open returns the store for name. The first open of a name pings Redis and
// fails with ErrStoreUnavailable when it cannot be reached.
func (o *RedisOpener) Open(ctx context.Context, name string) (Store, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if s, ok := o.stores[name]; ok {
		return s, nil
	}

	if err := o.redis.Ping(ctx).Err(); err != nil {
		CacheErrors.WithLabelValues(name, "open").Inc()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s := &RedisStore{
		redis: o.redis,
		name:  name,
	}
	o.stores[name] = s
	return s, nil
}

// Ping checks the Redis connection.
func (o *RedisOpener) Ping(ctx context.Context) error {
	return o.redis.Ping(ctx).Err()
}

// RedisStore keeps each record as a JSON string and tracks insertion order
// in a sorted set scored by a per-store sequence counter.
type RedisStore struct {
	redis *redis.Client
	name  string
}

// Name returns the store name.
func (s *RedisStore) Name() string {
	return s.name
}

func (s *RedisStore) recordKey(key string) string {
	return fmt.Sprintf("%s:%s:rec:%s", KeyPrefix, s.name, key)
}

func (s *RedisStore) orderKey() string {
	return fmt.Sprintf("%s:%s:order", KeyPrefix, s.name)
}

func (s *RedisStore) seqKey() string {
	return fmt.Sprintf("%s:%s:seq", KeyPrefix, s.name)
}

// Get retrieves a record by key.
// Returns ErrCacheMiss if the key doesn't exist.
func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.recordKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues(s.name).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues(s.name, "get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		CacheErrors.WithLabelValues(s.name, "get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.WithLabelValues(s.name).Inc()
	return &rec, nil
}

// Put stores a record and moves key to the newest position.
func (s *RedisStore) Put(ctx context.Context, key string, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("cache record cannot be nil")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		CacheErrors.WithLabelValues(s.name, "put").Inc()
		return fmt.Errorf("marshal cache record: %w", err)
	}

	seq, err := s.redis.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		CacheErrors.WithLabelValues(s.name, "put").Inc()
		return fmt.Errorf("redis incr: %w", err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(key), data, 0)
		pipe.ZAdd(ctx, s.orderKey(), redis.Z{Score: float64(seq), Member: key})
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues(s.name, "put").Inc()
		return fmt.Errorf("redis put: %w", err)
	}

	StoredBytes.WithLabelValues(s.name).Add(float64(len(rec.Data)))
	return nil
}

// Delete removes a record. Deleting a missing key returns false.
func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	var del *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.recordKey(key))
		pipe.ZRem(ctx, s.orderKey(), key)
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues(s.name, "delete").Inc()
		return false, fmt.Errorf("redis del: %w", err)
	}

	return del.Val() > 0, nil
}

// Keys lists all keys, oldest first.
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.redis.ZRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		CacheErrors.WithLabelValues(s.name, "keys").Inc()
		return nil, fmt.Errorf("redis zrange: %w", err)
	}
	return keys, nil
}

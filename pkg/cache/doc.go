// Package cache provides the response store used by the media cache proxy.
//
// The package covers everything below the controllers:
//
// - Record, a fully buffered HTTP response identified by its cache key
// - Normalize, which strips the query string from a resource URL
// - Store and Opener, a named key->record store with insertion order
// - RedisOpener and MemoryOpener, the two Store backends
// - Evict, the FIFO count-limit eviction policy
// - RangeResponse, which answers byte-range requests from a cached body
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	opener := cache.NewRedisOpener(redisClient)
//	store, err := opener.Open(ctx, "audio-cache")
//	if err != nil {
//		return err
//	}
//
//	key := cache.Normalize("https://media.example.com/track.mp3?token=abc")
//
//	rec, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from upstream
//	}
//
// # Storing Responses
//
//	rec, err := cache.ResponseToRecord(resp)
//	if err != nil {
//		return err
//	}
//	if err := store.Put(ctx, key, rec); err != nil {
//		return err
//	}
//
//	// Keep at most 50 entries, oldest first out.
//	cache.Evict(ctx, store, 50, func(key string) {
//		log.Debug().Str("key", key).Msg("evicted")
//	})
//
// # Range Requests
//
//	resp := cache.RangeResponse(rec, req.Header.Get("Range"))
//
// # Metrics
//
//   - media_cache_hits_total{store}
//   - media_cache_misses_total{store}
//   - media_cache_evictions_total{store}
//   - media_cache_stored_bytes_total{store}
//   - media_cache_errors_total{store, operation}
package cache

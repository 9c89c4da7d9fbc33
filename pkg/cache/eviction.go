package cache

import (
	"context"
	"fmt"
)

// Evict trims store to at most limit entries by removing the oldest-inserted
// keys. onDelete fires once for every key that was actually deleted; keys
// already removed by a concurrent deletion are skipped silently.
//
// It returns the number of deleted keys. Deletion continues past individual
// delete failures; the first failure is returned.
func Evict(ctx context.Context, store Store, limit int, onDelete func(key string)) (int, error) {
	keys, err := store.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list keys: %w", err)
	}

	excess := len(keys) - limit
	if excess <= 0 {
		return 0, nil
	}

	var (
		deleted  int
		firstErr error
	)
	for _, key := range keys[:excess] {
		ok, err := store.Delete(ctx, key)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("delete %s: %w", key, err)
			}
			continue
		}
		if !ok {
			continue
		}

		deleted++
		CacheEvictions.WithLabelValues(store.Name()).Inc()
		if onDelete != nil {
			onDelete(key)
		}
	}

	return deleted, firstErr
}

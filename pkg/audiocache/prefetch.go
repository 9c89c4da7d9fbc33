package audiocache

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/Sternrassler/media-cache-proxy/pkg/broadcast"
	"github.com/Sternrassler/media-cache-proxy/pkg/cache"
	"github.com/Sternrassler/media-cache-proxy/pkg/client"
)

// Prefetch starts HandlePrefetch in the background and returns immediately.
func (c *Controller) Prefetch(msg PrefetchRequest) {
	c.tasks.Go("prefetch "+msg.URL, func(ctx context.Context) {
		c.HandlePrefetch(ctx, msg)
	})
}

// HandlePrefetch fetches msg.URL into the store unless a fetch for it is
// already in flight. It blocks until the prefetch settles, broadcasts the
// outcome and returns the broadcast event. Aborted prefetches broadcast
// nothing and return nil; a deadline expiring on ctx is a failure, not an
// abort.
func (c *Controller) HandlePrefetch(ctx context.Context, msg PrefetchRequest) broadcast.Event {
	key := cache.Normalize(msg.URL)
	ref := broadcast.Ref{CachedURL: key, OriginalURL: msg.URL}

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !c.queue.TryAdd(key, cancel, false, msg.FolderPosition) {
		c.logger.Debug().Str("key", key).Msg("Prefetch skipped, already in flight")
		prefetchTotal.WithLabelValues("skipped").Inc()
		ev := broadcast.Skipped{Ref: ref}
		c.sink.Send(ev)
		return ev
	}
	defer c.queue.Remove(key)

	store, err := c.prefetch(fetchCtx, key, msg.URL)
	if err != nil {
		if aborted(fetchCtx, err) {
			c.logger.Debug().Str("key", key).Msg("Prefetch aborted")
			abortedTotal.WithLabelValues("prefetch").Inc()
			prefetchTotal.WithLabelValues("aborted").Inc()
			return nil
		}
		c.logger.Warn().Err(err).Str("key", key).Msg("Prefetch failed")
		prefetchTotal.WithLabelValues("error").Inc()
		ev := broadcast.PrefetchError{Ref: ref, Err: err}
		c.sink.Send(ev)
		return ev
	}

	prefetchTotal.WithLabelValues("cached").Inc()
	ev := broadcast.PrefetchCached{Ref: ref}
	c.sink.Send(ev)
	c.evict(context.WithoutCancel(ctx), store)
	return ev
}

// aborted reports whether err ended a fetch on ctx by cancellation.
// Deadlines count as failures.
func aborted(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return errors.Is(context.Cause(ctx), context.Canceled)
	}
	return client.IsAbort(err)
}

// prefetch downloads url and stores it under key.
func (c *Controller) prefetch(ctx context.Context, key, url string) (cache.Store, error) {
	logger := c.logger.With().Str("key", key).Str("fetch_id", uuid.NewString()).Logger()

	store, err := c.opener.Open(ctx, c.cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	req, err := client.NewRequest(ctx, url)
	if err != nil {
		return nil, err
	}

	resp, err := c.fetcher.DoBackground(req)
	if err != nil {
		return nil, err
	}

	rec, err := cache.ResponseToRecord(resp)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	rec.URL = url

	if err := store.Put(ctx, key, rec); err != nil {
		return nil, fmt.Errorf("store response: %w", err)
	}
	logger.Info().Str("size", humanize.Bytes(uint64(rec.Size()))).Msg("Prefetched media response")
	return store, nil
}

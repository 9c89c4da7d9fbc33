// Package audiocache implements the cache controller for media streams.
//
// A request is served from the named store when possible, synthesizing a
// partial response for byte-range requests. On a miss the full resource is
// fetched once, streamed to the caller and stored in the background. Fetches
// are deduplicated through a request queue; a second request for a URL that
// is already in flight bypasses the cache entirely.
package audiocache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/media-cache-proxy/pkg/broadcast"
	"github.com/Sternrassler/media-cache-proxy/pkg/cache"
	"github.com/Sternrassler/media-cache-proxy/pkg/client"
	"github.com/Sternrassler/media-cache-proxy/pkg/queue"
	"github.com/Sternrassler/media-cache-proxy/pkg/tasks"
)

// SequenceHeader carries the optional position of a request within its
// playback folder.
const SequenceHeader = "X-Sequence-Position"

// Fetcher performs upstream fetches. *client.Client implements it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
	DoBackground(req *http.Request) (*http.Response, error)
}

// Config holds the controller configuration.
type Config struct {
	// Name of the cache store
	Name string

	// Limit is the maximum number of stored entries
	Limit int
}

// PrefetchRequest asks the controller to warm the cache for URL.
type PrefetchRequest struct {
	URL            string `json:"url"`
	FolderPosition *int   `json:"folderPosition,omitempty"`
}

// Controller serves intercepted media requests and runs background
// prefetches. One controller exists per store name; it owns its queue.
type Controller struct {
	cfg     Config
	opener  cache.Opener
	fetcher Fetcher
	queue   *queue.Queue
	sink    broadcast.Sink
	tasks   *tasks.Group
	logger  zerolog.Logger
}

// New creates a controller. Background work runs in group, which the caller
// must keep alive until it settles.
func New(cfg Config, opener cache.Opener, fetcher Fetcher, sink broadcast.Sink, group *tasks.Group) (*Controller, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("store name is required")
	}
	if cfg.Limit < 1 {
		return nil, fmt.Errorf("limit must be >= 1 (got %d)", cfg.Limit)
	}
	if opener == nil || fetcher == nil || group == nil {
		return nil, fmt.Errorf("opener, fetcher and task group are required")
	}
	if sink == nil {
		sink = broadcast.Discard
	}

	return &Controller{
		cfg:     cfg,
		opener:  opener,
		fetcher: fetcher,
		queue:   queue.New(),
		sink:    sink,
		tasks:   group,
		logger:  log.With().Str("component", "audio-cache").Str("store", cfg.Name).Logger(),
	}, nil
}

// HandleRequest serves an intercepted media request. req must be ready to
// send upstream. It never returns nil: failures are reported as a
// client.StatusSyntheticError response. The caller must close the response
// body.
func (c *Controller) HandleRequest(req *http.Request) (resp *http.Response) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Str("url", req.URL.Redacted()).Msg("Media request panicked")
			requestsTotal.WithLabelValues("error").Inc()
			resp = client.ErrorResponse(fmt.Errorf("media request panicked: %v", r))
		}
	}()

	ctx := req.Context()
	store, err := c.opener.Open(ctx, c.cfg.Name)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to open cache store")
		requestsTotal.WithLabelValues("error").Inc()
		return client.ErrorResponse(err)
	}

	key := cache.Normalize(req.URL.String())
	rec, err := store.Get(ctx, key)
	switch {
	case err == nil:
		c.logger.Debug().Str("key", key).Msg("Cache hit")
		requestsTotal.WithLabelValues("hit").Inc()
		return cache.RangeResponse(rec, req.Header.Get("Range"))
	case !errors.Is(err, cache.ErrCacheMiss):
		c.logger.Warn().Err(err).Str("key", key).Msg("Cache lookup failed, fetching")
	}

	if c.queue.Contains(key) {
		return c.passthrough(req, key)
	}
	return c.fetchDirect(req, store, key)
}

// passthrough forwards req unchanged, bypassing the cache.
func (c *Controller) passthrough(req *http.Request, key string) *http.Response {
	c.logger.Debug().Str("key", key).Msg("Already in flight, passing through")
	requestsTotal.WithLabelValues("passthrough").Inc()

	resp, err := c.fetcher.Do(req)
	if err != nil {
		if client.IsAbort(err) {
			c.logger.Debug().Str("key", key).Msg("Passthrough fetch aborted")
		} else {
			c.logger.Error().Err(err).Str("key", key).Msg("Passthrough fetch failed")
		}
		return client.ErrorResponse(err)
	}
	return resp
}

// Abort cancels in-flight fetches whose path starts with prefix, or all of
// them when prefix is empty. Direct fetches survive when keepDirect is set.
// It returns the number of cancelled fetches.
func (c *Controller) Abort(prefix string, keepDirect bool) int {
	n := c.queue.CancelMatching(prefix, keepDirect)
	if n > 0 {
		c.logger.Debug().Str("prefix", prefix).Bool("keep_direct", keepDirect).Int("cancelled", n).Msg("Aborted fetches")
	}
	return n
}

// Add registers an in-flight fetch for url.
func (c *Controller) Add(url string, cancel context.CancelFunc, isDirect bool, position *int) {
	c.queue.Add(cache.Normalize(url), cancel, isDirect, position)
}

// Delete removes the queue entry for url.
func (c *Controller) Delete(url string) {
	c.queue.Remove(cache.Normalize(url))
}

// Has reports whether a fetch for url is in flight.
func (c *Controller) Has(url string) bool {
	return c.queue.Contains(cache.Normalize(url))
}

// Queue returns a snapshot of the in-flight fetches.
func (c *Controller) Queue() []queue.Snapshot {
	return c.queue.List()
}

// Wait blocks until all background work has settled or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	return c.tasks.Wait(ctx)
}

// evict trims the store to the configured limit and reports deletions.
func (c *Controller) evict(ctx context.Context, store cache.Store) {
	n, err := cache.Evict(ctx, store, c.cfg.Limit, func(key string) {
		c.sink.Send(broadcast.Deleted{Ref: broadcast.Ref{CachedURL: key, OriginalURL: key}})
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Eviction failed")
	}
	if n > 0 {
		c.logger.Debug().Int("evicted", n).Int("limit", c.cfg.Limit).Msg("Evicted oldest entries")
	}
}

// sequencePosition reads the optional position hint. Invalid values count
// as absent.
func sequencePosition(req *http.Request) *int {
	v := req.Header.Get(SequenceHeader)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

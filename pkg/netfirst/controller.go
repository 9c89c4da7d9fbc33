// Package netfirst implements a network-first cache for API and metadata
// responses. The upstream is always tried first; the store is only read
// when the upstream fails or answers with anything but 200 OK.
package netfirst

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/media-cache-proxy/pkg/broadcast"
	"github.com/Sternrassler/media-cache-proxy/pkg/cache"
	"github.com/Sternrassler/media-cache-proxy/pkg/client"
	"github.com/Sternrassler/media-cache-proxy/pkg/tasks"
)

var requestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "media_netfirst_requests_total",
		Help: "Total network-first requests by result",
	},
	[]string{"result"}, // "network", "fallback_hit", "fallback_miss"
)

// Fetcher performs upstream fetches. *client.Client implements it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the controller configuration.
type Config struct {
	// Name of the cache store
	Name string

	// Limit is the maximum number of stored entries
	Limit int

	// Enabled is the initial interception state
	Enabled bool
}

// Controller serves API requests network first.
type Controller struct {
	cfg     Config
	opener  cache.Opener
	fetcher Fetcher
	sink    broadcast.Sink
	tasks   *tasks.Group
	enabled atomic.Bool
	logger  zerolog.Logger
}

// New creates a controller. Stores run in group, which the caller must keep
// alive until it settles.
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

	c := &Controller{
		cfg:     cfg,
		opener:  opener,
		fetcher: fetcher,
		sink:    sink,
		tasks:   group,
		logger:  log.With().Str("component", "network-first").Str("store", cfg.Name).Logger(),
	}
	c.enabled.Store(cfg.Enabled)
	return c, nil
}

// Enabled reports whether requests are intercepted.
func (c *Controller) Enabled() bool {
	return c.enabled.Load()
}

// SetEnabled toggles interception at runtime.
func (c *Controller) SetEnabled(v bool) {
	c.enabled.Store(v)
	c.logger.Info().Bool("enabled", v).Msg("Network-first interception toggled")
}

// HandleRequest fetches req upstream and stores a copy of a 200 response in
// the background. On failure it serves the stored copy for the same URL, or
// a client.StatusSyntheticError response when there is none. Records are
// keyed by the full request URL.
func (c *Controller) HandleRequest(req *http.Request) *http.Response {
	key := req.URL.String()

	resp, err := c.fetcher.Do(req)
	if err == nil && resp.StatusCode != http.StatusOK {
		err = client.StatusError(resp)
		resp.Body.Close()
	}
	if err == nil {
		var live *http.Response
		if live, err = c.storeInBackground(resp, key); err == nil {
			requestsTotal.WithLabelValues("network").Inc()
			return live
		}
	}

	return c.fallback(req.Context(), key, err)
}

// storeInBackground buffers the body, returns a live response serving it and
// spawns the store and eviction.
func (c *Controller) storeInBackground(resp *http.Response, key string) (*http.Response, error) {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	rec := &cache.Record{
		URL:        key,
		Data:       body,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		CachedAt:   time.Now(),
	}
	c.tasks.Go("store "+key, func(ctx context.Context) {
		c.store(ctx, key, rec)
	})
	return resp, nil
}

func (c *Controller) store(ctx context.Context, key string, rec *cache.Record) {
	store, err := c.opener.Open(ctx, c.cfg.Name)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to open cache store")
		return
	}
	if err := store.Put(ctx, key, rec); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to store response")
		return
	}
	c.logger.Debug().Str("key", key).Str("size", humanize.Bytes(uint64(rec.Size()))).Msg("Stored response")

	_, err = cache.Evict(ctx, store, c.cfg.Limit, func(deleted string) {
		c.sink.Send(broadcast.Deleted{Ref: broadcast.Ref{CachedURL: deleted, OriginalURL: deleted}})
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Eviction failed")
	}
}

// fallback serves the stored copy of key after the network attempt failed
// with cause.
func (c *Controller) fallback(ctx context.Context, key string, cause error) *http.Response {
	logger := c.logger.With().Str("key", key).Err(cause).Logger()
	if client.IsAbort(cause) {
		logger.Debug().Msg("Network fetch aborted, trying cache")
	} else {
		logger.Warn().Msg("Network fetch failed, trying cache")
	}

	store, err := c.opener.Open(ctx, c.cfg.Name)
	if err != nil {
		logger.Error().AnErr("store_error", err).Msg("Cache store unavailable")
		requestsTotal.WithLabelValues("fallback_miss").Inc()
		return client.ErrorResponse(cause)
	}

	rec, err := store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Error().AnErr("store_error", err).Msg("Cache lookup failed")
		}
		requestsTotal.WithLabelValues("fallback_miss").Inc()
		return client.ErrorResponse(cause)
	}

	requestsTotal.WithLabelValues("fallback_hit").Inc()
	return rec.Response()
}

// Wait blocks until all background stores have settled or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	return c.tasks.Wait(ctx)
}

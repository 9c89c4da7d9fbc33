package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/media-cache-proxy/pkg/audiocache"
	"github.com/Sternrassler/media-cache-proxy/pkg/broadcast"
	"github.com/Sternrassler/media-cache-proxy/pkg/cache"
	"github.com/Sternrassler/media-cache-proxy/pkg/client"
	"github.com/Sternrassler/media-cache-proxy/pkg/config"
	"github.com/Sternrassler/media-cache-proxy/pkg/logging"
	"github.com/Sternrassler/media-cache-proxy/pkg/netfirst"
	"github.com/Sternrassler/media-cache-proxy/pkg/prefetch"
	"github.com/Sternrassler/media-cache-proxy/pkg/router"
	"github.com/Sternrassler/media-cache-proxy/pkg/tasks"
)

// app owns every long-lived component of the proxy.
type app struct {
	cfg    config.Config
	server *http.Server
	tasks  *tasks.Group
	redis  *redis.Client
	events *broadcast.RedisSink
	logger zerolog.Logger
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: logging.NewLogger("main")}

	hub := broadcast.NewHub()
	sink := broadcast.Multi{broadcast.LogSink{Logger: logging.NewLogger("events")}, hub}

	var opener cache.Opener
	switch cfg.StoreBackend {
	case config.BackendRedis:
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.redis.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		a.logger.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")
		opener = cache.NewRedisOpener(a.redis)

		if cfg.EventsChannel != "" {
			a.events = broadcast.NewRedisSink(a.redis, cfg.EventsChannel, logging.NewLogger("redis-events"))
			sink = append(sink, a.events)
		}
	default:
		opener = cache.NewMemoryOpener()
	}

	// Background work outlives individual requests; Shutdown cancels it.
	a.tasks = tasks.New(context.Background(), logging.NewLogger("tasks"))

	clientCfg := client.DefaultConfig(cfg.UserAgent)
	clientCfg.AuthToken = cfg.AuthToken
	clientCfg.ResponseHeaderTimeout = cfg.RequestTimeout
	clientCfg.Retry.MaxAttempts = cfg.PrefetchAttempts
	upstream, err := client.New(clientCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create upstream client: %w", err)
	}

	audio, err := audiocache.New(audiocache.Config{
		Name:  cfg.AudioStore,
		Limit: cfg.AudioLimit,
	}, opener, upstream, sink, a.tasks)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create audio cache: %w", err)
	}

	api, err := netfirst.New(netfirst.Config{
		Name:    cfg.APIStore,
		Limit:   cfg.APILimit,
		Enabled: cfg.NetworkFirst,
	}, opener, upstream, sink, a.tasks)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create network-first cache: %w", err)
	}

	batch := prefetch.NewBatchPrefetcher(audio, prefetch.Config{MaxConcurrency: cfg.PrefetchConcurrency})

	rt, err := router.New(router.Config{
		UpstreamURL:     cfg.UpstreamURL,
		MediaPrefixes:   cfg.MediaPrefixes,
		MediaExtensions: cfg.MediaExtensions,
	}, router.Deps{
		Audio:   audio,
		API:     api,
		Fetcher: upstream,
		Batch:   batch,
		Hub:     hub,
		Tasks:   a.tasks,
		Stores:  opener,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create router: %w", err)
	}

	a.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           rt,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.server.RegisterOnShutdown(a.tasks.Cancel)

	return a, nil
}

// Run listens on the configured address and serves until ctx is done.
func (a *app) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully: the
// listener closes, background work is cancelled and awaited.
func (a *app) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info().
			Str("addr", ln.Addr().String()).
			Str("upstream", a.cfg.UpstreamURL).
			Str("store_backend", a.cfg.StoreBackend).
			Int("audio_limit", a.cfg.AudioLimit).
			Int("api_limit", a.cfg.APILimit).
			Msg("Starting media cache proxy")

		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		if err := a.tasks.Close(shutdownCtx); err != nil {
			a.logger.Warn().Err(err).Int64("active", a.tasks.Active()).Msg("Background work did not settle")
		}
		return nil
	})

	return g.Wait()
}

// Close releases external connections.
func (a *app) Close() {
	if a.tasks != nil {
		a.tasks.Cancel()
	}
	if a.events != nil {
		a.events.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

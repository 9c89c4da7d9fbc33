// Package router exposes the cache controllers over HTTP.
//
// Intercepted requests are classified by origin: GET requests for media
// paths go to the audio cache, other GET requests to the network-first
// cache while it is enabled, and everything else straight upstream. The
// /_cache/ endpoints control prefetching and report cache state.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/media-cache-proxy/pkg/audiocache"
	"github.com/Sternrassler/media-cache-proxy/pkg/broadcast"
	"github.com/Sternrassler/media-cache-proxy/pkg/cache"
	"github.com/Sternrassler/media-cache-proxy/pkg/client"
	"github.com/Sternrassler/media-cache-proxy/pkg/metrics"
	"github.com/Sternrassler/media-cache-proxy/pkg/netfirst"
	"github.com/Sternrassler/media-cache-proxy/pkg/prefetch"
	"github.com/Sternrassler/media-cache-proxy/pkg/tasks"
)

// Fetcher forwards requests that bypass both caches.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the routing configuration.
type Config struct {
	// UpstreamURL is the origin every intercepted path is resolved against
	UpstreamURL string

	// MediaPrefixes and MediaExtensions classify a path as media
	MediaPrefixes   []string
	MediaExtensions []string
}

// Deps are the collaborators the router dispatches to.
type Deps struct {
	Audio   *audiocache.Controller
	API     *netfirst.Controller
	Fetcher Fetcher
	Batch   *prefetch.BatchPrefetcher
	Hub     *broadcast.Hub
	Tasks   *tasks.Group
	Stores  cache.Opener
}

// Router is the proxy's http.Handler.
type Router struct {
	cfg      Config
	upstream *url.URL
	deps     Deps
	mux      *http.ServeMux
	logger   zerolog.Logger
}

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// New creates a router.
func New(cfg Config, deps Deps) (*Router, error) {
	upstream, err := url.Parse(cfg.UpstreamURL)
	if err != nil || upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q", cfg.UpstreamURL)
	}
	if deps.Audio == nil || deps.API == nil || deps.Fetcher == nil || deps.Batch == nil ||
		deps.Hub == nil || deps.Tasks == nil || deps.Stores == nil {
		return nil, errors.New("router dependencies are incomplete")
	}

	rt := &Router{
		cfg:      cfg,
		upstream: upstream,
		deps:     deps,
		mux:      http.NewServeMux(),
		logger:   log.With().Str("component", "router").Logger(),
	}

	rt.mux.HandleFunc("GET /health", rt.handleHealth)
	rt.mux.HandleFunc("GET /ready", rt.handleReady)
	rt.mux.Handle("GET /metrics", metrics.Handler())
	rt.mux.HandleFunc("POST /_cache/prefetch", rt.handlePrefetch)
	rt.mux.HandleFunc("POST /_cache/abort", rt.handleAbort)
	rt.mux.HandleFunc("GET /_cache/queue", rt.handleQueue)
	rt.mux.HandleFunc("GET /_cache/events", rt.handleEvents)
	rt.mux.HandleFunc("GET /_cache/network-first", rt.handleGetNetworkFirst)
	rt.mux.HandleFunc("PUT /_cache/network-first", rt.handleSetNetworkFirst)
	rt.mux.HandleFunc("/", rt.handleProxy)

	return rt, nil
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

// IsMedia reports whether urlPath is served by the audio cache.
func (rt *Router) IsMedia(urlPath string) bool {
	for _, prefix := range rt.cfg.MediaPrefixes {
		if prefix != "" && strings.HasPrefix(urlPath, prefix) {
			return true
		}
	}
	ext := strings.ToLower(path.Ext(urlPath))
	if ext == "" {
		return false
	}
	for _, e := range rt.cfg.MediaExtensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// Resolve maps a proxy path, or an absolute upstream URL, to the upstream
// URL it refers to. Absolute URLs on any other host are rejected.
func (rt *Router) Resolve(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.IsAbs() {
		if u.Scheme != rt.upstream.Scheme || u.Host != rt.upstream.Host {
			return "", fmt.Errorf("url %q is not on the upstream origin", u.Redacted())
		}
		return u.String(), nil
	}

	target := *rt.upstream
	target.Path = joinPath(rt.upstream.Path, u.Path)
	target.RawPath = ""
	target.RawQuery = u.RawQuery
	return target.String(), nil
}

func (rt *Router) handleProxy(w http.ResponseWriter, r *http.Request) {
	out, err := rt.outbound(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var resp *http.Response
	switch {
	case r.Method == http.MethodGet && rt.IsMedia(r.URL.Path):
		resp = rt.deps.Audio.HandleRequest(out)
	case r.Method == http.MethodGet && rt.deps.API.Enabled():
		resp = rt.deps.API.HandleRequest(out)
	default:
		resp, err = rt.deps.Fetcher.Do(out)
		if err != nil {
			if !client.IsAbort(err) {
				rt.logger.Warn().Err(err).Str("url", out.URL.Redacted()).Msg("Passthrough request failed")
			}
			resp = client.ErrorResponse(err)
		}
	}

	rt.writeResponse(w, resp)
}

// outbound builds the upstream request for an intercepted request.
func (rt *Router) outbound(r *http.Request) (*http.Request, error) {
	target, err := rt.Resolve(r.URL.RequestURI())
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if r.ContentLength != 0 {
		body = r.Body
	}
	out, err := http.NewRequestWithContext(r.Context(), r.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	out.ContentLength = r.ContentLength
	out.Header = r.Header.Clone()
	for _, h := range hopHeaders {
		out.Header.Del(h)
	}
	return out, nil
}

func (rt *Router) writeResponse(w http.ResponseWriter, resp *http.Response) {
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	for _, h := range hopHeaders {
		w.Header().Del(h)
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil && !client.IsAbort(err) {
		rt.logger.Debug().Err(err).Msg("Failed to write response body")
	}
}

func (rt *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (rt *Router) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := rt.deps.Stores.Ping(ctx); err != nil {
		rt.logger.Warn().Err(err).Msg("Readiness check failed")
		http.Error(w, "cache store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "READY")
}

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		if strings.HasPrefix(p, "/") {
			return p
		}
		return "/" + p
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(p, "/")
}

// Package client provides the upstream HTTP client used by the cache
// controllers: credential-inclusive fetches, error classification and
// retry with backoff.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for upstream requests.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_upstream_requests_total",
		Help: "Total upstream requests by status",
	}, []string{"status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "media_upstream_request_duration_seconds",
		Help:    "Time until upstream response headers by mode",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"mode"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassAborted represents fetches cancelled on purpose.
	ErrorClassAborted ErrorClass = "aborted"
)

// Client performs upstream fetches on behalf of the controllers.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// UserAgent header sent upstream
	UserAgent string

	// AuthToken is sent as a bearer token when the request carries no
	// Authorization header of its own
	AuthToken string

	// ResponseHeaderTimeout bounds the wait for upstream headers. Bodies are
	// not bounded: audio downloads can take minutes.
	ResponseHeaderTimeout time.Duration

	// Retry applies to background fetches only
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent:             userAgent,
		ResponseHeaderTimeout: 30 * time.Second,
		Retry:                 DefaultRetryConfig(),
	}
}

// New creates a new upstream client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry max_attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.ResponseHeaderTimeout

	return &Client{
		httpClient: &http.Client{Transport: transport},
		config:     cfg,
		logger:     log.With().Str("component", "upstream-client").Logger(),
	}, nil
}

// Do performs a credential-inclusive fetch. Any HTTP status is returned as
// a response; only transport failures are errors. Cancellation of the
// request context surfaces as an error for which IsAbort reports true.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.do(req, "direct")
}

// DoBackground performs a credential-inclusive, cache-bypassing fetch for
// background work. Responses outside 2xx become *UpstreamError. Server and
// network failures are retried with backoff; aborts never are.
func (c *Client) DoBackground(req *http.Request) (*http.Response, error) {
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	var resp *http.Response
	err := retryWithBackoff(req.Context(), c.config.Retry, func() (ErrorClass, error) {
		r, err := c.do(req, "background")
		if err != nil {
			return classifyError(err), err
		}
		if r.StatusCode < 200 || r.StatusCode > 299 {
			r.Body.Close()
			se := StatusError(r)
			return se.ErrorClass, se
		}
		resp = r
		return "", nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(req *http.Request, mode string) (*http.Response, error) {
	c.applyCredentials(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	upstreamRequestDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())

	if err != nil {
		class := classifyError(err)
		upstreamErrorsTotal.WithLabelValues(string(class)).Inc()
		upstreamRequestsTotal.WithLabelValues(string(class)).Inc()
		if class == ErrorClassAborted {
			return nil, err
		}
		return nil, &UpstreamError{
			ErrorClass: class,
			Message:    "fetch " + req.URL.Redacted(),
			Err:        err,
		}
	}

	upstreamRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode >= 400 {
		upstreamErrorsTotal.WithLabelValues(string(classifyStatus(resp.StatusCode))).Inc()
		c.logger.Debug().
			Str("url", req.URL.Redacted()).
			Int("status", resp.StatusCode).
			Str("mode", mode).
			Msg("Upstream returned error status")
	}
	return resp, nil
}

func (c *Client) applyCredentials(req *http.Request) {
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.AuthToken != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}
}

// classifyError categorizes a transport error.
func classifyError(err error) ErrorClass {
	if IsAbort(err) {
		return ErrorClassAborted
	}
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.ErrorClass != "" {
		return ue.ErrorClass
	}
	return ErrorClassNetwork
}

// classifyStatus categorizes an HTTP status.
func classifyStatus(status int) ErrorClass {
	switch {
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// NewRequest builds a GET request bound to ctx.
func NewRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

package cache

import (
	"net/http"
	"time"
)

// Record represents a cached upstream response.
type Record struct {
	// URL is the resource URL the record was fetched from
	URL string `json:"url"`

	// Data is the full response body
	Data []byte `json:"data"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Headers are the response headers
	Headers http.Header `json:"headers"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// ContentType returns the cached Content-Type header.
func (r *Record) ContentType() string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get("Content-Type")
}

// Size returns the body length in bytes.
func (r *Record) Size() int64 {
	return int64(len(r.Data))
}

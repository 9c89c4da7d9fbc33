// Package testutil provides testing utilities for the media cache proxy.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock upstream endpoint.
type MockResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream is a configurable mock media/API server for testing.
type MockUpstream struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	counts   map[string]int
	gates    map[string]chan struct{}

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
}

// NewMockUpstream creates a new mock upstream server.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		handlers: make(map[string]http.HandlerFunc),
		counts:   make(map[string]int),
		gates:    make(map[string]chan struct{}),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.counts[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		gate := mock.gates[r.URL.Path]
		mock.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}

		if exists {
			handler(w, r)
			return
		}

		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.ReleaseAll()
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.counts = make(map[string]int)
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockUpstream) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))

		w.WriteHeader(resp.StatusCode)
		if len(resp.Body) > 0 {
			w.Write(resp.Body)
		}
	})
}

// Hold makes requests for path block until Release is called or the client
// goes away. It lets tests keep a fetch in flight.
func (m *MockUpstream) Hold(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.gates[path]; !ok {
		m.gates[path] = make(chan struct{})
	}
}

// Release unblocks held requests for path.
func (m *MockUpstream) Release(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gate, ok := m.gates[path]; ok {
		close(gate)
		delete(m.gates, path)
	}
}

// ReleaseAll unblocks every held path.
func (m *MockUpstream) ReleaseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for path, gate := range m.gates {
		close(gate)
		delete(m.gates, path)
	}
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockUpstream) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// CountFor returns the number of requests made for path.
func (m *MockUpstream) CountFor(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[path]
}

// LastHeader returns the headers of the most recent request.
func (m *MockUpstream) LastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader.Clone()
}

// AudioBytes returns n deterministic bytes that look like an MP3 stream.
func AudioBytes(n int) []byte {
	data := make([]byte, n)
	copy(data, []byte("ID3"))
	for i := 3; i < n; i++ {
		data[i] = byte((i * 7) % 256)
	}
	return data
}

// NewAudioResponse creates a 200 OK audio response.
func NewAudioResponse(data []byte) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type":  "audio/mpeg",
			"Accept-Ranges": "bytes",
		},
	}
}

// NewJSONResponse creates a 200 OK JSON response.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(body),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewStatusResponse creates a plain-text response with the given status.
func NewStatusResponse(status int) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       []byte(http.StatusText(status)),
		Headers: map[string]string{
			"Content-Type": "text/plain; charset=utf-8",
		},
	}
}

// Package testutil provides testing utilities for the HTTP sink.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior of a mock endpoint for a path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// ReceivedRequest captures one request as seen by the mock endpoint.
type ReceivedRequest struct {
	Method string
	Path   string
	Body   string
	Header http.Header
}

// MockEndpoint is a configurable mock HTTP endpoint for sink testing. It
// records every request it receives and tracks how many requests were being
// served concurrently, which is what the permit-pool tests assert on.
type MockEndpoint struct {
	server   *httptest.Server
	mu       sync.Mutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	received    []ReceivedRequest
	inFlight    int
	maxInFlight int
}

// NewMockEndpoint creates a mock endpoint. Paths without a configured
// response answer 200 with an empty body.
func NewMockEndpoint() *MockEndpoint {
	mock := &MockEndpoint{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.received = append(mock.received, ReceivedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Body:   string(body),
			Header: r.Header.Clone(),
		})
		mock.inFlight++
		if mock.inFlight > mock.maxInFlight {
			mock.maxInFlight = mock.inFlight
		}
		handler := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		defer func() {
			mock.mu.Lock()
			mock.inFlight--
			mock.mu.Unlock()
		}()

		if handler != nil {
			handler(w, r)
			return
		}

		w.WriteHeader(http.StatusOK)
	}))

	return mock
}

// URL returns the mock endpoint base URL.
func (m *MockEndpoint) URL() string {
	return m.server.URL
}

// Close shuts down the mock endpoint.
func (m *MockEndpoint) Close() {
	m.server.Close()
}

// Reset clears recorded requests and tracking counters.
func (m *MockEndpoint) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = nil
	m.maxInFlight = 0
}

// SetHandler sets a custom handler for a path.
func (m *MockEndpoint) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockEndpoint) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// RequestCount returns the number of requests received.
func (m *MockEndpoint) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.received)
}

// Received returns a copy of the recorded requests.
func (m *MockEndpoint) Received() []ReceivedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ReceivedRequest, len(m.received))
	copy(out, m.received)
	return out
}

// MaxInFlight returns the highest number of requests served concurrently.
func (m *MockEndpoint) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

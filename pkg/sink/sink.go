// Package sink delivers records to an HTTP endpoint under a bounded
// concurrency policy. It owns the permit pool that gates how many requests
// may be in flight at once and the completion handling for every request.
package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/evpipe/http-sink/pkg/event"
	"github.com/evpipe/http-sink/pkg/format"
	"github.com/evpipe/http-sink/pkg/logging"
)

// Prometheus metrics for sink operations.
var (
	sinkRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sink_requests_total",
		Help: "Total requests issued by terminal outcome",
	}, []string{"outcome"})

	sinkRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sink_request_duration_seconds",
		Help:    "Request duration in seconds from issue to completion",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	sinkFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sink_failures_total",
		Help: "Total failed deliveries by failure class",
	}, []string{"class"})

	sinkInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sink_inflight_requests",
		Help: "Number of requests currently in flight",
	})

	sinkPermitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sink_permit_wait_seconds",
		Help:    "Time spent waiting for a dispatch permit",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
	})
)

// request is one in-flight unit of work. It holds everything needed to issue
// the HTTP call and to describe it in a failure log entry. A request never
// outlives its own completion handling.
type request struct {
	url     string
	method  string
	body    []byte
	headers map[string]string
}

// Sink dispatches records to the configured endpoint.
type Sink struct {
	httpClient *http.Client
	formatter  *format.Formatter
	permits    *semaphore.Weighted
	limiter    *rate.Limiter
	config     Config
	logger     zerolog.Logger

	// Tracks in-flight SubmitOne requests so Close can be used after all
	// completions in tests without racing the transport shutdown.
	inflight sync.WaitGroup
}

// New creates a sink. The configuration is validated once here; the sink
// never starts dispatching on an invalid configuration.
func New(cfg Config) (*Sink, error) {
	logger := logging.NewLogger("sink")

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("sink config: %w", err)
	}

	if cfg.Format == format.FormatMessage && len(cfg.Mapping) > 0 {
		logger.Warn().Msg("field mapping is ignored when format is message")
		cfg.Mapping = nil
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	httpClient.Timeout = cfg.RequestTimeout

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	}

	return &Sink{
		httpClient: httpClient,
		formatter:  format.New(cfg.formatConfig()),
		permits:    semaphore.NewWeighted(cfg.PoolMax),
		limiter:    limiter,
		config:     cfg,
		logger:     logger,
	}, nil
}

// SubmitBatch dispatches every record in the batch in unthrottled parallel
// mode: no permit is acquired and all requests are issued immediately. It
// returns once every request has reached a terminal state and its completion
// has been handled. Per-record failures are reported only through the failure
// log; they never abort the rest of the batch.
//
// There is no ordering guarantee across records in a batch.
func (s *Sink) SubmitBatch(ctx context.Context, records []event.Record) error {
	var wg sync.WaitGroup

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return fmt.Errorf("batch dispatch aborted: %w", err)
		}

		req, err := s.buildRequest(rec)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Dropping record that could not be formatted")
			continue
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				wg.Wait()
				return fmt.Errorf("batch dispatch aborted: %w", err)
			}
		}

		wg.Add(1)
		sinkInFlight.Inc()
		go func(r *request) {
			defer wg.Done()
			defer sinkInFlight.Dec()
			code, err := s.issue(ctx, r)
			s.complete(r, code, err)
		}(req)
	}

	wg.Wait()
	return nil
}

// SubmitOne dispatches a single record in throttled mode. It blocks until a
// permit is available from the pool, issues the request, and returns once the
// request is in flight. Completion handling and the permit release happen
// asynchronously. When all permits are outstanding, callers block here, which
// is how backpressure propagates upstream.
func (s *Sink) SubmitOne(ctx context.Context, rec event.Record) error {
	req, err := s.buildRequest(rec)
	if err != nil {
		return err
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	waitStart := time.Now()
	if err := s.permits.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire dispatch permit: %w", err)
	}
	sinkPermitWaitSeconds.Observe(time.Since(waitStart).Seconds())

	s.inflight.Add(1)
	sinkInFlight.Inc()
	go func() {
		// Deferred LIFO: the permit is released exactly once, regardless of
		// outcome, before Wait observes the request as finished.
		defer s.inflight.Done()
		defer sinkInFlight.Dec()
		defer s.permits.Release(1)

		// The request is detached from the caller's context: SubmitOne has
		// already returned. The transport timeout bounds the exchange.
		code, err := s.issue(context.Background(), req)
		s.complete(req, code, err)
	}()

	return nil
}

// buildRequest renders a record into an in-flight request.
func (s *Sink) buildRequest(rec event.Record) (*request, error) {
	body, err := s.formatter.Body(rec)
	if err != nil {
		return nil, fmt.Errorf("format body: %w", err)
	}

	return &request{
		url:     s.formatter.URL(rec),
		method:  s.config.Method,
		body:    body,
		headers: s.formatter.Headers(rec),
	}, nil
}

// issue performs the HTTP exchange for a request and returns the status code,
// or an error when the exchange could not be completed at all. The response
// body is discarded; this sink does no response processing.
func (s *Sink) issue(ctx context.Context, r *request) (int, error) {
	start := time.Now()
	defer func() {
		sinkRequestDuration.Observe(time.Since(start).Seconds())
	}()

	httpReq, err := http.NewRequestWithContext(ctx, r.method, r.url, bytes.NewReader(r.body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	for name, value := range r.headers {
		httpReq.Header.Set(name, value)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// Wait blocks until all asynchronously issued requests have completed. Useful
// for clean shutdown of callers that feed SubmitOne.
func (s *Sink) Wait() {
	s.inflight.Wait()
}

// Close releases the underlying transport resources. In-flight requests are
// bounded by the configured request timeout; Close does not wait for them.
func (s *Sink) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

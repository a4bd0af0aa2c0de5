// Package metrics provides the centralized Prometheus registry reference for
// the HTTP sink. All metrics are defined in pkg/sink via promauto to keep
// them next to the code that drives them.
//
// This package documents the available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the sink.
// All metrics are automatically registered via promauto in their packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Dispatch Metrics (pkg/sink):
//   - sink_requests_total{outcome} (Counter): Requests by terminal outcome,
//     labeled with the HTTP status code or "transport_error"
//   - sink_request_duration_seconds (Histogram): Issue-to-completion duration
//   - sink_failures_total{class} (Counter): Failed deliveries by class
//     (remote, transport)
//   - sink_inflight_requests (Gauge): Requests currently in flight
//   - sink_permit_wait_seconds (Histogram): Time spent blocked on the permit
//     pool in throttled dispatch
//
// Example Prometheus Queries:
//
//   # Delivery Failure Rate
//   sum(rate(sink_failures_total[5m])) / sum(rate(sink_requests_total[5m]))
//
//   # Backpressure Signal
//   histogram_quantile(0.95, rate(sink_permit_wait_seconds_bucket[5m]))
//
//   # P95 Delivery Latency
//   histogram_quantile(0.95, rate(sink_request_duration_seconds_bucket[5m]))
//
//   # In-Flight Saturation (against configured pool_max)
//   sink_inflight_requests

package sink

import (
	"strconv"
)

// FailureClass classifies a failed delivery.
type FailureClass string

const (
	// FailureClassRemote is a response outside the 2xx range.
	FailureClassRemote FailureClass = "remote"

	// FailureClassTransport is an exchange that could not be completed at
	// all: connection error, timeout, protocol error.
	FailureClassTransport FailureClass = "transport"
)

// complete handles the terminal state of a request. It runs exactly once per
// issued request, possibly on a different goroutine than the dispatching
// call, and touches no shared state beyond the metrics and the logger.
//
// Failures are terminal here: no retry, no backoff. The failure log is the
// only externally observable signal besides the request itself.
func (s *Sink) complete(r *request, code int, err error) {
	switch {
	case err != nil:
		sinkRequestsTotal.WithLabelValues("transport_error").Inc()
		sinkFailuresTotal.WithLabelValues(string(FailureClassTransport)).Inc()
		s.logger.Error().
			Err(err).
			Str("url", r.url).
			Str("method", r.method).
			Bytes("body", r.body).
			Interface("headers", r.headers).
			Msg("Could not send request to endpoint")

	case code < 200 || code > 299:
		sinkRequestsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
		sinkFailuresTotal.WithLabelValues(string(FailureClassRemote)).Inc()
		s.logger.Error().
			Int("status", code).
			Str("url", r.url).
			Str("method", r.method).
			Msg("Endpoint returned a non-2xx response")

	default:
		sinkRequestsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
	}
}

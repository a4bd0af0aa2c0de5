package sink

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/evpipe/http-sink/pkg/format"
)

// Allowed HTTP methods for dispatch.
var allowedMethods = map[string]bool{
	http.MethodPut:    true,
	http.MethodPost:   true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
	http.MethodGet:    true,
	http.MethodHead:   true,
}

// Config holds the sink configuration. It is validated once by New and not
// read again after startup.
type Config struct {
	// Endpoint is the destination URL template, rendered per record.
	Endpoint string

	// Method is the HTTP method used for every request.
	// One of PUT, POST, PATCH, DELETE, GET, HEAD.
	Method string

	// Format selects the body encoding (json, form, message).
	Format format.BodyFormat

	// Message is the body template when Format is message.
	Message string

	// Mapping replaces the full record as the body source when non-empty.
	Mapping []format.Field

	// Headers maps header names to per-record templates.
	Headers map[string]string

	// ContentType overrides the format's derived default when set.
	ContentType string

	// PoolMax bounds the number of concurrent in-flight requests issued
	// through SubmitOne. SubmitBatch is not gated by the pool.
	PoolMax int64

	// RequestTimeout bounds every HTTP exchange. Must be positive: the
	// timeout is what guarantees each request reaches a terminal state and
	// releases its permit.
	RequestTimeout time.Duration

	// RatePerSecond throttles the overall send rate when > 0.
	RatePerSecond float64

	// Burst is the rate limiter burst size. Defaults to PoolMax when zero.
	Burst int

	// HTTPClient overrides the default transport (for testing). Its Timeout
	// is forced to RequestTimeout.
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration for an endpoint.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:       endpoint,
		Method:         http.MethodPost,
		Format:         format.FormatJSON,
		PoolMax:        25,
		RequestTimeout: 30 * time.Second,
	}
}

// validate checks the configuration and resolves derived defaults in place.
func (c *Config) validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint url is required")
	}

	c.Method = strings.ToUpper(c.Method)
	if !allowedMethods[c.Method] {
		return fmt.Errorf("http method %q is not supported (want one of PUT, POST, PATCH, DELETE, GET, HEAD)", c.Method)
	}

	switch c.Format {
	case format.FormatJSON, format.FormatForm, format.FormatMessage:
	default:
		return fmt.Errorf("body format %q is not supported (want json, form, or message)", c.Format)
	}

	if c.Format == format.FormatMessage && c.Message == "" {
		return fmt.Errorf("a message template is required when format is message")
	}

	if c.ContentType == "" {
		c.ContentType = format.DerivedContentType(c.Format)
	}
	if c.ContentType == "" {
		return fmt.Errorf("content type is required: none configured and no default for format %q", c.Format)
	}

	if c.PoolMax < 1 {
		return fmt.Errorf("pool_max must be >= 1 (got %d)", c.PoolMax)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive (got %s)", c.RequestTimeout)
	}

	if c.Burst == 0 {
		c.Burst = int(c.PoolMax)
	}

	return nil
}

// formatConfig builds the formatter configuration from the resolved sink
// configuration.
func (c *Config) formatConfig() format.Config {
	return format.Config{
		URL:         c.Endpoint,
		Format:      c.Format,
		Message:     c.Message,
		Mapping:     c.Mapping,
		Headers:     c.Headers,
		ContentType: c.ContentType,
	}
}

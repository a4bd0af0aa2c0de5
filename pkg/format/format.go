// Package format builds the per-record HTTP request parts: destination URL,
// body, and headers. Formatting is pure with respect to the record; all
// configuration is resolved before the first record is seen.
package format

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/evpipe/http-sink/pkg/event"
)

// BodyFormat selects how a record is encoded into a request body.
type BodyFormat string

const (
	// FormatJSON serializes the mapped (or full) record fields as a JSON object.
	FormatJSON BodyFormat = "json"

	// FormatForm produces &-joined, percent-encoded key=value pairs.
	FormatForm BodyFormat = "form"

	// FormatMessage renders a configured template as a plain-text body.
	FormatMessage BodyFormat = "message"
)

// Default Content-Type values per body format. An explicitly configured
// content type always wins over these.
var derivedContentTypes = map[BodyFormat]string{
	FormatJSON:    "application/json",
	FormatForm:    "application/x-www-form-urlencoded",
	FormatMessage: "text/plain",
}

// DerivedContentType returns the default Content-Type for a body format, or
// the empty string if none is derivable.
func DerivedContentType(f BodyFormat) string {
	return derivedContentTypes[f]
}

// Field is one entry of an ordered field mapping: the destination key and the
// template rendered per record to produce its value.
type Field struct {
	Key      string
	Template string
}

// Config holds the resolved formatting configuration.
type Config struct {
	// URL is the destination URL template, rendered per record.
	URL string

	// Format selects the body encoding.
	Format BodyFormat

	// Message is the body template when Format is FormatMessage.
	Message string

	// Mapping, when non-empty, replaces the full record as the body source.
	// Order is preserved for form-encoded bodies.
	Mapping []Field

	// Headers maps header names to per-record templates.
	Headers map[string]string

	// ContentType is the final Content-Type value. The sink resolves it from
	// explicit configuration or the format's derived default before handing
	// the config to New.
	ContentType string
}

// Formatter turns records into request parts according to its Config.
type Formatter struct {
	cfg Config
}

// New creates a formatter. The config must already be validated; see
// sink.Config validation for the rules.
func New(cfg Config) *Formatter {
	return &Formatter{cfg: cfg}
}

// URL renders the destination URL for a record.
func (f *Formatter) URL(rec event.Record) string {
	return event.Render(f.cfg.URL, rec)
}

// Body encodes a record into a request body.
func (f *Formatter) Body(rec event.Record) ([]byte, error) {
	switch f.cfg.Format {
	case FormatMessage:
		return []byte(event.Render(f.cfg.Message, rec)), nil
	case FormatForm:
		return []byte(f.encodeForm(rec)), nil
	case FormatJSON:
		return f.encodeJSON(rec)
	default:
		return nil, fmt.Errorf("unknown body format %q", f.cfg.Format)
	}
}

// Headers renders the configured header templates for a record and stamps the
// resolved Content-Type last, so it wins over any header template that also
// targets that key.
func (f *Formatter) Headers(rec event.Record) map[string]string {
	headers := make(map[string]string, len(f.cfg.Headers)+1)
	for name, template := range f.cfg.Headers {
		headers[name] = event.Render(template, rec)
	}
	headers["Content-Type"] = f.cfg.ContentType
	return headers
}

// encodeJSON serializes the mapped fields, or the full record when no mapping
// is configured. Mapped values are rendered templates; full-record values pass
// through as their native representation.
func (f *Formatter) encodeJSON(rec event.Record) ([]byte, error) {
	if len(f.cfg.Mapping) == 0 {
		body, err := json.Marshal(map[string]any(rec))
		if err != nil {
			return nil, fmt.Errorf("encode record as json: %w", err)
		}
		return body, nil
	}

	obj := make(map[string]string, len(f.cfg.Mapping))
	for _, field := range f.cfg.Mapping {
		obj[field.Key] = event.Render(field.Template, rec)
	}
	body, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode mapped fields as json: %w", err)
	}
	return body, nil
}

// encodeForm produces &-joined key=value pairs. Mapping order is preserved;
// full-record encoding uses the record's sorted field order.
func (f *Formatter) encodeForm(rec event.Record) string {
	var pairs []string

	if len(f.cfg.Mapping) > 0 {
		pairs = make([]string, 0, len(f.cfg.Mapping))
		for _, field := range f.cfg.Mapping {
			value := event.Render(field.Template, rec)
			pairs = append(pairs, url.QueryEscape(field.Key)+"="+url.QueryEscape(value))
		}
	} else {
		keys := rec.Keys()
		pairs = make([]string, 0, len(keys))
		for _, key := range keys {
			value := event.String(rec[key])
			pairs = append(pairs, url.QueryEscape(key)+"="+url.QueryEscape(value))
		}
	}

	return strings.Join(pairs, "&")
}

package format

import (
	"encoding/json"
	"testing"

	"github.com/evpipe/http-sink/pkg/event"
)

func TestURL(t *testing.T) {
	f := New(Config{
		URL:         "http://example.com/%{type}/%{host}",
		Format:      FormatJSON,
		ContentType: "application/json",
	})

	rec := event.Record{"host": "a", "type": "b"}
	got := f.URL(rec)
	want := "http://example.com/b/a"
	if got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}

func TestBodyJSON_FullRecord(t *testing.T) {
	f := New(Config{
		Format:      FormatJSON,
		ContentType: "application/json",
	})

	rec := event.Record{"host": "a", "type": "b", "count": 3}
	body, err := f.Body(rec)
	if err != nil {
		t.Fatalf("Body() failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("Body() is not valid JSON: %v", err)
	}

	if decoded["host"] != "a" || decoded["type"] != "b" {
		t.Errorf("decoded body = %v, want host=a type=b", decoded)
	}
	if decoded["count"] != float64(3) {
		t.Errorf("count = %v, want 3 (native value, not templated)", decoded["count"])
	}
	if len(decoded) != 3 {
		t.Errorf("decoded body has %d keys, want 3", len(decoded))
	}
}

// Scenario: mapping {"foo": "%{host}", "bar": "%{type}"} against
// {"host": "a", "type": "b"} produces {"foo": "a", "bar": "b"}.
func TestBodyJSON_Mapping(t *testing.T) {
	f := New(Config{
		Format: FormatJSON,
		Mapping: []Field{
			{Key: "foo", Template: "%{host}"},
			{Key: "bar", Template: "%{type}"},
		},
		ContentType: "application/json",
	})

	rec := event.Record{"host": "a", "type": "b"}
	body, err := f.Body(rec)
	if err != nil {
		t.Fatalf("Body() failed: %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("Body() is not valid JSON: %v", err)
	}

	if decoded["foo"] != "a" || decoded["bar"] != "b" {
		t.Errorf("decoded body = %v, want foo=a bar=b", decoded)
	}
	if len(decoded) != 2 {
		t.Errorf("decoded body has %d keys, want exactly the mapped keys", len(decoded))
	}
}

func TestBodyForm_FullRecord(t *testing.T) {
	f := New(Config{
		Format:      FormatForm,
		ContentType: "application/x-www-form-urlencoded",
	})

	rec := event.Record{"host": "a", "type": "b"}
	body, err := f.Body(rec)
	if err != nil {
		t.Fatalf("Body() failed: %v", err)
	}

	want := "host=a&type=b"
	if string(body) != want {
		t.Errorf("Body() = %q, want %q", body, want)
	}
}

func TestBodyForm_MappingOrder(t *testing.T) {
	f := New(Config{
		Format: FormatForm,
		Mapping: []Field{
			{Key: "zfirst", Template: "%{host}"},
			{Key: "asecond", Template: "%{type}"},
		},
		ContentType: "application/x-www-form-urlencoded",
	})

	rec := event.Record{"host": "a", "type": "b"}
	body, err := f.Body(rec)
	if err != nil {
		t.Fatalf("Body() failed: %v", err)
	}

	// Mapping order is preserved, not sorted.
	want := "zfirst=a&asecond=b"
	if string(body) != want {
		t.Errorf("Body() = %q, want %q", body, want)
	}
}

func TestBodyForm_Escaping(t *testing.T) {
	f := New(Config{
		Format:      FormatForm,
		ContentType: "application/x-www-form-urlencoded",
	})

	rec := event.Record{"msg": "a b&c=d"}
	body, err := f.Body(rec)
	if err != nil {
		t.Fatalf("Body() failed: %v", err)
	}

	want := "msg=a+b%26c%3Dd"
	if string(body) != want {
		t.Errorf("Body() = %q, want %q", body, want)
	}
}

func TestBodyMessage(t *testing.T) {
	f := New(Config{
		Format:      FormatMessage,
		Message:     "host %{host} event %{type}",
		ContentType: "text/plain",
	})

	rec := event.Record{"host": "a", "type": "b"}
	body, err := f.Body(rec)
	if err != nil {
		t.Fatalf("Body() failed: %v", err)
	}

	want := "host a event b"
	if string(body) != want {
		t.Errorf("Body() = %q, want %q", body, want)
	}
}

func TestHeaders(t *testing.T) {
	f := New(Config{
		Format: FormatJSON,
		Headers: map[string]string{
			"X-Host": "%{host}",
			"X-Env":  "production",
		},
		ContentType: "application/json",
	})

	rec := event.Record{"host": "a"}
	headers := f.Headers(rec)

	if headers["X-Host"] != "a" {
		t.Errorf("X-Host = %q, want %q", headers["X-Host"], "a")
	}
	if headers["X-Env"] != "production" {
		t.Errorf("X-Env = %q, want %q", headers["X-Env"], "production")
	}
	if headers["Content-Type"] != "application/json" {
		t.Errorf("Content-Type = %q, want %q", headers["Content-Type"], "application/json")
	}
}

// Content-Type from config wins even when a header template targets the key.
func TestHeaders_ContentTypeOverride(t *testing.T) {
	f := New(Config{
		Format: FormatJSON,
		Headers: map[string]string{
			"Content-Type": "text/evil",
		},
		ContentType: "application/json",
	})

	headers := f.Headers(event.Record{})
	if headers["Content-Type"] != "application/json" {
		t.Errorf("Content-Type = %q, want configured value to win", headers["Content-Type"])
	}
}

func TestDerivedContentType(t *testing.T) {
	tests := []struct {
		format BodyFormat
		want   string
	}{
		{FormatJSON, "application/json"},
		{FormatForm, "application/x-www-form-urlencoded"},
		{FormatMessage, "text/plain"},
		{BodyFormat("bogus"), ""},
	}

	for _, tt := range tests {
		if got := DerivedContentType(tt.format); got != tt.want {
			t.Errorf("DerivedContentType(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}
}

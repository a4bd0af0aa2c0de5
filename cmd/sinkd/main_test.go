package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/evpipe/http-sink/pkg/event"
	"github.com/evpipe/http-sink/pkg/queue"
	"github.com/evpipe/http-sink/pkg/sink"

	"github.com/evpipe/http-sink/internal/testutil"
)

// fakeQueue collects pushed batches in memory.
type fakeQueue struct {
	mu      sync.Mutex
	batches [][]event.Record
	err     error
}

func (f *fakeQueue) Push(ctx context.Context, records []event.Record) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, records)
	return nil
}

func (f *fakeQueue) PopBatch(ctx context.Context, timeout time.Duration) ([]event.Record, error) {
	f.mu.Lock()
	if len(f.batches) == 0 {
		f.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(timeout):
			return nil, queue.ErrEmpty
		}
	}
	defer f.mu.Unlock()
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body, _ := io.ReadAll(w.Body)
	if string(body) != "OK" {
		t.Errorf("body = %q, want OK", body)
	}
}

func TestIngestHandler(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		queueErr   error
		wantStatus int
	}{
		{
			name:       "valid batch",
			method:     http.MethodPost,
			body:       `[{"host":"a"},{"host":"b"}]`,
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "wrong method",
			method:     http.MethodGet,
			body:       "",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "invalid json",
			method:     http.MethodPost,
			body:       `{not json`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty batch",
			method:     http.MethodPost,
			body:       `[]`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "queue unavailable",
			method:     http.MethodPost,
			body:       `[{"host":"a"}]`,
			queueErr:   errors.New("redis down"),
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQueue{err: tt.queueErr}
			handler := ingestHandler(q, zerolog.Nop())

			req := httptest.NewRequest(tt.method, "/records", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestIngestHandler_EnqueuesBatch(t *testing.T) {
	q := &fakeQueue{}
	handler := ingestHandler(q, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/records", strings.NewReader(`[{"host":"a","type":"b"}]`))
	w := httptest.NewRecorder()
	handler(w, req)

	if len(q.batches) != 1 {
		t.Fatalf("enqueued %d batches, want 1", len(q.batches))
	}
	if q.batches[0][0]["host"] != "a" {
		t.Errorf("enqueued record = %v, want host=a", q.batches[0][0])
	}
}

func TestRunConsumer_DispatchesQueuedBatches(t *testing.T) {
	endpoint := testutil.NewMockEndpoint()
	defer endpoint.Close()

	s, err := sink.New(sink.DefaultConfig(endpoint.URL()))
	if err != nil {
		t.Fatalf("sink.New() failed: %v", err)
	}
	defer s.Close()

	q := &fakeQueue{}
	q.Push(context.Background(), []event.Record{{"host": "a"}, {"host": "b"}})
	q.Push(context.Background(), []event.Record{{"host": "c"}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		runConsumer(ctx, q, s, zerolog.Nop())
	}()

	deadline := time.After(5 * time.Second)
	for endpoint.RequestCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("endpoint received %d requests, want 3", endpoint.RequestCount())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("consumer did not stop after cancellation")
	}
}

// Command sinkd accepts record batches over HTTP, buffers them in a Redis
// list, and delivers them to the configured endpoint through the sink.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/evpipe/http-sink/pkg/event"
	"github.com/evpipe/http-sink/pkg/format"
	"github.com/evpipe/http-sink/pkg/logging"
	"github.com/evpipe/http-sink/pkg/queue"
	"github.com/evpipe/http-sink/pkg/sink"
)

// recordQueue is the slice of the queue the ingest handler needs.
type recordQueue interface {
	Push(ctx context.Context, records []event.Record) error
}

// batchPopper is the slice of the queue the consumer loop needs.
type batchPopper interface {
	PopBatch(ctx context.Context, timeout time.Duration) ([]event.Record, error)
}

func main() {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: os.Getenv("LOG_PRETTY") == "true",
		Output: os.Stderr,
	})
	logger := logging.NewLogger("sinkd")

	// Configuration from environment
	endpoint := os.Getenv("SINK_URL")
	if endpoint == "" {
		logger.Fatal().Msg("SINK_URL is required")
	}

	cfg := sink.DefaultConfig(endpoint)
	cfg.Method = getEnv("SINK_METHOD", cfg.Method)
	cfg.Format = format.BodyFormat(getEnv("SINK_FORMAT", string(cfg.Format)))
	cfg.Message = os.Getenv("SINK_MESSAGE")
	cfg.ContentType = os.Getenv("SINK_CONTENT_TYPE")
	if v := os.Getenv("SINK_POOL_MAX"); v != "" {
		poolMax, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid SINK_POOL_MAX")
		}
		cfg.PoolMax = poolMax
	}
	if v := os.Getenv("SINK_RATE_PER_SECOND"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid SINK_RATE_PER_SECOND")
		}
		cfg.RatePerSecond = rate
	}

	redisURL := getEnv("REDIS_URL", "localhost:6379")
	queueKey := getEnv("QUEUE_KEY", "sink:records")
	port := getEnv("PORT", "8080")

	// Setup Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", redisURL).Msg("Failed to connect to Redis")
	}
	logger.Info().Str("addr", redisURL).Msg("Connected to Redis")

	// Create sink
	s, err := sink.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create sink")
	}
	defer s.Close()

	q := queue.New(redisClient, queueKey)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		runConsumer(runCtx, q, s, logger)
	}()

	// HTTP server
	mux := http.NewServeMux()
	mux.HandleFunc("/records", ingestHandler(q, logger))
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Str("endpoint", endpoint).Msg("Starting sinkd")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	<-runCtx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown failed")
	}

	<-consumerDone
	s.Wait()
	if err := redisClient.Close(); err != nil {
		logger.Warn().Err(err).Msg("Redis close failed")
	}
	logger.Info().Msg("Shutdown complete")
}

// runConsumer pops batches from the queue and dispatches them until the
// context is cancelled. Delivery failures surface only in the failure log;
// they never stop the loop.
func runConsumer(ctx context.Context, q batchPopper, s *sink.Sink, logger zerolog.Logger) {
	logger.Info().Msg("Queue consumer started")

	for {
		if ctx.Err() != nil {
			logger.Info().Msg("Queue consumer stopping")
			return
		}

		batch, err := q.PopBatch(ctx, 5*time.Second)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				logger.Info().Msg("Queue consumer stopping")
				return
			}
			logger.Warn().Err(err).Msg("Queue poll failed")
			time.Sleep(time.Second)
			continue
		}

		logger.Debug().Int("records", len(batch)).Msg("Dispatching batch")
		if err := s.SubmitBatch(ctx, batch); err != nil {
			logger.Warn().Err(err).Msg("Batch dispatch aborted")
		}
	}
}

// ingestHandler accepts a JSON array of records and enqueues it as one batch.
func ingestHandler(q recordQueue, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var records []event.Record
		if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		if len(records) == 0 {
			http.Error(w, "Empty batch", http.StatusBadRequest)
			return
		}

		if err := q.Push(r.Context(), records); err != nil {
			logger.Error().Err(err).Msg("Failed to enqueue batch")
			http.Error(w, "Failed to enqueue batch", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusAccepted)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

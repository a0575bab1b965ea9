// Package metrics exposes the Prometheus metrics of the OpenAlex client.
// The collectors are defined in their own packages (client, ratelimit,
// pagination, openalex) and registered via promauto on the default registry.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the registerer all client metrics are registered on.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads back what Registry collected.
var Gatherer = prometheus.DefaultGatherer

// ShutdownTimeout bounds the graceful stop of Serve.
const ShutdownTimeout = 5 * time.Second

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// NewMux returns a mux serving /metrics and /health.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// Serve runs the metrics endpoint on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           NewMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("component", "metrics").Str("addr", addr).Msg("Serving metrics")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - openalex_requests_total{endpoint, status} (Counter): requests by first path segment and HTTP status
//   - openalex_request_duration_seconds{endpoint} (Histogram): request duration including retries
//   - openalex_errors_total{class} (Counter): errors by class (client, not_found, server, rate_limit, network)
//   - openalex_circuit_breaker_state (Gauge): 0 closed, 1 half-open, 2 open
//
// Retry Metrics (pkg/client):
//   - openalex_retries_total{error_class} (Counter): retry attempts
//   - openalex_retry_backoff_seconds{error_class} (Histogram): waits between attempts
//   - openalex_retry_exhausted_total{error_class} (Counter): requests that ran out of attempts
//
// Rate Limit Metrics (pkg/ratelimit):
//   - openalex_rate_limit_remaining (Gauge): X-RateLimit-Remaining of the last response
//   - openalex_rate_limit_blocks_total (Counter): requests refused with the daily budget spent
//   - openalex_rate_limit_throttles_total (Counter): requests delayed near the budget end
//
// Paging Metrics (pkg/pagination):
//   - openalex_pages_fetched_total{method} (Counter)
//   - openalex_records_yielded_total{method} (Counter)
//
// Operation Metrics (pkg/openalex):
//   - openalex_operations_total{entity, operation} (Counter)
//   - openalex_records_returned_total{entity} (Counter)
//
// Example Prometheus Queries:
//
//	# Daily budget left
//	openalex_rate_limit_remaining < 1000
//
//	# Retry ratio
//	sum(rate(openalex_retries_total[5m])) / sum(rate(openalex_requests_total[5m]))
//
//	# P95 Request Latency
//	histogram_quantile(0.95, rate(openalex_request_duration_seconds_bucket[5m]))

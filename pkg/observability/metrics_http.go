package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsReadHeaderTimeout bounds slow-client header reads on the metrics
// endpoint.
const metricsReadHeaderTimeout = 5 * time.Second

// MetricsHandler returns an http.Handler serving the process's default
// Prometheus registry, the same registry PrometheusEnabled's exporter feeds.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// ServeMetrics starts a background HTTP server exposing MetricsHandler at
// addr. The returned shutdown func gracefully stops it.
func ServeMetrics(addr string) (shutdown func(ctx context.Context) error, err error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	select {
	case startErr := <-errCh:
		return nil, fmt.Errorf("serve metrics on %s: %w", addr, startErr)
	case <-time.After(50 * time.Millisecond):
	}

	return server.Shutdown, nil
}

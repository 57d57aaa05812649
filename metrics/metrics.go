// Package metrics exposes Prometheus metrics for the visualization service.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.viam.com/queryvis/logging"
)

// Entry points reported in the "entry" label.
const (
	EntryCall         = "call"
	EntryNotification = "notification"
)

// Metrics holds every collector of the service.
type Metrics struct {
	Runs            *prometheus.CounterVec
	Failures        *prometheus.CounterVec
	Duration        *prometheus.HistogramVec
	PublishedImages prometheus.Counter
	PublishFailures prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "queryvis_pipeline_runs_total",
			Help: "Pipeline runs by entry point",
		}, []string{"entry"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "queryvis_pipeline_failures_total",
			Help: "Failed pipeline runs by entry point and error kind",
		}, []string{"entry", "kind"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "queryvis_pipeline_duration_seconds",
			Help:    "Time taken to decode, mask and compose one query",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"entry"}),
		PublishedImages: factory.NewCounter(prometheus.CounterOpts{
			Name: "queryvis_published_images_total",
			Help: "Composite images published on the output channel",
		}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "queryvis_publish_failures_total",
			Help: "Composite images that could not be published",
		}),
	}
}

// Serve exposes the metrics gathered by g on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	logger.Infow("serving metrics", "address", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

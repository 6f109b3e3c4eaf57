// Package metrics exposes Prometheus counters for the tracker services and a
// standalone metrics HTTP server.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Enter-tainer/gps-tracker/common"
)

var registry = prometheus.NewRegistry()

var (
	fetchesTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "gps_tracker_fetches_total",
		Help: "Upstream fetch attempts by source and outcome.",
	}, []string{"source", "outcome"})

	reportsFetched = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "gps_tracker_reports_fetched_total",
		Help: "Raw location reports received from upstream by source.",
	}, []string{"source"})

	reportsDecrypted = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "gps_tracker_reports_decrypted_total",
		Help: "Location reports successfully decrypted by source.",
	}, []string{"source"})

	decryptFailures = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "gps_tracker_decrypt_failures_total",
		Help: "Location reports that failed authentication or decryption.",
	}, []string{"source"})

	storedReports = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "gps_tracker_stored_reports_total",
		Help: "New location reports persisted to the store.",
	})

	serviceInfo = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Name: "gps_tracker_service_info",
		Help: "Service identity and build version.",
	}, []string{"service", "version"})
)

func init() {
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// RecordFetch counts one upstream fetch attempt.
func RecordFetch(source string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	fetchesTotal.WithLabelValues(source, outcome).Inc()
}

// RecordReportsFetched counts raw reports received from upstream.
func RecordReportsFetched(source string, n int) {
	reportsFetched.WithLabelValues(source).Add(float64(n))
}

// RecordReportDecrypted counts one successfully decrypted report.
func RecordReportDecrypted(source string) {
	reportsDecrypted.WithLabelValues(source).Inc()
}

// RecordDecryptFailure counts one report that failed to decrypt.
func RecordDecryptFailure(source string) {
	decryptFailures.WithLabelValues(source).Inc()
}

// RecordStoredReports counts newly persisted reports.
func RecordStoredReports(n int) {
	storedReports.Add(float64(n))
}

// MetricsServer serves the Prometheus registry over HTTP.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the given listen address. The address may
// be empty, in which case ListenAndServe must not be called.
func New(name, listenAddr string) (*MetricsServer, error) {
	serviceInfo.WithLabelValues(name, common.Version).Set(1)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &MetricsServer{
		srv: &http.Server{
			Addr:         listenAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

// ListenAndServe starts the metrics server and blocks until shutdown.
func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

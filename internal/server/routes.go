package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const MetricsPath = "/metrics"

// NewRouter builds the exporter's routing table. Every response carries
// no-cache headers, nosniff and a blank Server header.
//
// When reg is not nil, the metrics endpoint is instrumented into reg.
func NewRouter(metrics http.Handler, reg prometheus.Registerer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if reg != nil {
		metrics = instrument(reg, metrics)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Location", MetricsPath)
		w.WriteHeader(http.StatusMovedPermanently)
	})
	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle(MetricsPath, recoverPanic(metrics, logger))
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return secureHeaders(mux)
}

func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Server", "")
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate, max-age=0")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		h.Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

// recoverPanic turns a panicking scrape into a 500 so the next scrape is
// served normally.
func recoverPanic(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logger.Error("panic while serving metrics", "panic", v)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func instrument(reg prometheus.Registerer, next http.Handler) http.Handler {
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "openstack_swift_exporter",
			Name:      "scrapes_total",
			Help:      "Scrapes served, by HTTP status code.",
		}, []string{"code"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "openstack_swift_exporter",
			Name:      "scrape_duration_seconds",
			Help:      "Duration of scrapes, by HTTP status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"code"},
	)
	reg.MustRegister(requests, duration)
	return promhttp.InstrumentHandlerCounter(requests, promhttp.InstrumentHandlerDuration(duration, next))
}

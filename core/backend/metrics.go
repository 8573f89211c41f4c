package backend

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relabs-tech/campus/core"
	"github.com/relabs-tech/campus/core/logger"
)

type metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
}

func newMetrics(registry *prometheus.Registry) *metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campus_requests_total",
			Help: "Number of resource requests by resource, operation and status code.",
		}, []string{"resource", "operation", "status"}),
	}
	registry.MustRegister(m.requests)
	return m
}

// statusWriter remembers the status code of a response
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// instrument counts the requests of h
func (m *metrics) instrument(resource string, operation core.Operation, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(sw, r)
		m.requests.WithLabelValues(resource, string(operation), strconv.Itoa(sw.status)).Inc()
	})
}

func (b *Backend) handleMetrics(router *mux.Router) {
	logger.Default().Debugln("metrics")
	logger.Default().Debugln("  handle metrics route: /metrics GET")
	router.Handle("/metrics", promhttp.HandlerFor(b.metrics.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

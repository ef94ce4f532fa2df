package master

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "warden_master"

// Metrics holds the receiver's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	returnsTotal    *prometheus.CounterVec
	eventsTotal     prometheus.Counter
	rejectedTotal   *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics registers the receiver metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		returnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "returns_total",
				Help:      "Job returns accepted, by function and outcome",
			},
			[]string{"fun", "success"},
		),
		eventsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Minion events accepted",
			},
		),
		rejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejected_total",
				Help:      "Loads rejected, by reason",
			},
			[]string{"reason"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeReturn(fun string, success bool) {
	m.returnsTotal.WithLabelValues(fun, strconv.FormatBool(success)).Inc()
}

func (m *Metrics) observeEvent() {
	m.eventsTotal.Inc()
}

func (m *Metrics) observeRejected(reason string) {
	m.rejectedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeRequest(method, path string, status int, d time.Duration) {
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

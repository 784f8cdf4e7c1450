package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trader"

type Metrics struct {
	gatherer prometheus.Gatherer

	// Ledger
	tradeCount *prometheus.CounterVec

	// Quote provider
	quoteLookups *prometheus.CounterVec

	// HTTP
	requestDuration *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg. Pass a fresh registry in tests.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		tradeCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trades_total",
				Help:      "Ledger operations by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		quoteLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quote_lookups_total",
				Help:      "Quote provider lookups by outcome",
			},
			[]string{"outcome"},
		),

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
	}
}

func (m *Metrics) ObserveTrade(kind, outcome string) {
	m.tradeCount.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveQuote(outcome string) {
	m.quoteLookups.WithLabelValues(outcome).Inc()
}

// Middleware records request latency labelled by the matched route
// template, so path parameters do not explode cardinality.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		m.requestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

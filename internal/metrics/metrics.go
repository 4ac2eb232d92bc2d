package metrics

import (
	"net/http"
	"strconv"
	"time"

	"auctions/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the auction collectors on a private prometheus registry.
type Registry struct {
	registry     *prometheus.Registry
	bids         *prometheus.CounterVec
	closes       *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewRegistry registers the auction, Go runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		bids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auctions_bids_total",
			Help: "Bid submissions by outcome and rejection reason.",
		}, []string{"outcome", "reason"}),
		closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auctions_closes_total",
			Help: "Close requests by result.",
		}, []string{"result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auctions_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	r.registry.MustRegister(
		r.bids,
		r.closes,
		r.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// RecordBid counts one bid submission.
func (r *Registry) RecordBid(outcome string, reason models.RejectReason) {
	label := string(reason)
	if label == "" {
		label = "none"
	}
	r.bids.WithLabelValues(outcome, label).Inc()
}

// RecordClose counts one close request.
func (r *Registry) RecordClose(result string) {
	r.closes.WithLabelValues(result).Inc()
}

// Middleware observes request latency per matched route. Unmatched paths are
// grouped under "unmatched" to keep label cardinality bounded.
func (r *Registry) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		r.httpDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

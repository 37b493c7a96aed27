// Package metrics exports Prometheus metrics for matching attempts and the
// HTTP service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	dealmatcher "github.com/Lucky4Angel/deal"
)

// Attempt outcomes.
const (
	OutcomeFulfilled = "fulfilled"
	OutcomePartial   = "partial"
	OutcomeEmpty     = "empty"
	OutcomeFailed    = "failed"
)

// Collector owns a registry with the matcher and HTTP metrics.
type Collector struct {
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	attemptLatency  *prometheus.HistogramVec
	attemptsRunning prometheus.Gauge
	pages           prometheus.Counter
	pageLatency     prometheus.Histogram
	offersPerPage   prometheus.Histogram
	matchedUnits    prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// NewCollector creates a collector registering under namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "dealmatcher"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.attempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attempt",
			Name:      "total",
			Help:      "Matching attempts by outcome",
		},
		[]string{"outcome"},
	)
	c.attemptLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "attempt",
			Name:      "duration_seconds",
			Help:      "Time taken by a matching attempt",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"outcome"},
	)
	c.attemptsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "attempt",
		Name:      "running",
		Help:      "Matching attempts in progress",
	})
	c.pages = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "pages_total",
		Help:      "Offer pages fetched from the indexer",
	})
	c.pageLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "page_duration_seconds",
		Help:      "Time taken to fetch one offer page",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})
	c.offersPerPage = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "page_offers",
		Help:      "Offers returned per page",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 6),
	})
	c.matchedUnits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "attempt",
		Name:      "matched_compute_units_total",
		Help:      "Compute units returned by matching attempts",
	})

	c.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		},
		[]string{"method", "route", "code"},
	)
	c.httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	c.registry.MustRegister(
		c.attempts,
		c.attemptLatency,
		c.attemptsRunning,
		c.pages,
		c.pageLatency,
		c.offersPerPage,
		c.matchedUnits,
		c.httpRequests,
		c.httpLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// MatcherOptions returns the hooks that feed attempt metrics.
func (c *Collector) MatcherOptions() []dealmatcher.MatcherOption {
	return []dealmatcher.MatcherOption{
		dealmatcher.WithOnAttemptStart(func(dealmatcher.AttemptContext) error {
			c.attemptsRunning.Inc()
			return nil
		}),
		dealmatcher.WithOnPageFetched(func(ctx dealmatcher.PageContext) error {
			c.pages.Inc()
			c.pageLatency.Observe(ctx.Duration.Seconds())
			c.offersPerPage.Observe(float64(ctx.OffersReturned))
			return nil
		}),
		dealmatcher.WithOnAttemptEnd(func(ctx dealmatcher.AttemptResultContext) error {
			c.attemptsRunning.Dec()
			outcome := ResultOutcome(&ctx.Result)
			c.attempts.WithLabelValues(outcome).Inc()
			c.attemptLatency.WithLabelValues(outcome).Observe(ctx.Duration.Seconds())
			c.matchedUnits.Add(float64(ctx.Result.MatchedCount()))
			return nil
		}),
		dealmatcher.WithOnAttemptFailure(func(ctx dealmatcher.AttemptFailureContext) error {
			c.attemptsRunning.Dec()
			c.attempts.WithLabelValues(OutcomeFailed).Inc()
			c.attemptLatency.WithLabelValues(OutcomeFailed).Observe(ctx.Duration.Seconds())
			return nil
		}),
	}
}

// ObserveHTTPRequest records one served request.
func (c *Collector) ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

// ResultOutcome classifies a returned result.
func ResultOutcome(r *dealmatcher.MatchResult) string {
	switch {
	case r.Fulfilled:
		return OutcomeFulfilled
	case r.MatchedCount() > 0:
		return OutcomePartial
	default:
		return OutcomeEmpty
	}
}

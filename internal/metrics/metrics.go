// Package metrics holds the Prometheus collectors for cache and mutation
// activity. A Collector implements both the cache observer and the
// mutation observer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tanagraph"

// Collector owns a private registry; nothing is registered globally.
type Collector struct {
	registry *prometheus.Registry

	cacheHits     prometheus.Counter
	cacheMisses   *prometheus.CounterVec
	parses        *prometheus.CounterVec
	parseSeconds  prometheus.Histogram
	invalidations prometheus.Counter
	mutations     *prometheus.CounterVec
}

// New creates and registers every collector.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Snapshot requests served from the cache.",
		}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Snapshot requests that needed a parse, by reason.",
		}, []string{"reason"}),
		parses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parses_total",
			Help:      "Source parses, by result.",
		}, []string{"result"}),
		parseSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "parse_seconds",
			Help:      "Time spent parsing and indexing a source.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidations_total",
			Help:      "Cache entries dropped after a write or an external edit.",
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Append operations, by outcome.",
		}, []string{"outcome"}),
	}
	c.registry.MustRegister(
		c.cacheHits,
		c.cacheMisses,
		c.parses,
		c.parseSeconds,
		c.invalidations,
		c.mutations,
		collectors.NewGoCollector(),
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) CacheHit(string) { c.cacheHits.Inc() }

func (c *Collector) CacheMiss(_, reason string) { c.cacheMisses.WithLabelValues(reason).Inc() }

func (c *Collector) Parsed(_ string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.parses.WithLabelValues(result).Inc()
	c.parseSeconds.Observe(elapsed.Seconds())
}

func (c *Collector) Invalidated(string) { c.invalidations.Inc() }

func (c *Collector) Mutation(outcome string) { c.mutations.WithLabelValues(outcome).Inc() }

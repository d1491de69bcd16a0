// Package metrics declares the Prometheus collectors the server
// exposes on /metrics, in the same registration style the teacher's
// promhttp.Handler() wiring expects.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests by route and status.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dicomweb_http_requests_total",
		Help: "Total HTTP requests handled, by route and status code.",
	}, []string{"route", "status"})

	// STOWPartsTotal is the STOW-RS per-part outcome counter. It is
	// registered here; no code in this module increments it.
	STOWPartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dicomweb_stow_parts_total",
		Help: "STOW-RS ingested parts, by outcome (success/failure).",
	}, []string{"outcome"})

	// EventQueueDepth is the UPS event queue length gauge. It is
	// registered here; no code in this module sets it.
	EventQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dicomweb_event_queue_depth",
		Help: "Current number of envelopes pending dispatch in the UPS event queue.",
	})

	// CacheHits and CacheMisses are gauges named for the response cache's
	// hit and miss counters (internal/httpcache.Middleware.StatsSnapshot);
	// no code in this module copies those counters into them.
	CacheHits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dicomweb_cache_hits_total",
		Help: "Response cache hits observed so far.",
	})
	CacheMisses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dicomweb_cache_misses_total",
		Help: "Response cache misses observed so far.",
	})
)

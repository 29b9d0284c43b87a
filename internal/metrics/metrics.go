// Package metrics exposes prometheus instrumentation for the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles every metric behind its own registry so tests can build
// isolated instances.
type Collector struct {
	reg *prometheus.Registry

	RequestsTotal *prometheus.CounterVec // labels: endpoint, status

	TrimsTotal     prometheus.Counter
	RendersTotal   prometheus.Counter
	FramesRendered prometheus.Counter
	TilesMissed    prometheus.Counter

	RenderDuration prometheus.Histogram
	EncodeDuration prometheus.Histogram
}

// NewCollector builds and registers the full metric set.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpxhelper_requests_total",
			Help: "API requests by endpoint and status class.",
		}, []string{"endpoint", "status"}),
		TrimsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpxhelper_trims_total",
			Help: "Completed GPX trim operations.",
		}),
		RendersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpxhelper_renders_total",
			Help: "Completed animation render jobs.",
		}),
		FramesRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpxhelper_frames_rendered_total",
			Help: "Total animation frames drawn.",
		}),
		TilesMissed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpxhelper_tiles_missed_total",
			Help: "Basemap tiles that could not be fetched.",
		}),
		RenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpxhelper_render_duration_seconds",
			Help:    "Wall-clock duration of frame rendering per job.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		EncodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpxhelper_encode_duration_seconds",
			Help:    "Wall-clock duration of video encoding per job.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}

	reg.MustRegister(
		c.RequestsTotal,
		c.TrimsTotal, c.RendersTotal, c.FramesRendered, c.TilesMissed,
		c.RenderDuration, c.EncodeDuration,
	)
	return c
}

// Handler serves the registry in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

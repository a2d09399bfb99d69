package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Collector owns a private registry so tests can build as many as they like.
// All recording methods are safe on a nil *Collector.
type Collector struct {
	reg *prometheus.Registry

	Estimates        *prometheus.CounterVec // outcome label: ok or an eta.Kind label
	EstimateDuration prometheus.Histogram

	FeedFetches       *prometheus.CounterVec // source, result labels
	FeedFetchDuration *prometheus.HistogramVec

	TrackedVehicles prometheus.Gauge
	PollDuration    prometheus.Histogram

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	SpeedMPH     prometheus.Gauge
	PollInterval prometheus.Gauge // seconds
}

func NewCollector(speedMPH float64, pollInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Estimates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streetcar_estimates_total",
			Help: "ETA estimates by outcome.",
		}, []string{"outcome"}),
		EstimateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "streetcar_estimate_duration_seconds",
			Help:    "Time spent computing a single ETA.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		}),
		FeedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streetcar_feed_fetches_total",
			Help: "Upstream position fetches by source and result.",
		}, []string{"source", "result"}),
		FeedFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "streetcar_feed_fetch_duration_seconds",
			Help:    "Duration of upstream position fetches, retries included.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"source"}),
		TrackedVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streetcar_tracked_vehicles",
			Help: "Vehicles with a position in the last poll.",
		}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "streetcar_poll_duration_seconds",
			Help:    "Duration of a full tracker poll across all vehicles.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streetcar_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streetcar_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streetcar_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "streetcar_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		SpeedMPH: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streetcar_speed_mph",
			Help: "Assumed streetcar speed used for estimates.",
		}),
		PollInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streetcar_poll_interval_seconds",
			Help: "Tracker poll interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.Estimates, c.EstimateDuration,
		c.FeedFetches, c.FeedFetchDuration,
		c.TrackedVehicles, c.PollDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.SpeedMPH, c.PollInterval,
	)

	c.SpeedMPH.Set(speedMPH)
	c.PollInterval.Set(pollInterval.Seconds())

	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()
	log.Info().Str("addr", addr).Msg("Metrics listening")
	return srv
}

func (c *Collector) EstimateObserve(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.Estimates.WithLabelValues(outcome).Inc()
	c.EstimateDuration.Observe(d.Seconds())
}

func (c *Collector) FeedFetchObserve(source string, d time.Duration, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.FeedFetches.WithLabelValues(source, result).Inc()
	c.FeedFetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (c *Collector) PollObserve(tracked int, d time.Duration) {
	if c == nil {
		return
	}
	c.TrackedVehicles.Set(float64(tracked))
	c.PollDuration.Observe(d.Seconds())
}

func (c *Collector) NATSPublishedInc() {
	if c != nil {
		c.NATSPublished.Inc()
	}
}

func (c *Collector) NATSPublishErrInc() {
	if c != nil {
		c.NATSPublishErrs.Inc()
	}
}

func (c *Collector) PublishObserve(d time.Duration) {
	if c != nil {
		c.PublishDuration.Observe(d.Seconds())
	}
}

func (c *Collector) NATSSetConnected(connected bool) {
	if c == nil {
		return
	}
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

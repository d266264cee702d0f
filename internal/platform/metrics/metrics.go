package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chunk insertion outcomes, used as the result label.
const (
	ResultAccepted  = "accepted"
	ResultDuplicate = "duplicate"
	ResultRejected  = "rejected"
)

// Metrics holds Prometheus counters and gauges for the window service.
type Metrics struct {
	registry           *prometheus.Registry
	requestsTotal      *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
	chunksInserted     *prometheus.CounterVec
	windowPublishes    prometheus.Counter
	slotsTruncated     prometheus.Counter
	validationFailures prometheus.Counter
	baseTimeChanges    prometheus.Counter
	streamsEndedTotal  prometheus.Counter
	activePlaylists    prometheus.Gauge
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hls_requests_total",
			Help: "HTTP requests by route pattern and status class",
		}, []string{"route", "class"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hls_errors_total",
			Help: "HTTP responses with error status (4xx or 5xx) by route pattern",
		}, []string{"route"}),
		chunksInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hls_chunks_inserted_total",
			Help: "Chunks offered to playlists, by result",
		}, []string{"result"}),
		windowPublishes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_window_publishes_total",
			Help: "Times a playlist window advanced and was published",
		}),
		slotsTruncated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_slots_truncated_total",
			Help: "Drained slots dropped from the head of playlists",
		}),
		validationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_validation_failures_total",
			Help: "Playlist consistency checks that failed; the save was skipped",
		}),
		baseTimeChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_base_time_changes_total",
			Help: "Times the start of slot 0 moved",
		}),
		streamsEndedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hls_streams_ended_total",
			Help: "Total number of streams ended",
		}),
		activePlaylists: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hls_active_playlists",
			Help: "Number of loaded playlists that are not ended",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.chunksInserted,
		m.windowPublishes,
		m.slotsTruncated,
		m.validationFailures,
		m.baseTimeChanges,
		m.streamsEndedTotal,
		m.activePlaylists,
	)
	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest counts one HTTP response for a route pattern.
func (m *Metrics) ObserveRequest(route string, status int) {
	m.requestsTotal.WithLabelValues(route, statusClass(status)).Inc()
	if status >= http.StatusBadRequest {
		m.errorsTotal.WithLabelValues(route).Inc()
	}
}

// IncChunks counts one chunk insertion with the given result label.
func (m *Metrics) IncChunks(result string) {
	m.chunksInserted.WithLabelValues(result).Inc()
}

// IncPublishes increments the window publish counter.
func (m *Metrics) IncPublishes() {
	m.windowPublishes.Inc()
}

// AddSlotsTruncated adds n dropped slots.
func (m *Metrics) AddSlotsTruncated(n int) {
	if n > 0 {
		m.slotsTruncated.Add(float64(n))
	}
}

// IncValidationFailures increments the validation failure counter.
func (m *Metrics) IncValidationFailures() {
	m.validationFailures.Inc()
}

// IncBaseTimeChanges increments the base time change counter.
func (m *Metrics) IncBaseTimeChanges() {
	m.baseTimeChanges.Inc()
}

// IncStreamsEnded increments the streams ended counter.
func (m *Metrics) IncStreamsEnded() {
	m.streamsEndedTotal.Inc()
}

// SetActivePlaylists sets the active playlists gauge.
func (m *Metrics) SetActivePlaylists(n int) {
	m.activePlaylists.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		inner.ServeHTTP(w, r)
	})
}

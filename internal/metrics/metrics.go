// ABOUTME: Prometheus collectors for remote API calls, webhook updates, fan-out and scraping
// ABOUTME: A nil *Metrics is valid and records nothing, so components can run without metrics

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dolarbot"

// Metrics groups every collector the bot exports.
type Metrics struct {
	registry *prometheus.Registry

	apiCalls    *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec
	updates     *prometheus.CounterVec
	sends       *prometheus.CounterVec
	sources     *prometheus.CounterVec
	records     prometheus.Counter
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		apiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_calls_total",
			Help:      "Remote Bot API calls by action and outcome.",
		}, []string{"action", "outcome"}),
		apiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_call_duration_seconds",
			Help:      "Latency of remote Bot API calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_updates_total",
			Help:      "Inbound webhook updates by kind and whether they produced a side effect.",
		}, []string{"kind", "handled"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_sends_total",
			Help:      "Fan-out deliveries by event kind and result.",
		}, []string{"kind", "result"}),
		sources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_sources_total",
			Help:      "Scrape source fetches by profile and result.",
		}, []string{"profile", "result"}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrape_records_total",
			Help:      "Scraped records persisted.",
		}),
	}

	m.registry.MustRegister(
		m.apiCalls,
		m.apiDuration,
		m.updates,
		m.sends,
		m.sources,
		m.records,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveAPICall records one remote call.
func (m *Metrics) ObserveAPICall(action, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.apiCalls.WithLabelValues(action, outcome).Inc()
	m.apiDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// ObserveUpdate records one classified webhook update.
func (m *Metrics) ObserveUpdate(kind string, handled bool) {
	if m == nil {
		return
	}
	h := "false"
	if handled {
		h = "true"
	}
	m.updates.WithLabelValues(kind, h).Inc()
}

// ObserveSend records one fan-out delivery attempt.
func (m *Metrics) ObserveSend(kind string, err error) {
	if m == nil {
		return
	}
	result := "delivered"
	if err != nil {
		result = "failed"
	}
	m.sends.WithLabelValues(kind, result).Inc()
}

// ObserveSource records one scrape source outcome ("ok" or a skip reason).
func (m *Metrics) ObserveSource(profile, result string) {
	if m == nil {
		return
	}
	m.sources.WithLabelValues(profile, result).Inc()
}

// ObserveRecord records one persisted scraped record.
func (m *Metrics) ObserveRecord() {
	if m == nil {
		return
	}
	m.records.Inc()
}

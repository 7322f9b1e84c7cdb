// Package metrics provides Prometheus metrics for the policy history service
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/warp/policy-history/history"
)

// Metrics holds all Prometheus collectors for the service
type Metrics struct {
	// Ingestion
	EventsIngested *prometheus.CounterVec
	EventsDropped  prometheus.Counter
	Diagnostics    *prometheus.CounterVec
	IngestDuration prometheus.Histogram

	// Index size after the last ingestion
	IndexVehicles prometheus.Gauge
	IndexPolicies prometheus.Gauge

	// Queries
	RetrieveDuration prometheus.Histogram
	ActivePolicies   prometheus.Gauge
	HistoricVehicles prometheus.Gauge

	// Feed
	FeedFetches *prometheus.CounterVec
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "policy_history_events_ingested_total",
			Help: "Events received for reconstruction, by kind",
		}, []string{"kind"}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "policy_history_events_dropped_total",
			Help: "Events that could not be folded into any policy",
		}),
		Diagnostics: f.NewCounterVec(prometheus.CounterOpts{
			Name: "policy_history_diagnostics_total",
			Help: "Diagnostics reported during reconstruction, by kind",
		}, []string{"kind"}),
		IngestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "policy_history_ingest_duration_seconds",
			Help:    "Time to rebuild the index from a batch",
			Buckets: prometheus.DefBuckets,
		}),
		IndexVehicles: f.NewGauge(prometheus.GaugeOpts{
			Name: "policy_history_index_vehicles",
			Help: "Vehicles in the current index",
		}),
		IndexPolicies: f.NewGauge(prometheus.GaugeOpts{
			Name: "policy_history_index_policies",
			Help: "Policy histories in the current index",
		}),
		RetrieveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "policy_history_retrieve_duration_seconds",
			Help:    "Time to answer a point-in-time query",
			Buckets: prometheus.DefBuckets,
		}),
		ActivePolicies: f.NewGauge(prometheus.GaugeOpts{
			Name: "policy_history_last_query_active_policies",
			Help: "Active policies returned by the last query",
		}),
		HistoricVehicles: f.NewGauge(prometheus.GaugeOpts{
			Name: "policy_history_last_query_historic_vehicles",
			Help: "Historic vehicles returned by the last query",
		}),
		FeedFetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "policy_history_feed_fetches_total",
			Help: "Remote feed fetches, by status",
		}, []string{"status"}),
	}
}

// Report counts a diagnostic. Metrics satisfies history.Reporter.
func (m *Metrics) Report(d history.Diagnostic) {
	m.Diagnostics.WithLabelValues(string(d.Kind)).Inc()
}

// ObserveIngest records one ingestion.
func (m *Metrics) ObserveIngest(s history.IngestSummary, took time.Duration) {
	m.EventsIngested.WithLabelValues(string(history.EventCreated)).Add(float64(s.Created))
	m.EventsIngested.WithLabelValues(string(history.EventExtended)).Add(float64(s.Extended))
	m.EventsIngested.WithLabelValues(string(history.EventCancelled)).Add(float64(s.Cancelled))
	m.EventsDropped.Add(float64(s.Dropped))
	m.IngestDuration.Observe(took.Seconds())
	m.IndexVehicles.Set(float64(s.Vehicles))
	m.IndexPolicies.Set(float64(s.Policies))
}

// ObserveRetrieve records one point-in-time query.
func (m *Metrics) ObserveRetrieve(data history.PolicyData, took time.Duration) {
	m.RetrieveDuration.Observe(took.Seconds())
	m.ActivePolicies.Set(float64(len(data.ActivePolicies)))
	m.HistoricVehicles.Set(float64(len(data.HistoricVehicles)))
}

// ObserveFetch records a feed fetch outcome.
func (m *Metrics) ObserveFetch(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.FeedFetches.WithLabelValues(status).Inc()
}

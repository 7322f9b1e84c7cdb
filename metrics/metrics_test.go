package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/warp/policy-history/history"
	"github.com/warp/policy-history/metrics"
)

func TestMetrics_ReporterCountsByKind(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	engine := history.NewEngine(history.WithReporter(m))

	engine.Store([]history.Event{
		{Kind: history.EventCreated, PolicyID: "P1"},
		{Kind: history.EventCancelled, PolicyID: "C1", Timestamp: time.Now()},
	})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Diagnostics.WithLabelValues("missing_vehicle")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Diagnostics.WithLabelValues("unmatched_reference")))
}

func TestMetrics_ObserveIngestAndRetrieve(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObserveIngest(history.IngestSummary{Created: 2, Extended: 1, Dropped: 1, Vehicles: 2, Policies: 2}, time.Millisecond)
	m.ObserveRetrieve(history.PolicyData{ActivePolicies: []history.Policy{{ID: "P1"}}}, time.Millisecond)
	m.ObserveFetch(nil)
	m.ObserveFetch(errors.New("boom"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.EventsIngested.WithLabelValues("policy_created")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsDropped))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.IndexVehicles))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActivePolicies))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FeedFetches.WithLabelValues("error")))
}

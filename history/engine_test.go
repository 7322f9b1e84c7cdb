package history_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/policy-history/history"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(opts ...history.Option) (*history.Engine, *history.Collector) {
	collector := &history.Collector{}
	opts = append([]history.Option{history.WithReporter(collector)}, opts...)
	return history.NewEngine(opts...), collector
}

func singlePolicy() []history.Event {
	return []history.Event{
		created("dev_pol_0000001", "MA77 GRO", date(time.August, 25), date(time.September, 2), date(time.August, 24)),
	}
}

// =============================================================================
// STORE / RETRIEVE
// =============================================================================

func TestRetrieve_EmptyStore(t *testing.T) {
	engine, _ := newTestEngine()

	engine.Store(nil)
	data := engine.Retrieve(time.Now())

	assert.Empty(t, data.ActivePolicies)
	assert.Empty(t, data.HistoricVehicles)
	assert.Empty(t, data.Views)
}

func TestStore_ReplacesIndex(t *testing.T) {
	// GIVEN: A populated index
	// WHEN: An empty batch is stored
	// THEN: Nothing is visible at any instant

	engine, _ := newTestEngine()
	engine.Store(singlePolicy())
	require.Len(t, engine.Retrieve(date(time.August, 28)).ActivePolicies, 1)

	engine.Store([]history.Event{})

	for _, asOf := range []time.Time{date(time.August, 28), date(time.September, 5), date(time.December, 31)} {
		data := engine.Retrieve(asOf)
		assert.Empty(t, data.ActivePolicies)
		assert.Empty(t, data.HistoricVehicles)
	}
	assert.Empty(t, engine.VehicleHistories())
}

func TestRetrieve_ActivePolicy(t *testing.T) {
	engine, _ := newTestEngine()
	engine.Store(singlePolicy())

	data := engine.Retrieve(date(time.August, 28))

	require.Len(t, data.ActivePolicies, 1)
	assert.Empty(t, data.HistoricVehicles)
	assert.Equal(t, history.PolicyID("dev_pol_0000001"), data.ActivePolicies[0].ID)
	assert.Equal(t, history.VehicleID("MA77 GRO"), data.ActivePolicies[0].VehicleID)

	view, ok := data.View("MA77 GRO")
	require.True(t, ok)
	assert.True(t, view.HasActivePolicy())
	assert.Empty(t, view.Historical)
}

func TestRetrieve_HistoricVehicle(t *testing.T) {
	engine, _ := newTestEngine()
	engine.Store(singlePolicy())

	data := engine.Retrieve(date(time.September, 5))

	assert.Empty(t, data.ActivePolicies)
	require.Len(t, data.HistoricVehicles, 1)
	assert.Equal(t, "MA77 GRO", data.HistoricVehicles[0].DisplayVRM)
	assert.Equal(t, "Volkswagen Polo", data.HistoricVehicles[0].MakeModel)

	view, _ := data.View("MA77 GRO")
	assert.Nil(t, view.Active)
	assert.Len(t, view.Historical, 1)
}

func TestRetrieve_LiteralRule(t *testing.T) {
	// The legacy predicate marks a policy active only after its end date.
	engine, _ := newTestEngine(history.WithActivityRule(history.ActiveLiteral))
	engine.Store(singlePolicy())

	mid := engine.Retrieve(date(time.August, 28))
	assert.Empty(t, mid.ActivePolicies)
	assert.Len(t, mid.HistoricVehicles, 1)

	after := engine.Retrieve(date(time.September, 5))
	assert.Len(t, after.ActivePolicies, 1)
	assert.Empty(t, after.HistoricVehicles)
}

func TestRetrieve_SkipsPoliciesRecordedAfterAsOf(t *testing.T) {
	// GIVEN: A policy whose created event was recorded on Aug 30
	// WHEN: Querying Aug 28, inside its term
	// THEN: The vehicle is not visible at all

	engine, _ := newTestEngine()
	engine.Store([]history.Event{
		created("P1", "MA77 GRO", date(time.August, 25), date(time.September, 2), date(time.August, 30)),
	})

	data := engine.Retrieve(date(time.August, 28))

	assert.Empty(t, data.ActivePolicies)
	assert.Empty(t, data.HistoricVehicles)
	assert.Empty(t, data.Views)
}

func TestRetrieve_ActiveVehicleKeepsHistoricalPolicies(t *testing.T) {
	engine, _ := newTestEngine()
	engine.Store([]history.Event{
		created("P2", "MA77 GRO", date(time.September, 1), date(time.September, 10), date(time.August, 31)),
		created("P1", "MA77 GRO", date(time.August, 1), date(time.August, 8), date(time.July, 31)),
	})

	data := engine.Retrieve(date(time.September, 3))

	require.Len(t, data.ActivePolicies, 1)
	assert.Equal(t, history.PolicyID("P2"), data.ActivePolicies[0].ID)
	assert.Empty(t, data.HistoricVehicles)

	view, ok := data.View("MA77 GRO")
	require.True(t, ok)
	require.Len(t, view.Historical, 1)
	assert.Equal(t, history.PolicyID("P1"), view.Historical[0].ID)
}

func TestRetrieve_MultiVehicleSeparation(t *testing.T) {
	// GIVEN: Two vehicles, one with current cover and one expired
	// THEN: Each lands in its own bucket with only its own policies

	engine, _ := newTestEngine()
	engine.Store([]history.Event{
		created("P1", "MA77 GRO", date(time.August, 25), date(time.September, 10), date(time.August, 24)),
		created("P2", "D1 PLO", date(time.August, 1), date(time.August, 2), date(time.July, 31)),
	})

	data := engine.Retrieve(date(time.September, 1))

	require.Len(t, data.ActivePolicies, 1)
	assert.Equal(t, history.VehicleID("MA77 GRO"), data.ActivePolicies[0].VehicleID)
	require.Len(t, data.HistoricVehicles, 1)
	assert.Equal(t, history.VehicleID("D1 PLO"), data.HistoricVehicles[0].ID)

	active, _ := engine.VehicleHistory("MA77 GRO")
	historic, _ := engine.VehicleHistory("D1 PLO")
	assert.Equal(t, 1, active.Len())
	assert.Equal(t, 1, historic.Len())
	assert.Equal(t, history.PolicyID("P1"), active.PolicyHistories()[0].ID())
	assert.Equal(t, history.PolicyID("P2"), historic.PolicyHistories()[0].ID())
}

func TestRetrieve_Idempotent(t *testing.T) {
	engine, _ := newTestEngine()
	engine.Store([]history.Event{
		created("P1", "MA77 GRO", date(time.August, 25), date(time.September, 10), date(time.August, 24)),
		created("P2", "D1 PLO", date(time.August, 1), date(time.August, 2), date(time.July, 31)),
	})

	first := engine.Retrieve(date(time.September, 1))
	second := engine.Retrieve(date(time.September, 1))

	assert.Equal(t, first, second)
}

func TestRetrieve_VehicleOrderFollowsBatch(t *testing.T) {
	engine, _ := newTestEngine()
	engine.Store([]history.Event{
		created("P3", "C3", date(time.August, 1), date(time.August, 2), date(time.July, 31)),
		created("P1", "A1", date(time.August, 1), date(time.August, 2), date(time.July, 31)),
		created("P2", "B2", date(time.August, 1), date(time.August, 2), date(time.July, 31)),
	})

	data := engine.Retrieve(date(time.September, 1))

	require.Len(t, data.HistoricVehicles, 3)
	assert.Equal(t, history.VehicleID("C3"), data.HistoricVehicles[0].ID)
	assert.Equal(t, history.VehicleID("A1"), data.HistoricVehicles[1].ID)
	assert.Equal(t, history.VehicleID("B2"), data.HistoricVehicles[2].ID)
}

// =============================================================================
// VEHICLE RESOLUTION
// =============================================================================

func TestStore_VehicleIDTrimmedAndFirstDescriptorWins(t *testing.T) {
	first := created("P1", " MA77 GRO ", date(time.August, 1), date(time.August, 8), date(time.July, 31))
	second := created("P2", "MA77 GRO", date(time.August, 10), date(time.August, 18), date(time.August, 9))
	second.Vehicle.Make = "Ford"
	second.Vehicle.Model = "Fiesta"

	engine, _ := newTestEngine()
	engine.Store([]history.Event{first, second})

	vhs := engine.VehicleHistories()
	require.Len(t, vhs, 1)
	assert.Equal(t, history.VehicleID("MA77 GRO"), vhs[0].Vehicle().ID)
	assert.Equal(t, " MA77 GRO ", vhs[0].Vehicle().DisplayVRM)
	assert.Equal(t, "Volkswagen Polo", vhs[0].Vehicle().MakeModel)
	assert.Equal(t, 2, vhs[0].Len())
}

func TestStore_MalformedVehicleDropped(t *testing.T) {
	// GIVEN: A created event with a whitespace-only registration mark
	// THEN: It is absent from the index, reported, and queries still work

	blank := created("P-bad", "   ", date(time.August, 1), date(time.August, 8), date(time.July, 31))
	noVehicle := created("P-none", "", date(time.August, 1), date(time.August, 8), date(time.July, 31))
	noVehicle.Vehicle = nil

	engine, collector := newTestEngine()
	summary := engine.Ingest(append(singlePolicy(), blank, noVehicle))

	assert.Equal(t, 2, collector.Count(history.DiagMissingVehicle))
	assert.Equal(t, 2, summary.Dropped)
	assert.Equal(t, 1, summary.Vehicles)
	_, found := engine.PolicyHistory("P-bad")
	assert.False(t, found)

	assert.NotPanics(t, func() {
		data := engine.Retrieve(date(time.August, 28))
		assert.Len(t, data.ActivePolicies, 1)
	})
}

func TestStore_CreatedWithoutTermDropped(t *testing.T) {
	ev := created("P1", "MA77 GRO", date(time.August, 1), date(time.August, 8), date(time.July, 31))
	ev.StartDate = nil

	engine, collector := newTestEngine()
	engine.Store([]history.Event{ev})

	assert.Equal(t, 1, collector.Count(history.DiagMissingTerm))
	assert.Empty(t, engine.VehicleHistories())
}

func TestStore_DroppedEventDoesNotDescribeVehicle(t *testing.T) {
	// GIVEN: A created event without a start date, then a usable one, for
	// the same registration mark
	bad := created("P0", "MA77 GRO", date(time.August, 1), date(time.August, 8), date(time.July, 30))
	bad.StartDate = nil
	bad.Vehicle.Make = "Ford"
	bad.Vehicle.Model = "Fiesta"
	good := created("P1", "MA77 GRO", date(time.August, 10), date(time.August, 18), date(time.August, 9))

	// WHEN: Storing both
	engine, collector := newTestEngine()
	engine.Store([]history.Event{bad, good})

	// THEN: The vehicle is described by the surviving event only
	assert.Equal(t, 1, collector.Count(history.DiagMissingTerm))
	vhs := engine.VehicleHistories()
	require.Len(t, vhs, 1)
	assert.Equal(t, "Volkswagen Polo", vhs[0].Vehicle().MakeModel)
	assert.Equal(t, 1, vhs[0].Len())

	data := engine.Retrieve(date(time.August, 12))
	require.Len(t, data.Views, 1)
	assert.Equal(t, "Volkswagen Polo", data.Views[0].Vehicle.MakeModel)
}

func TestStore_DroppedEventDoesNotSetVehicleOrder(t *testing.T) {
	// GIVEN: A termless event for vehicle A ahead of usable events for B then A
	badA := created("PA0", "AAA 111", date(time.August, 1), date(time.August, 8), date(time.July, 30))
	badA.EndDate = nil
	goodB := created("PB", "BBB 222", date(time.August, 1), date(time.August, 8), date(time.July, 30))
	goodA := created("PA", "AAA 111", date(time.August, 1), date(time.August, 8), date(time.July, 30))

	engine, _ := newTestEngine()
	engine.Store([]history.Event{badA, goodB, goodA})

	// THEN: Order follows the first usable event of each vehicle
	vhs := engine.VehicleHistories()
	require.Len(t, vhs, 2)
	assert.Equal(t, history.VehicleID("BBB 222"), vhs[0].Vehicle().ID)
	assert.Equal(t, history.VehicleID("AAA 111"), vhs[1].Vehicle().ID)
}

func TestStore_UnknownKindReported(t *testing.T) {
	odd := history.Event{Kind: "policy_renewed", Timestamp: date(time.August, 1), PolicyID: "P9"}

	engine, collector := newTestEngine()
	summary := engine.Ingest(append(singlePolicy(), odd))

	assert.Equal(t, 1, summary.Dropped)
	assert.Equal(t, 1, collector.Count(history.DiagUnknownKind))
	require.Len(t, summary.Diagnostics, 1)
	d := summary.Diagnostics[0]
	assert.Equal(t, history.PolicyID("P9"), d.PolicyID)
	assert.ErrorIs(t, d, history.ErrUnknownEventKind)
	assert.True(t, history.IsMalformedEvent(d))
}

// =============================================================================
// EXTENSIONS AND CANCELLATIONS
// =============================================================================

func TestStore_FoldsExtensionsAndCancellation(t *testing.T) {
	engine, collector := newTestEngine()
	engine.Store([]history.Event{
		cancelled("E2", date(time.September, 4), ptr(date(time.September, 7))),
		extended("E2", "P", date(time.September, 2), date(time.September, 8), date(time.September, 3)),
		created("P", "MA77 GRO", date(time.August, 25), date(time.September, 2), date(time.August, 24)),
		extended("E1", "P", date(time.September, 2), date(time.September, 5), date(time.September, 1)),
	})

	p, ok := engine.PolicyHistory("E2")
	require.True(t, ok)
	assert.Equal(t, history.PolicyID("P"), p.ID())
	assert.Len(t, p.Extensions(), 2)
	assert.Equal(t, date(time.September, 7), p.EndDate())
	assert.Empty(t, collector.Diagnostics())
}

func TestStore_ExtensionOfExtensionResolvesInAnyOrder(t *testing.T) {
	// GIVEN: E2 extends E1 which extends P, listed before both
	// THEN: Both fold into P

	engine, collector := newTestEngine()
	engine.Store([]history.Event{
		extended("E2", "E1", date(time.September, 5), date(time.September, 9), date(time.September, 4)),
		extended("E1", "P", date(time.September, 2), date(time.September, 5), date(time.September, 1)),
		created("P", "MA77 GRO", date(time.August, 25), date(time.September, 2), date(time.August, 24)),
	})

	p, ok := engine.PolicyHistory("P")
	require.True(t, ok)
	assert.True(t, p.ContainsPolicy("E2"))
	assert.Equal(t, date(time.September, 9), p.EndDate())
	assert.Empty(t, collector.Diagnostics())
}

func TestStore_ExtensionWithoutOriginalReported(t *testing.T) {
	engine, collector := newTestEngine()
	summary := engine.Ingest(append(singlePolicy(),
		extended("E1", "", date(time.September, 2), date(time.September, 5), date(time.September, 1)),
	))

	require.Len(t, collector.Diagnostics(), 1)
	d := collector.Diagnostics()[0]
	assert.Equal(t, history.DiagMissingOriginalPolicy, d.Kind)
	assert.ErrorIs(t, d, history.ErrMissingOriginalPolicy)
	assert.True(t, history.IsUnresolvedReference(d))
	assert.Equal(t, 1, summary.Extended)
	assert.Equal(t, 1, summary.Dropped)

	p, _ := engine.PolicyHistory("dev_pol_0000001")
	assert.Empty(t, p.Extensions())
}

func TestStore_UnmatchedReferencesReported(t *testing.T) {
	engine, collector := newTestEngine()
	engine.Store(append(singlePolicy(),
		extended("E9", "missing", date(time.September, 2), date(time.September, 5), date(time.September, 1)),
		cancelled("C9", date(time.September, 1), nil),
	))

	assert.Equal(t, 2, collector.Count(history.DiagUnmatchedReference))
	for _, d := range collector.Diagnostics() {
		assert.ErrorIs(t, d, history.ErrUnmatchedReference)
	}

	data := engine.Retrieve(date(time.August, 28))
	require.Len(t, data.ActivePolicies, 1)
	assert.Equal(t, date(time.September, 2), data.ActivePolicies[0].Term.EndDate())
}

func TestStore_CancellationEndsCover(t *testing.T) {
	engine, _ := newTestEngine()
	engine.Store(append(singlePolicy(),
		cancelled("dev_pol_0000001", date(time.August, 27), nil),
	))

	data := engine.Retrieve(date(time.August, 28))

	assert.Empty(t, data.ActivePolicies)
	assert.Len(t, data.HistoricVehicles, 1)
}

func TestIngest_Summary(t *testing.T) {
	engine, _ := newTestEngine()
	summary := engine.Ingest([]history.Event{
		created("P1", "MA77 GRO", date(time.August, 25), date(time.September, 2), date(time.August, 24)),
		created("P2", "D1 PLO", date(time.August, 25), date(time.September, 2), date(time.August, 24)),
		extended("E1", "P1", date(time.September, 2), date(time.September, 5), date(time.September, 1)),
		cancelled("P2", date(time.August, 30), nil),
	})

	assert.Equal(t, 4, summary.Events)
	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 1, summary.Extended)
	assert.Equal(t, 1, summary.Cancelled)
	assert.Equal(t, 2, summary.Vehicles)
	assert.Equal(t, 2, summary.Policies)
	assert.Zero(t, summary.Dropped)
	assert.Empty(t, summary.Diagnostics)
}

func TestNewEngine_NilReporter(t *testing.T) {
	engine := history.NewEngine(history.WithReporter(nil))

	assert.NotPanics(t, func() {
		engine.Store([]history.Event{cancelled("C1", date(time.September, 1), nil)})
	})
	assert.Equal(t, history.ActiveOngoing, engine.ActivityRule())
}

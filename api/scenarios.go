/*
scenarios.go - Demo event batches for testing and demonstrations

PURPOSE:

	Provides pre-built event batches that exercise the reconstruction
	engine. Each scenario is generated relative to the handler's clock so
	that "now" always falls somewhere interesting.

AVAILABLE SCENARIOS:

	empty:                  No events
	single-active:          One vehicle with one running policy
	extended-and-cancelled: An extension chain and a cancellation
	mixed-fleet:            Expired, running and future policies
	malformed:              Events that are dropped with diagnostics

HOW SCENARIOS WORK:
 1. Build the events for the scenario at the handler's clock
 2. Archive them as a batch (source "scenario:<id>")
 3. Rebuild the index, replacing whatever was loaded before

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "mixed-fleet"}

ADDING NEW SCENARIOS:
 1. Add an entry to 'scenarios' with ID, name, description and builder

SEE ALSO:
  - handlers.go: ingestion path shared with POST /api/events
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/warp/policy-history/history"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	build func(now time.Time) []history.Event
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "empty",
			Name:        "Empty",
			Description: "No events. Every query returns empty lists.",
		},
		build: func(time.Time) []history.Event { return []history.Event{} },
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "single-active",
			Name:        "Single Active Policy",
			Description: "One vehicle with a seven day policy that started yesterday",
		},
		build: buildSingleActive,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "extended-and-cancelled",
			Name:        "Extended And Cancelled",
			Description: "A policy extended twice, and another cancelled early",
		},
		build: buildExtendedAndCancelled,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "mixed-fleet",
			Name:        "Mixed Fleet",
			Description: "Vehicles with expired, running and future policies",
		},
		build: buildMixedFleet,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "malformed",
			Name:        "Malformed Feed",
			Description: "Missing vehicles and dangling references alongside one valid policy",
		},
		build: buildMalformed,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios handles GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	list := make([]ScenarioDTO, 0, len(scenarios))
	for _, s := range scenarios {
		list = append(list, s.ScenarioDTO)
	}
	writeJSON(w, http.StatusOK, list)
}

// GetCurrentScenario handles GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current, batchID := h.currentScenario, h.lastBatchID
	h.mu.RUnlock()

	if current == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"scenario_id": nil,
			"batch_id":    batchID,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scenario_id": current,
		"batch_id":    batchID,
	})
}

// LoadScenario handles POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown scenario: "+req.ScenarioID, nil)
		return
	}

	// Feed instants carry millisecond precision.
	now := h.now().UTC().Truncate(time.Millisecond)
	resp, err := h.ingest(r.Context(), "scenario:"+s.ID, s.ID, s.build(now))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load scenario", err)
		return
	}

	h.log.Info().Str("scenario", s.ID).Str("batch_id", resp.BatchID).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// BUILDERS
// =============================================================================

const day = 24 * time.Hour

func tp(t time.Time) *time.Time { return &t }

func vehicle(vrm, manufacturer, model string) *history.VehicleDescriptor {
	return &history.VehicleDescriptor{PrettyVRM: vrm, Make: manufacturer, Model: model}
}

func createdEvent(id string, issued, start time.Time, length time.Duration, v *history.VehicleDescriptor) history.Event {
	return history.Event{
		Kind:      history.EventCreated,
		Timestamp: issued,
		PolicyID:  history.PolicyID(id),
		StartDate: tp(start),
		EndDate:   tp(start.Add(length)),
		Vehicle:   v,
	}
}

func extensionEvent(id, original string, issued, start, end time.Time) history.Event {
	return history.Event{
		Kind:             history.EventExtended,
		Timestamp:        issued,
		PolicyID:         history.PolicyID(id),
		OriginalPolicyID: history.PolicyID(original),
		StartDate:        tp(start),
		EndDate:          tp(end),
	}
}

func cancellationEvent(id string, issued time.Time, newEnd *time.Time) history.Event {
	return history.Event{
		Kind:       history.EventCancelled,
		Timestamp:  issued,
		PolicyID:   history.PolicyID(id),
		NewEndDate: newEnd,
	}
}

func buildSingleActive(now time.Time) []history.Event {
	start := now.Add(-day)
	return []history.Event{
		createdEvent("demo-single-1", start.Add(-time.Hour), start, 7*day, vehicle("AB12 CDE", "Volkswagen", "Polo")),
	}
}

func buildExtendedAndCancelled(now time.Time) []history.Event {
	golf := vehicle("GF19 XYZ", "Volkswagen", "Golf")
	mini := vehicle("MN70 OPQ", "Mini", "Cooper")

	firstStart := now.Add(-3 * day)
	firstEnd := firstStart.Add(2 * day)
	secondEnd := firstEnd.Add(2 * day)

	cancelStart := now.Add(-2 * day)
	cancelAt := now.Add(-6 * time.Hour)

	return []history.Event{
		createdEvent("demo-ext-1", firstStart.Add(-time.Hour), firstStart, 2*day, golf),
		extensionEvent("demo-ext-2", "demo-ext-1", firstEnd.Add(-2*time.Hour), firstEnd, secondEnd),
		// Extends the extension; folds into demo-ext-1.
		extensionEvent("demo-ext-3", "demo-ext-2", now.Add(-time.Hour), secondEnd, secondEnd.Add(day)),
		createdEvent("demo-cancel-1", cancelStart.Add(-time.Hour), cancelStart, 7*day, mini),
		cancellationEvent("demo-cancel-1", cancelAt, nil),
	}
}

func buildMixedFleet(now time.Time) []history.Event {
	polo := vehicle("AB12 CDE", "Volkswagen", "Polo")
	fiesta := vehicle("FI16 STA", "Ford", "Fiesta")
	corsa := vehicle("CO21 RSA", "Vauxhall", "Corsa")

	expiredStart := now.Add(-30 * day)
	runningStart := now.Add(-2 * time.Hour)
	futureStart := now.Add(2 * day)

	return []history.Event{
		// Polo: one expired policy and one running.
		createdEvent("demo-fleet-1", expiredStart.Add(-time.Hour), expiredStart, 3*day, polo),
		createdEvent("demo-fleet-2", runningStart.Add(-time.Hour), runningStart, 12*time.Hour, polo),
		// Fiesta: only expired cover.
		createdEvent("demo-fleet-3", expiredStart.Add(-time.Hour), expiredStart, 1*day, fiesta),
		// Corsa: bought now, starts in two days.
		createdEvent("demo-fleet-4", now.Add(-time.Minute), futureStart, 7*day, corsa),
	}
}

func buildMalformed(now time.Time) []history.Event {
	start := now.Add(-day)
	return []history.Event{
		createdEvent("demo-bad-1", start.Add(-time.Hour), start, 3*day, vehicle("GO0D CAR", "Toyota", "Yaris")),
		createdEvent("demo-bad-2", start.Add(-time.Hour), start, 3*day, nil),
		extensionEvent("demo-bad-3", "does-not-exist", start, start.Add(3*day), start.Add(4*day)),
		cancellationEvent("also-missing", now.Add(-time.Hour), nil),
	}
}

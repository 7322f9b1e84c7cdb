/*
Package history reconstructs per-vehicle insurance policy histories from a
batch of lifecycle events.

PURPOSE:
  Policy events arrive as an unordered batch. Extensions and cancellations
  reference an earlier policy by id and have to be folded into that policy's
  term. This package classifies a batch, folds each policy's chain into a
  single authoritative end date, groups policies per vehicle and answers
  point-in-time queries ("which policies are active on T, which vehicles
  only have expired cover").

KEY CONCEPTS IN THIS FILE (types.go):
  - Event: An immutable lifecycle fact (created, extended, cancelled)
  - Vehicle: Identity and display attributes of an insured vehicle
  - Policy: Immutable query-time snapshot of one reconstructed policy
  - PolicyData: The result bundle of a point-in-time query

DESIGN PRINCIPLES:
  1. Events are never mutated, only aggregated
  2. Malformed events are dropped and reported, never fatal to a batch
  3. Query results are fresh values; nothing returned is shared with the index
  4. The index is replaced wholesale on every ingestion

USAGE:
  engine := history.NewEngine(history.WithReporter(reporter))
  engine.Store(events)
  data := engine.Retrieve(time.Now())

SEE ALSO:
  - policy_history.go: Folding of extensions and cancellations
  - vehicle_history.go: Per-vehicle ordering
  - engine.go: Batch classification and point-in-time query
  - diagnostics.go: Out-of-band reporting of malformed events
*/
package history

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PolicyID string
type VehicleID string

// =============================================================================
// EVENT - Immutable lifecycle fact
// =============================================================================

// EventKind identifies the lifecycle step an event records.
// Values match the feed's wire names.
type EventKind string

const (
	EventCreated   EventKind = "policy_created"
	EventExtended  EventKind = "policy_extension"
	EventCancelled EventKind = "policy_cancelled"
)

// Valid reports whether k is one of the known kinds.
func (k EventKind) Valid() bool {
	switch k {
	case EventCreated, EventExtended, EventCancelled:
		return true
	}
	return false
}

// ParseEventKind converts a wire name into an EventKind.
func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventKind, s)
	}
	return k, nil
}

// VehicleDescriptor is the vehicle payload carried by a created event.
type VehicleDescriptor struct {
	PrettyVRM string
	Make      string
	Model     string
}

// Event is one decoded lifecycle fact.
//
// Timestamp is when the event was recorded. It orders extensions and
// decides visibility in point-in-time queries; it is never the start of
// cover. Optional fields are nil (or empty for ids) when absent.
type Event struct {
	Kind      EventKind
	Timestamp time.Time
	PolicyID  PolicyID

	// Set on extensions only.
	OriginalPolicyID PolicyID

	// Required on created and extended events.
	StartDate *time.Time
	EndDate   *time.Time

	// Required on created events.
	Vehicle *VehicleDescriptor

	// May be set on cancellations; overrides the cancellation timestamp.
	NewEndDate *time.Time
}

// VehicleID resolves the vehicle identity of the event: the registration
// mark with surrounding whitespace trimmed. It reports false when there is
// no descriptor or the mark is blank.
func (e Event) VehicleID() (VehicleID, bool) {
	if e.Vehicle == nil {
		return "", false
	}
	id := strings.TrimSpace(e.Vehicle.PrettyVRM)
	if id == "" {
		return "", false
	}
	return VehicleID(id), true
}

// MakeVehicle builds the Vehicle described by the event, if resolvable.
func (e Event) MakeVehicle() (Vehicle, bool) {
	id, ok := e.VehicleID()
	if !ok {
		return Vehicle{}, false
	}
	return Vehicle{
		ID:         id,
		DisplayVRM: e.Vehicle.PrettyVRM,
		MakeModel:  e.Vehicle.Make + " " + e.Vehicle.Model,
	}, true
}

// hasTerm reports whether both start and end dates are present.
func (e Event) hasTerm() bool {
	return e.StartDate != nil && e.EndDate != nil
}

// =============================================================================
// VEHICLE
// =============================================================================

// Vehicle is the identity of an insured vehicle. It holds no policy state:
// per-query policy views live in VehicleView.
type Vehicle struct {
	ID         VehicleID
	DisplayVRM string
	MakeModel  string
}

// =============================================================================
// POLICY - Query-time snapshot
// =============================================================================

// PolicyTerm is the span of cover.
type PolicyTerm struct {
	StartDate time.Time
	Duration  time.Duration
}

// EndDate returns StartDate + Duration.
func (t PolicyTerm) EndDate() time.Time { return t.StartDate.Add(t.Duration) }

// Policy is an immutable snapshot produced fresh on every query.
// It refers to its vehicle by id only.
type Policy struct {
	ID        PolicyID
	Term      PolicyTerm
	VehicleID VehicleID
}

// =============================================================================
// QUERY RESULT
// =============================================================================

// VehicleView is the per-query state of one vehicle.
type VehicleView struct {
	Vehicle    Vehicle
	Active     *Policy
	Historical []Policy
}

// HasActivePolicy reports whether the view carries an active policy.
func (v VehicleView) HasActivePolicy() bool { return v.Active != nil }

// PolicyData is the result of a point-in-time query.
//
// ActivePolicies holds one policy per vehicle with active cover.
// HistoricVehicles holds vehicles whose visible policies are all inactive.
// Views holds every visible vehicle, in the same order, with its active
// and historical policies.
type PolicyData struct {
	AsOf             time.Time
	ActivePolicies   []Policy
	HistoricVehicles []Vehicle
	Views            []VehicleView
}

// View returns the view for one vehicle, if it was visible in the query.
func (d PolicyData) View(id VehicleID) (VehicleView, bool) {
	for _, v := range d.Views {
		if v.Vehicle.ID == id {
			return v, true
		}
	}
	return VehicleView{}, false
}

/*
engine.go - Batch reconstruction and point-in-time queries

PURPOSE:
  The Engine owns the in-memory index of vehicle histories. Store replaces
  the index from a batch of events; Retrieve partitions the index into
  vehicles with an active policy and vehicles with only historical ones.

RECONSTRUCTION STEPS (Store):
  1. Classify events into created / extended / cancelled buckets
  2. Seed one PolicyHistory per usable created event
  3. Resolve vehicles (trimmed registration mark, first seeded descriptor wins)
  4. Fold extensions into the history that contains their original id
  5. Apply cancellations to the history that contains their own id
  6. Group histories per vehicle, ordered by start date
  7. Swap the new index in

ORDERING:
  Batch order is not significant. Extensions are folded in timestamp order
  and repeatedly, so an extension of an extension resolves regardless of
  where it sits in the batch. Vehicles keep the order in which their first
  created event appeared, which makes query output deterministic.

CONCURRENCY:
  The Engine is not safe for concurrent use. Callers serialize Store against
  Retrieve (see api.Handler).

FAILURES:
  Nothing in a batch can fail Store. Unusable events are dropped and handed
  to the Reporter as Diagnostic values.

SEE ALSO:
  - policy_history.go: EndDate resolution
  - activity.go: Active predicate
  - diagnostics.go: Reporter
*/
package history

import (
	"sort"
	"time"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	reporter Reporter
	rule     ActivityRule
	index    *index
}

// index is the stored result of one ingestion.
type index struct {
	order     []VehicleID
	histories map[VehicleID]*VehicleHistory
}

func emptyIndex() *index {
	return &index{histories: make(map[VehicleID]*VehicleHistory)}
}

// Option configures an Engine.
type Option func(*Engine)

// WithReporter sets where diagnostics go. Nil discards them.
func WithReporter(r Reporter) Option {
	return func(e *Engine) {
		if r == nil {
			r = nopReporter{}
		}
		e.reporter = r
	}
}

// WithActivityRule selects the active predicate. Default is ActiveOngoing.
func WithActivityRule(rule ActivityRule) Option {
	return func(e *Engine) { e.rule = rule }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		reporter: nopReporter{},
		rule:     ActiveOngoing,
		index:    emptyIndex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ActivityRule returns the configured active predicate.
func (e *Engine) ActivityRule() ActivityRule { return e.rule }

// =============================================================================
// STORE
// =============================================================================

// IngestSummary counts what happened to one batch.
type IngestSummary struct {
	Events      int
	Created     int
	Extended    int
	Cancelled   int
	Vehicles    int
	Policies    int
	Dropped     int
	Diagnostics []Diagnostic
}

// Store rebuilds the index from events, replacing any previous index.
func (e *Engine) Store(events []Event) {
	e.Ingest(events)
}

// Ingest is Store with a summary of the batch.
func (e *Engine) Ingest(events []Event) IngestSummary {
	b := &builder{
		reporter: e.reporter,
		vehicles: make(map[VehicleID]Vehicle),
		owners:   make(map[PolicyID]*PolicyHistory),
	}
	b.summary.Events = len(events)

	b.classify(events)
	b.seed()
	b.foldExtensions()
	b.applyCancellations()
	idx := b.group()

	b.summary.Vehicles = len(idx.order)
	b.summary.Policies = len(b.policies)
	e.index = idx
	return b.summary
}

// builder holds the working state of one ingestion.
type builder struct {
	reporter Reporter
	summary  IngestSummary

	created   []Event
	extended  []Event
	cancelled []Event

	vehicleOrder []VehicleID
	vehicles     map[VehicleID]Vehicle

	policies []*PolicyHistory
	// owners maps every constituent event id to its history.
	// The first history to claim an id keeps it.
	owners map[PolicyID]*PolicyHistory
}

func (b *builder) report(d Diagnostic) {
	b.summary.Diagnostics = append(b.summary.Diagnostics, d)
	b.reporter.Report(d)
}

func (b *builder) claim(id PolicyID, p *PolicyHistory) {
	if _, taken := b.owners[id]; !taken {
		b.owners[id] = p
	}
}

func (b *builder) classify(events []Event) {
	for _, ev := range events {
		switch ev.Kind {
		case EventCreated:
			b.summary.Created++
			if _, ok := ev.VehicleID(); !ok {
				b.summary.Dropped++
				b.report(Diagnostic{Kind: DiagMissingVehicle, EventKind: ev.Kind, PolicyID: ev.PolicyID})
				continue
			}
			b.created = append(b.created, ev)
		case EventExtended:
			b.summary.Extended++
			if ev.OriginalPolicyID == "" {
				b.report(Diagnostic{Kind: DiagMissingOriginalPolicy, EventKind: ev.Kind, PolicyID: ev.PolicyID})
			}
			b.extended = append(b.extended, ev)
		case EventCancelled:
			b.summary.Cancelled++
			b.cancelled = append(b.cancelled, ev)
		default:
			b.summary.Dropped++
			b.report(Diagnostic{Kind: DiagUnknownKind, EventKind: ev.Kind, PolicyID: ev.PolicyID})
		}
	}
}

// seed creates one history per usable created event. A vehicle's display
// attributes come from its first seeded event; dropped events never set them.
func (b *builder) seed() {
	for _, ev := range b.created {
		p, err := NewPolicyHistory(ev)
		if err != nil {
			b.summary.Dropped++
			b.report(Diagnostic{Kind: DiagMissingTerm, EventKind: ev.Kind, PolicyID: ev.PolicyID})
			continue
		}
		b.policies = append(b.policies, p)
		b.claim(p.ID(), p)

		vehicle, _ := ev.MakeVehicle()
		if _, seen := b.vehicles[vehicle.ID]; !seen {
			b.vehicles[vehicle.ID] = vehicle
			b.vehicleOrder = append(b.vehicleOrder, vehicle.ID)
		}
	}
}

// foldExtensions attaches extensions in timestamp order, sweeping until no
// pending extension can be resolved. Whatever is left is unmatched.
func (b *builder) foldExtensions() {
	pending := make([]Event, 0, len(b.extended))
	for _, ev := range b.extended {
		if ev.OriginalPolicyID == "" {
			// Already reported; nothing can match an empty reference.
			b.summary.Dropped++
			continue
		}
		if !ev.hasTerm() {
			b.summary.Dropped++
			b.report(Diagnostic{Kind: DiagMissingTerm, EventKind: ev.Kind, PolicyID: ev.PolicyID, Reference: ev.OriginalPolicyID})
			continue
		}
		pending = append(pending, ev)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Timestamp.Before(pending[j].Timestamp)
	})

	for progressed := true; progressed && len(pending) > 0; {
		progressed = false
		rest := pending[:0]
		for _, ev := range pending {
			owner, ok := b.owners[ev.OriginalPolicyID]
			if !ok {
				rest = append(rest, ev)
				continue
			}
			// hasTerm was checked above, so AppendExtension cannot fail.
			_ = owner.AppendExtension(ev)
			b.claim(ev.PolicyID, owner)
			progressed = true
		}
		pending = rest
	}

	for _, ev := range pending {
		b.summary.Dropped++
		b.report(Diagnostic{Kind: DiagUnmatchedReference, EventKind: ev.Kind, PolicyID: ev.PolicyID, Reference: ev.OriginalPolicyID})
	}
}

func (b *builder) applyCancellations() {
	for _, ev := range b.cancelled {
		owner, ok := b.owners[ev.PolicyID]
		if !ok {
			b.summary.Dropped++
			b.report(Diagnostic{Kind: DiagUnmatchedReference, EventKind: ev.Kind, PolicyID: ev.PolicyID, Reference: ev.PolicyID})
			continue
		}
		owner.SetCancellation(ev)
	}
}

func (b *builder) group() *index {
	idx := emptyIndex()
	for _, p := range b.policies {
		vh, ok := idx.histories[p.VehicleID()]
		if !ok {
			vh = NewVehicleHistory(b.vehicles[p.VehicleID()])
			idx.histories[p.VehicleID()] = vh
		}
		vh.AppendPolicyHistory(p)
	}
	idx.order = b.vehicleOrder
	return idx
}

// =============================================================================
// RETRIEVE
// =============================================================================

// Retrieve partitions the index at asOf.
//
// For each vehicle only histories whose original event was recorded before
// asOf are visible; vehicles with none are skipped. The first visible
// history (by start date) that is active becomes the vehicle's active
// policy and every other visible history is historical. A vehicle with no
// active history is listed in HistoricVehicles.
//
// Retrieve does not modify the index.
func (e *Engine) Retrieve(asOf time.Time) PolicyData {
	data := PolicyData{
		AsOf:             asOf,
		ActivePolicies:   []Policy{},
		HistoricVehicles: []Vehicle{},
		Views:            []VehicleView{},
	}

	for _, id := range e.index.order {
		vh := e.index.histories[id]

		var visible []*PolicyHistory
		for _, p := range vh.policies {
			if p.Timestamp().Before(asOf) {
				visible = append(visible, p)
			}
		}
		if len(visible) == 0 {
			continue
		}

		var active *PolicyHistory
		for _, p := range visible {
			if p.IsActive(asOf, e.rule) {
				active = p
				break
			}
		}

		view := VehicleView{Vehicle: vh.vehicle, Historical: []Policy{}}
		for _, p := range visible {
			if p == active {
				continue
			}
			view.Historical = append(view.Historical, p.Policy())
		}

		if active != nil {
			policy := active.Policy()
			view.Active = &policy
			data.ActivePolicies = append(data.ActivePolicies, policy)
		} else {
			data.HistoricVehicles = append(data.HistoricVehicles, vh.vehicle)
		}
		data.Views = append(data.Views, view)
	}
	return data
}

// =============================================================================
// READ ACCESSORS
// =============================================================================

// VehicleHistories returns the index in vehicle order.
func (e *Engine) VehicleHistories() []*VehicleHistory {
	out := make([]*VehicleHistory, 0, len(e.index.order))
	for _, id := range e.index.order {
		out = append(out, e.index.histories[id])
	}
	return out
}

// VehicleHistory returns one vehicle's history.
func (e *Engine) VehicleHistory(id VehicleID) (*VehicleHistory, bool) {
	vh, ok := e.index.histories[id]
	return vh, ok
}

// PolicyHistory finds the history containing id (original, extension or
// cancellation id).
func (e *Engine) PolicyHistory(id PolicyID) (*PolicyHistory, bool) {
	for _, vid := range e.index.order {
		for _, p := range e.index.histories[vid].policies {
			if p.ContainsPolicy(id) {
				return p, true
			}
		}
	}
	return nil, false
}

package history

import (
	"sort"
	"time"
)

// =============================================================================
// POLICY HISTORY - One policy and everything that amended it
// =============================================================================

// PolicyHistory aggregates a policy's original created event with the
// extensions and cancellation that reference it.
//
// INVARIANTS:
//   - StartDate comes from the original event and never changes.
//   - Extensions stay sorted ascending by timestamp.
//   - EndDate is derived on every call, never stored.
type PolicyHistory struct {
	original     Event
	vehicleID    VehicleID
	extensions   []Event
	cancellation *Event
}

// NewPolicyHistory seeds a history from a created event. The event must
// carry a resolvable vehicle and both term dates.
func NewPolicyHistory(original Event) (*PolicyHistory, error) {
	vehicleID, ok := original.VehicleID()
	if !ok {
		return nil, ErrMissingVehicle
	}
	if !original.hasTerm() {
		return nil, ErrMissingTerm
	}
	return &PolicyHistory{original: original, vehicleID: vehicleID}, nil
}

func (p *PolicyHistory) ID() PolicyID         { return p.original.PolicyID }
func (p *PolicyHistory) VehicleID() VehicleID { return p.vehicleID }
func (p *PolicyHistory) Original() Event      { return p.original }
func (p *PolicyHistory) Timestamp() time.Time { return p.original.Timestamp }
func (p *PolicyHistory) StartDate() time.Time { return *p.original.StartDate }

// EndDate resolves the authoritative end of cover:
//  1. a cancellation wins, using its new end date or else its timestamp
//  2. otherwise the latest extension's end date
//  3. otherwise the original end date
func (p *PolicyHistory) EndDate() time.Time {
	if p.cancellation != nil {
		if p.cancellation.NewEndDate != nil {
			return *p.cancellation.NewEndDate
		}
		return p.cancellation.Timestamp
	}
	if n := len(p.extensions); n > 0 {
		return *p.extensions[n-1].EndDate
	}
	return *p.original.EndDate
}

// Extensions returns the folded extensions, oldest first.
func (p *PolicyHistory) Extensions() []Event {
	out := make([]Event, len(p.extensions))
	copy(out, p.extensions)
	return out
}

// Cancellation returns the winning cancellation, if any.
func (p *PolicyHistory) Cancellation() (Event, bool) {
	if p.cancellation == nil {
		return Event{}, false
	}
	return *p.cancellation, true
}

// IsCancelled reports whether a cancellation has been applied.
func (p *PolicyHistory) IsCancelled() bool { return p.cancellation != nil }

// AppendExtension folds an extension into the history, keeping the list
// ordered by timestamp. Extensions with equal timestamps keep arrival order.
func (p *PolicyHistory) AppendExtension(ext Event) error {
	if ext.EndDate == nil {
		return ErrMissingTerm
	}
	i := sort.Search(len(p.extensions), func(i int) bool {
		return p.extensions[i].Timestamp.After(ext.Timestamp)
	})
	p.extensions = append(p.extensions, Event{})
	copy(p.extensions[i+1:], p.extensions[i:])
	p.extensions[i] = ext
	return nil
}

// SetCancellation applies a cancellation. When several cancellations target
// the same policy the latest timestamp wins; on a tie the last one applied
// wins.
func (p *PolicyHistory) SetCancellation(c Event) {
	if p.cancellation != nil && c.Timestamp.Before(p.cancellation.Timestamp) {
		return
	}
	p.cancellation = &c
}

// ContainsPolicy reports whether id is the original policy, one of its
// extensions, or its cancellation.
func (p *PolicyHistory) ContainsPolicy(id PolicyID) bool {
	if p.original.PolicyID == id {
		return true
	}
	for _, ext := range p.extensions {
		if ext.PolicyID == id {
			return true
		}
	}
	return p.cancellation != nil && p.cancellation.PolicyID == id
}

// IsActive applies rule to the resolved term at instant on.
func (p *PolicyHistory) IsActive(on time.Time, rule ActivityRule) bool {
	return rule.IsActive(p.StartDate(), p.EndDate(), on)
}

// Term returns the resolved term. A cancellation that lands before the
// start date yields a negative duration, which callers treat as expired.
func (p *PolicyHistory) Term() PolicyTerm {
	start := p.StartDate()
	return PolicyTerm{StartDate: start, Duration: p.EndDate().Sub(start)}
}

// Policy builds a fresh snapshot of the resolved policy.
func (p *PolicyHistory) Policy() Policy {
	return Policy{ID: p.ID(), Term: p.Term(), VehicleID: p.vehicleID}
}

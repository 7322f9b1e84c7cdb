/*
Package feed decodes the policy event feed into history.Event values.

PURPOSE:
  The engine consumes strongly typed events. This package owns the wire
  contract: snake_case keys, a camelCase vehicle registration key, and
  instants in one fixed UTC layout with millisecond precision.

WIRE SCHEMA:
  [
    {
      "type": "policy_created",
      "payload": {
        "timestamp": "2021-08-31T18:11:31.031Z",
        "policy_id": "dev_pol_0000003",
        "original_policy_id": null,
        "start_date": "2021-08-31T18:11:31.031Z",
        "end_date": "2021-08-31T19:11:31.031Z",
        "vehicle": {"prettyVrm": "MA77 GRO", "make": "Volkswagen", "model": "Polo"},
        "new_end_date": null
      }
    }
  ]

ERRORS:
  Any unparseable instant or unknown type fails the whole decode with a
  *DecodeError. Field presence rules (vehicle on create, original id on
  extend) are NOT checked here; the engine reports those per event.

SEE ALSO:
  - client.go: HTTP fetch of the feed
  - history/types.go: Event
*/
package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/policy-history/history"
)

// TimeLayout is the feed's instant format.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// ParseTime parses a feed instant as UTC.
func ParseTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s, time.UTC)
}

// FormatTime renders t in the feed layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// EventJSON is one event on the wire.
type EventJSON struct {
	Type    string      `json:"type"`
	Payload PayloadJSON `json:"payload"`
}

// PayloadJSON is the event payload on the wire.
type PayloadJSON struct {
	Timestamp        string       `json:"timestamp"`
	PolicyID         string       `json:"policy_id"`
	OriginalPolicyID *string      `json:"original_policy_id,omitempty"`
	StartDate        *string      `json:"start_date,omitempty"`
	EndDate          *string      `json:"end_date,omitempty"`
	Vehicle          *VehicleJSON `json:"vehicle,omitempty"`
	NewEndDate       *string      `json:"new_end_date,omitempty"`
}

// VehicleJSON is the vehicle descriptor on the wire.
type VehicleJSON struct {
	PrettyVRM string `json:"prettyVrm"`
	Make      string `json:"make"`
	Model     string `json:"model"`
}

// DecodeError locates a decode failure inside a feed document.
type DecodeError struct {
	Index int    // event position, -1 for document-level errors
	Field string // wire field name, empty for document-level errors
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("decode feed: %v", e.Err)
	}
	return fmt.Sprintf("decode feed: event %d: %s: %v", e.Index, e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// =============================================================================
// DECODE
// =============================================================================

// Decode parses a feed document.
func Decode(data []byte) ([]history.Event, error) {
	var wire []EventJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &DecodeError{Index: -1, Err: err}
	}
	return FromWire(wire)
}

// FromWire converts already-unmarshaled wire events.
func FromWire(wire []EventJSON) ([]history.Event, error) {
	events := make([]history.Event, 0, len(wire))
	for i, w := range wire {
		ev, de := w.toEvent()
		if de != nil {
			de.Index = i
			return nil, de
		}
		events = append(events, ev)
	}
	return events, nil
}

func (w EventJSON) toEvent() (history.Event, *DecodeError) {
	kind, err := history.ParseEventKind(w.Type)
	if err != nil {
		return history.Event{}, &DecodeError{Field: "type", Err: err}
	}

	ts, err := ParseTime(w.Payload.Timestamp)
	if err != nil {
		return history.Event{}, &DecodeError{Field: "timestamp", Err: err}
	}

	ev := history.Event{
		Kind:      kind,
		Timestamp: ts,
		PolicyID:  history.PolicyID(w.Payload.PolicyID),
	}
	if w.Payload.OriginalPolicyID != nil {
		ev.OriginalPolicyID = history.PolicyID(*w.Payload.OriginalPolicyID)
	}

	var de *DecodeError
	if ev.StartDate, de = parseOptional("start_date", w.Payload.StartDate); de != nil {
		return history.Event{}, de
	}
	if ev.EndDate, de = parseOptional("end_date", w.Payload.EndDate); de != nil {
		return history.Event{}, de
	}
	if ev.NewEndDate, de = parseOptional("new_end_date", w.Payload.NewEndDate); de != nil {
		return history.Event{}, de
	}
	if v := w.Payload.Vehicle; v != nil {
		ev.Vehicle = &history.VehicleDescriptor{PrettyVRM: v.PrettyVRM, Make: v.Make, Model: v.Model}
	}
	return ev, nil
}

func parseOptional(field string, s *string) (*time.Time, *DecodeError) {
	if s == nil {
		return nil, nil
	}
	t, err := ParseTime(*s)
	if err != nil {
		return nil, &DecodeError{Field: field, Err: err}
	}
	return &t, nil
}

// =============================================================================
// ENCODE
// =============================================================================

// Encode renders events in the wire format.
func Encode(events []history.Event) ([]byte, error) {
	return json.Marshal(ToWire(events))
}

// ToWire converts events to wire structs.
func ToWire(events []history.Event) []EventJSON {
	wire := make([]EventJSON, 0, len(events))
	for _, ev := range events {
		p := PayloadJSON{
			Timestamp:  FormatTime(ev.Timestamp),
			PolicyID:   string(ev.PolicyID),
			StartDate:  formatOptional(ev.StartDate),
			EndDate:    formatOptional(ev.EndDate),
			NewEndDate: formatOptional(ev.NewEndDate),
		}
		if ev.OriginalPolicyID != "" {
			orig := string(ev.OriginalPolicyID)
			p.OriginalPolicyID = &orig
		}
		if v := ev.Vehicle; v != nil {
			p.Vehicle = &VehicleJSON{PrettyVRM: v.PrettyVRM, Make: v.Make, Model: v.Model}
		}
		wire = append(wire, EventJSON{Type: string(ev.Kind), Payload: p})
	}
	return wire
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := FormatTime(*t)
	return &s
}

package history_test

import (
	"time"

	"github.com/warp/policy-history/history"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(month time.Month, day int) time.Time {
	return time.Date(2021, month, day, 0, 0, 0, 0, time.UTC)
}

func at(month time.Month, day, hour int) time.Time {
	return time.Date(2021, month, day, hour, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func created(id, vrm string, start, end, ts time.Time) history.Event {
	return history.Event{
		Kind:      history.EventCreated,
		Timestamp: ts,
		PolicyID:  history.PolicyID(id),
		StartDate: ptr(start),
		EndDate:   ptr(end),
		Vehicle: &history.VehicleDescriptor{
			PrettyVRM: vrm,
			Make:      "Volkswagen",
			Model:     "Polo",
		},
	}
}

func extended(id, original string, start, end, ts time.Time) history.Event {
	return history.Event{
		Kind:             history.EventExtended,
		Timestamp:        ts,
		PolicyID:         history.PolicyID(id),
		OriginalPolicyID: history.PolicyID(original),
		StartDate:        ptr(start),
		EndDate:          ptr(end),
	}
}

func cancelled(id string, ts time.Time, newEnd *time.Time) history.Event {
	return history.Event{
		Kind:       history.EventCancelled,
		Timestamp:  ts,
		PolicyID:   history.PolicyID(id),
		NewEndDate: newEnd,
	}
}
